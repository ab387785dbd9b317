package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"plumbpos/backend/internal/audit"
	"plumbpos/backend/internal/domain"
	"plumbpos/backend/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo     store.Repository
	validate *validator.Validate
	now      func() time.Time
}

type Option func(*Service)

// WithClock replaces time.Now, mostly so tests can age history records.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func New(repo store.Repository, opts ...Option) *Service {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	s := &Service{
		repo:     repo,
		validate: v,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

func requireActor(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.AccountID < 1 {
		return domain.Actor{}, store.Invalid("actor", "is required")
	}
	return actor, nil
}

// validateRequest runs the struct tags and reports the first failure as a
// ValidationError keyed by the JSON field path.
func (s *Service) validateRequest(req any) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return store.Invalid("", err.Error())
	}
	fe := fieldErrs[0]
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	return store.Invalid(field, describeTag(fe))
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must contain at least %s entries", fe.Param())
		}
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "oneof":
		return "must be one of " + fe.Param()
	case "excludesall":
		return "must not contain whitespace"
	default:
		return "failed " + fe.Tag() + " check"
	}
}

// recordHistory writes the audit row inside the caller's unit, so a failure
// here rolls back the business write too. old and new must be untyped nil
// when absent.
func (s *Service) recordHistory(ctx context.Context, tx store.Tx, actor domain.Actor, action string, table string, linkedID int64, oldData any, newData any) error {
	oldRaw, err := audit.Encode(oldData)
	if err != nil {
		return err
	}
	newRaw, err := audit.Encode(newData)
	if err != nil {
		return err
	}

	record := domain.UserHistoryRecord{
		Action:            action,
		LinkedActionTable: table,
		OldData:           oldRaw,
		NewData:           newRaw,
		AccountID:         actor.AccountID,
		CreatedAt:         s.clock(),
	}
	if linkedID > 0 {
		record.LinkedActionID = &linkedID
	}
	_, err = tx.InsertHistory(ctx, record)
	return err
}
