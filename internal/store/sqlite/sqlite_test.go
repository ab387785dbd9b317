package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"plumbpos/backend/internal/domain"
	"plumbpos/backend/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(context.Background(), filepath.Join(t.TempDir(), "inventory.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

type fixture struct {
	accountID  int64
	customerID int64
	productID  int64
}

func seed(t *testing.T, s *Store, bought int) fixture {
	t.Helper()
	now := time.Now().UTC()
	var f fixture
	err := s.RunAtomic(context.Background(), func(tx store.Tx) error {
		var err error
		ctx := context.Background()
		if f.accountID, err = tx.InsertAccount(ctx, domain.Account{Username: "admin", PasswordHash: "x", Role: domain.RoleAdmin, CreatedAt: now}); err != nil {
			return err
		}
		if f.customerID, err = tx.InsertCustomer(ctx, domain.Customer{Name: "Walk-in", CreatedAt: now}); err != nil {
			return err
		}
		categoryID, err := tx.InsertCategory(ctx, domain.ProductCategory{Name: "Pipes", CreatedAt: now})
		if err != nil {
			return err
		}
		f.productID, err = tx.InsertProduct(ctx, domain.Product{
			CategoryID:       categoryID,
			Name:             "PVC Pipe 1/2in",
			PricePerUnitSold: decimal.RequireFromString("100.50"),
			QuantityBought:   bought,
			CreatedAt:        now,
		})
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return f
}

func TestAdjustQuantitySoldGuardsStockBounds(t *testing.T) {
	s := newTestStore(t)
	f := seed(t, s, 10)
	ctx := context.Background()

	if err := s.RunAtomic(ctx, func(tx store.Tx) error {
		return tx.AdjustProductQuantitySold(ctx, f.productID, 8)
	}); err != nil {
		t.Fatalf("adjust +8: %v", err)
	}

	err := s.RunAtomic(ctx, func(tx store.Tx) error {
		return tx.AdjustProductQuantitySold(ctx, f.productID, 3)
	})
	var stockErr *store.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if stockErr.Available != 2 {
		t.Fatalf("expected 2 available, got %d", stockErr.Available)
	}

	err = s.RunAtomic(ctx, func(tx store.Tx) error {
		return tx.AdjustProductQuantitySold(ctx, f.productID, -9)
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error below zero, got %v", err)
	}

	p, err := s.GetProductByID(ctx, f.productID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if p.QuantitySold != 8 {
		t.Fatalf("expected quantity_sold 8, got %d", p.QuantitySold)
	}
	if !p.PricePerUnitSold.Equal(decimal.RequireFromString("100.50")) {
		t.Fatalf("price did not round-trip: %s", p.PricePerUnitSold)
	}
}

func TestRunAtomicRollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	f := seed(t, s, 10)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.RunAtomic(ctx, func(tx store.Tx) error {
		saleID, err := tx.InsertSale(ctx, domain.Sale{CustomerID: f.customerID, TotalPrice: decimal.NewFromInt(100), CreatedAt: time.Now()})
		if err != nil {
			return err
		}
		if _, err := tx.InsertSaleItem(ctx, domain.SaleItem{SaleID: saleID, ProductID: f.productID, Quantity: 1, PricePerUnit: decimal.NewFromInt(100), TotalPrice: decimal.NewFromInt(100)}); err != nil {
			return err
		}
		if err := tx.AdjustProductQuantitySold(ctx, f.productID, 1); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	sales, err := s.ListSales(ctx, domain.SaleFilter{})
	if err != nil {
		t.Fatalf("list sales: %v", err)
	}
	if len(sales) != 0 {
		t.Fatalf("expected no sales after rollback, got %d", len(sales))
	}
	p, _ := s.GetProductByID(ctx, f.productID)
	if p.QuantitySold != 0 {
		t.Fatalf("expected quantity_sold 0 after rollback, got %d", p.QuantitySold)
	}
}

func TestCheckConstraintRejectsOversoldRow(t *testing.T) {
	s := newTestStore(t)
	f := seed(t, s, 5)
	ctx := context.Background()

	_, err := s.db.ExecContext(ctx, `UPDATE products SET quantity_sold = 6 WHERE id = ?`, f.productID)
	if err == nil || !isCheckViolation(err) {
		t.Fatalf("expected check violation, got %v", err)
	}
}

func TestConcurrentAdjustNeverOversells(t *testing.T) {
	s := newTestStore(t)
	f := seed(t, s, 10)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make(chan error, 6)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- s.RunAtomic(ctx, func(tx store.Tx) error {
				p, err := tx.GetProductByID(ctx, f.productID)
				if err != nil {
					return err
				}
				if p.Available() < 3 {
					return &store.InsufficientStockError{ProductID: p.ID, Requested: 3, Available: p.Available()}
				}
				return tx.AdjustProductQuantitySold(ctx, f.productID, 3)
			})
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, store.ErrInsufficientStock):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 3 {
		t.Fatalf("expected 3 successful units, got %d", succeeded)
	}
	p, _ := s.GetProductByID(ctx, f.productID)
	if p.QuantitySold != 9 {
		t.Fatalf("expected quantity_sold 9, got %d", p.QuantitySold)
	}
}

func TestDeleteSaleCascadesItems(t *testing.T) {
	s := newTestStore(t)
	f := seed(t, s, 10)
	ctx := context.Background()

	var saleID int64
	if err := s.RunAtomic(ctx, func(tx store.Tx) error {
		var err error
		saleID, err = tx.InsertSale(ctx, domain.Sale{CustomerID: f.customerID, TotalPrice: decimal.NewFromInt(200), CreatedAt: time.Now()})
		if err != nil {
			return err
		}
		_, err = tx.InsertSaleItem(ctx, domain.SaleItem{SaleID: saleID, ProductID: f.productID, Quantity: 2, PricePerUnit: decimal.NewFromInt(100), TotalPrice: decimal.NewFromInt(200)})
		return err
	}); err != nil {
		t.Fatalf("insert sale: %v", err)
	}

	if err := s.RunAtomic(ctx, func(tx store.Tx) error {
		return tx.DeleteSale(ctx, saleID)
	}); err != nil {
		t.Fatalf("delete sale: %v", err)
	}

	items, err := s.ListSaleItems(ctx, saleID)
	if err != nil {
		t.Fatalf("list items: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected items to cascade, got %d", len(items))
	}
	if _, err := s.GetSaleByID(ctx, saleID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestInsertSaleItemUnknownProduct(t *testing.T) {
	s := newTestStore(t)
	f := seed(t, s, 10)
	ctx := context.Background()

	err := s.RunAtomic(ctx, func(tx store.Tx) error {
		saleID, err := tx.InsertSale(ctx, domain.Sale{CustomerID: f.customerID, CreatedAt: time.Now()})
		if err != nil {
			return err
		}
		_, err = tx.InsertSaleItem(ctx, domain.SaleItem{SaleID: saleID, ProductID: 999, Quantity: 1})
		return err
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestHistoryDeleteHonoursCutoff(t *testing.T) {
	s := newTestStore(t)
	f := seed(t, s, 10)
	ctx := context.Background()
	now := time.Now().UTC()

	var oldID, freshID int64
	if err := s.RunAtomic(ctx, func(tx store.Tx) error {
		var err error
		linked := f.productID
		oldID, err = tx.InsertHistory(ctx, domain.UserHistoryRecord{
			Action: domain.ActionUpdateProduct, LinkedActionID: &linked, LinkedActionTable: domain.TableProducts,
			OldData: []byte(`{"name":"a"}`), NewData: []byte(`{"name":"b"}`),
			AccountID: f.accountID, CreatedAt: now.Add(-8 * 24 * time.Hour),
		})
		if err != nil {
			return err
		}
		freshID, err = tx.InsertHistory(ctx, domain.UserHistoryRecord{
			Action: domain.ActionCreateCustomer, LinkedActionTable: domain.TableCustomers,
			NewData: []byte(`{"name":"c"}`), AccountID: f.accountID, CreatedAt: now.Add(-6 * 24 * time.Hour),
		})
		return err
	}); err != nil {
		t.Fatalf("insert history: %v", err)
	}

	fresh, err := s.GetHistoryByID(ctx, freshID)
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	if fresh.OldData != nil || fresh.LinkedActionID != nil {
		t.Fatalf("expected null old_data and linked id, got %s %v", fresh.OldData, fresh.LinkedActionID)
	}

	cutoff := now.Add(-7 * 24 * time.Hour)
	var deleted int64
	if err := s.RunAtomic(ctx, func(tx store.Tx) error {
		n, err := tx.DeleteHistory(ctx, freshID, cutoff)
		if err != nil {
			return err
		}
		deleted += n
		n, err = tx.DeleteHistory(ctx, oldID, cutoff)
		deleted += n
		return err
	}); err != nil {
		t.Fatalf("delete history: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted, got %d", deleted)
	}

	records, err := s.ListHistory(ctx, domain.HistoryFilter{})
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(records) != 1 || records[0].ID != freshID {
		t.Fatalf("expected only fresh record left, got %+v", records)
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inventory.db")
	ctx := context.Background()

	s, err := New(ctx, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	f := seed(t, s, 4)
	_ = s.Close()

	s, err = New(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	p, err := s.GetProductByID(ctx, f.productID)
	if err != nil {
		t.Fatalf("get product after reopen: %v", err)
	}
	if p.QuantityBought != 4 {
		t.Fatalf("expected quantity_bought 4, got %d", p.QuantityBought)
	}
}
