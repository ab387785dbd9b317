package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"plumbpos/backend/internal/domain"
	"plumbpos/backend/internal/store"
)

const (
	accountColumns  = `id, username, password_hash, role, created_at`
	customerColumns = `id, name, contact_info, address, created_at`
	categoryColumns = `id, name, description, image_path, created_at`
	productColumns  = `id, category_id, name, size, color, price_per_unit_bought, price_per_unit_sold,
		quantity_bought, quantity_sold, weight, weight_unit, total_price_bought, image_path, created_at`
	saleColumns     = `id, customer_id, total_price, created_at`
	saleItemColumns = `id, sale_id, product_id, quantity, price_per_unit, discount_per_unit, total_price`
	historyColumns  = `id, action, linked_action_id, linked_action_table, old_data, new_data, account_id, created_at`
)

// historyRow exists because NULL cannot be scanned into json.RawMessage.
type historyRow struct {
	ID                int64          `db:"id"`
	Action            string         `db:"action"`
	LinkedActionID    sql.NullInt64  `db:"linked_action_id"`
	LinkedActionTable string         `db:"linked_action_table"`
	OldData           sql.NullString `db:"old_data"`
	NewData           sql.NullString `db:"new_data"`
	AccountID         int64          `db:"account_id"`
	CreatedAt         time.Time      `db:"created_at"`
}

func (r historyRow) record() domain.UserHistoryRecord {
	rec := domain.UserHistoryRecord{
		ID:                r.ID,
		Action:            r.Action,
		LinkedActionTable: r.LinkedActionTable,
		AccountID:         r.AccountID,
		CreatedAt:         r.CreatedAt.UTC(),
	}
	if r.LinkedActionID.Valid {
		id := r.LinkedActionID.Int64
		rec.LinkedActionID = &id
	}
	if r.OldData.Valid {
		rec.OldData = json.RawMessage(r.OldData.String)
	}
	if r.NewData.Valid {
		rec.NewData = json.RawMessage(r.NewData.String)
	}
	return rec
}

func (q queries) get(ctx context.Context, dest any, entity string, id int64, query string, args ...any) error {
	if err := sqlx.GetContext(ctx, q.q, dest, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.NotFound(entity, id)
		}
		return store.Storage("get "+entity, err)
	}
	return nil
}

func (q queries) GetAccountByID(ctx context.Context, id int64) (*domain.Account, error) {
	var a domain.Account
	if err := q.get(ctx, &a, "account", id, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id); err != nil {
		return nil, err
	}
	a.CreatedAt = a.CreatedAt.UTC()
	return &a, nil
}

func (q queries) GetAccountByUsername(ctx context.Context, username string) (*domain.Account, error) {
	var a domain.Account
	err := sqlx.GetContext(ctx, q.q, &a, `SELECT `+accountColumns+` FROM accounts WHERE username = ?`, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, store.Storage("get account", err)
	}
	a.CreatedAt = a.CreatedAt.UTC()
	return &a, nil
}

func (q queries) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	accounts := make([]domain.Account, 0, 8)
	if err := sqlx.SelectContext(ctx, q.q, &accounts, `SELECT `+accountColumns+` FROM accounts ORDER BY username`); err != nil {
		return nil, store.Storage("list accounts", err)
	}
	for i := range accounts {
		accounts[i].CreatedAt = accounts[i].CreatedAt.UTC()
	}
	return accounts, nil
}

func (q queries) CountAccountsByRole(ctx context.Context, role string) (int, error) {
	var n int
	if err := sqlx.GetContext(ctx, q.q, &n, `SELECT COUNT(*) FROM accounts WHERE role = ?`, role); err != nil {
		return 0, store.Storage("count accounts", err)
	}
	return n, nil
}

func (q queries) GetCustomerByID(ctx context.Context, id int64) (*domain.Customer, error) {
	var c domain.Customer
	if err := q.get(ctx, &c, "customer", id, `SELECT `+customerColumns+` FROM customers WHERE id = ?`, id); err != nil {
		return nil, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}

func (q queries) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	customers := make([]domain.Customer, 0, 32)
	if err := sqlx.SelectContext(ctx, q.q, &customers, `SELECT `+customerColumns+` FROM customers ORDER BY name, id`); err != nil {
		return nil, store.Storage("list customers", err)
	}
	for i := range customers {
		customers[i].CreatedAt = customers[i].CreatedAt.UTC()
	}
	return customers, nil
}

func (q queries) GetCategoryByID(ctx context.Context, id int64) (*domain.ProductCategory, error) {
	var c domain.ProductCategory
	if err := q.get(ctx, &c, "category", id, `SELECT `+categoryColumns+` FROM product_categories WHERE id = ?`, id); err != nil {
		return nil, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}

func (q queries) ListCategories(ctx context.Context) ([]domain.ProductCategory, error) {
	categories := make([]domain.ProductCategory, 0, 16)
	if err := sqlx.SelectContext(ctx, q.q, &categories, `SELECT `+categoryColumns+` FROM product_categories ORDER BY name, id`); err != nil {
		return nil, store.Storage("list categories", err)
	}
	for i := range categories {
		categories[i].CreatedAt = categories[i].CreatedAt.UTC()
	}
	return categories, nil
}

func (q queries) GetProductByID(ctx context.Context, id int64) (*domain.Product, error) {
	var p domain.Product
	if err := q.get(ctx, &p, "product", id, `SELECT `+productColumns+` FROM products WHERE id = ?`, id); err != nil {
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}

func (q queries) ListProducts(ctx context.Context, categoryID int64) ([]domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products`
	args := make([]any, 0, 1)
	if categoryID > 0 {
		query += ` WHERE category_id = ?`
		args = append(args, categoryID)
	}
	query += ` ORDER BY name, id`

	products := make([]domain.Product, 0, 64)
	if err := sqlx.SelectContext(ctx, q.q, &products, query, args...); err != nil {
		return nil, store.Storage("list products", err)
	}
	for i := range products {
		products[i].CreatedAt = products[i].CreatedAt.UTC()
	}
	return products, nil
}

func (q queries) GetSaleByID(ctx context.Context, id int64) (*domain.Sale, error) {
	var s domain.Sale
	if err := q.get(ctx, &s, "sale", id, `SELECT `+saleColumns+` FROM sales WHERE id = ?`, id); err != nil {
		return nil, err
	}
	s.CreatedAt = s.CreatedAt.UTC()
	return &s, nil
}

func (q queries) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	query := `SELECT ` + saleColumns + ` FROM sales`
	args := make([]any, 0, 2)
	if filter.CustomerID > 0 {
		query += ` WHERE customer_id = ?`
		args = append(args, filter.CustomerID)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	sales := make([]domain.Sale, 0, 32)
	if err := sqlx.SelectContext(ctx, q.q, &sales, query, args...); err != nil {
		return nil, store.Storage("list sales", err)
	}
	for i := range sales {
		sales[i].CreatedAt = sales[i].CreatedAt.UTC()
	}
	return sales, nil
}

func (q queries) GetSaleItemByID(ctx context.Context, id int64) (*domain.SaleItem, error) {
	var item domain.SaleItem
	if err := q.get(ctx, &item, "sale item", id, `SELECT `+saleItemColumns+` FROM sales_items WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return &item, nil
}

func (q queries) ListSaleItems(ctx context.Context, saleID int64) ([]domain.SaleItem, error) {
	items := make([]domain.SaleItem, 0, 8)
	if err := sqlx.SelectContext(ctx, q.q, &items, `SELECT `+saleItemColumns+` FROM sales_items WHERE sale_id = ? ORDER BY id`, saleID); err != nil {
		return nil, store.Storage("list sale items", err)
	}
	return items, nil
}

func (q queries) ListSaleItemsByProduct(ctx context.Context, productID int64) ([]domain.SaleItem, error) {
	items := make([]domain.SaleItem, 0, 8)
	if err := sqlx.SelectContext(ctx, q.q, &items, `SELECT `+saleItemColumns+` FROM sales_items WHERE product_id = ? ORDER BY id`, productID); err != nil {
		return nil, store.Storage("list sale items", err)
	}
	return items, nil
}

func (q queries) GetHistoryByID(ctx context.Context, id int64) (*domain.UserHistoryRecord, error) {
	var row historyRow
	if err := q.get(ctx, &row, "history record", id, `SELECT `+historyColumns+` FROM user_history WHERE id = ?`, id); err != nil {
		return nil, err
	}
	rec := row.record()
	return &rec, nil
}

func (q queries) ListHistory(ctx context.Context, filter domain.HistoryFilter) ([]domain.UserHistoryRecord, error) {
	conds := make([]string, 0, 5)
	args := make([]any, 0, 6)
	if filter.AccountID > 0 {
		conds = append(conds, `account_id = ?`)
		args = append(args, filter.AccountID)
	}
	if filter.Table != "" {
		conds = append(conds, `linked_action_table = ?`)
		args = append(args, filter.Table)
	}
	if filter.Action != "" {
		conds = append(conds, `action = ?`)
		args = append(args, filter.Action)
	}
	if !filter.From.IsZero() {
		conds = append(conds, `created_at >= ?`)
		args = append(args, ts(filter.From))
	}
	if !filter.To.IsZero() {
		conds = append(conds, `created_at <= ?`)
		args = append(args, ts(filter.To))
	}

	query := `SELECT ` + historyColumns + ` FROM user_history`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, ` AND `)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows := make([]historyRow, 0, 64)
	if err := sqlx.SelectContext(ctx, q.q, &rows, query, args...); err != nil {
		return nil, store.Storage("list history", err)
	}
	records := make([]domain.UserHistoryRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.record())
	}
	return records, nil
}
