package sqlite

import (
	"context"
	"database/sql"
	"time"

	"plumbpos/backend/internal/domain"
	"plumbpos/backend/internal/store"
)

func (w writer) exec(ctx context.Context, op string, query string, args ...any) (sql.Result, error) {
	res, err := w.q.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, store.Storage(op, err)
	}
	return res, nil
}

func (w writer) insert(ctx context.Context, op string, query string, args ...any) (int64, error) {
	res, err := w.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, store.Storage(op, err)
	}
	return id, nil
}

// mustAffect turns a zero-row UPDATE or DELETE into NotFound.
func mustAffect(res sql.Result, op string, entity string, id int64) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return store.Storage(op, err)
	}
	if affected == 0 {
		return store.NotFound(entity, id)
	}
	return nil
}

func (w writer) InsertAccount(ctx context.Context, account domain.Account) (int64, error) {
	id, err := w.insert(ctx, "insert account", `
		INSERT INTO accounts (username, password_hash, role, created_at)
		VALUES (?, ?, ?, ?)
	`, account.Username, account.PasswordHash, account.Role, ts(account.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return 0, store.Invalid("username", "already exists")
		}
		if isCheckViolation(err) {
			return 0, store.Invalid("role", "is not a known role")
		}
		return 0, store.Storage("insert account", err)
	}
	return id, nil
}

func (w writer) UpdateAccount(ctx context.Context, account domain.Account) error {
	res, err := w.q.ExecContext(ctx, `
		UPDATE accounts SET username = ?, password_hash = ?, role = ?
		WHERE id = ?
	`, account.Username, account.PasswordHash, account.Role, account.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return store.Invalid("username", "already exists")
		}
		if isCheckViolation(err) {
			return store.Invalid("role", "is not a known role")
		}
		return store.Storage("update account", err)
	}
	return mustAffect(res, "update account", "account", account.ID)
}

func (w writer) DeleteAccount(ctx context.Context, id int64) error {
	res, err := w.exec(ctx, "delete account", `DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return mustAffect(res, "delete account", "account", id)
}

func (w writer) InsertCustomer(ctx context.Context, customer domain.Customer) (int64, error) {
	id, err := w.insert(ctx, "insert customer", `
		INSERT INTO customers (name, contact_info, address, created_at)
		VALUES (?, ?, ?, ?)
	`, customer.Name, customer.ContactInfo, customer.Address, ts(customer.CreatedAt))
	if err != nil {
		return 0, store.Storage("insert customer", err)
	}
	return id, nil
}

func (w writer) UpdateCustomer(ctx context.Context, customer domain.Customer) error {
	res, err := w.exec(ctx, "update customer", `
		UPDATE customers SET name = ?, contact_info = ?, address = ?
		WHERE id = ?
	`, customer.Name, customer.ContactInfo, customer.Address, customer.ID)
	if err != nil {
		return err
	}
	return mustAffect(res, "update customer", "customer", customer.ID)
}

func (w writer) DeleteCustomer(ctx context.Context, id int64) error {
	res, err := w.exec(ctx, "delete customer", `DELETE FROM customers WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return mustAffect(res, "delete customer", "customer", id)
}

func (w writer) InsertCategory(ctx context.Context, category domain.ProductCategory) (int64, error) {
	id, err := w.insert(ctx, "insert category", `
		INSERT INTO product_categories (name, description, image_path, created_at)
		VALUES (?, ?, ?, ?)
	`, category.Name, category.Description, category.ImagePath, ts(category.CreatedAt))
	if err != nil {
		return 0, store.Storage("insert category", err)
	}
	return id, nil
}

func (w writer) UpdateCategory(ctx context.Context, category domain.ProductCategory) error {
	res, err := w.exec(ctx, "update category", `
		UPDATE product_categories SET name = ?, description = ?, image_path = ?
		WHERE id = ?
	`, category.Name, category.Description, category.ImagePath, category.ID)
	if err != nil {
		return err
	}
	return mustAffect(res, "update category", "category", category.ID)
}

func (w writer) DeleteCategory(ctx context.Context, id int64) error {
	res, err := w.exec(ctx, "delete category", `DELETE FROM product_categories WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return mustAffect(res, "delete category", "category", id)
}

func (w writer) InsertProduct(ctx context.Context, product domain.Product) (int64, error) {
	id, err := w.insert(ctx, "insert product", `
		INSERT INTO products (
			category_id, name, size, color, price_per_unit_bought, price_per_unit_sold,
			quantity_bought, quantity_sold, weight, weight_unit, total_price_bought, image_path, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, product.CategoryID, product.Name, product.Size, product.Color, product.PricePerUnitBought, product.PricePerUnitSold,
		product.QuantityBought, product.QuantitySold, product.Weight, product.WeightUnit, product.TotalPriceBought,
		product.ImagePath, ts(product.CreatedAt))
	if err != nil {
		if isForeignKeyViolation(err) {
			return 0, store.NotFound("category", product.CategoryID)
		}
		if isCheckViolation(err) {
			return 0, store.Invalid("quantity_sold", "must be between 0 and quantity_bought")
		}
		return 0, store.Storage("insert product", err)
	}
	return id, nil
}

func (w writer) UpdateProduct(ctx context.Context, product domain.Product) error {
	res, err := w.q.ExecContext(ctx, `
		UPDATE products
		SET category_id = ?, name = ?, size = ?, color = ?, price_per_unit_bought = ?, price_per_unit_sold = ?,
			quantity_bought = ?, weight = ?, weight_unit = ?, total_price_bought = ?, image_path = ?
		WHERE id = ?
	`, product.CategoryID, product.Name, product.Size, product.Color, product.PricePerUnitBought, product.PricePerUnitSold,
		product.QuantityBought, product.Weight, product.WeightUnit, product.TotalPriceBought, product.ImagePath, product.ID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return store.NotFound("category", product.CategoryID)
		}
		if isCheckViolation(err) {
			return store.Invalid("quantity_bought", "is below quantity already sold")
		}
		return store.Storage("update product", err)
	}
	return mustAffect(res, "update product", "product", product.ID)
}

func (w writer) DeleteProduct(ctx context.Context, id int64) error {
	res, err := w.exec(ctx, "delete product", `DELETE FROM products WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return mustAffect(res, "delete product", "product", id)
}

// AdjustProductQuantitySold re-checks the stock bound in the UPDATE itself and
// only reads the row back to explain a refusal.
func (w writer) AdjustProductQuantitySold(ctx context.Context, productID int64, delta int) error {
	res, err := w.exec(ctx, "adjust quantity sold", `
		UPDATE products
		SET quantity_sold = quantity_sold + ?
		WHERE id = ? AND quantity_sold + ? BETWEEN 0 AND quantity_bought
	`, delta, productID, delta)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return store.Storage("adjust quantity sold", err)
	}
	if affected == 1 {
		return nil
	}

	p, err := w.GetProductByID(ctx, productID)
	if err != nil {
		return err
	}
	if p.QuantitySold+delta < 0 {
		return store.Invalid("quantity_sold", "would become negative")
	}
	return &store.InsufficientStockError{ProductID: p.ID, ProductName: p.Name, Requested: delta, Available: p.Available()}
}

func (w writer) InsertSale(ctx context.Context, sale domain.Sale) (int64, error) {
	id, err := w.insert(ctx, "insert sale", `
		INSERT INTO sales (customer_id, total_price, created_at)
		VALUES (?, ?, ?)
	`, sale.CustomerID, sale.TotalPrice, ts(sale.CreatedAt))
	if err != nil {
		if isForeignKeyViolation(err) {
			return 0, store.NotFound("customer", sale.CustomerID)
		}
		return 0, store.Storage("insert sale", err)
	}
	return id, nil
}

func (w writer) UpdateSale(ctx context.Context, sale domain.Sale) error {
	res, err := w.q.ExecContext(ctx, `UPDATE sales SET customer_id = ?, total_price = ? WHERE id = ?`,
		sale.CustomerID, sale.TotalPrice, sale.ID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return store.NotFound("customer", sale.CustomerID)
		}
		return store.Storage("update sale", err)
	}
	return mustAffect(res, "update sale", "sale", sale.ID)
}

func (w writer) DeleteSale(ctx context.Context, id int64) error {
	res, err := w.exec(ctx, "delete sale", `DELETE FROM sales WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return mustAffect(res, "delete sale", "sale", id)
}

func (w writer) InsertSaleItem(ctx context.Context, item domain.SaleItem) (int64, error) {
	id, err := w.insert(ctx, "insert sale item", `
		INSERT INTO sales_items (sale_id, product_id, quantity, price_per_unit, discount_per_unit, total_price)
		VALUES (?, ?, ?, ?, ?, ?)
	`, item.SaleID, item.ProductID, item.Quantity, item.PricePerUnit, item.DiscountPerUnit, item.TotalPrice)
	if err != nil {
		if isForeignKeyViolation(err) {
			return 0, store.NotFound("product", item.ProductID)
		}
		if isCheckViolation(err) {
			return 0, store.Invalid("quantity", "must be greater than zero")
		}
		return 0, store.Storage("insert sale item", err)
	}
	return id, nil
}

func (w writer) DeleteSaleItem(ctx context.Context, id int64) error {
	res, err := w.exec(ctx, "delete sale item", `DELETE FROM sales_items WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return mustAffect(res, "delete sale item", "sale item", id)
}

func (w writer) DeleteSaleItemsForSale(ctx context.Context, saleID int64) ([]domain.SaleItem, error) {
	items, err := w.ListSaleItems(ctx, saleID)
	if err != nil {
		return nil, err
	}
	if _, err := w.exec(ctx, "delete sale items", `DELETE FROM sales_items WHERE sale_id = ?`, saleID); err != nil {
		return nil, err
	}
	return items, nil
}

func (w writer) InsertHistory(ctx context.Context, record domain.UserHistoryRecord) (int64, error) {
	var linkedID sql.NullInt64
	if record.LinkedActionID != nil {
		linkedID = sql.NullInt64{Int64: *record.LinkedActionID, Valid: true}
	}
	id, err := w.insert(ctx, "insert history", `
		INSERT INTO user_history (action, linked_action_id, linked_action_table, old_data, new_data, account_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, record.Action, linkedID, record.LinkedActionTable, nullJSON(record.OldData), nullJSON(record.NewData),
		record.AccountID, ts(record.CreatedAt))
	if err != nil {
		if isForeignKeyViolation(err) {
			return 0, store.NotFound("account", record.AccountID)
		}
		return 0, store.Storage("insert history", err)
	}
	return id, nil
}

func (w writer) DeleteHistory(ctx context.Context, id int64, cutoff time.Time) (int64, error) {
	res, err := w.exec(ctx, "delete history", `DELETE FROM user_history WHERE id = ? AND created_at <= ?`, id, ts(cutoff))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, store.Storage("delete history", err)
	}
	return n, nil
}

func (w writer) DeleteHistoryBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := w.exec(ctx, "bulk delete history", `DELETE FROM user_history WHERE created_at <= ?`, ts(cutoff))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, store.Storage("bulk delete history", err)
	}
	return n, nil
}

func nullJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
