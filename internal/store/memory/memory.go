package memory

import (
	"context"
	"log"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"plumbpos/backend/internal/domain"
	"plumbpos/backend/internal/store"
)

// Store keeps every table in maps. A unit of work runs against a private copy
// of the committed state and replaces it in one swap on success.
type Store struct {
	writeMu sync.Mutex
	mu      sync.RWMutex
	state   *state
}

type state struct {
	nextID     map[string]int64
	accounts   map[int64]domain.Account
	customers  map[int64]domain.Customer
	categories map[int64]domain.ProductCategory
	products   map[int64]domain.Product
	sales      map[int64]domain.Sale
	saleItems  map[int64]domain.SaleItem
	history    map[int64]domain.UserHistoryRecord
}

var _ store.Repository = (*Store)(nil)

func New() *Store {
	return &Store{state: newState()}
}

func newState() *state {
	return &state{
		nextID:     make(map[string]int64),
		accounts:   make(map[int64]domain.Account),
		customers:  make(map[int64]domain.Customer),
		categories: make(map[int64]domain.ProductCategory),
		products:   make(map[int64]domain.Product),
		sales:      make(map[int64]domain.Sale),
		saleItems:  make(map[int64]domain.SaleItem),
		history:    make(map[int64]domain.UserHistoryRecord),
	}
}

// NewSeeded returns a store holding a small plumbing catalog, one walk-in
// customer and the accounts used in dev/demo mode. Passwords come from
// SEED_ADMIN_PASSWORD and SEED_SALES_PASSWORD with dev fallbacks.
func NewSeeded() *Store {
	s := New()
	st := s.state
	now := time.Now().UTC()

	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", envOr("SEED_ADMIN_PASSWORD", "admin123"), domain.RoleAdmin},
		{"sales", envOr("SEED_SALES_PASSWORD", "sales123"), domain.RoleSalesperson},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.MinCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		id := st.next(domain.TableAccounts)
		st.accounts[id] = domain.Account{ID: id, Username: u.username, PasswordHash: string(hash), Role: u.role, CreatedAt: now}
	}
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_SALES_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_SALES_PASSWORD to override.")
	}

	pipes := st.next(domain.TableProductCategories)
	st.categories[pipes] = domain.ProductCategory{ID: pipes, Name: "Pipes", Description: "PVC and copper pipe", CreatedAt: now}
	fittings := st.next(domain.TableProductCategories)
	st.categories[fittings] = domain.ProductCategory{ID: fittings, Name: "Fittings", Description: "Elbows, tees, couplings", CreatedAt: now}

	for _, p := range []domain.Product{
		{CategoryID: pipes, Name: "PVC Pipe 1/2in 3m", Size: "1/2in", Color: "white", PricePerUnitBought: decimal.NewFromInt(60), PricePerUnitSold: decimal.NewFromInt(100), QuantityBought: 10, QuantitySold: 2, WeightUnit: "kg", Weight: decimal.RequireFromString("1.2")},
		{CategoryID: pipes, Name: "Copper Pipe 3/4in 2m", Size: "3/4in", Color: "copper", PricePerUnitBought: decimal.NewFromInt(210), PricePerUnitSold: decimal.NewFromInt(320), QuantityBought: 25, WeightUnit: "kg", Weight: decimal.RequireFromString("2.5")},
		{CategoryID: fittings, Name: "Elbow 90deg 1/2in", Size: "1/2in", Color: "white", PricePerUnitBought: decimal.NewFromInt(20), PricePerUnitSold: decimal.NewFromInt(50), QuantityBought: 100, WeightUnit: "g", Weight: decimal.NewFromInt(40)},
		{CategoryID: fittings, Name: "Tee 1/2in", Size: "1/2in", Color: "white", PricePerUnitBought: decimal.NewFromInt(12), PricePerUnitSold: decimal.NewFromInt(30), QuantityBought: 80, WeightUnit: "g", Weight: decimal.NewFromInt(55)},
	} {
		p.ID = st.next(domain.TableProducts)
		p.TotalPriceBought = p.PricePerUnitBought.Mul(decimal.NewFromInt(int64(p.QuantityBought)))
		p.CreatedAt = now
		st.products[p.ID] = p
	}

	walkIn := st.next(domain.TableCustomers)
	st.customers[walkIn] = domain.Customer{ID: walkIn, Name: "Walk-in Customer", CreatedAt: now}

	return s
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *Store) Close() error { return nil }

func (s *Store) RunAtomic(ctx context.Context, fn func(tx store.Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	staged := s.state.clone()
	s.mu.RUnlock()

	if err := fn(staged); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.state = staged
	s.mu.Unlock()
	return nil
}

func (s *Store) read() *state {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Committed states are never mutated after the swap, so readers can use the
// pointer without holding the lock.

func (s *Store) GetAccountByID(ctx context.Context, id int64) (*domain.Account, error) {
	return s.read().GetAccountByID(ctx, id)
}

func (s *Store) GetAccountByUsername(ctx context.Context, username string) (*domain.Account, error) {
	return s.read().GetAccountByUsername(ctx, username)
}

func (s *Store) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	return s.read().ListAccounts(ctx)
}

func (s *Store) CountAccountsByRole(ctx context.Context, role string) (int, error) {
	return s.read().CountAccountsByRole(ctx, role)
}

func (s *Store) GetCustomerByID(ctx context.Context, id int64) (*domain.Customer, error) {
	return s.read().GetCustomerByID(ctx, id)
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.read().ListCustomers(ctx)
}

func (s *Store) GetCategoryByID(ctx context.Context, id int64) (*domain.ProductCategory, error) {
	return s.read().GetCategoryByID(ctx, id)
}

func (s *Store) ListCategories(ctx context.Context) ([]domain.ProductCategory, error) {
	return s.read().ListCategories(ctx)
}

func (s *Store) GetProductByID(ctx context.Context, id int64) (*domain.Product, error) {
	return s.read().GetProductByID(ctx, id)
}

func (s *Store) ListProducts(ctx context.Context, categoryID int64) ([]domain.Product, error) {
	return s.read().ListProducts(ctx, categoryID)
}

func (s *Store) GetSaleByID(ctx context.Context, id int64) (*domain.Sale, error) {
	return s.read().GetSaleByID(ctx, id)
}

func (s *Store) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	return s.read().ListSales(ctx, filter)
}

func (s *Store) GetSaleItemByID(ctx context.Context, id int64) (*domain.SaleItem, error) {
	return s.read().GetSaleItemByID(ctx, id)
}

func (s *Store) ListSaleItems(ctx context.Context, saleID int64) ([]domain.SaleItem, error) {
	return s.read().ListSaleItems(ctx, saleID)
}

func (s *Store) ListSaleItemsByProduct(ctx context.Context, productID int64) ([]domain.SaleItem, error) {
	return s.read().ListSaleItemsByProduct(ctx, productID)
}

func (s *Store) GetHistoryByID(ctx context.Context, id int64) (*domain.UserHistoryRecord, error) {
	return s.read().GetHistoryByID(ctx, id)
}

func (s *Store) ListHistory(ctx context.Context, filter domain.HistoryFilter) ([]domain.UserHistoryRecord, error) {
	return s.read().ListHistory(ctx, filter)
}

func (st *state) clone() *state {
	return &state{
		nextID:     maps.Clone(st.nextID),
		accounts:   maps.Clone(st.accounts),
		customers:  maps.Clone(st.customers),
		categories: maps.Clone(st.categories),
		products:   maps.Clone(st.products),
		sales:      maps.Clone(st.sales),
		saleItems:  maps.Clone(st.saleItems),
		history:    maps.Clone(st.history),
	}
}

func (st *state) next(table string) int64 {
	st.nextID[table]++
	return st.nextID[table]
}

func (st *state) GetAccountByID(_ context.Context, id int64) (*domain.Account, error) {
	a, ok := st.accounts[id]
	if !ok {
		return nil, store.NotFound("account", id)
	}
	return &a, nil
}

func (st *state) GetAccountByUsername(_ context.Context, username string) (*domain.Account, error) {
	for _, a := range st.accounts {
		if a.Username == username {
			return &a, nil
		}
	}
	return nil, store.ErrNotFound
}

func (st *state) ListAccounts(_ context.Context) ([]domain.Account, error) {
	out := slices.Collect(maps.Values(st.accounts))
	slices.SortFunc(out, func(a, b domain.Account) int { return strings.Compare(a.Username, b.Username) })
	return out, nil
}

func (st *state) CountAccountsByRole(_ context.Context, role string) (int, error) {
	n := 0
	for _, a := range st.accounts {
		if a.Role == role {
			n++
		}
	}
	return n, nil
}

func (st *state) GetCustomerByID(_ context.Context, id int64) (*domain.Customer, error) {
	c, ok := st.customers[id]
	if !ok {
		return nil, store.NotFound("customer", id)
	}
	return &c, nil
}

func (st *state) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	out := slices.Collect(maps.Values(st.customers))
	slices.SortFunc(out, func(a, b domain.Customer) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmpID(a.ID, b.ID)
	})
	return out, nil
}

func (st *state) GetCategoryByID(_ context.Context, id int64) (*domain.ProductCategory, error) {
	c, ok := st.categories[id]
	if !ok {
		return nil, store.NotFound("category", id)
	}
	return &c, nil
}

func (st *state) ListCategories(_ context.Context) ([]domain.ProductCategory, error) {
	out := slices.Collect(maps.Values(st.categories))
	slices.SortFunc(out, func(a, b domain.ProductCategory) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmpID(a.ID, b.ID)
	})
	return out, nil
}

func (st *state) GetProductByID(_ context.Context, id int64) (*domain.Product, error) {
	p, ok := st.products[id]
	if !ok {
		return nil, store.NotFound("product", id)
	}
	return &p, nil
}

func (st *state) ListProducts(_ context.Context, categoryID int64) ([]domain.Product, error) {
	out := make([]domain.Product, 0, len(st.products))
	for _, p := range st.products {
		if categoryID > 0 && p.CategoryID != categoryID {
			continue
		}
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b domain.Product) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmpID(a.ID, b.ID)
	})
	return out, nil
}

func (st *state) GetSaleByID(_ context.Context, id int64) (*domain.Sale, error) {
	s, ok := st.sales[id]
	if !ok {
		return nil, store.NotFound("sale", id)
	}
	return &s, nil
}

func (st *state) ListSales(_ context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	out := make([]domain.Sale, 0, len(st.sales))
	for _, s := range st.sales {
		if filter.CustomerID > 0 && s.CustomerID != filter.CustomerID {
			continue
		}
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b domain.Sale) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmpID(b.ID, a.ID)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (st *state) GetSaleItemByID(_ context.Context, id int64) (*domain.SaleItem, error) {
	item, ok := st.saleItems[id]
	if !ok {
		return nil, store.NotFound("sale item", id)
	}
	return &item, nil
}

func (st *state) ListSaleItems(_ context.Context, saleID int64) ([]domain.SaleItem, error) {
	return st.itemsWhere(func(item domain.SaleItem) bool { return item.SaleID == saleID }), nil
}

func (st *state) ListSaleItemsByProduct(_ context.Context, productID int64) ([]domain.SaleItem, error) {
	return st.itemsWhere(func(item domain.SaleItem) bool { return item.ProductID == productID }), nil
}

func (st *state) itemsWhere(keep func(domain.SaleItem) bool) []domain.SaleItem {
	out := make([]domain.SaleItem, 0, 8)
	for _, item := range st.saleItems {
		if keep(item) {
			out = append(out, item)
		}
	}
	slices.SortFunc(out, func(a, b domain.SaleItem) int { return cmpID(a.ID, b.ID) })
	return out
}

func (st *state) GetHistoryByID(_ context.Context, id int64) (*domain.UserHistoryRecord, error) {
	rec, ok := st.history[id]
	if !ok {
		return nil, store.NotFound("history record", id)
	}
	return &rec, nil
}

func (st *state) ListHistory(_ context.Context, filter domain.HistoryFilter) ([]domain.UserHistoryRecord, error) {
	out := make([]domain.UserHistoryRecord, 0, len(st.history))
	for _, rec := range st.history {
		if filter.AccountID > 0 && rec.AccountID != filter.AccountID {
			continue
		}
		if filter.Table != "" && rec.LinkedActionTable != filter.Table {
			continue
		}
		if filter.Action != "" && rec.Action != filter.Action {
			continue
		}
		if !filter.From.IsZero() && rec.CreatedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && rec.CreatedAt.After(filter.To) {
			continue
		}
		out = append(out, rec)
	}
	slices.SortFunc(out, func(a, b domain.UserHistoryRecord) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmpID(b.ID, a.ID)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (st *state) InsertAccount(_ context.Context, account domain.Account) (int64, error) {
	for _, a := range st.accounts {
		if a.Username == account.Username {
			return 0, store.Invalid("username", "already exists")
		}
	}
	account.ID = st.next(domain.TableAccounts)
	st.accounts[account.ID] = account
	return account.ID, nil
}

func (st *state) UpdateAccount(_ context.Context, account domain.Account) error {
	if _, ok := st.accounts[account.ID]; !ok {
		return store.NotFound("account", account.ID)
	}
	for _, a := range st.accounts {
		if a.ID != account.ID && a.Username == account.Username {
			return store.Invalid("username", "already exists")
		}
	}
	st.accounts[account.ID] = account
	return nil
}

func (st *state) DeleteAccount(_ context.Context, id int64) error {
	if _, ok := st.accounts[id]; !ok {
		return store.NotFound("account", id)
	}
	delete(st.accounts, id)
	for hid, rec := range st.history {
		if rec.AccountID == id {
			delete(st.history, hid)
		}
	}
	return nil
}

func (st *state) InsertCustomer(_ context.Context, customer domain.Customer) (int64, error) {
	customer.ID = st.next(domain.TableCustomers)
	st.customers[customer.ID] = customer
	return customer.ID, nil
}

func (st *state) UpdateCustomer(_ context.Context, customer domain.Customer) error {
	if _, ok := st.customers[customer.ID]; !ok {
		return store.NotFound("customer", customer.ID)
	}
	st.customers[customer.ID] = customer
	return nil
}

func (st *state) DeleteCustomer(_ context.Context, id int64) error {
	if _, ok := st.customers[id]; !ok {
		return store.NotFound("customer", id)
	}
	delete(st.customers, id)
	for sid, sale := range st.sales {
		if sale.CustomerID == id {
			st.deleteSale(sid)
		}
	}
	return nil
}

func (st *state) InsertCategory(_ context.Context, category domain.ProductCategory) (int64, error) {
	category.ID = st.next(domain.TableProductCategories)
	st.categories[category.ID] = category
	return category.ID, nil
}

func (st *state) UpdateCategory(_ context.Context, category domain.ProductCategory) error {
	if _, ok := st.categories[category.ID]; !ok {
		return store.NotFound("category", category.ID)
	}
	st.categories[category.ID] = category
	return nil
}

func (st *state) DeleteCategory(_ context.Context, id int64) error {
	if _, ok := st.categories[id]; !ok {
		return store.NotFound("category", id)
	}
	delete(st.categories, id)
	for pid, p := range st.products {
		if p.CategoryID == id {
			st.deleteProduct(pid)
		}
	}
	return nil
}

func (st *state) InsertProduct(_ context.Context, product domain.Product) (int64, error) {
	if _, ok := st.categories[product.CategoryID]; !ok {
		return 0, store.NotFound("category", product.CategoryID)
	}
	if product.QuantitySold < 0 || product.QuantitySold > product.QuantityBought {
		return 0, store.Invalid("quantity_sold", "must be between 0 and quantity_bought")
	}
	product.ID = st.next(domain.TableProducts)
	st.products[product.ID] = product
	return product.ID, nil
}

func (st *state) UpdateProduct(_ context.Context, product domain.Product) error {
	existing, ok := st.products[product.ID]
	if !ok {
		return store.NotFound("product", product.ID)
	}
	if _, ok := st.categories[product.CategoryID]; !ok {
		return store.NotFound("category", product.CategoryID)
	}
	product.QuantitySold = existing.QuantitySold
	if product.QuantityBought < product.QuantitySold {
		return store.Invalid("quantity_bought", "is below quantity already sold")
	}
	st.products[product.ID] = product
	return nil
}

func (st *state) DeleteProduct(_ context.Context, id int64) error {
	if _, ok := st.products[id]; !ok {
		return store.NotFound("product", id)
	}
	st.deleteProduct(id)
	return nil
}

func (st *state) deleteProduct(id int64) {
	delete(st.products, id)
	for iid, item := range st.saleItems {
		if item.ProductID == id {
			delete(st.saleItems, iid)
		}
	}
}

func (st *state) AdjustProductQuantitySold(_ context.Context, productID int64, delta int) error {
	p, ok := st.products[productID]
	if !ok {
		return store.NotFound("product", productID)
	}
	sold := p.QuantitySold + delta
	if sold < 0 {
		return store.Invalid("quantity_sold", "would become negative")
	}
	if sold > p.QuantityBought {
		return &store.InsufficientStockError{ProductID: p.ID, ProductName: p.Name, Requested: delta, Available: p.Available()}
	}
	p.QuantitySold = sold
	st.products[productID] = p
	return nil
}

func (st *state) InsertSale(_ context.Context, sale domain.Sale) (int64, error) {
	if _, ok := st.customers[sale.CustomerID]; !ok {
		return 0, store.NotFound("customer", sale.CustomerID)
	}
	sale.ID = st.next(domain.TableSales)
	st.sales[sale.ID] = sale
	return sale.ID, nil
}

func (st *state) UpdateSale(_ context.Context, sale domain.Sale) error {
	existing, ok := st.sales[sale.ID]
	if !ok {
		return store.NotFound("sale", sale.ID)
	}
	if _, ok := st.customers[sale.CustomerID]; !ok {
		return store.NotFound("customer", sale.CustomerID)
	}
	sale.CreatedAt = existing.CreatedAt
	st.sales[sale.ID] = sale
	return nil
}

func (st *state) DeleteSale(_ context.Context, id int64) error {
	if _, ok := st.sales[id]; !ok {
		return store.NotFound("sale", id)
	}
	st.deleteSale(id)
	return nil
}

func (st *state) deleteSale(id int64) {
	delete(st.sales, id)
	for iid, item := range st.saleItems {
		if item.SaleID == id {
			delete(st.saleItems, iid)
		}
	}
}

func (st *state) InsertSaleItem(_ context.Context, item domain.SaleItem) (int64, error) {
	if _, ok := st.sales[item.SaleID]; !ok {
		return 0, store.NotFound("sale", item.SaleID)
	}
	if _, ok := st.products[item.ProductID]; !ok {
		return 0, store.NotFound("product", item.ProductID)
	}
	if item.Quantity < 1 {
		return 0, store.Invalid("quantity", "must be greater than zero")
	}
	item.ID = st.next(domain.TableSaleItems)
	st.saleItems[item.ID] = item
	return item.ID, nil
}

func (st *state) DeleteSaleItem(_ context.Context, id int64) error {
	if _, ok := st.saleItems[id]; !ok {
		return store.NotFound("sale item", id)
	}
	delete(st.saleItems, id)
	return nil
}

func (st *state) DeleteSaleItemsForSale(_ context.Context, saleID int64) ([]domain.SaleItem, error) {
	removed := st.itemsWhere(func(item domain.SaleItem) bool { return item.SaleID == saleID })
	for _, item := range removed {
		delete(st.saleItems, item.ID)
	}
	return removed, nil
}

func (st *state) InsertHistory(_ context.Context, record domain.UserHistoryRecord) (int64, error) {
	if _, ok := st.accounts[record.AccountID]; !ok {
		return 0, store.NotFound("account", record.AccountID)
	}
	record.ID = st.next("user_history")
	st.history[record.ID] = record
	return record.ID, nil
}

func (st *state) DeleteHistory(_ context.Context, id int64, cutoff time.Time) (int64, error) {
	rec, ok := st.history[id]
	if !ok || rec.CreatedAt.After(cutoff) {
		return 0, nil
	}
	delete(st.history, id)
	return 1, nil
}

func (st *state) DeleteHistoryBefore(_ context.Context, cutoff time.Time) (int64, error) {
	var n int64
	for id, rec := range st.history {
		if !rec.CreatedAt.After(cutoff) {
			delete(st.history, id)
			n++
		}
	}
	return n, nil
}

func cmpID(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
