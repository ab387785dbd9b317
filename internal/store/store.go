package store

import (
	"context"
	"time"

	"plumbpos/backend/internal/domain"
)

// Reader holds every query the service issues. Both the repository and an
// open unit of work satisfy it; reads inside a unit see its uncommitted writes.
type Reader interface {
	GetAccountByID(ctx context.Context, id int64) (*domain.Account, error)
	GetAccountByUsername(ctx context.Context, username string) (*domain.Account, error)
	ListAccounts(ctx context.Context) ([]domain.Account, error)
	CountAccountsByRole(ctx context.Context, role string) (int, error)

	GetCustomerByID(ctx context.Context, id int64) (*domain.Customer, error)
	ListCustomers(ctx context.Context) ([]domain.Customer, error)

	GetCategoryByID(ctx context.Context, id int64) (*domain.ProductCategory, error)
	ListCategories(ctx context.Context) ([]domain.ProductCategory, error)

	GetProductByID(ctx context.Context, id int64) (*domain.Product, error)
	ListProducts(ctx context.Context, categoryID int64) ([]domain.Product, error)

	GetSaleByID(ctx context.Context, id int64) (*domain.Sale, error)
	ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error)
	GetSaleItemByID(ctx context.Context, id int64) (*domain.SaleItem, error)
	ListSaleItems(ctx context.Context, saleID int64) ([]domain.SaleItem, error)
	ListSaleItemsByProduct(ctx context.Context, productID int64) ([]domain.SaleItem, error)

	GetHistoryByID(ctx context.Context, id int64) (*domain.UserHistoryRecord, error)
	ListHistory(ctx context.Context, filter domain.HistoryFilter) ([]domain.UserHistoryRecord, error)
}

// Tx is one atomic unit of work. Nothing written through it is visible to
// other readers until RunAtomic commits.
type Tx interface {
	Reader

	InsertAccount(ctx context.Context, account domain.Account) (int64, error)
	UpdateAccount(ctx context.Context, account domain.Account) error
	DeleteAccount(ctx context.Context, id int64) error

	InsertCustomer(ctx context.Context, customer domain.Customer) (int64, error)
	UpdateCustomer(ctx context.Context, customer domain.Customer) error
	DeleteCustomer(ctx context.Context, id int64) error

	InsertCategory(ctx context.Context, category domain.ProductCategory) (int64, error)
	UpdateCategory(ctx context.Context, category domain.ProductCategory) error
	DeleteCategory(ctx context.Context, id int64) error

	InsertProduct(ctx context.Context, product domain.Product) (int64, error)
	// UpdateProduct writes every column except quantity_sold.
	UpdateProduct(ctx context.Context, product domain.Product) error
	DeleteProduct(ctx context.Context, id int64) error
	// AdjustProductQuantitySold adds delta (negative on reversal) and fails
	// with InsufficientStockError when the result would leave [0, quantity_bought].
	AdjustProductQuantitySold(ctx context.Context, productID int64, delta int) error

	InsertSale(ctx context.Context, sale domain.Sale) (int64, error)
	UpdateSale(ctx context.Context, sale domain.Sale) error
	DeleteSale(ctx context.Context, id int64) error
	InsertSaleItem(ctx context.Context, item domain.SaleItem) (int64, error)
	DeleteSaleItem(ctx context.Context, id int64) error
	DeleteSaleItemsForSale(ctx context.Context, saleID int64) ([]domain.SaleItem, error)

	InsertHistory(ctx context.Context, record domain.UserHistoryRecord) (int64, error)
	// DeleteHistory removes one record only if it was created at or before cutoff.
	DeleteHistory(ctx context.Context, id int64, cutoff time.Time) (int64, error)
	DeleteHistoryBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type Repository interface {
	Reader
	// RunAtomic commits when fn returns nil and discards every write otherwise.
	RunAtomic(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}
