package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const (
	RoleAdmin       = "admin"
	RoleManager     = "manager"
	RoleSecretary   = "secretary"
	RoleSalesperson = "salesperson"
)

// Roles lists every role an account may hold.
var Roles = []string{RoleAdmin, RoleManager, RoleSecretary, RoleSalesperson}

// Table names double as linked_action_table values in user history.
const (
	TableAccounts          = "accounts"
	TableCustomers         = "customers"
	TableProductCategories = "product_categories"
	TableProducts          = "products"
	TableSales             = "sales"
	TableSaleItems         = "sales_items"
)

const (
	ActionCreateSale     = "create_sale"
	ActionUpdateSale     = "update_sale"
	ActionDeleteSale     = "delete_sale"
	ActionDeleteSaleItem = "delete_sale_item"

	ActionCreateCustomer = "create_customer"
	ActionUpdateCustomer = "update_customer"
	ActionDeleteCustomer = "delete_customer"

	ActionCreateCategory = "create_category"
	ActionUpdateCategory = "update_category"
	ActionDeleteCategory = "delete_category"

	ActionCreateProduct = "create_product"
	ActionUpdateProduct = "update_product"
	ActionDeleteProduct = "delete_product"

	ActionCreateAccount = "create_account"
	ActionUpdateAccount = "update_account"
	ActionDeleteAccount = "delete_account"
)

type Actor struct {
	AccountID int64
	Username  string
	Role      string
}

// Account is the persistence model; PasswordHash never leaves the backend.
type Account struct {
	ID           int64     `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Role         string    `json:"role" db:"role"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

type Customer struct {
	ID          int64     `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	ContactInfo string    `json:"contact_info" db:"contact_info"`
	Address     string    `json:"address" db:"address"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

type ProductCategory struct {
	ID          int64     `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	ImagePath   string    `json:"image_path" db:"image_path"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

type Product struct {
	ID                 int64           `json:"id" db:"id"`
	CategoryID         int64           `json:"category_id" db:"category_id"`
	Name               string          `json:"name" db:"name"`
	Size               string          `json:"size" db:"size"`
	Color              string          `json:"color" db:"color"`
	PricePerUnitBought decimal.Decimal `json:"price_per_unit_bought" db:"price_per_unit_bought"`
	PricePerUnitSold   decimal.Decimal `json:"price_per_unit_sold" db:"price_per_unit_sold"`
	QuantityBought     int             `json:"quantity_bought" db:"quantity_bought"`
	QuantitySold       int             `json:"quantity_sold" db:"quantity_sold"`
	Weight             decimal.Decimal `json:"weight" db:"weight"`
	WeightUnit         string          `json:"weight_unit" db:"weight_unit"`
	TotalPriceBought   decimal.Decimal `json:"total_price_bought" db:"total_price_bought"`
	ImagePath          string          `json:"image_path" db:"image_path"`
	CreatedAt          time.Time       `json:"created_at" db:"created_at"`
}

// Available returns the stock that can still be sold.
func (p Product) Available() int {
	return p.QuantityBought - p.QuantitySold
}

type Sale struct {
	ID         int64           `json:"id" db:"id"`
	CustomerID int64           `json:"customer_id" db:"customer_id"`
	TotalPrice decimal.Decimal `json:"total_price" db:"total_price"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

type SaleItem struct {
	ID              int64           `json:"id" db:"id"`
	SaleID          int64           `json:"sale_id" db:"sale_id"`
	ProductID       int64           `json:"product_id" db:"product_id"`
	Quantity        int             `json:"quantity" db:"quantity"`
	PricePerUnit    decimal.Decimal `json:"price_per_unit" db:"price_per_unit"`
	DiscountPerUnit decimal.Decimal `json:"discount_per_unit" db:"discount_per_unit"`
	TotalPrice      decimal.Decimal `json:"total_price" db:"total_price"`
}

// LineTotal is quantity * (price - discount).
func LineTotal(quantity int, price decimal.Decimal, discount decimal.Decimal) decimal.Decimal {
	return price.Sub(discount).Mul(decimal.NewFromInt(int64(quantity)))
}

type UserHistoryRecord struct {
	ID                int64           `json:"id"`
	Action            string          `json:"action"`
	LinkedActionID    *int64          `json:"linked_action_id,omitempty"`
	LinkedActionTable string          `json:"linked_action_table"`
	OldData           json.RawMessage `json:"old_data,omitempty"`
	NewData           json.RawMessage `json:"new_data,omitempty"`
	AccountID         int64           `json:"account_id"`
	CreatedAt         time.Time       `json:"created_at"`
}

type HistoryFilter struct {
	AccountID int64
	Table     string
	Action    string
	From      time.Time
	To        time.Time
	Limit     int
}

// SaleSnapshot is the audit payload for the sales table: the sale's own
// fields flattened next to its line items.
type SaleSnapshot struct {
	Sale
	Items []SaleItem `json:"items"`
}

// AccountSnapshot is what history stores for an account; no credentials.
type AccountSnapshot struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func NewAccountSnapshot(a Account) AccountSnapshot {
	return AccountSnapshot{ID: a.ID, Username: a.Username, Role: a.Role, CreatedAt: a.CreatedAt}
}

type SaleLineRequest struct {
	ProductID       int64            `json:"product_id" validate:"required,gt=0"`
	Quantity        int              `json:"quantity" validate:"gt=0,lte=1000000"`
	UnitPrice       *decimal.Decimal `json:"unit_price,omitempty"`
	DiscountPerUnit decimal.Decimal  `json:"discount_per_unit"`
}

type SaleRequest struct {
	CustomerID int64             `json:"customer_id" validate:"required,gt=0"`
	Items      []SaleLineRequest `json:"items" validate:"required,min=1,dive"`
}

type SaleResult struct {
	SaleID     int64           `json:"sale_id"`
	CustomerID int64           `json:"customer_id"`
	TotalPrice decimal.Decimal `json:"total_price"`
	Items      []SaleItem      `json:"items"`
	CreatedAt  time.Time       `json:"created_at"`
}

type SaleDetailItem struct {
	SaleItem
	ProductName string `json:"product_name"`
}

type SaleDetail struct {
	Sale
	CustomerName string           `json:"customer_name"`
	Items        []SaleDetailItem `json:"items"`
}

type SaleFilter struct {
	CustomerID int64
	Limit      int
}

type CustomerRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	ContactInfo string `json:"contact_info" validate:"max=200"`
	Address     string `json:"address" validate:"max=400"`
}

type CategoryRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description" validate:"max=1000"`
	ImagePath   string `json:"image_path"`
}

type ProductRequest struct {
	CategoryID         int64           `json:"category_id" validate:"required,gt=0"`
	Name               string          `json:"name" validate:"required,max=200"`
	Size               string          `json:"size" validate:"max=100"`
	Color              string          `json:"color" validate:"max=100"`
	PricePerUnitBought decimal.Decimal `json:"price_per_unit_bought"`
	PricePerUnitSold   decimal.Decimal `json:"price_per_unit_sold"`
	QuantityBought     int             `json:"quantity_bought" validate:"gte=0"`
	Weight             decimal.Decimal `json:"weight"`
	WeightUnit         string          `json:"weight_unit" validate:"max=20"`
	ImagePath          string          `json:"image_path"`
}

type AccountCreateRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50,excludesall= \t\r\n"`
	Password string `json:"password" validate:"required,min=6"`
	Role     string `json:"role" validate:"required,oneof=admin manager secretary salesperson"`
}

type AccountUpdateRequest struct {
	Username *string `json:"username,omitempty" validate:"omitempty,min=3,max=50,excludesall= \t\r\n"`
	Password *string `json:"password,omitempty" validate:"omitempty,min=6"`
	Role     *string `json:"role,omitempty" validate:"omitempty,oneof=admin manager secretary salesperson"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	AccountID   int64  `json:"account_id"`
	Username    string `json:"username"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type BulkDeleteResponse struct {
	Window  string `json:"window"`
	Cutoff  string `json:"cutoff"`
	Deleted int64  `json:"deleted"`
}

// HistoryDiffResponse pairs the changed field names of a record with its
// decoded snapshots.
type HistoryDiffResponse struct {
	ID      int64    `json:"id"`
	Action  string   `json:"action"`
	Table   string   `json:"linked_action_table"`
	Changed []string `json:"changed"`
	Old     any      `json:"old_data"`
	New     any      `json:"new_data"`
}
