package audit

import (
	"encoding/json"
	"fmt"

	"plumbpos/backend/internal/domain"
)

// Encode serializes a snapshot for old_data or new_data. A nil value stays nil
// so the column is stored as NULL.
func Encode(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return raw, nil
}

// Decode turns a stored snapshot back into the typed value recorded for
// table. Unknown tables decode into a generic map.
func Decode(table string, raw json.RawMessage) (any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var target any
	switch table {
	case domain.TableSales:
		target = &domain.SaleSnapshot{}
	case domain.TableSaleItems:
		target = &domain.SaleItem{}
	case domain.TableProducts:
		target = &domain.Product{}
	case domain.TableCustomers:
		target = &domain.Customer{}
	case domain.TableProductCategories:
		target = &domain.ProductCategory{}
	case domain.TableAccounts:
		target = &domain.AccountSnapshot{}
	default:
		target = &map[string]any{}
	}

	if err := json.Unmarshal(raw, target); err != nil {
		return nil, fmt.Errorf("decode %s snapshot: %w", table, err)
	}
	return target, nil
}
