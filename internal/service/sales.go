package service

import (
	"context"
	"fmt"
	"log"
	"math"
	"slices"

	"github.com/shopspring/decimal"

	"plumbpos/backend/internal/domain"
	"plumbpos/backend/internal/store"
)

// salePlan is a validated cart priced against the products read inside the
// current unit. Items carry no ids yet.
type salePlan struct {
	items    []domain.SaleItem
	perUnit  map[int64]int
	products []int64
	total    decimal.Decimal
}

// checkSaleRequest runs every input rule that needs no database read.
func (s *Service) checkSaleRequest(req domain.SaleRequest) error {
	if err := s.validateRequest(req); err != nil {
		return err
	}
	for i, line := range req.Items {
		field := fmt.Sprintf("items[%d]", i)
		if line.UnitPrice != nil {
			if err := store.NonNegative(field+".unit_price", *line.UnitPrice); err != nil {
				return err
			}
		}
		if err := store.NonNegative(field+".discount_per_unit", line.DiscountPerUnit); err != nil {
			return err
		}
		if line.UnitPrice != nil && line.DiscountPerUnit.GreaterThan(*line.UnitPrice) {
			return store.Invalid(field+".discount_per_unit", "must not exceed unit_price")
		}
	}
	return nil
}

// planSale reads each product inside tx, checks the summed quantity per
// product against its available stock and prices every line.
func planSale(ctx context.Context, tx store.Tx, lines []domain.SaleLineRequest) (salePlan, error) {
	plan := salePlan{
		items:   make([]domain.SaleItem, 0, len(lines)),
		perUnit: make(map[int64]int, len(lines)),
		total:   decimal.Zero,
	}

	products := make(map[int64]*domain.Product, len(lines))
	for _, line := range lines {
		if _, seen := products[line.ProductID]; !seen {
			p, err := tx.GetProductByID(ctx, line.ProductID)
			if err != nil {
				return salePlan{}, err
			}
			products[line.ProductID] = p
			plan.products = append(plan.products, line.ProductID)
		}
		plan.perUnit[line.ProductID] = addQuantity(plan.perUnit[line.ProductID], line.Quantity)
	}

	for _, id := range plan.products {
		p := products[id]
		if requested := plan.perUnit[id]; requested > p.Available() {
			return salePlan{}, &store.InsufficientStockError{
				ProductID:   p.ID,
				ProductName: p.Name,
				Requested:   requested,
				Available:   p.Available(),
			}
		}
	}

	for i, line := range lines {
		price := products[line.ProductID].PricePerUnitSold
		if line.UnitPrice != nil {
			price = *line.UnitPrice
		}
		if line.DiscountPerUnit.GreaterThan(price) {
			return salePlan{}, store.Invalid(fmt.Sprintf("items[%d].discount_per_unit", i), "must not exceed unit_price")
		}
		lineTotal := domain.LineTotal(line.Quantity, price, line.DiscountPerUnit)
		plan.items = append(plan.items, domain.SaleItem{
			ProductID:       line.ProductID,
			Quantity:        line.Quantity,
			PricePerUnit:    price,
			DiscountPerUnit: line.DiscountPerUnit,
			TotalPrice:      lineTotal,
		})
		plan.total = plan.total.Add(lineTotal)
	}

	return plan, nil
}

// addQuantity saturates at math.MaxInt so a cart of huge lines can never wrap
// around to a small total.
func addQuantity(sum int, quantity int) int {
	if quantity > math.MaxInt-sum {
		return math.MaxInt
	}
	return sum + quantity
}

// applyPlan inserts the planned items under saleID and moves stock.
func applyPlan(ctx context.Context, tx store.Tx, saleID int64, plan salePlan) ([]domain.SaleItem, error) {
	items := make([]domain.SaleItem, 0, len(plan.items))
	for _, item := range plan.items {
		item.SaleID = saleID
		id, err := tx.InsertSaleItem(ctx, item)
		if err != nil {
			return nil, err
		}
		item.ID = id
		items = append(items, item)
	}
	for _, productID := range plan.products {
		if err := tx.AdjustProductQuantitySold(ctx, productID, plan.perUnit[productID]); err != nil {
			return nil, err
		}
	}
	return items, nil
}

// reverseItems gives the stock of removed items back to their products.
func reverseItems(ctx context.Context, tx store.Tx, items []domain.SaleItem) error {
	perProduct := make(map[int64]int, len(items))
	order := make([]int64, 0, len(items))
	for _, item := range items {
		if _, seen := perProduct[item.ProductID]; !seen {
			order = append(order, item.ProductID)
		}
		perProduct[item.ProductID] += item.Quantity
	}
	for _, productID := range order {
		if err := tx.AdjustProductQuantitySold(ctx, productID, -perProduct[productID]); err != nil {
			return err
		}
	}
	return nil
}

func sumItems(items []domain.SaleItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.TotalPrice)
	}
	return total
}

// CreateSale checks the cart against stock read inside one unit, then writes
// the sale, its items, the stock movement and the history row together.
func (s *Service) CreateSale(ctx context.Context, req domain.SaleRequest) (domain.SaleResult, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.SaleResult{}, err
	}
	if err := s.checkSaleRequest(req); err != nil {
		return domain.SaleResult{}, err
	}

	var result domain.SaleResult
	err = s.repo.RunAtomic(ctx, func(tx store.Tx) error {
		if _, err := tx.GetCustomerByID(ctx, req.CustomerID); err != nil {
			return err
		}
		plan, err := planSale(ctx, tx, req.Items)
		if err != nil {
			return err
		}

		sale := domain.Sale{CustomerID: req.CustomerID, TotalPrice: plan.total, CreatedAt: s.clock()}
		sale.ID, err = tx.InsertSale(ctx, sale)
		if err != nil {
			return err
		}
		items, err := applyPlan(ctx, tx, sale.ID, plan)
		if err != nil {
			return err
		}

		snapshot := domain.SaleSnapshot{Sale: sale, Items: items}
		if err := s.recordHistory(ctx, tx, actor, domain.ActionCreateSale, domain.TableSales, sale.ID, nil, snapshot); err != nil {
			return err
		}

		result = domain.SaleResult{
			SaleID:     sale.ID,
			CustomerID: sale.CustomerID,
			TotalPrice: sale.TotalPrice,
			Items:      items,
			CreatedAt:  sale.CreatedAt,
		}
		return nil
	})
	if err != nil {
		return domain.SaleResult{}, err
	}

	log.Printf("[service] sale %d created by %s total=%s items=%d", result.SaleID, actor.Username, result.TotalPrice, len(result.Items))
	return result, nil
}

// UpdateSaleAndItems replaces every line of a sale. Old lines are removed and
// their stock returned before the new cart is checked, so a line may keep the
// quantity it already held.
func (s *Service) UpdateSaleAndItems(ctx context.Context, saleID int64, req domain.SaleRequest) (domain.SaleResult, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.SaleResult{}, err
	}
	if saleID < 1 {
		return domain.SaleResult{}, store.Invalid("sale_id", "must be greater than 0")
	}
	if err := s.checkSaleRequest(req); err != nil {
		return domain.SaleResult{}, err
	}

	var result domain.SaleResult
	err = s.repo.RunAtomic(ctx, func(tx store.Tx) error {
		existing, err := tx.GetSaleByID(ctx, saleID)
		if err != nil {
			return err
		}
		if _, err := tx.GetCustomerByID(ctx, req.CustomerID); err != nil {
			return err
		}

		removed, err := tx.DeleteSaleItemsForSale(ctx, saleID)
		if err != nil {
			return err
		}
		before := domain.SaleSnapshot{Sale: *existing, Items: removed}
		if err := reverseItems(ctx, tx, removed); err != nil {
			return err
		}

		plan, err := planSale(ctx, tx, req.Items)
		if err != nil {
			return err
		}
		updated := domain.Sale{ID: saleID, CustomerID: req.CustomerID, TotalPrice: plan.total, CreatedAt: existing.CreatedAt}
		if err := tx.UpdateSale(ctx, updated); err != nil {
			return err
		}
		items, err := applyPlan(ctx, tx, saleID, plan)
		if err != nil {
			return err
		}

		after := domain.SaleSnapshot{Sale: updated, Items: items}
		if err := s.recordHistory(ctx, tx, actor, domain.ActionUpdateSale, domain.TableSales, saleID, before, after); err != nil {
			return err
		}

		result = domain.SaleResult{
			SaleID:     saleID,
			CustomerID: updated.CustomerID,
			TotalPrice: updated.TotalPrice,
			Items:      items,
			CreatedAt:  updated.CreatedAt,
		}
		return nil
	})
	if err != nil {
		return domain.SaleResult{}, err
	}

	log.Printf("[service] sale %d updated by %s total=%s items=%d", saleID, actor.Username, result.TotalPrice, len(result.Items))
	return result, nil
}

// DeleteSaleItem removes one line, returns its stock and recomputes the
// parent total. A sale left without lines stays with a zero total.
func (s *Service) DeleteSaleItem(ctx context.Context, itemID int64) (domain.Sale, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Sale{}, err
	}
	if itemID < 1 {
		return domain.Sale{}, store.Invalid("item_id", "must be greater than 0")
	}

	var sale domain.Sale
	err = s.repo.RunAtomic(ctx, func(tx store.Tx) error {
		item, err := tx.GetSaleItemByID(ctx, itemID)
		if err != nil {
			return err
		}
		if err := tx.DeleteSaleItem(ctx, itemID); err != nil {
			return err
		}
		if err := tx.AdjustProductQuantitySold(ctx, item.ProductID, -item.Quantity); err != nil {
			return err
		}

		parent, err := tx.GetSaleByID(ctx, item.SaleID)
		if err != nil {
			return err
		}
		remaining, err := tx.ListSaleItems(ctx, item.SaleID)
		if err != nil {
			return err
		}
		parent.TotalPrice = sumItems(remaining)
		if err := tx.UpdateSale(ctx, *parent); err != nil {
			return err
		}

		if err := s.recordHistory(ctx, tx, actor, domain.ActionDeleteSaleItem, domain.TableSaleItems, item.ID, *item, nil); err != nil {
			return err
		}
		sale = *parent
		return nil
	})
	if err != nil {
		return domain.Sale{}, err
	}

	log.Printf("[service] sale item %d removed from sale %d by %s", itemID, sale.ID, actor.Username)
	return sale, nil
}

// DeleteSale returns the stock of every line before the sale and its items
// are removed.
func (s *Service) DeleteSale(ctx context.Context, saleID int64) error {
	actor, err := requireActor(ctx)
	if err != nil {
		return err
	}
	if saleID < 1 {
		return store.Invalid("sale_id", "must be greater than 0")
	}

	err = s.repo.RunAtomic(ctx, func(tx store.Tx) error {
		sale, err := tx.GetSaleByID(ctx, saleID)
		if err != nil {
			return err
		}
		items, err := tx.ListSaleItems(ctx, saleID)
		if err != nil {
			return err
		}
		if err := reverseItems(ctx, tx, items); err != nil {
			return err
		}
		if err := tx.DeleteSale(ctx, saleID); err != nil {
			return err
		}
		before := domain.SaleSnapshot{Sale: *sale, Items: items}
		return s.recordHistory(ctx, tx, actor, domain.ActionDeleteSale, domain.TableSales, saleID, before, nil)
	})
	if err != nil {
		return err
	}

	log.Printf("[service] sale %d deleted by %s", saleID, actor.Username)
	return nil
}

// GetSale reads the sale with its customer name and line items. Lines whose
// product is gone keep an empty product name.
func (s *Service) GetSale(ctx context.Context, saleID int64) (domain.SaleDetail, error) {
	sale, err := s.repo.GetSaleByID(ctx, saleID)
	if err != nil {
		return domain.SaleDetail{}, err
	}
	detail := domain.SaleDetail{Sale: *sale}

	customer, err := s.repo.GetCustomerByID(ctx, sale.CustomerID)
	switch {
	case err == nil:
		detail.CustomerName = customer.Name
	case !isNotFound(err):
		return domain.SaleDetail{}, err
	}

	items, err := s.repo.ListSaleItems(ctx, saleID)
	if err != nil {
		return domain.SaleDetail{}, err
	}
	names := make(map[int64]string, len(items))
	detail.Items = make([]domain.SaleDetailItem, 0, len(items))
	for _, item := range items {
		name, ok := names[item.ProductID]
		if !ok {
			p, err := s.repo.GetProductByID(ctx, item.ProductID)
			switch {
			case err == nil:
				name = p.Name
			case !isNotFound(err):
				return domain.SaleDetail{}, err
			}
			names[item.ProductID] = name
		}
		detail.Items = append(detail.Items, domain.SaleDetailItem{SaleItem: item, ProductName: name})
	}
	return detail, nil
}

// ListSales returns the newest sales first, optionally for one customer.
func (s *Service) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	if filter.Limit < 1 || filter.Limit > 500 {
		filter.Limit = 100
	}
	return s.repo.ListSales(ctx, filter)
}

// saleIDsForItems returns the distinct parent sales of items in first-seen order.
func saleIDsForItems(items []domain.SaleItem) []int64 {
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		if !slices.Contains(ids, item.SaleID) {
			ids = append(ids, item.SaleID)
		}
	}
	return ids
}

// recomputeSaleTotals rewrites each sale total from its remaining items.
func recomputeSaleTotals(ctx context.Context, tx store.Tx, saleIDs []int64) error {
	for _, saleID := range saleIDs {
		sale, err := tx.GetSaleByID(ctx, saleID)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return err
		}
		remaining, err := tx.ListSaleItems(ctx, saleID)
		if err != nil {
			return err
		}
		sale.TotalPrice = sumItems(remaining)
		if err := tx.UpdateSale(ctx, *sale); err != nil {
			return err
		}
	}
	return nil
}
