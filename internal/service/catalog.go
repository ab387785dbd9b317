package service

import (
	"context"
	"log"
	"strings"

	"github.com/shopspring/decimal"

	"plumbpos/backend/internal/domain"
	"plumbpos/backend/internal/store"
)

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx)
}

func (s *Service) GetCustomer(ctx context.Context, id int64) (domain.Customer, error) {
	c, err := s.repo.GetCustomerByID(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}
	return *c, nil
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerRequest) (domain.Customer, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Customer{}, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validateRequest(req); err != nil {
		return domain.Customer{}, err
	}

	customer := domain.Customer{
		Name:        req.Name,
		ContactInfo: strings.TrimSpace(req.ContactInfo),
		Address:     strings.TrimSpace(req.Address),
		CreatedAt:   s.clock(),
	}
	err = s.repo.RunAtomic(ctx, func(tx store.Tx) error {
		id, err := tx.InsertCustomer(ctx, customer)
		if err != nil {
			return err
		}
		customer.ID = id
		return s.recordHistory(ctx, tx, actor, domain.ActionCreateCustomer, domain.TableCustomers, id, nil, customer)
	})
	if err != nil {
		return domain.Customer{}, err
	}
	return customer, nil
}

func (s *Service) UpdateCustomer(ctx context.Context, id int64, req domain.CustomerRequest) (domain.Customer, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Customer{}, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validateRequest(req); err != nil {
		return domain.Customer{}, err
	}

	var updated domain.Customer
	err = s.repo.RunAtomic(ctx, func(tx store.Tx) error {
		existing, err := tx.GetCustomerByID(ctx, id)
		if err != nil {
			return err
		}
		updated = *existing
		updated.Name = req.Name
		updated.ContactInfo = strings.TrimSpace(req.ContactInfo)
		updated.Address = strings.TrimSpace(req.Address)
		if err := tx.UpdateCustomer(ctx, updated); err != nil {
			return err
		}
		return s.recordHistory(ctx, tx, actor, domain.ActionUpdateCustomer, domain.TableCustomers, id, *existing, updated)
	})
	if err != nil {
		return domain.Customer{}, err
	}
	return updated, nil
}

// DeleteCustomer returns the stock held by every sale of the customer before
// the delete cascades those sales away.
func (s *Service) DeleteCustomer(ctx context.Context, id int64) error {
	actor, err := requireActor(ctx)
	if err != nil {
		return err
	}

	var reversed int
	err = s.repo.RunAtomic(ctx, func(tx store.Tx) error {
		customer, err := tx.GetCustomerByID(ctx, id)
		if err != nil {
			return err
		}
		sales, err := tx.ListSales(ctx, domain.SaleFilter{CustomerID: id})
		if err != nil {
			return err
		}
		for _, sale := range sales {
			items, err := tx.ListSaleItems(ctx, sale.ID)
			if err != nil {
				return err
			}
			if err := reverseItems(ctx, tx, items); err != nil {
				return err
			}
		}
		reversed = len(sales)
		if err := tx.DeleteCustomer(ctx, id); err != nil {
			return err
		}
		return s.recordHistory(ctx, tx, actor, domain.ActionDeleteCustomer, domain.TableCustomers, id, *customer, nil)
	})
	if err != nil {
		return err
	}

	log.Printf("[service] customer %d deleted by %s, %d sales removed", id, actor.Username, reversed)
	return nil
}

func (s *Service) ListCategories(ctx context.Context) ([]domain.ProductCategory, error) {
	return s.repo.ListCategories(ctx)
}

func (s *Service) CreateCategory(ctx context.Context, req domain.CategoryRequest) (domain.ProductCategory, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.ProductCategory{}, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validateRequest(req); err != nil {
		return domain.ProductCategory{}, err
	}

	category := domain.ProductCategory{
		Name:        req.Name,
		Description: strings.TrimSpace(req.Description),
		ImagePath:   strings.TrimSpace(req.ImagePath),
		CreatedAt:   s.clock(),
	}
	err = s.repo.RunAtomic(ctx, func(tx store.Tx) error {
		id, err := tx.InsertCategory(ctx, category)
		if err != nil {
			return err
		}
		category.ID = id
		return s.recordHistory(ctx, tx, actor, domain.ActionCreateCategory, domain.TableProductCategories, id, nil, category)
	})
	if err != nil {
		return domain.ProductCategory{}, err
	}
	return category, nil
}

func (s *Service) UpdateCategory(ctx context.Context, id int64, req domain.CategoryRequest) (domain.ProductCategory, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.ProductCategory{}, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validateRequest(req); err != nil {
		return domain.ProductCategory{}, err
	}

	var updated domain.ProductCategory
	err = s.repo.RunAtomic(ctx, func(tx store.Tx) error {
		existing, err := tx.GetCategoryByID(ctx, id)
		if err != nil {
			return err
		}
		updated = *existing
		updated.Name = req.Name
		updated.Description = strings.TrimSpace(req.Description)
		updated.ImagePath = strings.TrimSpace(req.ImagePath)
		if err := tx.UpdateCategory(ctx, updated); err != nil {
			return err
		}
		return s.recordHistory(ctx, tx, actor, domain.ActionUpdateCategory, domain.TableProductCategories, id, *existing, updated)
	})
	if err != nil {
		return domain.ProductCategory{}, err
	}
	return updated, nil
}

// DeleteCategory cascades to the category's products and their sale lines;
// every sale that lost a line gets its total recomputed in the same unit.
func (s *Service) DeleteCategory(ctx context.Context, id int64) error {
	actor, err := requireActor(ctx)
	if err != nil {
		return err
	}

	err = s.repo.RunAtomic(ctx, func(tx store.Tx) error {
		category, err := tx.GetCategoryByID(ctx, id)
		if err != nil {
			return err
		}
		products, err := tx.ListProducts(ctx, id)
		if err != nil {
			return err
		}
		affected := make([]domain.SaleItem, 0, 16)
		for _, p := range products {
			items, err := tx.ListSaleItemsByProduct(ctx, p.ID)
			if err != nil {
				return err
			}
			affected = append(affected, items...)
		}
		if err := tx.DeleteCategory(ctx, id); err != nil {
			return err
		}
		if err := recomputeSaleTotals(ctx, tx, saleIDsForItems(affected)); err != nil {
			return err
		}
		return s.recordHistory(ctx, tx, actor, domain.ActionDeleteCategory, domain.TableProductCategories, id, *category, nil)
	})
	if err != nil {
		return err
	}

	log.Printf("[service] category %d deleted by %s", id, actor.Username)
	return nil
}

// ListProducts lists the whole catalog when categoryID is 0.
func (s *Service) ListProducts(ctx context.Context, categoryID int64) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx, categoryID)
}

func (s *Service) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	p, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *p, nil
}

func (s *Service) checkProductRequest(req *domain.ProductRequest) error {
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validateRequest(*req); err != nil {
		return err
	}
	if err := store.NonNegative("price_per_unit_bought", req.PricePerUnitBought); err != nil {
		return err
	}
	if err := store.NonNegative("price_per_unit_sold", req.PricePerUnitSold); err != nil {
		return err
	}
	return store.NonNegative("weight", req.Weight)
}

func applyProductRequest(p *domain.Product, req domain.ProductRequest) {
	p.CategoryID = req.CategoryID
	p.Name = req.Name
	p.Size = strings.TrimSpace(req.Size)
	p.Color = strings.TrimSpace(req.Color)
	p.PricePerUnitBought = req.PricePerUnitBought
	p.PricePerUnitSold = req.PricePerUnitSold
	p.QuantityBought = req.QuantityBought
	p.Weight = req.Weight
	p.WeightUnit = strings.TrimSpace(req.WeightUnit)
	p.ImagePath = strings.TrimSpace(req.ImagePath)
	p.TotalPriceBought = req.PricePerUnitBought.Mul(decimal.NewFromInt(int64(req.QuantityBought)))
}

// CreateProduct starts every product with nothing sold.
func (s *Service) CreateProduct(ctx context.Context, req domain.ProductRequest) (domain.Product, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Product{}, err
	}
	if err := s.checkProductRequest(&req); err != nil {
		return domain.Product{}, err
	}

	product := domain.Product{CreatedAt: s.clock()}
	applyProductRequest(&product, req)
	err = s.repo.RunAtomic(ctx, func(tx store.Tx) error {
		if _, err := tx.GetCategoryByID(ctx, req.CategoryID); err != nil {
			return err
		}
		id, err := tx.InsertProduct(ctx, product)
		if err != nil {
			return err
		}
		product.ID = id
		return s.recordHistory(ctx, tx, actor, domain.ActionCreateProduct, domain.TableProducts, id, nil, product)
	})
	if err != nil {
		return domain.Product{}, err
	}
	return product, nil
}

// UpdateProduct never touches quantity_sold, and refuses to lower
// quantity_bought below what has already been sold.
func (s *Service) UpdateProduct(ctx context.Context, id int64, req domain.ProductRequest) (domain.Product, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Product{}, err
	}
	if err := s.checkProductRequest(&req); err != nil {
		return domain.Product{}, err
	}

	var updated domain.Product
	err = s.repo.RunAtomic(ctx, func(tx store.Tx) error {
		existing, err := tx.GetProductByID(ctx, id)
		if err != nil {
			return err
		}
		if req.QuantityBought < existing.QuantitySold {
			return store.Invalid("quantity_bought", "is below quantity already sold")
		}
		if req.CategoryID != existing.CategoryID {
			if _, err := tx.GetCategoryByID(ctx, req.CategoryID); err != nil {
				return err
			}
		}
		updated = *existing
		applyProductRequest(&updated, req)
		if err := tx.UpdateProduct(ctx, updated); err != nil {
			return err
		}
		return s.recordHistory(ctx, tx, actor, domain.ActionUpdateProduct, domain.TableProducts, id, *existing, updated)
	})
	if err != nil {
		return domain.Product{}, err
	}
	return updated, nil
}

// DeleteProduct removes the product's sale lines through the cascade and
// recomputes the totals of the sales that held them.
func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	actor, err := requireActor(ctx)
	if err != nil {
		return err
	}

	err = s.repo.RunAtomic(ctx, func(tx store.Tx) error {
		product, err := tx.GetProductByID(ctx, id)
		if err != nil {
			return err
		}
		items, err := tx.ListSaleItemsByProduct(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.DeleteProduct(ctx, id); err != nil {
			return err
		}
		if err := recomputeSaleTotals(ctx, tx, saleIDsForItems(items)); err != nil {
			return err
		}
		return s.recordHistory(ctx, tx, actor, domain.ActionDeleteProduct, domain.TableProducts, id, *product, nil)
	})
	if err != nil {
		return err
	}

	log.Printf("[service] product %d deleted by %s", id, actor.Username)
	return nil
}
