// Package inventory manages the food items each account holds and can
// later offer as donations.
package inventory

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/dukerupert/foodbridge/internal/apperr"
	"github.com/dukerupert/foodbridge/internal/model"
	"github.com/dukerupert/foodbridge/internal/store"
)

type Service struct {
	accounts *store.AccountStore
	products *store.ProductStore
	logger   *slog.Logger
}

func NewService(accounts *store.AccountStore, products *store.ProductStore, logger *slog.Logger) *Service {
	return &Service{accounts: accounts, products: products, logger: logger}
}

type AddRequest struct {
	OwnerID    int64
	Name       string
	Count      int
	Category   string
	ExpiryDate time.Time
}

// Add puts an item into an owner's inventory. A blank category is filled
// in from the item name.
func (s *Service) Add(ctx context.Context, req AddRequest) (*model.Product, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperr.Validationf("product_name is required")
	}
	if req.Count < 0 {
		return nil, apperr.Validationf("count must be >= 0")
	}
	if req.Count == 0 {
		req.Count = 1
	}
	if req.ExpiryDate.IsZero() {
		return nil, apperr.Validationf("expiry_date is required")
	}

	ok, err := s.accounts.Exists(ctx, req.OwnerID)
	if err != nil {
		return nil, apperr.Infrastructure("add product", err)
	}
	if !ok {
		return nil, apperr.NotFoundf("account %d not found", req.OwnerID)
	}

	category := strings.TrimSpace(req.Category)
	if category == "" {
		category = Categorize(name)
	}

	p, err := s.products.Insert(ctx, req.OwnerID, name, req.Count, category, req.ExpiryDate)
	if err != nil {
		return nil, apperr.Infrastructure("add product", err)
	}
	s.logger.Debug("product added", "product_id", p.ID, "owner_id", p.OwnerID, "category", category)
	return p, nil
}

func (s *Service) List(ctx context.Context, ownerID int64) ([]model.Product, error) {
	list, err := s.products.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, apperr.Infrastructure("list products", err)
	}
	if list == nil {
		list = []model.Product{}
	}
	return list, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*model.Product, error) {
	p, err := s.products.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Infrastructure("get product", err)
	}
	if p == nil {
		return nil, apperr.NotFoundf("product %d not found", id)
	}
	return p, nil
}

func (s *Service) Update(ctx context.Context, id int64, patch model.ProductPatch) (*model.Product, error) {
	if patch.Empty() {
		return nil, apperr.Validationf("no fields to update")
	}
	if patch.Name != nil {
		trimmed := strings.TrimSpace(*patch.Name)
		if trimmed == "" {
			return nil, apperr.Validationf("product_name must not be blank")
		}
		patch.Name = &trimmed
	}
	if patch.Count != nil && *patch.Count < 0 {
		return nil, apperr.Validationf("count must be >= 0")
	}

	p, err := s.products.Update(ctx, id, patch)
	if err != nil {
		return nil, apperr.Infrastructure("update product", err)
	}
	if p == nil {
		return nil, apperr.NotFoundf("product %d not found", id)
	}
	return p, nil
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.products.Delete(ctx, id); err != nil {
		return apperr.Infrastructure("delete product", err)
	}
	return nil
}
