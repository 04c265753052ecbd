package shops

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"printbroker/internal/domain"
)

// Repository is the storage the directory reads from.
type Repository interface {
	ListShops(ctx context.Context) ([]domain.Shop, error)
	ShopByID(ctx context.Context, id int64) (domain.Shop, error)
	ShopByName(ctx context.Context, name string) (domain.Shop, error)
}

// Directory maps shop ids and names to shopkeeper records and pricing.
type Directory struct {
	repo Repository
}

func NewDirectory(repo Repository) *Directory {
	return &Directory{repo: repo}
}

func (d *Directory) List(ctx context.Context) ([]domain.Shop, error) {
	return d.repo.ListShops(ctx)
}

func (d *Directory) ByID(ctx context.Context, id int64) (domain.Shop, error) {
	return d.repo.ShopByID(ctx, id)
}

// ByName resolves a shop by its display name; an empty name is a validation error.
func (d *Directory) ByName(ctx context.Context, name string) (domain.Shop, error) {
	if strings.TrimSpace(name) == "" {
		return domain.Shop{}, fmt.Errorf("%w: shop_name is required", domain.ErrValidation)
	}
	return d.repo.ShopByName(ctx, name)
}

// Owns reports whether email belongs to the shopkeeper running shopID.
func (d *Directory) Owns(ctx context.Context, shopID int64, email string) (bool, error) {
	sh, err := d.repo.ShopByID(ctx, shopID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return strings.EqualFold(sh.OwnerEmail, strings.TrimSpace(email)), nil
}

// Quote prices spec at the shop's per-page rates, rounded to cents.
func Quote(sh domain.Shop, spec domain.Spec) float64 {
	perPage := sh.CostSingleSide
	if spec.PrintSide == domain.PrintSideDouble {
		perPage = sh.CostBothSides
	}
	total := float64(spec.TotalPages) * float64(spec.Copies) * perPage
	return math.Round(total*100) / 100
}
