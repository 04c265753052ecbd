package handlers

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"printbroker/internal/domain"
	"printbroker/internal/http/middleware"
)

// Ledger is the request lifecycle used by the handlers.
type Ledger interface {
	Submit(ctx context.Context, userID, shopID int64, spec domain.Spec, artifact string) (domain.PrintRequest, error)
	Get(ctx context.Context, id int64) (domain.PrintRequest, error)
	ListForUser(ctx context.Context, userID int64) ([]domain.PrintRequest, error)
	ListPendingForShop(ctx context.Context, shopID int64, requesterEmail string) ([]domain.PrintRequest, error)
	ListAcceptedForShop(ctx context.Context, shopID int64) ([]domain.PrintRequest, error)
	Respond(ctx context.Context, id int64, d domain.Decision) (domain.PrintRequest, error)
	MarkPrinted(ctx context.Context, id int64) (domain.PrintRequest, error)
	UpdateSpec(ctx context.Context, id int64, patch domain.SpecPatch) (domain.PrintRequest, error)
	Delete(ctx context.Context, id int64) error
}

// Shops is the shop directory used by the handlers.
type Shops interface {
	List(ctx context.Context) ([]domain.Shop, error)
	ByName(ctx context.Context, name string) (domain.Shop, error)
	Owns(ctx context.Context, shopID int64, email string) (bool, error)
}

// Blobs stores and serves uploaded documents.
type Blobs interface {
	Store(name string, r io.Reader) (string, error)
	Open(ref string) (io.ReadCloser, error)
}

// API serves the /v1 routes.
type API struct {
	ledger Ledger
	shops  Shops
	blobs  Blobs
}

func NewAPI(l Ledger, s Shops, b Blobs) *API {
	return &API{ledger: l, shops: s, blobs: b}
}

func principal(c *fiber.Ctx) (domain.Principal, error) {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		return domain.Principal{}, fiber.NewError(fiber.StatusUnauthorized, "invalid or missing bearer token")
	}
	return p, nil
}

func idParam(c *fiber.Ctx, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("invalid %s", name))
	}
	return id, nil
}

// canView reports whether p is the submitting user or the target shop.
func canView(p domain.Principal, r domain.PrintRequest) bool {
	switch p.Role {
	case domain.RoleUser:
		return r.UserID == p.ID
	case domain.RoleShopkeeper:
		return r.ShopID == p.ID
	}
	return false
}

// ListShops returns every shop with its pricing.
func (a *API) ListShops(c *fiber.Ctx) error {
	list, err := a.shops.List(c.UserContext())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(fiber.Map{"shops": list})
}
