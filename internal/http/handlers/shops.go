package handlers

import (
	"github.com/gofiber/fiber/v2"

	"printbroker/internal/domain"
)

// ownedShop checks that the caller runs :shopID.
func (a *API) ownedShop(c *fiber.Ctx) (domain.Principal, int64, error) {
	p, err := principal(c)
	if err != nil {
		return p, 0, err
	}
	shopID, err := idParam(c, "shopID")
	if err != nil {
		return p, 0, err
	}
	owns, err := a.shops.Owns(c.UserContext(), shopID, p.Email)
	if err != nil {
		return p, 0, httpError(err)
	}
	if !owns {
		return p, 0, fiber.NewError(fiber.StatusForbidden, "not your shop")
	}
	return p, shopID, nil
}

// shopRequest loads a request and hides it unless it targets shopID.
func (a *API) shopRequest(c *fiber.Ctx, shopID, id int64) (domain.PrintRequest, error) {
	r, err := a.ledger.Get(c.UserContext(), id)
	if err != nil {
		return r, httpError(err)
	}
	if r.ShopID != shopID {
		return r, fiber.NewError(fiber.StatusNotFound, "request not found")
	}
	return r, nil
}

func (a *API) ListPending(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	shopID, err := idParam(c, "shopID")
	if err != nil {
		return err
	}
	list, err := a.ledger.ListPendingForShop(c.UserContext(), shopID, p.Email)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(fiber.Map{"requests": list})
}

func (a *API) ListAccepted(c *fiber.Ctx) error {
	_, shopID, err := a.ownedShop(c)
	if err != nil {
		return err
	}
	list, err := a.ledger.ListAcceptedForShop(c.UserContext(), shopID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(fiber.Map{"requests": list})
}

// Respond records the shop's accept or decline decision.
func (a *API) Respond(c *fiber.Ctx) error {
	_, shopID, err := a.ownedShop(c)
	if err != nil {
		return err
	}
	d, err := domain.ParseDecision(c.Params("decision"))
	if err != nil {
		return httpError(err)
	}
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	if _, err := a.shopRequest(c, shopID, id); err != nil {
		return err
	}
	r, err := a.ledger.Respond(c.UserContext(), id, d)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(r)
}

type markPrintedBody struct {
	ID int64 `json:"id"`
}

func (a *API) MarkPrinted(c *fiber.Ctx) error {
	_, shopID, err := a.ownedShop(c)
	if err != nil {
		return err
	}
	var body markPrintedBody
	if err := c.BodyParser(&body); err != nil || body.ID <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "body must be {\"id\": <request id>}")
	}
	if _, err := a.shopRequest(c, shopID, body.ID); err != nil {
		return err
	}
	r, err := a.ledger.MarkPrinted(c.UserContext(), body.ID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(r)
}
