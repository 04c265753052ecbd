package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"printbroker/internal/domain"
	"printbroker/internal/infra/blob"
	"printbroker/internal/infra/logging"
	"printbroker/internal/shops"
)

type submitResponse struct {
	domain.PrintRequest
	EstimatedCost float64 `json:"estimated_cost"`
}

func formInt(c *fiber.Ctx, key string) (int, error) {
	raw := strings.TrimSpace(c.FormValue(key))
	if raw == "" {
		return 0, fmt.Errorf("%w: %s is required", domain.ErrValidation, key)
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a whole number", domain.ErrValidation, key)
	}
	return n, nil
}

// SubmitRequest accepts a multipart upload and files it with the named shop.
func (a *API) SubmitRequest(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	ctx := c.UserContext()

	pages, err := formInt(c, "total_pages")
	if err != nil {
		return httpError(err)
	}
	copies, err := formInt(c, "no_of_copies")
	if err != nil {
		return httpError(err)
	}
	spec := domain.Spec{
		TotalPages: pages,
		PrintType:  c.FormValue("print_type"),
		PrintSide:  c.FormValue("print_side"),
		PageSize:   c.FormValue("page_size"),
		Copies:     copies,
		Comments:   c.FormValue("comments"),
	}.Normalize()
	if err := spec.Validate(); err != nil {
		return httpError(err)
	}

	shop, err := a.shops.ByName(ctx, c.FormValue("shop_name"))
	if err != nil {
		return httpError(err)
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "file is required")
	}
	f, err := fh.Open()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "file could not be read")
	}
	defer f.Close()

	ref, err := a.blobs.Store(fh.Filename, f)
	if err != nil {
		return httpError(err)
	}

	r, err := a.ledger.Submit(ctx, p.ID, shop.ID, spec, ref)
	if err != nil {
		logging.Warn("Submit failed after upload", "artifact", ref, "error", err)
		return httpError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(submitResponse{
		PrintRequest:  r,
		EstimatedCost: shops.Quote(shop, r.Spec),
	})
}

// notifications keeps records that a shop has acted on, most recently updated first.
func notifications(list []domain.PrintRequest) []domain.PrintRequest {
	out := make([]domain.PrintRequest, 0, len(list))
	for _, r := range list {
		if r.Status != domain.StatusPending {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// ListRequests returns the caller's requests. view=notifications narrows to records with a shop response.
func (a *API) ListRequests(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	view := c.Query("view", "requests")
	if view != "requests" && view != "notifications" {
		return fiber.NewError(fiber.StatusBadRequest, "view must be requests or notifications")
	}

	list, err := a.ledger.ListForUser(c.UserContext(), p.ID)
	if err != nil {
		return httpError(err)
	}
	if view == "notifications" {
		list = notifications(list)
	}
	return c.JSON(fiber.Map{"requests": list})
}

// visibleRequest loads :id and checks the caller is its owner or target shop.
func (a *API) visibleRequest(c *fiber.Ctx) (domain.Principal, domain.PrintRequest, error) {
	p, err := principal(c)
	if err != nil {
		return p, domain.PrintRequest{}, err
	}
	id, err := idParam(c, "id")
	if err != nil {
		return p, domain.PrintRequest{}, err
	}
	r, err := a.ledger.Get(c.UserContext(), id)
	if err != nil {
		return p, domain.PrintRequest{}, httpError(err)
	}
	if !canView(p, r) {
		return p, domain.PrintRequest{}, fiber.NewError(fiber.StatusForbidden, "not your request")
	}
	return p, r, nil
}

func (a *API) GetRequest(c *fiber.Ctx) error {
	_, r, err := a.visibleRequest(c)
	if err != nil {
		return err
	}
	return c.JSON(r)
}

// UpdateRequest patches the print settings of a pending request. Only the submitting user may edit.
func (a *API) UpdateRequest(c *fiber.Ctx) error {
	p, r, err := a.visibleRequest(c)
	if err != nil {
		return err
	}
	if p.Role != domain.RoleUser {
		return fiber.NewError(fiber.StatusForbidden, "only the submitting user may edit a request")
	}

	patch, err := decodePatch(c.Body())
	if err != nil {
		return err
	}
	updated, err := a.ledger.UpdateSpec(c.UserContext(), r.ID, patch)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(updated)
}

// decodePatch rejects unknown keys so a misspelled field is not silently dropped.
func decodePatch(body []byte) (domain.SpecPatch, error) {
	var patch domain.SpecPatch
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&patch); err != nil {
		return patch, fiber.NewError(fiber.StatusBadRequest, "invalid JSON body: "+err.Error())
	}
	if patch.Empty() {
		return patch, fiber.NewError(fiber.StatusBadRequest, "no fields to update")
	}
	return patch, nil
}

func (a *API) DeleteRequest(c *fiber.Ctx) error {
	_, r, err := a.visibleRequest(c)
	if err != nil {
		return err
	}
	if err := a.ledger.Delete(c.UserContext(), r.ID); err != nil {
		return httpError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// DownloadArtifact streams the uploaded document.
func (a *API) DownloadArtifact(c *fiber.Ctx) error {
	_, r, err := a.visibleRequest(c)
	if err != nil {
		return err
	}
	rc, err := a.blobs.Open(r.Artifact)
	if err != nil {
		return httpError(err)
	}
	c.Attachment(blob.DisplayName(r.Artifact))
	return c.SendStream(rc)
}
