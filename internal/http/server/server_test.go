package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	memoryStorage "github.com/gofiber/storage/memory/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"printbroker/internal/config"
	"printbroker/internal/domain"
	"printbroker/internal/identity"
	"printbroker/internal/infra/blob"
	"printbroker/internal/infra/db"
	"printbroker/internal/ledger"
	"printbroker/internal/shops"
)

type stack struct {
	app      *fiber.App
	shop     domain.Shop
	other    domain.Shop
	accounts *db.AccountRepository
}

const (
	userToken  = "user-token"
	shopToken  = "shop-token"
	otherToken = "other-shop-token"
)

func newStack(t *testing.T) stack {
	t.Helper()
	ctx := context.Background()

	mgr := db.NewDB()
	t.Cleanup(func() { _ = mgr.Close() })
	store, err := db.Open(ctx, mgr, config.DatabaseConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "pb.db")})
	require.NoError(t, err)
	accounts := db.NewAccountRepository(store)

	u, err := accounts.CreateUser(ctx, domain.User{Name: "Asha", Email: "asha@example.test"})
	require.NoError(t, err)
	sh, err := accounts.CreateShop(ctx, domain.Shop{OwnerName: "Ravi", OwnerEmail: "ravi@copy.test",
		Name: "Copy Corner", Address: "1 Main St", CostSingleSide: 2, CostBothSides: 3})
	require.NoError(t, err)
	other, err := accounts.CreateShop(ctx, domain.Shop{OwnerName: "Meera", OwnerEmail: "meera@print.test",
		Name: "A1 Prints", Address: "2 Side St", CostSingleSide: 1, CostBothSides: 1.5})
	require.NoError(t, err)

	for raw, e := range map[string]identity.Entry{
		userToken:  {Email: u.Email, Role: domain.RoleUser, RateLimit: 100},
		shopToken:  {Email: sh.OwnerEmail, Role: domain.RoleShopkeeper, RateLimit: 100},
		otherToken: {Email: other.OwnerEmail, Role: domain.RoleShopkeeper, RateLimit: 100},
	} {
		require.NoError(t, accounts.SaveToken(ctx, identity.HashToken(raw), e, "test"))
	}
	tokens := identity.NewCache()
	require.NoError(t, identity.NewReloader(accounts, tokens, time.Hour).LoadOnce(ctx))

	blobs, err := blob.New(filepath.Join(t.TempDir(), "uploads"), []string{"pdf"}, 1<<20)
	require.NoError(t, err)

	var cfg config.Config
	cfg.RateLimiter.Interval = time.Minute
	cfg.RateLimiter.EnableTokenRateLimiter = true

	app := New(Deps{
		Config:       cfg,
		Auth:         identity.NewAuthenticator(tokens, accounts),
		Tokens:       tokens,
		LimiterStore: memoryStorage.New(),
		Ledger:       ledger.New(db.NewRequestRepository(store), accounts, accounts),
		Shops:        shops.NewDirectory(accounts),
		Blobs:        blobs,
	})
	return stack{app: app, shop: sh, other: other, accounts: accounts}
}

func (s stack) do(t *testing.T, method, path, token string, body io.Reader, contentType string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func (s stack) doJSON(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	return s.do(t, method, path, token, r, fiber.MIMEApplicationJSON)
}

func submitForm(t *testing.T, fields map[string]string, fileName, content string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if fileName != "" {
		fw, err := w.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = io.WriteString(fw, content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func validFields() map[string]string {
	return map[string]string{
		"shop_name":    "Copy Corner",
		"total_pages":  "10",
		"print_type":   "bw",
		"print_side":   "single",
		"page_size":    "A4",
		"no_of_copies": "2",
		"comments":     "staple please",
	}
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

type submitted struct {
	domain.PrintRequest
	EstimatedCost float64 `json:"estimated_cost"`
}

type requestList struct {
	Requests []domain.PrintRequest `json:"requests"`
}

type errorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (s stack) submit(t *testing.T) submitted {
	t.Helper()
	body, ct := submitForm(t, validFields(), "thesis.pdf", "%PDF-1.7 thesis")
	resp := s.do(t, http.MethodPost, "/v1/requests", userToken, body, ct)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	return decode[submitted](t, resp)
}

func TestNew_HealthAndJSON404(t *testing.T) {
	s := newStack(t)

	resp := s.do(t, http.MethodGet, "/ops/health", "", nil, "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/does-not-exist", "", nil, "")
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/json")
	assert.Equal(t, fiber.StatusNotFound, decode[errorBody](t, resp).Error.Code)
}

func TestListShops_IsPublic(t *testing.T) {
	s := newStack(t)

	resp := s.do(t, http.MethodGet, "/v1/shops", "", nil, "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	body := decode[struct {
		Shops []domain.Shop `json:"shops"`
	}](t, resp)
	require.Len(t, body.Shops, 2)
	assert.Equal(t, "A1 Prints", body.Shops[0].Name)
	assert.Empty(t, body.Shops[0].OwnerEmail)
}

func TestSubmit_CreatesPendingRequestWithQuote(t *testing.T) {
	s := newStack(t)

	got := s.submit(t)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.Equal(t, domain.ActionPending, got.Action)
	assert.Equal(t, s.shop.ID, got.ShopID)
	assert.Equal(t, domain.PrintTypeBlackWhite, got.Spec.PrintType)
	assert.Equal(t, 40.0, got.EstimatedCost)
	assert.True(t, got.CreatedAt.Equal(got.UpdatedAt))
	assert.True(t, strings.HasSuffix(got.Artifact, "thesis.pdf"))
}

func TestSubmit_Rejections(t *testing.T) {
	s := newStack(t)

	body, ct := submitForm(t, validFields(), "thesis.pdf", "x")
	assert.Equal(t, fiber.StatusUnauthorized, s.do(t, http.MethodPost, "/v1/requests", "", body, ct).StatusCode)

	body, ct = submitForm(t, validFields(), "thesis.pdf", "x")
	assert.Equal(t, fiber.StatusForbidden, s.do(t, http.MethodPost, "/v1/requests", shopToken, body, ct).StatusCode)

	cases := map[string]struct {
		mutate func(map[string]string)
		file   string
		want   int
	}{
		"missing pages":  {func(f map[string]string) { delete(f, "total_pages") }, "a.pdf", fiber.StatusBadRequest},
		"bad copies":     {func(f map[string]string) { f["no_of_copies"] = "two" }, "a.pdf", fiber.StatusBadRequest},
		"huge pages":     {func(f map[string]string) { f["total_pages"] = "3000000000" }, "a.pdf", fiber.StatusBadRequest},
		"huge copies":    {func(f map[string]string) { f["no_of_copies"] = "2147483648" }, "a.pdf", fiber.StatusBadRequest},
		"bad print type": {func(f map[string]string) { f["print_type"] = "sepia" }, "a.pdf", fiber.StatusBadRequest},
		"unknown shop":   {func(f map[string]string) { f["shop_name"] = "Nowhere" }, "a.pdf", fiber.StatusNotFound},
		"no file":        {func(map[string]string) {}, "", fiber.StatusBadRequest},
		"bad extension":  {func(map[string]string) {}, "a.exe", fiber.StatusBadRequest},
	}
	for name, tc := range cases {
		fields := validFields()
		tc.mutate(fields)
		body, ct := submitForm(t, fields, tc.file, "content")
		resp := s.do(t, http.MethodPost, "/v1/requests", userToken, body, ct)
		assert.Equal(t, tc.want, resp.StatusCode, name)
	}
}

func TestLifecycle_AcceptPrintAndNotify(t *testing.T) {
	s := newStack(t)
	r := s.submit(t)
	shopPath := fmt.Sprintf("/v1/shops/%d", s.shop.ID)

	resp := s.do(t, http.MethodGet, "/v1/requests?view=notifications", userToken, nil, "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[requestList](t, resp).Requests)

	resp = s.do(t, http.MethodPost, shopPath+"/pending", shopToken, nil, "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	pending := decode[requestList](t, resp).Requests
	require.Len(t, pending, 1)
	assert.Equal(t, r.ID, pending[0].ID)

	resp = s.do(t, http.MethodPost, fmt.Sprintf("%s/requests/%d/accept", shopPath, r.ID), shopToken, nil, "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	accepted := decode[domain.PrintRequest](t, resp)
	assert.Equal(t, domain.StatusResponded, accepted.Status)
	assert.Equal(t, domain.ActionAccepted, accepted.Action)

	resp = s.do(t, http.MethodPost, fmt.Sprintf("%s/requests/%d/decline", shopPath, r.ID), shopToken, nil, "")
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	resp = s.doJSON(t, http.MethodPut, fmt.Sprintf("/v1/requests/%d", r.ID), userToken, map[string]int{"copies": 5})
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	resp = s.do(t, http.MethodGet, shopPath+"/accepted", shopToken, nil, "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Len(t, decode[requestList](t, resp).Requests, 1)

	for i := 0; i < 2; i++ {
		resp = s.doJSON(t, http.MethodPost, shopPath+"/mark-printed", shopToken, map[string]int64{"id": r.ID})
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, domain.StatusPrinted, decode[domain.PrintRequest](t, resp).Status)
	}

	resp = s.do(t, http.MethodGet, shopPath+"/accepted", shopToken, nil, "")
	assert.Empty(t, decode[requestList](t, resp).Requests)

	resp = s.do(t, http.MethodGet, "/v1/requests?view=notifications", userToken, nil, "")
	notes := decode[requestList](t, resp).Requests
	require.Len(t, notes, 1)
	assert.Equal(t, domain.StatusPrinted, notes[0].Status)

	resp = s.do(t, http.MethodGet, "/v1/requests?view=inbox", userToken, nil, "")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestShopRoutes_Authorization(t *testing.T) {
	s := newStack(t)
	r := s.submit(t)

	resp := s.do(t, http.MethodGet, fmt.Sprintf("/v1/shops/%d/pending", s.shop.ID), otherToken, nil, "")
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp = s.do(t, http.MethodGet, fmt.Sprintf("/v1/shops/%d/pending", s.shop.ID), userToken, nil, "")
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	// the other shop may act on its own scope but the request does not target it
	resp = s.do(t, http.MethodPost, fmt.Sprintf("/v1/shops/%d/requests/%d/accept", s.other.ID, r.ID), otherToken, nil, "")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp = s.do(t, http.MethodPost, fmt.Sprintf("/v1/shops/%d/requests/%d/maybe", s.shop.ID, r.ID), shopToken, nil, "")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp = s.doJSON(t, http.MethodPost, fmt.Sprintf("/v1/shops/%d/mark-printed", s.shop.ID), shopToken, map[string]int64{"id": r.ID})
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode, "pending requests cannot be printed")

	resp = s.doJSON(t, http.MethodPost, fmt.Sprintf("/v1/shops/%d/mark-printed", s.shop.ID), shopToken, map[string]string{})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp = s.do(t, http.MethodGet, fmt.Sprintf("/v1/requests/%d", r.ID), otherToken, nil, "")
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestUpdateRequest_FieldNames(t *testing.T) {
	s := newStack(t)
	r := s.submit(t)
	path := fmt.Sprintf("/v1/requests/%d", r.ID)

	resp := s.doJSON(t, http.MethodPut, path, userToken, map[string]any{"no_of_copies": 5})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, 5, decode[domain.PrintRequest](t, resp).Spec.Copies)

	resp = s.doJSON(t, http.MethodPut, path, userToken, map[string]any{"copeis": 9})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp = s.doJSON(t, http.MethodPut, path, userToken, map[string]any{})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp = s.doJSON(t, http.MethodPut, path, userToken, map[string]any{"total_pages": domain.MaxTotalPages + 1})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp = s.do(t, http.MethodGet, path, userToken, nil, "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	got := decode[domain.PrintRequest](t, resp)
	assert.Equal(t, 5, got.Spec.Copies)
	assert.Equal(t, r.Spec.TotalPages, got.Spec.TotalPages)
}

func TestRequestRoutes_UpdateDownloadDelete(t *testing.T) {
	s := newStack(t)
	r := s.submit(t)
	path := fmt.Sprintf("/v1/requests/%d", r.ID)

	resp := s.doJSON(t, http.MethodPut, path, userToken, map[string]any{"copies": 5, "print_side": "double"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	updated := decode[domain.PrintRequest](t, resp)
	assert.Equal(t, 5, updated.Spec.Copies)
	assert.Equal(t, domain.PrintSideDouble, updated.Spec.PrintSide)
	assert.Equal(t, 10, updated.Spec.TotalPages)
	assert.False(t, updated.UpdatedAt.Before(r.UpdatedAt))

	resp = s.doJSON(t, http.MethodPut, path, userToken, map[string]any{"copies": 0})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp = s.doJSON(t, http.MethodPut, path, shopToken, map[string]any{"copies": 1})
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp = s.do(t, http.MethodGet, path+"/artifact", shopToken, nil, "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "thesis.pdf")
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7 thesis", string(data))

	resp = s.do(t, http.MethodGet, path, userToken, nil, "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, r.ID, decode[domain.PrintRequest](t, resp).ID)

	resp = s.do(t, http.MethodDelete, path, userToken, nil, "")
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	for _, p := range []string{path, path + "/artifact"} {
		resp = s.do(t, http.MethodGet, p, userToken, nil, "")
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode, p)
	}
	resp = s.do(t, http.MethodDelete, path, userToken, nil, "")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/v1/requests/abc", userToken, nil, "")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestAuth_TokenStoreNotReady(t *testing.T) {
	s := newStack(t)
	app := New(Deps{
		Auth:         identity.NewAuthenticator(identity.NewCache(), s.accounts),
		Tokens:       identity.NewCache(),
		LimiterStore: memoryStorage.New(),
		Shops:        shops.NewDirectory(s.accounts),
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/requests", nil)
	req.Header.Set("Authorization", "Bearer "+userToken)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}
