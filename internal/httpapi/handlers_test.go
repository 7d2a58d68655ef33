package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"arafims/backend/internal/cache"
	"arafims/backend/internal/domain"
	"arafims/backend/internal/service"
	"arafims/backend/internal/store/memory"
)

const testAdminPassword = "admin12345"

// newTestAPI wires a seeded in-memory store, the real service and a real
// AuthManager so handler tests cover the full request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()
	t.Setenv("SEED_ADMIN_PASSWORD", testAdminPassword)

	repo := memory.NewSeeded(zap.NewNop())
	svc := service.New(repo, cache.NoopCatalogCache{}, time.Minute, time.Hour, zap.NewNop())
	auth := NewAuthManager("test-secret-key-test-secret-key!", time.Hour, repo, zap.NewNop())
	return New(svc, auth, Options{AllowedOrigin: "*"})
}

type testClient struct {
	t       *testing.T
	handler http.Handler
	token   string
	csrf    string
	cookies []*http.Cookie
}

func newTestClient(t *testing.T, api *API) *testClient {
	t.Helper()
	c := &testClient{t: t, handler: api.Handler()}
	c.csrf = fetchCSRFToken(t, c.handler)
	return c
}

func (c *testClient) asAdmin() *testClient {
	c.t.Helper()
	c.token = loginAsAdmin(c.t, c.handler)
	return c
}

func (c *testClient) do(method string, path string, body any) *httptest.ResponseRecorder {
	c.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(c.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-CSRF-Token", c.csrf)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for _, cookie := range c.cookies {
		req.AddCookie(cookie)
	}

	res := httptest.NewRecorder()
	c.handler.ServeHTTP(res, req)
	return res
}

func decodeBody(t *testing.T, res *httptest.ResponseRecorder, dest any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(res.Body).Decode(dest), "body: %s", res.Body.String())
}

func TestHandleHealth(t *testing.T) {
	c := newTestClient(t, newTestAPI(t))

	res := c.do(http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, res.Code)

	var body map[string]any
	decodeBody(t, res, &body)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, true, body["success"])
}

func TestHandleLogin(t *testing.T) {
	c := newTestClient(t, newTestAPI(t))

	res := c.do(http.MethodPost, "/api/v1/auth/login", domain.LoginRequest{Username: "admin", Password: testAdminPassword})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	var ok struct {
		Success bool                 `json:"success"`
		Session domain.LoginResponse `json:"session"`
	}
	decodeBody(t, res, &ok)
	assert.True(t, ok.Success)
	assert.NotEmpty(t, ok.Session.AccessToken)
	assert.Equal(t, domain.RoleAdmin, ok.Session.Role)

	res = c.do(http.MethodPost, "/api/v1/auth/login", domain.LoginRequest{Username: "admin", Password: "wrong"})
	require.Equal(t, http.StatusUnauthorized, res.Code)
	var failed struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	decodeBody(t, res, &failed)
	assert.False(t, failed.Success)
	assert.Equal(t, ErrInvalidCredentials.Error(), failed.Message)
}

func TestAdminRoutesRequireBearer(t *testing.T) {
	c := newTestClient(t, newTestAPI(t))

	res := c.do(http.MethodGet, "/api/v1/admin/products", nil)
	assert.Equal(t, http.StatusUnauthorized, res.Code)

	c.token = "not-a-jwt"
	res = c.do(http.MethodGet, "/api/v1/admin/dashboard", nil)
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestCatalogIsPublic(t *testing.T) {
	c := newTestClient(t, newTestAPI(t))

	res := c.do(http.MethodGet, "/api/v1/catalog", nil)
	require.Equal(t, http.StatusOK, res.Code)
	var body struct {
		Products []domain.CatalogItem `json:"products"`
	}
	decodeBody(t, res, &body)
	assert.Len(t, body.Products, 5)
	for _, item := range body.Products {
		assert.NotEmpty(t, item.CategoryName)
	}
}

func TestStorefrontOrderFlow(t *testing.T) {
	api := newTestAPI(t)
	customer := newTestClient(t, api)

	res := customer.do(http.MethodPost, "/api/v1/orders", domain.OrderCreateRequest{
		CartItems: []domain.CartItem{{ProductID: "prod-zobo", Qty: 2}, {ProductID: "prod-shea", Qty: 1}},
	})
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())

	var created struct {
		Order domain.OrderReceipt `json:"order"`
	}
	decodeBody(t, res, &created)
	require.NotEmpty(t, created.Order.AccessToken)
	assert.Equal(t, "3500.00", created.Order.TotalAmount.StringFixed(2))

	cookies := res.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, orderTokensCookie, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	customer.cookies = cookies

	res = customer.do(http.MethodGet, "/api/v1/orders/track?token="+created.Order.AccessToken, nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	var tracked struct {
		Order domain.Order `json:"order"`
	}
	decodeBody(t, res, &tracked)
	assert.Equal(t, created.Order.OrderID, tracked.Order.ID)
	assert.Equal(t, domain.OrderStatusAwaitingPayment, tracked.Order.Status)

	res = customer.do(http.MethodGet, "/api/v1/my-orders", nil)
	require.Equal(t, http.StatusOK, res.Code)
	var mine struct {
		Orders []domain.Order `json:"orders"`
	}
	decodeBody(t, res, &mine)
	require.Len(t, mine.Orders, 1)
	assert.Equal(t, created.Order.OrderID, mine.Orders[0].ID)

	admin := newTestClient(t, api).asAdmin()
	res = admin.do(http.MethodPost, "/api/v1/admin/orders/"+created.Order.OrderID+"/status", domain.OrderStatusRequest{Status: "complete"})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/track", nil)
	req.Header.Set(orderTokenHeader, created.Order.AccessToken)
	rec := httptest.NewRecorder()
	customer.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &tracked)
	assert.Equal(t, domain.OrderStatusComplete, tracked.Order.Status)
}

func TestSecondOrderAppendsToCookie(t *testing.T) {
	c := newTestClient(t, newTestAPI(t))

	first := c.do(http.MethodPost, "/api/v1/orders", domain.OrderCreateRequest{CartItems: []domain.CartItem{{ProductID: "prod-zobo", Qty: 1}}})
	require.Equal(t, http.StatusCreated, first.Code)
	c.cookies = first.Result().Cookies()

	second := c.do(http.MethodPost, "/api/v1/orders", domain.OrderCreateRequest{CartItems: []domain.CartItem{{ProductID: "prod-plantain", Qty: 1}}})
	require.Equal(t, http.StatusCreated, second.Code)
	c.cookies = second.Result().Cookies()

	res := c.do(http.MethodGet, "/api/v1/my-orders", nil)
	var mine struct {
		Orders []domain.Order `json:"orders"`
	}
	decodeBody(t, res, &mine)
	assert.Len(t, mine.Orders, 2)
}

func TestCreateOrderErrors(t *testing.T) {
	c := newTestClient(t, newTestAPI(t))

	res := c.do(http.MethodPost, "/api/v1/orders", domain.OrderCreateRequest{CartItems: []domain.CartItem{{ProductID: "prod-kunu", Qty: 5}}})
	assert.Equal(t, http.StatusConflict, res.Code)

	res = c.do(http.MethodPost, "/api/v1/orders", domain.OrderCreateRequest{})
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = c.do(http.MethodPost, "/api/v1/orders", map[string]any{"cart_items": []any{}, "coupon": "FREE"})
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestTrackOrderErrors(t *testing.T) {
	c := newTestClient(t, newTestAPI(t))

	res := c.do(http.MethodGet, "/api/v1/orders/track", nil)
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = c.do(http.MethodGet, "/api/v1/orders/track?token=unknown-token", nil)
	assert.Equal(t, http.StatusNotFound, res.Code)
}

func TestAdminOrderCancel(t *testing.T) {
	c := newTestClient(t, newTestAPI(t))
	res := c.do(http.MethodPost, "/api/v1/orders", domain.OrderCreateRequest{CartItems: []domain.CartItem{{ProductID: "prod-kunu", Qty: 4}}})
	require.Equal(t, http.StatusCreated, res.Code)
	var created struct {
		Order domain.OrderReceipt `json:"order"`
	}
	decodeBody(t, res, &created)

	c.asAdmin()
	path := "/api/v1/admin/orders/" + created.Order.OrderID

	res = c.do(http.MethodPost, path+"/cancel", domain.OrderCancelRequest{})
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = c.do(http.MethodPost, path+"/status", domain.OrderStatusRequest{Status: "cancelled"})
	assert.Equal(t, http.StatusConflict, res.Code)

	res = c.do(http.MethodPost, path+"/cancel", domain.OrderCancelRequest{Reason: "customer changed mind"})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())

	res = c.do(http.MethodPost, path+"/cancel", domain.OrderCancelRequest{Reason: "again"})
	assert.Equal(t, http.StatusConflict, res.Code)

	res = c.do(http.MethodGet, "/api/v1/admin/products/prod-kunu", nil)
	require.Equal(t, http.StatusOK, res.Code)
	var product struct {
		Product domain.Product `json:"product"`
	}
	decodeBody(t, res, &product)
	assert.Equal(t, 4, product.Product.Quantity)
	assert.Equal(t, 0, product.Product.Reserved)

	res = c.do(http.MethodDelete, path, nil)
	require.Equal(t, http.StatusOK, res.Code)
	res = c.do(http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, res.Code)
}

func TestAdminListOrdersRejectsUnknownStatus(t *testing.T) {
	c := newTestClient(t, newTestAPI(t)).asAdmin()

	res := c.do(http.MethodGet, "/api/v1/admin/orders?status=shipped", nil)
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = c.do(http.MethodGet, "/api/v1/admin/orders?status=awaiting_payment&limit=10", nil)
	assert.Equal(t, http.StatusOK, res.Code)
}

func TestAdminQuickShopHandlers(t *testing.T) {
	c := newTestClient(t, newTestAPI(t)).asAdmin()

	res := c.do(http.MethodPost, "/api/v1/admin/quick-shops", domain.QuickShopOpenRequest{
		Name:  "Campus fair",
		Items: []domain.CartItem{{ProductID: "prod-chin-chin", Qty: 10}},
	})
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	var opened struct {
		QuickShop domain.QuickShop `json:"quick_shop"`
	}
	decodeBody(t, res, &opened)
	path := "/api/v1/admin/quick-shops/" + opened.QuickShop.ID

	res = c.do(http.MethodPost, path+"/close", domain.QuickShopCloseRequest{Returned: map[string]int{"prod-chin-chin": 4}})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	var closed struct {
		QuickShop domain.QuickShop `json:"quick_shop"`
	}
	decodeBody(t, res, &closed)
	assert.Equal(t, domain.QuickShopStatusClosed, closed.QuickShop.Status)
	assert.Equal(t, "9000.00", closed.QuickShop.FinalSales.StringFixed(2))
	assert.Equal(t, "2400.00", closed.QuickShop.Profit.StringFixed(2))
	assert.NotEmpty(t, closed.QuickShop.OrderID)

	res = c.do(http.MethodPost, path+"/close", domain.QuickShopCloseRequest{})
	assert.Equal(t, http.StatusConflict, res.Code)

	res = c.do(http.MethodGet, "/api/v1/admin/dashboard", nil)
	require.Equal(t, http.StatusOK, res.Code)
	var dash struct {
		Dashboard domain.Dashboard `json:"dashboard"`
	}
	decodeBody(t, res, &dash)
	assert.Equal(t, 1, dash.Dashboard.CompletedOrders)
	assert.Equal(t, "9000.00", dash.Dashboard.Revenue.StringFixed(2))
	assert.Equal(t, 0, dash.Dashboard.OpenQuickShops)
}

func TestAdminProductCRUD(t *testing.T) {
	c := newTestClient(t, newTestAPI(t)).asAdmin()

	res := c.do(http.MethodPost, "/api/v1/admin/products", map[string]any{
		"name": "Puff Puff Mix", "price": "1200", "cost_price": "700", "quantity": 10, "category_id": "cat-snacks",
	})
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	var created struct {
		Product domain.Product `json:"product"`
	}
	decodeBody(t, res, &created)
	path := "/api/v1/admin/products/" + created.Product.ID

	res = c.do(http.MethodPatch, path, map[string]any{"quantity": 25})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	var updated struct {
		Product domain.Product `json:"product"`
	}
	decodeBody(t, res, &updated)
	assert.Equal(t, 25, updated.Product.Quantity)
	assert.Equal(t, "Puff Puff Mix", updated.Product.Name)

	res = c.do(http.MethodPost, "/api/v1/admin/products", map[string]any{"name": "Bad", "price": "0", "quantity": 1})
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = c.do(http.MethodDelete, path, nil)
	require.Equal(t, http.StatusOK, res.Code)
	res = c.do(http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, res.Code)
}

func TestAdminCategories(t *testing.T) {
	c := newTestClient(t, newTestAPI(t)).asAdmin()

	res := c.do(http.MethodPost, "/api/v1/admin/categories", domain.CategoryCreateRequest{Name: "Spices"})
	require.Equal(t, http.StatusCreated, res.Code)
	var created struct {
		Category domain.Category `json:"category"`
	}
	decodeBody(t, res, &created)

	res = c.do(http.MethodPost, "/api/v1/admin/categories", domain.CategoryCreateRequest{Name: "spices"})
	assert.Equal(t, http.StatusConflict, res.Code)

	res = c.do(http.MethodDelete, "/api/v1/admin/categories/"+created.Category.ID, nil)
	assert.Equal(t, http.StatusOK, res.Code)

	res = c.do(http.MethodGet, "/api/v1/categories", nil)
	require.Equal(t, http.StatusOK, res.Code)
	var listed struct {
		Categories []domain.Category `json:"categories"`
	}
	decodeBody(t, res, &listed)
	assert.Len(t, listed.Categories, 3)
}

func TestPackProfitTool(t *testing.T) {
	c := newTestClient(t, newTestAPI(t)).asAdmin()

	res := c.do(http.MethodPost, "/api/v1/admin/tools/pack-profit", map[string]any{
		"pack_cost": "1000", "pack_qty": 12, "unit_price": "120",
	})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	var body struct {
		Result domain.PackProfit `json:"result"`
	}
	decodeBody(t, res, &body)
	assert.Equal(t, "83.33", body.Result.UnitCost.StringFixed(2))
	assert.Equal(t, "36.67", body.Result.UnitProfit.StringFixed(2))

	res = c.do(http.MethodPost, "/api/v1/admin/tools/pack-profit", map[string]any{"pack_cost": "1000", "pack_qty": 0, "unit_price": "120"})
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestMethodNotAllowedUsesEnvelope(t *testing.T) {
	c := newTestClient(t, newTestAPI(t))

	res := c.do(http.MethodPut, "/api/v1/catalog", nil)
	require.Equal(t, http.StatusMethodNotAllowed, res.Code)
	var body struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	decodeBody(t, res, &body)
	assert.False(t, body.Success)
	assert.Equal(t, "method not allowed", body.Message)
}
