package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lojapos/backend/internal/checkout"
	"lojapos/backend/internal/domain"
	"lojapos/backend/internal/service"
	"lojapos/backend/internal/store/memory"
)

const (
	testOwnerPassword  = "owner-pass"
	testSellerPassword = "seller-pass"
	blouseID           = "prd-blusa-linho-u"
)

type testEnv struct {
	api     *API
	handler http.Handler
	repo    *memory.Store
}

// newTestAPI wires the real service, auth manager and in-memory store so
// handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *testEnv {
	t.Helper()

	repo := memory.NewSeeded()
	auth := NewAuthManager("test-secret-key-with-enough-length", time.Hour, repo, nil)
	require.NoError(t, auth.SeedUsers(context.Background(), testOwnerPassword, testSellerPassword))
	svc := service.New(repo, service.Options{Location: time.UTC})
	api := New(svc, auth, "*", nil)
	return &testEnv{api: api, handler: api.Handler(), repo: repo}
}

type request struct {
	method  string
	path    string
	token   string
	csrf    string
	body    any
	headers map[string]string
}

func (e *testEnv) do(t *testing.T, req request) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Reader
	if req.body != nil {
		payload, err := json.Marshal(req.body)
		require.NoError(t, err)
		body = bytes.NewReader(payload)
	} else {
		body = bytes.NewReader(nil)
	}

	httpReq := httptest.NewRequest(req.method, req.path, body)
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.token)
	}
	if req.csrf != "" {
		httpReq.Header.Set("X-CSRF-Token", req.csrf)
	}
	for key, value := range req.headers {
		httpReq.Header.Set(key, value)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, httpReq)
	return rec
}

func (e *testEnv) login(t *testing.T, username string, password string) string {
	t.Helper()
	rec := e.do(t, request{
		method: http.MethodPost,
		path:   "/api/v1/auth/login",
		body:   domain.LoginRequest{Username: username, Password: password},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp domain.LoginResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotEmpty(t, resp.AccessToken)
	return resp.AccessToken
}

func (e *testEnv) csrfToken(t *testing.T) string {
	t.Helper()
	rec := e.do(t, request{method: http.MethodGet, path: "/api/v1/auth/csrf-token"})
	require.Equal(t, http.StatusOK, rec.Code)

	var payload map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&payload))
	require.NotEmpty(t, strings.TrimSpace(payload["csrf_token"]))
	return payload["csrf_token"]
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out), rec.Body.String())
	return out
}

type cartResponse struct {
	ID            string            `json:"id"`
	Lines         []domain.CartLine `json:"lines"`
	SubtotalCents int64             `json:"subtotal_cents"`
	TotalCents    int64             `json:"total_cents"`
}

// openCartWith opens a cart and adds one unit of each product.
func (e *testEnv) openCartWith(t *testing.T, token string, csrf string, productIDs ...string) string {
	t.Helper()
	rec := e.do(t, request{method: http.MethodPost, path: "/api/v1/carts", token: token, csrf: csrf})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	cart := decodeBody[cartResponse](t, rec)

	for _, id := range productIDs {
		rec = e.do(t, request{
			method: http.MethodPost,
			path:   "/api/v1/carts/" + cart.ID + "/lines",
			token:  token, csrf: csrf,
			body: map[string]string{"product_id": id},
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	return cart.ID
}

func TestHandleHealth(t *testing.T) {
	env := newTestAPI(t)
	rec := env.do(t, request{method: http.MethodGet, path: "/healthz"})

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]any](t, rec)
	assert.Equal(t, true, body["ok"])
}

func TestHandleLogin(t *testing.T) {
	env := newTestAPI(t)
	env.login(t, "owner", testOwnerPassword)

	rec := env.do(t, request{
		method: http.MethodPost,
		path:   "/api/v1/auth/login",
		body:   domain.LoginRequest{Username: "owner", Password: "nope"},
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProductsRequireAuth(t *testing.T) {
	env := newTestAPI(t)

	rec := env.do(t, request{method: http.MethodGet, path: "/api/v1/products"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token := env.login(t, "seller", testSellerPassword)
	rec = env.do(t, request{method: http.MethodGet, path: "/api/v1/products", token: token})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string][]domain.Product](t, rec)
	assert.NotEmpty(t, body["products"])

	rec = env.do(t, request{method: http.MethodGet, path: "/api/v1/products/" + blouseID, token: token})
	require.Equal(t, http.StatusOK, rec.Code)
	product := decodeBody[domain.Product](t, rec)
	assert.Equal(t, int64(12990), product.PriceCents)

	rec = env.do(t, request{method: http.MethodGet, path: "/api/v1/products/missing", token: token})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSaleRequiresConfirmationForPixWithoutDetail(t *testing.T) {
	env := newTestAPI(t)
	token := env.login(t, "seller", testSellerPassword)
	csrf := env.csrfToken(t)
	cartID := env.openCartWith(t, token, csrf, blouseID)

	intent := checkout.SaleIntent{PaymentMethod: domain.PaymentPix, CustomerID: domain.UnidentifiedCustomerID}
	rec := env.do(t, request{method: http.MethodPost, path: "/api/v1/carts/" + cartID + "/sale", token: token, csrf: csrf, body: intent})
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	var conflict struct {
		Error    string            `json:"error"`
		Proposal checkout.Proposal `json:"proposal"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&conflict))
	require.Len(t, conflict.Proposal.Warnings, 1)
	assert.Equal(t, checkout.WarningMissingPaymentDetail, conflict.Proposal.Warnings[0].Code)
	require.NotEmpty(t, conflict.Proposal.Token)

	product, err := env.repo.GetProduct(context.Background(), blouseID)
	require.NoError(t, err)
	assert.Equal(t, 10, product.Stock, "nothing commits before confirmation")

	intent.ConfirmToken = conflict.Proposal.Token
	rec = env.do(t, request{method: http.MethodPost, path: "/api/v1/carts/" + cartID + "/sale", token: token, csrf: csrf, body: intent})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sale := decodeBody[domain.Sale](t, rec)
	assert.Equal(t, int64(12990), sale.TotalCents)
	assert.Equal(t, "Vendedora", sale.SellerName)

	product, err = env.repo.GetProduct(context.Background(), blouseID)
	require.NoError(t, err)
	assert.Equal(t, 9, product.Stock)

	rec = env.do(t, request{method: http.MethodGet, path: "/api/v1/carts/" + cartID, token: token})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[cartResponse](t, rec).Lines)
}

func TestSaleValidationErrors(t *testing.T) {
	env := newTestAPI(t)
	token := env.login(t, "seller", testSellerPassword)
	csrf := env.csrfToken(t)

	emptyCart := env.openCartWith(t, token, csrf)
	rec := env.do(t, request{
		method: http.MethodPost, path: "/api/v1/carts/" + emptyCart + "/sale", token: token, csrf: csrf,
		body: checkout.SaleIntent{PaymentMethod: domain.PaymentCash, CustomerID: domain.UnidentifiedCustomerID},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	cartID := env.openCartWith(t, token, csrf, blouseID)
	rec = env.do(t, request{
		method: http.MethodPost, path: "/api/v1/carts/" + cartID + "/lines/" + blouseID + "/price", token: token, csrf: csrf,
		body: map[string]any{"price_cents": 9990, "justification": ""},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, request{
		method: http.MethodPost, path: "/api/v1/carts/" + cartID + "/sale", token: token, csrf: csrf,
		body: checkout.SaleIntent{PaymentMethod: "BARTER", CustomerID: domain.UnidentifiedCustomerID},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, request{method: http.MethodGet, path: "/api/v1/carts/nope", token: token})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExchangeCreditFlow(t *testing.T) {
	env := newTestAPI(t)
	token := env.login(t, "seller", testSellerPassword)
	csrf := env.csrfToken(t)

	cartID := env.openCartWith(t, token, csrf, blouseID)
	rec := env.do(t, request{
		method: http.MethodPost, path: "/api/v1/carts/" + cartID + "/sale", token: token, csrf: csrf,
		body: checkout.SaleIntent{PaymentMethod: domain.PaymentCash, CustomerID: domain.UnidentifiedCustomerID},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sale := decodeBody[domain.Sale](t, rec)

	rec = env.do(t, request{method: http.MethodGet, path: "/api/v1/sales/lookup?q=" + sale.ID, token: token})
	require.Equal(t, http.StatusOK, rec.Code)
	lookup := decodeBody[struct {
		Found bool        `json:"found"`
		Sale  domain.Sale `json:"sale"`
	}](t, rec)
	require.True(t, lookup.Found)
	assert.Equal(t, sale.ID, lookup.Sale.ID)

	rec = env.do(t, request{
		method: http.MethodPost, path: "/api/v1/sales/" + sale.ID + "/returns", token: token, csrf: csrf,
		body: map[string]any{"product_id": blouseID, "quantity": 1},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	credit := decodeBody[domain.ExchangeCredit](t, rec)
	assert.Equal(t, int64(12990), credit.CreditAmountCents)
	assert.Equal(t, domain.CreditAvailable, credit.Status)

	rec = env.do(t, request{
		method: http.MethodPost, path: "/api/v1/sales/" + sale.ID + "/returns", token: token, csrf: csrf,
		body: map[string]any{"product_id": blouseID, "quantity": 1},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "line already fully returned")

	rec = env.do(t, request{method: http.MethodGet, path: "/api/v1/credits", token: token})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[map[string][]domain.ExchangeCredit](t, rec)["credits"], 1)

	nextCart := env.openCartWith(t, token, csrf, blouseID)
	rec = env.do(t, request{
		method: http.MethodPost, path: "/api/v1/carts/" + nextCart + "/credits", token: token, csrf: csrf,
		body: map[string]string{"credit_id": credit.ID},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, int64(0), decodeBody[cartResponse](t, rec).TotalCents)

	rec = env.do(t, request{
		method: http.MethodPost, path: "/api/v1/carts/" + nextCart + "/sale", token: token, csrf: csrf,
		body: checkout.SaleIntent{PaymentMethod: domain.PaymentStoreCredit, CustomerID: domain.UnidentifiedCustomerID},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	second := decodeBody[domain.Sale](t, rec)
	assert.Equal(t, int64(12990), second.ExchangeCreditUsedCents)
	assert.Equal(t, []string{credit.ID}, second.CreditIDs)

	rec = env.do(t, request{method: http.MethodGet, path: "/api/v1/credits?status=CONSUMED", token: token})
	require.Equal(t, http.StatusOK, rec.Code)
	consumed := decodeBody[map[string][]domain.ExchangeCredit](t, rec)["credits"]
	require.Len(t, consumed, 1)
	assert.Equal(t, second.ID, consumed[0].ConsumedBySaleID)
}

func TestGiftFlow(t *testing.T) {
	env := newTestAPI(t)
	token := env.login(t, "owner", testOwnerPassword)
	csrf := env.csrfToken(t)
	cartID := env.openCartWith(t, token, csrf, blouseID)

	rec := env.do(t, request{
		method: http.MethodPost, path: "/api/v1/carts/" + cartID + "/gift", token: token, csrf: csrf,
		body: map[string]string{"recipient_name": "@influencer", "authorized_by": ""},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, request{
		method: http.MethodPost, path: "/api/v1/carts/" + cartID + "/gift", token: token, csrf: csrf,
		body: map[string]string{"recipient_name": "@influencer", "authorized_by": "Proprietária"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	gift := decodeBody[domain.Gift](t, rec)
	assert.Equal(t, int64(12990), gift.TotalValueCents)
}

func TestCloseRegisterAndExport(t *testing.T) {
	env := newTestAPI(t)
	sellerToken := env.login(t, "seller", testSellerPassword)
	ownerToken := env.login(t, "owner", testOwnerPassword)
	csrf := env.csrfToken(t)

	cartID := env.openCartWith(t, sellerToken, csrf, blouseID)
	rec := env.do(t, request{
		method: http.MethodPost, path: "/api/v1/carts/" + cartID + "/sale", token: sellerToken, csrf: csrf,
		body: checkout.SaleIntent{PaymentMethod: domain.PaymentCash, CustomerID: domain.UnidentifiedCustomerID},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	today := env.api.service.Today()
	rec = env.do(t, request{method: http.MethodGet, path: "/api/v1/closures/preview", token: ownerToken})
	require.Equal(t, http.StatusOK, rec.Code)
	preview := decodeBody[domain.DailyClosure](t, rec)
	assert.Equal(t, int64(12990), preview.SalesTotalCents)

	rec = env.do(t, request{method: http.MethodPost, path: "/api/v1/closures", token: ownerToken, csrf: csrf, body: map[string]string{"date": ""}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, request{method: http.MethodPost, path: "/api/v1/closures", token: ownerToken, csrf: csrf, body: map[string]string{"date": today}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	closure := decodeBody[domain.DailyClosure](t, rec)
	assert.Equal(t, 1, closure.SalesCount)
	assert.Equal(t, int64(12990), closure.PaymentBreakdown[domain.PaymentCash])

	rec = env.do(t, request{method: http.MethodGet, path: "/api/v1/closures?date=" + today, token: ownerToken})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[map[string][]domain.DailyClosure](t, rec)["closures"], 1)

	rec = env.do(t, request{method: http.MethodGet, path: "/api/v1/closures/" + closure.ID + "/export?format=csv", token: ownerToken})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, rec.Body.String(), "summary,sales_total,129.90")
	assert.Contains(t, rec.Body.String(), "payment,CASH,129.90")

	rec = env.do(t, request{method: http.MethodGet, path: "/api/v1/closures/" + closure.ID + "/export?format=html", token: ownerToken})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Fechamento de Caixa "+today)

	rec = env.do(t, request{method: http.MethodGet, path: "/api/v1/closures/" + closure.ID + "/export?format=pdf", token: ownerToken})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, request{method: http.MethodGet, path: "/api/v1/closures/" + closure.ID + "/export", token: sellerToken})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdjustmentsAndAuditLog(t *testing.T) {
	env := newTestAPI(t)
	ownerToken := env.login(t, "owner", testOwnerPassword)
	sellerToken := env.login(t, "seller", testSellerPassword)
	csrf := env.csrfToken(t)

	rec := env.do(t, request{
		method: http.MethodPost, path: "/api/v1/adjustments", token: sellerToken, csrf: csrf,
		body: domain.AdjustmentRequest{Kind: domain.AdjustmentShortage, AmountCents: 500},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, request{
		method: http.MethodPost, path: "/api/v1/adjustments", token: sellerToken, csrf: csrf,
		body: domain.AdjustmentRequest{Kind: domain.AdjustmentShortage, AmountCents: 500, Justification: "troco errado"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(t, request{method: http.MethodGet, path: "/api/v1/audit-logs", token: sellerToken})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, request{method: http.MethodGet, path: "/api/v1/audit-logs", token: ownerToken})
	require.Equal(t, http.StatusOK, rec.Code)
	logs := decodeBody[map[string][]domain.AuditLog](t, rec)["audit_logs"]
	require.NotEmpty(t, logs)
	assert.Equal(t, domain.AuditCashAdjustment, logs[0].Action)
}

func TestGoals(t *testing.T) {
	env := newTestAPI(t)
	ownerToken := env.login(t, "owner", testOwnerPassword)
	sellerToken := env.login(t, "seller", testSellerPassword)
	csrf := env.csrfToken(t)
	path := "/api/v1/goals/2026/3"

	rec := env.do(t, request{method: http.MethodGet, path: path, token: sellerToken})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.DefaultGoalTargetCents, decodeBody[domain.GoalProgress](t, rec).TargetCents)

	rec = env.do(t, request{method: http.MethodPut, path: path, token: sellerToken, csrf: csrf, body: map[string]int64{"target_cents": 100}})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, request{method: http.MethodPut, path: path, token: ownerToken, csrf: csrf, body: map[string]int64{"target_cents": 800000}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, int64(800000), decodeBody[domain.GoalProgress](t, rec).TargetCents)

	rec = env.do(t, request{method: http.MethodGet, path: "/api/v1/goals/2026/abc", token: ownerToken})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteCustomerRequiresOwnerPassword(t *testing.T) {
	env := newTestAPI(t)
	ownerToken := env.login(t, "owner", testOwnerPassword)
	sellerToken := env.login(t, "seller", testSellerPassword)
	csrf := env.csrfToken(t)

	rec := env.do(t, request{
		method: http.MethodPost, path: "/api/v1/customers", token: sellerToken, csrf: csrf,
		body: domain.CustomerCreateRequest{Name: "Carla Souza", CPF: "123.456.789-09"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	customer := decodeBody[domain.Customer](t, rec)
	assert.Equal(t, "12345678909", customer.CPF)

	rec = env.do(t, request{
		method: http.MethodPost, path: "/api/v1/customers", token: sellerToken, csrf: csrf,
		body: domain.CustomerCreateRequest{Name: "Outra", CPF: "12345678909"},
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	deletePath := "/api/v1/customers/" + customer.ID
	rec = env.do(t, request{method: http.MethodDelete, path: deletePath, token: sellerToken, csrf: csrf,
		headers: map[string]string{ownerPasswordHeader: testOwnerPassword}})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, request{method: http.MethodDelete, path: deletePath, token: ownerToken, csrf: csrf})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, request{method: http.MethodDelete, path: deletePath, token: ownerToken, csrf: csrf,
		headers: map[string]string{ownerPasswordHeader: testOwnerPassword}})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, request{method: http.MethodDelete, path: "/api/v1/customers/" + domain.UnidentifiedCustomerID, token: ownerToken, csrf: csrf,
		headers: map[string]string{ownerPasswordHeader: testOwnerPassword}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUserManagement(t *testing.T) {
	env := newTestAPI(t)
	ownerToken := env.login(t, "owner", testOwnerPassword)
	sellerToken := env.login(t, "seller", testSellerPassword)
	csrf := env.csrfToken(t)

	rec := env.do(t, request{method: http.MethodGet, path: "/api/v1/users", token: sellerToken})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, request{
		method: http.MethodPost, path: "/api/v1/users", token: ownerToken, csrf: csrf,
		body: domain.UserCreateRequest{Username: "auditora", DisplayName: "Auditora", Password: "audit123", Role: domain.RoleAuditor},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(t, request{method: http.MethodGet, path: "/api/v1/users", token: ownerToken})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[map[string][]domain.User](t, rec)["users"], 3)

	rec = env.do(t, request{
		method: http.MethodPost, path: "/api/v1/users", token: ownerToken, csrf: csrf,
		body: domain.UserCreateRequest{Username: "gerente", DisplayName: "Gerente", Password: "admin123", Role: domain.RoleAdmin},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	adminToken := env.login(t, "gerente", "admin123")

	rec = env.do(t, request{method: http.MethodDelete, path: "/api/v1/users/owner", token: adminToken, csrf: csrf,
		headers: map[string]string{ownerPasswordHeader: testOwnerPassword}})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "owner account is permanent")

	rec = env.do(t, request{method: http.MethodDelete, path: "/api/v1/users/auditora", token: adminToken, csrf: csrf,
		headers: map[string]string{ownerPasswordHeader: testOwnerPassword}})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, request{method: http.MethodDelete, path: "/api/v1/users/auditora", token: ownerToken, csrf: csrf,
		headers: map[string]string{ownerPasswordHeader: testOwnerPassword}})
	assert.Equal(t, http.StatusForbidden, rec.Code, "auditor password is required")

	rec = env.do(t, request{method: http.MethodDelete, path: "/api/v1/users/seller", token: sellerToken, csrf: csrf})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	auditorToken := env.login(t, "auditora", "audit123")
	rec = env.do(t, request{method: http.MethodDelete, path: "/api/v1/users/gerente", token: auditorToken, csrf: csrf})
	assert.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = env.do(t, request{method: http.MethodDelete, path: "/api/v1/users/auditora", token: ownerToken, csrf: csrf,
		headers: map[string]string{auditorPasswordHeader: "audit123"}})
	assert.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = env.do(t, request{method: http.MethodGet, path: "/api/v1/login-events", token: ownerToken})
	require.Equal(t, http.StatusOK, rec.Code)
	events := decodeBody[map[string][]domain.LoginEvent](t, rec)["login_events"]
	require.Len(t, events, 4)
	assert.Equal(t, "auditora", events[0].Username)
}

func TestAdjustStockEndpoint(t *testing.T) {
	env := newTestAPI(t)
	ownerToken := env.login(t, "owner", testOwnerPassword)
	sellerToken := env.login(t, "seller", testSellerPassword)
	csrf := env.csrfToken(t)
	path := "/api/v1/products/" + blouseID + "/stock"

	rec := env.do(t, request{
		method: http.MethodPost, path: path, token: sellerToken, csrf: csrf,
		body: domain.StockAdjustmentRequest{Delta: 2, Reason: "recount"},
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, request{
		method: http.MethodPost, path: path, token: ownerToken, csrf: csrf,
		body: domain.StockAdjustmentRequest{Delta: 2},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, request{
		method: http.MethodPost, path: path, token: ownerToken, csrf: csrf,
		body: domain.StockAdjustmentRequest{Delta: -100, Reason: "lost"},
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, request{
		method: http.MethodPost, path: path, token: ownerToken, csrf: csrf,
		body: domain.StockAdjustmentRequest{Delta: -2, Reason: "damaged in fitting room"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 8, decodeBody[domain.Product](t, rec).Stock)

	rec = env.do(t, request{method: http.MethodGet, path: "/api/v1/audit-logs", token: ownerToken})
	require.Equal(t, http.StatusOK, rec.Code)
	logs := decodeBody[map[string][]domain.AuditLog](t, rec)["audit_logs"]
	require.NotEmpty(t, logs)
	assert.Equal(t, domain.AuditStockAdjusted, logs[0].Action)
	assert.Equal(t, blouseID, logs[0].EntityID)
}

func TestSalesReportAndDashboard(t *testing.T) {
	env := newTestAPI(t)
	ownerToken := env.login(t, "owner", testOwnerPassword)
	sellerToken := env.login(t, "seller", testSellerPassword)
	csrf := env.csrfToken(t)

	for _, sale := range []struct{ token, productID string }{
		{sellerToken, blouseID},
		{ownerToken, "prd-vest-floral-m"},
	} {
		cartID := env.openCartWith(t, sale.token, csrf, sale.productID)
		rec := env.do(t, request{
			method: http.MethodPost, path: "/api/v1/carts/" + cartID + "/sale", token: sale.token, csrf: csrf,
			body: checkout.SaleIntent{PaymentMethod: domain.PaymentCash, CustomerID: domain.UnidentifiedCustomerID},
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec := env.do(t, request{method: http.MethodGet, path: "/api/v1/sales?period=day", token: sellerToken})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decodeBody[domain.SalesReport](t, rec)
	assert.Equal(t, domain.PeriodDay, report.Period)
	assert.Equal(t, 1, report.Count)
	assert.Equal(t, int64(12990), report.TotalCents)
	require.Len(t, report.Sales, 1)
	assert.Equal(t, "seller", report.Sales[0].SellerID)

	rec = env.do(t, request{method: http.MethodGet, path: "/api/v1/sales?period=month", token: ownerToken})
	require.Equal(t, http.StatusOK, rec.Code)
	report = decodeBody[domain.SalesReport](t, rec)
	assert.Equal(t, 2, report.Count)
	assert.Equal(t, int64(12990+18990), report.TotalCents)

	rec = env.do(t, request{method: http.MethodGet, path: "/api/v1/sales?period=decade", token: ownerToken})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	products, err := env.repo.ListProducts(context.Background())
	require.NoError(t, err)
	lowStock := 0
	for _, product := range products {
		if product.Stock < domain.LowStockThreshold {
			lowStock++
		}
	}

	rec = env.do(t, request{method: http.MethodGet, path: "/api/v1/dashboard", token: ownerToken})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	dashboard := decodeBody[domain.Dashboard](t, rec)
	assert.Equal(t, int64(12990+18990), dashboard.TodayRevenueCents)
	assert.Equal(t, int64(12990+18990), dashboard.TotalRevenueCents)
	assert.Equal(t, 2, dashboard.TotalSales)
	assert.Equal(t, lowStock, dashboard.LowStockCount)
	require.Len(t, dashboard.Last7Days, 7)
	assert.Equal(t, env.api.service.Today(), dashboard.Last7Days[6].Date)

	rec = env.do(t, request{method: http.MethodGet, path: "/api/v1/dashboard", token: sellerToken})
	require.Equal(t, http.StatusOK, rec.Code)
	dashboard = decodeBody[domain.Dashboard](t, rec)
	assert.Equal(t, int64(12990), dashboard.TotalRevenueCents)
	assert.Equal(t, 1, dashboard.TotalSales)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("wrap: %w", service.ErrForbidden), http.StatusForbidden},
		{&checkout.ConfirmationRequiredError{}, http.StatusConflict},
		{ErrInvalidCredentials, http.StatusUnauthorized},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}
