package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"lojapos/backend/internal/checkout"
	"lojapos/backend/internal/domain"
	"lojapos/backend/internal/service"
	"lojapos/backend/internal/store"
)

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, fmt.Errorf("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCSRFToken returns a stateless token valid for the current hour bucket.
func (a *API) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"csrf_token": a.generateCSRFToken(),
	})
}

// Catalog and customers.

func (a *API) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := a.service.ListProducts(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := a.service.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (a *API) handleAdjustStock(w http.ResponseWriter, r *http.Request) {
	var req domain.StockAdjustmentRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	product, err := a.service.AdjustStock(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (a *API) handleListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := a.service.ListCustomers(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"customers": customers})
}

func (a *API) handleCreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req domain.CustomerCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	customer, err := a.service.CreateCustomer(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, customer)
}

func (a *API) handleUpdateCustomer(w http.ResponseWriter, r *http.Request) {
	var req domain.CustomerUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	customer, err := a.service.UpdateCustomer(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, customer)
}

func (a *API) handleDeleteCustomer(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteCustomer(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Carts.

type cartView struct {
	*checkout.Session
	SubtotalCents   int64 `json:"subtotal_cents"`
	CreditUsedCents int64 `json:"credit_used_cents"`
	TotalCents      int64 `json:"total_cents"`
}

func newCartView(session *checkout.Session) cartView {
	return cartView{
		Session:         session,
		SubtotalCents:   session.Subtotal(),
		CreditUsedCents: session.CreditUsed(),
		TotalCents:      session.Total(),
	}
}

func (a *API) handleOpenCart(w http.ResponseWriter, r *http.Request) {
	session, err := a.service.OpenCart(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newCartView(session))
}

func (a *API) handleGetCart(w http.ResponseWriter, r *http.Request) {
	session, err := a.service.GetCart(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCartView(session))
}

func (a *API) handleDiscardCart(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DiscardCart(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleAddCartLine(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductID string `json:"product_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	session, added, err := a.service.AddToCart(r.Context(), chi.URLParam(r, "id"), strings.TrimSpace(req.ProductID))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cart": newCartView(session), "added": added})
}

func (a *API) handleSetCartLineQuantity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	session, changed, err := a.service.SetCartLineQuantity(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "lineID"), req.Quantity)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cart": newCartView(session), "changed": changed})
}

func (a *API) handleRemoveCartLine(w http.ResponseWriter, r *http.Request) {
	session, err := a.service.RemoveCartLine(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "lineID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCartView(session))
}

func (a *API) handleOverrideCartPrice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PriceCents    int64  `json:"price_cents"`
		Justification string `json:"justification"`
	}
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	session, err := a.service.OverrideCartPrice(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "lineID"), req.PriceCents, req.Justification)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCartView(session))
}

func (a *API) handleApplyCartCredit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CreditID string `json:"credit_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	session, err := a.service.ApplyCartCredit(r.Context(), chi.URLParam(r, "id"), strings.TrimSpace(req.CreditID))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCartView(session))
}

func (a *API) handleRemoveCartCredit(w http.ResponseWriter, r *http.Request) {
	session, err := a.service.RemoveCartCredit(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "creditID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCartView(session))
}

func (a *API) handleProposeSale(w http.ResponseWriter, r *http.Request) {
	var intent checkout.SaleIntent
	if err := decodeJSON(r, &intent); err != nil {
		a.fail(w, r, err)
		return
	}
	proposal, err := a.service.ProposeSale(r.Context(), chi.URLParam(r, "id"), intent)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, proposal)
}

func (a *API) handleFinalizeSale(w http.ResponseWriter, r *http.Request) {
	var intent checkout.SaleIntent
	if err := decodeJSON(r, &intent); err != nil {
		a.fail(w, r, err)
		return
	}
	sale, err := a.service.FinalizeSale(r.Context(), chi.URLParam(r, "id"), intent)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sale)
}

func (a *API) handleFinalizeGift(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RecipientName string `json:"recipient_name"`
		AuthorizedBy  string `json:"authorized_by"`
	}
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	gift, err := a.service.FinalizeGift(r.Context(), chi.URLParam(r, "id"), req.RecipientName, req.AuthorizedBy)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, gift)
}

// Exchanges.

func (a *API) handleSearchSales(w http.ResponseWriter, r *http.Request) {
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 20, 100)
	sales, err := a.service.SearchSales(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sales": sales})
}

// handleSalesReport lists the sales of a reporting period (day, week or month).
func (a *API) handleSalesReport(w http.ResponseWriter, r *http.Request) {
	report, err := a.service.SalesReport(r.Context(), r.URL.Query().Get("period"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	dashboard, err := a.service.Dashboard(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dashboard)
}

// handleFindSale resolves the single most recent match for the exchange desk.
func (a *API) handleFindSale(w http.ResponseWriter, r *http.Request) {
	sale, found, err := a.service.FindSale(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"found": found, "sale": sale})
}

func (a *API) handleReturnSaleLine(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductID string `json:"product_id"`
		Quantity  int    `json:"quantity"`
	}
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	credit, err := a.service.ReturnSaleLine(r.Context(), chi.URLParam(r, "id"), strings.TrimSpace(req.ProductID), req.Quantity)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, credit)
}

func (a *API) handleListCredits(w http.ResponseWriter, r *http.Request) {
	credits, err := a.service.ListCredits(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"credits": credits})
}

// Cash drawer and floor.

func (a *API) handleRecordAdjustment(w http.ResponseWriter, r *http.Request) {
	var req domain.AdjustmentRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	adj, err := a.service.RecordAdjustment(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, adj)
}

func (a *API) handleRecordAttendance(w http.ResponseWriter, r *http.Request) {
	var req domain.AttendanceRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	attendance, err := a.service.RecordAttendance(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, attendance)
}

// Closures.

func (a *API) handlePreviewClosure(w http.ResponseWriter, r *http.Request) {
	preview, err := a.service.PreviewClosure(r.Context(), r.URL.Query().Get("date"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

func (a *API) handleCloseRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Date string `json:"date"`
	}
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	closure, err := a.service.CloseRegister(r.Context(), req.Date)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, closure)
}

func (a *API) handleListClosures(w http.ResponseWriter, r *http.Request) {
	closures, err := a.service.ListClosures(r.Context(), r.URL.Query().Get("date"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"closures": closures})
}

func (a *API) handleGetClosure(w http.ResponseWriter, r *http.Request) {
	closure, err := a.service.GetClosure(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, closure)
}

func (a *API) handleExportClosure(w http.ResponseWriter, r *http.Request) {
	closure, err := a.service.GetClosure(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}

	switch strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format"))) {
	case "", "csv":
		body, err := closureToCSV(*closure)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"fechamento-%s.csv\"", closure.Date))
		_, _ = w.Write(body)
	case "html":
		body, err := closureToPrintableHTML(*closure)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(body)
	default:
		a.fail(w, r, fmt.Errorf("%w: format must be csv or html", store.ErrValidation))
	}
}

// Audit, goals and users.

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)
	logs, err := a.service.ListAuditLogs(r.Context(), r.URL.Query().Get("date"), limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"audit_logs": logs})
}

func goalPeriod(r *http.Request) (int, int, error) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: invalid year", store.ErrValidation)
	}
	month, err := strconv.Atoi(chi.URLParam(r, "month"))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: invalid month", store.ErrValidation)
	}
	return year, month, nil
}

func (a *API) handleGoalProgress(w http.ResponseWriter, r *http.Request) {
	year, month, err := goalPeriod(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	progress, err := a.service.GoalProgress(r.Context(), year, month)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

func (a *API) handleSetGoal(w http.ResponseWriter, r *http.Request) {
	year, month, err := goalPeriod(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var req struct {
		TargetCents int64 `json:"target_cents"`
	}
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	progress, err := a.service.SetGoal(r.Context(), year, month, req.TargetCents)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.service.ListUsers(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (a *API) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req domain.UserCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	actor, _ := service.ActorFromContext(r.Context())
	user, err := a.auth.CreateUser(r.Context(), actor, req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (a *API) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	actor, _ := service.ActorFromContext(r.Context())
	confirm := DeleteConfirmation{
		OwnerPassword:   r.Header.Get(ownerPasswordHeader),
		AuditorPassword: r.Header.Get(auditorPasswordHeader),
	}
	if err := a.auth.DeleteUser(r.Context(), actor, chi.URLParam(r, "username"), confirm); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleLoginEvents(w http.ResponseWriter, r *http.Request) {
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 50, domain.LoginEventRetention)
	events, err := a.service.ListLoginEvents(r.Context(), limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"login_events": events})
}
