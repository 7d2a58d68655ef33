package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"arafims/backend/internal/domain"
)

const (
	orderTokensCookie = "order_tokens"
	orderTokenHeader  = "X-Order-Token"
	maxCookieTokens   = 20
)

func (a *API) handleCatalog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}
	items, err := a.service.ListCatalog(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"products": items})
}

func (a *API) handlePublicCategories(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}
	categories, err := a.service.ListCategories(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"categories": categories})
}

// handleCreateOrder places a storefront order and remembers its access token
// in the order_tokens cookie alongside earlier ones.
func (a *API) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.writeMethodNotAllowed(w)
		return
	}
	if !a.allow(r.Context(), a.orderLimiter, clientKey(r)) {
		a.writeError(w, http.StatusTooManyRequests, errors.New("too many orders, try again shortly"))
		return
	}

	var req domain.OrderCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	receipt, err := a.service.CreateOrder(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}

	tokens := append(readOrderTokens(r), receipt.AccessToken)
	a.setOrderTokens(w, tokens, receipt.TokenExpiresAt)

	writeOK(w, http.StatusCreated, map[string]any{"order": receipt})
}

func (a *API) handleTrackOrder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		token = strings.TrimSpace(r.Header.Get(orderTokenHeader))
	}
	if token == "" {
		a.writeError(w, http.StatusBadRequest, errors.New("order token required"))
		return
	}

	order, err := a.service.GetOrderByToken(r.Context(), token)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"order": order})
}

func (a *API) handleMyOrders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}
	orders, err := a.service.ListOrdersByTokens(r.Context(), readOrderTokens(r))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"orders": orders})
}

func readOrderTokens(r *http.Request) []string {
	cookie, err := r.Cookie(orderTokensCookie)
	if err != nil {
		return nil
	}
	var tokens []string
	for _, token := range strings.Split(cookie.Value, ",") {
		if token = strings.TrimSpace(token); token != "" {
			tokens = append(tokens, token)
		}
	}
	return tokens
}

// setOrderTokens keeps the newest tokens. The cookie lives as long as the
// most recent token.
func (a *API) setOrderTokens(w http.ResponseWriter, tokens []string, expiresAt time.Time) {
	if len(tokens) > maxCookieTokens {
		tokens = tokens[len(tokens)-maxCookieTokens:]
	}
	cookie := &http.Cookie{
		Name:     orderTokensCookie,
		Value:    strings.Join(tokens, ","),
		Path:     "/api/v1",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   a.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
	if err := cookie.Valid(); err != nil {
		a.logger.Warn("order token cookie rejected", zap.Error(err))
		return
	}
	http.SetCookie(w, cookie)
}
