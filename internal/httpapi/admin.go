package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"arafims/backend/internal/domain"
)

func pathID(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		return "", errors.New("id required")
	}
	return id, nil
}

func (a *API) handleProducts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		products, err := a.service.ListProducts(r.Context())
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeOK(w, http.StatusOK, map[string]any{"products": products})
	case http.MethodPost:
		var req domain.ProductCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		product, err := a.service.CreateProduct(r.Context(), req)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeOK(w, http.StatusCreated, map[string]any{"product": product})
	default:
		a.writeMethodNotAllowed(w)
	}
}

func (a *API) handleProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	switch r.Method {
	case http.MethodGet:
		product, err := a.service.GetProduct(r.Context(), id)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeOK(w, http.StatusOK, map[string]any{"product": product})
	case http.MethodPatch:
		var req domain.ProductUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		product, err := a.service.UpdateProduct(r.Context(), id, req)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeOK(w, http.StatusOK, map[string]any{"product": product})
	case http.MethodDelete:
		if err := a.service.DeleteProduct(r.Context(), id); err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeOK(w, http.StatusOK, map[string]any{"message": "product deleted"})
	default:
		a.writeMethodNotAllowed(w)
	}
}

func (a *API) handleCategories(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		categories, err := a.service.ListCategories(r.Context())
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeOK(w, http.StatusOK, map[string]any{"categories": categories})
	case http.MethodPost:
		var req domain.CategoryCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		category, err := a.service.CreateCategory(r.Context(), req)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeOK(w, http.StatusCreated, map[string]any{"category": category})
	default:
		a.writeMethodNotAllowed(w)
	}
}

func (a *API) handleCategory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		a.writeMethodNotAllowed(w)
		return
	}
	id, err := pathID(r)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := a.service.DeleteCategory(r.Context(), id); err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"message": "category deleted"})
}

func (a *API) handleOrders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}
	query := r.URL.Query()
	limit := parsePositiveLimit(query.Get("limit"), 200, 500)
	orders, err := a.service.ListOrders(r.Context(), query.Get("status"), limit)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"orders": orders})
}

func (a *API) handleOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	switch r.Method {
	case http.MethodGet:
		order, err := a.service.GetOrder(r.Context(), id)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeOK(w, http.StatusOK, map[string]any{"order": order})
	case http.MethodDelete:
		if err := a.service.DeleteOrder(r.Context(), id); err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeOK(w, http.StatusOK, map[string]any{"message": "order deleted"})
	default:
		a.writeMethodNotAllowed(w)
	}
}

func (a *API) handleOrderStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.writeMethodNotAllowed(w)
		return
	}
	id, err := pathID(r)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	var req domain.OrderStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	order, err := a.service.TransitionOrder(r.Context(), id, req.Status)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"order": order})
}

func (a *API) handleOrderCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.writeMethodNotAllowed(w)
		return
	}
	id, err := pathID(r)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	var req domain.OrderCancelRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	order, err := a.service.CancelOrder(r.Context(), id, req.Reason)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"order": order})
}

func (a *API) handleQuickShops(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		shops, err := a.service.ListQuickShops(r.Context())
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeOK(w, http.StatusOK, map[string]any{"quick_shops": shops})
	case http.MethodPost:
		var req domain.QuickShopOpenRequest
		if err := decodeJSON(r, &req); err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		qs, err := a.service.OpenQuickShop(r.Context(), req)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeOK(w, http.StatusCreated, map[string]any{"quick_shop": qs})
	default:
		a.writeMethodNotAllowed(w)
	}
}

func (a *API) handleQuickShop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}
	id, err := pathID(r)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	qs, err := a.service.GetQuickShop(r.Context(), id)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"quick_shop": qs})
}

func (a *API) handleQuickShopClose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.writeMethodNotAllowed(w)
		return
	}
	id, err := pathID(r)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	var req domain.QuickShopCloseRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	qs, err := a.service.CloseQuickShop(r.Context(), id, req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"quick_shop": qs})
}

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}
	dash, err := a.service.Dashboard(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"dashboard": dash})
}

func (a *API) handlePackProfit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.writeMethodNotAllowed(w)
		return
	}
	var req domain.PackProfitRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	result, err := a.service.CalculatePackProfit(req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"result": result})
}
