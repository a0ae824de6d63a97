package httpx

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mvaldes/food-ordering-sagas/internal/ordersaga"
	"github.com/mvaldes/food-ordering-sagas/internal/saga"
	"github.com/mvaldes/food-ordering-sagas/internal/saga/instance"
)

// orderResource is the resource type locked for the saga's lifetime.
const orderResource = "Order"

// Handler exposes saga creation and status lookup over HTTP.
type Handler struct {
	manager *saga.Manager[ordersaga.CreateOrderData]
	store   instance.Store
}

func NewHandler(manager *saga.Manager[ordersaga.CreateOrderData], store instance.Store) *Handler {
	return &Handler{manager: manager, store: store}
}

// CreateOrderSaga validates the request, starts the order-creation saga and
// returns 202: the saga runs beyond this request, its state is read back via
// GetSagaByID.
func (h *Handler) CreateOrderSaga(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderSagaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	if req.CustomerID == "" || req.RestaurantID == "" || len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request",
			"customer_id, restaurant_id and items are required")
		return
	}

	items := make([]ordersaga.LineItem, 0, len(req.Items))
	for _, it := range req.Items {
		if it.MenuItemID == "" || it.Quantity <= 0 || it.Price <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_item",
				"menu_item_id, quantity, and price must be valid")
			return
		}
		items = append(items, ordersaga.LineItem{
			MenuItemID: it.MenuItemID,
			Name:       it.Name,
			Quantity:   it.Quantity,
			Price:      it.Price,
		})
	}

	orderID := req.OrderID
	if orderID == "" {
		orderID = uuid.New().String()
	}

	// Use comma-ok idiom to safely extract typed context values.
	idempKey, _ := r.Context().Value(ContextKeyIdempotencyKey).(string)
	requestID, _ := r.Context().Value(ContextKeyRequestID).(string)

	slog.InfoContext(r.Context(), "starting order saga",
		"request_id", requestID, "order_id", orderID, "customer_id", req.CustomerID)

	data := ordersaga.NewCreateOrderData(orderID, req.CustomerID, req.RestaurantID, items)
	inst, err := h.manager.Start(r.Context(), ordersaga.SagaType, data, saga.StartOptions{
		IdempotencyKey: idempKey,
		ResourceType:   orderResource,
		ResourceID:     orderID,
	})
	if err != nil {
		switch {
		case errors.Is(err, saga.ErrResourceLocked):
			writeError(w, http.StatusConflict, "order_locked", err.Error())
		case errors.Is(err, saga.ErrUnknownSagaType):
			writeError(w, http.StatusBadRequest, "unknown_saga_type", err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "saga_start_failed", err.Error())
		}
		return
	}

	writeJSON(w, http.StatusAccepted, mapInstanceToResponse(inst))
}

// GetSagaByID returns the persisted instance with its step executions.
func (h *Handler) GetSagaByID(w http.ResponseWriter, r *http.Request) {
	sagaID := chi.URLParam(r, "id")
	if sagaID == "" {
		writeError(w, http.StatusBadRequest, "saga_id_required", "")
		return
	}

	inst, err := h.store.FindByID(r.Context(), sagaID)
	if err != nil {
		if errors.Is(err, instance.ErrNotFound) {
			writeError(w, http.StatusNotFound, "saga_not_found", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "saga_lookup_failed", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, mapInstanceToResponse(inst))
}

func mapInstanceToResponse(inst *instance.Instance) SagaResponse {
	steps := make([]StepExecutionResponse, len(inst.StepExecutions))
	for i, exec := range inst.StepExecutions {
		steps[i] = StepExecutionResponse{
			StepName:    exec.StepName,
			State:       string(exec.State),
			Error:       exec.FailureReason,
			StartedAt:   formatTime(exec.StartedAt),
			CompletedAt: formatTime(exec.CompletedAt),
		}
	}
	return SagaResponse{
		ID:             inst.ID,
		SagaType:       inst.SagaType,
		State:          string(inst.State),
		FailureReason:  inst.FailureReason,
		IdempotencyKey: inst.IdempotencyKey,
		TraceID:        inst.TraceID,
		CreatedAt:      formatTime(inst.CreatedAt),
		CompletedAt:    formatTime(inst.CompletedAt),
		Steps:          steps,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{
		Error:   code,
		Message: msg,
	})
}
