package httpx

type CreateOrderSagaRequest struct {
	OrderID      string             `json:"order_id"`
	CustomerID   string             `json:"customer_id"`
	RestaurantID string             `json:"restaurant_id"`
	Items        []OrderLineItemDTO `json:"items"`
}

type OrderLineItemDTO struct {
	MenuItemID string  `json:"menu_item_id"`
	Name       string  `json:"name"`
	Quantity   int     `json:"quantity"`
	Price      float64 `json:"price"`
}

type SagaResponse struct {
	ID             string                  `json:"id"`
	SagaType       string                  `json:"saga_type"`
	State          string                  `json:"state"`
	FailureReason  string                  `json:"failure_reason,omitempty"`
	IdempotencyKey string                  `json:"idempotency_key,omitempty"`
	TraceID        string                  `json:"trace_id,omitempty"`
	CreatedAt      string                  `json:"created_at"`
	CompletedAt    string                  `json:"completed_at,omitempty"`
	Steps          []StepExecutionResponse `json:"steps"`
}

type StepExecutionResponse struct {
	StepName    string `json:"step_name"`
	State       string `json:"state"`
	Error       string `json:"error,omitempty"`
	StartedAt   string `json:"started_at"`
	CompletedAt string `json:"completed_at,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
