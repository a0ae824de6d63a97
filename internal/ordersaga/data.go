// Package ordersaga defines the order-creation saga: validate the order,
// create the kitchen ticket, authorize the card, confirm the order, with
// reverse-order compensations (reject, cancel, release) when a later step
// fails.
package ordersaga

// SchemaVersion tags persisted CreateOrderData payloads so future layout
// changes can migrate old in-flight sagas explicitly instead of guessing.
const SchemaVersion = 1

// LineItem is one ordered menu item.
type LineItem struct {
	MenuItemID string  `json:"menu_item_id"`
	Name       string  `json:"name"`
	Quantity   int     `json:"quantity"`
	Price      float64 `json:"price"`
}

// CreateOrderData is the typed saga context for the order-creation saga.
// Steps read the business fields and capture into it what their
// compensations will need.
type CreateOrderData struct {
	SchemaVersion int `json:"schema_version"`

	OrderID      string     `json:"order_id"`
	CustomerID   string     `json:"customer_id"`
	RestaurantID string     `json:"restaurant_id"`
	LineItems    []LineItem `json:"line_items"`
	OrderTotal   float64    `json:"order_total"`

	// Captured by steps for compensation. An empty TicketID/PaymentID means
	// the corresponding forward call never completed, so its compensation is
	// a no-op.
	TicketID  string `json:"ticket_id,omitempty"`
	PaymentID string `json:"payment_id,omitempty"`
}

// NewCreateOrderData builds a context for a fresh saga, computing the order
// total from the line items.
func NewCreateOrderData(orderID, customerID, restaurantID string, items []LineItem) *CreateOrderData {
	total := 0.0
	for _, it := range items {
		total += float64(it.Quantity) * it.Price
	}
	return &CreateOrderData{
		SchemaVersion: SchemaVersion,
		OrderID:       orderID,
		CustomerID:    customerID,
		RestaurantID:  restaurantID,
		LineItems:     items,
		OrderTotal:    total,
	}
}
