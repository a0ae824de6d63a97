package collaborator

import (
	"context"
	"fmt"
	"net/http"
)

// TicketLineItem is one line of a kitchen preparation ticket.
type TicketLineItem struct {
	MenuItemID string `json:"menu_item_id"`
	Name       string `json:"name"`
	Quantity   int    `json:"quantity"`
}

// TicketRequest asks the kitchen to prepare an order.
type TicketRequest struct {
	OrderID      string           `json:"order_id"`
	RestaurantID string           `json:"restaurant_id"`
	LineItems    []TicketLineItem `json:"line_items"`
}

// KitchenService is the seam to the kitchen service.
type KitchenService interface {
	// CreateTicket returns the id of the preparation ticket.
	CreateTicket(ctx context.Context, req TicketRequest) (string, error)
	CancelTicket(ctx context.Context, ticketID string) error
}

type httpKitchenService struct {
	baseURL string
	client  *http.Client
}

// NewKitchenService returns a KitchenService talking REST to baseURL.
func NewKitchenService(baseURL string) KitchenService {
	return &httpKitchenService{baseURL: baseURL, client: newHTTPClient()}
}

var _ KitchenService = (*httpKitchenService)(nil)

func (s *httpKitchenService) CreateTicket(ctx context.Context, req TicketRequest) (string, error) {
	var res struct {
		TicketID string `json:"ticket_id"`
	}
	url := s.baseURL + "/tickets"
	if err := doJSON(ctx, s.client, http.MethodPost, url, req, &res); err != nil {
		return "", fmt.Errorf("create ticket for order %s: %w", req.OrderID, err)
	}
	if res.TicketID == "" {
		return "", fmt.Errorf("create ticket for order %s: empty ticket id in response", req.OrderID)
	}
	return res.TicketID, nil
}

func (s *httpKitchenService) CancelTicket(ctx context.Context, ticketID string) error {
	url := fmt.Sprintf("%s/tickets/%s", s.baseURL, ticketID)
	if err := doJSON(ctx, s.client, http.MethodDelete, url, nil, nil); err != nil {
		return fmt.Errorf("cancel ticket %s: %w", ticketID, err)
	}
	return nil
}
