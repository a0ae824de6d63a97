package collaborator

import (
	"context"
	"fmt"
	"net/http"
)

// OrderService is the seam to the order service's state transitions. The
// order row itself is created before the saga starts; the saga only approves,
// rejects or confirms it.
type OrderService interface {
	Approve(ctx context.Context, orderID string) error
	Reject(ctx context.Context, orderID, reason string) error
	Confirm(ctx context.Context, orderID string) error
}

type httpOrderService struct {
	baseURL string
	client  *http.Client
}

// NewOrderService returns an OrderService talking REST to baseURL.
func NewOrderService(baseURL string) OrderService {
	return &httpOrderService{baseURL: baseURL, client: newHTTPClient()}
}

var _ OrderService = (*httpOrderService)(nil)

func (s *httpOrderService) Approve(ctx context.Context, orderID string) error {
	url := fmt.Sprintf("%s/orders/%s/approve", s.baseURL, orderID)
	if err := doJSON(ctx, s.client, http.MethodPost, url, nil, nil); err != nil {
		return fmt.Errorf("approve order %s: %w", orderID, err)
	}
	return nil
}

func (s *httpOrderService) Reject(ctx context.Context, orderID, reason string) error {
	url := fmt.Sprintf("%s/orders/%s/reject", s.baseURL, orderID)
	req := struct {
		Reason string `json:"reason"`
	}{Reason: reason}
	if err := doJSON(ctx, s.client, http.MethodPost, url, req, nil); err != nil {
		return fmt.Errorf("reject order %s: %w", orderID, err)
	}
	return nil
}

func (s *httpOrderService) Confirm(ctx context.Context, orderID string) error {
	url := fmt.Sprintf("%s/orders/%s/confirm", s.baseURL, orderID)
	if err := doJSON(ctx, s.client, http.MethodPost, url, nil, nil); err != nil {
		return fmt.Errorf("confirm order %s: %w", orderID, err)
	}
	return nil
}
