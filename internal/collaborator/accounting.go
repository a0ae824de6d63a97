package collaborator

import (
	"context"
	"fmt"
	"net/http"
)

// AuthorizeRequest asks the accounting service to authorize a card payment.
type AuthorizeRequest struct {
	OrderID    string  `json:"order_id"`
	CustomerID string  `json:"customer_id"`
	Amount     float64 `json:"amount"`
}

// AccountingService is the seam to the accounting service.
type AccountingService interface {
	// AuthorizeCard returns the id of the payment authorization.
	AuthorizeCard(ctx context.Context, req AuthorizeRequest) (string, error)
	ReleaseAuthorization(ctx context.Context, paymentID string) error
}

type httpAccountingService struct {
	baseURL string
	client  *http.Client
}

// NewAccountingService returns an AccountingService talking REST to baseURL.
func NewAccountingService(baseURL string) AccountingService {
	return &httpAccountingService{baseURL: baseURL, client: newHTTPClient()}
}

var _ AccountingService = (*httpAccountingService)(nil)

func (s *httpAccountingService) AuthorizeCard(ctx context.Context, req AuthorizeRequest) (string, error) {
	var res struct {
		PaymentID string `json:"payment_id"`
	}
	url := s.baseURL + "/payments"
	if err := doJSON(ctx, s.client, http.MethodPost, url, req, &res); err != nil {
		return "", fmt.Errorf("authorize card for order %s: %w", req.OrderID, err)
	}
	if res.PaymentID == "" {
		return "", fmt.Errorf("authorize card for order %s: empty payment id in response", req.OrderID)
	}
	return res.PaymentID, nil
}

func (s *httpAccountingService) ReleaseAuthorization(ctx context.Context, paymentID string) error {
	url := fmt.Sprintf("%s/payments/%s/release", s.baseURL, paymentID)
	if err := doJSON(ctx, s.client, http.MethodPost, url, nil, nil); err != nil {
		return fmt.Errorf("release authorization %s: %w", paymentID, err)
	}
	return nil
}
