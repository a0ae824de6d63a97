package ordersaga

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mvaldes/food-ordering-sagas/internal/collaborator"
)

// --- ValidateOrderStep ---

// ValidateOrderStep approves the order on the order service; its
// compensation rejects it.
type ValidateOrderStep struct {
	orders collaborator.OrderService
}

func NewValidateOrderStep(orders collaborator.OrderService) *ValidateOrderStep {
	return &ValidateOrderStep{orders: orders}
}

func (s *ValidateOrderStep) Name() string { return "ValidateOrder" }

func (s *ValidateOrderStep) Execute(ctx context.Context, data *CreateOrderData) (string, error) {
	if err := s.orders.Approve(ctx, data.OrderID); err != nil {
		return "", fmt.Errorf("validate order: %w", err)
	}
	slog.InfoContext(ctx, "order validated and approved", "order_id", data.OrderID)
	return data.OrderID, nil
}

func (s *ValidateOrderStep) HasCompensation() bool { return true }

func (s *ValidateOrderStep) Compensate(ctx context.Context, data *CreateOrderData) error {
	if err := s.orders.Reject(ctx, data.OrderID, "order creation rolled back"); err != nil {
		return fmt.Errorf("reject order: %w", err)
	}
	slog.InfoContext(ctx, "order rejected", "order_id", data.OrderID)
	return nil
}

// --- CreateTicketStep ---

// CreateTicketStep asks the kitchen to create a preparation ticket, capturing
// its id into the saga context; compensation cancels that ticket if one was
// created.
type CreateTicketStep struct {
	kitchen collaborator.KitchenService
}

func NewCreateTicketStep(kitchen collaborator.KitchenService) *CreateTicketStep {
	return &CreateTicketStep{kitchen: kitchen}
}

func (s *CreateTicketStep) Name() string { return "CreateTicket" }

func (s *CreateTicketStep) Execute(ctx context.Context, data *CreateOrderData) (string, error) {
	items := make([]collaborator.TicketLineItem, len(data.LineItems))
	for i, it := range data.LineItems {
		items[i] = collaborator.TicketLineItem{
			MenuItemID: it.MenuItemID,
			Name:       it.Name,
			Quantity:   it.Quantity,
		}
	}

	ticketID, err := s.kitchen.CreateTicket(ctx, collaborator.TicketRequest{
		OrderID:      data.OrderID,
		RestaurantID: data.RestaurantID,
		LineItems:    items,
	})
	if err != nil {
		return "", err
	}

	data.TicketID = ticketID
	slog.InfoContext(ctx, "kitchen ticket created", "order_id", data.OrderID, "ticket_id", ticketID)
	return ticketID, nil
}

func (s *CreateTicketStep) HasCompensation() bool { return true }

func (s *CreateTicketStep) Compensate(ctx context.Context, data *CreateOrderData) error {
	// No ticket id captured means the forward call never completed; nothing
	// to undo.
	if data.TicketID == "" {
		return nil
	}
	if err := s.kitchen.CancelTicket(ctx, data.TicketID); err != nil {
		return err
	}
	slog.InfoContext(ctx, "kitchen ticket cancelled", "order_id", data.OrderID, "ticket_id", data.TicketID)
	return nil
}

// --- AuthorizeCardStep ---

// AuthorizeCardStep authorizes the customer's card on the accounting service,
// capturing the payment id; compensation releases the authorization if one
// exists.
type AuthorizeCardStep struct {
	accounting collaborator.AccountingService
}

func NewAuthorizeCardStep(accounting collaborator.AccountingService) *AuthorizeCardStep {
	return &AuthorizeCardStep{accounting: accounting}
}

func (s *AuthorizeCardStep) Name() string { return "AuthorizeCard" }

func (s *AuthorizeCardStep) Execute(ctx context.Context, data *CreateOrderData) (string, error) {
	paymentID, err := s.accounting.AuthorizeCard(ctx, collaborator.AuthorizeRequest{
		OrderID:    data.OrderID,
		CustomerID: data.CustomerID,
		Amount:     data.OrderTotal,
	})
	if err != nil {
		return "", err
	}

	data.PaymentID = paymentID
	slog.InfoContext(ctx, "card authorized", "order_id", data.OrderID, "payment_id", paymentID)
	return paymentID, nil
}

func (s *AuthorizeCardStep) HasCompensation() bool { return true }

func (s *AuthorizeCardStep) Compensate(ctx context.Context, data *CreateOrderData) error {
	if data.PaymentID == "" {
		return nil
	}
	if err := s.accounting.ReleaseAuthorization(ctx, data.PaymentID); err != nil {
		return err
	}
	slog.InfoContext(ctx, "card authorization released", "order_id", data.OrderID, "payment_id", data.PaymentID)
	return nil
}

// --- ConfirmCreateOrderStep ---

// ConfirmCreateOrderStep is the terminal confirmation step; as the last step
// it declares no compensation.
type ConfirmCreateOrderStep struct {
	orders collaborator.OrderService
}

func NewConfirmCreateOrderStep(orders collaborator.OrderService) *ConfirmCreateOrderStep {
	return &ConfirmCreateOrderStep{orders: orders}
}

func (s *ConfirmCreateOrderStep) Name() string { return "ConfirmCreateOrder" }

func (s *ConfirmCreateOrderStep) Execute(ctx context.Context, data *CreateOrderData) (string, error) {
	if err := s.orders.Confirm(ctx, data.OrderID); err != nil {
		return "", fmt.Errorf("confirm order: %w", err)
	}
	slog.InfoContext(ctx, "order creation confirmed", "order_id", data.OrderID)
	return data.OrderID, nil
}

func (s *ConfirmCreateOrderStep) HasCompensation() bool { return false }

func (s *ConfirmCreateOrderStep) Compensate(context.Context, *CreateOrderData) error {
	return nil
}
