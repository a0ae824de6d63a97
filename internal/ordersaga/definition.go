package ordersaga

import (
	"github.com/mvaldes/food-ordering-sagas/internal/collaborator"
	"github.com/mvaldes/food-ordering-sagas/internal/saga"
)

// SagaType identifies the order-creation saga in the registry and in
// persisted instances.
const SagaType = "CreateOrderSaga"

// Definition orders the four steps of the order-creation saga.
type Definition struct {
	steps []saga.Step[CreateOrderData]
}

func NewDefinition(
	orders collaborator.OrderService,
	kitchen collaborator.KitchenService,
	accounting collaborator.AccountingService,
) *Definition {
	return &Definition{
		steps: []saga.Step[CreateOrderData]{
			NewValidateOrderStep(orders),
			NewCreateTicketStep(kitchen),
			NewAuthorizeCardStep(accounting),
			NewConfirmCreateOrderStep(orders),
		},
	}
}

var _ saga.Definition[CreateOrderData] = (*Definition)(nil)

func (d *Definition) SagaType() string { return SagaType }

func (d *Definition) Steps() []saga.Step[CreateOrderData] { return d.steps }
