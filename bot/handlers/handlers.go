// Package handlers binds each dialog state to its handler. A handler
// consumes one inbound event plus the session scratch and produces replies
// and the next state; the engine owns loading and saving the session.
package handlers

import (
	"github.com/google/uuid"

	contractx "github.com/tanakritw/pizzabot/bot/contract"
	"github.com/tanakritw/pizzabot/bot/engine"
	"github.com/tanakritw/pizzabot/bot/reminder"
	statex "github.com/tanakritw/pizzabot/bot/state"
)

// Scratch keys carried between states.
const (
	scratchProductID    = "product_id"
	scratchLatitude     = "latitude"
	scratchLongitude    = "longitude"
	scratchStoreID      = "store_id"
	scratchStoreAddress = "store_address"
	scratchStoreChannel = "store_channel"
	scratchDeliveryFee  = "delivery_fee"
	scratchDistance     = "distance_m"
	scratchOrderID      = "order_id"
)

// Deps are the collaborators handlers call. NewOrderID is overridable for
// deterministic tests.
type Deps struct {
	Commerce   contractx.Commerce
	Tokens     contractx.TokenSource
	Geocoder   contractx.Geocoder
	Reminders  *reminder.Scheduler
	NewOrderID func() string
}

func (d Deps) orderID() string {
	if d.NewOrderID != nil {
		return d.NewOrderID()
	}
	return uuid.NewString()
}

// Table builds the full state-to-handler mapping. The engine rejects a table
// that does not cover every known state, so adding a state without a handler
// fails at startup.
func Table(deps Deps) map[statex.State]engine.Handler {
	return map[statex.State]engine.Handler{
		statex.StateInitial:         deps.handleInitial,
		statex.StateBrowsingCatalog: deps.handleBrowsingCatalog,
		statex.StateViewingItem:     deps.handleViewingItem,
		statex.StateViewingCart:     deps.handleViewingCart,
		statex.StateAwaitingAddress: deps.handleAwaitingAddress,
		statex.StateConfirmDelivery: deps.handleConfirmDelivery,
		statex.StateAwaitingPayment: deps.handleAwaitingPayment,
		statex.StateComplete:        deps.handleComplete,
	}
}

func reprompt(current statex.State, text string) engine.Result {
	return engine.Result{
		Replies: []contractx.Reply{{Text: text}},
		Next:    current,
	}
}
