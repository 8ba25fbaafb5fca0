package handlers

import (
	"context"
	"strings"

	contractx "github.com/tanakritw/pizzabot/bot/contract"
	"github.com/tanakritw/pizzabot/bot/engine"
	statex "github.com/tanakritw/pizzabot/bot/state"
)

func (d Deps) handleViewingCart(ctx context.Context, sess *statex.Session, ev contractx.Event) (engine.Result, error) {
	if ev.Kind != contractx.EventCallback {
		return reprompt(sess.Current, "Please use the cart buttons."), nil
	}

	switch {
	case ev.Payload == "menu" || ev.Payload == "back":
		return d.showCatalog(ctx)
	case ev.Payload == "cart":
		return d.showCart(ctx, sess.ChatID)
	case ev.Payload == "pay":
		return engine.Result{
			Replies: []contractx.Reply{
				{Text: "Good. Send us your address as text, or share your location."},
			},
			Next: statex.StateAwaitingAddress,
		}, nil
	case strings.HasPrefix(ev.Payload, "remove:"):
		lineID := strings.TrimPrefix(ev.Payload, "remove:")
		token, err := d.Tokens.Token(ctx)
		if err != nil {
			return engine.Result{}, err
		}
		// Removing an already-removed line is a no-op in the client, so a
		// stale button tap just re-renders the current cart.
		cart, err := d.Commerce.RemoveFromCart(ctx, token, sess.ChatID, lineID)
		if err != nil {
			return engine.Result{}, err
		}
		return engine.Result{
			Replies: []contractx.Reply{cartReply(cart)},
			Next:    statex.StateViewingCart,
		}, nil
	default:
		return reprompt(sess.Current, "Please use the cart buttons."), nil
	}
}
