package handlers

import (
	"context"
	"strings"

	contractx "github.com/tanakritw/pizzabot/bot/contract"
	"github.com/tanakritw/pizzabot/bot/engine"
	statex "github.com/tanakritw/pizzabot/bot/state"
)

// handleInitial greets any first contact with the catalog, whatever the
// event looks like.
func (d Deps) handleInitial(ctx context.Context, sess *statex.Session, ev contractx.Event) (engine.Result, error) {
	return d.showCatalog(ctx)
}

func (d Deps) handleBrowsingCatalog(ctx context.Context, sess *statex.Session, ev contractx.Event) (engine.Result, error) {
	if ev.Kind != contractx.EventCallback {
		return reprompt(sess.Current, "Please pick an item from the menu."), nil
	}

	switch {
	case ev.Payload == "cart":
		return d.showCart(ctx, sess.ChatID)
	case strings.HasPrefix(ev.Payload, "item:"):
		productID := strings.TrimPrefix(ev.Payload, "item:")
		token, err := d.Tokens.Token(ctx)
		if err != nil {
			return engine.Result{}, err
		}
		product, err := d.Commerce.GetItem(ctx, token, productID)
		if err != nil {
			return engine.Result{}, err
		}
		sess.SetScratch(scratchProductID, product.ID)
		return engine.Result{
			Replies: []contractx.Reply{itemReply(product)},
			Next:    statex.StateViewingItem,
		}, nil
	default:
		return reprompt(sess.Current, "Please pick an item from the menu."), nil
	}
}

func (d Deps) handleViewingItem(ctx context.Context, sess *statex.Session, ev contractx.Event) (engine.Result, error) {
	if ev.Kind != contractx.EventCallback {
		return reprompt(sess.Current, "Please use the buttons under the item."), nil
	}

	switch {
	case ev.Payload == "back":
		return d.showCatalog(ctx)
	case ev.Payload == "cart":
		return d.showCart(ctx, sess.ChatID)
	case strings.HasPrefix(ev.Payload, "add:"):
		productID := strings.TrimPrefix(ev.Payload, "add:")
		token, err := d.Tokens.Token(ctx)
		if err != nil {
			return engine.Result{}, err
		}
		cart, err := d.Commerce.AddToCart(ctx, token, sess.ChatID, productID, 1)
		if err != nil {
			return engine.Result{}, err
		}
		return engine.Result{
			Replies: []contractx.Reply{
				{Text: "Added to cart."},
				cartReply(cart),
			},
			Next: statex.StateViewingCart,
		}, nil
	default:
		return reprompt(sess.Current, "Please use the buttons under the item."), nil
	}
}

func (d Deps) showCatalog(ctx context.Context) (engine.Result, error) {
	token, err := d.Tokens.Token(ctx)
	if err != nil {
		return engine.Result{}, err
	}
	products, err := d.Commerce.ListCatalog(ctx, token)
	if err != nil {
		return engine.Result{}, err
	}
	return engine.Result{
		Replies: []contractx.Reply{catalogReply(products)},
		Next:    statex.StateBrowsingCatalog,
	}, nil
}

func (d Deps) showCart(ctx context.Context, chatID string) (engine.Result, error) {
	token, err := d.Tokens.Token(ctx)
	if err != nil {
		return engine.Result{}, err
	}
	cart, err := d.Commerce.GetCart(ctx, token, chatID)
	if err != nil {
		return engine.Result{}, err
	}
	return engine.Result{
		Replies: []contractx.Reply{cartReply(cart)},
		Next:    statex.StateViewingCart,
	}, nil
}
