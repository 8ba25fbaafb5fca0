package handlers

import (
	"context"
	"fmt"
	"strings"

	contractx "github.com/tanakritw/pizzabot/bot/contract"
	deliveryx "github.com/tanakritw/pizzabot/bot/delivery"
	"github.com/tanakritw/pizzabot/bot/engine"
	statex "github.com/tanakritw/pizzabot/bot/state"
)

const scratchDeliveryOffered = "delivery_offered"

const reminderText = "Enjoy your meal! If your order has not arrived yet, reply here and we will sort it out."

// handleAwaitingAddress turns a shared location or a free-text address into
// coordinates, resolves the nearest store, and presents the delivery quote.
func (d Deps) handleAwaitingAddress(ctx context.Context, sess *statex.Session, ev contractx.Event) (engine.Result, error) {
	var point *contractx.Point
	switch ev.Kind {
	case contractx.EventLocation:
		point = ev.Location
	case contractx.EventText:
		resolved, err := d.Geocoder.Geocode(ctx, ev.Text)
		if err != nil {
			return engine.Result{}, err
		}
		point = resolved
	default:
		return reprompt(sess.Current, "Send your address as text, or share your location."), nil
	}

	if point == nil {
		return reprompt(sess.Current, "Could not work out that address. Please try again."), nil
	}

	token, err := d.Tokens.Token(ctx)
	if err != nil {
		return engine.Result{}, err
	}
	stores, err := d.Commerce.ListStores(ctx, token)
	if err != nil {
		return engine.Result{}, err
	}

	quote, err := deliveryx.Resolve(*point, stores)
	if err != nil {
		return engine.Result{}, err
	}

	sess.SetScratch(scratchLatitude, point.Latitude)
	sess.SetScratch(scratchLongitude, point.Longitude)
	sess.SetScratch(scratchStoreID, quote.Store.ID)
	sess.SetScratch(scratchStoreAddress, quote.Store.Address)
	sess.SetScratch(scratchStoreChannel, quote.Store.Channel)
	sess.SetScratch(scratchDeliveryFee, quote.Fee)
	sess.SetScratch(scratchDistance, quote.DistanceMeters)
	sess.SetScratch(scratchDeliveryOffered, quote.DeliveryOffered())

	rows := make([][]contractx.Button, 0, len(quote.Options))
	for _, opt := range quote.Options {
		switch opt {
		case deliveryx.OptionDelivery:
			rows = append(rows, []contractx.Button{{Label: "Delivery", Data: "delivery"}})
		case deliveryx.OptionPickup:
			rows = append(rows, []contractx.Button{{Label: "Pickup", Data: "pickup"}})
		}
	}

	return engine.Result{
		Replies: []contractx.Reply{{Text: quote.Message, Buttons: rows}},
		Next:    statex.StateConfirmDelivery,
	}, nil
}

func (d Deps) handleConfirmDelivery(ctx context.Context, sess *statex.Session, ev contractx.Event) (engine.Result, error) {
	if ev.Kind != contractx.EventCallback {
		return reprompt(sess.Current, "Delivery or pickup? Use the buttons."), nil
	}

	switch ev.Payload {
	case "pickup":
		address, _ := sess.ScratchString(scratchStoreAddress)
		return engine.Result{
			Replies: []contractx.Reply{{
				Text: fmt.Sprintf("Your order will be waiting for you at:\n%s\nSee you at the store!", address),
			}},
			Next: statex.StateComplete,
		}, nil
	case "delivery":
		// A stale button from a quote that ended up pickup-only is tolerated
		// and re-prompted, not failed.
		if offered, ok := sess.Scratch[scratchDeliveryOffered].(bool); !ok || !offered {
			return reprompt(sess.Current, "We cannot deliver that far, pickup only. Use the buttons."), nil
		}
		return d.confirmDelivery(ctx, sess)
	default:
		return reprompt(sess.Current, "Delivery or pickup? Use the buttons."), nil
	}
}

func (d Deps) confirmDelivery(ctx context.Context, sess *statex.Session) (engine.Result, error) {
	lat, _ := sess.ScratchFloat(scratchLatitude)
	lon, _ := sess.ScratchFloat(scratchLongitude)

	token, err := d.Tokens.Token(ctx)
	if err != nil {
		return engine.Result{}, err
	}
	if _, err := d.Commerce.CreateAddressRecord(ctx, token, contractx.Point{Latitude: lat, Longitude: lon}); err != nil {
		return engine.Result{}, err
	}

	orderID := d.orderID()
	sess.SetScratch(scratchOrderID, orderID)

	if d.Reminders != nil {
		d.Reminders.Schedule(sess.ChatID, reminderText)
	}

	fee, _ := sess.ScratchInt(scratchDeliveryFee)
	text := fmt.Sprintf("We are on it! Your order is %s, delivery fee %d.\nNow send us your email for the receipt.", orderID, fee)
	if fee == 0 {
		text = fmt.Sprintf("We are on it! Your order is %s, delivery is free.\nNow send us your email for the receipt.", orderID)
	}

	return engine.Result{
		Replies: []contractx.Reply{{Text: text}},
		Next:    statex.StateAwaitingPayment,
	}, nil
}

func (d Deps) handleAwaitingPayment(ctx context.Context, sess *statex.Session, ev contractx.Event) (engine.Result, error) {
	if ev.Kind != contractx.EventText {
		return reprompt(sess.Current, "Please send your email as plain text."), nil
	}

	email := strings.TrimSpace(ev.Text)
	if !strings.Contains(email, "@") {
		return reprompt(sess.Current, "That does not look like an email. Please try again."), nil
	}

	token, err := d.Tokens.Token(ctx)
	if err != nil {
		return engine.Result{}, err
	}
	if _, err := d.Commerce.CreateCustomer(ctx, token, sess.ChatID, email); err != nil {
		return engine.Result{}, err
	}

	return engine.Result{
		Replies: []contractx.Reply{{
			Text: fmt.Sprintf("Thank you! The receipt goes to %s. Your order is on its way.", email),
		}},
		Next: statex.StateComplete,
	}, nil
}

func (d Deps) handleComplete(ctx context.Context, sess *statex.Session, ev contractx.Event) (engine.Result, error) {
	return reprompt(sess.Current, "Your order is in progress. Send /start to begin a new one."), nil
}
