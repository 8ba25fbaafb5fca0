// Package delivery picks the nearest store for a customer position and
// derives the delivery fee tier. It holds no state and performs no I/O.
package delivery

import (
	"errors"
	"fmt"
	"math"

	contractx "github.com/tanakritw/pizzabot/bot/contract"
)

// Option is a fulfillment choice offered to the customer.
type Option string

const (
	OptionDelivery Option = "delivery"
	OptionPickup   Option = "pickup"
)

// Tier thresholds and fees are fixed business constants. Distances are in
// meters, fees in whole currency units.
const (
	freeRadiusMeters    = 500
	scooterRadiusMeters = 5000
	courierRadiusMeters = 20000

	scooterFee = 100
	courierFee = 300
)

var ErrNoStores = errors.New("no store locations available")

// Quote is the derived delivery offer for one customer position. It is never
// persisted beyond the session scratch.
type Quote struct {
	Store          contractx.Store
	DistanceMeters float64
	Fee            int
	Message        string
	Options        []Option
}

// DeliveryOffered reports whether the delivery option is part of the quote.
func (q Quote) DeliveryOffered() bool {
	for _, opt := range q.Options {
		if opt == OptionDelivery {
			return true
		}
	}
	return false
}

// Resolve scans every store, picks the one nearest to from (first minimal
// element on ties), and applies the tier policy.
func Resolve(from contractx.Point, stores []contractx.Store) (Quote, error) {
	nearest, distance, ok := Nearest(from, stores)
	if !ok {
		return Quote{}, ErrNoStores
	}

	q := Quote{
		Store:          nearest,
		DistanceMeters: distance,
	}

	switch {
	case distance < freeRadiusMeters:
		q.Fee = 0
		q.Options = []Option{OptionDelivery, OptionPickup}
		q.Message = fmt.Sprintf(
			"You could pick your order up from our store nearby. It is only %.0f meters away, at %s.\n\nOr we can deliver for free, it is no trouble at all.",
			distance, nearest.Address,
		)
	case distance < scooterRadiusMeters:
		q.Fee = scooterFee
		q.Options = []Option{OptionDelivery, OptionPickup}
		q.Message = fmt.Sprintf(
			"Looks like we will have to send a scooter your way. Delivery costs %d. Delivery or pickup?",
			scooterFee,
		)
	case distance < courierRadiusMeters:
		q.Fee = courierFee
		q.Options = []Option{OptionDelivery, OptionPickup}
		q.Message = fmt.Sprintf("Delivery will cost %d. Delivery or pickup?", courierFee)
	default:
		q.Fee = 0
		q.Options = []Option{OptionPickup}
		q.Message = fmt.Sprintf(
			"Sorry, we do not deliver that far. The closest store is %.1f km away from you, pickup only.",
			distance/1000,
		)
	}

	return q, nil
}

// Nearest returns the store with the minimum great-circle distance to from.
// A linear scan is deliberate: the store set is tens of entries at most.
func Nearest(from contractx.Point, stores []contractx.Store) (contractx.Store, float64, bool) {
	if len(stores) == 0 {
		return contractx.Store{}, 0, false
	}

	best := stores[0]
	bestDistance := DistanceMeters(from, stores[0].Location)
	for _, store := range stores[1:] {
		if d := DistanceMeters(from, store.Location); d < bestDistance {
			best = store
			bestDistance = d
		}
	}
	return best, bestDistance, true
}

const earthRadiusMeters = 6371000

// DistanceMeters computes the haversine great-circle distance between two
// coordinates.
func DistanceMeters(a, b contractx.Point) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}
