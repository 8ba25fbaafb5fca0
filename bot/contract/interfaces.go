package contract

import "context"

// Commerce is the narrow surface of the commerce backend the bot consumes.
// Every call takes a bearer token obtained from a TokenSource.
type Commerce interface {
	ListCatalog(ctx context.Context, token string) ([]Product, error)
	GetItem(ctx context.Context, token, productID string) (Product, error)
	GetCart(ctx context.Context, token, cartID string) (Cart, error)
	AddToCart(ctx context.Context, token, cartID, productID string, quantity int) (Cart, error)
	RemoveFromCart(ctx context.Context, token, cartID, lineID string) (Cart, error)
	ListStores(ctx context.Context, token string) ([]Store, error)
	CreateAddressRecord(ctx context.Context, token string, location Point) (string, error)
	CreateCustomer(ctx context.Context, token, name, email string) (string, error)
}

// TokenSource yields a live bearer token for one credential identity.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Geocoder resolves a free-text address to coordinates. A query that matches
// nothing returns (nil, nil).
type Geocoder interface {
	Geocode(ctx context.Context, query string) (*Point, error)
}

// Notifier delivers an out-of-band message to a chat, outside the
// request/reply cycle of an inbound event.
type Notifier interface {
	Notify(ctx context.Context, chatID, text string) error
}
