package contract

// EventKind discriminates the three inbound payload shapes the chat
// transport can deliver.
type EventKind string

const (
	EventText     EventKind = "text"
	EventCallback EventKind = "callback"
	EventLocation EventKind = "location"
)

// Point is a WGS84 coordinate pair.
type Point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Event is one parsed inbound message. Exactly one of Text, Payload, or
// Location carries data, selected by Kind.
type Event struct {
	ChatID   string    `json:"chat_id"`
	Kind     EventKind `json:"kind"`
	Text     string    `json:"text,omitempty"`
	Payload  string    `json:"payload,omitempty"`
	Location *Point    `json:"location,omitempty"`
}

// Button is one tappable choice attached to a reply.
type Button struct {
	Label string `json:"label"`
	Data  string `json:"data"`
}

// Reply is one outbound message. Buttons are rendered row by row.
type Reply struct {
	Text    string     `json:"text"`
	Buttons [][]Button `json:"buttons,omitempty"`
}

// Product is a catalog item projection. Prices are display values owned by
// the commerce backend; the bot never does arithmetic on them.
type Product struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	PriceFormatted string `json:"price_formatted"`
}

// CartLine is one cart row. LineID is the cart-item id used for removal and
// is distinct from the product id.
type CartLine struct {
	LineID         string `json:"line_id"`
	ProductID      string `json:"product_id"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	Quantity       int    `json:"quantity"`
	TotalFormatted string `json:"total_formatted"`
}

// Cart is the read-only cart projection. An empty cart has zero lines and is
// not an error.
type Cart struct {
	Lines          []CartLine `json:"lines"`
	TotalFormatted string     `json:"total_formatted"`
}

// Store is one physical store location. Channel is the order-intake route
// delivery orders for this store are sent to.
type Store struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Address  string `json:"address"`
	Location Point  `json:"location"`
	Channel  string `json:"channel"`
}
