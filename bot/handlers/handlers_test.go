package handlers

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	contractx "github.com/tanakritw/pizzabot/bot/contract"
	statex "github.com/tanakritw/pizzabot/bot/state"
)

type fakeTokens struct {
	token string
	err   error
}

func (f fakeTokens) Token(ctx context.Context) (string, error) {
	return f.token, f.err
}

type fakeGeocoder struct {
	point *contractx.Point
	err   error
}

func (f fakeGeocoder) Geocode(ctx context.Context, query string) (*contractx.Point, error) {
	return f.point, f.err
}

type addCall struct {
	cartID, productID string
	quantity          int
}

type fakeCommerce struct {
	products []contractx.Product
	item     contractx.Product
	cart     contractx.Cart
	stores   []contractx.Store

	adds      []addCall
	removed   []string
	addresses []contractx.Point
	customers []string

	catalogErr error
}

func (f *fakeCommerce) ListCatalog(ctx context.Context, token string) ([]contractx.Product, error) {
	if f.catalogErr != nil {
		return nil, f.catalogErr
	}
	return f.products, nil
}

func (f *fakeCommerce) GetItem(ctx context.Context, token, productID string) (contractx.Product, error) {
	if f.item.ID != productID {
		return contractx.Product{}, contractx.ErrNotFound
	}
	return f.item, nil
}

func (f *fakeCommerce) GetCart(ctx context.Context, token, cartID string) (contractx.Cart, error) {
	return f.cart, nil
}

func (f *fakeCommerce) AddToCart(ctx context.Context, token, cartID, productID string, quantity int) (contractx.Cart, error) {
	f.adds = append(f.adds, addCall{cartID: cartID, productID: productID, quantity: quantity})
	return f.cart, nil
}

func (f *fakeCommerce) RemoveFromCart(ctx context.Context, token, cartID, lineID string) (contractx.Cart, error) {
	f.removed = append(f.removed, lineID)
	return f.cart, nil
}

func (f *fakeCommerce) ListStores(ctx context.Context, token string) ([]contractx.Store, error) {
	return f.stores, nil
}

func (f *fakeCommerce) CreateAddressRecord(ctx context.Context, token string, location contractx.Point) (string, error) {
	f.addresses = append(f.addresses, location)
	return "addr-1", nil
}

func (f *fakeCommerce) CreateCustomer(ctx context.Context, token, name, email string) (string, error) {
	f.customers = append(f.customers, email)
	return "cust-1", nil
}

func testDeps(commerce *fakeCommerce, geo fakeGeocoder) Deps {
	return Deps{
		Commerce:   commerce,
		Tokens:     fakeTokens{token: "tok-1"},
		Geocoder:   geo,
		NewOrderID: func() string { return "order-1" },
	}
}

func session(st statex.State) *statex.Session {
	sess := statex.NewSession("chat-1", time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	sess.Current = st
	return sess
}

func buttonData(reply contractx.Reply) []string {
	var data []string
	for _, row := range reply.Buttons {
		for _, btn := range row {
			data = append(data, btn.Data)
		}
	}
	return data
}

func TestTableCoversEveryState(t *testing.T) {
	t.Parallel()

	table := Table(testDeps(&fakeCommerce{}, fakeGeocoder{}))
	for _, st := range statex.All() {
		if table[st] == nil {
			t.Fatalf("no handler for state %s", st)
		}
	}
}

func TestInitialShowsCatalog(t *testing.T) {
	t.Parallel()

	commerce := &fakeCommerce{products: []contractx.Product{
		{ID: "p1", Name: "Margherita"},
		{ID: "p2", Name: "Pepperoni"},
	}}
	deps := testDeps(commerce, fakeGeocoder{})

	result, err := deps.handleInitial(context.Background(), session(statex.StateInitial), contractx.Event{
		ChatID: "chat-1", Kind: contractx.EventText, Text: "/start",
	})
	if err != nil {
		t.Fatalf("handleInitial() error = %v", err)
	}

	if result.Next != statex.StateBrowsingCatalog {
		t.Fatalf("next = %q, want BROWSING_CATALOG", result.Next)
	}
	data := buttonData(result.Replies[0])
	want := []string{"item:p1", "item:p2", "cart"}
	if len(data) != len(want) {
		t.Fatalf("buttons = %v, want %v", data, want)
	}
	for i := range want {
		if data[i] != want[i] {
			t.Fatalf("buttons = %v, want %v", data, want)
		}
	}
}

func TestBrowsingItemSelectionStoresProduct(t *testing.T) {
	t.Parallel()

	commerce := &fakeCommerce{item: contractx.Product{
		ID: "p1", Name: "Margherita", Description: "classic", PriceFormatted: "420 RUB",
	}}
	deps := testDeps(commerce, fakeGeocoder{})
	sess := session(statex.StateBrowsingCatalog)

	result, err := deps.handleBrowsingCatalog(context.Background(), sess, contractx.Event{
		ChatID: "chat-1", Kind: contractx.EventCallback, Payload: "item:p1",
	})
	if err != nil {
		t.Fatalf("handleBrowsingCatalog() error = %v", err)
	}

	if result.Next != statex.StateViewingItem {
		t.Fatalf("next = %q, want VIEWING_ITEM", result.Next)
	}
	if got, ok := sess.ScratchString("product_id"); !ok || got != "p1" {
		t.Fatalf("scratch product_id = %q (%v)", got, ok)
	}
	if !strings.Contains(result.Replies[0].Text, "Margherita") {
		t.Fatalf("item reply missing name: %q", result.Replies[0].Text)
	}
}

func TestBrowsingTextIsReprompted(t *testing.T) {
	t.Parallel()

	deps := testDeps(&fakeCommerce{}, fakeGeocoder{})
	sess := session(statex.StateBrowsingCatalog)

	result, err := deps.handleBrowsingCatalog(context.Background(), sess, contractx.Event{
		ChatID: "chat-1", Kind: contractx.EventText, Text: "two pizzas please",
	})
	if err != nil {
		t.Fatalf("handleBrowsingCatalog() error = %v", err)
	}
	if result.Next != statex.StateBrowsingCatalog {
		t.Fatalf("next = %q, state must not change on bad input", result.Next)
	}
}

func TestAddToCartUsesQuantityOne(t *testing.T) {
	t.Parallel()

	commerce := &fakeCommerce{cart: contractx.Cart{
		Lines: []contractx.CartLine{{
			LineID: "line-1", ProductID: "p1", Name: "Margherita",
			Quantity: 1, TotalFormatted: "420 RUB",
		}},
		TotalFormatted: "420 RUB",
	}}
	deps := testDeps(commerce, fakeGeocoder{})

	result, err := deps.handleViewingItem(context.Background(), session(statex.StateViewingItem), contractx.Event{
		ChatID: "chat-1", Kind: contractx.EventCallback, Payload: "add:p1",
	})
	if err != nil {
		t.Fatalf("handleViewingItem() error = %v", err)
	}

	if len(commerce.adds) != 1 {
		t.Fatalf("adds = %d, want 1", len(commerce.adds))
	}
	call := commerce.adds[0]
	if call.cartID != "chat-1" || call.productID != "p1" || call.quantity != 1 {
		t.Fatalf("add call = %+v", call)
	}
	if result.Next != statex.StateViewingCart {
		t.Fatalf("next = %q, want VIEWING_CART", result.Next)
	}
	if result.Replies[0].Text != "Added to cart." {
		t.Fatalf("ack = %q", result.Replies[0].Text)
	}
}

func TestCartRemoveReRendersCart(t *testing.T) {
	t.Parallel()

	commerce := &fakeCommerce{cart: contractx.Cart{TotalFormatted: "0"}}
	deps := testDeps(commerce, fakeGeocoder{})

	result, err := deps.handleViewingCart(context.Background(), session(statex.StateViewingCart), contractx.Event{
		ChatID: "chat-1", Kind: contractx.EventCallback, Payload: "remove:line-1",
	})
	if err != nil {
		t.Fatalf("handleViewingCart() error = %v", err)
	}
	if len(commerce.removed) != 1 || commerce.removed[0] != "line-1" {
		t.Fatalf("removed = %v", commerce.removed)
	}
	if result.Next != statex.StateViewingCart {
		t.Fatalf("next = %q, want VIEWING_CART", result.Next)
	}
}

func TestCartPayAsksForAddress(t *testing.T) {
	t.Parallel()

	deps := testDeps(&fakeCommerce{}, fakeGeocoder{})
	result, err := deps.handleViewingCart(context.Background(), session(statex.StateViewingCart), contractx.Event{
		ChatID: "chat-1", Kind: contractx.EventCallback, Payload: "pay",
	})
	if err != nil {
		t.Fatalf("handleViewingCart() error = %v", err)
	}
	if result.Next != statex.StateAwaitingAddress {
		t.Fatalf("next = %q, want AWAITING_ADDRESS", result.Next)
	}
}

func nearbyStore() contractx.Store {
	return contractx.Store{
		ID:      "s1",
		Name:    "Downtown",
		Address: "1 Main St",
		Location: contractx.Point{
			Latitude:  55.75,
			Longitude: 37.61,
		},
		Channel: "courier-9",
	}
}

func TestAddressFromLocationQuotesDelivery(t *testing.T) {
	t.Parallel()

	commerce := &fakeCommerce{stores: []contractx.Store{nearbyStore()}}
	deps := testDeps(commerce, fakeGeocoder{})
	sess := session(statex.StateAwaitingAddress)

	// About 220 m north of the store: free delivery tier.
	result, err := deps.handleAwaitingAddress(context.Background(), sess, contractx.Event{
		ChatID: "chat-1",
		Kind:   contractx.EventLocation,
		Location: &contractx.Point{
			Latitude:  55.752,
			Longitude: 37.61,
		},
	})
	if err != nil {
		t.Fatalf("handleAwaitingAddress() error = %v", err)
	}

	if result.Next != statex.StateConfirmDelivery {
		t.Fatalf("next = %q, want CONFIRMING_DELIVERY", result.Next)
	}
	if got, ok := sess.ScratchString("store_id"); !ok || got != "s1" {
		t.Fatalf("scratch store_id = %q (%v)", got, ok)
	}
	if fee, ok := sess.ScratchInt("delivery_fee"); !ok || fee != 0 {
		t.Fatalf("scratch delivery_fee = %d (%v), want 0", fee, ok)
	}
	if offered, _ := sess.Scratch["delivery_offered"].(bool); !offered {
		t.Fatal("delivery_offered should be true near the store")
	}
	if !strings.Contains(result.Replies[0].Text, "1 Main St") {
		t.Fatalf("quote should name the store address: %q", result.Replies[0].Text)
	}
	data := buttonData(result.Replies[0])
	if len(data) != 2 || data[0] != "delivery" || data[1] != "pickup" {
		t.Fatalf("buttons = %v, want [delivery pickup]", data)
	}
}

func TestAddressGeocodeMissReprompts(t *testing.T) {
	t.Parallel()

	deps := testDeps(&fakeCommerce{stores: []contractx.Store{nearbyStore()}}, fakeGeocoder{point: nil})
	sess := session(statex.StateAwaitingAddress)

	result, err := deps.handleAwaitingAddress(context.Background(), sess, contractx.Event{
		ChatID: "chat-1", Kind: contractx.EventText, Text: "gibberish gibberish",
	})
	if err != nil {
		t.Fatalf("handleAwaitingAddress() error = %v", err)
	}
	if result.Next != statex.StateAwaitingAddress {
		t.Fatalf("next = %q, want re-prompt in place", result.Next)
	}
	if _, ok := sess.ScratchString("store_id"); ok {
		t.Fatal("scratch must stay untouched on a geocode miss")
	}
}

func TestFarAddressIsPickupOnly(t *testing.T) {
	t.Parallel()

	commerce := &fakeCommerce{stores: []contractx.Store{nearbyStore()}}
	deps := testDeps(commerce, fakeGeocoder{})
	sess := session(statex.StateAwaitingAddress)

	// Roughly 28 km north: out of courier range.
	result, err := deps.handleAwaitingAddress(context.Background(), sess, contractx.Event{
		ChatID: "chat-1",
		Kind:   contractx.EventLocation,
		Location: &contractx.Point{
			Latitude:  56.0,
			Longitude: 37.61,
		},
	})
	if err != nil {
		t.Fatalf("handleAwaitingAddress() error = %v", err)
	}

	if offered, _ := sess.Scratch["delivery_offered"].(bool); offered {
		t.Fatal("delivery_offered should be false out of range")
	}
	data := buttonData(result.Replies[0])
	if len(data) != 1 || data[0] != "pickup" {
		t.Fatalf("buttons = %v, want [pickup] only", data)
	}
}

func TestPickupRepliesWithStoreAddress(t *testing.T) {
	t.Parallel()

	deps := testDeps(&fakeCommerce{}, fakeGeocoder{})
	sess := session(statex.StateConfirmDelivery)
	sess.SetScratch("store_address", "1 Main St")

	result, err := deps.handleConfirmDelivery(context.Background(), sess, contractx.Event{
		ChatID: "chat-1", Kind: contractx.EventCallback, Payload: "pickup",
	})
	if err != nil {
		t.Fatalf("handleConfirmDelivery() error = %v", err)
	}
	if result.Next != statex.StateComplete {
		t.Fatalf("next = %q, want COMPLETE", result.Next)
	}
	if !strings.Contains(result.Replies[0].Text, "1 Main St") {
		t.Fatalf("pickup reply missing address: %q", result.Replies[0].Text)
	}
}

func TestDeliveryCreatesAddressRecordAndOrder(t *testing.T) {
	t.Parallel()

	commerce := &fakeCommerce{}
	deps := testDeps(commerce, fakeGeocoder{})
	sess := session(statex.StateConfirmDelivery)
	sess.SetScratch("latitude", 55.752)
	sess.SetScratch("longitude", 37.61)
	sess.SetScratch("delivery_fee", 100)
	sess.SetScratch("delivery_offered", true)

	result, err := deps.handleConfirmDelivery(context.Background(), sess, contractx.Event{
		ChatID: "chat-1", Kind: contractx.EventCallback, Payload: "delivery",
	})
	if err != nil {
		t.Fatalf("handleConfirmDelivery() error = %v", err)
	}

	if result.Next != statex.StateAwaitingPayment {
		t.Fatalf("next = %q, want AWAITING_PAYMENT_DETAILS", result.Next)
	}
	if len(commerce.addresses) != 1 {
		t.Fatalf("address records = %d, want 1", len(commerce.addresses))
	}
	if commerce.addresses[0].Latitude != 55.752 || commerce.addresses[0].Longitude != 37.61 {
		t.Fatalf("address record = %+v", commerce.addresses[0])
	}
	if got, ok := sess.ScratchString("order_id"); !ok || got != "order-1" {
		t.Fatalf("scratch order_id = %q (%v)", got, ok)
	}
	if !strings.Contains(result.Replies[0].Text, "order-1") ||
		!strings.Contains(result.Replies[0].Text, "delivery fee 100") {
		t.Fatalf("confirmation = %q", result.Replies[0].Text)
	}
}

func TestFreeDeliveryConfirmationSaysFree(t *testing.T) {
	t.Parallel()

	deps := testDeps(&fakeCommerce{}, fakeGeocoder{})
	sess := session(statex.StateConfirmDelivery)
	sess.SetScratch("latitude", 55.752)
	sess.SetScratch("longitude", 37.61)
	sess.SetScratch("delivery_fee", 0)
	sess.SetScratch("delivery_offered", true)

	result, err := deps.handleConfirmDelivery(context.Background(), sess, contractx.Event{
		ChatID: "chat-1", Kind: contractx.EventCallback, Payload: "delivery",
	})
	if err != nil {
		t.Fatalf("handleConfirmDelivery() error = %v", err)
	}
	if !strings.Contains(result.Replies[0].Text, "delivery is free") {
		t.Fatalf("confirmation = %q", result.Replies[0].Text)
	}
}

func TestStaleDeliveryTapOnPickupOnlyQuote(t *testing.T) {
	t.Parallel()

	commerce := &fakeCommerce{}
	deps := testDeps(commerce, fakeGeocoder{})
	sess := session(statex.StateConfirmDelivery)
	sess.SetScratch("delivery_offered", false)

	result, err := deps.handleConfirmDelivery(context.Background(), sess, contractx.Event{
		ChatID: "chat-1", Kind: contractx.EventCallback, Payload: "delivery",
	})
	if err != nil {
		t.Fatalf("handleConfirmDelivery() error = %v", err)
	}
	if result.Next != statex.StateConfirmDelivery {
		t.Fatalf("next = %q, stale tap must stay in place", result.Next)
	}
	if len(commerce.addresses) != 0 {
		t.Fatal("stale delivery tap must not create an address record")
	}
}

func TestPaymentRejectsNonEmail(t *testing.T) {
	t.Parallel()

	commerce := &fakeCommerce{}
	deps := testDeps(commerce, fakeGeocoder{})
	sess := session(statex.StateAwaitingPayment)

	result, err := deps.handleAwaitingPayment(context.Background(), sess, contractx.Event{
		ChatID: "chat-1", Kind: contractx.EventText, Text: "no thanks",
	})
	if err != nil {
		t.Fatalf("handleAwaitingPayment() error = %v", err)
	}
	if result.Next != statex.StateAwaitingPayment {
		t.Fatalf("next = %q, want re-prompt in place", result.Next)
	}
	if len(commerce.customers) != 0 {
		t.Fatal("no customer record for a rejected email")
	}
}

func TestPaymentAcceptsEmail(t *testing.T) {
	t.Parallel()

	commerce := &fakeCommerce{}
	deps := testDeps(commerce, fakeGeocoder{})
	sess := session(statex.StateAwaitingPayment)

	result, err := deps.handleAwaitingPayment(context.Background(), sess, contractx.Event{
		ChatID: "chat-1", Kind: contractx.EventText, Text: " a@b.example ",
	})
	if err != nil {
		t.Fatalf("handleAwaitingPayment() error = %v", err)
	}
	if result.Next != statex.StateComplete {
		t.Fatalf("next = %q, want COMPLETE", result.Next)
	}
	if len(commerce.customers) != 1 || commerce.customers[0] != "a@b.example" {
		t.Fatalf("customers = %v", commerce.customers)
	}
}

func TestCompleteRepromptsUntilReset(t *testing.T) {
	t.Parallel()

	deps := testDeps(&fakeCommerce{}, fakeGeocoder{})
	sess := session(statex.StateComplete)

	result, err := deps.handleComplete(context.Background(), sess, contractx.Event{
		ChatID: "chat-1", Kind: contractx.EventText, Text: "hello?",
	})
	if err != nil {
		t.Fatalf("handleComplete() error = %v", err)
	}
	if result.Next != statex.StateComplete {
		t.Fatalf("next = %q, want COMPLETE", result.Next)
	}
	if !strings.Contains(result.Replies[0].Text, "/start") {
		t.Fatalf("reply should point at /start: %q", result.Replies[0].Text)
	}
}

func TestCollaboratorErrorPropagates(t *testing.T) {
	t.Parallel()

	backendErr := errors.New("catalog backend down")
	deps := testDeps(&fakeCommerce{catalogErr: backendErr}, fakeGeocoder{})

	_, err := deps.handleInitial(context.Background(), session(statex.StateInitial), contractx.Event{
		ChatID: "chat-1", Kind: contractx.EventText, Text: "/start",
	})
	if !errors.Is(err, backendErr) {
		t.Fatalf("handleInitial() error = %v, want backend error surfaced to the engine", err)
	}
}
