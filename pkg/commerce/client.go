// Package commerce is the HTTP client for the Elastic Path style commerce
// backend: catalog, carts, customers, and store locations, plus the bearer
// token exchange and its cache.
package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	contractx "github.com/tanakritw/pizzabot/bot/contract"
)

type Config struct {
	BaseURL      string        `envconfig:"BASE_URL" split_words:"true" default:"https://api.moltin.com"`
	ClientID     string        `envconfig:"CLIENT_ID" split_words:"true" required:"true"`
	ClientSecret string        `envconfig:"CLIENT_SECRET" split_words:"true"`
	Timeout      time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`

	// Flow slugs for the two custom record collections the bot touches.
	StoresFlow  string `envconfig:"STORES_FLOW" split_words:"true" default:"pizzeria"`
	AddressFlow string `envconfig:"ADDRESS_FLOW" split_words:"true" default:"customer_address"`
}

type Client struct {
	baseURL     string
	httpClient  *http.Client
	storesFlow  string
	addressFlow string
}

var _ contractx.Commerce = (*Client)(nil)

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("commerce base url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid commerce url: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	storesFlow := strings.TrimSpace(cfg.StoresFlow)
	if storesFlow == "" {
		storesFlow = "pizzeria"
	}
	addressFlow := strings.TrimSpace(cfg.AddressFlow)
	if addressFlow == "" {
		addressFlow = "customer_address"
	}

	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		storesFlow:  storesFlow,
		addressFlow: addressFlow,
	}, nil
}

func MustNew(cfg Config) *Client {
	client, err := NewClient(cfg)
	if err != nil {
		panic(err)
	}
	return client
}

/* ------------------------------ wire types ------------------------------ */

type productPayload struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       []struct {
		Amount   int    `json:"amount"`
		Currency string `json:"currency"`
	} `json:"price"`
	Meta struct {
		DisplayPrice struct {
			WithTax struct {
				Formatted string `json:"formatted"`
			} `json:"with_tax"`
		} `json:"display_price"`
	} `json:"meta"`
}

func (p productPayload) toProduct() contractx.Product {
	formatted := p.Meta.DisplayPrice.WithTax.Formatted
	if formatted == "" && len(p.Price) > 0 {
		formatted = strconv.Itoa(p.Price[0].Amount)
	}
	return contractx.Product{
		ID:             p.ID,
		Name:           p.Name,
		Description:    p.Description,
		PriceFormatted: formatted,
	}
}

type cartItemPayload struct {
	ID          string `json:"id"`
	ProductID   string `json:"product_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Quantity    int    `json:"quantity"`
	Meta        struct {
		DisplayPrice struct {
			WithTax struct {
				Value struct {
					Formatted string `json:"formatted"`
				} `json:"value"`
			} `json:"with_tax"`
		} `json:"display_price"`
	} `json:"meta"`
}

type cartItemsPayload struct {
	Data []cartItemPayload `json:"data"`
	Meta struct {
		DisplayPrice struct {
			WithTax struct {
				Formatted string `json:"formatted"`
			} `json:"with_tax"`
		} `json:"display_price"`
	} `json:"meta"`
}

func (p cartItemsPayload) toCart() contractx.Cart {
	cart := contractx.Cart{
		Lines:          make([]contractx.CartLine, 0, len(p.Data)),
		TotalFormatted: p.Meta.DisplayPrice.WithTax.Formatted,
	}
	for _, item := range p.Data {
		cart.Lines = append(cart.Lines, contractx.CartLine{
			LineID:         item.ID,
			ProductID:      item.ProductID,
			Name:           item.Name,
			Description:    item.Description,
			Quantity:       item.Quantity,
			TotalFormatted: item.Meta.DisplayPrice.WithTax.Value.Formatted,
		})
	}
	return cart
}

type storeEntryPayload struct {
	ID        string  `json:"id"`
	Alias     string  `json:"alias"`
	Address   string  `json:"address"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	CourierID string  `json:"courier_id"`
}

/* ------------------------------ operations ------------------------------ */

func (c *Client) ListCatalog(ctx context.Context, token string) ([]contractx.Product, error) {
	var payload struct {
		Data []productPayload `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/v2/products", token, nil, &payload); err != nil {
		return nil, err
	}

	products := make([]contractx.Product, 0, len(payload.Data))
	for _, p := range payload.Data {
		products = append(products, p.toProduct())
	}
	return products, nil
}

func (c *Client) GetItem(ctx context.Context, token, productID string) (contractx.Product, error) {
	var payload struct {
		Data productPayload `json:"data"`
	}
	path := "/v2/products/" + url.PathEscape(productID)
	if err := c.do(ctx, http.MethodGet, path, token, nil, &payload); err != nil {
		return contractx.Product{}, err
	}
	return payload.Data.toProduct(), nil
}

// GetCart returns the cart's line items. A cart the backend has never seen
// comes back as zero lines, never as an error.
func (c *Client) GetCart(ctx context.Context, token, cartID string) (contractx.Cart, error) {
	var payload cartItemsPayload
	path := "/v2/carts/" + url.PathEscape(cartID) + "/items"
	if err := c.do(ctx, http.MethodGet, path, token, nil, &payload); err != nil {
		if errors.Is(err, contractx.ErrNotFound) {
			return contractx.Cart{}, nil
		}
		return contractx.Cart{}, err
	}
	return payload.toCart(), nil
}

func (c *Client) AddToCart(ctx context.Context, token, cartID, productID string, quantity int) (contractx.Cart, error) {
	body := map[string]any{
		"data": map[string]any{
			"id":       productID,
			"type":     "cart_item",
			"quantity": quantity,
		},
	}

	var payload cartItemsPayload
	path := "/v2/carts/" + url.PathEscape(cartID) + "/items"
	if err := c.do(ctx, http.MethodPost, path, token, body, &payload); err != nil {
		return contractx.Cart{}, err
	}
	return payload.toCart(), nil
}

// RemoveFromCart deletes one cart line. Removing a line that is already gone
// is a no-op: the current cart is returned unchanged.
func (c *Client) RemoveFromCart(ctx context.Context, token, cartID, lineID string) (contractx.Cart, error) {
	var payload cartItemsPayload
	path := "/v2/carts/" + url.PathEscape(cartID) + "/items/" + url.PathEscape(lineID)
	if err := c.do(ctx, http.MethodDelete, path, token, nil, &payload); err != nil {
		if errors.Is(err, contractx.ErrNotFound) {
			return c.GetCart(ctx, token, cartID)
		}
		return contractx.Cart{}, err
	}
	return payload.toCart(), nil
}

func (c *Client) ListStores(ctx context.Context, token string) ([]contractx.Store, error) {
	var payload struct {
		Data []storeEntryPayload `json:"data"`
	}
	path := "/v2/flows/" + url.PathEscape(c.storesFlow) + "/entries"
	if err := c.do(ctx, http.MethodGet, path, token, nil, &payload); err != nil {
		return nil, err
	}

	stores := make([]contractx.Store, 0, len(payload.Data))
	for _, entry := range payload.Data {
		stores = append(stores, contractx.Store{
			ID:      entry.ID,
			Name:    entry.Alias,
			Address: entry.Address,
			Location: contractx.Point{
				Latitude:  entry.Latitude,
				Longitude: entry.Longitude,
			},
			Channel: entry.CourierID,
		})
	}
	return stores, nil
}

// CreateAddressRecord stores the customer's resolved coordinates as a flow
// entry and returns the new entry id.
func (c *Client) CreateAddressRecord(ctx context.Context, token string, location contractx.Point) (string, error) {
	body := map[string]any{
		"data": map[string]any{
			"type":      "entry",
			"latitude":  location.Latitude,
			"longitude": location.Longitude,
		},
	}

	var payload struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	path := "/v2/flows/" + url.PathEscape(c.addressFlow) + "/entries"
	if err := c.do(ctx, http.MethodPost, path, token, body, &payload); err != nil {
		return "", err
	}
	return payload.Data.ID, nil
}

func (c *Client) CreateCustomer(ctx context.Context, token, name, email string) (string, error) {
	body := map[string]any{
		"data": map[string]any{
			"type":  "customer",
			"name":  name,
			"email": email,
		},
	}

	var payload struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, "/v2/customers", token, body, &payload); err != nil {
		return "", err
	}
	return payload.Data.ID, nil
}

/* ------------------------------- plumbing ------------------------------- */

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build commerce request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", contractx.ErrTransient, method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("%w: read commerce response: %v", contractx.ErrTransient, err)
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("%w: commerce status=%d path=%s", contractx.ErrTransient, resp.StatusCode, path)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: path=%s", contractx.ErrNotFound, path)
	case resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices:
		return fmt.Errorf("commerce status=%d path=%s body=%s", resp.StatusCode, path, string(raw))
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode commerce response: %w", err)
	}
	return nil
}
