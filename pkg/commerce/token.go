package commerce

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	contractx "github.com/tanakritw/pizzabot/bot/contract"
)

// Credentials identifies one token scope. The public (implicit grant) and
// privileged (client_credentials) identities of the same client id are
// distinct cache keys and must never be confused.
type Credentials struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
}

func (c Credentials) cacheKey() string {
	return c.TokenURL + "\x00" + c.ClientID + "\x00" + c.ClientSecret
}

// Token is one issued bearer token with its absolute expiry.
type Token struct {
	AccessToken string
	ExpiresAt   time.Time
}

// Authenticate performs the OAuth token exchange. Without a secret it uses
// the implicit grant, with one the client_credentials grant.
func (c *Client) Authenticate(ctx context.Context, creds Credentials) (Token, error) {
	form := url.Values{}
	form.Set("client_id", creds.ClientID)
	if creds.ClientSecret == "" {
		form.Set("grant_type", "implicit")
	} else {
		form.Set("client_secret", creds.ClientSecret)
		form.Set("grant_type", "client_credentials")
	}

	tokenURL := strings.TrimSpace(creds.TokenURL)
	if tokenURL == "" {
		tokenURL = c.baseURL + "/oauth/access_token"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Token{}, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Token{}, fmt.Errorf("%w: token exchange: %v", contractx.ErrTransient, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Token{}, fmt.Errorf("%w: read token response: %v", contractx.ErrTransient, err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return Token{}, fmt.Errorf("%w: token status=%d body=%s", contractx.ErrAuth, resp.StatusCode, string(raw))
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		Expires     int64  `json:"expires"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Token{}, fmt.Errorf("%w: decode token response: %v", contractx.ErrAuth, err)
	}
	if payload.AccessToken == "" {
		return Token{}, fmt.Errorf("%w: empty access token in response", contractx.ErrAuth)
	}

	return Token{
		AccessToken: payload.AccessToken,
		ExpiresAt:   time.Unix(payload.Expires, 0),
	}, nil
}

// AuthFunc is the exchange the cache falls back to on a miss or an expired
// entry.
type AuthFunc func(ctx context.Context, creds Credentials) (Token, error)

// TokenCacheOption customizes a TokenCache.
type TokenCacheOption func(*TokenCache)

// WithClock overrides the cache clock. Test hook.
func WithClock(now func() time.Time) TokenCacheOption {
	return func(c *TokenCache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithRefreshHook registers a callback invoked after every successful
// exchange. Used to feed the refresh counter.
func WithRefreshHook(hook func()) TokenCacheOption {
	return func(c *TokenCache) {
		c.onRefresh = hook
	}
}

// TokenCache memoizes bearer tokens per credential identity. A cached token
// is returned only while its expiry is strictly in the future; concurrent
// refreshes of the same identity collapse into one exchange.
type TokenCache struct {
	auth      AuthFunc
	now       func() time.Time
	onRefresh func()

	mu     sync.RWMutex
	tokens map[string]Token

	group singleflight.Group
}

func NewTokenCache(auth AuthFunc, opts ...TokenCacheOption) *TokenCache {
	cache := &TokenCache{
		auth:   auth,
		now:    time.Now,
		tokens: make(map[string]Token, 2),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cache)
		}
	}
	return cache
}

// Token returns a live token for creds, exchanging credentials only when no
// unexpired entry is cached. A failed exchange leaves the cache untouched.
func (c *TokenCache) Token(ctx context.Context, creds Credentials) (string, error) {
	key := creds.cacheKey()

	if token, ok := c.lookup(key); ok {
		return token.AccessToken, nil
	}

	result, err, _ := c.group.Do(key, func() (any, error) {
		// A caller that queued behind a finished refresh takes the fresh
		// entry instead of exchanging again.
		if token, ok := c.lookup(key); ok {
			return token.AccessToken, nil
		}

		token, err := c.auth(ctx, creds)
		if err != nil {
			return "", err
		}

		c.mu.Lock()
		c.tokens[key] = token
		c.mu.Unlock()

		if c.onRefresh != nil {
			c.onRefresh()
		}
		return token.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (c *TokenCache) lookup(key string) (Token, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	token, ok := c.tokens[key]
	if !ok || !c.now().Before(token.ExpiresAt) {
		return Token{}, false
	}
	return token, true
}

// Bind returns a TokenSource fixed to one credential identity.
func (c *TokenCache) Bind(creds Credentials) contractx.TokenSource {
	return boundTokenSource{cache: c, creds: creds}
}

type boundTokenSource struct {
	cache *TokenCache
	creds Credentials
}

func (b boundTokenSource) Token(ctx context.Context) (string, error) {
	return b.cache.Token(ctx, b.creds)
}
