// Package platform is the HTTP client for the remote service: identity
// endpoints, the one-time-code API, and page fetches used for marker probing.
// All requests flow through one rate limiter and rotate user agents.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/redforge/redauth/internal/pacing"
	"github.com/redforge/redauth/token"
)

// ErrNotAuthenticated is returned by WhoAmI when every identity endpoint
// rejects the session.
var ErrNotAuthenticated = errors.New("platform rejected session")

// ErrRequestRejected is returned when the platform answers a code API call
// with a non-success payload.
var ErrRequestRejected = errors.New("platform rejected request")

// Config addresses the platform.
type Config struct {
	// BaseURL is the public site origin.
	BaseURL string
	// LoginURL is the page the login surface navigates to.
	LoginURL string
	// APIBase is the API origin for the one-time-code endpoints.
	APIBase string
	// WhoAmIURLs are identity endpoints tried in order.
	WhoAmIURLs []string
	// RequestTimeout bounds each request.
	RequestTimeout time.Duration
	// RateEvery is the minimum spacing between requests; Burst allows short
	// clusters.
	RateEvery time.Duration
	Burst     int
}

// Identity is the user info an identity endpoint reports.
type Identity struct {
	Nickname string
	Avatar   string
}

type apiEnvelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    struct {
		Nickname string `json:"nickname"`
		Avatar   string `json:"avatar"`
	} `json:"data"`
}

// Client talks to the platform. Safe for concurrent use.
type Client struct {
	cfg     Config
	http    *http.Client
	pacer   *pacing.Pacer
	limiter *rate.Limiter
	log     *zap.Logger

	mu      sync.Mutex
	jar     *cookiejar.Jar
	applied []string
}

// New creates a Client. A nil base client uses http.DefaultTransport; the
// cookie jar is always replaced so session tokens stay under Client control.
func New(cfg Config, base *http.Client, pacer *pacing.Pacer, log *zap.Logger) (*Client, error) {
	if log == nil {
		log = zap.NewNop()
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	hc := &http.Client{Timeout: cfg.RequestTimeout}
	if base != nil {
		hc.Transport = base.Transport
	}
	hc.Jar = jar
	every := cfg.RateEvery
	if every <= 0 {
		every = 200 * time.Millisecond
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 3
	}
	return &Client{
		cfg:     cfg,
		http:    hc,
		jar:     jar,
		pacer:   pacer,
		limiter: rate.NewLimiter(rate.Every(every), burst),
		log:     log,
	}, nil
}

// ApplyTokens installs a raw session token string into the cookie jar for the
// platform origins, replacing whatever was there.
func (c *Client) ApplyTokens(raw string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.expireApplied()
	fields := token.Parse(raw)
	cookies := make([]*http.Cookie, 0, len(fields))
	names := make([]string, 0, len(fields))
	for name, value := range fields {
		cookies = append(cookies, &http.Cookie{Name: name, Value: value, Path: "/"})
		names = append(names, name)
	}
	c.setEverywhere(cookies)
	c.applied = names
	return nil
}

// ClearTokens drops every cookie a previous ApplyTokens installed.
func (c *Client) ClearTokens() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expireApplied()
	return nil
}

func (c *Client) expireApplied() {
	if len(c.applied) == 0 {
		return
	}
	expired := make([]*http.Cookie, 0, len(c.applied))
	for _, name := range c.applied {
		expired = append(expired, &http.Cookie{Name: name, Path: "/", MaxAge: -1})
	}
	c.setEverywhere(expired)
	c.applied = nil
}

func (c *Client) setEverywhere(cookies []*http.Cookie) {
	for _, origin := range c.origins() {
		u, err := url.Parse(origin)
		if err != nil {
			continue
		}
		c.jar.SetCookies(u, cookies)
	}
}

// CurrentTokens serializes the jar's cookies for the base origin back into
// the raw "name=value; ..." form the store persists.
func (c *Client) CurrentTokens() string {
	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return ""
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var parts []string
	for _, ck := range c.jar.Cookies(u) {
		parts = append(parts, ck.Name+"="+ck.Value)
	}
	return strings.Join(parts, "; ")
}

func (c *Client) origins() []string {
	seen := map[string]bool{}
	var out []string
	for _, raw := range append([]string{c.cfg.BaseURL, c.cfg.APIBase, c.cfg.LoginURL}, c.cfg.WhoAmIURLs...) {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			continue
		}
		origin := u.Scheme + "://" + u.Host
		if !seen[origin] {
			seen[origin] = true
			out = append(out, origin)
		}
	}
	return out
}

func (c *Client) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.pacer.UserAgent())
	req.Header.Set("Referer", c.cfg.LoginURL)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	return c.http.Do(req)
}

// WhoAmI asks the identity endpoints, in order, who the current session
// belongs to. The first authenticated answer wins; if every endpoint rejects
// or fails, ErrNotAuthenticated is returned wrapped with the last failure.
func (c *Client) WhoAmI(ctx context.Context) (Identity, error) {
	var lastErr error
	for _, endpoint := range c.cfg.WhoAmIURLs {
		id, err := c.whoAmIAt(ctx, endpoint)
		if err == nil {
			return id, nil
		}
		if ctx.Err() != nil {
			return Identity{}, ctx.Err()
		}
		lastErr = err
		c.log.Debug("identity endpoint failed", zap.String("endpoint", endpoint), zap.Error(err))
	}
	if lastErr == nil {
		lastErr = errors.New("no identity endpoints configured")
	}
	return Identity{}, fmt.Errorf("%w: %w", ErrNotAuthenticated, lastErr)
}

func (c *Client) whoAmIAt(ctx context.Context, endpoint string) (Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Identity{}, err
	}
	resp, err := c.do(ctx, req)
	if err != nil {
		return Identity{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Identity{}, fmt.Errorf("identity endpoint status %d", resp.StatusCode)
	}
	var env apiEnvelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&env); err != nil {
		return Identity{}, err
	}
	if !env.Success {
		return Identity{}, fmt.Errorf("identity endpoint refused: %s", env.Message)
	}
	return Identity{Nickname: env.Data.Nickname, Avatar: env.Data.Avatar}, nil
}

// SendCode asks the platform to send a one-time code to phone.
func (c *Client) SendCode(ctx context.Context, phone string) error {
	return c.postAPI(ctx, "/api/sns/web/v1/login/send_code", map[string]string{
		"phone": phone,
		"type":  "login",
	}, nil)
}

// VerifyCode exchanges phone and code for a session. On success the platform
// sets session cookies on the jar; the caller reads them via CurrentTokens.
func (c *Client) VerifyCode(ctx context.Context, phone, code string) (Identity, error) {
	var env apiEnvelope
	err := c.postAPI(ctx, "/api/sns/web/v1/login/sms", map[string]string{
		"phone": phone,
		"code":  code,
		"type":  "sms",
	}, &env)
	if err != nil {
		return Identity{}, err
	}
	return Identity{Nickname: env.Data.Nickname, Avatar: env.Data.Avatar}, nil
}

func (c *Client) postAPI(ctx context.Context, path string, body map[string]string, out *apiEnvelope) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIBase+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrRequestRejected, resp.StatusCode)
	}
	var env apiEnvelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&env); err != nil {
		return err
	}
	if !env.Success {
		msg := env.Message
		if msg == "" {
			msg = "unspecified"
		}
		return fmt.Errorf("%w: %s", ErrRequestRejected, msg)
	}
	if out != nil {
		*out = env
	}
	return nil
}

// FetchPage returns the HTML of an authenticated platform page, used for
// marker probing when the identity endpoints are unreachable.
func (c *Client) FetchPage(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.do(ctx, req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("page fetch status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", err
	}
	return string(data), nil
}
