package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kiwari-pos/orderdesk/internal/order"
	"github.com/sirupsen/logrus"
)

// Error is a non-2xx response from the remote API.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote api: status %d", e.Status)
	}
	return fmt.Sprintf("remote api: status %d: %s", e.Status, e.Message)
}

// StatusOf returns the HTTP status carried by err, or 0 for transport errors.
func StatusOf(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// IsConflict reports whether the remote API rejected a write with 409.
func IsConflict(err error) bool {
	return StatusOf(err) == http.StatusConflict
}

type tokenKey struct{}

// WithToken attaches the caller's bearer token so requests made with ctx are
// authorized as that user.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

func tokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

// Client talks to the remote inventory and orders API.
type Client struct {
	baseURL      string
	serviceToken string
	httpClient   *http.Client
	log          logrus.FieldLogger
}

// New creates a Client. serviceToken authorizes background requests such as
// catalog refreshes that run without a caller.
func New(baseURL, serviceToken string, timeout time.Duration, log logrus.FieldLogger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		serviceToken: serviceToken,
		httpClient:   &http.Client{Timeout: timeout},
		log:          log.WithField("component", "apiclient"),
	}
}

// envelope is the {success, data, message} wrapper every endpoint returns.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) (envelope, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return envelope{}, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+strings.TrimLeft(path, "/"), reader)
	if err != nil {
		return envelope{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	token := tokenFrom(ctx)
	if token == "" {
		token = c.serviceToken
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return envelope{}, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return envelope{}, fmt.Errorf("failed to read response: %w", err)
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := env.Message
		if msg == "" {
			msg = env.Error
		}
		if msg == "" && decodeErr != nil {
			msg = strings.TrimSpace(string(raw))
		}
		return env, &Error{Status: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return env, fmt.Errorf("failed to decode response: %w", decodeErr)
	}
	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return env, fmt.Errorf("failed to decode data: %w", err)
		}
	}
	return env, nil
}

// --- Products ---

// ListProducts fetches the full product catalog.
func (c *Client) ListProducts(ctx context.Context) ([]order.Product, error) {
	var products []order.Product
	if _, err := c.do(ctx, http.MethodGet, "api/products", nil, &products); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

// --- Orders ---

// ListOrders fetches every order and normalizes legacy field shapes.
func (c *Client) ListOrders(ctx context.Context) ([]Order, error) {
	var raw []rawOrder
	if _, err := c.do(ctx, http.MethodGet, "api/orders", nil, &raw); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	out := make([]Order, 0, len(raw))
	for _, r := range raw {
		o, err := r.normalize()
		if err != nil {
			c.log.WithError(err).WithField("order_id", r.ID).Warn("order has unreadable fields")
		}
		out = append(out, o)
	}
	return out, nil
}

// GetOrder finds one order in the order list. The remote API has no single
// order endpoint.
func (c *Client) GetOrder(ctx context.Context, id int64) (Order, error) {
	orders, err := c.ListOrders(ctx)
	if err != nil {
		return Order{}, err
	}
	for _, o := range orders {
		if o.ID == id {
			return o, nil
		}
	}
	return Order{}, &Error{Status: http.StatusNotFound, Message: fmt.Sprintf("order %d not found", id)}
}

// CreateOrder submits a new order.
func (c *Client) CreateOrder(ctx context.Context, payload order.Payload) (json.RawMessage, error) {
	var created json.RawMessage
	if _, err := c.do(ctx, http.MethodPost, "api/orders", payload, &created); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	return created, nil
}

// UpdateOrder replaces a persisted order.
func (c *Client) UpdateOrder(ctx context.Context, id int64, payload order.Payload) (json.RawMessage, error) {
	var updated json.RawMessage
	if _, err := c.do(ctx, http.MethodPut, fmt.Sprintf("api/orders/%d", id), payload, &updated); err != nil {
		return nil, fmt.Errorf("update order %d: %w", id, err)
	}
	return updated, nil
}

// StartEdit asks the server to release the stock order id holds.
func (c *Client) StartEdit(ctx context.Context, id int64) error {
	if _, err := c.do(ctx, http.MethodPost, fmt.Sprintf("api/orders/%d/edit-start", id), nil, nil); err != nil {
		return fmt.Errorf("start edit of order %d: %w", id, err)
	}
	return nil
}

// DeleteOrder removes an order and returns the server's message.
func (c *Client) DeleteOrder(ctx context.Context, id int64) (string, error) {
	env, err := c.do(ctx, http.MethodDelete, fmt.Sprintf("api/orders/%d", id), nil, nil)
	if err != nil {
		return "", fmt.Errorf("delete order %d: %w", id, err)
	}
	return env.Message, nil
}
