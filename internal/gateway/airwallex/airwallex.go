package airwallex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/spf13/viper"

	"github.com/corray333/backend-labs/payment/internal/service/apperrors"
	"github.com/corray333/backend-labs/payment/internal/service/models/intent"
)

const (
	authPath    = "/api/v1/authentication/login"
	intentsPath = "/api/v1/pa/payment_intents"

	requestTimeout = 10 * time.Second
	tokenSkew      = 30 * time.Second
)

// Client talks to the Airwallex payment gateway. Every call authenticates
// with a cached bearer token first; CreateIntent and ConfirmIntent are not
// idempotent at the provider and are never retried, GetIntent is a plain
// GET and is retried with exponential backoff.
type Client struct {
	endpoint   string
	apiKey     string
	clientID   string
	httpClient *http.Client

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// option is a function that configures the Client.
type option func(*Client)

// NewClient creates a new Airwallex client. Endpoint comes from config,
// credentials from the environment unless overridden by options.
func NewClient(opts ...option) *Client {
	c := &Client{
		endpoint:   viper.GetString("gateway.endpoint"),
		apiKey:     os.Getenv("AIRWALLEX_API_KEY"),
		clientID:   os.Getenv("AIRWALLEX_CLIENT_ID"),
		httpClient: &http.Client{Timeout: requestTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithEndpoint overrides the gateway base URL.
func WithEndpoint(endpoint string) option {
	return func(c *Client) {
		c.endpoint = endpoint
	}
}

// WithCredentials overrides the API credentials.
func WithCredentials(apiKey, clientID string) option {
	return func(c *Client) {
		c.apiKey = apiKey
		c.clientID = clientID
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(httpClient *http.Client) option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

type authResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// accessToken returns a valid bearer token, logging in again when the
// cached one is about to expire.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry.Add(-tokenSkew)) {
		return c.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+authPath, nil)
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindGateway, "failed to build auth request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("x-client-id", c.clientID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindGateway, "gateway authentication failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", apperrors.Newf(apperrors.KindGateway, "gateway authentication failed: %s", gatewayMessage(resp))
	}

	var auth authResponse
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil {
		return "", apperrors.Wrap(apperrors.KindGateway, "failed to decode auth response", err)
	}

	c.token = auth.Token
	if auth.ExpiresAt > 0 {
		c.tokenExpiry = time.Unix(auth.ExpiresAt, 0)
	} else {
		c.tokenExpiry = time.Now().Add(10 * time.Minute)
	}

	return c.token, nil
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.tokenExpiry = time.Time{}
	c.mu.Unlock()
}

func gatewayMessage(resp *http.Response) string {
	var body errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Message == "" {
		return resp.Status
	}

	return body.Message
}

// Customer is the contact info attached to a payment intent.
type Customer struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
}

// CreateIntentRequest describes a payment intent to be created.
type CreateIntentRequest struct {
	AmountCents int64
	Currency    string
	OrderID     string
	Customer    Customer
	ReturnURL   string
}

type wireIntent struct {
	ID              string  `json:"id"`
	Amount          float64 `json:"amount"`
	Currency        string  `json:"currency"`
	Status          string  `json:"status"`
	ClientSecret    string  `json:"client_secret"`
	MerchantOrderID string  `json:"merchant_order_id"`
}

func (w wireIntent) toModel() intent.PaymentIntent {
	return intent.PaymentIntent{
		ID:              w.ID,
		Amount:          int64(math.Round(w.Amount * 100)),
		Currency:        w.Currency,
		Status:          intent.Status(w.Status),
		ClientSecret:    w.ClientSecret,
		MerchantOrderID: w.MerchantOrderID,
	}
}

// CreateIntent creates a payment intent at the gateway. Not retried: the
// operation is not idempotent at the provider, redelivery is up to the
// caller with a fresh request id.
func (c *Client) CreateIntent(ctx context.Context, req CreateIntentRequest) (intent.PaymentIntent, error) {
	payload := map[string]any{
		"request_id":        uuid.NewString(),
		"amount":            float64(req.AmountCents) / 100,
		"currency":          req.Currency,
		"merchant_order_id": req.OrderID,
		"order_id":          req.OrderID,
		"customer":          req.Customer,
		"return_url":        req.ReturnURL,
	}

	var wire wireIntent
	if err := c.post(ctx, intentsPath+"/create", payload, &wire); err != nil {
		return intent.PaymentIntent{}, err
	}

	return wire.toModel(), nil
}

// ConfirmIntent forwards payment method details to the gateway. The caller
// decides the resulting order status; this call changes nothing locally.
func (c *Client) ConfirmIntent(ctx context.Context, intentID string, payload json.RawMessage) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.post(ctx, fmt.Sprintf("%s/%s/confirm", intentsPath, intentID), payload, &raw); err != nil {
		return nil, err
	}

	return raw, nil
}

// GetIntent reads the authoritative intent status. This is the only
// trusted source of payment truth for reconciliation. The GET is
// idempotent, so transient failures are retried with exponential backoff.
func (c *Client) GetIntent(ctx context.Context, intentID string) (intent.PaymentIntent, error) {
	var wire wireIntent

	backoff := retry.WithMaxRetries(3, retry.NewExponential(200*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := c.get(ctx, fmt.Sprintf("%s/%s", intentsPath, intentID), &wire)
		if err != nil && !apperrors.IsKind(err, apperrors.KindNotFound) {
			return retry.RetryableError(err)
		}

		return err
	})
	if err != nil {
		return intent.PaymentIntent{}, err
	}

	return wire.toModel(), nil
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return apperrors.Wrap(apperrors.KindGateway, "failed to marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return apperrors.Wrap(apperrors.KindGateway, "failed to build request", err)
	}

	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+path, nil)
	if err != nil {
		return apperrors.Wrap(apperrors.KindGateway, "failed to build request", err)
	}

	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	token, err := c.accessToken(req.Context())
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.Wrap(apperrors.KindGateway, "gateway request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		// The gateway revoked the token before its advertised expiry.
		// Drop the cache so the next attempt logs in again.
		c.invalidateToken()

		return apperrors.Newf(apperrors.KindGateway, "gateway rejected credentials: %s", gatewayMessage(resp))
	case resp.StatusCode == http.StatusNotFound:
		return apperrors.Newf(apperrors.KindNotFound, "payment intent not found")
	case resp.StatusCode >= 400:
		return apperrors.Newf(apperrors.KindGateway, "gateway request failed: %s", gatewayMessage(resp))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.Wrap(apperrors.KindGateway, "failed to decode gateway response", err)
	}

	return nil
}
