// Package rest implements the Gateway over the hosted backend's HTTP
// dialect: collection endpoints under /rest/v1 with field.op filter
// query parameters, JSON rows, a coded error envelope, and the session
// endpoint under /auth/v1.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/hallhub/hallhub/internal/gateway"
)

// Config holds the client settings, normally parsed from the
// environment.
type Config struct {
	BaseURL string        `env:"HALLHUB_API_URL"`
	APIKey  string        `env:"HALLHUB_API_KEY"`
	Token   string        `env:"HALLHUB_API_TOKEN"`
	Timeout time.Duration `env:"HALLHUB_API_TIMEOUT" envDefault:"10s"`
}

// ConfigFromEnv loads the client configuration from environment
// variables.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse rest config: %w", err)
	}
	if cfg.BaseURL == "" {
		return Config{}, fmt.Errorf("HALLHUB_API_URL is required")
	}
	return cfg, nil
}

// errorEnvelope is the backend's machine-readable failure body.
type errorEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Client is the HTTP Gateway implementation.
type Client struct {
	cfg  Config
	http *http.Client
}

// New builds a client. The HTTP client timeout bounds each call; the
// core applies no additional timeout of its own.
func New(cfg Config) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// Query fetches rows matching the filters in the requested order.
func (c *Client) Query(ctx context.Context, collection string, filters []gateway.Filter, order []gateway.Order) ([]gateway.Record, error) {
	params := url.Values{}
	for _, f := range filters {
		params.Add(f.Field, fmt.Sprintf("%s.%v", f.Op, f.Value))
	}
	if len(order) > 0 {
		var parts []string
		for _, o := range order {
			dir := "asc"
			if o.Desc {
				dir = "desc"
			}
			parts = append(parts, o.Field+"."+dir)
		}
		params.Set("order", strings.Join(parts, ","))
	}

	body, err := c.do(ctx, http.MethodGet, c.collectionURL(collection, params), nil)
	if err != nil {
		return nil, err
	}
	var rows []gateway.Record
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode %s rows: %w", collection, err)
	}
	return rows, nil
}

// Insert posts a new row and returns the stored representation,
// including the server-assigned id and created_at.
func (c *Client) Insert(ctx context.Context, collection string, rec gateway.Record) (gateway.Record, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode %s row: %w", collection, err)
	}
	body, err := c.do(ctx, http.MethodPost, c.collectionURL(collection, nil), payload)
	if err != nil {
		return nil, err
	}
	var created gateway.Record
	if err := json.Unmarshal(body, &created); err != nil {
		return nil, fmt.Errorf("decode created %s row: %w", collection, err)
	}
	return created, nil
}

// Update patches the row with the given id.
func (c *Client) Update(ctx context.Context, collection string, id any, partial gateway.Record) error {
	payload, err := json.Marshal(partial)
	if err != nil {
		return fmt.Errorf("encode %s patch: %w", collection, err)
	}
	params := url.Values{}
	params.Set("id", fmt.Sprintf("eq.%v", id))
	_, err = c.do(ctx, http.MethodPatch, c.collectionURL(collection, params), payload)
	return err
}

// Delete removes the row with the given id. A missing row surfaces as a
// not-found gateway error.
func (c *Client) Delete(ctx context.Context, collection string, id any) error {
	params := url.Values{}
	params.Set("id", fmt.Sprintf("eq.%v", id))
	_, err := c.do(ctx, http.MethodDelete, c.collectionURL(collection, params), nil)
	return err
}

// CurrentIdentity resolves the session user. A signed-out session is
// (nil, nil), not an error.
func (c *Client) CurrentIdentity(ctx context.Context) (*gateway.Identity, error) {
	body, err := c.do(ctx, http.MethodGet, c.cfg.BaseURL+"/auth/v1/user", nil)
	if err != nil {
		if gateway.CodeOf(err) == gateway.CodeUnauthenticated {
			return nil, nil
		}
		return nil, err
	}
	var id gateway.Identity
	if err := json.Unmarshal(body, &id); err != nil {
		return nil, fmt.Errorf("decode identity: %w", err)
	}
	return &id, nil
}

func (c *Client) collectionURL(collection string, params url.Values) string {
	u := c.cfg.BaseURL + "/rest/v1/" + url.PathEscape(collection)
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

// do issues one request and maps failures onto the gateway error
// contract: transport failures become unavailable, non-2xx responses
// carry the envelope's machine code.
func (c *Client) do(ctx context.Context, method, rawURL string, payload []byte) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("apikey", c.cfg.APIKey)
	}
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, gateway.NewError(gateway.CodeUnavailable, err.Error())
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, gateway.NewError(gateway.CodeUnavailable, err.Error())
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return raw, nil
	}

	var envelope errorEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil || envelope.Code == "" {
		return nil, gateway.NewError(codeForStatus(resp.StatusCode),
			fmt.Sprintf("%s %s: status %d", method, rawURL, resp.StatusCode))
	}
	return nil, gateway.NewError(gateway.Code(envelope.Code), envelope.Message)
}

// codeForStatus is the fallback mapping when the backend omits the
// envelope.
func codeForStatus(status int) gateway.Code {
	switch status {
	case http.StatusNotFound:
		return gateway.CodeNotFound
	case http.StatusUnauthorized:
		return gateway.CodeUnauthenticated
	case http.StatusConflict:
		return gateway.CodeDuplicateRegistration
	default:
		return gateway.CodeUnknown
	}
}
