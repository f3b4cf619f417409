package quote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

const (
	loginPath = "/client/v1/User/login/website"
	quotePath = "/client/v1/Quote/create"
)

var (
	// ErrAuth means the login call failed or returned no token; the quote
	// call is never attempted after it.
	ErrAuth = errors.New("usedconex login failed")

	// ErrUnavailable means the quote call failed or returned no usable
	// pricing data.
	ErrUnavailable = errors.New("no usable quote available")
)

// Quote is the normalized pricing record returned by the collaborator.
type Quote struct {
	BasePrice float64
	Transport float64
}

// Total is the price quoted to the user: base plus delivery surcharge.
func (q Quote) Total() float64 {
	return q.BasePrice + q.Transport
}

// Client calls the UsedConex quoting API. Stateless: a fresh login token is
// fetched per quote request, matching the collaborator's observed token
// semantics.
type Client struct {
	http         *resty.Client
	log          zerolog.Logger
	loginTimeout time.Duration
	quoteTimeout time.Duration
}

// NewClient creates a quoting client for the given base URL.
func NewClient(baseURL string, loginTimeout, quoteTimeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		http:         resty.New().SetBaseURL(baseURL).SetHeader("Content-Type", "application/json"),
		log:          log.With().Str("component", "quote").Logger(),
		loginTimeout: loginTimeout,
		quoteTimeout: quoteTimeout,
	}
}

type loginResponse struct {
	Data struct {
		Token string `json:"Token"`
	} `json:"data"`
}

type quoteRequest struct {
	Zipcode    string      `json:"zipcode"`
	IsDelivery bool        `json:"isDelivery"`
	Items      []quoteItem `json:"items"`
}

type quoteItem struct {
	Size      string `json:"size"`
	Condition string `json:"condition"`
	Quantity  int    `json:"quantity"`
}

type quoteResponse struct {
	Data json.RawMessage `json:"data"`
}

// quoteRecord mirrors the collaborator's pricing fields. Values arrive as
// numbers or numeric strings depending on the endpoint version.
type quoteRecord struct {
	TotalPrice     looseNumber `json:"totalPrice"`
	TotalTransport looseNumber `json:"totalTransport"`
}

// RequestQuote performs the two-step login-then-quote exchange and returns
// the normalized pricing record.
func (c *Client) RequestQuote(ctx context.Context, zipcode, size, condition string, quantity int) (*Quote, error) {
	token, err := c.login(ctx)
	if err != nil {
		return nil, err
	}

	quoteCtx, cancel := context.WithTimeout(ctx, c.quoteTimeout)
	defer cancel()

	var parsed quoteResponse
	resp, err := c.http.R().
		SetContext(quoteCtx).
		SetAuthToken(token).
		SetBody(quoteRequest{
			Zipcode:    zipcode,
			IsDelivery: true,
			Items:      []quoteItem{{Size: size, Condition: condition, Quantity: quantity}},
		}).
		SetResult(&parsed).
		Post(quotePath)
	if err != nil {
		return nil, fmt.Errorf("quote request failed: %w", err)
	}
	if resp.IsError() {
		c.log.Error().Int("status", resp.StatusCode()).Str("body", resp.String()).Msg("Quote API error")
		return nil, fmt.Errorf("%w: quote API returned status %d", ErrUnavailable, resp.StatusCode())
	}

	quote, ok := normalizeQuote(parsed.Data)
	if !ok {
		return nil, fmt.Errorf("%w: empty quote response", ErrUnavailable)
	}

	total := quote.Total()
	if math.IsNaN(total) || math.IsInf(total, 0) || total <= 0 {
		return nil, fmt.Errorf("%w: non-positive total %v", ErrUnavailable, total)
	}

	c.log.Debug().Str("zipcode", zipcode).Float64("total", total).Msg("Quote retrieved")
	return quote, nil
}

func (c *Client) login(ctx context.Context) (string, error) {
	loginCtx, cancel := context.WithTimeout(ctx, c.loginTimeout)
	defer cancel()

	var parsed loginResponse
	resp, err := c.http.R().
		SetContext(loginCtx).
		SetBody(struct{}{}).
		SetResult(&parsed).
		Post(loginPath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuth, err)
	}
	if resp.IsError() {
		c.log.Error().Int("status", resp.StatusCode()).Str("body", resp.String()).Msg("UsedConex login error")
		return "", fmt.Errorf("%w: login returned status %d", ErrAuth, resp.StatusCode())
	}
	if parsed.Data.Token == "" {
		return "", fmt.Errorf("%w: no token in login response", ErrAuth)
	}
	return parsed.Data.Token, nil
}

// normalizeQuote unwraps the collaborator's weakly shaped payload: the data
// field is sometimes a bare quote object and sometimes a list whose first
// element is the quote.
func normalizeQuote(data json.RawMessage) (*Quote, bool) {
	if len(data) == 0 {
		return nil, false
	}

	var record quoteRecord
	if err := json.Unmarshal(data, &record); err == nil && len(data) > 0 && data[0] == '{' {
		return &Quote{BasePrice: float64(record.TotalPrice), Transport: float64(record.TotalTransport)}, true
	}

	var records []quoteRecord
	if err := json.Unmarshal(data, &records); err != nil || len(records) == 0 {
		return nil, false
	}
	return &Quote{BasePrice: float64(records[0].TotalPrice), Transport: float64(records[0].TotalTransport)}, true
}

// looseNumber tolerates numbers, numeric strings, and null; anything else
// counts as zero.
type looseNumber float64

func (n *looseNumber) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		*n = 0
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		*n = looseNumber(f)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			*n = looseNumber(f)
			return nil
		}
	}
	*n = 0
	return nil
}
