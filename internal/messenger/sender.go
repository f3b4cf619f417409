package messenger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
)

const (
	// Messenger rejects texts over ~2000 characters; stay under the limit.
	maxTextLength = 1900

	maxRetries  = 2
	backoffStep = 300 * time.Millisecond
)

// Sender delivers outbound text messages through the Graph Send API.
// Failures are logged and swallowed: from the webhook's perspective a send
// is fire-and-forget.
type Sender struct {
	httpClient  *http.Client
	baseURL     string
	accessToken string
	log         zerolog.Logger
}

// NewSender creates a Sender for the given Graph API base URL.
func NewSender(baseURL, accessToken string, timeout time.Duration, log zerolog.Logger) *Sender {
	return &Sender{
		httpClient:  &http.Client{Timeout: timeout},
		baseURL:     baseURL,
		accessToken: accessToken,
		log:         log.With().Str("component", "messenger").Logger(),
	}
}

type sendRequest struct {
	Recipient     recipient   `json:"recipient"`
	MessagingType string      `json:"messaging_type"`
	Message       textMessage `json:"message"`
}

type recipient struct {
	ID string `json:"id"`
}

type textMessage struct {
	Text string `json:"text"`
}

// Send delivers text to the recipient, retrying on 429 and 5xx responses
// with linearly increasing backoff. On exhaustion the failure is logged and
// returned; callers are not expected to act on it.
func (s *Sender) Send(ctx context.Context, recipientID, text string) error {
	payload, err := json.Marshal(sendRequest{
		Recipient:     recipient{ID: recipientID},
		MessagingType: "RESPONSE",
		Message:       textMessage{Text: Truncate(text, maxTextLength)},
	})
	if err != nil {
		return fmt.Errorf("error marshaling send payload: %w", err)
	}

	endpoint := s.baseURL + "/me/messages?" + url.Values{"access_token": {s.accessToken}}.Encode()

	attempt := 0
	backoff := retry.WithMaxRetries(maxRetries, retry.BackoffFunc(func() (time.Duration, bool) {
		attempt++
		return time.Duration(attempt) * backoffStep, false
	}))

	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		return s.post(ctx, endpoint, payload)
	})
	if err != nil {
		s.log.Error().Err(err).Str("recipient", recipientID).Msg("Failed to deliver message")
		return fmt.Errorf("send to %s failed: %w", recipientID, err)
	}

	s.log.Debug().Str("recipient", recipientID).Msg("Message delivered")
	return nil
}

func (s *Sender) post(ctx context.Context, endpoint string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return retry.RetryableError(fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	s.log.Warn().Int("status", resp.StatusCode).Str("body", string(body)).Msg("Graph API error")

	err = fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return retry.RetryableError(err)
	}
	return err
}

// Truncate trims text to at most limit runes.
func Truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
