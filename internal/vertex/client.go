package vertex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Options configures a Client. TokenSource overrides credential discovery
// when set; tests use it to inject a static token.
type Options struct {
	ProjectID       string
	Location        string
	Model           string
	Endpoint        string // optional full generateContent URL override
	CredentialsJSON []byte // optional; ADC is used when empty
	Timeout         time.Duration
	TokenSource     oauth2.TokenSource
}

// Client calls the Vertex AI generateContent endpoint for a single Gemini
// model, authenticated by OAuth2 service-account credentials.
type Client struct {
	httpClient  *http.Client
	tokenSource oauth2.TokenSource
	endpoint    string
	projectID   string
	log         zerolog.Logger
}

// NewClient resolves credentials and builds a client bound to one model.
func NewClient(ctx context.Context, opts Options, log zerolog.Logger) (*Client, error) {
	ts := opts.TokenSource
	if ts == nil {
		var err error
		ts, err = resolveTokenSource(ctx, opts.CredentialsJSON)
		if err != nil {
			return nil, fmt.Errorf("resolving google credentials: %w", err)
		}
	}

	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf(
			"https://%s-aiplatform.googleapis.com/v1/projects/%s/locations/%s/publishers/google/models/%s:generateContent",
			opts.Location, opts.ProjectID, opts.Location, opts.Model,
		)
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 20 * time.Second
	}

	return &Client{
		httpClient:  &http.Client{Timeout: timeout},
		tokenSource: ts,
		endpoint:    endpoint,
		projectID:   opts.ProjectID,
		log:         log.With().Str("component", "vertex").Str("model", opts.Model).Logger(),
	}, nil
}

func resolveTokenSource(ctx context.Context, credentialsJSON []byte) (oauth2.TokenSource, error) {
	if len(credentialsJSON) > 0 {
		creds, err := google.CredentialsFromJSON(ctx, credentialsJSON, cloudPlatformScope)
		if err != nil {
			return nil, err
		}
		return creds.TokenSource, nil
	}
	return google.DefaultTokenSource(ctx, cloudPlatformScope)
}

// GenerateContent submits the conversation with the declared tools and
// normalizes the first candidate into a Reply.
func (c *Client) GenerateContent(ctx context.Context, system *Content, contents []Content, tools []Tool) (*Reply, error) {
	payload, err := json.Marshal(generateRequest{
		Contents:          contents,
		SystemInstruction: system,
		Tools:             tools,
		SafetySettings: []SafetySetting{
			{Category: "HARM_CATEGORY_DANGEROUS_CONTENT", Threshold: "BLOCK_ONLY_HIGH"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	token, err := c.tokenSource.Token()
	if err != nil {
		return nil, fmt.Errorf("fetching access token: %w", err)
	}
	token.SetAuthHeader(req)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", defaultUserAgent)
	req.Header.Set("x-goog-user-project", c.projectID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("error reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.log.Error().Int("status", resp.StatusCode).Str("body", string(body)).Msg("Vertex AI error")
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var parsed generateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("error decoding response: %w", err)
	}

	return normalizeReply(parsed), nil
}

// normalizeReply flattens the first candidate: a function call wins over
// text, and text parts are joined in order.
func normalizeReply(resp generateResponse) *Reply {
	reply := &Reply{}
	if len(resp.Candidates) == 0 {
		return reply
	}

	var texts []string
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.FunctionCall != nil && reply.Call == nil {
			reply.Call = part.FunctionCall
		}
		if part.Text != "" {
			texts = append(texts, part.Text)
		}
	}
	reply.Text = strings.TrimSpace(strings.Join(texts, ""))
	return reply
}
