package webhook

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Processor handles one inbound message end to end. It owns its terminal
// outcomes: the webhook acknowledges the delivery regardless of what the
// processor does with it.
type Processor interface {
	HandleMessage(ctx context.Context, senderID, text string)
}

// Handlers holds the dependencies for the webhook HTTP handlers.
type Handlers struct {
	processor   Processor
	verifyToken string
	appSecret   string
	log         zerolog.Logger
}

// NewHandlers creates a new Handlers instance. An empty appSecret disables
// signature validation.
func NewHandlers(processor Processor, verifyToken, appSecret string, log zerolog.Logger) *Handlers {
	return &Handlers{
		processor:   processor,
		verifyToken: verifyToken,
		appSecret:   appSecret,
		log:         log.With().Str("component", "webhook").Logger(),
	}
}

// GetVerify answers the platform's subscription-verification handshake:
// echo the challenge iff the verify token matches.
func (h *Handlers) GetVerify(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "subscribe" && token == h.verifyToken {
		h.log.Info().Msg("Webhook verified")
		c.String(http.StatusOK, challenge)
		return
	}

	h.log.Warn().Str("mode", mode).Bool("token_present", token != "").Msg("Failed webhook verification")
	c.Status(http.StatusForbidden)
}

// PostReceive accepts an event delivery. Events are processed sequentially;
// a failing event never blocks its siblings, and the platform always gets a
// prompt 200 once the body is accepted, so it does not retry-storm already
// failed events.
func (h *Handlers) PostReceive(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to read webhook body")
		c.Status(http.StatusBadRequest)
		return
	}

	if h.appSecret != "" {
		if err := ValidateSignature(h.appSecret, body, c.GetHeader("X-Hub-Signature-256")); err != nil {
			h.log.Warn().Msg("Rejected delivery with bad signature")
			c.Status(http.StatusForbidden)
			return
		}
	}

	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		h.log.Error().Err(err).Msg("Malformed webhook body")
		c.Status(http.StatusBadRequest)
		return
	}

	for _, entry := range event.Entry {
		for _, msg := range entry.Messaging {
			if msg.Message != nil && msg.Message.IsEcho {
				continue
			}
			senderID := msg.SenderID()
			if senderID == "" {
				continue
			}
			text := msg.MessageText()
			if text == "" {
				continue
			}
			h.processor.HandleMessage(c.Request.Context(), senderID, text)
		}
	}

	c.Status(http.StatusOK)
}

// GetHealth returns health check information.
func (h *Handlers) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "usedconexwebhook",
	})
}
