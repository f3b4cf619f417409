package agent

import (
	"context"
	"fmt"
	"regexp"

	"github.com/rs/zerolog"

	"github.com/MaryAsgari/usedconexwebhook/internal/quote"
	"github.com/MaryAsgari/usedconexwebhook/internal/vertex"
)

// stepBudget bounds model round trips per inbound event. The loop terminates
// within this many generations regardless of model behavior.
const stepBudget = 3

const (
	toolName = "get_container_quote"

	defaultSize      = "20ft"
	defaultCondition = "cargo-worthy"
	defaultQuantity  = 1
)

const (
	clarificationText = "Please send a valid 5-digit ZIP code so I can get you a price."
	apologyText       = "Sorry, I'm having trouble processing your request."
	noReplyText       = "I couldn't generate a response right now."
)

const systemInstruction = "You are a helpful shipping-container sales assistant for UsedConex. " +
	"When the customer asks about price or delivery, call " + toolName + " with their 5-digit ZIP code. " +
	"If they have not shared a ZIP code yet, ask for it. Keep answers short and friendly."

var zipArgPattern = regexp.MustCompile(`^\d{5}$`)

// ModelClient generates a model reply for a conversation with declared tools.
type ModelClient interface {
	GenerateContent(ctx context.Context, system *vertex.Content, contents []vertex.Content, tools []vertex.Tool) (*vertex.Reply, error)
}

// QuoteService fetches a container quote for a postal code.
type QuoteService interface {
	RequestQuote(ctx context.Context, zipcode, size, condition string, quantity int) (*quote.Quote, error)
}

// MessageSender delivers one outbound text to a recipient.
type MessageSender interface {
	Send(ctx context.Context, recipientID, text string) error
}

// Orchestrator runs the bounded tool-calling loop for one inbound event:
// model call, optional quote lookup, one outbound reply. Conversation state
// lives only for the duration of a single HandleMessage call.
type Orchestrator struct {
	model  ModelClient
	quotes QuoteService
	sender MessageSender
	log    zerolog.Logger
}

// NewOrchestrator wires the three collaborators together.
func NewOrchestrator(model ModelClient, quotes QuoteService, sender MessageSender, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		model:  model,
		quotes: quotes,
		sender: sender,
		log:    log.With().Str("component", "agent").Logger(),
	}
}

func quoteToolSchema() []vertex.Tool {
	return []vertex.Tool{{
		FunctionDeclarations: []vertex.FunctionDeclaration{{
			Name:        toolName,
			Description: "Get the delivered price of a used shipping container for a US ZIP code.",
			Parameters: &vertex.Schema{
				Type: "object",
				Properties: map[string]*vertex.Schema{
					"zipcode": {
						Type:        "string",
						Description: "5-digit US ZIP code of the delivery address.",
						Pattern:     `^\d{5}$`,
					},
					"size": {
						Type: "string",
						Enum: []string{"20ft", "40ft", "40ft-hc"},
					},
					"condition": {
						Type: "string",
						Enum: []string{"cargo-worthy", "wind-water-tight", "one-trip"},
					},
				},
				Required: []string{"zipcode"},
			},
		}},
	}}
}

// HandleMessage processes one inbound event. It sends at most one outbound
// reply and never returns an error: every failure is converted into a
// user-facing message or logged and dropped.
func (o *Orchestrator) HandleMessage(ctx context.Context, senderID, text string) {
	log := o.log.With().Str("sender", senderID).Logger()

	system := &vertex.Content{Parts: []vertex.Part{{Text: systemInstruction}}}
	contents := []vertex.Content{{Role: vertex.RoleUser, Parts: []vertex.Part{{Text: text}}}}
	tools := quoteToolSchema()

	// Remembered after a successful tool execution so a later model failure
	// or budget exhaustion can still produce the templated quote reply.
	var quoted *quotedResult

	for step := 0; step < stepBudget; step++ {
		reply, err := o.model.GenerateContent(ctx, system, contents, tools)
		if err != nil {
			log.Warn().Err(err).Int("step", step).Msg("Model call failed")
			o.fallback(ctx, senderID, text, quoted)
			return
		}

		if reply.Call == nil {
			if reply.Text == "" {
				log.Warn().Int("step", step).Msg("Model returned neither text nor tool call")
				o.fallback(ctx, senderID, text, quoted)
				return
			}
			o.deliver(ctx, senderID, reply.Text)
			return
		}

		if reply.Call.Name != toolName {
			log.Warn().Str("tool", reply.Call.Name).Msg("Model requested unknown tool")
			o.fallback(ctx, senderID, text, quoted)
			return
		}

		zip, ok := stringArg(reply.Call.Args, "zipcode")
		if !ok || !zipArgPattern.MatchString(zip) {
			log.Info().Str("zipcode", zip).Msg("Invalid zipcode argument from model")
			o.deliver(ctx, senderID, clarificationText)
			return
		}

		size, _ := stringArg(reply.Call.Args, "size")
		if size == "" {
			size = defaultSize
		}
		condition, _ := stringArg(reply.Call.Args, "condition")
		if condition == "" {
			condition = defaultCondition
		}

		q, err := o.quotes.RequestQuote(ctx, zip, size, condition, defaultQuantity)
		if err != nil {
			log.Error().Err(err).Str("zipcode", zip).Msg("Quote lookup failed")
			o.deliver(ctx, senderID, apologyText)
			return
		}
		quoted = &quotedResult{zip: zip, total: q.Total()}

		// Feed the tool result back so the model can phrase the answer.
		contents = append(contents,
			vertex.Content{Role: vertex.RoleModel, Parts: []vertex.Part{{FunctionCall: reply.Call}}},
			vertex.Content{Role: vertex.RoleFunction, Parts: []vertex.Part{{FunctionResponse: &vertex.FunctionResponse{
				Name: toolName,
				Response: map[string]any{
					"zipcode":     zip,
					"total_price": fmt.Sprintf("%.2f", q.Total()),
					"currency":    "USD",
				},
			}}}},
		)
	}

	log.Warn().Msg("Step budget exhausted without a terminal reply")
	o.fallback(ctx, senderID, text, quoted)
}

type quotedResult struct {
	zip   string
	total float64
}

// fallback keeps the service useful when the model is down or looping: reply
// with an already-fetched quote if one exists, otherwise extract a ZIP from
// the raw text and quote it directly, otherwise admit defeat.
func (o *Orchestrator) fallback(ctx context.Context, senderID, text string, quoted *quotedResult) {
	if quoted != nil {
		o.deliver(ctx, senderID, formatQuoteReply(quoted.zip, quoted.total))
		return
	}

	zip, ok := ExtractPostalCode(text)
	if !ok {
		o.deliver(ctx, senderID, noReplyText)
		return
	}

	q, err := o.quotes.RequestQuote(ctx, zip, defaultSize, defaultCondition, defaultQuantity)
	if err != nil {
		o.log.Error().Err(err).Str("zipcode", zip).Msg("Fallback quote lookup failed")
		o.deliver(ctx, senderID, apologyText)
		return
	}
	o.deliver(ctx, senderID, formatQuoteReply(zip, q.Total()))
}

func (o *Orchestrator) deliver(ctx context.Context, senderID, text string) {
	if err := o.sender.Send(ctx, senderID, text); err != nil {
		o.log.Warn().Err(err).Str("sender", senderID).Msg("Reply not delivered")
	}
}

func formatQuoteReply(zip string, total float64) string {
	return fmt.Sprintf("Price for ZIP %s: $%.2f", zip, total)
}

func stringArg(args map[string]any, key string) (string, bool) {
	if args == nil {
		return "", false
	}
	val, ok := args[key].(string)
	return val, ok && val != ""
}
