package webhook

// Event is the top-level Messenger webhook delivery body.
type Event struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry is one delivery batch for a page.
type Entry struct {
	ID        string           `json:"id"`
	Time      int64            `json:"time"`
	Messaging []MessagingEvent `json:"messaging"`
}

// MessagingEvent carries one messaging event: a text message or a postback.
type MessagingEvent struct {
	Sender    *Participant `json:"sender"`
	Recipient *Participant `json:"recipient"`
	Timestamp int64        `json:"timestamp"`
	Message   *Message     `json:"message,omitempty"`
	Postback  *Postback    `json:"postback,omitempty"`
}

// Participant identifies a conversation party by its page-scoped ID.
type Participant struct {
	ID string `json:"id"`
}

// Message is an inbound text message. IsEcho marks the page's own outbound
// messages echoed back by the platform.
type Message struct {
	MID    string `json:"mid,omitempty"`
	Text   string `json:"text,omitempty"`
	IsEcho bool   `json:"is_echo,omitempty"`
}

// Postback is a button press carrying a developer-defined payload.
type Postback struct {
	Title   string `json:"title,omitempty"`
	Payload string `json:"payload,omitempty"`
}

// SenderID returns the sender's ID, or empty when absent.
func (e MessagingEvent) SenderID() string {
	if e.Sender == nil {
		return ""
	}
	return e.Sender.ID
}

// MessageText resolves the user-supplied text of the event: message text
// first, then the postback payload, then the postback title.
func (e MessagingEvent) MessageText() string {
	if e.Message != nil && e.Message.Text != "" {
		return e.Message.Text
	}
	if e.Postback != nil {
		if e.Postback.Payload != "" {
			return e.Postback.Payload
		}
		return e.Postback.Title
	}
	return ""
}
