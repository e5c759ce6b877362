package whatsapp

import (
	"fmt"
	"unicode/utf8"
)

// Interactive element limits imposed by the Cloud API.
const (
	MaxButtons        = 3
	maxButtonTitleLen = 20
	maxRowTitleLen    = 24
	maxRowDescLen     = 72
	maxSectionRows    = 10
)

// MessageKind identifies the outbound payload shape.
type MessageKind string

const (
	KindText    MessageKind = "text"
	KindButtons MessageKind = "buttons"
	KindList    MessageKind = "list"
	KindCTAURL  MessageKind = "cta_url"
)

// Button is a quick-reply button. The reply id comes back verbatim
// in the button_reply event when the user taps it.
type Button struct {
	ID    string
	Title string
}

// Row is a single selectable entry of a list message.
type Row struct {
	ID          string
	Title       string
	Description string
}

// Section groups list rows under an optional title.
type Section struct {
	Title string
	Rows  []Row
}

// CTAURL renders a single tappable link button below the body text.
type CTAURL struct {
	DisplayText string
	URL         string
}

// Message is one outbound WhatsApp message. Build values through the
// constructors so interactive element limits are applied up front.
type Message struct {
	Kind     MessageKind
	Body     string
	Buttons  []Button
	ListCTA  string
	Sections []Section
	CTA      *CTAURL
	// ReplyTo, when set, sends the message as a contextual reply to
	// that inbound message id.
	ReplyTo string
}

// Text builds a plain text message.
func Text(body string) Message {
	return Message{Kind: KindText, Body: body}
}

// ButtonMessage builds an interactive message with up to three quick-reply
// buttons. Extra buttons are dropped and titles are truncated to the
// platform limit.
func ButtonMessage(body string, buttons ...Button) Message {
	if len(buttons) > MaxButtons {
		buttons = buttons[:MaxButtons]
	}
	clamped := make([]Button, len(buttons))
	for i, b := range buttons {
		b.Title = truncateRunes(b.Title, maxButtonTitleLen)
		clamped[i] = b
	}
	return Message{Kind: KindButtons, Body: body, Buttons: clamped}
}

// ListMessage builds an interactive list. cta is the label of the button
// that opens the list. Row titles and descriptions are truncated to the
// platform limits and oversized sections are cut at ten rows.
func ListMessage(body, cta string, sections ...Section) Message {
	out := make([]Section, len(sections))
	for i, s := range sections {
		rows := s.Rows
		if len(rows) > maxSectionRows {
			rows = rows[:maxSectionRows]
		}
		clamped := make([]Row, len(rows))
		for j, r := range rows {
			r.Title = truncateRunes(r.Title, maxRowTitleLen)
			r.Description = truncateRunes(r.Description, maxRowDescLen)
			clamped[j] = r
		}
		out[i] = Section{Title: s.Title, Rows: clamped}
	}
	return Message{Kind: KindList, Body: body, ListCTA: cta, Sections: out}
}

// CTAMessage builds a call-to-action message carrying one URL button.
func CTAMessage(body, displayText, url string) Message {
	return Message{Kind: KindCTAURL, Body: body, CTA: &CTAURL{DisplayText: displayText, URL: url}}
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max])
}

// Graph API payload shapes for POST /{phone_number_id}/messages.

type outboundPayload struct {
	MessagingProduct string           `json:"messaging_product"`
	To               string           `json:"to"`
	Type             string           `json:"type"`
	Text             *textBody        `json:"text,omitempty"`
	Interactive      *interactiveBody `json:"interactive,omitempty"`
	Context          *messageContext  `json:"context,omitempty"`
}

type messageContext struct {
	MessageID string `json:"message_id"`
}

type textBody struct {
	Body       string `json:"body"`
	PreviewURL bool   `json:"preview_url"`
}

type interactiveBody struct {
	Type   string             `json:"type"`
	Body   *interactiveText   `json:"body,omitempty"`
	Action *interactiveAction `json:"action,omitempty"`
}

type interactiveText struct {
	Text string `json:"text"`
}

type interactiveAction struct {
	Buttons    []payloadButton    `json:"buttons,omitempty"`
	Button     string             `json:"button,omitempty"`
	Sections   []payloadSection   `json:"sections,omitempty"`
	Name       string             `json:"name,omitempty"`
	Parameters *payloadParameters `json:"parameters,omitempty"`
}

type payloadButton struct {
	Type  string       `json:"type"`
	Reply payloadReply `json:"reply"`
}

type payloadReply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type payloadSection struct {
	Title string       `json:"title,omitempty"`
	Rows  []payloadRow `json:"rows"`
}

type payloadRow struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

type payloadParameters struct {
	DisplayText string `json:"display_text"`
	URL         string `json:"url"`
}

// payload converts the message into the wire shape for the given recipient.
func (m Message) payload(to string) (outboundPayload, error) {
	p := outboundPayload{
		MessagingProduct: "whatsapp",
		To:               to,
	}
	if m.ReplyTo != "" {
		p.Context = &messageContext{MessageID: m.ReplyTo}
	}
	switch m.Kind {
	case KindText:
		p.Type = "text"
		p.Text = &textBody{Body: m.Body}
	case KindButtons:
		if len(m.Buttons) == 0 {
			return p, fmt.Errorf("whatsapp: button message without buttons")
		}
		buttons := make([]payloadButton, len(m.Buttons))
		for i, b := range m.Buttons {
			buttons[i] = payloadButton{Type: "reply", Reply: payloadReply{ID: b.ID, Title: b.Title}}
		}
		p.Type = "interactive"
		p.Interactive = &interactiveBody{
			Type:   "button",
			Body:   &interactiveText{Text: m.Body},
			Action: &interactiveAction{Buttons: buttons},
		}
	case KindList:
		if len(m.Sections) == 0 {
			return p, fmt.Errorf("whatsapp: list message without sections")
		}
		sections := make([]payloadSection, len(m.Sections))
		for i, s := range m.Sections {
			rows := make([]payloadRow, len(s.Rows))
			for j, r := range s.Rows {
				rows[j] = payloadRow{ID: r.ID, Title: r.Title, Description: r.Description}
			}
			sections[i] = payloadSection{Title: s.Title, Rows: rows}
		}
		p.Type = "interactive"
		p.Interactive = &interactiveBody{
			Type:   "list",
			Body:   &interactiveText{Text: m.Body},
			Action: &interactiveAction{Button: m.ListCTA, Sections: sections},
		}
	case KindCTAURL:
		if m.CTA == nil {
			return p, fmt.Errorf("whatsapp: cta message without url")
		}
		p.Type = "interactive"
		p.Interactive = &interactiveBody{
			Type: "cta_url",
			Body: &interactiveText{Text: m.Body},
			Action: &interactiveAction{
				Name:       "cta_url",
				Parameters: &payloadParameters{DisplayText: m.CTA.DisplayText, URL: m.CTA.URL},
			},
		}
	default:
		return p, fmt.Errorf("whatsapp: unknown message kind %q", m.Kind)
	}
	return p, nil
}
