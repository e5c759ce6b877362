package whatsapp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EventKind classifies an inbound user action.
type EventKind string

const (
	EventText        EventKind = "text"
	EventButtonReply EventKind = "button_reply"
	EventListReply   EventKind = "list_reply"
)

// Event is one normalized inbound message. ReplyID carries the id of
// the tapped button or list row; Text carries the literal text body.
type Event struct {
	WaID       string
	MessageID  string
	Kind       EventKind
	Text       string
	ReplyID    string
	ReplyTitle string
	Timestamp  time.Time
}

// Input returns the value the conversation flow should react to: the
// reply id for interactive events, the text body otherwise.
func (e Event) Input() string {
	if e.Kind == EventButtonReply || e.Kind == EventListReply {
		return e.ReplyID
	}
	return e.Text
}

// Webhook notification shapes for the Cloud API messages field.

type webhookNotification struct {
	Object string `json:"object"`
	Entry  []struct {
		Changes []struct {
			Field string       `json:"field"`
			Value webhookValue `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type webhookValue struct {
	MessagingProduct string           `json:"messaging_product"`
	Messages         []webhookMessage `json:"messages"`
}

type webhookMessage struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text"`
	Interactive *struct {
		Type        string        `json:"type"`
		ButtonReply *webhookReply `json:"button_reply"`
		ListReply   *webhookReply `json:"list_reply"`
	} `json:"interactive"`
}

type webhookReply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// DecodeEvents extracts user message events from a webhook notification
// body. Delivery status updates and unsupported message types are
// skipped silently; the Cloud API sends those on the same endpoint.
func DecodeEvents(body []byte) ([]Event, error) {
	var note webhookNotification
	if err := json.Unmarshal(body, &note); err != nil {
		return nil, fmt.Errorf("whatsapp: decode notification: %w", err)
	}

	var events []Event
	for _, entry := range note.Entry {
		for _, change := range entry.Changes {
			if change.Field != "" && change.Field != "messages" {
				continue
			}
			for _, msg := range change.Value.Messages {
				ev, ok := normalizeMessage(msg)
				if !ok {
					continue
				}
				events = append(events, ev)
			}
		}
	}
	return events, nil
}

func normalizeMessage(msg webhookMessage) (Event, bool) {
	if msg.From == "" {
		return Event{}, false
	}
	ev := Event{
		WaID:      msg.From,
		MessageID: msg.ID,
		Timestamp: parseEpoch(msg.Timestamp),
	}
	switch msg.Type {
	case "text":
		if msg.Text == nil {
			return Event{}, false
		}
		ev.Kind = EventText
		ev.Text = msg.Text.Body
	case "interactive":
		if msg.Interactive == nil {
			return Event{}, false
		}
		switch {
		case msg.Interactive.ButtonReply != nil:
			ev.Kind = EventButtonReply
			ev.ReplyID = msg.Interactive.ButtonReply.ID
			ev.ReplyTitle = msg.Interactive.ButtonReply.Title
		case msg.Interactive.ListReply != nil:
			ev.Kind = EventListReply
			ev.ReplyID = msg.Interactive.ListReply.ID
			ev.ReplyTitle = msg.Interactive.ListReply.Title
		default:
			return Event{}, false
		}
	default:
		return Event{}, false
	}
	return ev, true
}

func parseEpoch(raw string) time.Time {
	secs, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || secs <= 0 {
		return time.Time{}
	}
	return time.Unix(secs, 0).UTC()
}

// VerifySignature checks the X-Hub-Signature-256 header against the raw
// request body using the app secret. An empty secret disables checking.
func VerifySignature(appSecret string, body []byte, header string) bool {
	if appSecret == "" {
		return true
	}
	expected := strings.TrimPrefix(header, "sha256=")
	if expected == header || expected == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	computed := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(computed), []byte(strings.ToLower(expected)))
}
