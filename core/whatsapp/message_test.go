package whatsapp

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextPayload(t *testing.T) {
	p, err := Text("hello").payload("923001234567")
	require.NoError(t, err)

	raw, err := json.Marshal(p)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "whatsapp", got["messaging_product"])
	assert.Equal(t, "923001234567", got["to"])
	assert.Equal(t, "text", got["type"])
	text := got["text"].(map[string]any)
	assert.Equal(t, "hello", text["body"])
}

func TestReplyToCarriesContextMessageID(t *testing.T) {
	msg := Text("hello")
	msg.ReplyTo = "wamid.inbound"
	p, err := msg.payload("u1")
	require.NoError(t, err)

	raw, _ := json.Marshal(p)
	assert.Contains(t, string(raw), `"context":{"message_id":"wamid.inbound"}`)

	// Without a reply target no context object is emitted.
	p, err = Text("hello").payload("u1")
	require.NoError(t, err)
	raw, _ = json.Marshal(p)
	assert.NotContains(t, string(raw), `"context"`)
}

func TestButtonPayload(t *testing.T) {
	msg := ButtonMessage("pick one", Button{ID: "main_menu", Title: "Main Menu"})
	p, err := msg.payload("u1")
	require.NoError(t, err)

	raw, _ := json.Marshal(p)
	s := string(raw)
	assert.Contains(t, s, `"type":"interactive"`)
	assert.Contains(t, s, `"type":"button"`)
	assert.Contains(t, s, `"id":"main_menu"`)
	assert.Contains(t, s, `"title":"Main Menu"`)
}

func TestButtonMessageClampsToLimit(t *testing.T) {
	long := strings.Repeat("x", 30)
	msg := ButtonMessage("body",
		Button{ID: "a", Title: long},
		Button{ID: "b", Title: "b"},
		Button{ID: "c", Title: "c"},
		Button{ID: "d", Title: "dropped"},
	)

	require.Len(t, msg.Buttons, MaxButtons)
	assert.Equal(t, strings.Repeat("x", 20), msg.Buttons[0].Title)
}

func TestButtonMessageWithoutButtonsRejected(t *testing.T) {
	_, err := Message{Kind: KindButtons, Body: "empty"}.payload("u1")
	assert.Error(t, err)
}

func TestListMessageClampsRows(t *testing.T) {
	rows := make([]Row, 12)
	for i := range rows {
		rows[i] = Row{ID: "id", Title: strings.Repeat("t", 30), Description: strings.Repeat("d", 80)}
	}
	msg := ListMessage("choose", "Open", Section{Title: "S", Rows: rows})

	require.Len(t, msg.Sections, 1)
	require.Len(t, msg.Sections[0].Rows, 10)
	assert.Equal(t, strings.Repeat("t", 24), msg.Sections[0].Rows[0].Title)
	assert.Equal(t, strings.Repeat("d", 72), msg.Sections[0].Rows[0].Description)
}

func TestListPayload(t *testing.T) {
	msg := ListMessage("choose", "Choose Country",
		Section{Title: "Study Destinations", Rows: []Row{{ID: "uk", Title: "United Kingdom 🇬🇧"}}})
	p, err := msg.payload("u1")
	require.NoError(t, err)

	raw, _ := json.Marshal(p)
	s := string(raw)
	assert.Contains(t, s, `"type":"list"`)
	assert.Contains(t, s, `"button":"Choose Country"`)
	assert.Contains(t, s, `"id":"uk"`)
}

func TestCTAPayload(t *testing.T) {
	msg := CTAMessage("book now", "Open booking page", "https://example.com/book")
	p, err := msg.payload("u1")
	require.NoError(t, err)

	raw, _ := json.Marshal(p)
	s := string(raw)
	assert.Contains(t, s, `"type":"cta_url"`)
	assert.Contains(t, s, `"name":"cta_url"`)
	assert.Contains(t, s, `"display_text":"Open booking page"`)
	assert.Contains(t, s, `"url":"https://example.com/book"`)
}

func TestTruncateRunesKeepsWholeRunes(t *testing.T) {
	assert.Equal(t, "héllo", truncateRunes("héllo", 10))
	assert.Equal(t, "hél", truncateRunes("héllo", 3))
}
