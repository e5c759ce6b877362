package whatsapp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const textNotification = `{
  "object": "whatsapp_business_account",
  "entry": [{
    "id": "1",
    "changes": [{
      "field": "messages",
      "value": {
        "messaging_product": "whatsapp",
        "messages": [{
          "from": "923001234567",
          "id": "wamid.abc",
          "timestamp": "1748779200",
          "type": "text",
          "text": {"body": "Hello"}
        }]
      }
    }]
  }]
}`

func TestDecodeTextEvent(t *testing.T) {
	events, err := DecodeEvents([]byte(textNotification))
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, "923001234567", ev.WaID)
	assert.Equal(t, "wamid.abc", ev.MessageID)
	assert.Equal(t, EventText, ev.Kind)
	assert.Equal(t, "Hello", ev.Text)
	assert.Equal(t, "Hello", ev.Input())
	assert.Equal(t, time.Unix(1748779200, 0).UTC(), ev.Timestamp)
}

func TestDecodeInteractiveReplies(t *testing.T) {
	body := `{"entry":[{"changes":[{"field":"messages","value":{"messages":[
	  {"from":"u1","id":"m1","type":"interactive","interactive":{"type":"button_reply","button_reply":{"id":"main_menu","title":"Main Menu"}}},
	  {"from":"u1","id":"m2","type":"interactive","interactive":{"type":"list_reply","list_reply":{"id":"uk","title":"United Kingdom"}}}
	]}}]}]}`

	events, err := DecodeEvents([]byte(body))
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, EventButtonReply, events[0].Kind)
	assert.Equal(t, "main_menu", events[0].Input())
	assert.Equal(t, EventListReply, events[1].Kind)
	assert.Equal(t, "uk", events[1].Input())
	assert.Equal(t, "United Kingdom", events[1].ReplyTitle)
}

func TestDecodeSkipsStatusesAndUnknownTypes(t *testing.T) {
	body := `{"entry":[{"changes":[
	  {"field":"messages","value":{"statuses":[{"id":"wamid.x","status":"delivered"}]}},
	  {"field":"messages","value":{"messages":[{"from":"u1","id":"m1","type":"image"}]}},
	  {"field":"account_update","value":{}}
	]}]}`

	events, err := DecodeEvents([]byte(body))
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestDecodeRejectsMalformedBody(t *testing.T) {
	_, err := DecodeEvents([]byte("{not json"))
	assert.Error(t, err)
}

func TestVerifySignature(t *testing.T) {
	secret := "app-secret"
	body := []byte(`{"entry":[]}`)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	sig := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	assert.True(t, VerifySignature(secret, body, sig))
	assert.False(t, VerifySignature(secret, body, "sha256=deadbeef"))
	assert.False(t, VerifySignature(secret, body, "no-prefix"))
	assert.False(t, VerifySignature(secret, []byte("tampered"), sig))

	// Empty secret disables checking.
	assert.True(t, VerifySignature("", body, ""))
}

func TestRedactToken(t *testing.T) {
	in := `Post "https://graph.facebook.com": Bearer EAAGm0PX4ZCpsBO leaked`
	out := RedactToken(in)
	assert.NotContains(t, out, "EAAGm0PX4ZCpsBO")
	assert.Contains(t, out, "Bearer <redacted>")
}
