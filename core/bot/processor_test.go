package bot

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/innovaedu/wabot/core/flow"
	"github.com/innovaedu/wabot/core/recorder"
	"github.com/innovaedu/wabot/core/session"
	"github.com/innovaedu/wabot/core/whatsapp"
)

type capture struct {
	mu      sync.Mutex
	calls   []string
	sent    [][]whatsapp.Message
	records []recorder.Record
	sinkErr error
}

func (c *capture) EnqueueSequence(_ context.Context, to string, msgs []whatsapp.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, "enqueue")
	c.sent = append(c.sent, msgs)
	return nil
}

func (c *capture) Record(_ context.Context, rec recorder.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, "record")
	c.records = append(c.records, rec)
	return c.sinkErr
}

func newTestProcessor(tap *capture) (*Processor, session.Store) {
	store := session.NewMemoryStore()
	engine := flow.New(flow.Options{
		Now: func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) },
	})
	return New(store, engine, tap, tap), store
}

func textEvent(waID, body string) whatsapp.Event {
	return whatsapp.Event{WaID: waID, MessageID: "wamid." + body, Kind: whatsapp.EventText, Text: body}
}

func TestHandleEventCreatesSessionAndReplies(t *testing.T) {
	tap := &capture{}
	p, store := newTestProcessor(tap)

	p.HandleEvent(context.Background(), textEvent("u1", "hi"))

	sess, ok := store.Peek("u1")
	require.True(t, ok)
	assert.Equal(t, session.Step("main_menu"), sess.Step)
	require.Len(t, tap.sent, 1)
	assert.NotEmpty(t, tap.sent[0])
}

func TestHandleEventButtonReplyUsesReplyID(t *testing.T) {
	tap := &capture{}
	p, store := newTestProcessor(tap)

	p.HandleEvent(context.Background(), textEvent("u1", "hi"))
	p.HandleEvent(context.Background(), whatsapp.Event{
		WaID:      "u1",
		MessageID: "wamid.btn",
		Kind:      whatsapp.EventButtonReply,
		Text:      "Main Menu",
		ReplyID:   "main_menu",
	})

	sess, _ := store.Peek("u1")
	assert.Equal(t, session.Step("main_menu"), sess.Step)
}

func TestRecordPersistedAfterEnqueue(t *testing.T) {
	tap := &capture{}
	p, store := newTestProcessor(tap)

	sess := store.Get("u1")
	sess.Step = session.Step("booking_notes")
	sess.Data = map[string]string{
		"firstName": "Ali", "lastName": "Raza", "degree": "BSc", "gpa": "3.5",
		"budget": "$20k", "preferredCountry": "UK", "email": "ali@example.com", "phone": "+92300",
	}

	p.HandleEvent(context.Background(), textEvent("u1", "none"))

	require.Len(t, tap.records, 1)
	assert.Equal(t, recorder.KindConsultation, tap.records[0].Kind)
	require.GreaterOrEqual(t, len(tap.calls), 2)
	assert.Equal(t, "enqueue", tap.calls[0])
	assert.Equal(t, "record", tap.calls[1])
}

func TestRecordFailureDoesNotBlockReply(t *testing.T) {
	tap := &capture{sinkErr: errors.New("db down")}
	p, store := newTestProcessor(tap)

	sess := store.Get("u1")
	sess.Step = session.Step("booking_notes")
	sess.Data = map[string]string{"firstName": "Ali"}

	p.HandleEvent(context.Background(), textEvent("u1", "none"))

	require.Len(t, tap.sent, 1)
	assert.NotEmpty(t, tap.sent[0])
	got, _ := store.Peek("u1")
	assert.Equal(t, session.Step("after_booking_link"), got.Step)
}

func TestSameIdentityEventsSerialized(t *testing.T) {
	tap := &capture{}
	p, store := newTestProcessor(tap)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.HandleEvent(context.Background(), textEvent("u1", "hi"))
		}()
	}
	wg.Wait()

	// Every greeting yields the same two-part welcome sequence no matter
	// how the events interleave, and the session lands on the main menu,
	// exactly as sequential processing would leave it.
	require.Len(t, tap.sent, 50)
	for _, msgs := range tap.sent {
		require.Len(t, msgs, 2)
		assert.Equal(t, whatsapp.KindText, msgs[0].Kind)
		assert.Equal(t, whatsapp.KindButtons, msgs[1].Kind)
	}
	got, ok := store.Peek("u1")
	require.True(t, ok)
	assert.Equal(t, session.Step("main_menu"), got.Step)
}

// stallingCapture delays one enqueue so a concurrent event for the same
// identity gets a chance to overtake it.
type stallingCapture struct {
	capture
	stallOn int32
	seq     int32
	entered chan struct{}
	delay   time.Duration
}

func (s *stallingCapture) EnqueueSequence(ctx context.Context, to string, msgs []whatsapp.Message) error {
	if atomic.AddInt32(&s.seq, 1) == s.stallOn {
		close(s.entered)
		time.Sleep(s.delay)
	}
	return s.capture.EnqueueSequence(ctx, to, msgs)
}

func TestRepliesCommitInArrivalOrder(t *testing.T) {
	tap := &stallingCapture{stallOn: 2, entered: make(chan struct{}), delay: 20 * time.Millisecond}
	store := session.NewMemoryStore()
	engine := flow.New(flow.Options{
		Now: func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) },
	})
	p := New(store, engine, tap, &tap.capture)

	p.HandleEvent(context.Background(), textEvent("u1", "hi"))

	// The menu pick stalls inside the enqueue while the country pick
	// arrives behind it. The country reply must not overtake it.
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.HandleEvent(context.Background(), textEvent("u1", "1"))
	}()
	<-tap.entered
	p.HandleEvent(context.Background(), textEvent("u1", "1"))
	<-done

	require.Len(t, tap.sent, 3)
	assert.Contains(t, tap.sent[1][0].Body, "Fantastic choice!")
	assert.Contains(t, tap.sent[2][0].Body, "Great choice! United Kingdom")
	got, ok := store.Peek("u1")
	require.True(t, ok)
	assert.Equal(t, session.Step("study_abroad_form"), got.Step)
}

func TestRateLimitDropsRapidEvents(t *testing.T) {
	tap := &capture{}
	p, _ := newTestProcessor(tap)

	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p.limiter = newRateLimiter(time.Second, func() time.Time { return current })

	p.HandleEvent(context.Background(), textEvent("u1", "hi"))
	p.HandleEvent(context.Background(), textEvent("u1", "1"))
	require.Len(t, tap.sent, 1)

	current = current.Add(2 * time.Second)
	p.HandleEvent(context.Background(), textEvent("u1", "1"))
	assert.Len(t, tap.sent, 2)

	// Other identities are unaffected.
	p.HandleEvent(context.Background(), textEvent("u2", "hi"))
	assert.Len(t, tap.sent, 3)
}

func TestDistinctIdentitiesGetDistinctSessions(t *testing.T) {
	tap := &capture{}
	p, store := newTestProcessor(tap)

	p.HandleEvent(context.Background(), textEvent("u1", "hi"))
	p.HandleEvent(context.Background(), textEvent("u2", "hi"))

	assert.Equal(t, 2, store.Len())
}
