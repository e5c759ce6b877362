package sender

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/innovaedu/wabot/core/whatsapp"
)

type fakeSender struct {
	mu    sync.Mutex
	sent  []sentPart
	fails map[string]int
}

type sentPart struct {
	to   string
	body string
}

func (f *fakeSender) Send(_ context.Context, to string, msg whatsapp.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n := f.fails[msg.Body]; n > 0 {
		f.fails[msg.Body] = n - 1
		return &whatsapp.APIError{HTTPStatus: 500, Message: "server error"}
	}
	f.sent = append(f.sent, sentPart{to: to, body: msg.Body})
	return nil
}

func (f *fakeSender) bodiesFor(to string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, p := range f.sent {
		if p.to == to {
			out = append(out, p.body)
		}
	}
	return out
}

func texts(bodies ...string) []whatsapp.Message {
	msgs := make([]whatsapp.Message, len(bodies))
	for i, b := range bodies {
		msgs[i] = whatsapp.Text(b)
	}
	return msgs
}

func TestSequencePartsStayOrdered(t *testing.T) {
	fake := &fakeSender{}
	d := NewDispatcher(fake, Options{Shards: 4})

	require.NoError(t, d.EnqueueSequence(context.Background(), "u1", texts("a", "b", "c")))
	require.NoError(t, d.EnqueueSequence(context.Background(), "u1", texts("d", "e")))
	d.Close()

	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, fake.bodiesFor("u1"))
	assert.Equal(t, uint64(0), d.ErrorCount())
}

func TestIndependentRecipientsEachKeepOrder(t *testing.T) {
	fake := &fakeSender{}
	d := NewDispatcher(fake, Options{Shards: 8})

	for i := 0; i < 20; i++ {
		require.NoError(t, d.EnqueueSequence(context.Background(), "alice", texts("a1", "a2")))
		require.NoError(t, d.EnqueueSequence(context.Background(), "bob", texts("b1", "b2")))
	}
	d.Close()

	for _, to := range []string{"alice", "bob"} {
		bodies := fake.bodiesFor(to)
		require.Len(t, bodies, 40)
		for i := 0; i < len(bodies); i += 2 {
			assert.Equal(t, string(to[0])+"1", bodies[i])
			assert.Equal(t, string(to[0])+"2", bodies[i+1])
		}
	}
}

func TestTransientErrorRetried(t *testing.T) {
	fake := &fakeSender{fails: map[string]int{"flaky": 1}}
	d := NewDispatcher(fake, Options{
		MaxRetries:   2,
		RetryBackoff: time.Millisecond,
	})

	require.NoError(t, d.EnqueueSequence(context.Background(), "u1", texts("flaky", "next")))
	d.Close()

	assert.Equal(t, []string{"flaky", "next"}, fake.bodiesFor("u1"))
	assert.Equal(t, uint64(0), d.ErrorCount())
}

func TestExhaustedRetriesDropRestOfSequence(t *testing.T) {
	fake := &fakeSender{fails: map[string]int{"doomed": 10}}
	d := NewDispatcher(fake, Options{
		MaxRetries:   1,
		RetryBackoff: time.Millisecond,
	})

	require.NoError(t, d.EnqueueSequence(context.Background(), "u1", texts("doomed", "never")))
	d.Close()

	assert.Empty(t, fake.bodiesFor("u1"))
	assert.Equal(t, uint64(1), d.ErrorCount())
}

func TestEnqueueAfterCloseRejected(t *testing.T) {
	d := NewDispatcher(&fakeSender{}, Options{})
	d.Close()

	err := d.EnqueueSequence(context.Background(), "u1", texts("late"))
	assert.True(t, errors.Is(err, ErrQueueClosed))
}

func TestEmptySequenceIsNoop(t *testing.T) {
	d := NewDispatcher(&fakeSender{}, Options{})
	defer d.Close()

	assert.NoError(t, d.EnqueueSequence(context.Background(), "u1", nil))
	assert.Error(t, d.EnqueueSequence(context.Background(), "", texts("x")))
}

func TestShardForIsStable(t *testing.T) {
	a := shardFor("923001234567", 8)
	for i := 0; i < 100; i++ {
		assert.Equal(t, a, shardFor("923001234567", 8))
	}
	assert.Less(t, a, 8)
	assert.GreaterOrEqual(t, a, 0)
}
