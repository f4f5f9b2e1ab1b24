package poller

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/fjod/commerce-engine/pkg/logger"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	messages chan kafka.Message
	m        sync.RWMutex
	closed   bool
}

func newFakeReader(values ...string) *fakeReader {
	r := &fakeReader{messages: make(chan kafka.Message, len(values))}
	for i, v := range values {
		r.messages <- kafka.Message{Topic: Topic, Offset: int64(i), Value: []byte(v)}
	}
	return r
}

func (r *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.messages:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) Close() error {
	r.m.Lock()
	defer r.m.Unlock()
	r.closed = true
	return nil
}

type mockDeleter struct {
	m       sync.RWMutex
	deleted []string
	err     error
}

func (d *mockDeleter) DeleteSession(_ context.Context, id string) error {
	d.m.Lock()
	defer d.m.Unlock()
	if d.err != nil {
		return d.err
	}
	d.deleted = append(d.deleted, id)
	return nil
}

func (d *mockDeleter) ids() []string {
	d.m.RLock()
	defer d.m.RUnlock()
	return append([]string(nil), d.deleted...)
}

func TestPoller_DeletesSessionFromEvent(t *testing.T) {
	reader := newFakeReader(
		`{"checkout_id":"ch1","session_id":"sess-1","user_id":"u1"}`,
		`{"checkout_id":"ch2","user_id":"u2"}`,
		`not json`,
		`{"checkout_id":"ch3"}`,
		`{"session_id":"sess-4"}`,
	)
	deleter := &mockDeleter{}
	p := NewPollerWithReader(deleter, reader, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return len(deleter.ids()) == 3
	}, time.Second, 10*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, []string{"sess-1", "u2", "sess-4"}, deleter.ids())
}

func TestPoller_DeleteErrorKeepsConsuming(t *testing.T) {
	reader := newFakeReader(`{"session_id":"a"}`, `{"session_id":"b"}`)
	deleter := &mockDeleter{err: errors.New("store down")}
	p := NewPollerWithReader(deleter, reader, logger.Nop())

	ctx := context.Background()
	assert.NoError(t, p.consumeOne(ctx))
	assert.NoError(t, p.consumeOne(ctx))
	assert.Empty(t, deleter.ids())
	assert.Empty(t, reader.messages)
}

// failingReader fails every read with err and counts the attempts.
type failingReader struct {
	err   error
	m     sync.RWMutex
	reads int
}

func (r *failingReader) ReadMessage(context.Context) (kafka.Message, error) {
	r.m.Lock()
	defer r.m.Unlock()
	r.reads++
	return kafka.Message{}, r.err
}

func (r *failingReader) Close() error { return nil }

func (r *failingReader) count() int {
	r.m.RLock()
	defer r.m.RUnlock()
	return r.reads
}

func TestPoller_StopsWhenReaderClosed(t *testing.T) {
	reader := &failingReader{err: io.EOF}
	p := NewPollerWithReader(&mockDeleter{}, reader, logger.Nop())

	done := make(chan struct{})
	go func() {
		p.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after the reader was closed")
	}
	assert.Equal(t, 1, reader.count())
}

func TestPoller_BacksOffOnReadError(t *testing.T) {
	reader := &failingReader{err: errors.New("broker unreachable")}
	p := NewPollerWithReader(&mockDeleter{}, reader, logger.Nop())
	p.retryDelay = 50 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()
	p.Run(ctx)

	// one read up front, then at most one per delay
	assert.GreaterOrEqual(t, reader.count(), 2)
	assert.LessOrEqual(t, reader.count(), 4)
}

func TestPoller_Close(t *testing.T) {
	reader := newFakeReader()
	p := NewPollerWithReader(&mockDeleter{}, reader, logger.Nop())
	p.Close()

	reader.m.RLock()
	defer reader.m.RUnlock()
	assert.True(t, reader.closed)
}

func TestParseSessionID(t *testing.T) {
	id, err := parseSessionID([]byte(`{"session_id":"s","user_id":"u"}`))
	require.NoError(t, err)
	assert.Equal(t, "s", id)

	id, err = parseSessionID([]byte(`{"user_id":"u"}`))
	require.NoError(t, err)
	assert.Equal(t, "u", id)

	_, err = parseSessionID([]byte(`{"user_id":42}`))
	assert.Error(t, err)

	_, err = parseSessionID([]byte(`{}`))
	assert.Error(t, err)
}
