package events

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/pcsd/pkg/log"
)

func receive(t *testing.T, sub Subscriber) *Event {
	t.Helper()
	select {
	case ev := <-sub:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestBrokerPublishSubscribe(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub1 := b.Subscribe()
	sub2 := b.Subscribe()
	assert.Equal(t, 2, b.SubscriberCount())

	b.Publish(&Event{Type: EventClusterAdded, Message: "cluster dwarf8 added"})

	for _, sub := range []Subscriber{sub1, sub2} {
		ev := receive(t, sub)
		assert.Equal(t, EventClusterAdded, ev.Type)
		assert.NotEmpty(t, ev.ID)
		assert.False(t, ev.Timestamp.IsZero())
	}

	b.Unsubscribe(sub1)
	b.Unsubscribe(sub1)
	assert.Equal(t, 1, b.SubscriberCount())
}

func TestPublishAfterStopDoesNotBlock(t *testing.T) {
	b := NewBroker()
	b.Start()
	b.Stop()
	b.Stop()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 500; i++ {
			b.Publish(&Event{Type: EventCommandSucceeded})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked")
	}

	var nilBroker *Broker
	nilBroker.Publish(&Event{Type: EventTokenIssued})
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func TestLogEvents(t *testing.T) {
	buf := &syncBuffer{}
	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true, Output: buf})
	t.Cleanup(func() { log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true}) })

	b := NewBroker()
	b.Start()
	defer b.Stop()

	stop := LogEvents(b)
	require.Eventually(t, func() bool { return b.SubscriberCount() == 1 }, time.Second, 10*time.Millisecond)

	b.Publish(&Event{
		Type:     EventCommandSucceeded,
		Message:  "cluster_start",
		Metadata: map[string]string{"node": "cat8"},
	})

	require.Eventually(t, func() bool {
		return strings.Contains(buf.String(), `"type":"command.succeeded"`)
	}, 2*time.Second, 10*time.Millisecond)
	stop()

	assert.Contains(t, buf.String(), `"node":"cat8"`)
	assert.Contains(t, buf.String(), `"component":"audit"`)
	assert.Equal(t, 0, b.SubscriberCount())
}

func TestAuditFillsIdentity(t *testing.T) {
	var buf bytes.Buffer
	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true, Output: &buf})
	t.Cleanup(func() { log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true}) })

	event := &Event{
		Type:     EventPeerAuthenticated,
		Message:  "peer authenticated",
		Metadata: map[string]string{"node": "ace8"},
	}
	Audit(event)

	assert.NotEmpty(t, event.ID)
	assert.False(t, event.Timestamp.IsZero())
	assert.Contains(t, buf.String(), `"type":"peer.authenticated"`)
	assert.Contains(t, buf.String(), `"event_id":"`+event.ID+`"`)
}
