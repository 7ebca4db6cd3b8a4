package eventbus

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"camguard/internal/store"
)

func TestPublish_NoSubscribersIsNotAnError(t *testing.T) {
	b := New()
	b.Publish(store.EventRecord{ID: uuid.New()})
}

func TestSubscribe_ReceivesPublishedRecord(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe()
	defer unsub()

	rec := store.EventRecord{ID: uuid.New(), Description: "x"}
	b.Publish(rec)

	select {
	case msg := <-ch:
		require.NotNil(t, msg.Record)
		assert.Equal(t, rec.ID, msg.Record.ID)
		assert.Zero(t, msg.Missed)
	default:
		t.Fatal("expected a message on the subscriber channel")
	}
}

func TestSubscribe_LaggingSubscriberGetsLagWarningThenResumes(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe()
	defer unsub()

	total := Capacity + 10
	for i := 0; i < total; i++ {
		b.Publish(store.EventRecord{ID: uuid.New()})
	}

	// The channel buffers Capacity records; the 10 overflow publishes were
	// dropped and counted as missed.
	records := 0
drain:
	for {
		select {
		case msg := <-ch:
			require.NotNil(t, msg.Record)
			records++
		default:
			break drain
		}
	}
	assert.Equal(t, Capacity, records)

	// Once the subscriber has room again, the next publish is preceded by a
	// lag warning carrying the missed count.
	b.Publish(store.EventRecord{ID: uuid.New()})

	lag := <-ch
	require.Nil(t, lag.Record)
	assert.Equal(t, 10, lag.Missed)

	resumed := <-ch
	require.NotNil(t, resumed.Record)
}

func TestUnsubscribe_ClosesChannel(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe()
	unsub()

	_, ok := <-ch
	assert.False(t, ok)
}
