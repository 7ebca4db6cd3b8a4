package analysis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"camguard/internal/eventbus"
	"camguard/internal/store"
	"camguard/internal/stream"
	"camguard/internal/vlm"
)

type fakeVLM struct {
	result vlm.AnalysisResult
	err    error
	calls  int
	mu     sync.Mutex
}

func (f *fakeVLM) Analyze(ctx context.Context, jpeg []byte, streamName string, rules []vlm.Rule) (vlm.AnalysisResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.result, f.err
}

type fakeStore struct {
	mu     sync.Mutex
	events []store.EventRecord
}

func (f *fakeStore) ListStreams(ctx context.Context, b *store.BlueprintFilter) ([]stream.Spec, error) {
	return nil, nil
}
func (f *fakeStore) SetStreamEnabled(ctx context.Context, id uuid.UUID, enabled bool) (stream.Spec, error) {
	return stream.Spec{}, nil
}
func (f *fakeStore) ListRules(ctx context.Context, streamID uuid.UUID) ([]vlm.Rule, error) {
	return nil, nil
}
func (f *fakeStore) InsertEvent(ctx context.Context, rec store.EventRecord) (store.EventRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec.ID = uuid.New()
	rec.CreatedAt = time.Now()
	f.events = append(f.events, rec)
	return rec, nil
}
func (f *fakeStore) ListEvents(ctx context.Context, filter store.EventFilter) ([]store.EventRecord, error) {
	return f.events, nil
}
func (f *fakeStore) UpdateEventStatus(ctx context.Context, id uuid.UUID, status store.Status) (store.EventRecord, error) {
	return store.EventRecord{}, nil
}
func (f *fakeStore) AlertToNumber(ctx context.Context) (string, bool, error) {
	return "", false, nil
}

func TestProcessFrame_PersistsAndBroadcastsEvent(t *testing.T) {
	title := "  Person at door  "
	vlmClient := &fakeVLM{result: vlm.AnalysisResult{
		Title:       &title,
		Description: "someone approached",
		Events:      []vlm.DetectedEvent{{Type: "person_detected", Confidence: 0.8}},
		RiskLevel:   vlm.RiskLow,
	}}
	st := &fakeStore{}
	bus := eventbus.New()
	ch, unsub := bus.Subscribe()
	defer unsub()

	p := New(1, nil, vlmClient, st, bus, nil)

	frame := stream.CapturedFrame{StreamID: uuid.New(), StreamName: "driveway", Data: []byte{0xFF, 0xD8, 0xFF, 0xD9}, CapturedAt: time.Now()}
	require.NoError(t, p.processFrame(context.Background(), frame))

	require.Len(t, st.events, 1)
	assert.Equal(t, "Person at door", *st.events[0].Title)
	assert.Equal(t, vlm.RiskLow, st.events[0].RiskLevel)

	select {
	case msg := <-ch:
		require.NotNil(t, msg.Record)
		assert.Equal(t, st.events[0].ID, msg.Record.ID)
	default:
		t.Fatal("expected the persisted event to be broadcast")
	}
}

func TestProcessFrame_EmptyTitleBecomesNil(t *testing.T) {
	empty := "   "
	vlmClient := &fakeVLM{result: vlm.AnalysisResult{Title: &empty, Description: "x", RiskLevel: vlm.RiskNone}}
	st := &fakeStore{}
	bus := eventbus.New()

	p := New(1, nil, vlmClient, st, bus, nil)
	frame := stream.CapturedFrame{StreamID: uuid.New(), StreamName: "cam", Data: []byte("x")}
	require.NoError(t, p.processFrame(context.Background(), frame))

	require.Len(t, st.events, 1)
	assert.Nil(t, st.events[0].Title)
}

func TestProcessFrame_VlmErrorPropagates(t *testing.T) {
	vlmClient := &fakeVLM{err: errors.New("upstream down")}
	st := &fakeStore{}
	bus := eventbus.New()

	p := New(1, nil, vlmClient, st, bus, nil)
	frame := stream.CapturedFrame{StreamID: uuid.New(), StreamName: "cam", Data: []byte("x")}
	err := p.processFrame(context.Background(), frame)
	assert.Error(t, err)
	assert.Empty(t, st.events)
}

type fakeAlerts struct {
	mu         sync.Mutex
	calls      int
	streamName string
	desc       string
	done       chan struct{}
}

func (f *fakeAlerts) Send(ctx context.Context, streamName, riskLevel, description string) {
	f.mu.Lock()
	f.calls++
	f.streamName = streamName
	f.desc = description
	f.mu.Unlock()
	close(f.done)
}

func TestProcessFrame_HighRiskDispatchesAlertOnce(t *testing.T) {
	vlmClient := &fakeVLM{result: vlm.AnalysisResult{Description: "intruder at the fence", RiskLevel: vlm.RiskHigh}}
	st := &fakeStore{}
	bus := eventbus.New()
	ch, unsub := bus.Subscribe()
	defer unsub()

	alerts := &fakeAlerts{done: make(chan struct{})}
	p := New(1, nil, vlmClient, st, bus, alerts)

	frame := stream.CapturedFrame{StreamID: uuid.New(), StreamName: "fence", Data: []byte("x"), CapturedAt: time.Now()}
	require.NoError(t, p.processFrame(context.Background(), frame))

	// The event is persisted and broadcast regardless of alert delivery.
	require.Len(t, st.events, 1)
	select {
	case msg := <-ch:
		require.NotNil(t, msg.Record)
	default:
		t.Fatal("expected the persisted event to be broadcast")
	}

	// Alert dispatch is fire-and-forget, so wait for the goroutine.
	select {
	case <-alerts.done:
	case <-time.After(time.Second):
		t.Fatal("expected an alert dispatch for a high-risk result")
	}
	alerts.mu.Lock()
	defer alerts.mu.Unlock()
	assert.Equal(t, 1, alerts.calls)
	assert.Equal(t, "fence", alerts.streamName)
	assert.Equal(t, "intruder at the fence", alerts.desc)
}

func TestProcessFrame_LowRiskDoesNotAlert(t *testing.T) {
	vlmClient := &fakeVLM{result: vlm.AnalysisResult{Description: "x", RiskLevel: vlm.RiskLow}}
	st := &fakeStore{}
	alerts := &fakeAlerts{done: make(chan struct{})}
	p := New(1, nil, vlmClient, st, eventbus.New(), alerts)

	frame := stream.CapturedFrame{StreamID: uuid.New(), StreamName: "cam", Data: []byte("x")}
	require.NoError(t, p.processFrame(context.Background(), frame))

	select {
	case <-alerts.done:
		t.Fatal("low risk must not dispatch an alert")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRun_ExitsWhenQueueClosed(t *testing.T) {
	queue := make(chan stream.CapturedFrame)
	close(queue)

	p := New(2, queue, &fakeVLM{}, &fakeStore{}, eventbus.New(), nil)

	done := make(chan struct{})
	go func() {
		p.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after queue close")
	}
}

func TestRun_ProcessesFramesConcurrentlyAcrossWorkers(t *testing.T) {
	queue := make(chan stream.CapturedFrame, 8)
	for i := 0; i < 8; i++ {
		queue <- stream.CapturedFrame{StreamID: uuid.New(), StreamName: "cam", Data: []byte("x")}
	}
	close(queue)

	vlmClient := &fakeVLM{result: vlm.AnalysisResult{Description: "x", RiskLevel: vlm.RiskNone}}
	st := &fakeStore{}
	p := New(4, queue, vlmClient, st, eventbus.New(), nil)

	done := make(chan struct{})
	go func() {
		p.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not finish processing all frames")
	}

	assert.Equal(t, 8, vlmClient.calls)
	assert.Len(t, st.events, 8)
}
