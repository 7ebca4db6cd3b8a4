// Package manager owns the lifecycle of one capturer task per stream: start,
// stop, and restart under concurrent API-driven mutation.
package manager

import (
	"context"
	"log"
	"sync"

	"github.com/google/uuid"

	"camguard/internal/capture"
	"camguard/internal/framestore"
	"camguard/internal/store"
	"camguard/internal/stream"
)

// runner is implemented by both SubprocessCapturer and SnapshotCapturer.
type runner interface {
	Run(ctx context.Context, queue chan<- stream.CapturedFrame)
}

type handle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager holds the shared sender end of the analysis queue, the FrameStore,
// and one capturer task handle per stream id, guarded by mu. StopStream and
// RestartStream keep at most one task per stream id; StartStream on an id that
// is already running does not stop the earlier task.
type Manager struct {
	store       store.Store
	frameStore  *framestore.Store
	analysisOut chan<- stream.CapturedFrame

	mu      sync.Mutex
	handles map[uuid.UUID]*handle
}

// New builds a Manager. analysisOut is the shared send end of the bounded
// analysis queue; every capturer writes to the same channel.
func New(st store.Store, frameStore *framestore.Store, analysisOut chan<- stream.CapturedFrame) *Manager {
	return &Manager{
		store:       st,
		frameStore:  frameStore,
		analysisOut: analysisOut,
		handles:     make(map[uuid.UUID]*handle),
	}
}

// StartAll queries enabled streams from the store and starts a capturer for
// each.
func (m *Manager) StartAll(ctx context.Context) error {
	specs, err := m.store.ListStreams(ctx, nil)
	if err != nil {
		return err
	}
	for _, spec := range specs {
		if !spec.Enabled {
			continue
		}
		m.StartStream(spec)
	}
	return nil
}

// StartStream constructs the appropriate capturer for spec.Source and spawns
// it as a goroutine. Idempotency is not enforced here: calling StartStream
// twice for the same id leaks the first task's handle from the map (the
// second overwrites it) while the first goroutine keeps running, since
// capturers retry on source errors and nothing is left to cancel its context.
// RestartStream is the supported way to replace a running capturer.
func (m *Manager) StartStream(spec stream.Spec) {
	var r runner
	if spec.Source == stream.SourceSnapshot {
		r = capture.NewSnapshotCapturer(spec)
	} else {
		r = capture.NewSubprocessCapturer(spec, m.frameStore)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	m.mu.Lock()
	m.handles[spec.ID] = &handle{cancel: cancel, done: done}
	m.mu.Unlock()

	go func() {
		defer close(done)
		r.Run(ctx, m.analysisOut)
	}()

	log.Printf("[manager] started stream=%s (%s)", spec.Name, spec.Source)
}

// StopStream aborts the capturer task for id and removes its handle. A
// torn-down capturer's in-flight frames may still arrive at the analysis
// queue; the worker pool tolerates stale stream ids.
func (m *Manager) StopStream(id uuid.UUID) {
	m.mu.Lock()
	h, ok := m.handles[id]
	if ok {
		delete(m.handles, id)
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	h.cancel()
	<-h.done
	log.Printf("[manager] stopped stream=%s", id)
}

// RestartStream is a sequential StopStream then StartStream. Between the two
// calls no capture occurs for spec.ID; live viewers may momentarily see an
// empty channel.
func (m *Manager) RestartStream(spec stream.Spec) {
	m.StopStream(spec.ID)
	m.StartStream(spec)
}

// Running reports whether a capturer handle currently exists for id.
func (m *Manager) Running(id uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.handles[id]
	return ok
}

// StopAll aborts every running capturer; used on process shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	ids := make([]uuid.UUID, 0, len(m.handles))
	for id := range m.handles {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.StopStream(id)
	}
}
