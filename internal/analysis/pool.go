// Package analysis runs the pool of workers that turn CapturedFrames into
// persisted, broadcast AnalysisResults.
package analysis

import (
	"context"
	"log"
	"strings"
	"sync"

	"camguard/internal/eventbus"
	"camguard/internal/store"
	"camguard/internal/stream"
	"camguard/internal/vlm"
)

// DefaultWorkers is used when no explicit worker count is configured.
const DefaultWorkers = 4

// AlertSender dispatches a high-risk notification; satisfied by
// *alert.Dispatcher. Send must never fail the caller.
type AlertSender interface {
	Send(ctx context.Context, streamName, riskLevel, description string)
}

// Pool is N worker goroutines sharing one receive end of the bounded
// analysis queue behind a mutex. A single bad frame never terminates a
// worker: process errors are logged and the loop continues.
type Pool struct {
	workers int
	queue   <-chan stream.CapturedFrame
	recvMu  sync.Mutex

	vlmClient vlm.Client
	store     store.Store
	bus       *eventbus.Bus
	alerts    AlertSender
}

// New builds a worker pool. queue is the shared receive end of the analysis
// channel; every worker goroutine contends for recvMu before reading it.
func New(workers int, queue <-chan stream.CapturedFrame, vlmClient vlm.Client, st store.Store, bus *eventbus.Bus, alerts AlertSender) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Pool{
		workers:   workers,
		queue:     queue,
		vlmClient: vlmClient,
		store:     st,
		bus:       bus,
		alerts:    alerts,
	}
}

// Run starts the worker goroutines and blocks until every one of them exits,
// which happens when the queue is closed.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(p.workers)
	for i := 0; i < p.workers; i++ {
		go func(id int) {
			defer wg.Done()
			p.workerLoop(ctx, id)
		}(i)
	}
	wg.Wait()
}

func (p *Pool) workerLoop(ctx context.Context, id int) {
	for {
		frame, ok := p.recv()
		if !ok {
			log.Printf("[analysis.worker %d] frame queue closed, exiting", id)
			return
		}

		if err := p.processFrame(ctx, frame); err != nil {
			log.Printf("[analysis.worker %d] stream=%s frame processing error: %v", id, frame.StreamName, err)
		}
	}
}

// recv acquires recvMu only for the duration of the channel read itself, so
// any number of workers can be waiting to acquire it while one blocks inside
// the receive.
func (p *Pool) recv() (stream.CapturedFrame, bool) {
	p.recvMu.Lock()
	defer p.recvMu.Unlock()
	frame, ok := <-p.queue
	return frame, ok
}

func (p *Pool) processFrame(ctx context.Context, frame stream.CapturedFrame) error {
	rules, err := p.store.ListRules(ctx, frame.StreamID)
	if err != nil {
		log.Printf("[analysis] stream=%s list_rules failed, proceeding with no rules: %v", frame.StreamName, err)
		rules = nil
	}

	result, err := p.vlmClient.Analyze(ctx, frame.Data, frame.StreamName, rules)
	if err != nil {
		return err
	}

	rec, err := p.store.InsertEvent(ctx, store.EventRecord{
		StreamID:      frame.StreamID,
		CapturedAt:    frame.CapturedAt,
		Description:   result.Description,
		Events:        result.Events,
		RiskLevel:     result.RiskLevel,
		TriggeredRule: normalize(result.TriggeredRule),
		Title:         normalize(result.Title),
		Frame:         frame.Data,
		Status:        store.StatusUnresolved,
	})
	if err != nil {
		return err
	}

	p.bus.Publish(rec)

	if result.RiskLevel == vlm.RiskHigh && p.alerts != nil {
		go p.alerts.Send(context.Background(), frame.StreamName, string(result.RiskLevel), result.Description)
	}

	return nil
}

// normalize trims s and returns nil for an empty result, so a blank
// title/triggered_rule from the model is stored as absent rather than "".
func normalize(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
