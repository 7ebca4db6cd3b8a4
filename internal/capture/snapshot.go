package capture

import (
	"context"
	"io"
	"log"
	"net/http"
	"time"

	"camguard/internal/stream"
)

const snapshotTimeout = 10 * time.Second

// SnapshotCapturer polls a Snapshot source URL on a fixed interval. Unlike
// SubprocessCapturer it never touches the FrameStore: a snapshot source has
// no live MJPEG stream to serve, only discrete analysis frames.
type SnapshotCapturer struct {
	Spec   stream.Spec
	client *http.Client

	// interval is the normalized poll period; overridable in tests.
	interval time.Duration
}

// NewSnapshotCapturer builds a capturer for the given spec.
func NewSnapshotCapturer(spec stream.Spec) *SnapshotCapturer {
	return &SnapshotCapturer{
		Spec:     spec,
		client:   &http.Client{Timeout: snapshotTimeout},
		interval: spec.NormalizedInterval(),
	}
}

// Run polls until ctx is canceled. Every successful fetch is blocking-sent to
// queue; the poll interval already throttles this path, so there is no
// benefit to a try-send drop policy here.
func (c *SnapshotCapturer) Run(ctx context.Context, queue chan<- stream.CapturedFrame) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			frame, ok := c.fetch(ctx)
			if !ok {
				continue
			}
			select {
			case queue <- frame:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (c *SnapshotCapturer) fetch(ctx context.Context) (stream.CapturedFrame, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Spec.SourceLocator, nil)
	if err != nil {
		log.Printf("[capture.Snapshot] stream=%s build request failed: %v", c.Spec.Name, err)
		return stream.CapturedFrame{}, false
	}

	resp, err := c.client.Do(req)
	if err != nil {
		log.Printf("[capture.Snapshot] stream=%s request failed: %v", c.Spec.Name, err)
		return stream.CapturedFrame{}, false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("[capture.Snapshot] stream=%s unexpected status %d", c.Spec.Name, resp.StatusCode)
		return stream.CapturedFrame{}, false
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Printf("[capture.Snapshot] stream=%s read body failed: %v", c.Spec.Name, err)
		return stream.CapturedFrame{}, false
	}

	return stream.CapturedFrame{
		StreamID:   c.Spec.ID,
		StreamName: c.Spec.Name,
		Data:       data,
		CapturedAt: time.Now(),
	}, true
}
