package capture

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"camguard/internal/stream"
)

func TestSnapshotCapturer_Run_DeliversFrameOnEachTick(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write([]byte("jpegbytes"))
	}))
	defer srv.Close()

	spec := stream.Spec{ID: uuid.New(), Name: "gate", Source: stream.SourceSnapshot, SourceLocator: srv.URL, CaptureInterval: time.Second}
	c := NewSnapshotCapturer(spec)
	c.interval = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	queue := make(chan stream.CapturedFrame, 10)
	c.Run(ctx, queue)

	require.GreaterOrEqual(t, len(queue), 1)
	frame := <-queue
	assert.Equal(t, []byte("jpegbytes"), frame.Data)
}

func TestSnapshotCapturer_Run_SkipsNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	spec := stream.Spec{ID: uuid.New(), Name: "gate", Source: stream.SourceSnapshot, SourceLocator: srv.URL, CaptureInterval: time.Second}
	c := NewSnapshotCapturer(spec)
	c.interval = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()

	queue := make(chan stream.CapturedFrame, 10)
	c.Run(ctx, queue)

	assert.Empty(t, queue)
}
