package capture

import (
	"bufio"
	"context"
	"io"
	"log"
	"os/exec"
	"time"

	"camguard/internal/frameextract"
	"camguard/internal/framestore"
	"camguard/internal/stream"
)

const (
	spawnBackoff       = 5 * time.Second
	pipeClosedBackoff  = 3 * time.Second
	mockResolveBackoff = 10 * time.Second
	readChunkSize      = 64 * 1024
)

// SubprocessCapturer drives RTSP, MJPEG, USB and Mock sources by spawning an
// ffmpeg process and scanning its MJPEG stdout for complete JPEG frames.
type SubprocessCapturer struct {
	Spec  stream.Spec
	Store *framestore.Store

	// newCommand builds the ffmpeg command; overridable in tests.
	newCommand func(args []string) *exec.Cmd
}

// NewSubprocessCapturer builds a capturer for the given spec.
func NewSubprocessCapturer(spec stream.Spec, store *framestore.Store) *SubprocessCapturer {
	return &SubprocessCapturer{
		Spec:  spec,
		Store: store,
		newCommand: func(args []string) *exec.Cmd {
			return exec.Command("ffmpeg", args...)
		},
	}
}

// Run drives the capturer until ctx is canceled. Every extracted frame is
// pushed to the FrameStore; at most one frame per capture interval is
// try-sent to queue. Shutdown is signaled via ctx rather than by closing
// queue, since a per-stream capturer must be stoppable independently of the
// shared queue's lifetime.
func (c *SubprocessCapturer) Run(ctx context.Context, queue chan<- stream.CapturedFrame) {
	interval := c.Spec.NormalizedInterval()

	for {
		if ctx.Err() != nil {
			return
		}

		sourceURL := c.Spec.SourceLocator
		loop := false
		if c.Spec.Source == stream.SourceMock {
			resolved, shouldLoop, err := resolveMockSource(ctx, c.Spec.SourceLocator)
			if err != nil {
				log.Printf("[capture.Subprocess] stream=%s mock resolve failed: %v", c.Spec.Name, err)
				if !sleepOrDone(ctx, mockResolveBackoff) {
					return
				}
				continue
			}
			sourceURL = resolved
			loop = shouldLoop
		}

		args, err := buildFfmpegArgs(c.Spec.Source, sourceURL, loop)
		if err != nil {
			log.Printf("[capture.Subprocess] stream=%s %v", c.Spec.Name, err)
			return
		}

		cmd := c.newCommand(args)
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			log.Printf("[capture.Subprocess] stream=%s stdout pipe failed: %v", c.Spec.Name, err)
			if !sleepOrDone(ctx, spawnBackoff) {
				return
			}
			continue
		}

		if err := cmd.Start(); err != nil {
			log.Printf("[capture.Subprocess] stream=%s spawn failed: %v (is ffmpeg on PATH?)", c.Spec.Name, err)
			if !sleepOrDone(ctx, spawnBackoff) {
				return
			}
			continue
		}

		closed := c.pipeFrames(ctx, stdout, interval, queue)
		_ = cmd.Process.Kill()
		_ = cmd.Wait()

		if closed {
			return
		}

		log.Printf("[capture.Subprocess] stream=%s ffmpeg stdout closed, restarting in %s", c.Spec.Name, pipeClosedBackoff)
		if !sleepOrDone(ctx, pipeClosedBackoff) {
			return
		}
	}
}

// pipeFrames reads stdout until EOF or ctx cancellation, extracting and
// forwarding frames. Returns true if the capturer should terminate
// permanently (ctx canceled), false if it should restart the subprocess.
func (c *SubprocessCapturer) pipeFrames(ctx context.Context, stdout io.Reader, interval time.Duration, queue chan<- stream.CapturedFrame) bool {
	reader := bufio.NewReaderSize(stdout, readChunkSize)
	buf := make([]byte, 0, 512*1024)
	chunk := make([]byte, readChunkSize)

	lastAnalysis := time.Now().Add(-interval)

	for {
		if ctx.Err() != nil {
			return true
		}

		n, err := reader.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)

			frames, remainder := frameextract.Extract(buf)
			buf = remainder

			for _, frame := range frames {
				c.Store.Push(c.Spec.ID, frame)

				if time.Since(lastAnalysis) >= interval {
					lastAnalysis = time.Now()
					captured := stream.CapturedFrame{
						StreamID:   c.Spec.ID,
						StreamName: c.Spec.Name,
						Data:       frame,
						CapturedAt: time.Now(),
					}
					select {
					case queue <- captured:
					case <-ctx.Done():
						return true
					default:
						// queue full: drop, try again next interval
					}
				}
			}
		}

		if err != nil {
			return false
		}
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
