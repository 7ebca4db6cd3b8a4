// Package stream holds the data model shared by capturers, the frame store,
// and the stream manager: stream specs, source kinds, and captured frames.
package stream

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SourceType identifies how a stream's frames are produced.
type SourceType string

const (
	SourceRTSP     SourceType = "rtsp"
	SourceMJPEG    SourceType = "mjpeg"
	SourceSnapshot SourceType = "snapshot"
	SourceUSB      SourceType = "usb"
	SourceMock     SourceType = "mock"
)

// ParseSourceType validates a source_type string from a stream spec.
func ParseSourceType(s string) (SourceType, error) {
	switch SourceType(s) {
	case SourceRTSP, SourceMJPEG, SourceSnapshot, SourceUSB, SourceMock:
		return SourceType(s), nil
	default:
		return "", fmt.Errorf("unknown source_type: %q", s)
	}
}

// Spec describes one configured camera stream, as loaded from the store.
type Spec struct {
	ID              uuid.UUID
	Name            string
	Source          SourceType
	SourceLocator   string // URL or device name/index
	CaptureInterval time.Duration
	Enabled         bool
}

// NormalizedInterval clamps the capture interval to a minimum of 1 second.
func (s Spec) NormalizedInterval() time.Duration {
	if s.CaptureInterval < time.Second {
		return time.Second
	}
	return s.CaptureInterval
}

// CapturedFrame is a single JPEG frame pulled from a stream, destined for the
// analysis queue. It is produced by a capturer and consumed exactly once.
type CapturedFrame struct {
	StreamID   uuid.UUID
	StreamName string
	Data       []byte
	CapturedAt time.Time
}
