// Package capture runs the two capturer variants (subprocess-driven and
// HTTP-snapshot) that turn a stream source into a sequence of CapturedFrame
// values.
package capture

import (
	"fmt"
	"runtime"

	"camguard/internal/stream"
)

// liveFPS is the fixed output rate for subprocess capturers.
const liveFPS = 15

// buildFfmpegArgs returns the ffmpeg argument list for a non-Snapshot
// source. sourceURL is the already-resolved input (a direct file path, RTSP
// URL, MJPEG URL, device name/path, or a resolved CDN URL for Mock-web).
//
// -strict unofficial must be an output option (after -i) to reach the mjpeg
// encoder; some ffmpeg builds silently drop it if placed before -i.
func buildFfmpegArgs(source stream.SourceType, sourceURL string, loop bool) ([]string, error) {
	args := []string{"-y"}

	switch source {
	case stream.SourceRTSP:
		args = append(args, "-rtsp_transport", "tcp", "-i", sourceURL,
			"-vf", fmt.Sprintf("fps=%d", liveFPS))
	case stream.SourceMJPEG:
		args = append(args, "-i", sourceURL,
			"-vf", fmt.Sprintf("fps=%d", liveFPS))
	case stream.SourceUSB:
		args = append(args, usbInputArgs(sourceURL)...)
	case stream.SourceMock:
		if loop {
			args = append(args, "-stream_loop", "-1")
		}
		args = append(args, "-i", sourceURL,
			"-vf", fmt.Sprintf("fps=%d", liveFPS))
	default:
		return nil, fmt.Errorf("capture: source type %q has no ffmpeg command (use SnapshotCapturer)", source)
	}

	args = append(args, "-strict", "unofficial", "-f", "image2pipe", "-vcodec", "mjpeg", "pipe:1")
	return args, nil
}

// usbInputArgs selects the platform-specific input device flags. Windows
// DirectShow devices reject forced input framerates on some hardware, so the
// fps filter is applied on the output side instead; Linux v4l2 takes the
// framerate directly on the input since that is the one platform where it
// reliably works.
func usbInputArgs(device string) []string {
	switch runtime.GOOS {
	case "windows":
		return []string{
			"-f", "dshow",
			"-rtbufsize", "100M",
			"-i", fmt.Sprintf("video=%s", device),
			"-vf", fmt.Sprintf("fps=%d", liveFPS),
		}
	case "darwin":
		return []string{
			"-f", "avfoundation",
			"-i", device,
			"-vf", fmt.Sprintf("fps=%d", liveFPS),
		}
	default: // linux and anything else with v4l2 support
		return []string{
			"-f", "v4l2",
			"-framerate", fmt.Sprintf("%d", liveFPS),
			"-i", device,
		}
	}
}
