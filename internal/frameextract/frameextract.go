// Package frameextract splits a raw MJPEG byte stream into individual JPEG
// frames using the SOI/EOI markers (0xFFD8 / 0xFFD9). It does no real JPEG
// segment parsing; MJPEG pipes from a media-tool subprocess never
// interleave images, so marker scanning is sufficient.
package frameextract

// soi is the JPEG start-of-image marker.
var soi = [2]byte{0xFF, 0xD8}

// eoi is the JPEG end-of-image marker.
var eoi = [2]byte{0xFF, 0xD9}

// Extract scans data for complete JPEG frames and returns them along with the
// unconsumed trailing remainder. Callers accumulate new bytes onto the
// remainder and call Extract again.
//
// Rules:
//   - A spurious EOI before any SOI is dropped silently.
//   - A new SOI before a matching EOI discards the prior partial frame.
//   - FF bytes not followed by D8/D9 are ignored for framing purposes.
func Extract(data []byte) (frames [][]byte, remainder []byte) {
	start := -1

	for i := 0; i+1 < len(data); i++ {
		if data[i] == soi[0] && data[i+1] == soi[1] {
			// New SOI discards any partial frame already pending.
			start = i
		}
		if data[i] == eoi[0] && data[i+1] == eoi[1] {
			if start >= 0 {
				// +2 to include the EOI marker bytes.
				frame := make([]byte, i+2-start)
				copy(frame, data[start:i+2])
				frames = append(frames, frame)
				start = -1
			}
		}
	}

	if start >= 0 {
		remainder = make([]byte, len(data)-start)
		copy(remainder, data[start:])
	}

	return frames, remainder
}
