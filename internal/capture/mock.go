package capture

import (
	"context"
	"os/exec"
	"strings"
)

// resolveMockSource decides whether a Mock source locator is a local file
// (played on loop) or a web URL (resolved to a direct CDN URL via yt-dlp,
// since URLs like that expire and must be re-resolved on every restart).
// Returns the effective ffmpeg input and whether ffmpeg should loop it.
func resolveMockSource(ctx context.Context, locator string) (effectiveURL string, loop bool, err error) {
	if !strings.HasPrefix(locator, "http://") && !strings.HasPrefix(locator, "https://") {
		return locator, true, nil
	}

	cmd := exec.CommandContext(ctx, "yt-dlp", "-g", "--no-playlist", "-f", "best[ext=mp4]/best", locator)
	out, err := cmd.Output()
	if err != nil {
		return "", false, err
	}

	resolved := strings.TrimSpace(strings.SplitN(string(out), "\n", 2)[0])
	if resolved == "" {
		return "", false, errEmptyResolution
	}
	return resolved, false, nil
}

var errEmptyResolution = errResolution("yt-dlp returned an empty URL")

type errResolution string

func (e errResolution) Error() string { return string(e) }
