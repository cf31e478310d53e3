package media

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// UnknownDuration is recorded when the source cannot be probed.
const UnknownDuration = "Unknown"

type Prober interface {
	ProbeDuration(ctx context.Context, path string) (float64, error)
}

type FFprobe struct {
	path   string
	runner Runner
}

func NewFFprobe(path string, runner Runner) *FFprobe {
	return &FFprobe{path: path, runner: runner}
}

// ProbeDuration returns the container duration of path in seconds.
func (p *FFprobe) ProbeDuration(ctx context.Context, path string) (float64, error) {
	out, err := p.runner.Run(ctx, p.path,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, err
	}

	raw := strings.TrimSpace(string(out))
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("unexpected ffprobe duration %q: %w", raw, err)
	}
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		return 0, fmt.Errorf("unexpected ffprobe duration %q", raw)
	}
	return seconds, nil
}

// FormatDuration renders whole minutes and seconds, e.g. "2m 5s".
func FormatDuration(seconds float64) string {
	total := int(seconds)
	return fmt.Sprintf("%dm %ds", total/60, total%60)
}
