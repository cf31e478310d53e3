// Package mediatest provides in-process stand-ins for the ffmpeg backed media
// collaborators.
package mediatest

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/grafov/m3u8"

	"vodflow/internal/media"
)

// WriteHLS lays out an HLS output for ladder in dir the way ffmpeg does:
// master.m3u8 plus v{i}/prog.m3u8 and its segments. A source of
// durationSeconds is cut into ceil(durationSeconds/segmentSeconds) segments.
func WriteHLS(dir string, ladder media.Ladder, durationSeconds, segmentSeconds float64) error {
	segments := int(math.Ceil(durationSeconds / segmentSeconds))
	master := m3u8.NewMasterPlaylist()

	for _, r := range ladder {
		variantDir := filepath.Join(dir, fmt.Sprintf("v%d", r.Index))
		if err := os.MkdirAll(variantDir, 0o755); err != nil {
			return err
		}

		playlist, err := m3u8.NewMediaPlaylist(0, uint(max(segments, 1)))
		if err != nil {
			return err
		}
		remaining := durationSeconds
		for s := 0; s < segments; s++ {
			name := fmt.Sprintf("segment_%03d.ts", s)
			if err := os.WriteFile(filepath.Join(variantDir, name), []byte("ts"), 0o644); err != nil {
				return err
			}
			if err := playlist.Append(name, math.Min(segmentSeconds, remaining), ""); err != nil {
				return err
			}
			remaining -= segmentSeconds
		}
		playlist.Close()

		if err := os.WriteFile(filepath.Join(dir, filepath.FromSlash(r.PlaylistPath())), playlist.Encode().Bytes(), 0o644); err != nil {
			return err
		}

		master.Append(r.PlaylistPath(), playlist, m3u8.VariantParams{
			Bandwidth:  uint32(r.Bandwidth()),
			Resolution: r.Resolution(),
		})
	}

	return os.WriteFile(filepath.Join(dir, media.MasterPlaylistName), master.Encode().Bytes(), 0o644)
}

// Encoder writes a fake HLS tree instead of running ffmpeg.
type Encoder struct {
	DurationSeconds float64
	SegmentSeconds  float64
	Err             error

	mu    sync.Mutex
	calls int
}

func (e *Encoder) Encode(ctx context.Context, src string, ladder media.Ladder, outDir string) error {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	if e.Err != nil {
		return e.Err
	}
	if err := ladder.Validate(); err != nil {
		return err
	}
	return WriteHLS(outDir, ladder, e.DurationSeconds, e.SegmentSeconds)
}

func (e *Encoder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

type Prober struct {
	Seconds float64
	Err     error
}

func (p *Prober) ProbeDuration(ctx context.Context, path string) (float64, error) {
	return p.Seconds, p.Err
}

// Thumbnailer encodes a solid frame of Width x Height to the requested path.
type Thumbnailer struct {
	Width  int
	Height int
	Err    error
	// Partial leaves a truncated file behind before failing.
	Partial bool
}

func (t *Thumbnailer) ExtractFrame(ctx context.Context, src string, seek time.Duration, outPath string) error {
	if t.Err != nil {
		if t.Partial {
			_ = os.WriteFile(outPath, []byte{0xff}, 0o644)
		}
		return t.Err
	}

	w, h := t.Width, t.Height
	if w == 0 || h == 0 {
		w, h = 64, 36
	}

	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer f.Close()

	return media.EncodeImage(f, Frame(w, h), filepath.Ext(outPath)[1:], 90)
}

// Frame returns a solid test image.
func Frame(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 40, B: 40, A: 255})
		}
	}
	return img
}
