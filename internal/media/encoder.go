package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	DefaultSegmentSeconds = 6
	DefaultPreset         = "veryfast"
)

type Encoder interface {
	Encode(ctx context.Context, src string, ladder Ladder, outDir string) error
}

// FFmpegEncoder transcodes a source into an HLS ladder with a single ffmpeg
// invocation: the input is decoded once and split per rendition.
type FFmpegEncoder struct {
	path           string
	runner         Runner
	segmentSeconds int
	preset         string
}

func NewFFmpegEncoder(path string, runner Runner, segmentSeconds int, preset string) *FFmpegEncoder {
	if segmentSeconds <= 0 {
		segmentSeconds = DefaultSegmentSeconds
	}
	if preset == "" {
		preset = DefaultPreset
	}
	return &FFmpegEncoder{path: path, runner: runner, segmentSeconds: segmentSeconds, preset: preset}
}

func (e *FFmpegEncoder) Encode(ctx context.Context, src string, ladder Ladder, outDir string) error {
	if err := ladder.Validate(); err != nil {
		return err
	}
	for _, r := range ladder {
		if err := os.MkdirAll(filepath.Join(outDir, fmt.Sprintf("v%d", r.Index)), 0o755); err != nil {
			return fmt.Errorf("failed to create variant directory: %w", err)
		}
	}

	_, err := e.runner.Run(ctx, e.path, e.Args(src, ladder, outDir)...)
	return err
}

// Args builds the ffmpeg command line. Ordinal i ties together [v{i}out],
// [a{i}], the -b:v:i bitrate and the v:i,a:i entry of the stream map, so
// variant playlist v{i} always carries rendition i.
func (e *FFmpegEncoder) Args(src string, ladder Ladder, outDir string) []string {
	n := len(ladder)

	var vSplit, aSplit, scales strings.Builder
	for _, r := range ladder {
		fmt.Fprintf(&vSplit, "[v%d]", r.Index)
		fmt.Fprintf(&aSplit, "[a%d]", r.Index)
		fmt.Fprintf(&scales, ";[v%d]scale=w=%d:h=%d[v%dout]", r.Index, r.Width, r.Height, r.Index)
	}
	graph := fmt.Sprintf("[0:v]split=%d%s;[0:a]asplit=%d%s%s", n, vSplit.String(), n, aSplit.String(), scales.String())

	args := []string{
		"-hide_banner", "-y",
		"-i", src,
		"-preset", e.preset, "-g", "48", "-sc_threshold", "0",
		"-filter_complex", graph,
	}

	streamMap := make([]string, 0, n)
	for _, r := range ladder {
		i := r.Index
		args = append(args,
			"-map", fmt.Sprintf("[v%dout]", i), "-map", fmt.Sprintf("[a%d]", i),
			fmt.Sprintf("-c:v:%d", i), "libx264",
			fmt.Sprintf("-b:v:%d", i), fmt.Sprintf("%dk", r.VideoBitrateKbps),
			fmt.Sprintf("-c:a:%d", i), "aac",
			fmt.Sprintf("-b:a:%d", i), fmt.Sprintf("%dk", r.AudioBitrateKbps),
		)
		streamMap = append(streamMap, fmt.Sprintf("v:%d,a:%d", i, i))
	}

	return append(args,
		"-var_stream_map", strings.Join(streamMap, " "),
		"-master_pl_name", MasterPlaylistName,
		"-f", "hls",
		"-hls_time", fmt.Sprint(e.segmentSeconds),
		"-hls_list_size", "0",
		"-hls_playlist_type", "vod",
		"-hls_segment_filename", filepath.Join(outDir, "v%v", "segment_%03d.ts"),
		filepath.Join(outDir, "v%v", "prog.m3u8"),
	)
}
