package media

import (
	"fmt"

	"vodflow/internal/apperr"
	"vodflow/internal/config"
)

// RenditionSpec is one quality level of the output. Index is the ordinal that
// pairs the scaled video stream, its audio stream and its variant playlist.
type RenditionSpec struct {
	Index            int
	Width            int
	Height           int
	VideoBitrateKbps int
	AudioBitrateKbps int
}

func (r RenditionSpec) Resolution() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// PlaylistPath is the variant playlist location relative to the output directory.
func (r RenditionSpec) PlaylistPath() string {
	return fmt.Sprintf("v%d/prog.m3u8", r.Index)
}

// Bandwidth is the peak bits per second advertised for the variant.
func (r RenditionSpec) Bandwidth() int {
	return (r.VideoBitrateKbps + r.AudioBitrateKbps) * 1000
}

type Ladder []RenditionSpec

// LadderFromConfig builds the ladder in configuration order; the audio
// bitrate is shared by every rendition.
func LadderFromConfig(mc *config.MediaConfig) Ladder {
	ladder := make(Ladder, len(mc.Renditions))
	for i, r := range mc.Renditions {
		ladder[i] = RenditionSpec{
			Index:            i,
			Width:            r.Width,
			Height:           r.Height,
			VideoBitrateKbps: r.VideoBitrateKbps,
			AudioBitrateKbps: mc.AudioBitrateKbps,
		}
	}
	return ladder
}

func DefaultLadder() Ladder {
	return LadderFromConfig(config.DefaultMediaConfig())
}

func (l Ladder) Validate() error {
	if len(l) == 0 {
		return apperr.Invalid("validate ladder", "ladder has no renditions")
	}
	for i, r := range l {
		if r.Index != i {
			return apperr.Invalid("validate ladder", "rendition %d has index %d", i, r.Index)
		}
		if r.Width <= 0 || r.Height <= 0 {
			return apperr.Invalid("validate ladder", "rendition %d has invalid size %s", i, r.Resolution())
		}
		// libx264 with yuv420p rejects odd dimensions
		if r.Width%2 != 0 || r.Height%2 != 0 {
			return apperr.Invalid("validate ladder", "rendition %d size %s must be even", i, r.Resolution())
		}
		if r.VideoBitrateKbps <= 0 || r.AudioBitrateKbps <= 0 {
			return apperr.Invalid("validate ladder", "rendition %d has non-positive bitrate", i)
		}
	}
	return nil
}
