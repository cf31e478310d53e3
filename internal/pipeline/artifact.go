package pipeline

import "fmt"

const (
	DegradedThumbnail = "thumbnail"
	DegradedDuration  = "duration"
)

// Artifact describes a published rendition set. Everything under Prefix was
// written by one Publish call.
type Artifact struct {
	ID          string
	Prefix      string
	ManifestKey string
	ManifestURL string
	// SegmentKeys holds the object keys of each variant's segments, by
	// rendition index, in playback order.
	SegmentKeys  map[int][]string
	Duration     string
	ThumbnailKey string
	ThumbnailURL string
	// Degraded names the enrichments that fell back to a default.
	Degraded []string
	Objects  int
}

func (a *Artifact) VariantPlaylistKey(index int) string {
	return fmt.Sprintf("%s/v%d/prog.m3u8", a.Prefix, index)
}

func (a *Artifact) degrade(what string) {
	a.Degraded = append(a.Degraded, what)
}
