package media

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/grafov/m3u8"
)

const MasterPlaylistName = "master.m3u8"

var ErrNoManifest = errors.New("master playlist not found")

type Manifest struct {
	MasterPath string
	Variants   []Variant
}

type Variant struct {
	Index      int
	URI        string
	Resolution string
	Bandwidth  uint32
	Segments   []string
}

// SegmentCount is the total number of segments across all variants.
func (m *Manifest) SegmentCount() int {
	n := 0
	for _, v := range m.Variants {
		n += len(v.Segments)
	}
	return n
}

// InspectManifest decodes the master playlist in outDir and every variant it
// lists, and checks that variant i is rendition i of ladder with at least one
// segment.
func InspectManifest(outDir string, ladder Ladder) (*Manifest, error) {
	masterPath := filepath.Join(outDir, MasterPlaylistName)
	p, err := decodePlaylist(masterPath, m3u8.MASTER)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoManifest
	}
	if err != nil {
		return nil, err
	}
	master := p.(*m3u8.MasterPlaylist)

	if len(master.Variants) != len(ladder) {
		return nil, fmt.Errorf("master playlist lists %d variants, expected %d", len(master.Variants), len(ladder))
	}

	manifest := &Manifest{MasterPath: masterPath}
	for i, v := range master.Variants {
		want := ladder[i]
		if v.URI != want.PlaylistPath() {
			return nil, fmt.Errorf("variant %d points at %q, expected %q", i, v.URI, want.PlaylistPath())
		}
		if v.Resolution != want.Resolution() {
			return nil, fmt.Errorf("variant %d has resolution %q, expected %q", i, v.Resolution, want.Resolution())
		}

		mp, err := decodePlaylist(filepath.Join(outDir, filepath.FromSlash(v.URI)), m3u8.MEDIA)
		if err != nil {
			return nil, fmt.Errorf("variant %d: %w", i, err)
		}

		var segments []string
		for _, s := range mp.(*m3u8.MediaPlaylist).Segments {
			if s != nil {
				segments = append(segments, s.URI)
			}
		}
		if len(segments) == 0 {
			return nil, fmt.Errorf("variant %d has no segments", i)
		}

		manifest.Variants = append(manifest.Variants, Variant{
			Index:      i,
			URI:        v.URI,
			Resolution: v.Resolution,
			Bandwidth:  v.Bandwidth,
			Segments:   segments,
		})
	}

	return manifest, nil
}

func decodePlaylist(path string, want m3u8.ListType) (m3u8.Playlist, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	p, listType, err := m3u8.DecodeFrom(bufio.NewReader(f), false)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", filepath.Base(path), err)
	}
	if listType != want {
		return nil, fmt.Errorf("%s is not a %s playlist", filepath.Base(path), listTypeName(want))
	}
	return p, nil
}

func listTypeName(t m3u8.ListType) string {
	if t == m3u8.MASTER {
		return "master"
	}
	return "media"
}
