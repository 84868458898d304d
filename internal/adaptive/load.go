package adaptive

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/snapetech/vod-origin/internal/mp4"
	"github.com/snapetech/vod-origin/internal/playready"
)

// DescriptorName is the JSON manifest descriptor inside each content
// directory.
const DescriptorName = "gss-manifest"

// descriptor mirrors the on-disk manifest:
//
//	{ "manifest_version": 0,
//	  "versions": [ { "version": "0", "files": [ "a.ismv", ... ] } ] }
//
// File entries are either plain strings or {"filename": "..."} objects; both
// occur in the wild.
type descriptor struct {
	ManifestVersion int                 `json:"manifest_version"`
	Versions        []descriptorVersion `json:"versions"`
}

type descriptorVersion struct {
	Version string            `json:"version"`
	Files   []descriptorEntry `json:"files"`
}

type descriptorEntry struct {
	Filename string
}

func (e *descriptorEntry) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		e.Filename = s
		return nil
	}
	var obj struct {
		Filename string `json:"filename"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	e.Filename = obj.Filename
	return nil
}

// Load builds a presentation for one content directory: every file named by
// the descriptor is parsed, fragmented if needed, and turned into one video
// and/or one audio level.
func Load(pr *playready.PlayReady, contentID, dir, version string, drm DrmType, stream StreamType) (*Presentation, error) {
	raw, err := os.ReadFile(filepath.Join(dir, DescriptorName))
	if err != nil {
		return nil, fmt.Errorf("adaptive: %w", err)
	}
	var desc descriptor
	if err := json.Unmarshal(raw, &desc); err != nil {
		return nil, fmt.Errorf("adaptive: %s/%s: %w", dir, DescriptorName, err)
	}
	if desc.ManifestVersion != 0 {
		return nil, fmt.Errorf("adaptive: %s/%s: unsupported manifest_version %d", dir, DescriptorName, desc.ManifestVersion)
	}
	if len(desc.Versions) == 0 || len(desc.Versions[0].Files) == 0 {
		return nil, fmt.Errorf("adaptive: %s/%s: no files listed", dir, DescriptorName)
	}

	p := &Presentation{
		ContentID:  contentID,
		StreamType: stream,
		DrmType:    drm,
		KID:        playready.DeriveKeyID(contentID),
		pr:         pr,
	}
	p.ContentKey = pr.GenerateKey(p.KID[:])

	// The first descriptor version wins; entries for other versions are kept
	// on disk for rollback but are not served.
	files := desc.Versions[0].Files
	for _, entry := range files {
		if entry.Filename == "" {
			return nil, fmt.Errorf("adaptive: %s/%s: empty file entry", dir, DescriptorName)
		}
		if err := p.loadFile(filepath.Join(dir, entry.Filename)); err != nil {
			return nil, err
		}
	}
	if len(p.VideoLevel) == 0 && len(p.AudioLevel) == 0 {
		return nil, fmt.Errorf("adaptive: %s: no usable tracks", contentID)
	}

	log.Printf("adaptive: loaded %s: %d video + %d audio levels, %s/%s, duration %ds",
		contentID, len(p.VideoLevel), len(p.AudioLevel), drm.Name(), stream.Name(),
		p.Duration/10000000)
	return p, nil
}

func (p *Presentation) loadFile(filename string) error {
	file, err := mp4.ParseFile(filename)
	if err != nil {
		return err
	}
	p.parsers = append(p.parsers, file)

	if !file.IsFragmented() {
		if err := file.Fragmentize(); err != nil {
			return err
		}
	}

	if p.Duration == 0 {
		p.Duration = file.Movie.Duration100ns()
	}

	if video := file.Movie.VideoTrack(); video != nil {
		if err := p.levelFromTrack(file.Movie, video, filename, true); err != nil {
			return err
		}
		if p.Duration == 0 {
			p.Duration = video.Duration100ns()
		}
	}
	if audio := file.Movie.AudioTrack(); audio != nil {
		if err := p.levelFromTrack(file.Movie, audio, filename, false); err != nil {
			return err
		}
	}
	return nil
}
