// Package adaptive aggregates per-bitrate MP4 tracks into one presentation
// and renders its Smooth Streaming and DASH views: manifests, init headers,
// and the byte layout the segment handlers serve from.
package adaptive

import (
	"encoding/hex"
	"fmt"

	"github.com/snapetech/vod-origin/internal/mp4"
	"github.com/snapetech/vod-origin/internal/playready"
)

// StreamType selects the output format of a presentation.
type StreamType int

const (
	StreamUnknown StreamType = iota
	StreamISM
	StreamIsoffLive
	StreamIsoffOndemand
)

// StreamTypeFromName maps the URL tag to a stream type.
func StreamTypeFromName(s string) StreamType {
	switch s {
	case "ism":
		return StreamISM
	case "isoff-live":
		return StreamIsoffLive
	case "isoff-ondemand":
		return StreamIsoffOndemand
	}
	return StreamUnknown
}

func (s StreamType) Name() string {
	switch s {
	case StreamISM:
		return "ism"
	case StreamIsoffLive:
		return "isoff-live"
	case StreamIsoffOndemand:
		return "isoff-ondemand"
	}
	return "unknown"
}

// DrmType selects the protection applied to a presentation.
type DrmType int

const (
	DrmUnknown DrmType = iota
	DrmClear
	DrmPlayReady
	DrmCenc
)

// DrmTypeFromName maps the URL tag to a DRM type.
func DrmTypeFromName(s string) DrmType {
	switch s {
	case "clear":
		return DrmClear
	case "pr":
		return DrmPlayReady
	}
	return DrmUnknown
}

func (d DrmType) Name() string {
	switch d {
	case DrmClear:
		return "clear"
	case DrmPlayReady:
		return "pr"
	case DrmCenc:
		return "cenc"
	}
	return ""
}

// Level is one bitrate of one presentation. It holds a non-owning reference
// to the track it describes; the presentation owns the parser that owns the
// track.
type Level struct {
	IsVideo   bool
	TrackID   uint32
	Bitrate   uint64
	Width     int
	Height    int
	Profile   int
	Level     int
	Codec     string
	CodecData string // hex
	AudioRate int
	Filename  string
	Track     *mp4.Track
	IVSeed    uint64
}

// FragmentCount returns the number of fragments in the level's track.
func (l *Level) FragmentCount() int { return len(l.Track.Fragments) }

// Presentation is one content id prepared for one stream type and DRM mode.
// Immutable after Load; it exclusively owns its parsers, which own the movies
// and tracks.
type Presentation struct {
	ContentID  string
	Duration   uint64 // 100 ns
	MaxWidth   int
	MaxHeight  int
	VideoLevel []*Level
	AudioLevel []*Level
	StreamType StreamType
	DrmType    DrmType

	KID        [16]byte
	ContentKey [16]byte
	// ProtectionData is the binary PlayReady header embedded in PSSH boxes;
	// empty for clear presentations.
	ProtectionData []byte

	pr      *playready.PlayReady
	parsers []*mp4.File
}

// GetLevel returns the level with an exact bitrate match, or nil.
func (p *Presentation) GetLevel(isVideo bool, bitrate uint64) *Level {
	levels := p.AudioLevel
	if isVideo {
		levels = p.VideoLevel
	}
	for _, l := range levels {
		if l.Bitrate == bitrate {
			return l
		}
	}
	return nil
}

// estimateBitrate computes 8·Σ(moof+mdat)·timescale/Σ(duration) over the
// track's fragments.
func estimateBitrate(track *mp4.Track) uint64 {
	var size, duration uint64
	for _, f := range track.Fragments {
		size += f.MoofSize + f.MdatSize
		duration += f.Duration
	}
	if duration == 0 || track.Mdhd.Timescale == 0 {
		return 0
	}
	return 8 * size * uint64(track.Mdhd.Timescale) / duration
}

// levelFromTrack appends a level for one track of one source file, preparing
// the track's fragments and headers for the presentation's stream type.
func (p *Presentation) levelFromTrack(movie *mp4.Movie, track *mp4.Track, filename string, isVideo bool) error {
	if !track.Esds.Present || len(track.Esds.CodecData) == 0 {
		return fmt.Errorf("adaptive: track %d of %s has no codec data", track.Tkhd.TrackID, filename)
	}

	level := &Level{
		IsVideo:  isVideo,
		TrackID:  track.Tkhd.TrackID,
		Filename: filename,
		Track:    track,
	}
	if isVideo {
		p.VideoLevel = append(p.VideoLevel, level)
		if int(track.Mp4v.Width) > p.MaxWidth {
			p.MaxWidth = int(track.Mp4v.Width)
		}
		if int(track.Mp4v.Height) > p.MaxHeight {
			p.MaxHeight = int(track.Mp4v.Height)
		}
	} else {
		p.AudioLevel = append(p.AudioLevel, level)
	}

	if p.DrmType != DrmClear {
		track.IsEncrypted = true
		level.IVSeed = playready.LevelIVSeed(filename, track.Tkhd.TrackID)
		for _, frag := range track.Fragments {
			playready.SetupIV(frag, level.IVSeed, isVideo)
			if p.StreamType == StreamIsoffOndemand {
				// The On-Demand CENC layout also announces the sample aux
				// info through saiz/saio and carries explicit decode times.
				frag.Tfdt.Present = true
				frag.Tfdt.BaseMediaDecodeTime = frag.Timestamp
				frag.SaizPresent = true
				frag.SaioPresent = true
			}
		}
		if p.ProtectionData == nil {
			data, err := p.pr.ProtectionHeader(p.KID[:], p.pr.LicenseURL)
			if err != nil {
				return err
			}
			p.ProtectionData = data
		}
	}

	opts := mp4.InitHeaderOptions{
		Protected:    p.DrmType != DrmClear,
		KID:          p.KID,
		PSSHSystemID: [16]byte(playready.SystemID),
		PSSHData:     p.ProtectionData,
	}

	// Serialize every fragment's moof and lay the level out as
	// [moof][mdat]... ; the header goes in front for On-Demand.
	var offset uint64
	for _, frag := range track.Fragments {
		frag.Offset = offset
		frag.SerializeMoof()
		offset += frag.MoofSize + frag.MdatSize
	}
	track.DashSize = offset

	switch p.StreamType {
	case StreamIsoffOndemand:
		track.DashHeaderData, track.DashHeaderSize = mp4.BuildDashHeader(movie, track, opts)
		track.DashHeaderAndSidxSize = uint64(len(track.DashHeaderData))
		track.DashSize += track.DashHeaderAndSidxSize
	default:
		track.CcffHeaderData = mp4.BuildInitHeader(movie, track, opts)
	}

	level.Bitrate = estimateBitrate(track)
	level.CodecData = hex.EncodeToString(track.Esds.CodecData)
	if isVideo {
		level.Width = int(track.Mp4v.Width)
		level.Height = int(track.Mp4v.Height)
		cd := track.Esds.CodecData
		if len(cd) >= 4 {
			level.Codec = fmt.Sprintf("avc1.%02x%02x%02x", cd[1], cd[2], cd[3])
			level.Profile = int(cd[1])
			level.Level = int(cd[3])
		}
	} else {
		// AAC LC.
		level.Codec = "mp4a.40.2"
		level.Profile = 2
		level.AudioRate = int(track.Mp4a.SampleRate >> 16)
	}

	return nil
}
