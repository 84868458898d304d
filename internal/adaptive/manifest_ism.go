package adaptive

import (
	"encoding/xml"
	"fmt"
	"net/url"
	"strconv"

	"github.com/google/uuid"

	"github.com/snapetech/vod-origin/internal/playready"
)

// ManifestQuery carries the optional level filters parsed from a manifest or
// content URL. Zero limits mean unlimited.
type ManifestQuery struct {
	MaxPixels  int
	MaxWidth   int
	MaxHeight  int
	MaxBitrate int
	MaxProfile int
	MaxLevel   int
	AuthToken  string
}

// ParseManifestQuery reads the filter parameters from a query string.
// Malformed numbers are ignored, the way the original treated them.
func ParseManifestQuery(q url.Values) ManifestQuery {
	intParam := func(name string) int {
		v, _ := strconv.Atoi(q.Get(name))
		return v
	}
	return ManifestQuery{
		MaxPixels:  intParam("max_pixels"),
		MaxWidth:   intParam("max_width"),
		MaxHeight:  intParam("max_height"),
		MaxBitrate: intParam("max_bitrate"),
		MaxProfile: intParam("max_profile"),
		MaxLevel:   intParam("max_level"),
		AuthToken:  q.Get("auth_token"),
	}
}

// CheckVideo reports whether a video level passes every numeric constraint.
// Audio levels are never filtered.
func (mq ManifestQuery) CheckVideo(l *Level) bool {
	exceeds := func(v, limit int) bool { return limit > 0 && v > limit }
	if exceeds(l.Width, mq.MaxWidth) ||
		exceeds(l.Height, mq.MaxHeight) ||
		exceeds(l.Width*l.Height, mq.MaxPixels) ||
		exceeds(l.Profile, mq.MaxProfile) ||
		exceeds(l.Level, mq.MaxLevel) ||
		exceeds(int(l.Bitrate), mq.MaxBitrate) {
		return false
	}
	return true
}

// Smooth Streaming manifest model, [MS-SSTR]. Only the attributes this
// origin emits are modeled.

type smoothMedia struct {
	XMLName      xml.Name `xml:"SmoothStreamingMedia"`
	MajorVersion int      `xml:"MajorVersion,attr"`
	MinorVersion int      `xml:"MinorVersion,attr"`
	Duration     uint64   `xml:"Duration,attr"`

	Streams    []*smoothStreamIndex `xml:"StreamIndex"`
	Protection *smoothProtection
}

type smoothStreamIndex struct {
	Type          string `xml:"Type,attr"`
	Index         *int   `xml:"Index,attr"`
	Name          string `xml:"Name,attr"`
	Chunks        int    `xml:"Chunks,attr"`
	QualityLevels int    `xml:"QualityLevels,attr"`
	MaxWidth      *int   `xml:"MaxWidth,attr"`
	MaxHeight     *int   `xml:"MaxHeight,attr"`
	DisplayWidth  *int   `xml:"DisplayWidth,attr"`
	DisplayHeight *int   `xml:"DisplayHeight,attr"`
	URL           string `xml:"Url,attr"`

	Levels    []*smoothQualityLevel `xml:"QualityLevel"`
	Fragments []*smoothFragment     `xml:"c"`
}

type smoothQualityLevel struct {
	Index            *int   `xml:"Index,attr"`
	Bitrate          uint64 `xml:"Bitrate,attr"`
	FourCC           string `xml:"FourCC,attr"`
	MaxWidth         *int   `xml:"MaxWidth,attr"`
	MaxHeight        *int   `xml:"MaxHeight,attr"`
	SamplingRate     *int   `xml:"SamplingRate,attr"`
	Channels         *int   `xml:"Channels,attr"`
	BitsPerSample    *int   `xml:"BitsPerSample,attr"`
	PacketSize       *int   `xml:"PacketSize,attr"`
	AudioTag         *int   `xml:"AudioTag,attr"`
	CodecPrivateData string `xml:"CodecPrivateData,attr"`
}

type smoothFragment struct {
	Duration uint64 `xml:"d,attr"`
}

type smoothProtection struct {
	XMLName xml.Name `xml:"Protection"`
	Headers []*smoothProtectionHeader
}

type smoothProtectionHeader struct {
	XMLName  xml.Name  `xml:"ProtectionHeader"`
	SystemID uuid.UUID `xml:"SystemID,attr"`
	Content  string    `xml:",chardata"`
}

func intp(v int) *int { return &v }

// SmoothManifest renders the ISM manifest, filtering video levels by the
// query constraints.
func (p *Presentation) SmoothManifest(mq ManifestQuery) ([]byte, error) {
	if len(p.VideoLevel) == 0 || len(p.AudioLevel) == 0 {
		return nil, fmt.Errorf("adaptive: %s has no complete level set", p.ContentID)
	}

	media := &smoothMedia{
		MajorVersion: 2,
		MinorVersion: 1,
		Duration:     p.Duration,
	}

	video := &smoothStreamIndex{
		Type:          "video",
		Name:          "video",
		Chunks:        p.VideoLevel[0].FragmentCount(),
		QualityLevels: len(p.VideoLevel),
		MaxWidth:      intp(p.MaxWidth),
		MaxHeight:     intp(p.MaxHeight),
		DisplayWidth:  intp(p.MaxWidth),
		DisplayHeight: intp(p.MaxHeight),
		URL:           "content?stream=video&bitrate={bitrate}&start_time={start time}",
	}
	for i, l := range p.VideoLevel {
		if !mq.CheckVideo(l) {
			continue
		}
		video.Levels = append(video.Levels, &smoothQualityLevel{
			Index:            intp(i),
			Bitrate:          l.Bitrate,
			FourCC:           "H264",
			MaxWidth:         intp(l.Width),
			MaxHeight:        intp(l.Height),
			CodecPrivateData: l.CodecData,
		})
	}
	for _, f := range p.VideoLevel[0].Track.Fragments {
		video.Fragments = append(video.Fragments, &smoothFragment{Duration: f.Duration})
	}
	media.Streams = append(media.Streams, video)

	audio := &smoothStreamIndex{
		Type:          "audio",
		Index:         intp(0),
		Name:          "audio",
		Chunks:        p.AudioLevel[0].FragmentCount(),
		QualityLevels: 1,
		URL:           "content?stream=audio&bitrate={bitrate}&start_time={start time}",
	}
	l := p.AudioLevel[0]
	audio.Levels = append(audio.Levels, &smoothQualityLevel{
		FourCC:           "AACL",
		Bitrate:          l.Bitrate,
		SamplingRate:     intp(l.AudioRate),
		Channels:         intp(2),
		BitsPerSample:    intp(16),
		PacketSize:       intp(4),
		AudioTag:         intp(255),
		CodecPrivateData: l.CodecData,
	})
	for _, f := range p.AudioLevel[0].Track.Fragments {
		audio.Fragments = append(audio.Fragments, &smoothFragment{Duration: f.Duration})
	}
	media.Streams = append(media.Streams, audio)

	if p.DrmType == DrmPlayReady {
		header, err := p.pr.ProtectionHeaderBase64(p.KID[:], p.pr.LicenseURL)
		if err != nil {
			return nil, err
		}
		media.Protection = &smoothProtection{
			Headers: []*smoothProtectionHeader{{
				SystemID: playready.SystemID,
				Content:  header,
			}},
		}
	}

	body, err := xml.MarshalIndent(media, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("adaptive: marshal smooth manifest: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}
