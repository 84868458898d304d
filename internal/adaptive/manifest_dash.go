package adaptive

import (
	"encoding/xml"
	"fmt"

	"github.com/snapetech/vod-origin/internal/playready"
)

// DASH MPD model, restricted to the attributes the two profiles emit.
// Namespace prefixes are written literally; the documents are small and
// fixed-shape, so the xml-struct treatment mirrors the Smooth manifest.

type mpdRoot struct {
	XMLName        xml.Name `xml:"MPD"`
	XmlnsXSI       string   `xml:"xmlns:xsi,attr"`
	Xmlns          string   `xml:"xmlns,attr"`
	XmlnsMspr      string   `xml:"xmlns:mspr,attr,omitempty"`
	SchemaLocation string   `xml:"xsi:schemaLocation,attr"`
	Type           string   `xml:"type,attr"`
	MediaDuration  string   `xml:"mediaPresentationDuration,attr"`
	MinBufferTime  string   `xml:"minBufferTime,attr"`
	Profiles       string   `xml:"profiles,attr"`

	Period mpdPeriod `xml:"Period"`
}

type mpdPeriod struct {
	AdaptationSets []*mpdAdaptationSet `xml:"AdaptationSet"`
}

type mpdAdaptationSet struct {
	ID                      *int   `xml:"id,attr"`
	Profiles                string `xml:"profiles,attr,omitempty"`
	BitstreamSwitching      *bool  `xml:"bitstreamSwitching,attr"`
	SegmentAlignment        *bool  `xml:"segmentAlignment,attr"`
	SubsegmentAlignment     *bool  `xml:"subsegmentAlignment,attr"`
	SubsegmentStartsWithSAP *int   `xml:"subsegmentStartsWithSAP,attr"`
	ContentType             string `xml:"contentType,attr,omitempty"`
	MimeType                string `xml:"mimeType,attr"`
	Lang                    string `xml:"lang,attr,omitempty"`
	MaxWidth                *int   `xml:"maxWidth,attr"`
	MaxHeight               *int   `xml:"maxHeight,attr"`
	StartWithSAP            *int   `xml:"startWithSAP,attr"`

	ContentProtection *mpdContentProtection
	SegmentTemplate   *mpdSegmentTemplate
	Representations   []*mpdRepresentation `xml:"Representation"`
}

type mpdContentProtection struct {
	XMLName     xml.Name `xml:"ContentProtection"`
	SchemeIDURI string   `xml:"schemeIdUri,attr"`
	Pro         string   `xml:"mspr:pro,omitempty"`
}

type mpdSegmentTemplate struct {
	XMLName        xml.Name `xml:"SegmentTemplate"`
	Timescale      uint64   `xml:"timescale,attr"`
	Media          string   `xml:"media,attr"`
	Initialization string   `xml:"initialization,attr"`

	Timeline mpdSegmentTimeline `xml:"SegmentTimeline"`
}

type mpdSegmentTimeline struct {
	Segments []*mpdSegment `xml:"S"`
}

type mpdSegment struct {
	Duration uint64 `xml:"d,attr"`
}

type mpdRepresentation struct {
	ID                string `xml:"id,attr"`
	Bandwidth         uint64 `xml:"bandwidth,attr"`
	Codecs            string `xml:"codecs,attr"`
	Width             *int   `xml:"width,attr"`
	Height            *int   `xml:"height,attr"`
	AudioSamplingRate *int   `xml:"audioSamplingRate,attr"`

	BaseURL     string          `xml:"BaseURL,omitempty"`
	SegmentBase *mpdSegmentBase `xml:"SegmentBase"`
}

type mpdSegmentBase struct {
	IndexRange     string            `xml:"indexRange,attr"`
	Initialization mpdInitialization `xml:"Initialization"`
}

type mpdInitialization struct {
	Range string `xml:"range,attr"`
}

func boolp(v bool) *bool { return &v }

func (p *Presentation) mpdSkeleton(profiles, minBufferTime string) *mpdRoot {
	root := &mpdRoot{
		XmlnsXSI:       "http://www.w3.org/2001/XMLSchema-instance",
		Xmlns:          "urn:mpeg:dash:schema:mpd:2011",
		SchemaLocation: "urn:mpeg:dash:schema:mpd:2011 DASH-MPD.xsd",
		Type:           "static",
		MediaDuration:  fmt.Sprintf("PT%dS", p.Duration/10000000),
		MinBufferTime:  minBufferTime,
		Profiles:       profiles,
	}
	if p.DrmType == DrmPlayReady {
		root.XmlnsMspr = "urn:microsoft:playready"
	}
	return root
}

func (p *Presentation) contentProtection() (*mpdContentProtection, error) {
	if p.DrmType != DrmPlayReady {
		return nil, nil
	}
	header, err := p.pr.ProtectionHeaderBase64(p.KID[:], p.pr.LicenseURL)
	if err != nil {
		return nil, err
	}
	return &mpdContentProtection{
		SchemeIDURI: "urn:uuid:" + playready.SystemID.String(),
		Pro:         header,
	}, nil
}

// DashLiveManifest renders the isoff-live MPD: SegmentTemplate addressing
// with the Smooth content URL shape.
func (p *Presentation) DashLiveManifest(mq ManifestQuery) ([]byte, error) {
	if len(p.VideoLevel) == 0 || len(p.AudioLevel) == 0 {
		return nil, fmt.Errorf("adaptive: %s has no complete level set", p.ContentID)
	}
	root := p.mpdSkeleton("urn:mpeg:dash:profile:isoff-live:2011", "PT4S")

	cp, err := p.contentProtection()
	if err != nil {
		return nil, err
	}

	audio := &mpdAdaptationSet{
		ID:                 intp(1),
		Profiles:           "ccff",
		BitstreamSwitching: boolp(true),
		SegmentAlignment:   boolp(true),
		ContentType:        "audio",
		MimeType:           "audio/mp4",
		Lang:               "en",
		ContentProtection:  cp,
		SegmentTemplate: &mpdSegmentTemplate{
			Timescale:      10000000,
			Media:          "content?stream=audio&bitrate=$Bandwidth$&start_time=$Time$",
			Initialization: "content?stream=audio&bitrate=$Bandwidth$&start_time=init",
		},
	}
	for _, f := range p.AudioLevel[0].Track.Fragments {
		audio.SegmentTemplate.Timeline.Segments = append(audio.SegmentTemplate.Timeline.Segments,
			&mpdSegment{Duration: f.Duration})
	}
	for i, l := range p.AudioLevel {
		audio.Representations = append(audio.Representations, &mpdRepresentation{
			ID:                fmt.Sprintf("a%d", i),
			Codecs:            l.Codec,
			Bandwidth:         l.Bitrate,
			AudioSamplingRate: intp(l.AudioRate),
		})
	}
	root.Period.AdaptationSets = append(root.Period.AdaptationSets, audio)

	video := &mpdAdaptationSet{
		ID:                 intp(2),
		Profiles:           "ccff",
		BitstreamSwitching: boolp(true),
		SegmentAlignment:   boolp(true),
		ContentType:        "video",
		MimeType:           "video/mp4",
		MaxWidth:           intp(p.MaxWidth),
		MaxHeight:          intp(p.MaxHeight),
		StartWithSAP:       intp(1),
		ContentProtection:  cp,
		SegmentTemplate: &mpdSegmentTemplate{
			Timescale:      10000000,
			Media:          "content?stream=video&bitrate=$Bandwidth$&start_time=$Time$",
			Initialization: "content?stream=video&bitrate=$Bandwidth$&start_time=init",
		},
	}
	for _, f := range p.VideoLevel[0].Track.Fragments {
		video.SegmentTemplate.Timeline.Segments = append(video.SegmentTemplate.Timeline.Segments,
			&mpdSegment{Duration: f.Duration})
	}
	for i, l := range p.VideoLevel {
		if !mq.CheckVideo(l) {
			continue
		}
		video.Representations = append(video.Representations, &mpdRepresentation{
			ID:        fmt.Sprintf("v%d", i),
			Bandwidth: l.Bitrate,
			Codecs:    l.Codec,
			Width:     intp(l.Width),
			Height:    intp(l.Height),
		})
	}
	root.Period.AdaptationSets = append(root.Period.AdaptationSets, video)

	return marshalMPD(root)
}

// DashOndemandManifest renders the isoff-on-demand MPD: one BaseURL per
// representation with SegmentBase index and init ranges into the virtual
// [header|sidx|moof|mdat...] file.
func (p *Presentation) DashOndemandManifest(mq ManifestQuery) ([]byte, error) {
	if len(p.VideoLevel) == 0 || len(p.AudioLevel) == 0 {
		return nil, fmt.Errorf("adaptive: %s has no complete level set", p.ContentID)
	}
	root := p.mpdSkeleton("urn:mpeg:dash:profile:isoff-on-demand:2011", "PT2S")

	cp, err := p.contentProtection()
	if err != nil {
		return nil, err
	}

	segmentBase := func(l *Level) *mpdSegmentBase {
		t := l.Track
		return &mpdSegmentBase{
			IndexRange: fmt.Sprintf("%d-%d", t.DashHeaderSize, t.DashHeaderAndSidxSize-1),
			Initialization: mpdInitialization{
				Range: fmt.Sprintf("0-%d", t.DashHeaderSize-1),
			},
		}
	}

	audio := &mpdAdaptationSet{
		MimeType:                "audio/mp4",
		Lang:                    "en",
		SubsegmentAlignment:     boolp(true),
		SubsegmentStartsWithSAP: intp(1),
		ContentProtection:       cp,
	}
	// One audio representation, as Smooth clients expect a single audio
	// stream; additional levels stay addressable through the ISM view.
	for i, l := range p.AudioLevel {
		audio.Representations = append(audio.Representations, &mpdRepresentation{
			ID:          fmt.Sprintf("a%d", i),
			Codecs:      l.Codec,
			Bandwidth:   l.Bitrate,
			BaseURL:     fmt.Sprintf("content/a%d", i),
			SegmentBase: segmentBase(l),
		})
		break
	}
	root.Period.AdaptationSets = append(root.Period.AdaptationSets, audio)

	video := &mpdAdaptationSet{
		MimeType:                "video/mp4",
		SubsegmentAlignment:     boolp(true),
		SubsegmentStartsWithSAP: intp(1),
		ContentProtection:       cp,
	}
	for i, l := range p.VideoLevel {
		if !mq.CheckVideo(l) {
			continue
		}
		video.Representations = append(video.Representations, &mpdRepresentation{
			ID:          fmt.Sprintf("v%d", i),
			Bandwidth:   l.Bitrate,
			Codecs:      l.Codec,
			Width:       intp(l.Width),
			Height:      intp(l.Height),
			BaseURL:     fmt.Sprintf("content/v%d", i),
			SegmentBase: segmentBase(l),
		})
	}
	root.Period.AdaptationSets = append(root.Period.AdaptationSets, video)

	return marshalMPD(root)
}

func marshalMPD(root *mpdRoot) ([]byte, error) {
	body, err := xml.MarshalIndent(root, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("adaptive: marshal mpd: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}
