package mp4

// ticksPerSecond is the 100 ns presentation timescale shared by Smooth and
// the DASH output timelines.
const ticksPerSecond = 10000000

// scaleTicks converts v from the media timescale to 100 ns ticks.
func scaleTicks(v uint64, timescale uint32) uint64 {
	return v * ticksPerSecond / uint64(timescale)
}

// MdatChunk is one scatter-gather region of the source file's mdat payload.
type MdatChunk struct {
	Offset uint64
	Size   uint64
}

// Fragment covers one GOP of one track. Timestamp and Duration are in 100 ns
// units; Chunks reference the source file bytes that form the mdat payload.
type Fragment struct {
	Mfhd             Mfhd
	Tfhd             Tfhd
	Tfdt             Tfdt
	Trun             Trun
	Sdtp             Sdtp
	SampleEncryption SampleEncryption

	// Index is the fragment's position within its track; it seeds the upper
	// half of the per-sample IVs.
	Index     int
	Timestamp uint64
	Duration  uint64

	Chunks []MdatChunk

	// MoofData is the serialized moof box; Offset is the fragment's byte
	// position in the level's virtual [moof][mdat] sequence (header excluded).
	// MdatSize is the full mdat box size including its 8-byte header.
	MoofData []byte
	MoofSize uint64
	MdatSize uint64
	Offset   uint64

	// On-Demand CENC layouts add saiz/saio alongside the PIFF uuid box.
	SaizPresent bool
	SaioPresent bool
}

// SampleCount returns the number of samples in the fragment's run.
func (f *Fragment) SampleCount() int { return len(f.Trun.Samples) }

// MdatPayloadSize is the mdat size without the box header.
func (f *Fragment) MdatPayloadSize() uint64 { return f.MdatSize - 8 }

// Track is one media track with its decoded sample tables and, once the
// presentation is prepared, its fragments and serialized headers.
type Track struct {
	Tkhd Tkhd
	Mdhd Mdhd
	Hdlr Hdlr
	Stts Stts
	Ctts Ctts
	Stss Stss
	Stsz Stsz
	Stsc Stsc
	Stco Stco
	Stsd Stsd
	Mp4a Mp4a
	Mp4v Mp4v
	Esds Esds

	IsEncrypted bool

	Fragments []*Fragment

	// CcffHeaderData is the Smooth init chunk (ftyp+moov). DashHeaderData is
	// ftyp+moov+sidx; DashHeaderSize is the ftyp+moov prefix length,
	// DashHeaderAndSidxSize the whole header, DashSize the full virtual file.
	CcffHeaderData        []byte
	DashHeaderData        []byte
	DashHeaderSize        uint64
	DashHeaderAndSidxSize uint64
	DashSize              uint64
}

// IsVideo reports whether the track's handler is vide.
func (t *Track) IsVideo() bool { return t.Hdlr.HandlerType == HandlerVideo }

// FragmentAt returns the i-th fragment of the track, or nil.
func (t *Track) FragmentAt(i int) *Fragment {
	if i < 0 || i >= len(t.Fragments) {
		return nil
	}
	return t.Fragments[i]
}

// FragmentByTimestamp returns the fragment whose start timestamp matches ts
// exactly, or nil. Clients request the start times the manifest advertised,
// so no rounding is applied.
func (t *Track) FragmentByTimestamp(ts uint64) *Fragment {
	for _, f := range t.Fragments {
		if f.Timestamp == ts {
			return f
		}
	}
	return nil
}

// Duration100ns sums the track's fragment durations.
func (t *Track) Duration100ns() uint64 {
	var d uint64
	for _, f := range t.Fragments {
		d += f.Duration
	}
	return d
}

// Movie is the parsed moov: one mvhd plus the ordered tracks.
type Movie struct {
	Mvhd   Mvhd
	Tracks []*Track
	Pssh   Pssh
}

// Duration100ns converts the movie duration to 100 ns ticks.
func (m *Movie) Duration100ns() uint64 {
	if m.Mvhd.Timescale == 0 {
		return 0
	}
	return scaleTicks(m.Mvhd.Duration, m.Mvhd.Timescale)
}

// VideoTrack returns the first video track, or nil.
func (m *Movie) VideoTrack() *Track {
	for _, t := range m.Tracks {
		if t.Hdlr.HandlerType == HandlerVideo {
			return t
		}
	}
	return nil
}

// AudioTrack returns the first audio track, or nil.
func (m *Movie) AudioTrack() *Track {
	for _, t := range m.Tracks {
		if t.Hdlr.HandlerType == HandlerSound {
			return t
		}
	}
	return nil
}

// TrackByID returns the track with the given id, or nil.
func (m *Movie) TrackByID(id uint32) *Track {
	for _, t := range m.Tracks {
		if t.Tkhd.TrackID == id {
			return t
		}
	}
	return nil
}
