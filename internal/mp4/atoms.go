package mp4

// Atom structs carry the decoded fields of the boxes this server actually
// uses. Optional boxes keep a Present flag so serialization and fragmentation
// can tell "absent" from "zero", the way the original sample tables need.

// Mvhd is the movie header.
type Mvhd struct {
	Version          uint8
	Flags            uint32
	CreationTime     uint64
	ModificationTime uint64
	Timescale        uint32
	Duration         uint64
	NextTrackID      uint32
}

// Tkhd is the track header. Width/Height are 16.16 fixed point.
type Tkhd struct {
	Present          bool
	Version          uint8
	Flags            uint32
	CreationTime     uint64
	ModificationTime uint64
	TrackID          uint32
	Duration         uint64
	Layer            uint16
	AlternateGroup   uint16
	Volume           uint16
	Matrix           [9]uint32
	Width            uint32
	Height           uint32
}

// Mdhd is the media header; Language is the unpacked ISO-639 code.
type Mdhd struct {
	Present          bool
	Version          uint8
	Flags            uint32
	CreationTime     uint64
	ModificationTime uint64
	Timescale        uint32
	Duration         uint64
	Language         string
}

// Hdlr identifies the media handler (vide or soun).
type Hdlr struct {
	Present     bool
	Version     uint8
	Flags       uint32
	HandlerType FourCC
	Name        string
}

// SttsEntry is one run of equal-duration samples.
type SttsEntry struct {
	SampleCount uint32
	SampleDelta int32
}

type Stts struct {
	Present bool
	Entries []SttsEntry
}

// CttsEntry is one run of equal composition offsets.
type CttsEntry struct {
	SampleCount  uint32
	SampleOffset uint32
}

type Ctts struct {
	Present bool
	Entries []CttsEntry
}

// Stss lists sync samples (1-based sample numbers).
type Stss struct {
	Present       bool
	SampleNumbers []uint32
}

// Stsz carries either a constant SampleSize or per-sample sizes.
type Stsz struct {
	Present     bool
	SampleSize  uint32
	SampleCount uint32
	SampleSizes []uint32
}

// StscEntry maps chunk runs to samples-per-chunk.
type StscEntry struct {
	FirstChunk             uint32
	SamplesPerChunk        uint32
	SampleDescriptionIndex uint32
}

type Stsc struct {
	Present bool
	Entries []StscEntry
}

// Stco holds chunk byte offsets; co64 decodes into the same struct.
type Stco struct {
	Present      bool
	ChunkOffsets []uint64
}

// Stsd only records what the streaming path needs: the entry count and the
// decoded mp4a/mp4v/avc1 sample entries on the track.
type Stsd struct {
	Present    bool
	EntryCount uint32
}

// Mp4a is the audio sample entry (mp4a or enca). SampleRate is 16.16 fixed.
type Mp4a struct {
	Present            bool
	DataReferenceIndex uint16
	ChannelCount       uint16
	SampleSize         uint16
	SampleRate         uint32
}

// Mp4v is the visual sample entry (avc1, encv, or mp4v).
type Mp4v struct {
	Present            bool
	DataReferenceIndex uint16
	Width              uint16
	Height             uint16
}

// Esds carries the decoder config. For video tracks CodecData is the raw avcC
// record; for audio it is the AudioSpecificConfig from the DecSpecificInfo
// descriptor.
type Esds struct {
	Present        bool
	ESID           uint16
	ESFlags        uint8
	TypeIndication uint8
	StreamType     uint8
	BufferSizeDB   uint32
	MaxBitrate     uint32
	AvgBitrate     uint32
	CodecData      []byte
}

// Pssh is a per-movie protection header (either a pssh box or the PIFF
// protection uuid box).
type Pssh struct {
	Present  bool
	SystemID [16]byte
	Data     []byte
}

// Mfhd is the movie fragment header.
type Mfhd struct {
	Version        uint8
	Flags          uint32
	SequenceNumber uint32
}

// tfhd flags (ISO 14496-12 8.8.7).
const (
	TfhdBaseDataOffset         = 0x000001
	TfhdSampleDescriptionIndex = 0x000002
	TfhdDefaultSampleDuration  = 0x000008
	TfhdDefaultSampleSize      = 0x000010
	TfhdDefaultSampleFlags     = 0x000020
)

// trun flags (ISO 14496-12 8.8.8).
const (
	TrunDataOffset       = 0x000001
	TrunFirstSampleFlags = 0x000004
	TrunSampleDuration   = 0x000100
	TrunSampleSize       = 0x000200
	TrunSampleFlags      = 0x000400
	TrunSampleCTO        = 0x000800
)

// Sample-flag fields (ISO 14496-12 8.8.3.1), assembled instead of copied as
// magic numbers.
const (
	sampleIsNonSync           = 0x00010000
	sampleDegradationPriority = 0x00c0
)

// DefaultVideoSampleFlags is the tfhd default for video fragments: a
// difference sample (non-sync) with the degradation priority Smooth encoders
// emit.
const DefaultVideoSampleFlags = sampleIsNonSync | sampleDegradationPriority // 0x000100c0

// DefaultAudioSampleFlags leaves dependency unknown; audio samples are all
// sync samples.
const DefaultAudioSampleFlags = sampleDegradationPriority

// FirstVideoSampleFlags is the trun first_sample_flags override for the
// keyframe that opens every video fragment.
const FirstVideoSampleFlags = 0x40

// sdtp flag bytes: I sample (depends on nothing, others depend on it) and
// P/B sample.
const (
	SdtpSampleI  = 0x14
	SdtpSamplePB = 0x1c
)

// Tfhd is the track fragment header.
type Tfhd struct {
	Version               uint8
	Flags                 uint32
	TrackID               uint32
	DefaultSampleDuration uint32
	DefaultSampleSize     uint32
	DefaultSampleFlags    uint32
}

// TrunSample is one per-sample row of a trun. Duration and CTO are in 100 ns
// units once the fragmenter has produced them; parsed fragments keep the
// source timescale.
type TrunSample struct {
	Duration uint32
	Size     uint32
	Flags    uint32
	CTO      uint32
}

// Trun is the track fragment run.
type Trun struct {
	Version          uint8
	Flags            uint32
	DataOffset       uint32
	FirstSampleFlags uint32
	Samples          []TrunSample
}

// Sdtp carries one dependency flag byte per sample.
type Sdtp struct {
	Present     bool
	Version     uint8
	Flags       uint32
	SampleFlags []byte
}

// Tfdt is the track fragment decode time, emitted for On-Demand layouts.
type Tfdt struct {
	Present        bool
	BaseMediaDecodeTime uint64
}

// SampleEncryptionEntry is one clear/encrypted subsample span.
type SampleEncryptionEntry struct {
	BytesOfClearData     uint16
	BytesOfEncryptedData uint32
}

// SampleEncryptionSample is the per-sample IV plus optional subsample map.
type SampleEncryptionSample struct {
	IV      uint64
	Entries []SampleEncryptionEntry
}

// SampleEncryption is the PIFF uuid SampleEncryption box payload.
type SampleEncryption struct {
	Present     bool
	Version     uint8
	Flags       uint32
	AlgorithmID uint32
	IVSize      uint8
	KID         [16]byte
	Samples     []SampleEncryptionSample
}

// SubsamplePresent reports whether the subsample map is populated
// (flags bit 0x2 on the wire).
func (se *SampleEncryption) SubsamplePresent() bool {
	return se.Flags&0x2 != 0
}
