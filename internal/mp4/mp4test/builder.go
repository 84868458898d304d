// Package mp4test builds tiny progressive MP4 files for tests: one H.264
// video track with a sync-sample table and one AAC audio track, each in a
// single chunk. The builder is deliberately independent of the production
// parser so the two cannot share a bug.
package mp4test

import "encoding/binary"

// Spec drives Build.
type Spec struct {
	VideoSamples   int
	VideoDelta     uint32 // media ticks per video sample
	VideoTimescale uint32
	Keyframes      []uint32 // 1-based sample numbers
	AudioSamples   int
	AudioDelta     uint32
	AudioTimescale uint32

	// ExtraTopLevel appends raw boxes between ftyp and moov.
	ExtraTopLevel []byte
}

// Default returns a 12.5 s clip: 300 video samples at 24 fps with 5
// keyframes, and the matching AAC frame count at 48 kHz.
func Default() Spec {
	return Spec{
		VideoSamples:   300,
		VideoDelta:     1000,
		VideoTimescale: 24000,
		Keyframes:      []uint32{1, 61, 121, 181, 241},
		AudioSamples:   586,
		AudioDelta:     1024,
		AudioTimescale: 48000,
	}
}

// AvcC is the avcC record Build writes: version 1, High profile, level 4.0,
// with a minimal parameter-set skeleton.
var AvcC = []byte{1, 0x64, 0x00, 0x28, 0xff, 0xe1, 0x00, 0x02, 0x67, 0x64, 0x01, 0x00, 0x02, 0x68, 0xee}

// AACConfig is the AudioSpecificConfig Build writes: AAC LC, 48 kHz, stereo.
var AACConfig = []byte{0x11, 0x90}

// SampleSize is the size of every sample Build emits.
const SampleSize = 16

// W is a little box writer: Begin pushes a size placeholder, End patches it.
type W struct {
	buf   []byte
	stack []int
}

func (w *W) Bytes() []byte { return w.buf }
func (w *W) Len() int      { return len(w.buf) }

func (w *W) Begin(typ string) {
	w.stack = append(w.stack, len(w.buf))
	w.PutU32(0)
	w.buf = append(w.buf, typ...)
}

func (w *W) End() {
	start := w.stack[len(w.stack)-1]
	w.stack = w.stack[:len(w.stack)-1]
	binary.BigEndian.PutUint32(w.buf[start:], uint32(len(w.buf)-start))
}

func (w *W) PutU8(v uint8)   { w.buf = append(w.buf, v) }
func (w *W) PutU16(v uint16) { w.buf = append(w.buf, byte(v>>8), byte(v)) }
func (w *W) PutU24(v uint32) { w.buf = append(w.buf, byte(v>>16), byte(v>>8), byte(v)) }
func (w *W) PutU32(v uint32) {
	w.buf = append(w.buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}
func (w *W) PutU64(v uint64) {
	w.PutU32(uint32(v >> 32))
	w.PutU32(uint32(v))
}
func (w *W) PutI32(v int32)      { w.PutU32(uint32(v)) }
func (w *W) PutBytes(b []byte)   { w.buf = append(w.buf, b...) }
func (w *W) PutString(s string)  { w.buf = append(w.buf, s...) }
func (w *W) PutZero(n int)       { w.buf = append(w.buf, make([]byte, n)...) }
func (w *W) BeginFull(typ string) {
	w.Begin(typ)
	w.PutU32(0) // version + flags
}

// Build serializes the spec. Video samples fill the mdat first, then audio;
// every sample is SampleSize bytes whose first word is the global sample
// index.
func Build(spec Spec) []byte {
	w := &W{}

	w.Begin("ftyp")
	w.PutString("mp42")
	w.PutU32(0)
	w.PutString("mp42")
	w.PutString("isom")
	w.End()

	w.PutBytes(spec.ExtraTopLevel)

	// Chunk offsets depend on the moov size: measure with zero offsets
	// (fixed-width fields), then rebuild for real.
	moovLen := len(buildMoov(spec, 0, 0))
	prefixLen := w.Len()
	videoOffset := uint64(prefixLen + moovLen + 8)
	audioOffset := videoOffset + uint64(spec.VideoSamples*SampleSize)
	w.PutBytes(buildMoov(spec, videoOffset, audioOffset))

	w.Begin("mdat")
	for i := 0; i < spec.VideoSamples+spec.AudioSamples; i++ {
		var sample [SampleSize]byte
		binary.BigEndian.PutUint32(sample[:], uint32(i))
		w.PutBytes(sample[:])
	}
	w.End()

	return w.Bytes()
}

func buildMoov(spec Spec, videoChunkOffset, audioChunkOffset uint64) []byte {
	w := &W{}
	w.Begin("moov")

	w.BeginFull("mvhd")
	w.PutU32(0)
	w.PutU32(0)
	w.PutU32(spec.VideoTimescale)
	w.PutU32(uint32(spec.VideoSamples) * spec.VideoDelta)
	w.PutU32(0x00010000)
	w.PutU16(0x0100)
	w.PutU16(0)
	w.PutZero(8)
	w.PutZero(9 * 4)
	w.PutZero(6 * 4)
	w.PutU32(3) // next track id
	w.End()

	buildTrak(w, spec, true, videoChunkOffset)
	buildTrak(w, spec, false, audioChunkOffset)

	w.End()
	return w.Bytes()
}

func buildTrak(w *W, spec Spec, video bool, chunkOffset uint64) {
	trackID := uint32(1)
	samples := spec.VideoSamples
	delta := spec.VideoDelta
	timescale := spec.VideoTimescale
	if !video {
		trackID = 2
		samples = spec.AudioSamples
		delta = spec.AudioDelta
		timescale = spec.AudioTimescale
	}

	w.Begin("trak")

	w.BeginFull("tkhd")
	w.PutU32(0)
	w.PutU32(0)
	w.PutU32(trackID)
	w.PutU32(0)
	w.PutU32(uint32(samples) * delta)
	w.PutZero(8)
	w.PutU16(0)
	w.PutU16(0)
	w.PutU16(0)
	w.PutU16(0)
	w.PutZero(9 * 4)
	if video {
		w.PutU32(640 << 16)
		w.PutU32(360 << 16)
	} else {
		w.PutZero(8)
	}
	w.End()

	w.Begin("mdia")

	w.BeginFull("mdhd")
	w.PutU32(0)
	w.PutU32(0)
	w.PutU32(timescale)
	w.PutU32(uint32(samples) * delta)
	w.PutU16(0x55c4) // "und"
	w.PutU16(0)
	w.End()

	w.BeginFull("hdlr")
	w.PutU32(0)
	if video {
		w.PutString("vide")
	} else {
		w.PutString("soun")
	}
	w.PutZero(12)
	w.PutString("handler\x00")
	w.End()

	w.Begin("minf")
	w.Begin("stbl")

	w.BeginFull("stsd")
	w.PutU32(1)
	if video {
		w.Begin("avc1")
		w.PutZero(6)
		w.PutU16(1)
		w.PutZero(16)
		w.PutU16(640)
		w.PutU16(360)
		w.PutU32(0x00480000)
		w.PutU32(0x00480000)
		w.PutU32(0)
		w.PutU16(1)
		w.PutZero(32)
		w.PutU16(0x18)
		w.PutU16(0xffff)
		w.Begin("avcC")
		w.PutBytes(AvcC)
		w.End()
		w.End()
	} else {
		w.Begin("mp4a")
		w.PutZero(6)
		w.PutU16(1)
		w.PutZero(8)
		w.PutU16(2)
		w.PutU16(16)
		w.PutU32(0)
		w.PutU32(uint32(spec.AudioTimescale) << 16)
		w.Begin("esds")
		w.PutU32(0) // version + flags
		w.PutU8(0x03)
		w.PutU8(uint8(3 + 2 + 13 + 2 + len(AACConfig) + 3))
		w.PutU16(2)
		w.PutU8(0)
		w.PutU8(0x04)
		w.PutU8(uint8(13 + 2 + len(AACConfig)))
		w.PutU8(0x40)
		w.PutU8(0x15)
		w.PutU24(0)
		w.PutU32(128000)
		w.PutU32(128000)
		w.PutU8(0x05)
		w.PutU8(uint8(len(AACConfig)))
		w.PutBytes(AACConfig)
		w.PutU8(0x06)
		w.PutU8(1)
		w.PutU8(0x02)
		w.End()
		w.End()
	}
	w.End() // stsd

	w.BeginFull("stts")
	w.PutU32(1)
	w.PutU32(uint32(samples))
	w.PutU32(delta)
	w.End()

	if video {
		w.BeginFull("stss")
		w.PutU32(uint32(len(spec.Keyframes)))
		for _, k := range spec.Keyframes {
			w.PutU32(k)
		}
		w.End()
	}

	w.BeginFull("stsz")
	w.PutU32(SampleSize)
	w.PutU32(uint32(samples))
	w.End()

	w.BeginFull("stsc")
	w.PutU32(1)
	w.PutU32(1)
	w.PutU32(uint32(samples))
	w.PutU32(1)
	w.End()

	w.BeginFull("stco")
	w.PutU32(1)
	w.PutU32(uint32(chunkOffset))
	w.End()

	w.End() // stbl
	w.End() // minf
	w.End() // mdia
	w.End() // trak
}
