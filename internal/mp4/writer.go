package mp4

// SerializeMoof builds the fragment's moof box bytes and patches the trun
// data_offset to point just past the mdat header (moof size + 8). The result
// is stored in MoofData/MoofSize.
func (f *Fragment) SerializeMoof() {
	w := newByteWriter()

	w.begin(TypeMoof)

	w.begin(TypeMfhd)
	w.putVersionFlags(f.Mfhd.Version, f.Mfhd.Flags)
	w.putU32(f.Mfhd.SequenceNumber)
	w.end()

	w.begin(TypeTraf)
	f.serializeTfhd(w)
	if f.Tfdt.Present {
		f.serializeTfdt(w)
	}
	dataOffsetMark := f.serializeTrun(w)
	if f.Sdtp.Present {
		f.serializeSdtp(w)
	}
	var sencIVMark int
	if f.SampleEncryption.Present {
		sencIVMark = f.serializeSampleEncryption(w)
	}
	if f.SaizPresent {
		f.serializeSaiz(w)
	}
	if f.SaioPresent {
		f.serializeSaio(w, sencIVMark)
	}
	w.end() // traf

	w.end() // moof

	if dataOffsetMark != 0 {
		w.patchU32(dataOffsetMark, uint32(w.len()+8))
	}

	f.MoofData = w.bytes()
	f.MoofSize = uint64(w.len())
}

func (f *Fragment) serializeTfhd(w *byteWriter) {
	tfhd := &f.Tfhd
	w.begin(TypeTfhd)
	w.putVersionFlags(tfhd.Version, tfhd.Flags)
	w.putU32(tfhd.TrackID)
	if tfhd.Flags&TfhdSampleDescriptionIndex != 0 {
		w.putU32(1)
	}
	if tfhd.Flags&TfhdDefaultSampleDuration != 0 {
		w.putU32(tfhd.DefaultSampleDuration)
	}
	if tfhd.Flags&TfhdDefaultSampleSize != 0 {
		w.putU32(tfhd.DefaultSampleSize)
	}
	if tfhd.Flags&TfhdDefaultSampleFlags != 0 {
		w.putU32(tfhd.DefaultSampleFlags)
	}
	w.end()
}

func (f *Fragment) serializeTfdt(w *byteWriter) {
	w.begin(TypeTfdt)
	w.putVersionFlags(1, 0)
	w.putU64(f.Tfdt.BaseMediaDecodeTime)
	w.end()
}

// serializeTrun returns the offset of the data_offset field so the caller
// can patch it once the moof is closed, or 0 when the flag is absent.
func (f *Fragment) serializeTrun(w *byteWriter) int {
	trun := &f.Trun
	w.begin(TypeTrun)
	w.putVersionFlags(trun.Version, trun.Flags)
	w.putU32(uint32(len(trun.Samples)))
	mark := 0
	if trun.Flags&TrunDataOffset != 0 {
		mark = w.mark()
		w.putU32(0)
	}
	if trun.Flags&TrunFirstSampleFlags != 0 {
		w.putU32(trun.FirstSampleFlags)
	}
	for i := range trun.Samples {
		s := &trun.Samples[i]
		if trun.Flags&TrunSampleDuration != 0 {
			w.putU32(s.Duration)
		}
		if trun.Flags&TrunSampleSize != 0 {
			w.putU32(s.Size)
		}
		if trun.Flags&TrunSampleFlags != 0 {
			w.putU32(s.Flags)
		}
		if trun.Flags&TrunSampleCTO != 0 {
			w.putU32(s.CTO)
		}
	}
	w.end()
	return mark
}

func (f *Fragment) serializeSdtp(w *byteWriter) {
	w.begin(TypeSdtp)
	w.putVersionFlags(f.Sdtp.Version, f.Sdtp.Flags)
	w.putBytes(f.Sdtp.SampleFlags)
	w.end()
}

// serializeSampleEncryption writes the PIFF uuid box and returns the offset
// of the first IV byte, for saio.
func (f *Fragment) serializeSampleEncryption(w *byteWriter) int {
	se := &f.SampleEncryption
	w.begin(TypeUUID)
	w.putBytes(UUIDSampleEncryption[:])
	w.putVersionFlags(se.Version, se.Flags)
	if se.Flags&0x1 != 0 {
		w.putU24(se.AlgorithmID)
		w.putU8(se.IVSize)
		w.putBytes(se.KID[:])
	}
	w.putU32(uint32(len(se.Samples)))
	ivMark := w.mark()
	for i := range se.Samples {
		s := &se.Samples[i]
		w.putU64(s.IV)
		if se.Flags&0x2 != 0 {
			w.putU16(uint16(len(s.Entries)))
			for _, e := range s.Entries {
				w.putU16(e.BytesOfClearData)
				w.putU32(e.BytesOfEncryptedData)
			}
		}
	}
	w.end()
	return ivMark
}

// auxInfoSize is the per-sample auxiliary info size announced by saiz: the
// 8-byte IV plus the subsample table when present.
func (f *Fragment) auxInfoSize(i int) uint8 {
	se := &f.SampleEncryption
	if se.Flags&0x2 == 0 {
		return 8
	}
	return uint8(8 + 2 + 6*len(se.Samples[i].Entries))
}

func (f *Fragment) serializeSaiz(w *byteWriter) {
	w.begin(TypeSaiz)
	w.putVersionFlags(0, 0)
	n := len(f.SampleEncryption.Samples)
	uniform := true
	var first uint8
	if n > 0 {
		first = f.auxInfoSize(0)
		for i := 1; i < n; i++ {
			if f.auxInfoSize(i) != first {
				uniform = false
				break
			}
		}
	}
	if uniform {
		w.putU8(first)
		w.putU32(uint32(n))
	} else {
		w.putU8(0)
		w.putU32(uint32(n))
		for i := 0; i < n; i++ {
			w.putU8(f.auxInfoSize(i))
		}
	}
	w.end()
}

// serializeSaio points at the IV table inside the uuid SampleEncryption box;
// offsets are relative to the start of the moof.
func (f *Fragment) serializeSaio(w *byteWriter, sencIVMark int) {
	w.begin(TypeSaio)
	w.putVersionFlags(0, 0)
	w.putU32(1)
	w.putU32(uint32(sencIVMark))
	w.end()
}

// InitHeaderOptions selects the protection state of a synthetic init header.
type InitHeaderOptions struct {
	Protected bool
	KID       [16]byte
	// PSSH carries the protection system id and payload embedded into the
	// moov when Protected.
	PSSHSystemID [16]byte
	PSSHData     []byte
}

// BuildInitHeader synthesizes the ftyp+moov init segment for one track: the
// Smooth "ccff" header chunk.
func BuildInitHeader(movie *Movie, track *Track, opts InitHeaderOptions) []byte {
	w := newByteWriter()
	writeFtyp(w)
	writeMoov(w, movie, track, opts)
	return w.bytes()
}

// BuildDashHeader synthesizes ftyp+moov followed by a sidx indexing the
// track's fragments. Returns the bytes and the length of the ftyp+moov
// prefix (the MPD Initialization range end).
func BuildDashHeader(movie *Movie, track *Track, opts InitHeaderOptions) (data []byte, headerSize uint64) {
	w := newByteWriter()
	writeFtyp(w)
	writeMoov(w, movie, track, opts)
	headerSize = uint64(w.len())
	writeSidx(w, track)
	return w.bytes(), headerSize
}

func writeFtyp(w *byteWriter) {
	w.begin(TypeFtyp)
	w.putFourCC(BrandIso6)
	w.putU32(1)
	w.putFourCC(BrandIsom)
	w.putFourCC(BrandIso6)
	w.putFourCC(BrandMsdh)
	w.end()
}

func writeMatrix(w *byteWriter) {
	for _, v := range [9]uint32{0x00010000, 0, 0, 0, 0x00010000, 0, 0, 0, 0x40000000} {
		w.putU32(v)
	}
}

func writeMoov(w *byteWriter, movie *Movie, track *Track, opts InitHeaderOptions) {
	w.begin(TypeMoov)

	// mvhd, version 1 for 64-bit durations.
	w.begin(TypeMvhd)
	w.putVersionFlags(1, 0)
	w.putU64(0) // creation
	w.putU64(0) // modification
	w.putU32(movie.Mvhd.Timescale)
	w.putU64(movie.Mvhd.Duration)
	w.putU32(0x00010000) // rate 1.0
	w.putU16(0x0100)     // volume
	w.putU16(0)
	w.putU32(0)
	w.putU32(0)
	writeMatrix(w)
	for i := 0; i < 6; i++ {
		w.putU32(0)
	}
	w.putU32(track.Tkhd.TrackID + 1)
	w.end()

	writeTrak(w, movie, track, opts)
	writeMvex(w, track)

	if opts.Protected && len(opts.PSSHData) > 0 {
		w.begin(TypePssh)
		w.putVersionFlags(0, 0)
		w.putBytes(opts.PSSHSystemID[:])
		w.putU32(uint32(len(opts.PSSHData)))
		w.putBytes(opts.PSSHData)
		w.end()
	}

	w.end()
}

func writeTrak(w *byteWriter, movie *Movie, track *Track, opts InitHeaderOptions) {
	w.begin(TypeTrak)

	w.begin(TypeTkhd)
	w.putVersionFlags(1, 0x7) // enabled, in movie, in preview
	w.putU64(0)
	w.putU64(0)
	w.putU32(track.Tkhd.TrackID)
	w.putU32(0)
	w.putU64(track.Tkhd.Duration)
	w.putU64(0) // reserved
	w.putU16(track.Tkhd.Layer)
	w.putU16(track.Tkhd.AlternateGroup)
	if track.IsVideo() {
		w.putU16(0)
	} else {
		w.putU16(0x0100)
	}
	w.putU16(0)
	writeMatrix(w)
	if track.IsVideo() {
		w.putU32(uint32(track.Mp4v.Width) << 16)
		w.putU32(uint32(track.Mp4v.Height) << 16)
	} else {
		w.putU32(0)
		w.putU32(0)
	}
	w.end()

	w.begin(TypeMdia)

	w.begin(TypeMdhd)
	w.putVersionFlags(1, 0)
	w.putU64(0)
	w.putU64(0)
	w.putU32(track.Mdhd.Timescale)
	w.putU64(track.Mdhd.Duration)
	w.putU16(packLanguage(track.Mdhd.Language))
	w.putU16(0)
	w.end()

	w.begin(TypeHdlr)
	w.putVersionFlags(0, 0)
	w.putU32(0)
	if track.IsVideo() {
		w.putFourCC(HandlerVideo)
	} else {
		w.putFourCC(HandlerSound)
	}
	for i := 0; i < 3; i++ {
		w.putU32(0)
	}
	if track.IsVideo() {
		w.putBytes([]byte("VideoHandler\x00"))
	} else {
		w.putBytes([]byte("SoundHandler\x00"))
	}
	w.end()

	w.begin(TypeMinf)

	if track.IsVideo() {
		w.begin(TypeVmhd)
		w.putVersionFlags(0, 1)
		w.putU64(0)
		w.end()
	} else {
		w.begin(TypeSmhd)
		w.putVersionFlags(0, 0)
		w.putU32(0)
		w.end()
	}

	w.begin(TypeDinf)
	w.begin(TypeDref)
	w.putVersionFlags(0, 0)
	w.putU32(1)
	w.begin(TypeUrl)
	w.putVersionFlags(0, 1) // data in same file
	w.end()
	w.end()
	w.end()

	w.begin(TypeStbl)
	writeStsd(w, track, opts)
	for _, typ := range []FourCC{TypeStts, TypeStsc, TypeStsz, TypeStco} {
		w.begin(typ)
		w.putVersionFlags(0, 0)
		if typ == TypeStsz {
			w.putU32(0)
		}
		w.putU32(0)
		w.end()
	}
	w.end() // stbl

	w.end() // minf
	w.end() // mdia
	w.end() // trak
}

func packLanguage(lang string) uint16 {
	if len(lang) != 3 {
		lang = "und"
	}
	return uint16(lang[0]-0x60)<<10 | uint16(lang[1]-0x60)<<5 | uint16(lang[2]-0x60)
}

func writeStsd(w *byteWriter, track *Track, opts InitHeaderOptions) {
	w.begin(TypeStsd)
	w.putVersionFlags(0, 0)
	w.putU32(1)
	if track.IsVideo() {
		writeVideoSampleEntry(w, track, opts)
	} else {
		writeAudioSampleEntry(w, track, opts)
	}
	w.end()
}

func writeVideoSampleEntry(w *byteWriter, track *Track, opts InitHeaderOptions) {
	entryType := TypeAvc1
	if opts.Protected {
		entryType = TypeEncv
	}
	w.begin(entryType)
	for i := 0; i < 6; i++ {
		w.putU8(0)
	}
	w.putU16(1) // data reference index
	for i := 0; i < 4; i++ {
		w.putU32(0) // pre-defined + reserved
	}
	w.putU16(track.Mp4v.Width)
	w.putU16(track.Mp4v.Height)
	w.putU32(0x00480000) // 72 dpi
	w.putU32(0x00480000)
	w.putU32(0)
	w.putU16(1) // frame count
	for i := 0; i < 32; i++ {
		w.putU8(0) // compressor name
	}
	w.putU16(0x0018) // depth
	w.putU16(0xffff) // pre-defined

	w.begin(TypeAvcC)
	w.putBytes(track.Esds.CodecData)
	w.end()

	if opts.Protected {
		writeSinf(w, TypeAvc1, opts.KID)
	}
	w.end()
}

func writeAudioSampleEntry(w *byteWriter, track *Track, opts InitHeaderOptions) {
	entryType := TypeMp4a
	if opts.Protected {
		entryType = TypeEnca
	}
	w.begin(entryType)
	for i := 0; i < 6; i++ {
		w.putU8(0)
	}
	w.putU16(1)
	w.putU64(0) // reserved
	w.putU16(track.Mp4a.ChannelCount)
	w.putU16(track.Mp4a.SampleSize)
	w.putU32(0)
	w.putU32(track.Mp4a.SampleRate)

	writeEsds(w, track)

	if opts.Protected {
		writeSinf(w, TypeMp4a, opts.KID)
	}
	w.end()
}

// writeEsds rebuilds the descriptor chain around the track's
// AudioSpecificConfig. Lengths are written as single bytes; the configs
// involved are far below the 128-byte continuation threshold.
func writeEsds(w *byteWriter, track *Track) {
	esds := &track.Esds
	cfg := esds.CodecData

	w.begin(TypeEsds)
	w.putVersionFlags(0, 0)

	decSpecificLen := len(cfg)
	decoderConfigLen := 13 + 2 + decSpecificLen
	esDescrLen := 3 + 2 + decoderConfigLen + 2 + 1

	w.putU8(0x03) // ES_DescrTag
	w.putU8(uint8(esDescrLen))
	w.putU16(esds.ESID)
	w.putU8(0)

	w.putU8(0x04) // DecoderConfigDescrTag
	w.putU8(uint8(decoderConfigLen))
	w.putU8(esds.TypeIndication)
	w.putU8(esds.StreamType)
	w.putU24(esds.BufferSizeDB)
	w.putU32(esds.MaxBitrate)
	w.putU32(esds.AvgBitrate)

	w.putU8(0x05) // DecSpecificInfoTag
	w.putU8(uint8(decSpecificLen))
	w.putBytes(cfg)

	w.putU8(0x06) // SLConfigDescrTag
	w.putU8(1)
	w.putU8(0x02)

	w.end()
}

// writeSinf wraps the original sample-entry format in the common-encryption
// scheme info: frma + schm(cenc) + schi(tenc with the presentation KID and
// 8-byte IVs).
func writeSinf(w *byteWriter, originalFormat FourCC, kid [16]byte) {
	w.begin(TypeSinf)

	w.begin(TypeFrma)
	w.putFourCC(originalFormat)
	w.end()

	w.begin(TypeSchm)
	w.putVersionFlags(0, 0)
	w.putFourCC(FourCC{'c', 'e', 'n', 'c'})
	w.putU32(0x00010000)
	w.end()

	w.begin(TypeSchi)
	w.begin(TypeTenc)
	w.putVersionFlags(0, 0)
	w.putU16(0) // reserved
	w.putU8(1)  // default is protected
	w.putU8(8)  // per-sample IV size
	w.putBytes(kid[:])
	w.end()
	w.end()

	w.end()
}

func writeMvex(w *byteWriter, track *Track) {
	w.begin(TypeMvex)
	w.begin(TypeTrex)
	w.putVersionFlags(0, 0)
	w.putU32(track.Tkhd.TrackID)
	w.putU32(1) // default sample description index
	w.putU32(0)
	w.putU32(0)
	w.putU32(0)
	w.end()
	w.end()
}

// writeSidx indexes the track's fragments: each reference covers one
// moof+mdat pair, starts with a SAP of type 1.
func writeSidx(w *byteWriter, track *Track) {
	w.begin(TypeSidx)
	w.putVersionFlags(0, 0)
	w.putU32(track.Tkhd.TrackID) // reference ID
	w.putU32(ticksPerSecond)
	w.putU32(0) // earliest presentation time
	w.putU32(0) // first offset: sidx is the last header box
	w.putU16(0)
	w.putU16(uint16(len(track.Fragments)))
	for _, f := range track.Fragments {
		w.putU32(uint32(f.MoofSize + f.MdatSize)) // reference_type 0 | size
		w.putU32(uint32(f.Duration))
		w.putU32(1<<31 | 1<<28) // starts_with_sap, sap_type 1
	}
	w.end()
}
