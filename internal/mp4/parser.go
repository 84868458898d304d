package mp4

import (
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
)

// Extended box types carried in uuid boxes.
var (
	// UUIDSampleEncryption is the PIFF SampleEncryption box.
	UUIDSampleEncryption = uuid.MustParse("a2394f52-5a9b-4f14-a244-6c427c648df4")
	// UUIDProtectionHeader is the PIFF ProtectionSystemSpecificHeader box.
	UUIDProtectionHeader = uuid.MustParse("d08a4f18-10f3-4a82-b6c8-32d8aba183d3")
	// uuidXMPData appears in camera output; recognized only to stay quiet
	// about it.
	uuidXMPData = uuid.MustParse("be7acfcb-97a9-42e8-9c71-999491e3afac")
)

// ftyp compatibility flags that influence parsing decisions.
type ftypFlags uint32

const (
	ftypIsml ftypFlags = 1 << iota
	ftypMp42
	ftypMp41
	ftypPiff
	ftypIso2
	ftypIsom
	ftypQT
)

// File is a parsed source file: the moov tree plus, for already-fragmented
// input, the moof-derived fragments. The file handle is only open during
// Parse; fragment assembly re-opens the file per request.
type File struct {
	Path  string
	Size  int64
	Movie *Movie

	ftypMajor FourCC
	ftyp      ftypFlags
	isISML    bool

	// fragments in file order, before they are attached to tracks.
	fragments []*Fragment

	parseErr error
}

// ParseFile reads the box structure of the file at path. Unknown boxes and
// unknown uuid extensions are logged and skipped; a truncated or structurally
// broken file returns an error with any partial state discarded.
func ParseFile(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("mp4: open %s: %w", path, err)
	}
	defer fh.Close()

	st, err := fh.Stat()
	if err != nil {
		return nil, fmt.Errorf("mp4: stat %s: %w", path, err)
	}

	p := &File{Path: path, Size: st.Size()}

	var offset int64
	for p.parseErr == nil && offset < p.Size {
		var hdr [16]byte
		n := int64(16)
		if p.Size-offset < n {
			n = p.Size - offset
		}
		if _, err := fh.ReadAt(hdr[:n], offset); err != nil {
			return nil, fmt.Errorf("mp4: read header at %d: %w", offset, err)
		}
		hr := newByteReader(hdr[:n])
		size32 := hr.u32()
		typ := hr.fourCC()
		size := int64(size32)
		headerLen := int64(8)
		switch size32 {
		case 1:
			size = int64(hr.u64())
			headerLen = 16
		case 0:
			size = p.Size - offset
		}
		if hr.err() != nil || size < headerLen || offset+size > p.Size {
			return nil, fmt.Errorf("mp4: truncated box %s at offset %d in %s", typ, offset, path)
		}

		switch typ {
		case TypeFtyp:
			body, err := readRegion(fh, offset+headerLen, size-headerLen)
			if err != nil {
				return nil, err
			}
			p.parseFtyp(newByteReader(body))
		case TypeMoov:
			body, err := readRegion(fh, offset+headerLen, size-headerLen)
			if err != nil {
				return nil, err
			}
			movie := &Movie{}
			p.parseMoov(movie, newByteReader(body))
			p.Movie = movie
		case TypeMoof:
			body, err := readRegion(fh, offset+headerLen, size-headerLen)
			if err != nil {
				return nil, err
			}
			frag := &Fragment{}
			p.parseMoof(frag, newByteReader(body))
			fixupMoof(frag)
			frag.MoofSize = uint64(size)
			p.fragments = append(p.fragments, frag)
		case TypeMdat:
			if p.isISML {
				if len(p.fragments) == 0 {
					return nil, fmt.Errorf("mp4: mdat with no moof in %s", path)
				}
				frag := p.fragments[len(p.fragments)-1]
				frag.MdatSize = uint64(size)
				frag.Chunks = []MdatChunk{{Offset: uint64(offset + headerLen), Size: uint64(size - headerLen)}}
			}
		case TypeMfra:
			// Random-access index; not needed to serve.
		case TypeFree, TypeWide:
			// Padding.
		case TypeUUID:
			var u [16]byte
			if size-headerLen >= 16 {
				if _, err := fh.ReadAt(u[:], offset+headerLen); err != nil {
					return nil, fmt.Errorf("mp4: read uuid at %d: %w", offset, err)
				}
			}
			if u != uuidXMPData {
				log.Printf("mp4: unknown top-level UUID %s in %s", uuid.UUID(u), path)
			}
		default:
			log.Printf("mp4: unknown top-level box %s at offset %d, size %d", typ, offset, size)
		}

		offset += size
	}

	if p.parseErr != nil {
		return nil, fmt.Errorf("mp4: %s: %w", path, p.parseErr)
	}
	if p.Movie == nil {
		return nil, fmt.Errorf("mp4: no moov box in %s", path)
	}

	p.fixupTimestamps()
	p.attachFragments()

	return p, nil
}

// IsFragmented reports whether the source already carried movie fragments.
func (p *File) IsFragmented() bool { return len(p.fragments) > 0 }

func readRegion(fh *os.File, offset, size int64) ([]byte, error) {
	buf := make([]byte, size)
	if _, err := fh.ReadAt(buf, offset); err != nil {
		return nil, fmt.Errorf("mp4: read %d bytes at %d: %w", size, offset, err)
	}
	return buf, nil
}

func (p *File) fail(context string, r *byteReader) {
	if r.err() != nil && p.parseErr == nil {
		p.parseErr = fmt.Errorf("truncated %s box: %w", context, r.err())
	}
}

// fixupTimestamps accumulates per-track start timestamps over the fragments
// of an already-fragmented file, in 100 ns units.
func (p *File) fixupTimestamps() {
	if len(p.fragments) == 0 || p.Movie == nil {
		return
	}
	ts := map[uint32]uint64{}
	for _, f := range p.fragments {
		id := f.Tfhd.TrackID
		var dur uint64
		for _, s := range f.Trun.Samples {
			dur += uint64(s.Duration)
		}
		if t := p.Movie.TrackByID(id); t != nil && t.Mdhd.Timescale != 0 {
			dur = scaleTicks(dur, t.Mdhd.Timescale)
		}
		f.Timestamp = ts[id]
		f.Duration = dur
		ts[id] += dur
	}
}

func (p *File) attachFragments() {
	for _, f := range p.fragments {
		t := p.Movie.TrackByID(f.Tfhd.TrackID)
		if t == nil {
			log.Printf("mp4: fragment for unknown track %d in %s", f.Tfhd.TrackID, p.Path)
			continue
		}
		f.Index = len(t.Fragments)
		t.Fragments = append(t.Fragments, f)
	}
}

func (p *File) parseFtyp(r *byteReader) {
	p.ftypMajor = r.fourCC()
	switch p.ftypMajor {
	case BrandIsml:
		p.isISML = true
	case BrandMp42, BrandIsom, BrandQT:
	default:
		log.Printf("mp4: unusual major brand %s in %s", p.ftypMajor, p.Path)
	}
	r.skip(4) // minor version
	for r.remaining() >= 4 {
		switch brand := r.fourCC(); brand {
		case BrandIsml:
			p.ftyp |= ftypIsml
		case BrandMp42:
			p.ftyp |= ftypMp42
		case BrandMp41:
			p.ftyp |= ftypMp41
		case BrandPiff:
			p.ftyp |= ftypPiff
		case BrandIso2:
			p.ftyp |= ftypIso2
		case BrandIsom:
			p.ftyp |= ftypIsom
		case BrandQT:
			p.ftyp |= ftypQT
		case FourCC{}:
			// Zero padding in the brand list.
		default:
			log.Printf("mp4: unknown compatible brand %s in %s", brand, p.Path)
		}
	}
	p.fail("ftyp", r)
}

func (p *File) parseMoov(movie *Movie, r *byteReader) {
	for r.remaining() >= 8 {
		h, ok := r.readBoxHeader()
		if !ok {
			break
		}
		sr := r.sub(h)
		switch h.typ {
		case TypeMvhd:
			p.parseMvhd(&movie.Mvhd, sr)
		case TypeTrak:
			track := &Track{}
			p.parseContainer(track, sr, trakAtoms, h.typ)
			movie.Tracks = append(movie.Tracks, track)
		case TypeUdta, TypeMvex, TypeMeta, TypeSkip, TypeIods:
			// Recognized but unused.
		case TypeUUID:
			u := sr.bytesN(16)
			if u == nil {
				break
			}
			var ub [16]byte
			copy(ub[:], u)
			if uuid.UUID(ub) == UUIDProtectionHeader {
				movie.Pssh.Present = true
				sr.skip(4) // version + flags
				copy(movie.Pssh.SystemID[:], sr.bytesN(16))
				dataLen := sr.u32()
				movie.Pssh.Data = sr.dupN(int(dataLen))
			} else {
				log.Printf("mp4: unknown UUID %s inside moov", uuid.UUID(ub))
			}
		case TypePssh:
			sr.skip(4)
			copy(movie.Pssh.SystemID[:], sr.bytesN(16))
			dataLen := sr.u32()
			movie.Pssh.Data = sr.dupN(int(dataLen))
			movie.Pssh.Present = true
		default:
			log.Printf("mp4: unknown box %s inside moov, size %d", h.typ, h.size)
		}
		p.fail(h.typ.String(), sr)
	}
	p.fail("moov", r)
}

// containerEntry is one row of a per-container allow-list: either a leaf
// parser or a nested table.
type containerEntry struct {
	typ      FourCC
	parse    func(p *File, t *Track, r *byteReader)
	children []containerEntry
}

func parseIgnore(p *File, t *Track, r *byteReader) {}

var stsdAtoms = []containerEntry{
	{typ: TypeAvcC, parse: (*File).parseAvcC},
	{typ: TypeEsds, parse: (*File).parseEsds},
	{typ: TypeSinf, parse: parseIgnore},
	{typ: TypeBtrt, parse: parseIgnore},
}

var dinfAtoms = []containerEntry{
	{typ: TypeDref, parse: parseIgnore},
}

var stblAtoms = []containerEntry{
	{typ: TypeStts, parse: (*File).parseStts},
	{typ: TypeCtts, parse: (*File).parseCtts},
	{typ: TypeStss, parse: (*File).parseStss},
	{typ: TypeStsd, parse: (*File).parseStsd},
	{typ: TypeStsz, parse: (*File).parseStsz},
	{typ: TypeStsc, parse: (*File).parseStsc},
	{typ: TypeStco, parse: (*File).parseStco},
	{typ: TypeCo64, parse: (*File).parseCo64},
	{typ: TypeStsh, parse: parseIgnore},
	{typ: TypeStdp, parse: parseIgnore},
	{typ: TypeCslg, parse: parseIgnore},
	{typ: TypeStps, parse: parseIgnore},
	{typ: TypeSdtp, parse: parseIgnore},
}

var minfAtoms = []containerEntry{
	{typ: TypeVmhd, parse: parseIgnore},
	{typ: TypeSmhd, parse: parseIgnore},
	{typ: TypeHmhd, parse: parseIgnore},
	{typ: TypeDinf, children: dinfAtoms},
	{typ: TypeStbl, children: stblAtoms},
	{typ: TypeHdlr, parse: parseIgnore},
}

var mdiaAtoms = []containerEntry{
	{typ: TypeMdhd, parse: (*File).parseMdhd},
	{typ: TypeHdlr, parse: (*File).parseHdlr},
	{typ: TypeMinf, children: minfAtoms},
	{typ: TypeUdta, parse: parseIgnore},
}

var edtsAtoms = []containerEntry{
	{typ: TypeElst, parse: parseIgnore},
}

var trakAtoms = []containerEntry{
	{typ: TypeTkhd, parse: (*File).parseTkhd},
	{typ: TypeTref, parse: parseIgnore},
	{typ: TypeUdta, parse: parseIgnore},
	{typ: TypeEdts, children: edtsAtoms},
	{typ: TypeMdia, children: mdiaAtoms},
	{typ: TypeMeta, parse: parseIgnore},
}

func (p *File) parseContainer(t *Track, r *byteReader, atoms []containerEntry, parent FourCC) {
	for r.remaining() >= 8 {
		h, ok := r.readBoxHeader()
		if !ok {
			break
		}
		sr := r.sub(h)
		known := false
		for _, e := range atoms {
			if e.typ != h.typ {
				continue
			}
			known = true
			if e.parse != nil {
				e.parse(p, t, sr)
			} else {
				p.parseContainer(t, sr, e.children, h.typ)
			}
			break
		}
		if !known {
			log.Printf("mp4: unknown box %s inside %s, size %d", h.typ, parent, h.size)
		}
		p.fail(h.typ.String(), sr)
	}
	p.fail(parent.String(), r)
}

func (p *File) parseMvhd(mvhd *Mvhd, r *byteReader) {
	mvhd.Version, mvhd.Flags = r.versionFlags()
	if mvhd.Version == 1 {
		mvhd.CreationTime = r.u64()
		mvhd.ModificationTime = r.u64()
		mvhd.Timescale = r.u32()
		mvhd.Duration = r.u64()
	} else {
		mvhd.CreationTime = uint64(r.u32())
		mvhd.ModificationTime = uint64(r.u32())
		mvhd.Timescale = r.u32()
		mvhd.Duration = uint64(r.u32())
	}
	r.skip(4 + 2 + 2 + 8) // rate, volume, reserved
	r.skip(9*4 + 6*4) // matrix, pre-defined
	mvhd.NextTrackID = r.u32()
}

func (p *File) parseTkhd(t *Track, r *byteReader) {
	tkhd := &t.Tkhd
	tkhd.Present = true
	tkhd.Version, tkhd.Flags = r.versionFlags()
	if tkhd.Version == 1 {
		tkhd.CreationTime = r.u64()
		tkhd.ModificationTime = r.u64()
		tkhd.TrackID = r.u32()
		r.skip(4)
		tkhd.Duration = r.u64()
	} else {
		tkhd.CreationTime = uint64(r.u32())
		tkhd.ModificationTime = uint64(r.u32())
		tkhd.TrackID = r.u32()
		r.skip(4)
		tkhd.Duration = uint64(r.u32())
	}
	r.skip(8) // reserved
	tkhd.Layer = r.u16()
	tkhd.AlternateGroup = r.u16()
	tkhd.Volume = r.u16()
	r.skip(2)
	for i := 0; i < 9; i++ {
		tkhd.Matrix[i] = r.u32()
	}
	tkhd.Width = r.u32()
	tkhd.Height = r.u32()
}

func unpackLanguage(code uint16) string {
	return string([]byte{
		0x60 + byte((code>>10)&0x1f),
		0x60 + byte((code>>5)&0x1f),
		0x60 + byte(code&0x1f),
	})
}

func (p *File) parseMdhd(t *Track, r *byteReader) {
	mdhd := &t.Mdhd
	mdhd.Present = true
	mdhd.Version, mdhd.Flags = r.versionFlags()
	if mdhd.Version == 1 {
		mdhd.CreationTime = r.u64()
		mdhd.ModificationTime = r.u64()
		mdhd.Timescale = r.u32()
		mdhd.Duration = r.u64()
	} else {
		mdhd.CreationTime = uint64(r.u32())
		mdhd.ModificationTime = uint64(r.u32())
		mdhd.Timescale = r.u32()
		mdhd.Duration = uint64(r.u32())
	}
	mdhd.Language = unpackLanguage(r.u16())
	r.skip(2)
}

// parseHdlrName handles the Pascal-vs-NUL-terminated ambiguity: the ftyp
// compatibility set decides the expected form, the actual byte layout wins,
// and a mismatch is only a warning.
func (p *File) parseHdlrName(r *byteReader) string {
	nulTerminated := p.ftyp&(ftypMp41|ftypMp42|ftypPiff) != 0
	rem := r.remaining()
	if rem == 0 {
		return ""
	}
	plen := int(r.data[r.pos])
	if rem == plen+1 {
		if nulTerminated {
			log.Printf("mp4: expecting nul-terminated hdlr name, got pascal string (ftyp %#x)", p.ftyp)
		}
		r.skip(1)
		return string(r.bytesN(plen))
	}
	if !nulTerminated && p.ftyp != 0 {
		log.Printf("mp4: expecting pascal hdlr name, got nul-terminated string (ftyp %#x)", p.ftyp)
	}
	b := r.bytesN(rem)
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

func (p *File) parseHdlr(t *Track, r *byteReader) {
	hdlr := &t.Hdlr
	hdlr.Present = true
	hdlr.Version, hdlr.Flags = r.versionFlags()
	r.skip(4) // pre-defined
	hdlr.HandlerType = r.fourCC()
	r.skip(12) // reserved
	hdlr.Name = p.parseHdlrName(r)
}

func (p *File) parseStts(t *Track, r *byteReader) {
	t.Stts.Present = true
	r.versionFlags()
	n := r.u32()
	t.Stts.Entries = make([]SttsEntry, 0, n)
	for i := uint32(0); i < n && r.err() == nil; i++ {
		t.Stts.Entries = append(t.Stts.Entries, SttsEntry{
			SampleCount: r.u32(),
			SampleDelta: int32(r.u32()),
		})
	}
}

func (p *File) parseCtts(t *Track, r *byteReader) {
	t.Ctts.Present = true
	r.versionFlags()
	n := r.u32()
	t.Ctts.Entries = make([]CttsEntry, 0, n)
	for i := uint32(0); i < n && r.err() == nil; i++ {
		t.Ctts.Entries = append(t.Ctts.Entries, CttsEntry{
			SampleCount:  r.u32(),
			SampleOffset: r.u32(),
		})
	}
}

func (p *File) parseStss(t *Track, r *byteReader) {
	t.Stss.Present = true
	r.versionFlags()
	n := r.u32()
	t.Stss.SampleNumbers = make([]uint32, 0, n)
	for i := uint32(0); i < n && r.err() == nil; i++ {
		t.Stss.SampleNumbers = append(t.Stss.SampleNumbers, r.u32())
	}
}

func (p *File) parseStsz(t *Track, r *byteReader) {
	t.Stsz.Present = true
	r.versionFlags()
	t.Stsz.SampleSize = r.u32()
	t.Stsz.SampleCount = r.u32()
	if t.Stsz.SampleSize == 0 {
		t.Stsz.SampleSizes = make([]uint32, 0, t.Stsz.SampleCount)
		for i := uint32(0); i < t.Stsz.SampleCount && r.err() == nil; i++ {
			t.Stsz.SampleSizes = append(t.Stsz.SampleSizes, r.u32())
		}
	}
}

func (p *File) parseStsc(t *Track, r *byteReader) {
	t.Stsc.Present = true
	r.versionFlags()
	n := r.u32()
	t.Stsc.Entries = make([]StscEntry, 0, n)
	for i := uint32(0); i < n && r.err() == nil; i++ {
		t.Stsc.Entries = append(t.Stsc.Entries, StscEntry{
			FirstChunk:             r.u32(),
			SamplesPerChunk:        r.u32(),
			SampleDescriptionIndex: r.u32(),
		})
	}
}

func (p *File) parseStco(t *Track, r *byteReader) {
	t.Stco.Present = true
	r.versionFlags()
	n := r.u32()
	t.Stco.ChunkOffsets = make([]uint64, 0, n)
	for i := uint32(0); i < n && r.err() == nil; i++ {
		t.Stco.ChunkOffsets = append(t.Stco.ChunkOffsets, uint64(r.u32()))
	}
}

func (p *File) parseCo64(t *Track, r *byteReader) {
	t.Stco.Present = true
	r.versionFlags()
	n := r.u32()
	t.Stco.ChunkOffsets = make([]uint64, 0, n)
	for i := uint32(0); i < n && r.err() == nil; i++ {
		t.Stco.ChunkOffsets = append(t.Stco.ChunkOffsets, r.u64())
	}
}

func (p *File) parseStsd(t *Track, r *byteReader) {
	t.Stsd.Present = true
	r.versionFlags()
	t.Stsd.EntryCount = r.u32()
	for i := uint32(0); i < t.Stsd.EntryCount; i++ {
		h, ok := r.readBoxHeader()
		if !ok {
			break
		}
		sr := r.sub(h)
		switch h.typ {
		case TypeMp4a, TypeEnca:
			mp4a := &t.Mp4a
			mp4a.Present = true
			sr.skip(6)
			mp4a.DataReferenceIndex = sr.u16()
			sr.skip(8)
			mp4a.ChannelCount = sr.u16()
			mp4a.SampleSize = sr.u16()
			sr.skip(4)
			mp4a.SampleRate = sr.u32()
			p.parseContainer(t, sr, stsdAtoms, h.typ)
		case TypeAvc1, TypeEncv, TypeMp4v:
			mp4v := &t.Mp4v
			mp4v.Present = true
			sr.skip(6)
			mp4v.DataReferenceIndex = sr.u16()
			sr.skip(16)
			mp4v.Width = sr.u16()
			mp4v.Height = sr.u16()
			sr.skip(50)
			p.parseContainer(t, sr, stsdAtoms, h.typ)
		default:
			log.Printf("mp4: unknown box %s inside stsd, size %d", h.typ, h.size)
		}
		p.fail(h.typ.String(), sr)
	}
}

// parseEsds walks the MPEG-4 descriptor chain by tag with the 7-bit
// continuation length coding.
func (p *File) parseEsds(t *Track, r *byteReader) {
	esds := &t.Esds
	esds.Present = true
	r.skip(4) // version + flags
	for r.remaining() > 0 && r.err() == nil {
		tag := r.u8()
		var length uint32
		for {
			b := r.u8()
			length = length<<7 | uint32(b&0x7f)
			if b&0x80 == 0 || r.err() != nil {
				break
			}
		}
		switch tag {
		case 0x03: // ES_DescrTag
			esds.ESID = r.u16()
			esds.ESFlags = r.u8()
			if esds.ESFlags&0x80 != 0 {
				r.skip(2)
			}
			if esds.ESFlags&0x40 != 0 {
				r.skip(2)
			}
			if esds.ESFlags&0x20 != 0 {
				r.skip(2)
			}
		case 0x04: // DecoderConfigDescrTag
			esds.TypeIndication = r.u8()
			esds.StreamType = r.u8()
			esds.BufferSizeDB = r.u24()
			esds.MaxBitrate = r.u32()
			esds.AvgBitrate = r.u32()
		case 0x05: // DecSpecificInfoTag
			esds.CodecData = r.dupN(int(length))
		default: // SLConfigDescrTag and friends
			r.skip(int(length))
		}
	}
}

// parseAvcC keeps the whole AVCDecoderConfigurationRecord as the track's
// codec data; the manifest layer hex-encodes it and reads profile/level from
// its fixed header.
func (p *File) parseAvcC(t *Track, r *byteReader) {
	t.Esds.Present = true
	t.Esds.CodecData = r.dupN(r.remaining())
}

func (p *File) parseMoof(frag *Fragment, r *byteReader) {
	for r.remaining() >= 8 {
		h, ok := r.readBoxHeader()
		if !ok {
			break
		}
		sr := r.sub(h)
		switch h.typ {
		case TypeMfhd:
			frag.Mfhd.Version, frag.Mfhd.Flags = sr.versionFlags()
			frag.Mfhd.SequenceNumber = sr.u32()
		case TypeTraf:
			p.parseTraf(frag, sr)
		case TypeUUID:
			u := sr.bytesN(16)
			if u != nil {
				var ub [16]byte
				copy(ub[:], u)
				if uuid.UUID(ub) != uuidXMPData {
					log.Printf("mp4: unknown UUID %s inside moof", uuid.UUID(ub))
				}
			}
		default:
			log.Printf("mp4: unknown box %s inside moof, size %d", h.typ, h.size)
		}
		p.fail(h.typ.String(), sr)
	}
}

func (p *File) parseTraf(frag *Fragment, r *byteReader) {
	for r.remaining() >= 8 {
		h, ok := r.readBoxHeader()
		if !ok {
			break
		}
		sr := r.sub(h)
		switch h.typ {
		case TypeTfhd:
			p.parseTfhd(&frag.Tfhd, sr)
		case TypeTfdt:
			version, _ := sr.versionFlags()
			if version == 1 {
				frag.Tfdt.BaseMediaDecodeTime = sr.u64()
			} else {
				frag.Tfdt.BaseMediaDecodeTime = uint64(sr.u32())
			}
			frag.Tfdt.Present = true
		case TypeTrun:
			p.parseTrun(&frag.Trun, sr)
		case TypeSdtp:
			frag.Sdtp.Present = true
			frag.Sdtp.Version, frag.Sdtp.Flags = sr.versionFlags()
			frag.Sdtp.SampleFlags = sr.dupN(len(frag.Trun.Samples))
		case TypeUUID:
			u := sr.bytesN(16)
			if u == nil {
				break
			}
			var ub [16]byte
			copy(ub[:], u)
			if uuid.UUID(ub) == UUIDSampleEncryption {
				p.parseSampleEncryption(&frag.SampleEncryption, sr)
			} else {
				log.Printf("mp4: unknown UUID %s inside traf", uuid.UUID(ub))
			}
		default:
			log.Printf("mp4: unknown box %s inside traf, size %d", h.typ, h.size)
		}
		p.fail(h.typ.String(), sr)
	}
}

func (p *File) parseTfhd(tfhd *Tfhd, r *byteReader) {
	tfhd.Version, tfhd.Flags = r.versionFlags()
	tfhd.TrackID = r.u32()
	if tfhd.Flags&TfhdBaseDataOffset != 0 {
		r.skip(8)
	}
	if tfhd.Flags&TfhdSampleDescriptionIndex != 0 {
		r.skip(4)
	}
	if tfhd.Flags&TfhdDefaultSampleDuration != 0 {
		tfhd.DefaultSampleDuration = r.u32()
	}
	if tfhd.Flags&TfhdDefaultSampleSize != 0 {
		tfhd.DefaultSampleSize = r.u32()
	}
	if tfhd.Flags&TfhdDefaultSampleFlags != 0 {
		tfhd.DefaultSampleFlags = r.u32()
	}
}

func (p *File) parseTrun(trun *Trun, r *byteReader) {
	trun.Version, trun.Flags = r.versionFlags()
	count := r.u32()
	if trun.Flags&TrunDataOffset != 0 {
		trun.DataOffset = r.u32()
	}
	if trun.Flags&TrunFirstSampleFlags != 0 {
		trun.FirstSampleFlags = r.u32()
	}
	trun.Samples = make([]TrunSample, 0, count)
	for i := uint32(0); i < count && r.err() == nil; i++ {
		var s TrunSample
		if trun.Flags&TrunSampleDuration != 0 {
			s.Duration = r.u32()
		}
		if trun.Flags&TrunSampleSize != 0 {
			s.Size = r.u32()
		}
		if trun.Flags&TrunSampleFlags != 0 {
			s.Flags = r.u32()
		}
		if trun.Flags&TrunSampleCTO != 0 {
			s.CTO = r.u32()
		}
		trun.Samples = append(trun.Samples, s)
	}
}

func (p *File) parseSampleEncryption(se *SampleEncryption, r *byteReader) {
	se.Present = true
	se.Version, se.Flags = r.versionFlags()
	if se.Flags&0x1 != 0 {
		se.AlgorithmID = r.u24()
		se.IVSize = r.u8()
		copy(se.KID[:], r.bytesN(16))
	}
	count := r.u32()
	se.Samples = make([]SampleEncryptionSample, 0, count)
	for i := uint32(0); i < count && r.err() == nil; i++ {
		var s SampleEncryptionSample
		s.IV = r.u64()
		if se.Flags&0x2 != 0 {
			n := r.u16()
			s.Entries = make([]SampleEncryptionEntry, 0, n)
			for j := uint16(0); j < n && r.err() == nil; j++ {
				s.Entries = append(s.Entries, SampleEncryptionEntry{
					BytesOfClearData:     r.u16(),
					BytesOfEncryptedData: r.u32(),
				})
			}
		}
		se.Samples = append(se.Samples, s)
	}
}

// fixupMoof fills per-sample defaults from the tfhd, as decoders do.
func fixupMoof(frag *Fragment) {
	trun := &frag.Trun
	tfhd := &frag.Tfhd
	if trun.Flags&TrunSampleDuration == 0 {
		for i := range trun.Samples {
			trun.Samples[i].Duration = tfhd.DefaultSampleDuration
		}
	}
	if trun.Flags&TrunSampleFlags == 0 {
		for i := range trun.Samples {
			trun.Samples[i].Flags = tfhd.DefaultSampleFlags
		}
	}
	if trun.Flags&TrunSampleSize == 0 {
		for i := range trun.Samples {
			trun.Samples[i].Size = tfhd.DefaultSampleSize
		}
	}
}
