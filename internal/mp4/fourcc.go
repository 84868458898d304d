// Package mp4 parses and re-serializes the subset of ISO base-media boxes
// needed to turn pre-encoded MP4 files into Smooth Streaming / DASH
// presentations: the moov sample tables, PIFF-style movie fragments, and the
// synthetic init headers.
package mp4

// FourCC is a 4-byte box type identifier. Box types are always compared as
// byte arrays, never as host-endian integers.
type FourCC [4]byte

func (f FourCC) String() string { return string(f[:]) }

// File structure.
var (
	TypeFtyp = FourCC{'f', 't', 'y', 'p'}
	TypeMoov = FourCC{'m', 'o', 'o', 'v'}
	TypeMoof = FourCC{'m', 'o', 'o', 'f'}
	TypeMdat = FourCC{'m', 'd', 'a', 't'}
	TypeMfra = FourCC{'m', 'f', 'r', 'a'}
	TypeFree = FourCC{'f', 'r', 'e', 'e'}
	TypeWide = FourCC{'w', 'i', 'd', 'e'}
	TypeUUID = FourCC{'u', 'u', 'i', 'd'}
	TypeSidx = FourCC{'s', 'i', 'd', 'x'}
	TypePssh = FourCC{'p', 's', 's', 'h'}
)

// moov and children.
var (
	TypeMvhd = FourCC{'m', 'v', 'h', 'd'}
	TypeTrak = FourCC{'t', 'r', 'a', 'k'}
	TypeTkhd = FourCC{'t', 'k', 'h', 'd'}
	TypeTref = FourCC{'t', 'r', 'e', 'f'}
	TypeEdts = FourCC{'e', 'd', 't', 's'}
	TypeElst = FourCC{'e', 'l', 's', 't'}
	TypeMdia = FourCC{'m', 'd', 'i', 'a'}
	TypeMdhd = FourCC{'m', 'd', 'h', 'd'}
	TypeHdlr = FourCC{'h', 'd', 'l', 'r'}
	TypeMinf = FourCC{'m', 'i', 'n', 'f'}
	TypeVmhd = FourCC{'v', 'm', 'h', 'd'}
	TypeSmhd = FourCC{'s', 'm', 'h', 'd'}
	TypeHmhd = FourCC{'h', 'm', 'h', 'd'}
	TypeDinf = FourCC{'d', 'i', 'n', 'f'}
	TypeDref = FourCC{'d', 'r', 'e', 'f'}
	TypeUdta = FourCC{'u', 'd', 't', 'a'}
	TypeMvex = FourCC{'m', 'v', 'e', 'x'}
	TypeMehd = FourCC{'m', 'e', 'h', 'd'}
	TypeTrex = FourCC{'t', 'r', 'e', 'x'}
	TypeMeta = FourCC{'m', 'e', 't', 'a'}
	TypeSkip = FourCC{'s', 'k', 'i', 'p'}
	TypeIods = FourCC{'i', 'o', 'd', 's'}
)

// stbl and children.
var (
	TypeStbl = FourCC{'s', 't', 'b', 'l'}
	TypeStsd = FourCC{'s', 't', 's', 'd'}
	TypeStts = FourCC{'s', 't', 't', 's'}
	TypeCtts = FourCC{'c', 't', 't', 's'}
	TypeStss = FourCC{'s', 't', 's', 's'}
	TypeStsz = FourCC{'s', 't', 's', 'z'}
	TypeStsc = FourCC{'s', 't', 's', 'c'}
	TypeStco = FourCC{'s', 't', 'c', 'o'}
	TypeCo64 = FourCC{'c', 'o', '6', '4'}
	TypeStsh = FourCC{'s', 't', 's', 'h'}
	TypeStdp = FourCC{'s', 't', 'd', 'p'}
	TypeCslg = FourCC{'c', 's', 'l', 'g'}
	TypeStps = FourCC{'s', 't', 'p', 's'}
	TypeSdtp = FourCC{'s', 'd', 't', 'p'}
)

// Sample entries and codec config.
var (
	TypeAvc1 = FourCC{'a', 'v', 'c', '1'}
	TypeAvcC = FourCC{'a', 'v', 'c', 'C'}
	TypeMp4v = FourCC{'m', 'p', '4', 'v'}
	TypeMp4a = FourCC{'m', 'p', '4', 'a'}
	TypeEncv = FourCC{'e', 'n', 'c', 'v'}
	TypeEnca = FourCC{'e', 'n', 'c', 'a'}
	TypeEsds = FourCC{'e', 's', 'd', 's'}
	TypeSinf = FourCC{'s', 'i', 'n', 'f'}
	TypeFrma = FourCC{'f', 'r', 'm', 'a'}
	TypeSchm = FourCC{'s', 'c', 'h', 'm'}
	TypeSchi = FourCC{'s', 'c', 'h', 'i'}
	TypeTenc = FourCC{'t', 'e', 'n', 'c'}
	TypeBtrt = FourCC{'b', 't', 'r', 't'}
	TypeUrl  = FourCC{'u', 'r', 'l', ' '}
)

// moof and children.
var (
	TypeMfhd = FourCC{'m', 'f', 'h', 'd'}
	TypeTraf = FourCC{'t', 'r', 'a', 'f'}
	TypeTfhd = FourCC{'t', 'f', 'h', 'd'}
	TypeTfdt = FourCC{'t', 'f', 'd', 't'}
	TypeTrun = FourCC{'t', 'r', 'u', 'n'}
	TypeSaiz = FourCC{'s', 'a', 'i', 'z'}
	TypeSaio = FourCC{'s', 'a', 'i', 'o'}
)

// Handler types.
var (
	HandlerVideo = FourCC{'v', 'i', 'd', 'e'}
	HandlerSound = FourCC{'s', 'o', 'u', 'n'}
)

// ftyp brands that matter for parsing decisions.
var (
	BrandIsml = FourCC{'i', 's', 'm', 'l'}
	BrandIsom = FourCC{'i', 's', 'o', 'm'}
	BrandIso2 = FourCC{'i', 's', 'o', '2'}
	BrandIso6 = FourCC{'i', 's', 'o', '6'}
	BrandMp41 = FourCC{'m', 'p', '4', '1'}
	BrandMp42 = FourCC{'m', 'p', '4', '2'}
	BrandPiff = FourCC{'p', 'i', 'f', 'f'}
	BrandQT   = FourCC{'q', 't', ' ', ' '}
	BrandMsdh = FourCC{'m', 's', 'd', 'h'}
)
