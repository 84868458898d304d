// Package playready implements the offline half of PlayReady protection:
// deterministic content-key derivation from a key seed, the WRMHEADER
// protection header, PSSH construction, and AES-128-CTR sample encryption
// with PIFF subsample spans.
//
// Documentation: "PlayReady Header Object",
// http://www.microsoft.com/playready/documents/
package playready

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/text/encoding/unicode"

	"github.com/snapetech/vod-origin/internal/mp4"
)

// SystemID identifies the PlayReady content protection system.
var SystemID = uuid.MustParse("9a04f079-9840-4286-ab92-e65be0885f95")

// DefaultLicenseURL is the Microsoft demo license server.
const DefaultLicenseURL = "http://playready.directtaps.net/pr/svc/rightsmanager.asmx"

// DefaultKeySeed is the key seed used by the demo PlayReady server. As it is
// public, it is completely useless as a *private* key seed.
const DefaultKeySeed = "5D5068BEC9B384FF6044867159F16D6B755544FCD5116989B1ACC4278E88"

// keyIDSalt is appended to the content id before hashing into a key id.
const keyIDSalt = "KThMK9Tibb+X9qRuTvwOchPRwH+4hV05yZXnx7C"

// dsID is the domain service id placed in the WRMHEADER. Ignored by most
// clients; Roku checks CHECKSUM if it exists, not this.
const dsID = "AH+03juKbUGbHl1V/QIwRA=="

// PlayReady holds the key seed and license configuration shared by all
// presentations. Immutable after construction; safe to read from any
// goroutine.
type PlayReady struct {
	LicenseURL string
	AllowClear bool

	keySeed [30]byte
}

// New builds a PlayReady helper from a 60-hex-character key seed.
func New(licenseURL, keySeedHex string, allowClear bool) (*PlayReady, error) {
	if licenseURL == "" {
		licenseURL = DefaultLicenseURL
	}
	if keySeedHex == "" {
		keySeedHex = DefaultKeySeed
	}
	if len(keySeedHex) != 60 {
		return nil, fmt.Errorf("playready: key seed must be 60 hex characters, got %d", len(keySeedHex))
	}
	seed, err := hex.DecodeString(keySeedHex)
	if err != nil {
		return nil, fmt.Errorf("playready: key seed is not hex: %w", err)
	}
	pr := &PlayReady{LicenseURL: licenseURL, AllowClear: allowClear}
	copy(pr.keySeed[:], seed)
	return pr, nil
}

// DeriveKeyID hashes a content id into its 16-byte key id.
func DeriveKeyID(contentID string) [16]byte {
	h := sha1.New()
	h.Write([]byte(contentID))
	h.Write([]byte(keyIDSalt))
	var kid [16]byte
	copy(kid[:], h.Sum(nil))
	return kid
}

// GenerateKey derives the content key for a key id, per the PlayReady Header
// Object specification: three chained SHA-256 digests of seed/kid
// interleavings, xor-folded to 16 bytes.
func (pr *PlayReady) GenerateKey(kid []byte) [16]byte {
	seed := pr.keySeed[:]

	h := sha256.New()
	h.Write(seed)
	h.Write(kid)
	hashA := h.Sum(nil)

	h.Reset()
	h.Write(seed)
	h.Write(kid)
	h.Write(seed)
	hashB := h.Sum(nil)

	h.Reset()
	h.Write(seed)
	h.Write(kid)
	h.Write(seed)
	h.Write(kid)
	hashC := h.Sum(nil)

	var key [16]byte
	for i := 0; i < 16; i++ {
		key[i] = hashA[i] ^ hashA[i+16] ^ hashB[i] ^ hashB[i+16] ^ hashC[i] ^ hashC[i+16]
	}
	return key
}

// ProtectionHeader builds the binary PlayReady protection header for a key
// id: the WRMHEADER XML, UTF-16LE encoded, with the 10-byte record envelope.
func (pr *PlayReady) ProtectionHeader(kid []byte, laURL string) ([]byte, error) {
	// The whole document stays on one line to satisfy clients.
	wrmheader := fmt.Sprintf(`<WRMHEADER xmlns="http://schemas.microsoft.com/DRM/2007/03/PlayReadyHeader" version="4.0.0.0">`+
		`<DATA><PROTECTINFO><KEYLEN>16</KEYLEN><ALGID>AESCTR</ALGID></PROTECTINFO>`+
		`<KID>%s</KID>`+
		`<CUSTOMATTRIBUTES><IIS_DRM_VERSION>7.1.1064.0</IIS_DRM_VERSION></CUSTOMATTRIBUTES>`+
		`<LA_URL>%s</LA_URL><DS_ID>%s</DS_ID></DATA></WRMHEADER>`,
		base64.StdEncoding.EncodeToString(kid), laURL, dsID)

	enc := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder()
	utf16Bytes, err := enc.Bytes([]byte(wrmheader))
	if err != nil {
		return nil, fmt.Errorf("playready: encode WRMHEADER: %w", err)
	}

	// Record envelope: total length, one record, record type 1 (rights
	// management header), record length.
	out := make([]byte, 10+len(utf16Bytes))
	binary.LittleEndian.PutUint32(out[0:], uint32(len(utf16Bytes)+10))
	binary.LittleEndian.PutUint16(out[4:], 1)
	binary.LittleEndian.PutUint16(out[6:], 1)
	binary.LittleEndian.PutUint16(out[8:], uint16(len(utf16Bytes)))
	copy(out[10:], utf16Bytes)
	return out, nil
}

// ProtectionHeaderBase64 is the Smooth manifest form of ProtectionHeader.
func (pr *PlayReady) ProtectionHeaderBase64(kid []byte, laURL string) (string, error) {
	raw, err := pr.ProtectionHeader(kid, laURL)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// BuildPSSH wraps a protection header payload in a pssh box for DASH.
func BuildPSSH(data []byte) []byte {
	out := make([]byte, 0, 32+len(data))
	var u32 [4]byte
	binary.BigEndian.PutUint32(u32[:], uint32(32+len(data)))
	out = append(out, u32[:]...)
	out = append(out, 'p', 's', 's', 'h')
	out = append(out, 0, 0, 0, 0) // version, flags
	out = append(out, SystemID[:]...)
	binary.BigEndian.PutUint32(u32[:], uint32(len(data)))
	out = append(out, u32[:]...)
	out = append(out, data...)
	return out
}

// LevelIVSeed derives the per-level IV seed from the source filename and
// track id: the leading 64 bits of SHA-1("filename:track_id").
func LevelIVSeed(filename string, trackID uint32) uint64 {
	h := sha1.New()
	fmt.Fprintf(h, "%s:%d", filename, trackID)
	return binary.BigEndian.Uint64(h.Sum(nil))
}

// SetupIV populates a fragment's SampleEncryption box: per-sample
// IV = seed + (fragment_index << 32) + sample_index, and for H.264 one
// subsample entry per sample keeping the 5-byte NAL length prefix clear.
func SetupIV(frag *mp4.Fragment, seed uint64, isVideo bool) {
	se := &frag.SampleEncryption
	se.Present = true
	se.Flags = 0
	iv := seed + uint64(frag.Index)<<32
	n := frag.SampleCount()
	se.Samples = make([]mp4.SampleEncryptionSample, n)
	for i := 0; i < n; i++ {
		se.Samples[i].IV = iv + uint64(i)
	}
	if isVideo {
		se.Flags |= 0x2
		for i := 0; i < n; i++ {
			se.Samples[i].Entries = []mp4.SampleEncryptionEntry{{
				BytesOfClearData:     5,
				BytesOfEncryptedData: frag.Trun.Samples[i].Size - 5,
			}}
		}
	}
}

// EncryptFragment encrypts a fragment's assembled mdat buffer in place with
// AES-128-CTR. mdat includes the 8-byte box header; sample data starts at
// offset 8. A fresh CTR context starts per sample; the counter and partial
// block state carry across that sample's encrypted spans, so the output is
// bit-identical to encrypting the concatenated cipher spans.
func EncryptFragment(frag *mp4.Fragment, mdat []byte, contentKey []byte) error {
	block, err := aes.NewCipher(contentKey)
	if err != nil {
		return fmt.Errorf("playready: %w", err)
	}

	se := &frag.SampleEncryption
	sampleOffset := uint64(8)
	for i := range frag.Trun.Samples {
		size := uint64(frag.Trun.Samples[i].Size)

		var iv [16]byte
		binary.BigEndian.PutUint64(iv[:8], se.Samples[i].IV)
		stream := cipher.NewCTR(block, iv[:])

		if len(se.Samples[i].Entries) == 0 {
			span := mdat[sampleOffset : sampleOffset+size]
			stream.XORKeyStream(span, span)
		} else {
			offset := sampleOffset
			for _, e := range se.Samples[i].Entries {
				offset += uint64(e.BytesOfClearData)
				span := mdat[offset : offset+uint64(e.BytesOfEncryptedData)]
				stream.XORKeyStream(span, span)
				offset += uint64(e.BytesOfEncryptedData)
			}
		}
		sampleOffset += size
	}
	return nil
}
