package playready

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"math/rand"
	"strings"
	"testing"
	"unicode/utf16"

	"github.com/stretchr/testify/require"

	"github.com/snapetech/vod-origin/internal/mp4"
)

func testPlayReady(t *testing.T) *PlayReady {
	t.Helper()
	pr, err := New("", "", true)
	require.NoError(t, err)
	return pr
}

func TestNewRejectsBadSeeds(t *testing.T) {
	_, err := New("", "abcd", false)
	require.Error(t, err)
	_, err = New("", strings.Repeat("z", 60), false)
	require.Error(t, err)
}

// The demo key seed and the content id "test" must reproduce the key id and
// content key the derivation in the PlayReady Header Object spec defines:
// kid = SHA-1(content_id || salt)[0:16], key = xor-fold of the three chained
// SHA-256 digests.
func TestKeyDerivationVector(t *testing.T) {
	pr := testPlayReady(t)

	kid := DeriveKeyID("test")
	h := sha1.Sum([]byte("test" + keyIDSalt))
	require.Equal(t, h[:16], kid[:])

	key := pr.GenerateKey(kid[:])

	seed := pr.keySeed[:]
	a := sha256.Sum256(append(append([]byte{}, seed...), kid[:]...))
	b := sha256.Sum256(append(append(append([]byte{}, seed...), kid[:]...), seed...))
	cIn := append(append(append(append([]byte{}, seed...), kid[:]...), seed...), kid[:]...)
	c := sha256.Sum256(cIn)
	var want [16]byte
	for i := 0; i < 16; i++ {
		want[i] = a[i] ^ a[i+16] ^ b[i] ^ b[i+16] ^ c[i] ^ c[i+16]
	}
	require.Equal(t, want, key)

	// Deterministic: same inputs, same key.
	require.Equal(t, key, pr.GenerateKey(kid[:]))

	// A different kid yields a different key.
	other := DeriveKeyID("other")
	require.NotEqual(t, key, pr.GenerateKey(other[:]))
}

// The protection header is a UTF-16LE WRMHEADER with a 10-byte record
// envelope.
func TestProtectionHeader(t *testing.T) {
	pr := testPlayReady(t)
	kid := DeriveKeyID("test")

	raw, err := pr.ProtectionHeader(kid[:], pr.LicenseURL)
	require.NoError(t, err)

	total := binary.LittleEndian.Uint32(raw[0:])
	require.Equal(t, uint32(len(raw)), total)
	require.Equal(t, uint16(1), binary.LittleEndian.Uint16(raw[4:]))
	require.Equal(t, uint16(1), binary.LittleEndian.Uint16(raw[6:]))
	xmlLen := binary.LittleEndian.Uint16(raw[8:])
	require.Equal(t, int(xmlLen), len(raw)-10)

	// Decode the UTF-16LE payload back to text and check the elements.
	u16 := make([]uint16, xmlLen/2)
	for i := range u16 {
		u16[i] = binary.LittleEndian.Uint16(raw[10+2*i:])
	}
	xml := string(utf16.Decode(u16))
	require.True(t, strings.HasPrefix(xml, "<WRMHEADER"))
	require.NotContains(t, xml, "\n")
	require.Contains(t, xml, "<KEYLEN>16</KEYLEN>")
	require.Contains(t, xml, "<ALGID>AESCTR</ALGID>")
	require.Contains(t, xml, "<KID>"+base64.StdEncoding.EncodeToString(kid[:])+"</KID>")
	require.Contains(t, xml, "<LA_URL>"+DefaultLicenseURL+"</LA_URL>")
	require.Contains(t, xml, "<DS_ID>"+dsID+"</DS_ID>")
}

func TestBuildPSSH(t *testing.T) {
	payload := []byte("payload-bytes")
	box := BuildPSSH(payload)

	require.Equal(t, uint32(len(box)), binary.BigEndian.Uint32(box[0:]))
	require.Equal(t, "pssh", string(box[4:8]))
	require.Equal(t, SystemID[:], box[12:28])
	require.Equal(t, uint32(len(payload)), binary.BigEndian.Uint32(box[28:]))
	require.Equal(t, payload, box[32:])
}

func TestLevelIVSeed(t *testing.T) {
	a := LevelIVSeed("video1.ismv", 1)
	require.Equal(t, a, LevelIVSeed("video1.ismv", 1))
	require.NotEqual(t, a, LevelIVSeed("video1.ismv", 2))
	require.NotEqual(t, a, LevelIVSeed("video2.ismv", 1))
}

func testFragment(sizes []uint32, video bool) *mp4.Fragment {
	frag := &mp4.Fragment{Index: 3}
	for _, s := range sizes {
		frag.Trun.Samples = append(frag.Trun.Samples, mp4.TrunSample{Size: s})
	}
	SetupIV(frag, 0x1122334455667788, video)
	return frag
}

func TestSetupIV(t *testing.T) {
	frag := testFragment([]uint32{100, 200, 300}, true)
	se := &frag.SampleEncryption

	require.True(t, se.Present)
	require.True(t, se.SubsamplePresent())
	base := uint64(0x1122334455667788) + 3<<32
	for i, s := range se.Samples {
		require.Equal(t, base+uint64(i), s.IV)
		require.Len(t, s.Entries, 1)
		require.Equal(t, uint16(5), s.Entries[0].BytesOfClearData)
		require.Equal(t, frag.Trun.Samples[i].Size-5, s.Entries[0].BytesOfEncryptedData)
	}

	audio := testFragment([]uint32{100}, false)
	require.False(t, audio.SampleEncryption.SubsamplePresent())
	require.Empty(t, audio.SampleEncryption.Samples[0].Entries)
}

func randomMdat(t *testing.T, frag *mp4.Fragment) []byte {
	t.Helper()
	var total uint64 = 8
	for _, s := range frag.Trun.Samples {
		total += uint64(s.Size)
	}
	data := make([]byte, total)
	rng := rand.New(rand.NewSource(1))
	rng.Read(data[8:])
	return data
}

// AES-CTR encryption is self-inverse under the same key and IVs.
func TestEncryptFragmentSelfInverse(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, 16)
	for _, video := range []bool{true, false} {
		frag := testFragment([]uint32{64, 33, 100}, video)
		plain := randomMdat(t, frag)
		work := append([]byte{}, plain...)

		require.NoError(t, EncryptFragment(frag, work, key))
		require.NotEqual(t, plain, work)

		require.NoError(t, EncryptFragment(frag, work, key))
		require.Equal(t, plain, work)
	}
}

// Clear spans stay clear, and the CTR state carries across the encrypted
// spans of one sample: the ciphertext equals encrypting the concatenated
// cipher spans with one stream.
func TestEncryptFragmentSubsamples(t *testing.T) {
	key := bytes.Repeat([]byte{0x37}, 16)
	frag := testFragment([]uint32{64, 100}, true)
	// Give the second sample two subsample spans to exercise continuity.
	frag.SampleEncryption.Samples[1].Entries = []mp4.SampleEncryptionEntry{
		{BytesOfClearData: 5, BytesOfEncryptedData: 40},
		{BytesOfClearData: 15, BytesOfEncryptedData: 40},
	}

	plain := randomMdat(t, frag)
	work := append([]byte{}, plain...)
	require.NoError(t, EncryptFragment(frag, work, key))

	// Sample 0: 5 clear bytes at its start survive.
	require.Equal(t, plain[8:13], work[8:13])
	// Sample 1 starts at 8+64: its clear spans survive.
	s1 := 8 + 64
	require.Equal(t, plain[s1:s1+5], work[s1:s1+5])
	require.Equal(t, plain[s1+45:s1+60], work[s1+45:s1+60])

	// Reference: one CTR stream over the concatenated cipher spans.
	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	var iv [16]byte
	binary.BigEndian.PutUint64(iv[:8], frag.SampleEncryption.Samples[1].IV)
	stream := cipher.NewCTR(block, iv[:])
	concat := append(append([]byte{}, plain[s1+5:s1+45]...), plain[s1+60:s1+100]...)
	stream.XORKeyStream(concat, concat)

	require.Equal(t, concat[:40], work[s1+5:s1+45])
	require.Equal(t, concat[40:], work[s1+60:s1+100])
}
