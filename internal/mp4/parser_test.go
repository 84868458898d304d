package mp4

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/snapetech/vod-origin/internal/mp4/mp4test"
)

const testSampleSize = mp4test.SampleSize

func parseTestFile(t *testing.T, spec mp4test.Spec) *File {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.mp4")
	require.NoError(t, os.WriteFile(path, mp4test.Build(spec), 0o644))
	file, err := ParseFile(path)
	require.NoError(t, err)
	return file
}

func TestParseFile(t *testing.T) {
	file := parseTestFile(t, mp4test.Default())

	require.NotNil(t, file.Movie)
	require.Len(t, file.Movie.Tracks, 2)
	require.False(t, file.IsFragmented())

	video := file.Movie.VideoTrack()
	require.NotNil(t, video)
	require.Equal(t, uint32(1), video.Tkhd.TrackID)
	require.Equal(t, uint32(24000), video.Mdhd.Timescale)
	require.Equal(t, uint16(640), video.Mp4v.Width)
	require.Equal(t, uint16(360), video.Mp4v.Height)
	require.Equal(t, mp4test.AvcC, video.Esds.CodecData)
	require.Len(t, video.Stss.SampleNumbers, 5)

	audio := file.Movie.AudioTrack()
	require.NotNil(t, audio)
	require.Equal(t, uint32(48000), audio.Mdhd.Timescale)
	require.Equal(t, mp4test.AACConfig, audio.Esds.CodecData)
	require.Equal(t, uint8(0x40), audio.Esds.TypeIndication)
	require.Equal(t, uint32(48000), audio.Mp4a.SampleRate>>16)
	require.Equal(t, "und", audio.Mdhd.Language)
}

// Unknown uuid and unknown top-level boxes are tolerated: logged, skipped,
// and the rest of the file still parses.
func TestParseFileUnknownBoxes(t *testing.T) {
	extra := &mp4test.W{}
	extra.Begin("uuid")
	extra.PutBytes([]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10})
	extra.PutString("opaque payload")
	extra.End()
	extra.Begin("zzzz")
	extra.PutBytes([]byte{1, 2, 3, 4})
	extra.End()

	spec := mp4test.Default()
	spec.ExtraTopLevel = extra.Bytes()
	file := parseTestFile(t, spec)
	require.Len(t, file.Movie.Tracks, 2)
}

func TestParseFileTruncated(t *testing.T) {
	data := mp4test.Build(mp4test.Default())
	path := filepath.Join(t.TempDir(), "trunc.mp4")
	// Cut inside the moov header area.
	require.NoError(t, os.WriteFile(path, data[:40], 0o644))
	_, err := ParseFile(path)
	require.Error(t, err)
}

func TestSampleTables(t *testing.T) {
	file := parseTestFile(t, mp4test.Default())
	video := file.Movie.VideoTrack()

	require.Equal(t, uint64(300), video.SampleCount())

	s0 := video.SampleAt(0)
	require.Equal(t, uint32(testSampleSize), s0.Size)
	require.Equal(t, int32(1000), s0.Duration)
	require.True(t, s0.Keyframe)

	// One chunk holds the whole track, so offsets advance by the sample
	// size: the samples preceding the index within the chunk are counted.
	s1 := video.SampleAt(1)
	require.Equal(t, s0.Offset+testSampleSize, s1.Offset)
	require.False(t, s1.Keyframe)

	s299 := video.SampleAt(299)
	require.Equal(t, s0.Offset+299*testSampleSize, s299.Offset)

	require.Equal(t, uint64(0), video.IndexFromTimestamp(0))
	require.Equal(t, uint64(1), video.IndexFromTimestamp(1000))
	require.Equal(t, uint64(1), video.IndexFromTimestamp(1999))
	require.Equal(t, uint64(300), video.IndexFromTimestamp(400000))
}

// Sample offsets must strictly increase with the timestamp.
func TestSampleOffsetsMonotonic(t *testing.T) {
	file := parseTestFile(t, mp4test.Default())
	video := file.Movie.VideoTrack()

	var prev uint64
	for ts := uint64(0); ts < 300*1000; ts += 1000 {
		idx := video.IndexFromTimestamp(ts)
		s := video.SampleAt(idx)
		if ts > 0 {
			require.Greater(t, s.Offset, prev, "ts=%d", ts)
		}
		prev = s.Offset
	}
}
