package mp4

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/snapetech/vod-origin/internal/mp4/mp4test"
)

func fragmentedTestFile(t *testing.T) *File {
	t.Helper()
	file := parseTestFile(t, mp4test.Default())
	require.NoError(t, file.Fragmentize())
	return file
}

func TestFragmentize(t *testing.T) {
	file := fragmentedTestFile(t)
	video := file.Movie.VideoTrack()
	audio := file.Movie.AudioTrack()

	// One video and one audio fragment per keyframe.
	require.Len(t, video.Fragments, 5)
	require.Len(t, audio.Fragments, 5)

	// 60 samples per GOP, except possibly the tail.
	for i, f := range video.Fragments {
		require.Equal(t, 60, f.SampleCount(), "video fragment %d", i)
	}

	// Audio fragments end at the sample whose cumulative timestamp reaches
	// the video boundary: 60 video samples are 2.5 s = 117.19 audio frames.
	boundaries := []uint64{0, 117, 234, 351, 468}
	var idx uint64
	for i, f := range audio.Fragments {
		require.Equal(t, boundaries[i], idx, "audio fragment %d start index", i)
		idx += uint64(f.SampleCount())
	}

	// Sequence numbers interleave audio odd / video even, 1..2N.
	for i := 0; i < 5; i++ {
		require.Equal(t, uint32(2*i+1), audio.Fragments[i].Mfhd.SequenceNumber)
		require.Equal(t, uint32(2*i+2), video.Fragments[i].Mfhd.SequenceNumber)
	}
}

// The fragment durations must add up to the track duration with no
// accumulated rounding drift.
func TestFragmentDurationSum(t *testing.T) {
	file := fragmentedTestFile(t)
	video := file.Movie.VideoTrack()

	var sum uint64
	for _, f := range video.Fragments {
		sum += f.Duration
	}
	// 300 samples at 1000/24000 s: 12.5 s.
	require.Equal(t, uint64(125000000), sum)
	require.InDelta(t, float64(file.Movie.Duration100ns()), float64(sum), 1)

	// Timestamps are the running duration sum.
	var ts uint64
	for _, f := range video.Fragments {
		require.Equal(t, ts, f.Timestamp)
		ts += f.Duration
	}
}

func TestFragmentSdtpFlags(t *testing.T) {
	file := fragmentedTestFile(t)
	for _, f := range file.Movie.VideoTrack().Fragments {
		require.True(t, f.Sdtp.Present)
		require.Equal(t, byte(SdtpSampleI), f.Sdtp.SampleFlags[0])
		for i := 1; i < len(f.Sdtp.SampleFlags); i++ {
			require.Equal(t, byte(SdtpSamplePB), f.Sdtp.SampleFlags[i])
		}
	}
}

func TestFragmentFlags(t *testing.T) {
	file := fragmentedTestFile(t)
	video := file.Movie.VideoTrack().Fragments[0]
	audio := file.Movie.AudioTrack().Fragments[0]

	require.Equal(t, uint32(TrunSampleSize|TrunDataOffset|TrunFirstSampleFlags|TrunSampleCTO), video.Trun.Flags)
	require.Equal(t, uint32(FirstVideoSampleFlags), video.Trun.FirstSampleFlags)
	require.Equal(t, uint32(TfhdDefaultSampleDuration|TfhdDefaultSampleFlags), video.Tfhd.Flags)
	require.Equal(t, uint32(0x000100c0), video.Tfhd.DefaultSampleFlags)

	require.Equal(t, uint32(TrunSampleDuration|TrunSampleSize|TrunDataOffset), audio.Trun.Flags)
	require.Equal(t, uint32(TfhdDefaultSampleFlags), audio.Tfhd.Flags)
	require.Equal(t, uint32(0xc0), audio.Tfhd.DefaultSampleFlags)
}

// Contiguous samples collapse into single scatter chunks; the chunk sizes
// must cover exactly the mdat payload.
func TestFragmentChunks(t *testing.T) {
	file := fragmentedTestFile(t)
	for _, track := range []*Track{file.Movie.VideoTrack(), file.Movie.AudioTrack()} {
		for _, f := range track.Fragments {
			var total uint64
			for _, c := range f.Chunks {
				total += c.Size
			}
			require.Equal(t, f.MdatPayloadSize(), total)
			// The test layout is one contiguous run per track.
			require.Len(t, f.Chunks, 1)
		}
	}
}

// The audio timeline never leads the video by more than one GOP.
func TestAudioVideoAlignment(t *testing.T) {
	file := fragmentedTestFile(t)
	video := file.Movie.VideoTrack().Fragments
	audio := file.Movie.AudioTrack().Fragments

	var prev uint64
	for i := range audio {
		if i > 0 {
			require.Greater(t, audio[i].Timestamp, prev)
		}
		prev = audio[i].Timestamp
		require.LessOrEqual(t, audio[i].Timestamp, video[i].Timestamp+video[i].Duration)
	}
}
