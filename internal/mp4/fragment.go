package mp4

import (
	"errors"
	"fmt"
)

// errNotFragmentable covers inputs the fragmenter cannot split.
var errNotFragmentable = errors.New("mp4: input not fragmentable")

// defaultVideoSampleDuration is the tfhd default written for video fragments,
// 40 ms in 100 ns ticks. Video truns carry no per-sample duration field, so
// decoders apply this default to every video sample; the stts-derived
// durations kept in Trun.Samples are not serialized. Audio truns carry
// explicit per-sample durations.
const defaultVideoSampleDuration = 400000

// Fragmentize splits a non-fragmented movie into per-keyframe fragments: one
// video and one audio fragment per video sync sample, attached to their
// tracks, sequence-numbered 1..2N in interleaved (audio, video) order.
func (p *File) Fragmentize() error {
	video := p.Movie.VideoTrack()
	if video == nil {
		return fmt.Errorf("%w: no video track in %s", errNotFragmentable, p.Path)
	}
	if video.Stsz.SampleCount == 0 {
		return fmt.Errorf("%w: video track has no samples (already fragmented?) in %s", errNotFragmentable, p.Path)
	}
	if !video.Stss.Present || len(video.Stss.SampleNumbers) == 0 {
		return fmt.Errorf("%w: video track has no sync sample table in %s", errNotFragmentable, p.Path)
	}
	audio := p.Movie.AudioTrack()
	if audio == nil {
		return fmt.Errorf("%w: no audio track in %s", errNotFragmentable, p.Path)
	}

	nFragments := len(video.Stss.SampleNumbers)

	var videoTimestamp, audioTimestamp uint64 // 100 ns, accumulated
	var videoMediaTS, audioMediaTS uint64     // media timescale, accumulated
	var audioIndex uint64

	for i := 0; i < nFragments; i++ {
		videoFrag := &Fragment{Index: i}
		audioFrag := &Fragment{Index: i}

		// Video fragment: keyframe i up to (exclusive) keyframe i+1.
		videoFrag.Mfhd.SequenceNumber = uint32(2*i + 2)
		videoFrag.Tfhd = Tfhd{
			Flags:                 TfhdDefaultSampleDuration | TfhdDefaultSampleFlags,
			TrackID:               video.Tkhd.TrackID,
			DefaultSampleDuration: defaultVideoSampleDuration,
			DefaultSampleFlags:    DefaultVideoSampleFlags,
		}

		sampleOffset := uint64(video.Stss.SampleNumbers[i] - 1)
		var nSamples uint64
		if i == nFragments-1 {
			nSamples = video.SampleCount() - sampleOffset
		} else {
			nSamples = uint64(video.Stss.SampleNumbers[i+1]-1) - sampleOffset
		}

		videoFrag.Sdtp.Present = true
		videoFrag.Sdtp.SampleFlags = make([]byte, nSamples)
		videoFrag.Sdtp.SampleFlags[0] = SdtpSampleI
		for j := uint64(1); j < nSamples; j++ {
			videoFrag.Sdtp.SampleFlags[j] = SdtpSamplePB
		}

		videoFrag.Timestamp = videoTimestamp
		videoFrag.MdatSize = 8
		videoFrag.Trun.Flags = TrunSampleSize | TrunDataOffset | TrunFirstSampleFlags | TrunSampleCTO
		videoFrag.Trun.FirstSampleFlags = FirstVideoSampleFlags
		videoFrag.Trun.Samples = make([]TrunSample, nSamples)
		for j := uint64(0); j < nSamples; j++ {
			sample := video.SampleAt(sampleOffset + j)

			// Per-sample durations are successive differences of the
			// converted timestamps so rounding never accumulates drift.
			videoMediaTS += uint64(sample.Duration)
			next := scaleTicks(videoMediaTS, video.Mdhd.Timescale)
			videoFrag.Trun.Samples[j] = TrunSample{
				Duration: uint32(next - videoTimestamp),
				Size:     sample.Size,
				CTO: uint32(scaleTicks(uint64(sample.CTO)+uint64(video.Mdhd.Timescale),
					video.Mdhd.Timescale) - ticksPerSecond),
			}
			videoTimestamp = next

			appendChunk(videoFrag, sample.Offset, uint64(sample.Size))
			videoFrag.MdatSize += uint64(sample.Size)
		}
		videoFrag.Duration = videoTimestamp - videoFrag.Timestamp

		// Matching audio fragment: runs until the audio sample whose
		// cumulative timestamp reaches the video fragment's end.
		audioFrag.Mfhd.SequenceNumber = uint32(2*i + 1)
		audioFrag.Tfhd = Tfhd{
			Flags:              TfhdDefaultSampleFlags,
			TrackID:            audio.Tkhd.TrackID,
			DefaultSampleFlags: DefaultAudioSampleFlags,
		}

		audioIndexEnd := audio.IndexFromTimestamp(
			videoTimestamp * uint64(audio.Mdhd.Timescale) / ticksPerSecond)
		nAudio := audioIndexEnd - audioIndex

		audioFrag.Timestamp = audioTimestamp
		audioFrag.MdatSize = 8
		audioFrag.Trun.Flags = TrunSampleDuration | TrunSampleSize | TrunDataOffset
		audioFrag.Trun.Samples = make([]TrunSample, nAudio)
		for j := uint64(0); j < nAudio; j++ {
			sample := audio.SampleAt(audioIndex + j)

			audioMediaTS += uint64(sample.Duration)
			next := scaleTicks(audioMediaTS, audio.Mdhd.Timescale)
			audioFrag.Trun.Samples[j] = TrunSample{
				Duration: uint32(next - audioTimestamp),
				Size:     sample.Size,
			}
			audioTimestamp = next

			appendChunk(audioFrag, sample.Offset, uint64(sample.Size))
			audioFrag.MdatSize += uint64(sample.Size)
		}
		audioFrag.Duration = audioTimestamp - audioFrag.Timestamp
		audioIndex = audioIndexEnd

		audioFrag.Index = len(audio.Fragments)
		audio.Fragments = append(audio.Fragments, audioFrag)
		videoFrag.Index = len(video.Fragments)
		video.Fragments = append(video.Fragments, videoFrag)
		p.fragments = append(p.fragments, audioFrag, videoFrag)
	}

	return nil
}

// appendChunk adds a scatter region, merging with the previous one when the
// source bytes are contiguous.
func appendChunk(f *Fragment, offset, size uint64) {
	if n := len(f.Chunks); n > 0 {
		last := &f.Chunks[n-1]
		if last.Offset+last.Size == offset {
			last.Size += size
			return
		}
	}
	f.Chunks = append(f.Chunks, MdatChunk{Offset: offset, Size: size})
}
