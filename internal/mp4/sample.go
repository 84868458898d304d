package mp4

// Sample describes one sample of a non-fragmented track, located through the
// stts/ctts/stsz/stsc/stco tables. Offset is absolute in the source file;
// Duration and CTO are in the media timescale.
type Sample struct {
	Offset   uint64
	Size     uint32
	Duration int32
	CTO      uint32
	Keyframe bool
}

// SampleCount returns the number of samples in the track's sample tables.
func (t *Track) SampleCount() uint64 { return uint64(t.Stsz.SampleCount) }

// SampleAt computes the sample at index from the sample tables. The offset
// includes the sizes of the samples preceding index within its chunk.
func (t *Track) SampleAt(index uint64) Sample {
	var s Sample

	var offset uint64
	for _, e := range t.Stts.Entries {
		if index < offset+uint64(e.SampleCount) {
			s.Duration = e.SampleDelta
			break
		}
		offset += uint64(e.SampleCount)
	}

	if t.Stsz.SampleSize != 0 {
		s.Size = t.Stsz.SampleSize
	} else {
		s.Size = t.Stsz.SampleSizes[index]
	}

	offset = 0
	for _, e := range t.Ctts.Entries {
		if index < offset+uint64(e.SampleCount) {
			s.CTO = e.SampleOffset
			break
		}
		offset += uint64(e.SampleCount)
	}

	chunkIndex, indexInChunk, firstInChunk := t.locateChunk(index)

	s.Offset = t.Stco.ChunkOffsets[chunkIndex]
	for i := firstInChunk; i < firstInChunk+uint64(indexInChunk); i++ {
		if t.Stsz.SampleSize != 0 {
			s.Offset += uint64(t.Stsz.SampleSize)
		} else {
			s.Offset += uint64(t.Stsz.SampleSizes[i])
		}
	}

	if t.Stss.Present {
		for _, n := range t.Stss.SampleNumbers {
			if uint64(n-1) == index {
				s.Keyframe = true
				break
			}
		}
	} else {
		s.Keyframe = true
	}

	return s
}

// locateChunk scans the stsc run-length entries for the chunk containing the
// sample: the 0-based chunk index, the sample's position inside the chunk,
// and the track-wide index of the chunk's first sample.
func (t *Track) locateChunk(index uint64) (chunkIndex uint64, indexInChunk uint32, firstInChunk uint64) {
	var offset uint64
	entries := t.Stsc.Entries
	for i, e := range entries {
		if e.SamplesPerChunk == 0 {
			continue
		}
		var nChunks uint64
		if i == len(entries)-1 {
			// Last run: extends as far as needed.
			nChunks = 0
		} else {
			nChunks = uint64(entries[i+1].FirstChunk - e.FirstChunk)
		}
		runSamples := uint64(e.SamplesPerChunk) * nChunks
		if i == len(entries)-1 || index < offset+runSamples {
			rel := index - offset
			chunkIndex = uint64(e.FirstChunk-1) + rel/uint64(e.SamplesPerChunk)
			indexInChunk = uint32(rel % uint64(e.SamplesPerChunk))
			firstInChunk = index - uint64(indexInChunk)
			return
		}
		offset += runSamples
	}
	return 0, 0, 0
}

// IndexFromTimestamp returns the index of the sample containing the media
// timescale timestamp ts, or SampleCount when ts lies past the track.
func (t *Track) IndexFromTimestamp(ts uint64) uint64 {
	var accTS uint64
	var index uint64
	for _, e := range t.Stts.Entries {
		run := uint64(e.SampleCount) * uint64(e.SampleDelta)
		if ts-accTS >= run {
			accTS += run
			index += uint64(e.SampleCount)
		} else {
			return index + (ts-accTS)/uint64(e.SampleDelta)
		}
	}
	return uint64(t.Stsz.SampleCount)
}
