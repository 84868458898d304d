package vod

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/snapetech/vod-origin/internal/adaptive"
	"github.com/snapetech/vod-origin/internal/mp4"
	"github.com/snapetech/vod-origin/internal/playready"
)

// assembleMdat builds a fragment's full mdat box: the 8-byte header followed
// by the scatter-gather regions read from the level's source file. One file
// descriptor per job; nothing is shared with other requests.
func assembleMdat(level *adaptive.Level, frag *mp4.Fragment) ([]byte, error) {
	fh, err := os.Open(level.Filename)
	if err != nil {
		return nil, fmt.Errorf("vod: open %q: %w", level.Filename, err)
	}
	defer fh.Close()

	mdat := make([]byte, frag.MdatSize)
	binary.BigEndian.PutUint32(mdat[0:], uint32(frag.MdatSize))
	copy(mdat[4:8], mp4.TypeMdat[:])

	pos := uint64(8)
	for _, chunk := range frag.Chunks {
		if pos+chunk.Size > frag.MdatSize {
			return nil, fmt.Errorf("vod: scatter list overflows mdat for %q", level.Filename)
		}
		if _, err := fh.ReadAt(mdat[pos:pos+chunk.Size], int64(chunk.Offset)); err != nil {
			return nil, fmt.Errorf("vod: read %d bytes at %d from %q: %w",
				chunk.Size, chunk.Offset, level.Filename, err)
		}
		pos += chunk.Size
	}
	return mdat, nil
}

// assembleFragment reads and, when the presentation is protected, encrypts
// one fragment's mdat. This is the worker-side half of a segment request.
func assembleFragment(p *adaptive.Presentation, level *adaptive.Level, frag *mp4.Fragment) ([]byte, error) {
	mdat, err := assembleMdat(level, frag)
	if err != nil {
		return nil, err
	}
	if p.DrmType != adaptive.DrmClear {
		if err := playready.EncryptFragment(frag, mdat, p.ContentKey[:]); err != nil {
			return nil, err
		}
	}
	return mdat, nil
}
