// Command isom-dump prints the track and fragment structure of an MP4 file
// the way the origin sees it: sample tables, codec data, and, after
// fragmentation, the per-GOP fragment layout. Useful for checking whether an
// archive file will serve correctly before publishing its descriptor.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/snapetech/vod-origin/internal/mp4"
)

func main() {
	fragmentize := flag.Bool("fragmentize", false, "Split a progressive file into per-keyframe fragments before dumping")
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintf(os.Stderr, "usage: isom-dump [-fragmentize] file.mp4 ...\n")
		os.Exit(2)
	}

	exit := 0
	for _, path := range flag.Args() {
		if err := dump(path, *fragmentize); err != nil {
			log.Printf("%s: %v", path, err)
			exit = 1
		}
	}
	os.Exit(exit)
}

func dump(path string, fragmentize bool) error {
	file, err := mp4.ParseFile(path)
	if err != nil {
		return err
	}
	if fragmentize && !file.IsFragmented() {
		if err := file.Fragmentize(); err != nil {
			return err
		}
	}

	movie := file.Movie
	fmt.Printf("%s: size %d, %d tracks, timescale %d, duration %d (%.2fs)\n",
		path, file.Size, len(movie.Tracks), movie.Mvhd.Timescale, movie.Mvhd.Duration,
		float64(movie.Duration100ns())/1e7)
	if movie.Pssh.Present {
		fmt.Printf("  pssh: system %x, %d bytes\n", movie.Pssh.SystemID, len(movie.Pssh.Data))
	}

	for _, track := range movie.Tracks {
		dumpTrack(track)
	}
	return nil
}

func dumpTrack(t *mp4.Track) {
	fmt.Printf("  track %d: handler %s, timescale %d, duration %d, language %s\n",
		t.Tkhd.TrackID, t.Hdlr.HandlerType, t.Mdhd.Timescale, t.Mdhd.Duration, t.Mdhd.Language)

	if t.IsVideo() && t.Mp4v.Present {
		fmt.Printf("    video %dx%d\n", t.Mp4v.Width, t.Mp4v.Height)
	}
	if t.Mp4a.Present {
		fmt.Printf("    audio %d ch, %d Hz\n", t.Mp4a.ChannelCount, t.Mp4a.SampleRate>>16)
	}
	if t.Esds.Present {
		fmt.Printf("    codec data: %s\n", hex.EncodeToString(t.Esds.CodecData))
	}

	if t.Stsz.Present {
		fmt.Printf("    samples: %d (stts runs %d, stsc runs %d, chunks %d, sync %d)\n",
			t.Stsz.SampleCount, len(t.Stts.Entries), len(t.Stsc.Entries),
			len(t.Stco.ChunkOffsets), len(t.Stss.SampleNumbers))
	}

	for _, f := range t.Fragments {
		fmt.Printf("    fragment %d: seq %d, t=%d (%.3fs), %d samples, mdat %d bytes in %d chunks\n",
			f.Index, f.Mfhd.SequenceNumber, f.Timestamp, float64(f.Duration)/1e7,
			f.SampleCount(), f.MdatSize, len(f.Chunks))
	}
}
