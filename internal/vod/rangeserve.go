package vod

import (
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/snapetech/vod-origin/internal/adaptive"
	"github.com/snapetech/vod-origin/internal/worker"
)

// byteRange is a half-open [Start, End) span of the virtual file.
type byteRange struct {
	Start uint64
	End   uint64
}

// parseRange decodes a Range header against a resource of the given size.
// Returns the ranges and true when the header was present and parseable.
// Unsatisfiable or malformed headers report false and the caller serves the
// full resource.
func parseRange(header string, size uint64) ([]byteRange, bool) {
	const prefix = "bytes="
	if header == "" || !strings.HasPrefix(header, prefix) {
		return nil, false
	}
	var out []byteRange
	for _, spec := range strings.Split(header[len(prefix):], ",") {
		spec = strings.TrimSpace(spec)
		dash := strings.IndexByte(spec, '-')
		if dash < 0 {
			return nil, false
		}
		startStr, endStr := spec[:dash], spec[dash+1:]
		var r byteRange
		switch {
		case startStr == "" && endStr != "":
			// Suffix form: last N bytes.
			n, err := strconv.ParseUint(endStr, 10, 64)
			if err != nil || n == 0 {
				return nil, false
			}
			if n > size {
				n = size
			}
			r = byteRange{Start: size - n, End: size}
		case startStr != "":
			start, err := strconv.ParseUint(startStr, 10, 64)
			if err != nil || start >= size {
				return nil, false
			}
			end := size
			if endStr != "" {
				last, err := strconv.ParseUint(endStr, 10, 64)
				if err != nil || last < start {
					return nil, false
				}
				if last >= size {
					last = size - 1
				}
				end = last + 1
			}
			r = byteRange{Start: start, End: end}
		default:
			return nil, false
		}
		out = append(out, r)
	}
	return out, len(out) > 0
}

// serveOndemandContent serves DASH On-Demand level files: path is "v0", "a1",
// .... The level's virtual layout is [ftyp+moov+sidx][moof0][mdat0]... and
// any byte range of it can be synthesized.
func (s *Server) serveOndemandContent(w http.ResponseWriter, r *http.Request, p *adaptive.Presentation, path string) {
	if len(path) < 2 || (path[0] != 'a' && path[0] != 'v') {
		notFound(w, "range", "bad content path")
		return
	}
	index, err := strconv.Atoi(path[1:])
	if err != nil {
		notFound(w, "range", "bad content path")
		return
	}
	isVideo := path[0] == 'v'
	levels := p.AudioLevel
	if isVideo {
		levels = p.VideoLevel
	}
	if index < 0 || index >= len(levels) {
		notFound(w, "range", "bad level")
		return
	}
	level := levels[index]
	track := level.Track

	contentType := "audio/mp4"
	if isVideo {
		contentType = "video/mp4"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Accept-Ranges", "bytes")

	if r.Method == http.MethodHead {
		w.Header().Set("Content-Length", strconv.FormatUint(track.DashSize, 10))
		ok("range")
		return
	}

	span := byteRange{Start: 0, End: track.DashSize}
	ranged := false
	if ranges, haveRange := parseRange(r.Header.Get("Range"), track.DashSize); haveRange {
		if len(ranges) != 1 {
			// Multi-range responses are not produced; log and serve the
			// whole resource.
			log.Printf("vod: %s: %d ranges requested, serving full resource", path, len(ranges))
		} else {
			span = ranges[0]
			ranged = true
		}
	}

	var body []byte
	var buildErr error
	job := &worker.Job{
		Process: func() {
			body, buildErr = s.buildRangeBody(p, level, span)
		},
		Finish: func() {
			if buildErr != nil {
				log.Printf("vod: range %s [%d,%d): %v", path, span.Start, span.End, buildErr)
				notFound(w, "range", "failed to open file (broken manifest?)")
				return
			}
			w.Header().Set("Content-Length", strconv.Itoa(len(body)))
			if ranged {
				w.Header().Set("Content-Range",
					fmt.Sprintf("bytes %d-%d/%d", span.Start, span.End-1, track.DashSize))
				w.WriteHeader(http.StatusPartialContent)
			}
			s.writeBody(w, body)
			ok("range")
		},
	}
	if err := s.Pool.Do(r.Context(), job); err != nil {
		log.Printf("vod: client gone during range %s: %v", path, err)
		metricRequests.WithLabelValues("range", "client_gone").Inc()
	}
}

// appendClipped adds the intersection of a data region (placed at
// regionStart in the virtual file) with the requested span.
func appendClipped(out []byte, data []byte, regionStart uint64, span byteRange) []byte {
	start := span.Start
	if regionStart > start {
		start = regionStart
	}
	end := span.End
	if regionEnd := regionStart + uint64(len(data)); regionEnd < end {
		end = regionEnd
	}
	if start >= end {
		return out
	}
	return append(out, data[start-regionStart:end-regionStart]...)
}

// buildRangeBody synthesizes the requested span of a level's virtual file,
// assembling (and encrypting) only the fragments the span touches.
func (s *Server) buildRangeBody(p *adaptive.Presentation, level *adaptive.Level, span byteRange) ([]byte, error) {
	track := level.Track
	out := make([]byte, 0, span.End-span.Start)

	out = appendClipped(out, track.DashHeaderData, 0, span)

	headerSize := track.DashHeaderAndSidxSize
	for _, frag := range track.Fragments {
		moofStart := headerSize + frag.Offset
		if span.End <= moofStart {
			break
		}
		mdatStart := moofStart + frag.MoofSize

		out = appendClipped(out, frag.MoofData, moofStart, span)

		if span.Start < mdatStart+frag.MdatSize && mdatStart < span.End {
			mdat, err := assembleFragment(p, level, frag)
			if err != nil {
				return nil, err
			}
			out = appendClipped(out, mdat, mdatStart, span)
		}
	}
	return out, nil
}
