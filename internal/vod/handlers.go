package vod

import (
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/snapetech/vod-origin/internal/adaptive"
	"github.com/snapetech/vod-origin/internal/worker"
)

// notFound answers with a short plain-text reason; every client-visible
// failure in the adaptive surface is a 404.
func notFound(w http.ResponseWriter, kind, reason string) {
	metricRequests.WithLabelValues(kind, "not_found").Inc()
	http.Error(w, reason, http.StatusNotFound)
}

func ok(kind string) { metricRequests.WithLabelValues(kind, "ok").Inc() }

// serveAdaptive resolves /{endpoint}/{content}/{version}/{drm}/{stream}/...
// and dispatches on the stream type.
func (s *Server) serveAdaptive(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")

	path := strings.TrimPrefix(r.URL.Path, "/"+s.endpoint()+"/")
	parts := strings.SplitN(path, "/", 5)
	if len(parts) < 5 {
		notFound(w, "route", "not found")
		return
	}
	key, version, drmName, streamName, rest := parts[0], parts[1], parts[2], parts[3], parts[4]

	if !validKey(key) || !validKey(version) {
		notFound(w, "route", "invalid content id")
		return
	}

	drm := adaptive.DrmTypeFromName(drmName)
	if drm == adaptive.DrmUnknown {
		notFound(w, "route", "invalid drm type")
		return
	}
	if drm == adaptive.DrmClear && !s.PlayReady.AllowClear {
		notFound(w, "route", "clear streaming disabled")
		return
	}
	stream := adaptive.StreamTypeFromName(streamName)
	if stream == adaptive.StreamUnknown {
		notFound(w, "route", "invalid stream type")
		return
	}

	p := s.getPresentation(key, version, drm, stream)
	if p == nil {
		notFound(w, "route", "failed to load")
		return
	}

	switch stream {
	case adaptive.StreamISM:
		switch rest {
		case "Manifest":
			s.serveSmoothManifest(w, r, p)
		case "content":
			s.serveContent(w, r, p)
		default:
			notFound(w, "route", "invalid path for stream type")
		}
	case adaptive.StreamIsoffLive:
		switch rest {
		case "manifest.mpd":
			s.serveDashLiveManifest(w, r, p)
		case "content":
			s.serveContent(w, r, p)
		default:
			notFound(w, "route", "invalid path for stream type")
		}
	case adaptive.StreamIsoffOndemand:
		switch {
		case rest == "manifest.mpd":
			s.serveDashOndemandManifest(w, r, p)
		case strings.HasPrefix(rest, "content/"):
			s.serveOndemandContent(w, r, p, strings.TrimPrefix(rest, "content/"))
		default:
			notFound(w, "route", "invalid path for stream type")
		}
	}
}

// getPresentation returns the cached presentation or loads it from the
// archive. A load failure is logged and reported as a plain miss.
func (s *Server) getPresentation(key, version string, drm adaptive.DrmType, stream adaptive.StreamType) *adaptive.Presentation {
	cacheKey := adaptive.Key(key, version, drm, stream)
	if p := s.Cache.Get(cacheKey); p != nil {
		return p
	}
	p, err := adaptive.Load(s.PlayReady, key, s.contentDir(key), version, drm, stream)
	if err != nil {
		log.Printf("vod: load %s: %v", cacheKey, err)
		return nil
	}
	s.Cache.Put(cacheKey, p)
	return p
}

func (s *Server) serveSmoothManifest(w http.ResponseWriter, r *http.Request, p *adaptive.Presentation) {
	body, err := p.SmoothManifest(adaptive.ParseManifestQuery(r.URL.Query()))
	if err != nil {
		log.Printf("vod: smooth manifest: %v", err)
		notFound(w, "manifest", "manifest unavailable")
		return
	}
	w.Header().Set("Content-Type", "text/xml")
	s.writeBody(w, body)
	ok("manifest")
}

func (s *Server) serveDashLiveManifest(w http.ResponseWriter, r *http.Request, p *adaptive.Presentation) {
	body, err := p.DashLiveManifest(adaptive.ParseManifestQuery(r.URL.Query()))
	if err != nil {
		log.Printf("vod: live mpd: %v", err)
		notFound(w, "manifest", "manifest unavailable")
		return
	}
	w.Header().Set("Content-Type", "application/dash+xml")
	s.writeBody(w, body)
	ok("manifest")
}

func (s *Server) serveDashOndemandManifest(w http.ResponseWriter, r *http.Request, p *adaptive.Presentation) {
	body, err := p.DashOndemandManifest(adaptive.ParseManifestQuery(r.URL.Query()))
	if err != nil {
		log.Printf("vod: ondemand mpd: %v", err)
		notFound(w, "manifest", "manifest unavailable")
		return
	}
	w.Header().Set("Content-Type", "application/dash+xml")
	s.writeBody(w, body)
	ok("manifest")
}

// writeBody writes a full response body; byte accounting happens in the
// logRequests wrapper so async Finish writes are counted too.
func (s *Server) writeBody(w http.ResponseWriter, body []byte) {
	if _, err := w.Write(body); err != nil {
		log.Printf("vod: write response: %v", err)
	}
}

// serveContent answers Smooth / DASH-Live fragment requests:
// ?stream={audio|video}&bitrate=N&start_time={N|init}. Init segments are
// served inline; media fragments go through the worker pool.
func (s *Server) serveContent(w http.ResponseWriter, r *http.Request, p *adaptive.Presentation) {
	q := r.URL.Query()

	streamName := q.Get("stream")
	if streamName == "" {
		notFound(w, "content", "missing stream parameter")
		return
	}
	if streamName != "audio" && streamName != "video" {
		notFound(w, "content", `stream is not "audio" or "video"`)
		return
	}
	bitrateStr := q.Get("bitrate")
	if bitrateStr == "" {
		notFound(w, "content", "missing bitrate parameter")
		return
	}
	bitrate, err := strconv.ParseUint(bitrateStr, 10, 64)
	if err != nil {
		notFound(w, "content", "bitrate is not a number")
		return
	}
	startTimeStr := q.Get("start_time")
	if startTimeStr == "" {
		notFound(w, "content", "missing start_time parameter")
		return
	}
	isInit := startTimeStr == "init"
	var startTime uint64
	if !isInit {
		startTime, err = strconv.ParseUint(startTimeStr, 10, 64)
		if err != nil {
			notFound(w, "content", `start_time is not a number or "init"`)
			return
		}
	}

	isVideo := streamName == "video"
	level := p.GetLevel(isVideo, bitrate)
	if level == nil {
		notFound(w, "content", "level not found for stream and bitrate")
		return
	}

	contentType := "audio/mp4"
	if isVideo {
		contentType = "video/mp4"
	}

	if isInit {
		w.Header().Set("Content-Type", contentType)
		s.writeBody(w, level.Track.CcffHeaderData)
		ok("content")
		return
	}

	frag := level.Track.FragmentByTimestamp(startTime)
	if frag == nil {
		notFound(w, "content", "fragment not found for start_time")
		return
	}

	var mdat []byte
	var assembleErr error
	job := &worker.Job{
		Process: func() {
			mdat, assembleErr = assembleFragment(p, level, frag)
		},
		Finish: func() {
			if assembleErr != nil {
				log.Printf("vod: assemble %s t=%d: %v", level.Filename, frag.Timestamp, assembleErr)
				notFound(w, "content", "failed to open file (broken manifest?)")
				return
			}
			w.Header().Set("Content-Type", contentType)
			s.writeBody(w, frag.MoofData)
			s.writeBody(w, mdat)
			ok("content")
		},
	}
	if err := s.Pool.Do(r.Context(), job); err != nil {
		// Client went away while the job was in flight; the buffer is
		// dropped, the job itself has already run or will run to completion.
		log.Printf("vod: client gone during assembly of %s t=%d: %v", level.Filename, frag.Timestamp, err)
		metricRequests.WithLabelValues("content", "client_gone").Inc()
	}
}
