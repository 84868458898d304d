package vod

import (
	"encoding/binary"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/snapetech/vod-origin/internal/adaptive"
	"github.com/snapetech/vod-origin/internal/mp4"
	"github.com/snapetech/vod-origin/internal/playready"
	"github.com/snapetech/vod-origin/internal/worker"
)

// pattern fills a deterministic byte sequence so clipped spans can be
// compared exactly.
func pattern(tag byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = tag ^ byte(i)
	}
	return out
}

// testSource writes a fake media file whose bytes the fragments' scatter
// lists reference.
func testSource(t *testing.T, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "level0.ismv")
	require.NoError(t, os.WriteFile(path, pattern(0x5a, size), 0o644))
	return path
}

// testServerTrack builds a track with nFragments fragments of payloadSize
// source bytes each, laid out back to back in the source file.
func testServerTrack(id uint32, video bool, nFragments int, payloadSize uint64) *mp4.Track {
	track := &mp4.Track{}
	track.Tkhd.TrackID = id
	track.Mdhd.Timescale = 10000000
	if video {
		track.Hdlr.HandlerType = mp4.HandlerVideo
	} else {
		track.Hdlr.HandlerType = mp4.HandlerSound
	}
	var offset uint64
	for i := 0; i < nFragments; i++ {
		frag := &mp4.Fragment{
			Index:     i,
			Timestamp: uint64(i) * 20000000,
			Duration:  20000000,
			MoofData:  pattern(byte(0x10+i), 500),
			MoofSize:  500,
			MdatSize:  8 + payloadSize,
			Chunks:    []mp4.MdatChunk{{Offset: uint64(i) * payloadSize, Size: payloadSize}},
			Offset:    offset,
		}
		offset += frag.MoofSize + frag.MdatSize
		track.Fragments = append(track.Fragments, frag)
	}
	track.DashSize = offset
	return track
}

type serverFixture struct {
	server *Server
	source string
}

func newTestServer(t *testing.T, stream adaptive.StreamType) *serverFixture {
	t.Helper()

	const payloadSize = 2000
	source := testSource(t, 3*payloadSize)

	videoTrack := testServerTrack(2, true, 3, payloadSize)
	audioTrack := testServerTrack(1, false, 3, payloadSize)

	if stream == adaptive.StreamIsoffOndemand {
		for _, track := range []*mp4.Track{videoTrack, audioTrack} {
			track.DashHeaderData = pattern(0xd0, 1000)
			track.DashHeaderSize = 900
			track.DashHeaderAndSidxSize = 1000
			track.DashSize += 1000
		}
	} else {
		videoTrack.CcffHeaderData = pattern(0xcc, 700)
		audioTrack.CcffHeaderData = pattern(0xca, 300)
	}

	p := &adaptive.Presentation{
		ContentID:  "test",
		Duration:   60000000,
		MaxWidth:   640,
		MaxHeight:  360,
		StreamType: stream,
		DrmType:    adaptive.DrmClear,
		VideoLevel: []*adaptive.Level{{
			IsVideo:   true,
			TrackID:   2,
			Bitrate:   900000,
			Width:     640,
			Height:    360,
			Codec:     "avc1.640028",
			CodecData: "0164002801",
			Filename:  source,
			Track:     videoTrack,
		}},
		AudioLevel: []*adaptive.Level{{
			TrackID:   1,
			Bitrate:   128000,
			Codec:     "mp4a.40.2",
			CodecData: "1190",
			AudioRate: 48000,
			Filename:  source,
			Track:     audioTrack,
		}},
	}

	pr, err := playready.New("", "", true)
	require.NoError(t, err)
	cache, err := adaptive.NewCache(10)
	require.NoError(t, err)
	cache.Put(adaptive.Key("test", "0", adaptive.DrmClear, stream), p)

	pool := worker.NewPool(1)
	t.Cleanup(pool.Close)

	return &serverFixture{
		server: &Server{
			Endpoint:   "vod",
			ArchiveDir: t.TempDir(),
			PlayReady:  pr,
			Pool:       pool,
			Cache:      cache,
		},
		source: source,
	}
}

func (f *serverFixture) request(t *testing.T, method, target string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	return w
}

// Init segment requests return the ccff header verbatim, unencrypted, as
// video/mp4.
func TestServeInitSegment(t *testing.T) {
	f := newTestServer(t, adaptive.StreamISM)
	w := f.request(t, http.MethodGet, "/vod/test/0/clear/ism/content?stream=video&bitrate=900000&start_time=init", nil)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "video/mp4", w.Header().Get("Content-Type"))
	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, pattern(0xcc, 700), w.Body.Bytes())
}

// A media fragment is the serialized moof followed by the assembled mdat:
// header plus the scatter-gathered source bytes.
func TestServeFragment(t *testing.T) {
	f := newTestServer(t, adaptive.StreamISM)
	w := f.request(t, http.MethodGet, "/vod/test/0/clear/ism/content?stream=video&bitrate=900000&start_time=20000000", nil)

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.Bytes()
	require.Len(t, body, 500+8+2000)
	require.Equal(t, pattern(0x11, 500), body[:500])
	require.Equal(t, uint32(2008), binary.BigEndian.Uint32(body[500:]))
	require.Equal(t, "mdat", string(body[504:508]))
	require.Equal(t, pattern(0x5a, 3*2000)[2000:4000], body[508:])
}

func TestServeContentErrors(t *testing.T) {
	f := newTestServer(t, adaptive.StreamISM)
	base := "/vod/test/0/clear/ism/content"

	cases := []struct {
		name   string
		target string
		reason string
	}{
		{"missing stream", base + "?bitrate=900000&start_time=0", "missing stream parameter"},
		{"bad stream", base + "?stream=subtitles&bitrate=900000&start_time=0", `stream is not "audio" or "video"`},
		{"missing bitrate", base + "?stream=video&start_time=0", "missing bitrate parameter"},
		{"bad bitrate", base + "?stream=video&bitrate=fast&start_time=0", "bitrate is not a number"},
		{"missing start_time", base + "?stream=video&bitrate=900000", "missing start_time parameter"},
		{"bad start_time", base + "?stream=video&bitrate=900000&start_time=soon", `start_time is not a number or "init"`},
		{"unknown level", base + "?stream=video&bitrate=1&start_time=0", "level not found for stream and bitrate"},
		{"unknown fragment", base + "?stream=video&bitrate=900000&start_time=7", "fragment not found for start_time"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := f.request(t, http.MethodGet, tc.target, nil)
			require.Equal(t, http.StatusNotFound, w.Code)
			require.Contains(t, w.Body.String(), tc.reason)
		})
	}
}

func TestServeRouteErrors(t *testing.T) {
	f := newTestServer(t, adaptive.StreamISM)

	w := f.request(t, http.MethodGet, "/vod/test/0/widevine/ism/Manifest", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Contains(t, w.Body.String(), "invalid drm type")

	w = f.request(t, http.MethodGet, "/vod/test/0/clear/hls/Manifest", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Contains(t, w.Body.String(), "invalid stream type")

	w = f.request(t, http.MethodGet, "/vod/test/0/clear/ism/Playlist", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Contains(t, w.Body.String(), "invalid path for stream type")

	w = f.request(t, http.MethodGet, "/vod/unknown-content/0/clear/ism/Manifest", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Contains(t, w.Body.String(), "failed to load")
}

func TestClearStreamingDisabled(t *testing.T) {
	f := newTestServer(t, adaptive.StreamISM)
	f.server.PlayReady.AllowClear = false

	w := f.request(t, http.MethodGet, "/vod/test/0/clear/ism/Manifest", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Contains(t, w.Body.String(), "clear streaming disabled")
}

func TestServeSmoothManifest(t *testing.T) {
	f := newTestServer(t, adaptive.StreamISM)
	w := f.request(t, http.MethodGet, "/vod/test/0/clear/ism/Manifest", nil)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "text/xml", w.Header().Get("Content-Type"))
	require.Contains(t, w.Body.String(), "SmoothStreamingMedia")
}

func TestServeDashManifests(t *testing.T) {
	f := newTestServer(t, adaptive.StreamIsoffLive)
	w := f.request(t, http.MethodGet, "/vod/test/0/clear/isoff-live/manifest.mpd", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "application/dash+xml", w.Header().Get("Content-Type"))
	require.Contains(t, w.Body.String(), "isoff-live")

	f = newTestServer(t, adaptive.StreamIsoffOndemand)
	w = f.request(t, http.MethodGet, "/vod/test/0/clear/isoff-ondemand/manifest.mpd", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "isoff-on-demand")
}

// HEAD on an On-Demand level answers the virtual file size.
func TestOndemandHead(t *testing.T) {
	f := newTestServer(t, adaptive.StreamIsoffOndemand)
	w := f.request(t, http.MethodHead, "/vod/test/0/clear/isoff-ondemand/content/v0", nil)

	require.Equal(t, http.StatusOK, w.Code)
	// 1000 header + 3 x (500 moof + 2008 mdat).
	require.Equal(t, "8524", w.Header().Get("Content-Length"))
	require.Equal(t, "video/mp4", w.Header().Get("Content-Type"))
}

// A ranged request is clipped against the virtual layout: the header region,
// then each moof and assembled mdat.
func TestOndemandRangeClipping(t *testing.T) {
	f := newTestServer(t, adaptive.StreamIsoffOndemand)
	w := f.request(t, http.MethodGet, "/vod/test/0/clear/isoff-ondemand/content/v0",
		http.Header{"Range": []string{"bytes=500-2499"}})

	require.Equal(t, http.StatusPartialContent, w.Code)
	require.Equal(t, "bytes 500-2499/8524", w.Header().Get("Content-Range"))

	body := w.Body.Bytes()
	require.Len(t, body, 2000)

	// First 500 bytes: tail of the dash header.
	require.Equal(t, pattern(0xd0, 1000)[500:], body[:500])
	// Then the whole first moof.
	require.Equal(t, pattern(0x10, 500), body[500:1000])
	// Then the first 1000 bytes of the first mdat: its header plus payload.
	require.Equal(t, uint32(2008), binary.BigEndian.Uint32(body[1000:]))
	require.Equal(t, "mdat", string(body[1004:1008]))
	require.Equal(t, pattern(0x5a, 3*2000)[:992], body[1008:])
}

// The concatenation of adjacent ranges equals the full virtual file.
func TestOndemandRangeConcatenation(t *testing.T) {
	f := newTestServer(t, adaptive.StreamIsoffOndemand)

	full := f.request(t, http.MethodGet, "/vod/test/0/clear/isoff-ondemand/content/v0", nil)
	require.Equal(t, http.StatusOK, full.Code)
	require.Len(t, full.Body.Bytes(), 8524)

	var joined []byte
	const step = 1500
	for start := 0; start < 8524; start += step {
		end := start + step - 1
		if end >= 8524 {
			end = 8523
		}
		w := f.request(t, http.MethodGet, "/vod/test/0/clear/isoff-ondemand/content/v0",
			http.Header{"Range": []string{fmt.Sprintf("bytes=%d-%d", start, end)}})
		require.Equal(t, http.StatusPartialContent, w.Code)
		joined = append(joined, w.Body.Bytes()...)
	}
	require.Equal(t, full.Body.Bytes(), joined)
}

// More than one range is logged and served as the full resource.
func TestOndemandMultiRange(t *testing.T) {
	f := newTestServer(t, adaptive.StreamIsoffOndemand)
	w := f.request(t, http.MethodGet, "/vod/test/0/clear/isoff-ondemand/content/v0",
		http.Header{"Range": []string{"bytes=0-99,200-299"}})

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, w.Body.Bytes(), 8524)
}

func TestOndemandBadLevel(t *testing.T) {
	f := newTestServer(t, adaptive.StreamIsoffOndemand)

	for _, path := range []string{"content/x0", "content/v9", "content/v", "content/vx"} {
		w := f.request(t, http.MethodGet, "/vod/test/0/clear/isoff-ondemand/"+path, nil)
		require.Equal(t, http.StatusNotFound, w.Code, "path %s", path)
	}
}

func TestContentDirSharding(t *testing.T) {
	s := &Server{ArchiveDir: "/data/vod"}

	s.DirLevels = 0
	require.Equal(t, filepath.Join("/data/vod", "movie1"), s.contentDir("movie1"))
	s.DirLevels = 2
	require.Equal(t, filepath.Join("/data/vod", "m", "o", "movie1"), s.contentDir("movie1"))
	s.DirLevels = 3
	require.Equal(t, filepath.Join("/data/vod", "m", "o", "v", "movie1"), s.contentDir("movie1"))
	// Short keys shard as far as they can.
	require.Equal(t, filepath.Join("/data/vod", "a", "b", "ab"), s.contentDir("ab"))
}

func TestHealthz(t *testing.T) {
	f := newTestServer(t, adaptive.StreamISM)
	w := f.request(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"status":"ok"`)
}
