package service

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/richinsley/goglfilter/shader"
	"github.com/richinsley/goglfilter/transcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingRunner stands in for the GPU transcoder: it reports progress,
// writes a fake output file and remembers what it was asked to do.
type recordingRunner struct {
	mu       sync.Mutex
	jobs     []transcode.Job
	fragment string
	params   shader.Params
	fail     error
}

func (r *recordingRunner) run(job *transcode.Job, fragment string, params shader.Params) error {
	r.mu.Lock()
	r.jobs = append(r.jobs, *job)
	r.fragment = fragment
	r.params = params
	r.mu.Unlock()

	job.Progress(50)
	job.Log("[libx264] note")
	if r.fail != nil {
		return r.fail
	}
	job.Progress(100)
	return os.WriteFile(job.Output, []byte("encoded"), 0o644)
}

func startServer(t *testing.T, runner *recordingRunner) (*Server, *httptest.Server) {
	t.Helper()
	dir := t.TempDir()
	srv, err := New(Config{
		UploadDir: filepath.Join(dir, "uploads"),
		OutputDir: filepath.Join(dir, "outputs"),
	}, runner.run)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		srv.Work(ctx)
		close(done)
	}()

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		cancel()
		<-done
	})
	return srv, ts
}

func upload(t *testing.T, ts *httptest.Server, filename string, data []byte) string {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("video", filename)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(ts.URL+"/upload", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		OK       bool   `json:"ok"`
		Filename string `json:"filename"`
		URL      string `json:"url"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.True(t, out.OK)
	assert.Equal(t, "/uploads/"+out.Filename, out.URL)
	return out.Filename
}

func postRun(t *testing.T, ts *httptest.Server, body string) (int, string) {
	t.Helper()
	resp, err := http.Post(ts.URL+"/run", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out struct {
		Job string `json:"job"`
	}
	json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out.Job
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data)
}

func readEvents(t *testing.T, ts *httptest.Server, id string) []Event {
	t.Helper()
	resp, err := http.Get(ts.URL + "/logs/" + id)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var events []Event
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		data, ok := strings.CutPrefix(sc.Text(), "data: ")
		if !ok {
			continue
		}
		var ev Event
		require.NoError(t, json.Unmarshal([]byte(data), &ev))
		events = append(events, ev)
	}
	require.NoError(t, sc.Err())
	return events
}

func progressOf(events []Event) []int {
	var out []int
	for _, ev := range events {
		if ev.Progress != nil {
			out = append(out, *ev.Progress)
		}
	}
	return out
}

func TestUploadRunDownload(t *testing.T) {
	runner := &recordingRunner{}
	_, ts := startServer(t, runner)

	name := upload(t, ts, "my clip.mp4", []byte("raw video"))
	assert.True(t, strings.HasSuffix(name, "_my_clip.mp4"), name)

	status, body := get(t, ts.URL+"/uploads/"+name)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "raw video", body)

	status, id := postRun(t, ts, `{"filename": "`+name+`", "fps": 30, "params": {"chroma": 0.5, "warpAmp": [0.25, 0.5], "bad": "x"}}`)
	require.Equal(t, http.StatusOK, status)
	require.NotEmpty(t, id)

	events := readEvents(t, ts, id)
	require.NotEmpty(t, events)
	assert.Equal(t, []int{50, 100}, progressOf(events))
	assert.Equal(t, "[libx264] note", events[1].Log)

	last := events[len(events)-1]
	assert.True(t, last.Done)
	assert.Equal(t, "/download/"+strings.TrimSuffix(name, ".mp4")+"_webgl_30.mp4", last.URL)

	status, body = get(t, ts.URL+last.URL)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "encoded", body)

	runner.mu.Lock()
	defer runner.mu.Unlock()
	require.Len(t, runner.jobs, 1)
	assert.Equal(t, 30, runner.jobs[0].FPS)
	assert.Equal(t, shader.DefaultFragment, runner.fragment)
	assert.Equal(t, shader.Params{
		"chroma":  {Kind: shader.Scalar, Values: [4]float32{0.5}},
		"warpAmp": {Kind: shader.Vec2, Values: [4]float32{0.25, 0.5}},
	}, runner.params)
}

func TestRunDefaultsAndShader(t *testing.T) {
	runner := &recordingRunner{}
	_, ts := startServer(t, runner)

	name := upload(t, ts, "a.mp4", []byte("x"))
	status, id := postRun(t, ts, `{"filename": "`+name+`", "shader": "void main() {}"}`)
	require.Equal(t, http.StatusOK, status)
	readEvents(t, ts, id)

	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.Equal(t, "void main() {}", runner.fragment)
	assert.Equal(t, 120, runner.jobs[0].FPS)
	assert.Empty(t, runner.params)
}

func TestRunFailureEndsStream(t *testing.T) {
	runner := &recordingRunner{fail: errors.New("fragment shader translation failed")}
	_, ts := startServer(t, runner)

	name := upload(t, ts, "a.mp4", []byte("x"))
	_, id := postRun(t, ts, `{"filename": "`+name+`"}`)

	events := readEvents(t, ts, id)
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.False(t, last.Done)
	assert.Equal(t, "fragment shader translation failed", last.Error)
	assert.Equal(t, []int{50}, progressOf(events))
}

func TestWebsocketEvents(t *testing.T) {
	runner := &recordingRunner{}
	_, ts := startServer(t, runner)

	name := upload(t, ts, "a.mp4", []byte("x"))
	_, id := postRun(t, ts, `{"filename": "`+name+`", "fps": 60}`)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws/"+id, nil)
	require.NoError(t, err)
	defer conn.Close()

	var events []Event
	for {
		var ev Event
		require.NoError(t, conn.ReadJSON(&ev))
		events = append(events, ev)
		if ev.Final() {
			break
		}
	}
	assert.Equal(t, []int{50, 100}, progressOf(events))
	assert.True(t, events[len(events)-1].Done)
}

func TestRunRejectsBadRequests(t *testing.T) {
	_, ts := startServer(t, &recordingRunner{})

	cases := map[string]int{
		`not json`:                      http.StatusBadRequest,
		`{}`:                            http.StatusBadRequest,
		`{"filename": "../secret.mp4"}`: http.StatusBadRequest,
		`{"filename": ".."}`:            http.StatusBadRequest,
		`{"filename": "missing.mp4"}`:   http.StatusNotFound,
	}
	for body, want := range cases {
		status, _ := postRun(t, ts, body)
		assert.Equal(t, want, status, body)
	}

	status, _ := get(t, ts.URL+"/logs/unknown")
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = get(t, ts.URL+"/download/missing.mp4")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestUploadRequiresVideo(t *testing.T) {
	_, ts := startServer(t, &recordingRunner{})

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("other", "1"))
	require.NoError(t, mw.Close())

	resp, err := http.Post(ts.URL+"/upload", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestQueueFull(t *testing.T) {
	dir := t.TempDir()
	srv, err := New(Config{
		UploadDir: filepath.Join(dir, "uploads"),
		OutputDir: filepath.Join(dir, "outputs"),
		QueueSize: 1,
	}, (&recordingRunner{}).run)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "uploads", "a.mp4"), []byte("x"), 0o644))

	// no worker, so the second job cannot be queued
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	status, _ := postRun(t, ts, `{"filename": "a.mp4"}`)
	assert.Equal(t, http.StatusOK, status)
	status, _ = postRun(t, ts, `{"filename": "a.mp4"}`)
	assert.Equal(t, http.StatusServiceUnavailable, status)
}

func TestEventLogFollow(t *testing.T) {
	l := newEventLog()
	one := 1
	l.add(Event{Progress: &one})

	var got []Event
	done := make(chan error, 1)
	go func() {
		done <- follow(context.Background(), l, func(ev Event) error {
			got = append(got, ev)
			return nil
		})
	}()
	l.add(Event{Log: "line"})
	l.add(Event{Done: true})

	require.NoError(t, <-done)
	require.Len(t, got, 3)
	assert.Equal(t, 1, *got[0].Progress)
	assert.Equal(t, "line", got[1].Log)
	assert.True(t, got[2].Final())
}

func TestFollowStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := follow(ctx, newEventLog(), func(Event) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
