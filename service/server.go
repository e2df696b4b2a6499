package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/richinsley/goglfilter/options"
	"github.com/richinsley/goglfilter/shader"
	"github.com/richinsley/goglfilter/transcode"
)

// Runner filters one job with the given fragment shader and uniforms. It is
// called on the goroutine running Work, one job at a time, so it may own the
// GPU thread.
type Runner func(job *transcode.Job, fragment string, params shader.Params) error

// Config holds the service directories and defaults.
type Config struct {
	UploadDir  string
	OutputDir  string
	FFmpegPath string
	FPS        int // used when a run request has none
	QueueSize  int
}

const (
	defaultQueueSize = 16
	maxUploadMemory  = 32 << 20
)

var errQueueFull = errors.New("job queue is full")

// Server accepts uploads and transcode requests over HTTP and streams each
// job's progress as server-sent events or websocket messages.
type Server struct {
	cfg      Config
	run      Runner
	queue    chan *task
	upgrader websocket.Upgrader

	mu   sync.Mutex
	jobs map[string]*eventLog
}

type task struct {
	id       string
	input    string
	fragment string
	params   shader.Params
	fps      int
	events   *eventLog
}

type runRequest struct {
	Filename string         `json:"filename"`
	Shader   string         `json:"shader"`
	Params   map[string]any `json:"params"`
	FPS      int            `json:"fps"`
}

// New creates the upload and output directories and returns a Server that
// hands its jobs to run.
func New(cfg Config, run Runner) (*Server, error) {
	if cfg.FPS <= 0 {
		cfg.FPS = options.DefaultFPS
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	for _, dir := range []string{cfg.UploadDir, cfg.OutputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return &Server{
		cfg:   cfg,
		run:   run,
		queue: make(chan *task, cfg.QueueSize),
		jobs:  make(map[string]*eventLog),
	}, nil
}

// Handler returns the HTTP routes of the service.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /upload", s.handleUpload)
	mux.HandleFunc("GET /uploads/{name}", s.serveFrom(s.cfg.UploadDir))
	mux.HandleFunc("POST /run", s.handleRun)
	mux.HandleFunc("GET /logs/{id}", s.handleEvents)
	mux.HandleFunc("GET /ws/{id}", s.handleWebsocket)
	mux.HandleFunc("GET /download/{name}", s.serveFrom(s.cfg.OutputDir))
	return mux
}

// Work runs queued jobs until ctx is done. Call it from the thread that owns
// the GPU.
func (s *Server) Work(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t := <-s.queue:
			s.process(t)
		}
	}
}

func (s *Server) process(t *task) {
	job := &transcode.Job{
		Input:      t.input,
		Output:     transcode.DefaultOutput(filepath.Join(s.cfg.OutputDir, filepath.Base(t.input)), t.fps),
		FPS:        t.fps,
		FFmpegPath: s.cfg.FFmpegPath,
		Progress: func(percent int) {
			t.events.add(Event{Progress: &percent})
		},
		Log: func(line string) {
			t.events.add(Event{Log: line})
		},
	}

	log.Printf("Job %s: %s -> %s", t.id, job.Input, job.Output)
	if err := s.run(job, t.fragment, t.params); err != nil {
		log.Printf("Job %s failed: %v", t.id, err)
		t.events.add(Event{Error: err.Error()})
		return
	}
	t.events.add(Event{Done: true, URL: "/download/" + filepath.Base(job.Output)})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	f, hdr, err := r.FormFile("video")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "missing video"})
		return
	}
	defer f.Close()

	name := newID() + "_" + strings.ReplaceAll(filepath.Base(hdr.Filename), " ", "_")
	out, err := os.Create(filepath.Join(s.cfg.UploadDir, name))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	_, err = io.Copy(out, f)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error()})
		return
	}

	log.Printf("Uploaded %s", name)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "filename": name, "url": "/uploads/" + name})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "invalid request body"})
		return
	}
	if !validName(req.Filename) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "invalid filename"})
		return
	}
	input := filepath.Join(s.cfg.UploadDir, req.Filename)
	if _, err := os.Stat(input); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "error": "no such upload"})
		return
	}

	t := &task{
		id:       newID(),
		input:    input,
		fragment: req.Shader,
		params:   shader.FromMap(req.Params),
		fps:      req.FPS,
		events:   newEventLog(),
	}
	if t.fragment == "" {
		t.fragment = shader.DefaultFragment
	}
	if t.fps <= 0 {
		t.fps = s.cfg.FPS
	}

	if err := s.enqueue(t); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "job": t.id})
}

func (s *Server) enqueue(t *task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case s.queue <- t:
		s.jobs[t.id] = t.events
		return nil
	default:
		return errQueueFull
	}
}

func (s *Server) events(id string) *eventLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// follow calls send for every event of the job in order until the final one,
// or until ctx is done.
func follow(ctx context.Context, events *eventLog, send func(Event) error) error {
	next := 0
	for {
		batch, changed := events.since(next)
		for _, ev := range batch {
			if err := send(ev); err != nil {
				return err
			}
			if ev.Final() {
				return nil
			}
		}
		next += len(batch)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	events := s.events(r.PathValue("id"))
	if events == nil {
		http.NotFound(w, r)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	err := follow(r.Context(), events, func(ev Event) error {
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("Event stream for job %s ended: %v", r.PathValue("id"), err)
	}
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	events := s.events(r.PathValue("id"))
	if events == nil {
		http.NotFound(w, r)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	err = follow(r.Context(), events, func(ev Event) error {
		return conn.WriteJSON(ev)
	})
	if err != nil {
		log.Printf("Websocket for job %s ended: %v", r.PathValue("id"), err)
		return
	}
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (s *Server) serveFrom(dir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		if !validName(name) {
			http.NotFound(w, r)
			return
		}
		http.ServeFile(w, r, filepath.Join(dir, name))
	}
}

// validName accepts a bare file name that stays inside its directory.
func validName(name string) bool {
	return name != "" && name != "." && name != ".." && filepath.Base(name) == name
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to write response: %v", err)
	}
}

func newID() string {
	var b [16]byte
	rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
