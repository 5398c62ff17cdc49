package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/isplitter/internal/domain"
	"github.com/phrazzld/isplitter/internal/generation"
	"github.com/phrazzld/isplitter/internal/imaging"
	"github.com/phrazzld/isplitter/internal/status"
	"github.com/phrazzld/isplitter/internal/storage"
	"github.com/phrazzld/isplitter/internal/task"
	"github.com/stretchr/testify/require"
)

// syncBuffer is a bytes.Buffer safe for concurrent log writes.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func pngImage(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// fakeGenerator records calls per unit and delegates to fn.
type fakeGenerator struct {
	mu    sync.Mutex
	calls map[string]int
	fn    func(ctx context.Context, unit string, req generation.Request) ([]byte, error)
}

func newFakeGenerator(fn func(ctx context.Context, unit string, req generation.Request) ([]byte, error)) *fakeGenerator {
	return &fakeGenerator{calls: make(map[string]int), fn: fn}
}

func (g *fakeGenerator) Generate(ctx context.Context, req generation.Request) ([]byte, error) {
	unit := unitForInstruction(req.Instruction)
	g.mu.Lock()
	g.calls[unit]++
	g.mu.Unlock()
	return g.fn(ctx, unit, req)
}

func (g *fakeGenerator) Calls(unit string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[unit]
}

func unitForInstruction(instruction string) string {
	for _, c := range domain.Categories() {
		if c.Instruction == instruction {
			return c.Name
		}
	}
	return TryOnUnitID
}

// recordingSubmitter counts submissions per kind and unit.
type recordingSubmitter struct {
	next Submitter

	mu     sync.Mutex
	counts map[string]map[string]int
}

func newRecordingSubmitter(next Submitter) *recordingSubmitter {
	return &recordingSubmitter{next: next, counts: make(map[string]map[string]int)}
}

func (s *recordingSubmitter) Submit(ctx context.Context, kind string, payload []byte) (*task.Handle, error) {
	var p struct {
		UnitID string `json:"unit_id"`
	}
	_ = json.Unmarshal(payload, &p)

	s.mu.Lock()
	if s.counts[kind] == nil {
		s.counts[kind] = make(map[string]int)
	}
	s.counts[kind][p.UnitID]++
	s.mu.Unlock()

	return s.next.Submit(ctx, kind, payload)
}

func (s *recordingSubmitter) Count(kind, unit string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[kind][unit]
}

func (s *recordingSubmitter) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, units := range s.counts {
		for _, c := range units {
			n += c
		}
	}
	return n
}

// countingTracker records Create calls on top of a MemoryTracker.
type countingTracker struct {
	*status.MemoryTracker

	mu  sync.Mutex
	ids []uuid.UUID
}

func (c *countingTracker) Create(ctx context.Context, t *domain.TryOnTask) error {
	c.mu.Lock()
	c.ids = append(c.ids, t.ID)
	c.mu.Unlock()
	return c.MemoryTracker.Create(ctx, t)
}

func (c *countingTracker) Created() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ids)
}

// Snapshot returns the current state of every created record.
func (c *countingTracker) Snapshot() []*domain.TryOnTask {
	c.mu.Lock()
	ids := append([]uuid.UUID(nil), c.ids...)
	c.mu.Unlock()

	var out []*domain.TryOnTask
	for _, id := range ids {
		if t, err := c.MemoryTracker.Get(context.Background(), id); err == nil {
			out = append(out, t)
		}
	}
	return out
}

type harness struct {
	runner    *task.TaskRunner
	submitter *recordingSubmitter
	gen       *fakeGenerator
	store     *storage.MemoryStore
	tracker   *countingTracker
	workers   *Workers
	logs      *syncBuffer
	logger    *slog.Logger
	mux       *http.ServeMux
	server    *httptest.Server
}

const testBucket = "sop"

func newHarness(t *testing.T, fn func(ctx context.Context, unit string, req generation.Request) ([]byte, error)) *harness {
	t.Helper()

	logs := &syncBuffer{}
	logger := slog.New(slog.NewJSONHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	store := storage.NewMemoryStore(server.URL + "/objects")
	mux.Handle("/objects/", http.StripPrefix("/objects", store))

	cfg := task.DefaultTaskRunnerConfig()
	cfg.WorkerCount = 6
	cfg.QueueSize = 50
	cfg.Retry = task.RetryPolicy{MaxAttempts: 3, Backoff: task.FixedBackoff(5 * time.Millisecond)}
	cfg.SoftTimeLimit = 2 * time.Second
	cfg.HardTimeLimit = 3 * time.Second

	runner := task.NewTaskRunner(task.NewMemoryTaskStore(), cfg, logger)

	tracker := &countingTracker{MemoryTracker: status.NewMemoryTracker(0)}
	gen := newFakeGenerator(fn)
	workers := NewWorkers(gen, store, tracker, NewFetcher(server.Client(), time.Second),
		WorkersConfig{Bucket: testBucket, OutputQuality: 90}, logger)
	workers.Register(runner)

	require.NoError(t, runner.Start())
	t.Cleanup(runner.Stop)

	return &harness{
		runner:    runner,
		submitter: newRecordingSubmitter(runner),
		gen:       gen,
		store:     store,
		tracker:   tracker,
		workers:   workers,
		logs:      logs,
		logger:    logger,
		mux:       mux,
		server:    server,
	}
}

func (h *harness) orchestrator(timeouts Timeouts) *Orchestrator {
	return NewOrchestrator(h.submitter, timeouts, h.logger)
}

func (h *harness) splitService(timeouts Timeouts) *SplitService {
	return NewSplitService(h.orchestrator(timeouts), imaging.DefaultOptions(), "split", h.logger)
}

func (h *harness) tryOnService(timeouts Timeouts) *TryOnService {
	return NewTryOnService(h.orchestrator(timeouts), h.tracker, TryOnConfig{
		MaxClothingItems: 3,
		Image:            imaging.DefaultOptions(),
		KeyPrefix:        "tryon",
	}, h.logger)
}

// serveGarment registers a PNG at path on the harness server and returns its URL.
func (h *harness) serveGarment(t *testing.T, path string) string {
	t.Helper()
	data := pngImage(t, 40, 40)
	h.mux.HandleFunc(path, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(data)
	})
	return h.server.URL + path
}

// fetchURL downloads a result URL and returns the body.
func fetchURL(t *testing.T, url string) []byte {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return buf.Bytes()
}

func generatePayloadFor(t *testing.T, trackingID uuid.UUID, refs []string) []byte {
	t.Helper()
	payload, err := json.Marshal(generatePayload{
		RequestID:   uuid.New(),
		TrackingID:  trackingID,
		UnitID:      TryOnUnitID,
		Source:      []byte("source"),
		MimeType:    imaging.ContentType,
		Instruction: domain.TryOnInstruction(1),
		References:  refs,
	})
	require.NoError(t, err)
	return payload
}

func testTimeouts() Timeouts {
	return Timeouts{Generate: 5 * time.Second, Upload: 5 * time.Second}
}

func slogDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
