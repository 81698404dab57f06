package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"iter"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/examtile/examtile/internal/llmcall"
	"github.com/examtile/examtile/internal/providers"
	"github.com/examtile/examtile/internal/ratelimit"
	"github.com/examtile/examtile/internal/tiling"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func testPages(n int) []Page {
	pages := make([]Page, n)
	for i := range pages {
		pages[i] = Page{Index: i + 1, Image: image.NewRGBA(image.Rect(0, 0, 64, 48))}
	}
	return pages
}

type harness struct {
	client  *providers.MockClient
	clock   *ratelimit.FakeClock
	limiter *ratelimit.IntervalGate
	sched   *Scheduler
}

func newHarness(t *testing.T, interval time.Duration, mutate func(*Config)) *harness {
	t.Helper()
	h := &harness{
		client: providers.NewMockClient(),
		clock:  ratelimit.NewFakeClock(epoch),
	}
	h.limiter = ratelimit.NewIntervalGate(interval, h.clock)
	cfg := Config{
		Client:      h.client,
		Limiter:     h.limiter,
		Clock:       h.clock,
		Instruction: "solve",
		RetryDelay:  time.Millisecond,
		Logger:      slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := NewScheduler(cfg)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	h.sched = s
	return h
}

func TestRun_TwoPagesHalf(t *testing.T) {
	h := newHarness(t, 30*time.Second, nil)

	pages, err := Collect(h.sched.Run(context.Background(), SlicePages(testPages(2)), tiling.ModeHalf))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	tiles := Flatten(pages)

	want := []string{"P1 - Left", "P1 - Right", "P2 - Left", "P2 - Right"}
	if len(tiles) != len(want) {
		t.Fatalf("got %d tiles, want %d", len(tiles), len(want))
	}
	for i, tr := range tiles {
		if tr.Caption() != want[i] {
			t.Errorf("tile %d = %s, want %s", i, tr.Caption(), want[i])
		}
		if !tr.OK() || tr.Text != "OK-"+tr.Label {
			t.Errorf("tile %d text = %q err = %q", i, tr.Text, tr.Error)
		}
	}

	sum := h.sched.Summary()
	if sum.Pages != 2 || sum.Tiles != 4 || sum.OK != 4 || sum.Failed != 0 {
		t.Errorf("Summary = %+v", sum)
	}
}

func TestRun_FailureOnSecondTile(t *testing.T) {
	h := newHarness(t, 30*time.Second, nil)
	h.client.FailOn = map[int]bool{2: true}

	pages, err := Collect(h.sched.Run(context.Background(), SlicePages(testPages(2)), tiling.ModeHalf))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	tiles := Flatten(pages)
	if len(tiles) != 4 {
		t.Fatalf("got %d tiles", len(tiles))
	}
	for i, tr := range tiles {
		if i == 1 {
			if tr.OK() || tr.Error == "" || tr.ErrorKind != string(providers.KindTransport) {
				t.Errorf("tile 1 should carry an error, got %+v", tr)
			}
			continue
		}
		if tr.Text != "OK-"+tr.Label {
			t.Errorf("tile %d text = %q", i, tr.Text)
		}
	}
	if h.client.RequestCount() != 4 {
		t.Errorf("RequestCount = %d, want 4", h.client.RequestCount())
	}
	if pages[0].Failed() != 1 || pages[1].Failed() != 0 {
		t.Error("unexpected per-page failure counts")
	}
}

func TestProcessPage_ResultCountAndOrder(t *testing.T) {
	for _, failing := range []map[int]bool{nil, {1: true}, {1: true, 2: true, 3: true, 4: true}, {3: true}} {
		h := newHarness(t, 0, nil)
		h.client.FailOn = failing

		page := testPages(1)[0]
		specs := tiling.ForImage(page.Image, tiling.ModeQuarter)
		results, err := h.sched.ProcessPage(context.Background(), page, specs)
		if err != nil {
			t.Fatalf("ProcessPage: %v", err)
		}
		if len(results) != len(specs) {
			t.Fatalf("got %d results, want %d", len(results), len(specs))
		}
		for i, r := range results {
			if r.Label != specs[i].Label || r.Order != i {
				t.Errorf("result %d = %s/%d", i, r.Label, r.Order)
			}
			if r.OK() == failing[i+1] {
				t.Errorf("result %d OK = %v with failing %v", i, r.OK(), failing)
			}
		}
	}
}

func TestScheduler_MinimumGapBetweenRequests(t *testing.T) {
	const interval = 30 * time.Second
	h := newHarness(t, interval, nil)

	var mu sync.Mutex
	var starts []time.Time
	h.client.Respond = func(req *providers.InferRequest) (string, error) {
		mu.Lock()
		starts = append(starts, h.clock.Now())
		mu.Unlock()
		h.clock.Advance(7 * time.Second)
		return "ok", nil
	}
	h.client.FailOn = map[int]bool{3: true}

	if _, err := Collect(h.sched.Run(context.Background(), SlicePages(testPages(3)), tiling.ModeQuarter)); err != nil {
		t.Fatal(err)
	}

	// FailOn short-circuits before Respond, so 11 of 12 requests are timed.
	if len(starts) != 11 {
		t.Fatalf("timed %d requests", len(starts))
	}
	for k := 1; k < len(starts); k++ {
		if gap := starts[k].Sub(starts[k-1]); gap < interval {
			t.Errorf("gap between requests %d and %d = %s, want >= %s", k-1, k, gap, interval)
		}
	}
	if st := h.limiter.Status(); st.TotalRequests != 12 {
		t.Errorf("limiter saw %d requests, want 12", st.TotalRequests)
	}
}

func TestScheduler_Retry(t *testing.T) {
	h := newHarness(t, time.Second, func(c *Config) { c.MaxAttempts = 3 })
	h.client.FailOn = map[int]bool{1: true, 2: true}

	page := testPages(1)[0]
	results, err := h.sched.ProcessPage(context.Background(), page, tiling.ForImage(page.Image, tiling.ModeHalf))
	if err != nil {
		t.Fatal(err)
	}
	if !results[0].OK() || results[0].Attempts != 3 {
		t.Errorf("first tile = %+v, want success after 3 attempts", results[0])
	}
	if results[1].Attempts != 1 {
		t.Errorf("second tile attempts = %d", results[1].Attempts)
	}
	if st := h.limiter.Status(); st.TotalRequests != 4 {
		t.Errorf("every attempt should pass the limiter: %d", st.TotalRequests)
	}
}

func TestScheduler_NoRetryForModelErrors(t *testing.T) {
	h := newHarness(t, 0, func(c *Config) { c.MaxAttempts = 5 })
	h.client.FailOn = map[int]bool{1: true}
	h.client.FailKind = providers.KindModel

	page := testPages(1)[0]
	results, _ := h.sched.ProcessPage(context.Background(), page, tiling.ForImage(page.Image, tiling.ModeHalf))
	if results[0].OK() || results[0].Attempts != 1 {
		t.Errorf("model error should not be retried: %+v", results[0])
	}
	if !results[1].OK() {
		t.Errorf("second tile should succeed: %+v", results[1])
	}
}

func TestScheduler_QuotaPolicy(t *testing.T) {
	t.Run("continue", func(t *testing.T) {
		h := newHarness(t, 0, nil)
		h.client.FailOn = map[int]bool{2: true}
		h.client.FailKind = providers.KindQuota

		pages, err := Collect(h.sched.Run(context.Background(), SlicePages(testPages(2)), tiling.ModeHalf))
		if err != nil {
			t.Fatalf("continue policy should not end the run: %v", err)
		}
		if n := len(Flatten(pages)); n != 4 {
			t.Errorf("got %d tiles", n)
		}
	})

	t.Run("halt", func(t *testing.T) {
		h := newHarness(t, 0, func(c *Config) { c.HaltOnQuota = true })
		h.client.FailOn = map[int]bool{2: true}
		h.client.FailKind = providers.KindQuota

		pages, err := Collect(h.sched.Run(context.Background(), SlicePages(testPages(3)), tiling.ModeQuarter))
		if !errors.Is(err, ErrQuotaExhausted) {
			t.Fatalf("error = %v, want ErrQuotaExhausted", err)
		}
		if len(pages) != 1 || len(pages[0].Tiles) != 4 {
			t.Fatalf("pages = %+v", pages)
		}
		tiles := pages[0].Tiles
		if !tiles[0].OK() || tiles[1].ErrorKind != "quota" || !tiles[2].Skipped || !tiles[3].Skipped {
			t.Errorf("unexpected tiles: %+v", tiles)
		}
		if h.client.RequestCount() != 2 {
			t.Errorf("RequestCount = %d, want 2", h.client.RequestCount())
		}
		if sum := h.sched.Summary(); sum.Skipped != 2 || sum.Failed != 1 {
			t.Errorf("Summary = %+v", sum)
		}
	})
}

func TestRun_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := newHarness(t, 0, nil)
	h.client.Respond = func(req *providers.InferRequest) (string, error) {
		if h.client.RequestCount() == 3 {
			cancel()
		}
		return "done", nil
	}

	var got []PageResult
	var runErr error
	for p, err := range h.sched.Run(ctx, SlicePages(testPages(3)), tiling.ModeQuarter) {
		if err != nil {
			runErr = err
			break
		}
		got = append(got, p)
	}

	if !errors.Is(runErr, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", runErr)
	}
	if len(got) != 1 {
		t.Fatalf("got %d pages, want the partial first page", len(got))
	}
	tiles := got[0].Tiles
	if len(tiles) != 4 {
		t.Fatalf("partial page has %d tiles", len(tiles))
	}
	for i := 0; i < 3; i++ {
		if tiles[i].Text != "done" {
			t.Errorf("completed tile %d should keep its text: %+v", i, tiles[i])
		}
	}
	if !tiles[3].Skipped || !errors.Is(tiles[3].Err, context.Canceled) {
		t.Errorf("tile 3 should be skipped by cancellation: %+v", tiles[3])
	}
	if h.client.RequestCount() != 3 {
		t.Errorf("RequestCount = %d, want 3", h.client.RequestCount())
	}
}

func TestRun_PageSourceError(t *testing.T) {
	srcErr := errors.New("page 2 unreadable")
	pages := iter.Seq2[Page, error](func(yield func(Page, error) bool) {
		if !yield(testPages(1)[0], nil) {
			return
		}
		yield(Page{Index: 2}, srcErr)
	})

	h := newHarness(t, 0, nil)
	got, err := Collect(h.sched.Run(context.Background(), pages, tiling.ModeHalf))
	if !errors.Is(err, srcErr) {
		t.Fatalf("error = %v, want source error", err)
	}
	if len(got) != 1 || len(got[0].Tiles) != 2 {
		t.Errorf("first page should be complete: %+v", got)
	}
}

func TestRun_Lazy(t *testing.T) {
	h := newHarness(t, 0, nil)
	seq := h.sched.Run(context.Background(), SlicePages(testPages(3)), tiling.ModeHalf)

	if h.client.RequestCount() != 0 {
		t.Fatal("no work should happen before ranging")
	}
	for range seq {
		break
	}
	if h.client.RequestCount() != 2 {
		t.Errorf("stopping after one page should make 2 requests, made %d", h.client.RequestCount())
	}
}

func TestRun_SingleUse(t *testing.T) {
	h := newHarness(t, 0, nil)
	seq := h.sched.Run(context.Background(), SlicePages(testPages(1)), tiling.ModeHalf)
	if _, err := Collect(seq); err != nil {
		t.Fatal(err)
	}
	if _, err := Collect(seq); !errors.Is(err, ErrAlreadyRun) {
		t.Errorf("second range error = %v, want ErrAlreadyRun", err)
	}
}

func TestScheduler_ObserverOrder(t *testing.T) {
	var captions []string
	var sizes []image.Rectangle
	h := newHarness(t, 0, func(c *Config) {
		c.Observer = ObserverFunc(func(ctx context.Context, ev TileEvent) error {
			captions = append(captions, ev.Result.Caption())
			sizes = append(sizes, ev.Image.Bounds())
			return errors.New("display broke")
		})
	})

	pages, err := Collect(h.sched.Run(context.Background(), SlicePages(testPages(1)), tiling.ModeQuarter))
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"P1 - Top-Left", "P1 - Top-Right", "P1 - Bottom-Left", "P1 - Bottom-Right"}
	for i := range want {
		if captions[i] != want[i] {
			t.Errorf("observer %d = %s, want %s", i, captions[i], want[i])
		}
	}
	if sizes[0] != image.Rect(0, 0, 32, 24) {
		t.Errorf("tile image bounds = %v", sizes[0])
	}
	if pages[0].Failed() != 0 {
		t.Error("observer errors must not fail tiles")
	}
}

func TestScheduler_EmptyTile(t *testing.T) {
	h := newHarness(t, 0, nil)
	page := Page{Index: 1, Image: image.NewRGBA(image.Rect(0, 0, 1, 10))}

	results, err := h.sched.ProcessPage(context.Background(), page, tiling.ForImage(page.Image, tiling.ModeHalf))
	if err != nil {
		t.Fatal(err)
	}
	if !errors.Is(results[0].Err, ErrEmptyTile) {
		t.Errorf("left tile of a 1px page should be empty: %+v", results[0])
	}
	if !results[1].OK() {
		t.Errorf("right tile should succeed: %+v", results[1])
	}
	if h.client.RequestCount() != 1 {
		t.Errorf("empty tiles should not be sent, RequestCount = %d", h.client.RequestCount())
	}
}

func TestScheduler_RecordsCalls(t *testing.T) {
	var buf bytes.Buffer
	rec := llmcall.NewRecorder(&buf, nil)
	h := newHarness(t, 0, func(c *Config) {
		c.Recorder = rec
		c.PromptKey = "exam.tile"
		c.PromptHash = "hash"
		c.MaxAttempts = 2
	})
	h.client.FailOn = map[int]bool{1: true}

	page := testPages(1)[0]
	if _, err := h.sched.ProcessPage(context.Background(), page, tiling.ForImage(page.Image, tiling.ModeHalf)); err != nil {
		t.Fatal(err)
	}
	if rec.Count() != 3 {
		t.Errorf("recorded %d calls, want 3 (one retry)", rec.Count())
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"prompt_hash":"hash"`)) {
		t.Error("calls should carry the prompt hash")
	}
}

func TestNewScheduler_Validation(t *testing.T) {
	if _, err := NewScheduler(Config{Limiter: ratelimit.NewIntervalGate(0, nil)}); err == nil {
		t.Error("expected error without client")
	}
	if _, err := NewScheduler(Config{Client: providers.NewMockClient()}); err == nil {
		t.Error("expected error without limiter")
	}
}
