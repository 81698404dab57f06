package sink

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf16"

	"golang.org/x/image/font/gofont/goregular"
	"gopkg.in/yaml.v3"

	"github.com/examtile/examtile/internal/config"
	"github.com/examtile/examtile/internal/ingest"
	"github.com/examtile/examtile/internal/pipeline"
	"github.com/examtile/examtile/internal/providers"
	"github.com/examtile/examtile/internal/ratelimit"
	"github.com/examtile/examtile/internal/tiling"
)

func tileImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, h/2, color.Black)
	}
	return img
}

func okEvent(page int, label string, order int) pipeline.TileEvent {
	return pipeline.TileEvent{
		PageIndex: page,
		Image:     tileImage(40, 30),
		Result:    pipeline.TileResult{PageIndex: page, Order: order, Label: label, Text: "OK-" + label, Attempts: 1},
	}
}

func failEvent(page int, label string, order int) pipeline.TileEvent {
	return pipeline.TileEvent{
		PageIndex: page,
		Image:     tileImage(40, 30),
		Result: pipeline.TileResult{
			PageIndex: page, Order: order, Label: label,
			Error: "boom", ErrorKind: "transport", Attempts: 1,
		},
	}
}

func pageOf(events ...pipeline.TileEvent) pipeline.PageResult {
	p := pipeline.PageResult{Index: events[0].PageIndex}
	for _, ev := range events {
		p.Tiles = append(p.Tiles, ev.Result)
	}
	return p
}

func play(t *testing.T, s Sink, runErr error, pages ...[]pipeline.TileEvent) {
	t.Helper()
	ctx := context.Background()
	total := 0
	for _, evs := range pages {
		for _, ev := range evs {
			if err := s.Emit(ctx, ev); err != nil {
				t.Fatalf("Emit: %v", err)
			}
		}
		if err := s.PageDone(ctx, pageOf(evs...)); err != nil {
			t.Fatalf("PageDone: %v", err)
		}
		total += len(evs)
	}
	sum := pipeline.Summary{RunID: "run-1", Pages: len(pages), Tiles: total, OK: total - 1, Failed: 1, Elapsed: 3 * time.Second}
	if err := s.Close(sum, runErr); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestMarkdown(t *testing.T) {
	var buf bytes.Buffer
	m := NewMarkdown(&buf, "Chemistry Final")

	play(t, m, nil,
		[]pipeline.TileEvent{okEvent(1, "Left", 0), failEvent(1, "Right", 1)},
		[]pipeline.TileEvent{okEvent(2, "Left", 0), okEvent(2, "Right", 1)},
	)

	out := buf.String()
	for _, want := range []string{
		"# Chemistry Final\n",
		"## Page 1\n\n### P1 - Left\n\nOK-Left\n",
		"### P1 - Right\n\n> **Error** (transport): boom\n",
		"## Page 2\n",
		"### P2 - Right\n\nOK-Right\n",
		"2 pages, 4 tiles: 3 answered, 1 failed, 0 skipped in 3s.",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Count(out, "## Page 1") != 1 {
		t.Error("page heading should be written once")
	}
}

func TestMarkdown_SkippedAndRunError(t *testing.T) {
	var buf bytes.Buffer
	m := NewMarkdown(&buf, "")
	ctx := context.Background()

	ev := okEvent(1, "Left", 0)
	if err := m.Emit(ctx, ev); err != nil {
		t.Fatal(err)
	}
	page := pageOf(ev)
	page.Tiles = append(page.Tiles, pipeline.TileResult{PageIndex: 1, Order: 1, Label: "Right", Skipped: true, Error: "skipped: context canceled"})
	if err := m.PageDone(ctx, page); err != nil {
		t.Fatal(err)
	}
	if err := m.Close(pipeline.Summary{}, context.Canceled); err != nil {
		t.Fatal(err)
	}

	out := buf.String()
	if strings.HasPrefix(out, "# ") {
		t.Error("no title heading expected")
	}
	if !strings.Contains(out, "### P1 - Right\n\n_Skipped._") {
		t.Errorf("skipped tile not listed:\n%s", out)
	}
	if !strings.Contains(out, "**Run stopped (canceled):**") {
		t.Errorf("run error not reported:\n%s", out)
	}
}

func readEvents(t *testing.T, data []byte) []Event {
	t.Helper()
	var events []Event
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		var ev Event
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			t.Fatalf("bad line %q: %v", sc.Text(), err)
		}
		events = append(events, ev)
	}
	return events
}

// haltedRun drives s through one quarter page whose second tile exhausted
// the quota, leaving the last two tiles skipped.
func haltedRun(t *testing.T, s Sink) {
	t.Helper()
	ctx := context.Background()
	ok := okEvent(1, "Top-Left", 0)
	quota := failEvent(1, "Top-Right", 1)
	quota.Result.ErrorKind = "quota"
	for _, ev := range []pipeline.TileEvent{ok, quota} {
		if err := s.Emit(ctx, ev); err != nil {
			t.Fatal(err)
		}
	}
	page := pageOf(ok, quota)
	for i, label := range []string{"Bottom-Left", "Bottom-Right"} {
		page.Tiles = append(page.Tiles, pipeline.TileResult{
			PageIndex: 1, Order: 2 + i, Label: label,
			Skipped: true, Error: "skipped: quota exhausted",
		})
	}
	if err := s.PageDone(ctx, page); err != nil {
		t.Fatal(err)
	}
	sum := pipeline.Summary{RunID: "run-9", Pages: 1, Tiles: 4, OK: 1, Failed: 1, Skipped: 2, Elapsed: 42 * time.Second}
	runErr := fmt.Errorf("page 1 tile Top-Right: %w", pipeline.ErrQuotaExhausted)
	if err := s.Close(sum, runErr); err != nil {
		t.Fatal(err)
	}
}

func TestReplayer_MatchesLocalMarkdown(t *testing.T) {
	var local bytes.Buffer
	haltedRun(t, NewMarkdown(&local, "chem final"))

	var stream bytes.Buffer
	haltedRun(t, NewNDJSON(&stream))

	var remote bytes.Buffer
	replay := NewReplayer(NewMarkdown(&remote, "chem final"))
	for _, ev := range readEvents(t, stream.Bytes()) {
		if err := replay.Apply(context.Background(), ev); err != nil {
			t.Fatalf("Apply(%s): %v", ev.Type, err)
		}
	}

	if remote.String() != local.String() {
		t.Errorf("replayed transcript differs\n--- replayed\n%s\n--- local\n%s", remote.String(), local.String())
	}
	for _, want := range []string{"### P1 - Bottom-Right\n\n_Skipped._", "**Run stopped (quota):**"} {
		if !strings.Contains(remote.String(), want) {
			t.Errorf("replayed transcript missing %q", want)
		}
	}
	if !replay.Closed() {
		t.Error("done event not applied")
	}
	var se *StreamError
	if !errors.As(replay.Err(), &se) || se.Kind != KindQuota || Classify(replay.Err()) != KindQuota {
		t.Errorf("Err() = %v, want quota StreamError", replay.Err())
	}
}

func TestReplayer_CleanRun(t *testing.T) {
	var stream bytes.Buffer
	play(t, NewNDJSON(&stream), nil, []pipeline.TileEvent{okEvent(1, "Left", 0), okEvent(1, "Right", 1)})

	var out bytes.Buffer
	replay := NewReplayer(NewMarkdown(&out, ""))
	for _, ev := range readEvents(t, stream.Bytes()) {
		if err := replay.Apply(context.Background(), ev); err != nil {
			t.Fatal(err)
		}
	}
	if replay.Err() != nil {
		t.Errorf("Err() = %v", replay.Err())
	}
	if strings.Contains(out.String(), "Skipped.") || strings.Contains(out.String(), "Run stopped") {
		t.Errorf("unexpected output:\n%s", out.String())
	}
}

func TestNDJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	n := NewNDJSON(rec)

	if err := n.Start("run-1", 1); err != nil {
		t.Fatal(err)
	}
	quota := fmt.Errorf("page 1 tile Right: %w", pipeline.ErrQuotaExhausted)
	play(t, n, quota, []pipeline.TileEvent{okEvent(1, "Left", 0), failEvent(1, "Right", 1)})

	if !rec.Flushed {
		t.Error("stream should flush the response")
	}

	events := readEvents(t, rec.Body.Bytes())
	var types []string
	for _, ev := range events {
		types = append(types, ev.Type)
	}
	want := []string{EventStart, EventTile, EventTile, EventPage, EventError, EventDone}
	if strings.Join(types, ",") != strings.Join(want, ",") {
		t.Fatalf("event types = %v, want %v", types, want)
	}

	if events[0].RunID != "run-1" || events[0].Pages != 1 {
		t.Errorf("start = %+v", events[0])
	}
	if tile := events[1].Tile; tile == nil || tile.Text != "OK-Left" || events[1].Page != 1 {
		t.Errorf("first tile = %+v", events[1])
	}
	if tile := events[2].Tile; tile.Error != "boom" || tile.ErrorKind != "transport" {
		t.Errorf("second tile = %+v", tile)
	}
	if events[3].Tiles != 2 || events[3].Failed != 1 {
		t.Errorf("page = %+v", events[3])
	}
	if events[4].Kind != KindQuota {
		t.Errorf("error kind = %s", events[4].Kind)
	}
	if events[5].Summary == nil || events[5].Summary.Tiles != 2 {
		t.Errorf("done = %+v", events[5])
	}
}

func TestDocument(t *testing.T) {
	if _, err := NewDocument(&bytes.Buffer{}, "xml", ""); err == nil {
		t.Error("expected error for unsupported format")
	}

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		d, err := NewDocument(&buf, "json", "final")
		if err != nil {
			t.Fatal(err)
		}
		play(t, d, nil, []pipeline.TileEvent{okEvent(1, "Left", 0), failEvent(1, "Right", 1)})

		var got struct {
			Title string `json:"title"`
			RunID string `json:"run_id"`
			Pages []struct {
				Page  int `json:"page"`
				Tiles []struct {
					Label string `json:"label"`
					Text  string `json:"text"`
					Error string `json:"error"`
				} `json:"tiles"`
			} `json:"pages"`
		}
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
		}
		if got.Title != "final" || got.RunID != "run-1" || len(got.Pages) != 1 {
			t.Fatalf("report = %+v", got)
		}
		tiles := got.Pages[0].Tiles
		if tiles[0].Text != "OK-Left" || tiles[1].Error != "boom" {
			t.Errorf("tiles = %+v", tiles)
		}
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		d, _ := NewDocument(&buf, "yaml", "")
		rerr := &ingest.RasterizationError{Page: 2, Err: errors.New("bad xref")}
		play(t, d, rerr, []pipeline.TileEvent{okEvent(1, "Left", 0), okEvent(1, "Right", 1)})

		var got map[string]any
		if err := yaml.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("invalid YAML: %v", err)
		}
		if got["run_id"] != "run-1" || got["error_kind"] != KindRasterization {
			t.Errorf("report = %v", got)
		}
	})
}

func TestPDFReport(t *testing.T) {
	var buf bytes.Buffer
	r := NewPDFReport(&buf, "Chemistry Final")

	play(t, r, nil,
		[]pipeline.TileEvent{okEvent(1, "Left", 0), failEvent(1, "Right", 1)},
		[]pipeline.TileEvent{{PageIndex: 2, Image: tileImage(2000, 100), Result: pipeline.TileResult{PageIndex: 2, Label: "Left", Text: strings.Repeat("ΔH = −285.8 kJ/mol. ", 200)}}},
	)

	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
		t.Fatal("output is not a PDF")
	}
	n, err := ingest.PageCount(buf.Bytes())
	if err != nil {
		t.Fatalf("report does not parse: %v", err)
	}
	if n < 2 {
		t.Errorf("report has %d pages, want at least 2", n)
	}
}

// utf16be is how text set in a UTF-8 font appears in an uncompressed
// content stream.
func utf16be(s string) []byte {
	var b []byte
	for _, u := range utf16.Encode([]rune(s)) {
		b = append(b, byte(u>>8), byte(u))
	}
	return b
}

func TestPDFReport_NonLatinText(t *testing.T) {
	const title = "화학 기말고사"
	const answer = "정답은 ③ ㄱ,ㄴ"

	var buf bytes.Buffer
	r := NewPDFReport(&buf, title)
	r.pdf.SetCompression(false)

	ev := okEvent(1, "Left", 0)
	ev.Result.Text = answer
	play(t, r, nil, []pipeline.TileEvent{ev})

	for _, want := range []string{title, answer, "P1 - Left"} {
		if !bytes.Contains(buf.Bytes(), utf16be(want)) {
			t.Errorf("report text missing %q", want)
		}
	}
	if _, err := ingest.PageCount(buf.Bytes()); err != nil {
		t.Fatalf("report does not parse: %v", err)
	}
}

func TestLoadReportFont(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "answers.ttf")
	if err := os.WriteFile(path, goregular.TTF, 0o644); err != nil {
		t.Fatal(err)
	}

	t.Run("custom font", func(t *testing.T) {
		font, err := LoadReportFont(path, "")
		if err != nil {
			t.Fatalf("LoadReportFont() error = %v", err)
		}
		if len(font.Regular) == 0 || len(font.Bold) != 0 {
			t.Fatalf("font = %d/%d bytes", len(font.Regular), len(font.Bold))
		}

		var buf bytes.Buffer
		r := NewPDFReportWithFont(&buf, "Final", font)
		r.pdf.SetCompression(false)
		ev := okEvent(1, "Right", 1)
		ev.Result.Text = "ΔH = −285.8 kJ/mol"
		play(t, r, nil, []pipeline.TileEvent{ev})
		if !bytes.Contains(buf.Bytes(), utf16be(ev.Result.Text)) {
			t.Error("answer missing from report")
		}
	})

	t.Run("defaults", func(t *testing.T) {
		font, err := LoadReportFont("", "")
		if err != nil || len(font.Regular) != 0 || len(font.Bold) != 0 {
			t.Errorf("LoadReportFont() = %+v, %v", font, err)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadReportFont(filepath.Join(dir, "nope.ttf"), ""); err == nil {
			t.Error("expected error")
		}
	})
}

func TestPDFReport_EmptyRun(t *testing.T) {
	var buf bytes.Buffer
	if err := NewPDFReport(&buf, "").Close(pipeline.Summary{}, context.Canceled); err != nil {
		t.Fatal(err)
	}
	if n, err := ingest.PageCount(buf.Bytes()); err != nil || n != 1 {
		t.Errorf("PageCount = %d, %v", n, err)
	}
}

func TestTileSaver(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "tiles")
	s, err := NewTileSaver(dir, tiling.FormatJPEG, 80)
	if err != nil {
		t.Fatal(err)
	}

	empty := okEvent(1, "Right", 1)
	empty.Image = image.NewRGBA(image.Rect(0, 0, 0, 30))
	play(t, s, nil, []pipeline.TileEvent{okEvent(1, "Top-Left", 0), empty})

	if s.Saved() != 1 {
		t.Errorf("Saved = %d, want 1", s.Saved())
	}
	if _, err := os.Stat(filepath.Join(dir, "page_0001_top-left.jpg")); err != nil {
		t.Errorf("tile image missing: %v", err)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&config.ConfigurationError{Key: "providers.gemini.api_key", Msg: "missing"}, KindConfiguration},
		{fmt.Errorf("open: %w", &ingest.RasterizationError{Err: ingest.ErrNotPDF}), KindRasterization},
		{fmt.Errorf("page 3: %w", pipeline.ErrQuotaExhausted), KindQuota},
		{context.DeadlineExceeded, KindCanceled},
		{errors.New("disk full"), KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}

type failingSink struct{ Document }

func (failingSink) Emit(ctx context.Context, ev pipeline.TileEvent) error {
	return errors.New("terminal closed")
}

func TestMulti(t *testing.T) {
	var a, b bytes.Buffer
	doc, _ := NewDocument(&b, "json", "")
	m := Multi(NewMarkdown(&a, ""), nil, doc, &failingSink{})

	err := m.Emit(context.Background(), okEvent(1, "Left", 0))
	if err == nil || !strings.Contains(err.Error(), "terminal closed") {
		t.Errorf("Emit error = %v", err)
	}
	if !strings.Contains(a.String(), "OK-Left") {
		t.Error("other sinks should still receive the tile")
	}
}

func TestDrain(t *testing.T) {
	client := providers.NewMockClient()
	client.FailOn = map[int]bool{2: true}

	var md, nd bytes.Buffer
	ndjson := NewNDJSON(&nd)
	out := Multi(NewMarkdown(&md, ""), ndjson)

	sched, err := pipeline.NewScheduler(pipeline.Config{
		Client:   client,
		Limiter:  ratelimit.NewIntervalGate(time.Minute, ratelimit.NewFakeClock(time.Unix(0, 0))),
		Observer: out,
	})
	if err != nil {
		t.Fatal(err)
	}

	pages := []pipeline.Page{
		{Index: 1, Image: tileImage(20, 20)},
		{Index: 2, Image: tileImage(20, 20)},
	}
	err = Drain(context.Background(), sched.Run(context.Background(), pipeline.SlicePages(pages), tiling.ModeHalf), out, sched.Summary)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}

	var captions []string
	for _, ev := range readEvents(t, nd.Bytes()) {
		if ev.Type == EventTile {
			captions = append(captions, ev.Tile.Caption())
		}
	}
	want := "P1 - Left,P1 - Right,P2 - Left,P2 - Right"
	if strings.Join(captions, ",") != want {
		t.Errorf("tiles = %v, want %s", captions, want)
	}
	if !strings.Contains(md.String(), "### P1 - Right\n\n> **Error** (transport)") {
		t.Errorf("markdown:\n%s", md.String())
	}
	if !strings.Contains(md.String(), "2 pages, 4 tiles: 3 answered, 1 failed") {
		t.Errorf("summary missing:\n%s", md.String())
	}
}

func TestDrain_RunError(t *testing.T) {
	srcErr := &ingest.RasterizationError{Page: 1, Err: errors.New("render failed")}
	seq := func(yield func(pipeline.PageResult, error) bool) {
		yield(pipeline.PageResult{Index: 1}, srcErr)
	}

	var nd bytes.Buffer
	err := Drain(context.Background(), seq, NewNDJSON(&nd), func() pipeline.Summary { return pipeline.Summary{} })
	if !errors.Is(err, srcErr) {
		t.Fatalf("Drain error = %v", err)
	}
	events := readEvents(t, nd.Bytes())
	if len(events) != 2 || events[0].Kind != KindRasterization || events[1].Type != EventDone {
		t.Errorf("events = %+v", events)
	}
}
