package ingest

import (
	"context"
	"errors"
	"image"
	"os"
	"strings"
	"testing"

	"github.com/examtile/examtile/internal/testutil"
)

func fakeRenderer(fail int) (Renderer, *[]int) {
	var calls []int
	return RendererFunc(func(ctx context.Context, path string, page, dpi int) (image.Image, error) {
		calls = append(calls, page)
		if page == fail {
			return nil, errors.New("corrupt content stream")
		}
		return image.NewRGBA(image.Rect(0, 0, dpi/10, dpi/5)), nil
	}), &calls
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"clean", "%PDF-1.4 body %%EOF", "%PDF-1.4 body %%EOF"},
		{"keeps newline", "%PDF-1.4 body %%EOF\n", "%PDF-1.4 body %%EOF\n"},
		{"trailing junk", "%PDF-1.4 body %%EOF\r\n<html>junk</html>", "%PDF-1.4 body %%EOF\r\n"},
		{"last marker wins", "%PDF %%EOF\nupdate %%EOF\nxx", "%PDF %%EOF\nupdate %%EOF\n"},
		{"no marker", "garbage", "garbage"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(Sanitize([]byte(tt.input))); got != tt.want {
				t.Errorf("Sanitize() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReadAll(t *testing.T) {
	data, err := ReadAll(strings.NewReader("12345"), 5)
	if err != nil || string(data) != "12345" {
		t.Fatalf("ReadAll at limit = %q, %v", data, err)
	}
	if _, err := ReadAll(strings.NewReader("123456"), 5); !errors.Is(err, ErrTooLarge) {
		t.Errorf("over limit error = %v, want ErrTooLarge", err)
	}
	if data, err := ReadAll(strings.NewReader("123456"), 0); err != nil || len(data) != 6 {
		t.Errorf("unlimited ReadAll = %q, %v", data, err)
	}
}

func TestPageCount(t *testing.T) {
	n, err := PageCount(testutil.SamplePDF(t, 3))
	if err != nil {
		t.Fatalf("PageCount: %v", err)
	}
	if n != 3 {
		t.Errorf("PageCount = %d, want 3", n)
	}

	if _, err := PageCount([]byte("hello world")); !errors.Is(err, ErrNotPDF) {
		t.Errorf("error = %v, want ErrNotPDF", err)
	}
	if _, err := PageCount([]byte("%PDF-1.7\ntruncated")); err == nil {
		t.Error("expected error for truncated PDF")
	}
}

func TestRasterize(t *testing.T) {
	renderer, calls := fakeRenderer(0)
	r := NewRasterizer(Config{Renderer: renderer, TempDir: t.TempDir()})

	data := append(testutil.SamplePDF(t, 2), []byte("trailing upload junk")...)
	doc, err := r.Rasterize(context.Background(), data, 150)
	if err != nil {
		t.Fatalf("Rasterize: %v", err)
	}
	defer doc.Close()

	if doc.PageCount() != 2 || doc.DPI() != 150 {
		t.Errorf("doc = %d pages at %d dpi", doc.PageCount(), doc.DPI())
	}
	if len(*calls) != 0 {
		t.Error("pages must not render before they are pulled")
	}

	var indexes []int
	for page, err := range doc.Pages(context.Background()) {
		if err != nil {
			t.Fatalf("Pages: %v", err)
		}
		indexes = append(indexes, page.Index)
		if page.Image.Bounds().Dx() != 15 {
			t.Errorf("page %d rendered at wrong dpi", page.Index)
		}
	}
	if len(indexes) != 2 || indexes[0] != 1 || indexes[1] != 2 {
		t.Errorf("page order = %v", indexes)
	}

	path := doc.path
	if err := doc.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Close should remove the working copy")
	}
}

func TestRasterize_Errors(t *testing.T) {
	r := NewRasterizer(Config{Renderer: RendererFunc(nil), TempDir: t.TempDir()})

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"not a pdf", []byte("PK\x03\x04 zip file"), ErrNotPDF},
		{"empty", nil, ErrNotPDF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Rasterize(context.Background(), tt.data, 0)
			var rerr *RasterizationError
			if !errors.As(err, &rerr) {
				t.Fatalf("error = %T %v, want *RasterizationError", err, err)
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
			if rerr.Page != 0 {
				t.Errorf("document error should have no page, got %d", rerr.Page)
			}
		})
	}
}

func TestPages_RenderFailureEndsSequence(t *testing.T) {
	renderer, calls := fakeRenderer(2)
	r := NewRasterizer(Config{Renderer: renderer, TempDir: t.TempDir()})

	doc, err := r.Rasterize(context.Background(), testutil.SamplePDF(t, 3), 0)
	if err != nil {
		t.Fatal(err)
	}
	defer doc.Close()

	var good int
	var last error
	for _, err := range doc.Pages(context.Background()) {
		if err != nil {
			last = err
			continue
		}
		good++
	}

	var rerr *RasterizationError
	if !errors.As(last, &rerr) || rerr.Page != 2 {
		t.Fatalf("error = %v, want RasterizationError for page 2", last)
	}
	if good != 1 {
		t.Errorf("good pages = %d, want 1", good)
	}
	if len(*calls) != 2 {
		t.Errorf("renders = %v, page 3 must not render", *calls)
	}
}

func TestPages_Cancelled(t *testing.T) {
	renderer, calls := fakeRenderer(0)
	r := NewRasterizer(Config{Renderer: renderer, TempDir: t.TempDir()})

	doc, err := r.Rasterize(context.Background(), testutil.SamplePDF(t, 2), 0)
	if err != nil {
		t.Fatal(err)
	}
	defer doc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, err := range doc.Pages(ctx) {
		if !errors.Is(err, context.Canceled) {
			t.Errorf("error = %v, want context.Canceled", err)
		}
	}
	if len(*calls) != 0 {
		t.Error("nothing should render after cancellation")
	}
}

func TestPdftoppm(t *testing.T) {
	p := &Pdftoppm{}
	if err := p.Available(); err != nil {
		t.Skip("pdftoppm not installed")
	}

	doc, err := NewRasterizer(Config{TempDir: t.TempDir()}).Rasterize(context.Background(), testutil.SamplePDF(t, 1), 36)
	if err != nil {
		t.Fatal(err)
	}
	defer doc.Close()

	for page, err := range doc.Pages(context.Background()) {
		if err != nil {
			t.Fatalf("render: %v", err)
		}
		// A4 at 36 dpi is about 298x421.
		if b := page.Image.Bounds(); b.Dx() < 290 || b.Dx() > 300 {
			t.Errorf("page bounds = %v", b)
		}
	}

	if err := (&Pdftoppm{Binary: "examtile-no-such-binary"}).Available(); err == nil {
		t.Error("expected missing binary error")
	}
}

func TestTitle(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"/path/to/chem-final.pdf", "chem-final"},
		{"/path/to/chem-final-1.pdf", "chem-final"},
		{"/path/to/chem final 10.pdf", "chem final"},
		{"2024.pdf", "2024"},
		{"simple.pdf", "simple"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := Title(tt.input); got != tt.expected {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
		})
	}
}
