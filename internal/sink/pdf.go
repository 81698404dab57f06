package sink

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"codeberg.org/go-pdf/fpdf"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/examtile/examtile/internal/pipeline"
	"github.com/examtile/examtile/internal/tiling"
)

// PDFReport lays out each tile image with the model's answer underneath and
// writes the PDF on Close. All text is set in UTF-8 TrueType fonts.
type PDFReport struct {
	w     io.Writer
	title string
	pdf   *fpdf.Fpdf
	page  int
	tiles int
}

// reportFamily is the font family name registered with fpdf.
const reportFamily = "report"

// ReportFont holds TrueType font data for the report. Empty fields fall back
// to the Go fonts, which cover Latin, Greek and Cyrillic. Answers in other
// scripts, such as Korean, need a font that covers them.
type ReportFont struct {
	Regular []byte
	Bold    []byte
}

// LoadReportFont reads TrueType files for the report. An empty bold path
// reuses the regular font; an empty regular path keeps the Go fonts.
func LoadReportFont(regular, bold string) (ReportFont, error) {
	var f ReportFont
	var err error
	if regular != "" {
		if f.Regular, err = os.ReadFile(regular); err != nil {
			return f, fmt.Errorf("failed to read report font: %w", err)
		}
	}
	if bold != "" {
		if f.Bold, err = os.ReadFile(bold); err != nil {
			return f, fmt.Errorf("failed to read bold report font: %w", err)
		}
	}
	return f, nil
}

const (
	reportMargin   = 15.0
	reportMaxImage = 110.0 // mm
	reportLine     = 5.0
)

// NewPDFReport creates a report written to w on Close, set in the Go fonts.
func NewPDFReport(w io.Writer, title string) *PDFReport {
	return NewPDFReportWithFont(w, title, ReportFont{})
}

// NewPDFReportWithFont creates a report set in font. Font errors surface from
// Emit or Close.
func NewPDFReportWithFont(w io.Writer, title string, font ReportFont) *PDFReport {
	regular, bold, italic := goregular.TTF, gobold.TTF, goitalic.TTF
	if len(font.Regular) > 0 {
		regular, bold, italic = font.Regular, font.Regular, font.Regular
	}
	if len(font.Bold) > 0 {
		bold = font.Bold
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.AddUTF8FontFromBytes(reportFamily, "", regular)
	pdf.AddUTF8FontFromBytes(reportFamily, "B", bold)
	pdf.AddUTF8FontFromBytes(reportFamily, "I", italic)
	pdf.SetMargins(reportMargin, reportMargin, reportMargin)
	pdf.SetAutoPageBreak(true, reportMargin)
	pdf.SetTitle(title, true)
	pdf.SetCreator("examtile", false)
	pdf.AliasNbPages("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-reportMargin + 5)
		pdf.SetFont(reportFamily, "I", 8)
		pdf.CellFormat(0, 5, fmt.Sprintf("%d / {nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	return &PDFReport{
		w:     w,
		title: title,
		pdf:   pdf,
	}
}

func (r *PDFReport) contentWidth() float64 {
	w, _ := r.pdf.GetPageSize()
	left, _, right, _ := r.pdf.GetMargins()
	return w - left - right
}

func (r *PDFReport) ensureSpace(h float64) {
	_, pageH := r.pdf.GetPageSize()
	_, _, _, bottom := r.pdf.GetMargins()
	if r.pdf.GetY()+h > pageH-bottom {
		r.pdf.AddPage()
	}
}

func (r *PDFReport) startPage(index int) {
	if r.page == index {
		return
	}
	r.page = index
	r.pdf.AddPage()
	if r.tiles == 0 && r.title != "" {
		r.pdf.SetFont(reportFamily, "B", 16)
		r.pdf.CellFormat(0, 10, r.title, "", 1, "L", false, 0, "")
	}
	r.pdf.SetFont(reportFamily, "B", 14)
	r.pdf.CellFormat(0, 9, fmt.Sprintf("Page %d", index), "B", 1, "L", false, 0, "")
	r.pdf.Ln(3)
}

func (r *PDFReport) Emit(ctx context.Context, ev pipeline.TileEvent) error {
	r.startPage(ev.PageIndex)
	res := ev.Result
	width := r.contentWidth()

	r.ensureSpace(20)
	r.pdf.SetFont(reportFamily, "B", 11)
	r.pdf.CellFormat(0, 7, res.Caption(), "", 1, "L", false, 0, "")

	if ev.Image != nil && !ev.Image.Bounds().Empty() {
		data, err := tiling.Encode(ev.Image, tiling.FormatPNG, 0)
		if err != nil {
			return err
		}
		b := ev.Image.Bounds()
		w := width
		h := w * float64(b.Dy()) / float64(b.Dx())
		if h > reportMaxImage {
			h = reportMaxImage
			w = h * float64(b.Dx()) / float64(b.Dy())
		}
		r.ensureSpace(h)

		name := fmt.Sprintf("p%d-t%d", ev.PageIndex, res.Order)
		opts := fpdf.ImageOptions{ReadDpi: false, ImageType: "PNG"}
		r.pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(data))
		left, _, _, _ := r.pdf.GetMargins()
		y := r.pdf.GetY()
		r.pdf.ImageOptions(name, left, y, w, h, false, opts, 0, "")
		r.pdf.SetY(y + h + 2)
	}

	r.pdf.SetFont(reportFamily, "", 10)
	if res.OK() {
		r.pdf.SetTextColor(0, 0, 0)
		r.pdf.MultiCell(width, reportLine, strings.TrimSpace(res.Text), "", "L", false)
	} else {
		r.pdf.SetTextColor(170, 0, 0)
		r.pdf.MultiCell(width, reportLine, "Error"+kindSuffix(res.ErrorKind)+": "+res.Error, "", "L", false)
		r.pdf.SetTextColor(0, 0, 0)
	}
	r.pdf.Ln(4)
	r.tiles++
	return r.pdf.Error()
}

func (r *PDFReport) PageDone(ctx context.Context, page pipeline.PageResult) error { return nil }

// Close appends a summary and writes the document.
func (r *PDFReport) Close(sum pipeline.Summary, runErr error) error {
	if r.page == 0 {
		r.pdf.AddPage()
	}
	r.ensureSpace(30)
	r.pdf.Ln(4)
	r.pdf.SetFont(reportFamily, "B", 12)
	r.pdf.CellFormat(0, 8, "Summary", "B", 1, "L", false, 0, "")
	r.pdf.SetFont(reportFamily, "", 10)
	lines := []string{
		fmt.Sprintf("Run: %s", sum.RunID),
		fmt.Sprintf("Pages: %d  Tiles: %d  Answered: %d  Failed: %d  Skipped: %d", sum.Pages, sum.Tiles, sum.OK, sum.Failed, sum.Skipped),
		fmt.Sprintf("Elapsed: %s", sum.Elapsed.Round(time.Second)),
	}
	if runErr != nil {
		lines = append(lines, fmt.Sprintf("Stopped (%s): %v", Classify(runErr), runErr))
	}
	for _, l := range lines {
		r.pdf.MultiCell(0, reportLine, l, "", "L", false)
	}

	if err := r.pdf.Output(r.w); err != nil {
		return fmt.Errorf("failed to generate PDF: %w", err)
	}
	return nil
}
