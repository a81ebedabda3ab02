// Package report renders the active task listing as a PDF document.
package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/krskas/slack-task-tracker/internal/commands"
	"github.com/krskas/slack-task-tracker/internal/domain"
)

const (
	fontName = "Helvetica"
	margin   = 15.0
	pageW    = 210.0
)

// column widths: status, channel, author, created, text
var widths = []float64{28, 28, 28, 34, 62}

// Generator writes active-task reports.
type Generator struct {
	Title  string
	Author string
}

func NewGenerator() *Generator {
	return &Generator{Title: "Active Tasks", Author: "slack-task-tracker"}
}

// ActiveTasks writes a PDF summary of rows to w. states drives the per-status
// summary and the status swatch colours.
func (g *Generator) ActiveTasks(w io.Writer, rows []commands.ActiveTask, states []domain.TaskState, generatedAt time.Time) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(g.Title, false)
	pdf.SetAuthor(g.Author, false)
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(true, margin)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.AliasNbPages("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont(fontName, "", 8)
		pdf.CellFormat(0, 8, fmt.Sprintf("Page %d/{nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	pdf.SetFont(fontName, "B", 16)
	pdf.CellFormat(0, 9, tr(g.Title), "", 1, "L", false, 0, "")
	pdf.SetFont(fontName, "", 9)
	pdf.CellFormat(0, 5, "Generated "+generatedAt.UTC().Format("2006-01-02 15:04 MST"), "", 1, "L", false, 0, "")
	hr(pdf)

	counts := make(map[string]int, len(states))
	for _, r := range rows {
		counts[r.Task.Status]++
	}
	pdf.SetFont(fontName, "B", 11)
	pdf.CellFormat(0, 7, "Summary", "", 1, "L", false, 0, "")
	pdf.SetFont(fontName, "", 10)
	for _, st := range states {
		if st.IsTerminal {
			continue
		}
		swatch(pdf, st.Color)
		pdf.CellFormat(40, 6, tr(st.Name), "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, strconv.Itoa(counts[st.Name]), "", 1, "L", false, 0, "")
	}
	hr(pdf)

	if len(rows) == 0 {
		pdf.SetFont(fontName, "I", 10)
		pdf.CellFormat(0, 8, "No active tasks.", "", 1, "L", false, 0, "")
		return output(pdf, w)
	}

	header := []string{"Status", "Channel", "Author", "Created", "Message"}
	pdf.SetFont(fontName, "B", 9)
	pdf.SetFillColor(230, 230, 230)
	for i, h := range header {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont(fontName, "", 9)
	for _, r := range rows {
		text := "(message not accessible)"
		if r.Accessible {
			text = clip(strings.ReplaceAll(r.Text, "\n", " "), 40)
		}
		cells := []string{
			r.Task.Status,
			r.Task.Channel,
			r.Task.Author,
			r.Task.CreatedAt.UTC().Format("2006-01-02 15:04"),
			text,
		}
		for i, c := range cells {
			pdf.CellFormat(widths[i], 6, tr(c), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}
	return output(pdf, w)
}

func output(pdf *gofpdf.Fpdf, w io.Writer) error {
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	return nil
}

func hr(pdf *gofpdf.Fpdf) {
	y := pdf.GetY() + 1.5
	pdf.SetLineWidth(0.2)
	pdf.Line(margin, y, pageW-margin, y)
	pdf.SetY(y + 2)
}

func swatch(pdf *gofpdf.Fpdf, color string) {
	r, g, b := parseHex(color)
	x, y := pdf.GetXY()
	pdf.SetFillColor(r, g, b)
	pdf.Rect(x, y+1.5, 3, 3, "F")
	pdf.SetX(x + 5)
}

// parseHex accepts #RRGGBB and falls back to grey.
func parseHex(s string) (int, int, int) {
	s = strings.TrimPrefix(s, "#")
	if len(s) != 6 {
		return 128, 128, 128
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 128, 128, 128
	}
	return int(v >> 16 & 0xff), int(v >> 8 & 0xff), int(v & 0xff)
}

func clip(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-3]) + "..."
}
