package document

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
)

const (
	fontFamily = "DejaVuSansCondensed"
	lineHeight = 5.0
	cellPad    = 1.0
)

var (
	//go:embed fonts/DejaVuSansCondensed.ttf
	fontRegular []byte
	//go:embed fonts/DejaVuSansCondensed-Bold.ttf
	fontBold []byte
	//go:embed fonts/DejaVuSansCondensed-Oblique.ttf
	fontOblique []byte
)

// Native renders the report markup with fpdf, no external tools needed.
// Text is set in an embedded UTF-8 TrueType font, so Polish, Cyrillic and
// other non cp1252 names and dates keep their characters.
type Native struct {
	now      func() time.Time
	compress bool
}

func NewNative() *Native {
	return &Native{now: time.Now, compress: true}
}

func (n *Native) Name() string { return "native" }

func (n *Native) Convert(ctx context.Context, src, dst string) error {
	markup, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("read markup: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 15)
	pdf.SetCreator("clinic-server", true)
	pdf.SetCreationDate(n.now())
	pdf.AliasNbPages("")
	pdf.SetCompression(n.compress)
	pdf.AddUTF8FontFromBytes(fontFamily, "", fontRegular)
	pdf.AddUTF8FontFromBytes(fontFamily, "B", fontBold)
	pdf.AddUTF8FontFromBytes(fontFamily, "I", fontOblique)

	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont(fontFamily, "I", 8)
		pdf.CellFormat(0, 8, fmt.Sprintf("Page %d/{nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	for _, b := range ParseMarkup(markup) {
		switch b.Kind {
		case BlockHeading:
			if b.Level <= 1 {
				pdf.SetTitle(b.Text, true)
				pdf.SetFont(fontFamily, "B", 16)
			} else {
				pdf.SetFont(fontFamily, "B", 13)
			}
			pdf.Ln(2)
			pdf.MultiCell(0, 8, b.Text, "", "L", false)
			pdf.Ln(1)
		case BlockParagraph:
			pdf.SetFont(fontFamily, "", 10)
			pdf.MultiCell(0, lineHeight, b.Text, "", "L", false)
			pdf.Ln(2)
		case BlockTable:
			drawTable(pdf, b)
			pdf.Ln(2)
		}
		if pdf.Err() {
			return fmt.Errorf("render pdf: %w", pdf.Error())
		}
	}

	if err := pdf.OutputFileAndClose(dst); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func drawTable(pdf *fpdf.Fpdf, t Block) {
	cols := len(t.Header)
	if cols == 0 {
		return
	}
	pageW, pageH := pdf.GetPageSize()
	left, _, right, bottom := pdf.GetMargins()
	width := (pageW - left - right) / float64(cols)
	pdf.SetFont(fontFamily, "", 8)

	header := func() {
		pdf.SetFont(fontFamily, "B", 8)
		pdf.SetFillColor(230, 230, 230)
		drawRow(pdf, t.Header, width, true)
		pdf.SetFont(fontFamily, "", 8)
	}
	header()

	for _, row := range t.Rows {
		row = fitRow(row, cols)
		h := rowHeight(pdf, row, width)
		if pdf.GetY()+h > pageH-bottom {
			pdf.AddPage()
			header()
		}
		drawRow(pdf, row, width, false)
	}
}

// fitRow pads or truncates cells to the header width so every row stays
// inside the table.
func fitRow(cells []string, cols int) []string {
	if len(cells) == cols {
		return cells
	}
	out := make([]string, cols)
	copy(out, cells)
	return out
}

func rowHeight(pdf *fpdf.Fpdf, cells []string, width float64) float64 {
	lines := 1
	for _, c := range cells {
		if n := len(wrap(pdf, c, width-2*cellPad)); n > lines {
			lines = n
		}
	}
	return float64(lines)*lineHeight + cellPad
}

func drawRow(pdf *fpdf.Fpdf, cells []string, width float64, fill bool) {
	h := rowHeight(pdf, cells, width)
	x, y := pdf.GetXY()
	style := "D"
	if fill {
		style = "FD"
	}
	for i := range cells {
		cx := x + float64(i)*width
		pdf.Rect(cx, y, width, h, style)
		pdf.SetXY(cx+cellPad, y+cellPad/2)
		text := strings.Join(wrap(pdf, cells[i], width-2*cellPad), "\n")
		pdf.MultiCell(width-2*cellPad, lineHeight, text, "", "L", false)
	}
	pdf.SetXY(x, y+h)
}

// wrap splits text into lines no wider than w, measured per rune.
func wrap(pdf *fpdf.Fpdf, text string, w float64) []string {
	return pdf.SplitText(text, w)
}
