package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
)

const pdfTableWidth = 190.0

// PDFExporter renders datasets as single-table A4 documents.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render draws the dataset as a bordered table under an optional title,
// with a generation timestamp in the footer. Columns share the page
// width evenly.
func (e *PDFExporter) Render(data Dataset, title string) ([]byte, error) {
	if len(data.Columns) == 0 {
		return nil, fmt.Errorf("report needs at least one column")
	}
	doc := gofpdf.New("P", "mm", "A4", "")
	doc.SetMargins(10, 15, 10)
	doc.AddPage()

	if title != "" {
		doc.SetFont("Arial", "B", 14)
		doc.CellFormat(0, 10, strings.ToUpper(title), "", 1, "C", false, 0, "")
		doc.Ln(5)
	}

	colWidth := pdfTableWidth / float64(len(data.Columns))
	doc.SetFont("Arial", "B", 10)
	for _, column := range data.Columns {
		doc.CellFormat(colWidth, 8, column, "1", 0, "C", false, 0, "")
	}
	doc.Ln(-1)

	doc.SetFont("Arial", "", 9)
	for _, row := range data.Rows {
		for _, column := range data.Columns {
			doc.CellFormat(colWidth, 7, row[column], "1", 0, "", false, 0, "")
		}
		doc.Ln(-1)
	}

	doc.Ln(4)
	doc.SetFont("Arial", "I", 8)
	doc.CellFormat(0, 6, "Generated "+time.Now().Format("2006-01-02 15:04"), "", 1, "R", false, 0, "")

	buf := &bytes.Buffer{}
	if err := doc.Output(buf); err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	return buf.Bytes(), nil
}
