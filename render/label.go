package render

import (
	"bytes"

	"github.com/jung-kurt/gofpdf"

	"repairmind/print-agent/protocol"
)

// Default label media, matching the common 62x29mm address roll.
const (
	defaultLabelWidthMm  = 62.0
	defaultLabelHeightMm = 29.0
)

// generatedLabel builds a label PDF at the exact physical media size so the
// driver does not scale or letterbox it.
func (r *Renderer) generatedLabel(job *protocol.Job) (*Output, error) {
	c := job.Content
	if c.Title == "" && c.SKU == "" && c.Barcode == "" {
		return nil, renderErr("label carries no printable fields", nil)
	}

	width := job.Options.LabelWidthMm
	if width <= 0 {
		width = defaultLabelWidthMm
	}
	height := job.Options.LabelHeightMm
	if height <= 0 {
		height = defaultLabelHeightMm
	}

	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		UnitStr: "mm",
		Size:    gofpdf.SizeType{Wd: width, Ht: height},
	})
	pdf.SetMargins(2, 2, 2)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	usable := width - 4
	lineHeight := height / 6

	if c.Title != "" {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(usable, lineHeight, c.Title, "", 1, "C", false, 0, "")
	}
	if c.Subtitle != "" {
		pdf.SetFont("Helvetica", "", 7)
		pdf.CellFormat(usable, lineHeight, c.Subtitle, "", 1, "C", false, 0, "")
	}
	if c.SKU != "" {
		pdf.SetFont("Helvetica", "", 8)
		pdf.CellFormat(usable, lineHeight, "REF "+c.SKU, "", 1, "C", false, 0, "")
	}
	if c.Price > 0 {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(usable, lineHeight, FormatEUR(c.Price), "", 1, "C", false, 0, "")
	}
	if c.Barcode != "" {
		// Human-readable digits only; the scanner-grade symbology comes
		// from pre-rendered ZPL or PDF payloads.
		pdf.SetFont("Courier", "", 9)
		pdf.CellFormat(usable, lineHeight, c.Barcode, "", 1, "C", false, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, renderErr("generating label PDF", err)
	}

	path, err := r.files.Write(job.ID, "pdf", buf.Bytes())
	if err != nil {
		return nil, renderErr("writing spool file", err)
	}
	return &Output{
		FilePath:     path,
		Landscape:    width > height,
		PageWidthMm:  width,
		PageHeightMm: height,
	}, nil
}
