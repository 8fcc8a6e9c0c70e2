package render

import (
	"bytes"
	"strconv"

	"github.com/jung-kurt/gofpdf"

	"repairmind/print-agent/protocol"
)

var documentTitles = map[protocol.DocumentType]string{
	protocol.DocInvoice:      "FACTURE",
	protocol.DocQuote:        "DEVIS",
	protocol.DocDeliveryNote: "BON DE LIVRAISON",
	protocol.DocReport:       "RAPPORT",
}

// Items table column layout, in mm from the left margin.
const (
	colQtyWidth   = 20.0
	colDescWidth  = 110.0
	colPriceWidth = 30.0
	rowHeight     = 8.0
)

// structuredPDF generates an office document from structured fields when no
// pre-rendered source is supplied.
func (r *Renderer) structuredPDF(job *protocol.Job) (*Output, error) {
	c := job.Content

	title := documentTitles[job.DocumentType]
	if title == "" {
		title = "DOCUMENT"
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.AddPage()

	// Header
	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 12, title, "", 1, "C", false, 0, "")

	if c.DocumentNumber != "" {
		pdf.SetFont("Helvetica", "", 11)
		pdf.CellFormat(0, 8, "No "+c.DocumentNumber, "", 1, "C", false, 0, "")
	}
	pdf.Ln(6)

	// Company block on the left, client block on the right
	topY := pdf.GetY()
	pdf.SetFont("Helvetica", "B", 11)
	if c.CompanyName != "" {
		pdf.CellFormat(90, 6, c.CompanyName, "", 1, "L", false, 0, "")
	}
	pdf.SetFont("Helvetica", "", 10)
	if c.CompanyAddress != "" {
		pdf.MultiCell(90, 5, c.CompanyAddress, "", "L", false)
	}

	pdf.SetXY(110, topY)
	pdf.SetFont("Helvetica", "B", 11)
	if c.ClientName != "" {
		pdf.CellFormat(85, 6, c.ClientName, "", 2, "L", false, 0, "")
	}
	pdf.SetFont("Helvetica", "", 10)
	if c.ClientAddress != "" {
		pdf.MultiCell(85, 5, c.ClientAddress, "", "L", false)
	}
	pdf.Ln(10)
	pdf.SetX(15)

	// Items table at fixed columns
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(235, 235, 235)
	pdf.CellFormat(colQtyWidth, rowHeight, "Qte", "1", 0, "C", true, 0, "")
	pdf.CellFormat(colDescWidth, rowHeight, "Description", "1", 0, "L", true, 0, "")
	pdf.CellFormat(colPriceWidth, rowHeight, "Prix", "1", 1, "R", true, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	for _, item := range c.Items {
		qty := item.Quantity
		if qty <= 0 {
			qty = 1
		}
		pdf.CellFormat(colQtyWidth, rowHeight, strconv.Itoa(qty), "1", 0, "C", false, 0, "")
		pdf.CellFormat(colDescWidth, rowHeight, item.Description, "1", 0, "L", false, 0, "")
		pdf.CellFormat(colPriceWidth, rowHeight, FormatEUR(item.Price), "1", 1, "R", false, 0, "")
	}

	if c.HasTotal {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(colQtyWidth+colDescWidth, rowHeight, "TOTAL", "1", 0, "R", false, 0, "")
		pdf.CellFormat(colPriceWidth, rowHeight, FormatEUR(c.Total), "1", 1, "R", false, 0, "")
	}

	if c.Footer != "" {
		pdf.Ln(12)
		pdf.SetFont("Helvetica", "I", 9)
		pdf.MultiCell(0, 5, c.Footer, "", "C", false)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, renderErr("generating PDF", err)
	}

	path, err := r.files.Write(job.ID, "pdf", buf.Bytes())
	if err != nil {
		return nil, renderErr("writing spool file", err)
	}
	return &Output{FilePath: path}, nil
}
