// Package protocol defines the job shapes exchanged with the backend over
// the websocket session. The queue, renderer and session all share these
// types.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DocumentType identifies the semantic document a job carries.
type DocumentType string

const (
	DocReceipt      DocumentType = "receipt"
	DocTicket       DocumentType = "ticket"
	DocInvoice      DocumentType = "invoice"
	DocQuote        DocumentType = "quote"
	DocDeliveryNote DocumentType = "delivery_note"
	DocReport       DocumentType = "report"
	DocLabel        DocumentType = "label"
	DocBarcode      DocumentType = "barcode"
	DocQRCode       DocumentType = "qrcode"
	DocRaw          DocumentType = "raw"
	DocPDFRaw       DocumentType = "pdf_raw"
)

// Valid reports whether t is one of the supported document types.
func (t DocumentType) Valid() bool {
	switch t {
	case DocReceipt, DocTicket, DocInvoice, DocQuote, DocDeliveryNote,
		DocReport, DocLabel, DocBarcode, DocQRCode, DocRaw, DocPDFRaw:
		return true
	}
	return false
}

// Priority orders jobs on a printer: urgent before normal before low.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Ordinal returns the sort key for a priority; lower runs first.
func (p Priority) Ordinal() int {
	switch p {
	case PriorityUrgent:
		return 0
	case PriorityLow:
		return 2
	default:
		return 1
	}
}

// Normalize maps unknown or empty priorities to normal.
func (p Priority) Normalize() Priority {
	switch p {
	case PriorityUrgent, PriorityNormal, PriorityLow:
		return p
	}
	return PriorityNormal
}

// Item is one line of a receipt or invoice items table.
type Item struct {
	Quantity    int     `json:"quantity"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
}

// Content is the document-type specific payload of a job. Fields are a
// union over all document shapes; renderers read only what their route
// needs and ignore the rest.
type Content struct {
	// Receipt / ticket fields
	StoreName    string  `json:"storeName,omitempty"`
	StoreAddress string  `json:"storeAddress,omitempty"`
	TicketNumber string  `json:"ticketNumber,omitempty"`
	ReceiptNo    string  `json:"receiptNumber,omitempty"`
	Timestamp    string  `json:"timestamp,omitempty"`
	ClientName   string  `json:"clientName,omitempty"`
	ClientPhone  string  `json:"clientPhone,omitempty"`
	Items        []Item  `json:"items,omitempty"`
	Total        float64 `json:"total,omitempty"`
	HasTotal     bool    `json:"-"`
	Footer       string  `json:"footer,omitempty"`

	// Invoice / quote / delivery note / report fields
	DocumentNumber string `json:"documentNumber,omitempty"`
	CompanyName    string `json:"companyName,omitempty"`
	CompanyAddress string `json:"companyAddress,omitempty"`
	ClientAddress  string `json:"clientAddress,omitempty"`

	// Pre-rendered PDF sources
	PDFURL    string `json:"pdfUrl,omitempty"`
	PDFBase64 string `json:"pdfBase64,omitempty"`

	// Label fields
	Title    string  `json:"title,omitempty"`
	Subtitle string  `json:"subtitle,omitempty"`
	SKU      string  `json:"sku,omitempty"`
	Price    float64 `json:"price,omitempty"`
	Barcode  string  `json:"barcode,omitempty"`
	ZPL      string  `json:"zpl,omitempty"`

	// Raw device streams (plain text or base64-encoded bytes)
	RawData string `json:"rawData,omitempty"`
	Data    string `json:"data,omitempty"`
}

// UnmarshalJSON tracks whether a total was present so renderers can
// distinguish "no total" from a zero total.
func (c *Content) UnmarshalJSON(b []byte) error {
	type alias Content
	var a alias
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(b, &probe); err == nil {
		if _, ok := probe["total"]; ok {
			a.HasTotal = true
		}
	}
	*c = Content(a)
	return nil
}

// Options carries per-job print options from the backend.
type Options struct {
	PaperSize     string   `json:"paperSize,omitempty"`
	Margins       string   `json:"margins,omitempty"`
	LabelWidthMm  float64  `json:"labelWidthMm,omitempty"`
	LabelHeightMm float64  `json:"labelHeightMm,omitempty"`
	Doctype       string   `json:"doctype,omitempty"`
	Priority      Priority `json:"priority,omitempty"`
}

// Job is a print job as received from the backend.
type Job struct {
	ID                string       `json:"id"`
	PrinterSystemName string       `json:"printerSystemName"`
	DocumentType      DocumentType `json:"documentType"`
	Priority          Priority     `json:"priority,omitempty"`
	Options           *Options     `json:"options,omitempty"`
	Content           Content      `json:"content"`
}

// EffectivePriority resolves the job priority: the server-assigned field
// wins, then options, then normal.
func (j *Job) EffectivePriority() Priority {
	if j.Priority != "" {
		return j.Priority.Normalize()
	}
	if j.Options != nil && j.Options.Priority != "" {
		return j.Options.Priority.Normalize()
	}
	return PriorityNormal
}

// Validate rejects jobs the queue must refuse synchronously.
func (j *Job) Validate() error {
	if strings.TrimSpace(j.ID) == "" {
		return fmt.Errorf("job is missing an id")
	}
	if strings.TrimSpace(j.PrinterSystemName) == "" {
		return fmt.Errorf("job %s is missing printerSystemName", j.ID)
	}
	if !j.DocumentType.Valid() {
		return fmt.Errorf("job %s has unsupported document type %q", j.ID, j.DocumentType)
	}
	return nil
}

// JobFromWire decodes the data map of a new_print_job or pending_jobs
// message into a Job.
func JobFromWire(data map[string]interface{}) (*Job, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("re-encoding wire job: %w", err)
	}
	var job Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("decoding wire job: %w", err)
	}
	return &job, nil
}
