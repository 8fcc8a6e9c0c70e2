// Package render converts a semantic print job plus a printer descriptor
// into something the spooler can consume: an in-process ESC/POS or raw
// device stream, or a temporary spool file (PDF).
package render

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"repairmind/print-agent/printers"
	"repairmind/print-agent/protocol"
)

// Output is the result of rendering one job.
type Output struct {
	// Raw streams go direct-to-driver; otherwise FilePath names a spool file.
	Raw    bool
	Stream []byte

	FilePath  string
	Landscape bool
	// Physical page size for label media, zero when the driver default applies.
	PageWidthMm  float64
	PageHeightMm float64
}

// RenderError carries a short operator-facing reason. The queue decides
// whether the attempt is retried; no retries happen here.
type RenderError struct {
	Reason string
	Err    error
}

func (e *RenderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("render failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("render failed: %s", e.Reason)
}

func (e *RenderError) Unwrap() error { return e.Err }

func renderErr(reason string, err error) *RenderError {
	return &RenderError{Reason: reason, Err: err}
}

// Logger is the minimal logging surface this package needs.
type Logger interface {
	Error(msg string, context ...interface{})
	Warn(msg string, context ...interface{})
	Info(msg string, context ...interface{})
	Debug(msg string, context ...interface{})
}

type nullLogger struct{}

func (nullLogger) Error(msg string, context ...interface{}) {}
func (nullLogger) Warn(msg string, context ...interface{})  {}
func (nullLogger) Info(msg string, context ...interface{})  {}
func (nullLogger) Debug(msg string, context ...interface{}) {}

// Renderer renders jobs into device streams or spool files.
type Renderer struct {
	files  *SpoolFiles
	client *http.Client
	logger Logger
}

// NewRenderer creates a renderer writing spool files under dir (empty for
// the default scratch directory).
func NewRenderer(dir string, logger Logger) *Renderer {
	if logger == nil {
		logger = nullLogger{}
	}
	return &Renderer{
		files:  NewSpoolFiles(dir, logger),
		client: newDownloadClient(),
		logger: logger,
	}
}

// Files exposes the spool file manager so the orchestrator can sweep it on
// shutdown.
func (r *Renderer) Files() *SpoolFiles { return r.files }

// Render routes the job by document type, first match wins.
func (r *Renderer) Render(ctx context.Context, job *protocol.Job, desc printers.Descriptor) (*Output, error) {
	switch job.DocumentType {
	case protocol.DocReceipt, protocol.DocTicket:
		stream, err := buildReceipt(job, desc)
		if err != nil {
			return nil, err
		}
		return &Output{Raw: true, Stream: stream}, nil

	case protocol.DocInvoice, protocol.DocQuote, protocol.DocDeliveryNote, protocol.DocReport:
		if job.Content.PDFURL != "" || job.Content.PDFBase64 != "" {
			return r.prerenderedPDF(ctx, job)
		}
		return r.structuredPDF(job)

	case protocol.DocPDFRaw:
		return r.prerenderedPDF(ctx, job)

	case protocol.DocLabel, protocol.DocBarcode, protocol.DocQRCode:
		return r.renderLabel(ctx, job)

	case protocol.DocRaw:
		stream, err := rawStream(job)
		if err != nil {
			return nil, err
		}
		return &Output{Raw: true, Stream: stream}, nil
	}

	return nil, renderErr(fmt.Sprintf("unsupported document type %q", job.DocumentType), nil)
}

// prerenderedPDF materializes pdfUrl or pdfBase64 content as a spool file.
func (r *Renderer) prerenderedPDF(ctx context.Context, job *protocol.Job) (*Output, error) {
	var data []byte
	switch {
	case job.Content.PDFBase64 != "":
		decoded, err := base64.StdEncoding.DecodeString(job.Content.PDFBase64)
		if err != nil {
			return nil, renderErr("invalid base64 PDF payload", err)
		}
		data = decoded
	case job.Content.PDFURL != "":
		downloaded, err := r.download(ctx, job.Content.PDFURL)
		if err != nil {
			return nil, err
		}
		data = downloaded
	default:
		return nil, renderErr("pdf job carries neither pdfUrl nor pdfBase64", nil)
	}

	path, err := r.files.Write(job.ID, "pdf", data)
	if err != nil {
		return nil, renderErr("writing spool file", err)
	}
	return &Output{FilePath: path}, nil
}

// renderLabel routes label-family jobs, first match wins: embedded ZPL, raw
// bytes, pre-rendered PDF, then a generated label at exact physical size.
func (r *Renderer) renderLabel(ctx context.Context, job *protocol.Job) (*Output, error) {
	if job.Content.ZPL != "" {
		return &Output{Raw: true, Stream: []byte(job.Content.ZPL)}, nil
	}
	if job.Content.RawData != "" {
		return &Output{Raw: true, Stream: decodeRaw(job.Content.RawData)}, nil
	}
	if job.Content.PDFURL != "" || job.Content.PDFBase64 != "" {
		return r.prerenderedPDF(ctx, job)
	}
	return r.generatedLabel(job)
}

// rawStream extracts the device stream of a raw job.
func rawStream(job *protocol.Job) ([]byte, error) {
	if job.Content.RawData != "" {
		return decodeRaw(job.Content.RawData), nil
	}
	if job.Content.Data != "" {
		return decodeRaw(job.Content.Data), nil
	}
	return nil, renderErr("raw job carries neither rawData nor data", nil)
}

// decodeRaw treats the payload as base64 when it decodes cleanly, else as
// literal bytes.
func decodeRaw(s string) []byte {
	if decoded, err := base64.StdEncoding.DecodeString(s); err == nil {
		return decoded
	}
	return []byte(s)
}

func newDownloadClient() *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}
}
