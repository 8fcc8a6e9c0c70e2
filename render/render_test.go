package render

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repairmind/print-agent/printers"
	"repairmind/print-agent/protocol"
)

func testRenderer(t *testing.T) *Renderer {
	t.Helper()
	return NewRenderer(t.TempDir(), nil)
}

func TestRenderReceiptProducesRawStream(t *testing.T) {
	r := testRenderer(t)
	job := &protocol.Job{
		ID:           "r-1",
		DocumentType: protocol.DocReceipt,
		Content:      protocol.Content{StoreName: "Atelier"},
	}

	out, err := r.Render(context.Background(), job, thermalDescriptor(80))
	require.NoError(t, err)
	assert.True(t, out.Raw)
	assert.NotEmpty(t, out.Stream)
	assert.Empty(t, out.FilePath)
}

func TestRenderStructuredInvoice(t *testing.T) {
	r := testRenderer(t)
	job := &protocol.Job{
		ID:           "inv-1",
		DocumentType: protocol.DocInvoice,
		Content: protocol.Content{
			DocumentNumber: "F-2026-001",
			CompanyName:    "Atelier Martin",
			ClientName:     "Dupont",
			Items:          []protocol.Item{{Quantity: 1, Description: "Reparation", Price: 80}},
			Total:          80,
			HasTotal:       true,
		},
	}

	out, err := r.Render(context.Background(), job, printers.Descriptor{SystemName: "Office"})
	require.NoError(t, err)
	assert.False(t, out.Raw)
	require.NotEmpty(t, out.FilePath)

	data, err := os.ReadFile(out.FilePath)
	require.NoError(t, err)
	assert.True(t, len(data) > 4 && string(data[:4]) == "%PDF")
}

func TestRenderPDFBase64(t *testing.T) {
	r := testRenderer(t)
	payload := []byte("%PDF-1.4 fake")
	job := &protocol.Job{
		ID:           "pdf-1",
		DocumentType: protocol.DocPDFRaw,
		Content:      protocol.Content{PDFBase64: base64.StdEncoding.EncodeToString(payload)},
	}

	out, err := r.Render(context.Background(), job, printers.Descriptor{})
	require.NoError(t, err)
	data, err := os.ReadFile(out.FilePath)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

func TestRenderPDFBase64Invalid(t *testing.T) {
	r := testRenderer(t)
	job := &protocol.Job{
		ID:           "pdf-2",
		DocumentType: protocol.DocPDFRaw,
		Content:      protocol.Content{PDFBase64: "not base64 !!!"},
	}

	_, err := r.Render(context.Background(), job, printers.Descriptor{})
	var rerr *RenderError
	require.ErrorAs(t, err, &rerr)
	assert.Contains(t, rerr.Reason, "base64")
}

func TestRenderPDFDownload(t *testing.T) {
	payload := []byte("%PDF-1.4 remote")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	r := testRenderer(t)
	job := &protocol.Job{
		ID:           "dl-1",
		DocumentType: protocol.DocPDFRaw,
		Content:      protocol.Content{PDFURL: srv.URL + "/doc.pdf"},
	}

	out, err := r.Render(context.Background(), job, printers.Descriptor{})
	require.NoError(t, err)
	data, err := os.ReadFile(out.FilePath)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

func TestRenderPDFDownloadErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		switch req.URL.Path {
		case "/missing":
			http.NotFound(w, req)
		case "/empty":
			w.WriteHeader(http.StatusOK)
		case "/loop":
			http.Redirect(w, req, "/loop", http.StatusFound)
		}
	}))
	defer srv.Close()

	tests := []struct {
		name   string
		url    string
		reason string
	}{
		{"http error status", srv.URL + "/missing", "HTTP 404"},
		{"empty body", srv.URL + "/empty", "empty body"},
		{"redirect loop", srv.URL + "/loop", "too many redirects"},
		{"bad scheme", "ftp://example.com/doc.pdf", "scheme"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := testRenderer(t)
			job := &protocol.Job{
				ID:           "dl-err",
				DocumentType: protocol.DocPDFRaw,
				Content:      protocol.Content{PDFURL: tt.url},
			}
			_, err := r.Render(context.Background(), job, printers.Descriptor{})
			var rerr *RenderError
			require.ErrorAs(t, err, &rerr)
			assert.Contains(t, rerr.Reason, tt.reason)
		})
	}
}

func TestRenderLabelRouting(t *testing.T) {
	t.Run("zpl passthrough", func(t *testing.T) {
		r := testRenderer(t)
		job := &protocol.Job{
			ID:           "l-1",
			DocumentType: protocol.DocLabel,
			Content:      protocol.Content{ZPL: "^XA^FDtest^FS^XZ"},
		}
		out, err := r.Render(context.Background(), job, printers.Descriptor{})
		require.NoError(t, err)
		assert.True(t, out.Raw)
		assert.Equal(t, []byte("^XA^FDtest^FS^XZ"), out.Stream)
	})

	t.Run("generated label default size", func(t *testing.T) {
		r := testRenderer(t)
		job := &protocol.Job{
			ID:           "l-2",
			DocumentType: protocol.DocLabel,
			Content:      protocol.Content{Title: "Ecran iPhone 12", SKU: "SCR-IP12", Price: 89.90},
		}
		out, err := r.Render(context.Background(), job, printers.Descriptor{})
		require.NoError(t, err)
		assert.False(t, out.Raw)
		assert.True(t, out.Landscape)
		assert.Equal(t, 62.0, out.PageWidthMm)
		assert.Equal(t, 29.0, out.PageHeightMm)
		assert.FileExists(t, out.FilePath)
	})

	t.Run("generated label custom size", func(t *testing.T) {
		r := testRenderer(t)
		job := &protocol.Job{
			ID:           "l-3",
			DocumentType: protocol.DocBarcode,
			Options:      &protocol.Options{LabelWidthMm: 40, LabelHeightMm: 60},
			Content:      protocol.Content{Barcode: "3700123456789"},
		}
		out, err := r.Render(context.Background(), job, printers.Descriptor{})
		require.NoError(t, err)
		assert.False(t, out.Landscape)
		assert.Equal(t, 40.0, out.PageWidthMm)
		assert.Equal(t, 60.0, out.PageHeightMm)
	})

	t.Run("empty label rejected", func(t *testing.T) {
		r := testRenderer(t)
		job := &protocol.Job{ID: "l-4", DocumentType: protocol.DocLabel}
		_, err := r.Render(context.Background(), job, printers.Descriptor{})
		require.Error(t, err)
	})
}

func TestRenderRawJob(t *testing.T) {
	r := testRenderer(t)

	t.Run("base64 payload decoded", func(t *testing.T) {
		job := &protocol.Job{
			ID:           "raw-1",
			DocumentType: protocol.DocRaw,
			Content:      protocol.Content{RawData: base64.StdEncoding.EncodeToString([]byte{0x1B, 0x40})},
		}
		out, err := r.Render(context.Background(), job, printers.Descriptor{})
		require.NoError(t, err)
		assert.Equal(t, []byte{0x1B, 0x40}, out.Stream)
	})

	t.Run("data field fallback", func(t *testing.T) {
		job := &protocol.Job{
			ID:           "raw-2",
			DocumentType: protocol.DocRaw,
			Content:      protocol.Content{Data: "plain text!"},
		}
		out, err := r.Render(context.Background(), job, printers.Descriptor{})
		require.NoError(t, err)
		assert.Equal(t, []byte("plain text!"), out.Stream)
	})

	t.Run("missing payload rejected", func(t *testing.T) {
		job := &protocol.Job{ID: "raw-3", DocumentType: protocol.DocRaw}
		_, err := r.Render(context.Background(), job, printers.Descriptor{})
		var rerr *RenderError
		require.ErrorAs(t, err, &rerr)
		assert.Contains(t, rerr.Reason, "neither rawData nor data")
	})
}

func TestRenderUnsupportedType(t *testing.T) {
	r := testRenderer(t)
	job := &protocol.Job{ID: "u-1", DocumentType: protocol.DocumentType("hologram")}
	_, err := r.Render(context.Background(), job, printers.Descriptor{})
	var rerr *RenderError
	require.ErrorAs(t, err, &rerr)
	assert.Contains(t, rerr.Reason, "unsupported document type")
}

func TestSpoolFilesSweep(t *testing.T) {
	dir := t.TempDir()
	files := NewSpoolFiles(dir, nil)

	p1, err := files.Write("job-a", "pdf", []byte("a"))
	require.NoError(t, err)
	p2, err := files.Write("job-b", "pdf", []byte("b"))
	require.NoError(t, err)

	files.Release(p1)
	// Release is idempotent.
	files.Release(p1)

	files.Sweep()
	assert.NoFileExists(t, p1)
	assert.NoFileExists(t, p2)

	// Sweeping an already-empty directory is fine.
	files.Sweep()
}

func TestSpoolFilesWritePath(t *testing.T) {
	dir := t.TempDir()
	files := NewSpoolFiles(dir, nil)
	path, err := files.Write("job-x", "pdf", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "job-x.pdf"), path)
}

func TestSpoolFilesWriteHostileJobID(t *testing.T) {
	tests := []struct {
		name  string
		jobID string
		want  string
	}{
		{"path traversal", "../../etc/passwd", "etc-passwd.pdf"},
		{"separators and colon", `a/b\c:d`, "a-b-c-d.pdf"},
		{"nothing usable left", "...", "job.pdf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			files := NewSpoolFiles(dir, nil)
			path, err := files.Write(tt.jobID, "pdf", []byte("x"))
			require.NoError(t, err)
			assert.Equal(t, dir, filepath.Dir(path))
			assert.Equal(t, tt.want, filepath.Base(path))
			assert.FileExists(t, path)
		})
	}
}
