package render

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxPDFBytes bounds how much of a remote document the renderer will buffer.
const maxPDFBytes = 50 << 20

// download fetches a remote PDF. The client enforces a 30-second overall
// timeout and a hard cap of 5 redirect hops within one attempt.
func (r *Renderer) download(ctx context.Context, url string) ([]byte, error) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, renderErr(fmt.Sprintf("unsupported PDF URL scheme in %q", url), nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, renderErr("building download request", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		if strings.Contains(err.Error(), "too many redirects") {
			return nil, renderErr("too many redirects", err)
		}
		return nil, renderErr("PDF download failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, renderErr(fmt.Sprintf("PDF download returned HTTP %d", resp.StatusCode), nil)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPDFBytes+1))
	if err != nil {
		return nil, renderErr("reading PDF body", err)
	}
	if len(data) > maxPDFBytes {
		return nil, renderErr("PDF exceeds size limit", nil)
	}
	if len(data) == 0 {
		return nil, renderErr("PDF download returned an empty body", nil)
	}

	return data, nil
}
