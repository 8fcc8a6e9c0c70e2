//go:build linux || darwin

package spool

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"repairmind/print-agent/printers"
	"repairmind/print-agent/render"
)

const submitTimeout = 30 * time.Second

// requestIDRe matches the CUPS acknowledgement, e.g.
// "request id is EPSON_TM_T88V-42 (1 file(s))".
var requestIDRe = regexp.MustCompile(`request id is \S+-(\d+)`)

// Submit hands rendered output to CUPS via lp and returns the spooler
// handle parsed from its acknowledgement.
func Submit(ctx context.Context, out *render.Output, desc printers.Descriptor, logger Logger) (Handle, error) {
	if logger == nil {
		logger = nullLogger{}
	}
	ctx, cancel := context.WithTimeout(ctx, submitTimeout)
	defer cancel()

	args := []string{"-d", desc.SystemName}
	var stdin *bytes.Reader

	if out.Raw {
		// Device streams bypass filtering so ESC/POS and ZPL bytes reach
		// the printer untouched.
		args = append(args, "-o", "raw", "-")
		stdin = bytes.NewReader(out.Stream)
	} else {
		if out.PageWidthMm > 0 && out.PageHeightMm > 0 {
			args = append(args, "-o",
				fmt.Sprintf("media=Custom.%gx%gmm", out.PageWidthMm, out.PageHeightMm))
		}
		if out.Landscape {
			args = append(args, "-o", "landscape")
		}
		args = append(args, out.FilePath)
	}

	cmd := exec.CommandContext(ctx, "lp", args...)
	if stdin != nil {
		cmd.Stdin = stdin
	}

	output, err := cmd.CombinedOutput()
	if err != nil {
		return Handle{}, fmt.Errorf("lp submission to %s failed: %w (%s)",
			desc.SystemName, err, strings.TrimSpace(string(output)))
	}

	handle := Handle{PrinterName: desc.SystemName}
	if m := requestIDRe.FindSubmatch(output); m != nil {
		if id, convErr := strconv.Atoi(string(m[1])); convErr == nil {
			handle.OSJobID = id
		}
	}
	if handle.OSJobID == 0 {
		logger.Debug("lp did not report a request id",
			"printer", desc.SystemName, "output", strings.TrimSpace(string(output)))
	} else {
		logger.Debug("submitted to spooler",
			"printer", desc.SystemName, "jobId", handle.OSJobID)
	}
	return handle, nil
}
