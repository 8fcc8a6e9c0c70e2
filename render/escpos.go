package render

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Dialect selects the ESC/POS command variant a thermal printer speaks.
type Dialect int

const (
	DialectEpson Dialect = iota
	DialectStar
)

// DialectFor picks the dialect from the printer system name: STAR units
// advertise themselves as "Star" or "TSP"; everything else gets EPSON.
func DialectFor(systemName string) Dialect {
	lower := strings.ToLower(systemName)
	if strings.Contains(lower, "star") || strings.Contains(lower, "tsp") {
		return DialectStar
	}
	return DialectEpson
}

// Alignment of subsequent lines.
type Alignment byte

const (
	AlignLeft   Alignment = 0
	AlignCenter Alignment = 1
	AlignRight  Alignment = 2
)

// EscposBuilder accumulates an ESC/POS command stream. Command bytes follow
// the EPSON ESC/POS reference; the STAR line-mode deviations are isolated in
// the dialect switches.
type EscposBuilder struct {
	buf     bytes.Buffer
	dialect Dialect
	width   int
}

// NewEscposBuilder starts a stream with the printer initialization sequence.
// width is the line width in characters (48 for 80mm paper, 32 for 58mm).
func NewEscposBuilder(dialect Dialect, width int) *EscposBuilder {
	if width <= 0 {
		width = 48
	}
	b := &EscposBuilder{dialect: dialect, width: width}
	// ESC @ resets the printer on both dialects
	b.buf.Write([]byte{0x1B, 0x40})
	return b
}

// Width returns the configured character line width.
func (b *EscposBuilder) Width() int { return b.width }

// Align sets the justification for subsequent lines.
func (b *EscposBuilder) Align(a Alignment) *EscposBuilder {
	switch b.dialect {
	case DialectStar:
		// ESC GS a n
		b.buf.Write([]byte{0x1B, 0x1D, 0x61, byte(a)})
	default:
		// ESC a n
		b.buf.Write([]byte{0x1B, 0x61, byte(a)})
	}
	return b
}

// Bold toggles emphasized printing.
func (b *EscposBuilder) Bold(on bool) *EscposBuilder {
	switch b.dialect {
	case DialectStar:
		if on {
			b.buf.Write([]byte{0x1B, 0x45}) // ESC E
		} else {
			b.buf.Write([]byte{0x1B, 0x46}) // ESC F
		}
	default:
		n := byte(0)
		if on {
			n = 1
		}
		b.buf.Write([]byte{0x1B, 0x45, n}) // ESC E n
	}
	return b
}

// DoubleSize toggles double-width/double-height characters.
func (b *EscposBuilder) DoubleSize(on bool) *EscposBuilder {
	switch b.dialect {
	case DialectStar:
		if on {
			b.buf.Write([]byte{0x1B, 0x69, 0x01, 0x01}) // ESC i n1 n2
		} else {
			b.buf.Write([]byte{0x1B, 0x69, 0x00, 0x00})
		}
	default:
		if on {
			b.buf.Write([]byte{0x1D, 0x21, 0x11}) // GS ! n
		} else {
			b.buf.Write([]byte{0x1D, 0x21, 0x00})
		}
	}
	return b
}

// Line prints text followed by a line feed.
func (b *EscposBuilder) Line(text string) *EscposBuilder {
	b.buf.WriteString(text)
	b.buf.WriteByte(0x0A)
	return b
}

// Feed advances the paper n lines.
func (b *EscposBuilder) Feed(n int) *EscposBuilder {
	for i := 0; i < n; i++ {
		b.buf.WriteByte(0x0A)
	}
	return b
}

// Rule prints a full-width horizontal separator.
func (b *EscposBuilder) Rule() *EscposBuilder {
	return b.Line(strings.Repeat("-", b.width))
}

// Columns prints left- and right-aligned text on one line, padding between.
// Widths count runes, not bytes; accented text must not shift the column.
func (b *EscposBuilder) Columns(left, right string) *EscposBuilder {
	leftWidth := utf8.RuneCountInString(left)
	rightWidth := utf8.RuneCountInString(right)
	pad := b.width - leftWidth - rightWidth
	if pad < 1 {
		// Truncate the left column rather than wrap
		keep := b.width - rightWidth - 1
		if keep < 0 {
			keep = 0
		}
		if keep < leftWidth {
			left = string([]rune(left)[:keep])
			leftWidth = keep
		}
		pad = b.width - leftWidth - rightWidth
		if pad < 1 {
			pad = 1
		}
	}
	return b.Line(left + strings.Repeat(" ", pad) + right)
}

// Cut feeds and cuts the paper.
func (b *EscposBuilder) Cut() *EscposBuilder {
	switch b.dialect {
	case DialectStar:
		b.Feed(3)
		b.buf.Write([]byte{0x1B, 0x64, 0x02}) // ESC d n, partial cut
	default:
		b.buf.Write([]byte{0x1D, 0x56, 0x42, 0x03}) // GS V B n, feed then cut
	}
	return b
}

// Bytes returns the accumulated command stream.
func (b *EscposBuilder) Bytes() []byte {
	return b.buf.Bytes()
}

// FormatEUR renders an amount the way receipts display it.
func FormatEUR(amount float64) string {
	return fmt.Sprintf("%.2f EUR", amount)
}
