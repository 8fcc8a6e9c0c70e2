package render

import (
	"bytes"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestDialectFor(t *testing.T) {
	tests := []struct {
		name       string
		systemName string
		want       Dialect
	}{
		{"epson tm-t88", "EPSON_TM_T88V", DialectEpson},
		{"star by brand", "Star_TSP143", DialectStar},
		{"star by model", "TSP100-Cutter", DialectStar},
		{"generic thermal", "POS-80C", DialectEpson},
		{"empty name", "", DialectEpson},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DialectFor(tt.systemName))
		})
	}
}

func TestEscposBuilderInit(t *testing.T) {
	b := NewEscposBuilder(DialectEpson, 48)
	out := b.Bytes()
	assert.Equal(t, []byte{0x1B, 0x40}, out, "stream must start with ESC @")
}

func TestEscposBuilderAlignDialects(t *testing.T) {
	epson := NewEscposBuilder(DialectEpson, 48).Align(AlignCenter).Bytes()
	assert.True(t, bytes.Contains(epson, []byte{0x1B, 0x61, 0x01}))

	star := NewEscposBuilder(DialectStar, 48).Align(AlignCenter).Bytes()
	assert.True(t, bytes.Contains(star, []byte{0x1B, 0x1D, 0x61, 0x01}))
}

func TestEscposBuilderBoldDialects(t *testing.T) {
	epson := NewEscposBuilder(DialectEpson, 48).Bold(true).Bold(false).Bytes()
	assert.True(t, bytes.Contains(epson, []byte{0x1B, 0x45, 0x01}))
	assert.True(t, bytes.Contains(epson, []byte{0x1B, 0x45, 0x00}))

	star := NewEscposBuilder(DialectStar, 48).Bold(true).Bold(false).Bytes()
	assert.True(t, bytes.Contains(star, []byte{0x1B, 0x45, 0x1B, 0x46}))
}

func TestEscposBuilderCutDialects(t *testing.T) {
	epson := NewEscposBuilder(DialectEpson, 48).Cut().Bytes()
	assert.True(t, bytes.HasSuffix(epson, []byte{0x1D, 0x56, 0x42, 0x03}))

	star := NewEscposBuilder(DialectStar, 48).Cut().Bytes()
	assert.True(t, bytes.HasSuffix(star, []byte{0x1B, 0x64, 0x02}))
}

func TestEscposColumns(t *testing.T) {
	tests := []struct {
		name  string
		width int
		left  string
		right string
		want  string
	}{
		{"simple pad", 20, "item", "1.00", "item" + "            " + "1.00"},
		{"exact fit keeps one space", 10, "abcd", "12345", "abcd 12345"},
		{"overlong left truncated", 10, "a very long description", "9.99", "a ver 9.99"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewEscposBuilder(DialectEpson, tt.width)
			out := b.Columns(tt.left, tt.right).Bytes()
			// Strip the ESC @ prefix and trailing line feed.
			line := string(out[2 : len(out)-1])
			assert.Equal(t, tt.want, line)
			assert.LessOrEqual(t, len(line), tt.width)
		})
	}
}

func TestEscposColumnsAccentedText(t *testing.T) {
	tests := []struct {
		name  string
		width int
		left  string
		right string
		want  string
	}{
		{"accents pad by runes", 24, "Réparation écran", "49.90", "Réparation écran   49.90"},
		{"accents truncate by runes", 10, "Réparation écran", "9.99", "Répar 9.99"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewEscposBuilder(DialectEpson, tt.width)
			out := b.Columns(tt.left, tt.right).Bytes()
			line := string(out[2 : len(out)-1])
			assert.Equal(t, tt.want, line)
			assert.Equal(t, tt.width, utf8.RuneCountInString(line))
		})
	}
}

func TestEscposRuleMatchesWidth(t *testing.T) {
	b := NewEscposBuilder(DialectEpson, 32)
	out := b.Rule().Bytes()
	line := string(out[2 : len(out)-1])
	assert.Len(t, line, 32)
}

func TestFormatEUR(t *testing.T) {
	assert.Equal(t, "12.50 EUR", FormatEUR(12.5))
	assert.Equal(t, "0.00 EUR", FormatEUR(0))
}
