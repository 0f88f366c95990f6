package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/tendant/assetstore/pkg/assetstore/digest"
)

var (
	colorSuccess = lipgloss.AdaptiveColor{Light: "2", Dark: "2"}
	colorError   = lipgloss.AdaptiveColor{Light: "1", Dark: "1"}
	colorPrimary = lipgloss.AdaptiveColor{Light: "5", Dark: "5"}
	colorMuted   = lipgloss.AdaptiveColor{Light: "8", Dark: "8"}
	colorWarning = lipgloss.AdaptiveColor{Light: "3", Dark: "3"}

	styleSuccess = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true)
	styleError   = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	styleHeader  = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
	styleMuted   = lipgloss.NewStyle().Foreground(colorMuted)
	styleWarning = lipgloss.NewStyle().Foreground(colorWarning).Bold(true)
	styleLabel   = lipgloss.NewStyle().Bold(true).Width(18)
)

const (
	iconSuccess = "✔"
	iconError   = "✘"
	iconWarning = "⚠"
)

// printer writes either styled text or JSON.
type printer struct {
	out  io.Writer
	json bool
}

func (p printer) JSON(v any) error {
	enc := json.NewEncoder(p.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p printer) Header(title string) {
	fmt.Fprintln(p.out, styleHeader.Render(title))
}

func (p printer) Field(label string, value any) {
	fmt.Fprintf(p.out, "%s %v\n", styleLabel.Render(label+":"), value)
}

func (p printer) Success(format string, args ...any) {
	fmt.Fprintf(p.out, "%s %s\n", styleSuccess.Render(iconSuccess), fmt.Sprintf(format, args...))
}

func (p printer) Failure(format string, args ...any) {
	fmt.Fprintf(p.out, "%s %s\n", styleError.Render(iconError), fmt.Sprintf(format, args...))
}

func (p printer) Warning(format string, args ...any) {
	fmt.Fprintf(p.out, "%s %s\n", styleWarning.Render(iconWarning), fmt.Sprintf(format, args...))
}

func (p printer) Muted(format string, args ...any) {
	fmt.Fprintln(p.out, styleMuted.Render(fmt.Sprintf(format, args...)))
}

func bytesLabel(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}

func digestList(ds []digest.Digest) string {
	parts := make([]string, len(ds))
	for i, d := range ds {
		parts[i] = d.String()
	}
	return strings.Join(parts, "\n")
}
