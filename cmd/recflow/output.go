package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

// tone marks how much attention a status field needs.
type tone int

const (
	toneQuiet tone = iota
	toneGood
	toneAttention
)

const (
	colorReset     = "\x1b[0m"
	colorGood      = "\x1b[32m"
	colorAttention = "\x1b[33m"
	colorHeading   = "\x1b[1m"
)

const fieldLabelWidth = 16

// field is one "label  value" line of the status report.
type field struct {
	label string
	value string
	tone  tone
}

func quiet(label, value string) field     { return field{label: label, value: value} }
func good(label, value string) field      { return field{label: label, value: value, tone: toneGood} }
func attention(label, value string) field { return field{label: label, value: value, tone: toneAttention} }

// renderSection renders a titled block of fields. Attention fields carry a
// trailing "!" so they stand out without colour too.
func renderSection(title string, fields []field, colorize bool) []string {
	heading := strings.ToUpper(strings.TrimSpace(title))
	if colorize {
		heading = colorHeading + heading + colorReset
	}
	lines := []string{heading}
	for _, f := range fields {
		lines = append(lines, renderField(f, colorize))
	}
	return lines
}

func renderField(f field, colorize bool) string {
	value := f.value
	if value == "" {
		value = "-"
	}
	if f.tone == toneAttention {
		value += " !"
	}
	if colorize {
		switch f.tone {
		case toneGood:
			value = colorGood + value + colorReset
		case toneAttention:
			value = colorAttention + value + colorReset
		}
	}
	return fmt.Sprintf("  %-*s %s", fieldLabelWidth, f.label, value)
}

func isTerminal(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// writeJSON encodes v as indented JSON to the command's stdout. Tags and
// transcript previews are mostly Cyrillic, so HTML escaping is off.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
