// Package format renders garbage scan findings.
package format

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"tasarch/internal/garbage"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// WriteFindings writes findings to w in the requested format.
// maxPathWidth caps the path column of the table format; 0 means no cap.
func WriteFindings(w io.Writer, items []garbage.Finding, includeHeader bool, format string, maxPathWidth int) error {
	format = strings.ToLower(format)
	switch format {
	case "", "table":
		return writeFindingsTable(w, items, includeHeader, maxPathWidth)
	case "plain":
		return writeFindingsPlain(w, items, includeHeader)
	case "json":
		return writeFindingsJSON(w, items)
	case "jsonl":
		return writeFindingsJSONL(w, items)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

type findingPayload struct {
	Name    string `json:"name"`
	NameHex string `json:"name_hex"`
	Path    string `json:"path"`
	Value   string `json:"value"`
}

func toPayload(f garbage.Finding) findingPayload {
	return findingPayload{
		Name:    quoteName(f.Name),
		NameHex: hex.EncodeToString(f.Name),
		Path:    displayPath(f.Path),
		Value:   formatValue(f.Value),
	}
}

// quoteName renders raw name bytes with Go escapes so the output stays
// valid text.
func quoteName(name []byte) string {
	return fmt.Sprintf("%q", name)
}

// displayPath returns path as is when it is printable text, and quoted with
// Go escapes when it holds invalid UTF-8, control bytes, quotes or
// backslashes.
func displayPath(path string) string {
	quoted := strconv.Quote(path)
	if quoted[1:len(quoted)-1] == path {
		return path
	}
	return quoted
}

func formatValue(v uint64) string {
	return fmt.Sprintf("0x%x", v)
}

func writeFindingsPlain(w io.Writer, items []garbage.Finding, includeHeader bool) error {
	if includeHeader {
		if _, err := fmt.Fprintln(w, "name\tvalue\tpath"); err != nil {
			return err
		}
	}

	for _, item := range items {
		line := fmt.Sprintf("%s\t%s\t%s", quoteName(item.Name), formatValue(item.Value), displayPath(item.Path))
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func writeFindingsJSON(w io.Writer, items []garbage.Finding) error {
	payloads := make([]findingPayload, 0, len(items))
	for _, item := range items {
		payloads = append(payloads, toPayload(item))
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(payloads)
}

func writeFindingsJSONL(w io.Writer, items []garbage.Finding) error {
	enc := json.NewEncoder(w)
	for _, item := range items {
		if err := enc.Encode(toPayload(item)); err != nil {
			return err
		}
	}
	return nil
}

func writeFindingsTable(w io.Writer, items []garbage.Finding, includeHeader bool, maxPathWidth int) error {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.Style().Options.SeparateHeader = true
	tw.Style().Options.DrawBorder = true

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft, AlignHeader: text.AlignCenter},
		{Number: 2, Align: text.AlignRight, AlignHeader: text.AlignCenter},
		{Number: 3, Align: text.AlignLeft, AlignHeader: text.AlignCenter, WidthMax: maxPathWidth},
	})

	if includeHeader {
		tw.AppendHeader(table.Row{"Name", "Value", "Path"})
	}

	for _, item := range items {
		tw.AppendRow(table.Row{
			quoteName(item.Name),
			formatValue(item.Value),
			displayPath(item.Path),
		})
	}

	if len(items) == 0 {
		tw.AppendRow(table.Row{"-", "(no nasty files)", "-"})
	}

	_ = tw.Render()
	return nil
}
