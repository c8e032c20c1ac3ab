package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"github.com/stfn345/ats-ebp-validator/internal/media"
)

// Format selects the report encoding.
type Format string

// Supported report formats.
const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatTable, FormatJSON:
		return f, nil
	case "":
		return FormatTable, nil
	default:
		return "", fmt.Errorf("report: unknown format %q (want table or json)", s)
	}
}

// ShouldColorize reports whether w is a terminal.
func ShouldColorize(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Write renders r to w.
func Write(w io.Writer, r *Report, format Format, colorize bool) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatTable, "":
		_, err := io.WriteString(w, renderText(r, colorize))
		return err
	default:
		return fmt.Errorf("report: unknown format %q", format)
	}
}

func renderText(r *Report, colorize bool) string {
	var b strings.Builder

	streams := table.NewWriter()
	streams.SetStyle(table.StyleRounded)
	streams.AppendHeader(table.Row{"Source", "Stream", "Column", "Config", "Partitions", "Boundaries", "Result"})
	for _, src := range r.Sources {
		name := fmt.Sprintf("#%d %s", src.Index, src.Name)
		if src.Fatal != "" {
			streams.AppendRow(table.Row{name, "-", "-", "-", "-", "-", verdict(false, colorize) + " " + src.Fatal})
			continue
		}
		for _, st := range src.Streams {
			streams.AppendRow(table.Row{
				name,
				fmt.Sprintf("%s %s 0x%04X", st.Kind, st.Codec, st.PID),
				st.Column,
				st.Config,
				partitionList(st.Partitions),
				humanize.Comma(st.Boundaries),
				verdict(st.Pass, colorize),
			})
		}
	}
	streams.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, AutoMerge: true},
		{Number: 6, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	b.WriteString(streams.Render())
	b.WriteString("\n")

	if len(r.Findings) > 0 {
		findings := table.NewWriter()
		findings.SetStyle(table.StyleRounded)
		findings.AppendHeader(table.Row{"Kind", "Source", "PID", "Partition", "PTS", "Message"})
		for _, f := range r.Findings {
			pid, part, pts := "-", "-", "-"
			if f.PID != 0 {
				pid = fmt.Sprintf("0x%04X", f.PID)
			}
			if f.Partition != NoPartition {
				part = strconv.Itoa(f.Partition)
			}
			if f.PTS != nil {
				pts = fmt.Sprintf("%d (%.3fs)", *f.PTS, media.Seconds(*f.PTS))
			}
			findings.AppendRow(table.Row{f.Kind, f.Source, pid, part, pts, f.Message})
		}
		b.WriteString(findings.Render())
		b.WriteString("\n")
	}

	var total int64
	for _, src := range r.Sources {
		total += src.Bytes
	}
	fmt.Fprintf(&b, "%s  %d sources, %s boundaries, %s findings, %s read in %s\n",
		verdict(r.Pass && !r.Fatal, colorize), len(r.Sources),
		humanize.Comma(int64(len(r.Boundaries))), humanize.Comma(int64(len(r.Findings))),
		humanize.Bytes(uint64(total)), r.Elapsed.Round(time.Millisecond))
	return b.String()
}

func partitionList(ps []PartitionReport) string {
	if len(ps) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(ps))
	for _, p := range ps {
		s := strconv.Itoa(p.ID)
		if p.Implicit {
			s += " <- " + p.Source
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, ", ")
}

func verdict(pass, colorize bool) string {
	label, color := "PASS", text.FgGreen
	if !pass {
		label, color = "FAIL", text.FgRed
	}
	if !colorize {
		return label
	}
	return text.Colors{color, text.Bold}.Sprint(label)
}
