package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/yangwenmai/storyteller/internal/model"
)

const (
	ansiReset  = "\x1b[0m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
)

func shouldColorize(writer io.Writer) bool {
	f, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func paint(s, color string, colorize bool) string {
	if !colorize || color == "" {
		return s
	}
	return color + s + ansiReset
}

// formatAge renders a stored timestamp as "3 minutes ago". Unparseable values
// are printed unchanged.
func formatAge(stamp string, now time.Time) string {
	t, err := time.Parse(time.RFC3339Nano, stamp)
	if err != nil {
		return stamp
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

func formatTags(values []string) string {
	if len(values) == 0 {
		return "-"
	}
	return strings.Join(values, ", ")
}

func pinnedLabel(pinned bool, colorize bool) string {
	if !pinned {
		return ""
	}
	return paint("pinned", ansiGreen, colorize)
}

func writeItems(w io.Writer, items []model.Item) {
	rows := make([][]string, 0, len(items))
	for i, it := range items {
		header := ""
		if it.IsHeader {
			header = "*"
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", i+1),
			it.SourceName,
			it.MIMEType,
			humanize.Bytes(uint64(max(it.SizeBytes, 0))),
			header,
		})
	}
	fmt.Fprintln(w, renderTable(
		[]string{"#", "Photo", "Type", "Size", "Header"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft},
	))
}

func writeDraft(w io.Writer, draft model.MomentDraft, colorize bool) {
	fmt.Fprintln(w, paint(draft.Title, ansiGreen, colorize))
	fmt.Fprintln(w)
	fmt.Fprintln(w, draft.Story)
	fmt.Fprintln(w)
	location := draft.PrimaryLocation
	if location == "" {
		location = "-"
	}
	fmt.Fprintf(w, "Location:   %s\n", location)
	fmt.Fprintf(w, "People:     %s\n", formatTags(draft.People))
	fmt.Fprintf(w, "Activities: %s\n", formatTags(draft.Activities))
	fmt.Fprintf(w, "Photos:     %d\n", draft.PhotoCount)
}
