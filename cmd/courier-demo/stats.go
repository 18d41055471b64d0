package main

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/casualjim/courier"
	"github.com/charmbracelet/glamour"
	"github.com/k0kubun/pp/v3"
)

func statsMarkdown(stats map[string]courier.Stats) string {
	var sb strings.Builder
	sb.WriteString("## Deliveries\n\n")
	sb.WriteString("| message type | published | delivered | unmatched | faults |\n")
	sb.WriteString("|---|---:|---:|---:|---:|\n")
	for _, key := range slices.Sorted(maps.Keys(stats)) {
		s := stats[key]
		fmt.Fprintf(&sb, "| `%s` | %d | %d | %d | %d |\n", key, s.Published, s.Delivered, s.Unmatched, s.Faults)
	}
	return sb.String()
}

func printStats(w io.Writer, stats map[string]courier.Stats) error {
	glam, err := glamour.NewTermRenderer(glamour.WithAutoStyle())
	if err != nil {
		return err
	}
	out, err := glam.Render(statsMarkdown(stats))
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(w, out)
	return err
}

func dumpStats(stats map[string]courier.Stats) {
	pp.Println(stats)
}
