package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/Dahimi/File-Search-POC/internal/chat"
	"github.com/Dahimi/File-Search-POC/internal/ingestion"
	"github.com/Dahimi/File-Search-POC/internal/stores"
)

var (
	successColor = color.New(color.FgGreen)
	errorColor   = color.New(color.FgRed)
	warnColor    = color.New(color.FgYellow)
	headingColor = color.New(color.FgCyan, color.Bold)
	dimColor     = color.New(color.Faint)
)

func printStore(w io.Writer, s *stores.Store) {
	headingColor.Fprintln(w, s.Label())
	fmt.Fprintf(w, "ID:       %s\n", s.ID)
	fmt.Fprintf(w, "Active:   %d\n", s.Active)
	fmt.Fprintf(w, "Pending:  %d\n", s.Pending)
	fmt.Fprintf(w, "Failed:   %d\n", s.Failed)
	fmt.Fprintf(w, "Size:     %s\n", humanBytes(s.SizeBytes))
	if s.CreateTime != "" {
		fmt.Fprintf(w, "Created:  %s\n", s.CreateTime)
	}
	if s.UpdateTime != "" {
		fmt.Fprintf(w, "Updated:  %s\n", s.UpdateTime)
	}
}

func printUpload(w io.Writer, r *ingestion.Result) {
	successColor.Fprintf(w, "Indexed %s", r.DisplayName)
	dimColor.Fprintf(w, " (%s, %s, %d polls, %s)\n", r.MimeType, humanBytes(int64(r.Bytes)), r.Polls, r.Duration.Round(time.Millisecond))
}

// printAnswer writes the answer, then its sources and, when asked, the
// model's reasoning.
func printAnswer(w io.Writer, r *chat.Result, showThinking bool) {
	if showThinking && r.Reasoning != nil {
		dimColor.Fprintln(w, "Thinking:")
		dimColor.Fprintln(w, indent(*r.Reasoning))
		fmt.Fprintln(w)
	}

	if r.Degraded {
		errorColor.Fprintln(w, r.Text)
		return
	}
	fmt.Fprintln(w, r.Text)

	if len(r.Citations) > 0 {
		fmt.Fprintln(w)
		headingColor.Fprintln(w, "Sources:")
		for _, title := range r.Citations {
			fmt.Fprintf(w, "  - %s\n", title)
		}
	}
}

func indent(s string) string {
	return "  " + strings.ReplaceAll(s, "\n", "\n  ")
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
