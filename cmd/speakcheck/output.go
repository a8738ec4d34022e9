package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/MrWong99/speakcheck/internal/app"
	"github.com/MrWong99/speakcheck/internal/config"
	"github.com/MrWong99/speakcheck/internal/report"
	"github.com/MrWong99/speakcheck/internal/scoring"
)

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "╔═══════════════════════════════════════╗")
	fmt.Fprintln(w, "║       speakcheck - startup summary    ║")
	fmt.Fprintln(w, "╠═══════════════════════════════════════╣")
	printRow(w, "Engine", providerLabel(cfg.Engine.Name, cfg.Engine.Model))
	printRow(w, "Language", cfg.Engine.Language)
	printRow(w, "Audio", cfg.Audio.Source.Name)
	printRow(w, "Silence", fmt.Sprintf("%.3f / %d ms", cfg.VAD.SilenceThreshold, cfg.VAD.SilenceDurationMS))
	printRow(w, "Phrases", fmt.Sprintf("%d", len(cfg.Phrases.List)))
	if cfg.Reports.Path != "" {
		printRow(w, "Reports", cfg.Reports.Path)
	} else {
		printRow(w, "Reports", "(in memory)")
	}
	if cfg.Server.MetricsAddr != "" {
		printRow(w, "Metrics", cfg.Server.MetricsAddr)
	}
	fmt.Fprintln(w, "╚═══════════════════════════════════════╝")
}

func providerLabel(name, model string) string {
	if name == "" {
		return "(not configured)"
	}
	if model != "" {
		return name + " / " + filepath.Base(model)
	}
	return name
}

func printRow(w io.Writer, label, value string) {
	if r := []rune(value); len(r) > 19 {
		value = string(r[:18]) + "…"
	}
	fmt.Fprintf(w, "║  %-12s    : %-19s ║\n", label, value)
}

// ── Attempts ──────────────────────────────────────────────────────────────────

func printPrompt(w io.Writer, phrase string, manual bool) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Read aloud:\n\n    %s\n\n", phrase)
	if manual {
		fmt.Fprintln(w, "Recording… press Ctrl+C when you are done.")
	} else {
		fmt.Fprintln(w, "Recording… stop talking to finish, or press Ctrl+C.")
	}
}

func printAttempt(w io.Writer, att app.Attempt) {
	fmt.Fprintln(w)
	if !att.Scored {
		fmt.Fprintln(w, "No speech detected; nothing to score.")
		return
	}
	fmt.Fprintf(w, "Heard:   %s\n", att.Transcript)
	fmt.Fprintf(w, "Speed:   %d words per minute (%s)\n", att.WPM, att.Elapsed.Round(100*time.Millisecond))
	fmt.Fprintf(w, "Errors:  %.1f%% word error rate\n", att.WER)
	if s := scoring.Summarize(att.Alignment); s.Errors() > 0 {
		fmt.Fprintf(w, "Diff:    %s\n", formatAlignment(att.Alignment))
		fmt.Fprintf(w, "         %d substituted (%d near misses), %d missed, %d extra\n",
			s.Substitutions, s.NearMisses, s.Deletions, s.Insertions)
	}
	if att.WAVPath != "" {
		fmt.Fprintf(w, "Saved:   %s\n", att.WAVPath)
	}
}

// formatAlignment renders ops inline: missed words as [-word], extra words
// as [+word], substitutions as [expected→heard] with ~ for a word that
// sounds alike.
func formatAlignment(ops []scoring.Op) string {
	parts := make([]string, 0, len(ops))
	for _, op := range ops {
		switch op.Kind {
		case scoring.Match:
			parts = append(parts, op.Expected)
		case scoring.Delete:
			parts = append(parts, "[-"+op.Expected+"]")
		case scoring.Insert:
			parts = append(parts, "[+"+op.Got+"]")
		case scoring.Substitute:
			sep := "→"
			if op.SoundsAlike {
				sep = "~"
			}
			parts = append(parts, "["+op.Expected+sep+op.Got+"]")
		}
	}
	return strings.Join(parts, " ")
}

func printHistory(w io.Writer, attempts []report.Attempt) {
	if len(attempts) == 0 {
		fmt.Fprintln(w, "No attempts recorded yet.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "WHEN\tWPM\tWER\tLENGTH\tPHRASE")
	for _, a := range attempts {
		wpm, wer := "-", "-"
		if a.Scored {
			wpm = fmt.Sprintf("%d", a.WPM)
			wer = fmt.Sprintf("%.1f%%", a.WER)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			a.CreatedAt.Local().Format("2006-01-02 15:04"),
			wpm, wer,
			a.Elapsed.Round(100*time.Millisecond),
			a.Phrase,
		)
	}
	_ = tw.Flush()
}

// numbered inserts n before the extension: take.wav → take-2.wav.
func numbered(path string, n int) string {
	ext := filepath.Ext(path)
	return fmt.Sprintf("%s-%d%s", strings.TrimSuffix(path, ext), n, ext)
}
