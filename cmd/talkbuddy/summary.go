package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/MrWong99/talkbuddy/internal/config"
)

// ── Startup summary ───────────────────────────────────────────────────────────

type summaryStyles struct {
	title  lipgloss.Style
	label  lipgloss.Style
	dim    lipgloss.Style
	ok     lipgloss.Style
	border lipgloss.Style
}

var styles = summaryStyles{
	title:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00ff9f")),
	label:  lipgloss.NewStyle().Bold(true).Width(14),
	dim:    lipgloss.NewStyle().Foreground(lipgloss.Color("#6e7681")),
	ok:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00ff9f")),
	border: lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#00ff9f")).Padding(0, 1),
}

func cmdOut() io.Writer { return os.Stdout }

func printStartupSummary(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, renderSummary(cfg))
}

func renderSummary(cfg *config.Config) string {
	rows := [][2]string{
		{"LLM", providerValue(cfg.Providers.LLM, len(cfg.Providers.LLMFallbacks))},
		{"STT", providerValue(cfg.Providers.STT, len(cfg.Providers.STTFallbacks))},
		{"Embeddings", providerValue(cfg.Providers.Embeddings, 0)},
		{"Verifier", providerValue(cfg.Providers.Verifier, 0)},
		{"Memory", memoryValue(cfg.Memory)},
		{"Profiles", string(cfg.Profile.Backend) + " " + cfg.Profile.Path},
		{"Threshold", fmt.Sprintf("%.2f", cfg.Verification.Threshold)},
		{"Workers", fmt.Sprintf("%d", cfg.Workers.Concurrency)},
		{"Listen addr", cfg.Server.ListenAddr},
	}

	var b strings.Builder
	b.WriteString(styles.title.Render("TalkBuddy startup summary"))
	for _, r := range rows {
		b.WriteString("\n")
		b.WriteString(styles.label.Render(r[0]))
		if r[1] == "" {
			b.WriteString(styles.dim.Render("(not configured)"))
			continue
		}
		b.WriteString(r[1])
	}
	return styles.border.Render(b.String())
}

func providerValue(e config.ProviderEntry, fallbacks int) string {
	if e.Name == "" {
		return ""
	}
	v := e.Name
	if e.Model != "" {
		v += " / " + e.Model
	}
	if fallbacks > 0 {
		v += fmt.Sprintf(" (+%d fallback)", fallbacks)
	}
	return v
}

func memoryValue(m config.MemoryConfig) string {
	switch m.Backend {
	case config.MemoryNone, "":
		return ""
	case config.MemorySQLite:
		return "sqlite " + m.Path
	default:
		return string(m.Backend)
	}
}
