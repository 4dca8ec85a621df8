package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/hkuds/prompthandler/internal/calibrate"
	"github.com/hkuds/prompthandler/internal/config"
	"github.com/hkuds/prompthandler/internal/session"
)

// Status display styles.
var (
	statusTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("205")).
				MarginBottom(1).
				Padding(0, 1)

	statusBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2).
			Width(64)

	statusSectionStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("39")).
				MarginTop(1)

	statusLabelStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("252")).
				Width(20)

	statusValueStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("255"))

	statusEnabledStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("82")).
				Bold(true)

	statusDisabledStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240"))

	statusWarningStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("214"))

	statusErrorStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("196")).
				Bold(true)
)

// usageBarWidth is the number of cells in the RenderUsage bar.
const usageBarWidth = 30

// ShowStatus prints the current configuration.
func ShowStatus(cfg *config.Config) {
	var sb strings.Builder

	sb.WriteString(statusTitleStyle.Render("prompthandler status"))
	sb.WriteString("\n\n")

	sb.WriteString(statusSectionStyle.Render("Provider"))
	sb.WriteString("\n")
	sb.WriteString(renderProviderStatus(cfg))
	sb.WriteString("\n")

	sb.WriteString(statusSectionStyle.Render("Conversation"))
	sb.WriteString("\n")
	sb.WriteString(renderConversationStatus(cfg))
	sb.WriteString("\n")

	sb.WriteString(statusSectionStyle.Render("Channels"))
	sb.WriteString("\n")
	sb.WriteString(renderChannelsStatus(cfg))
	sb.WriteString("\n")

	sb.WriteString(statusSectionStyle.Render("Workspace"))
	sb.WriteString("\n")
	sb.WriteString(renderStatusRow("Path", statusValueStyle.Render(cfg.WorkspacePath())))

	fmt.Println(statusBoxStyle.Render(sb.String()))
}

func renderProviderStatus(cfg *config.Config) string {
	var sb strings.Builder

	providerName, apiKey, apiBase := cfg.GetActiveProvider()
	if providerName == "" {
		sb.WriteString(renderStatusRow("Status", statusErrorStyle.Render("No provider configured")))
		sb.WriteString(renderStatusRow("", statusWarningStyle.Render("Run 'prompthandler setup' or set "+config.EnvAPIKey)))
		return sb.String()
	}

	sb.WriteString(renderStatusRow("Active", statusEnabledStyle.Render(strings.ToUpper(providerName))))
	if apiBase != "" {
		sb.WriteString(renderStatusRow("API Base", statusValueStyle.Render(apiBase)))
	}
	if apiKey != "" {
		sb.WriteString(renderStatusRow("API Key", statusValueStyle.Render(maskAPIKey(apiKey))))
	}
	return sb.String()
}

func renderConversationStatus(cfg *config.Config) string {
	var sb strings.Builder
	conv := cfg.Conversation

	sb.WriteString(renderStatusRow("Model", statusValueStyle.Render(conv.Model)))
	sb.WriteString(renderStatusRow("Token Budget", statusValueStyle.Render(fmt.Sprintf("%d", conv.MaxTokens))))
	if policy, err := calibrate.ParsePolicy(conv.Calibration); err != nil {
		sb.WriteString(renderStatusRow("Calibration", statusErrorStyle.Render(conv.Calibration+" (invalid)")))
	} else {
		sb.WriteString(renderStatusRow("Calibration", statusValueStyle.Render(policy.String())))
	}
	sb.WriteString(renderStatusRow("Temperature", statusValueStyle.Render(fmt.Sprintf("%.1f", conv.Temperature))))
	if conv.SystemPrompt != "" {
		sb.WriteString(renderStatusRow("System Prompt", statusValueStyle.Render(truncate(conv.SystemPrompt, 36))))
	} else {
		sb.WriteString(renderStatusRow("System Prompt", statusDisabledStyle.Render("none")))
	}
	return sb.String()
}

func renderChannelsStatus(cfg *config.Config) string {
	var sb strings.Builder

	if !cfg.Channels.Telegram.Enabled {
		sb.WriteString(renderStatusRow("Telegram", statusDisabledStyle.Render("disabled")))
		return sb.String()
	}

	sb.WriteString(renderStatusRow("Telegram", statusEnabledStyle.Render("enabled")))
	if len(cfg.Channels.Telegram.AllowFrom) > 0 {
		users := truncate(strings.Join(cfg.Channels.Telegram.AllowFrom, ", "), 30)
		sb.WriteString(renderStatusRow("  Allowed", statusValueStyle.Render(users)))
	} else {
		sb.WriteString(renderStatusRow("  Allowed", statusWarningStyle.Render("nobody (bot will ignore everyone)")))
	}
	return sb.String()
}

// RenderUsage draws a one-line bar of token usage against budget.
func RenderUsage(u calibrate.Usage, budget int) string {
	ratio := 0.0
	if budget > 0 {
		ratio = float64(u.Total) / float64(budget)
	}

	filled := int(ratio * usageBarWidth)
	if filled > usageBarWidth {
		filled = usageBarWidth
	}
	if filled < 0 {
		filled = 0
	}

	style := statusEnabledStyle
	switch {
	case ratio >= 1:
		style = statusErrorStyle
	case ratio >= 0.75:
		style = statusWarningStyle
	}

	bar := style.Render(strings.Repeat("█", filled)) +
		statusDisabledStyle.Render(strings.Repeat("░", usageBarWidth-filled))

	return fmt.Sprintf("%s %s  head %d · body %d",
		bar,
		style.Render(fmt.Sprintf("%d/%d", u.Total, budget)),
		u.Head, u.Body,
	)
}

// RenderSessions renders stored sessions as a table.
func RenderSessions(infos []session.Info) string {
	if len(infos) == 0 {
		return statusDisabledStyle.Render("No sessions stored.")
	}

	rows := make([][]string, 0, len(infos))
	for _, info := range infos {
		rows = append(rows, []string{
			info.Key,
			fmt.Sprintf("%d", info.HeadCount),
			fmt.Sprintf("%d", info.BodyCount),
			info.UpdatedAt.Local().Format("2006-01-02 15:04"),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("62"))).
		Headers("SESSION", "HEAD", "BODY", "UPDATED").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return statusSectionStyle.MarginTop(0).Padding(0, 1)
			}
			return statusValueStyle.Padding(0, 1)
		})

	return t.String()
}

func renderStatusRow(label, value string) string {
	if label == "" {
		return fmt.Sprintf("  %s\n", value)
	}
	return fmt.Sprintf("  %s %s\n", statusLabelStyle.Render(label+":"), value)
}

// maskAPIKey masks an API key for display.
func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
