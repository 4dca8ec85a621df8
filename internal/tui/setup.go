// Package tui provides interactive terminal components for prompthandler.
package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/hkuds/prompthandler/internal/calibrate"
	"github.com/hkuds/prompthandler/internal/config"
)

// Provider represents an LLM provider option.
type Provider string

const (
	ProviderOpenAI     Provider = "openai"
	ProviderOpenRouter Provider = "openrouter"
	ProviderGroq       Provider = "groq"
	ProviderVLLM       Provider = "vllm"
)

// ModelOptions lists the models whose token accounting is supported.
var ModelOptions = []string{
	"gpt-3.5-turbo-0613",
	"gpt-3.5-turbo-0301",
}

// Styles for the setup wizard.
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginBottom(1)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			MarginBottom(1)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("82")).
			Bold(true)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2)
)

// SetupState holds the answers collected by the setup wizard.
type SetupState struct {
	Provider       Provider
	APIKey         string
	BaseURL        string
	Model          string
	ServedModel    string
	Budget         string
	Calibration    string
	SystemPrompt   string
	ConfigTelegram bool
	TelegramToken  string
	TelegramUsers  string
	Confirmed      bool
}

// RunSetup runs the interactive setup wizard and saves the result to path
// (the default config path when empty).
func RunSetup(path string) (*config.Config, error) {
	state := &SetupState{
		BaseURL:     "http://localhost:8000/v1",
		Model:       ModelOptions[0],
		Budget:      "4096",
		Calibration: string(calibrate.PolicySummarize),
	}

	steps := []struct {
		name string
		run  func(*SetupState) error
	}{
		{"provider", runProviderStep},
		{"credentials", runCredentialsStep},
		{"conversation", runConversationStep},
		{"channels", runChannelsStep},
		{"confirmation", runConfirmationStep},
	}
	for _, step := range steps {
		if err := step.run(state); err != nil {
			return nil, fmt.Errorf("%s step failed: %w", step.name, err)
		}
	}

	if !state.Confirmed {
		return nil, fmt.Errorf("setup cancelled by user")
	}

	cfg, err := buildConfigFromState(state)
	if err != nil {
		return nil, err
	}

	if err := config.SaveConfig(cfg, path); err != nil {
		return nil, fmt.Errorf("failed to save config: %w", err)
	}

	if path == "" {
		path = config.GetConfigPath()
	}
	fmt.Println(successStyle.Render("\n✓ Configuration saved successfully!"))
	fmt.Println(subtitleStyle.Render("Config file: " + path))

	return cfg, nil
}

func runProviderStep(state *SetupState) error {
	welcome := boxStyle.Render(
		titleStyle.Render("prompthandler setup") + "\n\n" +
			"Configure the completion provider and the token budget.\n" +
			"You can always edit the configuration later at:\n" +
			subtitleStyle.Render(config.GetConfigPath()),
	)
	fmt.Println(welcome)
	fmt.Println()

	var provider string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Select your LLM provider").
				Description("Any OpenAI-compatible chat completions endpoint").
				Options(
					huh.NewOption("OpenAI", string(ProviderOpenAI)),
					huh.NewOption("OpenRouter", string(ProviderOpenRouter)),
					huh.NewOption("Groq", string(ProviderGroq)),
					huh.NewOption("vLLM / local server", string(ProviderVLLM)),
				).
				Value(&provider),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	state.Provider = Provider(provider)
	return nil
}

func runCredentialsStep(state *SetupState) error {
	if state.Provider == ProviderVLLM {
		return huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Server base URL").
					Description("The OpenAI-compatible endpoint of your server").
					Placeholder("http://localhost:8000/v1").
					Value(&state.BaseURL).
					Validate(required("base URL")),
				huh.NewInput().
					Title("API key (optional)").
					EchoMode(huh.EchoModePassword).
					Value(&state.APIKey),
				servedModelInput(state),
			),
		).Run()
	}

	fields := []huh.Field{
		huh.NewInput().
			Title(fmt.Sprintf("Enter your %s API key", state.Provider)).
			Description("Your API key will be stored locally and never shared").
			EchoMode(huh.EchoModePassword).
			Value(&state.APIKey).
			Validate(required("API key")),
	}
	if state.Provider != ProviderOpenAI {
		fields = append(fields, servedModelInput(state))
	}
	return huh.NewForm(huh.NewGroup(fields...)).Run()
}

// servedModelInput asks for the model id the provider should serve. Token
// accounting still follows the conversation model.
func servedModelInput(state *SetupState) *huh.Input {
	return huh.NewInput().
		Title(fmt.Sprintf("Model served by %s (optional)", state.Provider)).
		Description("Leave empty for the provider's default model").
		Value(&state.ServedModel)
}

func runConversationStep(state *SetupState) error {
	models := make([]huh.Option[string], len(ModelOptions))
	for i, m := range ModelOptions {
		models[i] = huh.NewOption(m, m)
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Model").
				Description("Token counts follow this model's accounting").
				Options(models...).
				Value(&state.Model),
			huh.NewInput().
				Title("Token budget").
				Description("Maximum tokens for the system prompts plus the dialogue").
				Value(&state.Budget).
				Validate(func(s string) error {
					_, err := parseBudget(s)
					return err
				}),
			huh.NewSelect[string]().
				Title("When over budget").
				Options(
					huh.NewOption("Summarize older turns", string(calibrate.PolicySummarize)),
					huh.NewOption("Drop the oldest turns", string(calibrate.PolicyTruncate)),
				).
				Value(&state.Calibration),
			huh.NewText().
				Title("System prompt (optional)").
				Description("Kept at the start of every conversation and never evicted").
				Value(&state.SystemPrompt),
		),
	).Run()
}

func runChannelsStep(state *SetupState) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Configure Telegram?").
				Description("Serve conversations through a Telegram bot").
				Value(&state.ConfigTelegram),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	if !state.ConfigTelegram {
		return nil
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Telegram Bot Token").
				Description("Get this from @BotFather on Telegram").
				Placeholder("123456789:ABCdefGHIjklMNOpqrsTUVwxyz").
				EchoMode(huh.EchoModePassword).
				Value(&state.TelegramToken).
				Validate(required("bot token")),
			huh.NewInput().
				Title("Allowed User IDs").
				Description("Comma-separated Telegram user IDs or usernames").
				Placeholder("123456789, alice").
				Value(&state.TelegramUsers).
				Validate(required("at least one user")),
		),
	).Run()
}

func runConfirmationStep(state *SetupState) error {
	fmt.Println(boxStyle.Render(buildSummary(state)))
	fmt.Println()

	return huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save this configuration?").
				Affirmative("Yes, save").
				Negative("No, cancel").
				Value(&state.Confirmed),
		),
	).Run()
}

func buildSummary(state *SetupState) string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render("Configuration Summary"))
	sb.WriteString("\n\n")

	sb.WriteString(fmt.Sprintf("Provider: %s\n", successStyle.Render(string(state.Provider))))
	if state.Provider == ProviderVLLM {
		sb.WriteString(fmt.Sprintf("Base URL: %s\n", state.BaseURL))
	}
	sb.WriteString(fmt.Sprintf("Model: %s\n", state.Model))
	if served := strings.TrimSpace(state.ServedModel); served != "" {
		sb.WriteString(fmt.Sprintf("Served model: %s\n", served))
	}
	sb.WriteString(fmt.Sprintf("Budget: %s tokens (%s)\n", state.Budget, state.Calibration))
	if state.SystemPrompt != "" {
		sb.WriteString("System prompt: set\n")
	}

	sb.WriteString("\n")
	if state.ConfigTelegram {
		sb.WriteString(fmt.Sprintf("Telegram: %s\n", successStyle.Render("enabled")))
	} else {
		sb.WriteString(fmt.Sprintf("Telegram: %s\n", subtitleStyle.Render("disabled")))
	}

	return sb.String()
}

// buildConfigFromState creates a Config from the setup answers.
func buildConfigFromState(state *SetupState) (*config.Config, error) {
	cfg := config.DefaultConfig()

	budget, err := parseBudget(state.Budget)
	if err != nil {
		return nil, err
	}
	policy, err := calibrate.ParsePolicy(state.Calibration)
	if err != nil {
		return nil, err
	}

	cfg.Conversation.Model = state.Model
	cfg.Conversation.MaxTokens = budget
	cfg.Conversation.Calibration = string(policy)
	cfg.Conversation.SystemPrompt = strings.TrimSpace(state.SystemPrompt)
	cfg.Conversation.CompletionModel = strings.TrimSpace(state.ServedModel)

	apiKey := strings.TrimSpace(state.APIKey)
	switch state.Provider {
	case ProviderOpenAI:
		cfg.Providers.OpenAI.APIKey = apiKey
	case ProviderOpenRouter:
		cfg.Providers.OpenRouter.APIKey = apiKey
	case ProviderGroq:
		cfg.Providers.Groq.APIKey = apiKey
	case ProviderVLLM:
		cfg.Providers.VLLM.APIBase = strings.TrimSpace(state.BaseURL)
		cfg.Providers.VLLM.APIKey = apiKey
	default:
		return nil, fmt.Errorf("unknown provider: %s", state.Provider)
	}

	if state.ConfigTelegram {
		cfg.Channels.Telegram.Enabled = true
		cfg.Channels.Telegram.Token = strings.TrimSpace(state.TelegramToken)
		for _, u := range strings.Split(state.TelegramUsers, ",") {
			if u = strings.TrimSpace(u); u != "" {
				cfg.Channels.Telegram.AllowFrom = append(cfg.Channels.Telegram.AllowFrom, u)
			}
		}
	}

	return cfg, nil
}

func parseBudget(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("budget must be a positive number of tokens")
	}
	return n, nil
}

func required(what string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", what)
		}
		return nil
	}
}
