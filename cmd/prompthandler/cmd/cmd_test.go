package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hkuds/prompthandler/internal/calibrate"
	"github.com/hkuds/prompthandler/internal/config"
	"github.com/hkuds/prompthandler/internal/handler"
	"github.com/hkuds/prompthandler/internal/providers"
	"github.com/hkuds/prompthandler/internal/session"
)

func TestParseConversation(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantMsgs  int
		wantHead  int
		wantError bool
	}{
		{"array", `[{"role":"system","content":"a"},{"role":"user","content":"b","name":"x"}]`, 2, 0, false},
		{"snapshot", `{"head":[{"role":"system","content":"a"}],"body":[],"messages":[{"role":"system","content":"a"}]}`, 1, 1, false},
		{"snapshot without messages", `{"head":[{"role":"system","content":"a"}],"body":[{"role":"user","content":"b"}]}`, 2, 1, false},
		{"stored session", `{"key":"cli:default","createdAt":"2026-01-01T00:00:00Z","head":[],"body":[{"role":"user","content":"b"}],"messages":[{"role":"user","content":"b"}]}`, 1, 0, false},
		{"empty", "  \n", 0, 0, true},
		{"garbage", "{nope", 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap, err := parseConversation([]byte(tt.input))
			if (err != nil) != tt.wantError {
				t.Fatalf("parseConversation() error = %v, wantError %v", err, tt.wantError)
			}
			if err != nil {
				return
			}
			if len(snap.Messages) != tt.wantMsgs || len(snap.Head) != tt.wantHead {
				t.Errorf("messages/head = %d/%d, want %d/%d", len(snap.Messages), len(snap.Head), tt.wantMsgs, tt.wantHead)
			}
		})
	}
}

type wordCounter struct{}

func (wordCounter) Count(messages []session.Message, model string) (int, error) {
	n := 0
	for _, m := range messages {
		n += len(strings.Fields(m.Content))
	}
	return n, nil
}

type replyCompleter struct{ calls int }

func (c *replyCompleter) Complete(ctx context.Context, messages []session.Message, temperature *float64) (calibrate.Completion, error) {
	c.calls++
	return calibrate.Completion{Text: "reply", TokenUsage: 1}, nil
}

func newTestREPL(t *testing.T, peek bool) (*repl, *replyCompleter, *bytes.Buffer, *int) {
	t.Helper()
	c := &replyCompleter{}
	h, err := handler.New(handler.Config{
		Model:        "gpt-3.5-turbo-0613",
		Budget:       100,
		Policy:       calibrate.PolicyTruncate,
		SystemPrompt: "be brief",
	}, wordCounter{}, c)
	if err != nil {
		t.Fatal(err)
	}
	saves := 0
	out := &bytes.Buffer{}
	return &repl{
		h:    h,
		save: func() error { saves++; return nil },
		out:  out,
		peek: peek,
	}, c, out, &saves
}

func TestREPLSession(t *testing.T) {
	r, c, out, saves := newTestREPL(t, false)

	input := strings.Join([]string{
		"hello",
		"/head Answer in French",
		"/tokens",
		"/clear",
		`\break`,
		"never read",
	}, "\n")
	if err := r.run(context.Background(), strings.NewReader(input)); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	// One priming turn over the system prompt, then "hello".
	if c.calls != 2 {
		t.Errorf("completer called %d times, want 2", c.calls)
	}
	if got := len(r.h.History().Head()); got != 2 {
		t.Errorf("head length = %d, want 2 after /head", got)
	}
	if got := len(r.h.History().Body()); got != 0 {
		t.Errorf("body length = %d, want 0 after /clear", got)
	}
	// two turns, /head and /clear
	if *saves != 4 {
		t.Errorf("saves = %d, want 4", *saves)
	}
	text := out.String()
	if !strings.Contains(text, "Assistant:") || !strings.Contains(text, "Goodbye!") {
		t.Errorf("output = %q", text)
	}
}

func TestREPLPeekDoesNotRecord(t *testing.T) {
	r, c, _, saves := newTestREPL(t, true)

	if err := r.run(context.Background(), strings.NewReader("hello\nquit\n")); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if c.calls != 2 {
		t.Errorf("completer called %d times, want 2", c.calls)
	}
	if got := len(r.h.History().Body()); got != 0 {
		t.Errorf("body length = %d, want 0 in peek mode", got)
	}
	if *saves != 0 {
		t.Errorf("saves = %d, want 0 in peek mode", *saves)
	}
}

func TestREPLCommand(t *testing.T) {
	r, _, _, _ := newTestREPL(t, false)

	tests := []struct {
		input       string
		wantQuit    bool
		wantHandled bool
	}{
		{`\break`, true, true},
		{"EXIT", true, true},
		{"/help", false, true},
		{"/dump", false, true},
		{"hello", false, false},
		{"/unknown", false, false},
	}
	for _, tt := range tests {
		quit, handled := r.command(tt.input)
		if quit != tt.wantQuit || handled != tt.wantHandled {
			t.Errorf("command(%q) = %v, %v, want %v, %v", tt.input, quit, handled, tt.wantQuit, tt.wantHandled)
		}
	}
}

func TestOpenSessionStore(t *testing.T) {
	for _, backend := range []string{config.SessionBackendFile, config.SessionBackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.Workspace = t.TempDir()
			cfg.Sessions.Backend = backend

			store, closer, err := openSessionStore(cfg)
			if err != nil {
				t.Fatalf("openSessionStore() error = %v", err)
			}
			defer closer()

			h := session.NewHistory()
			h.AddUser("hi", false)
			if err := store.Save("cli:default", h.Dump()); err != nil {
				t.Fatalf("Save() error = %v", err)
			}
			if _, ok, err := store.Load("cli:default"); err != nil || !ok {
				t.Errorf("Load() = %v, %v, want true, nil", ok, err)
			}
		})
	}

	cfg := config.DefaultConfig()
	cfg.Sessions.Backend = "redis"
	if _, _, err := openSessionStore(cfg); err == nil {
		t.Error("openSessionStore() should reject an unknown backend")
	}
}

func TestNewConversationRequestsProviderModel(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Model string `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		gotModel = body.Model
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"ok"},"finish_reason":"stop"}],"usage":{"total_tokens":3}}`))
	}))
	defer srv.Close()

	tests := []struct {
		provider string
		override string
		want     string
	}{
		{"openai", "", "gpt-3.5-turbo-0613"},
		{"openrouter", "", providers.DefaultOpenRouterModel},
		{"groq", "", providers.DefaultGroqModel},
		{"vllm", "", providers.DefaultVLLMModel},
		{"groq", "llama-3.3-70b-versatile", "llama-3.3-70b-versatile"},
	}
	for _, tt := range tests {
		t.Run(tt.provider+" "+tt.want, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.Workspace = t.TempDir()
			cfg.Conversation.CompletionModel = tt.override
			base := srv.URL + "/v1"
			switch tt.provider {
			case "openai":
				cfg.Providers.OpenAI = config.ProviderConfig{APIKey: "sk-test", APIBase: base}
			case "openrouter":
				cfg.Providers.OpenRouter = config.ProviderConfig{APIKey: "sk-test", APIBase: base}
			case "groq":
				cfg.Providers.Groq = config.ProviderConfig{APIKey: "sk-test", APIBase: base}
			case "vllm":
				cfg.Providers.VLLM = config.ProviderConfig{APIBase: base}
			}

			conv, err := newConversation(cfg, newLogger())
			if err != nil {
				t.Fatalf("newConversation() error = %v", err)
			}
			defer conv.Close()
			if conv.provider.Name() != tt.provider {
				t.Fatalf("provider = %q, want %q", conv.provider.Name(), tt.provider)
			}

			h, err := conv.open("cli:test")
			if err != nil {
				t.Fatalf("open() error = %v", err)
			}
			gotModel = ""
			if _, err := h.Send(context.Background(), "hi", nil); err != nil {
				t.Fatalf("Send() error = %v", err)
			}
			if gotModel != tt.want {
				t.Errorf("model sent = %q, want %q", gotModel, tt.want)
			}
		})
	}
}
