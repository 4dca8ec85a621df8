package calibrate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hkuds/prompthandler/internal/session"
)

// wordCounter charges one token per content word and nothing for framing.
type wordCounter struct{}

func (wordCounter) Count(messages []session.Message, model string) (int, error) {
	n := 0
	for _, m := range messages {
		n += len(strings.Fields(m.Content))
	}
	return n, nil
}

type failingCounter struct{ err error }

func (c failingCounter) Count([]session.Message, string) (int, error) { return 0, c.err }

// fakeCompleter returns canned summaries in order and records requests.
type fakeCompleter struct {
	replies      []string
	err          error
	requests     [][]session.Message
	temperatures []*float64
}

func (f *fakeCompleter) Complete(ctx context.Context, messages []session.Message, temperature *float64) (Completion, error) {
	f.requests = append(f.requests, messages)
	f.temperatures = append(f.temperatures, temperature)
	if f.err != nil {
		return Completion{}, f.err
	}
	if len(f.replies) == 0 {
		return Completion{}, errors.New("no more replies")
	}
	reply := f.replies[0]
	f.replies = f.replies[1:]
	return Completion{Text: reply, TokenUsage: len(strings.Fields(reply))}, nil
}

func words(n int) string {
	return strings.TrimSpace(strings.Repeat("w ", n))
}

func newHistory(head []int, body []int) *session.History {
	h := session.NewHistory()
	for _, n := range head {
		h.AddSystem(words(n), true)
	}
	for _, n := range body {
		h.AddUser(words(n), false)
	}
	return h
}

func TestCalibrateTruncate(t *testing.T) {
	h := newHistory(nil, []int{5, 4, 3})
	c := New(h, wordCounter{}, nil, Options{Model: "m"})

	if err := c.Calibrate(context.Background(), 10, PolicyTruncate); err != nil {
		t.Fatalf("Calibrate() error = %v", err)
	}

	body := h.Body()
	if len(body) != 2 {
		t.Fatalf("Body() len = %d, want 2", len(body))
	}
	if body[0].Content != words(4) || body[1].Content != words(3) {
		t.Errorf("Body() = %+v, want the two newest messages", body)
	}
	u, _ := c.Measure()
	if u.Total >= 10 {
		t.Errorf("Total = %d, want < 10", u.Total)
	}
}

func TestCalibrateTruncateKeepsHead(t *testing.T) {
	h := newHistory([]int{3}, []int{4, 4, 4, 4})
	c := New(h, wordCounter{}, nil, Options{})

	if err := c.Calibrate(context.Background(), 8, PolicyTruncate); err != nil {
		t.Fatalf("Calibrate() error = %v", err)
	}
	if len(h.Head()) != 1 {
		t.Errorf("Head() len = %d, want 1", len(h.Head()))
	}
	if len(h.Body()) != 1 {
		t.Errorf("Body() len = %d, want 1", len(h.Body()))
	}
}

func TestCalibrateTruncateEmptiesBody(t *testing.T) {
	// head 5 + any body message >= budget 6
	h := newHistory([]int{5}, []int{2, 3})
	c := New(h, wordCounter{}, nil, Options{})

	if err := c.Calibrate(context.Background(), 6, PolicyTruncate); err != nil {
		t.Fatalf("Calibrate() error = %v", err)
	}
	if len(h.Body()) != 0 {
		t.Errorf("Body() len = %d, want 0", len(h.Body()))
	}
}

func TestCalibrateHeadBudgetExceeded(t *testing.T) {
	for _, policy := range []Policy{PolicyTruncate, PolicySummarize} {
		t.Run(string(policy), func(t *testing.T) {
			h := newHistory([]int{10}, []int{1, 2})
			completer := &fakeCompleter{replies: []string{"x"}}
			c := New(h, wordCounter{}, completer, Options{})

			err := c.Calibrate(context.Background(), 10, policy)
			if !errors.Is(err, ErrHeadBudgetExceeded) {
				t.Fatalf("Calibrate() error = %v, want ErrHeadBudgetExceeded", err)
			}
			if len(h.Body()) != 2 {
				t.Errorf("Body() len = %d, want body left unmodified", len(h.Body()))
			}
			if len(completer.requests) != 0 {
				t.Error("completer should not be called when the head is over budget")
			}
		})
	}
}

func TestCalibrateIdempotent(t *testing.T) {
	h := newHistory([]int{2}, []int{5, 4, 3, 6})
	c := New(h, wordCounter{}, nil, Options{})

	if err := c.Calibrate(context.Background(), 12, PolicyTruncate); err != nil {
		t.Fatalf("first Calibrate() error = %v", err)
	}
	before := h.MergedView()

	if err := c.Calibrate(context.Background(), 12, PolicyTruncate); err != nil {
		t.Fatalf("second Calibrate() error = %v", err)
	}
	after := h.MergedView()

	if len(before) != len(after) {
		t.Fatalf("second Calibrate() changed history: %d -> %d messages", len(before), len(after))
	}
	for i := range before {
		if before[i] != after[i] {
			t.Errorf("message %d changed: %+v -> %+v", i, before[i], after[i])
		}
	}
}

func TestCalibrateUnderBudgetIsNoop(t *testing.T) {
	h := newHistory([]int{1}, []int{1, 1})
	completer := &fakeCompleter{}
	c := New(h, wordCounter{}, completer, Options{})

	if err := c.Calibrate(context.Background(), 100, PolicySummarize); err != nil {
		t.Fatalf("Calibrate() error = %v", err)
	}
	if len(completer.requests) != 0 {
		t.Error("completer called for a history under budget")
	}
	if len(h.Body()) != 2 {
		t.Errorf("Body() len = %d, want 2", len(h.Body()))
	}
}

func TestCalibrateSummarize(t *testing.T) {
	h := newHistory([]int{2}, []int{5, 5, 5})
	completer := &fakeCompleter{replies: []string{"short summary"}}
	c := New(h, wordCounter{}, completer, Options{SummaryPrompt: "Summarize this conversation"})

	if err := c.Calibrate(context.Background(), 10, PolicySummarize); err != nil {
		t.Fatalf("Calibrate() error = %v", err)
	}

	body := h.Body()
	if len(body) != 1 {
		t.Fatalf("Body() len = %d, want 1", len(body))
	}
	if body[0].Role != session.RoleSystem || body[0].Content != "short summary" {
		t.Errorf("Body()[0] = %+v, want system summary", body[0])
	}

	if len(completer.requests) != 1 {
		t.Fatalf("completer calls = %d, want 1", len(completer.requests))
	}
	req := completer.requests[0]
	if len(req) != 4 {
		t.Fatalf("summary request len = %d, want body plus instruction", len(req))
	}
	last := req[len(req)-1]
	if last.Role != session.RoleSystem || last.Content != "Summarize this conversation" {
		t.Errorf("summary instruction = %+v", last)
	}
	for _, m := range req {
		if m.Content == words(2) {
			t.Error("summary request must cover the body only, not the head")
		}
	}
	if len(h.Head()) != 1 {
		t.Error("summarize must keep the head")
	}
}

func TestCalibrateSummarizeTemperature(t *testing.T) {
	zero := 0.0
	tests := []struct {
		name string
		temp *float64
	}{
		{"configured", &zero},
		{"unset", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHistory(nil, []int{6, 6})
			completer := &fakeCompleter{replies: []string{"short"}}
			c := New(h, wordCounter{}, completer, Options{Temperature: tt.temp})

			if err := c.Calibrate(context.Background(), 10, PolicySummarize); err != nil {
				t.Fatalf("Calibrate() error = %v", err)
			}
			if got := completer.temperatures[0]; got != tt.temp {
				t.Errorf("summary temperature = %v, want %v", got, tt.temp)
			}
		})
	}
}

func TestCalibrateSummarizeSecondPass(t *testing.T) {
	h := newHistory(nil, []int{6, 6})
	completer := &fakeCompleter{replies: []string{words(9), words(2)}}
	c := New(h, wordCounter{}, completer, Options{})

	if err := c.Calibrate(context.Background(), 8, PolicySummarize); err != nil {
		t.Fatalf("Calibrate() error = %v", err)
	}
	if len(completer.requests) != 2 {
		t.Errorf("completer calls = %d, want 2", len(completer.requests))
	}
	if got := h.Body()[0].Content; got != words(2) {
		t.Errorf("Body()[0] = %q, want second summary", got)
	}
}

func TestCalibrateSummarizeDoesNotConverge(t *testing.T) {
	tests := []struct {
		name    string
		replies []string
		passes  int
	}{
		{
			name:    "summary grows",
			replies: []string{words(11), words(20)},
		},
		{
			name:    "pass limit",
			replies: []string{words(11), words(10), words(9)},
			passes:  2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHistory(nil, []int{6, 6})
			completer := &fakeCompleter{replies: tt.replies}
			c := New(h, wordCounter{}, completer, Options{MaxSummaryPasses: tt.passes})

			err := c.Calibrate(context.Background(), 8, PolicySummarize)
			if !errors.Is(err, ErrDidNotConverge) {
				t.Fatalf("Calibrate() error = %v, want ErrDidNotConverge", err)
			}
		})
	}
}

func TestCalibrateSummarizeFailureLeavesBody(t *testing.T) {
	bridgeErr := errors.New("rate limited")
	h := newHistory([]int{1}, []int{5, 5})
	before := h.Body()
	completer := &fakeCompleter{err: bridgeErr}
	c := New(h, wordCounter{}, completer, Options{})

	err := c.Calibrate(context.Background(), 8, PolicySummarize)
	if !errors.Is(err, bridgeErr) {
		t.Fatalf("Calibrate() error = %v, want the completer error", err)
	}

	after := h.Body()
	if len(after) != len(before) {
		t.Fatalf("Body() len = %d, want %d", len(after), len(before))
	}
	for i := range before {
		if before[i] != after[i] {
			t.Errorf("body message %d changed after a failed summary", i)
		}
	}
}

func TestCalibrateSummarizeEmptySummary(t *testing.T) {
	h := newHistory(nil, []int{5, 5})
	completer := &fakeCompleter{replies: []string{"   "}}
	c := New(h, wordCounter{}, completer, Options{})

	if err := c.Calibrate(context.Background(), 8, PolicySummarize); err == nil {
		t.Fatal("Calibrate() with an empty summary should fail")
	}
	if len(h.Body()) != 2 {
		t.Errorf("Body() len = %d, want body left unmodified", len(h.Body()))
	}
}

func TestCalibrateSummarizeWithoutCompleter(t *testing.T) {
	h := newHistory(nil, []int{5, 5})
	c := New(h, wordCounter{}, nil, Options{})

	if err := c.Calibrate(context.Background(), 8, PolicySummarize); err == nil {
		t.Fatal("Calibrate(summarize) without a completer should fail")
	}
}

func TestCalibrateInvalidArguments(t *testing.T) {
	c := New(session.NewHistory(), wordCounter{}, nil, Options{})

	if err := c.Calibrate(context.Background(), 0, PolicyTruncate); !errors.Is(err, ErrInvalidBudget) {
		t.Errorf("Calibrate(budget 0) error = %v, want ErrInvalidBudget", err)
	}
	if err := c.Calibrate(context.Background(), 10, Policy("compress")); !errors.Is(err, ErrUnknownPolicy) {
		t.Errorf("Calibrate(compress) error = %v, want ErrUnknownPolicy", err)
	}
}

func TestCalibrateCounterError(t *testing.T) {
	countErr := errors.New("unsupported model")
	h := newHistory(nil, []int{5})
	c := New(h, failingCounter{err: countErr}, nil, Options{})

	if err := c.Calibrate(context.Background(), 10, PolicyTruncate); !errors.Is(err, countErr) {
		t.Errorf("Calibrate() error = %v, want the counter error", err)
	}
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{"truncate", PolicyTruncate, false},
		{"summarize", PolicySummarize, false},
		{"summary", PolicySummarize, false},
		{" Truncate ", PolicyTruncate, false},
		{"drop", "", true},
	}
	for _, tt := range tests {
		got, err := ParsePolicy(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePolicy(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParsePolicy(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
