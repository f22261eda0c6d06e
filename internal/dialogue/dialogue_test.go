package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	memmock "github.com/MrWong99/talkbuddy/pkg/memory/mock"
	"github.com/MrWong99/talkbuddy/pkg/provider/llm"
	llmmock "github.com/MrWong99/talkbuddy/pkg/provider/llm/mock"
	"github.com/MrWong99/talkbuddy/pkg/types"
)

// scripted answers replies and extraction calls separately.
func scripted(reply func(n int) string, extraction string) *llmmock.Provider {
	n := 0
	return &llmmock.Provider{ReplyFunc: func(req llm.CompletionRequest) (string, error) {
		if req.SystemPrompt == DefaultExtractionPrompt {
			return extraction, nil
		}
		n++
		return reply(n), nil
	}}
}

func TestFormatSystemPrompt(t *testing.T) {
	t.Parallel()
	if got := FormatSystemPrompt("base", nil, 600); got != "base" {
		t.Errorf("no facts: got %q", got)
	}
	got := FormatSystemPrompt("base", []string{"Name is Ana", " likes tea "}, 600)
	want := "base\nKNOWN FACTS ABOUT USER:\n- Name is Ana\n- likes tea"
	if got != want {
		t.Errorf("got = %q, want %q", got, want)
	}
}

func TestFormatSystemPrompt_BoundsInjection(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("x", 300)
	facts := []string{long, long, "short fact"}
	got := FormatSystemPrompt("", facts, 600)
	if n := len([]rune(got)); n > 600 {
		t.Errorf("injected block = %d runes, want <= 600", n)
	}
	if strings.Count(got, long) != 1 {
		t.Errorf("want exactly one long fact, got %d", strings.Count(got, long))
	}
	if !strings.Contains(got, "- short fact") {
		t.Error("short fact should still fit")
	}
	if got := FormatSystemPrompt("base", []string{strings.Repeat("y", 700)}, 600); got != "base" {
		t.Errorf("oversized only fact: got %q, want base unchanged", got)
	}
}

func TestParseExtraction(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"STORE: Works as a nurse", "Works as a nurse", true},
		{"  STORE:Lives in Pune \n", "Lives in Pune", true},
		{"STORE:   ", "", false},
		{"IGNORE", "", false},
		{"store: lowercase is not accepted", "", false},
		{"I think STORE: this", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseExtraction(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseExtraction(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestNew_RequiresProvider(t *testing.T) {
	t.Parallel()
	if _, err := New(nil); err == nil {
		t.Error("New(nil) err = nil, want error")
	}
}

func TestReply_InjectsRecalledFacts(t *testing.T) {
	t.Parallel()
	mem := &memmock.LongTerm{RecallResult: []string{"Name is Ana", "Works as a nurse"}}
	p := scripted(func(int) string { return "Nice to hear that!" }, "IGNORE")
	c, err := New(p, WithMemory(mem))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got, err := c.Reply(context.Background(), "What is my job?")
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if got != "Nice to hear that!" {
		t.Errorf("reply = %q", got)
	}

	calls := p.Calls()
	if len(calls) != 2 {
		t.Fatalf("llm calls = %d, want 2 (reply + extraction)", len(calls))
	}
	sys := calls[0].Req.SystemPrompt
	if !strings.HasPrefix(sys, DefaultSystemPrompt) || !strings.Contains(sys, "\nKNOWN FACTS ABOUT USER:\n- Name is Ana\n- Works as a nurse") {
		t.Errorf("system prompt = %q", sys)
	}
	if got := mem.CallCount("Recall"); got != 1 {
		t.Errorf("Recall calls = %d, want 1", got)
	}
	if len(mem.StoredTexts()) != 0 {
		t.Errorf("stored = %v, want none for IGNORE", mem.StoredTexts())
	}
}

func TestReply_StoresExtractedFact(t *testing.T) {
	t.Parallel()
	mem := &memmock.LongTerm{}
	p := scripted(func(int) string { return "Great sentence." }, "STORE: Works as a nurse")
	c, _ := New(p, WithMemory(mem))

	if _, err := c.Reply(context.Background(), "I work as a nurse."); err != nil {
		t.Fatalf("Reply: %v", err)
	}
	stored := mem.StoredTexts()
	if len(stored) != 1 || stored[0] != "Works as a nurse" {
		t.Errorf("stored = %v, want [Works as a nurse]", stored)
	}
	extraction := p.Calls()[1].Req
	if len(extraction.Messages) != 1 || extraction.Messages[0].Content != "I work as a nurse." {
		t.Errorf("extraction messages = %+v", extraction.Messages)
	}
}

func TestReply_HistoryCappedAtSixMessages(t *testing.T) {
	t.Parallel()
	p := scripted(func(n int) string { return fmt.Sprintf("reply %d", n) }, "IGNORE")
	c, _ := New(p)

	for i := 1; i <= 5; i++ {
		if _, err := c.Reply(context.Background(), fmt.Sprintf("turn %d", i)); err != nil {
			t.Fatalf("Reply %d: %v", i, err)
		}
	}
	h := c.History()
	if len(h) != 6 {
		t.Fatalf("history len = %d, want 6", len(h))
	}
	if h[0].Content != "turn 3" || h[0].Role != types.RoleUser {
		t.Errorf("oldest retained = %+v, want user turn 3", h[0])
	}
	if h[5].Content != "reply 5" || h[5].Role != types.RoleAssistant {
		t.Errorf("newest = %+v, want assistant reply 5", h[5])
	}

	// Without memory no extraction call happens: one call per turn.
	calls := p.Calls()
	if len(calls) != 5 {
		t.Fatalf("llm calls = %d, want 5", len(calls))
	}
	last := calls[4].Req.Messages
	if len(last) != 7 || last[6].Content != "turn 5" {
		t.Errorf("last request messages = %d (want 6 history + 1 user)", len(last))
	}

	c.Reset()
	if len(c.History()) != 0 {
		t.Error("history not cleared by Reset")
	}
}

func TestReply_MemoryFailuresDoNotFailReply(t *testing.T) {
	t.Parallel()
	mem := &memmock.LongTerm{RecallErr: errors.New("db down"), StoreErr: errors.New("db down")}
	p := scripted(func(int) string { return "Still here." }, "STORE: something")
	c, _ := New(p, WithMemory(mem))

	got, err := c.Reply(context.Background(), "Hello")
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if got != "Still here." {
		t.Errorf("reply = %q", got)
	}
	if sys := p.Calls()[0].Req.SystemPrompt; sys != DefaultSystemPrompt {
		t.Errorf("system prompt = %q, want no facts", sys)
	}
}

func TestReply_LLMErrorLeavesHistoryUntouched(t *testing.T) {
	t.Parallel()
	boom := errors.New("rate limited")
	c, _ := New(&llmmock.Provider{Err: boom})

	if _, err := c.Reply(context.Background(), "Hello"); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if len(c.History()) != 0 {
		t.Errorf("history = %v, want empty", c.History())
	}
}

func TestReply_ExtractionDisabled(t *testing.T) {
	t.Parallel()
	mem := &memmock.LongTerm{}
	p := scripted(func(int) string { return "ok" }, "STORE: x")
	c, _ := New(p, WithMemory(mem), WithMemoryExtraction(false))
	if _, err := c.Reply(context.Background(), "I love hiking."); err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if n := len(p.Calls()); n != 1 {
		t.Errorf("llm calls = %d, want 1", n)
	}
}

func TestReply_RejectsEmptyText(t *testing.T) {
	t.Parallel()
	c, _ := New(&llmmock.Provider{})
	if _, err := c.Reply(context.Background(), "   "); err == nil {
		t.Error("err = nil, want error")
	}
}
