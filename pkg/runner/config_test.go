package runner

import (
	"context"
	"os/exec"
	"reflect"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

type fakeTool struct{}

func (fakeTool) Name() string          { return "fake" }
func (fakeTool) BinaryName() string    { return "fake" }
func (fakeTool) ValidModels() []string { return []string{"big", "small"} }
func (fakeTool) DefaultModel() string  { return "big" }
func (fakeTool) FallbackModel() string { return "small" }
func (fakeTool) BuildCommand(ctx context.Context, req Request) *exec.Cmd {
	return exec.CommandContext(ctx, "true")
}
func (fakeTool) ParseJSONResponse(data []byte) (string, error) { return string(data), nil }
func (fakeTool) SecurityWarning() []string                     { return nil }

func TestParseMode(t *testing.T) {
	tests := []struct {
		in   string
		want Mode
	}{
		{"text", ModeText},
		{"json", ModeJSON},
		{"stream", ModeStream},
		{"", ModeText},
		{"bogus", ModeText},
	}
	for _, tt := range tests {
		if got := ParseMode(tt.in); got != tt.want {
			t.Errorf("ParseMode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestConfig_ModeFor(t *testing.T) {
	cfg := NewConfig()
	if got := cfg.ModeFor(ModeText); got != ModeText {
		t.Errorf("ModeFor(text) without --stream = %q, want text", got)
	}

	cfg.Stream = true
	if got := cfg.ModeFor(ModeText); got != ModeStream {
		t.Errorf("ModeFor(text) with --stream = %q, want stream", got)
	}
	if got := cfg.ModeFor(ModeJSON); got != ModeJSON {
		t.Errorf("ModeFor(json) with --stream = %q, want json", got)
	}
}

func TestConfig_Skipped(t *testing.T) {
	cfg := NewConfig()
	cfg.Skip[SkipTests] = true

	if !cfg.Skipped(SkipTests) {
		t.Error("expected tests to be skipped")
	}
	if cfg.Skipped(SkipReview) {
		t.Error("review should not be skipped")
	}
	if cfg.Skipped("") {
		t.Error("empty skip flag must never match")
	}
}

func TestConfig_SkipList(t *testing.T) {
	cfg := NewConfig()
	cfg.Skip[SkipReview] = true
	cfg.Skip[SkipTests] = true
	cfg.Skip["other"] = false

	want := []string{"review", "tests"}
	if got := cfg.SkipList(); !reflect.DeepEqual(got, want) {
		t.Errorf("SkipList() = %v, want %v", got, want)
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := NewConfig()
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for empty model")
	}

	cfg.Model = "big"
	cfg.Cooldown = -time.Second
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for negative cooldown")
	}

	cfg.Cooldown = 15 * time.Second
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateModel(t *testing.T) {
	if err := ValidateModel(fakeTool{}, "big"); err != nil {
		t.Errorf("ValidateModel(big) = %v, want nil", err)
	}
	err := ValidateModel(fakeTool{}, "huge")
	if err == nil {
		t.Fatal("expected error for unknown model")
	}
	if !strings.Contains(err.Error(), "big, small") {
		t.Errorf("error should list known models, got: %v", err)
	}
}

func TestConfig_WithWorkDir(t *testing.T) {
	c := NewConfig()
	c.Model = "big"
	c.Skip[SkipTests] = true

	d := c.WithWorkDir("/tmp/out")
	if d.WorkDir != "/tmp/out" || d.Model != "big" || !d.Skipped(SkipTests) {
		t.Errorf("WithWorkDir copy = %+v", d)
	}
	if c.WorkDir != "" {
		t.Errorf("WithWorkDir modified the original: WorkDir = %q", c.WorkDir)
	}
}

func TestTruncateTask(t *testing.T) {
	short := "build a todo app"
	if got := TruncateTask(short); got != short {
		t.Errorf("TruncateTask(%q) = %q", short, got)
	}

	long := strings.Repeat("word ", 30)
	got := TruncateTask(long)
	if len(got) != MaxDisplayTaskLen {
		t.Errorf("len(TruncateTask(long)) = %d, want %d", len(got), MaxDisplayTaskLen)
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("TruncateTask(long) = %q, want ... suffix", got)
	}

	if got := TruncateTask("multi\nline\tdesc"); got != "multi line desc" {
		t.Errorf("TruncateTask collapses whitespace, got %q", got)
	}

	accented := strings.Repeat("é", 60)
	got = TruncateTask(accented)
	if !utf8.ValidString(got) {
		t.Errorf("TruncateTask split a rune: %q", got)
	}
	if n := utf8.RuneCountInString(got); n != MaxDisplayTaskLen {
		t.Errorf("TruncateTask(accented) has %d runes, want %d", n, MaxDisplayTaskLen)
	}
}
