package telegram

import (
	"testing"

	"pushwatch/pkg/logx"
)

func TestParseTarget(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in     string
		chat   int64
		thread int
		ok     bool
	}{
		{in: "12345", chat: 12345, ok: true},
		{in: "-1001234/42", chat: -1001234, thread: 42, ok: true},
		{in: " 7 ", chat: 7, ok: true},
		{in: "phone", ok: false},
		{in: "1/x", ok: false},
	}
	for _, tt := range tests {
		chat, thread, err := ParseTarget(tt.in)
		if (err == nil) != tt.ok {
			t.Fatalf("ParseTarget(%q) err = %v, want ok=%v", tt.in, err, tt.ok)
		}
		if tt.ok && (chat != tt.chat || thread != tt.thread) {
			t.Fatalf("ParseTarget(%q) = %d/%d, want %d/%d", tt.in, chat, thread, tt.chat, tt.thread)
		}
	}
}

func TestFormatHTMLEscapes(t *testing.T) {
	t.Parallel()
	got := FormatHTML("PW: <alice>", "[20:00:00] New topic: 5 < 10 & rising")
	want := "<b>PW: &lt;alice&gt;</b>\n[20:00:00] New topic: 5 &lt; 10 &amp; rising"
	if got != want {
		t.Fatalf("FormatHTML() = %q, want %q", got, want)
	}
}

func TestNewRequiresToken(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{}, logx.Nop()); err == nil {
		t.Fatal("expected error for empty token")
	}
}
