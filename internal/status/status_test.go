package status_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/MrWong99/sereno/internal/status"
)

func TestSetStatus_Redraws(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := status.New(&buf)

	l.SetStatus("Connecting…")
	l.SetStatus("Listening…")

	out := buf.String()
	if n := strings.Count(out, "\r\033[2K"); n != 2 {
		t.Errorf("redraw count = %d, want 2", n)
	}
	if !strings.HasSuffix(out, "Listening…") {
		t.Errorf("last frame = %q, want suffix %q", out, "Listening…")
	}
	if got := l.Text(); got != "Listening…" {
		t.Errorf("Text() = %q, want %q", got, "Listening…")
	}
}

func TestRender_Prefix(t *testing.T) {
	t.Parallel()

	l := status.New(&bytes.Buffer{}, status.WithPrefix("demo"))
	l.SetStatus("hello")
	if got := l.Render(); !strings.Contains(got, "demo ›") || !strings.Contains(got, "hello") {
		t.Errorf("Render() = %q", got)
	}

	l = status.New(&bytes.Buffer{}, status.WithPrefix(""))
	l.SetStatus("hello")
	if got := l.Render(); strings.Contains(got, "›") {
		t.Errorf("Render() = %q, want no prefix", got)
	}
}

func TestSticker_ShowAndHide(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := status.New(&buf)
	l.SetStatus("Listening…")

	l.ShowSticker("wave")
	if got := l.Render(); !strings.Contains(got, "👋") {
		t.Errorf("Render() = %q, want wave glyph", got)
	}
	if got := l.Sticker(); got != "wave" {
		t.Errorf("Sticker() = %q, want %q", got, "wave")
	}

	l.HideSticker()
	if got := l.Render(); strings.Contains(got, "👋") {
		t.Errorf("Render() = %q, want sticker hidden", got)
	}
	if got := l.Sticker(); got != "" {
		t.Errorf("Sticker() = %q, want empty", got)
	}
}

func TestSticker_UnknownName(t *testing.T) {
	t.Parallel()

	l := status.New(&bytes.Buffer{})
	l.ShowSticker("rocket")
	if got := l.Render(); !strings.Contains(got, ":rocket:") {
		t.Errorf("Render() = %q, want :rocket:", got)
	}
}

func TestHideSticker_NoopWithoutSticker(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := status.New(&buf)
	l.HideSticker()
	if buf.Len() != 0 {
		t.Errorf("wrote %q, want nothing", buf.String())
	}
}

func TestRender_TruncatesToTail(t *testing.T) {
	t.Parallel()

	l := status.New(&bytes.Buffer{}, status.WithPrefix(""), status.WithWidth(10))
	l.SetStatus("the quick brown fox jumps")

	got := l.Render()
	if !strings.HasPrefix(got, "…") {
		t.Errorf("Render() = %q, want leading ellipsis", got)
	}
	if !strings.HasSuffix(got, "fox jumps") {
		t.Errorf("Render() = %q, want newest words kept", got)
	}
}

func TestRender_FlattensNewlines(t *testing.T) {
	t.Parallel()

	l := status.New(&bytes.Buffer{}, status.WithPrefix(""))
	l.SetStatus("line one\nline  two")
	if got := l.Render(); got != "line one line two" {
		t.Errorf("Render() = %q, want %q", got, "line one line two")
	}
}

func TestHelp(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := status.New(&buf)
	l.Help("press Enter to talk")
	if got := buf.String(); !strings.Contains(got, "press Enter to talk") || !strings.HasSuffix(got, "\n") {
		t.Errorf("Help wrote %q", got)
	}
}
