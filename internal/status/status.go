// Package status renders the session status line in a terminal.
//
// A [Line] implements the session package's Status interface: it keeps the
// latest status text and sticker and redraws a single line on every change.
package status

import (
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Theme defines the colours of the status line.
type Theme struct {
	Primary lipgloss.Color // status text
	Accent  lipgloss.Color // sticker badge
	Dim     lipgloss.Color // prefix and help
}

// DefaultTheme is a calm teal theme.
var DefaultTheme = Theme{
	Primary: lipgloss.Color("#7ee0d2"),
	Accent:  lipgloss.Color("#ffb86c"),
	Dim:     lipgloss.Color("#6e7681"),
}

// Styles holds all styles derived from a theme.
type Styles struct {
	Prefix  lipgloss.Style
	Text    lipgloss.Style
	Sticker lipgloss.Style
	Help    lipgloss.Style
}

// NewStyles creates styles from a theme.
func NewStyles(t Theme) Styles {
	return Styles{
		Prefix:  lipgloss.NewStyle().Bold(true).Foreground(t.Dim),
		Text:    lipgloss.NewStyle().Foreground(t.Primary),
		Sticker: lipgloss.NewStyle().Bold(true).Foreground(t.Accent).Padding(0, 1),
		Help:    lipgloss.NewStyle().Foreground(t.Dim),
	}
}

// stickerGlyphs maps sticker names to the glyph shown in the badge.
var stickerGlyphs = map[string]string{
	"calm":      "🍃",
	"celebrate": "🎉",
	"heart":     "💜",
	"hug":       "🤗",
	"sparkles":  "✨",
	"sun":       "☀️",
	"thinking":  "🤔",
	"wave":      "👋",
}

// Line is a single redrawn terminal status line. It is safe for concurrent
// use.
type Line struct {
	styles Styles
	prefix string
	width  int

	mu      sync.Mutex
	w       io.Writer
	text    string
	sticker string
}

// Option configures a [Line].
type Option func(*Line)

// WithStyles overrides the default styles.
func WithStyles(s Styles) Option {
	return func(l *Line) { l.styles = s }
}

// WithWidth truncates the rendered text to width cells. Zero disables
// truncation.
func WithWidth(width int) Option {
	return func(l *Line) {
		if width >= 0 {
			l.width = width
		}
	}
}

// WithPrefix sets the label rendered before the status text.
func WithPrefix(p string) Option {
	return func(l *Line) { l.prefix = p }
}

// New creates a Line that draws to w.
func New(w io.Writer, opts ...Option) *Line {
	l := &Line{
		styles: NewStyles(DefaultTheme),
		prefix: "sereno",
		w:      w,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// SetStatus replaces the status text and redraws.
func (l *Line) SetStatus(text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.text = text
	l.draw()
}

// ShowSticker shows the named sticker next to the status text.
func (l *Line) ShowSticker(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sticker = name
	l.draw()
}

// HideSticker removes the sticker. It does not redraw when no sticker is
// shown.
func (l *Line) HideSticker() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sticker == "" {
		return
	}
	l.sticker = ""
	l.draw()
}

// Text returns the current status text.
func (l *Line) Text() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.text
}

// Sticker returns the name of the visible sticker, or "".
func (l *Line) Sticker() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sticker
}

// Help writes a dimmed help line followed by a newline.
func (l *Line) Help(text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = io.WriteString(l.w, l.styles.Help.Render(text)+"\n")
}

// Render returns the status line without terminal control sequences.
func (l *Line) Render() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.render()
}

func (l *Line) draw() {
	// Carriage return and erase line, then the new content.
	_, _ = io.WriteString(l.w, "\r\033[2K"+l.render())
}

func (l *Line) render() string {
	var b strings.Builder
	if l.prefix != "" {
		b.WriteString(l.styles.Prefix.Render(l.prefix + " ›"))
		b.WriteByte(' ')
	}

	text := flatten(l.text)
	if l.width > 1 && lipgloss.Width(text) > l.width {
		text = tail(text, l.width-1)
		text = "…" + text
	}
	b.WriteString(l.styles.Text.Render(text))

	if l.sticker != "" {
		glyph, ok := stickerGlyphs[l.sticker]
		if !ok {
			glyph = ":" + l.sticker + ":"
		}
		b.WriteByte(' ')
		b.WriteString(l.styles.Sticker.Render(glyph))
	}
	return b.String()
}

// flatten folds line breaks so the text fits on one terminal line.
func flatten(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// tail returns the last width cells of s. Live transcripts grow at the end,
// so the newest words stay visible.
func tail(s string, width int) string {
	if width <= 0 {
		return ""
	}
	runes := []rune(s)
	currentWidth := 0
	for i := len(runes) - 1; i >= 0; i-- {
		w := lipgloss.Width(string(runes[i]))
		if currentWidth+w > width {
			return string(runes[i+1:])
		}
		currentWidth += w
	}
	return s
}
