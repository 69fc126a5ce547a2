// Package ui holds the terminal styles shared by CLI commands.
package ui

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/steveyegge/treewatch/internal/events"
)

var (
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#1E66F5", Dark: "#89B4FA"}).Bold(true)
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#40A02B", Dark: "#A6E3A1"})
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#DF8E1D", Dark: "#F9E2AF"})
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#D20F39", Dark: "#F38BA8"}).Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#8C8FA1", Dark: "#6C7086"})
)

// actionStyles colors event kinds by their unscoped action.
var actionStyles = map[events.Action]lipgloss.Style{
	events.Watched:  mutedStyle,
	events.Created:  passStyle,
	events.Updated:  accentStyle.UnsetBold(),
	events.Modified: accentStyle,
	events.Moved:    warnStyle,
	events.Deleted:  failStyle,
	events.Gone:     failStyle.UnsetBold(),
}

func init() {
	if os.Getenv("NO_COLOR") != "" {
		DisableColor()
	}
}

// DisableColor turns styling off, e.g. when output is piped.
func DisableColor() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// TerminalWidth returns the width of w, or fallback when w is not a terminal.
func TerminalWidth(w io.Writer, fallback int) int {
	f, ok := w.(*os.File)
	if !ok {
		return fallback
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return fallback
	}
	return width
}

// RenderAccent highlights headings and icons.
func RenderAccent(s string) string { return accentStyle.Render(s) }

// RenderPass marks success.
func RenderPass(s string) string { return passStyle.Render(s) }

// RenderWarn marks warnings.
func RenderWarn(s string) string { return warnStyle.Render(s) }

// RenderFail marks errors.
func RenderFail(s string) string { return failStyle.Render(s) }

// RenderMuted dims secondary text.
func RenderMuted(s string) string { return mutedStyle.Render(s) }

// RenderKind renders a kind name in its action's color, padded to the
// longest kind name so paths line up.
func RenderKind(k events.Kind) string {
	style, ok := actionStyles[k.Action()]
	if !ok {
		style = mutedStyle
	}
	return style.Width(KindWidth).Render(k.String())
}

// KindWidth is the length of the longest kind name.
const KindWidth = len("file_modified")
