// Package color colors human-readable CLI output.
//
// Styles render through a lipgloss renderer bound to standard output, so
// color is dropped when stdout is not a terminal. NO_COLOR
// (https://no-color.org/) and --no-color force plain text.
package color

import (
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

var state struct {
	once     sync.Once
	renderer *lipgloss.Renderer
}

// Init binds the renderer to stdout once. NO_COLOR and noColorFlag both
// disable color.
func Init(noColorFlag bool) {
	state.once.Do(func() {
		r := lipgloss.NewRenderer(os.Stdout)
		if _, noColor := os.LookupEnv("NO_COLOR"); noColor || noColorFlag {
			r.SetColorProfile(termenv.Ascii)
		}
		state.renderer = r
	})
}

func render(style func(lipgloss.Style) lipgloss.Style, s string) string {
	Init(false)
	return style(state.renderer.NewStyle()).Render(s)
}

func fg(c string) func(lipgloss.Style) lipgloss.Style {
	return func(st lipgloss.Style) lipgloss.Style { return st.Foreground(lipgloss.Color(c)) }
}

// Success formats a success message in green.
func Success(s string) string { return render(fg("2"), s) }

// Error formats an error message in red.
func Error(s string) string { return render(fg("1"), s) }

// Warning formats a warning message in yellow.
func Warning(s string) string { return render(fg("3"), s) }

// Info formats an informational message in cyan.
func Info(s string) string { return render(fg("6"), s) }

// Dim formats secondary information.
func Dim(s string) string { return render(fg("8"), s) }

// Header formats a header in bold.
func Header(s string) string {
	return render(func(st lipgloss.Style) lipgloss.Style { return st.Bold(true) }, s)
}

// Severity colors a doctor finding severity.
func Severity(sev string) string {
	switch sev {
	case "critical", "error":
		return Error(sev)
	case "warning":
		return Warning(sev)
	case "info":
		return Info(sev)
	default:
		return sev
	}
}
