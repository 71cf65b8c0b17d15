package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the promptflow banner and version to w.
func PrintBanner(w io.Writer, version string) {
	out := termenv.NewOutput(w)
	lines := []struct{ text, color string }{
		{`                             _    __ _`, "#818cf8"},
		{` _ __  _ __ ___  _ __ ___  _ __ | |_ / _| | _____      __`, "#a78bfa"},
		{`| '_ \| '__/ _ \| '_ ' _ \| '_ \| __| |_| |/ _ \ \ /\ / /`, "#c084fc"},
		{`| |_) | | | (_) | | | | | | |_) | |_|  _| | (_) \ V  V /`, "#e879f9"},
		{`| .__/|_|  \___/|_| |_| |_| .__/ \__|_| |_|\___/ \_/\_/`, "#f472b6"},
		{`|_|                       |_|`, "#fb7185"},
	}
	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, out.String(l.text).Foreground(out.Color(l.color)))
	}
	fmt.Fprintln(w, out.String("  v"+version).Faint())
	fmt.Fprintln(w)
}
