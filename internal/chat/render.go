package chat

import (
	"github.com/pterm/pterm"
)

// Print renders a line to the terminal, colored by kind.
func Print(l Line) {
	ts := pterm.Gray(l.At.Format("15:04:05"))

	switch l.Kind {
	case KindGlobal:
		name := pterm.Cyan(l.From)
		if l.From == SelfLabel {
			name = pterm.Green(l.From)
		}
		pterm.Printfln("%s %s: %s", ts, name, l.Text)
	case KindWhisperFrom:
		pterm.Printfln("%s %s", ts, pterm.Magenta(l.String()))
	case KindWhisperTo:
		pterm.Printfln("%s %s", ts, pterm.LightMagenta(l.String()))
	default:
		pterm.Printfln("%s %s", ts, pterm.Yellow(l.String()))
	}
}
