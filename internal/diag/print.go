package diag

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

var (
	errColor  = color.New(color.FgRed, color.Bold)
	warnColor = color.New(color.FgYellow, color.Bold)
	infoColor = color.New(color.FgCyan)
)

// Fprint renders one diagnostic per line:
//
//	<piece>: <SEV> <ID>: <message> [(target <name>)]
//
// Call bag.Sort() first for deterministic order. Color is applied to the
// severity tag only, and only when useColor is set.
func Fprint(w io.Writer, bag *Bag, useColor bool) {
	if bag == nil {
		return
	}
	for _, d := range bag.Items() {
		fmt.Fprintln(w, formatLine(d, useColor))
	}
}

func formatLine(d Diagnostic, useColor bool) string {
	sev := d.Severity.String()
	if useColor {
		switch d.Severity {
		case SevError:
			sev = errColor.Sprint(sev)
		case SevWarning:
			sev = warnColor.Sprint(sev)
		case SevInfo:
			sev = infoColor.Sprint(sev)
		}
	}
	scope := d.Piece
	if scope == "" {
		scope = "<input>"
	}
	line := fmt.Sprintf("%s: %s %s: %s", scope, sev, d.Code.ID(), d.Message)
	if d.Target != "" {
		line += fmt.Sprintf(" (target %s)", d.Target)
	}
	return line
}
