package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

var statusStyles = map[statusKind]struct {
	label  string
	colors text.Colors
}{
	statusInfo:  {"INFO", text.Colors{text.FgBlue}},
	statusOK:    {"OK", text.Colors{text.FgGreen}},
	statusWarn:  {"WARN", text.Colors{text.FgYellow}},
	statusError: {"ERROR", text.Colors{text.FgRed}},
}

const statusLabelWidth = 22

// statusPrinter writes labelled status lines, coloured when out is a terminal.
type statusPrinter struct {
	out      io.Writer
	colorize bool
}

func newStatusPrinter(out io.Writer) *statusPrinter {
	return &statusPrinter{out: out, colorize: isTerminal(out)}
}

func (p *statusPrinter) section(title string) {
	heading := "== " + strings.TrimSpace(title) + " =="
	rule := strings.Repeat("-", len(heading))
	fmt.Fprintln(p.out, p.paint(text.Colors{text.FgBlue, text.Bold}, heading))
	fmt.Fprintln(p.out, p.paint(text.Colors{text.FgBlue}, rule))
}

func (p *statusPrinter) line(label string, kind statusKind, message string) {
	style := statusStyles[kind]
	status := "[" + style.label + "]"
	if message != "" {
		status += " " + message
	}
	fmt.Fprintln(p.out, p.paint(style.colors, fmt.Sprintf("  %-*s %s", statusLabelWidth, label+":", status)))
}

func (p *statusPrinter) paint(colors text.Colors, s string) string {
	if !p.colorize {
		return s
	}
	return colors.Sprint(s)
}

func okOr(ok bool, otherwise statusKind) statusKind {
	if ok {
		return statusOK
	}
	return otherwise
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
