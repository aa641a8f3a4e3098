package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

var (
	colorRed    = color.New(color.FgRed)
	colorGreen  = color.New(color.FgGreen)
	colorYellow = color.New(color.FgYellow)
	colorBlue   = color.New(color.FgBlue)
	colorGray   = color.New(color.FgHiBlack)
)

const indent = "  "

// printer writes prefixed status lines for humans. Structured logs go to the
// logger; this is only terminal output.
type printer struct {
	w io.Writer
}

var out = &printer{w: color.Output}

func (p *printer) Infof(msg string, v ...any) {
	fmt.Fprintf(p.w, "%s%s %s", indent, colorBlue.Sprint("•"), fmt.Sprintf(msg, v...))
}

func (p *printer) Successf(msg string, v ...any) {
	fmt.Fprintf(p.w, "%s%s %s", indent, colorGreen.Sprint("✔"), fmt.Sprintf(msg, v...))
}

func (p *printer) Warnf(msg string, v ...any) {
	fmt.Fprintf(p.w, "%s%s %s", indent, colorYellow.Sprint("•"), fmt.Sprintf(msg, v...))
}

func (p *printer) Errorf(msg string, v ...any) {
	fmt.Fprintf(p.w, "%s%s %s", indent, colorRed.Sprint("⨯"), fmt.Sprintf(msg, v...))
}

func (p *printer) Plainf(msg string, v ...any) {
	fmt.Fprintf(p.w, "%s%s %s", indent, colorGray.Sprint("•"), fmt.Sprintf(msg, v...))
}
