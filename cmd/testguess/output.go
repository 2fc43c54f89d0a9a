// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

var (
	colorTeal  = lipgloss.Color("#2CD7C7")
	colorSlate = lipgloss.Color("#2C4A54")
	colorError = lipgloss.Color("#E74C3C")
)

// styles holds the lipgloss styles for one output stream.
type styles struct {
	Title lipgloss.Style
	Key   lipgloss.Style
	On    lipgloss.Style
	Off   lipgloss.Style
	Error lipgloss.Style
}

// printer writes command output, styled only when w is a terminal.
type printer struct {
	w      io.Writer
	styled bool
	s      styles
}

func newPrinter(w io.Writer) *printer {
	p := &printer{w: w, styled: isTerminal(w)}
	if p.styled {
		r := lipgloss.NewRenderer(w)
		p.s = styles{
			Title: r.NewStyle().Bold(true).Foreground(colorTeal),
			Key:   r.NewStyle().Foreground(colorSlate).Width(24),
			On:    r.NewStyle().Bold(true).Foreground(colorTeal),
			Off:   r.NewStyle().Foreground(colorSlate),
			Error: r.NewStyle().Foreground(colorError),
		}
	}
	return p
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (p *printer) render(style lipgloss.Style, s string) string {
	if !p.styled {
		return s
	}
	return style.Render(s)
}

func (p *printer) title(s string) {
	fmt.Fprintln(p.w, p.render(p.s.Title, s))
}

// field prints one key/value row. Plain output is tab separated.
func (p *printer) field(key, value string) {
	if p.styled {
		fmt.Fprintln(p.w, p.s.Key.Render(key)+value)
		return
	}
	fmt.Fprintf(p.w, "%s\t%s\n", key, value)
}

func (p *printer) flag(name string, on bool) {
	value := "0"
	style := p.s.Off
	if on {
		value = "1"
		style = p.s.On
	}
	p.field(name, p.render(style, value))
}

func (p *printer) warn(s string) {
	fmt.Fprintln(p.w, p.render(p.s.Error, s))
}
