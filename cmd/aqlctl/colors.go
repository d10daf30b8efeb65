package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

var (
	successColor = color.New(color.FgGreen)
	errorColor   = color.New(color.FgRed)
	infoColor    = color.New(color.FgBlue)
	headerColor  = color.New(color.FgCyan, color.Bold)
	dimColor     = color.New(color.Faint)
)

func init() {
	// Colors only on an interactive stderr; NO_COLOR is honored by fatih/color.
	fd := os.Stderr.Fd()
	if !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd) {
		color.NoColor = true
	}
}

// stderr is where status output goes; rows go to the command's stdout.
var stderr io.Writer = os.Stderr

func printSuccess(message string) {
	fmt.Fprintln(stderr, successColor.Sprint("✓")+" "+message)
}

func printError(message string) {
	fmt.Fprintln(stderr, errorColor.Sprint("✗")+" "+message)
}

func printInfo(message string) {
	fmt.Fprintln(stderr, infoColor.Sprint("ℹ")+" "+message)
}

func printHeader(w io.Writer, title string) {
	fmt.Fprintln(w, headerColor.Sprint(title))
	fmt.Fprintln(w, dimColor.Sprint("────────────────────────────────────────"))
}

func printTable(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	for i, h := range headers {
		fmt.Fprintf(w, "%-*s  ", widths[i], h)
	}
	fmt.Fprintln(w)

	for _, row := range rows {
		for i, cell := range row {
			fmt.Fprintf(w, "%-*s  ", widths[i], cell)
		}
		fmt.Fprintln(w)
	}
}
