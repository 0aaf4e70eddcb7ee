package main

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// printBanner draws lines in a box sized to the widest of them, with the
// title centred in its own section.
func printBanner(w io.Writer, title string, lines []string) {
	width := utf8.RuneCountInString(title)
	for _, l := range lines {
		if n := utf8.RuneCountInString(l); n > width {
			width = n
		}
	}
	width += 4

	rule := strings.Repeat("═", width)
	pad := width - utf8.RuneCountInString(title)
	left := pad / 2

	fmt.Fprintln(w)
	fmt.Fprintf(w, "╔%s╗\n", rule)
	fmt.Fprintf(w, "║%s%s%s║\n", strings.Repeat(" ", left), title, strings.Repeat(" ", pad-left))
	fmt.Fprintf(w, "╠%s╣\n", rule)
	for _, l := range lines {
		fmt.Fprintf(w, "║  %s%s║\n", l, strings.Repeat(" ", width-2-utf8.RuneCountInString(l)))
	}
	fmt.Fprintf(w, "╚%s╝\n", rule)
	fmt.Fprintln(w)
}
