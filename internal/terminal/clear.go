// Package terminal provides small terminal helpers for prompt cleanup.
package terminal

import (
	"fmt"
	"math"
	"os"

	"golang.org/x/term"
)

// ClearPreviousLines clears previously printed text from the terminal. It
// calculates how many lines the text wrapped to at the current terminal
// width, then moves up and clears each one. Used to scrub connection URLs
// from the screen after they have been typed at a prompt.
func ClearPreviousLines(textLength int) {
	termWidth := 80 // fallback when not attached to a terminal
	if width, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && width > 0 {
		termWidth = width
	}

	totalLines := int(math.Ceil(float64(textLength) / float64(termWidth)))
	if totalLines < 1 {
		totalLines = 1
	}

	// After Enter the cursor sits on a fresh line below the input; clear
	// that one too.
	linesToClear := totalLines + 1

	for i := 0; i < linesToClear; i++ {
		fmt.Print("\r\x1b[2K")
		if i < linesToClear-1 {
			fmt.Print("\x1b[1A")
		}
	}
}
