package main

import (
	"bufio"
	"fmt"
	"os"
	"runtime"

	"golang.org/x/term"
)

// interactiveSelect lets the user move through lines with arrow keys. Enter
// shows the parcel and offers to put it on the map, Space toggles it
// directly. It expects len(ids)==len(lines).
func interactiveSelect(ids []string, lines []string) {
	if len(ids) == 0 {
		return
	}

	if runtime.GOOS == "windows" {
		enableVT()
	}

	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		fmt.Println("(interactive selection not supported on this terminal)")
		return
	}
	defer term.Restore(fd, oldState)

	reader := bufio.NewReader(os.Stdin)

	selected := 0

	redraw := func() {
		// Clear screen (ANSI reset to top + clear screen)
		fmt.Print("\033[H\033[2J")
		for i := range lines {
			if p, ok := ws.Catalog().Get(ids[i]); ok {
				lines[i] = parcelLine(p)
			}
		}
		for i, l := range lines {
			prefix := "  "
			if i == selected {
				prefix = "> "
			}
			fmt.Println(prefix + l)
		}
		fmt.Println("(↑/↓ to navigate, Enter for details, Space to toggle on map, Esc to quit)")
	}

	redraw()

	for {
		b1, err := reader.ReadByte()
		if err != nil {
			return
		}
		// Handle Windows console arrow sequences (0 or 224, then code)
		if b1 == 0 || b1 == 224 {
			b2, _ := reader.ReadByte()
			switch b2 {
			case 72: // up
				if selected > 0 {
					selected--
					redraw()
				}
			case 80: // down
				if selected < len(ids)-1 {
					selected++
					redraw()
				}
			case 13: // Enter
				term.Restore(fd, oldState)
				if oldState, err = showDetails(fd, ids[selected]); err != nil {
					return
				}
				reader = bufio.NewReader(os.Stdin)
				redraw()
			}
			continue
		}

		switch b1 {
		case 27: // ESC or ANSI sequence
			if reader.Buffered() == 0 {
				// Bare ESC – exit
				fmt.Println()
				return
			}
			b2, _ := reader.ReadByte()
			if b2 != '[' {
				// Not a CSI sequence; ignore unknown combo
				continue
			}
			if reader.Buffered() == 0 {
				continue
			}
			b3, _ := reader.ReadByte()
			switch b3 {
			case 'A': // up
				if selected > 0 {
					selected--
					redraw()
				}
			case 'B': // down
				if selected < len(ids)-1 {
					selected++
					redraw()
				}
			}
		case '\r', '\n': // Enter
			term.Restore(fd, oldState) // restore cooked mode before rendering details
			if oldState, err = showDetails(fd, ids[selected]); err != nil {
				return
			}
			reader = bufio.NewReader(os.Stdin)
			redraw()
		case ' ':
			id := ids[selected]
			if !ws.Deselect(id) {
				_, _ = ws.Select(id)
			}
			redraw()
		case 3: // Ctrl-C
			fmt.Println()
			return

		default:
			// ignore other keys
		}
	}
}

// showDetails renders a parcel in cooked mode, asks whether to add it and
// puts the terminal back into raw mode.
func showDetails(fd int, id string) (*term.State, error) {
	fmt.Println()
	reader := bufio.NewReader(os.Stdin)
	if p, ok := ws.Catalog().Get(id); ok {
		renderParcel(p)
		askSelect(id, reader)
	}

	// Wait for user acknowledgement before returning to list
	fmt.Print("\n(press Enter to return)")
	_, _ = reader.ReadBytes('\n')

	return term.MakeRaw(fd)
}
