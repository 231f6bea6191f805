// Package ui renders the live watcher status table in the terminal.
package ui

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/farshadfahimi/sellerbot/internal/watcher"
)

// ANSI escape codes
const (
	ClearLine   = "\033[2K"
	MoveToStart = "\r"
	HideCursor  = "\033[?25l"
	ShowCursor  = "\033[?25h"
	ColorReset  = "\033[0m"
	ColorGreen  = "\033[32m"
	ColorRed    = "\033[31m"
	ColorYellow = "\033[33m"
	ColorCyan   = "\033[36m"
	ColorDim    = "\033[2m"
	ColorBold   = "\033[1m"
)

// StatusUI redraws a per-watcher progress table in place. Only useful on an
// interactive terminal; callers should check IsTerminal first.
type StatusUI struct {
	width  int
	height int

	// Track lines printed for cleanup
	linesPrinted int
}

// IsTerminal reports whether stdout is an interactive terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// NewStatusUI creates a status display sized to the current terminal.
func NewStatusUI() *StatusUI {
	width, height := getTerminalSize()
	return &StatusUI{width: width, height: height}
}

// Start initializes the UI
func (ui *StatusUI) Start() {
	fmt.Print(HideCursor)
	fmt.Println()
}

// Stop cleans up the UI
func (ui *StatusUI) Stop() {
	fmt.Print(ShowCursor)
	fmt.Println()
}

// Render draws the watcher table, overwriting the previous frame.
func (ui *StatusUI) Render(statuses []watcher.Status) {
	if ui.linesPrinted > 0 {
		fmt.Printf("\033[%dA", ui.linesPrinted)
	}

	var lines []string
	lines = append(lines, fmt.Sprintf("%s%-34s %-10s %-10s %12s %12s %8s  %s%s",
		ColorBold, "WATCHER", "PHASE", "STATE", "TARGET", "SOLD", "PENDING", "PROGRESS", ColorReset))

	for _, st := range statuses {
		lines = append(lines, ui.renderRow(st))
	}

	for _, line := range lines {
		fmt.Print(ClearLine)
		fmt.Println(line)
	}
	ui.linesPrinted = len(lines)
}

func (ui *StatusUI) renderRow(st watcher.Status) string {
	stateColor := ColorCyan
	switch st.State {
	case watcher.StateCompleted:
		stateColor = ColorGreen
	case watcher.StateStopped:
		stateColor = ColorRed
	case watcher.StateRunning:
		stateColor = ColorYellow
	}

	return fmt.Sprintf("%-34s %-10s %s%-10s%s %12d %12d %8d  %s",
		truncateKey(st.Key, 34),
		st.Phase.String(),
		stateColor, st.State.String(), ColorReset,
		st.Target,
		st.SoldSoFar,
		st.PendingOrders,
		progressBar(st.SoldSoFar, st.Target, 20),
	)
}

// progressBar renders sold/target as a fixed-width bar.
func progressBar(sold, target int64, width int) string {
	if target <= 0 {
		return ColorDim + strings.Repeat("░", width) + ColorReset
	}
	ratio := float64(sold) / float64(target)
	if ratio > 1 {
		ratio = 1
	}
	filled := int(ratio * float64(width))
	return fmt.Sprintf("%s%s%s%s %.1f%%",
		ColorGreen, strings.Repeat("█", filled),
		strings.Repeat("░", width-filled), ColorReset,
		ratio*100,
	)
}

func truncateKey(key string, max int) string {
	if len(key) <= max {
		return key
	}
	return key[:max-3] + "..."
}

// getTerminalSize returns terminal dimensions
func getTerminalSize() (width, height int) {
	width, height, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 80, 24 // Default
	}
	return width, height
}

// ProgressLine prints a single updating progress line
func ProgressLine(current, total int, message string) {
	progress := float64(current) / float64(total) * 100
	fmt.Printf("%s%s[%d/%d] %.1f%% - %s", ClearLine, MoveToStart, current, total, progress, message)
}
