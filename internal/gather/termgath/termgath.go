// Package termgath prints batch progress to the terminal.
package termgath

import (
	"fmt"
	"time"

	"github.com/fatih/color"

	"github.com/programme-lv/unpacker/internal/gather"
)

type TerminalGatherer struct {
	startedAt time.Time
}

func New() *TerminalGatherer { return &TerminalGatherer{startedAt: time.Now()} }

func (t *TerminalGatherer) StartBatch(runID string, total int) {
	fmt.Printf("== Unpacking %d submissions (run %s) ==\n", total, runID)
}

func (t *TerminalGatherer) StartSubmission(fullName string) {
	fmt.Printf("-> %s\n", fullName)
}

func (t *TerminalGatherer) FinishSubmission(fullName string, score int, noteCount int) {
	if noteCount == 0 {
		color.New(color.FgGreen).Printf("<- %s: clean\n", fullName)
		return
	}
	color.New(color.FgYellow).Printf("<- %s: %d notes (score %d)\n", fullName, noteCount, score)
}

func (t *TerminalGatherer) FinishBatch(reportPath string, stats gather.Stats) {
	dur := time.Since(t.startedAt).Round(time.Millisecond)
	fmt.Printf("== Done in %s: %d submissions, %d notes, %d unpack failures ==\n",
		dur, stats.Submissions, stats.Notes, stats.UnpackFails)
	fmt.Printf("Report written to %s\n", reportPath)
}
