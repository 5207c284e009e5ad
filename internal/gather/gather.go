// Package gather defines the progress sink the batch driver reports to
// while it works through submissions.
package gather

import "time"

// Stats summarizes one batch run.
type Stats struct {
	Submissions int64
	Notes       int64
	UnpackFails int64
	Duration    time.Duration
}

// Gatherer receives batch progress events. Implementations must tolerate
// concurrent FinishSubmission calls when the driver runs with multiple jobs.
type Gatherer interface {
	StartBatch(runID string, total int)
	StartSubmission(fullName string)
	FinishSubmission(fullName string, score int, noteCount int)
	FinishBatch(reportPath string, stats Stats)
}

// Discard is a no-op Gatherer.
type Discard struct{}

func (Discard) StartBatch(string, int)            {}
func (Discard) StartSubmission(string)            {}
func (Discard) FinishSubmission(string, int, int) {}
func (Discard) FinishBatch(string, Stats)         {}

// Multi fans every event out to all wrapped gatherers in order.
type Multi []Gatherer

func (m Multi) StartBatch(runID string, total int) {
	for _, g := range m {
		g.StartBatch(runID, total)
	}
}

func (m Multi) StartSubmission(fullName string) {
	for _, g := range m {
		g.StartSubmission(fullName)
	}
}

func (m Multi) FinishSubmission(fullName string, score int, noteCount int) {
	for _, g := range m {
		g.FinishSubmission(fullName, score, noteCount)
	}
}

func (m Multi) FinishBatch(reportPath string, stats Stats) {
	for _, g := range m {
		g.FinishBatch(reportPath, stats)
	}
}
