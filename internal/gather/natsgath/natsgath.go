// Package natsgath streams batch progress events to a NATS subject so an
// external dashboard can follow long grading runs.
package natsgath

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/programme-lv/unpacker/internal/gather"
)

type natsGatherer struct {
	nc      *nats.Conn
	subject string

	mu    sync.Mutex
	runID string
}

// New creates a NATS gatherer publishing to the given subject. Publish
// failures are logged, never fatal; losing a progress event must not lose
// a grading run.
func New(nc *nats.Conn, subject string) *natsGatherer {
	return &natsGatherer{nc: nc, subject: subject}
}

func (g *natsGatherer) send(msg interface{}) {
	b, err := json.Marshal(msg)
	if err != nil {
		slog.Error("failed to marshal progress event", "error", err)
		return
	}
	if err := g.nc.Publish(g.subject, b); err != nil {
		slog.Error("failed to publish progress event to NATS", "error", err)
	}
}

func (g *natsGatherer) currentRunID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.runID
}

func (g *natsGatherer) StartBatch(runID string, total int) {
	g.mu.Lock()
	g.runID = runID
	g.mu.Unlock()

	g.send(struct {
		MsgType string `json:"msg_type"`
		RunID   string `json:"run_id"`
		Total   int    `json:"total"`
	}{MsgType: "started_batch", RunID: runID, Total: total})
}

func (g *natsGatherer) StartSubmission(fullName string) {
	g.send(struct {
		MsgType  string `json:"msg_type"`
		RunID    string `json:"run_id"`
		FullName string `json:"full_name"`
	}{MsgType: "started_submission", RunID: g.currentRunID(), FullName: fullName})
}

func (g *natsGatherer) FinishSubmission(fullName string, score int, noteCount int) {
	g.send(struct {
		MsgType  string `json:"msg_type"`
		RunID    string `json:"run_id"`
		FullName string `json:"full_name"`
		Score    int    `json:"score"`
		Notes    int    `json:"notes"`
	}{MsgType: "finished_submission", RunID: g.currentRunID(), FullName: fullName, Score: score, Notes: noteCount})
}

func (g *natsGatherer) FinishBatch(reportPath string, stats gather.Stats) {
	g.send(struct {
		MsgType     string `json:"msg_type"`
		RunID       string `json:"run_id"`
		ReportPath  string `json:"report_path"`
		Submissions int64  `json:"submissions"`
		Notes       int64  `json:"notes"`
		UnpackFails int64  `json:"unpack_fails"`
		DurationMs  int64  `json:"duration_ms"`
	}{
		MsgType:     "finished_batch",
		RunID:       g.currentRunID(),
		ReportPath:  reportPath,
		Submissions: stats.Submissions,
		Notes:       stats.Notes,
		UnpackFails: stats.UnpackFails,
		DurationMs:  stats.Duration.Milliseconds(),
	})
}
