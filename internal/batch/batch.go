// Package batch drives a full grading run: stage the bundle, process every
// student submission, write the combined ratings document.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/errgroup"

	"github.com/programme-lv/unpacker/internal/extract"
	"github.com/programme-lv/unpacker/internal/gather"
	"github.com/programme-lv/unpacker/internal/policy"
	"github.com/programme-lv/unpacker/internal/submission"
)

// ReportFilename is the combined feedback document written to the target
// directory.
const ReportFilename = "ratings.rst"

// Options configures one batch run.
type Options struct {
	ConfigPath string
	BundlePath string
	TargetDir  string
	RunID      string

	// Jobs is the number of submissions processed concurrently; values
	// below 2 mean sequential.
	Jobs int
	// ExtractTimeout bounds each external extractor invocation; expiry
	// becomes an unpack-failure note. Zero disables the deadline.
	ExtractTimeout time.Duration

	// Runner defaults to extract.ExecRunner; tests inject fakes.
	Runner   extract.Runner
	Gatherer gather.Gatherer
	Logger   *slog.Logger
}

// Run stages the bundle archive, processes every submission through
// validate, unpack and report rendering, and writes ratings.rst to the
// target directory. Per-submission problems become report notes; only
// catastrophic I/O aborts the run.
func Run(ctx context.Context, opts Options) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	gath := opts.Gatherer
	if gath == nil {
		gath = gather.Discard{}
	}
	runner := opts.Runner
	if runner == nil {
		runner = extract.ExecRunner{}
	}

	pol, err := policy.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load policy: %w", err)
	}

	if err := os.MkdirAll(opts.TargetDir, 0o755); err != nil {
		return fmt.Errorf("failed to create target directory: %w", err)
	}

	staging, err := os.MkdirTemp("", "unpacker-staging-*")
	if err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	if err := unzipBundle(opts.BundlePath, staging); err != nil {
		return fmt.Errorf("failed to extract bundle: %w", err)
	}

	entries, err := os.ReadDir(staging)
	if err != nil {
		return fmt.Errorf("failed to list staging directory: %w", err)
	}
	var dirs []string
	for _, e := range entries {
		if !e.IsDir() {
			logger.Debug("skipping stray top-level bundle entry", "name", e.Name())
			continue
		}
		dirs = append(dirs, filepath.Join(staging, e.Name()))
	}

	dispatcher := extract.New(extract.DefaultFormats(), runner, opts.ExtractTimeout)

	startedAt := time.Now()
	gath.StartBatch(opts.RunID, len(dirs))

	reports := make([]string, len(dirs))
	subCount := xsync.NewCounter()
	noteCount := xsync.NewCounter()
	failCount := xsync.NewCounter()

	process := func(i int, dir string) error {
		sub, err := submission.FromDir(dir, pol, dispatcher)
		if err != nil {
			return err
		}
		gath.StartSubmission(sub.FullName)
		logger.Debug("processing submission", "student", sub.FullName, "files", len(sub.Files))

		score := sub.Validate()
		if err := sub.Unpack(ctx, opts.TargetDir); err != nil {
			return err
		}
		reports[i] = sub.Ratings()

		subCount.Inc()
		noteCount.Add(int64(len(sub.Notes)))
		for _, note := range sub.Notes {
			if strings.HasPrefix(note, "unpack fail:") {
				failCount.Inc()
			}
		}
		gath.FinishSubmission(sub.FullName, score, len(sub.Notes))
		return nil
	}

	if opts.Jobs > 1 {
		grp, grpCtx := errgroup.WithContext(ctx)
		grp.SetLimit(opts.Jobs)
		for i, dir := range dirs {
			grp.Go(func() error { return process(i, dir) })
			if grpCtx.Err() != nil {
				break
			}
		}
		if err := grp.Wait(); err != nil {
			return err
		}
	} else {
		for i, dir := range dirs {
			if err := process(i, dir); err != nil {
				return err
			}
		}
	}

	reportPath := filepath.Join(opts.TargetDir, ReportFilename)
	if err := os.WriteFile(reportPath, []byte(strings.Join(reports, "\n\n")), 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	gath.FinishBatch(reportPath, gather.Stats{
		Submissions: subCount.Value(),
		Notes:       noteCount.Value(),
		UnpackFails: failCount.Value(),
		Duration:    time.Since(startedAt),
	})
	return nil
}
