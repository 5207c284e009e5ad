// Package submission models one student's graded unit of work: a staging
// directory of files that is validated, unpacked and rendered into a
// report fragment.
package submission

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/programme-lv/unpacker/internal/extract"
	"github.com/programme-lv/unpacker/internal/policy"
)

// Submission accumulates validation and extraction notes for one student.
// Notes are append-only; their insertion order is preserved in the report.
type Submission struct {
	FullName   string
	Surname    string
	FirstNames string
	// Files holds the absolute paths of the top-level submission files in
	// staging-walk order.
	Files []string
	Notes []string

	policy     *policy.Policy
	dispatcher *extract.Dispatcher
}

// Validate checks the top-level file list against the policy: the file
// count limit, the allowed compound suffixes, and the reserved command
// argument separator. Every violation appends a note; validation never
// stops early. The return value is -len(Notes), a sortable badness score.
func (s *Submission) Validate() int {
	if len(s.Files) > s.policy.FileLimit {
		s.Notes = append(s.Notes, fmt.Sprintf("more than %d file", s.policy.FileLimit))
	}
	for _, file := range s.Files {
		if !s.policy.AllowedSuffixes.Contains(extract.CompoundSuffix(file)) {
			s.Notes = append(s.Notes, fmt.Sprintf("wrong filetype (%s)", file))
		}
		if strings.Contains(file, extract.ArgSeparator) {
			s.Notes = append(s.Notes, fmt.Sprintf("illegal char in filename (%s)", file))
		}
	}
	return -len(s.Notes)
}

// TargetDirName is the deterministic per-student directory name under the
// batch target directory.
func (s *Submission) TargetDirName() string {
	return s.Surname + "-" + s.FirstNames
}

// Unpack extracts or relocates every top-level file into the student's
// target directory under baseDir, then validates the cumulative extracted
// content in a single recursive pass. Extraction failures and content
// violations become notes; only a failure to create the target directory
// is returned as an error.
func (s *Submission) Unpack(ctx context.Context, baseDir string) error {
	target := filepath.Join(baseDir, s.TargetDirName())
	if err := os.MkdirAll(target, 0o755); err != nil {
		return fmt.Errorf("failed to create target directory %s: %w", target, err)
	}

	for _, file := range s.Files {
		suffix := extract.CompoundSuffix(file)
		if s.dispatcher.Known(suffix) {
			if err := s.dispatcher.Extract(ctx, file, target); err != nil {
				s.Notes = append(s.Notes, err.Error())
			}
			continue
		}

		// Not an archive we know: warn or reject, then relocate either way.
		bare := strings.TrimPrefix(suffix, ".")
		if tmpl, ok := s.policy.Warnings[bare]; ok {
			s.Notes = append(s.Notes, s.policy.RenderWarning(tmpl, file, suffix, filepath.Base(file)))
		} else {
			s.Notes = append(s.Notes, fmt.Sprintf("wrong filetype/name (%s)", file))
		}
		if err := extract.MoveFile(file, filepath.Join(target, filepath.Base(file))); err != nil {
			s.Notes = append(s.Notes, fmt.Sprintf("cannot move %s: %v", file, err))
		}
	}

	s.validateContents(target, baseDir)
	return nil
}

// validateContents walks the target directory and checks every regular
// file's suffix against the accepted content filetypes.
func (s *Submission) validateContents(target, baseDir string) {
	_ = filepath.WalkDir(target, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			s.Notes = append(s.Notes, fmt.Sprintf("cannot inspect %s: %v", path, err))
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		s.validateFile(path, baseDir)
		return nil
	})
}

func (s *Submission) validateFile(path, baseDir string) {
	suffix := filepath.Ext(path)
	bare := strings.TrimPrefix(suffix, ".")
	if s.policy.ContentFiletypes.Contains(bare) {
		return
	}

	shown, err := filepath.Rel(baseDir, path)
	if err != nil {
		shown = path
	}
	if tmpl, ok := s.policy.Warnings[bare]; ok {
		s.Notes = append(s.Notes, s.policy.RenderWarning(tmpl, shown, suffix, filepath.Base(path)))
		return
	}
	s.Notes = append(s.Notes, fmt.Sprintf("illegal filetype '%s' (%s)", suffix, shown))
}

// Ratings renders the student's report fragment from the policy template.
// It is safe to call once Validate and Unpack have run.
func (s *Submission) Ratings() string {
	return s.policy.RenderReport(s.FullName, s.Notes)
}
