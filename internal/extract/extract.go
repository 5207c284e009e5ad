// Package extract maps submission archive formats to external extractor
// commands and runs them.
package extract

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// ArgSeparator is the reserved character used to delimit arguments in
// extractor command templates. Submitted paths containing it are rejected
// at validation time so they can never corrupt command construction.
const ArgSeparator = "^"

// ErrUnknownFormat is returned when a file's compound suffix has no
// extractor binding. The caller is expected to fall back to a plain move.
var ErrUnknownFormat = errors.New("unknown archive format")

// Format binds a compound suffix to an extraction behavior: either an
// external command template or a plain relocation into the target.
type Format struct {
	// Args is the command template. {file} and {target} are substituted
	// per invocation. Ignored when Relocate is set.
	Args []string
	// Relocate moves the file into the target directory unchanged.
	Relocate bool
}

// DefaultFormats returns the standard format table. A PDF submitted
// directly is just relocated, not unpacked.
func DefaultFormats() map[string]Format {
	return map[string]Format{
		".zip":    {Args: []string{"unzip", "-o", "{file}", "-d", "{target}"}},
		".rar":    {Args: []string{"unrar", "x", "-o+", "{file}", "{target}"}},
		".tar.gz": {Args: []string{"tar", "-xzf", "{file}", "-C", "{target}"}},
		".7z":     {Args: []string{"7z", "x", "{file}", "-o{target}"}},
		".pdf":    {Relocate: true},
	}
}

// ExtractError records a failed extractor invocation. Its Error text is the
// note appended to the student's report.
type ExtractError struct {
	File    string
	Command string
	Stderr  string
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("unpack fail: %s @ %s (%s)", e.Stderr, e.File, e.Command)
}

// Dispatcher resolves compound suffixes to formats and invokes the bound
// extractor. The format table is injected so tests can substitute fakes.
type Dispatcher struct {
	formats map[string]Format
	runner  Runner
	timeout time.Duration
}

// New builds a Dispatcher. A zero timeout disables the per-call deadline.
func New(formats map[string]Format, runner Runner, timeout time.Duration) *Dispatcher {
	return &Dispatcher{formats: formats, runner: runner, timeout: timeout}
}

// CompoundSuffix returns the concatenation of all dot-delimited trailing
// segments of a file name, so "report.tar.gz" yields ".tar.gz". A leading
// dot alone (".bashrc") is not a suffix.
func CompoundSuffix(name string) string {
	base := filepath.Base(name)
	if len(base) < 2 {
		return ""
	}
	i := strings.Index(base[1:], ".")
	if i < 0 {
		return ""
	}
	return base[i+1:]
}

// Known reports whether a compound suffix has an extractor binding.
func (d *Dispatcher) Known(suffix string) bool {
	_, ok := d.formats[suffix]
	return ok
}

// Extract unpacks filePath into targetDir using the format bound to its
// compound suffix. A nonzero extractor exit or an expired deadline yields an
// *ExtractError; whatever was partially extracted is left in place.
func (d *Dispatcher) Extract(ctx context.Context, filePath, targetDir string) error {
	format, ok := d.formats[CompoundSuffix(filePath)]
	if !ok {
		return ErrUnknownFormat
	}

	if format.Relocate {
		dst := filepath.Join(targetDir, filepath.Base(filePath))
		if err := MoveFile(filePath, dst); err != nil {
			return &ExtractError{File: filePath, Command: "relocate", Stderr: err.Error()}
		}
		return nil
	}

	args := make([]string, len(format.Args))
	for i, a := range format.Args {
		a = strings.ReplaceAll(a, "{file}", filePath)
		a = strings.ReplaceAll(a, "{target}", targetDir)
		args[i] = a
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	stderr, exitCode, err := d.runner.Run(ctx, args[0], args[1:]...)
	command := strings.Join(args, " ")
	if err != nil {
		return &ExtractError{File: filePath, Command: command, Stderr: err.Error()}
	}
	if exitCode != 0 {
		return &ExtractError{File: filePath, Command: command, Stderr: strings.TrimSpace(string(stderr))}
	}
	return nil
}
