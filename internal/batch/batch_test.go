package batch_test

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/programme-lv/unpacker/internal/batch"
	"github.com/programme-lv/unpacker/internal/gather"
)

const testConfig = `
[assignment]
points = 10
allowed_suffixes = [".zip"]
file_limit = 1
template = "{full_name}: max {max}\n{notes}"
content_filetypes = ["pdf"]
`

// zipRunner stands in for the external unzip binary: it extracts the
// archive named in the command template into the target directory.
type zipRunner struct{}

func (zipRunner) Run(_ context.Context, _ string, args ...string) ([]byte, int, error) {
	file := args[1]
	target := args[len(args)-1]

	r, err := zip.OpenReader(file)
	if err != nil {
		return []byte(err.Error()), 1, nil
	}
	defer r.Close()

	for _, f := range r.File {
		rc, err := f.Open()
		if err != nil {
			return []byte(err.Error()), 1, nil
		}
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(rc); err != nil {
			rc.Close()
			return []byte(err.Error()), 1, nil
		}
		rc.Close()
		if err := os.WriteFile(filepath.Join(target, f.Name), buf.Bytes(), 0o644); err != nil {
			return []byte(err.Error()), 1, nil
		}
	}
	return nil, 0, nil
}

type recordingGatherer struct {
	mu        sync.Mutex
	total     int
	finished  []string
	stats     gather.Stats
	batchDone bool
}

func (g *recordingGatherer) StartBatch(runID string, total int) { g.total = total }
func (g *recordingGatherer) StartSubmission(string)             {}
func (g *recordingGatherer) FinishSubmission(fullName string, score, notes int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.finished = append(g.finished, fullName)
}
func (g *recordingGatherer) FinishBatch(reportPath string, stats gather.Stats) {
	g.stats = stats
	g.batchDone = true
}

func zipBytes(t *testing.T, files map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func writeBundle(t *testing.T, entries map[string][]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bundle.zip")
	require.NoError(t, os.WriteFile(path, zipBytes(t, entries), 0o644))
	return path
}

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "assignment.toml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0o644))
	return path
}

func TestRunRoundTrip(t *testing.T) {
	inner := zipBytes(t, map[string][]byte{"essay.pdf": []byte("essay")})
	bundle := writeBundle(t, map[string][]byte{
		"Jane Doe_12345/hw.zip": inner,
		"README.txt":            []byte("stray file, not a submission"),
	})
	target := filepath.Join(t.TempDir(), "out")
	gath := &recordingGatherer{}

	err := batch.Run(context.Background(), batch.Options{
		ConfigPath: writeConfig(t),
		BundlePath: bundle,
		TargetDir:  target,
		RunID:      "test-run",
		Runner:     zipRunner{},
		Gatherer:   gath,
	})
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(target, "Doe-Jane", "essay.pdf"))

	report, err := os.ReadFile(filepath.Join(target, batch.ReportFilename))
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe: max 10\n", string(report))

	assert.Equal(t, 1, gath.total)
	assert.True(t, gath.batchDone)
	assert.Equal(t, int64(1), gath.stats.Submissions)
	assert.Equal(t, int64(0), gath.stats.Notes)
}

func TestRunCollectsNotes(t *testing.T) {
	bundle := writeBundle(t, map[string][]byte{
		"Jane Doe_1/a.zip": zipBytes(t, map[string][]byte{"x.pdf": []byte("x")}),
		"Jane Doe_1/b.txt": []byte("stray"),
	})
	target := filepath.Join(t.TempDir(), "out")
	gath := &recordingGatherer{}

	err := batch.Run(context.Background(), batch.Options{
		ConfigPath: writeConfig(t),
		BundlePath: bundle,
		TargetDir:  target,
		Runner:     zipRunner{},
		Gatherer:   gath,
	})
	require.NoError(t, err)

	report, err := os.ReadFile(filepath.Join(target, batch.ReportFilename))
	require.NoError(t, err)
	// two top-level files, a rejected .txt, and the relocated .txt seen
	// again by the content pass
	assert.Contains(t, string(report), "* more than 1 file")
	assert.Contains(t, string(report), "* wrong filetype (")
	assert.Contains(t, string(report), "* wrong filetype/name (")
	assert.Contains(t, string(report), "* illegal filetype '.txt'")
	assert.Greater(t, gath.stats.Notes, int64(0))
}

func TestRunParallelMatchesSequential(t *testing.T) {
	entries := map[string][]byte{}
	for _, name := range []string{"Alice Able_1", "Bob Baker_2", "Carol Clark_3"} {
		entries[name+"/hw.zip"] = zipBytes(t, map[string][]byte{"essay.pdf": []byte(name)})
	}

	run := func(jobs int) string {
		target := filepath.Join(t.TempDir(), "out")
		err := batch.Run(context.Background(), batch.Options{
			ConfigPath: writeConfig(t),
			BundlePath: writeBundle(t, entries),
			TargetDir:  target,
			Jobs:       jobs,
			Runner:     zipRunner{},
		})
		require.NoError(t, err)
		report, err := os.ReadFile(filepath.Join(target, batch.ReportFilename))
		require.NoError(t, err)
		return string(report)
	}

	sequential := run(1)
	parallel := run(4)
	assert.Equal(t, sequential, parallel)

	// each report ends with the template's newline, then the blank-line join
	expected := "Alice Able: max 10\n\n\nBob Baker: max 10\n\n\nCarol Clark: max 10\n"
	assert.Equal(t, expected, sequential)
}

func TestRunRejectsEscapingBundleEntry(t *testing.T) {
	bundle := writeBundle(t, map[string][]byte{
		"../evil.txt": []byte("nope"),
	})

	err := batch.Run(context.Background(), batch.Options{
		ConfigPath: writeConfig(t),
		BundlePath: bundle,
		TargetDir:  filepath.Join(t.TempDir(), "out"),
		Runner:     zipRunner{},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes")
}

func TestRunBadConfig(t *testing.T) {
	bundle := writeBundle(t, map[string][]byte{"Jane Doe_1/hw.zip": zipBytes(t, nil)})
	badConfig := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(badConfig, []byte("[grading]\npoints = 1\n"), 0o644))

	err := batch.Run(context.Background(), batch.Options{
		ConfigPath: badConfig,
		BundlePath: bundle,
		TargetDir:  filepath.Join(t.TempDir(), "out"),
		Runner:     zipRunner{},
	})
	require.Error(t, err)
}

func TestRunFinishOrderWithJobs(t *testing.T) {
	entries := map[string][]byte{}
	want := map[string]bool{}
	for i := 0; i < 6; i++ {
		name := fmt.Sprintf("Student Number%d_%d", i, i)
		entries[name+"/hw.zip"] = zipBytes(t, map[string][]byte{"essay.pdf": []byte("e")})
		want[fmt.Sprintf("Student Number%d", i)] = true
	}
	gath := &recordingGatherer{}

	err := batch.Run(context.Background(), batch.Options{
		ConfigPath: writeConfig(t),
		BundlePath: writeBundle(t, entries),
		TargetDir:  filepath.Join(t.TempDir(), "out"),
		Jobs:       3,
		Runner:     zipRunner{},
		Gatherer:   gath,
	})
	require.NoError(t, err)

	require.Len(t, gath.finished, 6)
	for _, name := range gath.finished {
		assert.True(t, want[name], "unexpected submission %q", name)
	}
}
