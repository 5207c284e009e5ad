package batch

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
)

// unzipBundle extracts the top-level bundle archive into dest. Entries that
// would escape dest are rejected.
func unzipBundle(bundlePath, dest string) error {
	r, err := zip.OpenReader(bundlePath)
	if err != nil {
		return fmt.Errorf("failed to open bundle %s: %w", bundlePath, err)
	}
	defer r.Close()

	for _, f := range r.File {
		if err := writeBundleEntry(f, dest); err != nil {
			return err
		}
	}
	return nil
}

func writeBundleEntry(f *zip.File, dest string) error {
	path := filepath.Join(dest, f.Name)
	if !strings.HasPrefix(path, filepath.Clean(dest)+string(os.PathSeparator)) {
		return fmt.Errorf("bundle entry %q escapes the staging directory", f.Name)
	}

	if f.FileInfo().IsDir() {
		return os.MkdirAll(path, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	in, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to open bundle entry %s: %w", f.Name, err)
	}
	defer in.Close()

	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to extract bundle entry %s: %w", f.Name, err)
	}
	return out.Close()
}
