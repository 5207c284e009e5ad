package submission

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/programme-lv/unpacker/internal/extract"
	"github.com/programme-lv/unpacker/internal/policy"
)

// FromDir builds a Submission from one staging subdirectory. The directory
// base name follows the platform convention "Full Name_<id>"; a name that
// does not parse yields a placeholder identity plus a note rather than a
// silent misparse. The walk keeps regular files only.
func FromDir(stagingPath string, pol *policy.Policy, disp *extract.Dispatcher) (*Submission, error) {
	s := &Submission{policy: pol, dispatcher: disp}

	base := filepath.Base(stagingPath)
	fullName, surname, firstNames, ok := parseIdentity(base)
	s.FullName = fullName
	s.Surname = surname
	s.FirstNames = firstNames
	if !ok {
		s.Notes = append(s.Notes, fmt.Sprintf("cannot parse student name (%s)", base))
	}

	err := filepath.WalkDir(stagingPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		s.Files = append(s.Files, abs)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to collect files under %s: %w", stagingPath, err)
	}
	return s, nil
}

// parseIdentity splits a staging entry name into full name, surname and
// first names. The segment before the first underscore is the full name;
// its last whitespace-delimited token is the surname. A name without an
// underscore, or with an empty name segment, falls back to the whole base
// name as both full name and surname.
func parseIdentity(base string) (fullName, surname, firstNames string, ok bool) {
	name, _, found := strings.Cut(base, "_")
	fields := strings.Fields(name)
	if !found || len(fields) == 0 {
		return base, base, "", false
	}
	surname = fields[len(fields)-1]
	firstNames = strings.Join(fields[:len(fields)-1], " ")
	return name, surname, firstNames, true
}
