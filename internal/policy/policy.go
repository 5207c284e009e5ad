package policy

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pelletier/go-toml/v2"
)

// Policy is the assignment-specific configuration governing limits,
// accepted file types and the report template. It is loaded once per run
// and shared read-only between submissions.
type Policy struct {
	// Points is the maximum score for the assignment.
	Points float64
	// AllowedSuffixes holds the compound suffixes permitted as top-level
	// submission files, including the leading dot (".zip", ".tar.gz").
	AllowedSuffixes mapset.Set[string]
	// FileLimit is the number of top-level files a submission may contain
	// before it is flagged.
	FileLimit int
	// Template is the report template with {full_name}, {max} and {notes}
	// placeholders.
	Template string
	// ContentFiletypes holds the bare suffixes (no dot) acceptable inside
	// an extracted submission.
	ContentFiletypes mapset.Set[string]
	// Warnings maps a bare suffix to a warning template accepting {path},
	// {suffix} and {name}. A key present here means "tolerate but warn";
	// an absent key means "reject outright".
	Warnings map[string]string
}

type assignmentSpec struct {
	Points           float64           `toml:"points"`
	AllowedSuffixes  []string          `toml:"allowed_suffixes"`
	FileLimit        int               `toml:"file_limit"`
	Template         string            `toml:"template"`
	ContentFiletypes []string          `toml:"content_filetypes"`
	Warnings         map[string]string `toml:"warnings"`
}

type policyRoot struct {
	Assignment *assignmentSpec `toml:"assignment"`
}

// Load reads and validates an assignment policy from a TOML file.
func Load(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	var root policyRoot
	if err := toml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse policy TOML: %w", err)
	}
	spec := root.Assignment
	if spec == nil {
		return nil, fmt.Errorf("policy file %s is missing the [assignment] table", path)
	}
	if spec.Template == "" {
		return nil, fmt.Errorf("policy is missing the report template")
	}
	if len(spec.AllowedSuffixes) == 0 {
		return nil, fmt.Errorf("policy allows no submission suffixes")
	}
	if spec.FileLimit <= 0 {
		return nil, fmt.Errorf("policy file_limit must be positive, got %d", spec.FileLimit)
	}

	p := &Policy{
		Points:           spec.Points,
		AllowedSuffixes:  mapset.NewSet(spec.AllowedSuffixes...),
		FileLimit:        spec.FileLimit,
		Template:         spec.Template,
		ContentFiletypes: mapset.NewSet(spec.ContentFiletypes...),
		Warnings:         spec.Warnings,
	}
	if p.Warnings == nil {
		p.Warnings = map[string]string{}
	}
	return p, nil
}

// RenderReport fills the report template for one student. Notes render as a
// bullet list; an empty note slice renders as an empty notes section.
func (p *Policy) RenderReport(fullName string, notes []string) string {
	var list string
	if len(notes) > 0 {
		list = "* " + strings.Join(notes, "\n* ")
	}
	return strings.NewReplacer(
		"{full_name}", fullName,
		"{max}", strconv.FormatFloat(p.Points, 'f', -1, 64),
		"{notes}", list,
	).Replace(p.Template)
}

// RenderWarning fills a per-suffix warning template.
func (p *Policy) RenderWarning(tmpl, path, suffix, name string) string {
	return strings.NewReplacer(
		"{path}", path,
		"{suffix}", suffix,
		"{name}", name,
	).Replace(tmpl)
}
