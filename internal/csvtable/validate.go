package csvtable

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Required column roles for audit input.
const (
	RoleBusinessName = "business_name"
	RoleWebsite      = "website"
)

// Synonyms lists the accepted header spellings per required column role.
// Matching is against the lowercased, trimmed header.
type Synonyms struct {
	BusinessName []string `yaml:"business_name"`
	Website      []string `yaml:"website"`
}

// DefaultSynonyms returns the built-in header lists. They are a heuristic
// and can be replaced through a synonyms file.
func DefaultSynonyms() Synonyms {
	return Synonyms{
		BusinessName: []string{"business name", "business_name", "name", "company", "company name", "company_name", "business", "title"},
		Website:      []string{"website", "website url", "website_url", "url", "link", "web", "site", "homepage", "domain"},
	}
}

// LoadSynonyms reads a YAML synonyms file. Roles missing from the file
// keep their defaults.
func LoadSynonyms(path string) (Synonyms, error) {
	syn := DefaultSynonyms()
	data, err := os.ReadFile(path)
	if err != nil {
		return syn, eris.Wrapf(err, "csvtable: read synonyms %s", path)
	}

	var wrapper struct {
		Synonyms Synonyms `yaml:"synonyms"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return syn, eris.Wrap(err, "csvtable: parse synonyms")
	}
	if len(wrapper.Synonyms.BusinessName) > 0 {
		syn.BusinessName = normalizeAll(wrapper.Synonyms.BusinessName)
	}
	if len(wrapper.Synonyms.Website) > 0 {
		syn.Website = normalizeAll(wrapper.Synonyms.Website)
	}
	return syn, nil
}

func normalizeHeader(h string) string {
	return strings.ToLower(strings.TrimSpace(h))
}

func normalizeAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = normalizeHeader(s)
	}
	return out
}

// HeaderError reports missing required columns.
type HeaderError struct {
	Missing []string
	Found   []string
}

func (e *HeaderError) Error() string {
	if len(e.Found) == 0 {
		return "CSV file has no headers"
	}
	return fmt.Sprintf("Missing required columns: %s", strings.Join(e.Missing, ", "))
}

// Validation describes a CSV accepted for auditing.
type Validation struct {
	BusinessNameColumn string   `json:"business_name_column"`
	WebsiteColumn      string   `json:"website_column"`
	Headers            []string `json:"headers"`
	RowCount           int      `json:"row_count"`
}

// Message is the one-line summary shown after a successful check.
func (v *Validation) Message() string {
	return fmt.Sprintf("CSV is valid with %d rows", v.RowCount)
}

// ValidateHeaders checks that headers contain a business-name column and
// a website column. For each role the first synonym present wins.
func ValidateHeaders(headers []string, syn Synonyms) (*Validation, error) {
	normalized := normalizeAll(headers)
	if len(normalized) == 0 {
		return nil, &HeaderError{Missing: []string{RoleBusinessName, RoleWebsite}}
	}

	find := func(variants []string) string {
		for _, v := range variants {
			if slices.Contains(normalized, v) {
				return v
			}
		}
		return ""
	}

	v := &Validation{
		BusinessNameColumn: find(syn.BusinessName),
		WebsiteColumn:      find(syn.Website),
		Headers:            normalized,
	}

	var missing []string
	if v.BusinessNameColumn == "" {
		missing = append(missing, RoleBusinessName)
	}
	if v.WebsiteColumn == "" {
		missing = append(missing, RoleWebsite)
	}
	if len(missing) > 0 {
		return nil, &HeaderError{Missing: missing, Found: normalized}
	}
	return v, nil
}

// Validate parses r and validates its headers.
func Validate(r io.Reader, syn Synonyms) (*Validation, error) {
	t, err := Parse(r)
	if err != nil {
		return nil, err
	}
	v, err := ValidateHeaders(t.Headers, syn)
	if err != nil {
		return nil, err
	}
	v.RowCount = t.Len()
	return v, nil
}

// ValidateFile opens path and validates it.
func ValidateFile(path string, syn Synonyms) (*Validation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "csvtable: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	return Validate(f, syn)
}
