package hcl

import (
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"

	"github.com/peick/docker-build/internal/errors"
)

// fileSet holds the names of the description files read so far.
type fileSet map[string]bool

// format renders error diagnostics one per line as
// "file:line:col: summary; detail". Positions are only shown for ranges in
// description files.
func (fs fileSet) format(diags hcl.Diagnostics) string {
	lines := make([]string, 0, len(diags))
	for _, d := range diags {
		if d.Severity != hcl.DiagError {
			continue
		}
		var b strings.Builder
		if d.Subject != nil && fs[d.Subject.Filename] {
			fmt.Fprintf(&b, "%s:%d:%d: ", d.Subject.Filename, d.Subject.Start.Line, d.Subject.Start.Column)
		}
		b.WriteString(d.Summary)
		if d.Detail != "" {
			fmt.Fprintf(&b, "; %s", d.Detail)
		}
		lines = append(lines, b.String())
	}
	return strings.Join(lines, "\n")
}

func (fs fileSet) error(file string, diags hcl.Diagnostics) error {
	return errors.NewErrorBuilder().
		Category(errors.ErrorCategoryConfiguration).
		Operation("load " + file).
		Message(fs.format(diags)).
		Suggestion("Fix the build description at the reported position").
		Build()
}

func diagnostic(summary, detail string, subject *hcl.Range) *hcl.Diagnostic {
	return &hcl.Diagnostic{
		Severity: hcl.DiagError,
		Summary:  summary,
		Detail:   detail,
		Subject:  subject,
	}
}

// at prefixes an error with a position in a description file.
func at(r hcl.Range, format string, args ...interface{}) string {
	return fmt.Sprintf("%s:%d:%d: %s", r.Filename, r.Start.Line, r.Start.Column, fmt.Sprintf(format, args...))
}
