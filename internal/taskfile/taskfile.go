// Package taskfile implements the Task File Codec (A7): a YAML
// front-matter header (bit-exact per spec.md §6) prefixed to a markdown
// task body, plus the four-state directory layout
// ({open,in_progress,done,blocked}) scheduled and auto-assigned tasks move
// through.
//
// Grounded on the teacher's internal/workflow/models step definitions for
// the header's field set, generalized from JSON struct tags to YAML since
// spec.md fixes this one artifact's on-disk format as YAML front-matter
// rather than JSON.
package taskfile

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

const delimiter = "---"

// Header is a task file's YAML front-matter, in the bit-exact field order
// spec.md §6 fixes: targetRole, stepId, delayMinutes, conditional,
// verification.
type Header struct {
	TargetRole   string                 `yaml:"targetRole"`
	StepID       string                 `yaml:"stepId"`
	DelayMinutes int                    `yaml:"delayMinutes"`
	Conditional  string                 `yaml:"conditional"`
	Verification map[string]interface{} `yaml:"verification"`
}

// Document is a parsed task file: its header plus the markdown body that
// follows the closing "---".
type Document struct {
	Header Header
	Body   string
}

// rawHeader mirrors Header's shape for yaml.Unmarshal/Marshal without
// re-exporting the exact same type, so zero-value Conditional/Verification
// normalize the same way on both read and write paths.
type rawHeader struct {
	TargetRole   string                 `yaml:"targetRole"`
	StepID       string                 `yaml:"stepId"`
	DelayMinutes int                    `yaml:"delayMinutes"`
	Conditional  string                 `yaml:"conditional"`
	Verification map[string]interface{} `yaml:"verification"`
}

// Parse splits data into its YAML front-matter and markdown body and
// decodes the header. data must begin with a "---" line and contain a
// closing "---" line; an error is returned otherwise.
func Parse(data []byte) (Document, error) {
	frontMatter, body, err := splitFrontMatter(data)
	if err != nil {
		return Document{}, err
	}

	var raw rawHeader
	if err := yaml.Unmarshal(frontMatter, &raw); err != nil {
		return Document{}, fmt.Errorf("taskfile: parse front matter: %w", err)
	}

	header := Header(raw)
	if header.Conditional == "" {
		header.Conditional = "none"
	}
	return Document{Header: header, Body: body}, nil
}

func splitFrontMatter(data []byte) (frontMatter []byte, body string, err error) {
	lines := bytes.Split(data, []byte("\n"))
	if len(lines) == 0 || string(bytes.TrimSpace(lines[0])) != delimiter {
		return nil, "", fmt.Errorf("taskfile: missing opening %q delimiter", delimiter)
	}

	for i := 1; i < len(lines); i++ {
		if string(bytes.TrimSpace(lines[i])) == delimiter {
			frontMatter = bytes.Join(lines[1:i], []byte("\n"))
			rest := bytes.Join(lines[i+1:], []byte("\n"))
			return frontMatter, trimLeadingNewline(string(rest)), nil
		}
	}

	return nil, "", fmt.Errorf("taskfile: missing closing %q delimiter", delimiter)
}

func trimLeadingNewline(s string) string {
	for len(s) > 0 && (s[0] == '\n' || s[0] == '\r') {
		s = s[1:]
	}
	return s
}

// Render renders doc back to its bit-exact on-disk form: the fixed-order
// YAML front matter (verification rendered as inline JSON, matching
// spec.md's "<inline JSON>" placeholder) followed by the body.
func Render(doc Document) ([]byte, error) {
	conditional := doc.Header.Conditional
	if conditional == "" {
		conditional = "none"
	}

	verificationJSON := []byte("{}")
	if doc.Header.Verification != nil {
		encoded, err := json.Marshal(doc.Header.Verification)
		if err != nil {
			return nil, fmt.Errorf("taskfile: marshal verification: %w", err)
		}
		verificationJSON = encoded
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s\n", delimiter)
	fmt.Fprintf(&buf, "targetRole: %s\n", doc.Header.TargetRole)
	fmt.Fprintf(&buf, "stepId: %s\n", doc.Header.StepID)
	fmt.Fprintf(&buf, "delayMinutes: %d\n", doc.Header.DelayMinutes)
	fmt.Fprintf(&buf, "conditional: %s\n", conditional)
	fmt.Fprintf(&buf, "verification: %s\n", verificationJSON)
	fmt.Fprintf(&buf, "%s\n", delimiter)
	buf.WriteString(doc.Body)

	return buf.Bytes(), nil
}
