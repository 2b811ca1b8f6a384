package experiment

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/NeveIsa/LEAP2/pkg/logger"
)

// Frontmatter is the YAML block at the top of an experiment's README.md.
type Frontmatter struct {
	DisplayName         string `yaml:"display_name" json:"display_name"`
	Description         string `yaml:"description" json:"description"`
	Version             string `yaml:"version" json:"version"`
	EntryPoint          string `yaml:"entry_point" json:"entry_point"`
	Functions           string `yaml:"functions" json:"functions,omitempty"`
	RequireRegistration *bool  `yaml:"require_registration" json:"require_registration"`
}

// defaults fills unset fields. Registration is required unless the
// frontmatter opts out explicitly.
func (f *Frontmatter) defaults() {
	if f.EntryPoint == "" {
		f.EntryPoint = "dashboard.html"
	}
	if f.RequireRegistration == nil {
		t := true
		f.RequireRegistration = &t
	}
}

// ParseFrontmatter reads README.md and returns the frontmatter plus the
// markdown body. A missing file or malformed YAML yields defaults and the
// raw body rather than an error.
func ParseFrontmatter(readmePath string) (Frontmatter, string) {
	var fm Frontmatter

	data, err := os.ReadFile(readmePath)
	if err != nil {
		fm.defaults()
		return fm, ""
	}
	text := string(data)

	raw, body := splitFrontmatter(text)
	if raw != "" {
		if err := yaml.Unmarshal([]byte(raw), &fm); err != nil {
			logger.Warn("bad YAML frontmatter", "path", readmePath, "error", err)
			fm = Frontmatter{}
		}
	}
	fm.defaults()
	return fm, body
}

// splitFrontmatter separates a leading `--- ... ---` block from the body.
// The closing delimiter must start a line, so `---` inside a value does not
// end the block.
func splitFrontmatter(text string) (frontmatter, body string) {
	if !strings.HasPrefix(text, "---") {
		return "", text
	}
	rest := text[3:]
	end := strings.Index(rest, "\n---")
	if end == -1 {
		return "", text
	}
	frontmatter = rest[:end+1]
	body = strings.TrimSpace(rest[end+4:])
	return frontmatter, body
}
