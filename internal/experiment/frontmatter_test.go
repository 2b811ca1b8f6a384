package experiment

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeReadme(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "README.md")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write readme: %v", err)
	}
	return path
}

func TestParseFrontmatter_FullBlock(t *testing.T) {
	path := writeReadme(t, `---
display_name: Optimization Lab
description: Gradient descent exercises.
version: 1.2.0
entry_point: lab.html
functions: optim
require_registration: false
---

# Optimization Lab

Body text here.
`)

	fm, body := ParseFrontmatter(path)
	if fm.DisplayName != "Optimization Lab" {
		t.Errorf("unexpected display_name: %q", fm.DisplayName)
	}
	if fm.EntryPoint != "lab.html" {
		t.Errorf("unexpected entry_point: %q", fm.EntryPoint)
	}
	if fm.Functions != "optim" {
		t.Errorf("unexpected functions: %q", fm.Functions)
	}
	if fm.RequireRegistration == nil || *fm.RequireRegistration {
		t.Errorf("expected require_registration false, got %v", fm.RequireRegistration)
	}
	if !strings.Contains(body, "# Optimization Lab") {
		t.Errorf("expected body to survive, got %q", body)
	}
	if strings.Contains(body, "display_name") {
		t.Errorf("frontmatter leaked into body: %q", body)
	}
}

func TestParseFrontmatter_Defaults(t *testing.T) {
	path := writeReadme(t, "# Just a readme\n\nNo frontmatter at all.\n")

	fm, body := ParseFrontmatter(path)
	if fm.EntryPoint != "dashboard.html" {
		t.Errorf("expected default entry_point, got %q", fm.EntryPoint)
	}
	if fm.RequireRegistration == nil || !*fm.RequireRegistration {
		t.Errorf("expected registration required by default, got %v", fm.RequireRegistration)
	}
	if !strings.Contains(body, "Just a readme") {
		t.Errorf("expected full body, got %q", body)
	}
}

func TestParseFrontmatter_MissingFile(t *testing.T) {
	fm, body := ParseFrontmatter(filepath.Join(t.TempDir(), "README.md"))
	if fm.EntryPoint != "dashboard.html" {
		t.Errorf("expected defaults for missing file, got %q", fm.EntryPoint)
	}
	if body != "" {
		t.Errorf("expected empty body, got %q", body)
	}
}

func TestParseFrontmatter_DelimiterInsideValue(t *testing.T) {
	path := writeReadme(t, `---
display_name: Before --- After
description: dashes mid-value
---
body text
`)

	fm, body := ParseFrontmatter(path)
	if fm.DisplayName != "Before --- After" {
		t.Errorf("value with dashes truncated the block: %q", fm.DisplayName)
	}
	if fm.Description != "dashes mid-value" {
		t.Errorf("unexpected description: %q", fm.Description)
	}
	if body != "body text" {
		t.Errorf("unexpected body: %q", body)
	}
}

func TestParseFrontmatter_MalformedYAMLFallsBackToDefaults(t *testing.T) {
	path := writeReadme(t, `---
display_name: [unclosed
---
body
`)

	fm, _ := ParseFrontmatter(path)
	if fm.DisplayName != "" {
		t.Errorf("expected malformed frontmatter dropped, got %q", fm.DisplayName)
	}
	if fm.EntryPoint != "dashboard.html" {
		t.Errorf("expected defaults, got %q", fm.EntryPoint)
	}
}

func TestValidName(t *testing.T) {
	valid := []string{"default", "lab-1", "a", "exp_2026"}
	for _, name := range valid {
		if !ValidName(name) {
			t.Errorf("expected %q valid", name)
		}
	}
	invalid := []string{"", "Default", "-leading", "_leading", "has space", "Ümlaut"}
	for _, name := range invalid {
		if ValidName(name) {
			t.Errorf("expected %q invalid", name)
		}
	}
}
