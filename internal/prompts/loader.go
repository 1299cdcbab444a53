package prompts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/template"

	"gopkg.in/yaml.v3"
)

// Loader manages prompt templates with override support.
type Loader struct {
	overrideDirs []string // checked in priority order before the embedded set
	cache        map[string]*template.Template
	metaCache    map[string]*TemplateMeta
	mu           sync.RWMutex
}

// TemplateMeta holds frontmatter metadata. System is the system message
// sent alongside the rendered template body.
type TemplateMeta struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Temperature *float64 `yaml:"temperature"`
	System      string   `yaml:"system"`
}

// Prompt is a rendered template ready to send
type Prompt struct {
	System      string
	User        string
	Temperature *float64
}

var funcs = template.FuncMap{
	"json": func(v any) (string, error) {
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false) // file contents are JSX, keep <div> readable
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return "", err
		}
		return strings.TrimSuffix(buf.String(), "\n"), nil
	},
	"join": strings.Join,
}

// NewLoader creates a loader with the given override directories.
// Directories are checked in order; first match wins.
func NewLoader(overrideDirs ...string) *Loader {
	return &Loader{
		overrideDirs: overrideDirs,
		cache:        make(map[string]*template.Template),
		metaCache:    make(map[string]*TemplateMeta),
	}
}

// DefaultLoader checks dir (if set) and then ~/.config/vibe-builder/prompts/.
func DefaultLoader(dir string) *Loader {
	var dirs []string
	if dir != "" {
		dirs = append(dirs, dir)
	}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".config", "vibe-builder", "prompts"))
	}
	return NewLoader(dirs...)
}

func (l *Loader) loadContent(path string) ([]byte, error) {
	for _, dir := range l.overrideDirs {
		if data, err := os.ReadFile(filepath.Join(dir, path)); err == nil {
			return data, nil
		}
	}
	return fs.ReadFile(embeddedFS, path)
}

// parseFrontmatter splits content into frontmatter and body.
func parseFrontmatter(content []byte) (*TemplateMeta, string, error) {
	str := strings.ReplaceAll(string(content), "\r\n", "\n")

	if !strings.HasPrefix(str, "---\n") {
		return nil, str, nil
	}

	end := strings.Index(str[4:], "\n---\n")
	if end == -1 {
		return nil, str, nil // malformed, treat as plain body
	}

	frontmatter := str[4 : 4+end]
	body := str[4+end+5:]

	var meta TemplateMeta
	if err := yaml.Unmarshal([]byte(frontmatter), &meta); err != nil {
		return nil, "", fmt.Errorf("parse frontmatter: %w", err)
	}
	return &meta, body, nil
}

// LoadTemplate loads and parses a template by path (e.g. "llm/autofix.md").
func (l *Loader) LoadTemplate(path string) (*template.Template, *TemplateMeta, error) {
	l.mu.RLock()
	if tmpl, ok := l.cache[path]; ok {
		meta := l.metaCache[path]
		l.mu.RUnlock()
		return tmpl, meta, nil
	}
	l.mu.RUnlock()

	content, err := l.loadContent(path)
	if err != nil {
		return nil, nil, fmt.Errorf("load %s: %w", path, err)
	}

	meta, body, err := parseFrontmatter(content)
	if err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", path, err)
	}

	tmpl, err := template.New(path).Funcs(funcs).Parse(body)
	if err != nil {
		return nil, nil, fmt.Errorf("compile template %s: %w", path, err)
	}

	l.mu.Lock()
	l.cache[path] = tmpl
	l.metaCache[path] = meta
	l.mu.Unlock()

	return tmpl, meta, nil
}

// Render executes the template at path and pairs it with its system message.
func (l *Loader) Render(path string, data any) (*Prompt, error) {
	tmpl, meta, err := l.LoadTemplate(path)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("execute %s: %w", path, err)
	}

	p := &Prompt{User: strings.TrimSpace(buf.String())}
	if meta != nil {
		p.System = strings.TrimSpace(meta.System)
		p.Temperature = meta.Temperature
	}
	return p, nil
}

// AutofixData holds template variables for the auto-fix prompt.
type AutofixData struct {
	Framework    string
	Prompt       string
	AllowedPaths []string
	CurrentFiles any
	BuildOutput  string
}

// PlanData holds template variables for the planning prompt.
type PlanData struct {
	Prompt     string
	Framework  string
	Frameworks []string
}

// BuildAutofixPrompt renders llm/autofix.md.
func (l *Loader) BuildAutofixPrompt(data AutofixData) (*Prompt, error) {
	return l.Render("llm/autofix.md", data)
}

// BuildPlanPrompt renders llm/plan.md.
func (l *Loader) BuildPlanPrompt(data PlanData) (*Prompt, error) {
	return l.Render("llm/plan.md", data)
}

// ClearCache drops parsed templates so edited overrides are picked up.
func (l *Loader) ClearCache() {
	l.mu.Lock()
	l.cache = make(map[string]*template.Template)
	l.metaCache = make(map[string]*TemplateMeta)
	l.mu.Unlock()
}
