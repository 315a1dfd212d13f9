// Package prompts provides the system prompts for every model consumer.
//
// Defaults are embedded in the binary. A prompts directory may override any
// of them with a file named <consumer>.md. Files may start with a YAML front
// matter block, which is parsed for metadata and stripped from the prompt.
package prompts

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed defaults/*.md
var defaultFS embed.FS

const frontMatterDelimiter = "---"

// Prompt is one loaded system prompt.
type Prompt struct {
	Consumer    string `yaml:"consumer"`
	Description string `yaml:"description"`
	Body        string `yaml:"-"`
	// Source is "embedded" or the override file path.
	Source string `yaml:"-"`
}

// Library holds the prompts by consumer name.
type Library struct {
	prompts map[string]Prompt
}

// Load reads the embedded defaults and applies overrides from dir. An empty
// dir uses the defaults only; a missing dir is an error.
func Load(dir string) (*Library, error) {
	lib := &Library{prompts: make(map[string]Prompt)}

	defaults, err := fs.Sub(defaultFS, "defaults")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded prompts: %w", err)
	}
	if err := lib.loadFS(defaults, "embedded"); err != nil {
		return nil, err
	}

	if dir == "" {
		return lib, nil
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("prompts dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("prompts dir %s is not a directory", dir)
	}
	if err := lib.loadFS(os.DirFS(dir), dir); err != nil {
		return nil, err
	}
	return lib, nil
}

func (l *Library) loadFS(fsys fs.FS, source string) error {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("failed to list prompts in %s: %w", source, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".md" {
			continue
		}
		data, err := fs.ReadFile(fsys, entry.Name())
		if err != nil {
			return fmt.Errorf("failed to read prompt %s: %w", entry.Name(), err)
		}
		p, err := Parse(string(data))
		if err != nil {
			return fmt.Errorf("prompt %s: %w", entry.Name(), err)
		}
		name := strings.TrimSuffix(entry.Name(), ".md")
		if p.Consumer == "" {
			p.Consumer = name
		}
		p.Source = source
		if source != "embedded" {
			p.Source = path.Join(source, entry.Name())
		}
		l.prompts[name] = p
	}
	return nil
}

// Parse splits optional front matter from the prompt body.
func Parse(text string) (Prompt, error) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	front, body, err := splitFrontMatter(text)
	if err != nil {
		return Prompt{}, err
	}
	var p Prompt
	if front != "" {
		if err := yaml.Unmarshal([]byte(front), &p); err != nil {
			return Prompt{}, fmt.Errorf("failed to parse front matter: %w", err)
		}
	}
	p.Body = strings.TrimSpace(body)
	return p, nil
}

func splitFrontMatter(text string) (front, body string, err error) {
	if !strings.HasPrefix(text, frontMatterDelimiter+"\n") {
		return "", text, nil
	}
	rest := text[len(frontMatterDelimiter)+1:]
	end := strings.Index(rest, "\n"+frontMatterDelimiter+"\n")
	if end < 0 {
		if strings.HasSuffix(rest, "\n"+frontMatterDelimiter) {
			return rest[:len(rest)-len(frontMatterDelimiter)-1], "", nil
		}
		return "", "", errors.New("unterminated front matter")
	}
	return rest[:end], rest[end+len(frontMatterDelimiter)+2:], nil
}

// Get returns the prompt body for consumer.
func (l *Library) Get(consumer string) (string, bool) {
	p, ok := l.prompts[consumer]
	return p.Body, ok
}

// MustGet returns the prompt body for consumer, or an empty string.
func (l *Library) MustGet(consumer string) string {
	body, _ := l.Get(consumer)
	return body
}

// Prompt returns the full prompt record for consumer.
func (l *Library) Prompt(consumer string) (Prompt, bool) {
	p, ok := l.prompts[consumer]
	return p, ok
}

// Names lists the loaded consumers in sorted order.
func (l *Library) Names() []string {
	names := make([]string, 0, len(l.prompts))
	for name := range l.prompts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
