// Package prompts builds the system and user prompts sent to the LLM for
// test-case and pytest generation.
package prompts

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// DefaultPersona is used when a request names no persona or an unknown one
const DefaultPersona = "qa_engineer"

//go:embed personas.yaml
var builtinPersonas []byte

// Persona is a named system-prompt preset
type Persona struct {
	Key         string `yaml:"key" json:"key"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Prompt      string `yaml:"prompt" json:"prompt"`
}

type catalogFile struct {
	Personas []Persona `yaml:"personas"`
}

// Catalog holds personas in declaration order
type Catalog struct {
	personas []Persona
	index    map[string]int
}

var (
	defaultCatalog     *Catalog
	defaultCatalogOnce sync.Once
)

// DefaultCatalog returns the built-in persona catalog
func DefaultCatalog() *Catalog {
	defaultCatalogOnce.Do(func() {
		c, err := ParseCatalog(builtinPersonas)
		if err != nil {
			panic(fmt.Sprintf("invalid built-in personas: %v", err))
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// ParseCatalog parses a YAML persona catalog
func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse personas: %w", err)
	}

	c := &Catalog{index: make(map[string]int)}
	for _, p := range f.Personas {
		if err := c.add(p); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// LoadCatalog returns the built-in catalog merged with the personas in path.
// Entries in the file replace built-ins with the same key. An empty path
// returns the built-in catalog.
func LoadCatalog(path string) (*Catalog, error) {
	base := DefaultCatalog()
	if path == "" {
		return base, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read personas file: %w", err)
	}

	extra, err := ParseCatalog(data)
	if err != nil {
		return nil, err
	}

	merged := base.clone()
	for _, p := range extra.personas {
		merged.add(p)
	}

	log.Info().
		Str("path", path).
		Int("loaded", len(extra.personas)).
		Int("total", len(merged.personas)).
		Msg("loaded persona catalog")

	return merged, nil
}

// Get returns the persona for key
func (c *Catalog) Get(key string) (Persona, bool) {
	i, ok := c.index[key]
	if !ok {
		return Persona{}, false
	}
	return c.personas[i], true
}

// List returns all personas in order
func (c *Catalog) List() []Persona {
	out := make([]Persona, len(c.personas))
	copy(out, c.personas)
	return out
}

// Keys returns persona keys in order
func (c *Catalog) Keys() []string {
	keys := make([]string, len(c.personas))
	for i, p := range c.personas {
		keys[i] = p.Key
	}
	return keys
}

// SystemPrompt picks the system prompt for a request. A custom prompt wins;
// an unknown persona falls back to the default.
func (c *Catalog) SystemPrompt(persona, custom string) string {
	if custom != "" {
		return custom
	}
	if p, ok := c.Get(persona); ok {
		return p.Prompt
	}
	if persona != "" {
		log.Warn().Str("persona", persona).Msg("unknown persona, using default")
	}
	p, _ := c.Get(DefaultPersona)
	return p.Prompt
}

func (c *Catalog) add(p Persona) error {
	p.Key = strings.TrimSpace(p.Key)
	if p.Key == "" {
		return fmt.Errorf("persona without key")
	}
	if strings.TrimSpace(p.Prompt) == "" {
		return fmt.Errorf("persona %q has an empty prompt", p.Key)
	}
	if i, ok := c.index[p.Key]; ok {
		c.personas[i] = p
		return nil
	}
	c.index[p.Key] = len(c.personas)
	c.personas = append(c.personas, p)
	return nil
}

func (c *Catalog) clone() *Catalog {
	out := &Catalog{
		personas: make([]Persona, len(c.personas)),
		index:    make(map[string]int, len(c.index)),
	}
	copy(out.personas, c.personas)
	for k, v := range c.index {
		out.index[k] = v
	}
	return out
}

// SystemPrompt resolves a system prompt against the built-in catalog
func SystemPrompt(persona, custom string) string {
	return DefaultCatalog().SystemPrompt(persona, custom)
}
