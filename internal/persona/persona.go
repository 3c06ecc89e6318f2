// Package persona holds the catalog of speaking styles used in system prompts.
package persona

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultStyle is used when a chat names a style the catalog does not have.
const DefaultStyle = "standup"

//go:embed styles.yaml
var builtinStyles []byte

type Style struct {
	Code   string `yaml:"code"`
	Name   string `yaml:"name"`
	Prompt string `yaml:"prompt"`
}

type Catalog struct {
	styles map[string]Style
	order  []string
}

// Load reads the built-in styles and, when overridePath is set, merges the styles
// from that YAML file over them.
func Load(overridePath string) (*Catalog, error) {
	c := &Catalog{styles: make(map[string]Style)}
	if err := c.merge(builtinStyles); err != nil {
		return nil, fmt.Errorf("builtin styles: %w", err)
	}
	if overridePath == "" {
		return c, nil
	}
	data, err := os.ReadFile(overridePath)
	if err != nil {
		return nil, fmt.Errorf("read persona file: %w", err)
	}
	if err := c.merge(data); err != nil {
		return nil, fmt.Errorf("persona file %s: %w", overridePath, err)
	}
	return c, nil
}

func (c *Catalog) merge(data []byte) error {
	var styles []Style
	if err := yaml.Unmarshal(data, &styles); err != nil {
		return err
	}
	var added []string
	for _, s := range styles {
		s.Code = strings.ToLower(strings.TrimSpace(s.Code))
		if s.Code == "" {
			return fmt.Errorf("style without code")
		}
		old, exists := c.styles[s.Code]
		if s.Name == "" {
			s.Name = old.Name
		}
		if s.Name == "" {
			s.Name = s.Code
		}
		if strings.TrimSpace(s.Prompt) == "" {
			s.Prompt = old.Prompt
		}
		c.styles[s.Code] = s
		if !exists {
			added = append(added, s.Code)
		}
	}
	if len(c.order) > 0 {
		// styles added by an override file go after the built-ins, by name
		sort.Slice(added, func(i, j int) bool {
			return strings.ToLower(c.styles[added[i]].Name) < strings.ToLower(c.styles[added[j]].Name)
		})
	}
	c.order = append(c.order, added...)
	return nil
}

// Get returns the style for code, falling back to DefaultStyle.
func (c *Catalog) Get(code string) Style {
	if s, ok := c.styles[strings.ToLower(strings.TrimSpace(code))]; ok {
		return s
	}
	return c.styles[DefaultStyle]
}

func (c *Catalog) Has(code string) bool {
	_, ok := c.styles[strings.ToLower(strings.TrimSpace(code))]
	return ok
}

// List returns all styles in display order.
func (c *Catalog) List() []Style {
	out := make([]Style, 0, len(c.order))
	for _, code := range c.order {
		out = append(out, c.styles[code])
	}
	return out
}
