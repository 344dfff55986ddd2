package prompt

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"sync"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed messages.yaml
var defaultMessagesRaw []byte

// Catalog holds per-plugin message templates keyed by message id.
type Catalog struct {
	messages map[string]map[string]*template.Template
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default returns the catalog built from the embedded messages.yaml.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := Load(defaultMessagesRaw)
		if err != nil {
			panic(fmt.Errorf("embedded messages: %w", err))
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// Load parses a YAML document of the form plugin -> id -> template.
func Load(raw []byte) (*Catalog, error) {
	var doc map[string]map[string]string
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	c := &Catalog{messages: make(map[string]map[string]*template.Template, len(doc))}
	if err := c.merge(doc); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadFile layers the messages in path over the embedded defaults.
func LoadFile(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read messages file: %w", err)
	}
	var doc map[string]map[string]string
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode messages file %s: %w", path, err)
	}
	c := Default().clone()
	if err := c.merge(doc); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) clone() *Catalog {
	out := &Catalog{messages: make(map[string]map[string]*template.Template, len(c.messages))}
	for plugin, ids := range c.messages {
		out.messages[plugin] = make(map[string]*template.Template, len(ids))
		for id, tpl := range ids {
			out.messages[plugin][id] = tpl
		}
	}
	return out
}

func (c *Catalog) merge(doc map[string]map[string]string) error {
	for plugin, ids := range doc {
		if c.messages[plugin] == nil {
			c.messages[plugin] = make(map[string]*template.Template, len(ids))
		}
		for id, text := range ids {
			tpl, err := template.New(plugin + "." + id).Option("missingkey=error").Parse(strings.TrimSpace(text))
			if err != nil {
				return fmt.Errorf("parse message %s.%s: %w", plugin, id, err)
			}
			c.messages[plugin][id] = tpl
		}
	}
	return nil
}

// Has reports whether plugin defines id.
func (c *Catalog) Has(plugin, id string) bool {
	_, ok := c.messages[plugin][id]
	return ok
}

// T renders message id of plugin with vars. Unknown ids and rendering
// failures fall back to "<id> (<vars>)" so a missing translation never
// breaks a reply.
func (c *Catalog) T(plugin, id string, vars map[string]any) string {
	tpl, ok := c.messages[plugin][id]
	if !ok {
		return fallback(id, vars)
	}
	if vars == nil {
		vars = map[string]any{}
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, vars); err != nil {
		return fallback(id, vars)
	}
	return buf.String()
}

func fallback(id string, vars map[string]any) string {
	if vars == nil {
		vars = map[string]any{}
	}
	return fmt.Sprintf("%s (%v)", id, vars)
}

// For binds the catalog to one plugin.
func (c *Catalog) For(plugin string) Messages {
	return Messages{catalog: c, plugin: plugin}
}

// Messages is a catalog view scoped to one plugin.
type Messages struct {
	catalog *Catalog
	plugin  string
}

func (m Messages) T(id string, vars map[string]any) string {
	if m.catalog == nil {
		return fallback(id, vars)
	}
	return m.catalog.T(m.plugin, id, vars)
}
