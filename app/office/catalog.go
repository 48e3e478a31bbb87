package office

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"
)

const officePlaceholder = "{office}"

// Catalog is the fixed, ordered set of offices a run walks through.
type Catalog struct {
	file        string
	names       []string
	urlTemplate string

	mu      sync.RWMutex
	offices []Office
	byKey   map[string]int
}

func NewCatalog(file string, names []string, urlTemplate string) *Catalog {
	return &Catalog{
		file:        file,
		names:       names,
		urlTemplate: urlTemplate,
		byKey:       make(map[string]int),
	}
}

// Run loads the catalog file when one is configured, otherwise builds the
// catalog from the configured office names.
func (c *Catalog) Run() error {
	var offices []Office

	if c.file != "" {
		loaded, err := c.parseFile(c.file)
		if err != nil {
			return err
		}
		offices = loaded
	} else {
		for _, name := range c.names {
			offices = append(offices, Office{Name: name})
		}
	}

	if len(offices) == 0 {
		return fmt.Errorf("office catalog is empty")
	}

	byKey := make(map[string]int, len(offices))
	for i := range offices {
		offices[i].Name = strings.TrimSpace(offices[i].Name)
		if offices[i].Name == "" {
			return fmt.Errorf("office at index %d has no name", i)
		}

		key := foldKey(offices[i].Name)
		if _, dup := byKey[key]; dup {
			return fmt.Errorf("office '%s' is listed more than once", offices[i].Name)
		}
		byKey[key] = i

		if offices[i].SlotsURL == "" {
			offices[i].SlotsURL = strings.ReplaceAll(c.urlTemplate, officePlaceholder, url.QueryEscape(offices[i].Name))
		}

		slog.Debug("Office loaded", "office", offices[i].Name, "enabled", offices[i].IsEnabled(), "slots_url", offices[i].SlotsURL)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.offices = offices
	c.byKey = byKey

	return nil
}

func (c *Catalog) parseFile(file string) ([]Office, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read office catalog: %w", err)
	}

	var parsed catalogFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return parsed.Offices, nil
}

// Enabled returns enabled offices in catalog order.
func (c *Catalog) Enabled() []Office {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]Office, 0, len(c.offices))
	for _, o := range c.offices {
		if o.IsEnabled() {
			result = append(result, o)
		}
	}
	return result
}

func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, len(c.offices))
	for i, o := range c.offices {
		names[i] = o.Name
	}
	return names
}

// Canonical resolves a user-supplied office name case-insensitively.
func (c *Catalog) Canonical(name string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	i, ok := c.byKey[foldKey(name)]
	if !ok {
		return "", false
	}
	return c.offices[i].Name, true
}

func (c *Catalog) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.offices)
}

// Casers are stateful, so each key gets a fresh one.
func foldKey(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}
