package arena

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Role is the combat category of a build.
type Role string

const (
	RoleHealer Role = "healer"
	RoleDPS    Role = "dps"
)

// Kungfu is one entry of the reference table.
type Kungfu struct {
	ID      string   `yaml:"id"`
	Name    string   `yaml:"name"`
	School  string   `yaml:"school"`
	Aliases []string `yaml:"aliases"`
	Role    Role     `yaml:"-"`
}

// KungfuTable maps build identifiers, display names and aliases to builds.
// It is read-only after construction and safe for concurrent use.
type KungfuTable struct {
	entries []Kungfu
	index   map[string]int
}

type kungfuFile struct {
	Healer []Kungfu `yaml:"healer"`
	DPS    []Kungfu `yaml:"dps"`
}

//go:embed kungfu.yaml
var defaultKungfuYAML []byte

var (
	defaultTableOnce sync.Once
	defaultTable     *KungfuTable
)

// DefaultKungfuTable returns the embedded reference table, parsed once.
func DefaultKungfuTable() *KungfuTable {
	defaultTableOnce.Do(func() {
		t, err := ParseKungfuTable(defaultKungfuYAML)
		if err != nil {
			panic(fmt.Sprintf("embedded kungfu table: %v", err))
		}
		defaultTable = t
	})
	return defaultTable
}

// ParseKungfuTable parses a YAML reference table with "healer" and "dps" lists.
func ParseKungfuTable(data []byte) (*KungfuTable, error) {
	var f kungfuFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse kungfu table: %w", err)
	}

	entries := make([]Kungfu, 0, len(f.Healer)+len(f.DPS))
	for _, k := range f.Healer {
		k.Role = RoleHealer
		entries = append(entries, k)
	}
	for _, k := range f.DPS {
		k.Role = RoleDPS
		entries = append(entries, k)
	}
	return NewKungfuTable(entries)
}

// NewKungfuTable indexes entries. Keys are case-insensitive; a key may not map to two builds.
func NewKungfuTable(entries []Kungfu) (*KungfuTable, error) {
	t := &KungfuTable{
		entries: make([]Kungfu, 0, len(entries)),
		index:   make(map[string]int, len(entries)*3),
	}

	for _, k := range entries {
		if k.Name == "" {
			return nil, fmt.Errorf("%w: kungfu %q has no name", ErrInvalidInput, k.ID)
		}
		if k.Role != RoleHealer && k.Role != RoleDPS {
			return nil, fmt.Errorf("%w: kungfu %q has role %q", ErrInvalidInput, k.Name, k.Role)
		}

		pos := len(t.entries)
		t.entries = append(t.entries, k)

		keys := append([]string{k.ID, k.Name}, k.Aliases...)
		for _, key := range keys {
			norm := normalizeKey(key)
			if norm == "" {
				continue
			}
			if prev, ok := t.index[norm]; ok && prev != pos {
				return nil, fmt.Errorf("%w: key %q maps to %q and %q",
					ErrInvalidInput, key, t.entries[prev].Name, k.Name)
			}
			t.index[norm] = pos
		}
	}

	return t, nil
}

func normalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Lookup finds a build by identifier, display name or alias.
func (t *KungfuTable) Lookup(key string) (Kungfu, bool) {
	if t == nil {
		return Kungfu{}, false
	}
	pos, ok := t.index[normalizeKey(key)]
	if !ok {
		return Kungfu{}, false
	}
	return t.entries[pos], true
}

// DisplayName maps key to its display name. Unknown keys come back trimmed and unchanged.
func (t *KungfuTable) DisplayName(key string) (string, bool) {
	if k, ok := t.Lookup(key); ok {
		return k.Name, true
	}
	return strings.TrimSpace(key), false
}

// Classify returns the role of a build.
func (t *KungfuTable) Classify(build string) (Role, bool) {
	k, ok := t.Lookup(build)
	if !ok {
		return "", false
	}
	return k.Role, true
}

// Names returns the display names for role, sorted.
func (t *KungfuTable) Names(role Role) []string {
	var out []string
	for _, k := range t.entries {
		if k.Role == role {
			out = append(out, k.Name)
		}
	}
	sort.Strings(out)
	return out
}

// Len returns the number of builds.
func (t *KungfuTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}
