// Package datasource resolves datasource references to live query instances.
//
// Datasources come from the configuration file and from YAML provisioning
// files. A Registry holds their settings; a Service opens and caches one
// Instance per datasource and attaches recent query history on resolution.
package datasource

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/leapstack-labs/leapexplore/pkg/adapter"
	"github.com/leapstack-labs/leapexplore/pkg/core"
)

// DefaultOrgID is assigned to datasources configured without an org.
const DefaultOrgID int64 = 1

// ErrNotFound is returned when a reference matches no datasource.
var ErrNotFound = errors.New("datasource not found")

// Settings describes one configured datasource.
type Settings = core.DatasourceConfig

// Registry holds datasource settings by org.
type Registry struct {
	mu    sync.RWMutex
	items []Settings
}

// NewRegistry validates settings and builds a registry.
func NewRegistry(settings []Settings) (*Registry, error) {
	r := &Registry{}
	if err := r.Replace(settings); err != nil {
		return nil, err
	}
	return r, nil
}

// Replace swaps all settings atomically. The registry is unchanged on error.
func (r *Registry) Replace(settings []Settings) error {
	items, err := normalize(settings)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.items = items
	r.mu.Unlock()
	return nil
}

// Get resolves ref within orgID. The UID is matched first, then the name;
// a ref built from a plain string sets both.
func (r *Registry) Get(orgID int64, ref core.DataSourceRef) (Settings, error) {
	if ref.IsZero() {
		return Settings{}, fmt.Errorf("%w: empty reference", ErrNotFound)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	if ref.UID != "" {
		for _, s := range r.items {
			if s.OrgID == orgID && s.UID == ref.UID {
				return s, nil
			}
		}
	}
	if ref.Name != "" {
		for _, s := range r.items {
			if s.OrgID == orgID && strings.EqualFold(s.Name, ref.Name) {
				return s, nil
			}
		}
	}
	return Settings{}, fmt.Errorf("%w: %q in org %d", ErrNotFound, ref.String(), orgID)
}

// Default returns the default datasource of orgID: the one flagged
// is_default, otherwise the first by name.
func (r *Registry) Default(orgID int64) (Settings, error) {
	list := r.List(orgID)
	if len(list) == 0 {
		return Settings{}, fmt.Errorf("%w: org %d has no datasources", ErrNotFound, orgID)
	}
	for _, s := range list {
		if s.IsDefault {
			return s, nil
		}
	}
	return list[0], nil
}

// List returns the datasources of orgID sorted by name.
func (r *Registry) List(orgID int64) []Settings {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Settings
	for _, s := range r.items {
		if s.OrgID == orgID {
			out = append(out, s)
		}
	}
	return out
}

func (r *Registry) all() []Settings {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.items)
}

// Ref parses a user-supplied datasource identifier, which may be a UID or a name.
func Ref(s string) core.DataSourceRef {
	s = strings.TrimSpace(s)
	return core.DataSourceRef{UID: s, Name: s}
}

// Merge overlays provisioned settings on base, matching by org and UID.
func Merge(base, provisioned []Settings) []Settings {
	out := slices.Clone(base)
	for _, p := range provisioned {
		replaced := false
		for i, b := range out {
			if orgOf(b) == orgOf(p) && uidOf(b) == uidOf(p) {
				out[i] = p
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, p)
		}
	}
	return out
}

func normalize(settings []Settings) ([]Settings, error) {
	items := make([]Settings, 0, len(settings))
	uids := make(map[string]bool)
	names := make(map[string]bool)
	defaults := make(map[int64]string)

	for i, s := range settings {
		if s.Name == "" {
			return nil, fmt.Errorf("datasource #%d: name is required", i+1)
		}
		if s.Type == "" {
			return nil, fmt.Errorf("datasource %q: type is required", s.Name)
		}
		s.Type = strings.ToLower(s.Type)
		if !adapter.IsRegistered(s.Type) {
			return nil, fmt.Errorf("datasource %q: %w", s.Name, &adapter.UnknownAdapterError{Type: s.Type, Available: adapter.ListAdapters()})
		}
		s.OrgID = orgOf(s)
		s.UID = uidOf(s)

		uidKey := fmt.Sprintf("%d/%s", s.OrgID, s.UID)
		if uids[uidKey] {
			return nil, fmt.Errorf("datasource %q: duplicate uid %q", s.Name, s.UID)
		}
		uids[uidKey] = true

		nameKey := fmt.Sprintf("%d/%s", s.OrgID, strings.ToLower(s.Name))
		if names[nameKey] {
			return nil, fmt.Errorf("datasource %q: duplicate name in org %d", s.Name, s.OrgID)
		}
		names[nameKey] = true

		if s.IsDefault {
			if prev, ok := defaults[s.OrgID]; ok {
				return nil, fmt.Errorf("datasources %q and %q are both default in org %d", prev, s.Name, s.OrgID)
			}
			defaults[s.OrgID] = s.Name
		}
		items = append(items, s)
	}

	slices.SortStableFunc(items, func(a, b Settings) int {
		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	})
	return items, nil
}

func orgOf(s Settings) int64 {
	if s.OrgID == 0 {
		return DefaultOrgID
	}
	return s.OrgID
}

// uidOf returns the configured UID, or one derived from the name.
func uidOf(s Settings) string {
	if s.UID != "" {
		return s.UID
	}
	return strings.Join(strings.Fields(strings.ToLower(s.Name)), "-")
}
