// Package roster describes which entities are aggregated into which regions
// and interconnections.
package roster

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/levenlabs/go-lflag"
)

// Target is an aggregated entity and the entities summed to build it.
type Target struct {
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

// Roster lists aggregation targets in build order and the entities whose data
// is usable. Targets may be built from balancing authorities or from targets
// earlier in the list.
type Roster struct {
	Targets []Target `json:"targets"`
	Usable  []string `json:"usable"`
}

// Configured returns the roster selected by flags. Without -roster-file the
// built-in roster is used.
func Configured() *Roster {
	path := lflag.String("roster-file", "", "JSON file with aggregation targets and usable entities (defaults to built-in roster)")

	r := &Roster{}
	lflag.Do(func() {
		var loaded *Roster
		if *path == "" {
			loaded = Default()
		} else {
			var err error
			loaded, err = Load(*path)
			if err != nil {
				panic(fmt.Sprintf("roster load failed: %v", err))
			}
		}
		*r = *loaded
	})
	return r
}

// Load reads a JSON roster from path and validates it.
func Load(path string) (*Roster, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read roster %s: %w", path, err)
	}
	var r Roster
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal roster %s: %w", path, err)
	}
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("invalid roster %s: %w", path, err)
	}
	return &r, nil
}

// Validate checks that every target is named, has members, does not include
// itself, and only references targets built before it.
func (r *Roster) Validate() error {
	seen := make(map[string]int, len(r.Targets))
	for i, t := range r.Targets {
		if t.Name == "" {
			return fmt.Errorf("target %d has no name", i)
		}
		if _, ok := seen[t.Name]; ok {
			return fmt.Errorf("target %s is listed twice", t.Name)
		}
		seen[t.Name] = i
	}
	for i, t := range r.Targets {
		if len(t.Members) == 0 {
			return fmt.Errorf("target %s has no members", t.Name)
		}
		for _, m := range t.Members {
			if m == "" {
				return fmt.Errorf("target %s has an empty member", t.Name)
			}
			if m == t.Name {
				return fmt.Errorf("target %s lists itself", t.Name)
			}
			if j, ok := seen[m]; ok && j > i {
				return fmt.Errorf("target %s uses %s which is built later", t.Name, m)
			}
		}
	}
	for _, u := range r.Usable {
		if u == "" {
			return errors.New("usable list has an empty entity")
		}
	}
	return nil
}

// IsUsable returns true if the entity is on the allow-list. Targets are always
// usable once built.
func (r *Roster) IsUsable(entity string) bool {
	return slices.Contains(r.Usable, entity) || r.IsTarget(entity)
}

// IsTarget returns true if the entity is built by aggregation.
func (r *Roster) IsTarget(entity string) bool {
	for _, t := range r.Targets {
		if t.Name == entity {
			return true
		}
	}
	return false
}

// BAs returns every member that is not itself a target, sorted, without
// duplicates. These are the entities fetched from the source.
func (r *Roster) BAs() []string {
	var bas []string
	for _, t := range r.Targets {
		for _, m := range t.Members {
			if r.IsTarget(m) || slices.Contains(bas, m) {
				continue
			}
			bas = append(bas, m)
		}
	}
	slices.Sort(bas)
	return bas
}

// Entities returns every usable entity whose table should exist after
// aggregation: usable balancing authorities followed by targets.
func (r *Roster) Entities() []string {
	var out []string
	for _, ba := range r.BAs() {
		if r.IsUsable(ba) {
			out = append(out, ba)
		}
	}
	for _, t := range r.Targets {
		out = append(out, t.Name)
	}
	return out
}
