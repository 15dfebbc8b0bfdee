package gamedata

import (
	"fmt"
	"strings"
)

// Route says which channel handles an in-game verb.
type Route int

const (
	RouteUnknown Route = iota
	RouteLocal
	RoutePush
	RouteRequest
)

// String returns the route name.
func (r Route) String() string {
	switch r {
	case RouteLocal:
		return "local"
	case RoutePush:
		return "push"
	case RouteRequest:
		return "request"
	default:
		return "unknown"
	}
}

// VerbTable maps verbs to routes, loaded from verbs.yaml.
type VerbTable struct {
	Local      []string          `yaml:"local"`
	Push       []string          `yaml:"push"`
	Request    []string          `yaml:"request"`
	TabAliases map[string]string `yaml:"tab_aliases"`

	routes map[string]Route
}

// LoadVerbs loads the verb table from the embedded verbs.yaml file.
func LoadVerbs() (*VerbTable, error) {
	table, err := Load[VerbTable]("verbs.yaml")
	if err != nil {
		return nil, err
	}
	if err := table.build(); err != nil {
		return nil, err
	}
	return &table, nil
}

// MustLoadVerbs loads the verb table, panicking on error.
func MustLoadVerbs() *VerbTable {
	table, err := LoadVerbs()
	if err != nil {
		panic(err)
	}
	return table
}

// build indexes the verb lists. A verb listed under two routes is an error.
func (t *VerbTable) build() error {
	t.routes = make(map[string]Route, len(t.Local)+len(t.Push)+len(t.Request))
	add := func(verbs []string, r Route) error {
		for _, v := range verbs {
			v = strings.ToLower(v)
			if prev, ok := t.routes[v]; ok {
				return fmt.Errorf("verb %q listed as both %s and %s", v, prev, r)
			}
			t.routes[v] = r
		}
		return nil
	}
	if err := add(t.Local, RouteLocal); err != nil {
		return err
	}
	if err := add(t.Push, RoutePush); err != nil {
		return err
	}
	return add(t.Request, RouteRequest)
}

// Route returns the route for verb, case-insensitively.
func (t *VerbTable) Route(verb string) Route {
	if t == nil || t.routes == nil {
		return RouteUnknown
	}
	return t.routes[strings.ToLower(verb)]
}

// Tab resolves a tab name or alias.
func (t *VerbTable) Tab(name string) (string, bool) {
	tab, ok := t.TabAliases[strings.ToLower(name)]
	return tab, ok
}
