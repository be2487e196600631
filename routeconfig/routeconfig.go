// Package routeconfig loads route trees from YAML documents, letting hosts
// keep their route table out of Go source.
package routeconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/routestate/routestate"
)

// routeYAML mirrors routestate.RouteDefinition's shape for decoding; a
// distinct type is kept because RouteDefinition's Encoding field is an
// interface (EncodingStrategy) that YAML cannot decode directly and Extras
// needs to stay a plain map for passthrough.
type routeYAML struct {
	Name          string                 `yaml:"name"`
	Path          string                 `yaml:"path"`
	Children      []routeYAML            `yaml:"children"`
	DefaultParams map[string]any         `yaml:"defaultParams"`
	ForwardTo     string                 `yaml:"forwardTo"`
	Encoding      string                 `yaml:"encoding"`
	Extras        map[string]any         `yaml:"extras"`
}

type document struct {
	Routes []routeYAML `yaml:"routes"`
}

// Load decodes a YAML document into route definitions ready for
// routestate.NewRouteTree.
func Load(data []byte) ([]routestate.RouteDefinition, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("routeconfig: decode: %w", err)
	}
	defs := make([]routestate.RouteDefinition, 0, len(doc.Routes))
	for _, r := range doc.Routes {
		defs = append(defs, convert(r))
	}
	return defs, nil
}

// LoadFile reads and decodes a YAML route file from disk.
func LoadFile(path string) ([]routestate.RouteDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("routeconfig: read %s: %w", path, err)
	}
	return Load(data)
}

func convert(r routeYAML) routestate.RouteDefinition {
	children := make([]routestate.RouteDefinition, 0, len(r.Children))
	for _, c := range r.Children {
		children = append(children, convert(c))
	}
	var enc routestate.EncodingStrategy
	if r.Encoding != "" {
		enc = routestate.EncodingByName(r.Encoding)
	}
	return routestate.RouteDefinition{
		Name:          r.Name,
		Path:          r.Path,
		Children:      children,
		DefaultParams: r.DefaultParams,
		ForwardTo:     r.ForwardTo,
		Encoding:      enc,
		Extras:        r.Extras,
	}
}
