package cli

import (
	"fmt"

	"github.com/distguard/distguard/internal/rules"
)

// loadRegistry compiles the built-in packs plus the pack file or pack
// directory at path.
func loadRegistry(path string, noBuiltin bool) (*rules.Registry, error) {
	if path == "" && !noBuiltin {
		return rules.BuiltinRegistry()
	}

	var sources []rules.Source
	if !noBuiltin {
		builtin, err := rules.Builtin()
		if err != nil {
			return nil, err
		}
		sources = append(sources, builtin...)
	}
	if path != "" {
		extra, err := rules.Load(path)
		if err != nil {
			return nil, err
		}
		sources = append(sources, extra...)
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("no rule packs to load")
	}
	return rules.Build(sources...)
}
