package plugin

import (
	"fmt"
	stdplugin "plugin"
)

// LoadNative loads a compiled Go plugin (built with `go build
// -buildmode=plugin`) from path and resolves its exported `New` symbol,
// which must have the signature `func() plugin.Provider` (or return a
// concrete type implementing Provider). This is the dynamic,
// loaded-by-file-path mechanism spec §9 calls in-scope — the compilation
// pipeline that produces the .so itself is not.
func LoadNative(path string) (Provider, error) {
	lib, err := stdplugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("plugin: open %s: %w", path, err)
	}
	sym, err := lib.Lookup("New")
	if err != nil {
		return nil, fmt.Errorf("plugin: %s does not export New: %w", path, err)
	}
	factory, ok := sym.(func() Provider)
	if !ok {
		return nil, fmt.Errorf("plugin: %s's New has the wrong signature, want func() plugin.Provider", path)
	}
	return factory(), nil
}
