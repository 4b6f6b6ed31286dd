package aro

// RegisterBuiltins installs every built-in verb implementation into r.
// cmd/aro-runtime calls this once at startup, before its registerPlugin
// adds any plugin task, and before Registry.Seal.
func RegisterBuiltins(r *Registry) {
	RegisterRequestActions(r)
	RegisterOwnActions(r)
	RegisterResponseActions(r)
	RegisterExportActions(r)
	RegisterServiceActions(r)
	RegisterFileSystemActions(r)
}
