package aro

// Repository is the dependency Context/actions_*.go need from the
// repository/ package (spec §3 "Repository", §4.3 Store/Retrieve/Delete).
// Defined here so the root package never imports repository/; repository/
// imports aro for Value/Context/Event instead.
type Repository interface {
	Append(entity Value) error
	All() []Value
	Where(predicate func(Value) bool) []Value
	DeleteWhere(predicate func(Value) bool) (int, error)
	Count() int
}

// RepositoryManager resolves a named repository within a business
// activity, creating it on first use (spec §3: "keyed by
// (businessActivity, name)").
type RepositoryManager interface {
	Repository(businessActivity, name string) Repository
}

func isRepositoryName(name string) bool {
	const suffix = "-repository"
	return len(name) > len(suffix) && name[len(name)-len(suffix):] == suffix
}
