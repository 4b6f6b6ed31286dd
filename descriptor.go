package aro

import "fmt"

// Preposition is the object descriptor's preposition code (spec §6
// "Descriptor wire format"), numbered to match the C ABI's wire encoding
// so cabi/bindings.go can convert directly between the two.
type Preposition int

const (
	PrepositionNone    Preposition = 0
	PrepositionFrom    Preposition = 1
	PrepositionFor     Preposition = 2
	PrepositionWith    Preposition = 3
	PrepositionTo      Preposition = 4
	PrepositionInto    Preposition = 5
	PrepositionVia     Preposition = 6
	PrepositionAgainst Preposition = 7
	PrepositionOn      Preposition = 8
)

func (p Preposition) String() string {
	switch p {
	case PrepositionFrom:
		return "from"
	case PrepositionFor:
		return "for"
	case PrepositionWith:
		return "with"
	case PrepositionTo:
		return "to"
	case PrepositionInto:
		return "into"
	case PrepositionVia:
		return "via"
	case PrepositionAgainst:
		return "against"
	case PrepositionOn:
		return "on"
	default:
		return "none"
	}
}

// ParsePreposition maps the lowercased English preposition word to its
// code; used by cmd/aro-runtime's interpreter-mode descriptor parser.
func ParsePreposition(word string) (Preposition, error) {
	switch word {
	case "", "none":
		return PrepositionNone, nil
	case "from":
		return PrepositionFrom, nil
	case "for":
		return PrepositionFor, nil
	case "with":
		return PrepositionWith, nil
	case "to":
		return PrepositionTo, nil
	case "into":
		return PrepositionInto, nil
	case "via":
		return PrepositionVia, nil
	case "against":
		return PrepositionAgainst, nil
	case "on":
		return PrepositionOn, nil
	default:
		return PrepositionNone, fmt.Errorf("unknown preposition %q", word)
	}
}

// ResultDescriptor names the binding a statement's result is written to,
// plus any specifiers that extend it (spec §4.2). For `<upper:
// uppercase>`, Base is "upper" and Specifiers is ["uppercase"].
type ResultDescriptor struct {
	Base       string
	Specifiers []string
}

// Specifier returns the first specifier, or "" if none — the common case
// (Compute dispatches by exactly one specifier).
func (r ResultDescriptor) Specifier() string {
	if len(r.Specifiers) == 0 {
		return ""
	}
	return r.Specifiers[0]
}

// ObjectDescriptor names the statement's object phrase: a preposition, a
// base variable name, and optional specifiers navigating into it (spec
// §4.2). `Extract the user from the request` has Preposition=from,
// Base="request"; `Extract the email from the user.contact` additionally
// carries Specifiers=["contact", "email"] or similar, depending on how the
// source parser split the property path.
type ObjectDescriptor struct {
	Preposition Preposition
	Base        string
	Specifiers  []string
}

// ActionOutcome is what every verb implementation returns (spec §4.2).
type ActionOutcome struct {
	Succeeded bool
	Value     Value
	Err       error
}

func Succeed(v Value) ActionOutcome { return ActionOutcome{Succeeded: true, Value: v} }
func Fail(err error) ActionOutcome  { return ActionOutcome{Succeeded: false, Err: err} }
