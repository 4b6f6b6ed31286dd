package aro

import (
	"fmt"
	"regexp"
	"strings"
)

// StatementTemplate retains the unparsed source text of a statement
// alongside its compiled descriptors (spec §9 "Error-as-source-text": "the
// action call-site carries an immutable reference to a StatementTemplate
// that the error builder consults on failure"). Variable placeholders in
// Source are written as `{{name}}`; RenderError substitutes each with its
// resolved value at the moment of failure.
type StatementTemplate struct {
	Verb   string
	Source string
}

var placeholderPattern = regexp.MustCompile(`\{\{([a-zA-Z_][a-zA-Z0-9_.]*)\}\}`)

// RenderError implements the "the code is the error message" contract
// (spec §7): the rendered statement, with every {{name}} placeholder
// replaced by name's resolved value (or "<unbound>" if not resolvable),
// prefixed with "Cannot ".
func (t StatementTemplate) RenderError(ctx *Context) string {
	if t.Source == "" {
		return fmt.Sprintf("Cannot execute %s", t.Verb)
	}
	rendered := placeholderPattern.ReplaceAllStringFunc(t.Source, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		v, ok := ctx.Resolve(name)
		if !ok {
			return "<unbound>"
		}
		return renderValueForError(v)
	})
	return "Cannot " + strings.TrimSpace(rendered)
}

func renderValueForError(v Value) string {
	switch v.Kind() {
	case KindString:
		return v.AsString()
	case KindNull:
		return "null"
	case KindBool:
		if v.AsBool() {
			return "true"
		}
		return "false"
	default:
		encoded, err := ToJSON(v)
		if err != nil {
			return fmt.Sprintf("%v", v.Native())
		}
		return string(encoded)
	}
}
