package plugin

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/object"

	"github.com/arolang/runtime"
)

// LoadScript loads a .risor file as a single-task plugin. The script is
// evaluated fresh on every Task call rather than compiled once — the
// same per-invocation Eval shape the Compute action's "script" specifier
// uses for expr-lang, just handed to Risor instead so a script plugin
// can reach for loops and function definitions an expr-lang one-liner
// can't express.
//
// The script sees three globals:
//
//	object      — the Go-native value the statement's object resolves to
//	specifiers  — the object descriptor's specifier list, []string
//	preposition — the object descriptor's preposition word, e.g. "from"
//
// The script's final expression becomes the Task's result value.
func LoadScript(path string) (Provider, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("plugin: read %s: %w", path, err)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return &scriptPlugin{taskName: "script." + name, code: string(code)}, nil
}

type scriptPlugin struct {
	taskName string
	code     string
}

func (p *scriptPlugin) Tasks() map[string]Task {
	return map[string]Task{p.taskName: p.run}
}

func (p *scriptPlugin) run(ctx *Context, result Result, object_ Object) Outcome {
	var objectNative any
	if v, ok := ctx.Resolve(object_.Base); ok {
		objectNative = v.Native()
	}

	globals := map[string]any{
		"object":      objectNative,
		"specifiers":  object_.Specifiers,
		"preposition": object_.Preposition.String(),
	}

	out, err := risor.Eval(ctx.GoContext(), p.code,
		risor.WithoutDefaultGlobals(),
		risor.WithGlobals(globals),
	)
	if err != nil {
		return Fail(fmt.Errorf("plugin: script %s: %w", p.taskName, err))
	}
	return Succeed(aro.FromNative(objectToGo(out)))
}

// objectToGo recursively converts a Risor object.Object to a native Go
// value that aro.FromNative can lift into a Value.
func objectToGo(obj object.Object) any {
	if obj == nil {
		return nil
	}
	switch o := obj.(type) {
	case *object.Map:
		out := make(map[string]any, len(o.Value()))
		for k, v := range o.Value() {
			out[k] = objectToGo(v)
		}
		return out
	case *object.List:
		items := o.Value()
		out := make([]any, len(items))
		for i, v := range items {
			out[i] = objectToGo(v)
		}
		return out
	case *object.NilType:
		return nil
	default:
		return obj.Interface()
	}
}
