package main

import (
	"encoding/json"
	"fmt"
	"os"

	aro "github.com/arolang/runtime"
)

// Bundle is the JSON feature-set descriptor format the interpreter-mode
// host consumes (spec.md §1 draws the line at "AST/codegen producer" —
// whatever tool emits this JSON sits on the far side of that line; this
// host only ever walks already-compiled statement lists through
// aro.Dispatch; the C ABI exports no per-verb entry points).
type Bundle struct {
	BusinessActivity string              `json:"businessActivity"`
	Routes           []RouteDescriptor   `json:"routes"`
	Handlers         []HandlerDescriptor `json:"handlers"`
	Services         []ServiceDescriptor `json:"services"`
	ApplicationStart []StatementDesc     `json:"applicationStart"`
	ApplicationEnd   []StatementDesc     `json:"applicationEnd"`
	Schemas          map[string]any      `json:"schemas"`
}

// RouteDescriptor is one OpenAPI-style HTTP route: method/path feed the
// router, operationID names the handler, contentType overrides the
// response content-type negotiation when the feature set declares one
// explicitly (spec.md §6 "response content-type ... declared").
type RouteDescriptor struct {
	Method      string          `json:"method"`
	Path        string          `json:"path"`
	OperationID string          `json:"operationId"`
	ContentType string          `json:"contentType"`
	Statements  []StatementDesc `json:"statements"`
}

// HandlerDescriptor subscribes a statement list to an event bus topic
// (spec §4.5): RepositoryChanged, FileCreated, DataReceived, and any
// feature-set-published custom topic all arrive the same way.
type HandlerDescriptor struct {
	Topic      string          `json:"topic"`
	Guard      any             `json:"when"`
	Statements []StatementDesc `json:"statements"`
}

// ServiceDescriptor is one Start/Watch call to run at startup, before
// Application-Start — a bundle's equivalent of a feature set's own
// "Start the http-server" statement, for services that should already be
// listening by the time Application-Start runs.
type ServiceDescriptor struct {
	Name   string         `json:"name"`
	Config map[string]any `json:"config"`
}

// StatementDesc is the JSON encoding of one compiled statement: verb,
// result/object descriptors, an optional guard tree, and the original
// source text for the error-as-source-text contract (spec §9).
type StatementDesc struct {
	Verb   string  `json:"verb"`
	Result ResultJ `json:"result"`
	Object ObjectJ `json:"object"`
	Guard  any     `json:"when"`
	Source string  `json:"source"`
}

type ResultJ struct {
	Base       string   `json:"base"`
	Specifiers []string `json:"specifiers"`
}

type ObjectJ struct {
	Preposition string   `json:"preposition"`
	Base        string   `json:"base"`
	Specifiers  []string `json:"specifiers"`
}

// LoadBundle reads and decodes a feature-set bundle from path.
func LoadBundle(path string) (*Bundle, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bundle %s: %w", path, err)
	}
	var b Bundle
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("decode bundle %s: %w", path, err)
	}
	return &b, nil
}

// runStatements dispatches each statement in order against ctx, stopping
// early once the activation reaches a terminal state (spec §3's "later
// statements are no-ops" invariant, already enforced inside aro.Dispatch —
// the early return here just avoids pointless work once we know nothing
// further will execute).
func runStatements(ctx *aro.Context, stmts []StatementDesc) {
	for _, s := range stmts {
		if ctx.IsTerminal() {
			return
		}
		prep, err := aro.ParsePreposition(s.Object.Preposition)
		if err != nil {
			ctx.SetExecutionError(fmt.Errorf("bundle: statement %q: %w", s.Source, err))
			return
		}
		aro.Dispatch(ctx,
			s.Verb,
			aro.ResultDescriptor{Base: s.Result.Base, Specifiers: s.Result.Specifiers},
			aro.ObjectDescriptor{Preposition: prep, Base: s.Object.Base, Specifiers: s.Object.Specifiers},
			s.Guard,
			aro.StatementTemplate{Verb: s.Verb, Source: s.Source},
		)
	}
}
