package aro

import "fmt"

// ResponseStatus enumerates spec §3's Response status enum, mapped to the
// HTTP codes the native HTTP server writes.
type ResponseStatus int

const (
	StatusOK ResponseStatus = iota
	StatusCreated
	StatusAccepted
	StatusNoContent
	StatusBadRequest
	StatusUnauthorized
	StatusForbidden
	StatusNotFound
	StatusConflict
	StatusUnprocessableEntity
	StatusInternalError
	StatusServiceUnavailable
)

var statusHTTPCode = map[ResponseStatus]int{
	StatusOK:                  200,
	StatusCreated:             201,
	StatusAccepted:            202,
	StatusNoContent:           204,
	StatusBadRequest:          400,
	StatusUnauthorized:        401,
	StatusForbidden:           403,
	StatusNotFound:            404,
	StatusConflict:            409,
	StatusUnprocessableEntity: 422,
	StatusInternalError:       500,
	StatusServiceUnavailable:  503,
}

func (s ResponseStatus) HTTPCode() int {
	if code, ok := statusHTTPCode[s]; ok {
		return code
	}
	return 500
}

var statusNames = map[string]ResponseStatus{
	"ok":                  StatusOK,
	"created":             StatusCreated,
	"accepted":            StatusAccepted,
	"nocontent":           StatusNoContent,
	"badrequest":          StatusBadRequest,
	"unauthorized":        StatusUnauthorized,
	"forbidden":           StatusForbidden,
	"notfound":            StatusNotFound,
	"conflict":            StatusConflict,
	"unprocessableentity": StatusUnprocessableEntity,
	"internalerror":       StatusInternalError,
	"serviceunavailable":  StatusServiceUnavailable,
}

// ParseResponseStatus is lenient about case/punctuation so both
// "UnprocessableEntity" and "unprocessable-entity" resolve the same way.
func ParseResponseStatus(name string) (ResponseStatus, bool) {
	normalized := normalizeStatusName(name)
	s, ok := statusNames[normalized]
	return s, ok
}

func normalizeStatusName(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '-' || c == '_' || c == ' ' {
			continue
		}
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}

// Response is spec §3's (status, data) terminal outcome.
type Response struct {
	Status ResponseStatus
	Data   Value
}

// RegisterResponseActions installs the `response` semantic-role verbs:
// return, throw (spec §4.2). Both are terminal: no subsequent statement
// in the activation runs.
func RegisterResponseActions(r *Registry) {
	r.Register("return", RoleResponse, actionReturn)
	r.Register("throw", RoleResponse, actionThrow)
}

// actionReturn implements spec §4.3 Return: builds a Response from
// (status, data) and installs it via Context.SetResponse (exactly-once).
func actionReturn(ctx *Context, result ResultDescriptor, object ObjectDescriptor) ActionOutcome {
	status := StatusOK
	if spec := result.Specifier(); spec != "" {
		if parsed, ok := ParseResponseStatus(spec); ok {
			status = parsed
		}
	} else if spec := object.Base; spec != "" {
		if parsed, ok := ParseResponseStatus(spec); ok {
			status = parsed
		}
	}

	data, ok := ctx.Resolve(BindingExpression)
	if !ok {
		data, ok = ctx.Resolve(BindingLiteral)
	}
	if !ok {
		if v, err := ctx.MustResolve(object.Base); err == nil {
			data = v
		} else {
			data = Map(NewOrderedMap())
		}
	}

	out := NewOrderedMap()
	out.Set("status", Int(int64(status.HTTPCode())))
	out.Set("data", data)
	responseVal := Map(out)

	if !ctx.SetResponse(responseVal) {
		// Exactly-once: a prior Return/Throw already terminated this
		// activation; this one is silently dropped (spec §3 Invariants).
		return ActionOutcome{Succeeded: true}
	}
	return ActionOutcome{Succeeded: true, Value: responseVal}
}

// actionThrow implements spec §4.3 Throw: installs an ActionError with
// (type, reason, condition) into the context's error slot.
func actionThrow(ctx *Context, result ResultDescriptor, object ObjectDescriptor) ActionOutcome {
	thrownType := result.Base
	if thrownType == "" {
		thrownType = object.Base
	}
	reason := thrownType
	if r, ok := ctx.Resolve(BindingExpression); ok && r.Kind() == KindString {
		reason = r.AsString()
	} else if r, ok := ctx.Resolve(BindingLiteral); ok && r.Kind() == KindString {
		reason = r.AsString()
	}
	err := &ActionError{
		Kind:       ErrThrownError,
		ThrownType: thrownType,
		Message:    fmt.Sprintf("%s: %s", thrownType, reason),
	}
	ctx.SetExecutionError(err)
	return Fail(err)
}
