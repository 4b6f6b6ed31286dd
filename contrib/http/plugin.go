// Package webhook is an example domain plugin: a single "webhook.post"
// task built around a retrying resty client, adapted from the same
// request-building/response-flattening shape actionFetch uses for the
// builtin Fetch/Request verb. It demonstrates config.Prepare-backed
// plugin configuration and the Initializer/Shutdowner lifecycle end to
// end.
package webhook

import (
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/arolang/runtime/config"
	"github.com/arolang/runtime/plugin"
)

// Config holds the webhook plugin's retry/timeout behavior. Defaults and
// bounds are declarative (config.Prepare applies them before Initialize
// ever runs), the same contract every plugin Config struct follows.
type Config struct {
	Timeout     time.Duration `yaml:"timeout" default:"30s" validate:"gte=1s"`
	MaxRetries  int           `yaml:"max_retries" default:"3" validate:"gte=0,lte=10"`
	RetryWaitMS int           `yaml:"retry_wait_ms" default:"100" validate:"gte=0"`
	Debug       bool          `yaml:"debug" default:"false"`
}

// Plugin delivers webhook payloads over HTTP POST with retry/backoff.
type Plugin struct {
	Config Config
	client *resty.Client
}

// New returns a webhook Plugin with its Config defaulted and validated.
// The host merges no overrides into it; New's own config.Prepare call is
// what makes the plugin safe to use standalone.
func New() plugin.Provider {
	p := &Plugin{}
	if err := config.Prepare(&p.Config, nil); err != nil {
		// Defaults are declarative and always satisfy their own bounds;
		// reaching here means a programmer error in the struct tags.
		panic(fmt.Sprintf("webhook: invalid default config: %v", err))
	}
	return p
}

// Initialize implements plugin.Initializer.
func (p *Plugin) Initialize() error {
	p.client = resty.New().
		SetTimeout(p.Config.Timeout).
		SetRetryCount(p.Config.MaxRetries).
		SetRetryWaitTime(time.Duration(p.Config.RetryWaitMS) * time.Millisecond).
		SetDebug(p.Config.Debug)
	return nil
}

// Shutdown implements plugin.Shutdowner.
func (p *Plugin) Shutdown() error {
	p.client = nil
	return nil
}

// Tasks implements plugin.Provider.
func (p *Plugin) Tasks() map[string]plugin.Task {
	return map[string]plugin.Task{
		"webhook.post": p.post,
	}
}

// post POSTs the statement's computed `_expression_` body to the
// object's URL (object.Base, resolved through ctx if it names a
// binding) and returns {body, statusCode, headers, isSuccess} — the
// same result shape actionFetch returns, so a flow can swap between
// the builtin Fetch verb and webhook.post without reshaping downstream
// bindings.
func (p *Plugin) post(ctx *plugin.Context, result plugin.Result, object plugin.Object) plugin.Outcome {
	if p.client == nil {
		return plugin.Fail(fmt.Errorf("webhook.post: plugin not initialized"))
	}

	url := object.Base
	if resolved, ok := ctx.Resolve(object.Base); ok && resolved.Kind().String() == "string" {
		url = resolved.AsString()
	}

	req := p.client.R()
	if body, ok := ctx.Resolve(plugin.BindingExpression); ok && !body.IsNull() {
		req.SetHeader("Content-Type", "application/json")
		req.SetBody(body.Native())
	}
	for _, specifier := range object.Specifiers {
		req.SetHeader("X-Webhook-Topic", specifier)
	}

	resp, err := req.Post(url)
	if err != nil {
		return plugin.Fail(fmt.Errorf("webhook.post: %w", err))
	}

	headers := plugin.NewMap()
	for k := range resp.Header() {
		headers.Set(k, plugin.String(resp.Header().Get(k)))
	}

	out := plugin.NewMap()
	out.Set("body", plugin.String(string(resp.Body())))
	out.Set("statusCode", plugin.Int(int64(resp.StatusCode())))
	out.Set("headers", plugin.Map(headers))
	out.Set("isSuccess", plugin.Bool(resp.IsSuccess()))
	return plugin.Succeed(plugin.Map(out))
}
