package webhook

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	aro "github.com/arolang/runtime"
	"github.com/arolang/runtime/plugin"
)

func newTestPlugin(t *testing.T) *Plugin {
	t.Helper()
	p := &Plugin{Config: Config{Timeout: 2 * time.Second, MaxRetries: 0, RetryWaitMS: 10}}
	if err := p.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	return p
}

func TestTasksExposesWebhookPost(t *testing.T) {
	p := newTestPlugin(t)
	tasks := p.Tasks()
	if _, ok := tasks["webhook.post"]; !ok {
		t.Fatalf("expected webhook.post registered, got %v", tasks)
	}
}

func TestPostDeliversBodyAndReturnsStatus(t *testing.T) {
	var gotTopic, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTopic = r.Header.Get("X-Webhook-Topic")
		buf := make([]byte, r.ContentLength)
		r.Body.Read(buf)
		gotBody = string(buf)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	p := newTestPlugin(t)
	registry := aro.NewRegistry()
	registry.Register("webhook.post", aro.RoleOwn, p.Tasks()["webhook.post"])
	registry.Seal()

	ctx := aro.NewContext(nil, "test", registry, nil, nil, nil, nil)
	ctx.Bind(plugin.BindingExpression, aro.String(`{"id":1}`))

	outcome := aro.Dispatch(ctx, "webhook.post",
		aro.ResultDescriptor{Base: "delivery"},
		aro.ObjectDescriptor{Preposition: aro.PrepositionTo, Base: srv.URL, Specifiers: []string{"order.created"}},
		nil,
		aro.StatementTemplate{Verb: "Post", Source: "Post the delivery to the url"},
	)
	if !outcome.Succeeded {
		t.Fatalf("webhook.post failed: %v", outcome.Err)
	}
	if gotTopic != "order.created" {
		t.Errorf("X-Webhook-Topic = %q, want %q", gotTopic, "order.created")
	}
	if gotBody == "" {
		t.Error("expected a non-empty request body delivered to the server")
	}

	m := outcome.Value.AsMap()
	statusCode, _ := m.Get("statusCode")
	if statusCode.AsInt() != http.StatusCreated {
		t.Errorf("statusCode = %d, want %d", statusCode.AsInt(), http.StatusCreated)
	}
}

func TestPostWithoutInitializeFails(t *testing.T) {
	p := &Plugin{}
	outcome := p.post(
		aro.NewContext(nil, "test", aro.NewRegistry(), nil, nil, nil, nil),
		aro.ResultDescriptor{Base: "x"},
		aro.ObjectDescriptor{Base: "http://example.invalid"},
	)
	if outcome.Succeeded {
		t.Error("expected failure when the resty client was never initialized")
	}
}
