package http

import (
	"bufio"
	"strings"
	"testing"

	"github.com/arolang/runtime"
)

func TestSplitPathQueryDecodesPercentEncoding(t *testing.T) {
	path, query := splitPathQuery("/search%20path?name=John%20Doe&team=a%2Bb")
	if path != "/search path" {
		t.Errorf("path = %q, want %q", path, "/search path")
	}
	if query["name"] != "John Doe" {
		t.Errorf("query[name] = %q, want %q", query["name"], "John Doe")
	}
	if query["team"] != "a+b" {
		t.Errorf("query[team] = %q, want %q", query["team"], "a+b")
	}
}

func TestReadRequestParsesLineHeadersAndBody(t *testing.T) {
	raw := "POST /orders HTTP/1.1\r\nContent-Type: application/json\r\nContent-Length: 13\r\n\r\n{\"qty\": 2}12\n"
	r := bufio.NewReader(strings.NewReader(raw))
	req, err := readRequest(r)
	if err != nil {
		t.Fatalf("readRequest: %v", err)
	}
	if req.method != "POST" {
		t.Errorf("method = %q, want POST", req.method)
	}
	if req.path != "/orders" {
		t.Errorf("path = %q, want /orders", req.path)
	}
	if len(req.body) != 13 {
		t.Fatalf("len(body) = %d, want 13", len(req.body))
	}
	if req.headers["content-type"] != "application/json" {
		t.Errorf("content-type header = %q", req.headers["content-type"])
	}
}

func TestIsWebSocketUpgradeDetectsHeaders(t *testing.T) {
	req := httpRequest{headers: map[string]string{
		"upgrade":    "websocket",
		"connection": "Upgrade",
	}}
	if !isWebSocketUpgrade(req) {
		t.Error("expected upgrade request to be detected")
	}

	plain := httpRequest{headers: map[string]string{}}
	if isWebSocketUpgrade(plain) {
		t.Error("expected plain request not to be detected as an upgrade")
	}
}

func TestResponseForReturnsNoContentWhenUnset(t *testing.T) {
	ctx := aro.NewContext(nil, "test", aro.NewRegistry(), nil, nil, nil, nil)
	status, body := responseFor(ctx)
	if status != 204 {
		t.Errorf("status = %d, want 204", status)
	}
	if body != nil {
		t.Errorf("body = %q, want nil", body)
	}
}

func TestResponseForReflectsReturnedStatusAndData(t *testing.T) {
	ctx := aro.NewContext(nil, "test", aro.NewRegistry(), nil, nil, nil, nil)
	out := aro.NewOrderedMap()
	out.Set("status", aro.Int(201))
	data := aro.NewOrderedMap()
	data.Set("id", aro.String("abc"))
	out.Set("data", aro.Map(data))
	ctx.SetResponse(aro.Map(out))

	status, body := responseFor(ctx)
	if status != 201 {
		t.Errorf("status = %d, want 201", status)
	}
	if !strings.Contains(string(body), `"id":"abc"`) {
		t.Errorf("body = %s, want it to contain id=abc", body)
	}
}

func TestResponseForMapsThrownErrorToHTTPStatus(t *testing.T) {
	ctx := aro.NewContext(nil, "test", aro.NewRegistry(), nil, nil, nil, nil)
	ctx.SetExecutionError(&aro.ActionError{Kind: aro.ErrThrownError, ThrownType: "notfound-order", Message: "missing"})

	status, body := responseFor(ctx)
	if status != 404 {
		t.Errorf("status = %d, want 404", status)
	}
	if !strings.Contains(string(body), "missing") {
		t.Errorf("body = %s, want it to contain the error message", body)
	}
}
