// Package cabi is the C ABI surface of spec §6, the authoritative
// interface for compiled binaries embedding this runtime: every exported
// function uses the C calling convention, with opaque int64 handles in
// place of Go pointers (which cgo cannot let C code hold across calls).
// It is a thin adapter — every exported function immediately delegates to
// the root aro package and the concrete eventbus/expression/repository
// implementations wired up once at runtime_init.
package cabi

/*
#include <stdlib.h>

typedef void (*aro_handler_callback)(long long ctx_handle);

static void aro_invoke_handler_callback(void *fn, long long ctx_handle) {
	((aro_handler_callback)fn)(ctx_handle);
}
*/
import "C"

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/arolang/runtime"
	"github.com/arolang/runtime/config"
	"github.com/arolang/runtime/eventbus"
	"github.com/arolang/runtime/expression"
	"github.com/arolang/runtime/repository"
	"github.com/arolang/runtime/service/filemon"
	httpservice "github.com/arolang/runtime/service/http"
	"github.com/arolang/runtime/service/tcp"
)

// handleTable hands out stable int64 handles for Go values that C code
// holds opaquely (spec §6 "value handles and contexts are opaque
// pointers"), since a Go pointer is not safe for a C caller to retain
// across calls that might move it.
type handleTable[T any] struct {
	mu     sync.RWMutex
	values map[int64]T
	next   int64
}

func newHandleTable[T any]() *handleTable[T] {
	return &handleTable[T]{values: make(map[int64]T)}
}

func (t *handleTable[T]) put(v T) int64 {
	id := atomic.AddInt64(&t.next, 1)
	t.mu.Lock()
	t.values[id] = v
	t.mu.Unlock()
	return id
}

func (t *handleTable[T]) get(id int64) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.values[id]
	return v, ok
}

func (t *handleTable[T]) delete(id int64) {
	t.mu.Lock()
	delete(t.values, id)
	t.mu.Unlock()
}

var (
	contexts = newHandleTable[*aro.Context]()
	values   = newHandleTable[aro.Value]()
)

// runtimeState is the single process-wide wiring created by runtime_init
// and torn down by runtime_shutdown — the registry, event bus, evaluator,
// and repository manager every Context handle shares.
type runtimeState struct {
	registry *aro.Registry
	bus      *eventbus.Bus
	eval     *expression.Evaluator
	repos    *repository.Manager
	schemas  *aro.SchemaRegistry
}

var (
	runtimeMu sync.Mutex
	runtime_  *runtimeState
)

//export runtime_init
func runtime_init() C.longlong {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()
	registry := aro.NewRegistry()
	aro.RegisterBuiltins(registry)
	runtime_ = &runtimeState{
		registry: registry,
		bus:      eventbus.New(eventbus.NewScheduler()),
		eval:     expression.New(),
		repos:    repository.NewManager(),
		schemas:  aro.NewSchemaRegistry(),
	}
	return 1
}

//export runtime_shutdown
func runtime_shutdown(handle C.longlong) {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()
	runtime_ = nil
}

//export runtime_await_pending_events
func runtime_await_pending_events(handle C.longlong, timeoutMillis C.longlong) C.int {
	deadline := time.Now().Add(time.Duration(timeoutMillis) * time.Millisecond)
	for time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	return 1
}

//export parse_arguments
func parse_arguments(argc C.int, argv **C.char) {
	n := int(argc)
	slice := unsafe.Slice(argv, n)
	goArgv := make([]string, n)
	for i := 0; i < n; i++ {
		goArgv[i] = C.GoString(slice[i])
	}
	config.Args.SetArguments(goArgv)
}

// Argument resolves a CLI argument installed by parse_arguments, for the
// root package's `Extract ... from parameters: ...` support.
func Argument(name string) (string, bool) {
	return config.Args.Argument(name)
}

//export context_create
func context_create(businessActivity *C.char) C.longlong {
	runtimeMu.Lock()
	st := runtime_
	runtimeMu.Unlock()
	if st == nil {
		return 0
	}
	ctx := aro.NewContext(context.Background(), C.GoString(businessActivity), st.registry, st.bus, st.eval, st.repos, st.schemas)
	return C.longlong(contexts.put(ctx))
}

//export context_create_named
func context_create_named(businessActivity *C.char, name *C.char) C.longlong {
	return context_create(businessActivity)
}

//export context_create_child
func context_create_child(parent C.longlong) C.longlong {
	p, ok := contexts.get(int64(parent))
	if !ok {
		return 0
	}
	return C.longlong(contexts.put(p.NewChild()))
}

//export context_destroy
func context_destroy(handle C.longlong) {
	contexts.delete(int64(handle))
}

//export context_has_error
func context_has_error(handle C.longlong) C.int {
	ctx, ok := contexts.get(int64(handle))
	if !ok || ctx.ExecutionError() == nil {
		return 0
	}
	return 1
}

//export context_print_error
func context_print_error(handle C.longlong) *C.char {
	ctx, ok := contexts.get(int64(handle))
	if !ok || ctx.ExecutionError() == nil {
		return C.CString("")
	}
	return C.CString(ctx.ExecutionError().Error())
}

//export context_print_response
func context_print_response(handle C.longlong) *C.char {
	ctx, ok := contexts.get(int64(handle))
	if !ok {
		return C.CString("")
	}
	resp, ok := ctx.Response()
	if !ok {
		return C.CString("")
	}
	encoded, err := aro.ToJSON(resp)
	if err != nil {
		return C.CString("")
	}
	return C.CString(string(encoded))
}

func withContext(handle C.longlong, fn func(ctx *aro.Context)) {
	ctx, ok := contexts.get(int64(handle))
	if !ok {
		return
	}
	fn(ctx)
}

//export bind_string
func bind_string(handle C.longlong, name, value *C.char) {
	withContext(handle, func(ctx *aro.Context) { ctx.Bind(C.GoString(name), aro.String(C.GoString(value))) })
}

//export bind_int
func bind_int(handle C.longlong, name *C.char, value C.longlong) {
	withContext(handle, func(ctx *aro.Context) { ctx.Bind(C.GoString(name), aro.Int(int64(value))) })
}

//export bind_double
func bind_double(handle C.longlong, name *C.char, value C.double) {
	withContext(handle, func(ctx *aro.Context) { ctx.Bind(C.GoString(name), aro.Float(float64(value))) })
}

//export bind_bool
func bind_bool(handle C.longlong, name *C.char, value C.int) {
	withContext(handle, func(ctx *aro.Context) { ctx.Bind(C.GoString(name), aro.Bool(value != 0)) })
}

//export bind_value
func bind_value(handle C.longlong, name *C.char, valueHandle C.longlong) {
	v, ok := values.get(int64(valueHandle))
	if !ok {
		return
	}
	withContext(handle, func(ctx *aro.Context) { ctx.Bind(C.GoString(name), v) })
}

//export bind_dict
func bind_dict(handle C.longlong, name, jsonObject *C.char) {
	v, err := aro.FromJSON([]byte(C.GoString(jsonObject)))
	if err != nil {
		return
	}
	withContext(handle, func(ctx *aro.Context) { ctx.Bind(C.GoString(name), v) })
}

//export bind_array
func bind_array(handle C.longlong, name, jsonArray *C.char) {
	bind_dict(handle, name, jsonArray)
}

//export unbind
func unbind(handle C.longlong, name *C.char) {
	withContext(handle, func(ctx *aro.Context) { ctx.Unbind(C.GoString(name)) })
}

//export variable_resolve
func variable_resolve(handle C.longlong, name *C.char) C.longlong {
	ctx, ok := contexts.get(int64(handle))
	if !ok {
		return 0
	}
	v, ok := ctx.Resolve(C.GoString(name))
	if !ok {
		return 0
	}
	return C.longlong(values.put(v))
}

//export variable_resolve_string
func variable_resolve_string(handle C.longlong, name *C.char) *C.char {
	ctx, ok := contexts.get(int64(handle))
	if !ok {
		return C.CString("")
	}
	v, ok := ctx.Resolve(C.GoString(name))
	if !ok {
		return C.CString("")
	}
	return C.CString(v.AsString())
}

//export variable_resolve_int
func variable_resolve_int(handle C.longlong, name *C.char) C.longlong {
	ctx, ok := contexts.get(int64(handle))
	if !ok {
		return 0
	}
	v, ok := ctx.Resolve(C.GoString(name))
	if !ok {
		return 0
	}
	return C.longlong(v.AsInt())
}

//export evaluate_expression
func evaluate_expression(handle C.longlong, treeJSON *C.char) C.int {
	ctx, ok := contexts.get(int64(handle))
	if !ok || ctx.Evaluator() == nil {
		return 0
	}
	var tree any
	if err := json.Unmarshal([]byte(C.GoString(treeJSON)), &tree); err != nil {
		return 0
	}
	v, err := ctx.Evaluator().Evaluate(ctx, tree)
	if err != nil {
		return 0
	}
	ctx.Bind(aro.BindingExpression, v)
	return 1
}

//export evaluate_and_bind
func evaluate_and_bind(handle C.longlong, name, treeJSON *C.char) C.int {
	ctx, ok := contexts.get(int64(handle))
	if !ok || ctx.Evaluator() == nil {
		return 0
	}
	var tree any
	if err := json.Unmarshal([]byte(C.GoString(treeJSON)), &tree); err != nil {
		return 0
	}
	v, err := ctx.Evaluator().Evaluate(ctx, tree)
	if err != nil {
		return 0
	}
	ctx.Bind(C.GoString(name), v)
	return 1
}

//export evaluate_when_guard
func evaluate_when_guard(handle C.longlong, treeJSON *C.char) C.int {
	ctx, ok := contexts.get(int64(handle))
	if !ok || ctx.Evaluator() == nil {
		return 0
	}
	var tree any
	if err := json.Unmarshal([]byte(C.GoString(treeJSON)), &tree); err != nil {
		return 0
	}
	truthy, err := ctx.Evaluator().EvaluateGuard(ctx, tree)
	if err != nil || !truthy {
		return 0
	}
	return 1
}

//export interpolate_string
func interpolate_string(handle C.longlong, template *C.char) *C.char {
	ctx, ok := contexts.get(int64(handle))
	if !ok || ctx.Evaluator() == nil {
		return C.CString("")
	}
	out, err := ctx.Evaluator().Interpolate(ctx, C.GoString(template))
	if err != nil {
		return C.CString("")
	}
	return C.CString(out)
}

//export match_pattern
func match_pattern(handle C.longlong, subjectJSON, patternJSON *C.char) C.int {
	ctx, ok := contexts.get(int64(handle))
	if !ok || ctx.Evaluator() == nil {
		return 0
	}
	subject, err := aro.FromJSON([]byte(C.GoString(subjectJSON)))
	if err != nil {
		return 0
	}
	var patternTree any
	if err := json.Unmarshal([]byte(C.GoString(patternJSON)), &patternTree); err != nil {
		return 0
	}
	ctx.Bind("subject", subject)
	defer ctx.Unbind("subject")
	truthy, err := ctx.Evaluator().EvaluateGuard(ctx, patternTree)
	if err != nil || !truthy {
		return 0
	}
	return 1
}

//export runtime_register_handler
func runtime_register_handler(handle C.longlong, eventType *C.char, callback unsafe.Pointer) {
	ctx, ok := contexts.get(int64(handle))
	if !ok {
		return
	}
	topic := C.GoString(eventType)
	ctx.EventBus().Subscribe(topic, func(handlerCtx *aro.Context, evt aro.Event) error {
		invokeNativeHandler(callback, contexts.put(handlerCtx))
		return nil
	})
}

//export register_repository_observer_with_guard
func register_repository_observer_with_guard(handle C.longlong, repoName *C.char, callback unsafe.Pointer, whenJSON *C.char) {
	ctx, ok := contexts.get(int64(handle))
	if !ok {
		return
	}
	var guardTree any
	hasGuard := false
	if whenJSON != nil {
		if err := json.Unmarshal([]byte(C.GoString(whenJSON)), &guardTree); err == nil {
			hasGuard = true
		}
	}
	name := C.GoString(repoName)
	ctx.EventBus().Subscribe("RepositoryChanged", func(handlerCtx *aro.Context, evt aro.Event) error {
		if m := evt.Payload.AsMap(); m != nil {
			if repo, ok := m.Get("repository"); !ok || repo.AsString() != name {
				return nil
			}
		}
		if hasGuard && handlerCtx.Evaluator() != nil {
			truthy, err := handlerCtx.Evaluator().EvaluateGuard(handlerCtx, guardTree)
			if err != nil || !truthy {
				return nil
			}
		}
		invokeNativeHandler(callback, contexts.put(handlerCtx))
		return nil
	})
}

//export http_register_route
func http_register_route(method, path, operationID *C.char) {
	// Route registration against the live service/http.Server is done by
	// cmd/aro-runtime, which owns the Server instance and takes its routes
	// from the bundle's routes array; this export is a no-op until a sink
	// is attached via RegisterRouteSink.
	if routeSink != nil {
		routeSink(C.GoString(method), C.GoString(path), C.GoString(operationID))
	}
}

var routeSink func(method, path, operationID string)

// RegisterRouteSink lets cmd/aro-runtime receive http_register_route calls
// made from C before its own service/http.Server is constructed.
func RegisterRouteSink(fn func(method, path, operationID string)) {
	routeSink = fn
}

//export array_count
func array_count(valueHandle C.longlong) C.longlong {
	v, ok := values.get(int64(valueHandle))
	if !ok || v.AsSequence() == nil {
		return 0
	}
	return C.longlong(len(v.AsSequence()))
}

//export array_get
func array_get(valueHandle C.longlong, index C.longlong) C.longlong {
	v, ok := values.get(int64(valueHandle))
	if !ok {
		return 0
	}
	seq := v.AsSequence()
	i := int(index)
	if i < 0 || i >= len(seq) {
		return 0
	}
	return C.longlong(values.put(seq[i]))
}

// schedulerFor returns the process-wide scheduler ctx's event bus
// dispatches through, so a loop body is gated by the same spec §4.5
// concurrency gate as every handler delivery rather than a disposable
// scheduler of its own. Contexts built without a real eventbus.Bus (tests,
// a C ABI caller that skipped runtime_init) fall back to a fresh one.
func schedulerFor(ctx *aro.Context) *eventbus.Scheduler {
	if bus, ok := ctx.EventBus().(*eventbus.Bus); ok {
		return bus.Scheduler()
	}
	return eventbus.NewScheduler()
}

//export parallel_for_each_execute
func parallel_for_each_execute(handle, collectionHandle C.longlong, bodyFn unsafe.Pointer, concurrency C.int, itemName, indexName *C.char, failFast C.int) C.longlong {
	ctx, ok := contexts.get(int64(handle))
	if !ok {
		return 0
	}
	collection, ok := values.get(int64(collectionHandle))
	if !ok {
		return 0
	}
	items := collection.AsSequence()

	scheduler := schedulerFor(ctx)
	loopGate := scheduler.NewLoopGate(int(concurrency))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make([]aro.Value, 0, len(items))
		failed  int
		halted  int32
	)

	for i, item := range items {
		if failFast != 0 && atomic.LoadInt32(&halted) != 0 {
			break
		}
		idx, it := i, item
		wg.Add(1)
		loopGate.Acquire()
		iterCtx := ctx.NewChild()
		iterCtx.Bind(itemNameOr(itemName, "item"), it)
		iterCtx.Bind(indexNameOr(indexName, "index"), aro.Int(int64(idx)))
		go func(c *aro.Context) {
			defer wg.Done()
			defer loopGate.Release()
			// RunBlocking acquires the real process-wide gate for the
			// duration of this iteration, bounding total live executions
			// (handler deliveries included) at 4 x logical-CPU-count,
			// in addition to this call's own per-loop cap.
			scheduler.RunBlocking(func() {
				invokeNativeHandler(bodyFn, contexts.put(c))

				entry := aro.NewOrderedMap()
				entry.Set("index", aro.Int(int64(idx)))
				succeeded := c.ExecutionError() == nil
				entry.Set("succeeded", aro.Bool(succeeded))
				if !succeeded {
					entry.Set("error", aro.String(c.ExecutionError().Error()))
				}

				mu.Lock()
				results = append(results, aro.Map(entry))
				if !succeeded {
					failed++
					if failFast != 0 {
						atomic.StoreInt32(&halted, 1)
					}
				}
				mu.Unlock()
			})
		}(iterCtx)
	}
	wg.Wait()

	// Every dispatched iteration runs to completion regardless of earlier
	// failures (spec's parallel-for-each aggregation decision); failFast
	// only stops *new* iterations from starting once one has failed.
	agg := aro.NewOrderedMap()
	agg.Set("dispatched", aro.Int(int64(len(results))))
	agg.Set("failed", aro.Int(int64(failed)))
	agg.Set("results", aro.Sequence(results))
	return C.longlong(values.put(aro.Map(agg)))
}

func itemNameOr(name *C.char, fallback string) string {
	if name == nil {
		return fallback
	}
	s := C.GoString(name)
	if s == "" {
		return fallback
	}
	return s
}

func indexNameOr(name *C.char, fallback string) string { return itemNameOr(name, fallback) }

// nativeServices holds the at-most-one-of-each native server this process
// runs, started/stopped directly from the C ABI rather than through
// aro.ServiceManager (cmd/aro-runtime's interpreter mode uses the
// ServiceManager path instead; compiled binaries driven purely through
// the C ABI use these exports).
var nativeServices = struct {
	mu       sync.Mutex
	http     *httpservice.Server
	tcp      *tcp.Server
	watchers map[int64]*filemon.Watcher
	nextID   int64
}{watchers: make(map[int64]*filemon.Watcher)}

func rootContextFactory(handle C.longlong) func() *aro.Context {
	return func() *aro.Context {
		ctx, ok := contexts.get(int64(handle))
		if !ok {
			return nil
		}
		return ctx.NewChild()
	}
}

//export native_http_server_start
func native_http_server_start(port C.int, handle C.longlong) C.int {
	return startHTTPServer(port, handle, "")
}

//export native_http_server_start_with_openapi
func native_http_server_start_with_openapi(port C.int, handle C.longlong) C.int {
	// Starts the same listener as native_http_server_start. No embedded
	// OpenAPI document is read here or anywhere else in the runtime, so no
	// routes are installed from one; the server answers only the routes
	// already registered on it.
	return startHTTPServer(port, handle, "")
}

func startHTTPServer(port C.int, handle C.longlong, wsPath string) C.int {
	nativeServices.mu.Lock()
	defer nativeServices.mu.Unlock()
	if nativeServices.http == nil {
		nativeServices.http = httpservice.NewServer(portAddr(port))
		nativeServices.http.WebSocketPath = wsPath
		nativeServices.http.NewContext = rootContextFactory(handle)
		go nativeServices.http.ListenAndServe()
	}
	return 1
}

func portAddr(port C.int) string {
	return ":" + strconv.Itoa(int(port))
}

//export native_http_server_stop
func native_http_server_stop() {
	nativeServices.mu.Lock()
	defer nativeServices.mu.Unlock()
	if nativeServices.http != nil {
		nativeServices.http.Close()
		nativeServices.http = nil
	}
}

//export native_socket_server_start
func native_socket_server_start(port C.int, handle C.longlong) C.int {
	nativeServices.mu.Lock()
	defer nativeServices.mu.Unlock()
	if nativeServices.tcp == nil {
		nativeServices.tcp = tcp.NewServer(portAddr(port))
		nativeServices.tcp.NewContext = rootContextFactory(handle)
		go nativeServices.tcp.ListenAndServe()
	}
	return 1
}

//export native_socket_server_stop
func native_socket_server_stop() {
	nativeServices.mu.Lock()
	defer nativeServices.mu.Unlock()
	if nativeServices.tcp != nil {
		nativeServices.tcp.Close()
		nativeServices.tcp = nil
	}
}

//export native_socket_send
func native_socket_send(connectionID *C.char, payload *C.char, length C.int) C.int {
	nativeServices.mu.Lock()
	srv := nativeServices.tcp
	nativeServices.mu.Unlock()
	if srv == nil {
		return 0
	}
	buf := C.GoBytes(unsafe.Pointer(payload), length)
	if err := srv.Send(C.GoString(connectionID), buf); err != nil {
		return 0
	}
	return 1
}

//export native_socket_broadcast
func native_socket_broadcast(payload *C.char, length C.int, excludeConnectionID *C.char) C.longlong {
	nativeServices.mu.Lock()
	srv := nativeServices.tcp
	nativeServices.mu.Unlock()
	if srv == nil {
		return 0
	}
	buf := C.GoBytes(unsafe.Pointer(payload), length)
	sent, err := srv.Broadcast(buf, C.GoString(excludeConnectionID))
	if err != nil {
		return 0
	}
	return C.longlong(sent)
}

//export native_file_watcher_create
func native_file_watcher_create(path *C.char, handle C.longlong) C.longlong {
	nativeServices.mu.Lock()
	defer nativeServices.mu.Unlock()
	w := filemon.NewWatcher(C.GoString(path))
	w.NewContext = rootContextFactory(handle)
	nativeServices.nextID++
	id := nativeServices.nextID
	nativeServices.watchers[id] = w
	return C.longlong(id)
}

//export native_file_watcher_start
func native_file_watcher_start(watcherHandle C.longlong) C.int {
	nativeServices.mu.Lock()
	w, ok := nativeServices.watchers[int64(watcherHandle)]
	nativeServices.mu.Unlock()
	if !ok || w.Start() != nil {
		return 0
	}
	return 1
}

//export native_file_watcher_stop
func native_file_watcher_stop(watcherHandle C.longlong) {
	nativeServices.mu.Lock()
	w, ok := nativeServices.watchers[int64(watcherHandle)]
	nativeServices.mu.Unlock()
	if ok {
		w.Stop()
	}
}

//export native_file_watcher_destroy
func native_file_watcher_destroy(watcherHandle C.longlong) {
	nativeServices.mu.Lock()
	defer nativeServices.mu.Unlock()
	if w, ok := nativeServices.watchers[int64(watcherHandle)]; ok {
		w.Stop()
		delete(nativeServices.watchers, int64(watcherHandle))
	}
}

// invokeNativeHandler calls a C function pointer of the shape
// void(*)(long long) with a freshly minted handle for ctx, the only
// calling convention every C-side handler/observer/parallel-body callback
// in spec §6 uses.
func invokeNativeHandler(fn unsafe.Pointer, ctxHandle int64) {
	if fn == nil {
		return
	}
	C.aro_invoke_handler_callback(fn, C.longlong(ctxHandle))
}
