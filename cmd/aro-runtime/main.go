// Command aro-runtime is the interpreter-mode host: it loads a JSON
// feature-set bundle (routes, event handlers, startup services) rather
// than a compiled native binary embedding the C ABI directly, wires up
// the same Registry/EventBus/Evaluator/RepositoryManager the C ABI's
// runtime_init builds, and runs it until a shutdown signal arrives. The
// C ABI (cabi/) remains the authoritative interface for compiled
// binaries (spec.md §6); this binary exists for feature sets that don't
// need a native toolchain step at all.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	aro "github.com/arolang/runtime"
	"github.com/arolang/runtime/config"
	"github.com/arolang/runtime/eventbus"
	"github.com/arolang/runtime/expression"
	"github.com/arolang/runtime/observability"
	"github.com/arolang/runtime/plugin"
	"github.com/arolang/runtime/repository"
)

func main() {
	bundlePath := flag.String("bundle", "", "path to a JSON feature-set bundle")
	nativePlugins := flag.String("native-plugins", "", "comma-separated paths to compiled (.so) plugins")
	scriptPlugins := flag.String("script-plugins", "", "comma-separated paths to .risor script plugins")
	flag.Parse()

	config.Args.SetArguments(os.Args)

	if *bundlePath == "" {
		fmt.Fprintln(os.Stderr, "aro-runtime: -bundle is required")
		os.Exit(2)
	}

	if err := run(*bundlePath, *nativePlugins, *scriptPlugins); err != nil {
		slog.Error("aro-runtime: fatal", "error", err)
		os.Exit(1)
	}
}

func run(bundlePath, nativePlugins, scriptPlugins string) error {
	ctx := context.Background()

	obs, err := observability.Setup(ctx, "aro-runtime")
	if err != nil {
		return fmt.Errorf("observability setup: %w", err)
	}
	if obs.Enabled() {
		slog.SetDefault(obs.Logger)
	}
	defer obs.Shutdown(ctx)

	bundle, err := LoadBundle(bundlePath)
	if err != nil {
		return err
	}

	registry := aro.NewRegistry()
	aro.RegisterBuiltins(registry)

	var providers []plugin.Provider
	for _, path := range splitNonEmpty(nativePlugins) {
		p, err := plugin.LoadNative(path)
		if err != nil {
			return fmt.Errorf("load native plugin %s: %w", path, err)
		}
		providers = append(providers, p)
	}
	for _, path := range splitNonEmpty(scriptPlugins) {
		p, err := plugin.LoadScript(path)
		if err != nil {
			return fmt.Errorf("load script plugin %s: %w", path, err)
		}
		providers = append(providers, p)
	}

	// Initializer plugins (connection pools, warmed caches) run their
	// setup once, before anything starts dispatching to them.
	for _, p := range providers {
		if init, ok := p.(plugin.Initializer); ok {
			if err := init.Initialize(); err != nil {
				return fmt.Errorf("initialize plugin: %w", err)
			}
		}
		registerPlugin(registry, p)
	}
	registry.Seal()

	scheduler := eventbus.NewScheduler()
	bus := eventbus.New(scheduler)
	eval := expression.New()
	repos := repository.NewManager()
	schemas := aro.NewSchemaRegistry()
	for name, schema := range bundle.Schemas {
		schemas.Register(name, schema)
	}

	services := newServiceManager(bundle, nil)
	newContext := func() *aro.Context {
		return aro.NewContext(context.Background(), bundle.BusinessActivity, registry, bus, eval, repos, schemas).WithServices(services)
	}
	services.newContext = newContext

	for _, h := range bundle.Handlers {
		h := h
		bus.Subscribe(h.Topic, func(ctx *aro.Context, evt aro.Event) error {
			// ctx is already a fresh per-delivery child with `event` bound
			// (eventbus.Bus.Publish does this before calling the handler).
			if h.Guard != nil {
				passed, err := eval.EvaluateGuard(ctx, h.Guard)
				if err != nil {
					return err
				}
				if !passed {
					return nil
				}
			}
			runStatements(ctx, h.Statements)
			return ctx.ExecutionError()
		})
	}

	for _, svc := range bundle.Services {
		cfg := aro.Map(mapToOrderedMap(svc.Config))
		if err := services.Start(newContext(), svc.Name, cfg); err != nil {
			return fmt.Errorf("start service %q: %w", svc.Name, err)
		}
	}

	startCtx := newContext()
	runStatements(startCtx, bundle.ApplicationStart)
	if startCtx.ExecutionError() != nil {
		slog.Error("Application-Start failed", "error", startCtx.ExecutionError())
	}

	if err := services.AwaitShutdown(startCtx); err != nil {
		slog.Warn("shutdown wait ended with error", "error", err)
	}

	shutdown(services, scheduler, bundle, newContext, providers)
	return nil
}

// shutdown drains up to 10s for in-flight handlers, closes services,
// shuts down plugins, then runs Application-End. Nothing stops the event
// bus from accepting new events first: events published during the
// drain are still delivered.
func shutdown(services *serviceManager, scheduler *eventbus.Scheduler, bundle *Bundle, newContext func() *aro.Context, providers []plugin.Provider) {
	slog.Info("shutting down")
	drain(scheduler, 10*time.Second)
	services.StopAll()

	for _, p := range providers {
		if sd, ok := p.(plugin.Shutdowner); ok {
			if err := sd.Shutdown(); err != nil {
				slog.Error("plugin shutdown failed", "error", err)
			}
		}
	}

	endCtx := newContext()
	runStatements(endCtx, bundle.ApplicationEnd)
	if endCtx.ExecutionError() != nil {
		slog.Error("Application-End failed", "error", endCtx.ExecutionError())
	}
	slog.Info("shutdown complete")
}

// drain polls the scheduler's active-execution count (spec §4.5's bounded
// concurrency gate) until it reaches zero or deadline elapses, rather
// than sleeping the full duration unconditionally.
func drain(scheduler *eventbus.Scheduler, deadline time.Duration) {
	stop := time.Now().Add(deadline)
	for scheduler.Active() > 0 && time.Now().Before(stop) {
		time.Sleep(50 * time.Millisecond)
	}
}

func registerPlugin(registry *aro.Registry, p plugin.Provider) {
	for name, task := range p.Tasks() {
		registry.Register(name, aro.RoleOwn, task)
	}
}

func mapToOrderedMap(m map[string]any) *aro.OrderedMap {
	out := aro.NewOrderedMap()
	for k, v := range m {
		out.Set(k, aro.FromNative(v))
	}
	return out
}

func splitNonEmpty(csv string) []string {
	if csv == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(csv, ",") {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
