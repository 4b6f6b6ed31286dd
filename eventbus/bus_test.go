package eventbus

import (
	"sync"
	"testing"
	"time"

	"github.com/arolang/runtime"
)

func testContext() *aro.Context {
	registry := aro.NewRegistry()
	aro.RegisterBuiltins(registry)
	return aro.NewContext(nil, "test", registry, nil, nil, nil, nil)
}

func TestPublishDeliversToSubscriber(t *testing.T) {
	bus := New(NewScheduler())
	var wg sync.WaitGroup
	wg.Add(1)

	var received aro.Value
	bus.Subscribe("OrderCreated", func(ctx *aro.Context, evt aro.Event) error {
		defer wg.Done()
		received, _ = ctx.Resolve(aro.BindingEvent)
		return nil
	})

	payload := aro.NewOrderedMap()
	payload.Set("orderId", aro.String("o-1"))
	if err := bus.Publish(testContext(), aro.Event{Topic: "OrderCreated", Payload: aro.Map(payload)}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if waitTimeout(&wg, 2*time.Second) {
		t.Fatal("handler was not invoked within timeout")
	}
	if received.AsMap() == nil {
		t.Fatal("event binding was not populated")
	}
	if v, _ := received.AsMap().Get("orderId"); v.AsString() != "o-1" {
		t.Errorf("orderId = %q, want %q", v.AsString(), "o-1")
	}
}

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	bus := New(NewScheduler())
	var wg sync.WaitGroup
	wg.Add(3)
	for i := 0; i < 3; i++ {
		bus.Subscribe("Ping", func(ctx *aro.Context, evt aro.Event) error {
			wg.Done()
			return nil
		})
	}
	bus.Publish(testContext(), aro.Event{Topic: "Ping", Payload: aro.Null()})
	if waitTimeout(&wg, 2*time.Second) {
		t.Fatal("not all subscribers were invoked")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := New(NewScheduler())
	called := false
	unsubscribe := bus.Subscribe("Topic", func(ctx *aro.Context, evt aro.Event) error {
		called = true
		return nil
	})
	unsubscribe()

	bus.Publish(testContext(), aro.Event{Topic: "Topic", Payload: aro.Null()})
	time.Sleep(50 * time.Millisecond)
	if called {
		t.Error("handler was invoked after unsubscribe")
	}
}

func TestHandlerGetsChildContextNotParent(t *testing.T) {
	bus := New(NewScheduler())
	var wg sync.WaitGroup
	wg.Add(1)
	parent := testContext()
	parent.Bind("parentOnly", aro.String("p"))

	bus.Subscribe("T", func(ctx *aro.Context, evt aro.Event) error {
		defer wg.Done()
		ctx.Bind("handlerOnly", aro.String("h"))
		return nil
	})
	bus.Publish(parent, aro.Event{Topic: "T", Payload: aro.Null()})
	waitTimeout(&wg, time.Second)

	if _, ok := parent.Resolve("handlerOnly"); ok {
		t.Error("handler binding leaked into publisher's context")
	}
}

func waitTimeout(wg *sync.WaitGroup, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return false
	case <-time.After(timeout):
		return true
	}
}
