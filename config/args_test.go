package config

import "testing"

func TestSetArgumentsStoresPositionalArgs(t *testing.T) {
	store := &argumentStore{values: make(map[string]string)}
	store.SetArguments([]string{"prog", "first", "second"})

	if v, ok := store.Argument("arg0"); !ok || v != "first" {
		t.Errorf("expected arg0=first, got %q ok=%v", v, ok)
	}
	if v, ok := store.Argument("arg1"); !ok || v != "second" {
		t.Errorf("expected arg1=second, got %q ok=%v", v, ok)
	}
}

func TestSetArgumentsParsesFlagEqualsValue(t *testing.T) {
	store := &argumentStore{values: make(map[string]string)}
	store.SetArguments([]string{"prog", "--config=/etc/aro.yaml"})

	v, ok := store.Argument("config")
	if !ok || v != "/etc/aro.yaml" {
		t.Errorf("expected config=/etc/aro.yaml, got %q ok=%v", v, ok)
	}
}

func TestSetArgumentsParsesFlagSpaceValue(t *testing.T) {
	store := &argumentStore{values: make(map[string]string)}
	store.SetArguments([]string{"prog", "--port", "9090"})

	v, ok := store.Argument("port")
	if !ok || v != "9090" {
		t.Errorf("expected port=9090, got %q ok=%v", v, ok)
	}
}

func TestSetArgumentsBareFlagResolvesToTrue(t *testing.T) {
	store := &argumentStore{values: make(map[string]string)}
	store.SetArguments([]string{"prog", "--verbose", "--debug"})

	if v, ok := store.Argument("verbose"); !ok || v != "true" {
		t.Errorf("expected verbose=true, got %q ok=%v", v, ok)
	}
	if v, ok := store.Argument("debug"); !ok || v != "true" {
		t.Errorf("expected debug=true, got %q ok=%v", v, ok)
	}
}

func TestSetArgumentsUnknownNameNotFound(t *testing.T) {
	store := &argumentStore{values: make(map[string]string)}
	store.SetArguments([]string{"prog"})

	if _, ok := store.Argument("missing"); ok {
		t.Error("expected missing argument to resolve not-found")
	}
}

func TestSetArgumentsReplacesPriorContents(t *testing.T) {
	store := &argumentStore{values: make(map[string]string)}
	store.SetArguments([]string{"prog", "--a=1"})
	store.SetArguments([]string{"prog", "--b=2"})

	if _, ok := store.Argument("a"); ok {
		t.Error("expected first call's arguments to be replaced, not merged")
	}
	if v, ok := store.Argument("b"); !ok || v != "2" {
		t.Errorf("expected b=2, got %q ok=%v", v, ok)
	}
}

func TestAllReturnsSnapshotCopy(t *testing.T) {
	store := &argumentStore{values: make(map[string]string)}
	store.SetArguments([]string{"prog", "--x=1"})

	snap := store.All()
	snap["x"] = "mutated"

	v, _ := store.Argument("x")
	if v != "1" {
		t.Errorf("expected store unaffected by mutation of All() snapshot, got %q", v)
	}
}
