package aro

import "testing"

func TestFromJSONPreservesIntVsDouble(t *testing.T) {
	v, err := FromJSON([]byte(`{"count": 3, "ratio": 3.5, "flag": true, "zeroOne": 1}`))
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	m := v.AsMap()

	count, _ := m.Get("count")
	if count.Kind() != KindInt || count.AsInt() != 3 {
		t.Errorf("count: want int 3, got kind=%v value=%v", count.Kind(), count.Native())
	}

	ratio, _ := m.Get("ratio")
	if ratio.Kind() != KindFloat || ratio.AsFloat() != 3.5 {
		t.Errorf("ratio: want float 3.5, got kind=%v value=%v", ratio.Kind(), ratio.Native())
	}

	flag, _ := m.Get("flag")
	if flag.Kind() != KindBool || !flag.AsBool() {
		t.Errorf("flag: want bool true, got kind=%v value=%v", flag.Kind(), flag.Native())
	}

	zeroOne, _ := m.Get("zeroOne")
	if zeroOne.Kind() != KindInt || zeroOne.AsInt() != 1 {
		t.Errorf("zeroOne: want int 1 (not bool), got kind=%v value=%v", zeroOne.Kind(), zeroOne.Native())
	}
}

func TestOrderedMapPreservesInsertionOrder(t *testing.T) {
	m := NewOrderedMap()
	m.Set("z", Int(1))
	m.Set("a", Int(2))
	m.Set("m", Int(3))

	want := []string{"z", "a", "m"}
	got := m.Keys()
	if len(got) != len(want) {
		t.Fatalf("Keys() length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Keys()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestToJSONRoundTrip(t *testing.T) {
	original := Map(func() *OrderedMap {
		m := NewOrderedMap()
		m.Set("name", String("ada"))
		m.Set("age", Int(36))
		m.Set("score", Float(9.5))
		m.Set("active", Bool(true))
		m.Set("tags", Sequence([]Value{String("a"), String("b")}))
		return m
	}())

	encoded, err := ToJSON(original)
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}
	decoded, err := FromJSON(encoded)
	if err != nil {
		t.Fatalf("FromJSON(encoded): %v", err)
	}

	dm := decoded.AsMap()
	if name, _ := dm.Get("name"); name.AsString() != "ada" {
		t.Errorf("name round-trip: got %q", name.AsString())
	}
	if age, _ := dm.Get("age"); age.Kind() != KindInt || age.AsInt() != 36 {
		t.Errorf("age round-trip: got kind=%v value=%v", age.Kind(), age.Native())
	}
	if score, _ := dm.Get("score"); score.Kind() != KindFloat || score.AsFloat() != 9.5 {
		t.Errorf("score round-trip: got kind=%v value=%v", score.Kind(), score.Native())
	}
}

func TestValueCloneDeepCopiesMaps(t *testing.T) {
	inner := NewOrderedMap()
	inner.Set("x", Int(1))
	original := Map(inner)

	cloned := original.Clone()
	cloned.AsMap().Set("x", Int(999))

	if v, _ := original.AsMap().Get("x"); v.AsInt() != 1 {
		t.Errorf("original mutated after cloning: x = %d, want 1", v.AsInt())
	}
	if v, _ := cloned.AsMap().Get("x"); v.AsInt() != 999 {
		t.Errorf("clone not mutated: x = %d, want 999", v.AsInt())
	}
}
