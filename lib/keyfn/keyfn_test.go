package keyfn

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"
)

type endpoint struct {
	Host string
	Port int
}

type altEndpoint struct {
	Host string
	Port int
}

type hidden struct {
	Host string
	port int
}

type mapHolder struct {
	M map[string]int
}

type tunnelCount int

func mustSameKey(t *testing.T, a, b []any) {
	t.Helper()
	ka, err := Reduce(a...)
	if err != nil {
		t.Fatalf("Reduce failed: %v", err)
	}
	kb, err := Reduce(b...)
	if err != nil {
		t.Fatalf("Reduce failed: %v", err)
	}
	if ka != kb {
		t.Errorf("Expected equal keys, got %q and %q", ka, kb)
	}
}

func TestReduceDeterministic(t *testing.T) {
	k1, err := Reduce("127.0.0.1:7656", 4, true)
	if err != nil {
		t.Fatalf("Reduce failed: %v", err)
	}
	k2, err := Reduce("127.0.0.1:7656", 4, true)
	if err != nil {
		t.Fatalf("Reduce failed: %v", err)
	}
	if k1 != k2 {
		t.Errorf("Expected identical keys, got %q and %q", k1, k2)
	}
	if k1 == "" {
		t.Error("Expected non-empty key")
	}
}

func TestReduceDistinguishesArguments(t *testing.T) {
	cases := []struct {
		name string
		a, b []any
	}{
		{"different strings", []any{"a"}, []any{"b"}},
		{"different ints", []any{1}, []any{2}},
		{"concatenation boundary", []any{"ab", "c"}, []any{"a", "bc"}},
		{"arity", []any{"a"}, []any{"a", ""}},
		{"nil vs empty string", []any{nil}, []any{""}},
		{"bool vs int", []any{true}, []any{1}},
		{"signed vs unsigned", []any{int64(1)}, []any{uint64(1)}},
		{"int vs float", []any{int64(1)}, []any{float64(1)}},
		{"string vs bytes", []any{"x"}, []any{[]byte("x")}},
		{"duration vs int", []any{time.Second}, []any{int64(time.Second)}},
		{"named vs underlying", []any{tunnelCount(3)}, []any{3}},
		{"struct type identity", []any{endpoint{"h", 1}}, []any{altEndpoint{"h", 1}}},
	}
	for _, tc := range cases {
		ka, err := Reduce(tc.a...)
		if err != nil {
			t.Errorf("%s: Reduce failed: %v", tc.name, err)
			continue
		}
		kb, err := Reduce(tc.b...)
		if err != nil {
			t.Errorf("%s: Reduce failed: %v", tc.name, err)
			continue
		}
		if ka == kb {
			t.Errorf("%s: expected distinct keys, both %q", tc.name, ka)
		}
	}
}

func TestReduceEquivalentForms(t *testing.T) {
	// Integer widths within one signedness family share a key.
	mustSameKey(t, []any{7}, []any{int64(7)})
	mustSameKey(t, []any{uint8(7)}, []any{uint64(7)})

	// Negative zero equals zero.
	mustSameKey(t, []any{0.0}, []any{math.Copysign(0, -1)})

	// Byte slices key by content.
	mustSameKey(t, []any{[]byte{1, 2}}, []any{[]byte{1, 2}})

	// Pointers key through their pointee.
	a, b := 5, 5
	mustSameKey(t, []any{&a}, []any{&b})

	// Times key by instant, not location.
	loc := time.FixedZone("offset", 3600)
	now := time.Now()
	mustSameKey(t, []any{now}, []any{now.In(loc)})

	// Equal struct values coincide.
	mustSameKey(t, []any{endpoint{"h", 1}}, []any{endpoint{"h", 1}})

	// Complex values work like any other scalar.
	mustSameKey(t, []any{complex(1, 2)}, []any{complex(1, 2)})
}

func TestReduceRejectsUnkeyableValues(t *testing.T) {
	cases := []struct {
		name string
		arg  any
	}{
		{"map", map[string]int{"a": 1}},
		{"slice", []int{1, 2}},
		{"func", func() {}},
		{"channel", make(chan int)},
		{"struct with unexported fields", hidden{Host: "h", port: 1}},
		{"struct containing a map", mapHolder{M: map[string]int{}}},
		{"NaN", math.NaN()},
	}
	for _, tc := range cases {
		if _, err := Reduce(tc.arg); !errors.Is(err, ErrUnhashable) {
			t.Errorf("%s: expected ErrUnhashable, got %v", tc.name, err)
		}
	}
}

func TestReduceReportsArgumentPosition(t *testing.T) {
	_, err := Reduce("ok", map[int]int{})
	if err == nil {
		t.Fatal("Expected error for map argument")
	}
	if !strings.Contains(err.Error(), "argument 1") {
		t.Errorf("Expected position in error, got %q", err.Error())
	}
}

func TestReduceNamed(t *testing.T) {
	k1, err := ReduceNamed([]any{"base"}, map[string]any{"a": 1, "b": 2})
	if err != nil {
		t.Fatalf("ReduceNamed failed: %v", err)
	}
	k2, err := ReduceNamed([]any{"base"}, map[string]any{"b": 2, "a": 1})
	if err != nil {
		t.Fatalf("ReduceNamed failed: %v", err)
	}
	if k1 != k2 {
		t.Errorf("Expected insertion order not to matter, got %q and %q", k1, k2)
	}

	k3, err := ReduceNamed([]any{"base"}, map[string]any{"a": 1, "b": 3})
	if err != nil {
		t.Fatalf("ReduceNamed failed: %v", err)
	}
	if k3 == k1 {
		t.Error("Expected different named values to produce different keys")
	}

	k4, err := ReduceNamed([]any{"base"}, map[string]any{"c": 1, "b": 2})
	if err != nil {
		t.Fatalf("ReduceNamed failed: %v", err)
	}
	if k4 == k1 {
		t.Error("Expected argument names to participate in the key")
	}

	// Without named arguments the two forms agree.
	plain, err := Reduce("base", 1)
	if err != nil {
		t.Fatalf("Reduce failed: %v", err)
	}
	namedNil, err := ReduceNamed([]any{"base", 1}, nil)
	if err != nil {
		t.Fatalf("ReduceNamed failed: %v", err)
	}
	if plain != namedNil {
		t.Errorf("Expected %q, got %q", plain, namedNil)
	}
}

func TestReducePointersAndArrays(t *testing.T) {
	var p *int
	kNilPtr, err := Reduce(p)
	if err != nil {
		t.Fatalf("Reduce nil pointer failed: %v", err)
	}
	kNil, err := Reduce(nil)
	if err != nil {
		t.Fatalf("Reduce nil failed: %v", err)
	}
	if kNilPtr == kNil {
		t.Error("Expected nil pointer and nil to key differently")
	}

	type alpha struct{ N int }
	type beta struct{ N int }
	kNilAlpha, err := Reduce((*alpha)(nil))
	if err != nil {
		t.Fatalf("Reduce nil *alpha failed: %v", err)
	}
	kNilBeta, err := Reduce((*beta)(nil))
	if err != nil {
		t.Fatalf("Reduce nil *beta failed: %v", err)
	}
	if kNilAlpha == kNilBeta {
		t.Error("Expected typed nils of distinct pointer types to key differently")
	}
	mustSameKey(t, []any{(*alpha)(nil)}, []any{(*alpha)(nil)})

	ka, err := Reduce([2]int{1, 2})
	if err != nil {
		t.Fatalf("Reduce array failed: %v", err)
	}
	kb, err := Reduce([2]int{1, 3})
	if err != nil {
		t.Fatalf("Reduce array failed: %v", err)
	}
	if ka == kb {
		t.Error("Expected different array contents to key differently")
	}
	mustSameKey(t, []any{[2]int{1, 2}}, []any{[2]int{1, 2}})
}
