package registry

import (
	"strings"
	"testing"

	"github.com/NeveIsa/LEAP2/pkg/apperr"
)

func TestReload_DiscoversRegisteredFunctions(t *testing.T) {
	set := NewSet()
	set.Register("square", func(x float64) float64 { return x * x }, WithDoc("squares x"))
	set.Register("greet", func(name string) string { return "hi " + name })

	r := New(set)
	n, err := r.Reload()
	if err != nil {
		t.Fatalf("expected no error: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 functions, got %d", n)
	}

	d, err := r.Lookup("square")
	if err != nil {
		t.Fatalf("expected square to resolve: %v", err)
	}
	if d.Signature != "(float64) float64" {
		t.Errorf("unexpected signature: %q", d.Signature)
	}
	if d.Doc != "squares x" {
		t.Errorf("unexpected doc: %q", d.Doc)
	}
}

func TestReload_SkipsHiddenFunctions(t *testing.T) {
	set := NewSet()
	set.Register("visible", func() {})
	set.Register("_hidden", func() {})

	r := New(set)
	n, err := r.Reload()
	if err != nil {
		t.Fatalf("expected no error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 function, got %d", n)
	}
	if _, err := r.Lookup("_hidden"); err == nil {
		t.Error("expected hidden function to be unresolvable")
	}
}

func TestReload_FlagsCarriedToDescriptor(t *testing.T) {
	set := NewSet()
	set.Register("open", func() {}, NoRegCheck())
	set.Register("quiet", func() {}, NoLog())

	r := New(set)
	if _, err := r.Reload(); err != nil {
		t.Fatalf("expected no error: %v", err)
	}

	open, _ := r.Lookup("open")
	if !open.NoRegCheck || open.NoLog {
		t.Errorf("unexpected flags on open: %+v", open.Info())
	}
	quiet, _ := r.Lookup("quiet")
	if !quiet.NoLog || quiet.NoRegCheck {
		t.Errorf("unexpected flags on quiet: %+v", quiet.Info())
	}
}

func TestReload_ErrorKeepsPreviousSnapshot(t *testing.T) {
	set := NewSet()
	set.Register("good", func() int { return 1 })

	r := New(set)
	if _, err := r.Reload(); err != nil {
		t.Fatalf("expected no error: %v", err)
	}

	// Channels cannot cross the wire, so discovery must fail.
	set.Register("bad", func() chan int { return nil })
	if _, err := r.Reload(); err == nil {
		t.Fatal("expected discovery error")
	} else if apperr.KindOf(err) != apperr.KindDiscovery {
		t.Errorf("expected discovery kind, got %v", apperr.KindOf(err))
	}

	// The old snapshot stays visible.
	if _, err := r.Lookup("good"); err != nil {
		t.Errorf("expected good to remain resolvable: %v", err)
	}
	if r.Snapshot().Count() != 1 {
		t.Errorf("expected snapshot count 1, got %d", r.Snapshot().Count())
	}
}

func TestLookup_UnknownFunction(t *testing.T) {
	r := New(NewSet())
	if _, err := r.Reload(); err != nil {
		t.Fatalf("expected no error: %v", err)
	}

	_, err := r.Lookup("nope")
	if err == nil {
		t.Fatal("expected error")
	}
	if apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("expected not_found kind, got %v", apperr.KindOf(err))
	}
	if !strings.Contains(err.Error(), "nope") {
		t.Errorf("expected function name in message: %q", err.Error())
	}
}

func TestDescribe_Signatures(t *testing.T) {
	cases := []struct {
		name string
		fn   any
		want string
	}{
		{"two_floats", func(a, b float64) float64 { return a + b }, "(float64, float64) float64"},
		{"no_result", func(s string) {}, "(string)"},
		{"variadic", func(xs ...float64) float64 { return 0 }, "(...float64) float64"},
		{"with_error", func(x int) (int, error) { return x, nil }, "(int) int"},
		{"slice", func(xs []string) int { return len(xs) }, "([]string) int"},
	}
	for _, tc := range cases {
		d, err := describe(entry{name: tc.name, fn: tc.fn})
		if err != nil {
			t.Fatalf("%s: expected no error: %v", tc.name, err)
		}
		if d.Signature != tc.want {
			t.Errorf("%s: expected %q, got %q", tc.name, tc.want, d.Signature)
		}
	}
}

func TestDescribe_RejectsUnwireableSignatures(t *testing.T) {
	cases := []struct {
		name string
		fn   any
	}{
		{"not_a_func", 42},
		{"chan_param", func(c chan int) {}},
		{"func_result", func() func() { return nil }},
		{"value_after_error", func() (error, int) { return nil, 0 }},
		{"three_results", func() (int, int, error) { return 0, 0, nil }},
	}
	for _, tc := range cases {
		if _, err := describe(entry{name: tc.name, fn: tc.fn}); err == nil {
			t.Errorf("%s: expected discovery error", tc.name)
		}
	}
}

func TestRegisterSet_DuplicatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate set name")
		}
	}()
	RegisterSet("dup-test-set", NewSet())
	RegisterSet("dup-test-set", NewSet())
}
