package registry

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
)

func mustDescribe(t *testing.T, name string, fn any) *Descriptor {
	t.Helper()
	d, err := describe(entry{name: name, fn: fn})
	if err != nil {
		t.Fatalf("describe %s: %v", name, err)
	}
	return d
}

func TestInvoke_FloatArgs(t *testing.T) {
	d := mustDescribe(t, "add", func(a, b float64) float64 { return a + b })

	result, err := d.Invoke(context.Background(), []any{float64(2), float64(3)})
	if err != nil {
		t.Fatalf("expected no error: %v", err)
	}
	if result != float64(5) {
		t.Errorf("expected 5, got %v", result)
	}
}

func TestInvoke_IntegralFloatConvertsToInt(t *testing.T) {
	d := mustDescribe(t, "double", func(n int) int { return 2 * n })

	result, err := d.Invoke(context.Background(), []any{float64(21)})
	if err != nil {
		t.Fatalf("expected no error: %v", err)
	}
	if result != 42 {
		t.Errorf("expected 42, got %v", result)
	}
}

func TestInvoke_FractionalFloatRejectedForInt(t *testing.T) {
	d := mustDescribe(t, "double", func(n int) int { return 2 * n })

	if _, err := d.Invoke(context.Background(), []any{float64(2.5)}); err == nil {
		t.Fatal("expected conversion error")
	}
}

func TestInvoke_OutOfRangeFloatRejectedForInt(t *testing.T) {
	d := mustDescribe(t, "double", func(n int) int { return 2 * n })

	for _, v := range []float64{1e30, math.MaxInt64, -1e30} {
		if _, err := d.Invoke(context.Background(), []any{v}); err == nil {
			t.Errorf("expected conversion error for %v", v)
		}
	}
}

func TestInvoke_NarrowIntOverflowRejected(t *testing.T) {
	d := mustDescribe(t, "tiny", func(n int8) int8 { return n })

	if _, err := d.Invoke(context.Background(), []any{float64(300)}); err == nil {
		t.Fatal("expected conversion error")
	}
	result, err := d.Invoke(context.Background(), []any{float64(100)})
	if err != nil {
		t.Fatalf("expected no error: %v", err)
	}
	if result != int8(100) {
		t.Errorf("expected 100, got %v", result)
	}
}

func TestInvoke_NegativeFloatRejectedForUint(t *testing.T) {
	d := mustDescribe(t, "count", func(n uint) uint { return n })

	if _, err := d.Invoke(context.Background(), []any{float64(-1)}); err == nil {
		t.Fatal("expected conversion error")
	}
	result, err := d.Invoke(context.Background(), []any{float64(7)})
	if err != nil {
		t.Fatalf("expected no error: %v", err)
	}
	if result != uint(7) {
		t.Errorf("expected 7, got %v", result)
	}
}

func TestInvoke_WrongArity(t *testing.T) {
	d := mustDescribe(t, "add", func(a, b float64) float64 { return a + b })

	_, err := d.Invoke(context.Background(), []any{float64(1)})
	if err == nil {
		t.Fatal("expected arity error")
	}
	if !strings.Contains(err.Error(), "takes 2 argument(s), got 1") {
		t.Errorf("unexpected message: %q", err.Error())
	}
}

func TestInvoke_Variadic(t *testing.T) {
	d := mustDescribe(t, "sum", func(xs ...float64) float64 {
		var s float64
		for _, x := range xs {
			s += x
		}
		return s
	})

	result, err := d.Invoke(context.Background(), []any{float64(1), float64(2), float64(3)})
	if err != nil {
		t.Fatalf("expected no error: %v", err)
	}
	if result != float64(6) {
		t.Errorf("expected 6, got %v", result)
	}

	result, err = d.Invoke(context.Background(), []any{})
	if err != nil {
		t.Fatalf("expected no error on zero args: %v", err)
	}
	if result != float64(0) {
		t.Errorf("expected 0, got %v", result)
	}
}

func TestInvoke_StructuredArgs(t *testing.T) {
	type point struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}
	d := mustDescribe(t, "norm2", func(p point) float64 { return p.X*p.X + p.Y*p.Y })

	// JSON-decoded request bodies surface objects as map[string]any.
	result, err := d.Invoke(context.Background(), []any{map[string]any{"x": 3.0, "y": 4.0}})
	if err != nil {
		t.Fatalf("expected no error: %v", err)
	}
	if result != float64(25) {
		t.Errorf("expected 25, got %v", result)
	}
}

func TestInvoke_SliceArg(t *testing.T) {
	d := mustDescribe(t, "count", func(xs []string) int { return len(xs) })

	result, err := d.Invoke(context.Background(), []any{[]any{"a", "b", "c"}})
	if err != nil {
		t.Fatalf("expected no error: %v", err)
	}
	if result != 3 {
		t.Errorf("expected 3, got %v", result)
	}
}

func TestInvoke_NullForPointerAndDenseTypes(t *testing.T) {
	d := mustDescribe(t, "nilok", func(p *string, m map[string]any) bool {
		return p == nil && m == nil
	})

	result, err := d.Invoke(context.Background(), []any{nil, nil})
	if err != nil {
		t.Fatalf("expected no error: %v", err)
	}
	if result != true {
		t.Errorf("expected true, got %v", result)
	}
}

func TestInvoke_NullRejectedForScalar(t *testing.T) {
	d := mustDescribe(t, "double", func(n int) int { return 2 * n })

	if _, err := d.Invoke(context.Background(), []any{nil}); err == nil {
		t.Fatal("expected error for null scalar")
	}
}

func TestInvoke_ReturnedErrorSurfaces(t *testing.T) {
	sentinel := errors.New("boom")
	d := mustDescribe(t, "failing", func() (int, error) { return 0, sentinel })

	_, err := d.Invoke(context.Background(), []any{})
	if !errors.Is(err, sentinel) {
		t.Errorf("expected sentinel error, got %v", err)
	}
}

func TestInvoke_PanicRecovered(t *testing.T) {
	d := mustDescribe(t, "panics", func() { panic("kaboom") })

	_, err := d.Invoke(context.Background(), []any{})
	if err == nil {
		t.Fatal("expected error from panic")
	}
	if !strings.Contains(err.Error(), "kaboom") {
		t.Errorf("expected panic message, got %q", err.Error())
	}
}

func TestInvoke_ContextParamInjected(t *testing.T) {
	type key struct{}
	d := mustDescribe(t, "ctxval", func(ctx context.Context, x float64) float64 {
		if ctx.Value(key{}) != "present" {
			return -1
		}
		return x
	})
	if d.Signature != "(float64) float64" {
		t.Errorf("context must not appear in signature: %q", d.Signature)
	}

	ctx := context.WithValue(context.Background(), key{}, "present")
	result, err := d.Invoke(ctx, []any{float64(7)})
	if err != nil {
		t.Fatalf("expected no error: %v", err)
	}
	if result != float64(7) {
		t.Errorf("expected ctx-aware call to see the value, got %v", result)
	}
}
