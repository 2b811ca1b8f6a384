package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
)

// Invoke converts args positionally to the function's parameter types, calls
// it, and returns its result. A conversion failure, a returned error, or a
// panic inside the function all surface as a plain error; classifying and
// recording the failure is the dispatcher's job.
func (d *Descriptor) Invoke(ctx context.Context, args []any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	in, err := d.buildArgs(ctx, args)
	if err != nil {
		return nil, err
	}

	out := d.fv.Call(in)

	if d.hasErr {
		if ev := out[len(out)-1]; !ev.IsNil() {
			return nil, ev.Interface().(error)
		}
	}
	if d.hasValue {
		return out[0].Interface(), nil
	}
	return nil, nil
}

func (d *Descriptor) buildArgs(ctx context.Context, args []any) ([]reflect.Value, error) {
	numIn := d.ft.NumIn()
	offset := 0
	if d.takesCtx {
		offset = 1
	}

	fixed := numIn - offset
	if d.ft.IsVariadic() {
		fixed--
		if len(args) < fixed {
			return nil, fmt.Errorf("%s takes at least %d argument(s), got %d", d.Name, fixed, len(args))
		}
	} else if len(args) != fixed {
		return nil, fmt.Errorf("%s takes %d argument(s), got %d", d.Name, fixed, len(args))
	}

	in := make([]reflect.Value, 0, offset+len(args))
	if d.takesCtx {
		in = append(in, reflect.ValueOf(ctx))
	}

	for i, arg := range args {
		var pt reflect.Type
		if d.ft.IsVariadic() && i >= fixed {
			pt = d.ft.In(numIn - 1).Elem()
		} else {
			pt = d.ft.In(i + offset)
		}
		v, err := convertArg(arg, pt)
		if err != nil {
			return nil, fmt.Errorf("argument %d of %s: %w", i, d.Name, err)
		}
		in = append(in, v)
	}
	return in, nil
}

// convertArg adapts one JSON-decoded value to the parameter type.
func convertArg(arg any, t reflect.Type) (reflect.Value, error) {
	if arg == nil {
		switch t.Kind() {
		case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
			return reflect.Zero(t), nil
		}
		return reflect.Value{}, fmt.Errorf("cannot use null as %s", t)
	}

	av := reflect.ValueOf(arg)
	if av.Type() == t {
		return av, nil
	}
	if t.Kind() == reflect.Interface && t.NumMethod() == 0 {
		return av, nil
	}

	switch t.Kind() {
	case reflect.Float32, reflect.Float64:
		if f, ok := arg.(float64); ok {
			return reflect.ValueOf(f).Convert(t), nil
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// JSON numbers decode as float64; only integral in-range values
		// convert.
		if f, ok := arg.(float64); ok {
			if math.Trunc(f) != f || f < math.MinInt64 || f >= math.MaxInt64 {
				return reflect.Value{}, fmt.Errorf("cannot use %v as %s", arg, t)
			}
			v := reflect.New(t).Elem()
			if v.OverflowInt(int64(f)) {
				return reflect.Value{}, fmt.Errorf("cannot use %v as %s", arg, t)
			}
			v.SetInt(int64(f))
			return v, nil
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if f, ok := arg.(float64); ok {
			if math.Trunc(f) != f || f < 0 || f >= math.MaxUint64 {
				return reflect.Value{}, fmt.Errorf("cannot use %v as %s", arg, t)
			}
			v := reflect.New(t).Elem()
			if v.OverflowUint(uint64(f)) {
				return reflect.Value{}, fmt.Errorf("cannot use %v as %s", arg, t)
			}
			v.SetUint(uint64(f))
			return v, nil
		}
	case reflect.String:
		if s, ok := arg.(string); ok {
			return reflect.ValueOf(s).Convert(t), nil
		}
	case reflect.Bool:
		if b, ok := arg.(bool); ok {
			return reflect.ValueOf(b).Convert(t), nil
		}
	case reflect.Slice, reflect.Array, reflect.Map, reflect.Struct, reflect.Pointer:
		// Structured values round-trip through JSON into the target type.
		raw, err := json.Marshal(arg)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("cannot encode %T: %w", arg, err)
		}
		pv := reflect.New(t)
		if err := json.Unmarshal(raw, pv.Interface()); err != nil {
			return reflect.Value{}, fmt.Errorf("cannot use %v as %s", arg, t)
		}
		return pv.Elem(), nil
	}

	return reflect.Value{}, fmt.Errorf("cannot use %T as %s", arg, t)
}
