package registry

import (
	"context"
	"reflect"
	"strings"

	"github.com/NeveIsa/LEAP2/pkg/apperr"
)

// Descriptor is the immutable record of one callable function. Policy flags
// are resolved at discovery time and never re-evaluated per call.
type Descriptor struct {
	Name       string
	Signature  string
	Doc        string
	NoLog      bool
	NoRegCheck bool

	fv       reflect.Value
	ft       reflect.Type
	takesCtx bool
	hasValue bool // returns a result value
	hasErr   bool // returns a trailing error
}

// Info is the wire representation of a descriptor for function discovery.
type Info struct {
	Signature  string `json:"signature"`
	Doc        string `json:"doc"`
	NoLog      bool   `json:"nolog"`
	NoRegCheck bool   `json:"noregcheck"`
}

// Info returns the discovery view of the descriptor.
func (d *Descriptor) Info() Info {
	return Info{Signature: d.Signature, Doc: d.Doc, NoLog: d.NoLog, NoRegCheck: d.NoRegCheck}
}

var ctxType = reflect.TypeOf((*context.Context)(nil)).Elem()
var errType = reflect.TypeOf((*error)(nil)).Elem()

// describe introspects a registered function into a Descriptor. It fails
// when the signature cannot be exposed over the wire.
func describe(e entry) (*Descriptor, error) {
	fv := reflect.ValueOf(e.fn)
	if !fv.IsValid() || fv.Kind() != reflect.Func {
		return nil, apperr.Discovery("function %q is not callable", e.name)
	}
	ft := fv.Type()

	d := &Descriptor{
		Name:       e.name,
		Doc:        e.doc,
		NoLog:      e.nolog,
		NoRegCheck: e.noregcheck,
		fv:         fv,
		ft:         ft,
	}

	params := make([]string, 0, ft.NumIn())
	for i := 0; i < ft.NumIn(); i++ {
		in := ft.In(i)
		if i == 0 && in == ctxType {
			d.takesCtx = true
			continue
		}
		if !wireType(in) {
			return nil, apperr.Discovery("function %q has unintrospectable parameter type %s", e.name, in)
		}
		name := in.String()
		if ft.IsVariadic() && i == ft.NumIn()-1 {
			name = "..." + in.Elem().String()
		}
		params = append(params, name)
	}

	switch ft.NumOut() {
	case 0:
	case 1:
		if ft.Out(0) == errType {
			d.hasErr = true
		} else {
			if !wireType(ft.Out(0)) {
				return nil, apperr.Discovery("function %q has unintrospectable result type %s", e.name, ft.Out(0))
			}
			d.hasValue = true
		}
	case 2:
		if ft.Out(1) != errType {
			return nil, apperr.Discovery("function %q must return (value, error)", e.name)
		}
		if !wireType(ft.Out(0)) {
			return nil, apperr.Discovery("function %q has unintrospectable result type %s", e.name, ft.Out(0))
		}
		d.hasValue = true
		d.hasErr = true
	default:
		return nil, apperr.Discovery("function %q returns too many values", e.name)
	}

	d.Signature = buildSignature(params, ft, d.hasValue)
	return d, nil
}

func buildSignature(params []string, ft reflect.Type, hasValue bool) string {
	var b strings.Builder
	b.WriteString("(")
	b.WriteString(strings.Join(params, ", "))
	b.WriteString(")")
	if hasValue {
		b.WriteString(" ")
		b.WriteString(ft.Out(0).String())
	}
	return b.String()
}

// wireType reports whether t can cross the JSON boundary.
func wireType(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	case reflect.Interface:
		return t.NumMethod() == 0 // any
	case reflect.Slice, reflect.Array:
		return wireType(t.Elem())
	case reflect.Map:
		return t.Key().Kind() == reflect.String && wireType(t.Elem())
	case reflect.Pointer:
		return wireType(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if f.IsExported() && !wireType(f.Type) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
