//go:build v8

package v8engine

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/cryguy/edgefn/internal/core"
	v8 "github.com/tommie/v8go"
)

// v8Runtime adapts a V8 context to core.Runtime.
type v8Runtime struct {
	iso *v8.Isolate
	ctx *v8.Context
}

var _ core.Runtime = (*v8Runtime)(nil)

func (r *v8Runtime) Exec(js string) error {
	_, err := r.ctx.RunScript(js, "edgefn.js")
	return err
}

func (r *v8Runtime) EvalString(js string) (string, error) {
	val, err := r.ctx.RunScript(js, "edgefn.js")
	if err != nil || val == nil {
		return "", err
	}
	return val.String(), nil
}

func (r *v8Runtime) EvalBool(js string) (bool, error) {
	val, err := r.ctx.RunScript(js, "edgefn.js")
	if err != nil || val == nil {
		return false, err
	}
	if !val.IsBoolean() {
		return false, fmt.Errorf("v8: %q did not evaluate to a boolean", js)
	}
	return val.Boolean(), nil
}

// Bind wraps fn in a function template. Arguments are converted by
// reflection from the Go parameter types; a non-nil trailing error is thrown
// as a string and turned into a TypeError by core.BindScript.
func (r *v8Runtime) Bind(name string, fn any) error {
	fv := reflect.ValueOf(fn)
	ft := fv.Type()
	if ft.Kind() != reflect.Func {
		return fmt.Errorf("v8: binding %s: %T is not a func", name, fn)
	}

	cb := func(info *v8.FunctionCallbackInfo) *v8.Value {
		args := info.Args()
		if len(args) < ft.NumIn() {
			r.throw(fmt.Sprintf("%s: want %d argument(s), got %d", name, ft.NumIn(), len(args)))
			return nil
		}
		in := make([]reflect.Value, ft.NumIn())
		for i := range in {
			in[i] = jsToGoArg(args[i], ft.In(i))
		}
		out := fv.Call(in)
		if len(out) == 0 {
			return nil
		}
		if len(out) > 1 && !out[1].IsNil() {
			r.throw(out[1].Interface().(error).Error())
			return nil
		}
		return goToJSValue(r.iso, out[0])
	}

	raw := "__raw_" + name
	tmpl := v8.NewFunctionTemplate(r.iso, cb)
	if err := r.ctx.Global().Set(raw, tmpl.GetFunction(r.ctx)); err != nil {
		return fmt.Errorf("v8: binding %s: %w", name, err)
	}
	return r.Exec(core.BindScript(raw, name, false))
}

func (r *v8Runtime) throw(msg string) {
	val, _ := v8.NewValue(r.iso, msg)
	r.iso.ThrowException(val)
}

func (r *v8Runtime) SetGlobal(name string, value any) error {
	val, err := goAnyToJSValue(r.iso, r.ctx, value)
	if err != nil {
		return fmt.Errorf("v8: global %q: %w", name, err)
	}
	return r.ctx.Global().Set(name, val)
}

func (r *v8Runtime) RunMicrotasks() {
	r.ctx.PerformMicrotaskCheckpoint()
}

// jsToGoArg converts a V8 value to a Go reflect.Value of the expected type.
func jsToGoArg(val *v8.Value, targetType reflect.Type) reflect.Value {
	switch targetType.Kind() {
	case reflect.String:
		return reflect.ValueOf(val.String())
	case reflect.Int:
		return reflect.ValueOf(int(val.Integer()))
	case reflect.Int64:
		return reflect.ValueOf(val.Integer())
	case reflect.Float64:
		return reflect.ValueOf(val.Number())
	case reflect.Bool:
		return reflect.ValueOf(val.Boolean())
	default:
		return reflect.Zero(targetType)
	}
}

// goToJSValue converts a Go reflect.Value to a V8 value.
func goToJSValue(iso *v8.Isolate, val reflect.Value) *v8.Value {
	if !val.IsValid() {
		return nil
	}
	var (
		v   *v8.Value
		err error
	)
	switch val.Kind() {
	case reflect.String:
		v, err = v8.NewValue(iso, val.String())
	case reflect.Int, reflect.Int64, reflect.Int32:
		v, err = v8.NewValue(iso, int32(val.Int()))
	case reflect.Float64, reflect.Float32:
		v, err = v8.NewValue(iso, val.Float())
	case reflect.Bool:
		v, err = v8.NewValue(iso, val.Bool())
	default:
		return nil
	}
	if err != nil {
		return nil
	}
	return v
}

// goAnyToJSValue converts a Go value to a V8 value. Values without a direct
// V8 counterpart go through JSON.
func goAnyToJSValue(iso *v8.Isolate, ctx *v8.Context, value any) (*v8.Value, error) {
	switch v := value.(type) {
	case nil:
		return v8.Undefined(iso), nil
	case string:
		return v8.NewValue(iso, v)
	case int:
		return v8.NewValue(iso, int32(v))
	case int64:
		return v8.NewValue(iso, int32(v))
	case float64:
		return v8.NewValue(iso, v)
	case bool:
		return v8.NewValue(iso, v)
	case *v8.Value:
		return v, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshaling value: %w", err)
	}
	return ctx.RunScript("JSON.parse("+core.JsEscape(string(data))+")", "set_global.js")
}
