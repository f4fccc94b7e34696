//go:build !v8

package quickjs

import (
	"fmt"

	"github.com/cryguy/edgefn/internal/core"
	"modernc.org/quickjs"
)

// vmRuntime adapts a QuickJS VM to core.Runtime.
type vmRuntime struct {
	vm *quickjs.VM
}

var _ core.Runtime = (*vmRuntime)(nil)

func (r *vmRuntime) Exec(js string) error {
	v, err := r.vm.EvalValue(js, quickjs.EvalGlobal)
	if err != nil {
		return err
	}
	v.Free()
	return nil
}

func (r *vmRuntime) eval(js string) (any, error) {
	return r.vm.Eval(js, quickjs.EvalGlobal)
}

func (r *vmRuntime) EvalString(js string) (string, error) {
	out, err := r.eval(js)
	switch {
	case err != nil:
		return "", err
	case out == nil:
		return "", nil
	}
	if s, ok := out.(string); ok {
		return s, nil
	}
	return fmt.Sprint(out), nil
}

func (r *vmRuntime) EvalBool(js string) (bool, error) {
	out, err := r.eval(js)
	if err != nil {
		return false, err
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("quickjs: %q evaluated to %T, not bool", js, out)
	}
	return b, nil
}

// Bind registers fn under a private name and lets core.BindScript unwrap
// the [value, error] arrays the QuickJS wrapper returns for two-result funcs.
func (r *vmRuntime) Bind(name string, fn any) error {
	raw := "__raw_" + name
	if err := r.vm.RegisterFunc(raw, fn, false); err != nil {
		return fmt.Errorf("quickjs: binding %s: %w", name, err)
	}
	return r.Exec(core.BindScript(raw, name, true))
}

func (r *vmRuntime) SetGlobal(name string, value any) error {
	atom, err := r.vm.NewAtom(name)
	if err != nil {
		return fmt.Errorf("quickjs: atom %q: %w", name, err)
	}
	global := r.vm.GlobalObject()
	defer global.Free()
	return global.SetProperty(atom, value)
}

func (r *vmRuntime) RunMicrotasks() {
	executePendingJobs(r.vm)
}
