package jsengine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"

	"github.com/elb-pr/claudikins-tool-executor/code"
	"github.com/elb-pr/claudikins-tool-executor/workspace"
)

// reservedKeys are never treated as capabilities so that service objects
// are not mistaken for promises or coerced through them.
var reservedKeys = map[string]bool{
	"then":        true,
	"toJSON":      true,
	"constructor": true,
	"valueOf":     true,
	"toString":    true,
}

// bind installs the sandbox globals.
func (r *run) bind() error {
	vm := r.vm
	if err := vm.GlobalObject().Delete("require"); err != nil {
		return fmt.Errorf("remove require: %w", err)
	}

	json := vm.Get("JSON").ToObject(vm)
	var ok bool
	if r.stringify, ok = goja.AssertFunction(json.Get("stringify")); !ok {
		return errors.New("JSON.stringify is not callable")
	}
	if r.parse, ok = goja.AssertFunction(json.Get("parse")); !ok {
		return errors.New("JSON.parse is not callable")
	}

	if err := vm.Set("console", r.consoleObject()); err != nil {
		return err
	}
	if err := vm.Set("workspace", r.workspaceObject()); err != nil {
		return err
	}
	for _, p := range r.scope.Proxies() {
		svc := &serviceObject{r: r, proxy: p, fns: make(map[string]goja.Value)}
		if err := vm.Set(p.Service(), vm.NewDynamicObject(svc)); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) consoleObject() *goja.Object {
	con := r.vm.NewObject()
	console := r.scope.Console()
	_ = con.Set("log", func(call goja.FunctionCall) goja.Value {
		console.Log(r.exportArgs(call.Arguments)...)
		return goja.Undefined()
	})
	for _, level := range []string{code.LevelInfo, code.LevelWarn, code.LevelError, code.LevelDebug} {
		_ = con.Set(level, func(call goja.FunctionCall) goja.Value {
			console.Leveled(level, r.exportArgs(call.Arguments)...)
			return goja.Undefined()
		})
	}
	return con
}

// serviceObject exposes every property name as a capability function.
type serviceObject struct {
	r     *run
	proxy *code.Proxy
	fns   map[string]goja.Value
}

func (s *serviceObject) Get(key string) goja.Value {
	if reservedKeys[key] {
		return nil
	}
	if fn, ok := s.fns[key]; ok {
		return fn
	}
	fn := s.r.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		return s.r.invoke(s.proxy, key, call.Argument(0))
	})
	s.fns[key] = fn
	return fn
}

func (s *serviceObject) Set(string, goja.Value) bool { return false }
func (s *serviceObject) Has(key string) bool         { return !reservedKeys[key] }
func (s *serviceObject) Delete(string) bool          { return false }
func (s *serviceObject) Keys() []string              { return s.proxy.Capabilities() }

// invoke starts a capability call and returns a promise for its result.
// The call runs off the loop and is not tied to the script's deadline.
func (r *run) invoke(p *code.Proxy, capability string, arg goja.Value) goja.Value {
	promise, resolve, reject := r.vm.NewPromise()
	args, err := r.callArgs(arg)
	if err != nil {
		reject(r.vm.NewTypeError("%s.%s: %v", p.Service(), capability, err))
		return r.vm.ToValue(promise)
	}

	callCtx := context.WithoutCancel(r.ctx)
	go func() {
		result, err := p.Call(callCtx, capability, args)
		r.loop.RunOnLoop(func(*goja.Runtime) {
			if err != nil {
				reject(r.remoteError(p.Service(), capability, err))
				return
			}
			resolve(r.importValue(result))
		})
	}()
	return r.vm.ToValue(promise)
}

// settle runs fn on the loop and returns a promise already settled with
// its outcome.
func (r *run) settle(fn func() (goja.Value, error)) goja.Value {
	promise, resolve, reject := r.vm.NewPromise()
	v, err := fn()
	if err != nil {
		reject(r.newError(err.Error()))
	} else {
		resolve(v)
	}
	return r.vm.ToValue(promise)
}

func (r *run) workspaceObject() *goja.Object {
	ws := r.scope.Workspace()
	obj := r.vm.NewObject()
	undefined := goja.Undefined()

	str := func(call goja.FunctionCall, i int) string {
		v := call.Argument(i)
		if goja.IsUndefined(v) || goja.IsNull(v) {
			return ""
		}
		return v.String()
	}
	method := func(name string, fn func(call goja.FunctionCall) (goja.Value, error)) {
		_ = obj.Set(name, func(call goja.FunctionCall) goja.Value {
			return r.settle(func() (goja.Value, error) { return fn(call) })
		})
	}

	method("read", func(call goja.FunctionCall) (goja.Value, error) {
		s, err := ws.Read(str(call, 0))
		return r.vm.ToValue(s), err
	})
	method("write", func(call goja.FunctionCall) (goja.Value, error) {
		return undefined, ws.Write(str(call, 0), str(call, 1))
	})
	method("append", func(call goja.FunctionCall) (goja.Value, error) {
		return undefined, ws.Append(str(call, 0), str(call, 1))
	})
	method("delete", func(call goja.FunctionCall) (goja.Value, error) {
		return undefined, ws.Delete(str(call, 0))
	})
	method("readJSON", func(call goja.FunctionCall) (goja.Value, error) {
		v, err := ws.ReadJSON(str(call, 0))
		if err != nil {
			return undefined, err
		}
		return r.importValue(v), nil
	})
	method("writeJSON", func(call goja.FunctionCall) (goja.Value, error) {
		return undefined, ws.WriteJSON(str(call, 0), r.export(call.Argument(1)))
	})
	method("list", func(call goja.FunctionCall) (goja.Value, error) {
		p := str(call, 0)
		if p == "" {
			p = "."
		}
		names, err := ws.List(p)
		if err != nil {
			return undefined, err
		}
		return r.importValue(names), nil
	})
	method("glob", func(call goja.FunctionCall) (goja.Value, error) {
		matches, err := ws.Glob(str(call, 0))
		if err != nil {
			return undefined, err
		}
		return r.importValue(matches), nil
	})
	method("mkdir", func(call goja.FunctionCall) (goja.Value, error) {
		return undefined, ws.Mkdir(str(call, 0))
	})
	method("exists", func(call goja.FunctionCall) (goja.Value, error) {
		ok, err := ws.Exists(str(call, 0))
		return r.vm.ToValue(ok), err
	})
	method("stat", func(call goja.FunctionCall) (goja.Value, error) {
		info, err := ws.Stat(str(call, 0))
		if err != nil {
			return undefined, err
		}
		return r.importValue(info), nil
	})
	cleanup := func(call goja.FunctionCall) (goja.Value, error) {
		maxAge := workspace.DefaultResultMaxAge
		if v := call.Argument(0); !goja.IsUndefined(v) && !goja.IsNull(v) {
			maxAge = time.Duration(v.ToInteger()) * time.Millisecond
		}
		n, err := ws.CleanupResults(maxAge)
		return r.vm.ToValue(n), err
	}
	method("cleanupResults", cleanup)
	method("cleanupMcpResults", cleanup)
	return obj
}
