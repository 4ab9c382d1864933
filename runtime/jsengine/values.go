package jsengine

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dop251/goja"

	"github.com/elb-pr/claudikins-tool-executor/backend"
	"github.com/elb-pr/claudikins-tool-executor/code"
)

// Error names seen by scripts for failed capability calls.
const (
	nameServiceUnavailable      = "ServiceUnavailable"
	nameRemoteInvocationFailure = "RemoteInvocationFailure"
)

// export converts a script value to JSON-native Go data the way
// JSON.stringify sees it. Values JSON cannot represent fall back to their
// string form.
func (r *run) export(v goja.Value) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	out, err := r.stringify(goja.Undefined(), v)
	if err != nil || out == nil || goja.IsUndefined(out) {
		return r.safeString(v)
	}
	var decoded any
	if err := json.Unmarshal([]byte(out.String()), &decoded); err != nil {
		return r.safeString(v)
	}
	return decoded
}

// exportArgs exports each argument.
func (r *run) exportArgs(args []goja.Value) []any {
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = r.export(a)
	}
	return out
}

// importValue converts Go data to a plain script value.
func (r *run) importValue(v any) goja.Value {
	if v == nil {
		return goja.Null()
	}
	data, err := json.Marshal(v)
	if err != nil {
		return r.vm.ToValue(fmt.Sprint(v))
	}
	out, err := r.parse(goja.Undefined(), r.vm.ToValue(string(data)))
	if err != nil {
		return r.vm.ToValue(string(data))
	}
	return out
}

// callArgs converts a capability argument to an object. A missing
// argument is an empty object.
func (r *run) callArgs(v goja.Value) (map[string]any, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return map[string]any{}, nil
	}
	if m, ok := r.export(v).(map[string]any); ok {
		return m, nil
	}
	return nil, errors.New("arguments must be an object")
}

// newError constructs a script Error with message.
func (r *run) newError(message string) *goja.Object {
	obj, err := r.vm.New(r.vm.Get("Error"), r.vm.ToValue(message))
	if err != nil {
		return r.vm.NewGoError(errors.New(message))
	}
	return obj
}

// remoteError is the rejection reason for a failed capability call.
func (r *run) remoteError(service, capability string, err error) *goja.Object {
	name := nameRemoteInvocationFailure
	if errors.Is(err, backend.ErrServiceUnavailable) {
		name = nameServiceUnavailable
	}
	obj := r.newError(err.Error())
	_ = obj.Set("name", name)
	_ = obj.Set("service", service)
	_ = obj.Set("capability", capability)
	return obj
}

// unprintableMessage stands in for a thrown value that cannot be read.
const unprintableMessage = "Uncaught exception (unprintable value)"

// reasonError converts a thrown value or rejection reason. Reading the value
// runs script code (getters, toString), so every read is guarded and a
// failure degrades the description instead of escaping.
func (r *run) reasonError(v goja.Value) *code.CodeError {
	if v == nil || goja.IsUndefined(v) {
		return &code.CodeError{Message: "undefined"}
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		return &code.CodeError{Message: r.safeString(v)}
	}
	msg, ok, err := r.stringProp(obj, "message")
	if err != nil {
		return &code.CodeError{Message: unprintableMessage}
	}
	if !ok {
		return &code.CodeError{Message: r.safeString(v)}
	}
	ce := &code.CodeError{Message: msg}
	ce.Name, _, _ = r.stringProp(obj, "name")
	ce.Stack, _, _ = r.stringProp(obj, "stack")
	if ce.Stack == "" {
		name := ce.Name
		if name == "" {
			name = "Error"
		}
		ce.Stack = name + ": " + ce.Message
	}
	return ce
}

// stringProp reads obj[key] as a string. ok is false when the property is
// undefined or null; err is set when reading it threw.
func (r *run) stringProp(obj *goja.Object, key string) (s string, ok bool, err error) {
	if ex := r.vm.Try(func() {
		v := obj.Get(key)
		if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
			return
		}
		s, ok = v.String(), true
	}); ex != nil {
		return "", false, ex
	}
	return s, ok, nil
}

// safeString is v.String() with a fixed fallback when conversion throws.
func (r *run) safeString(v goja.Value) string {
	var s string
	if ex := r.vm.Try(func() { s = v.String() }); ex != nil {
		return unprintableMessage
	}
	return s
}
