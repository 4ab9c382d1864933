package jsengine

import (
	"context"
	"errors"
	"fmt"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
	"go.uber.org/zap"

	"github.com/elb-pr/claudikins-tool-executor/code"
)

// scriptName is the file name reported in stack traces.
const scriptName = "script.js"

// Config configures an Engine.
type Config struct {
	// Logger is optional.
	Logger *zap.Logger
}

// Engine implements code.Engine with goja.
type Engine struct {
	logger *zap.Logger
}

var _ code.Engine = (*Engine)(nil)

// New creates a new Engine with the given configuration.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{logger: logger}
}

type settlement struct {
	completion code.Completion
	err        error
}

// run is the state of one script execution. Everything except ctx, loop
// and done is touched only from the loop goroutine.
type run struct {
	ctx    context.Context
	loop   *eventloop.EventLoop
	scope  *code.Scope
	logger *zap.Logger

	vm        *goja.Runtime
	stringify goja.Callable
	parse     goja.Callable
	settled   bool
	done      chan settlement
}

// Execute implements code.Engine.
func (e *Engine) Execute(ctx context.Context, params code.ExecuteParams, scope *code.Scope) (code.Completion, error) {
	if scope == nil {
		return code.Completion{}, fmt.Errorf("%w: nil scope", code.ErrInvalidParams)
	}
	if err := ctx.Err(); err != nil {
		return code.Completion{}, err
	}

	loop := eventloop.NewEventLoop(eventloop.EnableConsole(false))
	loop.Start()

	r := &run{
		ctx:    ctx,
		loop:   loop,
		scope:  scope,
		logger: e.logger,
		done:   make(chan settlement, 1),
	}
	vmCh := make(chan *goja.Runtime, 1)
	loop.RunOnLoop(func(vm *goja.Runtime) {
		vmCh <- vm
		r.start(vm, params.Code)
	})
	vm := <-vmCh

	// Timers or stray jobs may still be queued; interrupt whatever is
	// running and let the loop wind down on its own.
	defer func() {
		vm.Interrupt(errAbandoned)
		go loop.Stop()
	}()

	select {
	case s := <-r.done:
		return s.completion, s.err
	case <-ctx.Done():
		e.logger.Debug("interrupting script", zap.Error(ctx.Err()))
		return code.Completion{}, ctx.Err()
	}
}

var errAbandoned = errors.New("script abandoned")

// start binds the globals, compiles the script and runs it up to its first
// suspension.
func (r *run) start(vm *goja.Runtime, src string) {
	defer func() {
		if p := recover(); p != nil {
			r.finish(code.Completion{}, fmt.Errorf("%w: interpreter panic: %v", code.ErrScriptFault, p))
		}
	}()

	r.vm = vm
	if err := r.bind(); err != nil {
		r.finish(code.Completion{}, err)
		return
	}

	prog, err := goja.Compile(scriptName, wrapScript(src), false)
	if err != nil {
		r.finish(code.Completion{}, compileError(err))
		return
	}
	v, err := vm.RunProgram(prog)
	if err != nil {
		r.finish(code.Completion{}, r.runError(err))
		return
	}
	r.await(v)
}

// wrapScript makes src the body of an immediately invoked async function.
// The prefix shares the first line so line numbers match the source.
func wrapScript(src string) string {
	return "(async function () {" + src + "\n})()"
}

// await settles the run when the script's promise settles.
func (r *run) await(v goja.Value) {
	obj, ok := v.(*goja.Object)
	if !ok {
		r.finish(r.completion(v), nil)
		return
	}
	then, ok := goja.AssertFunction(obj.Get("then"))
	if !ok {
		r.finish(r.completion(v), nil)
		return
	}
	onFulfilled := r.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		r.finish(r.completion(call.Argument(0)), nil)
		return goja.Undefined()
	})
	onRejected := r.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		r.finish(code.Completion{}, r.reasonError(call.Argument(0)))
		return goja.Undefined()
	})
	if _, err := then(obj, onFulfilled, onRejected); err != nil {
		r.finish(code.Completion{}, r.runError(err))
	}
}

func (r *run) completion(v goja.Value) code.Completion {
	if v == nil || goja.IsUndefined(v) {
		return code.Completion{}
	}
	return code.Completion{Value: r.export(v), Returned: true}
}

// finish reports the first outcome; later ones are dropped.
func (r *run) finish(c code.Completion, err error) {
	if r.settled {
		return
	}
	r.settled = true
	r.done <- settlement{completion: c, err: err}
}

// runError converts an error from running JavaScript.
func (r *run) runError(err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if ctxErr := r.ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	var exception *goja.Exception
	if errors.As(err, &exception) {
		ce := r.reasonError(exception.Value())
		if ce.Stack == "" {
			ce.Stack = exception.String()
		}
		ce.Err = err
		return ce
	}
	return &code.CodeError{Message: err.Error(), Err: err}
}

// compileError converts a compilation failure.
func compileError(err error) error {
	ce := &code.CodeError{Message: err.Error(), Err: err}
	var syntax *goja.CompilerSyntaxError
	if errors.As(err, &syntax) {
		ce.Name = "SyntaxError"
		ce.Stack = "SyntaxError: " + err.Error()
	}
	return ce
}
