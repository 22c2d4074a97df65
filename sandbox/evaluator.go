package sandbox

import (
	"context"
	"errors"
	"time"

	"github.com/dop251/goja"
	"github.com/google/uuid"

	"dval/failure"
	"dval/logger"
	"dval/snippet"
)

const (
	DefaultTimeout          = 5 * time.Second
	DefaultGrace            = time.Second
	DefaultMaxCallStackSize = 1024
)

type Isolation string

const (
	// IsolationRuntime runs the snippet on a goroutine of this process
	IsolationRuntime Isolation = "runtime"

	// IsolationProcess runs the snippet in a `dval worker` child process
	IsolationProcess Isolation = "process"
)

type Options struct {
	Timeout          time.Duration
	Grace            time.Duration
	MaxCallStackSize int
	Isolation        Isolation

	// WorkerCommand is the argv of the worker process; defaults to this
	// executable with the `worker` argument
	WorkerCommand []string
	WorkerEnv     []string

	// File names the program in error positions
	File string
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Grace <= 0 {
		o.Grace = DefaultGrace
	}
	if o.MaxCallStackSize <= 0 {
		o.MaxCallStackSize = DefaultMaxCallStackSize
	}
	if o.Isolation == "" {
		o.Isolation = IsolationRuntime
	}
	if o.File == "" {
		o.File = "snippet.js"
	}
	return o
}

type Result struct {
	ID       string        `json:"id"`
	Value    float64       `json:"value"`
	Currency string        `json:"currency,omitempty"`
	Reported bool          `json:"reported"`
	Stopped  bool          `json:"stopped"`
	Logs     []string      `json:"logs,omitempty"`
	Duration time.Duration `json:"duration"`
}

type Evaluator struct {
	opts Options
	log  *logger.Entry
}

func NewEvaluator(opts Options) *Evaluator {
	return &Evaluator{
		opts: opts.withDefaults(),
		log:  logger.GetLogger().WithComponent("sandbox"),
	}
}

// Evaluate runs fn with ec bound and calls fn.Name with no arguments. The
// evaluation never outlives the timeout plus the grace period.
func (e *Evaluator) Evaluate(ctx context.Context, fn snippet.Function, ec *ExecutionContext) (Result, error) {
	if e.opts.Isolation == IsolationProcess {
		return e.evaluateInProcess(ctx, fn, ec)
	}
	return e.evaluateInRuntime(ctx, fn, ec)
}

func (e *Evaluator) evaluateInRuntime(ctx context.Context, fn snippet.Function, ec *ExecutionContext) (Result, error) {
	start := time.Now()
	result := Result{ID: uuid.New().String()}
	log := e.log.WithField("evaluation", result.ID)

	program, err := compile(e.opts.File, fn)
	if err != nil {
		return result, err
	}

	vm := newRuntime(e.opts.MaxCallStackSize)
	if err := ec.Install(vm); err != nil {
		return result, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- failure.New(failure.EvaluationError, "panic during evaluation: %v", r)
			}
		}()

		done <- run(vm, program, fn.Name)
	}()

	select {
	case err := <-done:
		result.Duration = time.Since(start)
		if err != nil {
			log.WithError(err).Debug("evaluation failed")
			return result, err
		}

		ec.fill(&result)
		logger.LogPerformanceEntry(log, "evaluate", result.Duration, nil)
		return result, nil

	case <-ctx.Done():
		vm.Interrupt("execution timeout")

		select {
		case <-done:
		case <-time.After(e.opts.Grace):
			log.Warn("interrupted evaluation did not stop within the grace period")
		}

		result.Duration = time.Since(start)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return result, failure.New(failure.Timeout, "evaluation exceeded %s", e.opts.Timeout)
		}
		return result, failure.Wrap(failure.EvaluationError, ctx.Err(), "evaluation cancelled")
	}
}

func compile(file string, fn snippet.Function) (*goja.Program, error) {
	parsed, err := snippet.Parse(file, fn.Source)
	if err != nil {
		var f *failure.Error
		if errors.As(err, &f) {
			return nil, failure.New(failure.EvaluationError, "SyntaxError: %s", f.Message).At(f.Line, f.Column)
		}
		return nil, failure.Wrap(failure.EvaluationError, err, "SyntaxError")
	}

	program, err := goja.CompileAST(parsed, false)
	if err != nil {
		return nil, failure.Wrap(failure.EvaluationError, err, "unable to compile %s", file)
	}
	return program, nil
}

func newRuntime(maxCallStackSize int) *goja.Runtime {
	vm := goja.New()
	vm.SetMaxCallStackSize(maxCallStackSize)

	// No dynamic code: eval and the Function constructor are both disabled
	vm.Set("eval", goja.Undefined())
	_, _ = vm.RunString(`(function() {
		var F = Function;
		var disabled = function() { throw new TypeError('Function constructor is disabled'); };
		disabled.prototype = F.prototype;
		try {
			Object.defineProperty(F.prototype, 'constructor', {
				value: disabled,
				writable: false,
				configurable: false
			});
		} catch(e) {}
		Function = disabled;
	})();`)

	return vm
}

func run(vm *goja.Runtime, program *goja.Program, name string) error {
	if _, err := vm.RunProgram(program); err != nil {
		return classify(err)
	}

	entry, ok := goja.AssertFunction(vm.Get(name))
	if !ok {
		return failure.New(failure.EvaluationError, "ReferenceError: %s is not defined", name)
	}

	if _, err := entry(goja.Undefined()); err != nil {
		return classify(err)
	}
	return nil
}

func classify(err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return failure.Wrap(failure.Timeout, err, "evaluation interrupted")
	}

	var exception *goja.Exception
	if errors.As(err, &exception) {
		return failure.New(failure.EvaluationError, "%s", exception.Value().String())
	}

	return failure.Wrap(failure.EvaluationError, err, "evaluation failed")
}
