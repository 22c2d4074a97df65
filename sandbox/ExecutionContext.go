package sandbox

import (
	"errors"
	"sort"
	"sync"

	"github.com/dop251/goja"
	jsoniter "github.com/json-iterator/go"

	"dval/failure"
)

// HelperLibraryVersion identifies the set of helper bindings installed into
// every evaluation.
const HelperLibraryVersion = "1.2.0"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Overrides are caller supplied input values, keyed by input name. Values are
// float64 when numeric and string otherwise.
type Overrides map[string]any

func (o Overrides) keys() []string {
	keys := make([]string, 0, len(o))
	for key := range o {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

type ContextOptions struct {
	Overrides Overrides

	// StopOnWatch is what _StopIfWatch returns to the snippet; nil means true
	StopOnWatch *bool
}

type binding struct {
	name string
	raw  jsoniter.RawMessage
}

type ExecutionContext struct {
	mutex       sync.Mutex
	bindings    []binding
	overrides   Overrides
	stopOnWatch bool
	claimed     bool

	// helper state; lives for one evaluation
	input            *goja.Object
	historicLastDate int
	value            float64
	currency         string
	reported         bool
	stopped          bool
	logs             []string
}

// NewExecutionContext binds values to params positionally. Every value is
// deep copied, so nothing the snippet does can reach the caller's data.
func NewExecutionContext(params []string, values []any, opts ContextOptions) (*ExecutionContext, error) {
	if len(params) != len(values) {
		return nil, failure.New(failure.ArityMismatch, "%d parameters but %d fetched values", len(params), len(values))
	}

	ec := &ExecutionContext{
		bindings:    make([]binding, 0, len(params)),
		overrides:   make(Overrides, len(opts.Overrides)),
		stopOnWatch: opts.StopOnWatch == nil || *opts.StopOnWatch,
	}

	seen := make(map[string]struct{}, len(params))
	for i, name := range params {
		if _, found := seen[name]; found {
			return nil, failure.New(failure.MalformedConstruct, "parameter `%s` declared twice", name)
		}
		seen[name] = struct{}{}

		raw, err := json.Marshal(values[i])
		if err != nil {
			return nil, failure.Wrap(failure.EvaluationError, err, "value for `%s` is not JSON", name)
		}
		ec.bindings = append(ec.bindings, binding{name: name, raw: raw})
	}

	for key, value := range opts.Overrides {
		ec.overrides[key] = value
	}

	return ec, nil
}

func (e *ExecutionContext) Parameters() []string {
	names := make([]string, 0, len(e.bindings))
	for _, b := range e.bindings {
		names = append(names, b.name)
	}
	return names
}

// Value decodes a fresh copy of the value bound to name
func (e *ExecutionContext) Value(name string) (any, error) {
	for _, b := range e.bindings {
		if b.name == name {
			var v any
			err := json.Unmarshal(b.raw, &v)
			return v, err
		}
	}
	return nil, failure.New(failure.NotFound, "no binding named `%s`", name)
}

// claim marks the context as used; a context serves exactly one evaluation
func (e *ExecutionContext) claim() error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.claimed {
		return errors.New("execution context has already been used for an evaluation")
	}
	e.claimed = true
	return nil
}

// Install binds every parameter as a native value and installs the helper
// library into vm.
func (e *ExecutionContext) Install(vm *goja.Runtime) error {
	if err := e.claim(); err != nil {
		return err
	}

	parse, ok := goja.AssertFunction(vm.Get("JSON").ToObject(vm).Get("parse"))
	if !ok {
		return errors.New("JSON.parse is not available")
	}

	for _, b := range e.bindings {
		value, err := parse(goja.Undefined(), vm.ToValue(string(b.raw)))
		if err != nil {
			return failure.Wrap(failure.EvaluationError, err, "unable to bind `%s`", b.name)
		}

		if err := vm.Set(b.name, value); err != nil {
			return failure.Wrap(failure.EvaluationError, err, "unable to bind `%s`", b.name)
		}
	}

	e.input = vm.NewObject()

	return installHelpers(vm, e)
}

func (e *ExecutionContext) record(value float64, currency string, stopped bool) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.value = value
	e.currency = currency
	e.reported = true
	e.stopped = e.stopped || stopped
}

func (e *ExecutionContext) appendLog(line string) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.logs = append(e.logs, line)
}

// fill copies what the helpers recorded into r
func (e *ExecutionContext) fill(r *Result) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	r.Value = e.value
	r.Currency = e.currency
	r.Reported = e.reported
	r.Stopped = e.stopped
	r.Logs = append([]string(nil), e.logs...)
}

type contextSnapshot struct {
	Parameters  []string              `json:"parameters"`
	Values      []jsoniter.RawMessage `json:"values"`
	Overrides   Overrides             `json:"overrides,omitempty"`
	StopOnWatch bool                  `json:"stop_on_watch"`
}

func (e *ExecutionContext) snapshot() contextSnapshot {
	s := contextSnapshot{
		Parameters:  e.Parameters(),
		Values:      make([]jsoniter.RawMessage, 0, len(e.bindings)),
		Overrides:   e.overrides,
		StopOnWatch: e.stopOnWatch,
	}
	for _, b := range e.bindings {
		s.Values = append(s.Values, b.raw)
	}
	return s
}

func restoreContext(s contextSnapshot) (*ExecutionContext, error) {
	if len(s.Parameters) != len(s.Values) {
		return nil, failure.New(failure.ArityMismatch, "%d parameters but %d values", len(s.Parameters), len(s.Values))
	}

	ec := &ExecutionContext{
		bindings:    make([]binding, 0, len(s.Parameters)),
		overrides:   s.Overrides,
		stopOnWatch: s.StopOnWatch,
	}
	if ec.overrides == nil {
		ec.overrides = make(Overrides)
	}
	for i, name := range s.Parameters {
		ec.bindings = append(ec.bindings, binding{name: name, raw: s.Values[i]})
	}
	return ec, nil
}
