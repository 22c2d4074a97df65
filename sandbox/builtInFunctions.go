package sandbox

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dop251/goja"
	"golang.org/x/text/currency"

	"dval/finance"
	"dval/logger"
)

type helperDef func(h *helpers, call goja.FunctionCall) (goja.Value, error)

type helpers struct {
	vm  *goja.Runtime
	ec  *ExecutionContext
	log *logger.Entry
}

var builtInFunctions = map[string]helperDef{
	"monitor": noopHelper(),

	"Description": func(h *helpers, call goja.FunctionCall) (goja.Value, error) {
		return h.vm.ToValue(""), nil
	},

	"print": func(h *helpers, call goja.FunctionCall) (goja.Value, error) {
		line := call.Argument(0).String()
		if label := call.Argument(1); !goja.IsUndefined(label) {
			line = fmt.Sprintf("%s: %s", label.String(), line)
		}
		if kind := call.Argument(2); !goja.IsUndefined(kind) && kind.String() != "" {
			line = fmt.Sprintf("%s %s", line, kind.String())
		}

		h.observe(line)
		return nil, nil
	},

	"Input": func(h *helpers, call goja.FunctionCall) (goja.Value, error) {
		defaults, err := h.object(call.Argument(0), "defaults")
		if err != nil {
			return nil, err
		}

		for _, key := range h.ec.overrides.keys() {
			if err := defaults.Set(key, h.ec.overrides[key]); err != nil {
				return nil, err
			}
		}

		for _, key := range defaults.Keys() {
			if !strings.HasPrefix(key, "_") {
				continue
			}

			// `-` placeholders and other non numbers are left as they are
			if value := defaults.Get(key); isNumber(value) {
				if err := defaults.Set(key, finance.Percent(value.ToFloat())); err != nil {
					return nil, err
				}
			}
		}

		h.ec.input = defaults
		return defaults, nil
	},

	"setInputDefault": func(h *helpers, call goja.FunctionCall) (goja.Value, error) {
		key := call.Argument(0).String()
		rounded := finance.CeilCents(call.Argument(1).ToFloat())

		if _, overridden := h.ec.overrides[key]; overridden {
			return nil, nil
		}

		if strings.HasPrefix(key, "_") {
			return nil, h.ec.input.Set(key, finance.Percent(rounded))
		}
		return nil, h.ec.input.Set(key, rounded)
	},

	"_StopIfWatch": func(h *helpers, call goja.FunctionCall) (goja.Value, error) {
		if err := h.report(call, true); err != nil {
			return nil, err
		}
		return h.vm.ToValue(h.ec.stopOnWatch), nil
	},

	"_SetEstimatedValue": func(h *helpers, call goja.FunctionCall) (goja.Value, error) {
		return nil, h.report(call, false)
	},

	"fillHistoricUsingReport": func(h *helpers, call goja.FunctionCall) (goja.Value, error) {
		entries, err := h.elements(call.Argument(0), "report")
		if err != nil {
			return nil, err
		}
		if len(entries) == 0 {
			return nil, finance.ErrEmptySeries
		}

		first, err := h.object(entries[0], "report entry")
		if err != nil {
			return nil, err
		}

		h.ec.historicLastDate, _ = parseLeadingInt(first.Get("date"))
		return nil, nil
	},

	"fillHistoricUsingList": func(h *helpers, call goja.FunctionCall) (goja.Value, error) {
		h.ec.historicLastDate, _ = parseLeadingInt(call.Argument(2))
		return nil, nil
	},

	"dateToIndex": func(h *helpers, call goja.FunctionCall) (goja.Value, error) {
		return h.vm.ToValue(h.dateToIndex(call.Argument(0))), nil
	},

	"forecast": func(h *helpers, call goja.FunctionCall) (goja.Value, error) {
		list, err := h.object(call.Argument(0), "list")
		if err != nil {
			return nil, err
		}
		key := call.Argument(1).String()

		// overrides named `!<key>_<year>` replace single forecast years
		for _, name := range h.ec.overrides.keys() {
			if !strings.HasPrefix(name, "!") {
				continue
			}

			separator := strings.Index(name, "_")
			if separator < 0 || name[1:separator] != key {
				continue
			}

			index := h.dateToIndex(h.vm.ToValue(name[separator+1:]))
			if index < 0 {
				continue
			}

			if err := list.Set(strconv.Itoa(index), h.vm.ToValue(h.ec.overrides[name]).ToFloat()); err != nil {
				return nil, err
			}
		}

		return list, nil
	},

	"toK": func(h *helpers, call goja.FunctionCall) (goja.Value, error) {
		return h.vm.ToValue(finance.ToK(call.Argument(0).ToFloat())), nil
	},

	"toM": func(h *helpers, call goja.FunctionCall) (goja.Value, error) {
		return h.vm.ToValue(finance.ToM(call.Argument(0).ToFloat())), nil
	},

	"linearRegressionGrowthRate": func(h *helpers, call goja.FunctionCall) (goja.Value, error) {
		values, err := h.series(call.Argument(1), call.Argument(0).String())
		if err != nil {
			return nil, err
		}

		fitted, err := finance.LinearRegression(reversed(values), int(call.Argument(2).ToInteger()), call.Argument(3).ToFloat())
		if err != nil {
			return nil, err
		}
		return h.array(fitted), nil
	},

	"getGrowthList": func(h *helpers, call goja.FunctionCall) (goja.Value, error) {
		report, key := call.Argument(0), call.Argument(1).String()

		var last goja.Value
		if obj, ok := report.(*goja.Object); ok && obj.ClassName() == "Array" {
			entries, err := h.elements(report, "report")
			if err != nil {
				return nil, err
			}
			if len(entries) == 0 {
				return nil, finance.ErrEmptySeries
			}

			first, err := h.object(entries[0], "report entry")
			if err != nil {
				return nil, err
			}
			last = first.Get(key)
		} else {
			obj, err := h.object(report, "report")
			if err != nil {
				return nil, err
			}
			last = obj.Get(key)
		}

		if !isNumber(last) {
			return nil, fmt.Errorf("report has no numeric `%s`", key)
		}

		list, err := finance.Growth(last.ToFloat(), int(call.Argument(2).ToInteger()), call.Argument(3).ToFloat())
		if err != nil {
			return nil, err
		}
		return h.array(list), nil
	},

	"applyMarginToList": func(h *helpers, call goja.FunctionCall) (goja.Value, error) {
		list, err := h.object(call.Argument(0), "list")
		if err != nil {
			return nil, err
		}
		values, err := h.numbers(list)
		if err != nil {
			return nil, err
		}

		for i, value := range finance.ApplyMargin(values, call.Argument(1).ToFloat()) {
			if err := list.Set(strconv.Itoa(i), value); err != nil {
				return nil, err
			}
		}
		return list, nil
	},

	"averageGrowthRate": func(h *helpers, call goja.FunctionCall) (goja.Value, error) {
		values, err := h.series(call.Argument(1), call.Argument(0).String())
		if err != nil {
			return nil, err
		}

		rate, err := finance.AverageGrowthRate(reversed(values))
		if err != nil {
			return nil, err
		}
		return h.vm.ToValue(rate), nil
	},

	"averageMargin": func(h *helpers, call goja.FunctionCall) (goja.Value, error) {
		report := call.Argument(2)

		numerators, err := h.series(report, call.Argument(0).String())
		if err != nil {
			return nil, err
		}
		denominators, err := h.series(report, call.Argument(1).String())
		if err != nil {
			return nil, err
		}

		margin, err := finance.AverageMargin(numerators, denominators)
		if err != nil {
			return nil, err
		}
		return h.vm.ToValue(margin), nil
	},

	"addKey":         addKeyFunction,
	"replaceWithLTM": replaceWithLTMFunction,
}

// jQuery utilities used by valuation snippets, installed as `$.each` and `$.isNumeric`
var dollarFunctions = map[string]helperDef{
	"each": func(h *helpers, call goja.FunctionCall) (goja.Value, error) {
		collection, err := h.object(call.Argument(0), "collection")
		if err != nil {
			return nil, err
		}
		callback, ok := goja.AssertFunction(call.Argument(1))
		if !ok {
			return nil, errors.New("callback is not a function")
		}

		keys := collection.Keys()
		if collection.ClassName() == "Array" {
			keys = keys[:0]
			for i := int64(0); i < collection.Get("length").ToInteger(); i++ {
				keys = append(keys, strconv.FormatInt(i, 10))
			}
		}

		for _, key := range keys {
			value := collection.Get(key)
			var index goja.Value = h.vm.ToValue(key)
			if collection.ClassName() == "Array" {
				n, _ := strconv.Atoi(key)
				index = h.vm.ToValue(n)
			}

			rtn, err := callback(value, index, value)
			if err != nil {
				return nil, err
			}
			if rtn != nil && rtn.StrictEquals(h.vm.ToValue(false)) {
				break
			}
		}

		return collection, nil
	},

	"isNumeric": func(h *helpers, call goja.FunctionCall) (goja.Value, error) {
		value := call.Argument(0)
		if isNumber(value) {
			f := value.ToFloat()
			return h.vm.ToValue(!math.IsNaN(f) && !math.IsInf(f, 0)), nil
		}

		if s, ok := value.Export().(string); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			return h.vm.ToValue(err == nil && !math.IsInf(f, 0)), nil
		}

		return h.vm.ToValue(false), nil
	},
}

var consoleFunctions = map[string]helperDef{
	"log": func(h *helpers, call goja.FunctionCall) (goja.Value, error) {
		parts := make([]string, 0, len(call.Arguments))
		for _, arg := range call.Arguments {
			parts = append(parts, arg.String())
		}

		h.observe(strings.Join(parts, " "))
		return nil, nil
	},
}

func installHelpers(vm *goja.Runtime, ec *ExecutionContext) error {
	h := &helpers{
		vm:  vm,
		ec:  ec,
		log: logger.GetLogger().WithComponent("sandbox"),
	}

	for name, def := range builtInFunctions {
		if err := vm.Set(name, h.wrap(name, def)); err != nil {
			return fmt.Errorf("unable to install %s: %w", name, err)
		}
	}

	for object, functions := range map[string]map[string]helperDef{"$": dollarFunctions, "console": consoleFunctions} {
		obj := vm.NewObject()
		for name, def := range functions {
			if err := obj.Set(name, h.wrap(object+"."+name, def)); err != nil {
				return fmt.Errorf("unable to install %s.%s: %w", object, name, err)
			}
		}

		if err := vm.Set(object, obj); err != nil {
			return fmt.Errorf("unable to install %s: %w", object, err)
		}
	}

	return nil
}

// wrap turns helper errors into JS exceptions the snippet may catch
func (h *helpers) wrap(name string, def helperDef) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		value, err := def(h, call)
		if err != nil {
			h.log.WithError(err).WithField("helper", name).Warn("helper failed")
			panic(h.vm.NewGoError(fmt.Errorf("%s: %w", name, err)))
		}

		if value == nil {
			return goja.Undefined()
		}
		return value
	}
}

func noopHelper() helperDef {
	return func(h *helpers, call goja.FunctionCall) (goja.Value, error) {
		return nil, nil
	}
}

func (h *helpers) observe(line string) {
	h.ec.appendLog(line)
	h.log.WithField("line", line).Debug("snippet output")
}

func (h *helpers) report(call goja.FunctionCall, stop bool) error {
	value := call.Argument(0).ToFloat()

	code := ""
	if ccy := call.Argument(1); !goja.IsUndefined(ccy) && !goja.IsNull(ccy) && ccy.String() != "" {
		code = ccy.String()

		// Non ISO conventions such as GBp are kept as given
		if unit, err := currency.ParseISO(code); err == nil {
			code = unit.String()
		} else {
			h.log.WithField("currency", code).Warn("currency is not an ISO 4217 code, keeping it as given")
		}
	}

	h.ec.record(value, code, stop)
	h.log.WithFields(logger.Fields{"value": value, "currency": code, "stopped": stop}).Debug("estimated value recorded")
	return nil
}

func (h *helpers) dateToIndex(date goja.Value) int {
	if h.ec.historicLastDate == 0 {
		return -1
	}

	year, ok := parseLeadingInt(date)
	if !ok {
		return -1
	}
	return year - h.ec.historicLastDate - 1
}

func (h *helpers) object(value goja.Value, what string) (*goja.Object, error) {
	obj, ok := value.(*goja.Object)
	if !ok || obj == nil {
		return nil, fmt.Errorf("%s must be an object, got %s", what, describe(value))
	}
	return obj, nil
}

func (h *helpers) elements(value goja.Value, what string) ([]goja.Value, error) {
	obj, err := h.object(value, what)
	if err != nil {
		return nil, err
	}
	if obj.ClassName() != "Array" {
		return nil, fmt.Errorf("%s must be an array, got %s", what, obj.ClassName())
	}

	length := obj.Get("length").ToInteger()
	out := make([]goja.Value, 0, length)
	for i := int64(0); i < length; i++ {
		out = append(out, obj.Get(strconv.FormatInt(i, 10)))
	}
	return out, nil
}

// series reads key out of every entry of a report, newest first as fetched
func (h *helpers) series(report goja.Value, key string) ([]float64, error) {
	entries, err := h.elements(report, "report")
	if err != nil {
		return nil, err
	}

	values := make([]float64, 0, len(entries))
	for i, entry := range entries {
		obj, err := h.object(entry, "report entry")
		if err != nil {
			return nil, err
		}

		value := obj.Get(key)
		if !isNumber(value) {
			return nil, fmt.Errorf("%w: entry %d has no numeric `%s`", finance.ErrMisalignedSeries, i, key)
		}
		values = append(values, value.ToFloat())
	}
	return values, nil
}

func (h *helpers) numbers(list *goja.Object) ([]float64, error) {
	entries, err := h.elements(list, "list")
	if err != nil {
		return nil, err
	}

	values := make([]float64, 0, len(entries))
	for i, entry := range entries {
		if !isNumber(entry) {
			return nil, fmt.Errorf("list entry %d is %s, not a number", i, describe(entry))
		}
		values = append(values, entry.ToFloat())
	}
	return values, nil
}

// array builds a native JS array so snippets can push, map and forEach
func (h *helpers) array(values []float64) *goja.Object {
	items := make([]interface{}, 0, len(values))
	for _, v := range values {
		items = append(items, v)
	}
	return h.vm.NewArray(items...)
}

func reversed(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[len(values)-1-i] = v
	}
	return out
}

func isNumber(value goja.Value) bool {
	if value == nil {
		return false
	}

	switch value.Export().(type) {
	case int64, float64:
		return true
	default:
		return false
	}
}

func describe(value goja.Value) string {
	if value == nil || goja.IsUndefined(value) {
		return "undefined"
	}
	if goja.IsNull(value) {
		return "null"
	}
	return fmt.Sprintf("%T", value.Export())
}

// parseLeadingInt mirrors parseInt: `2021-09-25` -> 2021
func parseLeadingInt(value goja.Value) (int, bool) {
	if value == nil || goja.IsUndefined(value) || goja.IsNull(value) {
		return 0, false
	}

	s := strings.TrimSpace(value.String())
	end := 0
	for end < len(s) && (s[end] >= '0' && s[end] <= '9' || end == 0 && (s[end] == '-' || s[end] == '+')) {
		end++
	}

	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}
