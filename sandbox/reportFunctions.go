package sandbox

import (
	"github.com/dop251/goja"
)

// addKey copies key from reportFrom into the entries of reportTo with the
// same date, keeping values already present. Walking stops at the end of
// reportFrom, and reportTo is then cut after the last matched entry.
func addKeyFunction(h *helpers, call goja.FunctionCall) (goja.Value, error) {
	key := call.Argument(0).String()

	from, err := h.elements(call.Argument(1), "report_from")
	if err != nil {
		return nil, err
	}
	to, err := h.elements(call.Argument(2), "report_to")
	if err != nil {
		return nil, err
	}

	for i := 0; i < len(from); i++ {
		source, err := h.object(from[i], "report_from entry")
		if err != nil {
			return nil, err
		}

		for j := 0; j < len(to); j++ {
			target, err := h.object(to[j], "report_to entry")
			if err != nil {
				return nil, err
			}

			sourceDate, targetDate := source.Get("date"), target.Get("date")
			if sourceDate == nil || targetDate == nil || !sourceDate.Equals(targetDate) {
				continue
			}

			if target.Get(key) == nil {
				if err := target.Set(key, source.Get(key)); err != nil {
					return nil, err
				}
			}

			if i < len(from)-1 {
				i++
				if source, err = h.object(from[i], "report_from entry"); err != nil {
					return nil, err
				}
			} else {
				overlap := make([]interface{}, 0, j+1)
				for _, entry := range to[:j+1] {
					overlap = append(overlap, entry)
				}
				return h.vm.NewArray(overlap...), nil
			}
		}
	}

	return call.Argument(2), nil
}

// replaceWithLTM overwrites the latest report entry with every numeric
// field of the trailing twelve month report.
func replaceWithLTMFunction(h *helpers, call goja.FunctionCall) (goja.Value, error) {
	entries, err := h.elements(call.Argument(0), "report")
	if err != nil {
		return nil, err
	}
	ltm, err := h.object(call.Argument(1), "ltm")
	if err != nil {
		return nil, err
	}

	if len(entries) == 0 {
		return call.Argument(0), nil
	}

	latest, err := h.object(entries[0], "report entry")
	if err != nil {
		return nil, err
	}

	for _, key := range ltm.Keys() {
		if value := ltm.Get(key); isNumber(value) {
			if err := latest.Set(key, value); err != nil {
				return nil, err
			}
		}
	}

	return call.Argument(0), nil
}
