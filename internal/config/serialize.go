package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Serialize flattens scan options into string pairs for storage.
//
// Global options keep their name; module options are stored as
// "module:option". Booleans become "1"/"0" and lists are comma-joined. With
// filterSystem, global keys starting with "__" and module keys starting
// with "_" are left out.
func Serialize(global map[string]any, modules map[string]map[string]any, filterSystem bool) map[string]string {
	out := make(map[string]string)

	for k, v := range global {
		if filterSystem && strings.HasPrefix(k, "__") {
			continue
		}
		if s, ok := flatten(v); ok {
			out[k] = s
		}
	}

	for mod, opts := range modules {
		for k, v := range opts {
			if filterSystem && strings.HasPrefix(k, "_") {
				continue
			}
			if s, ok := flatten(v); ok {
				out[mod+":"+k] = s
			}
		}
	}
	return out
}

func flatten(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case bool:
		if x {
			return "1", true
		}
		return "0", true
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case time.Duration:
		return x.String(), true
	case []string:
		return strings.Join(x, ","), true
	case []any:
		parts := make([]string, 0, len(x))
		for _, item := range x {
			parts = append(parts, fmt.Sprint(item))
		}
		return strings.Join(parts, ","), true
	}
	return "", false
}

// Unserialize restores flattened options, converting each value to the type
// of the matching key in the reference options. Keys absent from the
// reference are ignored; values that do not parse are an error.
func Unserialize(flat map[string]string, refGlobal map[string]any, refModules map[string]map[string]any) (map[string]any, map[string]map[string]any, error) {
	global := make(map[string]any, len(refGlobal))
	for k, ref := range refGlobal {
		global[k] = ref
		raw, ok := flat[k]
		if !ok {
			continue
		}
		v, err := restore(raw, ref)
		if err != nil {
			return nil, nil, fmt.Errorf("option %s: %w", k, err)
		}
		global[k] = v
	}

	modules := make(map[string]map[string]any, len(refModules))
	for mod, refs := range refModules {
		opts := make(map[string]any, len(refs))
		for k, ref := range refs {
			opts[k] = ref
			raw, ok := flat[mod+":"+k]
			if !ok {
				continue
			}
			v, err := restore(raw, ref)
			if err != nil {
				return nil, nil, fmt.Errorf("option %s:%s: %w", mod, k, err)
			}
			opts[k] = v
		}
		modules[mod] = opts
	}
	return global, modules, nil
}

func restore(raw string, ref any) (any, error) {
	switch ref.(type) {
	case bool:
		return raw == "1" || strings.EqualFold(raw, "true"), nil
	case int:
		return strconv.Atoi(raw)
	case int64:
		return strconv.ParseInt(raw, 10, 64)
	case float64:
		return strconv.ParseFloat(raw, 64)
	case time.Duration:
		return time.ParseDuration(raw)
	case []string, []any:
		if raw == "" {
			return []string{}, nil
		}
		return strings.Split(raw, ","), nil
	}
	return raw, nil
}
