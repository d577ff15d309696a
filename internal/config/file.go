package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// FileLookup decodes a TOML file into a LookupFunc keyed like the
// environment. Nested tables join with "_", so
//
//	[objectstore]
//	endpoint = "localhost:9000"
//
// answers ATHENAQ_OBJECTSTORE_ENDPOINT.
func FileLookup(path string) (LookupFunc, error) {
	var doc map[string]any
	if _, err := toml.DecodeFile(path, &doc); err != nil {
		return nil, fmt.Errorf("decode config file %s: %w", path, err)
	}
	values := map[string]string{}
	if err := flatten("ATHENAQ", doc, values); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}, nil
}

// Chain returns the first hit across lookups, in order.
func Chain(lookups ...LookupFunc) LookupFunc {
	return func(key string) (string, bool) {
		for _, lookup := range lookups {
			if lookup == nil {
				continue
			}
			if value, ok := lookup(key); ok {
				return value, true
			}
		}
		return "", false
	}
}

func flatten(prefix string, doc map[string]any, out map[string]string) error {
	keys := make([]string, 0, len(doc))
	for key := range doc {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		name := prefix + "_" + strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
		switch value := doc[key].(type) {
		case map[string]any:
			if err := flatten(name, value, out); err != nil {
				return err
			}
		case string:
			out[name] = value
		case bool, int64, float64:
			out[name] = fmt.Sprint(value)
		case time.Time:
			out[name] = value.Format(time.RFC3339)
		default:
			return fmt.Errorf("unsupported value for %s: %T", key, value)
		}
	}
	return nil
}
