// Key/value reference replacement for source definitions.
//
// The {key-name} syntax lets a source definition reference secrets stored in
// the key/value store instead of carrying them inline:
//
//	auth:
//	  app_key: "{adzuna-app-key}"
//
// At load time these references are replaced with the stored values.
// Replacement is case-sensitive. Missing keys are logged as warnings but not
// treated as errors; the unresolved reference is left in place.

package common

import (
	"fmt"
	"reflect"
	"regexp"

	"github.com/ternarybob/arbor"
)

// keyRefPattern matches {key-name} references in strings.
// Allows alphanumeric characters, hyphens, and underscores.
var keyRefPattern = regexp.MustCompile(`\{([a-zA-Z0-9_-]+)\}`)

// ReplaceKeyReferences replaces all {key-name} references in the input string
// with values from the provided KV map. Unknown keys are left unchanged.
// Resolved values are never logged; they are usually credentials.
func ReplaceKeyReferences(input string, kvMap map[string]string, logger arbor.ILogger) string {
	if input == "" {
		return input
	}

	logUnresolvedKeys(input, kvMap, logger)

	return keyRefPattern.ReplaceAllStringFunc(input, func(match string) string {
		keyName := match[1 : len(match)-1]

		if value, exists := kvMap[keyName]; exists {
			return value
		}

		return match
	})
}

// logUnresolvedKeys finds all {key-name} references and logs warnings for missing keys
func logUnresolvedKeys(input string, kvMap map[string]string, logger arbor.ILogger) {
	matches := keyRefPattern.FindAllStringSubmatch(input, -1)
	for _, match := range matches {
		if len(match) > 1 {
			keyName := match[1]
			if _, exists := kvMap[keyName]; !exists {
				logger.Warn().
					Str("reference", match[0]).
					Str("key", keyName).
					Msg("Unresolved key reference - key not found in KV store")
			}
		}
	}
}

// ReplaceInStruct uses reflection to recursively replace {key-name} references
// in a struct's string fields. Handles nested structs, struct pointers,
// map[string]string fields, and string slices, which covers the whole source
// definition shape. The struct must be passed as a pointer.
func ReplaceInStruct(v interface{}, kvMap map[string]string, logger arbor.ILogger) error {
	val := reflect.ValueOf(v)

	if val.Kind() != reflect.Ptr {
		return fmt.Errorf("ReplaceInStruct requires a pointer, got %T", v)
	}

	val = val.Elem()

	if val.Kind() != reflect.Struct {
		return fmt.Errorf("ReplaceInStruct requires a struct pointer, got pointer to %v", val.Kind())
	}

	return replaceInStructValue(val, kvMap, logger)
}

// replaceInStructValue is the recursive implementation for struct traversal
func replaceInStructValue(val reflect.Value, kvMap map[string]string, logger arbor.ILogger) error {
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		// Skip unexported fields
		if !field.CanSet() {
			continue
		}

		switch field.Kind() {
		case reflect.String:
			oldValue := field.String()
			newValue := ReplaceKeyReferences(oldValue, kvMap, logger)
			if oldValue != newValue {
				field.SetString(newValue)
				logger.Debug().
					Str("field", fieldType.Name).
					Msg("Replaced key reference in struct field")
			}

		case reflect.Struct:
			if err := replaceInStructValue(field, kvMap, logger); err != nil {
				return fmt.Errorf("failed to replace in nested struct field '%s': %w", fieldType.Name, err)
			}

		case reflect.Ptr:
			if !field.IsNil() {
				elem := field.Elem()
				if elem.Kind() == reflect.Struct {
					if err := replaceInStructValue(elem, kvMap, logger); err != nil {
						return fmt.Errorf("failed to replace in pointer field '%s': %w", fieldType.Name, err)
					}
				}
			}

		case reflect.Map:
			if field.IsNil() {
				continue
			}
			if field.Type().Key().Kind() == reflect.String && field.Type().Elem().Kind() == reflect.String {
				mapVal := field.Interface().(map[string]string)
				for key, value := range mapVal {
					oldValue := value
					newValue := ReplaceKeyReferences(value, kvMap, logger)
					if oldValue != newValue {
						mapVal[key] = newValue
						logger.Debug().
							Str("field", fieldType.Name).
							Str("key", key).
							Msg("Replaced key reference in map field")
					}
				}
			}

		case reflect.Slice:
			if field.Type().Elem().Kind() == reflect.String {
				for j := 0; j < field.Len(); j++ {
					elem := field.Index(j)
					oldValue := elem.String()
					newValue := ReplaceKeyReferences(oldValue, kvMap, logger)
					if oldValue != newValue {
						elem.SetString(newValue)
						logger.Debug().
							Str("field", fieldType.Name).
							Int("index", j).
							Msg("Replaced key reference in slice field")
					}
				}
			}
		}
	}

	return nil
}
