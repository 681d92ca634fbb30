package redrconfig

import (
	"os"
	"reflect"
	"strings"

	"gopkg.in/yaml.v2"
)

// overwriteFromEnviron walks v's struct tree and, for every field whose
// PREFIX_FIELD_NAME (upper-cased, recursively) names a set environment
// variable, replaces the field's value by YAML-unmarshaling the variable.
func overwriteFromEnviron(v interface{}, prefix string) error {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		k, val, ok := strings.Cut(kv, "=")
		if ok {
			env[k] = val
		}
	}
	return overwriteFields(env, reflect.ValueOf(v), prefix)
}

func overwriteFields(env map[string]string, v reflect.Value, prefix string) error {
	for v.Kind() == reflect.Ptr {
		v = reflect.Indirect(v)
	}
	if v.Kind() != reflect.Struct {
		return nil
	}

	for i := 0; i < v.NumField(); i++ {
		sf := v.Type().Field(i)
		fieldPrefix := strings.ToUpper(prefix + "_" + sf.Name)

		if raw, ok := env[fieldPrefix]; ok {
			fieldVal := reflect.New(sf.Type)
			if err := yaml.Unmarshal([]byte(raw), fieldVal.Interface()); err != nil {
				return err
			}
			v.Field(i).Set(reflect.Indirect(fieldVal))
		}

		if err := overwriteFields(env, v.Field(i), fieldPrefix); err != nil {
			return err
		}
	}
	return nil
}
