package querybuilder

import (
	"fmt"
	"reflect"
	"strings"
)

// InsertModel starts an insert whose columns and values come from the `db`
// tags of model. Fields tagged `db:"-"` or without a tag are skipped.
func InsertModel(table string, model any) (*InsertBuilder, error) {
	cols, vals, err := taggedFields(model, true)
	if err != nil {
		return nil, err
	}
	return InsertInto(table).Columns(cols...).Values(vals...), nil
}

// ColumnsOf lists the `db` tag names of a struct, in field order.
func ColumnsOf(model any) []string {
	cols, _, err := taggedFields(model, false)
	if err != nil {
		return nil
	}
	return cols
}

func taggedFields(model any, withValues bool) ([]string, []any, error) {
	value := reflect.ValueOf(model)
	for value.Kind() == reflect.Pointer {
		if value.IsNil() {
			return nil, nil, fmt.Errorf("model cannot be nil")
		}
		value = value.Elem()
	}
	if value.Kind() != reflect.Struct {
		return nil, nil, fmt.Errorf("model must be a struct, got %s", value.Kind())
	}

	typ := value.Type()
	cols := make([]string, 0, typ.NumField())
	var vals []any
	if withValues {
		vals = make([]any, 0, typ.NumField())
	}
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		if !field.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(field.Tag.Get("db"), ",")
		name = strings.TrimSpace(name)
		if name == "" || name == "-" {
			continue
		}
		cols = append(cols, name)
		if withValues {
			vals = append(vals, value.Field(i).Interface())
		}
	}

	if len(cols) == 0 {
		return nil, nil, fmt.Errorf("model %s has no db columns", typ.Name())
	}
	return cols, vals, nil
}
