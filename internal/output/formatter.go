// Package output renders command results as a table, JSON or YAML.
package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"
)

type Formatter interface {
	Format(data any) (string, error)
}

var formats = []string{"table", "json", "yaml"}

// NewFormatter returns the formatter for format. Empty selects table.
func NewFormatter(format string) (Formatter, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "table":
		return TableFormatter{}, nil
	case "json":
		return JSONFormatter{}, nil
	case "yaml", "yml":
		return YAMLFormatter{}, nil
	default:
		return nil, fmt.Errorf("output: unknown format %q (want one of %s)", format, strings.Join(formats, ", "))
	}
}

// TableFormatter prints a struct as key/value lines and a slice of structs
// as rows. Column names come from the json tag when present.
type TableFormatter struct{}

func (TableFormatter) Format(data any) (string, error) {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)

	v := reflect.ValueOf(data)
	for v.Kind() == reflect.Pointer && !v.IsNil() {
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		if v.Len() == 0 {
			return "no results\n", nil
		}
		first := indirect(v.Index(0))
		if first.Kind() != reflect.Struct {
			for i := 0; i < v.Len(); i++ {
				fmt.Fprintln(w, cell(v.Index(i)))
			}
			break
		}
		fields := columns(first.Type())
		headers := make([]string, len(fields))
		for i, f := range fields {
			headers[i] = strings.ToUpper(f.name)
		}
		fmt.Fprintln(w, strings.Join(headers, "\t"))
		for i := 0; i < v.Len(); i++ {
			row := indirect(v.Index(i))
			vals := make([]string, len(fields))
			for j, f := range fields {
				vals[j] = cell(row.Field(f.index))
			}
			fmt.Fprintln(w, strings.Join(vals, "\t"))
		}
	case reflect.Struct:
		for _, f := range columns(v.Type()) {
			fmt.Fprintf(w, "%s:\t%s\n", f.name, cell(v.Field(f.index)))
		}
	case reflect.Map:
		keys := v.MapKeys()
		names := make([]string, 0, len(keys))
		byName := make(map[string]reflect.Value, len(keys))
		for _, k := range keys {
			name := fmt.Sprint(k.Interface())
			names = append(names, name)
			byName[name] = v.MapIndex(k)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(w, "%s:\t%s\n", name, cell(byName[name]))
		}
	default:
		fmt.Fprintln(w, data)
	}

	if err := w.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

type column struct {
	name  string
	index int
}

func columns(t reflect.Type) []column {
	out := make([]column, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := f.Name
		if tag := f.Tag.Get("json"); tag != "" {
			tagName, _, _ := strings.Cut(tag, ",")
			if tagName == "-" {
				continue
			}
			if tagName != "" {
				name = tagName
			}
		}
		out = append(out, column{name: name, index: i})
	}
	return out
}

func indirect(v reflect.Value) reflect.Value {
	for (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) && !v.IsNil() {
		v = v.Elem()
	}
	return v
}

func cell(v reflect.Value) string {
	if !v.IsValid() {
		return "-"
	}
	if v.Kind() == reflect.Interface || v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return "-"
		}
	}
	switch x := v.Interface().(type) {
	case time.Time:
		if x.IsZero() {
			return "-"
		}
		return x.Format("15:04:05.000")
	case fmt.Stringer:
		s := x.String()
		if s == "" {
			return "-"
		}
		return s
	case []byte:
		if len(x) == 0 {
			return "-"
		}
		return fmt.Sprintf("% X", x)
	}
	s := fmt.Sprint(v.Interface())
	if s == "" {
		return "-"
	}
	return s
}

type JSONFormatter struct{}

func (JSONFormatter) Format(data any) (string, error) {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", fmt.Errorf("output: json: %w", err)
	}
	return string(b) + "\n", nil
}

type YAMLFormatter struct{}

func (YAMLFormatter) Format(data any) (string, error) {
	b, err := yaml.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("output: yaml: %w", err)
	}
	return string(b), nil
}
