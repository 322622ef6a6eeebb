package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// EnvPrefix is prepended to every env tag.
const EnvPrefix = "CAMVIEW_"

var durationType = reflect.TypeOf(time.Duration(0))

// setting is one options field and the keys it can be read from.
type setting struct {
	value reflect.Value
	toml  string
	env   string
}

// LoadConfig fills opts, a pointer to a flat options struct, from the TOML
// file named by its Config field and then from CAMVIEW_ prefixed environment
// variables. Fields whose flag was set on cmd keep the command line value.
//
// A value that does not fit its field is skipped and reported; the rest are
// still applied.
func LoadConfig(opts any, cmd *cobra.Command) error {
	settings, path := collect(reflect.ValueOf(opts).Elem(), changedFlags(cmd))

	file, err := readFile(path)
	if err != nil {
		return err
	}

	var errs []error
	for _, s := range settings {
		if raw := lookup(file, s.toml); raw != nil {
			if err := assign(s.value, raw); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", s.toml, err))
			}
		}
		if s.env == "" {
			continue
		}
		if raw := os.Getenv(EnvPrefix + s.env); raw != "" {
			if err := assign(s.value, raw); err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, s.env, err))
			}
		}
	}
	return errors.Join(errs...)
}

func changedFlags(cmd *cobra.Command) map[string]bool {
	changed := make(map[string]bool)
	if cmd == nil {
		return changed
	}
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			changed[f.Name] = true
		}
	})
	return changed
}

// collect returns the settable fields of v and the config file path held in
// its Config field.
func collect(v reflect.Value, changed map[string]bool) ([]setting, string) {
	var settings []setting
	var path string

	t := v.Type()
	for i := range t.NumField() {
		field := t.Field(i)
		if field.Name == "Config" {
			path = v.Field(i).String()
			continue
		}
		if changed[flagName(field.Name)] || !v.Field(i).CanSet() {
			continue
		}
		settings = append(settings, setting{
			value: v.Field(i),
			toml:  field.Tag.Get("toml"),
			env:   field.Tag.Get("env"),
		})
	}
	return settings, path
}

// readFile parses the TOML file at path. A missing file yields no values.
func readFile(path string) (map[string]any, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var file map[string]any
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse TOML config: %w", err)
	}
	return file, nil
}

// flagName turns a field name into its CLI flag, "LoggingLevel" -> "logging-level".
func flagName(field string) string {
	var b strings.Builder
	for i, r := range field {
		if i > 0 && unicode.IsUpper(r) {
			b.WriteByte('-')
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// lookup resolves a dotted key such as "session.seek_timezone".
func lookup(data map[string]any, key string) any {
	if key == "" {
		return nil
	}
	parts := strings.Split(key, ".")
	for _, part := range parts[:len(parts)-1] {
		next, ok := data[part].(map[string]any)
		if !ok {
			return nil
		}
		data = next
	}
	return data[parts[len(parts)-1]]
}

// assign stores raw in field. raw is either a decoded TOML value or the text
// of an environment variable.
func assign(field reflect.Value, raw any) error {
	text, isText := raw.(string)

	switch {
	case field.Type() == durationType:
		switch v := raw.(type) {
		case string:
			d, err := time.ParseDuration(v)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		case int64:
			field.SetInt(v * int64(time.Second))
		default:
			return mismatch(field, raw)
		}

	case field.Kind() == reflect.String:
		if !isText {
			return mismatch(field, raw)
		}
		field.SetString(text)

	case field.Kind() == reflect.Bool:
		switch v := raw.(type) {
		case bool:
			field.SetBool(v)
		case string:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return err
			}
			field.SetBool(b)
		default:
			return mismatch(field, raw)
		}

	case field.CanInt():
		switch v := raw.(type) {
		case int64:
			field.SetInt(v)
		case string:
			n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(n)
		default:
			return mismatch(field, raw)
		}

	case field.Kind() == reflect.Slice && field.Type().Elem().Kind() == reflect.String:
		var list []string
		switch v := raw.(type) {
		case []any:
			for _, item := range v {
				s, ok := item.(string)
				if !ok {
					return mismatch(field, raw)
				}
				list = append(list, s)
			}
		case string:
			// environment lists are comma separated
			for _, item := range strings.Split(v, ",") {
				if item = strings.TrimSpace(item); item != "" {
					list = append(list, item)
				}
			}
		default:
			return mismatch(field, raw)
		}
		field.Set(reflect.ValueOf(list))

	default:
		return fmt.Errorf("unsupported option type %s", field.Type())
	}
	return nil
}

func mismatch(field reflect.Value, raw any) error {
	return fmt.Errorf("cannot use %T as %s", raw, field.Type())
}
