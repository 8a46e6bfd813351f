package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

var durationType = reflect.TypeOf(time.Duration(0))

// bindEnv 按 env tag 覆盖 cfg，键为 PREFIX_SECTION_FIELD
//
// 取值格式：
//   - 标量与 time.Duration 直接解析
//   - 切片以逗号分隔，如 BSTFLOW_ENGINE_AGGREGATION_TIMEOUT_MS=1000,2000
//   - 映射以逗号分隔 key=value，如 BSTFLOW_ENGINE_BUDGET_WEIGHTS=2_0=3,2_1=1
//
// 所有解析失败合并返回，便于一次修正
func bindEnv(cfg *Config, prefix string) error {
	var errs []error
	walkEnv(reflect.ValueOf(cfg).Elem(), prefix, func(key string, field reflect.Value) {
		raw, ok := os.LookupEnv(key)
		if !ok || raw == "" {
			return
		}
		if err := parseInto(field, raw); err != nil {
			errs = append(errs, fmt.Errorf("%s=%q: %w", key, raw, err))
		}
	})
	return errors.Join(errs...)
}

func walkEnv(v reflect.Value, prefix string, visit func(key string, field reflect.Value)) {
	t := v.Type()
	for i := range v.NumField() {
		tag := t.Field(i).Tag.Get("env")
		if tag == "" || tag == "-" {
			continue
		}
		field := v.Field(i)
		key := prefix + "_" + tag
		if field.Kind() == reflect.Struct {
			walkEnv(field, key, visit)
			continue
		}
		if field.CanSet() {
			visit(key, field)
		}
	}
}

func parseInto(field reflect.Value, raw string) error {
	switch field.Kind() {
	case reflect.Slice:
		parts := splitList(raw)
		out := reflect.MakeSlice(field.Type(), len(parts), len(parts))
		for i, p := range parts {
			if err := parseScalar(out.Index(i), p); err != nil {
				return err
			}
		}
		field.Set(out)
	case reflect.Map:
		out := reflect.MakeMap(field.Type())
		for _, p := range splitList(raw) {
			k, val, ok := strings.Cut(p, "=")
			if !ok {
				return fmt.Errorf("map entry %q is not key=value", p)
			}
			key := reflect.New(field.Type().Key()).Elem()
			elem := reflect.New(field.Type().Elem()).Elem()
			if err := parseScalar(key, strings.TrimSpace(k)); err != nil {
				return err
			}
			if err := parseScalar(elem, strings.TrimSpace(val)); err != nil {
				return err
			}
			out.SetMapIndex(key, elem)
		}
		field.Set(out)
	default:
		return parseScalar(field, raw)
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseScalar(field reflect.Value, raw string) error {
	if field.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(raw, 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(raw, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetFloat(f)
	default:
		return fmt.Errorf("unsupported kind %s", field.Kind())
	}
	return nil
}
