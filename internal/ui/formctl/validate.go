package formctl

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonName)
	return v
}

func jsonName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	if name == "" {
		return f.Name
	}
	return name
}

// fieldNames lists the json names of the exported fields of T.
func fieldNames[T any]() map[string]bool {
	names := map[string]bool{}
	t := reflect.TypeOf((*T)(nil)).Elem()
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return names
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		if name := jsonName(f); name != "" {
			names[name] = true
		}
	}
	return names
}

// requiredErrors runs the struct's validate tags and returns one message
// per failing field, keyed by json name.
func requiredErrors(v any, labels map[string]string) (map[string]string, error) {
	err := validate.Struct(v)
	if err == nil {
		return map[string]string{}, nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil, err
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		label := Label(field, labels)
		switch fe.Tag() {
		case "required":
			out[field] = label + " is required"
		default:
			out[field] = label + " is invalid"
		}
	}
	return out, nil
}

// Label turns a json field name into a form label: "primary_phone"
// becomes "Primary phone", "national_id" becomes "National ID".
func Label(field string, overrides map[string]string) string {
	if l, ok := overrides[field]; ok {
		return l
	}
	words := strings.Split(field, "_")
	for i, w := range words {
		switch {
		case w == "id":
			words[i] = "ID"
		case i == 0 && w != "":
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// toDraft flattens an entity into form values keyed by json name.
func toDraft(v any) (map[string]any, error) {
	draft := map[string]any{}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "json",
		Result:  &draft,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(v); err != nil {
		return nil, err
	}
	return draft, nil
}

// fromDraft decodes form values into out. Strings are trimmed and
// converted to the field's type, so "12.50" fills a decimal field. A blank
// value clears the field, leaving optional fields nil. Pointer fields are
// always freshly allocated and never share memory with out's old values.
func fromDraft(draft map[string]any, out any) error {
	values := make(map[string]any, len(draft))
	for k, v := range draft {
		if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
			v = nil
		}
		values[k] = v
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		ZeroFields:       true,
		DecodeHook:       trimStrings,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(values)
}

func trimStrings(from reflect.Type, _ reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String {
		return data, nil
	}
	return strings.TrimSpace(reflect.ValueOf(data).String()), nil
}
