package reliablellm

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
)

// Schema validates a parsed value. Implementations return the accepted value
// (possibly converted) or a *ValidationError listing field failures.
type Schema interface {
	Validate(value any) (any, error)
}

// SchemaDescriber is implemented by schemas that can describe themselves in a
// form suitable for a prompt, typically a JSON Schema document.
type SchemaDescriber interface {
	Describe() string
}

// SchemaFunc adapts a function to the Schema interface.
type SchemaFunc func(value any) (any, error)

func (f SchemaFunc) Validate(value any) (any, error) { return f(value) }

// AnySchema accepts every value unchanged.
var AnySchema Schema = SchemaFunc(func(v any) (any, error) { return v, nil })

// ObjectSchema accepts only JSON objects that carry every listed key.
func ObjectSchema(required ...string) Schema {
	return SchemaFunc(func(v any) (any, error) {
		obj, ok := v.(map[string]any)
		if !ok {
			return nil, NewValidationError(FieldFailure{Reason: fmt.Sprintf("expected object, got %s", jsonKind(v))})
		}
		var failures []FieldFailure
		for _, key := range required {
			if _, present := obj[key]; !present {
				failures = append(failures, FieldFailure{Path: key, Reason: "required"})
			}
		}
		if len(failures) > 0 {
			return nil, NewValidationError(failures...)
		}
		return obj, nil
	})
}

var structValidator = newStructValidator()

// newStructValidator reports field paths by their JSON names.
func newStructValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		switch name {
		case "-":
			return ""
		case "":
			return fld.Name
		}
		return name
	})
	return v
}

// StructSchema validates values by decoding them into T and checking T's
// `validate` struct tags. The accepted value is a T.
type StructSchema[T any] struct{}

// NewStructSchema returns a schema for T.
func NewStructSchema[T any]() StructSchema[T] {
	return StructSchema[T]{}
}

func (StructSchema[T]) Validate(value any) (any, error) {
	return decodeStruct[T](value)
}

// Describe returns the JSON Schema of T.
func (StructSchema[T]) Describe() string {
	r := &jsonschema.Reflector{
		Anonymous:                 true,
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: true,
	}
	s := r.Reflect(new(T))
	s.Version = ""
	out, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return ""
	}
	return string(out)
}

func decodeStruct[T any](value any) (T, error) {
	var out T
	raw, err := json.Marshal(value)
	if err != nil {
		return out, NewValidationError(FieldFailure{Reason: err.Error()})
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return out, NewValidationError(FieldFailure{
				Path:   typeErr.Field,
				Reason: fmt.Sprintf("expected %s, got %s", typeErr.Type.String(), typeErr.Value),
			})
		}
		return out, NewValidationError(FieldFailure{Reason: err.Error()})
	}
	if err := structValidator.Struct(out); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			// Non-struct T has nothing to validate.
			var invalid *validator.InvalidValidationError
			if errors.As(err, &invalid) {
				return out, nil
			}
			return out, NewValidationError(FieldFailure{Reason: err.Error()})
		}
		failures := make([]FieldFailure, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			failures = append(failures, FieldFailure{Path: fieldPath(fe), Reason: describeTag(fe)})
		}
		return out, NewValidationError(failures...)
	}
	return out, nil
}

// fieldPath drops the root type name from the validator namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "min", "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max", "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "lt":
		return fmt.Sprintf("must be less than %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "len":
		return fmt.Sprintf("must have length %s", fe.Param())
	default:
		if fe.Param() != "" {
			return fmt.Sprintf("failed %s=%s", fe.Tag(), fe.Param())
		}
		return "failed " + fe.Tag()
	}
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, json.Number:
		return "number"
	default:
		return fmt.Sprintf("%T", v)
	}
}
