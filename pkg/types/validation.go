package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

// FUNCTIONAL DISCOVERY: validator is built once and reports json field names
// so MissingField errors name the wire field the client actually sent
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("notblank", validators.NotBlank)
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// NormalizeName trims the surrounding whitespace of a display name.
func NormalizeName(raw string) string {
	return strings.TrimSpace(raw)
}

// DecodePayload unmarshals raw event data into dst. Empty data leaves dst zeroed.
func DecodePayload(data json.RawMessage, dst any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return nil
}

// ValidatePayload checks struct tags and reports the first missing field.
func ValidatePayload(payload any) error {
	err := validate.Struct(payload)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingField, fieldErrs[0].Field())
	}
	return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
}

// Normalize trims the routing target in place.
func (r *MediaRequest) Normalize() { r.TargetUser = strings.TrimSpace(r.TargetUser) }

func (r *MessageRequest) Normalize() { r.TargetUser = strings.TrimSpace(r.TargetUser) }

func (r *TypingRequest) Normalize() { r.TargetUser = strings.TrimSpace(r.TargetUser) }
