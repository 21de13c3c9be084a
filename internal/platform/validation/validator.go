// Package validation adapts go-playground/validator to echo's Validator
// interface and reports failures as apperror validation errors with
// human-readable messages keyed by JSON field name.
package validation

import (
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	entranslations "github.com/go-playground/validator/v10/translations/en"

	"github.com/dentalclinic/clinic/internal/platform/apperror"
)

// Validator implements echo.Validator.
type Validator struct {
	v     *validator.Validate
	trans ut.Translator
}

// New registers the clinic's custom tags:
//
//	clock     time of day as HH:MM or HH:MM:SS
//	notblank  not empty after trimming whitespace
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})

	locale := en.New()
	trans, _ := ut.New(locale, locale).GetTranslator("en")
	// Registration only fails on duplicate keys, which cannot happen on a
	// fresh validator.
	_ = entranslations.RegisterDefaultTranslations(v, trans)
	register(v, trans, "clock", isClock, "{0} must be a time of day (HH:MM or HH:MM:SS)")
	register(v, trans, "notblank", validators.NotBlank, "{0} must not be blank")

	return &Validator{v: v, trans: trans}
}

// Validate returns nil or an *apperror.Error of kind validation listing every
// failing field.
func (v *Validator) Validate(i interface{}) error {
	err := v.v.Struct(i)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperror.Validation("invalid request: %v", err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fe.Translate(v.trans))
	}
	return apperror.Validation("%s", strings.Join(msgs, "; "))
}

func register(v *validator.Validate, trans ut.Translator, tag string, fn validator.Func, msg string) {
	_ = v.RegisterValidation(tag, fn)
	_ = v.RegisterTranslation(tag, trans,
		func(t ut.Translator) error {
			return t.Add(tag, msg, true)
		},
		func(t ut.Translator, fe validator.FieldError) string {
			out, _ := t.T(tag, fe.Field())
			return out
		})
}

func isClock(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	for _, layout := range []string{"15:04", "15:04:05"} {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}
