package app

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"
)

// newValidator names fields by their config key so messages read like
// "dsn is a required field".
func newValidator() (*validator.Validate, ut.Translator, error) {
	validate := validator.New()

	enLocale := en.New()
	uni := ut.New(enLocale, enLocale)
	trans, _ := uni.GetTranslator("en")
	if err := enTranslations.RegisterDefaultTranslations(validate, trans); err != nil {
		return nil, nil, fmt.Errorf("failed to register default translations: %w", err)
	}

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	validate.RegisterStructValidation(validateTimeouts, Config{})
	if err := validate.RegisterTranslation(tagOutlivesCall, trans,
		func(tr ut.Translator) error {
			return tr.Add(tagOutlivesCall, "{0} must be longer than llm.call_timeout", true)
		},
		func(tr ut.Translator, fe validator.FieldError) string {
			msg, _ := tr.T(tagOutlivesCall, fe.Field())
			return msg
		},
	); err != nil {
		return nil, nil, fmt.Errorf("failed to register %s translation: %w", tagOutlivesCall, err)
	}
	return validate, trans, nil
}

const tagOutlivesCall = "outlives_call_timeout"

// validateTimeouts keeps session leases and the stale-reservation cutoff longer
// than a guarded AI call, so neither can expire while the call is still running.
func validateTimeouts(sl validator.StructLevel) {
	cfg := sl.Current().Interface().(Config)
	if cfg.LLM.CallTimeout <= 0 {
		return
	}
	if cfg.Session.LeaseTTL <= cfg.LLM.CallTimeout {
		sl.ReportError(cfg.Session.LeaseTTL, "lease_ttl", "LeaseTTL", tagOutlivesCall, "")
	}
	if cfg.Reset.StaleAfter <= cfg.LLM.CallTimeout {
		sl.ReportError(cfg.Reset.StaleAfter, "stale_after", "StaleAfter", tagOutlivesCall, "")
	}
}
