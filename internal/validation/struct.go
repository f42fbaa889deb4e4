package validation

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/mmeshcher/printpoints/internal/errs"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Struct проверяет структуру по тегам validate и возвращает первую ошибку как errs.ValidationError.
func Struct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		reason := fe.Tag()
		if fe.Param() != "" {
			reason += "=" + fe.Param()
		}
		return errs.Validation(strings.ToLower(fe.Field()), reason)
	}
	return errs.Validation("", err.Error())
}
