package service

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/noah-isme/fir-api/internal/models"
	appErrors "github.com/noah-isme/fir-api/pkg/errors"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,50}$`)

// NewValidator returns a validator with the domain tags registered:
// "username" (3-50 letters, digits, dash or underscore) and "role".
func NewValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("role", func(fl validator.FieldLevel) bool {
		_, err := models.ParseRole(fl.Field().String())
		return err == nil
	})
	return v
}

// validationError turns validator output into a VALIDATION_ERROR listing the
// offending fields.
func validationError(err error, message string) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		parts := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			parts = append(parts, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
		}
		return appErrors.Validation(err, fmt.Sprintf("%s: %s", message, strings.Join(parts, ", ")))
	}
	return appErrors.Validation(err, message)
}

// canonicalID normalises a resource id taken from a request. Every table is
// keyed by UUID, so anything else cannot name an existing row.
func canonicalID(id string) (string, bool) {
	id = strings.TrimSpace(id)
	if len(id) != 36 {
		return "", false
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", false
	}
	return parsed.String(), true
}
