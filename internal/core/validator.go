package core

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"ziprank/internal/types"
)

// zipPattern matches a bare 5-digit US ZIP code. ZIP+4 forms are rejected;
// callers normalize before validation.
var zipPattern = regexp.MustCompile(`^\d{5}$`)

// Validator wraps go-playground/validator with domain-specific rules and
// translates tag failures into the service's structured error vocabulary.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// ValidationError describes a single field-level validation failure.
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewValidator creates a new Validator and registers custom validation tags.
//
// Custom tags:
//   - us_zip: the field must be a 5-digit US ZIP code string.
func NewValidator(logger *slog.Logger) *Validator {
	v := validator.New()

	// Registration only fails for nil funcs or empty tags; neither applies.
	_ = v.RegisterValidation("us_zip", func(fl validator.FieldLevel) bool {
		return zipPattern.MatchString(fl.Field().String())
	})

	return &Validator{
		validate: v,
		logger:   logger,
	}
}

// ValidateStruct validates the struct's `validate` tags. On failure it returns
// a *types.AppError whose code reflects the first failure and whose details
// carry the full list of field errors under "validation_errors".
func (v *Validator) ValidateStruct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		// InvalidValidationError: the caller passed a non-struct. This is a
		// programming error, not client input.
		return types.NewAppError(types.ErrCodeInternalUnexpected, "validation failed", err)
	}

	errs := make([]ValidationError, 0, len(fieldErrs))
	firstCode := types.ErrCodeValidationInvalidCriteria
	for i, fe := range fieldErrs {
		code := codeForTag(fe)
		if i == 0 {
			firstCode = code
		}
		errs = append(errs, ValidationError{
			Field:   fieldPath(fe),
			Code:    string(code),
			Message: messageForTag(fe),
		})
	}

	return types.NewAppErrorWithDetails(
		firstCode,
		"request validation failed",
		nil,
		map[string]any{"validation_errors": errs},
	)
}

// codeForTag maps a validator tag to the service error vocabulary.
func codeForTag(fe validator.FieldError) types.ErrorCode {
	switch fe.Tag() {
	case "required":
		return types.ErrCodeValidationMissingField
	case "us_zip":
		return types.ErrCodeValidationInvalidZip
	case "gt", "gte", "lt", "lte", "min", "max":
		return types.ErrCodeValidationWeightRange
	default:
		return types.ErrCodeValidationInvalidCriteria
	}
}

// messageForTag renders a human-readable message for a field failure.
func messageForTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "field is required"
	case "us_zip":
		return "must be a 5-digit US ZIP code"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "lt":
		return "must be less than " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "min":
		return "must have at least " + fe.Param() + " elements"
	case "max":
		return "must have at most " + fe.Param() + " elements"
	default:
		return "failed validation rule: " + fe.Tag()
	}
}

// fieldPath returns the struct-relative path of the failing field, dropping
// the top-level struct name so clients see "Criteria[0].Weight" rather than
// "ScoreRequest.Criteria[0].Weight".
func fieldPath(fe validator.FieldError) string {
	ns := fe.StructNamespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}
