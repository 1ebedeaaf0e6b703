package core

import (
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"teamsjira/internal/types"
)

// Validator wraps go-playground/validator for request DTO validation and
// translates validation failures into AppErrors with field details.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a new Validator.
func NewValidator(logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

// ValidateStruct validates a request DTO against its validate tags.
// Returns a validation AppError listing the offending fields.
func (v *Validator) ValidateStruct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var details map[string]any
	if verrs, ok := err.(validator.ValidationErrors); ok {
		details = make(map[string]any, len(verrs))
		for _, fe := range verrs {
			details[strings.ToLower(fe.Field())] = fe.Tag()
		}
	}

	appErr := types.NewAppError(types.ErrCodeValidationMissingField, "request validation failed", err)
	appErr.Details = details
	return appErr
}
