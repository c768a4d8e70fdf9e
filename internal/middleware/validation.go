package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// FieldViolation describes one rejected request field.
type FieldViolation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

// ValidationFailureResponse is the 400 payload for tag-level request
// validation failures. Domain-level rejections go through RespondWithError.
type ValidationFailureResponse struct {
	Message string           `json:"message"`
	Details []FieldViolation `json:"details"`
}

// ValidateRequest checks obj against its validate tags and returns one
// violation per failed field, nil when the request is clean.
func ValidateRequest(obj any) []FieldViolation {
	err := validate.Struct(obj)
	if err == nil {
		return nil
	}
	var violations []FieldViolation
	for _, fieldErr := range err.(validator.ValidationErrors) {
		violations = append(violations, FieldViolation{
			Field:   fieldErr.Field(),
			Message: violationMessage(fieldErr),
			Type:    fieldErr.Tag(),
		})
	}
	return violations
}

func violationMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return "This field is required"
	case "email":
		return "Must be a valid email address"
	case "min":
		return "Value is too short"
	case "max":
		return "Value is too long"
	case "gt":
		return "Must be greater than " + err.Param()
	case "gte":
		return "Must be at least " + err.Param()
	case "oneof":
		return "Must be one of: " + err.Param()
	default:
		return "Invalid value"
	}
}

func RespondWithValidationError(c *gin.Context, violations []FieldViolation) {
	c.JSON(http.StatusBadRequest, ValidationFailureResponse{
		Message: "Invalid request data",
		Details: violations,
	})
}

func RespondWithError(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{"message": message})
}
