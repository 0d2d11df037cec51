package dto

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/gema-grading-api/internal/models"
)

// NewValidator returns a validator that reports fields by their JSON names.
func NewValidator() *validator.Validate {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return field.Name
		}
		return name
	})
	_ = validate.RegisterValidation("distinct_students", distinctStudents)
	return validate
}

// distinctStudents rejects result lists where two entries share a student
// name, compared case-insensitively.
func distinctStudents(fl validator.FieldLevel) bool {
	results, ok := fl.Field().Interface().([]models.AnalysisResult)
	if !ok {
		return false
	}
	seen := make(map[string]struct{}, len(results))
	for _, result := range results {
		key := strings.ToLower(strings.TrimSpace(result.StudentName))
		if _, dup := seen[key]; dup {
			return false
		}
		seen[key] = struct{}{}
	}
	return true
}
