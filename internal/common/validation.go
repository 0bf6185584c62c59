package common

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// ValidateSubmission trims the submission in place and checks it.
func ValidateSubmission(sub *Submission) error {
	sub.CandidateID = strings.TrimSpace(sub.CandidateID)
	sub.Content = strings.TrimSpace(sub.Content)
	for i, id := range sub.TaggedUsers {
		sub.TaggedUsers[i] = strings.TrimSpace(id)
	}
	return ValidateStruct(sub)
}

// ValidateStruct runs the validate tags of v and reports the first
// violation as a ValidationError.
func ValidateStruct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return ValidationError("%s", describe(verrs[0]))
	}
	return ValidationError("invalid payload")
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}
