package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	MaxDescriptionLength = 2000
	MaxMessageLength     = 4000
	MaxAttachmentSize    = 10 << 20 // 10mb
)

var AllowedAttachmentTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/gif":       true,
	"image/webp":      true,
	"application/pdf": true,
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	var messages []string
	for _, err := range e {
		messages = append(messages, err.Error())
	}
	return strings.Join(messages, "; ")
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Struct runs validator tags on v and converts the result to field-level
// errors for API responses.
func Struct(v any) ValidationErrors {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return ValidationErrors{{Field: "request", Message: err.Error()}}
	}

	var out ValidationErrors
	for _, fe := range fieldErrs {
		out = append(out, ValidationError{
			Field:   strings.ToLower(fe.Field()),
			Message: fmt.Sprintf("failed on the %q rule", fe.Tag()),
		})
	}
	return out
}

// ValidateMessageText checks a chat line before it is appended to a job.
func ValidateMessageText(text string) ValidationErrors {
	var errors ValidationErrors
	if strings.TrimSpace(text) == "" {
		errors = append(errors, ValidationError{
			Field:   "text",
			Message: "message text must not be empty",
		})
	}
	if len(text) > MaxMessageLength {
		errors = append(errors, ValidationError{
			Field:   "text",
			Message: fmt.Sprintf("message exceeds maximum length of %d characters", MaxMessageLength),
		})
	}
	return errors
}

// ValidateCoordinates rejects samples outside the WGS84 range.
func ValidateCoordinates(lat, lng float64) ValidationErrors {
	var errors ValidationErrors
	if lat < -90 || lat > 90 {
		errors = append(errors, ValidationError{
			Field:   "latitude",
			Message: "latitude must be between -90 and 90",
		})
	}
	if lng < -180 || lng > 180 {
		errors = append(errors, ValidationError{
			Field:   "longitude",
			Message: "longitude must be between -180 and 180",
		})
	}
	return errors
}
