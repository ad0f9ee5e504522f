package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// MaxPrice is the largest price the archive can store (NUMERIC(12, 2)).
const MaxPrice = 9999999999.99

var submissionValidator = newSubmissionValidator()

func newSubmissionValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("nonul", noNUL); err != nil {
		panic(fmt.Sprintf("failed to register nonul validation: %v", err))
	}
	return v
}

// Submission is the final payload a lease holder sends with submit.
// Text fields must be present but may be empty strings. Price defaults to 0.
type Submission struct {
	TaskID      string         `json:"_id" validate:"required,nonul"`
	GroupKey    *string        `json:"session" validate:"required,nonul"`
	Label       *string        `json:"label" validate:"required,nonul"`
	SequenceKey *int64         `json:"number" validate:"required,gte=0"`
	SKU         *string        `json:"sku" validate:"required,nonul"`
	URL         *string        `json:"url" validate:"required,nonul"`
	Price       float64        `json:"price" validate:"gte=0,lte=9999999999.99"`
	Title       *string        `json:"title" validate:"required,nonul"`
	Note        *string        `json:"note" validate:"required,nonul"`
	Description map[string]any `json:"description" validate:"required,nonul"`
	Location    *string        `json:"location" validate:"required,nonul"`
	ImageURLs   []string       `json:"imageUrls" validate:"required,nonul"`
	BatchCode   *string        `json:"batchCode" validate:"required,nonul"`
	QA          *string        `json:"qa" validate:"required,nonul"`
	QATime      *string        `json:"timestamp" validate:"required,nonul"`
	Recorder    *string        `json:"recorder" validate:"required,nonul"`
}

// Validate reports the first missing or malformed field as a ValidationError.
func (s *Submission) Validate() error {
	if s == nil {
		return NewValidationError("", "submission is required", ErrValidation)
	}
	err := submissionValidator.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return NewValidationError(jsonName(fe.StructField()), describeTag(fe), ErrValidation)
	}
	return NewValidationError("", err.Error(), ErrValidation)
}

// noNUL rejects NUL bytes anywhere in a string, string slice or JSON object.
// Postgres TEXT and JSONB columns cannot store them.
func noNUL(fl validator.FieldLevel) bool {
	return !containsNUL(fl.Field().Interface())
}

func containsNUL(v any) bool {
	switch x := v.(type) {
	case string:
		return strings.ContainsRune(x, 0)
	case *string:
		return x != nil && strings.ContainsRune(*x, 0)
	case []string:
		for _, s := range x {
			if strings.ContainsRune(s, 0) {
				return true
			}
		}
	case []any:
		for _, e := range x {
			if containsNUL(e) {
				return true
			}
		}
	case map[string]any:
		for k, e := range x {
			if strings.ContainsRune(k, 0) || containsNUL(e) {
				return true
			}
		}
	}
	return false
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gte":
		return fmt.Sprintf("must be >= %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be <= %s", fe.Param())
	case "nonul":
		return "must not contain NUL bytes"
	default:
		return fmt.Sprintf("failed on %s", fe.Tag())
	}
}

// jsonName maps a Submission struct field to the wire name clients use.
func jsonName(field string) string {
	names := map[string]string{
		"TaskID":      "_id",
		"GroupKey":    "session",
		"SequenceKey": "number",
		"ImageURLs":   "imageUrls",
		"BatchCode":   "batchCode",
		"QATime":      "timestamp",
	}
	if name, ok := names[field]; ok {
		return name
	}
	return strings.ToLower(field)
}
