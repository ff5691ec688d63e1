// Package exam owns the currently open exam: it validates and loads exam
// documents, grades answers, records results and derives flashcards for
// missed questions.
package exam

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/conorfennell/studydeck/internal/domain"
	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return strings.ToLower(f.Name)
		}
		return name
	})
	return v
}

// Decode reads a JSON exam document and validates its shape.
func Decode(r io.Reader) (domain.Document, error) {
	var doc domain.Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return domain.Document{}, fmt.Errorf("%w: invalid exam JSON: %v", domain.ErrValidation, err)
	}
	if err := Validate(doc); err != nil {
		return domain.Document{}, err
	}
	return doc, nil
}

// Validate checks that a document has a non-empty question list and that every
// question has a prompt and at least one solution.
func Validate(doc domain.Document) error {
	err := validate.Struct(doc)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("%w: %s", domain.ErrValidation, strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	// Drop the root type name: "document.questions[0].prompt" -> "questions[0].prompt".
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return fmt.Sprintf("%s must have at least %s entries", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed the %q check", field, fe.Tag())
	}
}
