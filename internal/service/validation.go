package service

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sakif/campus-link/internal/apperror"
	"github.com/sakif/campus-link/internal/model"
)

// Project form limits.
const (
	MinDescriptionLength = 100
	MaxTeamSize          = 5
)

// ProjectInput is what the post-project form submits.
//
// validator's min on strings counts runes, so the description minimum is
// measured in characters, not bytes.
type ProjectInput struct {
	Name         string            `json:"projectName" validate:"required"`
	Description  string            `json:"description" validate:"required,min=100"`
	Domain       string            `json:"domain" validate:"required,projectdomain"`
	TechStack    []string          `json:"techStack"`
	TeamSize     int               `json:"teamSize" validate:"min=1,max=5"`
	ContactType  model.ContactType `json:"contactType" validate:"omitempty,oneof=phone linkedin"`
	ContactValue string            `json:"contactValue" validate:"required_with=ContactType"`
}

// ProfileInput is what the complete-profile form submits. No field is
// required here: an unfinished profile is saved with its completion flag
// off. The length caps bound what one profile document can hold.
type ProfileInput struct {
	FullName  string `json:"fullName" validate:"max=100"`
	Year      string `json:"year" validate:"max=20"`
	Course    string `json:"course" validate:"max=100"`
	TechStack string `json:"techStack" validate:"max=500"`
	Contact   string `json:"contact" validate:"max=200"`
}

// Validator wraps go-playground/validator and turns the first failing field
// into an apperror.ValidationFailed with a message fit for the form.
type Validator struct {
	v *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report json names so Field matches what the client sent.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	_ = v.RegisterValidation("projectdomain", func(fl validator.FieldLevel) bool {
		return slices.Contains(model.Domains, fl.Field().String())
	})

	return &Validator{v: v}
}

// Struct validates s and returns nil or an *apperror.AppError.
func (v *Validator) Struct(s any) error {
	err := v.v.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperror.ValidationFailed("", err.Error())
	}

	fe := verrs[0]
	return apperror.ValidationFailed(fe.Field(), message(fe, s))
}

func message(fe validator.FieldError, s any) string {
	switch fe.Field() {
	case "description":
		return fmt.Sprintf("Description must be at least %d characters.", MinDescriptionLength)
	case "teamSize":
		if fe.Tag() == "max" {
			return fmt.Sprintf("You can only require up to %d teammates.", MaxTeamSize)
		}
		return "At least one teammate is required."
	case "contactValue":
		if in, ok := s.(ProjectInput); ok && fe.Tag() == "required_with" {
			return fmt.Sprintf("Please provide your %s link/number.", in.ContactType)
		}
	case "projectName":
		if fe.Tag() == "required" {
			return "Project name is required."
		}
	case "domain":
		return "Please select a domain."
	case "contactType":
		return "Contact method must be phone or LinkedIn."
	}

	if fe.Tag() == "max" {
		return fmt.Sprintf("%s must be at most %s characters.", fe.Field(), fe.Param())
	}
	return fmt.Sprintf("%s failed on '%s' validation.", fe.Field(), fe.Tag())
}

// normaliseTechStack trims entries and drops blanks and repeats, keeping
// first-seen order.
func normaliseTechStack(in []string) []string {
	out := make([]string, 0, len(in))
	for _, t := range in {
		t = strings.TrimSpace(t)
		if t == "" || slices.Contains(out, t) {
			continue
		}
		out = append(out, t)
	}
	return out
}
