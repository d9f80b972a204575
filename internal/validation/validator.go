// Package validation wraps go-playground/validator with a shared instance and
// translates its failures into models.ValidationError.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/ukydev/eventual/internal/models"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// GetValidator returns the shared validator. Field names in errors follow the
// json tag when one is present.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "" || name == "-" {
				return lowerFirst(fld.Name)
			}
			return name
		})
	})
	return validate
}

// ValidateStruct validates s and returns the first failure as a
// *models.ValidationError, or nil.
func ValidateStruct(s interface{}) error {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &models.ValidationError{Message: err.Error()}
	}
	fe := fieldErrs[0]
	return &models.ValidationError{Field: fieldPath(fe), Message: translateError(fe)}
}

// ValidateDraft checks everything a store needs before persisting an entry.
func ValidateDraft(d models.EntryDraft) error {
	if err := ValidateStruct(d); err != nil {
		return err
	}
	if d.Location.Coordinate == nil {
		return &models.ValidationError{Field: "location.coordinate", Message: "coordinate is required"}
	}
	if !d.Location.Coordinate.Valid() {
		return &models.ValidationError{Field: "location.coordinate", Message: "coordinate is out of range"}
	}
	return d.Rank.Validate()
}

// ValidateCreateRequest checks a create request before any collaborator is called.
func ValidateCreateRequest(r models.CreateRequest) error {
	if err := ValidateStruct(r); err != nil {
		return err
	}
	if strings.TrimSpace(r.Title) == "" {
		return &models.ValidationError{Field: "title", Message: "title is required"}
	}
	if strings.TrimSpace(r.Address) == "" {
		return &models.ValidationError{Field: "address", Message: "address is required"}
	}
	if strings.TrimSpace(r.AuthorID) == "" {
		return &models.ValidationError{Field: "authorId", Message: "authorId is required"}
	}
	if r.Rank.IsZero() {
		return &models.ValidationError{Field: "rank", Message: "rank is required"}
	}
	if r.Kind != "" && r.Kind != models.KindForRank(r.Rank) {
		return &models.ValidationError{Field: "kind", Message: fmt.Sprintf("%s entries take a %s rank", r.Kind, expectedRank(r.Kind))}
	}
	return r.Rank.Validate()
}

func expectedRank(kind models.EntryKind) models.RankKind {
	if kind == models.KindReview {
		return models.RankRating
	}
	return models.RankTimestamp
}

var errorMessageTemplates = map[string]string{
	"required":  "%s is required",
	"url":       "%s must be a valid URL",
	"latitude":  "%s must be a valid latitude (-90 to 90)",
	"longitude": "%s must be a valid longitude (-180 to 180)",
}

var errorMessageWithParam = map[string]string{
	"oneof": "%s must be one of: %s",
}

func translateError(fe validator.FieldError) string {
	if template, ok := errorMessageTemplates[fe.Tag()]; ok {
		return fmt.Sprintf(template, fe.Field())
	}
	if template, ok := errorMessageWithParam[fe.Tag()]; ok {
		return fmt.Sprintf(template, fe.Field(), fe.Param())
	}
	return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
}

// fieldPath drops the root struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
