package workflow

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	maxFieldLen       = 255
	maxCommentLen     = 500
	minNeedDescLen    = 10
	maxNeedDescLen    = 1000
	maxParamsLen      = 1000
	minResultLen      = 10
	maxResultLen      = 2000
	maxObservationLen = 1000
	minReopenLen      = 10
	maxReopenLen      = 500
)

type validator struct {
	operation string
	problems  []string
}

func newValidator(operation string) *validator {
	return &validator{operation: operation}
}

// required trims value, checks it is non-empty and no longer than max runes.
func (v *validator) required(field, value string, max int) string {
	value = strings.TrimSpace(value)
	if value == "" {
		v.problems = append(v.problems, field+" is required")
		return value
	}
	v.length(field, value, 0, max)
	return value
}

func (v *validator) optional(field, value string, max int) string {
	value = strings.TrimSpace(value)
	if value != "" {
		v.length(field, value, 0, max)
	}
	return value
}

func (v *validator) between(field, value string, min, max int) string {
	value = strings.TrimSpace(value)
	if value == "" {
		v.problems = append(v.problems, field+" is required")
		return value
	}
	v.length(field, value, min, max)
	return value
}

func (v *validator) length(field, value string, min, max int) {
	n := utf8.RuneCountInString(value)
	switch {
	case min > 0 && n < min:
		v.problems = append(v.problems, field+" must be at least "+strconv.Itoa(min)+" characters")
	case max > 0 && n > max:
		v.problems = append(v.problems, field+" must be at most "+strconv.Itoa(max)+" characters")
	}
}

func (v *validator) err() error {
	if len(v.problems) == 0 {
		return nil
	}
	return wrap(ErrValidation, v.operation, strings.Join(v.problems, "; "), nil)
}

