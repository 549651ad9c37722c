// Package validation checks engine requests before any cache or network work.
package validation

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrInvalid is matched by every validation failure.
var ErrInvalid = errors.New("invalid request")

// Error describes the first invalid field of a request.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is matches ErrInvalid.
func (e *Error) Is(target error) bool { return target == ErrInvalid }

var validate = validator.New()

type coordinateQuery struct {
	Lat float64 `validate:"latitude"`
	Lon float64 `validate:"longitude"`
}

type rangeQuery struct {
	Lat   float64 `validate:"latitude"`
	Lon   float64 `validate:"longitude"`
	Start string  `validate:"required,datetime=2006-01-02"`
	End   string  `validate:"required,datetime=2006-01-02"`
}

// ValidateCoordinates checks lat in [-90, 90] and lon in [-180, 180].
func ValidateCoordinates(lat, lon float64) error {
	return structError(validate.Struct(coordinateQuery{Lat: lat, Lon: lon}))
}

// ValidateRange checks coordinates and an inclusive ISO date range. maxDays
// bounds the span when positive.
func ValidateRange(lat, lon float64, start, end string, maxDays int) error {
	q := rangeQuery{Lat: lat, Lon: lon, Start: strings.TrimSpace(start), End: strings.TrimSpace(end)}
	if err := structError(validate.Struct(q)); err != nil {
		return err
	}
	from, _ := time.Parse(time.DateOnly, q.Start)
	to, _ := time.Parse(time.DateOnly, q.End)
	if to.Before(from) {
		return &Error{Field: "end", Reason: "must not be before start"}
	}
	if days := int(to.Sub(from).Hours()/24) + 1; maxDays > 0 && days > maxDays {
		return &Error{Field: "end", Reason: fmt.Sprintf("range of %d days exceeds maximum of %d", days, maxDays)}
	}
	return nil
}

func structError(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &Error{Field: "request", Reason: err.Error()}
	}
	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "latitude":
		return &Error{Field: field, Reason: "must be between -90 and 90"}
	case "longitude":
		return &Error{Field: field, Reason: "must be between -180 and 180"}
	case "required":
		return &Error{Field: field, Reason: "is required"}
	case "datetime":
		return &Error{Field: field, Reason: "must be a date in YYYY-MM-DD format"}
	}
	return &Error{Field: field, Reason: fe.Tag()}
}
