package services

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies engine failures. The numeric value is the wire error code.
type ErrorKind int

const (
	KindValidation ErrorKind = iota + 1
	KindOutOfBounds
	KindNotFound
	KindDataFormat
	KindPathNotFound
	KindCanceled
	KindNotInitialized
	KindAlreadyInitialized
)

// Sentinels for errors.Is
var (
	ErrValidation         = errors.New("validation error")
	ErrOutOfBounds        = errors.New("out of bounds")
	ErrNotFound           = errors.New("not found")
	ErrDataFormat         = errors.New("data format error")
	ErrPathNotFound       = errors.New("path not found")
	ErrCanceled           = errors.New("canceled")
	ErrNotInitialized     = errors.New("engine not initialized")
	ErrAlreadyInitialized = errors.New("engine already in use")
)

var kindSentinels = map[ErrorKind]error{
	KindValidation:         ErrValidation,
	KindOutOfBounds:        ErrOutOfBounds,
	KindNotFound:           ErrNotFound,
	KindDataFormat:         ErrDataFormat,
	KindPathNotFound:       ErrPathNotFound,
	KindCanceled:           ErrCanceled,
	KindNotInitialized:     ErrNotInitialized,
	KindAlreadyInitialized: ErrAlreadyInitialized,
}

// Code returns the integer error code reported to clients
func (k ErrorKind) Code() int { return int(k) }

func (k ErrorKind) String() string {
	if s, ok := kindSentinels[k]; ok {
		return s.Error()
	}
	return fmt.Sprintf("error kind %d", int(k))
}

// GridError is the structured failure returned by every engine operation.
// Only the fields relevant to Kind are set.
type GridError struct {
	Kind      ErrorKind
	Op        string
	X, Y      int
	HasCell   bool
	Lat, Lon  float64
	HasGeo    bool
	TerrainID int
	Expected  int
	Actual    int
	Query     string
	Reason    string
	Err       error
}

func (e *GridError) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())

	var details []string
	if e.HasCell {
		details = append(details, fmt.Sprintf("cell=(%d,%d)", e.X, e.Y))
	}
	if e.HasGeo {
		details = append(details, fmt.Sprintf("geo=(%g,%g)", e.Lat, e.Lon))
	}
	if e.Kind == KindDataFormat && e.Expected != e.Actual {
		details = append(details, fmt.Sprintf("expected=%d actual=%d", e.Expected, e.Actual))
	}
	if e.Query != "" {
		details = append(details, fmt.Sprintf("query=%q", e.Query))
	}
	if e.Reason != "" {
		details = append(details, e.Reason)
	}
	if len(details) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(details, ", "))
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind sentinel and the underlying cause
func (e *GridError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s, ok := kindSentinels[e.Kind]; ok {
		errs = append(errs, s)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Code returns the wire error code
func (e *GridError) Code() int { return e.Kind.Code() }

// KindOf extracts the ErrorKind of err, or 0 when err is not a GridError
func KindOf(err error) ErrorKind {
	var ge *GridError
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return 0
}

func cellOutOfBounds(op string, x, y int) *GridError {
	return &GridError{Kind: KindOutOfBounds, Op: op, X: x, Y: y, HasCell: true}
}

func geoOutOfBounds(op string, lat, lon float64) *GridError {
	return &GridError{Kind: KindOutOfBounds, Op: op, Lat: lat, Lon: lon, HasGeo: true}
}

func cellValidation(op string, x, y int, reason string, cause error) *GridError {
	return &GridError{Kind: KindValidation, Op: op, X: x, Y: y, HasCell: true, Reason: reason, Err: cause}
}

func configValidation(reason string) *GridError {
	return &GridError{Kind: KindValidation, Op: "initialize", Reason: reason}
}

func dataFormat(op string, expected, actual int, reason string) *GridError {
	return &GridError{Kind: KindDataFormat, Op: op, Expected: expected, Actual: actual, Reason: reason}
}

func canceled(op string, cause error) *GridError {
	return &GridError{Kind: KindCanceled, Op: op, Err: cause}
}
