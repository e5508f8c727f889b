package handlers

import (
	"errors"
	"net/http"

	"tacgrid/server/messages"
	"tacgrid/server/persistence"
	"tacgrid/server/services"
)

// badRequestError marks a malformed request payload
type badRequestError struct {
	err error
}

func (e *badRequestError) Error() string { return "bad request: " + e.err.Error() }
func (e *badRequestError) Unwrap() error { return e.err }

func badRequest(err error) error {
	return &badRequestError{err: err}
}

// rasterFormatError turns a raster decoding failure into a DataFormat error
func rasterFormatError(op string, err error) error {
	if errors.Is(err, persistence.ErrPartialSample) || errors.Is(err, persistence.ErrRasterTooLarge) {
		return &services.GridError{Kind: services.KindDataFormat, Op: op, Reason: err.Error()}
	}
	return badRequest(err)
}

// errorMessage converts any error into the wire ErrorResponse shape
func errorMessage(err error) messages.ErrorMessage {
	var ge *services.GridError
	if errors.As(err, &ge) {
		return messages.ErrorMessage{ErrorCode: ge.Code(), ErrorMessage: ge.Error()}
	}
	var br *badRequestError
	if errors.As(err, &br) {
		return messages.ErrorMessage{ErrorCode: messages.ErrorCodeBadRequest, ErrorMessage: br.Error()}
	}
	return messages.ErrorMessage{ErrorCode: messages.ErrorCodeInternal, ErrorMessage: err.Error()}
}

// httpStatus picks the HTTP status reported for err
func httpStatus(err error) int {
	var br *badRequestError
	if errors.As(err, &br) {
		return http.StatusBadRequest
	}
	switch services.KindOf(err) {
	case services.KindValidation, services.KindOutOfBounds:
		return http.StatusBadRequest
	case services.KindNotFound, services.KindPathNotFound:
		return http.StatusNotFound
	case services.KindDataFormat:
		return http.StatusUnprocessableEntity
	case services.KindCanceled:
		return http.StatusRequestTimeout
	case services.KindNotInitialized:
		return http.StatusServiceUnavailable
	case services.KindAlreadyInitialized:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
