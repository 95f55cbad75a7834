package api

import (
	"errors"
	"net/http"

	"github.com/warp/stockbook/inventory"
)

// internalErrorMessage replaces the text of 5xx-class failures in responses.
// The original error is only logged.
const internalErrorMessage = "Internal server error"

// statusFor maps an error to its HTTP status by kind.
func statusFor(err error) int {
	switch inventory.Kind(err) {
	case inventory.KindValidation, inventory.KindInsufficientStock:
		return http.StatusBadRequest
	case inventory.KindNotFound:
		return http.StatusNotFound
	case inventory.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// kindFor is the kind reported for a status when there is no domain error
// to classify, e.g. an undecodable body.
func kindFor(status int) inventory.ErrorKind {
	switch status {
	case http.StatusBadRequest:
		return inventory.KindValidation
	case http.StatusNotFound:
		return inventory.KindNotFound
	case http.StatusConflict:
		return inventory.KindConflict
	default:
		return inventory.KindInternal
	}
}

// validationFields extracts per-field rules, if err carries any.
func validationFields(err error) map[string]string {
	var verr *inventory.ValidationError
	if !errors.As(err, &verr) {
		return nil
	}
	if len(verr.Fields) > 0 {
		return verr.Fields
	}
	if verr.Field != "" {
		return map[string]string{verr.Field: verr.Message}
	}
	return nil
}
