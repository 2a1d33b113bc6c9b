package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"

	"driverkit/pkg/channel"
	"driverkit/pkg/connection"
	"driverkit/pkg/driver"
	"driverkit/pkg/property"
)

type baseResponse struct {
	ServerTransactionID int    `json:"server_transaction_id"`
	ErrorNumber         int    `json:"error_number"`
	ErrorMessage        string `json:"error_message,omitempty"`
	Value               any    `json:"value,omitempty"`
}

var txCounter atomic.Int32

func handleResponse(w http.ResponseWriter, value any) {
	writeResponse(w, http.StatusOK, baseResponse{
		ServerTransactionID: int(txCounter.Add(1)),
		Value:               value,
	})
}

func handleError(w http.ResponseWriter, code int, err error) {
	handleErrorValue(w, code, err, nil)
}

// handleErrorValue reports err together with the state it left behind,
// such as the Alert snapshot of a rejected update.
func handleErrorValue(w http.ResponseWriter, code int, err error, value any) {
	writeResponse(w, code, baseResponse{
		ServerTransactionID: int(txCounter.Add(1)),
		ErrorNumber:         code,
		ErrorMessage:        err.Error(),
		Value:               value,
	})
}

func writeResponse(w http.ResponseWriter, status int, resp baseResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// statusOf maps driver errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, property.ErrUnknownProperty):
		return http.StatusNotFound
	case errors.Is(err, property.ErrRejectedUpdate):
		return http.StatusUnprocessableEntity
	case errors.Is(err, property.ErrInvalidState), errors.Is(err, channel.ErrInvalidState), errors.Is(err, driver.ErrNotConnected):
		return http.StatusConflict
	case errors.Is(err, connection.ErrTransportUnavailable), errors.Is(err, connection.ErrHandshakeFailed):
		return http.StatusBadGateway
	case errors.Is(err, driver.ErrLoopStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
