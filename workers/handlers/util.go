package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	ethav "github.com/KOREAN139/ethereum-address-validator"
	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"

	"gococo/types"
)

func responseJSON(w http.ResponseWriter, data interface{}, code int) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func CORSHeaders(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
	w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, Origin, X-Requested-With")
}

// statusCode maps the error taxonomy to HTTP
func statusCode(kind string) int {
	switch kind {
	case "declined":
		return http.StatusForbidden
	case "reverted":
		return http.StatusUnprocessableEntity
	case "timeout":
		return http.StatusGatewayTimeout
	case "config":
		return http.StatusBadRequest
	case "nofunds":
		return http.StatusConflict
	case "network":
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func responseError(w http.ResponseWriter, err error, field string) {
	kind := types.ErrorKind(err)
	responseJSON(w, &APIResponse{
		Status:  kind,
		Message: err.Error(),
		Field:   field,
	}, statusCode(kind))
}

func responseBusy(w http.ResponseWriter) {
	responseJSON(w, &APIResponse{
		Status:  "busy",
		Message: "Another account operation is in progress",
	}, http.StatusConflict)
}

func readJSON(w http.ResponseWriter, r *http.Request, req interface{}) bool {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Printf("Error reading request body: %s", err.Error())
		responseJSON(w, &APIResponse{
			Status:  "error",
			Message: "Error reading request body",
		}, http.StatusBadRequest)
		return false
	}

	err = json.Unmarshal(body, req)
	if err != nil {
		log.Printf("Error unmarshalling request body: %s", err.Error())
		responseJSON(w, &APIResponse{
			Status:  "error",
			Message: "Cannot unmarshal input JSON",
		}, http.StatusBadRequest)
		return false
	}
	return true
}

func parseAddress(field, addr string) (common.Address, error) {
	if !common.IsHexAddress(addr) {
		return common.Address{}, fmt.Errorf("%w: %s is not an address: %q", types.ErrConfiguration, field, addr)
	}
	if err := ethav.Validate(common.HexToAddress(addr).Hex()); err != nil {
		return common.Address{}, fmt.Errorf("%w: %s: %s", types.ErrConfiguration, field, err.Error())
	}
	return common.HexToAddress(addr), nil
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
