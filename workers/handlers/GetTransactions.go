package handlers

import (
	"net/http"
)

// FailedBridges lists the journaled bridge operations that ended Failed
func (a *API) FailedBridges(w http.ResponseWriter, r *http.Request) {
	failed, err := a.d.Store.BridgeOperationsByStatus("failed")
	if err != nil {
		responseJSON(w, nil, http.StatusInternalServerError)
		return
	}

	responseJSON(w, failed, http.StatusOK)
}
