package handlers

import (
	"net/http"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi"
	log "github.com/sirupsen/logrus"

	"gococo/bridge"
)

func bridgeResponse(s bridge.Status) *APIBridgeResponse {
	resp := &APIBridgeResponse{
		Status:  "accepted",
		ID:      s.OperationID,
		Phase:   string(s.Phase),
		Message: s.Message,
	}
	if s.Phase == bridge.Failed {
		resp.Status = s.Kind()
		resp.FailedIn = string(s.FailedIn)
	} else if s.Phase == bridge.DestinationConfirmed {
		resp.Status = "ok"
	}
	return resp
}

// Bridge starts a voucher transfer and answers once Building is over: with
// the operation id when the source leg is submitted, or with the failure when
// the request could not be built or signed. The flow keeps running after the
// response; poll GET /bridge/{id}.
func (a *API) Bridge(w http.ResponseWriter, r *http.Request) {
	var req BridgeRequest
	if !readJSON(w, r, &req) {
		return
	}
	amount, err := a.amount(req.SourceChainID, req.Amount)
	if err != nil {
		responseError(w, err, "amount")
		return
	}
	var recipient common.Address
	if req.Recipient != "" {
		recipient, err = parseAddress("recipient", req.Recipient)
		if err != nil {
			responseError(w, err, "recipient")
			return
		}
	}

	if !a.busy.TryLock() {
		responseBusy(w)
		return
	}

	first := make(chan bridge.Status, 1)
	go func() {
		defer a.busy.Unlock()

		var once sync.Once
		final := a.d.Bridge.Bridge(a.d.Ctx, bridge.Request{
			SourceChainID:      req.SourceChainID,
			DestinationChainID: req.DestinationChainID,
			RawAmount:          amount,
			Recipient:          recipient,
		}, func(s bridge.Status) {
			if s.Phase != bridge.Building {
				once.Do(func() { first <- s })
			}
		})
		once.Do(func() { first <- final })

		log.WithField("op", final.OperationID).Printf("Bridge finished in %s: %s", final.Phase, final.Message)
	}()

	s := <-first
	code := http.StatusAccepted
	if s.Phase == bridge.Failed {
		code = statusCode(s.Kind())
	}
	responseJSON(w, bridgeResponse(s), code)
}

func (a *API) BridgeOperation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	op, err := a.d.Store.GetBridgeOperation(id)
	if err != nil {
		log.Printf("Error reading bridge operation %s: %s", id, err.Error())
		responseJSON(w, &APIResponse{
			Status:  "error",
			Message: "Cannot read bridge operation",
		}, http.StatusInternalServerError)
		return
	}
	if op == nil {
		responseJSON(w, &APIResponse{
			Status:  "notfound",
			Field:   "id",
			Message: "No such bridge operation",
		}, http.StatusNotFound)
		return
	}
	responseJSON(w, op, http.StatusOK)
}
