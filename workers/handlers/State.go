package handlers

import (
	"net/http"

	log "github.com/sirupsen/logrus"

	"gococo/config"
)

var inFlightPhases = []string{"building", "sourcesubmitted", "awaitingfulfillment"}

func (a *API) State(w http.ResponseWriter, r *http.Request) {
	resp := &APIStateResponse{
		Status:       "ok",
		Account:      a.d.Account.Hex(),
		DefaultChain: a.d.DefaultChain,
		Chains:       make([]ChainInfo, 0, len(a.d.Chains)),
	}

	for _, id := range config.ChainIDs(a.d.Chains) {
		chain := a.d.Chains[id]
		resp.Chains = append(resp.Chains, ChainInfo{
			ChainID:    id,
			Name:       chain.Name,
			Token:      chain.TokenAddress,
			Strategies: chain.HasFlashLoan(),
			Bridge:     chain.HasBridge(),
		})
	}

	if a.d.Balances != nil {
		_, updated := a.d.Balances.Latest()
		resp.BalancesUpdated = unixOrZero(updated)
	}
	if a.d.Positions != nil {
		_, updated := a.d.Positions.Positions()
		resp.PositionsUpdated = unixOrZero(updated)
	}

	if a.d.Store != nil {
		for _, phase := range inFlightPhases {
			ops, err := a.d.Store.BridgeOperationsByStatus(phase)
			if err != nil {
				// journal is display only, state still answers
				log.Printf("Error reading bridge journal: %s", err.Error())
				break
			}
			resp.BridgesInFlight += len(ops)
		}
	}

	if a.busy.TryLock() {
		a.busy.Unlock()
	} else {
		resp.Busy = true
	}

	responseJSON(w, resp, http.StatusOK)
}

func HealthCheck(w http.ResponseWriter, r *http.Request) {
	responseJSON(w, &APIResponse{
		Status: "ok",
	}, http.StatusOK)
}
