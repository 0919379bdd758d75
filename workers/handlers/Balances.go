package handlers

import (
	"net/http"
	"strconv"

	"gococo/balances"
	"gococo/codec"
	"gococo/reconciler"
)

// Balances answers from the last aggregator cycle, it never calls a node
func (a *API) Balances(w http.ResponseWriter, r *http.Request) {
	latest, updated := a.d.Balances.Latest()

	resp := &APIBalancesResponse{
		Status:    "ok",
		Balances:  make([]BalanceJSON, 0, len(latest)),
		UpdatedAt: unixOrZero(updated),
	}
	for _, b := range latest {
		resp.Balances = append(resp.Balances, BalanceJSON{
			ChainID:   b.ChainID,
			Symbol:    b.Symbol,
			Raw:       b.RawAmount.String(),
			Decimals:  b.Decimals,
			Formatted: b.Formatted,
		})
	}
	total, decimals := balances.Total(latest)
	resp.Total = codec.FormatUnits(total, decimals)

	responseJSON(w, resp, http.StatusOK)
}

func (a *API) decimals(chainID int) int {
	return a.d.Chains[chainID].TokenDecimals
}

func (a *API) Positions(w http.ResponseWriter, r *http.Request) {
	positions, updated := a.d.Positions.Positions()

	resp := &APIPositionsResponse{
		Status:    "ok",
		Positions: make([]PositionJSON, 0, len(positions)),
		UpdatedAt: unixOrZero(updated),
	}
	for _, p := range positions {
		decimals := a.decimals(p.ChainID)
		resp.Positions = append(resp.Positions, PositionJSON{
			ChainID:       p.ChainID,
			StrategyHash:  p.StrategyHash.Hex(),
			Token:         p.Token.Hex(),
			Liquidity:     codec.FormatUnits(p.RawLiquidity, decimals),
			RawLiquidity:  p.RawLiquidity.String(),
			FeesEarned:    codec.FormatUnits(p.RawFeesEarned, decimals),
			RawFeesEarned: p.RawFeesEarned.String(),
			LoanCount:     p.LoanCount,
			LastActivity:  unixOrZero(p.LastActivity),
			Active:        p.IsActive,
		})
	}

	responseJSON(w, resp, http.StatusOK)
}

func activityJSON(a reconciler.LoanActivity, decimals int) ActivityJSON {
	return ActivityJSON{
		ID:           a.ID.Hex(),
		ChainID:      a.ChainID,
		Counterparty: a.Counterparty.Hex(),
		Amount:       codec.FormatUnits(a.RawAmount, decimals),
		Fee:          codec.FormatUnits(a.RawFee, decimals),
		StrategyHash: a.StrategyHash.Hex(),
		Block:        a.BlockNumber,
		Timestamp:    unixOrZero(a.BlockTimestamp),
	}
}

// Activity returns the most recent loans, ?limit= caps the count
func (a *API) Activity(w http.ResponseWriter, r *http.Request) {
	limit := a.d.ActivityLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			responseJSON(w, &APIResponse{
				Status:  "config",
				Field:   "limit",
				Message: "limit must be a positive integer",
			}, http.StatusBadRequest)
			return
		}
		limit = n
	}

	activity, updated := a.d.Positions.Activity()
	if len(activity) > limit {
		activity = activity[:limit]
	}

	resp := &APIActivityResponse{
		Status:    "ok",
		Activity:  make([]ActivityJSON, 0, len(activity)),
		UpdatedAt: unixOrZero(updated),
	}
	for _, act := range activity {
		resp.Activity = append(resp.Activity, activityJSON(act, a.decimals(act.ChainID)))
	}

	responseJSON(w, resp, http.StatusOK)
}
