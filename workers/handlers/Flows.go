package handlers

import (
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	log "github.com/sirupsen/logrus"

	"gococo/codec"
	"gococo/types"
	"gococo/vault"
)

func strategyJSON(s *codec.Strategy) *StrategyJSON {
	if s == nil {
		return nil
	}
	return &StrategyJSON{
		Maker:  s.Maker.Hex(),
		Token:  s.Token.Hex(),
		Salt:   hexutil.Encode(s.Salt[:]),
		FeeBps: s.FeeBps,
	}
}

func (s StrategyJSON) decode() (codec.Strategy, string, error) {
	maker, err := parseAddress("maker", s.Maker)
	if err != nil {
		return codec.Strategy{}, "strategy.maker", err
	}
	token, err := parseAddress("token", s.Token)
	if err != nil {
		return codec.Strategy{}, "strategy.token", err
	}
	salt, err := codec.SaltFromHex(s.Salt)
	if err != nil {
		return codec.Strategy{}, "strategy.salt", err
	}
	return codec.Strategy{Maker: maker, Token: token, Salt: salt, FeeBps: s.FeeBps}, "", nil
}

func (a *API) amount(chainID int, amount string) (*big.Int, error) {
	chain, ok := a.d.Chains[chainID]
	if !ok {
		return nil, fmt.Errorf("%w: chain %d is not configured", types.ErrConfiguration, chainID)
	}
	return codec.ParseUnits(strings.TrimSpace(amount), chain.TokenDecimals)
}

func progressLog(flow string) vault.Progress {
	return func(s vault.Step) {
		log.WithFields(log.Fields{"flow": flow, "step": fmt.Sprintf("%d/%d", s.Index, s.Total)}).
			Printf("%s %s %s", s.Name, s.Outcome, s.TxHash.Hex())
	}
}

// respondFlow writes the legs that ran, with the error kind as status when the flow stopped
func respondFlow(w http.ResponseWriter, res *vault.Result, err error) {
	resp := &APIFlowResponse{Status: "ok", Legs: []LegJSON{}}
	code := http.StatusOK
	if err != nil {
		resp.Status = types.ErrorKind(err)
		resp.Message = err.Error()
		code = statusCode(resp.Status)
	}

	if res != nil {
		resp.Strategy = strategyJSON(res.Strategy)
		if res.Strategy != nil {
			resp.StrategyHash = res.StrategyHash.Hex()
		}
		for _, leg := range res.Legs {
			l := LegJSON{Outcome: leg.Outcome.String()}
			if leg.TxHash != (common.Hash{}) {
				l.TxHash = leg.TxHash.Hex()
			}
			if leg.Err != nil {
				l.Error = leg.Err.Error()
			}
			resp.Legs = append(resp.Legs, l)
		}
		if tx := res.TxHash(); tx != (common.Hash{}) {
			resp.TxHash = tx.Hex()
		}
	}

	responseJSON(w, resp, code)
}

func (a *API) CreateStrategy(w http.ResponseWriter, r *http.Request) {
	var req CreateStrategyRequest
	if !readJSON(w, r, &req) {
		return
	}
	chainID := a.chainOrDefault(req.ChainID)
	amount, err := a.amount(chainID, req.Amount)
	if err != nil {
		responseError(w, err, "amount")
		return
	}
	feeBps := req.FeeBps
	if feeBps == 0 {
		feeBps = a.d.FeeBps
	}

	if !a.busy.TryLock() {
		responseBusy(w)
		return
	}
	defer a.busy.Unlock()

	res, err := a.d.Flows.CreateStrategy(r.Context(), chainID, amount, feeBps, progressLog("strategy"))
	respondFlow(w, res, err)
}

func (a *API) Deposit(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	if !readJSON(w, r, &req) {
		return
	}
	chainID := a.chainOrDefault(req.ChainID)
	amount, err := a.amount(chainID, req.Amount)
	if err != nil {
		responseError(w, err, "amount")
		return
	}
	strategy, field, err := req.Strategy.decode()
	if err != nil {
		responseError(w, err, field)
		return
	}

	if !a.busy.TryLock() {
		responseBusy(w)
		return
	}
	defer a.busy.Unlock()

	res, err := a.d.Flows.Deposit(r.Context(), chainID, strategy, amount, progressLog("deposit"))
	respondFlow(w, res, err)
}

func (a *API) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req WithdrawRequest
	if !readJSON(w, r, &req) {
		return
	}
	chainID := a.chainOrDefault(req.ChainID)
	strategy, field, err := req.Strategy.decode()
	if err != nil {
		responseError(w, err, field)
		return
	}

	if !a.busy.TryLock() {
		responseBusy(w)
		return
	}
	defer a.busy.Unlock()

	res, err := a.d.Flows.Withdraw(r.Context(), chainID, strategy, progressLog("withdraw"))
	respondFlow(w, res, err)
}

// recipient resolves To, or the address book entry when To is empty
func (a *API) recipient(req *SendRequest) (string, error) {
	if req.To != "" || req.AddressBookID == "" {
		return req.To, nil
	}
	records, err := a.d.Store.ListAddressBook(a.d.Account.Hex())
	if err != nil {
		return "", fmt.Errorf("%w: address book: %s", types.ErrNetwork, err.Error())
	}
	for _, rec := range records {
		if rec.ID == req.AddressBookID {
			if req.ChainID == 0 {
				req.ChainID = rec.ChainID
			}
			return rec.Address, nil
		}
	}
	return "", fmt.Errorf("%w: no address book entry %q", types.ErrConfiguration, req.AddressBookID)
}

func (a *API) Send(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if !readJSON(w, r, &req) {
		return
	}
	to, err := a.recipient(&req)
	if err != nil {
		responseError(w, err, "addressBookId")
		return
	}
	recipient, err := parseAddress("to", to)
	if err != nil {
		responseError(w, err, "to")
		return
	}
	chainID := a.chainOrDefault(req.ChainID)
	amount, err := a.amount(chainID, req.Amount)
	if err != nil {
		responseError(w, err, "amount")
		return
	}

	if !a.busy.TryLock() {
		responseBusy(w)
		return
	}
	defer a.busy.Unlock()

	res, err := a.d.Flows.Send(r.Context(), chainID, recipient, amount, progressLog("send"))
	respondFlow(w, res, err)
}
