package handlers

type APIResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Field   string `json:"field"`
}

type APIStateResponse struct {
	Status           string      `json:"status"`
	Account          string      `json:"account"`
	DefaultChain     int         `json:"defaultChain"`
	Chains           []ChainInfo `json:"chains"`
	BalancesUpdated  int64       `json:"balancesUpdated"`
	PositionsUpdated int64       `json:"positionsUpdated"`
	BridgesInFlight  int         `json:"bridgesInFlight"`
	Busy             bool        `json:"busy"`
}

type ChainInfo struct {
	ChainID    int    `json:"chainId"`
	Name       string `json:"name"`
	Token      string `json:"token"`
	Strategies bool   `json:"strategies"`
	Bridge     bool   `json:"bridge"`
}

type BalanceJSON struct {
	ChainID   int    `json:"chainId"`
	Symbol    string `json:"symbol"`
	Raw       string `json:"raw"`
	Decimals  int    `json:"decimals"`
	Formatted string `json:"formatted"`
}

type APIBalancesResponse struct {
	Status    string        `json:"status"`
	Balances  []BalanceJSON `json:"balances"`
	Total     string        `json:"total"`
	UpdatedAt int64         `json:"updatedAt"`
}

type PositionJSON struct {
	ChainID       int    `json:"chainId"`
	StrategyHash  string `json:"strategyHash"`
	Token         string `json:"token"`
	Liquidity     string `json:"liquidity"`
	RawLiquidity  string `json:"rawLiquidity"`
	FeesEarned    string `json:"feesEarned"`
	RawFeesEarned string `json:"rawFeesEarned"`
	LoanCount     int    `json:"loanCount"`
	LastActivity  int64  `json:"lastActivity,omitempty"`
	Active        bool   `json:"active"`
}

type APIPositionsResponse struct {
	Status    string         `json:"status"`
	Positions []PositionJSON `json:"positions"`
	UpdatedAt int64          `json:"updatedAt"`
}

type ActivityJSON struct {
	ID           string `json:"id"`
	ChainID      int    `json:"chainId"`
	Counterparty string `json:"counterparty"`
	Amount       string `json:"amount"`
	Fee          string `json:"fee"`
	StrategyHash string `json:"strategyHash"`
	Block        uint64 `json:"block"`
	Timestamp    int64  `json:"timestamp"`
}

type APIActivityResponse struct {
	Status    string         `json:"status"`
	Activity  []ActivityJSON `json:"activity"`
	UpdatedAt int64          `json:"updatedAt"`
}

// StrategyJSON carries the strategy fields; the salt is 0x-prefixed bytes32
type StrategyJSON struct {
	Maker  string `json:"maker"`
	Token  string `json:"token"`
	Salt   string `json:"salt"`
	FeeBps uint64 `json:"feeBps"`
}

type LegJSON struct {
	Outcome string `json:"outcome"`
	TxHash  string `json:"txHash,omitempty"`
	Error   string `json:"error,omitempty"`
}

type APIFlowResponse struct {
	Status       string        `json:"status"`
	Message      string        `json:"message,omitempty"`
	Strategy     *StrategyJSON `json:"strategy,omitempty"`
	StrategyHash string        `json:"strategyHash,omitempty"`
	TxHash       string        `json:"txHash,omitempty"`
	Legs         []LegJSON     `json:"legs"`
}

type APIBridgeResponse struct {
	Status   string `json:"status"`
	ID       string `json:"id"`
	Phase    string `json:"phase"`
	FailedIn string `json:"failedIn,omitempty"`
	Message  string `json:"message,omitempty"`
}

type CreateStrategyRequest struct {
	ChainID int    `json:"chainId"`
	Amount  string `json:"amount"`
	FeeBps  uint64 `json:"feeBps"`
}

type DepositRequest struct {
	ChainID  int          `json:"chainId"`
	Amount   string       `json:"amount"`
	Strategy StrategyJSON `json:"strategy"`
}

type WithdrawRequest struct {
	ChainID  int          `json:"chainId"`
	Strategy StrategyJSON `json:"strategy"`
}

type SendRequest struct {
	ChainID int    `json:"chainId"`
	To      string `json:"to"`
	// used when To is empty
	AddressBookID string `json:"addressBookId"`
	Amount        string `json:"amount"`
}

type BridgeRequest struct {
	SourceChainID      int    `json:"sourceChainId"`
	DestinationChainID int    `json:"destinationChainId"`
	Amount             string `json:"amount"`
	Recipient          string `json:"recipient"`
}

type AddressBookRequest struct {
	Name    string `json:"name"`
	ChainID int    `json:"chainId"`
	Address string `json:"address"`
}
