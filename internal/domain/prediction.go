package domain

// Prediction is the decoded, display-friendly form of a prediction record.
type Prediction struct {
	ID              uint64 `json:"id"`
	Address         string `json:"address"`
	Trader          string `json:"trader"`
	Amount          uint64 `json:"amount"`
	TokenMint       string `json:"token_mint"`
	StartTimestamp  int64  `json:"start_timestamp"`
	ExpiryTimestamp int64  `json:"expiry_timestamp"`
	StartPrice      uint64 `json:"start_price"`
	EndPrice        uint64 `json:"end_price"`
	Direction       string `json:"direction"`
	Settled         bool   `json:"settled"`
	Winning         bool   `json:"winning"`
}

// Status reports "open" or "settled".
func (p Prediction) Status() string {
	if p.Settled {
		return "settled"
	}
	return "open"
}

// MarketConfig is the decoded form of the global configuration record.
type MarketConfig struct {
	Address           string `json:"address"`
	Admin             string `json:"admin"`
	AssetMint         string `json:"asset_mint"`
	Vault             string `json:"vault"`
	VaultBalance      uint64 `json:"vault_balance"`
	TotalBalance      uint64 `json:"total_balance"`
	FeeRatePercent    uint64 `json:"fee_rate_percent"`
	PredictionCounter uint64 `json:"prediction_counter"`
}

// ProtocolBalance is the part of the vault not backing open stakes.
func (c MarketConfig) ProtocolBalance() uint64 {
	if c.VaultBalance < c.TotalBalance {
		return 0
	}
	return c.VaultBalance - c.TotalBalance
}
