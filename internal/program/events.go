package program

// ConfigInitializedEvent is emitted by initialize.
type ConfigInitializedEvent struct {
	Config    string `json:"config"`
	Admin     string `json:"admin"`
	AssetMint string `json:"asset_mint"`
	Vault     string `json:"vault"`
}

// PredictionEvent is emitted when a prediction is created or settled.
type PredictionEvent struct {
	ID              uint64 `json:"id"`
	Address         string `json:"address"`
	Trader          string `json:"trader"`
	Amount          uint64 `json:"amount"`
	Direction       string `json:"direction"`
	StartPrice      uint64 `json:"start_price"`
	EndPrice        uint64 `json:"end_price,omitempty"`
	ExpiryTimestamp int64  `json:"expiry_timestamp"`
	Winning         bool   `json:"winning"`
	Payout          uint64 `json:"payout"`
	Fee             uint64 `json:"fee"`
}

// FeeRateEvent is emitted by set_fee_rate.
type FeeRateEvent struct {
	Previous uint64 `json:"previous"`
	Current  uint64 `json:"current"`
}

// FeesWithdrawnEvent is emitted by withdraw_fees.
type FeesWithdrawnEvent struct {
	Amount      uint64 `json:"amount"`
	Destination string `json:"destination"`
}
