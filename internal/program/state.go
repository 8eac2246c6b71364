package program

import (
	"github.com/gagliardetto/solana-go"

	"github.com/alanyoungcy/binaryoptions/internal/codec"
	"github.com/alanyoungcy/binaryoptions/internal/domain"
)

var (
	globalConfigTag = codec.AccountDiscriminator("GlobalConfig")
	predictionTag   = codec.AccountDiscriminator("PredictionRecord")
)

// GlobalConfig is the market's singleton record.
type GlobalConfig struct {
	Admin             solana.PublicKey
	AssetMint         solana.PublicKey
	Vault             solana.PublicKey
	TotalBalance      uint64
	FeeRatePercent    uint64
	PredictionCounter uint64
	AuthorityBump     uint8
	VaultBump         uint8
}

// PredictionRecord is one trader's bet. It is created once, settled once and
// never deleted.
type PredictionRecord struct {
	ID              uint64
	Trader          solana.PublicKey
	Amount          uint64
	TokenMint       solana.PublicKey
	StartTimestamp  int64
	ExpiryTimestamp int64
	StartPrice      uint64
	EndPrice        uint64
	PredictionType  PredictionType
	IsSettled       bool
	IsWinning       bool
}

// PredictionTag is the discriminator of prediction records.
func PredictionTag() []byte { return predictionTag.Bytes() }

func encodeConfig(c GlobalConfig) ([]byte, error) { return codec.Encode(globalConfigTag, c) }

func encodePrediction(r PredictionRecord) ([]byte, error) { return codec.Encode(predictionTag, r) }

// DecodeConfig validates the owner and discriminator of acct and decodes it.
func DecodeConfig(programID solana.PublicKey, acct domain.Account) (GlobalConfig, error) {
	var c GlobalConfig
	if !acct.Owner.Equals(programID) {
		return c, ErrInvalidAccount
	}
	if err := codec.Decode(globalConfigTag, acct.Data, &c); err != nil {
		return c, ErrInvalidAccount
	}
	return c, nil
}

// DecodePrediction validates the owner and discriminator of acct and decodes
// it.
func DecodePrediction(programID solana.PublicKey, acct domain.Account) (PredictionRecord, error) {
	var r PredictionRecord
	if !acct.Owner.Equals(programID) {
		return r, ErrInvalidAccount
	}
	if err := codec.Decode(predictionTag, acct.Data, &r); err != nil {
		return r, ErrInvalidAccount
	}
	return r, nil
}
