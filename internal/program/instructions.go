package program

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/alanyoungcy/binaryoptions/internal/codec"
	"github.com/alanyoungcy/binaryoptions/internal/token"
)

var (
	ixInitialize       = codec.InstructionDiscriminator("initialize")
	ixCreatePrediction = codec.InstructionDiscriminator("create_prediction")
	ixSettlePrediction = codec.InstructionDiscriminator("settle_prediction")
	ixSetFeeRate       = codec.InstructionDiscriminator("set_fee_rate")
	ixWithdrawFees     = codec.InstructionDiscriminator("withdraw_fees")
)

// CreatePredictionArgs are the bet parameters. Prices are opaque integers
// supplied by the caller.
type CreatePredictionArgs struct {
	Amount          uint64
	TokenMint       solana.PublicKey
	StartTimestamp  int64
	ExpiryTimestamp int64
	StartPrice      uint64
	EndPrice        uint64
	PredictionType  PredictionType
}

// SettlePredictionArgs identify the prediction and carry the observed price.
type SettlePredictionArgs struct {
	PredictionID uint64
	EndPrice     uint64
}

// SetFeeRateArgs carry the new fee rate in whole percent.
type SetFeeRateArgs struct {
	FeeRatePercent uint64
}

// WithdrawFeesArgs carry the amount of protocol balance to withdraw.
type WithdrawFeesArgs struct {
	Amount uint64
}

func newInstruction(programID solana.PublicKey, metas solana.AccountMetaSlice, d codec.Discriminator, args any) (solana.Instruction, error) {
	data, err := codec.Encode(d, args)
	if err != nil {
		return nil, fmt.Errorf("program: encode instruction: %w", err)
	}
	return solana.NewInstruction(programID, metas, data), nil
}

// NewInitializeInstruction builds initialize for the market of assetMint.
func NewInitializeInstruction(programID, admin, assetMint solana.PublicKey) (solana.Instruction, error) {
	addrs, err := MarketAddresses(programID, assetMint)
	if err != nil {
		return nil, err
	}
	return newInstruction(programID, solana.AccountMetaSlice{
		solana.NewAccountMeta(admin, true, true),
		solana.NewAccountMeta(addrs.Authority, false, false),
		solana.NewAccountMeta(addrs.Config, true, false),
		solana.NewAccountMeta(assetMint, false, false),
		solana.NewAccountMeta(addrs.Vault, true, false),
		solana.NewAccountMeta(token.ProgramID, false, false),
	}, ixInitialize, nil)
}

// NewCreatePredictionInstruction builds create_prediction. predictionID must be
// the market's current prediction counter; traderToken is the account the
// stake is debited from.
func NewCreatePredictionInstruction(programID, trader, traderToken solana.PublicKey, predictionID uint64, args CreatePredictionArgs) (solana.Instruction, error) {
	addrs, err := MarketAddresses(programID, args.TokenMint)
	if err != nil {
		return nil, err
	}
	pred, _, err := PredictionAddress(programID, predictionID)
	if err != nil {
		return nil, err
	}
	return newInstruction(programID, solana.AccountMetaSlice{
		solana.NewAccountMeta(trader, true, true),
		solana.NewAccountMeta(addrs.Authority, false, false),
		solana.NewAccountMeta(addrs.Config, true, false),
		solana.NewAccountMeta(pred, true, false),
		solana.NewAccountMeta(traderToken, true, false),
		solana.NewAccountMeta(addrs.Vault, true, false),
		solana.NewAccountMeta(token.ProgramID, false, false),
	}, ixCreatePrediction, args)
}

// NewSettlePredictionInstruction builds settle_prediction. receive is the
// trader's token account that gets the payout.
func NewSettlePredictionInstruction(programID, admin, assetMint, receive solana.PublicKey, args SettlePredictionArgs) (solana.Instruction, error) {
	addrs, err := MarketAddresses(programID, assetMint)
	if err != nil {
		return nil, err
	}
	pred, _, err := PredictionAddress(programID, args.PredictionID)
	if err != nil {
		return nil, err
	}
	return newInstruction(programID, solana.AccountMetaSlice{
		solana.NewAccountMeta(admin, true, true),
		solana.NewAccountMeta(addrs.Authority, false, false),
		solana.NewAccountMeta(addrs.Config, true, false),
		solana.NewAccountMeta(pred, true, false),
		solana.NewAccountMeta(addrs.Vault, true, false),
		solana.NewAccountMeta(receive, true, false),
		solana.NewAccountMeta(token.ProgramID, false, false),
	}, ixSettlePrediction, args)
}

// NewSetFeeRateInstruction builds set_fee_rate.
func NewSetFeeRateInstruction(programID, admin solana.PublicKey, feeRatePercent uint64) (solana.Instruction, error) {
	auth, cfg, err := ConfigAddress(programID)
	if err != nil {
		return nil, err
	}
	return newInstruction(programID, solana.AccountMetaSlice{
		solana.NewAccountMeta(admin, true, true),
		solana.NewAccountMeta(auth, false, false),
		solana.NewAccountMeta(cfg, true, false),
	}, ixSetFeeRate, SetFeeRateArgs{FeeRatePercent: feeRatePercent})
}

// NewWithdrawFeesInstruction builds withdraw_fees paying into destination.
func NewWithdrawFeesInstruction(programID, admin, assetMint, destination solana.PublicKey, amount uint64) (solana.Instruction, error) {
	addrs, err := MarketAddresses(programID, assetMint)
	if err != nil {
		return nil, err
	}
	return newInstruction(programID, solana.AccountMetaSlice{
		solana.NewAccountMeta(admin, true, true),
		solana.NewAccountMeta(addrs.Authority, false, false),
		solana.NewAccountMeta(addrs.Config, false, false),
		solana.NewAccountMeta(addrs.Vault, true, false),
		solana.NewAccountMeta(destination, true, false),
		solana.NewAccountMeta(token.ProgramID, false, false),
	}, ixWithdrawFees, WithdrawFeesArgs{Amount: amount})
}
