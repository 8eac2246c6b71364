// Package program implements the binary-options market: a global config
// created once by an admin, an escrow vault owned by a derived authority, and
// prediction records that traders open and the admin settles after expiry.
//
// Every guard failure returns an *Error, which aborts the whole transaction;
// no partial state is ever committed.
package program

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/alanyoungcy/binaryoptions/internal/codec"
	"github.com/alanyoungcy/binaryoptions/internal/derive"
	"github.com/alanyoungcy/binaryoptions/internal/domain"
	"github.com/alanyoungcy/binaryoptions/internal/ledger"
	"github.com/alanyoungcy/binaryoptions/internal/token"
)

// Program is the binary-options processor.
type Program struct {
	id            solana.PublicKey
	authority     solana.PublicKey
	authorityBump uint8
	config        solana.PublicKey
	configBump    uint8
}

var _ ledger.Program = (*Program)(nil)

// NewProgram creates the processor for programID.
func NewProgram(programID solana.PublicKey) (*Program, error) {
	p := &Program{id: programID}
	var err error
	if p.authority, p.authorityBump, err = derive.Find(programID, authoritySeed); err != nil {
		return nil, err
	}
	if p.config, p.configBump, err = derive.Find(programID, configSeed, p.authority.Bytes()); err != nil {
		return nil, err
	}
	return p, nil
}

// ID implements ledger.Program.
func (p *Program) ID() solana.PublicKey { return p.id }

// Process implements ledger.Program.
func (p *Program) Process(ic *ledger.InvokeContext, accounts []*solana.AccountMeta, data []byte) error {
	d, args, err := codec.Split(data)
	if err != nil {
		return ErrInvalidInstruction
	}
	switch d {
	case ixInitialize:
		return p.initialize(ic, accounts)
	case ixCreatePrediction:
		var a CreatePredictionArgs
		if err := codec.DecodeArgs(args, &a); err != nil {
			return ErrInvalidInstruction
		}
		return p.createPrediction(ic, accounts, a)
	case ixSettlePrediction:
		var a SettlePredictionArgs
		if err := codec.DecodeArgs(args, &a); err != nil {
			return ErrInvalidInstruction
		}
		return p.settlePrediction(ic, accounts, a)
	case ixSetFeeRate:
		var a SetFeeRateArgs
		if err := codec.DecodeArgs(args, &a); err != nil {
			return ErrInvalidInstruction
		}
		return p.setFeeRate(ic, accounts, a)
	case ixWithdrawFees:
		var a WithdrawFeesArgs
		if err := codec.DecodeArgs(args, &a); err != nil {
			return ErrInvalidInstruction
		}
		return p.withdrawFees(ic, accounts, a)
	default:
		return ErrInvalidInstruction
	}
}

func keys(accounts []*solana.AccountMeta, n int) ([]solana.PublicKey, error) {
	if len(accounts) < n {
		return nil, fmt.Errorf("%w: expected %d accounts, got %d", ErrInvalidInstruction, n, len(accounts))
	}
	out := make([]solana.PublicKey, n)
	for i := 0; i < n; i++ {
		out[i] = accounts[i].PublicKey
	}
	return out, nil
}

func (p *Program) loadConfig(ic *ledger.InvokeContext, authority, config solana.PublicKey) (GlobalConfig, error) {
	if !authority.Equals(p.authority) || !config.Equals(p.config) {
		return GlobalConfig{}, ErrInvalidAccount
	}
	acct, err := ic.Load(config)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return GlobalConfig{}, ErrAccountNotInitialized
	}
	if err != nil {
		return GlobalConfig{}, err
	}
	return DecodeConfig(p.id, acct)
}

func (p *Program) storeConfig(ic *ledger.InvokeContext, cfg GlobalConfig) error {
	data, err := encodeConfig(cfg)
	if err != nil {
		return err
	}
	return ic.Store(p.config, data)
}

func loadTokenAccount(ic *ledger.InvokeContext, addr solana.PublicKey) (token.Account, error) {
	acct, err := ic.Load(addr)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return token.Account{}, ErrInvalidTokenAccount
	}
	if err != nil {
		return token.Account{}, err
	}
	ta, err := token.DecodeAccount(acct)
	if err != nil {
		return token.Account{}, ErrInvalidTokenAccount
	}
	return ta, nil
}

// checkTokenAccount verifies that addr holds assetMint for owner.
func checkTokenAccount(ic *ledger.InvokeContext, addr, assetMint, owner solana.PublicKey) (token.Account, error) {
	ta, err := loadTokenAccount(ic, addr)
	if err != nil {
		return ta, err
	}
	if !ta.Mint.Equals(assetMint) {
		return ta, ErrMintMismatch
	}
	if !ta.Owner.Equals(owner) {
		return ta, ErrInvalidTokenAccount
	}
	return ta, nil
}

// initialize creates the config record and the vault.
//
// Accounts: [admin (signer), authority, config (writable), asset mint,
// vault (writable), token program].
func (p *Program) initialize(ic *ledger.InvokeContext, accounts []*solana.AccountMeta) error {
	k, err := keys(accounts, 6)
	if err != nil {
		return err
	}
	admin, authority, config, mint, vault, tokenProgram := k[0], k[1], k[2], k[3], k[4], k[5]

	if !ic.IsSigner(admin) {
		return ErrUnauthorized
	}
	if !authority.Equals(p.authority) || !config.Equals(p.config) || !tokenProgram.Equals(token.ProgramID) {
		return ErrInvalidAccount
	}
	exists, err := ic.Exists(config)
	if err != nil {
		return err
	}
	if exists {
		return ErrAlreadyInitialized
	}

	mintAcct, err := ic.Load(mint)
	if err != nil {
		return ErrMintMismatch
	}
	if _, err := token.DecodeMint(mintAcct); err != nil {
		return ErrMintMismatch
	}
	addrs, err := MarketAddresses(p.id, mint)
	if err != nil {
		return err
	}
	if !vault.Equals(addrs.Vault) {
		return ErrInvalidAccount
	}

	cfg := GlobalConfig{
		Admin:             admin,
		AssetMint:         mint,
		Vault:             vault,
		TotalBalance:      0,
		FeeRatePercent:    0,
		PredictionCounter: 1,
		AuthorityBump:     addrs.AuthorityBump,
		VaultBump:         addrs.VaultBump,
	}
	data, err := encodeConfig(cfg)
	if err != nil {
		return err
	}
	if err := ic.Create(config, data, derive.WithBump(derive.Seeds(configSeed, authority.Bytes()), p.configBump)); err != nil {
		return err
	}

	vaultExists, err := ic.Exists(vault)
	if err != nil {
		return err
	}
	if vaultExists {
		// The vault address is deterministic, so anyone may have opened it
		// already. It is still only spendable by the authority.
		if _, err := checkTokenAccount(ic, vault, mint, authority); err != nil {
			return err
		}
	} else if err := ic.Invoke(token.ProgramID, token.InitializeAccountMetas(admin, vault, authority, mint), token.InitializeAccountData()); err != nil {
		return err
	}

	ic.Log("initialized market for mint %s, admin %s", mint, admin)
	return ic.Emit(domain.EventConfigInitialized, ConfigInitializedEvent{
		Config:    config.String(),
		Admin:     admin.String(),
		AssetMint: mint.String(),
		Vault:     vault.String(),
	})
}

// createPrediction escrows the stake and records the bet.
//
// Accounts: [trader (signer), authority, config (writable), prediction
// (writable), trader token account (writable), vault (writable), token
// program].
func (p *Program) createPrediction(ic *ledger.InvokeContext, accounts []*solana.AccountMeta, args CreatePredictionArgs) error {
	k, err := keys(accounts, 7)
	if err != nil {
		return err
	}
	trader, authority, config, predAddr, traderToken, vault, tokenProgram := k[0], k[1], k[2], k[3], k[4], k[5], k[6]

	if !ic.IsSigner(trader) {
		return ErrUnauthorized
	}
	cfg, err := p.loadConfig(ic, authority, config)
	if err != nil {
		return err
	}
	if args.Amount == 0 {
		return ErrInvalidAmount
	}
	if args.ExpiryTimestamp <= args.StartTimestamp {
		return ErrInvalidTimestampRange
	}
	if !args.TokenMint.Equals(cfg.AssetMint) {
		return ErrMintMismatch
	}
	if !args.PredictionType.Valid() {
		return ErrInvalidPredictionType
	}
	if !vault.Equals(cfg.Vault) || !tokenProgram.Equals(token.ProgramID) {
		return ErrInvalidAccount
	}

	id := cfg.PredictionCounter
	expected, bump, err := PredictionAddress(p.id, id)
	if err != nil {
		return err
	}
	if !predAddr.Equals(expected) {
		return ErrInvalidAccount
	}
	if _, err := checkTokenAccount(ic, traderToken, cfg.AssetMint, trader); err != nil {
		return err
	}

	nextCounter, err := checkedAdd(id, 1)
	if err != nil {
		return err
	}
	nextTotal, err := checkedAdd(cfg.TotalBalance, args.Amount)
	if err != nil {
		return err
	}

	if err := ic.Invoke(token.ProgramID, token.TransferMetas(traderToken, vault, trader), token.TransferData(args.Amount)); err != nil {
		return err
	}

	rec := PredictionRecord{
		ID:              id,
		Trader:          trader,
		Amount:          args.Amount,
		TokenMint:       args.TokenMint,
		StartTimestamp:  args.StartTimestamp,
		ExpiryTimestamp: args.ExpiryTimestamp,
		StartPrice:      args.StartPrice,
		EndPrice:        args.EndPrice,
		PredictionType:  args.PredictionType,
	}
	data, err := encodePrediction(rec)
	if err != nil {
		return err
	}
	if err := ic.Create(predAddr, data, derive.WithBump(derive.Seeds(predictionSeed, derive.U64(id)), bump)); err != nil {
		return err
	}

	cfg.PredictionCounter = nextCounter
	cfg.TotalBalance = nextTotal
	if err := p.storeConfig(ic, cfg); err != nil {
		return err
	}

	ic.Log("prediction %d: %s %d by %s", id, rec.PredictionType, rec.Amount, trader)
	return ic.Emit(domain.EventPredictionCreated, PredictionEvent{
		ID:              id,
		Address:         predAddr.String(),
		Trader:          trader.String(),
		Amount:          rec.Amount,
		Direction:       rec.PredictionType.String(),
		StartPrice:      rec.StartPrice,
		ExpiryTimestamp: rec.ExpiryTimestamp,
	})
}

// settlePrediction evaluates the outcome and pays winners from the vault.
//
// Accounts: [admin (signer), authority, config (writable), prediction
// (writable), vault (writable), trader receiving token account (writable),
// token program].
func (p *Program) settlePrediction(ic *ledger.InvokeContext, accounts []*solana.AccountMeta, args SettlePredictionArgs) error {
	k, err := keys(accounts, 7)
	if err != nil {
		return err
	}
	admin, authority, config, predAddr, vault, receive, tokenProgram := k[0], k[1], k[2], k[3], k[4], k[5], k[6]

	cfg, err := p.loadConfig(ic, authority, config)
	if err != nil {
		return err
	}
	if !ic.IsSigner(admin) || !admin.Equals(cfg.Admin) {
		return ErrUnauthorized
	}

	expected, _, err := PredictionAddress(p.id, args.PredictionID)
	if err != nil {
		return err
	}
	if !predAddr.Equals(expected) {
		return ErrInvalidAccount
	}
	predAcct, err := ic.Load(predAddr)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return ErrAccountNotInitialized
	}
	if err != nil {
		return err
	}
	rec, err := DecodePrediction(p.id, predAcct)
	if err != nil {
		return err
	}
	if rec.IsSettled {
		return ErrAlreadySettled
	}
	if ic.Now().Unix() < rec.ExpiryTimestamp {
		return ErrNotYetExpired
	}
	if !vault.Equals(cfg.Vault) || !tokenProgram.Equals(token.ProgramID) {
		return ErrInvalidAccount
	}
	if _, err := checkTokenAccount(ic, receive, cfg.AssetMint, rec.Trader); err != nil {
		return err
	}

	winning := IsWinning(rec.PredictionType, rec.StartPrice, args.EndPrice)
	payout, fee, err := Payout(rec.Amount, cfg.FeeRatePercent, winning)
	if err != nil {
		return err
	}
	nextTotal, err := checkedSub(cfg.TotalBalance, rec.Amount)
	if err != nil {
		return err
	}

	if payout > 0 {
		vaultAcct, err := loadTokenAccount(ic, vault)
		if err != nil {
			return err
		}
		if vaultAcct.Amount < payout {
			return ErrInsufficientVaultBalance
		}
		err = ic.Invoke(token.ProgramID,
			token.TransferMetas(vault, receive, authority),
			token.TransferData(payout),
			authoritySignerSeeds(cfg.AuthorityBump),
		)
		if errors.Is(err, token.ErrInsufficientFunds) {
			return ErrInsufficientVaultBalance
		}
		if err != nil {
			return err
		}
	}

	rec.EndPrice = args.EndPrice
	rec.IsSettled = true
	rec.IsWinning = winning
	data, err := encodePrediction(rec)
	if err != nil {
		return err
	}
	if err := ic.Store(predAddr, data); err != nil {
		return err
	}
	cfg.TotalBalance = nextTotal
	if err := p.storeConfig(ic, cfg); err != nil {
		return err
	}

	ic.Log("prediction %d settled: winning=%t payout=%d fee=%d", rec.ID, winning, payout, fee)
	return ic.Emit(domain.EventPredictionSettled, PredictionEvent{
		ID:              rec.ID,
		Address:         predAddr.String(),
		Trader:          rec.Trader.String(),
		Amount:          rec.Amount,
		Direction:       rec.PredictionType.String(),
		StartPrice:      rec.StartPrice,
		EndPrice:        rec.EndPrice,
		ExpiryTimestamp: rec.ExpiryTimestamp,
		Winning:         winning,
		Payout:          payout,
		Fee:             fee,
	})
}

// setFeeRate replaces the stored fee rate.
//
// Accounts: [admin (signer), authority, config (writable)].
func (p *Program) setFeeRate(ic *ledger.InvokeContext, accounts []*solana.AccountMeta, args SetFeeRateArgs) error {
	k, err := keys(accounts, 3)
	if err != nil {
		return err
	}
	cfg, err := p.loadConfig(ic, k[1], k[2])
	if err != nil {
		return err
	}
	if !ic.IsSigner(k[0]) || !k[0].Equals(cfg.Admin) {
		return ErrUnauthorized
	}
	if args.FeeRatePercent > MaxFeeRatePercent {
		return ErrInvalidFeeRate
	}
	prev := cfg.FeeRatePercent
	cfg.FeeRatePercent = args.FeeRatePercent
	if err := p.storeConfig(ic, cfg); err != nil {
		return err
	}
	return ic.Emit(domain.EventFeeRateUpdated, FeeRateEvent{Previous: prev, Current: args.FeeRatePercent})
}

// withdrawFees moves protocol-owned balance out of the vault. Stakes of open
// predictions are never withdrawable.
//
// Accounts: [admin (signer), authority, config, vault (writable),
// destination token account (writable), token program].
func (p *Program) withdrawFees(ic *ledger.InvokeContext, accounts []*solana.AccountMeta, args WithdrawFeesArgs) error {
	k, err := keys(accounts, 6)
	if err != nil {
		return err
	}
	admin, authority, config, vault, destination, tokenProgram := k[0], k[1], k[2], k[3], k[4], k[5]

	cfg, err := p.loadConfig(ic, authority, config)
	if err != nil {
		return err
	}
	if !ic.IsSigner(admin) || !admin.Equals(cfg.Admin) {
		return ErrUnauthorized
	}
	if args.Amount == 0 {
		return ErrInvalidAmount
	}
	if !vault.Equals(cfg.Vault) || !tokenProgram.Equals(token.ProgramID) {
		return ErrInvalidAccount
	}
	vaultAcct, err := loadTokenAccount(ic, vault)
	if err != nil {
		return err
	}
	surplus, err := checkedSub(vaultAcct.Amount, cfg.TotalBalance)
	if err != nil {
		return err
	}
	if args.Amount > surplus {
		return ErrInsufficientVaultBalance
	}
	dest, err := loadTokenAccount(ic, destination)
	if err != nil {
		return err
	}
	if !dest.Mint.Equals(cfg.AssetMint) {
		return ErrMintMismatch
	}

	if err := ic.Invoke(token.ProgramID,
		token.TransferMetas(vault, destination, authority),
		token.TransferData(args.Amount),
		authoritySignerSeeds(cfg.AuthorityBump),
	); err != nil {
		return err
	}
	return ic.Emit(domain.EventFeesWithdrawn, FeesWithdrawnEvent{Amount: args.Amount, Destination: destination.String()})
}
