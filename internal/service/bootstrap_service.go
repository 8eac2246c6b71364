package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"

	"github.com/alanyoungcy/binaryoptions/internal/crypto"
	"github.com/alanyoungcy/binaryoptions/internal/domain"
	"github.com/alanyoungcy/binaryoptions/internal/ledger"
	"github.com/alanyoungcy/binaryoptions/internal/program"
	"github.com/alanyoungcy/binaryoptions/internal/token"
)

// Submitter is the part of the ledger the bootstrap needs.
type Submitter interface {
	RecentHash() solana.Hash
	SubmitTransaction(ctx context.Context, tx *solana.Transaction) (*ledger.Receipt, error)
	Account(ctx context.Context, addr solana.PublicKey) (domain.Account, error)
}

// BootstrapParams describe the market to bring up. A zero AssetMint creates
// a new mint controlled by the admin.
type BootstrapParams struct {
	AssetMint      solana.PublicKey
	Decimals       uint8
	FeeRatePercent uint64
}

// BootstrapResult lists the market's addresses after bootstrap.
type BootstrapResult struct {
	AssetMint   solana.PublicKey
	Config      solana.PublicKey
	Vault       solana.PublicKey
	AdminToken  solana.PublicKey
	CreatedMint bool
	Initialized bool
}

// BootstrapService brings a market up with the admin key. Every step checks
// current state first, so running it again is harmless.
type BootstrapService struct {
	ledger    Submitter
	signer    *crypto.Signer
	programID solana.PublicKey
	logger    *slog.Logger
}

// NewBootstrapService creates a BootstrapService.
func NewBootstrapService(l Submitter, signer *crypto.Signer, programID solana.PublicKey, logger *slog.Logger) *BootstrapService {
	return &BootstrapService{
		ledger:    l,
		signer:    signer,
		programID: programID,
		logger:    logger.With(slog.String("component", "bootstrap")),
	}
}

// Bootstrap creates the mint if needed, the admin's token account, the
// market configuration and applies the fee rate.
func (s *BootstrapService) Bootstrap(ctx context.Context, p BootstrapParams) (BootstrapResult, error) {
	var res BootstrapResult
	if p.FeeRatePercent > 100 {
		return res, fmt.Errorf("bootstrap: %w", program.ErrInvalidFeeRate)
	}
	admin := s.signer.PublicKey()

	_, cfgAddr, err := program.ConfigAddress(s.programID)
	if err != nil {
		return res, fmt.Errorf("bootstrap: derive config: %w", err)
	}
	res.Config = cfgAddr

	existing, err := s.loadConfig(ctx, cfgAddr)
	if err != nil {
		return res, err
	}
	if existing != nil {
		if !p.AssetMint.IsZero() && !p.AssetMint.Equals(existing.AssetMint) {
			return res, fmt.Errorf("bootstrap: market already initialized for mint %s", existing.AssetMint)
		}
		if !existing.Admin.Equals(admin) {
			return res, fmt.Errorf("bootstrap: market admin is %s, not %s: %w", existing.Admin, admin, domain.ErrUnauthorized)
		}
		p.AssetMint = existing.AssetMint
	}

	if p.AssetMint.IsZero() {
		mint, err := s.createMint(ctx, p.Decimals)
		if err != nil {
			return res, err
		}
		p.AssetMint = mint
		res.CreatedMint = true
	} else if existing == nil {
		acct, err := s.ledger.Account(ctx, p.AssetMint)
		if err != nil {
			return res, fmt.Errorf("bootstrap: asset mint %s: %w", p.AssetMint, err)
		}
		if _, err := token.DecodeMint(acct); err != nil {
			return res, fmt.Errorf("bootstrap: asset mint %s: %w", p.AssetMint, err)
		}
	}
	res.AssetMint = p.AssetMint

	addrs, err := program.MarketAddresses(s.programID, p.AssetMint)
	if err != nil {
		return res, fmt.Errorf("bootstrap: derive market addresses: %w", err)
	}
	res.Vault = addrs.Vault

	if res.AdminToken, err = s.ensureTokenAccount(ctx, admin, p.AssetMint); err != nil {
		return res, err
	}

	if existing == nil {
		ix, err := program.NewInitializeInstruction(s.programID, admin, p.AssetMint)
		if err != nil {
			return res, err
		}
		if _, err := s.submit(ctx, "initialize", []solana.Instruction{ix}); err != nil {
			return res, err
		}
		res.Initialized = true
		existing = &program.GlobalConfig{}
	}

	if existing.FeeRatePercent != p.FeeRatePercent {
		ix, err := program.NewSetFeeRateInstruction(s.programID, admin, p.FeeRatePercent)
		if err != nil {
			return res, err
		}
		if _, err := s.submit(ctx, "set_fee_rate", []solana.Instruction{ix}); err != nil {
			return res, err
		}
	}

	s.logger.InfoContext(ctx, "bootstrap: market ready",
		slog.String("asset_mint", res.AssetMint.String()),
		slog.String("config", res.Config.String()),
		slog.String("vault", res.Vault.String()),
		slog.Uint64("fee_rate_percent", p.FeeRatePercent),
	)
	return res, nil
}

func (s *BootstrapService) loadConfig(ctx context.Context, addr solana.PublicKey) (*program.GlobalConfig, error) {
	acct, err := s.ledger.Account(ctx, addr)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("bootstrap: load config: %w", err)
	}
	cfg, err := program.DecodeConfig(s.programID, acct)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: decode config: %w", err)
	}
	return &cfg, nil
}

func (s *BootstrapService) createMint(ctx context.Context, decimals uint8) (solana.PublicKey, error) {
	mintKey, err := solana.NewRandomPrivateKey()
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("bootstrap: generate mint key: %w", err)
	}
	mint := mintKey.PublicKey()
	ixs := []solana.Instruction{token.NewInitializeMintInstruction(mint, s.signer.PublicKey(), decimals)}
	if _, err := s.submit(ctx, "initialize_mint", ixs, mintKey); err != nil {
		return solana.PublicKey{}, err
	}
	return mint, nil
}

func (s *BootstrapService) ensureTokenAccount(ctx context.Context, owner, mint solana.PublicKey) (solana.PublicKey, error) {
	ata, err := token.AssociatedAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("bootstrap: derive token account: %w", err)
	}
	if _, err := s.ledger.Account(ctx, ata); err == nil {
		return ata, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return solana.PublicKey{}, fmt.Errorf("bootstrap: load token account: %w", err)
	}
	ixs := []solana.Instruction{token.NewInitializeAccountInstruction(s.signer.PublicKey(), ata, owner, mint)}
	if _, err := s.submit(ctx, "initialize_account", ixs); err != nil {
		return solana.PublicKey{}, err
	}
	return ata, nil
}

func (s *BootstrapService) submit(ctx context.Context, step string, ixs []solana.Instruction, cosigners ...solana.PrivateKey) (*ledger.Receipt, error) {
	tx, err := s.signer.SignTransaction(s.ledger.RecentHash(), ixs, cosigners...)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %s: %w", step, err)
	}
	rcpt, err := s.ledger.SubmitTransaction(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %s: %w", step, err)
	}
	s.logger.InfoContext(ctx, "bootstrap: step committed",
		slog.String("step", step),
		slog.String("signature", rcpt.Signature.String()),
	)
	return rcpt, nil
}
