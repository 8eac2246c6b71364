package program

import (
	"github.com/gagliardetto/solana-go"

	"github.com/alanyoungcy/binaryoptions/internal/derive"
	"github.com/alanyoungcy/binaryoptions/internal/token"
)

// Seed namespaces.
const (
	authoritySeed  = "auth"
	configSeed     = "config"
	predictionSeed = "prediction"
)

// DefaultProgramID is the id the daemon registers the program under.
var DefaultProgramID = derive.NamedID("binary_options")

// Addresses are the fixed accounts of one market.
type Addresses struct {
	Authority     solana.PublicKey
	AuthorityBump uint8
	Config        solana.PublicKey
	ConfigBump    uint8
	Vault         solana.PublicKey
	VaultBump     uint8
}

// MarketAddresses derives the authority, config and vault of the market for
// assetMint.
func MarketAddresses(programID, assetMint solana.PublicKey) (Addresses, error) {
	var a Addresses
	var err error
	if a.Authority, a.AuthorityBump, err = derive.Find(programID, authoritySeed); err != nil {
		return a, err
	}
	if a.Config, a.ConfigBump, err = derive.Find(programID, configSeed, a.Authority.Bytes()); err != nil {
		return a, err
	}
	if a.Vault, a.VaultBump, err = derive.AssociatedTokenAddress(a.Authority, assetMint, token.ProgramID); err != nil {
		return a, err
	}
	return a, nil
}

// ConfigAddress derives the config address, which does not depend on the mint.
func ConfigAddress(programID solana.PublicKey) (solana.PublicKey, solana.PublicKey, error) {
	auth, _, err := derive.Find(programID, authoritySeed)
	if err != nil {
		return solana.PublicKey{}, solana.PublicKey{}, err
	}
	cfg, _, err := derive.Find(programID, configSeed, auth.Bytes())
	if err != nil {
		return solana.PublicKey{}, solana.PublicKey{}, err
	}
	return auth, cfg, nil
}

// PredictionAddress derives the record slot for a prediction id.
func PredictionAddress(programID solana.PublicKey, id uint64) (solana.PublicKey, uint8, error) {
	return derive.Find(programID, predictionSeed, derive.U64(id))
}

func authoritySignerSeeds(bump uint8) [][]byte {
	return derive.WithBump(derive.Seeds(authoritySeed), bump)
}
