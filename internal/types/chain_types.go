// Package types contains shared type definitions used across multiple packages
package types

import (
	"fmt"
	"math/big"

	"github.com/yourorg/predictpool-client/internal/config"
)

// SupportedChain names a network the client can stake on
type SupportedChain string

// Supported networks
const (
	ChainMonadTestnet SupportedChain = "monad-testnet"
	ChainCustom       SupportedChain = "custom"
)

// ChainDescriptor is what a wallet needs to know about a network
type ChainDescriptor struct {
	Key          SupportedChain `json:"key"`
	ID           int64          `json:"id"`
	Name         string         `json:"name"`
	RPCURL       string         `json:"rpc_url"`
	NativeSymbol string         `json:"native_symbol"`
	ShareSymbol  string         `json:"share_symbol"`
	Decimals     int            `json:"decimals"`
}

// ChainIDBig returns the chain id in the form transaction signers expect.
func (d ChainDescriptor) ChainIDBig() *big.Int {
	return big.NewInt(d.ID)
}

func (d ChainDescriptor) String() string {
	return fmt.Sprintf("%s (chain %d)", d.Name, d.ID)
}

// MonadTestnet is the network the staking vault is deployed on by default.
var MonadTestnet = ChainDescriptor{
	Key:          ChainMonadTestnet,
	ID:           10143,
	Name:         "Monad Testnet",
	RPCURL:       "https://testnet-rpc.monad.xyz",
	NativeSymbol: "MON",
	ShareSymbol:  "gMON",
	Decimals:     18,
}

// WalletDescriptor bundles the application identity with the chain list a
// wallet session is allowed to use.
type WalletDescriptor struct {
	AppName   string            `json:"app_name"`
	ProjectID string            `json:"project_id"`
	Chains    []ChainDescriptor `json:"chains"`
}

// Primary returns the first configured chain.
func (w WalletDescriptor) Primary() ChainDescriptor {
	if len(w.Chains) == 0 {
		return MonadTestnet
	}
	return w.Chains[0]
}

// FromConfig builds the wallet descriptor from the explicit configuration.
func FromConfig(cfg *config.Config) WalletDescriptor {
	chain := ChainDescriptor{
		Key:          ChainCustom,
		ID:           cfg.Chain.ID,
		Name:         cfg.Chain.Name,
		RPCURL:       cfg.Chain.RPCURL,
		NativeSymbol: cfg.Chain.NativeSymbol,
		ShareSymbol:  cfg.Chain.ShareSymbol,
		Decimals:     18,
	}
	if chain.ID == MonadTestnet.ID {
		chain.Key = ChainMonadTestnet
	}
	return WalletDescriptor{
		AppName:   cfg.App.Name,
		ProjectID: cfg.App.ProjectID,
		Chains:    []ChainDescriptor{chain},
	}
}
