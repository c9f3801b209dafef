package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/predictpool-client/internal/metrics"
)

// vaultABI covers the parts of the staking vault the client calls.
const vaultABI = `[
  {"type":"function","name":"balanceOf","stateMutability":"view",
   "inputs":[{"name":"account","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"depositNative","stateMutability":"payable",
   "inputs":[{"name":"receiver","type":"address"}],
   "outputs":[{"name":"shares","type":"uint256"}]},
  {"type":"function","name":"withdrawNative","stateMutability":"nonpayable",
   "inputs":[{"name":"shares","type":"uint256"},{"name":"receiver","type":"address"},{"name":"owner","type":"address"}],
   "outputs":[{"name":"assets","type":"uint256"}]}
]`

// gasHeadroomPercent is added on top of the node's gas estimate.
const gasHeadroomPercent = 20

// ChainBackend is the subset of an Ethereum RPC client the staking bridge
// needs. *ethclient.Client satisfies it.
type ChainBackend interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// StakingOptions tune transaction submission.
type StakingOptions struct {
	ChainID        int64
	WaitReceipt    bool
	ReceiptTimeout time.Duration
}

// TxResult describes a submitted transaction.
type TxResult struct {
	Hash        string `json:"hash"`
	Status      string `json:"status"`
	BlockNumber uint64 `json:"block_number,omitempty"`
}

// Transaction statuses reported in TxResult.
const (
	TxSent      = "sent"
	TxConfirmed = "confirmed"
)

// ErrTxReverted is returned when a mined transaction failed.
var ErrTxReverted = errors.New("transaction reverted")

// ErrStakingDisabled is returned when no staking contract is configured.
var ErrStakingDisabled = errors.New("staking is not configured")

// Staking talks to the vault contract that grants prediction eligibility.
type Staking struct {
	backend  ChainBackend
	contract common.Address
	abi      abi.ABI
	opts     StakingOptions
	metrics  *metrics.Metrics
	log      *logrus.Entry
}

// NewStaking binds the vault at contractHex. m may be nil.
func NewStaking(backend ChainBackend, contractHex string, opts StakingOptions, m *metrics.Metrics) (*Staking, error) {
	if !common.IsHexAddress(contractHex) {
		return nil, fmt.Errorf("wallet: invalid staking contract address %q", contractHex)
	}
	parsed, err := abi.JSON(strings.NewReader(vaultABI))
	if err != nil {
		return nil, fmt.Errorf("wallet: parsing vault ABI: %w", err)
	}
	if opts.ChainID <= 0 {
		return nil, fmt.Errorf("wallet: chain id must be positive, got %d", opts.ChainID)
	}
	if opts.ReceiptTimeout <= 0 {
		opts.ReceiptTimeout = 2 * time.Minute
	}
	return &Staking{
		backend:  backend,
		contract: common.HexToAddress(contractHex),
		abi:      parsed,
		opts:     opts,
		metrics:  m,
		log:      logrus.WithField("component", "staking"),
	}, nil
}

// Contract returns the vault address.
func (s *Staking) Contract() common.Address {
	return s.contract
}

// NativeBalance returns the account's native token balance in wei.
func (s *Staking) NativeBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	bal, err := s.backend.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, fmt.Errorf("reading native balance: %w", err)
	}
	return bal, nil
}

// StakedBalance returns the account's vault share balance.
func (s *Staking) StakedBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	data, err := s.abi.Pack("balanceOf", account)
	if err != nil {
		return nil, fmt.Errorf("packing balanceOf: %w", err)
	}
	out, err := s.backend.CallContract(ctx, ethereum.CallMsg{To: &s.contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("calling balanceOf: %w", err)
	}
	values, err := s.abi.Unpack("balanceOf", out)
	if err != nil {
		return nil, fmt.Errorf("unpacking balanceOf: %w", err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("balanceOf returned %d values", len(values))
	}
	bal, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("balanceOf returned %T", values[0])
	}
	return bal, nil
}

// Stake deposits amount wei of the native token for the signer's account.
func (s *Staking) Stake(ctx context.Context, signer *Signer, amount *big.Int) (TxResult, error) {
	data, err := s.abi.Pack("depositNative", signer.Address())
	if err != nil {
		return TxResult{}, fmt.Errorf("packing depositNative: %w", err)
	}
	return s.transact(ctx, "stake", signer, amount, data)
}

// Withdraw redeems shares back to the signer's account.
func (s *Staking) Withdraw(ctx context.Context, signer *Signer, shares *big.Int) (TxResult, error) {
	owner := signer.Address()
	data, err := s.abi.Pack("withdrawNative", shares, owner, owner)
	if err != nil {
		return TxResult{}, fmt.Errorf("packing withdrawNative: %w", err)
	}
	return s.transact(ctx, "withdraw", signer, big.NewInt(0), data)
}

func (s *Staking) transact(ctx context.Context, action string, signer *Signer, value *big.Int, data []byte) (TxResult, error) {
	res, err := s.send(ctx, signer, value, data)
	if err != nil {
		s.metrics.StakingTx(action, "failed")
		s.log.WithError(err).WithField("action", action).Error("Staking transaction failed")
		return res, err
	}
	s.metrics.StakingTx(action, res.Status)
	s.log.WithFields(logrus.Fields{
		"action": action,
		"tx":     res.Hash,
		"status": res.Status,
		"value":  FormatEther(value),
	}).Info("Staking transaction submitted")
	return res, nil
}

func (s *Staking) send(ctx context.Context, signer *Signer, value *big.Int, data []byte) (TxResult, error) {
	from := signer.Address()

	nonce, err := s.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return TxResult{}, fmt.Errorf("fetching nonce: %w", err)
	}
	gasPrice, err := s.backend.SuggestGasPrice(ctx)
	if err != nil {
		return TxResult{}, fmt.Errorf("fetching gas price: %w", err)
	}
	gas, err := s.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &s.contract,
		Value: value,
		Data:  data,
	})
	if err != nil {
		return TxResult{}, fmt.Errorf("estimating gas: %w", err)
	}
	gas += gas * gasHeadroomPercent / 100

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &s.contract,
		Value:    value,
		Data:     data,
	})
	signed, err := signer.SignTx(tx, big.NewInt(s.opts.ChainID))
	if err != nil {
		return TxResult{}, err
	}
	if err := s.backend.SendTransaction(ctx, signed); err != nil {
		return TxResult{}, fmt.Errorf("sending transaction: %w", err)
	}

	res := TxResult{Hash: signed.Hash().Hex(), Status: TxSent}
	if !s.opts.WaitReceipt {
		return res, nil
	}
	db, ok := s.backend.(bind.DeployBackend)
	if !ok {
		return res, nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, s.opts.ReceiptTimeout)
	defer cancel()
	receipt, err := bind.WaitMined(waitCtx, db, signed)
	if err != nil {
		return res, fmt.Errorf("waiting for %s: %w", res.Hash, err)
	}
	if receipt.BlockNumber != nil {
		res.BlockNumber = receipt.BlockNumber.Uint64()
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return res, fmt.Errorf("%s: %w", res.Hash, ErrTxReverted)
	}
	res.Status = TxConfirmed
	return res, nil
}
