package wallet

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/predictpool-client/internal/metrics"
)

const testContract = "0x00000000000000000000000000000000000000aa"

type fakeChain struct {
	mu      sync.Mutex
	native  *big.Int
	shares  *big.Int
	sent    []*types.Transaction
	status  uint64
	sendErr error
}

func (f *fakeChain) BalanceAt(ctx context.Context, account common.Address, _ *big.Int) (*big.Int, error) {
	return f.native, nil
}

func (f *fakeChain) CallContract(ctx context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	parsed, err := abi.JSON(strings.NewReader(vaultABI))
	if err != nil {
		return nil, err
	}
	return parsed.Methods["balanceOf"].Outputs.Pack(f.shares)
}

func (f *fakeChain) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return 4, nil
}

func (f *fakeChain) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(50e9), nil
}

func (f *fakeChain) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	return 100_000, nil
}

func (f *fakeChain) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, tx)
	return nil
}

// receiptChain adds the receipt lookups bind.WaitMined needs.
type receiptChain struct {
	*fakeChain
}

func (r receiptChain) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return &types.Receipt{TxHash: hash, Status: r.status, BlockNumber: big.NewInt(99)}, nil
}

func (r receiptChain) CodeAt(ctx context.Context, account common.Address, _ *big.Int) ([]byte, error) {
	return []byte{1}, nil
}

func newTestStaking(t *testing.T, backend ChainBackend, wait bool) *Staking {
	t.Helper()
	s, err := NewStaking(backend, testContract, StakingOptions{ChainID: 10143, WaitReceipt: wait}, metrics.New(prometheus.NewRegistry()))
	require.NoError(t, err)
	return s
}

func TestNewStaking_Validation(t *testing.T) {
	_, err := NewStaking(&fakeChain{}, "nope", StakingOptions{ChainID: 1}, nil)
	assert.Error(t, err)
	_, err = NewStaking(&fakeChain{}, testContract, StakingOptions{}, nil)
	assert.Error(t, err)
}

func TestStaking_Balances(t *testing.T) {
	chain := &fakeChain{native: big.NewInt(3e18), shares: big.NewInt(2e18)}
	s := newTestStaking(t, chain, false)
	acct := common.HexToAddress(testAddress)

	native, err := s.NativeBalance(context.Background(), acct)
	require.NoError(t, err)
	assert.Equal(t, "3", FormatEther(native))

	staked, err := s.StakedBalance(context.Background(), acct)
	require.NoError(t, err)
	assert.Equal(t, "2", FormatEther(staked))
}

func TestStaking_Stake(t *testing.T) {
	chain := &fakeChain{}
	s := newTestStaking(t, chain, false)
	signer, err := NewSigner(testKey)
	require.NoError(t, err)

	res, err := s.Stake(context.Background(), signer, big.NewInt(1e18))
	require.NoError(t, err)
	assert.Equal(t, TxSent, res.Status)

	require.Len(t, chain.sent, 1)
	tx := chain.sent[0]
	assert.Equal(t, res.Hash, tx.Hash().Hex())
	assert.Equal(t, common.HexToAddress(testContract), *tx.To())
	assert.Zero(t, big.NewInt(1e18).Cmp(tx.Value()))
	assert.Equal(t, uint64(4), tx.Nonce())
	assert.Equal(t, uint64(120_000), tx.Gas())
	assert.Equal(t, s.abi.Methods["depositNative"].ID, tx.Data()[:4])

	from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(10143)), tx)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), from)

	args, err := s.abi.Methods["depositNative"].Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), args[0])
}

func TestStaking_WithdrawWaitsForReceipt(t *testing.T) {
	chain := &fakeChain{status: types.ReceiptStatusSuccessful}
	s := newTestStaking(t, receiptChain{chain}, true)
	signer, err := NewSigner(testKey)
	require.NoError(t, err)

	res, err := s.Withdraw(context.Background(), signer, big.NewInt(5e17))
	require.NoError(t, err)
	assert.Equal(t, TxConfirmed, res.Status)
	assert.Equal(t, uint64(99), res.BlockNumber)

	tx := chain.sent[0]
	assert.Equal(t, 0, tx.Value().Sign(), "withdraw carries no value")
	args, err := s.abi.Methods["withdrawNative"].Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	require.Len(t, args, 3)
	assert.Zero(t, big.NewInt(5e17).Cmp(args[0].(*big.Int)))
	assert.Equal(t, signer.Address(), args[1])
	assert.Equal(t, signer.Address(), args[2])
}

func TestStaking_Failures(t *testing.T) {
	signer, err := NewSigner(testKey)
	require.NoError(t, err)

	reverted := newTestStaking(t, receiptChain{&fakeChain{status: types.ReceiptStatusFailed}}, true)
	_, err = reverted.Stake(context.Background(), signer, big.NewInt(1))
	assert.ErrorIs(t, err, ErrTxReverted)

	broken := newTestStaking(t, &fakeChain{sendErr: errors.New("insufficient funds")}, false)
	_, err = broken.Stake(context.Background(), signer, big.NewInt(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient funds")
}
