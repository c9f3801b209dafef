package app

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/predictpool-client/internal/config"
	"github.com/yourorg/predictpool-client/internal/model"
	"github.com/yourorg/predictpool-client/internal/validation"
	"github.com/yourorg/predictpool-client/internal/wallet"
)

const (
	testKey      = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testAddress  = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	testContract = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
)

// fakeBackend serves one epoch with an active round and stores predictions
// after verifying their signature.
type fakeBackend struct {
	t     *testing.T
	mu    sync.Mutex
	preds []model.PredictionWithDetails
}

func (b *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/epochs/current", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(model.Epoch{ID: 2, Status: "active"})
	})
	mux.HandleFunc("GET /api/epochs/2/rounds", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]model.Round{
			{ID: 8, EpochID: 2, Status: model.RoundNext},
			{ID: 7, EpochID: 2, Status: model.RoundActive, StartingPrice: 2000},
			{ID: 6, EpochID: 2, Status: model.RoundCompleted, StartingPrice: 1990, EndingPrice: 2000},
		})
	})
	mux.HandleFunc("GET /api/epochs/3", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(model.Epoch{ID: 3, Status: "scheduled"})
	})
	mux.HandleFunc("GET /api/users/{address}/predictions", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		out := []model.PredictionWithDetails{}
		for _, p := range b.preds {
			if p.Address == r.PathValue("address") {
				out = append(out, p)
			}
		}
		_ = json.NewEncoder(w).Encode(out)
	})
	mux.HandleFunc("POST /api/predictionsv2", func(w http.ResponseWriter, r *http.Request) {
		var p model.Prediction
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			http.Error(w, `{"error":"bad body"}`, http.StatusBadRequest)
			return
		}
		signer, err := wallet.RecoverAddress(model.PredictionMessage(p.Direction, p.RoundID), p.Signature)
		if err != nil || signer.Hex() != p.Address {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"Invalid signature"}`))
			return
		}
		b.mu.Lock()
		b.preds = append(b.preds, model.PredictionWithDetails{Prediction: p, EpochID: 2, RoundStatus: model.RoundActive})
		b.mu.Unlock()
		_, _ = w.Write([]byte(`{"id":1,"message":"Prediction stored"}`))
	})
	return mux
}

type fakeChain struct {
	mu     sync.Mutex
	native *big.Int
	shares *big.Int
	sent   []*types.Transaction
}

func (f *fakeChain) BalanceAt(ctx context.Context, account common.Address, _ *big.Int) (*big.Int, error) {
	return f.native, nil
}

func (f *fakeChain) CallContract(ctx context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	return common.LeftPadBytes(f.shares.Bytes(), 32), nil
}

func (f *fakeChain) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return 0, nil
}

func (f *fakeChain) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1e9), nil
}

func (f *fakeChain) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	return 60_000, nil
}

func (f *fakeChain) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	return nil
}

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func testConfig(backendURL string) *config.Config {
	cfg := config.Default()
	cfg.Backend.BaseURL = backendURL
	cfg.Price.Enabled = false
	cfg.Server.Enabled = false
	cfg.UI.Enabled = false
	cfg.Wallet.PrivateKey = testKey
	cfg.Chain.StakingContract = testContract
	cfg.Chain.WaitReceipt = false
	return cfg
}

func newTestApp(t *testing.T, mutate func(*config.Config)) (*App, *fakeBackend, *fakeChain) {
	t.Helper()
	fb := &fakeBackend{t: t}
	srv := httptest.NewServer(fb.handler())
	t.Cleanup(srv.Close)

	cfg := testConfig(srv.URL)
	if mutate != nil {
		mutate(cfg)
	}
	chain := &fakeChain{native: ether(10), shares: ether(3)}
	a, err := New(context.Background(), cfg, Options{Clock: clockwork.NewFakeClock(), Chain: chain})
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a, fb, chain
}

func TestNew_ConnectsConfiguredWallet(t *testing.T) {
	a, _, _ := newTestApp(t, nil)
	assert.Equal(t, testAddress, a.Session().Address())
	assert.Equal(t, int64(10143), a.Chain().ID)
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig("")
	_, err := New(context.Background(), cfg, Options{})
	assert.Error(t, err)
}

func TestPredictNow(t *testing.T) {
	a, fb, _ := newTestApp(t, nil)

	res, err := a.PredictNow(context.Background(), model.DirectionUp)
	require.NoError(t, err)
	require.True(t, res.OK(), "outcome %s: %v", res.Outcome, res.Err)
	assert.Equal(t, int64(7), res.RoundID)

	require.Len(t, fb.preds, 1)
	assert.Equal(t, testAddress, fb.preds[0].Address)

	p, ok := a.Store().Prediction(7)
	require.True(t, ok)
	assert.Equal(t, model.DirectionUp, p.Direction)

	res, err = a.PredictNow(context.Background(), model.DirectionDown)
	require.NoError(t, err)
	assert.Equal(t, "already_predicted", string(res.Outcome))
	assert.Len(t, fb.preds, 1)
}

func TestState(t *testing.T) {
	a, _, _ := newTestApp(t, nil)
	require.NoError(t, a.Poller().Poll(context.Background()))

	st := a.State()
	require.NotNil(t, st.Epoch)
	assert.Equal(t, int64(2), st.Epoch.ID)
	require.Len(t, st.Rounds, 3)
	assert.Equal(t, int64(6), st.Rounds[0].ID)
	require.NotNil(t, st.Relevant)
	assert.Equal(t, int64(7), st.Relevant.ID)
	assert.True(t, st.CanSubmit)
	assert.Equal(t, testAddress, st.Address)
	assert.Len(t, st.Health, 1)
	assert.Nil(t, st.Balances)

	require.NoError(t, a.refreshBalances(context.Background()))
	st = a.State()
	require.NotNil(t, st.Balances)
	assert.Equal(t, "10", st.Balances.Native)
	assert.Equal(t, "3", st.Balances.Staked)
	assert.Equal(t, "gMON", st.Balances.StakedSymbol)
}

func TestStake(t *testing.T) {
	a, _, chain := newTestApp(t, nil)

	res, err := a.Stake(context.Background(), "1.5")
	require.NoError(t, err)
	assert.Equal(t, wallet.TxSent, res.Status)
	require.Len(t, chain.sent, 1)
	tx := chain.sent[0]
	assert.Equal(t, common.HexToAddress(testContract), *tx.To())
	assert.Equal(t, 0, tx.Value().Cmp(big.NewInt(15e17)))

	_, err = a.Stake(context.Background(), "11")
	assert.ErrorIs(t, err, validation.ErrAmountTooLarge)
	_, err = a.Stake(context.Background(), "1,5")
	assert.ErrorIs(t, err, validation.ErrAmountFormat)
	_, err = a.Stake(context.Background(), "0")
	assert.ErrorIs(t, err, validation.ErrAmountZero)
	assert.Len(t, chain.sent, 1)
}

func TestWithdraw(t *testing.T) {
	a, _, chain := newTestApp(t, nil)

	_, err := a.Withdraw(context.Background(), "3")
	require.NoError(t, err)
	require.Len(t, chain.sent, 1)
	assert.Zero(t, chain.sent[0].Value().Sign(), "withdrawals carry no value")

	_, err = a.Withdraw(context.Background(), "3.1")
	assert.ErrorIs(t, err, validation.ErrAmountTooLarge)
}

func TestStake_Disconnected(t *testing.T) {
	a, _, _ := newTestApp(t, nil)
	a.Session().Disconnect()
	_, err := a.Stake(context.Background(), "1")
	assert.ErrorIs(t, err, model.ErrNoWallet)
}

func TestStakingDisabled(t *testing.T) {
	a, _, _ := newTestApp(t, func(c *config.Config) { c.Chain.StakingContract = "" })
	_, err := a.Stake(context.Background(), "1")
	assert.ErrorIs(t, err, wallet.ErrStakingDisabled)
	_, err = a.Withdraw(context.Background(), "1")
	assert.ErrorIs(t, err, wallet.ErrStakingDisabled)
	_, _, err = a.Balances(context.Background())
	assert.ErrorIs(t, err, wallet.ErrStakingDisabled)
}

func TestRun_FetchesAndStopsOnCancel(t *testing.T) {
	a, _, _ := newTestApp(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	assert.Eventually(t, func() bool {
		return a.State().Upcoming != nil
	}, 2*time.Second, 10*time.Millisecond, "poll cycle feeds the upcoming epoch fetcher")
	assert.Equal(t, int64(3), a.State().Upcoming.ID)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
