// Package app wires the client's components together and owns their
// lifetimes.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/yourorg/predictpool-client/internal/aggregate"
	"github.com/yourorg/predictpool-client/internal/backend"
	"github.com/yourorg/predictpool-client/internal/config"
	"github.com/yourorg/predictpool-client/internal/health"
	"github.com/yourorg/predictpool-client/internal/metrics"
	"github.com/yourorg/predictpool-client/internal/model"
	"github.com/yourorg/predictpool-client/internal/predictions"
	"github.com/yourorg/predictpool-client/internal/pricefeed"
	"github.com/yourorg/predictpool-client/internal/rounds"
	"github.com/yourorg/predictpool-client/internal/schedule"
	"github.com/yourorg/predictpool-client/internal/server"
	"github.com/yourorg/predictpool-client/internal/types"
	"github.com/yourorg/predictpool-client/internal/ui"
	"github.com/yourorg/predictpool-client/internal/validation"
	"github.com/yourorg/predictpool-client/internal/wallet"
)

// balanceInterval is how often wallet balances are re-read from the chain.
const balanceInterval = 10 * time.Second

// Options override the process defaults, mainly for tests.
type Options struct {
	Clock clockwork.Clock
	// Chain replaces the RPC client dialled from chain.rpc_url
	Chain wallet.ChainBackend
	In    io.Reader
	Out   io.Writer
}

// App is the running client.
type App struct {
	cfg   *config.Config
	chain types.ChainDescriptor
	clock clockwork.Clock
	out   io.Writer
	log   *logrus.Entry

	registry *prometheus.Registry
	metrics  *metrics.Metrics

	api      *backend.Client
	session  *wallet.Session
	poller   *rounds.Poller
	upcoming *rounds.UpcomingFetcher
	store    *predictions.Store
	prices   *pricefeed.Watcher
	staking  *wallet.Staking
	rpc      *ethclient.Client
	hub      *server.Hub

	roundsHealth *health.Tracker
	priceHealth  *health.Tracker

	mu       sync.RWMutex
	balances *ui.Balances
}

// New builds the component graph from cfg. Nothing runs until Run.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}

	a := &App{
		cfg:   cfg,
		chain: types.FromConfig(cfg).Primary(),
		clock: opts.Clock,
		out:   opts.Out,
		log:   logrus.WithField("component", "app"),
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(a.registry)

	a.roundsHealth = health.New("rounds", health.DefaultThresholds(), a.clock).
		WithChangeCallback(func(name string, from, to health.State) {
			a.metrics.SetPollHealth(int(to))
		})
	a.priceHealth = health.New("price", health.DefaultThresholds(), a.clock)

	a.api = backend.New(cfg.Backend, a.metrics)
	a.poller = rounds.NewPoller(a.api, cfg.Poller.Interval, a.clock, a.roundsHealth, a.metrics)
	a.upcoming = rounds.NewUpcomingFetcher(a.api)
	a.session = wallet.NewSession()
	a.store = predictions.NewStore(a.api, a.session, a.clock, a.metrics)
	a.hub = server.NewHub(a.State, a.metrics)

	if cfg.Price.Enabled {
		a.prices = pricefeed.NewWatcher(pricefeed.NewClient(cfg.Price), cfg.Price.Interval, a.clock, a.priceHealth, a.metrics)
	}

	if cfg.HasStaking() {
		chain := opts.Chain
		if chain == nil {
			rpc, err := ethclient.DialContext(ctx, a.chain.RPCURL)
			if err != nil {
				return nil, fmt.Errorf("failed to connect to %s: %w", a.chain, err)
			}
			a.rpc = rpc
			chain = rpc
		}
		staking, err := wallet.NewStaking(chain, cfg.Chain.StakingContract, wallet.StakingOptions{
			ChainID:        a.chain.ID,
			WaitReceipt:    cfg.Chain.WaitReceipt,
			ReceiptTimeout: cfg.Chain.ReceiptTimeout,
		}, a.metrics)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.staking = staking
	}

	if cfg.Wallet.RequireApproval {
		a.session.SetApproval(ui.NewPrompter(opts.In, opts.Out).Approve)
	}

	a.wire()

	signer, err := wallet.LoadSigner(cfg.Wallet)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to load wallet: %w", err)
	}
	if signer != nil {
		a.session.Connect(signer)
	}

	a.log.WithFields(logrus.Fields{
		"backend": a.api.BaseURL(),
		"chain":   a.chain.String(),
		"wallet":  a.session.Address(),
		"staking": cfg.Chain.StakingContract,
	}).Info("Client initialised")
	return a, nil
}

// wire connects component events. Poller listeners run on the polling
// goroutine, so every hop here is non-blocking.
func (a *App) wire() {
	a.session.OnChange(func(address string) {
		a.mu.Lock()
		a.balances = nil
		a.mu.Unlock()
		a.store.AddressChanged(address)
	})

	a.poller.OnUpdate(func(s rounds.Snapshot) {
		a.upcoming.Observe(s)
		a.store.ObserveRounds(s.Rounds)
		if a.prices != nil {
			a.prices.ObserveRound(s.Relevant)
		}
		a.publish()
	})

	a.store.OnChange(a.publish)
	if a.prices != nil {
		a.prices.OnQuote(func(pricefeed.Quote) { a.publish() })
	}
}

func (a *App) publish() {
	a.hub.Publish(a.State())
}

// Close releases the RPC connection.
func (a *App) Close() {
	if a.rpc != nil {
		a.rpc.Close()
	}
}

// API is the backend client.
func (a *App) API() *backend.Client { return a.api }

// Chain describes the network staking transactions go to.
func (a *App) Chain() types.ChainDescriptor { return a.chain }

// Session is the wallet session.
func (a *App) Session() *wallet.Session { return a.session }

// Store is the prediction store.
func (a *App) Store() *predictions.Store { return a.store }

// Poller is the round poller.
func (a *App) Poller() *rounds.Poller { return a.poller }

// Registry holds the client's Prometheus collectors.
func (a *App) Registry() *prometheus.Registry { return a.registry }

// Run starts every loop and blocks until ctx is cancelled or a loop fails.
// Cancellation is a clean shutdown and returns nil.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.poller.Run(ctx) })
	g.Go(func() error { return a.upcoming.Run(ctx) })
	g.Go(func() error { return a.store.Run(ctx) })
	if a.prices != nil {
		g.Go(func() error { return a.prices.Run(ctx) })
	}
	if a.staking != nil {
		g.Go(func() error {
			return schedule.Every(ctx, a.clock, balanceInterval, func(ctx context.Context) {
				if err := a.refreshBalances(ctx); err != nil && ctx.Err() == nil && !errors.Is(err, model.ErrNoWallet) {
					a.log.WithError(err).Warn("Failed to read balances")
				}
			})
		})
	}
	if a.cfg.Server.Enabled {
		srv := server.New(a.cfg.Server, server.Deps{
			State:     a.State,
			Predictor: a.store,
			Staker:    a,
			Trackers:  a.trackers(),
			Gatherer:  a.registry,
			Hub:       a.hub,
		})
		g.Go(func() error { return a.hub.Run(ctx) })
		g.Go(func() error { return srv.Run(ctx) })
	}
	if a.cfg.UI.Enabled {
		screen := ui.NewScreen(a.out, a.State, a.cfg.UI.RefreshInterval, a.cfg.Poller.RoundWindow, a.clock, true)
		g.Go(func() error { return screen.Run(ctx) })
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *App) trackers() []*health.Tracker {
	out := []*health.Tracker{a.roundsHealth}
	if a.prices != nil {
		out = append(out, a.priceHealth)
	}
	return out
}

// State assembles the current view of every component.
func (a *App) State() ui.State {
	snap := a.poller.Snapshot()
	preds := a.store.Sorted()

	st := ui.State{
		Epoch:       snap.Epoch,
		Upcoming:    a.upcoming.Upcoming(),
		Rounds:      snap.Rounds,
		Relevant:    snap.Relevant,
		Address:     a.session.Address(),
		Predictions: preds,
		Summary:     aggregate.Summarize(preds),
		Notice:      a.store.Notice(),
		Submitting:  a.store.Submitting(),
		CanSubmit:   a.store.CanSubmit(snap.Relevant),
	}
	if st.Rounds == nil {
		st.Rounds = []model.Round{}
	}
	if a.prices != nil {
		st.Quote = a.prices.Quote()
		if pct, ok := a.prices.Change(); ok {
			st.PriceChange = &pct
		}
	}
	a.mu.RLock()
	if a.balances != nil {
		b := *a.balances
		st.Balances = &b
	}
	a.mu.RUnlock()
	for _, t := range a.trackers() {
		st.Health = append(st.Health, t.Status())
	}

	st.Tick(a.clock.Now(), a.cfg.Poller.RoundWindow)
	return st
}

// Balances reads the connected wallet's native and staked balance.
func (a *App) Balances(ctx context.Context) (native, staked *big.Int, err error) {
	if a.staking == nil {
		return nil, nil, wallet.ErrStakingDisabled
	}
	signer, err := a.session.Signer()
	if err != nil {
		return nil, nil, err
	}
	native, err = a.staking.NativeBalance(ctx, signer.Address())
	if err != nil {
		return nil, nil, err
	}
	staked, err = a.staking.StakedBalance(ctx, signer.Address())
	if err != nil {
		return nil, nil, err
	}
	return native, staked, nil
}

func (a *App) refreshBalances(ctx context.Context) error {
	native, staked, err := a.Balances(ctx)
	if err != nil {
		return err
	}
	b := &ui.Balances{
		Native:       wallet.FormatEtherPrecision(native, 4),
		Staked:       wallet.FormatEtherPrecision(staked, 4),
		NativeSymbol: a.chain.NativeSymbol,
		StakedSymbol: a.chain.ShareSymbol,
	}
	a.mu.Lock()
	a.balances = b
	a.mu.Unlock()
	a.publish()
	return nil
}

// Stake deposits amount (decimal MON) into the vault. The amount must not
// exceed the wallet balance.
func (a *App) Stake(ctx context.Context, amount string) (wallet.TxResult, error) {
	if a.staking == nil {
		return wallet.TxResult{}, wallet.ErrStakingDisabled
	}
	return a.transact(ctx, amount, a.staking.NativeBalance, a.stakeTx)
}

// Withdraw redeems amount of vault shares. The amount must not exceed the
// staked balance.
func (a *App) Withdraw(ctx context.Context, amount string) (wallet.TxResult, error) {
	if a.staking == nil {
		return wallet.TxResult{}, wallet.ErrStakingDisabled
	}
	return a.transact(ctx, amount, a.staking.StakedBalance, a.withdrawTx)
}

func (a *App) stakeTx(ctx context.Context, s *wallet.Signer, wei *big.Int) (wallet.TxResult, error) {
	return a.staking.Stake(ctx, s, wei)
}

func (a *App) withdrawTx(ctx context.Context, s *wallet.Signer, wei *big.Int) (wallet.TxResult, error) {
	return a.staking.Withdraw(ctx, s, wei)
}

type balanceFunc func(ctx context.Context, account common.Address) (*big.Int, error)

func (a *App) transact(ctx context.Context, amount string, limit balanceFunc, send func(context.Context, *wallet.Signer, *big.Int) (wallet.TxResult, error)) (wallet.TxResult, error) {
	if !validation.AcceptsInput(strings.TrimSpace(amount)) {
		return wallet.TxResult{}, fmt.Errorf("%w: %q", validation.ErrAmountFormat, amount)
	}
	signer, err := a.session.Signer()
	if err != nil {
		return wallet.TxResult{}, err
	}
	available, err := limit(ctx, signer.Address())
	if err != nil {
		return wallet.TxResult{}, fmt.Errorf("reading balance: %w", err)
	}
	wei, err := validation.Amount(amount, available)
	if err != nil {
		return wallet.TxResult{}, err
	}

	res, err := send(ctx, signer, wei)
	if err != nil {
		return res, err
	}
	if err := a.refreshBalances(ctx); err != nil {
		a.log.WithError(err).Debug("Failed to refresh balances after transaction")
	}
	return res, nil
}

// PredictNow polls once and submits direction for the round currently
// accepting predictions.
func (a *App) PredictNow(ctx context.Context, direction model.Direction) (predictions.Result, error) {
	if err := a.poller.Poll(ctx); err != nil {
		return predictions.Result{}, err
	}
	r := a.poller.Relevant()
	if r == nil || !r.CanPredict() {
		return predictions.Result{}, model.ErrRoundNotActive
	}
	if err := a.store.Fetch(ctx); err != nil && !errors.Is(err, model.ErrNoWallet) {
		a.log.WithError(err).Warn("Could not load existing predictions")
	}
	return a.store.Submit(ctx, direction, r.ID), nil
}
