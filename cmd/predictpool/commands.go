package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/sirupsen/logrus"

	"github.com/yourorg/predictpool-client/internal/aggregate"
	"github.com/yourorg/predictpool-client/internal/app"
	"github.com/yourorg/predictpool-client/internal/config"
	"github.com/yourorg/predictpool-client/internal/model"
	"github.com/yourorg/predictpool-client/internal/ui"
	"github.com/yourorg/predictpool-client/internal/wallet"
)

type command func(ctx context.Context, cfg *config.Config, args []string, out io.Writer) error

var commands = map[string]command{
	"run":         runDaemon,
	"predict":     runPredict,
	"balance":     runBalance,
	"stake":       runStake,
	"withdraw":    runWithdraw,
	"history":     runHistory,
	"stats":       runStats,
	"leaderboard": runLeaderboard,
	"round":       runRound,
	"info":        runInfo,
	"encrypt-key": runEncryptKey,
}

type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

func newApp(ctx context.Context, cfg *config.Config) (*app.App, error) {
	return app.New(ctx, cfg, app.Options{})
}

func runDaemon(ctx context.Context, cfg *config.Config, args []string, out io.Writer) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	logrus.Info("Starting predictpool client")
	if err := a.Run(ctx); err != nil {
		return err
	}
	logrus.Info("Shut down gracefully")
	return nil
}

func runPredict(ctx context.Context, cfg *config.Config, args []string, out io.Writer) error {
	if len(args) != 1 {
		return usageError{"predict needs a direction: up or down"}
	}
	dir, err := model.ParseDirection(args[0])
	if err != nil {
		return usageError{err.Error()}
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.PredictNow(ctx, dir)
	if err != nil {
		return err
	}
	if res.OK() {
		fmt.Fprintf(out, "Predicted %s for round %d\n", dir, res.RoundID)
		return nil
	}
	if n := a.Store().Notice(); n != nil {
		fmt.Fprintln(out, n.Message)
		if n.Hint != "" {
			fmt.Fprintln(out, n.Hint)
		}
	}
	return fmt.Errorf("prediction for round %d not submitted: %s", res.RoundID, res.Outcome)
}

func runBalance(ctx context.Context, cfg *config.Config, args []string, out io.Writer) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	native, staked, err := a.Balances(ctx)
	if err != nil {
		return err
	}
	chain := a.Chain()
	fmt.Fprintf(out, "Address: %s\n", a.Session().Address())
	fmt.Fprintf(out, "Network: %s\n", chain)
	fmt.Fprintf(out, "Balance: %s %s\n", wallet.FormatEther(native), chain.NativeSymbol)
	fmt.Fprintf(out, "Staked:  %s %s\n", wallet.FormatEther(staked), chain.ShareSymbol)
	return nil
}

func runStake(ctx context.Context, cfg *config.Config, args []string, out io.Writer) error {
	return runTx(ctx, cfg, args, out, "stake")
}

func runWithdraw(ctx context.Context, cfg *config.Config, args []string, out io.Writer) error {
	return runTx(ctx, cfg, args, out, "withdraw")
}

func runTx(ctx context.Context, cfg *config.Config, args []string, out io.Writer, action string) error {
	if len(args) != 1 {
		return usageError{action + " needs an amount"}
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	var res wallet.TxResult
	if action == "stake" {
		res, err = a.Stake(ctx, args[0])
	} else {
		res, err = a.Withdraw(ctx, args[0])
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Transaction %s: %s", res.Hash, res.Status)
	if res.BlockNumber > 0 {
		fmt.Fprintf(out, " in block %d", res.BlockNumber)
	}
	fmt.Fprintln(out)
	return nil
}

func runHistory(ctx context.Context, cfg *config.Config, args []string, out io.Writer) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Store().Fetch(ctx); err != nil {
		return err
	}
	preds := a.Store().Sorted()

	st := ui.State{Address: a.Session().Address(), Predictions: preds, Summary: aggregate.Summarize(preds)}
	if err := ui.RenderHistory(out, st); err != nil {
		return err
	}
	if len(preds) == 0 {
		return nil
	}

	fmt.Fprintln(out)
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "EPOCH\tPREDICTIONS\tWINS\tLOSSES\tPENDING\tACCURACY")
	for _, e := range aggregate.ByEpoch(preds) {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%d\t%.1f%%\n", e.EpochID, e.Total, e.Wins, e.Losses, e.Pending, e.Accuracy)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if n, win := aggregate.Streak(preds); n > 0 {
		kind := "losing"
		if win {
			kind = "winning"
		}
		fmt.Fprintf(out, "\nCurrent %s streak: %d\n", kind, n)
	}
	fmt.Fprintf(out, "Median price move: %.2f%%\n", aggregate.MedianMove(preds))
	return nil
}

func epochFlag(name string, args []string) (int64, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	epoch := fs.Int64("epoch", 0, "epoch id, current epoch when 0")
	if err := fs.Parse(args); err != nil {
		return 0, err
	}
	if *epoch < 0 {
		return 0, usageError{"-epoch must not be negative"}
	}
	return *epoch, nil
}

func runStats(ctx context.Context, cfg *config.Config, args []string, out io.Writer) error {
	epoch, err := epochFlag("stats", args)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	addr := a.Session().Address()
	if addr == "" {
		return model.ErrNoWallet
	}
	s, err := a.API().UserStats(ctx, addr, epoch)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Epoch %d: %d of %d correct (%.1f%%), weight %.4f\n",
		s.EpochID, s.CorrectPredictions, s.TotalPredictions, s.Accuracy, s.Weight)
	return nil
}

func runLeaderboard(ctx context.Context, cfg *config.Config, args []string, out io.Writer) error {
	epoch, err := epochFlag("leaderboard", args)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := a.API().Leaderboard(ctx, epoch)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tADDRESS\tCORRECT\tTOTAL\tACCURACY\tWEIGHT")
	for i, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%.1f%%\t%.4f\n", i+1, e.UserAddress, e.CorrectPredictions, e.TotalPredictions, e.Accuracy, e.Weight)
	}
	return tw.Flush()
}

func runRound(ctx context.Context, cfg *config.Config, args []string, out io.Writer) error {
	if len(args) != 1 {
		return usageError{"round needs a round id"}
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return usageError{fmt.Sprintf("invalid round id %q", args[0])}
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	rp, err := a.API().RoundPredictions(ctx, id)
	if err != nil {
		return err
	}
	counts := rp.Stats
	if counts.Total == 0 && len(rp.Predictions) > 0 {
		counts = aggregate.Split(rp.Predictions)
	}
	fmt.Fprintf(out, "Round %d: %d predictions, %d up, %d down\n", id, counts.Total, counts.Up, counts.Down)
	return nil
}

func runInfo(ctx context.Context, cfg *config.Config, args []string, out io.Writer) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	h, err := a.API().Health(ctx)
	if err != nil {
		return fmt.Errorf("backend health: %w", err)
	}
	fmt.Fprintf(out, "Backend: %s (%s) at %s\n", h.Status, h.Timestamp, a.API().BaseURL())

	info, err := a.API().ContractInfo(ctx)
	if err != nil {
		return fmt.Errorf("contract info: %w", err)
	}
	fmt.Fprintf(out, "Vault total: %.4f %s\n", info.TotalMON, a.Chain().NativeSymbol)
	fmt.Fprintf(out, "Epoch baseline: %.4f  total supply: %.4f\n", info.EpochBaseline, info.EpochTotalSupply)
	if !h.OK() {
		return errors.New("backend reports unhealthy")
	}
	return nil
}

// runEncryptKey writes the key in encrypted form so the daemon can be run
// with wallet.key_file instead of a plaintext key.
func runEncryptKey(ctx context.Context, cfg *config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("encrypt-key", flag.ContinueOnError)
	outPath := fs.String("out", "", "file to write the encrypted key to")
	key := fs.String("key", cfg.Wallet.PrivateKey, "hex private key, defaults to wallet.private_key")
	pass := fs.String("passphrase", cfg.Wallet.KeyPassphrase, "passphrase, defaults to wallet.key_passphrase")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *outPath == "" {
		return usageError{"encrypt-key needs -out"}
	}
	if *key == "" || *pass == "" {
		return usageError{"encrypt-key needs a key and a passphrase"}
	}

	signer, err := wallet.NewSigner(*key)
	if err != nil {
		return err
	}
	data, err := wallet.EncryptKey(*key, *pass)
	if err != nil {
		return err
	}
	if err := os.WriteFile(*outPath, data, 0o600); err != nil {
		return fmt.Errorf("writing key file: %w", err)
	}
	fmt.Fprintf(out, "Encrypted key for %s written to %s\n", signer.Address().Hex(), *outPath)
	return nil
}
