package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/predictpool-client/internal/config"
	"github.com/yourorg/predictpool-client/internal/model"
	"github.com/yourorg/predictpool-client/internal/wallet"
)

const (
	testKey     = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

func isolate(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("PREDICTPOOL_LOGGING_LEVEL", "error")
	t.Setenv("PREDICTPOOL_PRICE_ENABLED", "false")
}

func TestRun_Usage(t *testing.T) {
	isolate(t)
	tests := []struct {
		name string
		args []string
	}{
		{"no command", nil},
		{"unknown command", []string{"dance"}},
		{"predict without direction", []string{"predict"}},
		{"predict bad direction", []string{"predict", "sideways"}},
		{"stake without amount", []string{"stake"}},
		{"round bad id", []string{"round", "x"}},
		{"encrypt-key without out", []string{"encrypt-key"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			assert.Equal(t, 2, run(tt.args, &stdout, &stderr))
			assert.Contains(t, stderr.String(), "Usage: predictpool")
		})
	}
}

func TestRun_EncryptKey(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "key.json")

	var stdout, stderr bytes.Buffer
	code := run([]string{"encrypt-key", "-out", path, "-key", testKey, "-passphrase", "hunter2"}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), testAddress)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	got, err := wallet.DecryptKey(data, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, testKey, got)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestRun_HistoryAndRound(t *testing.T) {
	isolate(t)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/users/{address}/predictions", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, testAddress, r.PathValue("address"))
		_ = json.NewEncoder(w).Encode([]model.PredictionWithDetails{
			{Prediction: model.Prediction{Address: testAddress, RoundID: 4, Direction: model.DirectionUp}, EpochID: 1, RoundStatus: model.RoundCompleted, StartingPrice: 100, EndingPrice: 101, IsCorrect: 1},
			{Prediction: model.Prediction{Address: testAddress, RoundID: 5, Direction: model.DirectionDown}, EpochID: 1, RoundStatus: model.RoundCalculating, StartingPrice: 101},
		})
	})
	mux.HandleFunc("GET /api/rounds/5/predictions", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"predictions":[{"address":"0x1","round_id":5,"direction":"up"},{"address":"0x2","round_id":5,"direction":"down"},{"address":"0x3","round_id":5,"direction":"up"}],"stats":{"total":0,"up":0,"down":0}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	t.Setenv("PREDICTPOOL_BACKEND_BASE_URL", srv.URL)
	t.Setenv("PREDICTPOOL_WALLET_PRIVATE_KEY", testKey)

	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, run([]string{"history"}, &stdout, &stderr), stderr.String())
	out := stdout.String()
	assert.Contains(t, out, "Wins: 1  Losses: 0  Accuracy: 100.0%")
	assert.Contains(t, out, "CALCULATING")
	assert.Contains(t, out, "Current winning streak: 1")

	stdout.Reset()
	require.Equal(t, 0, run([]string{"round", "5"}, &stdout, &stderr), stderr.String())
	assert.Equal(t, "Round 5: 3 predictions, 2 up, 1 down\n", stdout.String())
}

func TestRun_BalanceWithoutStaking(t *testing.T) {
	isolate(t)
	t.Setenv("PREDICTPOOL_WALLET_PRIVATE_KEY", testKey)
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 1, run([]string{"balance"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), wallet.ErrStakingDisabled.Error())
}

func TestSetupLogging(t *testing.T) {
	defer logrus.SetLevel(logrus.InfoLevel)
	defer logrus.SetFormatter(&logrus.TextFormatter{})

	var buf bytes.Buffer
	setupLogging(config.LoggingConfig{Level: "warn", Format: "json"}, &buf)
	assert.Equal(t, logrus.WarnLevel, logrus.GetLevel())

	logrus.Info("hidden")
	logrus.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
}
