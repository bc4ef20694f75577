package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"VammLedger/internal/config"
	fpmath "VammLedger/internal/math"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func mustLoad(t *testing.T, path string) *config.Config {
	t.Helper()
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return cfg
}

// ===========================================================================
// Service configuration
// ===========================================================================

func TestLoad_Defaults(t *testing.T) {
	cfg := mustLoad(t, "")
	if cfg.Server.GRPCAddr != ":9090" || cfg.Server.HTTPAddr != ":8080" {
		t.Errorf("server addrs: got %+v", cfg.Server)
	}
	if cfg.Persistence.FlushTimeout != 10*time.Millisecond {
		t.Errorf("flush timeout: got %v, want 10ms", cfg.Persistence.FlushTimeout)
	}
	if cfg.Snapshot.Backend != "postgres" {
		t.Errorf("snapshot backend: got %q, want postgres", cfg.Snapshot.Backend)
	}
	if cfg.Engine.IdempotencyCapacity != 1_000_000 {
		t.Errorf("idempotency capacity: got %d", cfg.Engine.IdempotencyCapacity)
	}
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	path := writeFile(t, "vamm.yaml", `
log_level: debug
server:
  grpc_addr: ":7000"
snapshot:
  backend: pebble
  pebble_path: /tmp/snaps
  redis_ttl: 30s
`)
	t.Setenv("VAMM_SERVER_GRPC_ADDR", ":7100")
	t.Setenv("VAMM_PERSISTENCE_BATCH_SIZE", "200")

	cfg := mustLoad(t, path)
	if cfg.LogLevel != "debug" {
		t.Errorf("log level: got %q, want debug", cfg.LogLevel)
	}
	if cfg.Server.GRPCAddr != ":7100" {
		t.Errorf("env should beat file: got %q, want :7100", cfg.Server.GRPCAddr)
	}
	if cfg.Persistence.BatchSize != 200 {
		t.Errorf("batch size: got %d, want 200", cfg.Persistence.BatchSize)
	}
	if cfg.Snapshot.Backend != "pebble" || cfg.Snapshot.RedisTTL != 30*time.Second {
		t.Errorf("snapshot: got %+v", cfg.Snapshot)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestValidate_CollectsProblems(t *testing.T) {
	cfg := mustLoad(t, "")
	cfg.LogLevel = "loud"
	cfg.Snapshot.Backend = "s3"
	cfg.Channels.Persist = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"log_level", "snapshot.backend", "channels.persist"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestValidate_CustodyNeedsNATS(t *testing.T) {
	cfg := mustLoad(t, "")
	cfg.NATS.Enabled = false
	cfg.NATS.Custody = true
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "nats.custody") {
		t.Errorf("got %v, want a nats.custody error", err)
	}
}

// ===========================================================================
// Market genesis
// ===========================================================================

const genesis = `
markets:
  - market_index: 0
    name: SOL-PERP
    base_asset_reserve: "1000"
    quote_asset_reserve: "1000"
    peg: "${SOL_PEG}"
    funding_period: 3600
    step_size: "0.001"
    lp_quote_settlement: pro_rata
  - market_index: 1
    name: BTC-PERP
    base_asset_reserve: "50.5"
    quote_asset_reserve: "50.5"
    margin_ratios:
      initial: 1000
      partial: 500
      maintenance: 250
`

func TestLoadMarkets(t *testing.T) {
	t.Setenv("SOL_PEG", "150.250")
	f, err := config.LoadMarkets(writeFile(t, "markets.yaml", genesis))
	if err != nil {
		t.Fatalf("LoadMarkets: %v", err)
	}
	cmds, err := f.Commands()
	if err != nil {
		t.Fatalf("Commands: %v", err)
	}
	if len(cmds) != 2 {
		t.Fatalf("commands: got %d, want 2", len(cmds))
	}

	sol := cmds[0]
	if sol.BaseAssetReserve != 1000*fpmath.AmmReservePrecision {
		t.Errorf("base reserve: got %d", sol.BaseAssetReserve)
	}
	if sol.PegMultiplier != 150_250 {
		t.Errorf("peg: got %d, want 150250", sol.PegMultiplier)
	}
	if sol.BaseAssetAmountStepSize != fpmath.BaseAssetPrecision/1000 {
		t.Errorf("step: got %d", sol.BaseAssetAmountStepSize)
	}
	if sol.LpQuoteSettlement.String() != "pro_rata" {
		t.Errorf("settlement: got %s", sol.LpQuoteSettlement)
	}

	btc := cmds[1]
	if btc.Market != 1 || btc.PegMultiplier != 0 {
		t.Errorf("btc: got market=%d peg=%d", btc.Market, btc.PegMultiplier)
	}
	if btc.MarginRatios.Initial != 1000 {
		t.Errorf("margin ratios: got %+v", btc.MarginRatios)
	}
}

func TestMarketCommandIDsAreStable(t *testing.T) {
	t.Setenv("SOL_PEG", "1")
	a, err := config.ParseMarkets([]byte(os.ExpandEnv(genesis)))
	if err != nil {
		t.Fatalf("ParseMarkets: %v", err)
	}
	b, _ := config.ParseMarkets([]byte(os.ExpandEnv(genesis)))
	ca, _ := a.Commands()
	cb, _ := b.Commands()
	if ca[0].CommandID != cb[0].CommandID {
		t.Error("the same market must always derive the same command id")
	}
	if ca[0].CommandID == ca[1].CommandID {
		t.Error("different markets must derive different command ids")
	}
}

func TestParseMarkets_Rejects(t *testing.T) {
	cases := map[string]string{
		"duplicate index": `
markets:
  - {market_index: 0, name: A, base_asset_reserve: "1", quote_asset_reserve: "1"}
  - {market_index: 0, name: B, base_asset_reserve: "1", quote_asset_reserve: "1"}`,
		"missing name":       `markets: [{market_index: 0, base_asset_reserve: "1", quote_asset_reserve: "1"}]`,
		"zero reserve":       `markets: [{market_index: 0, name: A, base_asset_reserve: "0", quote_asset_reserve: "1"}]`,
		"bad decimal":        `markets: [{market_index: 0, name: A, base_asset_reserve: "x", quote_asset_reserve: "1"}]`,
		"no headroom":        `markets: [{market_index: 0, name: A, base_asset_reserve: "500000", quote_asset_reserve: "1"}]`,
		"unknown settlement": `markets: [{market_index: 0, name: A, base_asset_reserve: "1", quote_asset_reserve: "1", lp_quote_settlement: half}]`,
		"not yaml":           `markets: [`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := config.ParseMarkets([]byte(body)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}
