package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/jnwerner/vouch/internal/config"
	"github.com/jnwerner/vouch/internal/core"
	"github.com/jnwerner/vouch/internal/provider"
)

// seedDeployment builds a bolt-backed deployment with a file audit trail,
// registers a consumer and walks one token through the full exchange, and
// returns the config file path plus the minted access token key.
func seedDeployment(t *testing.T) (cfgPath, accessKey string) {
	t.Helper()
	dir := t.TempDir()

	cfg := &config.Config{
		Store: config.StoreConfig{Type: "bolt", Path: filepath.Join(dir, "vouch.db")},
		Audit: config.AuditConfig{Enabled: true, Type: "file", Path: filepath.Join(dir, "audit.jsonl")},
	}
	p, err := provider.Open(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	ctx := context.Background()
	consumer := &core.Consumer{Key: "client", Secret: "secret"}
	if err := p.Consumers.Add(ctx, consumer); err != nil {
		t.Fatalf("Consumers.Add: %v", err)
	}

	req, err := p.Tokens.GenerateRequestToken(ctx, consumer, core.TokenRequest{
		Callback:  "https://client.example/ready",
		Timestamp: time.Now().Unix(),
		Nonce:     "seed-nonce",
	})
	if err != nil {
		t.Fatalf("GenerateRequestToken: %v", err)
	}
	claimed, err := p.Tokens.ClaimRequestToken(ctx, req.Key, "alice")
	if err != nil {
		t.Fatalf("ClaimRequestToken: %v", err)
	}
	access, err := p.Tokens.GenerateAccessToken(ctx, consumer, core.TokenRequest{
		TokenKey: claimed.Key,
		Verifier: claimed.Verifier,
	})
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}
	p.Close()

	cfgPath = filepath.Join(dir, "vouch.yaml")
	yaml := fmt.Sprintf("store:\n  type: bolt\n  path: %s\naudit:\n  enabled: true\n  type: file\n  path: %s\n",
		cfg.Store.Path, cfg.Audit.Path)
	if err := os.WriteFile(cfgPath, []byte(yaml), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return cfgPath, access.Key
}

func runCommand(args ...string) error {
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func TestTokenShowCommand(t *testing.T) {
	cfgPath, accessKey := seedDeployment(t)

	if err := runCommand("token", "show", accessKey, "-c", cfgPath); err != nil {
		t.Errorf("token show: %v", err)
	}
	if err := runCommand("token", "show", accessKey, "-c", cfgPath, "--secrets"); err != nil {
		t.Errorf("token show --secrets: %v", err)
	}
	if err := runCommand("token", "show", "does-not-exist", "-c", cfgPath); err == nil {
		t.Error("token show accepted an unknown key")
	}
}

func TestAuditLogCommand(t *testing.T) {
	cfgPath, _ := seedDeployment(t)

	if err := runCommand("audit", "log", "-c", cfgPath); err != nil {
		t.Errorf("audit log: %v", err)
	}
	if err := runCommand("audit", "log", "-c", cfgPath, "--limit", "1", "--action", "token.exchange"); err != nil {
		t.Errorf("audit log --action: %v", err)
	}
}

func TestAuditLogCommandNeedsFileTrail(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "vouch.yaml")
	if err := os.WriteFile(cfgPath, []byte("store:\n  type: memory\n"), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := runCommand("audit", "log", "-c", cfgPath); err == nil {
		t.Error("audit log ran without a file audit trail")
	}
}

func TestRedacted(t *testing.T) {
	if got := redacted("", false); got != "" {
		t.Errorf("redacted empty value: %q", got)
	}
	if got := redacted("s3cret", true); got != "s3cret" {
		t.Errorf("redacted with show: %q", got)
	}
	if got := redacted("s3cret", false); got == "s3cret" {
		t.Error("secret leaked without --secrets")
	}
}
