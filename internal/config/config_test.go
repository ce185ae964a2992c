package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("REFRESH_INTERVAL", "45s")
	t.Setenv("REFRESH_POLICY", "PER_FIELD_DEFAULT")
	t.Setenv("REDIS_ENABLED", "false")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("Server.Port = %v, want %v", cfg.Server.Port, "9090")
	}
	if cfg.Refresh.Interval != 45*time.Second {
		t.Errorf("Refresh.Interval = %v, want %v", cfg.Refresh.Interval, 45*time.Second)
	}
	if cfg.Refresh.Policy != PolicyPerFieldDefault {
		t.Errorf("Refresh.Policy = %v, want %v", cfg.Refresh.Policy, PolicyPerFieldDefault)
	}
	if cfg.Redis.Enabled {
		t.Errorf("Redis.Enabled = true, want false")
	}
	if cfg.Contract.Backend != BackendMock {
		t.Errorf("Contract.Backend = %v, want %v", cfg.Contract.Backend, BackendMock)
	}
	if !reflect.DeepEqual(cfg.Contract.MinPeriodMarkers, []string{DefaultMinPeriodMarker}) {
		t.Errorf("Contract.MinPeriodMarkers = %v", cfg.Contract.MinPeriodMarkers)
	}
	if cfg.Server.Address() != "0.0.0.0:9090" {
		t.Errorf("Server.Address() = %v", cfg.Server.Address())
	}
}

func TestLoadConfigRejectsUnknownPolicy(t *testing.T) {
	t.Setenv("REFRESH_POLICY", "best_effort")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("LoadConfig() expected error for unknown policy")
	}
}

func TestLoadConfigEVMRequiresEndpoints(t *testing.T) {
	t.Setenv("CONTRACT_BACKEND", "evm")
	t.Setenv("STAKING_CONTRACT", "0x1111111111111111111111111111111111111111")
	t.Setenv("TOKEN_CONTRACT", "0x2222222222222222222222222222222222222222")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("LoadConfig() expected error without RPC_ENDPOINTS")
	}

	t.Setenv("RPC_ENDPOINTS", "http://a, http://b")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if !reflect.DeepEqual(cfg.Contract.RPCEndpoints, []string{"http://a", "http://b"}) {
		t.Errorf("Contract.RPCEndpoints = %v", cfg.Contract.RPCEndpoints)
	}
}

func TestLoadConfigFromDeploymentFile(t *testing.T) {
	path := writeDeployment(t, `
network: sepolia
rpc_endpoints:
  - https://rpc-1.example
  - https://rpc-2.example
staking_contract: "0x1111111111111111111111111111111111111111"
token_contract: "0x2222222222222222222222222222222222222222"
simulate_writes: true
min_period_markers:
  - "too early to unstake"
  - "stake locked"
`)
	t.Setenv("DEPLOYMENT_FILE", path)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Contract.Backend != BackendEVM {
		t.Errorf("Contract.Backend = %v, want %v", cfg.Contract.Backend, BackendEVM)
	}
	if cfg.Contract.Network != "sepolia" {
		t.Errorf("Contract.Network = %v, want sepolia", cfg.Contract.Network)
	}
	if len(cfg.Contract.RPCEndpoints) != 2 {
		t.Errorf("Contract.RPCEndpoints = %v", cfg.Contract.RPCEndpoints)
	}
	if !cfg.Contract.SimulateWrites {
		t.Errorf("Contract.SimulateWrites = false, want true")
	}
	if len(cfg.Contract.MinPeriodMarkers) != 2 {
		t.Errorf("Contract.MinPeriodMarkers = %v", cfg.Contract.MinPeriodMarkers)
	}

	// Environment overrides the descriptor
	t.Setenv("NETWORK", "mainnet")
	cfg, err = LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Contract.Network != "mainnet" {
		t.Errorf("Contract.Network = %v, want mainnet", cfg.Contract.Network)
	}
}

func TestLoadDeploymentErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "missing staking contract", content: "token_contract: \"0x2\"\n"},
		{name: "missing token contract", content: "staking_contract: \"0x1\"\n"},
		{name: "empty endpoint", content: "staking_contract: a\ntoken_contract: b\nrpc_endpoints: [\"\"]\n"},
		{name: "malformed yaml", content: "staking_contract: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadDeployment(writeDeployment(t, tt.content)); err == nil {
				t.Errorf("LoadDeployment() expected error")
			}
		})
	}

	if _, err := LoadDeployment(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Errorf("LoadDeployment() expected error for missing file")
	}
}

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "returns environment variable when set",
			key:          "TEST_KEY",
			defaultValue: "default",
			envValue:     "custom",
			want:         "custom",
		},
		{
			name:         "returns default when environment variable not set",
			key:          "UNSET_KEY",
			defaultValue: "default",
			envValue:     "",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.key, tt.envValue)
			}

			if got := getEnv(tt.key, tt.defaultValue); got != tt.want {
				t.Errorf("getEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTypedEnvHelpers(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	t.Setenv("TEST_BAD_INT", "forty-two")
	t.Setenv("TEST_FLOAT", "2.5")
	t.Setenv("TEST_BOOL", "true")
	t.Setenv("TEST_DURATION", "1m30s")
	t.Setenv("TEST_LIST", "a,,b , c")

	if got := getEnvAsInt("TEST_INT", 1); got != 42 {
		t.Errorf("getEnvAsInt() = %v, want 42", got)
	}
	if got := getEnvAsInt("TEST_BAD_INT", 1); got != 1 {
		t.Errorf("getEnvAsInt() = %v, want default 1", got)
	}
	if got := getEnvAsFloat("TEST_FLOAT", 1); got != 2.5 {
		t.Errorf("getEnvAsFloat() = %v, want 2.5", got)
	}
	if got := getEnvAsBool("TEST_BOOL", false); !got {
		t.Errorf("getEnvAsBool() = false, want true")
	}
	if got := getEnvAsDuration("TEST_DURATION", time.Second); got != 90*time.Second {
		t.Errorf("getEnvAsDuration() = %v, want 1m30s", got)
	}
	if got := getEnvAsList("TEST_LIST", nil); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("getEnvAsList() = %v", got)
	}
}

func writeDeployment(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "deployment.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write deployment file: %v", err)
	}
	return path
}
