package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

// Deployment describes one staking contract deployment
type Deployment struct {
	Network          string   `yaml:"network"`
	RPCEndpoints     []string `yaml:"rpc_endpoints"`
	StakingContract  string   `yaml:"staking_contract"`
	TokenContract    string   `yaml:"token_contract"`
	SimulateWrites   bool     `yaml:"simulate_writes"`
	MinPeriodMarkers []string `yaml:"min_period_markers"`
}

// LoadDeployment reads a deployment descriptor. Relative paths resolve against the working directory.
func LoadDeployment(deploymentFile string) (*Deployment, error) {
	var path string
	if filepath.IsAbs(deploymentFile) {
		path = deploymentFile
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		path = filepath.Join(wd, deploymentFile)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", deploymentFile, err)
	}

	var d Deployment
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", deploymentFile, err)
	}

	if d.StakingContract == "" {
		return nil, fmt.Errorf("%s: missing staking_contract", deploymentFile)
	}
	if d.TokenContract == "" {
		return nil, fmt.Errorf("%s: missing token_contract", deploymentFile)
	}
	for i, ep := range d.RPCEndpoints {
		if ep == "" {
			return nil, fmt.Errorf("%s: rpc endpoint at index %d is empty", deploymentFile, i)
		}
	}

	return &d, nil
}
