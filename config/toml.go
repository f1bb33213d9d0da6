package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

const (
	DefaultRpcTimeout          = 5_000
	DefaultRestartBackoffMin   = 500
	DefaultRestartBackoffMax   = 30_000
	DefaultResolutionCacheSize = 1_000
)

// ReadConfig decodes a toml config file and fills in defaults for every chain.
func ReadConfig(path string) (Config, error) {
	cfg := Config{}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("cannot read config file %s, err = %w", path, err)
	}

	if len(cfg.Chains) == 0 {
		return cfg, fmt.Errorf("no chain is configured in %s", path)
	}

	for name, chain := range cfg.Chains {
		if chain.Chain == "" {
			chain.Chain = name
		}
		if chain.RpcUrl == "" {
			return cfg, fmt.Errorf("rpc_url is empty for chain %s", name)
		}

		ApplyChainDefaults(&chain)
		cfg.Chains[name] = chain
	}

	return cfg, nil
}

func ApplyChainDefaults(chain *Chain) {
	if chain.RpcTimeout <= 0 {
		chain.RpcTimeout = DefaultRpcTimeout
	}
	if chain.RestartBackoffMin <= 0 {
		chain.RestartBackoffMin = DefaultRestartBackoffMin
	}
	if chain.RestartBackoffMax < chain.RestartBackoffMin {
		chain.RestartBackoffMax = DefaultRestartBackoffMax
		if chain.RestartBackoffMax < chain.RestartBackoffMin {
			chain.RestartBackoffMax = chain.RestartBackoffMin
		}
	}
	if chain.ResolutionCacheSize <= 0 {
		chain.ResolutionCacheSize = DefaultResolutionCacheSize
	}
}
