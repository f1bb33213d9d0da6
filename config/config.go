package config

type Chain struct {
	Chain  string `toml:"chain"`
	RpcUrl string `toml:"rpc_url"`
	// Timeout of a single node call, in milliseconds.
	RpcTimeout int `toml:"rpc_timeout"`

	// Defaults for watches created through the API.
	CanonicalAfter uint64 `toml:"canonical_after"`
	DropAfter      uint64 `toml:"drop_after"`

	// Delay range before a faulted block subscription is re-established, in milliseconds.
	RestartBackoffMin int `toml:"restart_backoff_min"`
	RestartBackoffMax int `toml:"restart_backoff_max"`

	ResolutionCacheSize int `toml:"resolution_cache_size"`
}

type Config struct {
	DbHost     string `toml:"db_host"`
	DbPort     int    `toml:"db_port"`
	DbUsername string `toml:"db_username"`
	DbPassword string `toml:"db_password"`
	DbSchema   string `toml:"db_schema"`
	InMemory   bool   `toml:"in_memory"`

	ServerPort  int    `toml:"server_port"`
	NotifierUrl string `toml:"notifier_url"`

	Chains map[string]Chain `toml:"chains"`
}
