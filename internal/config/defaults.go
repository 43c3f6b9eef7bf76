package config

// Default values for configuration options. These are "layer 0" of the
// override chain.
const (
	defaultRegion          = RegionUS
	defaultCloudVersion    = "v1.0"
	defaultConnectTimeout  = "10s"
	defaultRequestTimeout  = "0"
	defaultMaxCallbackFreq = "0"
	defaultMaxBytesDelta   = "0"
	defaultMinBytesDelta   = "0"
	defaultParallelDeletes = 4
	defaultLogLevel        = "warn"
	defaultLogFormat       = "auto"
)

// Auth regions.
const (
	RegionUS = "us"
	RegionUK = "uk"
)

// DefaultConfig returns a Config populated with all default values. It is
// both the starting point for TOML decoding (so unset fields keep their
// defaults) and the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Auth: AuthConfig{
			Region:       defaultRegion,
			CloudVersion: defaultCloudVersion,
		},
		Network: NetworkConfig{
			ConnectTimeout: defaultConnectTimeout,
			RequestTimeout: defaultRequestTimeout,
		},
		Transfers: TransfersConfig{
			MaxCallbackInterval:      defaultMaxCallbackFreq,
			MaxBytesBetweenCallbacks: defaultMaxBytesDelta,
			MinBytesBetweenCallbacks: defaultMinBytesDelta,
			ParallelDeletes:          defaultParallelDeletes,
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
	}
}
