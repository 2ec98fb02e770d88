package config

// Configfile represents the structure of the kernelproxy.yaml configuration file.
type Configfile struct {
	Version string     `yaml:"version"`
	Cache   *CacheDTO  `yaml:"cache"`
	Daemon  *DaemonDTO `yaml:"daemon"`
	Log     *LogDTO    `yaml:"log"`
}

// CacheDTO represents the cache section.
type CacheDTO struct {
	EvictionThreshold *int   `yaml:"evictionThreshold"`
	Fingerprint       string `yaml:"fingerprint"`
}

// DaemonDTO represents the daemon section.
type DaemonDTO struct {
	Socket      string  `yaml:"socket"`
	IdleTimeout string  `yaml:"idleTimeout"`
	Codec       string  `yaml:"codec"`
	MetricsAddr *string `yaml:"metricsAddr"`
}

// LogDTO represents the log section.
type LogDTO struct {
	Level string `yaml:"level"`
	JSON  *bool  `yaml:"json"`
}
