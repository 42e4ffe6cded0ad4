package witness

// GatewayConfig locates the agent process the network monitor treats as
// the root of the observed process tree (original §4.G/§6.4).
type GatewayConfig struct {
	PidFile     string
	ProcessName string
}

// Config is the witness daemon's configuration, matching original §6.4.
type Config struct {
	Enabled          bool
	WatchPaths       []string
	ExcludePaths     []string
	ProcessPollingMs int
	NetworkPollingMs int
	BufferSize       int
	FlushIntervalMs  int
	Gateway          GatewayConfig
}

// DefaultConfig returns the witness defaults named in original §4.G/§4.H/§4.I.
func DefaultConfig() Config {
	return Config{
		Enabled:          true,
		ProcessPollingMs: 1000,
		NetworkPollingMs: 1000,
		BufferSize:       200,
		FlushIntervalMs:  5000,
	}
}
