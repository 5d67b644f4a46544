package config

const (
	defaultDataDir            = "~/.local/share/sbomflow/data"
	defaultLogDir             = "~/.local/share/sbomflow/logs"
	defaultSpoolDir           = "~/.local/share/sbomflow/spool"
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultBusPartitions      = 8
	defaultDeliveryAttempts   = 3
	defaultBusBufferSize      = 256
	defaultThresholdWindowSec = 60
	defaultThresholdCount     = 10
	defaultSpoolPollInterval  = 2
	defaultErrorRetryInterval = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:  defaultDataDir,
			LogDir:   defaultLogDir,
			SpoolDir: defaultSpoolDir,
		},
		Bus: Bus{
			Partitions:       defaultBusPartitions,
			DeliveryAttempts: defaultDeliveryAttempts,
			BufferSize:       defaultBusBufferSize,
		},
		Alerting: Alerting{
			ThresholdWindowSeconds: defaultThresholdWindowSec,
			ThresholdCount:         defaultThresholdCount,
		},
		Pipeline: Pipeline{
			SpoolPollInterval:  defaultSpoolPollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
