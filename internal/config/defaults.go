package config

const (
	defaultStateDir           = "~/.local/share/mediasync/state"
	defaultDownloadDir        = "~/mediasync"
	defaultLogDir             = "~/.local/share/mediasync/logs"
	defaultOutputTemplate     = "%(title)s.%(ext)s"
	defaultThumbnailSubdir    = ".thumbs"
	defaultDownloadTimeout    = 30
	defaultWorkers            = 2
	defaultPollInterval       = 5
	defaultErrorRetryInterval = 10
	defaultTaskMaxAttempts    = 5
	defaultTaskRetryBackoff   = 60
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultNotifyTimeout      = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir:    defaultStateDir,
			DownloadDir: defaultDownloadDir,
			LogDir:      defaultLogDir,
		},
		Downloads: Downloads{
			RequestTimeout:  defaultDownloadTimeout,
			OutputTemplate:  defaultOutputTemplate,
			ThumbnailSubdir: defaultThumbnailSubdir,
		},
		Workflow: Workflow{
			Workers:            defaultWorkers,
			PollInterval:       defaultPollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			TaskMaxAttempts:    defaultTaskMaxAttempts,
			TaskRetryBackoff:   defaultTaskRetryBackoff,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Downloads:      true,
			Errors:         true,
		},
	}
}
