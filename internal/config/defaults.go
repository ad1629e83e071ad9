package config

const (
	defaultConfigPath           = "~/.config/recordsync/config.toml"
	projectConfigName           = "recordsync.toml"
	defaultDataDir              = "~/.local/share/recordsync/store"
	defaultStateDir             = "~/.local/state/recordsync"
	defaultLogRetentionDays     = 30
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultSort                 = "created_at"
	defaultDeletionTolerance    = 10
	defaultGateKey              = "execution_may_go_on"
	defaultJobGateFile          = "job_gate.json"
	defaultSupervisorGateFile   = "supervisor_gate.json"
	defaultPollInterval         = 5
	defaultMirrorFile           = "mirror.db"
	defaultMetricsFile          = "recordsync.prom"
	defaultNotifyRequestTimeout = 10
	defaultJobInterval          = 3600
)

var defaultTargets = []string{"mirror"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:  defaultDataDir,
			StateDir: xdgDir("XDG_STATE_HOME", defaultStateDir),
		},
		Store: Store{
			ArchiveOnDelete: true,
			DefaultSort:     defaultSort,
		},
		Reconcile: Reconcile{
			DeletionTolerance:   defaultDeletionTolerance,
			OrderNormalizedHash: true,
			Targets:             append([]string(nil), defaultTargets...),
		},
		Gates: Gates{
			Key: defaultGateKey,
		},
		Supervisor: Supervisor{
			PollInterval: defaultPollInterval,
			WatchGates:   true,
		},
		Mirror: Mirror{
			Enabled: true,
		},
		Notifications: Notifications{
			RequestTimeout:  defaultNotifyRequestTimeout,
			RunSummary:      true,
			DeletionBlocked: true,
			Errors:          true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
