package config

// FileConfig represents the YAML configuration structure. Pointers
// distinguish "not set" from an explicit zero.
type FileConfig struct {
	Log       LogFileConfig       `yaml:"log,omitempty"`
	Discord   DiscordFileConfig   `yaml:"discord,omitempty"`
	Ledger    LedgerFileConfig    `yaml:"ledger,omitempty"`
	Signup    SignupFileConfig    `yaml:"signup,omitempty"`
	Redis     RedisFileConfig     `yaml:"redis,omitempty"`
	Events    EventsFileConfig    `yaml:"events,omitempty"`
	HTTP      HTTPFileConfig      `yaml:"http,omitempty"`
	Telemetry TelemetryFileConfig `yaml:"telemetry,omitempty"`
}

type LogFileConfig struct {
	Level   string `yaml:"level,omitempty"`
	Service string `yaml:"service,omitempty"`
}

type DiscordFileConfig struct {
	Token           string `yaml:"token,omitempty"`
	SignupChannelID string `yaml:"signupChannelId,omitempty"`
	FormedChannelID string `yaml:"formedChannelId,omitempty"`
	Timeout         string `yaml:"timeout,omitempty"` // e.g. "10s"
}

type LedgerFileConfig struct {
	Backend          string            `yaml:"backend,omitempty"` // sheets, sqlite or memory
	SpreadsheetID    string            `yaml:"spreadsheetId,omitempty"`
	CredentialsJSON  string            `yaml:"credentialsJson,omitempty"`
	CredentialsFile  string            `yaml:"credentialsFile,omitempty"`
	SQLitePath       string            `yaml:"sqlitePath,omitempty"`
	LogSheet         string            `yaml:"logSheet,omitempty"`
	ScheduleSheet    string            `yaml:"scheduleSheet,omitempty"`
	FormSheet        string            `yaml:"formSheet,omitempty"`
	RunIDColumn      string            `yaml:"runIdColumn,omitempty"`
	RoleColumns      map[string]string `yaml:"roleColumns,omitempty"`
	Timeout          string            `yaml:"timeout,omitempty"`
	BreakerThreshold *int              `yaml:"breakerThreshold,omitempty"`
	BreakerReset     string            `yaml:"breakerReset,omitempty"`
}

type SignupFileConfig struct {
	OverrideIDs      []string `yaml:"overrideIds,omitempty"`
	DebounceWindow   string   `yaml:"debounceWindow,omitempty"`
	IdleTTL          string   `yaml:"idleTtl,omitempty"`
	EvictionSchedule string   `yaml:"evictionSchedule,omitempty"` // cron spec
	SourceZone       string   `yaml:"sourceZone,omitempty"`
	TargetZone       string   `yaml:"targetZone,omitempty"`
	DisplayLayout    string   `yaml:"displayLayout,omitempty"`
	UserRate         *float64 `yaml:"userRate,omitempty"`
	UserBurst        *int     `yaml:"userBurst,omitempty"`
	GlobalRate       *float64 `yaml:"globalRate,omitempty"`
	GlobalBurst      *int     `yaml:"globalBurst,omitempty"`
}

type RedisFileConfig struct {
	Addr        string `yaml:"addr,omitempty"`
	Password    string `yaml:"password,omitempty"`
	DB          *int   `yaml:"db,omitempty"`
	NotifiedTTL string `yaml:"notifiedTtl,omitempty"`
}

type EventsFileConfig struct {
	Backend string `yaml:"backend,omitempty"` // none, memory or redis
}

type HTTPFileConfig struct {
	ListenAddr     string `yaml:"listenAddr,omitempty"`
	AdminToken     string `yaml:"adminToken,omitempty"`
	AdminRateLimit *int   `yaml:"adminRateLimit,omitempty"` // requests per minute per client
}

type TelemetryFileConfig struct {
	Enabled    *bool    `yaml:"enabled,omitempty"`
	Exporter   string   `yaml:"exporter,omitempty"` // grpc or http
	Endpoint   string   `yaml:"endpoint,omitempty"`
	SampleRate *float64 `yaml:"sampleRate,omitempty"`
}
