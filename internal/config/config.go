// Package config loads the bot configuration. Precedence is ENV > file >
// defaults; the file is parsed strictly so typos fail fast.
package config

import (
	"time"

	"github.com/galdahar56/raid-logger-bot-2/internal/signup"
)

// Ledger backends.
const (
	LedgerSheets = "sheets"
	LedgerSQLite = "sqlite"
	LedgerMemory = "memory"
)

// Event bus backends.
const (
	EventsNone   = "none"
	EventsMemory = "memory"
	EventsRedis  = "redis"
)

// AppConfig is the resolved runtime configuration.
type AppConfig struct {
	Version string `yaml:"-"`

	Log       LogConfig       `yaml:"log"`
	Discord   DiscordConfig   `yaml:"discord"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Signup    SignupConfig    `yaml:"signup"`
	Redis     RedisConfig     `yaml:"redis"`
	Events    EventsConfig    `yaml:"events"`
	HTTP      HTTPConfig      `yaml:"http"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type LogConfig struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
}

type DiscordConfig struct {
	Token           string        `yaml:"token"`
	SignupChannelID string        `yaml:"signupChannelId"`
	FormedChannelID string        `yaml:"formedChannelId"`
	Timeout         time.Duration `yaml:"timeout"`
}

type LedgerConfig struct {
	Backend          string                   `yaml:"backend"`
	SpreadsheetID    string                   `yaml:"spreadsheetId"`
	CredentialsJSON  string                   `yaml:"credentialsJson"`
	CredentialsFile  string                   `yaml:"credentialsFile"`
	SQLitePath       string                   `yaml:"sqlitePath"`
	LogSheet         string                   `yaml:"logSheet"`
	ScheduleSheet    string                   `yaml:"scheduleSheet"`
	FormSheet        string                   `yaml:"formSheet"`
	RunIDColumn      string                   `yaml:"runIdColumn"`
	RoleColumns      map[signup.RoleID]string `yaml:"roleColumns"`
	Timeout          time.Duration            `yaml:"timeout"`
	BreakerThreshold int                      `yaml:"breakerThreshold"`
	BreakerReset     time.Duration            `yaml:"breakerReset"`
}

type SignupConfig struct {
	OverrideIDs      []string      `yaml:"overrideIds"`
	DebounceWindow   time.Duration `yaml:"debounceWindow"`
	IdleTTL          time.Duration `yaml:"idleTtl"`
	EvictionSchedule string        `yaml:"evictionSchedule"`
	SourceZone       string        `yaml:"sourceZone"`
	TargetZone       string        `yaml:"targetZone"`
	DisplayLayout    string        `yaml:"displayLayout"`
	UserRate         float64       `yaml:"userRate"`
	UserBurst        int           `yaml:"userBurst"`
	GlobalRate       float64       `yaml:"globalRate"`
	GlobalBurst      int           `yaml:"globalBurst"`
}

// RedisConfig is optional; an empty Addr disables Redis.
type RedisConfig struct {
	Addr        string        `yaml:"addr"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	NotifiedTTL time.Duration `yaml:"notifiedTtl"`
}

type EventsConfig struct {
	Backend string `yaml:"backend"`
}

type HTTPConfig struct {
	ListenAddr     string `yaml:"listenAddr"`
	AdminToken     string `yaml:"adminToken"`
	AdminRateLimit int    `yaml:"adminRateLimit"`
}

type TelemetryConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Exporter   string  `yaml:"exporter"`
	Endpoint   string  `yaml:"endpoint"`
	SampleRate float64 `yaml:"sampleRate"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() AppConfig {
	return AppConfig{
		Log: LogConfig{Level: "info", Service: "raidbot"},
		Discord: DiscordConfig{
			Timeout: 10 * time.Second,
		},
		Ledger: LedgerConfig{
			Backend:       LedgerSheets,
			SQLitePath:    "raidbot.db",
			LogSheet:      "Signup Log",
			ScheduleSheet: "Run_Schedule",
			FormSheet:     "Form Responses 1",
			RunIDColumn:   "A",
			RoleColumns: map[signup.RoleID]string{
				signup.RoleTank:      "F",
				signup.RoleHealer:    "G",
				signup.RoleDPS1:      "H",
				signup.RoleDPS2:      "I",
				signup.RoleKeyholder: "K",
			},
			Timeout:          15 * time.Second,
			BreakerThreshold: 5,
			BreakerReset:     30 * time.Second,
		},
		Signup: SignupConfig{
			DebounceWindow:   5 * time.Second,
			IdleTTL:          72 * time.Hour,
			EvictionSchedule: "@every 1h",
			SourceZone:       "America/New_York",
			TargetZone:       "America/New_York",
			DisplayLayout:    "Mon Jan 2, 2006 3:04 PM MST",
			UserRate:         1,
			UserBurst:        5,
			GlobalRate:       50,
			GlobalBurst:      100,
		},
		Redis: RedisConfig{
			NotifiedTTL: 30 * 24 * time.Hour,
		},
		Events: EventsConfig{Backend: EventsMemory},
		HTTP: HTTPConfig{
			ListenAddr:     ":8080",
			AdminRateLimit: 30,
		},
		Telemetry: TelemetryConfig{
			Exporter:   "grpc",
			Endpoint:   "localhost:4317",
			SampleRate: 1.0,
		},
	}
}

// Redacted returns a copy with secrets masked, for dumping and logging.
func (c AppConfig) Redacted() AppConfig {
	out := c
	out.Discord.Token = mask(c.Discord.Token)
	out.Ledger.CredentialsJSON = mask(c.Ledger.CredentialsJSON)
	out.Redis.Password = mask(c.Redis.Password)
	out.HTTP.AdminToken = mask(c.HTTP.AdminToken)
	out.Ledger.RoleColumns = make(map[signup.RoleID]string, len(c.Ledger.RoleColumns))
	for k, v := range c.Ledger.RoleColumns {
		out.Ledger.RoleColumns[k] = v
	}
	out.Signup.OverrideIDs = append([]string(nil), c.Signup.OverrideIDs...)
	return out
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}
