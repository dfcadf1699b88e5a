package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/galdahar56/raid-logger-bot-2/internal/signup"
)

// envAliases maps canonical keys to the names the first deployment used.
var envAliases = map[string]string{
	EnvPrefix + "DISCORD_TOKEN":           "DISCORD_TOKEN",
	EnvPrefix + "SHEET_ID":                "SHEET_ID",
	EnvPrefix + "FORMED_CHANNEL_ID":       "FORMED_GROUPS_CHANNEL_ID",
	EnvPrefix + "GOOGLE_CREDENTIALS_JSON": "GOOGLE_SERVICE_JSON",
}

// Loader handles configuration loading with precedence
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{} // Mechanical tracking of consumed keys
}

// NewLoader creates a new configuration loader
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Path returns the config file path, which may be empty.
func (l *Loader) Path() string { return l.configPath }

// key resolves the canonical key or, when only the alias is set, the alias.
func (l *Loader) key(canonical string) string {
	l.ConsumedEnvKeys[canonical] = struct{}{}
	alias, ok := envAliases[canonical]
	if !ok {
		return canonical
	}
	l.ConsumedEnvKeys[alias] = struct{}{}
	if v, set := os.LookupEnv(canonical); set && v != "" {
		return canonical
	}
	return alias
}

func (l *Loader) envString(key, defaultVal string) string {
	return ParseString(l.key(key), defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	return ParseInt(l.key(key), defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	return ParseFloat(l.key(key), defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	return ParseBool(l.key(key), defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	return ParseDuration(l.key(key), defaultVal)
}

func (l *Loader) envList(key string, defaultVal []string) []string {
	return ParseList(l.key(key), defaultVal)
}

// Load loads configuration with precedence: ENV > File > Defaults
// It enforces Strict Validated Order: Parse File (Strict) -> Apply Env -> Validate
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		fileCfg, err := l.loadFile(l.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		if err := mergeFileConfig(&cfg, fileCfg); err != nil {
			return cfg, fmt.Errorf("merge file config: %w", err)
		}
	}

	if err := checkAliasConflicts(); err != nil {
		return cfg, err
	}
	l.mergeEnvConfig(&cfg)
	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile loads configuration from a YAML file with STRICT parsing.
// Unknown fields will cause a fatal error to prevent misconfiguration.
func (l *Loader) loadFile(path string) (*FileConfig, error) {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var fileCfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&fileCfg); err != nil {
		if errors.Is(err, io.EOF) {
			return &FileConfig{}, nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return nil, fmt.Errorf("%w: %v", ErrUnknownConfigField, err)
		}
		return nil, fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return &fileCfg, nil
}

func mergeFileConfig(dst *AppConfig, src *FileConfig) error {
	setString(&dst.Log.Level, src.Log.Level)
	setString(&dst.Log.Service, src.Log.Service)

	setString(&dst.Discord.Token, src.Discord.Token)
	setString(&dst.Discord.SignupChannelID, src.Discord.SignupChannelID)
	setString(&dst.Discord.FormedChannelID, src.Discord.FormedChannelID)

	l := &dst.Ledger
	setString(&l.Backend, src.Ledger.Backend)
	setString(&l.SpreadsheetID, src.Ledger.SpreadsheetID)
	setString(&l.CredentialsJSON, src.Ledger.CredentialsJSON)
	setString(&l.CredentialsFile, src.Ledger.CredentialsFile)
	setString(&l.SQLitePath, src.Ledger.SQLitePath)
	setString(&l.LogSheet, src.Ledger.LogSheet)
	setString(&l.ScheduleSheet, src.Ledger.ScheduleSheet)
	setString(&l.FormSheet, src.Ledger.FormSheet)
	setString(&l.RunIDColumn, src.Ledger.RunIDColumn)
	for role, col := range src.Ledger.RoleColumns {
		l.RoleColumns[signup.RoleID(role)] = strings.ToUpper(col)
	}
	setInt(&l.BreakerThreshold, src.Ledger.BreakerThreshold)

	s := &dst.Signup
	if src.Signup.OverrideIDs != nil {
		s.OverrideIDs = append([]string(nil), src.Signup.OverrideIDs...)
	}
	setString(&s.EvictionSchedule, src.Signup.EvictionSchedule)
	setString(&s.SourceZone, src.Signup.SourceZone)
	setString(&s.TargetZone, src.Signup.TargetZone)
	setString(&s.DisplayLayout, src.Signup.DisplayLayout)
	setFloat(&s.UserRate, src.Signup.UserRate)
	setInt(&s.UserBurst, src.Signup.UserBurst)
	setFloat(&s.GlobalRate, src.Signup.GlobalRate)
	setInt(&s.GlobalBurst, src.Signup.GlobalBurst)

	setString(&dst.Redis.Addr, src.Redis.Addr)
	setString(&dst.Redis.Password, src.Redis.Password)
	setInt(&dst.Redis.DB, src.Redis.DB)

	setString(&dst.Events.Backend, src.Events.Backend)

	setString(&dst.HTTP.ListenAddr, src.HTTP.ListenAddr)
	setString(&dst.HTTP.AdminToken, src.HTTP.AdminToken)
	setInt(&dst.HTTP.AdminRateLimit, src.HTTP.AdminRateLimit)

	if src.Telemetry.Enabled != nil {
		dst.Telemetry.Enabled = *src.Telemetry.Enabled
	}
	setString(&dst.Telemetry.Exporter, src.Telemetry.Exporter)
	setString(&dst.Telemetry.Endpoint, src.Telemetry.Endpoint)
	setFloat(&dst.Telemetry.SampleRate, src.Telemetry.SampleRate)

	for _, d := range []struct {
		field string
		raw   string
		dst   *time.Duration
	}{
		{"discord.timeout", src.Discord.Timeout, &dst.Discord.Timeout},
		{"ledger.timeout", src.Ledger.Timeout, &l.Timeout},
		{"ledger.breakerReset", src.Ledger.BreakerReset, &l.BreakerReset},
		{"signup.debounceWindow", src.Signup.DebounceWindow, &s.DebounceWindow},
		{"signup.idleTtl", src.Signup.IdleTTL, &s.IdleTTL},
		{"redis.notifiedTtl", src.Redis.NotifiedTTL, &dst.Redis.NotifiedTTL},
	} {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("%s: %w", d.field, err)
		}
		*d.dst = parsed
	}
	return nil
}

func (l *Loader) mergeEnvConfig(cfg *AppConfig) {
	p := EnvPrefix
	cfg.Log.Level = l.envString(p+"LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Service = l.envString(p+"LOG_SERVICE", cfg.Log.Service)

	cfg.Discord.Token = l.envString(p+"DISCORD_TOKEN", cfg.Discord.Token)
	cfg.Discord.SignupChannelID = l.envString(p+"SIGNUP_CHANNEL_ID", cfg.Discord.SignupChannelID)
	cfg.Discord.FormedChannelID = l.envString(p+"FORMED_CHANNEL_ID", cfg.Discord.FormedChannelID)
	cfg.Discord.Timeout = l.envDuration(p+"DISCORD_TIMEOUT", cfg.Discord.Timeout)

	cfg.Ledger.Backend = l.envString(p+"LEDGER_BACKEND", cfg.Ledger.Backend)
	cfg.Ledger.SpreadsheetID = l.envString(p+"SHEET_ID", cfg.Ledger.SpreadsheetID)
	cfg.Ledger.CredentialsJSON = l.envString(p+"GOOGLE_CREDENTIALS_JSON", cfg.Ledger.CredentialsJSON)
	cfg.Ledger.CredentialsFile = l.envString(p+"GOOGLE_CREDENTIALS_FILE", cfg.Ledger.CredentialsFile)
	cfg.Ledger.SQLitePath = l.envString(p+"LEDGER_SQLITE_PATH", cfg.Ledger.SQLitePath)
	cfg.Ledger.Timeout = l.envDuration(p+"LEDGER_TIMEOUT", cfg.Ledger.Timeout)

	cfg.Signup.OverrideIDs = l.envList(p+"OVERRIDE_IDS", cfg.Signup.OverrideIDs)
	cfg.Signup.DebounceWindow = l.envDuration(p+"DEBOUNCE_WINDOW", cfg.Signup.DebounceWindow)
	cfg.Signup.IdleTTL = l.envDuration(p+"IDLE_TTL", cfg.Signup.IdleTTL)
	cfg.Signup.EvictionSchedule = l.envString(p+"EVICTION_SCHEDULE", cfg.Signup.EvictionSchedule)
	cfg.Signup.SourceZone = l.envString(p+"SOURCE_TZ", cfg.Signup.SourceZone)
	cfg.Signup.TargetZone = l.envString(p+"TARGET_TZ", cfg.Signup.TargetZone)
	cfg.Signup.UserRate = l.envFloat(p+"USER_RATE", cfg.Signup.UserRate)
	cfg.Signup.UserBurst = l.envInt(p+"USER_BURST", cfg.Signup.UserBurst)

	cfg.Redis.Addr = l.envString(p+"REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = l.envString(p+"REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = l.envInt(p+"REDIS_DB", cfg.Redis.DB)

	cfg.Events.Backend = l.envString(p+"EVENTS_BACKEND", cfg.Events.Backend)

	cfg.HTTP.ListenAddr = l.envString(p+"HTTP_LISTEN", cfg.HTTP.ListenAddr)
	cfg.HTTP.AdminToken = l.envString(p+"ADMIN_TOKEN", cfg.HTTP.AdminToken)

	cfg.Telemetry.Enabled = l.envBool(p+"TELEMETRY_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = l.envString(p+"OTEL_EXPORTER", cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = l.envString(p+"OTEL_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.SampleRate = l.envFloat(p+"OTEL_SAMPLE_RATE", cfg.Telemetry.SampleRate)
}

func checkAliasConflicts() error {
	for canonical, alias := range envAliases {
		c, cok := os.LookupEnv(canonical)
		a, aok := os.LookupEnv(alias)
		if cok && aok && c != "" && a != "" && c != a {
			return fmt.Errorf("%w: %s and %s differ", ErrAliasConflict, canonical, alias)
		}
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}
