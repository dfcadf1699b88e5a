package config

import (
	"fmt"
	_ "time/tzdata" // zone names must resolve in minimal containers

	"github.com/robfig/cron/v3"

	"github.com/galdahar56/raid-logger-bot-2/internal/signup"
	"github.com/galdahar56/raid-logger-bot-2/internal/validate"
)

// Validate reports every problem in cfg at once.
func Validate(cfg AppConfig) error {
	v := validate.New()

	if _, err := validate.ParseLogLevel(cfg.Log.Level); err != nil {
		v.AddError("log.level", "must be one of trace, debug, info, warn, error", cfg.Log.Level)
	}

	v.NotEmpty("discord.token", cfg.Discord.Token)
	v.Snowflake("discord.formedChannelId", cfg.Discord.FormedChannelID)
	if cfg.Discord.SignupChannelID != "" {
		v.Snowflake("discord.signupChannelId", cfg.Discord.SignupChannelID)
	}
	v.PositiveDuration("discord.timeout", cfg.Discord.Timeout)

	validateLedger(v, cfg.Ledger)
	validateSignup(v, cfg.Signup)

	v.OneOf("events.backend", cfg.Events.Backend, []string{EventsNone, EventsMemory, EventsRedis})
	if cfg.Events.Backend == EventsRedis && cfg.Redis.Addr == "" {
		v.AddError("redis.addr", "required when events.backend is redis", cfg.Redis.Addr)
	}
	if cfg.Redis.Addr != "" {
		v.NonNegative("redis.db", cfg.Redis.DB)
		v.PositiveDuration("redis.notifiedTtl", cfg.Redis.NotifiedTTL)
	}

	if cfg.HTTP.ListenAddr != "" {
		v.ListenAddr("http.listenAddr", cfg.HTTP.ListenAddr)
		v.Positive("http.adminRateLimit", cfg.HTTP.AdminRateLimit)
	}

	if cfg.Telemetry.Enabled {
		v.OneOf("telemetry.exporter", cfg.Telemetry.Exporter, []string{"grpc", "http"})
		v.NotEmpty("telemetry.endpoint", cfg.Telemetry.Endpoint)
		v.Custom("telemetry.sampleRate", cfg.Telemetry.SampleRate, ratio)
	}

	return v.Err()
}

func validateLedger(v *validate.Validator, l LedgerConfig) {
	v.OneOf("ledger.backend", l.Backend, []string{LedgerSheets, LedgerSQLite, LedgerMemory})
	switch l.Backend {
	case LedgerSheets:
		v.NotEmpty("ledger.spreadsheetId", l.SpreadsheetID)
		switch {
		case l.CredentialsJSON != "":
		case l.CredentialsFile != "":
			v.FileReadable("ledger.credentialsFile", l.CredentialsFile)
		default:
			v.AddError("ledger.credentialsJson", "service account credentials are required for the sheets backend", "")
		}
	case LedgerSQLite:
		v.NotEmpty("ledger.sqlitePath", l.SQLitePath)
	}
	v.NotEmpty("ledger.logSheet", l.LogSheet)
	v.NotEmpty("ledger.scheduleSheet", l.ScheduleSheet)
	v.NotEmpty("ledger.formSheet", l.FormSheet)
	v.SheetColumn("ledger.runIdColumn", l.RunIDColumn)
	roster := signup.DefaultRoster()
	for role, col := range l.RoleColumns {
		if _, ok := roster.Role(role); !ok {
			v.AddError("ledger.roleColumns", fmt.Sprintf("unknown role %q", role), role)
			continue
		}
		v.SheetColumn("ledger.roleColumns."+string(role), col)
	}
	v.PositiveDuration("ledger.timeout", l.Timeout)
	v.Positive("ledger.breakerThreshold", l.BreakerThreshold)
	v.PositiveDuration("ledger.breakerReset", l.BreakerReset)
}

func validateSignup(v *validate.Validator, s SignupConfig) {
	for _, id := range s.OverrideIDs {
		v.Snowflake("signup.overrideIds", id)
	}
	v.PositiveDuration("signup.debounceWindow", s.DebounceWindow)
	v.PositiveDuration("signup.idleTtl", s.IdleTTL)
	if _, err := cron.ParseStandard(s.EvictionSchedule); err != nil {
		v.AddError("signup.evictionSchedule", fmt.Sprintf("invalid cron spec: %v", err), s.EvictionSchedule)
	}
	v.TimeZone("signup.sourceZone", s.SourceZone)
	v.TimeZone("signup.targetZone", s.TargetZone)
	v.NotEmpty("signup.displayLayout", s.DisplayLayout)
	v.Custom("signup.userRate", s.UserRate, positiveFloat)
	v.Positive("signup.userBurst", s.UserBurst)
	v.Custom("signup.globalRate", s.GlobalRate, positiveFloat)
	v.Positive("signup.globalBurst", s.GlobalBurst)
}

func positiveFloat(val interface{}) error {
	if f, _ := val.(float64); f <= 0 {
		return fmt.Errorf("must be positive, got %v", val)
	}
	return nil
}

func ratio(val interface{}) error {
	if f, _ := val.(float64); f < 0 || f > 1 {
		return fmt.Errorf("must be between 0 and 1, got %v", val)
	}
	return nil
}
