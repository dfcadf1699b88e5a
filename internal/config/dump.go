package config

import (
	"time"
)

// FileConfig converts c back to the file format, so a dump can be loaded
// again. Secrets are copied as-is; call Redacted first when printing.
func (c AppConfig) FileConfig() FileConfig {
	roles := make(map[string]string, len(c.Ledger.RoleColumns))
	for k, v := range c.Ledger.RoleColumns {
		roles[string(k)] = v
	}
	return FileConfig{
		Log: LogFileConfig{Level: c.Log.Level, Service: c.Log.Service},
		Discord: DiscordFileConfig{
			Token:           c.Discord.Token,
			SignupChannelID: c.Discord.SignupChannelID,
			FormedChannelID: c.Discord.FormedChannelID,
			Timeout:         dur(c.Discord.Timeout),
		},
		Ledger: LedgerFileConfig{
			Backend:          c.Ledger.Backend,
			SpreadsheetID:    c.Ledger.SpreadsheetID,
			CredentialsJSON:  c.Ledger.CredentialsJSON,
			CredentialsFile:  c.Ledger.CredentialsFile,
			SQLitePath:       c.Ledger.SQLitePath,
			LogSheet:         c.Ledger.LogSheet,
			ScheduleSheet:    c.Ledger.ScheduleSheet,
			FormSheet:        c.Ledger.FormSheet,
			RunIDColumn:      c.Ledger.RunIDColumn,
			RoleColumns:      roles,
			Timeout:          dur(c.Ledger.Timeout),
			BreakerThreshold: ptr(c.Ledger.BreakerThreshold),
			BreakerReset:     dur(c.Ledger.BreakerReset),
		},
		Signup: SignupFileConfig{
			OverrideIDs:      append([]string(nil), c.Signup.OverrideIDs...),
			DebounceWindow:   dur(c.Signup.DebounceWindow),
			IdleTTL:          dur(c.Signup.IdleTTL),
			EvictionSchedule: c.Signup.EvictionSchedule,
			SourceZone:       c.Signup.SourceZone,
			TargetZone:       c.Signup.TargetZone,
			DisplayLayout:    c.Signup.DisplayLayout,
			UserRate:         ptr(c.Signup.UserRate),
			UserBurst:        ptr(c.Signup.UserBurst),
			GlobalRate:       ptr(c.Signup.GlobalRate),
			GlobalBurst:      ptr(c.Signup.GlobalBurst),
		},
		Redis: RedisFileConfig{
			Addr:        c.Redis.Addr,
			Password:    c.Redis.Password,
			DB:          ptr(c.Redis.DB),
			NotifiedTTL: dur(c.Redis.NotifiedTTL),
		},
		Events: EventsFileConfig{Backend: c.Events.Backend},
		HTTP: HTTPFileConfig{
			ListenAddr:     c.HTTP.ListenAddr,
			AdminToken:     c.HTTP.AdminToken,
			AdminRateLimit: ptr(c.HTTP.AdminRateLimit),
		},
		Telemetry: TelemetryFileConfig{
			Enabled:    ptr(c.Telemetry.Enabled),
			Exporter:   c.Telemetry.Exporter,
			Endpoint:   c.Telemetry.Endpoint,
			SampleRate: ptr(c.Telemetry.SampleRate),
		},
	}
}

func dur(d time.Duration) string {
	if d == 0 {
		return ""
	}
	return d.String()
}

func ptr[T any](v T) *T { return &v }
