package daemon

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/galdahar56/raid-logger-bot-2/internal/api"
	"github.com/galdahar56/raid-logger-bot-2/internal/config"
	"github.com/galdahar56/raid-logger-bot-2/internal/controls"
	"github.com/galdahar56/raid-logger-bot-2/internal/coordinator"
	"github.com/galdahar56/raid-logger-bot-2/internal/discord"
	"github.com/galdahar56/raid-logger-bot-2/internal/events"
	"github.com/galdahar56/raid-logger-bot-2/internal/extract"
	"github.com/galdahar56/raid-logger-bot-2/internal/health"
	"github.com/galdahar56/raid-logger-bot-2/internal/ledger"
	"github.com/galdahar56/raid-logger-bot-2/internal/ledger/sheets"
	ledgersqlite "github.com/galdahar56/raid-logger-bot-2/internal/ledger/sqlite"
	"github.com/galdahar56/raid-logger-bot-2/internal/log"
	"github.com/galdahar56/raid-logger-bot-2/internal/notify"
	"github.com/galdahar56/raid-logger-bot-2/internal/ratelimit"
	"github.com/galdahar56/raid-logger-bot-2/internal/resilience"
	"github.com/galdahar56/raid-logger-bot-2/internal/signup"
	"github.com/galdahar56/raid-logger-bot-2/internal/telemetry"
)

// Options supplies collaborators that tests replace.
type Options struct {
	// Holder enables hot reload of the override list.
	Holder *config.ConfigHolder
	// Gateway replaces the discordgo session.
	Gateway Gateway
	// Table replaces the ledger backend named in the config.
	Table ledger.Table
}

// Build wires every component from cfg. Nothing connects to the chat
// platform until Run.
func Build(ctx context.Context, cfg config.AppConfig, opts Options) (app *App, err error) {
	app = &App{
		cfg:    cfg,
		holder: opts.Holder,
		logger: log.WithComponent("daemon"),
		health: health.NewManager(cfg.Version),
	}
	defer func() {
		if err != nil {
			_ = app.runShutdownHooks(context.Background())
			app = nil
		}
	}()

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Log.Service,
		ServiceVersion: cfg.Version,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	app.registerShutdownHook("telemetry", tp.Shutdown)

	gw := opts.Gateway
	if gw == nil {
		s, err := discord.NewSession(cfg.Discord.Token)
		if err != nil {
			return nil, err
		}
		gw = s
	}
	app.gateway = gw

	var redisClient redis.UniversalClient
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		redisClient = client
		app.registerShutdownHook("redis", func(context.Context) error { return client.Close() })
		app.health.RegisterChecker(health.NewPingChecker("redis", false, func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}))
	}

	table, err := app.buildTable(ctx, opts.Table)
	if err != nil {
		return nil, err
	}
	breaker := resilience.NewCircuitBreaker("ledger", cfg.Ledger.BreakerThreshold, cfg.Ledger.BreakerReset)
	guarded := ledger.NewGuardedTable(table, breaker)
	app.health.RegisterChecker(health.NewBreakerChecker(breaker))

	layout := ledger.Layout{
		LogSheet:      cfg.Ledger.LogSheet,
		ScheduleSheet: cfg.Ledger.ScheduleSheet,
		RunIDColumn:   cfg.Ledger.RunIDColumn,
		RoleColumns:   cfg.Ledger.RoleColumns,
	}
	if len(layout.RoleColumns) == 0 {
		layout.RoleColumns = ledger.DefaultLayout().RoleColumns
	}
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	syncer := ledger.NewSynchronizer(guarded, layout)

	var publisher coordinator.Publisher
	switch cfg.Events.Backend {
	case config.EventsNone, "":
	case config.EventsMemory:
		p := events.NewMemoryPublisher()
		publisher = p
		app.registerShutdownHook("events", func(context.Context) error { return p.Close() })
	case config.EventsRedis:
		if redisClient == nil {
			return nil, fmt.Errorf("events: redis backend needs redis.addr")
		}
		p, err := events.NewRedisPublisher(redisClient)
		if err != nil {
			return nil, err
		}
		publisher = p
		app.registerShutdownHook("events", func(context.Context) error { return p.Close() })
	default:
		return nil, fmt.Errorf("events %q: %w", cfg.Events.Backend, ErrUnknownBackend)
	}

	source, err := time.LoadLocation(cfg.Signup.SourceZone)
	if err != nil {
		return nil, fmt.Errorf("source zone: %w", err)
	}
	target, err := time.LoadLocation(cfg.Signup.TargetZone)
	if err != nil {
		return nil, fmt.Errorf("target zone: %w", err)
	}
	extractor := extract.New(extract.Options{SourceZone: source, TargetZone: target, Layout: cfg.Signup.DisplayLayout})

	registry := signup.NewRegistry(
		discord.NewAnnouncementSource(gw),
		extractor,
		signup.WithOverrides(signup.NewOverrides(cfg.Signup.OverrideIDs...)),
	)
	reconciler := controls.NewReconciler(discord.NewRenderer(gw), registry.Roster())

	var store notify.NotifiedStore = notify.NewMemoryStore()
	if redisClient != nil {
		store = notify.NewRedisStore(redisClient, "", cfg.Redis.NotifiedTTL)
	}
	notifier := notify.New(notify.Config{
		Delay:    cfg.Signup.DebounceWindow,
		Store:    store,
		Forms:    notify.NewSheetFormReader(guarded, cfg.Ledger.FormSheet),
		Poster:   discord.NewPoster(gw, cfg.Discord.FormedChannelID),
		Recorder: &coordinator.FormedRecorder{Ledger: syncer, Events: publisher},
		Roster:   registry.Roster(),
		Timeout:  cfg.Ledger.Timeout,
	})
	app.registerShutdownHook("notifier", func(context.Context) error {
		notifier.Close()
		return nil
	})

	limiter := ratelimit.New(ratelimit.Config{
		GlobalRate:   rate.Limit(cfg.Signup.GlobalRate),
		GlobalBurst:  cfg.Signup.GlobalBurst,
		PerUserRate:  rate.Limit(cfg.Signup.UserRate),
		PerUserBurst: cfg.Signup.UserBurst,
		IdleTTL:      10 * time.Minute,
	})

	coord, err := coordinator.New(coordinator.Config{
		Registry: registry,
		Ledger:   syncer,
		Controls: reconciler,
		Notifier: notifier,
		Events:   publisher,
		Limiter:  limiter,
	})
	if err != nil {
		return nil, err
	}

	router := discord.NewRouter(coord, cfg.Discord.Timeout)
	announcer := discord.NewAnnouncer(registry, extractor, cfg.Discord.SignupChannelID, cfg.Discord.Timeout)
	app.connected = &atomic.Bool{}
	connected := app.connected
	app.handlers = []interface{}{
		router.OnInteraction,
		announcer.OnMessage,
		func(_ *discordgo.Session, r *discordgo.Ready) {
			connected.Store(true)
			if r.User != nil {
				app.logger.Info().Str("user", r.User.Username).Msg("gateway ready")
			}
		},
		func(_ *discordgo.Session, _ *discordgo.Disconnect) { connected.Store(false) },
		func(_ *discordgo.Session, _ *discordgo.Resumed) { connected.Store(true) },
	}
	app.health.RegisterChecker(health.NewFuncChecker("gateway", "not connected", connected.Load))

	srv, err := api.New(api.Config{
		Registry:       registry,
		Notifier:       notifier,
		Controls:       reconciler,
		Health:         app.health,
		AdminToken:     cfg.HTTP.AdminToken,
		AdminRateLimit: cfg.HTTP.AdminRateLimit,
	})
	if err != nil {
		return nil, err
	}

	app.registry = registry
	app.coordinator = coord
	app.notifier = notifier
	app.server = srv
	app.sweeper = &sweeper{
		evictor: registry,
		forget:  reconciler,
		idle:    cfg.Signup.IdleTTL,
		logger:  log.WithComponent("sweeper"),
	}
	return app, nil
}

func (a *App) buildTable(ctx context.Context, override ledger.Table) (ledger.Table, error) {
	if override != nil {
		return override, nil
	}
	switch a.cfg.Ledger.Backend {
	case config.LedgerSheets:
		return sheets.New(ctx, sheets.Config{
			SpreadsheetID:   a.cfg.Ledger.SpreadsheetID,
			CredentialsJSON: a.cfg.Ledger.CredentialsJSON,
			CredentialsFile: a.cfg.Ledger.CredentialsFile,
		})
	case config.LedgerSQLite:
		t, err := ledgersqlite.Open(ctx, a.cfg.Ledger.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.registerShutdownHook("ledger-sqlite", func(context.Context) error { return t.Close() })
		a.health.RegisterChecker(health.NewSQLiteChecker(t.DB()))
		return t, nil
	case config.LedgerMemory:
		a.logger.Warn().Msg("ledger uses the in-memory backend")
		return ledger.NewMemoryTable(), nil
	default:
		return nil, fmt.Errorf("ledger %q: %w", a.cfg.Ledger.Backend, ErrUnknownBackend)
	}
}
