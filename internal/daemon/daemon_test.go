package daemon

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/galdahar56/raid-logger-bot-2/internal/config"
	"github.com/galdahar56/raid-logger-bot-2/internal/controls"
	"github.com/galdahar56/raid-logger-bot-2/internal/coordinator"
	"github.com/galdahar56/raid-logger-bot-2/internal/extract"
	"github.com/galdahar56/raid-logger-bot-2/internal/ledger"
	"github.com/galdahar56/raid-logger-bot-2/internal/log"
	"github.com/galdahar56/raid-logger-bot-2/internal/signup"
)

type fakeGateway struct {
	mu       sync.Mutex
	handlers int
	removed  int
	opened   bool
	closed   bool
	openErr  error
	edits    []*discordgo.MessageEdit
}

func (f *fakeGateway) ChannelMessage(string, string, ...discordgo.RequestOption) (*discordgo.Message, error) {
	return nil, &discordgo.RESTError{Message: &discordgo.APIErrorMessage{Message: "Unknown Message"}}
}

func (f *fakeGateway) ChannelMessageSendComplex(channelID string, _ *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	return &discordgo.Message{ID: "posted", ChannelID: channelID}, nil
}

func (f *fakeGateway) ChannelMessageEditComplex(m *discordgo.MessageEdit, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, m)
	return &discordgo.Message{ID: m.ID}, nil
}

func (f *fakeGateway) InteractionRespond(*discordgo.Interaction, *discordgo.InteractionResponse, ...discordgo.RequestOption) error {
	return nil
}

func (f *fakeGateway) FollowupMessageCreate(*discordgo.Interaction, bool, *discordgo.WebhookParams, ...discordgo.RequestOption) (*discordgo.Message, error) {
	return &discordgo.Message{}, nil
}

func (f *fakeGateway) AddHandler(interface{}) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers++
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.removed++
	}
}

func (f *fakeGateway) Open() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return f.openErr
	}
	f.opened = true
	return nil
}

func (f *fakeGateway) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeGateway) isOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened
}

func testConfig() config.AppConfig {
	cfg := config.Defaults()
	cfg.Version = "test"
	cfg.Discord.Token = "token"
	cfg.Discord.SignupChannelID = "signups"
	cfg.Discord.FormedChannelID = "formed"
	cfg.Ledger.Backend = config.LedgerMemory
	cfg.Events.Backend = config.EventsMemory
	cfg.HTTP.ListenAddr = "127.0.0.1:0"
	cfg.Signup.SourceZone = "UTC"
	cfg.Signup.TargetZone = "UTC"
	return cfg
}

func TestBuildAndRun(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	gw := &fakeGateway{}
	table := ledger.NewMemoryTable()
	table.Seed("Run_Schedule", [][]string{{"Run ID"}, {"R1"}})

	app, err := Build(context.Background(), testConfig(), Options{Gateway: gw, Table: table})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()
	require.Eventually(t, gw.isOpen, 2*time.Second, 10*time.Millisecond)

	ref := signup.EventRef{ChannelID: "signups", MessageID: "m1"}
	app.Registry().Register(ref, extract.Descriptor{Activity: "Halls of Valor", RunID: "R1"})
	out := app.Coordinator().Handle(context.Background(), coordinator.Request{
		Ref:      ref,
		Action:   controls.ActionSignup,
		Role:     signup.RoleTank,
		Claimant: signup.Claimant{UserID: "u1", DisplayName: "Alice"},
	})
	assert.Equal(t, coordinator.StatusClaimed, out.Status)
	assert.NoError(t, out.LedgerErr)

	rows, err := table.ReadRows(context.Background(), "Run_Schedule")
	require.NoError(t, err)
	assert.Equal(t, "Alice", ledger.Cell(rows[1], 5))

	cancel()
	require.NoError(t, <-done)

	gw.mu.Lock()
	defer gw.mu.Unlock()
	assert.True(t, gw.closed)
	assert.Equal(t, 5, gw.handlers)
	assert.Equal(t, gw.handlers, gw.removed)
	assert.NotEmpty(t, gw.edits)
}

func TestRun_GatewayOpenFailure(t *testing.T) {
	gw := &fakeGateway{openErr: errors.New("invalid token")}
	app, err := Build(context.Background(), testConfig(), Options{Gateway: gw})
	require.NoError(t, err)

	err = app.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid token")
	assert.False(t, gw.closed)
}

func TestBuild_UnknownBackend(t *testing.T) {
	cfg := testConfig()
	cfg.Ledger.Backend = "excel"
	_, err := Build(context.Background(), cfg, Options{Gateway: &fakeGateway{}})
	assert.ErrorIs(t, err, ErrUnknownBackend)

	cfg = testConfig()
	cfg.Events.Backend = "kafka"
	_, err = Build(context.Background(), cfg, Options{Gateway: &fakeGateway{}})
	assert.ErrorIs(t, err, ErrUnknownBackend)

	cfg = testConfig()
	cfg.Events.Backend = config.EventsRedis
	_, err = Build(context.Background(), cfg, Options{Gateway: &fakeGateway{}})
	assert.Error(t, err)
}

func TestApplyConfig_UpdatesOverrides(t *testing.T) {
	app, err := Build(context.Background(), testConfig(), Options{Gateway: &fakeGateway{}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.runShutdownHooks(context.Background()) })

	next := testConfig()
	next.Signup.OverrideIDs = []string{"lead"}
	app.applyConfig(next)
	assert.True(t, app.Registry().Overrides().Contains("lead"))
}

type fakeEvictor struct{ keys []string }

func (f *fakeEvictor) EvictIdle(time.Duration) []string { return f.keys }

type forgetRecorder struct{ keys []string }

func (f *forgetRecorder) Forget(key string) { f.keys = append(f.keys, key) }

func TestSweeper(t *testing.T) {
	forget := &forgetRecorder{}
	s := &sweeper{evictor: &fakeEvictor{keys: []string{"m1", "m2"}}, forget: forget, idle: time.Hour, logger: log.WithComponent("test")}
	assert.Equal(t, 2, s.sweep())
	assert.Equal(t, []string{"m1", "m2"}, forget.keys)

	err := s.run(context.Background(), "not a schedule")
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, s.run(ctx, "@every 1h"))
}

func TestShutdownHooksRunInReverse(t *testing.T) {
	app := &App{logger: log.WithComponent("test")}
	var order []string
	app.registerShutdownHook("first", func(context.Context) error { order = append(order, "first"); return nil })
	app.registerShutdownHook("second", func(context.Context) error { order = append(order, "second"); return errors.New("boom") })

	err := app.runShutdownHooks(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"second", "first"}, order)
	assert.Empty(t, app.hooks)
}
