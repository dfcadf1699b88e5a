package discord

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/galdahar56/raid-logger-bot-2/internal/controls"
	"github.com/galdahar56/raid-logger-bot-2/internal/extract"
	applog "github.com/galdahar56/raid-logger-bot-2/internal/log"
	"github.com/galdahar56/raid-logger-bot-2/internal/signup"
)

// AnnouncementColor is the accent colour of a signup announcement.
const AnnouncementColor = 0x3498db

// Announcer re-posts run postings from the signup channel as announcements
// carrying signup controls, and registers the resulting events.
type Announcer struct {
	registry  *signup.Registry
	extractor signup.DescriptorExtractor
	channelID string
	timeout   time.Duration
	logger    zerolog.Logger
}

// NewAnnouncer returns an Announcer watching channelID.
func NewAnnouncer(registry *signup.Registry, extractor signup.DescriptorExtractor, channelID string, timeout time.Duration) *Announcer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Announcer{
		registry:  registry,
		extractor: extractor,
		channelID: channelID,
		timeout:   timeout,
		logger:    applog.WithComponent("discord"),
	}
}

// OnMessage is registered with Session.AddHandler.
func (a *Announcer) OnMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()
	if _, err := a.Announce(ctx, s, m.Message); err != nil {
		a.logger.Warn().Err(err).Str("source_message_id", m.ID).Msg("failed to publish announcement")
	}
}

// Announce publishes an announcement for msg when it was written by a person
// in the signup channel and names a run. It returns nil, nil for messages
// it ignores.
func (a *Announcer) Announce(ctx context.Context, api API, msg *discordgo.Message) (*signup.Event, error) {
	if msg == nil || msg.ChannelID != a.channelID || msg.Author == nil || msg.Author.Bot {
		return nil, nil
	}
	desc, err := a.extractor.Extract(Flatten(msg))
	if err != nil {
		a.logger.Debug().Err(err).Str("source_message_id", msg.ID).Msg("message is not a run posting")
		return nil, nil
	}

	posted, err := api.ChannelMessageSendComplex(a.channelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{AnnouncementEmbed(desc)},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("discord: post announcement for %s: %w", desc.RunID, err)
	}

	ref := signup.EventRef{ChannelID: posted.ChannelID, MessageID: posted.ID}
	if ref.ChannelID == "" {
		ref.ChannelID = a.channelID
	}
	ev := a.registry.Register(ref, desc)

	// Controls carry the announcement's own id, so they can only be added
	// once it exists.
	edit := discordgo.NewMessageEdit(ref.ChannelID, ref.MessageID)
	components := Components(controls.Project(ev.Snapshot(), a.registry.Roster()), ref.MessageID)
	edit.Components = &components
	if _, err := api.ChannelMessageEditComplex(edit, discordgo.WithContext(ctx)); err != nil {
		return ev, fmt.Errorf("discord: attach controls to %s: %w", ref.MessageID, err)
	}

	a.logger.Info().
		Str("event_key", ref.Key()).
		Str("run_id", desc.RunID).
		Str("activity", desc.Activity).
		Msg("announcement published")
	return ev, nil
}

// AnnouncementEmbed renders desc as labelled fields the extractor reads back.
// A parsed time is written as a chat timestamp so rehydration does not depend
// on the zone abbreviation in the rendered text.
func AnnouncementEmbed(desc extract.Descriptor) *discordgo.MessageEmbed {
	fields := []*discordgo.MessageEmbedField{
		{Name: "Activity", Value: desc.Activity, Inline: true},
	}
	switch {
	case desc.StartUnix != 0:
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Date/Time", Value: extract.ChatTimestamp(desc.StartUnix), Inline: true})
	case desc.ScheduledTime != "":
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Date/Time", Value: desc.ScheduledTime, Inline: true})
	}
	fields = append(fields, &discordgo.MessageEmbedField{Name: "Run ID", Value: desc.RunID, Inline: true})
	return &discordgo.MessageEmbed{
		Title:       "📅 " + desc.Activity,
		Description: "Pick a role below.",
		Fields:      fields,
		Color:       AnnouncementColor,
	}
}
