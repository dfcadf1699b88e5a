package discord

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/galdahar56/raid-logger-bot-2/internal/controls"
	"github.com/galdahar56/raid-logger-bot-2/internal/notify"
	"github.com/galdahar56/raid-logger-bot-2/internal/signup"
)

// maxButtonsPerRow is the platform limit.
const maxButtonsPerRow = 5

// Components lays controls out in action rows.
func Components(cs []controls.Control, messageID string) []discordgo.MessageComponent {
	var rows []discordgo.MessageComponent
	var row []discordgo.MessageComponent
	for _, c := range cs {
		row = append(row, discordgo.Button{
			Label:    c.Label,
			Style:    buttonStyle(c),
			CustomID: c.ID(messageID),
			Disabled: c.Disabled,
		})
		if len(row) == maxButtonsPerRow {
			rows = append(rows, discordgo.ActionsRow{Components: row})
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, discordgo.ActionsRow{Components: row})
	}
	return rows
}

func buttonStyle(c controls.Control) discordgo.ButtonStyle {
	switch {
	case c.Style == controls.StyleDanger:
		return discordgo.DangerButton
	case c.Unlocked:
		return discordgo.SuccessButton
	case c.Style == controls.StyleSecondary:
		return discordgo.SecondaryButton
	default:
		return discordgo.PrimaryButton
	}
}

// Renderer edits the controls under an announcement.
type Renderer struct {
	api API
}

// NewRenderer returns a controls.Renderer backed by api.
func NewRenderer(api API) *Renderer {
	return &Renderer{api: api}
}

// RenderControls replaces the announcement's components.
func (r *Renderer) RenderControls(ctx context.Context, ref signup.EventRef, cs []controls.Control) error {
	edit := discordgo.NewMessageEdit(ref.ChannelID, ref.MessageID)
	components := Components(cs, ref.MessageID)
	edit.Components = &components
	if _, err := r.api.ChannelMessageEditComplex(edit, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord: edit controls on %s: %w", ref.MessageID, err)
	}
	return nil
}

// Poster sends group notices to a fixed channel.
type Poster struct {
	api       API
	channelID string
	now       func() time.Time
}

// NewPoster returns a notify.Poster that posts to channelID.
func NewPoster(api API, channelID string) *Poster {
	return &Poster{api: api, channelID: channelID, now: time.Now}
}

// PostNotice sends n as an embed.
func (p *Poster) PostNotice(ctx context.Context, n notify.Notice) error {
	_, err := p.api.ChannelMessageSendComplex(p.channelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{NoticeEmbed(n, p.now())},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("discord: post notice for %s: %w", n.RunID, err)
	}
	return nil
}

// NoticeEmbed converts a notice into an embed stamped with at.
func NoticeEmbed(n notify.Notice, at time.Time) *discordgo.MessageEmbed {
	fields := make([]*discordgo.MessageEmbedField, 0, len(n.Fields))
	for _, f := range n.Fields {
		fields = append(fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	return &discordgo.MessageEmbed{
		Title:     n.Title,
		Fields:    fields,
		Footer:    &discordgo.MessageEmbedFooter{Text: n.Footer},
		Color:     n.Color,
		Timestamp: at.UTC().Format(time.RFC3339),
	}
}
