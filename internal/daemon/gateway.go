package daemon

import (
	"github.com/bwmarrin/discordgo"

	"github.com/galdahar56/raid-logger-bot-2/internal/discord"
)

// Gateway is the chat connection: the REST calls the adapter makes plus the
// websocket lifecycle.
type Gateway interface {
	discord.API
	AddHandler(handler interface{}) func()
	Open() error
	Close() error
}

var _ Gateway = (*discordgo.Session)(nil)
