package discord

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/charmbracelet/log"

	"parley.chat/capture"
)

// MessageSender posts to a text channel. Satisfied by *discordgo.Session.
type MessageSender interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// ChannelEmitter posts attributed transcript lines into a text channel.
type ChannelEmitter struct {
	send      MessageSender
	channelID string
	log       *log.Logger
}

func NewChannelEmitter(send MessageSender, channelID string, logger *log.Logger) *ChannelEmitter {
	return &ChannelEmitter{send: send, channelID: channelID, log: logger}
}

func (e *ChannelEmitter) Emit(l capture.Line) {
	if l.Text == "" {
		e.log.Debug("skipping empty line", "speaker", l.SpeakerID, "error", l.Err)
		return
	}
	msg := fmt.Sprintf("> **%s**: %s", l.Label, l.Text)
	if _, err := e.send.ChannelMessageSend(e.channelID, msg); err != nil {
		e.log.Error("post transcript line", "channel", e.channelID, "error", err)
	}
}
