// Package discord connects voice channels to the capture pipeline. A
// Controller owns one Session per guild; each Session fans inbound opus
// packets out to per-speaker pipelines.
package discord

import (
	"errors"

	"github.com/bwmarrin/discordgo"
	"gopkg.in/hraban/opus.v2"

	"parley.chat/audio"
)

var (
	// ErrAlreadyConnected is returned by Join when the guild already has a
	// live voice session.
	ErrAlreadyConnected = errors.New("already connected to a voice channel in this guild")

	// ErrNotConnected is returned by Leave when the guild has no session.
	ErrNotConnected = errors.New("not connected to a voice channel in this guild")
)

// VoiceConn is one live voice channel connection.
type VoiceConn interface {
	// OnSpeaking registers the handler for speaking updates, which carry
	// the SSRC to user mapping.
	OnSpeaking(fn func(ssrc uint32, userID string, speaking bool))
	Packets() <-chan *discordgo.Packet
	Disconnect() error
}

// Transport joins voice channels. It exists so sessions can be driven by a
// fake in tests.
type Transport interface {
	JoinVoice(guildID, channelID string) (VoiceConn, error)
}

// Decoder turns one opus frame into interleaved PCM samples, returning the
// sample count per channel.
type Decoder interface {
	Decode(frame []byte, pcm []int16) (int, error)
}

// DecoderFactory builds a fresh decoder. Opus decoders carry state, so each
// SSRC gets its own.
type DecoderFactory func() (Decoder, error)

// OpusDecoders decodes at the voice gateway's native rate.
func OpusDecoders() DecoderFactory {
	return func() (Decoder, error) {
		return opus.NewDecoder(audio.SourceSampleRate, audio.SourceChannels)
	}
}

// GatewayTransport joins voice channels over a live gateway session.
type GatewayTransport struct {
	session *discordgo.Session
}

func NewGatewayTransport(s *discordgo.Session) *GatewayTransport {
	return &GatewayTransport{session: s}
}

func (t *GatewayTransport) JoinVoice(guildID, channelID string) (VoiceConn, error) {
	vc, err := t.session.ChannelVoiceJoin(guildID, channelID, false, false)
	if err != nil {
		return nil, err
	}
	return &gatewayConn{vc: vc}, nil
}

type gatewayConn struct {
	vc *discordgo.VoiceConnection
}

func (c *gatewayConn) OnSpeaking(fn func(ssrc uint32, userID string, speaking bool)) {
	c.vc.AddHandler(func(_ *discordgo.VoiceConnection, v *discordgo.VoiceSpeakingUpdate) {
		fn(uint32(v.SSRC), v.UserID, v.Speaking)
	})
}

func (c *gatewayConn) Packets() <-chan *discordgo.Packet {
	return c.vc.OpusRecv
}

func (c *gatewayConn) Disconnect() error {
	return c.vc.Disconnect()
}
