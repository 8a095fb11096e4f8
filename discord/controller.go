package discord

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"parley.chat/capture"
)

// Controller tracks which guilds have live voice sessions. One session per
// guild; joining twice is an error, as is leaving a guild without one.
type Controller struct {
	log        *log.Logger
	transport  Transport
	newDecoder DecoderFactory
	silence    time.Duration
	grace      time.Duration
	deps       capture.Deps

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewController(
	transport Transport,
	newDecoder DecoderFactory,
	silence, grace time.Duration,
	deps capture.Deps,
	logger *log.Logger,
) *Controller {
	return &Controller{
		log:        logger,
		transport:  transport,
		newDecoder: newDecoder,
		silence:    silence,
		grace:      grace,
		deps:       deps,
		sessions:   make(map[string]*Session),
	}
}

// Join connects to a voice channel and starts capturing.
func (c *Controller) Join(guildID, channelID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.sessions[guildID]; ok {
		return fmt.Errorf("guild %s: %w", guildID, ErrAlreadyConnected)
	}

	conn, err := c.transport.JoinVoice(guildID, channelID)
	if err != nil {
		return fmt.Errorf("join voice channel: %w", err)
	}

	sess := newSession(
		guildID, channelID,
		conn,
		c.silence,
		c.newDecoder,
		c.deps,
		func() { c.dropLost(guildID) },
		c.log,
	)
	c.sessions[guildID] = sess
	sess.start()

	c.log.Info("joined", "guild", guildID, "channel", channelID)
	return nil
}

// Leave disconnects the guild's session, draining in-flight utterances up to
// the grace period.
func (c *Controller) Leave(guildID string) error {
	c.mu.Lock()
	sess, ok := c.sessions[guildID]
	if ok {
		delete(c.sessions, guildID)
	}
	c.mu.Unlock()

	if !ok {
		return fmt.Errorf("guild %s: %w", guildID, ErrNotConnected)
	}
	return sess.Close(c.grace)
}

// LeaveAll closes every session. Used on shutdown.
func (c *Controller) LeaveAll() {
	c.mu.Lock()
	sessions := make([]*Session, 0, len(c.sessions))
	for id, sess := range c.sessions {
		sessions = append(sessions, sess)
		delete(c.sessions, id)
	}
	c.mu.Unlock()

	var wg sync.WaitGroup
	for _, sess := range sessions {
		wg.Add(1)
		go func(sess *Session) {
			defer wg.Done()
			if err := sess.Close(c.grace); err != nil {
				c.log.Warn("close session", "error", err)
			}
		}(sess)
	}
	wg.Wait()
}

// dropLost removes a session whose packet stream ended underneath it.
func (c *Controller) dropLost(guildID string) {
	c.mu.Lock()
	sess, ok := c.sessions[guildID]
	if ok {
		delete(c.sessions, guildID)
	}
	c.mu.Unlock()

	if !ok {
		return
	}
	c.log.Warn("voice connection lost", "guild", guildID)
	if err := sess.Close(c.grace); err != nil {
		c.log.Warn("close lost session", "error", err)
	}
}
