package discord

import (
	"context"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/charmbracelet/log"

	"parley.chat/audio"
	"parley.chat/capture"
)

// speakerStream is the per-SSRC state: a stateful decoder, a scratch PCM
// buffer, and the speaker's current pipeline.
type speakerStream struct {
	dec      Decoder
	pcm      []int16
	pipeline *capture.Pipeline
}

// Session captures one guild's voice channel. Packets are demultiplexed by
// SSRC; each SSRC gets its own decoder and pipeline chain.
type Session struct {
	guildID   string
	channelID string
	conn      VoiceConn
	log       *log.Logger

	silence    time.Duration
	deps       capture.Deps
	newDecoder DecoderFactory

	// onLost fires once if the packet stream ends without Close being
	// called, so the owner can drop the session.
	onLost func()

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	streams map[uint32]*speakerStream
	users   map[uint32]string
	closed  bool

	closeOnce sync.Once
	recvDone  chan struct{}
}

func newSession(
	guildID, channelID string,
	conn VoiceConn,
	silence time.Duration,
	newDecoder DecoderFactory,
	deps capture.Deps,
	onLost func(),
	logger *log.Logger,
) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		guildID:    guildID,
		channelID:  channelID,
		conn:       conn,
		log:        logger,
		silence:    silence,
		deps:       deps,
		newDecoder: newDecoder,
		onLost:     onLost,
		ctx:        ctx,
		cancel:     cancel,
		streams:    make(map[uint32]*speakerStream),
		users:      make(map[uint32]string),
		recvDone:   make(chan struct{}),
	}
}

func (s *Session) start() {
	s.conn.OnSpeaking(s.handleSpeaking)
	go s.recv()
}

func (s *Session) recv() {
	defer close(s.recvDone)
	for {
		select {
		case <-s.ctx.Done():
			return
		case pkt, ok := <-s.conn.Packets():
			if !ok {
				s.log.Warn("voice stream ended", "guild", s.guildID)
				if s.onLost != nil {
					go s.onLost()
				}
				return
			}
			s.handlePacket(pkt)
		}
	}
}

func (s *Session) handlePacket(pkt *discordgo.Packet) {
	st := s.streamFor(pkt.SSRC)
	if st == nil {
		return
	}

	// The decoder and scratch buffer are touched only by the recv loop.
	n, err := st.dec.Decode(pkt.Opus, st.pcm)
	if err != nil {
		s.log.Warn("decode", "ssrc", pkt.SSRC, "error", err)
		return
	}
	pcm := audio.BytesFromPCM(st.pcm[:n*audio.SourceChannels])
	frame := capture.OpusFrame{
		Sequence:  pkt.Sequence,
		Timestamp: pkt.Timestamp,
		Payload:   pkt.Opus,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if st.pipeline.Push(pcm, frame) {
		return
	}

	// The previous utterance hit the silence boundary. Chain the successor
	// on its done channel so one speaker's lines cannot interleave.
	prev := st.pipeline
	st.pipeline = capture.NewPipeline(
		s.ctx,
		prev.Speaker(),
		s.silence,
		prev.DoneCh(),
		s.deps,
	)
	st.pipeline.Push(pcm, frame)
}

// streamFor returns the state for an SSRC, creating it on the first packet.
// The speaking update that names the user may arrive later; the pipeline is
// backfilled when it does.
func (s *Session) streamFor(ssrc uint32) *speakerStream {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	if st, ok := s.streams[ssrc]; ok {
		return st
	}

	dec, err := s.newDecoder()
	if err != nil {
		s.log.Error("create decoder", "ssrc", ssrc, "error", err)
		return nil
	}

	speaker := s.users[ssrc]
	st := &speakerStream{
		dec:      dec,
		pcm:      make([]int16, audio.FrameSamples*audio.SourceChannels),
		pipeline: capture.NewPipeline(s.ctx, speaker, s.silence, nil, s.deps),
	}
	s.streams[ssrc] = st
	s.log.Info("hear", "ssrc", ssrc, "speaker", speaker, "guild", s.guildID)
	return st
}

func (s *Session) handleSpeaking(ssrc uint32, userID string, speaking bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[ssrc] = userID
	if st, ok := s.streams[ssrc]; ok {
		st.pipeline.SetSpeaker(userID)
	}
	s.log.Debug("talk", "ssrc", ssrc, "user", userID, "speaking", speaking)
}

// Close tears the session down. Capturing pipelines are discarded; finalizing
// ones get the grace period to drain before their results are suppressed.
func (s *Session) Close(grace time.Duration) error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		pipes := make([]*capture.Pipeline, 0, len(s.streams))
		for _, st := range s.streams {
			pipes = append(pipes, st.pipeline)
		}
		s.mu.Unlock()

		var wg sync.WaitGroup
		for _, p := range pipes {
			wg.Add(1)
			go func(p *capture.Pipeline) {
				defer wg.Done()
				p.Abort(grace)
			}(p)
		}
		wg.Wait()

		err = s.conn.Disconnect()
		s.cancel()
		<-s.recvDone
		s.log.Info("left", "guild", s.guildID, "channel", s.channelID)
	})
	return err
}
