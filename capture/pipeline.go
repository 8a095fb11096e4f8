package capture

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/semaphore"

	"parley.chat/audio"
	"parley.chat/identity"
	"parley.chat/stt"
)

type State int

const (
	StateCapturing State = iota
	StateFinalizing
	StateDone
)

func (s State) String() string {
	switch s {
	case StateCapturing:
		return "capturing"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Converter narrows the format converter to what a pipeline needs.
type Converter interface {
	Convert(ctx context.Context, pcm []byte) ([]byte, error)
}

// Archiver persists raw utterance frames for diagnostics.
type Archiver interface {
	Save(u Utterance) error
}

// Deps are the collaborators a pipeline drives an utterance through. Sem and
// Archive are optional.
type Deps struct {
	Log        *log.Logger
	Convert    Converter
	Transcribe stt.Transcriber
	Resolve    identity.Resolver
	Emit       Emitter

	// Sem bounds how many pipelines may hold the converter and backend at
	// once, so a crowded channel cannot fan out unbounded processes.
	Sem *semaphore.Weighted

	Archive Archiver
}

// Pipeline owns one speaker's utterance from first frame to emitted line.
// States move Capturing -> Finalizing -> Done and are never re-entered.
type Pipeline struct {
	deps    Deps
	silence time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	state     State
	speakerID string
	buf       Buffer
	startedAt time.Time
	timer     *time.Timer

	// after is the previous pipeline's done channel for the same speaker;
	// finalization waits on it so consecutive utterances cannot interleave.
	after   <-chan struct{}
	done    chan struct{}
	discard atomic.Bool
}

// NewPipeline starts capturing immediately. The silence timer is armed from
// creation: a speaker who starts and says nothing finalizes into an empty
// utterance, which is then discarded.
func NewPipeline(
	ctx context.Context,
	speakerID string,
	silence time.Duration,
	after <-chan struct{},
	deps Deps,
) *Pipeline {
	ctx, cancel := context.WithCancel(ctx)

	p := &Pipeline{
		deps:      deps,
		silence:   silence,
		ctx:       ctx,
		cancel:    cancel,
		state:     StateCapturing,
		speakerID: speakerID,
		startedAt: time.Now(),
		after:     after,
		done:      make(chan struct{}),
	}
	p.buf.keepFrames = deps.Archive != nil
	p.timer = time.AfterFunc(silence, p.Finalize)

	return p
}

func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Pipeline) Speaker() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.speakerID
}

// SetSpeaker backfills the speaker identity when the platform maps the audio
// source to a participant after capture already began. A known identity is
// never overwritten.
func (p *Pipeline) SetSpeaker(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.speakerID == "" {
		p.speakerID = id
	}
}

// DoneCh closes once the pipeline has reached Done.
func (p *Pipeline) DoneCh() <-chan struct{} {
	return p.done
}

// Push appends one decoded frame. Returns false once capture has ended;
// callers then start a fresh pipeline for the speaker.
func (p *Pipeline) Push(pcm []byte, frame OpusFrame) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateCapturing {
		return false
	}

	p.buf.Append(pcm, frame)
	p.timer.Reset(p.silence)
	return true
}

// Finalize ends capture and hands the utterance to the worker. Called by the
// silence timer, or directly when the platform signals end of speech. Only
// the first call wins.
func (p *Pipeline) Finalize() {
	p.mu.Lock()
	if p.state != StateCapturing {
		p.mu.Unlock()
		return
	}
	p.state = StateFinalizing
	p.timer.Stop()
	utt := p.buf.Snapshot(p.speakerID, p.startedAt)
	p.mu.Unlock()

	go p.run(utt)
}

// Abort cancels the pipeline on session teardown. A Capturing pipeline is
// discarded outright. A Finalizing pipeline gets the grace period to drain;
// after that it is abandoned and its eventual result suppressed.
func (p *Pipeline) Abort(grace time.Duration) {
	p.mu.Lock()
	switch p.state {
	case StateCapturing:
		p.state = StateDone
		p.timer.Stop()
		p.buf = Buffer{}
		p.mu.Unlock()
		p.cancel()
		close(p.done)
		return
	case StateDone:
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	select {
	case <-p.done:
	case <-time.After(grace):
		p.discard.Store(true)
		p.cancel()
		p.deps.Log.Warn(
			"abandoned pipeline past grace period",
			"speaker", p.Speaker(),
			"grace", grace,
		)
	}
}

// run drives convert -> transcribe -> attribute -> emit, strictly in order.
// Converter and backend failures are absorbed here; they never reach the
// session.
func (p *Pipeline) run(utt Utterance) {
	defer p.finish()

	if p.after != nil {
		select {
		case <-p.after:
		case <-p.ctx.Done():
			return
		}
	}

	if utt.Empty() {
		p.deps.Log.Debug("discarding empty utterance", "speaker", p.Speaker())
		return
	}

	if p.deps.Archive != nil {
		if err := p.deps.Archive.Save(utt); err != nil {
			p.deps.Log.Warn("archive utterance", "id", utt.ID, "error", err)
		}
	}

	if p.deps.Sem != nil {
		if err := p.deps.Sem.Acquire(p.ctx, 1); err != nil {
			return
		}
		defer p.deps.Sem.Release(1)
	}

	converted, err := p.deps.Convert.Convert(p.ctx, utt.PCM)
	if err != nil {
		if errors.Is(err, audio.ErrConversionUnavailable) {
			p.deps.Log.Warn(
				"conversion unavailable, dropping utterance",
				"speaker", p.Speaker(),
				"dur", utt.Duration(),
				"error", err,
			)
		} else {
			p.deps.Log.Warn(
				"conversion failed, dropping utterance",
				"speaker", p.Speaker(),
				"error", err,
			)
		}
		return
	}

	result := p.deps.Transcribe.Transcribe(p.ctx, converted)
	if result.Err != nil {
		p.deps.Log.Warn(
			"transcription degraded",
			"speaker", p.Speaker(),
			"error", result.Err,
		)
	}

	if p.discard.Load() {
		return
	}

	who := p.deps.Resolve.Resolve(p.Speaker())
	p.deps.Emit.Emit(Line{
		SpeakerID: p.Speaker(),
		Label:     who.Label,
		Text:      result.Text,
		Err:       result.Err,
		Duration:  utt.Duration(),
		Timestamp: time.Now(),
	})
}

func (p *Pipeline) finish() {
	p.mu.Lock()
	p.state = StateDone
	p.mu.Unlock()
	p.cancel()
	close(p.done)
}
