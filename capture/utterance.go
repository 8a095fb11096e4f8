package capture

import (
	"time"

	"github.com/google/uuid"

	"parley.chat/audio"
)

// OpusFrame is one raw frame as it arrived from the platform, retained only
// when utterances are being archived.
type OpusFrame struct {
	Sequence  uint16
	Timestamp uint32
	Payload   []byte
}

// Utterance is the immutable snapshot handed downstream once capture ends:
// one continuous span of a single speaker's speech.
type Utterance struct {
	ID        string
	SpeakerID string
	PCM       []byte
	Frames    []OpusFrame
	StartedAt time.Time
}

func (u Utterance) Empty() bool {
	return len(u.PCM) == 0
}

func (u Utterance) Duration() time.Duration {
	return audio.Duration(len(u.PCM))
}

// Buffer accumulates one speaker's decoded audio between speech start and
// speech end. Not safe for concurrent use; the owning pipeline serializes
// access.
type Buffer struct {
	pcm        []byte
	frames     []OpusFrame
	keepFrames bool
}

func (b *Buffer) Append(pcm []byte, frame OpusFrame) {
	b.pcm = append(b.pcm, pcm...)
	if b.keepFrames {
		b.frames = append(b.frames, frame)
	}
}

func (b *Buffer) Len() int {
	return len(b.pcm)
}

// Snapshot seals the accumulated audio into an Utterance and resets the
// buffer. The returned value owns the byte slices; nothing appends to them
// afterwards.
func (b *Buffer) Snapshot(speakerID string, startedAt time.Time) Utterance {
	u := Utterance{
		ID:        uuid.NewString(),
		SpeakerID: speakerID,
		PCM:       b.pcm,
		Frames:    b.frames,
		StartedAt: startedAt,
	}
	b.pcm = nil
	b.frames = nil
	return u
}
