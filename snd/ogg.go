package snd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"

	"parley.chat/capture"
)

const samplesPerFrame = 960

// silentFrame is a minimal opus packet decoding to silence, used to backfill
// gaps so archived audio keeps real-time spacing.
var silentFrame = []byte{0xf8, 0xff, 0xfe}

type RTPWriter interface {
	WriteRTP(packet *rtp.Packet) error
	Close() error
}

// OggOpusWriter lays one utterance's opus frames into an OGG stream,
// inserting silence for timestamp gaps larger than a frame.
type OggOpusWriter struct {
	writer        RTPWriter
	lastTimestamp uint32
	log           *log.Logger
}

func NewOggOpusWriter(w RTPWriter, logger *log.Logger) *OggOpusWriter {
	return &OggOpusWriter{writer: w, log: logger}
}

func (w *OggOpusWriter) WriteFrame(f capture.OpusFrame) error {
	if w.lastTimestamp != 0 {
		gap := int64(f.Timestamp) - int64(w.lastTimestamp)
		if gap > samplesPerFrame {
			if err := w.insertSilence(gap); err != nil {
				return err
			}
		}
	}

	if err := w.writer.WriteRTP(&rtp.Packet{
		Header: rtp.Header{
			SequenceNumber: f.Sequence,
			Timestamp:      f.Timestamp,
		},
		Payload: f.Payload,
	}); err != nil {
		return fmt.Errorf("write opus frame: %w", err)
	}

	w.lastTimestamp = f.Timestamp
	return nil
}

func (w *OggOpusWriter) insertSilence(gap int64) error {
	count := gap / samplesPerFrame
	w.log.Debug("inserting silence", "frames", count, "gap", gap)
	for j := int64(0); j < count; j++ {
		if err := w.writer.WriteRTP(&rtp.Packet{
			Header: rtp.Header{
				Timestamp: w.lastTimestamp + uint32(j*samplesPerFrame),
			},
			Payload: silentFrame,
		}); err != nil {
			return fmt.Errorf("write silent frame: %w", err)
		}
	}
	return nil
}

func (w *OggOpusWriter) Close() error {
	return w.writer.Close()
}

// Archiver writes each finished utterance to an OGG file for diagnostics.
type Archiver struct {
	dir string
	log *log.Logger
}

func NewArchiver(dir string, logger *log.Logger) (*Archiver, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	return &Archiver{dir: dir, log: logger}, nil
}

func (a *Archiver) Save(u capture.Utterance) error {
	if len(u.Frames) == 0 {
		return nil
	}

	name := fmt.Sprintf(
		"%s_%s.ogg",
		u.StartedAt.UTC().Format("20060102T150405.000Z"),
		u.ID,
	)
	path := filepath.Join(a.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create archive file: %w", err)
	}
	defer f.Close()

	ogg, err := oggwriter.NewWith(f, 48000, 2)
	if err != nil {
		return fmt.Errorf("create ogg writer: %w", err)
	}

	w := NewOggOpusWriter(ogg, a.log)
	for _, frame := range u.Frames {
		if err := w.WriteFrame(frame); err != nil {
			w.Close()
			return err
		}
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("close ogg writer: %w", err)
	}

	a.log.Debug("archived utterance", "path", path, "frames", len(u.Frames))
	return nil
}
