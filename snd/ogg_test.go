package snd

import (
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/pion/rtp"

	"parley.chat/capture"
)

type MockRTPWriter struct {
	Packets []MockRTPPacket
	Closed  bool
}

type MockRTPPacket struct {
	SequenceNumber uint16
	Timestamp      uint32
	Payload        []byte
}

func (m *MockRTPWriter) WriteRTP(packet *rtp.Packet) error {
	m.Packets = append(m.Packets, MockRTPPacket{
		SequenceNumber: packet.SequenceNumber,
		Timestamp:      packet.Timestamp,
		Payload:        packet.Payload,
	})
	return nil
}

func (m *MockRTPWriter) Close() error {
	m.Closed = true
	return nil
}

func TestWriteFrame(t *testing.T) {
	mock := &MockRTPWriter{}
	w := NewOggOpusWriter(mock, log.New(io.Discard))

	err := w.WriteFrame(capture.OpusFrame{
		Sequence:  1,
		Timestamp: 960,
		Payload:   []byte{0x01, 0x02, 0x03},
	})
	if err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	if len(mock.Packets) != 1 {
		t.Fatalf("wrote %d packets, want 1", len(mock.Packets))
	}
	pkt := mock.Packets[0]
	if pkt.SequenceNumber != 1 {
		t.Errorf("sequence = %d, want 1", pkt.SequenceNumber)
	}
	if pkt.Timestamp != 960 {
		t.Errorf("timestamp = %d, want 960", pkt.Timestamp)
	}
	if string(pkt.Payload) != string([]byte{0x01, 0x02, 0x03}) {
		t.Errorf("payload mismatch")
	}
}

func TestWriteFrameBackfillsGaps(t *testing.T) {
	mock := &MockRTPWriter{}
	w := NewOggOpusWriter(mock, log.New(io.Discard))

	if err := w.WriteFrame(capture.OpusFrame{Sequence: 1, Timestamp: 960, Payload: []byte{0xde}}); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	// Skip three frame times; the writer backfills the hole with silence.
	if err := w.WriteFrame(capture.OpusFrame{Sequence: 2, Timestamp: 960 * 4, Payload: []byte{0xad}}); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	if len(mock.Packets) != 5 {
		t.Fatalf("wrote %d packets, want 5 (2 audio + 3 silence)", len(mock.Packets))
	}
	for _, pkt := range mock.Packets[1:4] {
		if string(pkt.Payload) != string(silentFrame) {
			t.Errorf("gap packet payload = %x, want silence", pkt.Payload)
		}
	}
	last := mock.Packets[4]
	if last.SequenceNumber != 2 || last.Timestamp != 960*4 {
		t.Errorf("final packet = %+v", last)
	}
}

func TestCloseForwards(t *testing.T) {
	mock := &MockRTPWriter{}
	w := NewOggOpusWriter(mock, log.New(io.Discard))
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !mock.Closed {
		t.Error("underlying writer not closed")
	}
}
