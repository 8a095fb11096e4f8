package audio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

func testLogger() *log.Logger {
	return log.New(io.Discard)
}

func TestConvertMissingBinary(t *testing.T) {
	c := NewConverter("parley-no-such-converter", testLogger())

	if c.Available() {
		t.Fatal("nonexistent binary reported as available")
	}

	_, err := c.Convert(context.Background(), []byte{1, 2, 3, 4})
	if !errors.Is(err, ErrConversionUnavailable) {
		t.Fatalf("Convert with missing binary: got %v, want ErrConversionUnavailable", err)
	}
}

func TestConvertNonZeroExit(t *testing.T) {
	c := NewConverter("false", testLogger())
	c.Args = []string{}

	_, err := c.Convert(context.Background(), []byte{1, 2, 3, 4})
	if !errors.Is(err, ErrConversionUnavailable) {
		t.Fatalf("Convert with failing binary: got %v, want ErrConversionUnavailable", err)
	}
}

func TestConvertPassthroughRoundTrip(t *testing.T) {
	// cat is a no-op converter: output bytes equal input bytes, so byte count
	// and therefore duration must survive the round trip.
	c := NewConverter("cat", testLogger())
	c.Args = []string{}

	in := bytes.Repeat([]byte{0x7f, 0x00, 0x80, 0xff}, 4800)
	out, err := c.Convert(context.Background(), in)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}

	if !bytes.Equal(in, out) {
		t.Fatalf("passthrough changed bytes: in %d, out %d", len(in), len(out))
	}
	if Duration(len(in)) != Duration(len(out)) {
		t.Errorf(
			"duration drifted: in %v, out %v",
			Duration(len(in)),
			Duration(len(out)),
		)
	}
}

func TestDuration(t *testing.T) {
	if d := Duration(SourceBytesPerSecond); d != time.Second {
		t.Errorf("Duration(one second of bytes) = %v", d)
	}
	if d := Duration(0); d != 0 {
		t.Errorf("Duration(0) = %v", d)
	}
	// One 20ms frame: 960 samples * 2 channels * 2 bytes.
	if d := Duration(FrameSamples * SourceChannels * bytesPerSample); d != 20*time.Millisecond {
		t.Errorf("Duration(one frame) = %v, want 20ms", d)
	}
}

func TestBytesFromPCM(t *testing.T) {
	got := BytesFromPCM([]int16{0x0102, -2})
	want := []byte{0x02, 0x01, 0xfe, 0xff}
	if !bytes.Equal(got, want) {
		t.Errorf("BytesFromPCM = %x, want %x", got, want)
	}
}
