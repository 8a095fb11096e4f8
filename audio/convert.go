package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
)

// ErrConversionUnavailable means the external converter is missing or exited
// badly. Callers treat this as a degraded capability, not a crash: the
// utterance is dropped with a warning and the session keeps running.
var ErrConversionUnavailable = errors.New("audio conversion unavailable")

// Converter resamples captured PCM for the transcription backend by piping it
// through an external process. One invocation per utterance: write the whole
// input, close stdin, read all of stdout, reap the process.
type Converter struct {
	Bin  string
	Args []string // nil selects the default ffmpeg arguments

	log *log.Logger
}

func NewConverter(bin string, logger *log.Logger) *Converter {
	return &Converter{Bin: bin, log: logger}
}

func defaultArgs() []string {
	return []string{
		"-f", "s16le",
		"-ar", strconv.Itoa(SourceSampleRate),
		"-ac", strconv.Itoa(SourceChannels),
		"-i", "pipe:0",
		"-f", "wav",
		"-ar", strconv.Itoa(TargetSampleRate),
		"-ac", strconv.Itoa(TargetChannels),
		"pipe:1",
	}
}

// Available reports whether the converter binary can be found. Absence is an
// expected condition; this exists so startup can warn once instead of
// surprising the operator on the first utterance.
func (c *Converter) Available() bool {
	_, err := exec.LookPath(c.Bin)
	return err == nil
}

func (c *Converter) Convert(ctx context.Context, pcm []byte) ([]byte, error) {
	args := c.Args
	if args == nil {
		args = defaultArgs()
	}

	cmd := exec.CommandContext(ctx, c.Bin, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("open converter stdin: %w", err)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		stdin.Close()
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s not found", ErrConversionUnavailable, c.Bin)
		}
		return nil, fmt.Errorf("%w: start %s: %v", ErrConversionUnavailable, c.Bin, err)
	}

	_, writeErr := stdin.Write(pcm)
	closeErr := stdin.Close()

	// Always reap, even when the write failed: the process must not be left
	// behind with a half-open pipe.
	if err := cmd.Wait(); err != nil {
		return nil, fmt.Errorf(
			"%w: %s: %v%s",
			ErrConversionUnavailable,
			c.Bin,
			err,
			stderrExcerpt(&stderr),
		)
	}
	if writeErr != nil {
		return nil, fmt.Errorf(
			"%w: write to %s: %v",
			ErrConversionUnavailable,
			c.Bin,
			writeErr,
		)
	}
	if closeErr != nil {
		return nil, fmt.Errorf(
			"%w: close %s stdin: %v",
			ErrConversionUnavailable,
			c.Bin,
			closeErr,
		)
	}

	c.log.Debug("converted", "in", len(pcm), "out", stdout.Len())

	return stdout.Bytes(), nil
}

func stderrExcerpt(buf *bytes.Buffer) string {
	s := strings.TrimSpace(buf.String())
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	return ": " + strings.TrimSpace(lines[len(lines)-1])
}
