package encoder

import (
	"errors"
	"fmt"
	"io"

	"github.com/autorec/autorec/internal/device"
)

var (
	// ErrFrameSize rejects a frame whose length does not satisfy the
	// negotiated size for its stream.
	ErrFrameSize = errors.New("frame size does not match negotiated format")
	// ErrMuxClosed rejects writes after the mux has been shut down.
	ErrMuxClosed = errors.New("stream mux is closed")
)

// StreamSpec binds one encoder input stream to its negotiated frame size.
type StreamSpec struct {
	Writer    io.Writer
	FrameSize int
	// Variable marks compressed streams whose frames may legitimately be
	// shorter than FrameSize; FrameSize is then an upper bound.
	Variable bool
}

// StreamMux routes captured frames to the encoder's input streams,
// enforcing the negotiated frame sizes so a stale or torn buffer can never
// desynchronize the raw byte stream. It has no internal locking; the
// recorder serializes all access under its state lock.
type StreamMux struct {
	streams map[device.Kind]StreamSpec
	closed  bool
}

// NewStreamMux binds the video and audio streams.
func NewStreamMux(video, audio StreamSpec) *StreamMux {
	return &StreamMux{streams: map[device.Kind]StreamSpec{
		device.KindVideo: video,
		device.KindAudio: audio,
	}}
}

// Write forwards one frame to the stream for kind. A frame that is empty,
// longer than negotiated, or (for fixed-size streams) not exactly the
// negotiated size is rejected with ErrFrameSize before any byte reaches
// the encoder; frames are never truncated or padded.
func (m *StreamMux) Write(kind device.Kind, frame []byte) error {
	if m.closed {
		return ErrMuxClosed
	}
	s, ok := m.streams[kind]
	if !ok {
		return fmt.Errorf("no stream bound for %s", kind)
	}
	if len(frame) == 0 || len(frame) > s.FrameSize || (!s.Variable && len(frame) != s.FrameSize) {
		return fmt.Errorf("%w: %s frame is %d bytes, negotiated %d",
			ErrFrameSize, kind, len(frame), s.FrameSize)
	}
	if _, err := s.Writer.Write(frame); err != nil {
		return fmt.Errorf("writing %s frame: %w", kind, err)
	}
	return nil
}

// Close rejects all further writes. The underlying pipes are owned and
// closed by the process handle.
func (m *StreamMux) Close() {
	m.closed = true
}
