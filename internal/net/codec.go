package net

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Frame layout: [flags u8][body]. Bit 0 of flags marks a zstd body.
const (
	flagZstd byte = 1 << 0

	maxFrameSize   = 1 << 16
	maxDecodedSize = 1 << 20
)

var (
	ErrEmptyFrame    = errors.New("empty frame")
	ErrFrameTooLarge = errors.New("frame too large")
	ErrUnknownFlags  = errors.New("unknown frame flags")
)

// Codec wraps packet bodies into websocket frames. Bodies at or above the
// threshold are zstd-compressed. Safe for concurrent use: the zstd
// EncodeAll/DecodeAll calls are goroutine-safe.
type Codec struct {
	threshold int
	enc       *zstd.Encoder
	dec       *zstd.Decoder
}

// NewCodec builds a codec. threshold <= 0 disables compression of outgoing
// frames; incoming compressed frames are always accepted.
func NewCodec(threshold int) (*Codec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest), zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxDecodedSize), zstd.WithDecoderConcurrency(0))
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &Codec{threshold: threshold, enc: enc, dec: dec}, nil
}

// EncodeFrame returns the frame for body.
func (c *Codec) EncodeFrame(body []byte) []byte {
	if c.threshold > 0 && len(body) >= c.threshold {
		out := make([]byte, 1, len(body)/2+8)
		out[0] = flagZstd
		return c.enc.EncodeAll(body, out)
	}
	out := make([]byte, 1+len(body))
	copy(out[1:], body)
	return out
}

// DecodeFrame returns the packet body carried by frame.
func (c *Codec) DecodeFrame(frame []byte) ([]byte, error) {
	if len(frame) == 0 {
		return nil, ErrEmptyFrame
	}
	if len(frame) > maxFrameSize {
		return nil, ErrFrameTooLarge
	}
	flags, body := frame[0], frame[1:]
	if flags&^flagZstd != 0 {
		return nil, ErrUnknownFlags
	}
	if flags&flagZstd == 0 {
		return body, nil
	}
	out, err := c.dec.DecodeAll(body, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress frame: %w", err)
	}
	return out, nil
}

// Close releases the decoder's goroutines.
func (c *Codec) Close() {
	c.dec.Close()
	_ = c.enc.Close()
}
