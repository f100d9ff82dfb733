// ABOUTME: Length-prefixed frame codec for the client wire protocol.
// ABOUTME: Frames are uint16 little-endian length followed by the payload.

package client

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// maxFramePayload is the largest payload a single frame can carry.
const maxFramePayload = 0xFFFF

var errZeroLengthFrame = errors.New("zero-length frame")

// readFrame reads one length-prefixed frame from r.
func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}

	n := binary.LittleEndian.Uint16(lenBuf[:])
	if n == 0 {
		return nil, errZeroLengthFrame
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// writeFrame writes one length-prefixed frame to w.
func writeFrame(w io.Writer, payload []byte) error {
	if len(payload) > maxFramePayload {
		return fmt.Errorf("frame payload %d bytes exceeds maximum %d", len(payload), maxFramePayload)
	}

	var lenBuf [2]byte
	binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}
