package ipc

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/hpungsan/minutes/internal/errors"
)

// MaxFrameSize is the largest body accepted in either direction.
const MaxFrameSize = 1 << 20

// WriteFrame encodes v as JSON and writes it with a u32 little-endian
// length prefix.
func WriteFrame(w io.Writer, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	if len(body) > MaxFrameSize {
		return errors.NewIPC(fmt.Sprintf("frame of %d bytes exceeds %d byte limit", len(body), MaxFrameSize), nil)
	}

	buf := make([]byte, 4+len(body))
	binary.LittleEndian.PutUint32(buf, uint32(len(body)))
	copy(buf[4:], body)
	_, err = w.Write(buf)
	return err
}

// ReadFrame reads one length-prefixed body. A clean EOF before the length
// prefix is returned as io.EOF. An oversized length is rejected without
// reading the body.
func ReadFrame(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}

	n := binary.LittleEndian.Uint32(hdr[:])
	if n > MaxFrameSize {
		return nil, errors.NewIPC(fmt.Sprintf("frame of %d bytes exceeds %d byte limit", n, MaxFrameSize), nil)
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, errors.NewIPC("truncated frame", err)
	}
	return body, nil
}
