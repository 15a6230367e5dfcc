// Package ogg writes Ogg Opus files: page framing, Opus header packets and
// the WAV to Ogg encoder.
package ogg

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Page header type flags.
const (
	FlagContinued byte = 0x01
	FlagBOS       byte = 0x02
	FlagEOS       byte = 0x04
)

const (
	headerSize  = 27
	crcOffset   = 22
	maxSegments = 255
)

// Lacing returns the segment table for a single packet of n bytes:
// n/255 lanes of 255 followed by one lane of n%255. A zero-length lane
// terminates packets that are empty or a multiple of 255 bytes.
func Lacing(n int) []byte {
	lanes := make([]byte, 0, n/255+1)
	for ; n >= 255; n -= 255 {
		lanes = append(lanes, 255)
	}
	return append(lanes, byte(n))
}

// BuildPage serializes one page holding a single packet.
func BuildPage(flags byte, granule uint64, serial, seq uint32, payload []byte) ([]byte, error) {
	lacing := Lacing(len(payload))
	if len(lacing) > maxSegments {
		return nil, fmt.Errorf("packet of %d bytes does not fit in one page", len(payload))
	}

	page := make([]byte, headerSize+len(lacing)+len(payload))
	copy(page[0:4], "OggS")
	page[4] = 0 // version
	page[5] = flags
	binary.LittleEndian.PutUint64(page[6:14], granule)
	binary.LittleEndian.PutUint32(page[14:18], serial)
	binary.LittleEndian.PutUint32(page[18:22], seq)
	page[26] = byte(len(lacing))
	copy(page[headerSize:], lacing)
	copy(page[headerSize+len(lacing):], payload)

	binary.LittleEndian.PutUint32(page[crcOffset:crcOffset+4], PageChecksum(page))
	return page, nil
}

// PageWriter emits pages for one logical stream with consecutive
// sequence numbers starting at 0.
type PageWriter struct {
	w      io.Writer
	serial uint32
	seq    uint32
}

// NewPageWriter creates a writer for the stream identified by serial.
func NewPageWriter(w io.Writer, serial uint32) *PageWriter {
	return &PageWriter{w: w, serial: serial}
}

// WritePage writes payload as a single-packet page.
func (p *PageWriter) WritePage(flags byte, granule uint64, payload []byte) error {
	page, err := BuildPage(flags, granule, p.serial, p.seq, payload)
	if err != nil {
		return err
	}
	if _, err := p.w.Write(page); err != nil {
		return err
	}
	p.seq++
	return nil
}

// Pages returns how many pages have been written.
func (p *PageWriter) Pages() uint32 {
	return p.seq
}
