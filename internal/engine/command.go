package engine

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/Allen1211/msgp/msgp"
)

// recordHeaderSize is the on-disk length prefix ahead of every record's
// msgpack payload: a record is self-delimiting (spec §3) because its
// header alone tells a reader exactly how many bytes the payload occupies,
// without needing to speculatively decode it first.
const recordHeaderSize = 4

// commandTag identifies which Command variant follows on the wire/log.
type commandTag byte

const (
	tagSet    commandTag = 1
	tagRemove commandTag = 2
)

// Command is the durable unit written to the log (spec §3). Exactly one
// of the Set or Remove shapes is populated, selected by Tag.
type Command struct {
	Tag   commandTag
	Key   string
	Value string // only meaningful when Tag == tagSet
}

func setCommand(key, value string) Command {
	return Command{Tag: tagSet, Key: key, Value: value}
}

func removeCommand(key string) Command {
	return Command{Tag: tagRemove, Key: key}
}

// EncodeMsg writes the command as a tag byte followed by its msgpack
// fields, mirroring the shape `go:generate msgp` would have produced for
// a tagged enum: a fixed-size header picking the variant, then its payload.
func (c *Command) EncodeMsg(en *msgp.Writer) error {
	if err := en.WriteByte(byte(c.Tag)); err != nil {
		return err
	}
	switch c.Tag {
	case tagSet:
		if err := en.WriteString(c.Key); err != nil {
			return err
		}
		return en.WriteString(c.Value)
	case tagRemove:
		return en.WriteString(c.Key)
	default:
		return fmt.Errorf("%w: unknown command tag %d", ErrCorrupt, c.Tag)
	}
}

// DecodeMsg is the inverse of EncodeMsg.
func (c *Command) DecodeMsg(de *msgp.Reader) error {
	tag, err := de.ReadByte()
	if err != nil {
		return err
	}
	c.Tag = commandTag(tag)
	switch c.Tag {
	case tagSet:
		if c.Key, err = de.ReadString(); err != nil {
			return err
		}
		c.Value, err = de.ReadString()
		return err
	case tagRemove:
		c.Key, err = de.ReadString()
		return err
	default:
		return fmt.Errorf("%w: unknown command tag %d", ErrCorrupt, c.Tag)
	}
}

// countingWriter tracks the number of bytes written through it, letting
// the single log writer compute a fresh record's (offset, length) without
// a separate Seek/Tell round trip on every append.
type countingWriter struct {
	file *os.File
	w    *bufio.Writer
	pos  int64
}

func newCountingWriter(file *os.File, pos int64) *countingWriter {
	return &countingWriter{file: file, w: bufio.NewWriter(file), pos: pos}
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.pos += int64(n)
	return n, err
}

// flushAndSync pushes buffered bytes to the OS and asks it to persist
// them, the per-mutation durability point spec §4.C's writer side demands.
func (c *countingWriter) flushAndSync() error {
	if err := c.w.Flush(); err != nil {
		return err
	}
	return datasync(c.file)
}

// appendCommand encodes cmd behind a 4-byte big-endian length header and
// appends both through w, returning the (start, length) of the payload
// only, the range the index keys off (spec §3's Location).
func appendCommand(w *countingWriter, cmd Command) (start int64, length int64, err error) {
	var buf bytes.Buffer
	mw := msgp.NewWriter(&buf)
	if err = cmd.EncodeMsg(mw); err != nil {
		return 0, 0, err
	}
	if err = mw.Flush(); err != nil {
		return 0, 0, err
	}

	var header [recordHeaderSize]byte
	binary.BigEndian.PutUint32(header[:], uint32(buf.Len()))
	if _, err = w.Write(header[:]); err != nil {
		return 0, 0, err
	}
	start = w.pos
	if _, err = w.Write(buf.Bytes()); err != nil {
		return 0, 0, err
	}
	if err = w.flushAndSync(); err != nil {
		return 0, 0, err
	}
	return start, int64(buf.Len()), nil
}

// readCommandAt decodes exactly one Command from the byte range
// [offset, offset+length) of f, the payload range recorded in a Location,
// already past its length header.
func readCommandAt(f io.ReaderAt, offset, length int64) (Command, error) {
	section := io.NewSectionReader(f, offset, length)
	mr := msgp.NewReader(section)
	var cmd Command
	if err := cmd.DecodeMsg(mr); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return cmd, nil
}

// decodeCommandBytes decodes a Command whose payload has already been
// read into memory, used during log replay where the header has already
// told the caller exactly how many bytes to read.
func decodeCommandBytes(payload []byte) (Command, error) {
	mr := msgp.NewReader(bytes.NewReader(payload))
	var cmd Command
	if err := cmd.DecodeMsg(mr); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return cmd, nil
}

// readRecordHeaderAndPayload reads one record starting at pos in f,
// returning the payload bytes and the offset immediately after the
// record. ok is false if the header or payload was truncated (end of a
// partially written active file) rather than a hard I/O error.
func readRecordHeaderAndPayload(f io.ReaderAt, pos int64) (payload []byte, next int64, ok bool, err error) {
	var header [recordHeaderSize]byte
	n, rerr := f.ReadAt(header[:], pos)
	if n < recordHeaderSize {
		if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
			return nil, pos, false, nil
		}
		return nil, pos, false, rerr
	}
	payloadLen := int64(binary.BigEndian.Uint32(header[:]))
	payloadStart := pos + recordHeaderSize
	payload = make([]byte, payloadLen)
	n2, rerr2 := f.ReadAt(payload, payloadStart)
	if int64(n2) < payloadLen {
		if rerr2 == io.EOF || rerr2 == io.ErrUnexpectedEOF {
			return nil, pos, false, nil
		}
		return nil, pos, false, rerr2
	}
	return payload, payloadStart + payloadLen, true, nil
}
