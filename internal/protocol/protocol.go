// Package protocol implements the wire codec of spec §4.A: one request
// message, one response message, per connection. Both are framed as a
// one-byte kind tag followed by a MessagePack body (via
// github.com/Allen1211/msgp); msgpack is self-describing, so the reader
// never has to guess where a string or byte slice ends within a message.
package protocol

import (
	"errors"
	"fmt"
	"io"

	"github.com/Allen1211/msgp/msgp"
)

// ErrProtocol marks a framing violation: the server closes the connection
// without a reply when it sees this error (spec §4.A, §7).
var ErrProtocol = errors.New("protocol framing error")

// RequestKind selects which shape of Request follows the tag byte.
type RequestKind byte

const (
	KindGet RequestKind = iota + 1
	KindSet
	KindRemove
	KindStats
)

// Request is the single message a client sends per connection.
type Request struct {
	Kind  RequestKind
	Key   string
	Value string // only meaningful when Kind == KindSet
}

func (r *Request) EncodeMsg(en *msgp.Writer) error {
	if err := en.WriteByte(byte(r.Kind)); err != nil {
		return err
	}
	switch r.Kind {
	case KindGet, KindRemove:
		return en.WriteString(r.Key)
	case KindSet:
		if err := en.WriteString(r.Key); err != nil {
			return err
		}
		return en.WriteString(r.Value)
	case KindStats:
		return nil
	default:
		return fmt.Errorf("%w: unknown request kind %d", ErrProtocol, r.Kind)
	}
}

func (r *Request) DecodeMsg(de *msgp.Reader) error {
	tag, err := de.ReadByte()
	if err != nil {
		return err
	}
	r.Kind = RequestKind(tag)
	switch r.Kind {
	case KindGet, KindRemove:
		r.Key, err = de.ReadString()
		return err
	case KindSet:
		if r.Key, err = de.ReadString(); err != nil {
			return err
		}
		r.Value, err = de.ReadString()
		return err
	case KindStats:
		return nil
	default:
		return fmt.Errorf("%w: unknown request kind %d", ErrProtocol, r.Kind)
	}
}

// ResponseKind selects which shape of Response follows the tag byte.
type ResponseKind byte

const (
	KindOk ResponseKind = iota + 1
	KindFound
	KindNotFound
	KindErr
	KindStatsOk
)

// Response is the single message a server sends per connection.
type Response struct {
	Kind  ResponseKind
	Value string // KindFound
	Err   string // KindErr
	Stats StatsPayload
}

// StatsPayload mirrors engine.Stats across the wire for the supplemented
// `stats` client subcommand (SPEC_FULL §4.F).
type StatsPayload struct {
	Engine      string
	Keys        int64
	Uncompacted uint64
	Generations int64
}

func OK() Response                   { return Response{Kind: KindOk} }
func Found(value string) Response    { return Response{Kind: KindFound, Value: value} }
func NotFound() Response             { return Response{Kind: KindNotFound} }
func Err(message string) Response    { return Response{Kind: KindErr, Err: message} }
func StatsOk(s StatsPayload) Response {
	return Response{Kind: KindStatsOk, Stats: s}
}

func (r *Response) EncodeMsg(en *msgp.Writer) error {
	if err := en.WriteByte(byte(r.Kind)); err != nil {
		return err
	}
	switch r.Kind {
	case KindOk, KindNotFound:
		return nil
	case KindFound:
		return en.WriteString(r.Value)
	case KindErr:
		return en.WriteString(r.Err)
	case KindStatsOk:
		if err := en.WriteString(r.Stats.Engine); err != nil {
			return err
		}
		if err := en.WriteInt64(r.Stats.Keys); err != nil {
			return err
		}
		if err := en.WriteUint64(r.Stats.Uncompacted); err != nil {
			return err
		}
		return en.WriteInt64(r.Stats.Generations)
	default:
		return fmt.Errorf("%w: unknown response kind %d", ErrProtocol, r.Kind)
	}
}

func (r *Response) DecodeMsg(de *msgp.Reader) error {
	tag, err := de.ReadByte()
	if err != nil {
		return err
	}
	r.Kind = ResponseKind(tag)
	switch r.Kind {
	case KindOk, KindNotFound:
		return nil
	case KindFound:
		r.Value, err = de.ReadString()
		return err
	case KindErr:
		r.Err, err = de.ReadString()
		return err
	case KindStatsOk:
		if r.Stats.Engine, err = de.ReadString(); err != nil {
			return err
		}
		if r.Stats.Keys, err = de.ReadInt64(); err != nil {
			return err
		}
		if r.Stats.Uncompacted, err = de.ReadUint64(); err != nil {
			return err
		}
		r.Stats.Generations, err = de.ReadInt64()
		return err
	default:
		return fmt.Errorf("%w: unknown response kind %d", ErrProtocol, r.Kind)
	}
}

// WriteRequest encodes and flushes req to w.
func WriteRequest(w io.Writer, req Request) error {
	mw := msgp.NewWriter(w)
	if err := req.EncodeMsg(mw); err != nil {
		return err
	}
	return mw.Flush()
}

// ReadRequest decodes exactly one Request from r. Any failure, including a
// clean EOF, is reported as ErrProtocol so callers close without a reply;
// this protocol always expects exactly one request per connection.
func ReadRequest(r io.Reader) (Request, error) {
	mr := msgp.NewReader(r)
	var req Request
	if err := req.DecodeMsg(mr); err != nil {
		if errors.Is(err, ErrProtocol) {
			return Request{}, err
		}
		return Request{}, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	return req, nil
}

// WriteResponse encodes and flushes resp to w.
func WriteResponse(w io.Writer, resp Response) error {
	mw := msgp.NewWriter(w)
	if err := resp.EncodeMsg(mw); err != nil {
		return err
	}
	return mw.Flush()
}

// ReadResponse decodes exactly one Response from r.
func ReadResponse(r io.Reader) (Response, error) {
	mr := msgp.NewReader(r)
	var resp Response
	if err := resp.DecodeMsg(mr); err != nil {
		if errors.Is(err, ErrProtocol) {
			return Response{}, err
		}
		return Response{}, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	return resp, nil
}
