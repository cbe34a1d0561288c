package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestRequestRoundTrip(t *testing.T) {
	cases := []Request{
		{Kind: KindGet, Key: "foo"},
		{Kind: KindSet, Key: "foo", Value: "bar"},
		{Kind: KindRemove, Key: "foo"},
		{Kind: KindStats},
	}
	for _, req := range cases {
		var buf bytes.Buffer
		if err := WriteRequest(&buf, req); err != nil {
			t.Fatalf("WriteRequest(%+v): %v", req, err)
		}
		got, err := ReadRequest(&buf)
		if err != nil {
			t.Fatalf("ReadRequest: %v", err)
		}
		if got != req {
			t.Fatalf("round trip = %+v, want %+v", got, req)
		}
	}
}

func TestResponseRoundTrip(t *testing.T) {
	cases := []Response{
		OK(),
		Found("value"),
		NotFound(),
		Err("Key not found"),
		StatsOk(StatsPayload{Engine: "builtin", Keys: 3, Uncompacted: 128, Generations: 2}),
	}
	for _, resp := range cases {
		var buf bytes.Buffer
		if err := WriteResponse(&buf, resp); err != nil {
			t.Fatalf("WriteResponse(%+v): %v", resp, err)
		}
		got, err := ReadResponse(&buf)
		if err != nil {
			t.Fatalf("ReadResponse: %v", err)
		}
		if got != resp {
			t.Fatalf("round trip = %+v, want %+v", got, resp)
		}
	}
}

func TestReadRequestOnEmptyStreamIsFramingError(t *testing.T) {
	_, err := ReadRequest(bytes.NewReader(nil))
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("err = %v, want ErrProtocol", err)
	}
}

func TestReadRequestOnGarbageIsFramingError(t *testing.T) {
	_, err := ReadRequest(bytes.NewReader([]byte{0xff, 0xff, 0xff}))
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("err = %v, want ErrProtocol", err)
	}
}

func TestReadRequestTruncatedMidMessageIsFramingError(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteRequest(&buf, Request{Kind: KindSet, Key: "foo", Value: "bar"}); err != nil {
		t.Fatal(err)
	}
	truncated := buf.Bytes()[:buf.Len()-2]
	_, err := ReadRequest(bytes.NewReader(truncated))
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("err = %v, want ErrProtocol", err)
	}
}
