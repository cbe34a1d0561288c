package server

import (
	"net"
	"testing"

	"github.com/allen1211/kvsd/internal/engine"
	"github.com/allen1211/kvsd/internal/pool"
	"github.com/allen1211/kvsd/internal/protocol"
)

// memEngine is a minimal in-memory stand-in for engine.Engine, used so
// server tests exercise dispatch and the wire protocol without touching
// a real data directory.
type memEngine struct {
	data map[string]string
}

func newMemEngine() *memEngine { return &memEngine{data: map[string]string{}} }

func (m *memEngine) Get(key string) (string, bool, error) {
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memEngine) Set(key, value string) error {
	m.data[key] = value
	return nil
}

func (m *memEngine) Remove(key string) error {
	if _, ok := m.data[key]; !ok {
		return engine.ErrKeyNotFound
	}
	delete(m.data, key)
	return nil
}

func (m *memEngine) Stats() (engine.Stats, error) {
	return engine.Stats{Engine: engine.Builtin, Keys: len(m.data)}, nil
}

func (m *memEngine) Clone() engine.Engine { return m }
func (m *memEngine) Close() error         { return nil }

func TestDispatchGetSetRemove(t *testing.T) {
	e := newMemEngine()

	if resp := dispatch(e, protocol.Request{Kind: protocol.KindGet, Key: "missing"}); resp.Kind != protocol.KindNotFound {
		t.Fatalf("Get(missing) = %+v, want NotFound", resp)
	}

	if resp := dispatch(e, protocol.Request{Kind: protocol.KindSet, Key: "k", Value: "v"}); resp.Kind != protocol.KindOk {
		t.Fatalf("Set = %+v, want Ok", resp)
	}

	if resp := dispatch(e, protocol.Request{Kind: protocol.KindGet, Key: "k"}); resp.Kind != protocol.KindFound || resp.Value != "v" {
		t.Fatalf("Get(k) = %+v, want Found(v)", resp)
	}

	if resp := dispatch(e, protocol.Request{Kind: protocol.KindRemove, Key: "k"}); resp.Kind != protocol.KindOk {
		t.Fatalf("Remove(k) = %+v, want Ok", resp)
	}

	if resp := dispatch(e, protocol.Request{Kind: protocol.KindRemove, Key: "k"}); resp.Kind != protocol.KindErr || resp.Err != "Key not found" {
		t.Fatalf("Remove(k) second time = %+v, want Err(Key not found)", resp)
	}
}

func TestDispatchStats(t *testing.T) {
	e := newMemEngine()
	e.data["a"] = "1"
	e.data["b"] = "2"

	resp := dispatch(e, protocol.Request{Kind: protocol.KindStats})
	if resp.Kind != protocol.KindStatsOk || resp.Stats.Keys != 2 {
		t.Fatalf("Stats = %+v, want StatsOk with Keys=2", resp)
	}
}

func TestServerEndToEnd(t *testing.T) {
	e := newMemEngine()
	p, err := pool.New(2, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Shutdown()

	srv := New("127.0.0.1:0", e, p, nil)
	if err := srv.Listen(); err != nil {
		t.Fatal(err)
	}
	go srv.Accept()
	defer srv.Shutdown()

	addr := srv.Addr().String()

	set := dialAndSend(t, addr, protocol.Request{Kind: protocol.KindSet, Key: "foo", Value: "bar"})
	if set.Kind != protocol.KindOk {
		t.Fatalf("Set response = %+v, want Ok", set)
	}

	get := dialAndSend(t, addr, protocol.Request{Kind: protocol.KindGet, Key: "foo"})
	if get.Kind != protocol.KindFound || get.Value != "bar" {
		t.Fatalf("Get response = %+v, want Found(bar)", get)
	}

	miss := dialAndSend(t, addr, protocol.Request{Kind: protocol.KindGet, Key: "nope"})
	if miss.Kind != protocol.KindNotFound {
		t.Fatalf("Get(nope) response = %+v, want NotFound", miss)
	}
}

func dialAndSend(t *testing.T, addr string, req protocol.Request) protocol.Response {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	if err := protocol.WriteRequest(conn, req); err != nil {
		t.Fatal(err)
	}
	resp, err := protocol.ReadResponse(conn)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}
