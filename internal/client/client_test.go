package client

import (
	"os"
	"testing"

	"github.com/allen1211/kvsd/internal/engine"
	"github.com/allen1211/kvsd/internal/pool"
	"github.com/allen1211/kvsd/internal/server"
)

func startTestServer(t *testing.T) (addr string, shutdown func()) {
	t.Helper()
	dir, err := os.MkdirTemp("", "kvsd-client-test-*")
	if err != nil {
		t.Fatal(err)
	}
	kv, err := engine.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	p, err := pool.New(2, nil)
	if err != nil {
		t.Fatal(err)
	}
	srv := server.New("127.0.0.1:0", kv, p, nil)
	if err := srv.Listen(); err != nil {
		t.Fatal(err)
	}
	go srv.Accept()

	return srv.Addr().String(), func() {
		srv.Shutdown()
		p.Shutdown()
		kv.Close()
		os.RemoveAll(dir)
	}
}

func TestClientGetSetRemove(t *testing.T) {
	addr, shutdown := startTestServer(t)
	defer shutdown()

	c := New(addr, 0)

	if err := c.Set("foo", "bar"); err != nil {
		t.Fatal(err)
	}

	v, ok, err := c.Get("foo")
	if err != nil || !ok || v != "bar" {
		t.Fatalf("Get(foo) = (%q, %v, %v), want (bar, true, nil)", v, ok, err)
	}

	_, ok, err = c.Get("missing")
	if err != nil || ok {
		t.Fatalf("Get(missing) = (ok=%v, err=%v), want (false, nil)", ok, err)
	}

	if err := c.Remove("foo"); err != nil {
		t.Fatal(err)
	}

	if err := c.Remove("foo"); err == nil || err.Error() != "Key not found" {
		t.Fatalf("Remove(foo) second time = %v, want error 'Key not found'", err)
	}
}

func TestClientStats(t *testing.T) {
	addr, shutdown := startTestServer(t)
	defer shutdown()

	c := New(addr, 0)
	if err := c.Set("a", "1"); err != nil {
		t.Fatal(err)
	}

	stats, err := c.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.Keys != 1 {
		t.Fatalf("stats.Keys = %d, want 1", stats.Keys)
	}
}
