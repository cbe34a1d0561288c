package engine

import "testing"

func TestLevelEngineSetGetRemove(t *testing.T) {
	dir := tempDir(t)
	e, err := OpenLevelDB(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	if err := e.Set("k", "v"); err != nil {
		t.Fatal(err)
	}
	if v, ok, err := e.Get("k"); err != nil || !ok || v != "v" {
		t.Fatalf("got (%q, %v, %v), want (v, true, nil)", v, ok, err)
	}
	if err := e.Remove("k"); err != nil {
		t.Fatal(err)
	}
	if err := e.Remove("k"); err != ErrKeyNotFound {
		t.Fatalf("second remove = %v, want ErrKeyNotFound", err)
	}

	clone := e.Clone()
	defer clone.Close()
	if _, ok, err := clone.Get("k"); err != nil || ok {
		t.Fatalf("clone sees stale state: ok=%v err=%v", ok, err)
	}
}
