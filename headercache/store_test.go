package headercache

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir(), Options{})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return store
}

func testHash(t *testing.T, s string) chainhash.Hash {
	t.Helper()
	hash, err := chainhash.NewHashFromStr(s)
	if err != nil {
		t.Fatalf("parse hash: %v", err)
	}
	return *hash
}

func TestPutGetRoundTrip(t *testing.T) {
	store := openTestStore(t)
	defer store.Close()

	header := &Header{
		Height:       850000,
		Hash:         testHash(t, "00000000000000000002a7c4c1e48d76c5a37902165a270156b7a8d72728a054"),
		PreviousHash: testHash(t, "00000000000000000000a46de80f72b52e3c79e6fcc3ea7c15e01ba163d31489"),
		Time:         1718588734,
		Nonce:        3529540887,
		BlockVersion: 536870912,
	}
	if err := store.Put(header); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, ok, err := store.Get(850000)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatalf("expected cache hit")
	}
	if *got != *header {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, header)
	}
}

func TestGetMiss(t *testing.T) {
	store := openTestStore(t)
	defer store.Close()

	_, ok, err := store.Get(1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Fatalf("expected miss on empty store")
	}
}

func TestCount(t *testing.T) {
	store := openTestStore(t)
	defer store.Close()

	for h := int64(0); h < 5; h++ {
		if err := store.Put(&Header{Height: h, Time: 1231006505 + h*600}); err != nil {
			t.Fatalf("put height %d: %v", h, err)
		}
	}
	count, err := store.Count()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 5 {
		t.Fatalf("expected count 5, got %d", count)
	}
}

func TestClosedStoreErrors(t *testing.T) {
	store := openTestStore(t)
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if _, _, err := store.Get(1); err == nil {
		t.Fatalf("expected error on closed store")
	}
	if err := store.Put(&Header{Height: 1}); err == nil {
		t.Fatalf("expected error on closed store")
	}
}
