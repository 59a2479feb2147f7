package snapshot

import (
	"context"
	"errors"
	"testing"
	"time"

	"btcstats/rpc"

	"github.com/btcsuite/btcd/btcjson"
	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"
)

// fakeNode implements NodeClient with canned results and optional per-call
// failures.
type fakeNode struct {
	chainErr   error
	mempoolErr error
	networkErr error
	uptimeErr  error
}

func (f *fakeNode) GetBlockChainInfo(ctx context.Context) (*btcjson.GetBlockChainInfoResult, error) {
	if f.chainErr != nil {
		return nil, f.chainErr
	}
	return &btcjson.GetBlockChainInfoResult{
		Chain:                "main",
		Blocks:               850000,
		Headers:              850010,
		BestBlockHash:        "00000000000000000002a7c4c1e48d76c5a37902165a270156b7a8d72728a054",
		Difficulty:           90666502495566,
		VerificationProgress: 0.9983,
		ChainWork:            "00000000000000000000000000000000000000008f1d7fad5f21b19e1b9b8cf3",
		SizeOnDisk:           680000000000,
	}, nil
}

func (f *fakeNode) GetMempoolInfo(ctx context.Context) (*rpc.MempoolInfo, error) {
	if f.mempoolErr != nil {
		return nil, f.mempoolErr
	}
	return &rpc.MempoolInfo{
		GetMempoolInfoResult: btcjson.GetMempoolInfoResult{Size: 42000, Bytes: 21000000},
		Usage:                64000000,
		MempoolMinFee:        0.00001,
	}, nil
}

func (f *fakeNode) GetNetworkInfo(ctx context.Context) (*btcjson.GetNetworkInfoResult, error) {
	if f.networkErr != nil {
		return nil, f.networkErr
	}
	return &btcjson.GetNetworkInfoResult{
		ProtocolVersion: 70016,
		SubVersion:      "/Satoshi:27.0.0/",
		Connections:     12,
		TimeOffset:      -1,
	}, nil
}

func (f *fakeNode) Uptime(ctx context.Context) (int64, error) {
	if f.uptimeErr != nil {
		return 0, f.uptimeErr
	}
	return 360000, nil
}

func TestCollectAssemblesSnapshot(t *testing.T) {
	captured := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	c := NewCollector(&fakeNode{})
	c.now = func() time.Time { return captured }

	snap, err := c.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if snap.Height != 850000 || snap.Headers != 850010 {
		t.Fatalf("unexpected heights: %+v", snap)
	}
	if snap.MempoolTxCount != 42000 || snap.MempoolUsage != 64000000 {
		t.Fatalf("unexpected mempool fields: %+v", snap)
	}
	if snap.PeerCount != 12 || snap.Subversion != "/Satoshi:27.0.0/" {
		t.Fatalf("unexpected network fields: %+v", snap)
	}
	if snap.NodeUptime != 360000 {
		t.Fatalf("unexpected uptime: %d", snap.NodeUptime)
	}
	if !snap.CapturedAt.Equal(captured) {
		t.Fatalf("unexpected capture time: %v", snap.CapturedAt)
	}
}

func TestCollectFailsWithoutPartialSnapshot(t *testing.T) {
	wantErr := errors.New("mempool fetch blew up")
	c := NewCollector(&fakeNode{mempoolErr: wantErr})

	snap, err := c.Collect(context.Background())
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected the adapter error, got %v", err)
	}
	if snap != nil {
		t.Fatalf("expected no partial snapshot, got %+v", snap)
	}
}

func TestSnapshotJSONRoundTrip(t *testing.T) {
	codec := jsoniter.ConfigCompatibleWithStandardLibrary
	c := NewCollector(&fakeNode{})
	// A wall-clock-only time keeps the struct comparable after decoding.
	c.now = func() time.Time { return time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC) }
	orig, err := c.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}

	data, err := codec.Marshal(orig)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Snapshot
	if err := codec.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back != *orig {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", back, *orig)
	}
}

func TestSnapshotYAMLRoundTrip(t *testing.T) {
	c := NewCollector(&fakeNode{})
	c.now = func() time.Time { return time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC) }
	orig, err := c.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}

	data, err := yaml.Marshal(orig)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Snapshot
	if err := yaml.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !back.CapturedAt.Equal(orig.CapturedAt) {
		t.Fatalf("capture time mismatch: %v vs %v", back.CapturedAt, orig.CapturedAt)
	}
	back.CapturedAt = orig.CapturedAt
	if back != *orig {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", back, *orig)
	}
}
