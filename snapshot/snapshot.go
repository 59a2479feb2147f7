// Package snapshot aggregates a Bitcoin node's state into immutable
// point-in-time records and derives rate metrics from pairs of them.
package snapshot

import (
	"context"
	"sync"
	"time"

	"btcstats/rpc"

	"github.com/btcsuite/btcd/btcjson"
)

// Snapshot is one observation of node state. All fields describe the same
// report cycle: each composing RPC response is authoritative for its fields,
// and a snapshot is never partially filled. A failed cycle produces no
// snapshot at all.
type Snapshot struct {
	Chain                string    `json:"chain" yaml:"chain"`
	Height               int64     `json:"height" yaml:"height"`
	Headers              int64     `json:"headers" yaml:"headers"`
	BestBlockHash        string    `json:"best_block_hash" yaml:"best_block_hash"`
	Difficulty           float64   `json:"difficulty" yaml:"difficulty"`
	VerificationProgress float64   `json:"verification_progress" yaml:"verification_progress"`
	InitialBlockDownload bool      `json:"initial_block_download" yaml:"initial_block_download"`
	ChainWork            string    `json:"chain_work" yaml:"chain_work"`
	SizeOnDisk           int64     `json:"size_on_disk" yaml:"size_on_disk"`
	Pruned               bool      `json:"pruned" yaml:"pruned"`
	MempoolTxCount       int64     `json:"mempool_tx_count" yaml:"mempool_tx_count"`
	MempoolBytes         int64     `json:"mempool_bytes" yaml:"mempool_bytes"`
	MempoolUsage         int64     `json:"mempool_usage" yaml:"mempool_usage"`
	MempoolMinFee        float64   `json:"mempool_min_fee" yaml:"mempool_min_fee"`
	PeerCount            int64     `json:"peer_count" yaml:"peer_count"`
	ProtocolVersion      int32     `json:"protocol_version" yaml:"protocol_version"`
	Subversion           string    `json:"subversion" yaml:"subversion"`
	TimeOffset           int64     `json:"time_offset" yaml:"time_offset"`
	NodeUptime           int64     `json:"node_uptime" yaml:"node_uptime"`
	CapturedAt           time.Time `json:"captured_at" yaml:"captured_at"`
}

// NodeClient is the adapter surface Collect depends on. *rpc.Client satisfies
// it; tests substitute fakes.
type NodeClient interface {
	GetBlockChainInfo(ctx context.Context) (*btcjson.GetBlockChainInfoResult, error)
	GetMempoolInfo(ctx context.Context) (*rpc.MempoolInfo, error)
	GetNetworkInfo(ctx context.Context) (*btcjson.GetNetworkInfoResult, error)
	Uptime(ctx context.Context) (int64, error)
}

// Collector builds snapshots from a node client.
type Collector struct {
	node NodeClient
	now  func() time.Time
}

// NewCollector creates a collector over the given adapter.
func NewCollector(node NodeClient) *Collector {
	return &Collector{node: node, now: time.Now}
}

// Collect issues the snapshot RPCs concurrently and assembles the result.
// The first adapter error cancels the remaining calls and fails the cycle;
// no partial snapshot is ever returned.
func (c *Collector) Collect(ctx context.Context) (*Snapshot, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		chainInfo *btcjson.GetBlockChainInfoResult
		mempool   *rpc.MempoolInfo
		network   *btcjson.GetNetworkInfoResult
		uptime    int64
	)

	errs := make(chan error, 4)
	var wg sync.WaitGroup
	run := func(fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				// Abort the rest of the cycle; the snapshot is already lost.
				cancel()
				errs <- err
			}
		}()
	}

	run(func() error {
		var err error
		chainInfo, err = c.node.GetBlockChainInfo(ctx)
		return err
	})
	run(func() error {
		var err error
		mempool, err = c.node.GetMempoolInfo(ctx)
		return err
	})
	run(func() error {
		var err error
		network, err = c.node.GetNetworkInfo(ctx)
		return err
	})
	run(func() error {
		var err error
		uptime, err = c.node.Uptime(ctx)
		return err
	})

	wg.Wait()
	select {
	case err := <-errs:
		return nil, err
	default:
	}

	return &Snapshot{
		Chain:                chainInfo.Chain,
		Height:               int64(chainInfo.Blocks),
		Headers:              int64(chainInfo.Headers),
		BestBlockHash:        chainInfo.BestBlockHash,
		Difficulty:           chainInfo.Difficulty,
		VerificationProgress: chainInfo.VerificationProgress,
		InitialBlockDownload: chainInfo.InitialBlockDownload,
		ChainWork:            chainInfo.ChainWork,
		SizeOnDisk:           chainInfo.SizeOnDisk,
		Pruned:               chainInfo.Pruned,
		MempoolTxCount:       mempool.Size,
		MempoolBytes:         mempool.Bytes,
		MempoolUsage:         mempool.Usage,
		MempoolMinFee:        mempool.MempoolMinFee,
		PeerCount:            int64(network.Connections),
		ProtocolVersion:      network.ProtocolVersion,
		Subversion:           network.SubVersion,
		TimeOffset:           network.TimeOffset,
		NodeUptime:           uptime,
		CapturedAt:           c.now().UTC(),
	}, nil
}
