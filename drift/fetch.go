package drift

import (
	"context"
	"log"
	"sync"
	"sync/atomic"

	"btcstats/headercache"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

const defaultWorkers = 8

// HeaderSource is the adapter surface the fetcher needs. *rpc.Client
// satisfies it.
type HeaderSource interface {
	GetBlockCount(ctx context.Context) (int64, error)
	GetBlockHash(ctx context.Context, height int64) (*chainhash.Hash, error)
	GetBlockHeader(ctx context.Context, hash *chainhash.Hash) (*btcjson.GetBlockHeaderVerboseResult, error)
}

// HeaderCache is the optional read-through cache. *headercache.Store
// satisfies it.
type HeaderCache interface {
	Get(height int64) (*headercache.Header, bool, error)
	Put(header *headercache.Header) error
}

// Fetcher retrieves block headers through a worker pool, consulting the cache
// before the node. Progress, when set, is invoked after every completed
// height with (done, total).
type Fetcher struct {
	Source   HeaderSource
	Cache    HeaderCache
	Workers  int
	Progress func(done, total int)
}

// Fetch retrieves the headers for the given heights, preserving input order
// so contiguous sampled runs stay adjacent in the result. Any single failure
// cancels the remaining work and fails the whole fetch.
func (f *Fetcher) Fetch(ctx context.Context, heights []int64) ([]headercache.Header, error) {
	if len(heights) == 0 {
		return nil, nil
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	workers := f.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	if workers > len(heights) {
		workers = len(heights)
	}

	results := make([]headercache.Header, len(heights))
	jobs := make(chan int)
	errs := make(chan error, 1)
	var done atomic.Int64
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				header, err := f.fetchOne(ctx, heights[idx])
				if err != nil {
					select {
					case errs <- err:
					default:
					}
					cancel()
					return
				}
				results[idx] = *header
				n := done.Add(1)
				if f.Progress != nil {
					f.Progress(int(n), len(heights))
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i := range heights {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait()
	select {
	case err := <-errs:
		return nil, err
	default:
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (f *Fetcher) fetchOne(ctx context.Context, height int64) (*headercache.Header, error) {
	if f.Cache != nil {
		header, ok, err := f.Cache.Get(height)
		if err != nil {
			log.Printf("drift: cache read for height %d: %v", height, err)
		} else if ok {
			return header, nil
		}
	}

	hash, err := f.Source.GetBlockHash(ctx, height)
	if err != nil {
		return nil, err
	}
	verbose, err := f.Source.GetBlockHeader(ctx, hash)
	if err != nil {
		return nil, err
	}

	header := &headercache.Header{
		Height:       height,
		Hash:         *hash,
		Time:         verbose.Time,
		Nonce:        verbose.Nonce,
		BlockVersion: verbose.Version,
	}
	// The genesis block has no parent; leave the zero hash in place.
	if verbose.PreviousHash != "" {
		prev, err := chainhash.NewHashFromStr(verbose.PreviousHash)
		if err == nil {
			header.PreviousHash = *prev
		}
	}

	if f.Cache != nil {
		if err := f.Cache.Put(header); err != nil {
			log.Printf("drift: cache write for height %d: %v", height, err)
		}
	}
	return header, nil
}
