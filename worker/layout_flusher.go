package worker

import (
	"context"
	"log"
	"time"

	"github.com/pregram/pregram/models"
	"github.com/pregram/pregram/store"
)

type LayoutFlusher struct {
	SnapshotCh         chan models.BoardSet
	FlushCh            chan chan struct{}
	pregramStore       store.PregramStore
	tickerMilliseconds int
}

// Snapshots are coalesced per account: only the newest snapshot received
// inside a ticker window is written, earlier ones are superseded.
func NewLayoutFlusher(pregramStore store.PregramStore, tickerMilliseconds int) *LayoutFlusher {
	return &LayoutFlusher{
		SnapshotCh:         make(chan models.BoardSet, 1024), // buffer to absorb bursts
		FlushCh:            make(chan chan struct{}, 16),
		pregramStore:       pregramStore,
		tickerMilliseconds: tickerMilliseconds,
	}
}

// Flush forces a synchronous write of everything pending and waits for it.
// Used before account switches and on session close so the outgoing
// snapshot is durable before anything else reads it.
func (b *LayoutFlusher) Flush() {
	done := make(chan struct{})
	b.FlushCh <- done
	<-done
}

func (b *LayoutFlusher) Run(shutdownCtx context.Context) {
	ticker := time.NewTicker(time.Duration(b.tickerMilliseconds) * time.Millisecond)
	defer ticker.Stop()

	// Key: accountId -> latest snapshot. Latest wins.
	pending := make(map[string]models.BoardSet)

	flush := func() {
		if len(pending) == 0 {
			return
		}

		sets := make([]models.BoardSet, 0, len(pending))
		for _, set := range pending {
			sets = append(sets, set)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		// Explicitly ignore cancel to satisfy linter
		// In this case, we don't want to defer cancel(),
		// when shutdownCtx causes this function to return
		// any pending batch writes should finish
		_ = cancel
		unprocessed, err := b.pregramStore.WriteBoardSets(ctx, sets)

		if err != nil {
			log.Printf("Error writing board sets to dynamo: %v", err)
		}

		clear(pending)

		// Re-queue unprocessed sets unless a newer snapshot arrived meanwhile
		for _, u := range unprocessed {
			pending[u.AccountId] = u
		}
	}

	for {
		select {
		case set := <-b.SnapshotCh:
			pending[set.AccountId] = set

		case done := <-b.FlushCh:
			// Drain snapshots already queued so the barrier covers them
			for {
				select {
				case set := <-b.SnapshotCh:
					pending[set.AccountId] = set
					continue
				default:
				}
				break
			}
			flush()
			close(done)

		case <-ticker.C:
			flush()

		case <-shutdownCtx.Done():
			// Write-on-shutdown: nothing buffered may be lost
			for {
				select {
				case set := <-b.SnapshotCh:
					pending[set.AccountId] = set
					continue
				default:
				}
				break
			}
			flush()
			return
		}
	}
}
