package zepix

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/raykavin/zepix/pkg/broker"
	"github.com/raykavin/zepix/pkg/core"
	"github.com/schollz/progressbar/v3"
)

// replayClock follows the time of the replayed ticks
type replayClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *replayClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *replayClock) set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.After(c.now) {
		c.now = t
	}
}

// Replay feeds recorded ticks through the paper broker in time order. Each request in opens is
// placed as an original order on the first tick of its symbol. Progress is written to progress
// when it is not nil.
func (b *Bot) Replay(ctx context.Context, ticks []broker.Tick, opens []core.OrderRequest, progress io.Writer) error {
	if b.replay == nil || b.paper == nil {
		return fmt.Errorf("bot was not built for replay")
	}

	pending := make(map[string][]core.OrderRequest)
	for _, request := range opens {
		pending[request.Symbol] = append(pending[request.Symbol], request)
	}

	var bar *progressbar.ProgressBar
	if progress != nil {
		bar = progressbar.NewOptions(len(ticks), progressbar.OptionSetWriter(progress),
			progressbar.OptionSetDescription("replaying"))
	}

	b.log.Infof("replaying %d ticks", len(ticks))
	for _, tick := range ticks {
		if err := ctx.Err(); err != nil {
			return err
		}

		b.replay.set(tick.Time)
		events := b.paper.SetQuote(tick.Symbol, tick.Bid, tick.Ask)

		for _, request := range pending[tick.Symbol] {
			orderID, err := b.paper.PlaceOrder(ctx, request)
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", request.Symbol, err)
			}
			b.log.Infof("opened original order %s on %s", orderID, request.Symbol)
		}
		delete(pending, tick.Symbol)

		if err := b.monitor.Step(ctx, events...); err != nil {
			return err
		}

		if bar != nil {
			if err := bar.Add(1); err != nil {
				b.log.Warnf("update progressbar fail: %v", err)
			}
		}
	}

	return nil
}
