package stream

import (
	"context"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/juju/errors"
	"go.uber.org/zap"

	"target-snowflake/internal/singer"
)

// Source yields messages in arrival order and io.EOF at the end.
type Source interface {
	Next() (singer.Message, error)
}

// Stats summarizes a completed run.
type Stats struct {
	Messages int
	Records  int
	States   int
}

// Run feeds every message of src to c, checking buffer expiry between
// messages, and finishes the run at EOF. Any error stops the run at once.
func Run(ctx context.Context, src Source, c *Coordinator) (Stats, error) {
	var stats Stats
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if err := c.FlushExpired(ctx); err != nil {
			return stats, err
		}

		msg, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return stats, err
		}
		stats.Messages++
		switch msg.(type) {
		case *singer.RecordMessage:
			stats.Records++
		case *singer.StateMessage:
			stats.States++
		}
		if err := c.Handle(ctx, msg); err != nil {
			return stats, errors.Annotatef(err, "message %d (%s)", stats.Messages, msg.Kind())
		}
	}

	if err := c.Finish(ctx); err != nil {
		return stats, err
	}
	c.log.Info("input exhausted",
		zap.String("messages", humanize.Comma(int64(stats.Messages))),
		zap.String("records", humanize.Comma(int64(stats.Records))),
		zap.Int("states", stats.States),
		zap.Strings("streams", c.Streams()))
	return stats, nil
}
