package importer

import (
	"context"

	"golang.org/x/sync/errgroup"
)

const DefaultWorkers = 4

// ParseBatch parses independent workbooks on up to workers goroutines.
// Outcomes keep the order of inputs. When ctx is cancelled no further files
// are started; the outcomes of files already parsed are returned together
// with the context error.
func (e *Engine) ParseBatch(ctx context.Context, inputs []ParseInput, workers int) ([]ParseOutcome, error) {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	results := make([]ParseOutcome, len(inputs))
	done := make([]bool, len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range inputs {
		if gctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = e.Parse(gctx, inputs[i])
			done[i] = true
			return nil
		})
	}
	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}

	out := make([]ParseOutcome, 0, len(inputs))
	for i, ok := range done {
		if ok {
			out = append(out, results[i])
		}
	}
	return out, err
}
