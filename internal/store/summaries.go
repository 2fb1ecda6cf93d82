package store

import (
	"context"
	"iter"
	"log/slog"

	"github.com/seantiz/backtest/internal/model"
)

// Summaries projects every stored result to its headline figures. Entries
// whose document cannot be parsed are logged and skipped; only a failure of
// the listing itself is yielded as an error.
func Summaries(ctx context.Context, s Store, logger *slog.Logger) iter.Seq2[model.Summary, error] {
	return func(yield func(model.Summary, error) bool) {
		for e, err := range s.Results(ctx) {
			if err != nil {
				yield(model.Summary{}, err)
				return
			}
			sum, err := model.Summarize(e.ID, e.Doc)
			if err != nil {
				logger.WarnContext(ctx, "skipping unreadable result", "backtest_id", e.ID, "error", err)
				continue
			}
			if !yield(sum, nil) {
				return
			}
		}
	}
}
