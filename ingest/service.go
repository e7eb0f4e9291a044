package ingest

import (
	"context"
	"log/slog"

	"github.com/bdpricegear/pricegear/orchestrator"
)

// Service wires the crawl orchestrator to the merger and exposes the
// synchronous "ingest one category now" operation.
type Service struct {
	orch   *orchestrator.Orchestrator
	merger *Merger
}

// NewService builds the ingestion entry point.
func NewService(orch *orchestrator.Orchestrator, merger *Merger) *Service {
	return &Service{orch: orch, merger: merger}
}

// IngestCategory crawls every shop for one category and merges the results
// as they stream in, so persistence starts before the slowest shop
// finishes. Partial success is success: failed shops are reported, not
// fatal.
func (s *Service) IngestCategory(ctx context.Context, category string) (Result, []orchestrator.ShopReport, error) {
	batches, reportCh := s.orch.Crawl(ctx, category)

	done := make(chan []orchestrator.ShopReport, 1)
	go func() {
		reports := make([]orchestrator.ShopReport, 0, 8)
		for r := range reportCh {
			reports = append(reports, r)
		}
		done <- reports
	}()

	res, err := s.merger.Run(ctx, batches)
	reports := <-done

	for _, r := range reports {
		if r.Err != nil {
			slog.Warn("shop finished with errors",
				slog.String("shop", r.Shop),
				slog.String("category", category),
				slog.Int("failed_pages", r.FailedPages),
				slog.Any("error", r.Err),
			)
		}
	}

	slog.Info("category ingested",
		slog.String("category", category),
		slog.Int("created", res.Created),
		slog.Int("updated", res.Updated),
		slog.Int("skipped_batches", res.SkippedBatches),
	)
	return res, reports, err
}

// IngestAll runs IngestCategory for each category in order. Category-level
// failures are isolated the same way shop-level ones are.
func (s *Service) IngestAll(ctx context.Context, categories []string) (Result, error) {
	var total Result
	for _, category := range categories {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		res, _, err := s.IngestCategory(ctx, category)
		total.Created += res.Created
		total.Updated += res.Updated
		total.SkippedItems += res.SkippedItems
		total.SkippedBatches += res.SkippedBatches
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
