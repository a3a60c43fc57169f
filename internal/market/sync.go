package market

import (
	"context"
	"time"

	"flipflow/internal"
	"flipflow/internal/config"
	"flipflow/internal/storage"
)

type SyncService struct {
	db     *storage.DB
	client *Client
	cfg    config.Config
}

func NewSyncService(db *storage.DB, cfg config.Config) *SyncService {
	return &SyncService{db: db, client: NewClient(cfg), cfg: cfg}
}

// SyncQuery searches the marketplace catalog for a query, refreshes market
// data for each hit, and upserts the results. Products that fail the
// market-data call keep their search-result fields.
func (s *SyncService) SyncQuery(ctx context.Context, query string) (int, error) {
	products, err := s.client.SearchAll(ctx, query)
	if err != nil {
		return 0, err
	}

	enriched := make([]internal.MarketProduct, 0, len(products))
	for _, product := range products {
		withData, err := s.client.GetMarketData(ctx, product)
		if err != nil {
			enriched = append(enriched, product)
			continue
		}
		enriched = append(enriched, withData)
	}

	if len(enriched) > 0 {
		if err := s.db.UpsertMarketProducts(enriched); err != nil {
			return 0, err
		}
	}
	_ = s.db.SetMetadata("market.last_sync."+query, time.Now().UTC().Format(time.RFC3339))
	return len(enriched), nil
}
