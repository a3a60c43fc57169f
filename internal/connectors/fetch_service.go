package connectors

import (
	"flipflow/internal/storage"
)

type FetchService struct {
	db        *storage.DB
	connector MailConnector
	store     *MailStoreService
}

// FetchResult separates genuinely new mail (Stored) from re-fetches of
// content already on disk (Skipped); both leave correct email rows behind.
type FetchResult struct {
	Fetched int
	Stored  int
	Skipped int
}

func NewFetchService(db *storage.DB, rawMailDir string, connector MailConnector) *FetchService {
	return &FetchService{
		db:        db,
		connector: connector,
		store:     NewMailStoreService(db, rawMailDir),
	}
}

// FetchAndStore pulls messages and persists them content-addressed. The
// same message re-fetched later upserts, never duplicates.
func (s *FetchService) FetchAndStore(label string, max int) (FetchResult, error) {
	messages, err := s.connector.FetchInbox(label, max)
	if err != nil {
		return FetchResult{}, err
	}

	result := FetchResult{Fetched: len(messages)}
	for _, msg := range messages {
		_, wrote, err := s.store.Store(msg)
		if err != nil {
			return FetchResult{}, err
		}
		if wrote {
			result.Stored++
		} else {
			result.Skipped++
		}
	}

	return result, nil
}
