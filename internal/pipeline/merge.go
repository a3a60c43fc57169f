package pipeline

import (
	"sort"
	"time"

	"flipflow/internal"
)

// Extraction is the per-email bundle fed into Merge.
type Extraction struct {
	OrderNumber     string
	TrackingNumber  *string
	Carrier         internal.Carrier
	CarrierPriority int
	Size            *string
	Status          internal.OrderStatus
	StatusPriority  int
	FailureReason   *string
	EmailDate       time.Time
}

// Merge folds one extraction into the record for its order number.
//
// Status only moves to a strictly higher priority; ties keep the first-seen
// status. Tracking is replaced only by equal-or-better carrier confidence
// (lower or equal priority number). Size and failure reason are
// first-known-value-wins. Returns nil when the extraction carries no order
// number: a record without a key must never exist.
//
// Re-merging an already-seen source email id is a no-op, so idempotent
// re-delivery from the mail source is safe.
func Merge(existing *internal.OrderRecord, ex Extraction, sourceEmailID string) *internal.OrderRecord {
	if ex.OrderNumber == "" {
		return existing
	}

	if existing == nil {
		rec := &internal.OrderRecord{
			OrderNumber:     ex.OrderNumber,
			TrackingNumber:  ex.TrackingNumber,
			Carrier:         internal.CarrierNone,
			Size:            ex.Size,
			Status:          ex.Status,
			StatusPriority:  ex.StatusPriority,
			FailureReason:   ex.FailureReason,
			SourceEmailIDs:  map[string]struct{}{sourceEmailID: {}},
			LastUpdated:     ex.EmailDate,
		}
		if rec.Status == "" {
			rec.Status = internal.StatusNeedsReview
			rec.StatusPriority = internal.StatusPriority(internal.StatusNeedsReview)
		}
		if ex.TrackingNumber != nil {
			rec.Carrier = ex.Carrier
			rec.CarrierPriority = ex.CarrierPriority
		}
		return rec
	}

	if existing.HasSource(sourceEmailID) {
		return existing
	}
	existing.SourceEmailIDs[sourceEmailID] = struct{}{}

	if ex.Status != "" && ex.StatusPriority > existing.StatusPriority {
		existing.Status = ex.Status
		existing.StatusPriority = ex.StatusPriority
	}

	if ex.TrackingNumber != nil {
		if existing.TrackingNumber == nil || ex.CarrierPriority <= existing.CarrierPriority {
			existing.TrackingNumber = ex.TrackingNumber
			existing.Carrier = ex.Carrier
			existing.CarrierPriority = ex.CarrierPriority
		}
	}

	if existing.Size == nil && ex.Size != nil {
		existing.Size = ex.Size
	}
	if existing.FailureReason == nil && ex.FailureReason != nil {
		existing.FailureReason = ex.FailureReason
	}

	if ex.EmailDate.After(existing.LastUpdated) {
		existing.LastUpdated = ex.EmailDate
	}

	return existing
}

// DedupeRecords collapses duplicate rows for the same order number left over
// from buggy historical runs: the oldest record by timestamp is kept, the
// rest are dropped. Output order follows first appearance of each order
// number in the input.
func DedupeRecords(records []internal.OrderRecord) []internal.OrderRecord {
	oldest := map[string]internal.OrderRecord{}
	order := []string{}
	for _, rec := range records {
		prev, seen := oldest[rec.OrderNumber]
		if !seen {
			oldest[rec.OrderNumber] = rec
			order = append(order, rec.OrderNumber)
			continue
		}
		if rec.LastUpdated.Before(prev.LastUpdated) {
			oldest[rec.OrderNumber] = rec
		}
	}

	out := make([]internal.OrderRecord, 0, len(order))
	for _, key := range order {
		out = append(out, oldest[key])
	}
	return out
}

// SortRecords gives a run's output a stable order regardless of email
// processing order.
func SortRecords(records []internal.OrderRecord) {
	sort.Slice(records, func(i, j int) bool { return records[i].OrderNumber < records[j].OrderNumber })
}
