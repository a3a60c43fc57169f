package internal

import "time"

type Carrier string

const (
	CarrierUPS    Carrier = "UPS"
	CarrierFedEx  Carrier = "FEDEX"
	CarrierUSPS   Carrier = "USPS"
	CarrierStockX Carrier = "STOCKX_INTERNAL"
	CarrierNone   Carrier = "UNKNOWN"
)

type OrderStatus string

const (
	StatusNeedsReview OrderStatus = "NeedsReview"
	StatusOrdered     OrderStatus = "Ordered"
	StatusShipped     OrderStatus = "Shipped"
	StatusDelivered   OrderStatus = "Delivered"
	StatusCanceled    OrderStatus = "Canceled"
)

// StatusPriority ranks how definitive a status is. Canceled outranks
// everything; NeedsReview is the default resting state.
func StatusPriority(s OrderStatus) int {
	switch s {
	case StatusOrdered:
		return 1
	case StatusShipped:
		return 2
	case StatusDelivered:
		return 3
	case StatusCanceled:
		return 4
	default:
		return 0
	}
}

// RawEmail is a decoded message as handed to the extraction pipeline.
// Bodies are already MIME/base64-decoded by the mail plumbing; LabelText
// carries text pulled out of PDF shipping-label attachments, if any.
type RawEmail struct {
	SourceID     string
	Subject      string
	BodyText     string
	BodyHTML     string
	LabelText    string
	InternalDate time.Time
}

// OrderRecord is the merged state for one order number within a run.
type OrderRecord struct {
	OrderNumber     string
	TrackingNumber  *string
	Carrier         Carrier
	CarrierPriority int
	Size            *string
	Status          OrderStatus
	StatusPriority  int
	FailureReason   *string
	SourceEmailIDs  map[string]struct{}
	LastUpdated     time.Time
}

func (r *OrderRecord) HasSource(emailID string) bool {
	_, ok := r.SourceEmailIDs[emailID]
	return ok
}

type EmailRow struct {
	ID         int
	Provider   string
	MessageID  string
	Subject    string
	Sender     string
	ReceivedAt string
	Hash       string
	Status     string
	RawRef     string
}

type FetchedMailMessage struct {
	Provider   string
	MessageID  string
	Subject    string
	From       string
	ReceivedAt string
	Raw        []byte
}

// MarketProduct is a synced StockX catalog entry used by the dashboard.
type MarketProduct struct {
	ProductID  string
	StyleID    *string
	Title      string
	Brand      *string
	LowestAsk  *float64
	HighestBid *float64
	LastSale   *float64
	UpdatedAt  *string
	RawJSON    string
}

type OrderExportRow struct {
	OrderNumber    string
	Status         string
	TrackingNumber *string
	Carrier        string
	Size           *string
	FailureReason  *string
	SourceCount    int
	EmailAt        string
	UpdatedAt      string
}
