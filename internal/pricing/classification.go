package pricing

// Classification is the notification-worthiness decision for one ingestion.
// It is derived on every ingestion and never persisted.
type Classification int

// Classification values returned by the engine.
const (
	NoNotification Classification = iota
	FirstObservation
	PriceIncreased
	PriceDecreased
	NewHistoricalLow
	ClassificationError
)

var classificationNames = map[Classification]string{
	NoNotification:      "no_notification",
	FirstObservation:    "first_observation",
	PriceIncreased:      "price_increased",
	PriceDecreased:      "price_decreased",
	NewHistoricalLow:    "new_historical_low",
	ClassificationError: "error",
}

func (c Classification) String() string {
	if name, ok := classificationNames[c]; ok {
		return name
	}
	return "unknown"
}

// Notifies reports whether subscribers should hear about this classification.
func (c Classification) Notifies() bool {
	switch c {
	case FirstObservation, PriceIncreased, PriceDecreased, NewHistoricalLow:
		return true
	default:
		return false
	}
}
