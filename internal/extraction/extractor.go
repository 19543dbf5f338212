package extraction

import "errors"

// Transport-layer failures from the AI service, classified so callers
// can decide whether a retry later makes sense.
var (
	ErrBadAPIKey      = errors.New("ai service rejected the api key")
	ErrServiceBusy    = errors.New("ai service is busy")
	ErrMalformedReply = errors.New("ai service returned a malformed reply")
)

// Item is a single line item extracted from a receipt
type Item struct {
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
}

// BillData contains structured information extracted from raw receipt text.
// Fields the model cannot determine unmarshal to their zero values.
type BillData struct {
	StoreName     string  `json:"storeName"`
	Location      string  `json:"location"`
	Date          string  `json:"date"` // ISO 8601 format
	Items         []Item  `json:"items"`
	Total         float64 `json:"total"`
	Tax           float64 `json:"tax"`
	ServiceCharge float64 `json:"serviceCharge"`
}

// Extractor defines the interface for structured extraction over raw OCR text
type Extractor interface {
	// Extract converts raw receipt text into a structured bill
	Extract(rawText string) (*BillData, error)
	// Close closes the extractor and releases resources
	Close() error
}
