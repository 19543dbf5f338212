package bill

import (
	"encoding/json"
	"errors"
	"time"
)

// Status is the lifecycle state of a bill. PROCESSING resolves to exactly
// one of COMPLETED or FAILED; both are terminal. A failed bill is never
// retried automatically, the user re-uploads instead.
type Status string

const (
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

var (
	ErrNotFound    = errors.New("bill not found")
	ErrNotOwner    = errors.New("bill belongs to another user")
	ErrEmptyUpload = errors.New("uploaded file is empty")
	ErrTooLarge    = errors.New("uploaded file exceeds the size limit")
	ErrBadImage    = errors.New("unsupported or corrupt image")
	ErrProcessing  = errors.New("failed to process receipt")
)

// Item is a single extracted line item
type Item struct {
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
}

// Bill represents one receipt-processing outcome. The image URL and raw
// text are kept even when processing fails, for audit and diagnostics.
// SplitDetails is treated as an opaque client-defined structure.
type Bill struct {
	ID            string          `json:"id"`
	OwnerID       string          `json:"ownerId"`
	Status        Status          `json:"status"`
	StoreName     string          `json:"storeName"`
	StoreLocation string          `json:"storeLocation"`
	PurchaseDate  string          `json:"purchaseDate,omitempty"` // YYYY-MM-DD
	Items         []Item          `json:"items"`
	Total         float64         `json:"total"`
	Tax           float64         `json:"tax"`
	ServiceCharge float64         `json:"serviceCharge"`
	RawText       string          `json:"rawText"`
	ImageURL      string          `json:"imageUrl"`
	SplitDetails  json.RawMessage `json:"splitDetails,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}
