package bill

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dimasfr/splitbill/internal/auth"
	"github.com/dimasfr/splitbill/internal/extraction"
	"github.com/dimasfr/splitbill/internal/imaging"
	"github.com/dimasfr/splitbill/internal/ocr"
)

// maxUploadSize caps receipt uploads. The guard runs before any external
// call so oversized or garbage input never costs OCR/AI quota.
const maxUploadSize = 10 << 20 // 10MB

// DB defines the interface for bill persistence
type DB interface {
	// SaveBill stores or overwrites a bill
	SaveBill(bill *Bill) error

	// GetBill retrieves a bill by ID, returning ErrNotFound if absent
	GetBill(id string) (*Bill, error)

	// ListBillsByOwner returns all bills for an owner, newest first
	ListBillsByOwner(ownerID string) ([]*Bill, error)

	// DeleteBill removes a bill from the database
	DeleteBill(id string) error
}

// ObjectStorage defines the interface for durable image storage
type ObjectStorage interface {
	// Upload writes the image under an owner-scoped path and returns its public URL
	Upload(data []byte, ownerID string) (string, error)

	// Remove deletes the object behind a public URL
	Remove(publicURL string) error
}

// IDGenerator generates unique IDs for bills
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service orchestrates the receipt-ingestion pipeline and the owner-scoped
// bill operations
type Service struct {
	db          DB
	storage     ObjectStorage
	recognizer  ocr.Recognizer
	extractor   extraction.Extractor
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB, storage ObjectStorage, recognizer ocr.Recognizer, extractor extraction.Extractor) *Service {
	return &Service{
		db:          db,
		storage:     storage,
		recognizer:  recognizer,
		extractor:   extractor,
		idGenerator: &defaultIDGenerator{},
		timeSource:  &defaultTimeSource{},
	}
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, storage ObjectStorage, recognizer ocr.Recognizer, extractor extraction.Extractor, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		storage:     storage,
		recognizer:  recognizer,
		extractor:   extractor,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// Process runs one ingestion: upload, OCR, structured extraction,
// validation, persistence. Once the image is in storage every outcome is
// persisted, successful or not, so no stored object is left without a
// ledger entry.
func (s *Service) Process(owner *auth.User, data []byte, contentType string) (*Bill, error) {
	if len(data) == 0 {
		return nil, ErrEmptyUpload
	}
	if len(data) > maxUploadSize {
		return nil, ErrTooLarge
	}

	jpegData, err := imaging.NormalizeJPEG(data, contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadImage, err)
	}

	imageURL, err := s.storage.Upload(jpegData, owner.ID)
	if err != nil {
		// Nothing owner-visible exists yet, so no FAILED record either
		return nil, fmt.Errorf("uploading image: %w", err)
	}

	rawText, err := s.recognizer.Recognize(imageURL)
	if err != nil {
		return nil, s.persistFailure(owner, imageURL, "", err)
	}

	parsed, err := s.extractor.Extract(rawText)
	if err != nil {
		return nil, s.persistFailure(owner, imageURL, rawText, err)
	}

	if len(parsed.Items) == 0 || parsed.Total <= 0 {
		err := fmt.Errorf("ai parsing returned invalid data (no items or zero total)")
		return nil, s.persistFailure(owner, imageURL, rawText, err)
	}

	items := make([]Item, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		items = append(items, Item{
			Name:     item.Name,
			Quantity: item.Quantity,
			Price:    item.Price,
		})
	}

	bill := &Bill{
		ID:            s.idGenerator.Generate(),
		OwnerID:       owner.ID,
		Status:        StatusCompleted,
		StoreName:     parsed.StoreName,
		StoreLocation: parsed.Location,
		PurchaseDate:  parsed.Date,
		Items:         items,
		Total:         parsed.Total,
		Tax:           parsed.Tax,
		ServiceCharge: parsed.ServiceCharge,
		RawText:       rawText,
		ImageURL:      imageURL,
		CreatedAt:     s.timeSource.Now(),
	}

	if err := s.db.SaveBill(bill); err != nil {
		return nil, fmt.Errorf("saving bill: %w", err)
	}
	return bill, nil
}

// persistFailure records a FAILED bill for a pipeline error past the upload
// step. The raw text keeps the granular failure reason for diagnostics; the
// caller only ever sees the generic processing error.
func (s *Service) persistFailure(owner *auth.User, imageURL, rawText string, cause error) error {
	slog.Error("Failed to process receipt",
		"owner_id", owner.ID,
		"image_url", imageURL,
		"error", cause,
	)

	diagnostic := fmt.Sprintf("Gagal memproses struk: %v", cause)
	if rawText != "" {
		diagnostic = rawText + "\n\n" + diagnostic
	}

	failed := &Bill{
		ID:        s.idGenerator.Generate(),
		OwnerID:   owner.ID,
		Status:    StatusFailed,
		Items:     []Item{},
		Total:     0,
		RawText:   diagnostic,
		ImageURL:  imageURL,
		CreatedAt: s.timeSource.Now(),
	}
	if err := s.db.SaveBill(failed); err != nil {
		slog.Error("Failed to persist FAILED bill", "owner_id", owner.ID, "error", err)
	}

	return fmt.Errorf("%w: %v", ErrProcessing, cause)
}

// loadOwned fetches a bill and checks ownership, in that order: a missing
// id is ErrNotFound, an existing bill owned by someone else is ErrNotOwner
func (s *Service) loadOwned(id, ownerID string) (*Bill, error) {
	bill, err := s.db.GetBill(id)
	if err != nil {
		return nil, err
	}
	if bill.OwnerID != ownerID {
		return nil, ErrNotOwner
	}
	return bill, nil
}

// ListForOwner returns all of the owner's bills, newest first
func (s *Service) ListForOwner(ownerID string) ([]*Bill, error) {
	bills, err := s.db.ListBillsByOwner(ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing bills: %w", err)
	}
	return bills, nil
}

// Get returns one bill, owner-scoped
func (s *Service) Get(id, ownerID string) (*Bill, error) {
	return s.loadOwned(id, ownerID)
}

// UpdateSplit overwrites only the split assignment and the total. The total
// is accepted as-is: it may be a human correction. Status and extracted
// fields are never touched here.
func (s *Service) UpdateSplit(id, ownerID string, splitDetails json.RawMessage, total float64) (*Bill, error) {
	bill, err := s.loadOwned(id, ownerID)
	if err != nil {
		return nil, err
	}

	bill.SplitDetails = splitDetails
	bill.Total = total

	if err := s.db.SaveBill(bill); err != nil {
		return nil, fmt.Errorf("saving bill: %w", err)
	}
	return bill, nil
}

// Delete removes a bill. Storage cleanup is best-effort: a failed object
// delete is logged and the database record is removed regardless.
func (s *Service) Delete(id, ownerID string) error {
	bill, err := s.loadOwned(id, ownerID)
	if err != nil {
		return err
	}

	if bill.ImageURL != "" {
		if err := s.storage.Remove(bill.ImageURL); err != nil {
			slog.Warn("Failed to delete image from storage", "image_url", bill.ImageURL, "error", err)
		}
	}

	if err := s.db.DeleteBill(id); err != nil {
		return fmt.Errorf("deleting bill: %w", err)
	}
	return nil
}
