package ocr

// Recognizer defines the interface for text extraction from receipt images
type Recognizer interface {
	// Recognize converts the uploaded image at imageURL into raw text.
	// It fails only after the implementation's retry policy is exhausted;
	// an empty result is never reported as success.
	Recognize(imageURL string) (string, error)
}
