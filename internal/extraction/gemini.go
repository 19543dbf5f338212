package extraction

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
)

// billExtractionPrompt is the fixed instruction sent with the raw receipt
// text. The expected JSON shape is a contract with the model: changing a key
// here must be matched by BillData.
const billExtractionPrompt = `Analisis teks dari struk belanja ini dan ekstrak informasi berikut ke dalam format JSON yang valid:
1. "storeName": Nama toko atau merchant.
2. "location": Alamat atau lokasi cabang dari toko.
3. "date": Tanggal transaksi dalam format YYYY-MM-DD.
4. "items": Sebuah array objek. Untuk setiap item, ekstrak:
    - "name": Nama lengkap barang.
    - "quantity": Jumlah barang yang dibeli.
    - "price": Harga total untuk item tersebut (kuantitas dikali harga satuan). PENTING: Selalu ambil angka paling kanan di baris item sebagai harga totalnya.
5. "tax": Jumlah total pajak (PPN/PB1). Jika tidak ada, kembalikan 0.
6. "serviceCharge": Jumlah total biaya servis. Jika tidak ada, kembalikan 0.
7. "total": Total akhir dari struk.

Jika salah satu informasi tidak ditemukan, kembalikan nilai null untuk key tersebut.
Hanya kembalikan objek JSON, tanpa penjelasan tambahan atau markdown formatting.

Teks struk:
---
%s
---`

// Gemini implements the Extractor interface using Google Gemini
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGemini creates a new Gemini Extractor instance
func NewGemini(apiKey string, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-1.5-flash-latest"
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &Gemini{
		client: client,
		model:  client.GenerativeModel(modelName),
	}, nil
}

// Extract sends the raw receipt text to Gemini and parses the JSON reply.
// No retry happens here: a single failure is reported to the caller.
func (g *Gemini) Extract(rawText string) (*BillData, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	prompt := fmt.Sprintf(billExtractionPrompt, rawText)
	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, classifyTransportError(err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("%w: no candidates in reply", ErrMalformedReply)
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}

	data, err := parseBillJSON(responseText.String())
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}

// classifyTransportError maps API failures onto the package sentinels: a
// 400-class rejection means the key is bad, 503 means the model is
// overloaded and the caller may try again later.
func classifyTransportError(err error) error {
	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.GRPCStatus().Code()
		switch {
		case apiErr.HTTPCode() == http.StatusBadRequest,
			code == codes.InvalidArgument,
			code == codes.Unauthenticated,
			code == codes.PermissionDenied:
			return fmt.Errorf("%w: %v", ErrBadAPIKey, err)
		case apiErr.HTTPCode() == http.StatusServiceUnavailable,
			code == codes.Unavailable:
			return fmt.Errorf("%w: %v", ErrServiceBusy, err)
		}
	}
	return fmt.Errorf("calling ai service: %w", err)
}
