package extraction

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// parseBillJSON parses the JSON reply from the model
func parseBillJSON(text string) (*BillData, error) {
	text = strings.TrimSpace(text)

	// Remove markdown code blocks if present
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	// Find the JSON object boundaries - look for first { and last }
	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, fmt.Errorf("%w: no JSON object found", ErrMalformedReply)
	}

	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return nil, fmt.Errorf("%w: invalid JSON object", ErrMalformedReply)
	}

	text = text[startIdx : endIdx+1]

	var data BillData
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}

	data.StoreName = strings.TrimSpace(data.StoreName)
	data.Location = strings.TrimSpace(data.Location)
	data.Date = normalizeDate(data.Date)

	return &data, nil
}

// normalizeDate coerces the model's date into YYYY-MM-DD, or empty when it
// cannot be parsed. An unknown purchase date stays unknown rather than
// defaulting to today.
func normalizeDate(date string) string {
	date = strings.TrimSpace(date)
	if date == "" {
		return ""
	}

	formats := []string{
		"2006-01-02",
		"2006/01/02",
		"01/02/2006",
		"02-01-2006",
	}
	for _, format := range formats {
		if d, err := time.Parse(format, date); err == nil {
			return d.Format("2006-01-02")
		}
	}
	return ""
}
