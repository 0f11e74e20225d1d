package parser

import (
	"Receiptly-Backend/domain"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const receiptParsePrompt = "Parse the following receipt text and respond ONLY with a valid JSON object containing exactly these fields: 'storeName' (string), 'transactionDate' (string in YYYY-MM-DD format), 'totalAmount' (number), and 'items' (array of objects with 'name' string, 'price' number, 'quantity' number, 'category' string). The category must be one of: Groceries, Electronics, Clothing, Healthcare, Food & Dining, Household, Uncategorized. Do not include any explanations, markdown formatting, or extra text. Text: %s"

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"02-01-2006",
}

type (
	// ReceiptParser turns raw OCR text into a structured receipt via a
	// generative-text service. The decoded object is validated against the
	// expected shape before it is returned; malformed model output fails
	// closed with domain.ErrMalformedParseResponse.
	ReceiptParser interface {
		ParseReceiptText(ctx context.Context, text string) (domain.ParsedReceipt, error)
	}

	geminiParser struct {
		endpoint string
		apiKey   string
		client   *http.Client
	}
)

func NewReceiptParser(endpoint string, apiKey string) ReceiptParser {
	return &geminiParser{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *geminiParser) ParseReceiptText(ctx context.Context, text string) (domain.ParsedReceipt, error) {
	requestBody := map[string]interface{}{
		"contents": []map[string]interface{}{
			{
				"parts": []map[string]interface{}{
					{"text": fmt.Sprintf(receiptParsePrompt, text)},
				},
			},
		},
		"generationConfig": map[string]interface{}{
			"temperature": 0.1,
			"topP":        0.8,
			"topK":        40,
		},
	}

	requestJSON, err := json.Marshal(requestBody)
	if err != nil {
		return domain.ParsedReceipt{}, fmt.Errorf("%w: %v", domain.ErrMalformedParseResponse, err)
	}

	url := p.endpoint
	if p.apiKey != "" {
		url = fmt.Sprintf("%s?key=%s", p.endpoint, p.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(requestJSON))
	if err != nil {
		return domain.ParsedReceipt{}, fmt.Errorf("%w: %v", domain.ErrMalformedParseResponse, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return domain.ParsedReceipt{}, fmt.Errorf("%w: %v", domain.ErrMalformedParseResponse, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return domain.ParsedReceipt{}, fmt.Errorf("%w: %s - %s", domain.ErrMalformedParseResponse, resp.Status, string(bodyBytes))
	}

	var geminiResp struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&geminiResp); err != nil {
		return domain.ParsedReceipt{}, fmt.Errorf("%w: %v", domain.ErrMalformedParseResponse, err)
	}

	if len(geminiResp.Candidates) == 0 || len(geminiResp.Candidates[0].Content.Parts) == 0 {
		return domain.ParsedReceipt{}, fmt.Errorf("%w: empty candidate response", domain.ErrMalformedParseResponse)
	}

	return parseReceiptJSON(geminiResp.Candidates[0].Content.Parts[0].Text)
}

// parseReceiptJSON extracts the JSON object embedded in the model's text
// response and validates it against the expected receipt shape.
func parseReceiptJSON(text string) (domain.ParsedReceipt, error) {
	jsonText, err := extractJSON(text)
	if err != nil {
		return domain.ParsedReceipt{}, err
	}

	var parsed domain.ParsedReceipt
	if err := json.Unmarshal([]byte(jsonText), &parsed); err != nil {
		return domain.ParsedReceipt{}, fmt.Errorf("%w: %v", domain.ErrMalformedParseResponse, err)
	}

	if err := validateParsedReceipt(&parsed); err != nil {
		return domain.ParsedReceipt{}, err
	}

	return parsed, nil
}

// extractJSON strips markdown code fences and returns the first {...last}
// span of the response text.
func extractJSON(text string) (string, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return "", fmt.Errorf("%w: no JSON object found in response", domain.ErrMalformedParseResponse)
	}

	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return "", fmt.Errorf("%w: invalid JSON object in response", domain.ErrMalformedParseResponse)
	}

	return text[startIdx : endIdx+1], nil
}

func validateParsedReceipt(parsed *domain.ParsedReceipt) error {
	if strings.TrimSpace(parsed.StoreName) == "" {
		return fmt.Errorf("%w: missing storeName", domain.ErrMalformedParseResponse)
	}

	normalized, err := normalizeDate(parsed.TransactionDate)
	if err != nil {
		return err
	}
	parsed.TransactionDate = normalized

	if parsed.TotalAmount < 0 {
		return fmt.Errorf("%w: negative totalAmount", domain.ErrMalformedParseResponse)
	}

	if len(parsed.Items) == 0 {
		return fmt.Errorf("%w: empty items", domain.ErrMalformedParseResponse)
	}

	for i, item := range parsed.Items {
		if strings.TrimSpace(item.Name) == "" {
			return fmt.Errorf("%w: item %d missing name", domain.ErrMalformedParseResponse, i)
		}
		if item.Quantity < 1 {
			return fmt.Errorf("%w: item %d has non-positive quantity", domain.ErrMalformedParseResponse, i)
		}
		if item.Price < 0 {
			return fmt.Errorf("%w: item %d has negative price", domain.ErrMalformedParseResponse, i)
		}
		if !domain.IsValidCategory(item.Category) {
			return fmt.Errorf("%w: item %d has unknown category %q", domain.ErrMalformedParseResponse, i, item.Category)
		}
	}

	return nil
}

// normalizeDate coerces the model-reported date into ISO form, trying a few
// common layouts before giving up.
func normalizeDate(date string) (string, error) {
	date = strings.TrimSpace(date)
	if date == "" {
		return "", fmt.Errorf("%w: missing transactionDate", domain.ErrMalformedParseResponse)
	}

	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, date); err == nil {
			return d.Format("2006-01-02"), nil
		}
	}
	return "", fmt.Errorf("%w: unparseable transactionDate %q", domain.ErrMalformedParseResponse, date)
}
