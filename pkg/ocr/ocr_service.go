package ocr

import (
	"Receiptly-Backend/domain"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

type (
	// OCRService extracts text from an already uploaded receipt image. A
	// single failed call aborts the whole ingestion attempt; there is no
	// retry or backoff.
	OCRService interface {
		ExtractText(ctx context.Context, imageURL string) (string, error)
	}

	ocrService struct {
		endpoint string
		apiKey   string
		client   *http.Client
	}
)

func NewOCRService(endpoint string, apiKey string) OCRService {
	return &ocrService{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *ocrService) ExtractText(ctx context.Context, imageURL string) (string, error) {
	requestBody := map[string]interface{}{
		"requests": []map[string]interface{}{
			{
				"image": map[string]interface{}{
					"source": map[string]interface{}{
						"imageUri": imageURL,
					},
				},
				"features": []map[string]interface{}{
					{"type": "TEXT_DETECTION"},
				},
			},
		},
	}

	requestJSON, err := json.Marshal(requestBody)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrTextDetectionFailed, err)
	}

	url := s.endpoint
	if s.apiKey != "" {
		url = fmt.Sprintf("%s?key=%s", s.endpoint, s.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(requestJSON))
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrTextDetectionFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrTextDetectionFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: %s - %s", domain.ErrTextDetectionFailed, resp.Status, string(bodyBytes))
	}

	var visionResp struct {
		Responses []struct {
			FullTextAnnotation *struct {
				Text string `json:"text"`
			} `json:"fullTextAnnotation"`
		} `json:"responses"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&visionResp); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrTextDetectionFailed, err)
	}

	// No annotation means the image simply had no detectable text.
	if len(visionResp.Responses) == 0 || visionResp.Responses[0].FullTextAnnotation == nil {
		return "", nil
	}

	return visionResp.Responses[0].FullTextAnnotation.Text, nil
}
