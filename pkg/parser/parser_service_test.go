package parser

import (
	"Receiptly-Backend/domain"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const walmartJSON = `{"storeName":"Walmart","transactionDate":"2024-03-15","totalAmount":12.50,"items":[{"name":"Item","price":12.50,"quantity":1,"category":"Groceries"}]}`

func geminiBody(text string) string {
	b, _ := json.Marshal(map[string]any{
		"candidates": []map[string]any{
			{"content": map[string]any{"parts": []map[string]any{{"text": text}}}},
		},
	})
	return string(b)
}

func TestParseReceiptText_ValidResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		fmt.Fprint(w, geminiBody(walmartJSON))
	}))
	defer server.Close()

	p := NewReceiptParser(server.URL, "")
	parsed, err := p.ParseReceiptText(context.Background(), "Walmart $12.50")

	require.NoError(t, err)
	assert.Equal(t, "Walmart", parsed.StoreName)
	assert.Equal(t, "2024-03-15", parsed.TransactionDate)
	assert.Equal(t, 12.50, parsed.TotalAmount)
	require.Len(t, parsed.Items, 1)
	assert.Equal(t, "Groceries", parsed.Items[0].Category)
}

func TestParseReceiptText_MarkdownFencedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, geminiBody("```json\n"+walmartJSON+"\n```"))
	}))
	defer server.Close()

	p := NewReceiptParser(server.URL, "")
	parsed, err := p.ParseReceiptText(context.Background(), "Walmart $12.50")

	require.NoError(t, err)
	assert.Equal(t, "Walmart", parsed.StoreName)
}

func TestParseReceiptText_Non2xxResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	p := NewReceiptParser(server.URL, "")
	_, err := p.ParseReceiptText(context.Background(), "text")

	require.ErrorIs(t, err, domain.ErrMalformedParseResponse)
}

func TestParseReceiptText_EmptyCandidates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"candidates":[]}`)
	}))
	defer server.Close()

	p := NewReceiptParser(server.URL, "")
	_, err := p.ParseReceiptText(context.Background(), "text")

	require.ErrorIs(t, err, domain.ErrMalformedParseResponse)
}

func TestParseReceiptJSON_Validation(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"missing store name", `{"storeName":"","transactionDate":"2024-03-15","totalAmount":1,"items":[{"name":"A","price":1,"quantity":1,"category":"Groceries"}]}`},
		{"missing date", `{"storeName":"Walmart","transactionDate":"","totalAmount":1,"items":[{"name":"A","price":1,"quantity":1,"category":"Groceries"}]}`},
		{"unparseable date", `{"storeName":"Walmart","transactionDate":"last tuesday","totalAmount":1,"items":[{"name":"A","price":1,"quantity":1,"category":"Groceries"}]}`},
		{"negative total", `{"storeName":"Walmart","transactionDate":"2024-03-15","totalAmount":-1,"items":[{"name":"A","price":1,"quantity":1,"category":"Groceries"}]}`},
		{"no items", `{"storeName":"Walmart","transactionDate":"2024-03-15","totalAmount":1,"items":[]}`},
		{"item without name", `{"storeName":"Walmart","transactionDate":"2024-03-15","totalAmount":1,"items":[{"name":"","price":1,"quantity":1,"category":"Groceries"}]}`},
		{"zero quantity", `{"storeName":"Walmart","transactionDate":"2024-03-15","totalAmount":1,"items":[{"name":"A","price":1,"quantity":0,"category":"Groceries"}]}`},
		{"negative price", `{"storeName":"Walmart","transactionDate":"2024-03-15","totalAmount":1,"items":[{"name":"A","price":-1,"quantity":1,"category":"Groceries"}]}`},
		{"unknown category", `{"storeName":"Walmart","transactionDate":"2024-03-15","totalAmount":1,"items":[{"name":"A","price":1,"quantity":1,"category":"Snacks"}]}`},
		{"not json", "the receipt looks blurry"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseReceiptJSON(tt.json)
			require.ErrorIs(t, err, domain.ErrMalformedParseResponse)
		})
	}
}

func TestParseReceiptJSON_SurroundingProse(t *testing.T) {
	parsed, err := parseReceiptJSON("Here is the parsed receipt:\n" + walmartJSON + "\nLet me know if you need anything else.")

	require.NoError(t, err)
	assert.Equal(t, "Walmart", parsed.StoreName)
}

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2024-03-15", "2024-03-15"},
		{"2024/03/15", "2024-03-15"},
		{"03/15/2024", "2024-03-15"},
		{"15-03-2024", "2024-03-15"},
	}

	for _, tt := range tests {
		got, err := normalizeDate(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	_, err := normalizeDate("March 15th")
	require.ErrorIs(t, err, domain.ErrMalformedParseResponse)
}
