package domain

import (
	"errors"
	"mime/multipart"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// MaxReceiptImageSize is the upload cap in bytes (5 MiB).
	MaxReceiptImageSize = 5242880
)

// ItemCategories is the closed set of categories a receipt item may carry.
var ItemCategories = []string{
	"Groceries",
	"Electronics",
	"Clothing",
	"Healthcare",
	"Food & Dining",
	"Household",
	"Uncategorized",
}

func IsValidCategory(category string) bool {
	for _, c := range ItemCategories {
		if c == category {
			return true
		}
	}
	return false
}

var (
	MessageSuccessProcessReceipt    = "receipt processed successfully"
	MessageSuccessGetReceipts       = "receipts retrieved successfully"
	MessageSuccessGetReceipt        = "receipt retrieved successfully"
	MessageSuccessUpdateReceipt     = "receipt updated successfully"
	MessageSuccessDeleteReceipt     = "receipt deleted successfully"
	MessageSuccessDeleteReceiptItem = "receipt item deleted successfully"
	MessageSuccessGetDashboardStats = "dashboard statistics retrieved successfully"
	MessageSuccessGetAnalytics      = "spending analytics retrieved successfully"

	MessageFailedProcessReceipt    = "failed to process receipt"
	MessageFailedGetReceipts       = "failed to retrieve receipts"
	MessageFailedGetReceipt        = "failed to retrieve receipt"
	MessageFailedUpdateReceipt     = "failed to update receipt"
	MessageFailedDeleteReceipt     = "failed to delete receipt"
	MessageFailedDeleteReceiptItem = "failed to delete receipt item"
	MessageFailedGetDashboardStats = "failed to retrieve dashboard statistics"
	MessageFailedGetAnalytics      = "failed to retrieve spending analytics"

	ErrReceiptNotFound        = errors.New("receipt not found")
	ErrReceiptItemNotFound    = errors.New("receipt item not found")
	ErrUnauthorizedAccess     = errors.New("unauthorized access to receipt")
	ErrFileTooLarge           = errors.New("receipt image exceeds maximum size")
	ErrInvalidImageFormat     = errors.New("invalid image format")
	ErrUploadRejected         = errors.New("image upload rejected")
	ErrTextDetectionFailed    = errors.New("text detection service failed")
	ErrMalformedParseResponse = errors.New("receipt parse response malformed")
	ErrIngestionInProgress    = errors.New("another receipt is still being processed")
	ErrInvalidCategory        = errors.New("invalid item category")
	ErrInvalidTransactionDate = errors.New("invalid transaction date")
	ErrInvalidQuantity        = errors.New("quantity must be positive")
	ErrInvalidDateRange       = errors.New("invalid date range filter")
)

type (
	UploadReceiptRequest struct {
		ReceiptImage *multipart.FileHeader `json:"receipt_image" form:"receipt_image" validate:"required"`
	}

	// ReceiptFilter narrows GetReceipts. The date range is applied by the
	// repository; category and search term are applied in the service, with
	// the search term taking precedence when both are set.
	ReceiptFilter struct {
		StartDate  string `query:"start_date"`
		EndDate    string `query:"end_date"`
		Category   string `query:"category"`
		SearchTerm string `query:"search"`
	}

	ReceiptItemRequest struct {
		ID       string          `json:"id" validate:"omitempty,uuid"`
		Name     string          `json:"name" validate:"required"`
		Price    decimal.Decimal `json:"price"`
		Quantity int             `json:"quantity" validate:"required,min=1"`
		Category string          `json:"category" validate:"required"`
	}

	UpdateReceiptRequest struct {
		StoreName       string               `json:"store_name" validate:"omitempty"`
		TransactionDate string               `json:"transaction_date" validate:"omitempty"`
		Items           []ReceiptItemRequest `json:"items" validate:"omitempty,dive"`
	}

	ReceiptItemResponse struct {
		ID       string          `json:"id"`
		Name     string          `json:"name"`
		Price    decimal.Decimal `json:"price"`
		Quantity int             `json:"quantity"`
		Category string          `json:"category"`
		Subtotal decimal.Decimal `json:"subtotal"`
	}

	ReceiptResponse struct {
		ID              string                `json:"id"`
		UserID          string                `json:"user_id"`
		StoreName       string                `json:"store_name"`
		TransactionDate string                `json:"transaction_date"`
		TotalAmount     decimal.Decimal       `json:"total_amount"`
		Items           []ReceiptItemResponse `json:"items"`
		ImageURL        string                `json:"image_url"`
		RawText         string                `json:"raw_text,omitempty"`
		Status          string                `json:"status"`
		ErrorMessage    string                `json:"error_message,omitempty"`
		CreatedAt       time.Time             `json:"created_at"`
		UpdatedAt       time.Time             `json:"updated_at"`
	}

	// ParsedReceipt is the structured record decoded from the generative-text
	// service response, before conversion to entities.
	ParsedReceipt struct {
		StoreName       string       `json:"storeName"`
		TransactionDate string       `json:"transactionDate"`
		TotalAmount     float64      `json:"totalAmount"`
		Items           []ParsedItem `json:"items"`
	}

	ParsedItem struct {
		Name     string  `json:"name"`
		Price    float64 `json:"price"`
		Quantity int     `json:"quantity"`
		Category string  `json:"category"`
	}

	DashboardStatsResponse struct {
		TotalSpent        decimal.Decimal `json:"total_spent"`
		ReceiptCount      int64           `json:"receipt_count"`
		AveragePerReceipt decimal.Decimal `json:"average_per_receipt"`
		MonthSpent        decimal.Decimal `json:"month_spent"`
	}

	MonthlySpend struct {
		Month string          `json:"month"`
		Total decimal.Decimal `json:"total"`
	}

	CategorySpend struct {
		Category string          `json:"category"`
		Total    decimal.Decimal `json:"total"`
	}

	MerchantSpend struct {
		StoreName string          `json:"store_name"`
		Total     decimal.Decimal `json:"total"`
	}

	SpendingAnalyticsResponse struct {
		Monthly      []MonthlySpend  `json:"monthly"`
		ByCategory   []CategorySpend `json:"by_category"`
		TopMerchants []MerchantSpend `json:"top_merchants"`
	}
)
