package receipt

import (
	"Receiptly-Backend/domain"
	"Receiptly-Backend/entities"
	"Receiptly-Backend/internal/utils/storage"
	"Receiptly-Backend/pkg/ocr"
	"Receiptly-Backend/pkg/parser"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type (
	ReceiptService interface {
		ProcessReceipt(ctx context.Context, req domain.UploadReceiptRequest, userID string) (domain.ReceiptResponse, error)
		GetReceipts(ctx context.Context, userID string, filter domain.ReceiptFilter) ([]domain.ReceiptResponse, error)
		GetReceiptByID(ctx context.Context, id string, userID string) (domain.ReceiptResponse, error)
		UpdateReceipt(ctx context.Context, id string, req domain.UpdateReceiptRequest, userID string) (domain.ReceiptResponse, error)
		DeleteReceipt(ctx context.Context, id string, userID string) error
		DeleteReceiptItem(ctx context.Context, receiptID string, itemID string, userID string) error
		GetDashboardStats(ctx context.Context, userID string) (domain.DashboardStatsResponse, error)
		GetSpendingAnalytics(ctx context.Context, userID string) (domain.SpendingAnalyticsResponse, error)
	}

	receiptService struct {
		receiptRepository ReceiptRepository
		s3                storage.AwsS3
		ocrService        ocr.OCRService
		receiptParser     parser.ReceiptParser

		mu       sync.Mutex
		inflight map[string]struct{}
	}
)

func NewReceiptService(receiptRepository ReceiptRepository, s3 storage.AwsS3, ocrService ocr.OCRService, receiptParser parser.ReceiptParser) ReceiptService {
	return &receiptService{
		receiptRepository: receiptRepository,
		s3:                s3,
		ocrService:        ocrService,
		receiptParser:     receiptParser,
		inflight:          make(map[string]struct{}),
	}
}

// ProcessReceipt runs the ingestion pipeline: upload image, extract text,
// parse text, persist the structured receipt. The steps are strictly
// sequential and any failure aborts the rest; no partial record is persisted.
func (s *receiptService) ProcessReceipt(ctx context.Context, req domain.UploadReceiptRequest, userID string) (domain.ReceiptResponse, error) {
	userUUID, err := uuid.Parse(userID)
	if err != nil {
		return domain.ReceiptResponse{}, domain.ErrParseUUID
	}

	if err := validateReceiptImage(req.ReceiptImage); err != nil {
		return domain.ReceiptResponse{}, err
	}

	// One ingestion at a time per user.
	if !s.beginIngestion(userID) {
		return domain.ReceiptResponse{}, domain.ErrIngestionInProgress
	}
	defer s.endIngestion(userID)

	fileName := fmt.Sprintf("%d_%s", time.Now().UnixMilli(), filepath.Base(req.ReceiptImage.Filename))
	objectKey, err := s.s3.UploadFile(fileName, req.ReceiptImage, "receipts/"+userID, storage.AllowImage...)
	if err != nil {
		return domain.ReceiptResponse{}, err
	}
	imageURL := s.s3.GetPublicLinkKey(objectKey)

	rawText, err := s.ocrService.ExtractText(ctx, imageURL)
	if err != nil {
		return domain.ReceiptResponse{}, err
	}

	parsed, err := s.receiptParser.ParseReceiptText(ctx, rawText)
	if err != nil {
		return domain.ReceiptResponse{}, err
	}

	transactionDate, err := time.Parse("2006-01-02", parsed.TransactionDate)
	if err != nil {
		return domain.ReceiptResponse{}, fmt.Errorf("%w: %v", domain.ErrMalformedParseResponse, err)
	}

	receiptID := uuid.New()
	items := make([]*entities.ReceiptItem, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		price := decimal.NewFromFloat(item.Price)
		items = append(items, &entities.ReceiptItem{
			ID:        uuid.New(),
			ReceiptID: receiptID,
			Name:      item.Name,
			Price:     price,
			Quantity:  item.Quantity,
			Category:  item.Category,
			Subtotal:  price.Mul(decimal.NewFromInt(int64(item.Quantity))),
		})
	}

	receipt := &entities.Receipt{
		ID:              receiptID,
		UserID:          userUUID,
		StoreName:       parsed.StoreName,
		TransactionDate: transactionDate,
		TotalAmount:     decimal.NewFromFloat(parsed.TotalAmount),
		ImageURL:        imageURL,
		RawText:         rawText,
		Status:          "completed",
		Items:           items,
	}

	if err := s.receiptRepository.CreateReceipt(ctx, receipt); err != nil {
		return domain.ReceiptResponse{}, err
	}

	return toReceiptResponse(receipt), nil
}

func (s *receiptService) GetReceipts(ctx context.Context, userID string, filter domain.ReceiptFilter) ([]domain.ReceiptResponse, error) {
	startDate, endDate, err := parseDateRange(filter.StartDate, filter.EndDate)
	if err != nil {
		return nil, err
	}

	receipts, err := s.receiptRepository.GetUserReceipts(ctx, userID, startDate, endDate)
	if err != nil {
		return nil, err
	}

	// Category and search-term filters are mutually exclusive; the search
	// term wins when both are supplied.
	if filter.SearchTerm != "" {
		receipts = filterBySearchTerm(receipts, filter.SearchTerm)
	} else if filter.Category != "" {
		receipts = filterByCategory(receipts, filter.Category)
	}

	response := make([]domain.ReceiptResponse, 0, len(receipts))
	for _, receipt := range receipts {
		response = append(response, toReceiptResponse(receipt))
	}
	return response, nil
}

func (s *receiptService) GetReceiptByID(ctx context.Context, id string, userID string) (domain.ReceiptResponse, error) {
	receipt, err := s.getOwnedReceipt(ctx, id, userID)
	if err != nil {
		return domain.ReceiptResponse{}, err
	}
	return toReceiptResponse(receipt), nil
}

// UpdateReceipt replaces header fields and the item list. Subtotals and the
// receipt total are always recomputed from price and quantity; client
// supplied totals are never trusted.
func (s *receiptService) UpdateReceipt(ctx context.Context, id string, req domain.UpdateReceiptRequest, userID string) (domain.ReceiptResponse, error) {
	receipt, err := s.getOwnedReceipt(ctx, id, userID)
	if err != nil {
		return domain.ReceiptResponse{}, err
	}

	if req.StoreName != "" {
		receipt.StoreName = req.StoreName
	}

	if req.TransactionDate != "" {
		transactionDate, err := time.Parse("2006-01-02", req.TransactionDate)
		if err != nil {
			return domain.ReceiptResponse{}, domain.ErrInvalidTransactionDate
		}
		receipt.TransactionDate = transactionDate
	}

	if req.Items == nil {
		if err := s.receiptRepository.UpdateReceipt(ctx, receipt); err != nil {
			return domain.ReceiptResponse{}, err
		}
		return toReceiptResponse(receipt), nil
	}

	items := make([]*entities.ReceiptItem, 0, len(req.Items))
	total := decimal.Zero
	for _, item := range req.Items {
		if item.Quantity < 1 {
			return domain.ReceiptResponse{}, domain.ErrInvalidQuantity
		}
		if !domain.IsValidCategory(item.Category) {
			return domain.ReceiptResponse{}, domain.ErrInvalidCategory
		}

		itemID := uuid.New()
		if item.ID != "" {
			parsedID, err := uuid.Parse(item.ID)
			if err != nil {
				return domain.ReceiptResponse{}, domain.ErrParseUUID
			}
			itemID = parsedID
		}

		subtotal := item.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
		total = total.Add(subtotal)
		items = append(items, &entities.ReceiptItem{
			ID:        itemID,
			ReceiptID: receipt.ID,
			Name:      item.Name,
			Price:     item.Price,
			Quantity:  item.Quantity,
			Category:  item.Category,
			Subtotal:  subtotal,
		})
	}

	receipt.TotalAmount = total
	if err := s.receiptRepository.ReplaceReceiptItems(ctx, receipt, items); err != nil {
		return domain.ReceiptResponse{}, err
	}

	return toReceiptResponse(receipt), nil
}

func (s *receiptService) DeleteReceipt(ctx context.Context, id string, userID string) error {
	receipt, err := s.getOwnedReceipt(ctx, id, userID)
	if err != nil {
		return err
	}

	if receipt.ImageURL != "" {
		objectKey := s.s3.GetObjectKeyFromLink(receipt.ImageURL)
		if objectKey != "" {
			_ = s.s3.DeleteFile(objectKey)
		}
	}

	return s.receiptRepository.DeleteReceipt(ctx, id)
}

// DeleteReceiptItem removes exactly one item and recomputes the receipt total
// from the remaining items' subtotals.
func (s *receiptService) DeleteReceiptItem(ctx context.Context, receiptID string, itemID string, userID string) error {
	receipt, err := s.getOwnedReceipt(ctx, receiptID, userID)
	if err != nil {
		return err
	}

	found := false
	total := decimal.Zero
	for _, item := range receipt.Items {
		if item.ID.String() == itemID {
			found = true
			continue
		}
		total = total.Add(item.Subtotal)
	}
	if !found {
		return domain.ErrReceiptItemNotFound
	}

	if err := s.receiptRepository.DeleteReceiptItem(ctx, receiptID, itemID); err != nil {
		return err
	}

	receipt.TotalAmount = total
	return s.receiptRepository.UpdateReceipt(ctx, receipt)
}

func (s *receiptService) GetDashboardStats(ctx context.Context, userID string) (domain.DashboardStatsResponse, error) {
	return s.receiptRepository.GetDashboardStats(ctx, userID)
}

func (s *receiptService) GetSpendingAnalytics(ctx context.Context, userID string) (domain.SpendingAnalyticsResponse, error) {
	monthly, err := s.receiptRepository.GetMonthlySpending(ctx, userID, 6)
	if err != nil {
		return domain.SpendingAnalyticsResponse{}, err
	}

	byCategory, err := s.receiptRepository.GetCategoryBreakdown(ctx, userID)
	if err != nil {
		return domain.SpendingAnalyticsResponse{}, err
	}

	topMerchants, err := s.receiptRepository.GetTopMerchants(ctx, userID, 5)
	if err != nil {
		return domain.SpendingAnalyticsResponse{}, err
	}

	return domain.SpendingAnalyticsResponse{
		Monthly:      monthly,
		ByCategory:   byCategory,
		TopMerchants: topMerchants,
	}, nil
}

func (s *receiptService) getOwnedReceipt(ctx context.Context, id string, userID string) (*entities.Receipt, error) {
	receipt, err := s.receiptRepository.GetReceiptByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrReceiptNotFound
		}
		return nil, err
	}

	if receipt.UserID.String() != userID {
		return nil, domain.ErrUnauthorizedAccess
	}
	return receipt, nil
}

func (s *receiptService) beginIngestion(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inflight[userID]; ok {
		return false
	}
	s.inflight[userID] = struct{}{}
	return true
}

func (s *receiptService) endIngestion(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, userID)
}

// validateReceiptImage enforces the upload constraints before any network
// call is issued.
func validateReceiptImage(file *multipart.FileHeader) error {
	if file == nil {
		return domain.ErrInvalidImageFormat
	}
	if file.Size > domain.MaxReceiptImageSize {
		return domain.ErrFileTooLarge
	}

	switch strings.ToLower(filepath.Ext(file.Filename)) {
	case ".jpeg", ".jpg", ".png":
		return nil
	default:
		return domain.ErrInvalidImageFormat
	}
}

func parseDateRange(start, end string) (*time.Time, *time.Time, error) {
	if start == "" || end == "" {
		return nil, nil, nil
	}

	startDate, err := time.Parse("2006-01-02", start)
	if err != nil {
		return nil, nil, domain.ErrInvalidDateRange
	}
	endDate, err := time.Parse("2006-01-02", end)
	if err != nil {
		return nil, nil, domain.ErrInvalidDateRange
	}
	if endDate.Before(startDate) {
		return nil, nil, domain.ErrInvalidDateRange
	}
	return &startDate, &endDate, nil
}

// filterBySearchTerm keeps receipts whose store name or any item name
// contains the term, case-insensitively.
func filterBySearchTerm(receipts []*entities.Receipt, term string) []*entities.Receipt {
	term = strings.ToLower(term)
	filtered := make([]*entities.Receipt, 0, len(receipts))
	for _, receipt := range receipts {
		if strings.Contains(strings.ToLower(receipt.StoreName), term) {
			filtered = append(filtered, receipt)
			continue
		}
		for _, item := range receipt.Items {
			if strings.Contains(strings.ToLower(item.Name), term) {
				filtered = append(filtered, receipt)
				break
			}
		}
	}
	return filtered
}

// filterByCategory keeps receipts where any item carries the category.
func filterByCategory(receipts []*entities.Receipt, category string) []*entities.Receipt {
	filtered := make([]*entities.Receipt, 0, len(receipts))
	for _, receipt := range receipts {
		for _, item := range receipt.Items {
			if item.Category == category {
				filtered = append(filtered, receipt)
				break
			}
		}
	}
	return filtered
}

func toReceiptResponse(receipt *entities.Receipt) domain.ReceiptResponse {
	items := make([]domain.ReceiptItemResponse, 0, len(receipt.Items))
	for _, item := range receipt.Items {
		items = append(items, domain.ReceiptItemResponse{
			ID:       item.ID.String(),
			Name:     item.Name,
			Price:    item.Price,
			Quantity: item.Quantity,
			Category: item.Category,
			Subtotal: item.Subtotal,
		})
	}

	return domain.ReceiptResponse{
		ID:              receipt.ID.String(),
		UserID:          receipt.UserID.String(),
		StoreName:       receipt.StoreName,
		TransactionDate: receipt.TransactionDate.Format("2006-01-02"),
		TotalAmount:     receipt.TotalAmount,
		Items:           items,
		ImageURL:        receipt.ImageURL,
		RawText:         receipt.RawText,
		Status:          receipt.Status,
		ErrorMessage:    receipt.ErrorMessage,
		CreatedAt:       receipt.CreatedAt,
		UpdatedAt:       receipt.UpdatedAt,
	}
}
