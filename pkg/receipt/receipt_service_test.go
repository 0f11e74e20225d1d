package receipt

import (
	"Receiptly-Backend/domain"
	"Receiptly-Backend/entities"
	"context"
	"errors"
	"mime/multipart"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type mockReceiptRepository struct {
	receipts     map[string]*entities.Receipt
	userReceipts []*entities.Receipt

	created      []*entities.Receipt
	updated      []*entities.Receipt
	replaced     []*entities.Receipt
	deletedItems [][2]string

	createErr error
}

func newMockReceiptRepository() *mockReceiptRepository {
	return &mockReceiptRepository{receipts: make(map[string]*entities.Receipt)}
}

func (m *mockReceiptRepository) CreateReceipt(_ context.Context, receipt *entities.Receipt) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.created = append(m.created, receipt)
	m.receipts[receipt.ID.String()] = receipt
	return nil
}

func (m *mockReceiptRepository) GetReceiptByID(_ context.Context, id string) (*entities.Receipt, error) {
	receipt, ok := m.receipts[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return receipt, nil
}

func (m *mockReceiptRepository) UpdateReceipt(_ context.Context, receipt *entities.Receipt) error {
	m.updated = append(m.updated, receipt)
	return nil
}

func (m *mockReceiptRepository) ReplaceReceiptItems(_ context.Context, receipt *entities.Receipt, items []*entities.ReceiptItem) error {
	receipt.Items = items
	m.replaced = append(m.replaced, receipt)
	return nil
}

func (m *mockReceiptRepository) DeleteReceipt(_ context.Context, id string) error {
	delete(m.receipts, id)
	return nil
}

func (m *mockReceiptRepository) DeleteReceiptItem(_ context.Context, receiptID string, itemID string) error {
	m.deletedItems = append(m.deletedItems, [2]string{receiptID, itemID})
	return nil
}

func (m *mockReceiptRepository) GetUserReceipts(_ context.Context, _ string, _, _ *time.Time) ([]*entities.Receipt, error) {
	return m.userReceipts, nil
}

func (m *mockReceiptRepository) GetDashboardStats(_ context.Context, _ string) (domain.DashboardStatsResponse, error) {
	return domain.DashboardStatsResponse{}, nil
}

func (m *mockReceiptRepository) GetMonthlySpending(_ context.Context, _ string, _ int) ([]domain.MonthlySpend, error) {
	return nil, nil
}

func (m *mockReceiptRepository) GetCategoryBreakdown(_ context.Context, _ string) ([]domain.CategorySpend, error) {
	return nil, nil
}

func (m *mockReceiptRepository) GetTopMerchants(_ context.Context, _ string, _ int) ([]domain.MerchantSpend, error) {
	return nil, nil
}

type mockStorage struct {
	uploads   []string
	uploadErr error
}

func (m *mockStorage) UploadFile(fileName string, _ *multipart.FileHeader, folder string, _ ...string) (string, error) {
	if m.uploadErr != nil {
		return "", m.uploadErr
	}
	key := folder + "/" + fileName
	m.uploads = append(m.uploads, key)
	return key, nil
}

func (m *mockStorage) UpdateFile(objectKey string, _ *multipart.FileHeader, _ ...string) (string, error) {
	return objectKey, nil
}

func (m *mockStorage) DeleteFile(_ string) error { return nil }

func (m *mockStorage) GetPublicLinkKey(objectKey string) string {
	return "https://bucket.s3.us-east-1.amazonaws.com/" + objectKey
}

func (m *mockStorage) GetObjectKeyFromLink(link string) string { return link }

type mockOCR struct {
	text  string
	err   error
	calls int

	entered chan struct{}
	release chan struct{}
}

func (m *mockOCR) ExtractText(_ context.Context, _ string) (string, error) {
	m.calls++
	if m.entered != nil {
		m.entered <- struct{}{}
		<-m.release
	}
	return m.text, m.err
}

type mockParser struct {
	parsed domain.ParsedReceipt
	err    error
	calls  int
}

func (m *mockParser) ParseReceiptText(_ context.Context, _ string) (domain.ParsedReceipt, error) {
	m.calls++
	return m.parsed, m.err
}

func walmartParsed() domain.ParsedReceipt {
	return domain.ParsedReceipt{
		StoreName:       "Walmart",
		TransactionDate: "2024-03-15",
		TotalAmount:     12.50,
		Items: []domain.ParsedItem{
			{Name: "Item", Price: 12.50, Quantity: 1, Category: "Groceries"},
		},
	}
}

func imageFile(name string, size int64) *multipart.FileHeader {
	return &multipart.FileHeader{Filename: name, Size: size}
}

func TestProcessReceipt_Success(t *testing.T) {
	repo := newMockReceiptRepository()
	ocrMock := &mockOCR{text: "Walmart $12.50"}
	parserMock := &mockParser{parsed: walmartParsed()}
	svc := NewReceiptService(repo, &mockStorage{}, ocrMock, parserMock)

	userID := uuid.New().String()
	res, err := svc.ProcessReceipt(context.Background(), domain.UploadReceiptRequest{
		ReceiptImage: imageFile("receipt.jpg", 1024),
	}, userID)

	require.NoError(t, err)
	require.Len(t, repo.created, 1)

	stored := repo.created[0]
	assert.Equal(t, "completed", stored.Status)
	assert.Equal(t, "Walmart", stored.StoreName)
	assert.True(t, decimal.RequireFromString("12.50").Equal(stored.TotalAmount))
	assert.Equal(t, "Walmart $12.50", stored.RawText)
	assert.Equal(t, userID, stored.UserID.String())
	require.Len(t, stored.Items, 1)
	assert.True(t, decimal.RequireFromString("12.50").Equal(stored.Items[0].Subtotal))

	assert.Equal(t, "completed", res.Status)
	assert.Equal(t, "2024-03-15", res.TransactionDate)
	assert.NotEmpty(t, res.ImageURL)
}

func TestProcessReceipt_OCRFailureCreatesNothing(t *testing.T) {
	repo := newMockReceiptRepository()
	ocrMock := &mockOCR{err: domain.ErrTextDetectionFailed}
	parserMock := &mockParser{}
	svc := NewReceiptService(repo, &mockStorage{}, ocrMock, parserMock)

	_, err := svc.ProcessReceipt(context.Background(), domain.UploadReceiptRequest{
		ReceiptImage: imageFile("receipt.jpg", 1024),
	}, uuid.New().String())

	require.ErrorIs(t, err, domain.ErrTextDetectionFailed)
	assert.Empty(t, repo.created)
	assert.Zero(t, parserMock.calls)
}

func TestProcessReceipt_ParseFailureCreatesNothing(t *testing.T) {
	repo := newMockReceiptRepository()
	svc := NewReceiptService(repo, &mockStorage{}, &mockOCR{text: "garbage"}, &mockParser{err: domain.ErrMalformedParseResponse})

	_, err := svc.ProcessReceipt(context.Background(), domain.UploadReceiptRequest{
		ReceiptImage: imageFile("receipt.jpg", 1024),
	}, uuid.New().String())

	require.ErrorIs(t, err, domain.ErrMalformedParseResponse)
	assert.Empty(t, repo.created)
}

func TestProcessReceipt_OversizeRejectedBeforeAnyCall(t *testing.T) {
	repo := newMockReceiptRepository()
	store := &mockStorage{}
	ocrMock := &mockOCR{}
	svc := NewReceiptService(repo, store, ocrMock, &mockParser{})

	_, err := svc.ProcessReceipt(context.Background(), domain.UploadReceiptRequest{
		ReceiptImage: imageFile("big.jpg", domain.MaxReceiptImageSize+1),
	}, uuid.New().String())

	require.ErrorIs(t, err, domain.ErrFileTooLarge)
	assert.Empty(t, store.uploads)
	assert.Zero(t, ocrMock.calls)
	assert.Empty(t, repo.created)
}

func TestProcessReceipt_RejectsNonImageExtension(t *testing.T) {
	svc := NewReceiptService(newMockReceiptRepository(), &mockStorage{}, &mockOCR{}, &mockParser{})

	_, err := svc.ProcessReceipt(context.Background(), domain.UploadReceiptRequest{
		ReceiptImage: imageFile("receipt.gif", 1024),
	}, uuid.New().String())

	require.ErrorIs(t, err, domain.ErrInvalidImageFormat)
}

func TestProcessReceipt_InFlightGuard(t *testing.T) {
	repo := newMockReceiptRepository()
	ocrMock := &mockOCR{
		text:    "Walmart $12.50",
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	svc := NewReceiptService(repo, &mockStorage{}, ocrMock, &mockParser{parsed: walmartParsed()})

	userID := uuid.New().String()
	firstDone := make(chan error, 1)
	go func() {
		_, err := svc.ProcessReceipt(context.Background(), domain.UploadReceiptRequest{
			ReceiptImage: imageFile("first.jpg", 1024),
		}, userID)
		firstDone <- err
	}()

	// Wait until the first attempt is inside the pipeline.
	<-ocrMock.entered

	_, err := svc.ProcessReceipt(context.Background(), domain.UploadReceiptRequest{
		ReceiptImage: imageFile("second.jpg", 1024),
	}, userID)
	require.ErrorIs(t, err, domain.ErrIngestionInProgress)

	close(ocrMock.release)
	require.NoError(t, <-firstDone)
	assert.Len(t, repo.created, 1)
}

func seedReceipt(repo *mockReceiptRepository, userID uuid.UUID, store string, items ...*entities.ReceiptItem) *entities.Receipt {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal)
	}
	receipt := &entities.Receipt{
		ID:              uuid.New(),
		UserID:          userID,
		StoreName:       store,
		TransactionDate: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		TotalAmount:     total,
		Status:          "completed",
		Items:           items,
	}
	for _, item := range items {
		item.ReceiptID = receipt.ID
	}
	repo.receipts[receipt.ID.String()] = receipt
	return receipt
}

func item(name, category, price string, quantity int) *entities.ReceiptItem {
	p := decimal.RequireFromString(price)
	return &entities.ReceiptItem{
		ID:       uuid.New(),
		Name:     name,
		Price:    p,
		Quantity: quantity,
		Category: category,
		Subtotal: p.Mul(decimal.NewFromInt(int64(quantity))),
	}
}

func TestUpdateReceipt_RecomputesSubtotalsAndTotal(t *testing.T) {
	repo := newMockReceiptRepository()
	userID := uuid.New()
	receipt := seedReceipt(repo, userID, "Walmart", item("Milk", "Groceries", "3.00", 1))
	svc := NewReceiptService(repo, &mockStorage{}, &mockOCR{}, &mockParser{})

	res, err := svc.UpdateReceipt(context.Background(), receipt.ID.String(), domain.UpdateReceiptRequest{
		Items: []domain.ReceiptItemRequest{
			{Name: "Milk", Price: decimal.RequireFromString("2.50"), Quantity: 3, Category: "Groceries"},
			{Name: "Bread", Price: decimal.RequireFromString("1.00"), Quantity: 2, Category: "Groceries"},
		},
	}, userID.String())

	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	assert.True(t, decimal.RequireFromString("7.50").Equal(res.Items[0].Subtotal))
	assert.True(t, decimal.RequireFromString("2.00").Equal(res.Items[1].Subtotal))
	assert.True(t, decimal.RequireFromString("9.50").Equal(res.TotalAmount))
	require.Len(t, repo.replaced, 1)
	assert.True(t, decimal.RequireFromString("9.50").Equal(repo.replaced[0].TotalAmount))
}

func TestUpdateReceipt_RejectsUnknownCategory(t *testing.T) {
	repo := newMockReceiptRepository()
	userID := uuid.New()
	receipt := seedReceipt(repo, userID, "Walmart", item("Milk", "Groceries", "3.00", 1))
	svc := NewReceiptService(repo, &mockStorage{}, &mockOCR{}, &mockParser{})

	_, err := svc.UpdateReceipt(context.Background(), receipt.ID.String(), domain.UpdateReceiptRequest{
		Items: []domain.ReceiptItemRequest{
			{Name: "Milk", Price: decimal.RequireFromString("2.50"), Quantity: 1, Category: "Snacks"},
		},
	}, userID.String())

	require.ErrorIs(t, err, domain.ErrInvalidCategory)
	assert.Empty(t, repo.replaced)
}

func TestUpdateReceipt_UnauthorizedForOtherUser(t *testing.T) {
	repo := newMockReceiptRepository()
	receipt := seedReceipt(repo, uuid.New(), "Walmart", item("Milk", "Groceries", "3.00", 1))
	svc := NewReceiptService(repo, &mockStorage{}, &mockOCR{}, &mockParser{})

	_, err := svc.UpdateReceipt(context.Background(), receipt.ID.String(), domain.UpdateReceiptRequest{
		StoreName: "Target",
	}, uuid.New().String())

	require.ErrorIs(t, err, domain.ErrUnauthorizedAccess)
}

func TestDeleteReceiptItem_RecomputesTotal(t *testing.T) {
	repo := newMockReceiptRepository()
	userID := uuid.New()
	milk := item("Milk", "Groceries", "5.00", 1)
	soap := item("Soap", "Household", "7.25", 1)
	receipt := seedReceipt(repo, userID, "Walmart", milk, soap)
	svc := NewReceiptService(repo, &mockStorage{}, &mockOCR{}, &mockParser{})

	err := svc.DeleteReceiptItem(context.Background(), receipt.ID.String(), milk.ID.String(), userID.String())

	require.NoError(t, err)
	require.Len(t, repo.deletedItems, 1)
	assert.Equal(t, [2]string{receipt.ID.String(), milk.ID.String()}, repo.deletedItems[0])
	require.Len(t, repo.updated, 1)
	assert.True(t, decimal.RequireFromString("7.25").Equal(repo.updated[0].TotalAmount))
}

func TestDeleteReceiptItem_UnknownItem(t *testing.T) {
	repo := newMockReceiptRepository()
	userID := uuid.New()
	receipt := seedReceipt(repo, userID, "Walmart", item("Milk", "Groceries", "5.00", 1))
	svc := NewReceiptService(repo, &mockStorage{}, &mockOCR{}, &mockParser{})

	err := svc.DeleteReceiptItem(context.Background(), receipt.ID.String(), uuid.New().String(), userID.String())

	require.ErrorIs(t, err, domain.ErrReceiptItemNotFound)
	assert.Empty(t, repo.deletedItems)
}

func TestGetReceipts_SearchTermTakesPrecedenceOverCategory(t *testing.T) {
	repo := newMockReceiptRepository()
	userID := uuid.New()
	repo.userReceipts = []*entities.Receipt{
		seedReceipt(repo, userID, "Walmart", item("TV", "Electronics", "199.99", 1)),
		seedReceipt(repo, userID, "Target", item("Walmart Brand Soda", "Food & Dining", "1.50", 2)),
		seedReceipt(repo, userID, "Costco", item("Apples", "Groceries", "4.00", 1)),
	}
	svc := NewReceiptService(repo, &mockStorage{}, &mockOCR{}, &mockParser{})

	res, err := svc.GetReceipts(context.Background(), userID.String(), domain.ReceiptFilter{
		SearchTerm: "walmart",
		Category:   "Groceries",
	})

	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "Walmart", res[0].StoreName)
	assert.Equal(t, "Target", res[1].StoreName)
}

func TestGetReceipts_CategoryFilter(t *testing.T) {
	repo := newMockReceiptRepository()
	userID := uuid.New()
	repo.userReceipts = []*entities.Receipt{
		seedReceipt(repo, userID, "Walmart", item("TV", "Electronics", "199.99", 1)),
		seedReceipt(repo, userID, "Costco", item("Apples", "Groceries", "4.00", 1)),
	}
	svc := NewReceiptService(repo, &mockStorage{}, &mockOCR{}, &mockParser{})

	res, err := svc.GetReceipts(context.Background(), userID.String(), domain.ReceiptFilter{
		Category: "Groceries",
	})

	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "Costco", res[0].StoreName)
}

func TestGetReceipts_InvalidDateRange(t *testing.T) {
	svc := NewReceiptService(newMockReceiptRepository(), &mockStorage{}, &mockOCR{}, &mockParser{})

	_, err := svc.GetReceipts(context.Background(), uuid.New().String(), domain.ReceiptFilter{
		StartDate: "2024-03-15",
		EndDate:   "2024-03-01",
	})

	require.ErrorIs(t, err, domain.ErrInvalidDateRange)
}

func TestProcessReceipt_RepositoryFailurePropagates(t *testing.T) {
	repo := newMockReceiptRepository()
	repo.createErr = errors.New("connection refused")
	svc := NewReceiptService(repo, &mockStorage{}, &mockOCR{text: "Walmart $12.50"}, &mockParser{parsed: walmartParsed()})

	_, err := svc.ProcessReceipt(context.Background(), domain.UploadReceiptRequest{
		ReceiptImage: imageFile("receipt.jpg", 1024),
	}, uuid.New().String())

	require.Error(t, err)
	assert.Empty(t, repo.created)
}
