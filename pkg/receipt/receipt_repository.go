package receipt

import (
	"Receiptly-Backend/domain"
	"Receiptly-Backend/entities"
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type (
	ReceiptRepository interface {
		CreateReceipt(ctx context.Context, receipt *entities.Receipt) error
		GetReceiptByID(ctx context.Context, id string) (*entities.Receipt, error)
		UpdateReceipt(ctx context.Context, receipt *entities.Receipt) error
		ReplaceReceiptItems(ctx context.Context, receipt *entities.Receipt, items []*entities.ReceiptItem) error
		DeleteReceipt(ctx context.Context, id string) error
		DeleteReceiptItem(ctx context.Context, receiptID string, itemID string) error
		GetUserReceipts(ctx context.Context, userID string, startDate, endDate *time.Time) ([]*entities.Receipt, error)

		GetDashboardStats(ctx context.Context, userID string) (domain.DashboardStatsResponse, error)
		GetMonthlySpending(ctx context.Context, userID string, months int) ([]domain.MonthlySpend, error)
		GetCategoryBreakdown(ctx context.Context, userID string) ([]domain.CategorySpend, error)
		GetTopMerchants(ctx context.Context, userID string, limit int) ([]domain.MerchantSpend, error)
	}

	receiptRepository struct {
		db *gorm.DB
	}
)

func NewReceiptRepository(db *gorm.DB) ReceiptRepository {
	return &receiptRepository{db: db}
}

func (r *receiptRepository) CreateReceipt(ctx context.Context, receipt *entities.Receipt) error {
	return r.db.WithContext(ctx).Create(receipt).Error
}

func (r *receiptRepository) GetReceiptByID(ctx context.Context, id string) (*entities.Receipt, error) {
	var receipt entities.Receipt
	if err := r.db.WithContext(ctx).Preload("Items").Where("id = ?", id).First(&receipt).Error; err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (r *receiptRepository) UpdateReceipt(ctx context.Context, receipt *entities.Receipt) error {
	return r.db.WithContext(ctx).Omit("Items").Save(receipt).Error
}

func (r *receiptRepository) ReplaceReceiptItems(ctx context.Context, receipt *entities.Receipt, items []*entities.ReceiptItem) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("receipt_id = ?", receipt.ID).Delete(&entities.ReceiptItem{}).Error; err != nil {
			return err
		}
		if len(items) > 0 {
			if err := tx.Create(items).Error; err != nil {
				return err
			}
		}
		receipt.Items = items
		return tx.Omit("Items").Save(receipt).Error
	})
}

func (r *receiptRepository) DeleteReceipt(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("receipt_id = ?", id).Delete(&entities.ReceiptItem{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&entities.Receipt{}).Error
	})
}

func (r *receiptRepository) DeleteReceiptItem(ctx context.Context, receiptID string, itemID string) error {
	return r.db.WithContext(ctx).
		Where("id = ? AND receipt_id = ?", itemID, receiptID).
		Delete(&entities.ReceiptItem{}).Error
}

// GetUserReceipts applies the owner equality and the optional inclusive date
// range server-side, ordered by transaction date descending. Category and
// free-text filters are applied by the service on the returned rows.
func (r *receiptRepository) GetUserReceipts(ctx context.Context, userID string, startDate, endDate *time.Time) ([]*entities.Receipt, error) {
	var receipts []*entities.Receipt

	query := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if startDate != nil && endDate != nil {
		query = query.Where("transaction_date BETWEEN ? AND ?", *startDate, *endDate)
	}

	if err := query.Preload("Items").Order("transaction_date desc").Find(&receipts).Error; err != nil {
		return nil, err
	}

	return receipts, nil
}

func (r *receiptRepository) GetDashboardStats(ctx context.Context, userID string) (domain.DashboardStatsResponse, error) {
	var stats domain.DashboardStatsResponse

	row := r.db.WithContext(ctx).Model(&entities.Receipt{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(total_amount), 0), COUNT(*)").
		Row()
	if err := row.Scan(&stats.TotalSpent, &stats.ReceiptCount); err != nil {
		return domain.DashboardStatsResponse{}, err
	}

	monthStart := time.Now().UTC().Truncate(24 * time.Hour)
	monthStart = time.Date(monthStart.Year(), monthStart.Month(), 1, 0, 0, 0, 0, time.UTC)
	row = r.db.WithContext(ctx).Model(&entities.Receipt{}).
		Where("user_id = ? AND transaction_date >= ?", userID, monthStart).
		Select("COALESCE(SUM(total_amount), 0)").
		Row()
	if err := row.Scan(&stats.MonthSpent); err != nil {
		return domain.DashboardStatsResponse{}, err
	}

	if stats.ReceiptCount > 0 {
		stats.AveragePerReceipt = stats.TotalSpent.DivRound(decimal.NewFromInt(stats.ReceiptCount), 2)
	}

	return stats, nil
}

func (r *receiptRepository) GetMonthlySpending(ctx context.Context, userID string, months int) ([]domain.MonthlySpend, error) {
	since := time.Now().UTC().AddDate(0, -months, 0)

	var results []domain.MonthlySpend
	err := r.db.WithContext(ctx).Model(&entities.Receipt{}).
		Where("user_id = ? AND transaction_date >= ?", userID, since).
		Select("to_char(transaction_date, 'YYYY-MM') as month, COALESCE(SUM(total_amount), 0) as total").
		Group("month").
		Order("month asc").
		Scan(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (r *receiptRepository) GetCategoryBreakdown(ctx context.Context, userID string) ([]domain.CategorySpend, error) {
	var results []domain.CategorySpend
	err := r.db.WithContext(ctx).Table("receipt_items").
		Joins("JOIN receipts ON receipts.id = receipt_items.receipt_id").
		Where("receipts.user_id = ?", userID).
		Select("receipt_items.category as category, COALESCE(SUM(receipt_items.subtotal), 0) as total").
		Group("receipt_items.category").
		Order("total desc").
		Scan(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (r *receiptRepository) GetTopMerchants(ctx context.Context, userID string, limit int) ([]domain.MerchantSpend, error) {
	var results []domain.MerchantSpend
	err := r.db.WithContext(ctx).Model(&entities.Receipt{}).
		Where("user_id = ?", userID).
		Select("store_name, COALESCE(SUM(total_amount), 0) as total").
		Group("store_name").
		Order("total desc").
		Limit(limit).
		Scan(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
