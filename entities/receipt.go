package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Receipt struct {
	ID              uuid.UUID       `gorm:"type:uuid;primary_key;default:uuid_generate_v4()" json:"id"`
	UserID          uuid.UUID       `json:"user_id"`
	StoreName       string          `json:"store_name"`
	TransactionDate time.Time       `gorm:"type:date" json:"transaction_date"`
	TotalAmount     decimal.Decimal `gorm:"type:decimal(12,2)" json:"total_amount"`
	ImageURL        string          `json:"image_url"`
	RawText         string          `json:"raw_text,omitempty" gorm:"type:text"`
	Status          string          `json:"status"` // "processing", "completed", "error"
	ErrorMessage    string          `json:"error_message,omitempty"`

	User  *User          `gorm:"foreignKey:UserID"`
	Items []*ReceiptItem `gorm:"foreignKey:ReceiptID;constraint:OnDelete:CASCADE" json:"items"`
	Timestamp
}

type ReceiptItem struct {
	ID        uuid.UUID       `gorm:"type:uuid;primary_key;default:uuid_generate_v4()" json:"id"`
	ReceiptID uuid.UUID       `json:"receipt_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `gorm:"type:decimal(12,2)" json:"price"`
	Quantity  int             `json:"quantity"`
	Category  string          `json:"category"`
	Subtotal  decimal.Decimal `gorm:"type:decimal(12,2)" json:"subtotal"`

	Timestamp
}
