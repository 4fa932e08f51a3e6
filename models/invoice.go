package models

import (
	"context"
	"errors"
	"time"

	"github.com/mmdatafocus/warehouse_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Invoice is an externally supplied billing document: what the third-party
// warehouse operator actually charged for a period. Immutable once entered
// except for the status field, which reconciliation maintains.
type Invoice struct {
	ID            int             `gorm:"primary_key" json:"id"`
	WarehouseId   int             `gorm:"index;not null" json:"warehouse_id"`
	InvoiceNumber string          `gorm:"size:50;not null;unique" json:"invoice_number"`
	PeriodStart   time.Time       `gorm:"not null" json:"period_start"`
	PeriodEnd     time.Time       `gorm:"not null" json:"period_end"`
	Status        InvoiceStatus   `gorm:"size:20;not null;default:Pending" json:"status"`
	TotalAmount   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	EnteredBy     int             `json:"entered_by"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`

	LineItems []InvoiceLineItem `gorm:"foreignKey:InvoiceId" json:"line_items"`
}

type InvoiceLineItem struct {
	ID          int              `gorm:"primary_key" json:"id"`
	InvoiceId   int              `gorm:"index;not null" json:"invoice_id"`
	Category    CostCategory     `gorm:"size:20;not null" json:"category"`
	CostName    string           `gorm:"size:100;not null" json:"cost_name"`
	Quantity    *decimal.Decimal `gorm:"type:decimal(20,4)" json:"quantity"`
	Amount      decimal.Decimal  `gorm:"type:decimal(20,4);not null" json:"amount"`
	Description string           `gorm:"size:255" json:"description"`
}

type NewInvoiceLineItem struct {
	Category    string  `json:"category" binding:"required"`
	CostName    string  `json:"cost_name" binding:"required"`
	Quantity    *string `json:"quantity"`
	Amount      string  `json:"amount" binding:"required"`
	Description string  `json:"description"`
}

type NewInvoice struct {
	WarehouseId   int                  `json:"warehouse_id" binding:"required"`
	InvoiceNumber string               `json:"invoice_number" binding:"required"`
	PeriodStart   time.Time            `json:"period_start" binding:"required"`
	PeriodEnd     time.Time            `json:"period_end" binding:"required"`
	LineItems     []NewInvoiceLineItem `json:"line_items" binding:"required,min=1"`
}

func CreateInvoice(ctx context.Context, db *gorm.DB, input *NewInvoice) (*Invoice, error) {
	if err := validateWarehouseId(ctx, db, input.WarehouseId); err != nil {
		return nil, err
	}
	period, err := NewBillingPeriod(input.PeriodStart, input.PeriodEnd)
	if err != nil {
		return nil, err
	}
	var count int64
	if err := db.WithContext(ctx).Model(&Invoice{}).
		Where("invoice_number = ?", input.InvoiceNumber).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("invoice number already in use")
	}

	total := decimal.Zero
	lines := make([]InvoiceLineItem, 0, len(input.LineItems))
	for _, l := range input.LineItems {
		category := CostCategory(l.Category)
		if !category.Valid() {
			return nil, errors.New("invalid cost category on line item")
		}
		amount, err := decimal.NewFromString(l.Amount)
		if err != nil {
			return nil, errors.New("invalid line item amount")
		}
		line := InvoiceLineItem{
			Category:    category,
			CostName:    l.CostName,
			Amount:      amount.Round(2),
			Description: l.Description,
		}
		if l.Quantity != nil {
			qty, err := decimal.NewFromString(*l.Quantity)
			if err != nil {
				return nil, errors.New("invalid line item quantity")
			}
			line.Quantity = &qty
		}
		total = total.Add(line.Amount)
		lines = append(lines, line)
	}

	invoice := Invoice{
		WarehouseId:   input.WarehouseId,
		InvoiceNumber: input.InvoiceNumber,
		PeriodStart:   period.Start,
		PeriodEnd:     period.End,
		Status:        InvoiceStatusPending,
		TotalAmount:   total,
		LineItems:     lines,
	}
	if userId, ok := utils.GetUserIdFromContext(ctx); ok {
		invoice.EnteredBy = userId
	}

	if err := db.WithContext(ctx).Create(&invoice).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

func GetInvoice(ctx context.Context, db *gorm.DB, id int) (*Invoice, error) {
	var invoice Invoice
	if err := db.WithContext(ctx).Preload("LineItems").First(&invoice, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvoiceNotFound
		}
		return nil, err
	}
	return &invoice, nil
}

func ListInvoices(ctx context.Context, db *gorm.DB, warehouseId *int) ([]Invoice, error) {
	dbCtx := db.WithContext(ctx).Model(&Invoice{}).Preload("LineItems")
	if warehouseId != nil && *warehouseId > 0 {
		dbCtx = dbCtx.Where("warehouse_id = ?", *warehouseId)
	}
	var invoices []Invoice
	if err := dbCtx.Order("id").Find(&invoices).Error; err != nil {
		return nil, err
	}
	return invoices, nil
}

func updateInvoiceStatus(ctx context.Context, tx *gorm.DB, invoiceId int, status InvoiceStatus) error {
	return tx.WithContext(ctx).Model(&Invoice{}).
		Where("id = ?", invoiceId).Update("status", status).Error
}
