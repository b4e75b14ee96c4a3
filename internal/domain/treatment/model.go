package treatment

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentCash PaymentMethod = "efectivo"
	PaymentCard PaymentMethod = "tarjeta"
)

// Payment records how a package was paid for.
type Payment struct {
	Amount       decimal.Decimal `json:"amount"`
	Method       PaymentMethod   `json:"method"`
	CardType     string          `json:"cardType,omitempty"`
	ReceiptFolio string          `json:"receiptFolio,omitempty"`
}

// Package is a prepaid bundle of sessions of one service. It owns the
// history entries written as sessions are delivered.
type Package struct {
	ID                uuid.UUID `json:"id"`
	UserID            string    `json:"userId"`
	ServiceID         string    `json:"serviceId"`
	TotalAppointments int       `json:"totalAppointments"`
	UsedAppointments  int       `json:"usedAppointments"`
	Payment           Payment   `json:"payment"`
	PurchasedAt       time.Time `json:"purchasedAt"`
	PurchasedByAdmin  string    `json:"purchasedByAdmin"`
}

func (p *Package) Remaining() int {
	if n := p.TotalAppointments - p.UsedAppointments; n > 0 {
		return n
	}
	return 0
}

// SaleItem is one service line of a sale. Each item becomes a package.
type SaleItem struct {
	ServiceID string          `json:"serviceId" validate:"required"`
	Sessions  int             `json:"sessions" validate:"min=1,max=100"`
	Amount    decimal.Decimal `json:"amount"`
}

type SaleRequest struct {
	Items        []SaleItem    `json:"items" validate:"required,min=1,dive"`
	Method       PaymentMethod `json:"method" validate:"required,oneof=efectivo tarjeta"`
	CardType     string        `json:"cardType" validate:"max=40"`
	ReceiptFolio string        `json:"receiptFolio" validate:"max=60"`
}

// HistoryEntry documents one delivered session. Photos are blob URLs in the
// order they were taken.
type HistoryEntry struct {
	ID         uuid.UUID `json:"id"`
	PackageID  uuid.UUID `json:"packageId"`
	Timestamp  time.Time `json:"timestamp"`
	DoctorName string    `json:"doctorName"`
	Notes      string    `json:"notes"`
	Photos     []string  `json:"photos"`
}

type HistoryInput struct {
	DoctorName string   `json:"doctorName" validate:"required,max=120"`
	Notes      string   `json:"notes" validate:"max=10000"`
	Photos     []string `json:"photos" validate:"max=8,dive,url"`
}

// HistoryAppended is published after an entry is stored.
type HistoryAppended struct {
	PackageID  string `json:"packageId"`
	EntryID    string `json:"entryId"`
	PhotoCount int    `json:"photoCount"`
}

// Sale is one row of the sales export.
type Sale struct {
	Package     *Package
	ServiceName string
	ClientName  string
	ClientEmail string
}
