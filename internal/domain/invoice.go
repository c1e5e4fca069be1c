package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceStatus is the lifecycle state of an invoice.
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "draft"
	InvoiceStatusSent      InvoiceStatus = "sent"
	InvoiceStatusViewed    InvoiceStatus = "viewed"
	InvoiceStatusPartial   InvoiceStatus = "partial"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusOverdue   InvoiceStatus = "overdue"
	InvoiceStatusVoid      InvoiceStatus = "void"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

// PaymentStatus mirrors the processor's payment lifecycle.
type PaymentStatus string

const (
	PaymentStatusRequiresPayment PaymentStatus = "requires_payment"
	PaymentStatusProcessing      PaymentStatus = "processing"
	PaymentStatusSucceeded       PaymentStatus = "succeeded"
	PaymentStatusFailed          PaymentStatus = "failed"
	PaymentStatusCanceled        PaymentStatus = "canceled"
)

// PaymentReceipt is the data handed to the notification dispatcher after an
// invoice has been credited.
type PaymentReceipt struct {
	InvoiceID     uuid.UUID
	InvoiceNumber string
	ClientEmail   string
	PayerName     string
	MerchantName  string
	Amount        decimal.Decimal
	Currency      string
	PaidAt        time.Time
	Method        string
	AmountPaid    decimal.Decimal
	AmountDue     decimal.Decimal
	Total         decimal.Decimal
	StatusURL     string
}
