package email

import "time"

// EmailTemplate defines the interface for email templates
type EmailTemplate interface {
	Subject() string
	TemplateName() string
}

// PaymentReceiptEmail is sent to an invoice's client after a payment is applied.
type PaymentReceiptEmail struct {
	To            string
	InvoiceNumber string
	PayerName     string
	MerchantName  string
	Amount        string // formatted, e.g. "USD 40.00"
	PaidAt        time.Time
	Method        string
	AmountPaid    string
	AmountDue     string
	Total         string
	StatusURL     string
	FullyPaid     bool
}

func (e PaymentReceiptEmail) Subject() string {
	if e.MerchantName != "" {
		return "Payment received for invoice " + e.InvoiceNumber + " from " + e.MerchantName
	}
	return "Payment received for invoice " + e.InvoiceNumber
}

func (e PaymentReceiptEmail) TemplateName() string {
	return "payment_receipt"
}
