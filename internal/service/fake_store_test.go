package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/dukerupert/tally/internal/domain"
	"github.com/dukerupert/tally/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// fakeStore is an in-memory repository.Store. It enforces the same unique
// constraints as the schema and evaluates ApplyInvoicePayment's SET clause
// term by term.
type fakeStore struct {
	mu sync.Mutex

	events        map[string]repository.StripeEvent
	invoices      map[uuid.UUID]repository.Invoice
	clients       map[uuid.UUID]fakeClient
	organizations map[uuid.UUID]repository.Organization
	users         map[uuid.UUID]repository.User
	payments      []repository.Payment
	auditLogs     []repository.CreateAuditLogParams

	// Injected failures, keyed by method name.
	errs map[string]error
}

type fakeClient struct {
	Name  string
	Email string
}

var _ repository.Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		events:        make(map[string]repository.StripeEvent),
		invoices:      make(map[uuid.UUID]repository.Invoice),
		clients:       make(map[uuid.UUID]fakeClient),
		organizations: make(map[uuid.UUID]repository.Organization),
		users:         make(map[uuid.UUID]repository.User),
		errs:          make(map[string]error),
	}
}

func (f *fakeStore) failOn(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[method] = err
}

func (f *fakeStore) injected(method string) error {
	return f.errs[method]
}

// ExecTx snapshots state and restores it when fn fails.
func (f *fakeStore) ExecTx(ctx context.Context, fn func(repository.Querier) error) error {
	f.mu.Lock()
	snapshot := f.snapshot()
	f.mu.Unlock()

	if err := fn(f); err != nil {
		f.mu.Lock()
		f.restore(snapshot)
		f.mu.Unlock()
		return err
	}
	return nil
}

type fakeSnapshot struct {
	invoices      map[uuid.UUID]repository.Invoice
	organizations map[uuid.UUID]repository.Organization
	users         map[uuid.UUID]repository.User
	payments      []repository.Payment
	auditLogs     []repository.CreateAuditLogParams
}

func (f *fakeStore) snapshot() fakeSnapshot {
	s := fakeSnapshot{
		invoices:      make(map[uuid.UUID]repository.Invoice, len(f.invoices)),
		organizations: make(map[uuid.UUID]repository.Organization, len(f.organizations)),
		users:         make(map[uuid.UUID]repository.User, len(f.users)),
		payments:      append([]repository.Payment(nil), f.payments...),
		auditLogs:     append([]repository.CreateAuditLogParams(nil), f.auditLogs...),
	}
	for k, v := range f.invoices {
		s.invoices[k] = v
	}
	for k, v := range f.organizations {
		s.organizations[k] = v
	}
	for k, v := range f.users {
		s.users[k] = v
	}
	return s
}

func (f *fakeStore) restore(s fakeSnapshot) {
	f.invoices = s.invoices
	f.organizations = s.organizations
	f.users = s.users
	f.payments = s.payments
	f.auditLogs = s.auditLogs
}

// =============================================================================
// Seed helpers
// =============================================================================

func (f *fakeStore) addOrganization(name string, plan domain.PlanTier) uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.New()
	f.organizations[id] = repository.Organization{
		ID:   repository.UUID(id),
		Name: name,
		Plan: string(plan),
	}
	return id
}

func (f *fakeStore) addInvoice(orgID uuid.UUID, number, total, clientEmail string) uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	clientID := uuid.New()
	f.clients[clientID] = fakeClient{Name: "Ada Client", Email: clientEmail}

	id := uuid.New()
	t := decimalString(total)
	f.invoices[id] = repository.Invoice{
		ID:               repository.UUID(id),
		OrganizationID:   repository.UUID(orgID),
		ClientID:         repository.UUID(clientID),
		InvoiceNumber:    number,
		Total:            repository.NumericFromDecimal(t),
		AmountPaid:       repository.NumericFromDecimal(decimalString("0")),
		AmountDue:        repository.NumericFromDecimal(t),
		Status:           string(domain.InvoiceStatusSent),
		Currency:         "usd",
		PaymentLinkToken: repository.Text("tok_" + number),
	}
	return id
}

func (f *fakeStore) addMerchant(orgID uuid.UUID, accountID string) uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.New()
	f.users[id] = repository.User{
		ID:               repository.UUID(id),
		OrganizationID:   repository.UUID(orgID),
		Email:            "merchant@example.com",
		StripeAccountID:  repository.Text(accountID),
		OnboardingStatus: string(domain.OnboardingPending),
	}
	return id
}

func (f *fakeStore) invoice(id uuid.UUID) repository.Invoice {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.invoices[id]
}

func (f *fakeStore) organization(id uuid.UUID) repository.Organization {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.organizations[id]
}

func (f *fakeStore) user(id uuid.UUID) repository.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[id]
}

func (f *fakeStore) event(id string) (repository.StripeEvent, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.events[id]
	return e, ok
}

func (f *fakeStore) paymentsFor(invoiceID uuid.UUID) []repository.Payment {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []repository.Payment
	for _, p := range f.payments {
		if repository.FromUUID(p.InvoiceID) == invoiceID {
			out = append(out, p)
		}
	}
	return out
}

func (f *fakeStore) audits() []repository.CreateAuditLogParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]repository.CreateAuditLogParams(nil), f.auditLogs...)
}

func fakeNow() pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: time.Now(), Valid: true}
}

// =============================================================================
// Querier
// =============================================================================

func (f *fakeStore) InsertStripeEvent(ctx context.Context, arg repository.InsertStripeEventParams) (repository.StripeEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("InsertStripeEvent"); err != nil {
		return repository.StripeEvent{}, err
	}
	if _, ok := f.events[arg.ID]; ok {
		return repository.StripeEvent{}, &pgconn.PgError{Code: "23505", ConstraintName: "stripe_events_pkey"}
	}
	// JSONB does not keep the original formatting.
	payload := arg.Payload
	var compact bytes.Buffer
	if json.Compact(&compact, arg.Payload) == nil {
		payload = compact.Bytes()
	}
	e := repository.StripeEvent{
		ID:         arg.ID,
		Type:       arg.Type,
		AccountID:  arg.AccountID,
		Payload:    payload,
		ReceivedAt: fakeNow(),
	}
	f.events[arg.ID] = e
	return e, nil
}

func (f *fakeStore) GetStripeEvent(ctx context.Context, id string) (repository.StripeEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.events[id]
	if !ok {
		return repository.StripeEvent{}, pgx.ErrNoRows
	}
	return e, nil
}

func (f *fakeStore) MarkStripeEventProcessed(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("MarkStripeEventProcessed"); err != nil {
		return err
	}
	e, ok := f.events[id]
	if !ok {
		return nil
	}
	e.Processed = true
	if !e.ProcessedAt.Valid {
		e.ProcessedAt = fakeNow()
	}
	e.LastError = pgtype.Text{}
	f.events[id] = e
	return nil
}

func (f *fakeStore) DeleteProcessedStripeEvents(ctx context.Context, processedBefore pgtype.Timestamptz) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("DeleteProcessedStripeEvents"); err != nil {
		return 0, err
	}
	var deleted int64
	for id, e := range f.events {
		if e.Processed && e.ProcessedAt.Valid && e.ProcessedAt.Time.Before(processedBefore.Time) {
			delete(f.events, id)
			deleted++
		}
	}
	return deleted, nil
}

func (f *fakeStore) BeginStripeEventAttempt(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.events[id]
	if !ok {
		return nil
	}
	e.Attempts++
	e.LastAttemptAt = fakeNow()
	f.events[id] = e
	return nil
}

func (f *fakeStore) RecordStripeEventFailure(ctx context.Context, arg repository.RecordStripeEventFailureParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.events[arg.ID]
	if !ok || e.Processed {
		return nil
	}
	e.LastError = repository.Text(arg.LastError)
	f.events[arg.ID] = e
	return nil
}

func (f *fakeStore) ClaimStaleStripeEvents(ctx context.Context, arg repository.ClaimStaleStripeEventsParams) ([]repository.StripeEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("ClaimStaleStripeEvents"); err != nil {
		return nil, err
	}

	var candidates []repository.StripeEvent
	for _, e := range f.events {
		last := e.ReceivedAt.Time
		if e.LastAttemptAt.Valid {
			last = e.LastAttemptAt.Time
		}
		if !e.Processed && last.Before(arg.StaleBefore.Time) && e.Attempts < arg.MaxAttempts {
			candidates = append(candidates, e)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].ReceivedAt.Time.Before(candidates[j].ReceivedAt.Time)
	})
	if int32(len(candidates)) > arg.Limit {
		candidates = candidates[:arg.Limit]
	}

	claimed := make([]repository.StripeEvent, 0, len(candidates))
	for _, e := range candidates {
		e.Attempts++
		e.LastAttemptAt = fakeNow()
		f.events[e.ID] = e
		claimed = append(claimed, e)
	}
	return claimed, nil
}

func (f *fakeStore) ListStripeEvents(ctx context.Context, arg repository.ListStripeEventsParams) ([]repository.StripeEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []repository.StripeEvent
	for _, e := range f.events {
		if arg.OnlyUnprocessed && e.Processed {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ReceivedAt.Time.After(out[j].ReceivedAt.Time)
	})
	if int32(len(out)) > arg.Limit {
		out = out[:arg.Limit]
	}
	return out, nil
}

func (f *fakeStore) GetInvoice(ctx context.Context, id pgtype.UUID) (repository.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("GetInvoice"); err != nil {
		return repository.Invoice{}, err
	}
	inv, ok := f.invoices[repository.FromUUID(id)]
	if !ok {
		return repository.Invoice{}, pgx.ErrNoRows
	}
	return inv, nil
}

func (f *fakeStore) ApplyInvoicePayment(ctx context.Context, arg repository.ApplyInvoicePaymentParams) (repository.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("ApplyInvoicePayment"); err != nil {
		return repository.Invoice{}, err
	}
	id := repository.FromUUID(arg.ID)
	inv, ok := f.invoices[id]
	if !ok {
		return repository.Invoice{}, pgx.ErrNoRows
	}

	total := repository.DecimalFromNumeric(inv.Total)
	paid := repository.DecimalFromNumeric(inv.AmountPaid).Add(repository.DecimalFromNumeric(arg.Amount))
	due := total.Sub(paid)

	inv.AmountPaid = repository.NumericFromDecimal(paid)
	inv.AmountDue = repository.NumericFromDecimal(due)
	switch {
	case !due.IsPositive():
		inv.Status = string(domain.InvoiceStatusPaid)
		if !inv.PaidAt.Valid {
			inv.PaidAt = fakeNow()
		}
	case paid.IsPositive():
		inv.Status = string(domain.InvoiceStatusPartial)
	}
	inv.UpdatedAt = fakeNow()
	f.invoices[id] = inv
	return inv, nil
}

func (f *fakeStore) GetInvoiceReceiptDetails(ctx context.Context, id pgtype.UUID) (repository.GetInvoiceReceiptDetailsRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("GetInvoiceReceiptDetails"); err != nil {
		return repository.GetInvoiceReceiptDetailsRow{}, err
	}
	inv, ok := f.invoices[repository.FromUUID(id)]
	if !ok {
		return repository.GetInvoiceReceiptDetailsRow{}, pgx.ErrNoRows
	}
	client := f.clients[repository.FromUUID(inv.ClientID)]
	org := f.organizations[repository.FromUUID(inv.OrganizationID)]
	return repository.GetInvoiceReceiptDetailsRow{
		ID:               inv.ID,
		InvoiceNumber:    inv.InvoiceNumber,
		Total:            inv.Total,
		AmountPaid:       inv.AmountPaid,
		AmountDue:        inv.AmountDue,
		Currency:         inv.Currency,
		PaymentLinkToken: inv.PaymentLinkToken,
		ClientName:       client.Name,
		ClientEmail:      repository.Text(client.Email),
		OrganizationName: org.Name,
	}, nil
}

// CreatePayment mimics INSERT ... ON CONFLICT DO NOTHING RETURNING.
func (f *fakeStore) CreatePayment(ctx context.Context, arg repository.CreatePaymentParams) (repository.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("CreatePayment"); err != nil {
		return repository.Payment{}, err
	}
	for _, p := range f.payments {
		if p.StripeEventID == arg.StripeEventID {
			return repository.Payment{}, pgx.ErrNoRows
		}
		if arg.Status == string(domain.PaymentStatusSucceeded) &&
			p.Status == string(domain.PaymentStatusSucceeded) &&
			p.StripePaymentIntentID == arg.StripePaymentIntentID {
			return repository.Payment{}, pgx.ErrNoRows
		}
	}
	p := repository.Payment{
		ID:                    arg.ID,
		InvoiceID:             arg.InvoiceID,
		OrganizationID:        arg.OrganizationID,
		StripeEventID:         arg.StripeEventID,
		StripePaymentIntentID: arg.StripePaymentIntentID,
		StripeChargeID:        arg.StripeChargeID,
		Amount:                arg.Amount,
		Currency:              arg.Currency,
		Status:                arg.Status,
		Method:                arg.Method,
		FailureReason:         arg.FailureReason,
		CreatedAt:             fakeNow(),
	}
	f.payments = append(f.payments, p)
	return p, nil
}

func (f *fakeStore) GetOrganization(ctx context.Context, id pgtype.UUID) (repository.Organization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	org, ok := f.organizations[repository.FromUUID(id)]
	if !ok {
		return repository.Organization{}, pgx.ErrNoRows
	}
	return org, nil
}

func (f *fakeStore) UpdateOrganizationSubscription(ctx context.Context, arg repository.UpdateOrganizationSubscriptionParams) (repository.Organization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("UpdateOrganizationSubscription"); err != nil {
		return repository.Organization{}, err
	}
	id := repository.FromUUID(arg.ID)
	org, ok := f.organizations[id]
	if !ok {
		return repository.Organization{}, pgx.ErrNoRows
	}
	org.Plan = arg.Plan
	org.SubscriptionStatus = arg.SubscriptionStatus
	org.StripeSubscriptionID = arg.StripeSubscriptionID
	org.CurrentPeriodStart = arg.CurrentPeriodStart
	org.CurrentPeriodEnd = arg.CurrentPeriodEnd
	org.UpdatedAt = fakeNow()
	f.organizations[id] = org
	return org, nil
}

func (f *fakeStore) GetUserByStripeAccountID(ctx context.Context, stripeAccountID pgtype.Text) (repository.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("GetUserByStripeAccountID"); err != nil {
		return repository.User{}, err
	}
	for _, u := range f.users {
		if u.StripeAccountID.Valid && u.StripeAccountID.String == stripeAccountID.String {
			return u, nil
		}
	}
	return repository.User{}, pgx.ErrNoRows
}

func (f *fakeStore) UpdateUserStripeAccountStatus(ctx context.Context, arg repository.UpdateUserStripeAccountStatusParams) (repository.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := repository.FromUUID(arg.ID)
	u, ok := f.users[id]
	if !ok {
		return repository.User{}, pgx.ErrNoRows
	}
	u.OnboardingStatus = arg.OnboardingStatus
	u.OnboardingComplete = arg.OnboardingComplete
	u.PayoutsEnabled = arg.PayoutsEnabled
	u.Balance = arg.Balance
	u.UpdatedAt = fakeNow()
	f.users[id] = u
	return u, nil
}

func (f *fakeStore) CreateAuditLog(ctx context.Context, arg repository.CreateAuditLogParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("CreateAuditLog"); err != nil {
		return err
	}
	f.auditLogs = append(f.auditLogs, arg)
	return nil
}

var errStoreDown = errors.New("connection refused")
