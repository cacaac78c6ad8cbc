// Package firestore provides a Cloud Firestore implementation of the relaypay.Storage
// interface. The paid transition runs inside a Firestore transaction that re-reads the
// document before writing, which gives the same at-most-once guarantee as the relational
// backend's conditional UPDATE.
package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/nostrhub/relaypay/pkg/relaypay"
)

// Storage implements relaypay.Storage using Google Cloud Firestore
type Storage struct {
	client             *firestore.Client
	paymentsCollection string
	accountsCollection string
}

// Config holds Firestore storage configuration
type Config struct {
	// PaymentsCollection is the Firestore collection for payment rows
	// Default: "payments"
	PaymentsCollection string

	// AccountsCollection is the Firestore collection for accounts
	// Default: "accounts"
	AccountsCollection string
}

// New creates a new Firestore storage adapter
func New(client *firestore.Client, config Config) (*Storage, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client is required")
	}

	if config.PaymentsCollection == "" {
		config.PaymentsCollection = "payments"
	}
	if config.AccountsCollection == "" {
		config.AccountsCollection = "accounts"
	}

	return &Storage{
		client:             client,
		paymentsCollection: config.PaymentsCollection,
		accountsCollection: config.AccountsCollection,
	}, nil
}

// CreatePayment implements relaypay.Storage
func (s *Storage) CreatePayment(ctx context.Context, p *relaypay.Payment) error {
	if p == nil || p.ID == "" || p.Pubkey == "" {
		return fmt.Errorf("invalid payment")
	}

	doc := s.client.Collection(s.paymentsCollection).Doc(p.ID)
	_, err := doc.Create(ctx, paymentData(p))
	if status.Code(err) == codes.AlreadyExists {
		return relaypay.ErrPaymentExists
	}
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// GetPayment implements relaypay.Storage
func (s *Storage) GetPayment(ctx context.Context, id, pubkey string) (*relaypay.Payment, error) {
	snap, err := s.client.Collection(s.paymentsCollection).Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, relaypay.ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}

	p := paymentFromData(id, snap.Data())
	if p.Pubkey != pubkey {
		return nil, relaypay.ErrPaymentNotFound
	}
	return p, nil
}

// ListPayments implements relaypay.Storage
func (s *Storage) ListPayments(ctx context.Context, limit int) ([]*relaypay.Payment, error) {
	iter := s.client.Collection(s.paymentsCollection).
		OrderBy("createdAt", firestore.Desc).
		Limit(limit).
		Documents(ctx)
	defer iter.Stop()

	var out []*relaypay.Payment
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list payments: %w", err)
		}
		out = append(out, paymentFromData(snap.Ref.ID, snap.Data()))
	}
	return out, nil
}

// MarkPaid implements relaypay.Storage. Firestore transactions re-run on
// contention, so the read of isPaid and the write below are atomic.
func (s *Storage) MarkPaid(ctx context.Context, id string, paidAt time.Time) (bool, error) {
	doc := s.client.Collection(s.paymentsCollection).Doc(id)
	won := false

	err := s.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(doc)
		if status.Code(err) == codes.NotFound {
			return relaypay.ErrPaymentNotFound
		}
		if err != nil {
			return err
		}

		if isPaid, _ := snap.Data()["isPaid"].(bool); isPaid {
			won = false
			return nil
		}

		won = true
		return tx.Update(doc, []firestore.Update{
			{Path: "isPaid", Value: true},
			{Path: "paidAt", Value: paidAt},
			{Path: "modifiedAt", Value: paidAt},
		})
	})
	if err == relaypay.ErrPaymentNotFound {
		return false, err
	}
	if err != nil {
		return false, fmt.Errorf("failed to mark payment paid: %w", err)
	}
	return won, nil
}

// GetAccount implements relaypay.Storage
func (s *Storage) GetAccount(ctx context.Context, pubkey string) (*relaypay.Account, error) {
	snap, err := s.client.Collection(s.accountsCollection).Doc(pubkey).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, relaypay.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return accountFromData(pubkey, snap.Data()), nil
}

// UpsertAccount implements relaypay.Storage
func (s *Storage) UpsertAccount(ctx context.Context, acct *relaypay.Account) error {
	if acct == nil || acct.Pubkey == "" {
		return fmt.Errorf("invalid account")
	}

	doc := s.client.Collection(s.accountsCollection).Doc(acct.Pubkey)
	_, err := doc.Set(ctx, map[string]interface{}{
		"tier":         acct.Tier,
		"expiresAt":    acct.ExpiresAt,
		"features":     acct.Entitlements.Features,
		"storageBytes": acct.Entitlements.StorageBytes,
		"updatedAt":    acct.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert account: %w", err)
	}
	return nil
}

// ScanPayments implements relaypay.Storage
func (s *Storage) ScanPayments(ctx context.Context, fn func(*relaypay.Payment) error) error {
	iter := s.client.Collection(s.paymentsCollection).Documents(ctx)
	defer iter.Stop()

	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to scan payments: %w", err)
		}
		if err := fn(paymentFromData(snap.Ref.ID, snap.Data())); err != nil {
			return err
		}
	}
}

// ScanAccounts implements relaypay.Storage
func (s *Storage) ScanAccounts(ctx context.Context, fn func(*relaypay.Account) error) error {
	iter := s.client.Collection(s.accountsCollection).Documents(ctx)
	defer iter.Stop()

	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to scan accounts: %w", err)
		}
		if err := fn(accountFromData(snap.Ref.ID, snap.Data())); err != nil {
			return err
		}
	}
}

func paymentData(p *relaypay.Payment) map[string]interface{} {
	data := map[string]interface{}{
		"pubkey":            p.Pubkey,
		"tier":              p.Tier,
		"billingCycle":      string(p.Cycle),
		"priceCents":        p.PriceCents,
		"settlementHash":    p.SettlementHash,
		"settlementInvoice": p.SettlementInvoice,
		"settlementAmount":  p.SettlementAmount,
		"isPaid":            p.IsPaid,
		"expiresAt":         p.ExpiresAt,
		"createdAt":         p.CreatedAt,
		"modifiedAt":        p.ModifiedAt,
	}
	if p.PaidAt != nil {
		data["paidAt"] = *p.PaidAt
	}
	return data
}

func paymentFromData(id string, data map[string]interface{}) *relaypay.Payment {
	p := &relaypay.Payment{
		ID:                id,
		Pubkey:            getString(data, "pubkey"),
		Tier:              getString(data, "tier"),
		Cycle:             relaypay.BillingCycle(getString(data, "billingCycle")),
		PriceCents:        getInt64(data, "priceCents"),
		SettlementHash:    getString(data, "settlementHash"),
		SettlementInvoice: getString(data, "settlementInvoice"),
		SettlementAmount:  getInt64(data, "settlementAmount"),
		ExpiresAt:         getTime(data, "expiresAt"),
		CreatedAt:         getTime(data, "createdAt"),
		ModifiedAt:        getTime(data, "modifiedAt"),
	}
	p.IsPaid, _ = data["isPaid"].(bool)
	if paidAt, ok := data["paidAt"].(time.Time); ok && !paidAt.IsZero() {
		p.PaidAt = &paidAt
	}
	return p
}

func accountFromData(pubkey string, data map[string]interface{}) *relaypay.Account {
	acct := &relaypay.Account{
		Pubkey:    pubkey,
		Tier:      getString(data, "tier"),
		ExpiresAt: getTime(data, "expiresAt"),
		UpdatedAt: getTime(data, "updatedAt"),
		Entitlements: relaypay.Entitlements{
			StorageBytes: getInt64(data, "storageBytes"),
		},
	}
	if raw, ok := data["features"].([]interface{}); ok {
		features := make([]string, 0, len(raw))
		for _, f := range raw {
			if s, ok := f.(string); ok {
				features = append(features, s)
			}
		}
		acct.Entitlements.Features = features
	}
	return acct
}

func getString(data map[string]interface{}, key string) string {
	v, _ := data[key].(string)
	return v
}

func getInt64(data map[string]interface{}, key string) int64 {
	switch v := data[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

func getTime(data map[string]interface{}, key string) time.Time {
	v, _ := data[key].(time.Time)
	return v
}
