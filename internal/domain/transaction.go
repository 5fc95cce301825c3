// Package domain defines the core interfaces and types for Veritas.
package domain

import (
	"time"
)

// Transaction is a single bank-statement line item.
// Amount sign convention is fixed: positive = credit/deposit,
// negative = debit/withdrawal. The engine never mutates a transaction.
type Transaction struct {
	// Date the transaction posted.
	Date time.Time `json:"date"`

	// Description as extracted from the statement. Empty when the
	// extraction layer could not read one.
	Description string `json:"description,omitempty"`

	// Amount in the statement currency.
	Amount float64 `json:"amount"`

	// RunningBalance as printed on the statement, when available.
	RunningBalance *float64 `json:"runningBalance,omitempty"`

	// Category assigned by the external categorization waterfall.
	// Consumed as given; never computed here.
	Category string `json:"category,omitempty"`
}

// Statement is one bank statement: an opening balance plus its
// transactions, with any flags the extraction layer attached.
type Statement struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	AccountName string `json:"accountName,omitempty"`

	OpeningBalance float64       `json:"openingBalance"`
	Transactions   []Transaction `json:"transactions"`

	// FlaggedNegativeBalance is set upstream when the raw statement text
	// itself showed an overdrawn balance. One of the three signals the
	// negative-balance detector accepts.
	FlaggedNegativeBalance bool `json:"flaggedNegativeBalance,omitempty"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// ApplicationRecord holds the stated business attributes from a loan
// application. Read-only input.
type ApplicationRecord struct {
	BusinessName        string     `json:"businessName,omitempty"`
	Industry            string     `json:"industry,omitempty"`
	StatedAnnualRevenue float64    `json:"statedAnnualRevenue,omitempty"`
	BusinessStartDate   *time.Time `json:"businessStartDate,omitempty"`

	// Loan terms consumed by the debt-service rules.
	RequestedAmount float64 `json:"requestedAmount,omitempty"`
	TermMonths      int     `json:"termMonths,omitempty"`
}

// VerificationRecord is a third-party business-registry lookup result.
// May be absent entirely; every consumer must tolerate that.
type VerificationRecord struct {
	Found               bool       `json:"found"`
	IsActive            bool       `json:"isActive"`
	Status              string     `json:"status,omitempty"`
	RegistrationDate    *time.Time `json:"registrationDate,omitempty"`
	MatchedBusinessName string     `json:"matchedBusinessName,omitempty"`
}
