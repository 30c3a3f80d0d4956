package core

import (
	"errors"
	"strings"
	"time"
)

type (
	// Product is one row of uploaded financial data. Values are never
	// mutated after ingestion; an upload replaces the whole list.
	Product struct {
		ID               string  `json:"id" db:"id"`
		Name             string  `json:"productName" db:"name"`
		Sales            float64 `json:"sales" db:"sales"`
		Profit           float64 `json:"profit" db:"profit"`
		TotalExpense     float64 `json:"te" db:"total_expense"`
		Credit           float64 `json:"credit" db:"credit"`
		MarketplaceFee   float64 `json:"amazonFee" db:"marketplace_fee"`
		ProfitPercentage float64 `json:"profitPercentage" db:"profit_percentage"`
	}

	// User is the signed-in account owning a product list.
	User struct {
		ID          string `json:"id" db:"id"`
		Email       string `json:"email" db:"email"`
		DisplayName string `json:"displayName" db:"display_name"`
		PhotoURL    string `json:"photoURL" db:"photo_url"`
	}

	// Snapshot is the full product list of one user from a single upload.
	Snapshot struct {
		UserID     string    `json:"userId"`
		UploadID   string    `json:"uploadId"`
		FileName   string    `json:"fileName"`
		UploadedAt time.Time `json:"uploadedAt"`
		Products   []Product `json:"products"`
	}
)

var (
	ErrEmptyUserID   = errors.New("empty user id")
	ErrEmptyUploadID = errors.New("empty upload id")
	ErrEmptyEmail    = errors.New("empty email")

	ErrUserNotFound    = errors.New("user not found")
	ErrSessionNotFound = errors.New("session not found or expired")
)

// Expenses is what the dashboard counts as cost for a product: TE plus the marketplace fee.
func (p Product) Expenses() float64 {
	return p.TotalExpense + p.MarketplaceFee
}

// Empty reports whether the snapshot holds no products.
func (s Snapshot) Empty() bool {
	return len(s.Products) == 0
}

// Clone returns a snapshot whose product slice can be handed out without
// exposing the stored backing array.
func (s Snapshot) Clone() Snapshot {
	out := s
	if s.Products != nil {
		out.Products = make([]Product, len(s.Products))
		copy(out.Products, s.Products)
	}
	return out
}

// Find returns the product with the given id.
func (s Snapshot) Find(id string) (Product, bool) {
	for _, p := range s.Products {
		if p.ID == id {
			return p, true
		}
	}
	return Product{}, false
}

func (s Snapshot) Validate() error {
	if strings.TrimSpace(s.UserID) == "" {
		return ErrEmptyUserID
	}
	if strings.TrimSpace(s.UploadID) == "" {
		return ErrEmptyUploadID
	}
	return nil
}

func (u User) Validate() error {
	if strings.TrimSpace(u.ID) == "" {
		return ErrEmptyUserID
	}
	if strings.TrimSpace(u.Email) == "" {
		return ErrEmptyEmail
	}
	return nil
}

// Label is the name shown in the header: display name, else email.
func (u User) Label() string {
	if name := strings.TrimSpace(u.DisplayName); name != "" {
		return name
	}
	return u.Email
}
