package models

import "time"

// Sender represents an SMTP sending account
type Sender struct {
	ID           string    `json:"id"`
	CompanyName  string    `json:"company_name"`
	EmailAccount string    `json:"email_account"`
	SMTPEndpoint string    `json:"smtp_endpoint"`
	Port         int       `json:"port"`
	TLS          bool      `json:"tls"`
	SenderName   string    `json:"sender_name"`
	Enabled      bool      `json:"enabled"`
	// SecretSealed holds the encrypted SMTP password. It is written by the
	// store on create/update and never included in read responses.
	SecretSealed []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SenderListFilter for filtering senders
type SenderListFilter struct {
	EnabledOnly bool
	Limit       int
	Offset      int
}
