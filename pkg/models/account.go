// Package models defines the core domain models for multi-account social automation.
package models

import "time"

// AccountStatus represents the operational state of a managed account.
type AccountStatus string

const (
	AccountStatusActive    AccountStatus = "active"
	AccountStatusSuspended AccountStatus = "suspended"
	AccountStatusDisabled  AccountStatus = "disabled"
)

// Account is a managed social account bound to an isolated browsing session.
// The session itself (cookies, auth state) lives behind the session
// collaborator; only identity and grouping metadata is modeled here.
type Account struct {
	ID        string        `json:"id"         validate:"required"`
	Username  string        `json:"username"   validate:"required"`
	GroupID   string        `json:"group_id,omitempty"`
	Status    AccountStatus `json:"status"`
	ProxyURL  string        `json:"proxy_url,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// HasProxy reports whether the account routes its session through a proxy.
func (a *Account) HasProxy() bool {
	return a.ProxyURL != ""
}
