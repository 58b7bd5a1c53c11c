package models

import "time"

// UserInvite is a single-use, time-limited capability that provisions a user.
type UserInvite struct {
	ID        string    `json:"id"`
	Version   int64     `json:"version"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	Token     string    `json:"token"`
	CreatedBy string    `json:"createdBy"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
	Used      bool      `json:"used"`
}

// Redeemable reports whether the invite can still be accepted at now.
func (i *UserInvite) Redeemable(now time.Time) bool {
	return !i.Used && now.Before(i.ExpiresAt)
}
