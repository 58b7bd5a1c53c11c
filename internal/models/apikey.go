package models

import "time"

// APIKeyPrefix marks project API keys so they are recognizable among other secrets.
const APIKeyPrefix = "pk_"

// ProjectAPIKey grants read-only external access to one project.
type ProjectAPIKey struct {
	ID          string    `json:"id"`
	Version     int64     `json:"version"`
	ProjectID   string    `json:"projectId"`
	UserID      string    `json:"userId"` // creator
	APIKey      string    `json:"apiKey"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// APIKeyResponse is the listing form of a key; the secret is masked.
type APIKeyResponse struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	UserID      string    `json:"user_id"`
	MaskedKey   string    `json:"masked_key"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ToResponse masks the secret, keeping the prefix and the last four characters.
func (k *ProjectAPIKey) ToResponse() *APIKeyResponse {
	return &APIKeyResponse{
		ID:          k.ID,
		ProjectID:   k.ProjectID,
		UserID:      k.UserID,
		MaskedKey:   MaskAPIKey(k.APIKey),
		Description: k.Description,
		CreatedAt:   k.CreatedAt,
	}
}

// MaskAPIKey renders "pk_…abcd" for a stored key.
func MaskAPIKey(key string) string {
	if len(key) <= len(APIKeyPrefix)+4 {
		return APIKeyPrefix + "…"
	}
	return APIKeyPrefix + "…" + key[len(key)-4:]
}
