package model

import "time"

// AppliedFile is one source-to-destination copy performed by an install.
type AppliedFile struct {
	Src    string    `json:"src"`
	Dst    string    `json:"dst"`
	SHA256 HashValue `json:"sha256"`
}

// UpdateState is persisted per update identifier and read back by rollback.
type UpdateState struct {
	UpdateID  UpdateID      `json:"update_id"`
	Repo      string        `json:"repo,omitempty"`
	Ref       string        `json:"ref,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	Copied    []AppliedFile `json:"copied"`
}

// InstallResult is returned by a successful install.
type InstallResult struct {
	UpdateID UpdateID      `json:"update_id"`
	Copied   []AppliedFile `json:"copied"`
}

// RollbackResult lists the destinations actually restored.
type RollbackResult struct {
	UpdateID UpdateID `json:"update_id"`
	Restored []string `json:"restored"`
}

// UpdateSummary describes a persisted install for listing.
type UpdateSummary struct {
	UpdateID  UpdateID  `json:"update_id"`
	Repo      string    `json:"repo,omitempty"`
	Ref       string    `json:"ref,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Files     int       `json:"files"`
}
