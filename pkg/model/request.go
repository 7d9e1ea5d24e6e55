package model

import "encoding/json"

// Action names a helper operation.
type Action string

const (
	ActionToggle   Action = "toggle"
	ActionBatch    Action = "batch"
	ActionVerify   Action = "verify"
	ActionInstall  Action = "install"
	ActionRollback Action = "rollback"
	ActionList     Action = "list"
)

// Request is the single structured object a caller writes to a helper's
// standard input. Only the fields relevant to Action are read.
type Request struct {
	Action   Action            `json:"action"`
	Feature  string            `json:"feature,omitempty"`
	Enabled  bool              `json:"enabled,omitempty"`
	Toggles  []json.RawMessage `json:"toggles,omitempty"`
	Repo     string            `json:"repo,omitempty"`
	Ref      string            `json:"ref,omitempty"`
	UpdateID string            `json:"update_id,omitempty"`
}

// Response is the structured object a helper writes to standard output.
type Response struct {
	OK       bool            `json:"ok"`
	UpdateID UpdateID        `json:"update_id,omitempty"`
	Result   json.RawMessage `json:"result,omitempty"`
}
