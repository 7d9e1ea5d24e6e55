package model

// JournalEventType identifies the kind of privileged action recorded in a journal.
type JournalEventType string

const (
	EventTypeSecurityToggle JournalEventType = "security_toggle"
	EventTypeSecurityBatch  JournalEventType = "security_batch"
	EventTypeUpdateInstall  JournalEventType = "update_install"
	EventTypeUpdateRollback JournalEventType = "update_rollback"
)

// Journal event status values.
const (
	StatusStart = "start"
	StatusOK    = "ok"
	StatusError = "error"
)

// Reserved journal entry fields.
const (
	FieldTimestamp = "ts"
	FieldPrevHash  = "prev_hash"
	FieldHash      = "hash"
)

// JournalEntry is one line of a journal (JSONL format). Event fields are
// arbitrary; ts, prev_hash and hash are reserved.
type JournalEntry map[string]any

// PrevHash returns the entry's prev_hash field, or "" if absent.
func (e JournalEntry) PrevHash() HashValue {
	s, _ := e[FieldPrevHash].(string)
	return HashValue(s)
}

// Hash returns the entry's hash field, or "" if absent.
func (e JournalEntry) Hash() HashValue {
	s, _ := e[FieldHash].(string)
	return HashValue(s)
}

// Journal verification failure reasons.
const (
	VerifyInvalidRecord    = "invalid record"
	VerifyPrevHashMismatch = "prev_hash mismatch"
	VerifyMissingHash      = "missing hash"
	VerifyHMACMismatch     = "hmac mismatch"
	VerifyKeyMissing       = "journal key missing"
)

// VerifyResult reports the outcome of replaying a journal. Line is the
// 1-based position of the first failing entry among non-blank lines.
type VerifyResult struct {
	OK      bool   `json:"ok"`
	Entries int    `json:"entries"`
	Error   string `json:"error,omitempty"`
	Line    int    `json:"line,omitempty"`
}
