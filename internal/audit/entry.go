package audit

// TimestampFormat is the layout of Entry.Timestamp.
const TimestampFormat = "2006-01-02T15:04:05.000Z"

// Entry is one line of the audit trail: a single change to a guarded field of
// an event carrier. All fields are plain strings so json.Marshal output is
// stable and the hash chain is reproducible.
type Entry struct {
	Timestamp string `json:"ts"`
	ID        string `json:"id"`
	Event     string `json:"event"`
	Field     string `json:"field"`
	Caller    string `json:"caller"`
	Subject   string `json:"subject,omitempty"`
	Old       string `json:"old"`
	New       string `json:"new"`
	Message   string `json:"message"`
	PrevHash  string `json:"prev_hash"`
}

// Sink stores audit entries durably.
type Sink interface {
	Record(Entry) error
	Close() error
}
