package msgstream

// Journal is the durable backing of a DurableStream: an ordered, append-only
// log of message lines that can be replayed and rewritten.
type Journal interface {
	// Load returns every line currently stored, in order. Lines are returned
	// as stored; validation is the caller's concern.
	Load() ([]string, error)
	// Append adds lines to the end of the journal.
	Append(lines []string) error
	// Rewrite replaces the whole journal with lines.
	Rewrite(lines []string) error
	Close() error
}
