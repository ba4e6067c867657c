package msgstream

// Msg is what subscribers receive for every published message.
type Msg struct {
	ID        string `json:"id"`
	Key       string `json:"key"`
	Payload   string `json:"payload"`
	Timestamp int64  `json:"timestamp"`
}

// Subscriber receives messages published on a SubscriberStream.
// Implementations must be comparable (pointer receivers) so duplicates can be
// detected.
type Subscriber interface {
	// NewMessage delivers a published message.
	NewMessage(msg Msg) error
	// NewMessageAlert signals that a message arrived without carrying its content.
	NewMessageAlert()
}
