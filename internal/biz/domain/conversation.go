package domain

// ChatType represents the chat type
type ChatType string

const (
	ChatTypeGroup ChatType = "group"
	ChatTypeP2P   ChatType = "p2p"
)

// IsGroup reports whether messages of this chat type are buffered for analysis
func (t ChatType) IsGroup() bool {
	return t == ChatTypeGroup
}
