package api

import (
	"crypto/rand"
	"math/big"
	"regexp"
)

const (
	idLength = 24
	charset  = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	responseIDPrefix     = "resp_"
	messageIDPrefix      = "msg_"
	conversationIDPrefix = "conv_"
	itemIDPrefix         = "item_"
)

var (
	responseIDPattern     = regexp.MustCompile(`^resp_[a-zA-Z0-9]{24}$`)
	conversationIDPattern = regexp.MustCompile(`^conv_[a-zA-Z0-9]{24}$`)
)

// NewResponseID generates a response ID: "resp_" followed by 24
// cryptographically random alphanumeric characters.
func NewResponseID() string {
	return responseIDPrefix + randomAlphanumeric(idLength)
}

// NewMessageID generates an output message item ID with the "msg_" prefix.
func NewMessageID() string {
	return messageIDPrefix + randomAlphanumeric(idLength)
}

// NewConversationID generates a conversation ID with the "conv_" prefix.
func NewConversationID() string {
	return conversationIDPrefix + randomAlphanumeric(idLength)
}

// NewItemID generates a conversation item ID with the "item_" prefix.
func NewItemID() string {
	return itemIDPrefix + randomAlphanumeric(idLength)
}

// ValidateResponseID checks whether id matches "resp_" + 24 alphanumerics.
func ValidateResponseID(id string) bool {
	return responseIDPattern.MatchString(id)
}

// ValidateConversationID checks whether id matches "conv_" + 24 alphanumerics.
func ValidateConversationID(id string) bool {
	return conversationIDPattern.MatchString(id)
}

func randomAlphanumeric(n int) string {
	max := big.NewInt(int64(len(charset)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic("crypto/rand failed: " + err.Error())
		}
		b[i] = charset[idx.Int64()]
	}
	return string(b)
}
