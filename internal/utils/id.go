package utils

import (
	"strings"

	"github.com/google/uuid"
)

// IDFunc produces collision-resistant unique strings. Tests swap in
// deterministic sequences.
type IDFunc func() string

func NewUUID() string {
	return uuid.New().String()
}

// DefaultNodeName returns a short random device name such as "User_3f9a1c".
func DefaultNodeName() string {
	return "User_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:6]
}
