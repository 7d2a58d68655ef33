package xid

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

// New returns a prefixed random row id, e.g. "prod-1b4e28ba-2fa1-11d2-883f-0016d3cca427".
func New(prefix string) string {
	if prefix == "" {
		return uuid.NewString()
	}
	return prefix + "-" + uuid.NewString()
}

var (
	adjectives = []string{"bubble", "shiny", "happy", "noisy", "calm", "swift", "brave", "gentle", "cosmic", "dusty"}
	colors     = []string{"cobalt", "red", "blue", "green", "yellow", "purple", "orange", "silver", "azure", "crimson"}
)

// OrderID returns a human-friendly order id such as "swift_azure_417".
// The space is small (90,000 ids); callers must check for collisions.
func OrderID() (string, error) {
	adj, err := randIndex(len(adjectives))
	if err != nil {
		return "", err
	}
	color, err := randIndex(len(colors))
	if err != nil {
		return "", err
	}
	num, err := randIndex(900)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s_%s_%d", adjectives[adj], colors[color], num+100), nil
}

func randIndex(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("read random: %w", err)
	}
	return int(v.Int64()), nil
}
