package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// ResultHash produces a stable digest of a processing result, stored in the
// idempotency ledger so a redelivered event can return the prior outcome
func ResultHash(parts ...interface{}) (string, error) {
	h := sha256.New()
	for _, part := range parts {
		data, err := json.Marshal(part)
		if err != nil {
			return "", fmt.Errorf("failed to marshal hash input: %w", err)
		}
		h.Write(data)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
