package engines

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// CanonicalInput serializes an engine input into its canonical form so that
// semantically identical inputs fingerprint identically regardless of key
// order. encoding/json emits object keys sorted, recursively, which is
// exactly the normalization we need.
func CanonicalInput(input map[string]any) (string, error) {
	if input == nil {
		input = map[string]any{}
	}
	data, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize input: %w", err)
	}
	return string(data), nil
}

// Fingerprint returns the sha256 hex digest of the canonical input. Hash
// collisions are accepted as a probabilistic risk; paranoid mode in the
// result cache verifies the canonical input on read for callers that can't
// accept it.
func Fingerprint(input map[string]any) (string, error) {
	canonical, err := CanonicalInput(input)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:]), nil
}
