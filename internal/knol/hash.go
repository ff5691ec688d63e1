package knol

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/conorfennell/studydeck/internal/domain"
)

// Fingerprint returns the SHA-256 digest of the serialized content as a hex string.
// It is an identity anchor for derived cards, not a security primitive.
func Fingerprint(serialized []byte) string {
	hashBytes := sha256.Sum256(serialized)
	return fmt.Sprintf("%x", hashBytes)
}

// Serialize encodes the pristine form of a document. Struct field order is
// fixed, so equal documents always produce equal bytes.
func Serialize(doc domain.Document) ([]byte, error) {
	data, err := json.Marshal(doc.Pristine())
	if err != nil {
		return nil, fmt.Errorf("failed to serialize exam document: %w", err)
	}
	return data, nil
}

// FingerprintDocument serializes a document and fingerprints it.
func FingerprintDocument(doc domain.Document) (string, error) {
	data, err := Serialize(doc)
	if err != nil {
		return "", err
	}
	return Fingerprint(data), nil
}
