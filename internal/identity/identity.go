// Package identity derives deterministic IDs and checksums for crawl records.
// Everything here is pure and safe to call from any worker without locking.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

// MinuteBucket truncates a timestamp to its minute boundary in UTC. Two calls
// for the same triple within the same minute share a bucket and thus an ID.
func MinuteBucket(ts time.Time) time.Time {
	return ts.UTC().Truncate(time.Minute)
}

// DeriveID produces the content-addressed ID for a (subject, prompt, model,
// minute-bucket) tuple. The same logical event always yields the same ID
// across process restarts; this is the sole de-duplication mechanism.
func DeriveID(subject, promptID, model string, ts time.Time) string {
	bucket := MinuteBucket(ts).Format("2006-01-02T15:04:00Z")
	sum := sha256.Sum256([]byte(subject + "|" + promptID + "|" + model + "|" + bucket))

	// Map the first 128 bits onto a UUID-shaped identifier.
	var id uuid.UUID
	copy(id[:], sum[:16])
	return id.String()
}

// Checksum serializes a record with deterministic field ordering and hashes
// it. Used to detect whether a source record actually changed between two
// ingestion passes.
func Checksum(record any) (string, error) {
	canonical, err := canonicalize(record)
	if err != nil {
		return "", eris.Wrap(err, "identity: canonicalize record")
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// Changed reports whether two records differ by checksum.
func Changed(old, new any) (bool, error) {
	oldSum, err := Checksum(old)
	if err != nil {
		return false, err
	}
	newSum, err := Checksum(new)
	if err != nil {
		return false, err
	}
	return oldSum != newSum, nil
}

// canonicalize round-trips the record through a generic value so that
// json.Marshal emits object keys in sorted order regardless of struct field
// declaration order.
func canonicalize(record any) ([]byte, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	return json.Marshal(generic)
}
