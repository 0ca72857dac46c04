package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
)

// FileMetadata is the snapshot used to decide whether a cached result is
// still valid for a file.
type FileMetadata struct {
	ContentHash string
	Size        int64
	ModTime     time.Time
}

// MetadataFor computes metadata from file content and its modification time.
func MetadataFor(content []byte, modTime time.Time) FileMetadata {
	sum := sha256.Sum256(content)
	return FileMetadata{
		ContentHash: hex.EncodeToString(sum[:]),
		Size:        int64(len(content)),
		ModTime:     modTime,
	}
}

// Equal reports whether two snapshots describe the same content. When both
// carry a content hash, hash and size decide; otherwise mtime and size do.
func (m FileMetadata) Equal(o FileMetadata) bool {
	if m.Size != o.Size {
		return false
	}
	if m.ContentHash != "" && o.ContentHash != "" {
		return m.ContentHash == o.ContentHash
	}
	return m.ContentHash == "" && o.ContentHash == "" && m.ModTime.Equal(o.ModTime)
}

// Fingerprint returns a stable digest of a rule's settings. Map keys are
// ordered by encoding/json, so equal settings yield equal fingerprints.
func Fingerprint(settings map[string]any) string {
	if len(settings) == 0 {
		return "0"
	}
	return FingerprintValue(settings)
}

// FingerprintValue digests any JSON-encodable value.
func FingerprintValue(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		data = []byte(fmt.Sprintf("%v", v))
	}
	return strconv.FormatUint(xxhash.Sum64(data), 16)
}
