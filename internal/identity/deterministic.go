package identity

import (
	"strings"
	"time"

	hashid "github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
)

// UUID derives a deterministic UUID from a stable key using go-hashid.
//
// Callers must ensure key construction prevents cross-entity collisions (prefix by domain/type).
func UUID(key string) uuid.UUID {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return uuid.Nil
	}
	uid, err := hashid.NewUUID(trimmed, hashid.WithHashAlgorithm(hashid.SHA256), hashid.WithNormalization(true))
	if err != nil || uid == uuid.Nil {
		return uuid.NewSHA1(uuid.NameSpaceOID, []byte(trimmed))
	}
	return uid
}

// DocumentUUID identifies a document of a collection across runs.
func DocumentUUID(collection, id string) uuid.UUID {
	return UUID("contentpack:document:" + strings.TrimSpace(collection) + ":" + strings.TrimSpace(id))
}

// RunUUID identifies one pipeline run of a collection.
func RunUUID(collection string, started time.Time) uuid.UUID {
	return UUID("contentpack:run:" + strings.TrimSpace(collection) + ":" + started.UTC().Format(time.RFC3339Nano))
}
