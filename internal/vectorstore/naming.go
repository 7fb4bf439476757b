package vectorstore

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// collectionPrefix starts every collection name this package creates.
const collectionPrefix = "repo__"

// pointNamespace seeds deterministic point UUIDs.
var pointNamespace = uuid.MustParse("6f1c2a4e-8b0d-5e7f-9a3c-2d4b6e8f0a1c")

var nameEscaper = strings.NewReplacer("_", "_5f", "/", "__")

// CollectionName maps a repository name to its collection.
// "_" becomes "_5f" and "/" becomes "__", so distinct repositories never
// share a collection: "facebook/react" gives "repo__facebook__react".
func CollectionName(repo string) (string, error) {
	if strings.TrimSpace(repo) == "" {
		return "", ErrInvalidRepoName
	}
	return collectionPrefix + nameEscaper.Replace(repo), nil
}

// DocumentID returns the stored ID of a chunk.
func DocumentID(repo string, globalID int) string {
	return repo + "::" + strconv.Itoa(globalID)
}

// PointUUID derives a stable UUID from a document ID, for engines that only
// accept UUID or integer keys.
func PointUUID(docID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(docID)).String()
}

// parseDocumentID splits a document ID back into repository and chunk ID.
func parseDocumentID(id string) (string, int, error) {
	i := strings.LastIndex(id, "::")
	if i < 0 {
		return "", 0, fmt.Errorf("malformed document id %q", id)
	}
	n, err := strconv.Atoi(id[i+2:])
	if err != nil {
		return "", 0, fmt.Errorf("malformed document id %q: %w", id, err)
	}
	return id[:i], n, nil
}
