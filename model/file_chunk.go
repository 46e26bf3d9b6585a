package model

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// FinalContentType is the content type of every assembled recording.
	FinalContentType = "video/webm"

	chunkMarker = "_chunk_"
	finalSuffix = "_final.webm"
)

// UploadPath is the namespace prefix of a session: {ownerID}/{sessionID}.
func UploadPath(ownerID, sessionID string) string {
	return ownerID + "/" + sessionID
}

// ChunkPrefix is the key prefix shared by every chunk object of a session.
func ChunkPrefix(ownerID, sessionID string) string {
	return UploadPath(ownerID, sessionID) + chunkMarker
}

// ChunkPath is the object key of one chunk, with the index zero-padded to six digits.
func ChunkPath(ownerID, sessionID string, index int) string {
	return fmt.Sprintf("%s%06d", ChunkPrefix(ownerID, sessionID), index)
}

// FinalPath is the deterministic key of the assembled recording.
func FinalPath(ownerID, sessionID string) string {
	return UploadPath(ownerID, sessionID) + finalSuffix
}

// ParseChunkIndex extracts the numeric index from a chunk key under prefix.
// Padding is ignored; indices wider than six digits parse the same way.
func ParseChunkIndex(prefix, key string) (int, bool) {
	if !strings.HasPrefix(key, prefix) {
		return 0, false
	}
	raw := key[len(prefix):]
	if raw == "" {
		return 0, false
	}
	for _, r := range raw {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	index, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return index, true
}
