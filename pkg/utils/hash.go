package utils

import (
	"crypto/md5"
	"fmt"
	"time"
)

func HashString(input string) string {
	hash := md5.Sum([]byte(input))
	return fmt.Sprintf("%x", hash)
}

// DocumentID derives an upload's identifier from its filename and the moment
// it was received, so re-uploading the same file yields a new document.
func DocumentID(filename string, at time.Time) string {
	return HashString(filename + at.Format(time.RFC3339Nano))
}

func ChunkID(docID string, index int) string {
	return fmt.Sprintf("%s_chunk_%d", docID, index)
}
