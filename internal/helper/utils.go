package helper

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// GenerateUUID returns a random (version 4) UUID string.
func GenerateUUID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate uuid: %w", err)
	}
	return id.String(), nil
}

// ChunkID is the vector index id of the chunk at position index.
func ChunkID(index int) string {
	return fmt.Sprintf("chunk-%06d", index)
}

// PrettyPrint writes v to w as indented JSON. Non-ASCII text and markup
// are written as is.
func PrettyPrint(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
