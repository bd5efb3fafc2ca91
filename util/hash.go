package util

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// SymbolID creates a deterministic identifier for a symbol based on its file
// path and dotted path.
func SymbolID(filePath, dottedPath string) string {
	input := fmt.Sprintf("%s:%s", filePath, dottedPath)
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])
}

// ProjectKey derives a short stable directory name for a project root.
func ProjectKey(rootPath string) string {
	hash := sha256.Sum256([]byte(rootPath))
	return hex.EncodeToString(hash[:])[:16]
}
