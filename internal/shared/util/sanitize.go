package util

import (
	"errors"
	"strings"
)

// CleanObjectKey normalizes a storage key and rejects traversal patterns.
func CleanObjectKey(key string) (string, error) {
	s := strings.TrimSpace(key)
	s = strings.TrimPrefix(s, "/")
	if s == "" {
		return "", errors.New("invalid storage key")
	}
	if strings.Contains(s, "..") || strings.Contains(s, "\\") {
		return "", errors.New("invalid storage key")
	}
	return s, nil
}
