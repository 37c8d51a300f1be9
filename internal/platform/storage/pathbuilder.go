package storage

import (
	"fmt"
	"strings"
	"time"
)

const defaultArchivePrefix = "orders/archive"

// ArchivePath is where the snapshot of a replaced order lives:
// <prefix>/<yyyy>/<mm>/<dd>/<orderID>-<unix nanos>.json (UTC). The timestamp
// suffix keeps repeated archives of the same id from overwriting each other.
func ArchivePath(prefix, orderID string, at time.Time) (string, error) {
	id, err := validateSegment("orderID", orderID)
	if err != nil {
		return "", err
	}
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = defaultArchivePrefix
	}
	if strings.Contains(prefix, "..") || strings.Contains(prefix, "\\") {
		return "", fmt.Errorf("storage: archive prefix contains invalid characters")
	}
	at = at.UTC()
	return fmt.Sprintf("%s/%s/%s-%d.json", prefix, at.Format("2006/01/02"), id, at.UnixNano()), nil
}

func validateSegment(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: %s is required", name)
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("storage: %s contains invalid path characters", name)
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: %s contains invalid traversal sequence", name)
	}
	return value, nil
}
