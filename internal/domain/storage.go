package domain

import (
	"fmt"
	"strings"
)

// StorageKind names one of the three storage roots.
type StorageKind int

// Storage roots.
const (
	StorageLocal StorageKind = iota
	StorageShared
	StorageInterProcess
)

func (k StorageKind) String() string {
	switch k {
	case StorageLocal:
		return "local"
	case StorageShared:
		return "shared"
	case StorageInterProcess:
		return "interproc"
	}
	return fmt.Sprintf("StorageKind(%d)", int(k))
}

// ParseStorageKind parses the short storage kind names used on the command
// line and in the API.
func ParseStorageKind(s string) (StorageKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "local":
		return StorageLocal, nil
	case "shared":
		return StorageShared, nil
	case "interproc", "inter-process", "ips":
		return StorageInterProcess, nil
	}
	return 0, fmt.Errorf("unknown storage kind %q", s)
}
