package backend

import (
	"context"

	"conti/internal/persist"
)

// CleanupFunc releases resources held by a backend.
type CleanupFunc func() error

// BackendResult is a ready persistence port plus what the ledger store needs
// to know about it.
type BackendResult struct {
	Port    persist.Port
	Cleanup CleanupFunc

	// ReloadBeforeMutate is set for backends that other processes may write
	// to between our mutations.
	ReloadBeforeMutate bool

	// Status is a human readable line describing where data is kept, e.g.
	// "Using local file fallback: <reason>".
	Status string
}

// Close runs Cleanup when there is one.
func (r *BackendResult) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type     BackendType
	Fallback BackendType // "" or NoBackend disables the fallback

	ReloadBeforeMutate bool

	// SQLite
	SQLiteDBPath string

	// Local file
	DataFile string

	// Google Sheets
	GoogleSpreadsheetID      string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
	GoogleExpensesSheetName  string
	GoogleMetaSheetName      string

	// Memory backend seeds its categories from this directory.
	DataDirectory string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	SheetsBackend BackendType = "sheets"
	FileBackend   BackendType = "file"
	MemoryBackend BackendType = "memory"
	NoBackend     BackendType = "none"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid reports whether bt names a primary backend.
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, SheetsBackend, FileBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

// IsRemote reports whether the backend is shared with other processes.
func (bt BackendType) IsRemote() bool {
	return bt == SheetsBackend
}
