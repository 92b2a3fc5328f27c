package backend

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	applog "conti/internal/log"
	"conti/internal/persist"
	"conti/internal/persist/fallback"
	"conti/internal/persist/file"
	"conti/internal/persist/google"
	"conti/internal/persist/memory"
	"conti/internal/storage"
)

// reachTimeout bounds the reachability check of a remote backend.
const reachTimeout = 15 * time.Second

type sheetsOpener func(ctx context.Context, cfg google.Config) (persist.Port, error)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger     *slog.Logger
	openSheets sheetsOpener
}

var _ Factory = (*DefaultFactory)(nil)

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) *DefaultFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger.With(applog.FieldComponent, applog.ComponentBackend),
		openSheets: func(ctx context.Context, cfg google.Config) (persist.Port, error) {
			return google.New(ctx, cfg)
		},
	}
}

// CreateBackend builds the configured port. When the primary backend cannot
// be opened and a fallback is configured, the fallback is returned on its own
// and Status says why. A healthy remote primary is chained with the fallback
// so that failed saves still land locally.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	result, err := f.createPrimary(ctx, config)
	if err != nil {
		if !config.HasFallback() {
			return nil, err
		}
		f.logger.WarnContext(ctx, "Primary backend unavailable, using fallback",
			applog.FieldBackend, config.Type,
			"fallback", config.Fallback,
			applog.FieldError, err)
		secondary, err2 := f.createLocal(config.Fallback, config)
		if err2 != nil {
			return nil, fmt.Errorf("primary %s: %w; fallback %s: %w", config.Type, err, config.Fallback, err2)
		}
		secondary.Status = fmt.Sprintf("Using %s fallback: %v", describe(config.Fallback), err)
		return secondary, nil
	}

	if config.Type.IsRemote() && config.HasFallback() {
		secondary, err := f.createLocal(config.Fallback, config)
		if err != nil {
			f.logger.WarnContext(ctx, "Fallback backend unavailable, continuing without it",
				"fallback", config.Fallback,
				applog.FieldError, err)
			return result, nil
		}
		result.Port = fallback.New(result.Port, secondary.Port)
		result.Status = fmt.Sprintf("Using %s with %s fallback", describe(config.Type), describe(config.Fallback))
	}
	return result, nil
}

func (f *DefaultFactory) createPrimary(ctx context.Context, config Config) (*BackendResult, error) {
	switch config.Type {
	case SheetsBackend:
		return f.createSheetsBackend(ctx, config)
	case SQLiteBackend:
		return f.createSQLiteBackend(config)
	default:
		return f.createLocal(config.Type, config)
	}
}

func (f *DefaultFactory) createLocal(t BackendType, config Config) (*BackendResult, error) {
	switch t {
	case FileBackend:
		return f.createFileBackend(config)
	case MemoryBackend:
		return f.createMemoryBackend(config)
	case SQLiteBackend:
		return f.createSQLiteBackend(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", t)
	}
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)

	return &BackendResult{
		Port:               repo,
		Cleanup:            repo.Close,
		ReloadBeforeMutate: config.ReloadBeforeMutate,
		Status:             "Using SQLite database " + config.SQLiteDBPath,
	}, nil
}

func (f *DefaultFactory) createSheetsBackend(ctx context.Context, config Config) (*BackendResult, error) {
	port, err := f.openSheets(ctx, google.Config{
		SpreadsheetID:   config.GoogleSpreadsheetID,
		ExpensesSheet:   config.GoogleExpensesSheetName,
		MetaSheet:       config.GoogleMetaSheetName,
		CredentialsJSON: config.GoogleServiceAccountJSON,
		CredentialsFile: config.GoogleServiceAccountFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}

	checkCtx, cancel := context.WithTimeout(ctx, reachTimeout)
	defer cancel()
	if _, _, err := port.Load(checkCtx); err != nil {
		return nil, fmt.Errorf("google sheets unreachable: %w", err)
	}

	f.logger.Info("Initialized Google Sheets backend", "spreadsheet_id", config.GoogleSpreadsheetID)

	return &BackendResult{
		Port:               port,
		ReloadBeforeMutate: true,
		Status:             "Using Google Sheets",
	}, nil
}

func (f *DefaultFactory) createFileBackend(config Config) (*BackendResult, error) {
	path := config.DataFile
	if path == "" {
		path = file.DefaultPath
	}
	store := file.New(path)

	f.logger.Info("Initialized file backend", "path", store.Path())

	return &BackendResult{
		Port:               store,
		ReloadBeforeMutate: config.ReloadBeforeMutate,
		Status:             "Using local file " + store.Path(),
	}, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) (*BackendResult, error) {
	dataDir := config.DataDirectory
	if dataDir == "" {
		dataDir = "data"
	}
	store := memory.NewFromFiles(dataDir)

	f.logger.Info("Initialized memory backend", "data_directory", dataDir)

	return &BackendResult{
		Port:   store,
		Status: "Running in memory only",
	}, nil
}

func describe(t BackendType) string {
	switch t {
	case FileBackend:
		return "local file"
	case MemoryBackend:
		return "in-memory"
	case SheetsBackend:
		return "Google Sheets"
	case SQLiteBackend:
		return "SQLite"
	default:
		return string(t)
	}
}
