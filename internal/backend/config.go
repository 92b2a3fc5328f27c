package backend

import (
	"errors"
	"fmt"

	"conti/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, errors.New("app config is nil")
	}

	backendType := BackendType(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}

	return Config{
		Type:     backendType,
		Fallback: BackendType(appConfig.FallbackBackend),

		ReloadBeforeMutate: appConfig.ReloadBeforeMutate || backendType.IsRemote(),

		SQLiteDBPath: appConfig.SQLiteDBPath,
		DataFile:     appConfig.DataFile,

		GoogleSpreadsheetID:      appConfig.GoogleSpreadsheetID,
		GoogleServiceAccountJSON: appConfig.GoogleServiceAccountJSON,
		GoogleServiceAccountFile: appConfig.GoogleServiceAccountFile,
		GoogleExpensesSheetName:  appConfig.GoogleExpensesSheetName,
		GoogleMetaSheetName:      appConfig.GoogleMetaSheetName,

		DataDirectory: appConfig.DataDirectory,
	}, nil
}

// MirrorFromAppConfig returns the config of the mirror backend, or false when
// no mirror is configured.
func MirrorFromAppConfig(appConfig *config.Config) (Config, bool, error) {
	if appConfig == nil || appConfig.MirrorBackend == "" {
		return Config{}, false, nil
	}
	mirror := *appConfig
	mirror.DataBackend = appConfig.MirrorBackend
	mirror.FallbackBackend = string(NoBackend)
	cfg, err := FromAppConfig(&mirror)
	if err != nil {
		return Config{}, false, err
	}
	cfg.ReloadBeforeMutate = false
	return cfg, true, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}
	switch c.Fallback {
	case "", NoBackend, FileBackend, MemoryBackend:
	default:
		return fmt.Errorf("invalid fallback backend: %s", c.Fallback)
	}

	switch c.Type {
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			return errors.New("SQLite database path is required for sqlite backend")
		}
	case SheetsBackend:
		if c.GoogleSpreadsheetID == "" {
			return errors.New("Google Spreadsheet ID is required for sheets backend")
		}
	case FileBackend:
		if c.DataFile == "" {
			return errors.New("data file is required for file backend")
		}
	}
	if c.Fallback == FileBackend && c.DataFile == "" {
		return errors.New("data file is required for the file fallback")
	}
	return nil
}

// HasFallback reports whether a secondary backend is configured.
func (c Config) HasFallback() bool {
	return c.Fallback != "" && c.Fallback != NoBackend && c.Fallback != c.Type
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{SQLiteBackend, SheetsBackend, FileBackend, MemoryBackend}
}

// GetBackendTypeStrings returns all valid backend type strings
func GetBackendTypeStrings() []string {
	types := GetBackendTypes()
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = t.String()
	}
	return out
}
