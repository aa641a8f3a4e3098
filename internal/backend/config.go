package backend

import (
	"fmt"

	"moneta/internal/config"
)

// FromAppConfig converts the application config to backend config. Sheets
// credentials are read here so a missing key file fails before any sync runs.
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := Type(appConfig.CloudBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.CloudBackend)
	}

	cfg := Config{
		Type:                  backendType,
		GoogleSpreadsheetID:   appConfig.GoogleSpreadsheetID,
		GoogleUsersSheet:      appConfig.GoogleUsersSheet,
		GoogleCategoriesSheet: appConfig.GoogleCategoriesSheet,
		GoogleAssetsSheet:     appConfig.GoogleAssetsSheet,
	}

	if backendType == SheetsBackend {
		creds, err := appConfig.GoogleCredentials()
		if err != nil {
			return Config{}, fmt.Errorf("load google credentials: %w", err)
		}
		cfg.GoogleCredentialsJSON = creds
	}

	return cfg, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}

	if c.Type == SheetsBackend {
		if c.GoogleSpreadsheetID == "" {
			return fmt.Errorf("Google Spreadsheet ID is required for sheets backend")
		}
		if len(c.GoogleCredentialsJSON) == 0 {
			return fmt.Errorf("Google service account credentials are required for sheets backend")
		}
	}

	return nil
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []Type {
	return []Type{MemoryBackend, SheetsBackend}
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
