package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/ini.v1"

	"proxynexus/internal/shared/types"
)

// LoadIni loads the poold.ini behavior config onto cfg. Missing file is
// not an error; defaults apply.
func LoadIni(cfg *types.Config, fileName string) error {
	iniFile, err := ini.Load(fileName)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := iniFile.MapTo(cfg); err != nil {
		return err
	}
	overrideFromEnvString(&cfg.LogConf.Level, "POOLD_LOG_LEVEL")
	overrideFromEnvString(&cfg.StoreConf.StateDir, "POOLD_STATE_DIR")
	overrideFromEnvInt(&cfg.OrchestratorConf.Workers, "POOLD_WORKERS")
	return nil
}

// LoadSources loads the sources.json data file. A missing file yields an
// empty list, not an error; a malformed file is fatal to the caller.
func LoadSources(fileName string) ([]*types.SourceProfile, error) {
	data, err := os.ReadFile(fileName)
	if err != nil {
		if os.IsNotExist(err) {
			return []*types.SourceProfile{}, nil
		}
		return nil, fmt.Errorf("failed to read sources file: %w", err)
	}

	var profiles []*types.SourceProfile
	if err := json.Unmarshal(data, &profiles); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sources.json: %w", err)
	}
	return profiles, nil
}

// SaveSources writes the source profile list back to sources.json.
func SaveSources(fileName string, profiles []*types.SourceProfile) error {
	data, err := json.MarshalIndent(profiles, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal source profiles: %w", err)
	}
	return os.WriteFile(fileName, data, 0644)
}

func overrideFromEnvString(target *string, envName string) {
	if envValue := os.Getenv(envName); envValue != "" {
		*target = envValue
	}
}

func overrideFromEnvInt(target *int, envName string) {
	envValue := os.Getenv(envName)
	if envValue != "" {
		if intValue, err := strconv.Atoi(envValue); err == nil {
			*target = intValue
		}
	}
}
