package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/joho/godotenv"
)

// LoadEnvFile reads a .env file and returns the variables as a map
func LoadEnvFile(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("env file not found: %s", path)
	}

	env, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("reading env file %s: %w", path, err)
	}

	return env, nil
}

// MergeEnv merges multiple environment maps in order, with later maps taking precedence
func MergeEnv(envMaps ...map[string]string) map[string]string {
	result := make(map[string]string)
	for _, env := range envMaps {
		for k, v := range env {
			result[k] = v
		}
	}
	return result
}

// LoadCommandEnv loads and merges environment variables for a collaborator
// command such as adb.
// Priority (lowest to highest):
// 1. Global env_file
// 2. Command env_file
// 3. Command env variables
func LoadCommandEnv(globalEnvFile, cmdEnvFile string, cmdEnv map[string]string, configDir string) (map[string]string, error) {
	var globalEnv, cmdFileEnv map[string]string
	var err error

	if globalEnvFile != "" {
		globalEnv, err = LoadEnvFile(resolvePath(globalEnvFile, configDir))
		if err != nil {
			return nil, fmt.Errorf("loading global env file: %w", err)
		}
	}

	if cmdEnvFile != "" {
		cmdFileEnv, err = LoadEnvFile(resolvePath(cmdEnvFile, configDir))
		if err != nil {
			return nil, fmt.Errorf("loading command env file: %w", err)
		}
	}

	return MergeEnv(globalEnv, cmdFileEnv, cmdEnv), nil
}

// resolvePath resolves a potentially relative path against a base directory
func resolvePath(path, baseDir string) string {
	if path == "" || filepath.IsAbs(path) || baseDir == "" {
		return path
	}
	return filepath.Join(baseDir, path)
}

// FindConfigFile searches for a config file in standard locations
func FindConfigFile() (string, error) {
	candidates := []string{
		"devlog.yaml",
		"devlog.yml",
		".devlog.yaml",
		".devlog.yml",
	}

	for _, name := range candidates {
		if _, err := os.Stat(name); err == nil {
			return name, nil
		}
	}

	return "", fmt.Errorf("no config file found (tried: %v)", candidates)
}

// CheckFilePermissions checks if a file has secure permissions.
// On Unix-like systems, it verifies the file is not world-writable.
func CheckFilePermissions(path string) error {
	if runtime.GOOS == "windows" {
		return nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("checking file permissions: %w", err)
	}

	// World-writable = others have write (0002)
	if info.Mode().Perm()&0002 != 0 {
		return fmt.Errorf("config file %s has insecure permissions: world-writable files can be modified by any user. Please run: chmod o-w %s", path, path)
	}

	return nil
}
