package config

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads a hookall configuration file. An empty path returns Default().
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}

	cfg, err := Parse(data, filepath.Dir(absPath))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	cfg.Source = absPath
	return cfg, nil
}

// Parse decodes a configuration document. Relative paths are resolved against
// baseDir.
func Parse(data []byte, baseDir string) (*Config, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if raw != nil {
		if err := validateAgainstSchema(raw); err != nil {
			return nil, err
		}
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	var cfg Config
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode: %w", err)
	}

	expandAll(cfg.Lister.Command)
	expandAll(cfg.Launcher.Command)
	expandAll(cfg.Launcher.Scripts)

	if cfg.Launcher.Workdir != "" {
		cfg.Launcher.Workdir = resolvePath(baseDir, os.ExpandEnv(cfg.Launcher.Workdir))
	} else {
		// Without a workdir the child inherits our cwd, so anchor relative
		// scripts to the config file instead.
		for i, script := range cfg.Launcher.Scripts {
			if script != "" {
				cfg.Launcher.Scripts[i] = resolvePath(baseDir, script)
			}
		}
	}

	env, err := mergeEnv(&cfg.Launcher, baseDir)
	if err != nil {
		return nil, err
	}
	cfg.Launcher.Env = env

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func expandAll(args []string) {
	for i, arg := range args {
		args[i] = os.ExpandEnv(arg)
	}
}

func resolvePath(base, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Clean(filepath.Join(base, path))
}

func mergeEnv(spec *LauncherSpec, baseDir string) (map[string]string, error) {
	var merged map[string]string
	if spec.EnvFromFile != "" {
		spec.EnvFromFile = resolvePath(baseDir, os.ExpandEnv(spec.EnvFromFile))
		fileEnv, err := loadEnvFile(spec.EnvFromFile)
		if err != nil {
			return nil, fmt.Errorf("launcher.envFromFile: %w", err)
		}
		if len(fileEnv) > 0 {
			merged = make(map[string]string, len(fileEnv)+len(spec.Env))
			for k, v := range fileEnv {
				merged[k] = v
			}
		}
	}
	if len(spec.Env) > 0 {
		if merged == nil {
			merged = make(map[string]string, len(spec.Env))
		}
		for k, v := range spec.Env {
			merged[k] = os.ExpandEnv(v)
		}
	}
	return merged, nil
}

// loadEnvFile parses KEY=VALUE lines. Blank lines, # comments and an optional
// "export " prefix are accepted; values may be single or double quoted.
func loadEnvFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load env file %q: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	values := make(map[string]string)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))

		key, value, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("load env file %q: invalid line %d", path, lineNo)
		}
		value = strings.TrimSpace(value)

		switch {
		case strings.HasPrefix(value, `"`):
			unquoted, err := strconv.Unquote(value)
			if err != nil {
				return nil, fmt.Errorf("load env file %q: parse value for %s on line %d: %w", path, key, lineNo, err)
			}
			value = unquoted
		case strings.HasPrefix(value, "'"):
			if len(value) < 2 || !strings.HasSuffix(value, "'") {
				return nil, fmt.Errorf("load env file %q: unmatched quote on line %d", path, lineNo)
			}
			value = value[1 : len(value)-1]
		default:
			if idx := strings.IndexByte(value, '#'); idx >= 0 {
				value = strings.TrimSpace(value[:idx])
			}
		}
		values[key] = os.ExpandEnv(value)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("load env file %q: %w", path, err)
	}
	return values, nil
}
