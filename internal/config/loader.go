package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/viper"
)

// AppName scopes config, data and log directories.
const AppName = "kaiwa"

// Options controls where Load looks for settings.
type Options struct {
	// File is an explicit config file. When empty the search dirs are used.
	File string
	// Dirs overrides the config search path.
	Dirs []string
	// EnvFiles are dotenv files loaded before the environment overlay.
	// Nil means ".env" in the working directory.
	EnvFiles []string
	Logger   *log.Logger
}

// SearchDirs returns the config search path, most specific first.
func SearchDirs() ([]string, error) {
	scope := gap.NewScope(gap.User, AppName)
	dirs, err := scope.ConfigDirs()
	if err != nil {
		return nil, fmt.Errorf("could not find configuration directory: %w", err)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, AppName)}, dirs...)
	}
	if c := os.Getenv("KAIWA_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}
	return dirs, nil
}

// DataDir returns the user data directory for databases and the disk cache.
func DataDir() (string, error) {
	scope := gap.NewScope(gap.User, AppName)
	p, err := scope.DataPath("")
	if err != nil {
		return "", fmt.Errorf("could not find data directory: %w", err)
	}
	return p, nil
}

// LogPath returns the path of the log file.
func LogPath() (string, error) {
	scope := gap.NewScope(gap.User, AppName)
	p, err := scope.LogPath(AppName + ".log")
	if err != nil {
		return "", fmt.Errorf("could not find log directory: %w", err)
	}
	return p, nil
}

// ExpandPath expands a leading ~ and environment variables.
func ExpandPath(path string) string {
	if path == "" {
		return ""
	}
	p, err := homedir.Expand(os.ExpandEnv(path))
	if err != nil {
		return path
	}
	return p
}

// Load builds the configuration: defaults, the KAIWA_PROFILE profile, the
// config file, the environment overlay, then validation. v may be nil; when
// given, the file is read into it so callers can report ConfigFileUsed.
func Load(v *viper.Viper, opts Options) (Config, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	if v == nil {
		v = viper.New()
	}

	envFiles := opts.EnvFiles
	if envFiles == nil {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("unable to load %s: %w", f, err)
		}
	}

	if err := readFile(v, opts); err != nil {
		return Config{}, err
	}
	if used := v.ConfigFileUsed(); used != "" {
		logger.Debug("using configuration file", "path", used)
	}

	cfg := Default()
	profile := os.Getenv("KAIWA_PROFILE")
	if profile == "" {
		profile = v.GetString("profile")
	}
	if err := ApplyProfile(&cfg, profile); err != nil {
		return Config{}, err
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unable to decode configuration: %w", err)
	}
	// The profile may have been overwritten by the file's own value.
	cfg.Profile = profileName(profile)

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("error parsing environment: %w", err)
	}
	cfg.Profile = profileName(cfg.Profile)

	cfg.Audio.DiskCacheDir = ExpandPath(cfg.Audio.DiskCacheDir)
	cfg.Audio.PiperBinary = ExpandPath(cfg.Audio.PiperBinary)
	cfg.Audio.PiperModel = ExpandPath(cfg.Audio.PiperModel)
	cfg.Storage.DataDir = ExpandPath(cfg.Storage.DataDir)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func profileName(p string) string {
	if p == "" {
		return ProfileDevelopment
	}
	return p
}

func readFile(v *viper.Viper, opts Options) error {
	v.SetConfigType("yaml")
	if opts.File != "" {
		v.SetConfigFile(ExpandPath(opts.File))
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("unable to read config file: %w", err)
		}
		return nil
	}

	dirs := opts.Dirs
	if dirs == nil {
		var err error
		if dirs, err = SearchDirs(); err != nil {
			return err
		}
	}
	for _, d := range dirs {
		v.AddConfigPath(d)
	}
	v.SetConfigName(AppName)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("could not parse configuration file: %w", err)
		}
	}
	return nil
}

// DefaultFile returns where a new config file is created.
func DefaultFile() (string, error) {
	dirs, err := SearchDirs()
	if err != nil {
		return "", err
	}
	return filepath.Join(dirs[0], AppName+".yml"), nil
}
