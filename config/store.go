package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	defaultPort              = 8098
	defaultListenHost        = "127.0.0.1"
	defaultAllowedHost       = "cp.skycode.no"
	defaultAPIBaseURL        = "https://cp.skycode.no/api/v1"
	defaultAPIBasePath       = "/api/v1"
	defaultAllowedOrigin     = "https://cp.skycode.no"
	defaultBaseDir           = "/home/skycode.no/public_html/cp/"
	defaultMaxBackupVersions = 5
	defaultLockDir           = "/var/lock/skycode/"
	defaultLogDir            = "/var/log/skycode/"
	defaultLogLevel          = "info"

	DefaultConfigPath = "/etc/skypanel/config.yaml"
)

//go:generate mockgen -destination=configmocks_test.go -package=config_test github.com/skycode/skypanel/config ConfigStore
type ConfigStore interface {
	Read() (Config, error)
	ReadDefaults() Config
	Write(Config) error
}

// Ensure FileIO implements ConfigStore interface
var _ ConfigStore = &FileIO{}

type FileIO struct {
	configFilePath string
}

func New() *FileIO {
	return &FileIO{
		configFilePath: DefaultConfigPath,
	}
}

func (f *FileIO) WithConfigPath(configFilePath string) *FileIO {
	f.configFilePath = configFilePath
	return f
}

func (f *FileIO) Path() string {
	return f.configFilePath
}

func (f *FileIO) Read() (Config, error) {
	return parseFile(f.configFilePath)
}

func (f *FileIO) ReadDefaults() Config {
	return Config{
		Port:              defaultPort,
		ListenHost:        defaultListenHost,
		AllowedHost:       defaultAllowedHost,
		APIBaseURL:        defaultAPIBaseURL,
		APIBasePath:       defaultAPIBasePath,
		AllowedOrigin:     defaultAllowedOrigin,
		BaseDir:           defaultBaseDir,
		MaxBackupVersions: defaultMaxBackupVersions,
		LockDir:           defaultLockDir,
		LogDir:            defaultLogDir,
		LogLevel:          defaultLogLevel,
	}
}

func (f *FileIO) Write(config Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(f.configFilePath), 0o755); err != nil {
		return err
	}

	return os.WriteFile(f.configFilePath, data, 0644)
}

func parseFile(fileName string) (Config, error) {
	var result Config

	buf, err := os.ReadFile(fileName)
	if err != nil {
		return Config{}, err
	}

	if err := yaml.Unmarshal(buf, &result); err != nil {
		return Config{}, err
	}

	return result, nil
}
