package config

import (
	"os"
	"reflect"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const EnvPrefix = "SKYPANEL_"

type Manager struct {
	configStore ConfigStore
	Config      Config
}

// NewManager starts from the store defaults and overlays every non-zero value
// found in the user's config file. A missing or unreadable file keeps the defaults.
func NewManager(cs ConfigStore) *Manager {
	configuration := cs.ReadDefaults()

	userConfig, err := cs.Read()
	if err == nil {
		configuration = replaceByConfigFile(configuration, userConfig)
	}

	return &Manager{configStore: cs, Config: configuration}
}

// WithEnvironment overlays SKYPANEL_<YAML_TAG> variables, e.g. SKYPANEL_LOCK_DIR.
func (c *Manager) WithEnvironment() *Manager {
	c.Config = replaceByEnvironment(c.Config)
	return c
}

// Load validates the layered configuration and returns it as an immutable value.
func (c *Manager) Load() (Config, error) {
	if err := c.Config.Validate(); err != nil {
		return Config{}, err
	}
	return c.Config, nil
}

// ShowConfig serializes the current configuration to a YAML string.
func (c *Manager) ShowConfig() (string, error) {
	data, err := yaml.Marshal(c.Config)
	if err != nil {
		return "", err
	}

	return string(data), nil
}

// Save persists the current configuration through the underlying store.
func (c *Manager) Save() error {
	return c.configStore.Write(c.Config)
}

func replaceByConfigFile(defaultConfig, userConfig Config) Config {
	t := reflect.TypeOf(defaultConfig)
	vDefault := reflect.ValueOf(&defaultConfig).Elem()
	vUser := reflect.ValueOf(userConfig)

	for i := 0; i < t.NumField(); i++ {
		defaultField := vDefault.Field(i)
		userField := vUser.Field(i)

		switch defaultField.Kind() {
		case reflect.String:
			if userStr := userField.String(); userStr != "" {
				defaultField.SetString(userStr)
			}
		case reflect.Int:
			if userInt := int(userField.Int()); userInt != 0 {
				defaultField.SetInt(int64(userInt))
			}
		}
	}

	return defaultConfig
}

func replaceByEnvironment(configuration Config) Config {
	t := reflect.TypeOf(configuration)
	v := reflect.ValueOf(&configuration).Elem()

	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("yaml")
		if tag == "" {
			continue
		}

		if value := os.Getenv(EnvPrefix + strings.ToUpper(tag)); value != "" {
			field := v.Field(i)

			switch field.Kind() {
			case reflect.String:
				field.SetString(value)
			case reflect.Int:
				// malformed numbers are ignored rather than zeroing a locked value
				if intValue, err := strconv.Atoi(value); err == nil {
					field.SetInt(int64(intValue))
				}
			}
		}
	}

	return configuration
}
