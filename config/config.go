package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

//go:embed config.yml
var embeddedConfig []byte

type Config struct {
	Mode         string `mapstructure:"mode"`
	Dotenv       string `mapstructure:"dotenv"`
	Repositories struct {
		Postgres struct {
			Host              string `mapstructure:"host"`
			Password          string `mapstructure:"password"`
			Port              string `mapstructure:"port"`
			Username          string `mapstructure:"username"`
			DB                string `mapstructure:"db"`
			SSLMODE           string `mapstructure:"SSLMODE"`
			MAXCONWAITINGTIME int    `mapstructure:"MAXCONWAITINGTIME"`
		} `mapstructure:"postgres"`
		Redis struct {
			Host     string `mapstructure:"host"`
			Port     string `mapstructure:"port"`
			Password string `mapstructure:"password"`
			DB       int    `mapstructure:"db"`
		} `mapstructure:"redis"`
	} `mapstructure:"repositories"`
	Password PasswordConfig `mapstructure:"password"`
	Breach   BreachConfig   `mapstructure:"breach"`
}

// PasswordConfig carries the password policy thresholds plus hashing and
// validation-cache settings.
type PasswordConfig struct {
	MinLength           int           `mapstructure:"minLength"`
	MinUppercase        int           `mapstructure:"minUppercase"`
	MinLowercase        int           `mapstructure:"minLowercase"`
	MinDigits           int           `mapstructure:"minDigits"`
	MinSpecial          int           `mapstructure:"minSpecial"`
	MaxRepeating        int           `mapstructure:"maxRepeating"`
	MaxSequential       int           `mapstructure:"maxSequential"`
	SimilarityThreshold float64       `mapstructure:"similarityThreshold"`
	SpecialCharacters   string        `mapstructure:"specialCharacters"`
	BcryptCost          int           `mapstructure:"bcryptCost"`
	CacheBackend        string        `mapstructure:"cacheBackend"`
	CacheTTL            time.Duration `mapstructure:"cacheTTL"`
}

type BreachConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// setDefaults keeps the policy intact when a config file only sets some of
// its keys. Explicit zeros in the file still win.
func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "development")
	v.SetDefault("repositories.postgres.SSLMODE", "disable")
	v.SetDefault("repositories.postgres.MAXCONWAITINGTIME", 10)

	v.SetDefault("password.minLength", 12)
	v.SetDefault("password.minUppercase", 1)
	v.SetDefault("password.minLowercase", 1)
	v.SetDefault("password.minDigits", 1)
	v.SetDefault("password.minSpecial", 1)
	v.SetDefault("password.maxRepeating", 3)
	v.SetDefault("password.maxSequential", 3)
	v.SetDefault("password.similarityThreshold", 0.7)
	v.SetDefault("password.specialCharacters", `!@#$%^&*(),.?":{}|<>`)
	v.SetDefault("password.bcryptCost", 10)
	v.SetDefault("password.cacheBackend", "memory")
	v.SetDefault("password.cacheTTL", 5*time.Minute)

	v.SetDefault("breach.enabled", false)
	v.SetDefault("breach.endpoint", "https://api.pwnedpasswords.com/range/")
	v.SetDefault("breach.timeout", 5*time.Second)
}

func InitConfig() (Config, error) {
	var config Config
	v := viper.New()
	setDefaults(v)

	// Add file-based config paths
	v.AddConfigPath(".")
	v.AddConfigPath("config")
	v.AddConfigPath("/app/config")
	v.AddConfigPath("/usr/local/bin")
	v.AddConfigPath("/usr/local/bin/gearguard")

	v.SetConfigName("config")
	v.SetConfigType("yml")

	// GEARGUARD_PASSWORD_MINLENGTH overrides password.minLength, and so on
	v.SetEnvPrefix("GEARGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Try to load file-based config
	err := v.ReadInConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to find file-based config: %s. Falling back to embedded config.\n", err)
		if err = v.ReadConfig(bytes.NewReader(embeddedConfig)); err != nil {
			return Config{}, fmt.Errorf("failed to read embedded config: %s", err)
		}
	}

	// Unmarshal the config into the Config struct
	if err = v.Unmarshal(&config); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %s", err)
	}
	return config, nil
}

// Embedded returns the configuration compiled into the binary, ignoring files
// and the environment.
func Embedded() (Config, error) {
	var config Config
	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yml")
	if err := v.ReadConfig(bytes.NewReader(embeddedConfig)); err != nil {
		return Config{}, fmt.Errorf("failed to read embedded config: %w", err)
	}
	if err := v.Unmarshal(&config); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return config, nil
}
