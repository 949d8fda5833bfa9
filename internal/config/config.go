package config

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	Database struct {
		Host               string `json:"host"`
		Port               uint64 `json:"port"`
		Username           string `json:"username"`
		Password           string `json:"password"`
		Database           string `json:"database"`
		ReplicaSet         string `json:"replica_set"`
		UseTLS             bool   `json:"use_tls"`
		ConnectTimeout     string `json:"connect_timeout"`
		SocketTimeout      string `json:"socket_timeout"`
		ConnectIdleTimeout string `json:"connect_idle_timeout"`
		OperationTimeout   string `json:"operation_timeout"`
		Heartbeat          string `json:"heartbeat"`
		MinPoolSize        uint64 `json:"min_pool_size"`
		MaxPoolSize        uint64 `json:"max_pool_size"`
	} `json:"database"`
	DebugMode   bool   `json:"debug_mode"`
	AppName     string `json:"app_name"`
	MetricsAddr string `json:"metrics_addr"`
}

var config Config
var initialized = false

func ReadConfig() (Config, error) {
	bytes, err := os.ReadFile("config.json")

	if err != nil {
		writer, _ := os.OpenFile("config.json", os.O_RDONLY|os.O_CREATE, 0777)
		data, _ := json.MarshalIndent(config, "", "\t")
		_, _ = writer.Write(data)
		_ = writer.Close()
		return config, errors.New("the configuration file does not exist and has been created. Please try again after editing the configuration file")
	}

	err = json.Unmarshal(bytes, &config)

	if err != nil {
		return config, errors.New("the configuration file does not contain valid JSON")
	}

	applyEnvOverrides(&config)

	initialized = true
	return config, nil
}

// Credentials are overridable from the environment so config.json can be
// committed without secrets. A local .env file is loaded first when present.
func applyEnvOverrides(cfg *Config) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	if v, ok := os.LookupEnv("SESSION_STORE_DB_USERNAME"); ok {
		cfg.Database.Username = v
	}
	if v, ok := os.LookupEnv("SESSION_STORE_DB_PASSWORD"); ok {
		cfg.Database.Password = v
	}
	if v, ok := os.LookupEnv("SESSION_STORE_DB_HOST"); ok {
		cfg.Database.Host = v
	}
}

func GetConfig() (Config, error) {
	if initialized {
		return config, nil
	}
	return ReadConfig()
}
