package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

const DATABASE_TYPE = "database.type"
const DATABASE_URL = "database.url"
const DATABASE_SQLLITE_FILE_NAME = "database.sqlite_file"
const SERVER_WEB_PORT = "server.port"
const ENGINE_ESCALATION_INTERVAL = "engine.escalation_interval"
const ENGINE_BATCH_SIZE = "engine.batch_size" //number of overdue instances pulled per scheduler tick
const ENGINE_WORKERS = "engine.workers"       //number of escalation workers per tick
const ENGINE_EXECUTOR_NAME = "engine.executor_name"
const ENGINE_HEARTBEAT_INTERVAL = "engine.heartbeat_interval"
const ENGINE_CONFLICT_RETRIES = "engine.conflict_retries"
const STATS_RECONCILE_SCHEDULE = "stats.reconcile_schedule"
const STATS_RECONCILE_LOOKBACK = "stats.reconcile_lookback"
const BUSINESS_HOURS_START = "business_hours.start"
const BUSINESS_HOURS_END = "business_hours.end"
const BUSINESS_HOURS_TIMEZONE = "business_hours.timezone"
const LOG_LEVEL = "log.level"

const DATABASE_TYPE_POSTGRES = "POSTGRES"
const DATABASE_TYPE_MYSQL = "MYSQL"
const DATABASE_TYPE_SQLLITE = "SQLLITE"

const ENV_PREFIX = "AFLOW"

func init() {
	setDefaults(viper.GetViper())
}

func setDefaults(v *viper.Viper) {
	v.SetEnvPrefix(ENV_PREFIX)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault(DATABASE_TYPE, DATABASE_TYPE_SQLLITE)
	v.SetDefault(DATABASE_SQLLITE_FILE_NAME, "./approvalflow.db")
	v.SetDefault(SERVER_WEB_PORT, "8080")
	v.SetDefault(ENGINE_ESCALATION_INTERVAL, "1m")
	v.SetDefault(ENGINE_BATCH_SIZE, 100)
	v.SetDefault(ENGINE_WORKERS, 4)
	v.SetDefault(ENGINE_HEARTBEAT_INTERVAL, "30s")
	v.SetDefault(ENGINE_CONFLICT_RETRIES, 3)
	v.SetDefault(STATS_RECONCILE_SCHEDULE, "@every 5m")
	v.SetDefault(STATS_RECONCILE_LOOKBACK, "24h")
	v.SetDefault(BUSINESS_HOURS_START, 9)
	v.SetDefault(BUSINESS_HOURS_END, 17)
	v.SetDefault(BUSINESS_HOURS_TIMEZONE, "UTC")
	v.SetDefault(LOG_LEVEL, "info")
}

// Load reads an optional YAML config file on top of defaults and environment.
// Environment variables (AFLOW_DATABASE_TYPE, ...) always win over the file.
func Load(configFile string) error {
	if configFile == "" {
		return nil
	}
	viper.SetConfigFile(configFile)
	return viper.ReadInConfig()
}

func GetSystemSettingString(settingKey string) string {
	return viper.GetString(settingKey)
}

func GetSystemSettingInteger(settingKey string) int {
	return viper.GetInt(settingKey)
}

// GetSystemSettingDuration falls back to the given default when the value does not parse.
func GetSystemSettingDuration(settingKey string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(viper.GetString(settingKey))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// Set overrides a setting at runtime, used by CLI flags and tests.
func Set(settingKey string, value any) {
	viper.Set(settingKey, value)
}
