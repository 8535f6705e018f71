package main

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/agrosolutions/alert-engine/internal/rules"
	"github.com/agrosolutions/alert-engine/pkg/rabbitmq"
)

type Config struct {
	Rabbit rabbitmq.Config

	MySQLDSN string

	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string

	SensorTopic     string
	AlertTopicTmpl  string
	EvaluateTimeout time.Duration
	OutboxInterval  time.Duration

	HTTPPort int
	LogLevel string

	Rules rules.Settings
}

func envStr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envDec(key string, def decimal.Decimal) decimal.Decimal {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := decimal.NewFromString(strings.ReplaceAll(v, ",", ".")); err == nil {
			return d
		}
	}
	return def
}

func envHours(key string, def time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Hour
		}
	}
	return def
}

func loadConfig() Config {
	r := rules.DefaultSettings()
	r.DroughtThreshold = envDec("DROUGHT_THRESHOLD", r.DroughtThreshold)
	r.DroughtWindow = envHours("DROUGHT_DURATION_HOURS", r.DroughtWindow)
	r.DroughtMinSamples = envInt("DROUGHT_MIN_SAMPLES", r.DroughtMinSamples)
	r.DroughtTriggerFraction = envDec("DROUGHT_TRIGGER_FRACTION", r.DroughtTriggerFraction)
	r.DroughtClearThreshold = envDec("DROUGHT_CLEAR_THRESHOLD", r.DroughtClearThreshold)
	r.DroughtEmergencyThreshold = envDec("DROUGHT_EMERGENCY_THRESHOLD", r.DroughtEmergencyThreshold)

	r.HeatThreshold = envDec("HEAT_THRESHOLD", r.HeatThreshold)
	r.HeatWindow = envHours("HEAT_DURATION_HOURS", r.HeatWindow)
	r.HeatMinSamples = envInt("HEAT_MIN_SAMPLES", r.HeatMinSamples)
	r.HeatTriggerFraction = envDec("HEAT_TRIGGER_FRACTION", r.HeatTriggerFraction)
	r.HeatClearThreshold = envDec("HEAT_CLEAR_THRESHOLD", r.HeatClearThreshold)
	r.HeatEmergencyThreshold = envDec("HEAT_EMERGENCY_THRESHOLD", r.HeatEmergencyThreshold)

	r.PestMoistureThreshold = envDec("PEST_MOISTURE_THRESHOLD", r.PestMoistureThreshold)
	r.PestTempMin = envDec("PEST_TEMP_MIN", r.PestTempMin)
	r.PestTempMax = envDec("PEST_TEMP_MAX", r.PestTempMax)
	r.PestDedupWindow = envHours("PEST_DEDUP_WINDOW_HOURS", r.PestDedupWindow)

	return Config{
		Rabbit: rabbitmq.Config{
			Host:     envStr("RABBITMQ_HOST", "localhost"),
			Port:     envInt("RABBITMQ_PORT", 1883),
			User:     envStr("RABBITMQ_USER", "guest"),
			Password: envStr("RABBITMQ_PASSWORD", "guest"),
			ClientID: envStr("HOSTNAME", "alert-engine"),
		},

		MySQLDSN: envStr("MYSQL_DSN", "alert:alert@tcp(localhost:3306)/alerts?parseTime=true"),

		InfluxURL:    envStr("INFLUX_URL", "http://localhost:8086"),
		InfluxToken:  os.Getenv("INFLUX_TOKEN"),
		InfluxOrg:    envStr("INFLUX_ORG", "agro"),
		InfluxBucket: envStr("INFLUX_BUCKET", "reporting"),

		SensorTopic:     envStr("SENSOR_SUB_TOPIC", "sensor/data/#"),
		AlertTopicTmpl:  envStr("ALERT_TOPIC_TEMPLATE", "event/alertCreated/{plot}"),
		EvaluateTimeout: time.Duration(envInt("EVALUATE_TIMEOUT_MS", 30000)) * time.Millisecond,
		OutboxInterval:  time.Duration(envInt("OUTBOX_INTERVAL_MS", 2000)) * time.Millisecond,

		HTTPPort: envInt("HTTP_PORT", 8080),
		LogLevel: envStr("LOG_LEVEL", "info"),

		Rules: r,
	}
}
