package config

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/golang/glog"
	"github.com/spf13/viper"
)

// Configuration specifies the static application config.
type Configuration struct {
	ExternalURL    string     `mapstructure:"external_url"`
	Host           string     `mapstructure:"host"`
	Port           int        `mapstructure:"port"`
	Client         HTTPClient `mapstructure:"http_client"`
	AdminPort      int        `mapstructure:"admin_port"`
	EnableGzip     bool       `mapstructure:"enable_gzip"`
	StatusResponse string     `mapstructure:"status_response"`
	// MaxRequestSize is the largest body, in bytes, accepted by the auction and cookie_sync endpoints.
	MaxRequestSize int64              `mapstructure:"max_request_size"`
	GDPR           GDPR               `mapstructure:"gdpr"`
	CCPA           CCPA               `mapstructure:"ccpa"`
	Metrics        Metrics            `mapstructure:"metrics"`
	Adapters       map[string]Adapter `mapstructure:"adapters"`
}

type HTTPClient struct {
	MaxConnsPerHost     int `mapstructure:"max_connections_per_host"`
	MaxIdleConns        int `mapstructure:"max_idle_connections"`
	MaxIdleConnsPerHost int `mapstructure:"max_idle_connections_per_host"`
	IdleConnTimeout     int `mapstructure:"idle_connection_timeout_seconds"`
}

type configErrors []error

func (c configErrors) Error() string {
	if len(c) == 0 {
		return ""
	}
	buf := bytes.Buffer{}
	buf.WriteString("validation errors are:\n\n")
	for _, err := range c {
		buf.WriteString(fmt.Sprintf("  %s\n", err.Error()))
	}
	return buf.String()
}

func (cfg *Configuration) validate() configErrors {
	var errs configErrors
	if cfg.MaxRequestSize < 0 {
		errs = append(errs, fmt.Errorf("cfg.max_request_size must be >= 0. Got %d", cfg.MaxRequestSize))
	}
	errs = cfg.GDPR.validate(errs)
	errs = cfg.Metrics.validate(errs)
	errs = validateAdapters(cfg.Adapters, errs)
	return errs
}

type GDPR struct {
	// DefaultValue is used for the "gdpr" signal when a request leaves it ambiguous.
	DefaultValue string `mapstructure:"default_value"`
}

func (cfg *GDPR) validate(errs configErrors) configErrors {
	if cfg.DefaultValue != "0" && cfg.DefaultValue != "1" {
		errs = append(errs, fmt.Errorf("gdpr.default_value must be 0 or 1"))
	}
	return errs
}

type CCPA struct {
	Enforce bool `mapstructure:"enforce"`
}

type Metrics struct {
	Influxdb   InfluxMetrics     `mapstructure:"influxdb"`
	Prometheus PrometheusMetrics `mapstructure:"prometheus"`
}

func (cfg *Metrics) validate(errs configErrors) configErrors {
	if cfg.Influxdb.Host != "" && cfg.Influxdb.MetricSendInterval <= 0 {
		errs = append(errs, errors.New("metrics.influxdb.metric_send_interval must be positive when metrics.influxdb.host is set"))
	}
	if cfg.Prometheus.Port > 0 && cfg.Prometheus.Namespace == "" {
		errs = append(errs, errors.New("metrics.prometheus.namespace must be set when metrics.prometheus.port is set"))
	}
	return errs
}

type InfluxMetrics struct {
	Host     string `mapstructure:"host"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	// MetricSendInterval is the number of seconds between pushes to InfluxDB.
	MetricSendInterval int `mapstructure:"metric_send_interval"`
}

type PrometheusMetrics struct {
	Port      int    `mapstructure:"port"`
	Namespace string `mapstructure:"namespace"`
	Subsystem string `mapstructure:"subsystem"`
}

// New uses viper to get our server configurations.
func New(v *viper.Viper) (*Configuration, error) {
	var c Configuration
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("viper failed to unmarshal app config: %v", err)
	}
	glog.Info("Logging the resolved configuration:")
	logGeneral(reflect.ValueOf(c), "  \t")
	if errs := c.validate(); len(errs) > 0 {
		return &c, errs
	}
	return &c, nil
}

// SetupViper registers the default values, the config file location and the environment
// variable prefix. Passing an empty filename skips reading a config file.
func SetupViper(v *viper.Viper, filename string) {
	if filename != "" {
		v.SetConfigName(filename)
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/config")
	}

	v.SetDefault("external_url", "http://localhost:8000")
	v.SetDefault("host", "")
	v.SetDefault("port", 8000)
	v.SetDefault("admin_port", 6060)
	v.SetDefault("enable_gzip", false)
	v.SetDefault("status_response", "")
	v.SetDefault("max_request_size", 1024*256)
	v.SetDefault("http_client.max_connections_per_host", 0) // unlimited
	v.SetDefault("http_client.max_idle_connections", 400)
	v.SetDefault("http_client.max_idle_connections_per_host", 10)
	v.SetDefault("http_client.idle_connection_timeout_seconds", 60)
	v.SetDefault("gdpr.default_value", "1")
	v.SetDefault("ccpa.enforce", false)
	v.SetDefault("metrics.influxdb.host", "")
	v.SetDefault("metrics.influxdb.database", "")
	v.SetDefault("metrics.influxdb.username", "")
	v.SetDefault("metrics.influxdb.password", "")
	v.SetDefault("metrics.influxdb.metric_send_interval", 20)
	v.SetDefault("metrics.prometheus.port", 0)
	v.SetDefault("metrics.prometheus.namespace", "")
	v.SetDefault("metrics.prometheus.subsystem", "")

	v.SetDefault("adapters.emoteev.endpoint", "{{.Host}}/api/prebid/bid")
	v.SetDefault("adapters.emoteev.usersync.iframe_url", "{{.Host}}/api/prebid/sync-iframe")
	v.SetDefault("adapters.emoteev.usersync.image_url", "{{.Host}}/api/prebid/sync-image")
	v.SetDefault("adapters.emoteev.disabled", false)
	v.SetDefault("adapters.emoteev.extra_info", "")

	// Set environment variable support:
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("PBS")
	v.AutomaticEnv()
	if filename != "" {
		if err := v.ReadInConfig(); err != nil {
			glog.Warningf("Config file %s could not be read, using defaults: %v", filename, err)
		}
	}
}
