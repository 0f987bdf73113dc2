package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		Debug    bool   `yaml:"debug"`
	} `yaml:"telegram"`

	AdminID int64 `yaml:"admin_id"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Backup struct {
		Enabled       bool   `yaml:"enabled"`
		IntervalHours int    `yaml:"interval_hours"`
		Path          string `yaml:"path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"backup"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Sessions struct {
		Backend        string `yaml:"backend"` // memory | redis
		TimeoutMinutes int    `yaml:"timeout_minutes"`
	} `yaml:"sessions"`

	Schedule struct {
		FirstHour int       `yaml:"first_hour"`
		LastHour  int       `yaml:"last_hour"`
		Durations []float64 `yaml:"durations"`
	} `yaml:"schedule"`

	Booking struct {
		CalendarPastDays     int `yaml:"calendar_past_days"`
		CalendarFutureMonths int `yaml:"calendar_future_months"`
	} `yaml:"booking"`

	Orders struct {
		RatingMultiplier  int `yaml:"rating_multiplier"`
		DescriptionMaxLen int `yaml:"description_max_len"`
	} `yaml:"orders"`

	OBD2 struct {
		Enabled         bool   `yaml:"enabled"`
		BaseURL         string `yaml:"base_url"`
		Host            string `yaml:"host"`
		APIKey          string `yaml:"api_key"`
		CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
		TimeoutSeconds  int    `yaml:"timeout_seconds"`
	} `yaml:"obd2"`

	API struct {
		Enabled bool   `yaml:"enabled"`
		Port    int    `yaml:"port"`
		APIKey  string `yaml:"api_key"`
	} `yaml:"api"`

	Sheets struct {
		Enabled         bool   `yaml:"enabled"`
		CredentialsFile string `yaml:"credentials_file"`
		SpreadsheetID   string `yaml:"spreadsheet_id"`
		SheetName       string `yaml:"sheet_name"`
	} `yaml:"sheets"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
		GRPCHealthPort    int  `yaml:"grpc_health_port"`
	} `yaml:"monitoring"`

	Audit struct {
		Enabled       bool `yaml:"enabled"`
		RetentionDays int  `yaml:"retention_days"`
	} `yaml:"audit"`

	Reminders struct {
		Enabled              bool `yaml:"enabled"`
		CheckIntervalMinutes int  `yaml:"check_interval_minutes"`
		HoursBefore          int  `yaml:"hours_before"`
	} `yaml:"reminders"`

	WorkshopFile string `yaml:"workshop_file"`
}

var defaultDurations = []float64{0.5, 1.0, 1.5, 2.0, 2.5, 3.0}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Database.Path == "" {
		c.Database.Path = "data/carservice.db"
	}
	if c.Backup.Path == "" {
		c.Backup.Path = "data/backups"
	}
	if c.Sessions.Backend == "" {
		c.Sessions.Backend = "memory"
	}
	if c.Schedule.FirstHour == 0 && c.Schedule.LastHour == 0 {
		c.Schedule.FirstHour, c.Schedule.LastHour = 8, 24
	}
	if len(c.Schedule.Durations) == 0 {
		c.Schedule.Durations = defaultDurations
	}
	if c.Booking.CalendarPastDays <= 0 {
		c.Booking.CalendarPastDays = 30
	}
	if c.Booking.CalendarFutureMonths <= 0 {
		c.Booking.CalendarFutureMonths = 12
	}
	if c.Orders.RatingMultiplier <= 0 {
		c.Orders.RatingMultiplier = 1
	}
	if c.Orders.DescriptionMaxLen <= 0 {
		c.Orders.DescriptionMaxLen = 100
	}
	if c.OBD2.BaseURL == "" {
		c.OBD2.BaseURL = "https://car-code.p.rapidapi.com"
	}
	if c.OBD2.Host == "" {
		c.OBD2.Host = "car-code.p.rapidapi.com"
	}
	if c.Sheets.SheetName == "" {
		c.Sheets.SheetName = "Orders"
	}
	if c.Audit.RetentionDays <= 0 {
		c.Audit.RetentionDays = 180
	}
	if c.Reminders.HoursBefore <= 0 {
		c.Reminders.HoursBefore = 24
	}
	if c.WorkshopFile == "" {
		c.WorkshopFile = "configs/workshop.yaml"
	}
}

func (c *Config) SessionTimeout() time.Duration {
	if c.Sessions.TimeoutMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.Sessions.TimeoutMinutes) * time.Minute
}

func (c *Config) BackupInterval() time.Duration {
	if c.Backup.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Backup.IntervalHours) * time.Hour
}

func (c *Config) OBD2CacheTTL() time.Duration {
	if c.OBD2.CacheTTLSeconds <= 0 {
		return 7 * 24 * time.Hour
	}
	return time.Duration(c.OBD2.CacheTTLSeconds) * time.Second
}

func (c *Config) OBD2Timeout() time.Duration {
	if c.OBD2.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.OBD2.TimeoutSeconds) * time.Second
}

func (c *Config) ReminderInterval() time.Duration {
	if c.Reminders.CheckIntervalMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(c.Reminders.CheckIntervalMinutes) * time.Minute
}

func (c *Config) ReminderLead() time.Duration {
	return time.Duration(c.Reminders.HoursBefore) * time.Hour
}

func (c *Config) AuditRetention() time.Duration {
	return time.Duration(c.Audit.RetentionDays) * 24 * time.Hour
}
