package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	defaultAppName = "courtbot"
	defaultAppMode = "dev"
	defaultOpsPort = "8080"

	defaultTimezone           = "America/Guatemala"
	defaultBookingWindowHours = 48
	defaultLastBookableHour   = 21
	defaultQueuePath          = "data/queue.json"

	defaultPollInterval    = 15 * time.Second
	defaultDispatchTimeout = 60 * time.Second
	defaultAttemptBudget   = 85 * time.Second
	defaultMaxRetries      = 10

	defaultRecoveryTimeout     = 60 * time.Second
	defaultMaxRecoveryAttempts = 4

	defaultSessionMaxAge = 60 * time.Minute

	defaultNATSSubject = "courtbot.notifications"
	defaultNATSStream  = "COURTBOT"
)

type (
	Configs struct {
		APP       AppConfig
		VENUE     VenueConfig
		QUEUE     QueueConfig
		SCHEDULER SchedulerConfig
		POOL      PoolConfig
		RECOVERY  RecoveryConfig
		NATS      NATSConfig
		TESTMODE  TestModeConfig
	}

	AppConfig struct {
		Name           string
		Mode           string `required:"true"`
		OpsPort        string `split_words:"true"`
		ProductionMode bool   `split_words:"true"`
	}

	// VenueConfig describes the booking site served by the pool.
	VenueConfig struct {
		Timezone           string
		Courts             []int
		BookingWindowHours int `split_words:"true"`
		// LastBookableHour is the venue's final bookable hour of the
		// day; past it, "today" stops being a feasible target.
		LastBookableHour   int               `split_words:"true"`
		BaseURL            string            `split_words:"true"`
		AppointmentTypeIDs map[string]string `split_words:"true"`
		ScheduleURLs       map[string]string `split_words:"true"`
	}

	QueueConfig struct {
		Path string
	}

	SchedulerConfig struct {
		PollInterval    time.Duration `split_words:"true"`
		DispatchTimeout time.Duration `split_words:"true"`
		AttemptBudget   time.Duration `split_words:"true"`
		MaxRetries      int           `split_words:"true"`
	}

	PoolConfig struct {
		SessionMaxAge time.Duration `split_words:"true"`
		Headless      bool
	}

	RecoveryConfig struct {
		Timeout     time.Duration
		MaxAttempts int `split_words:"true"`
	}

	NATSConfig struct {
		URL     string
		Stream  string
		Subject string
	}

	// TestModeConfig collapses the scheduling horizon for end-to-end drills.
	TestModeConfig struct {
		Enabled                  bool
		TriggerDelayMinutes      int  `split_words:"true"`
		RetainFailedReservations bool `split_words:"true"`
	}
)

// New populates Configs struct with defaults, then values from a .env
// file in the working directory and environment variables.
func New() (cfg Configs, err error) {
	root, err := os.Getwd()
	if err != nil {
		return
	}
	godotenv.Load(filepath.Join(root, ".env"))

	cfg.APP = AppConfig{
		Name:    defaultAppName,
		Mode:    defaultAppMode,
		OpsPort: defaultOpsPort,
	}

	cfg.VENUE = VenueConfig{
		Timezone:           defaultTimezone,
		Courts:             []int{1, 2, 3},
		BookingWindowHours: defaultBookingWindowHours,
		LastBookableHour:   defaultLastBookableHour,
		BaseURL:            "https://clublavilla.as.me",
	}

	cfg.QUEUE = QueueConfig{
		Path: defaultQueuePath,
	}

	cfg.SCHEDULER = SchedulerConfig{
		PollInterval:    defaultPollInterval,
		DispatchTimeout: defaultDispatchTimeout,
		AttemptBudget:   defaultAttemptBudget,
		MaxRetries:      defaultMaxRetries,
	}

	cfg.POOL = PoolConfig{
		SessionMaxAge: defaultSessionMaxAge,
		Headless:      true,
	}

	cfg.RECOVERY = RecoveryConfig{
		Timeout:     defaultRecoveryTimeout,
		MaxAttempts: defaultMaxRecoveryAttempts,
	}

	cfg.NATS = NATSConfig{
		URL:     "nats://127.0.0.1:4222",
		Stream:  defaultNATSStream,
		Subject: defaultNATSSubject,
	}

	if err = envconfig.Process("APP", &cfg.APP); err != nil {
		return
	}

	if err = envconfig.Process("VENUE", &cfg.VENUE); err != nil {
		return
	}

	if err = envconfig.Process("QUEUE", &cfg.QUEUE); err != nil {
		return
	}

	if err = envconfig.Process("SCHEDULER", &cfg.SCHEDULER); err != nil {
		return
	}

	if err = envconfig.Process("POOL", &cfg.POOL); err != nil {
		return
	}

	if err = envconfig.Process("RECOVERY", &cfg.RECOVERY); err != nil {
		return
	}

	if err = envconfig.Process("NATS", &cfg.NATS); err != nil {
		return
	}

	if err = envconfig.Process("TESTMODE", &cfg.TESTMODE); err != nil {
		return
	}

	return
}
