package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"   validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Prime    PrimeConfig    `mapstructure:"prime"    validate:"required"`
	Task     TaskConfig     `mapstructure:"task"     validate:"required"`
	Snapshot SnapshotConfig `mapstructure:"snapshot"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`
}

// PrimeConfig controls how the materialized cache is recomputed.
// Schedule is a cron expression for the periodic full re-prime; an empty
// string disables the scheduler. Workers bounds how many workspaces are
// primed concurrently during a full pass.
type PrimeConfig struct {
	Workers  int    `mapstructure:"workers"  validate:"required,gte=1,lte=64"`
	Schedule string `mapstructure:"schedule"`
	Async    bool   `mapstructure:"async"`
}

// TaskConfig controls the background task runner that executes queued
// prime passes.
type TaskConfig struct {
	WorkerCount         int `mapstructure:"worker_count"           validate:"required,gte=1,lte=32"`
	QueueSize           int `mapstructure:"queue_size"             validate:"required,gte=1"`
	StuckTaskAgeMinutes int `mapstructure:"stuck_task_age_minutes" validate:"gte=1"`
}

// SnapshotConfig controls version snapshot retention per profile.
// Zero keeps every snapshot.
type SnapshotConfig struct {
	Keep int `mapstructure:"keep" validate:"gte=0"`
}
