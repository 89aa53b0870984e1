package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cycleride/payout-be/internal/retry"
)

func validConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "payout_db",
		},
		RabbitMQ: RabbitMQConfig{
			Host:     "localhost",
			Port:     5672,
			Exchange: ExchangeConfig{Name: "payout_exchange"},
			Queue:    QueueConfig{Name: "payout_jobs"},
		},
		Dispatcher: DispatcherConfig{
			Interval:  5 * time.Second,
			BatchSize: 50,
			LockTTL:   2 * time.Minute,
		},
		Worker: WorkerConfig{
			Concurrency:     4,
			PrefetchCount:   10,
			JobTimeout:      time.Minute,
			ShutdownTimeout: 30 * time.Second,
		},
		Sweep: SweepConfig{
			StuckAfter:   10 * time.Minute,
			Interval:     5 * time.Minute,
			RetryCeiling: 3,
		},
		Processor: ProcessorConfig{
			BaseURL: "https://processor.example.com",
			Timeout: 10 * time.Second,
		},
		Ops: OpsConfig{Port: 8081},
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/valid_config.yaml",
			wantErr:  false,
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
			} else {
				require.NoError(t, err)
				require.NotNil(t, cfg)

				assert.Equal(t, "localhost", cfg.Database.Host)
				assert.Equal(t, 5432, cfg.Database.Port)
				assert.Equal(t, "payout_db", cfg.Database.Database)
				assert.Equal(t, "payout_exchange", cfg.RabbitMQ.Exchange.Name)
				assert.Equal(t, "payout_jobs", cfg.RabbitMQ.Queue.Name)
				assert.Equal(t, "payout-dispatcher-service", cfg.App.Name)
				assert.Equal(t, 50, cfg.Dispatcher.BatchSize)
				assert.Equal(t, 2*time.Minute, cfg.Dispatcher.LockTTL)
				assert.Equal(t, 10*time.Minute, cfg.Sweep.StuckAfter)
				assert.Equal(t, 8081, cfg.Ops.Port)
			}
		})
	}
}

func TestRetryPolicyConfig_Policy(t *testing.T) {
	t.Run("zero values fall back to defaults", func(t *testing.T) {
		var c RetryPolicyConfig

		assert.Equal(t, retry.DefaultPolicy(), c.Policy())
	})

	t.Run("overrides are applied", func(t *testing.T) {
		c := RetryPolicyConfig{
			MaxAttempts: 8,
			Base:        time.Second,
			MaxDelay:    time.Minute,
			Kind:        retry.KindFixed,
		}

		p := c.Policy()

		assert.Equal(t, 8, p.MaxAttempts)
		assert.Equal(t, time.Second, p.Base)
		assert.Equal(t, time.Minute, p.MaxDelay)
		assert.Equal(t, retry.KindFixed, p.Kind)
	})
}

func TestValidateDispatcherConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		errString string
	}{
		{
			name:   "valid config",
			mutate: func(*Config) {},
		},
		{
			name:      "empty database host",
			mutate:    func(c *Config) { c.Database.Host = "" },
			errString: "database host is required",
		},
		{
			name:      "invalid database port",
			mutate:    func(c *Config) { c.Database.Port = 70000 },
			errString: "invalid database port",
		},
		{
			name:      "empty rabbitmq exchange",
			mutate:    func(c *Config) { c.RabbitMQ.Exchange.Name = "" },
			errString: "rabbitmq exchange name is required",
		},
		{
			name:      "zero dispatcher interval",
			mutate:    func(c *Config) { c.Dispatcher.Interval = 0 },
			errString: "dispatcher interval must be greater than 0",
		},
		{
			name:      "zero batch size",
			mutate:    func(c *Config) { c.Dispatcher.BatchSize = 0 },
			errString: "dispatcher batch_size must be greater than 0",
		},
		{
			name:      "zero lock ttl",
			mutate:    func(c *Config) { c.Dispatcher.LockTTL = 0 },
			errString: "dispatcher lock_ttl must be greater than 0",
		},
		{
			name:      "unknown retry kind",
			mutate:    func(c *Config) { c.Dispatcher.Retry.Kind = "jittered" },
			errString: "invalid dispatcher retry policy",
		},
		{
			name:      "zero sweep interval",
			mutate:    func(c *Config) { c.Sweep.Interval = 0 },
			errString: "sweep interval must be greater than 0",
		},
		{
			name:      "invalid ops port",
			mutate:    func(c *Config) { c.Ops.Port = 0 },
			errString: "invalid ops port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.ValidateDispatcherConfig()

			if tt.errString == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			}
		})
	}
}

func TestValidateWorkerConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		errString string
	}{
		{
			name:   "valid config",
			mutate: func(*Config) {},
		},
		{
			name:      "zero concurrency",
			mutate:    func(c *Config) { c.Worker.Concurrency = 0 },
			errString: "worker concurrency must be greater than 0",
		},
		{
			name:      "zero prefetch count",
			mutate:    func(c *Config) { c.Worker.PrefetchCount = 0 },
			errString: "worker prefetch_count must be greater than 0",
		},
		{
			name:      "zero job timeout",
			mutate:    func(c *Config) { c.Worker.JobTimeout = 0 },
			errString: "worker job_timeout must be greater than 0",
		},
		{
			name:      "empty processor base url",
			mutate:    func(c *Config) { c.Processor.BaseURL = "" },
			errString: "processor base_url is required",
		},
		{
			name:      "zero stuck after",
			mutate:    func(c *Config) { c.Sweep.StuckAfter = 0 },
			errString: "sweep stuck_after must be greater than 0",
		},
		{
			name:      "zero retry ceiling",
			mutate:    func(c *Config) { c.Sweep.RetryCeiling = 0 },
			errString: "sweep retry_ceiling must be greater than 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.ValidateWorkerConfig()

			if tt.errString == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			}
		})
	}
}
