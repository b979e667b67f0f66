package config

import (
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	Port     int
	LogLevel string
	Env      string

	// Database
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Redis config (rate limiting + campaign dispatch locks)
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int

	// VAPID keys for Web Push
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubject    string // mailto: contact required by the push services

	// AWS services
	AWSRegion    string
	SESFromEmail string

	// SQS analytics stream
	SQSRegion   string
	SQSQueueURL string

	// WhatsApp (UltraMsg) sink
	UltraMsgInstanceID string
	UltraMsgToken      string

	// Scheduler for deferred campaigns
	SchedulerPollSeconds int
	SchedulerBatchSize   int

	// Rate limit for the public API (requests per minute per IP)
	RateLimitPerMinute int
}

// Load reads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	cfg := &Config{
		Port:     8080,
		LogLevel: "info",
		Env:      "development",

		// Local postgres defaults
		DBHost:     "localhost",
		DBPort:     5432,
		DBUser:     "poupapush",
		DBPassword: "",
		DBName:     "poupapush",
		DBSSLMode:  "disable",

		// Redis defaults
		RedisHost:     "localhost",
		RedisPort:     6379,
		RedisPassword: "",
		RedisDB:       0,

		VAPIDSubject: "mailto:contato@poupagenda.site",

		AWSRegion:    "us-east-1",
		SESFromEmail: "noreply@poupagenda.site",

		SchedulerPollSeconds: 30,
		SchedulerBatchSize:   10,
		RateLimitPerMinute:   120,
	}

	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
		cfg.Port = p
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if env := os.Getenv("ENV"); env != "" {
		cfg.Env = env
	}

	// Database config
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.DBHost = host
	}

	if port := os.Getenv("DB_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid DB_PORT: %w", err)
		}
		cfg.DBPort = p
	}

	if user := os.Getenv("DB_USER"); user != "" {
		cfg.DBUser = user
	}

	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.DBPassword = password
	}

	if dbname := os.Getenv("DB_NAME"); dbname != "" {
		cfg.DBName = dbname
	}

	if sslmode := os.Getenv("DB_SSLMODE"); sslmode != "" {
		cfg.DBSSLMode = sslmode
	}

	// Redis config
	if host := os.Getenv("REDIS_HOST"); host != "" {
		cfg.RedisHost = host
	}

	if port := os.Getenv("REDIS_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_PORT: %w", err)
		}
		cfg.RedisPort = p
	}

	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.RedisPassword = password
	}

	if db := os.Getenv("REDIS_DB"); db != "" {
		d, err := strconv.Atoi(db)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
		}
		cfg.RedisDB = d
	}

	// VAPID keys. Without them the push path degrades to the log sender,
	// the API surface keeps working.
	cfg.VAPIDPublicKey = os.Getenv("VAPID_PUBLIC_KEY")
	cfg.VAPIDPrivateKey = os.Getenv("VAPID_PRIVATE_KEY")
	if subject := os.Getenv("VAPID_SUBJECT"); subject != "" {
		cfg.VAPIDSubject = subject
	}

	if region := os.Getenv("AWS_REGION"); region != "" {
		cfg.AWSRegion = region
	}

	if from := os.Getenv("SES_FROM_EMAIL"); from != "" {
		cfg.SESFromEmail = from
	}

	// SQS config
	if region := os.Getenv("SQS_REGION"); region != "" {
		cfg.SQSRegion = region
	} else {
		cfg.SQSRegion = cfg.AWSRegion
	}

	if url := os.Getenv("SQS_QUEUE_URL"); url != "" {
		cfg.SQSQueueURL = url
	}

	cfg.UltraMsgInstanceID = os.Getenv("ULTRAMSG_INSTANCE_ID")
	cfg.UltraMsgToken = os.Getenv("ULTRAMSG_TOKEN")

	if poll := os.Getenv("SCHEDULER_POLL_SECONDS"); poll != "" {
		p, err := strconv.Atoi(poll)
		if err != nil {
			return nil, fmt.Errorf("invalid SCHEDULER_POLL_SECONDS: %w", err)
		}
		cfg.SchedulerPollSeconds = p
	}

	if batch := os.Getenv("SCHEDULER_BATCH_SIZE"); batch != "" {
		b, err := strconv.Atoi(batch)
		if err != nil {
			return nil, fmt.Errorf("invalid SCHEDULER_BATCH_SIZE: %w", err)
		}
		cfg.SchedulerBatchSize = b
	}

	if limit := os.Getenv("RATE_LIMIT_PER_MINUTE"); limit != "" {
		l, err := strconv.Atoi(limit)
		if err != nil {
			return nil, fmt.Errorf("invalid RATE_LIMIT_PER_MINUTE: %w", err)
		}
		cfg.RateLimitPerMinute = l
	}

	return cfg, nil
}
