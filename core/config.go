package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EngineSqlite   = "sqlite"
	EnginePostgres = "postgres"
)

type (
	serverConfig struct {
		Host                      string
		Port                      string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		ParentTokenDelta          time.Duration
		CORSOrigins               []string
		AuthRateInterval          time.Duration // one credential check per interval and client; 0 disables limiting
		AuthRateBurst             int
	}

	databaseConfig struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
		Path          string // sqlite only
	}

	otpConfig struct {
		Length      int
		TTL         time.Duration
		MaxAttempts int
	}

	kafkaConfig struct {
		Brokers []string
		Topic   string
	}

	tutorConfig struct {
		GeminiAPIKey string
		Model        string
	}

	advisorConfig struct {
		EvaluationWindow     int
		RecommendationWindow int
	}

	Config struct {
		Env                       string
		Build                     string
		Debug                     bool
		TestMode                  bool
		AppName                   string
		SecretKey                 string
		FrontendBaseURL           string
		DefaultFromEmail          mail.Address
		PasswordResetTimeoutDelta time.Duration
		SendgridApiKey            string
		RollbarToken              string

		Server   serverConfig
		Database databaseConfig
		OTP      otpConfig
		Kafka    kafkaConfig
		Tutor    tutorConfig
		Advisor  advisorConfig
	}
)

// Address returns the database host:port.
func (c databaseConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// Address returns the API server host:port.
func (c serverConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

func newViper() *viper.Viper {
	v := viper.New()

	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("build", "develop")
	v.SetDefault("appName", "LearnWise")
	v.SetDefault("secretKey", "d7o!v1k#4b^tqz0w9x%a2m8s*e6n@3r$u-j+y5l(h)c=pfg")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("defaultFromEmail", "LearnWise <noreply@localhost>")
	v.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("rollbarToken", "")

	v.SetDefault("serverHost", "0.0.0.0")
	v.SetDefault("serverPort", "8000")
	v.SetDefault("serverDebugHost", "0.0.0.0:4000")
	v.SetDefault("serverShutdownTimeout", 5*time.Second)
	v.SetDefault("jwtExpirationDelta", 4*time.Hour)
	v.SetDefault("jwtRefreshExpirationDelta", 7*24*time.Hour)
	v.SetDefault("parentTokenDelta", 1*time.Hour)
	v.SetDefault("corsOrigins", "*")
	v.SetDefault("authRateInterval", 6*time.Second)
	v.SetDefault("authRateBurst", 10)

	v.SetDefault("dbEngine", EngineSqlite)
	v.SetDefault("dbHost", "localhost")
	v.SetDefault("dbPort", "5432")
	v.SetDefault("dbName", "learnwise")
	v.SetDefault("dbUser", "learnwise")
	v.SetDefault("dbPassword", "")
	v.SetDefault("dbAdminUser", "")
	v.SetDefault("dbAdminPassword", "")
	v.SetDefault("dbDisableTLS", false)
	v.SetDefault("dbPath", "learnwise.db")

	v.SetDefault("otpLength", 6)
	v.SetDefault("otpTTL", 10*time.Minute)
	v.SetDefault("otpMaxAttempts", 3)

	v.SetDefault("kafkaBrokers", "")
	v.SetDefault("kafkaTopic", "learnwise.learning-events")

	v.SetDefault("geminiApiKey", "")
	v.SetDefault("tutorModel", "gemini-1.5-flash")

	v.SetDefault("advisorEvaluationWindow", 50)
	v.SetDefault("advisorRecommendationWindow", 100)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetDefault("env", env)
	v.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	wd, err := os.Getwd()
	if err != nil {
		log.Fatalf("config.os.Getwd(): %v", err)
	}
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()
	return v
}

// NewConfig reads the configuration from the environment.
// Every key can be overridden with an "<ENV>_<KEY>" variable, e.g. DEV_DBENGINE=postgres.
func NewConfig() *Config {
	v := newViper()

	from, err := mail.ParseAddress(v.GetString("defaultFromEmail"))
	if err != nil {
		log.Fatalf("config.defaultFromEmail: %v", err)
	}

	return &Config{
		Env:                       v.GetString("env"),
		Build:                     v.GetString("build"),
		Debug:                     v.GetBool("debug"),
		TestMode:                  v.GetBool("testMode"),
		AppName:                   v.GetString("appName"),
		SecretKey:                 v.GetString("secretKey"),
		FrontendBaseURL:           v.GetString("frontendBaseURL"),
		DefaultFromEmail:          *from,
		PasswordResetTimeoutDelta: v.GetDuration("passwordResetTimeoutDelta"),
		SendgridApiKey:            v.GetString("sendgridApiKey"),
		RollbarToken:              v.GetString("rollbarToken"),
		Server: serverConfig{
			Host:                      v.GetString("serverHost"),
			Port:                      v.GetString("serverPort"),
			DebugHost:                 v.GetString("serverDebugHost"),
			ShutdownTimeout:           v.GetDuration("serverShutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("jwtRefreshExpirationDelta"),
			ParentTokenDelta:          v.GetDuration("parentTokenDelta"),
			CORSOrigins:               splitList(v.GetString("corsOrigins")),
			AuthRateInterval:          v.GetDuration("authRateInterval"),
			AuthRateBurst:             v.GetInt("authRateBurst"),
		},
		Database: databaseConfig{
			Engine:        v.GetString("dbEngine"),
			Host:          v.GetString("dbHost"),
			Port:          v.GetString("dbPort"),
			Name:          v.GetString("dbName"),
			User:          v.GetString("dbUser"),
			Password:      v.GetString("dbPassword"),
			AdminUser:     v.GetString("dbAdminUser"),
			AdminPassword: v.GetString("dbAdminPassword"),
			DisableTLS:    v.GetBool("dbDisableTLS"),
			Path:          v.GetString("dbPath"),
		},
		OTP: otpConfig{
			Length:      v.GetInt("otpLength"),
			TTL:         v.GetDuration("otpTTL"),
			MaxAttempts: v.GetInt("otpMaxAttempts"),
		},
		Kafka: kafkaConfig{
			Brokers: splitList(v.GetString("kafkaBrokers")),
			Topic:   v.GetString("kafkaTopic"),
		},
		Tutor: tutorConfig{
			GeminiAPIKey: v.GetString("geminiApiKey"),
			Model:        v.GetString("tutorModel"),
		},
		Advisor: advisorConfig{
			EvaluationWindow:     v.GetInt("advisorEvaluationWindow"),
			RecommendationWindow: v.GetInt("advisorRecommendationWindow"),
		},
	}
}

// NewTestConfig returns a Config suitable for tests: in-memory sqlite, no external services.
func NewTestConfig() *Config {
	return &Config{
		Env:                       "TEST",
		Build:                     "test",
		TestMode:                  true,
		AppName:                   "LearnWise",
		SecretKey:                 "test-secret",
		FrontendBaseURL:           "http://localhost:3000",
		DefaultFromEmail:          mail.Address{Name: "LearnWise", Address: "noreply@localhost"},
		PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
		Server: serverConfig{
			Host:                      "127.0.0.1",
			Port:                      "0",
			ShutdownTimeout:           time.Second,
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: 24 * time.Hour,
			ParentTokenDelta:          time.Hour,
			CORSOrigins:               []string{"*"},
		},
		Database: databaseConfig{Engine: EngineSqlite, Path: ":memory:"},
		OTP:      otpConfig{Length: 6, TTL: 10 * time.Minute, MaxAttempts: 3},
		Tutor:    tutorConfig{Model: "gemini-1.5-flash"},
		Advisor:  advisorConfig{EvaluationWindow: 50, RecommendationWindow: 100},
	}
}

func splitList(s string) []string {
	var list []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	return list
}
