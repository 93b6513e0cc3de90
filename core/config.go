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

type (
	ServerConfig struct {
		Host               string        `mapstructure:"host"`
		Address            string        `mapstructure:"address"`
		DebugHost          string        `mapstructure:"debugHost"`
		ShutdownTimeout    time.Duration `mapstructure:"shutdownTimeout"`
		JWTExpirationDelta time.Duration `mapstructure:"jwtExpirationDelta"`
	}

	DatabaseConfig struct {
		Engine        string `mapstructure:"engine"` // postgres | sqlite3
		Host          string `mapstructure:"host"`
		Port          string `mapstructure:"port"`
		Name          string `mapstructure:"name"`
		Path          string `mapstructure:"path"` // sqlite3 only
		User          string `mapstructure:"user"`
		Password      string `mapstructure:"password"`
		AdminUser     string `mapstructure:"adminUser"`
		AdminPassword string `mapstructure:"adminPassword"`
		DisableTLS    bool   `mapstructure:"disableTLS"`
		MaxOpenConns  int    `mapstructure:"maxOpenConns"`
	}

	ProgressConfig struct {
		LogLimit       int           `mapstructure:"logLimit"`
		MaxRetries     int           `mapstructure:"maxRetries"`
		RetryBaseDelay time.Duration `mapstructure:"retryBaseDelay"`
	}

	NotifyConfig struct {
		Backends         []string `mapstructure:"backends"` // console | sendgrid | ses | webhook
		DefaultFromEmail string   `mapstructure:"defaultFromEmail"`
		SendgridApiKey   string   `mapstructure:"sendgridApiKey"`
		SESRegion        string   `mapstructure:"sesRegion"`
		WebhookURL       string   `mapstructure:"webhookURL"`
		WebhookSecret    string   `mapstructure:"webhookSecret"`
		FrontendBaseURL  string   `mapstructure:"frontendBaseURL"`
	}

	ReconcileConfig struct {
		Schedule  string        `mapstructure:"schedule"`
		BatchSize int           `mapstructure:"batchSize"`
		Window    time.Duration `mapstructure:"window"`
	}

	Config struct {
		AppName      string `mapstructure:"appName"`
		Env          string `mapstructure:"env"`
		Build        string `mapstructure:"build"`
		Debug        bool   `mapstructure:"debug"`
		TestMode     bool   `mapstructure:"testMode"`
		SecretKey    string `mapstructure:"secretKey"`
		RollbarToken string `mapstructure:"rollbarToken"`

		Server    ServerConfig    `mapstructure:"server"`
		Database  DatabaseConfig  `mapstructure:"database"`
		Progress  ProgressConfig  `mapstructure:"progress"`
		Notify    NotifyConfig    `mapstructure:"notify"`
		Reconcile ReconcileConfig `mapstructure:"reconcile"`
	}
)

func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

func (c *Config) DefaultFromEmail() mail.Address {
	return mail.Address{Name: c.AppName, Address: c.Notify.DefaultFromEmail}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("appName", "Maendeleo")
	v.SetDefault("env", "DEV")
	v.SetDefault("build", "develop")
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("secretKey", "x4d7-kq)ve2$+1m=pf&cwuh9(t!z)#*r8(#aa5^$bnlo3tek")
	v.SetDefault("rollbarToken", "")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "maendeleo")
	v.SetDefault("database.path", "maendeleo.db")
	v.SetDefault("database.user", "maendeleo")
	v.SetDefault("database.password", "maendeleo")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTLS", true)
	v.SetDefault("database.maxOpenConns", 25)

	v.SetDefault("progress.logLimit", 50)
	v.SetDefault("progress.maxRetries", 5)
	v.SetDefault("progress.retryBaseDelay", 50*time.Millisecond)

	v.SetDefault("notify.backends", []string{"console"})
	v.SetDefault("notify.defaultFromEmail", "noreply@localhost")
	v.SetDefault("notify.sendgridApiKey", "")
	v.SetDefault("notify.sesRegion", "eu-west-1")
	v.SetDefault("notify.webhookURL", "")
	v.SetDefault("notify.webhookSecret", "")
	v.SetDefault("notify.frontendBaseURL", "http://localhost:3000")

	v.SetDefault("reconcile.schedule", "@every 5m")
	v.SetDefault("reconcile.batchSize", 200)
	v.SetDefault("reconcile.window", 24*time.Hour)
}

// NewConfig loads the app Config from defaults, the environment and an optional
// config/.env.<env> file found in the working directory.
func NewConfig() *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)
	setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	case "QA", "PROD":
		v.SetDefault("debug", false)
	}
	v.SetDefault("env", env)
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	if wd, err := os.Getwd(); err == nil {
		dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
		if _, err := os.Stat(dotEnvPath); err == nil {
			if err := godotenv.Load(dotEnvPath); err != nil {
				log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
			}
		} else if !os.IsNotExist(err) {
			log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
		}
	}
	v.AutomaticEnv()

	conf := new(Config)
	if err := v.Unmarshal(conf); err != nil {
		log.Fatalf("config.Unmarshal: %v", err)
	}
	return conf
}

// NewTestConfig returns the Config used by tests: in-process defaults, no env lookups.
func NewTestConfig() *Config {
	v := viper.New()
	setDefaults(v)
	v.Set("env", "TEST")
	v.Set("testMode", true)
	v.Set("database.engine", "sqlite3")
	v.Set("database.path", ":memory:")
	v.Set("progress.retryBaseDelay", time.Millisecond)

	conf := new(Config)
	if err := v.Unmarshal(conf); err != nil {
		log.Fatalf("config.Unmarshal: %v", err)
	}
	return conf
}
