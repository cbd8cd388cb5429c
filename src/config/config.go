package config

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/mosaicnetworks/murmur/src/common"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// DefaultConfigName is the name of the optional config file in DataDir,
// without extension (murmur.toml, murmur.yaml and murmur.json all work).
const DefaultConfigName = "murmur"

// Default configuration values.
const (
	DefaultLogLevel       = "info"
	DefaultLogFile        = ""
	DefaultInboundBuffer  = 100
	DefaultOutboundBuffer = 100
	DefaultRPCTimeout     = 16 * time.Millisecond
	DefaultRPCMaxTimeout  = 0
	DefaultRPCMaxAttempts = 0
	DefaultServiceAddr    = ""
)

// Config contains all the configuration properties of a murmur node.
type Config struct {
	// DataDir is the directory searched for the optional config file.
	DataDir string `mapstructure:"datadir" yaml:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log" yaml:"log"`

	// LogFile, when set, receives a copy of every log entry. Logs otherwise
	// go to stderr only; stdout carries protocol messages.
	LogFile string `mapstructure:"log-file" yaml:"log-file"`

	// InboundBuffer is the capacity of the queue between the stream reader
	// and the dispatcher.
	InboundBuffer int `mapstructure:"inbound-buffer" yaml:"inbound-buffer"`

	// OutboundBuffer is the capacity of the queue in front of the writer. A
	// full queue blocks senders.
	OutboundBuffer int `mapstructure:"outbound-buffer" yaml:"outbound-buffer"`

	// RPCTimeout is how long the first attempt of a request waits for its
	// reply. Every failed attempt doubles it.
	RPCTimeout time.Duration `mapstructure:"rpc-timeout" yaml:"rpc-timeout"`

	// RPCMaxTimeout caps the backoff. Zero means uncapped.
	RPCMaxTimeout time.Duration `mapstructure:"rpc-max-timeout" yaml:"rpc-max-timeout"`

	// RPCMaxAttempts bounds the number of attempts of a request. Zero means
	// retry until acknowledged.
	RPCMaxAttempts int `mapstructure:"rpc-max-attempts" yaml:"rpc-max-attempts"`

	// ServiceAddr is the address:port of the optional HTTP service. Empty
	// disables it.
	ServiceAddr string `mapstructure:"service-listen" yaml:"service-listen"`

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:        DefaultDataDir(),
		LogLevel:       DefaultLogLevel,
		LogFile:        DefaultLogFile,
		InboundBuffer:  DefaultInboundBuffer,
		OutboundBuffer: DefaultOutboundBuffer,
		RPCTimeout:     DefaultRPCTimeout,
		RPCMaxTimeout:  DefaultRPCMaxTimeout,
		RPCMaxAttempts: DefaultRPCMaxAttempts,
		ServiceAddr:    DefaultServiceAddr,
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB, level logrus.Level) *Config {
	config := NewDefaultConfig()
	config.logger = common.NewTestLogger(t, level)
	return config
}

// Validate checks the values that would otherwise make a node misbehave.
func (c *Config) Validate() error {
	if c.RPCTimeout <= 0 {
		return fmt.Errorf("rpc-timeout must be positive, got %v", c.RPCTimeout)
	}
	if c.RPCMaxTimeout < 0 {
		return fmt.Errorf("rpc-max-timeout must not be negative, got %v", c.RPCMaxTimeout)
	}
	if c.RPCMaxAttempts < 0 {
		return fmt.Errorf("rpc-max-attempts must not be negative, got %d", c.RPCMaxAttempts)
	}
	if c.InboundBuffer < 0 || c.OutboundBuffer < 0 {
		return fmt.Errorf("queue sizes must not be negative")
	}
	return nil
}

// BackoffTimeout returns the reply timeout of the given attempt, counted from
// 1: RPCTimeout doubled once per previous attempt, capped by RPCMaxTimeout
// when it is set.
func (c *Config) BackoffTimeout(attempt int) time.Duration {
	timeout := c.RPCTimeout
	for i := 1; i < attempt; i++ {
		if c.RPCMaxTimeout > 0 && timeout >= c.RPCMaxTimeout {
			break
		}
		// Stop doubling before the duration overflows.
		if timeout > time.Duration(1<<62) {
			break
		}
		timeout *= 2
	}
	if c.RPCMaxTimeout > 0 && timeout > c.RPCMaxTimeout {
		timeout = c.RPCMaxTimeout
	}
	return timeout
}

// Logger returns a formatted logrus Entry, with prefix set to "murmur". The
// logger writes to stderr, and mirrors every entry to LogFile when it is set.
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Out = os.Stderr
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)

		if c.LogFile != "" {
			c.logger.Hooks.Add(lfshook.NewHook(
				c.LogFile,
				&logrus.JSONFormatter{},
			))
		}
	}
	return c.logger.WithField("prefix", "murmur")
}

// ConfigFile returns the path searched for the optional config file, without
// extension.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, DefaultConfigName)
}

// DefaultDataDir return the default directory name for the murmur config
// file based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".Murmur")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "Murmur")
		} else {
			return filepath.Join(home, ".murmur")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.InfoLevel
	}
}
