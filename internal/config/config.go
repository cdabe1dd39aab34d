// Package config provides functionality for managing configuration options
// for the tmhi client and the gateway simulator using command-line flags,
// an optional JSON config file and environment variables.
//
// Precedence, lowest first: defaults, config file, flags, environment.
package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"
)

// Client commands.
const (
	CommandLogin  = "login"
	CommandReboot = "reboot"
	CommandStatus = "status"
)

// ClientOptions holds the configuration of the tmhi client.
type ClientOptions struct {
	// URL is the gateway base URL.
	URL string
	// Username and Password are the gateway admin credentials.
	Username string
	Password string
	// Timeout bounds every HTTP request.
	Timeout time.Duration
	// LoginTimeout bounds one complete login sequence.
	LoginTimeout time.Duration
	// LogLevel is the zap level name.
	LogLevel string
	// Command is one of CommandLogin, CommandReboot, CommandStatus.
	Command string
	// Config is the path to the config file.
	Config string
}

// ServerOptions holds the configuration of the gateway simulator.
type ServerOptions struct {
	// Address defines the server's listening address (ip:port).
	Address string
	// DatabaseDSN holds the Postgres connection string. Empty selects the
	// in-memory store.
	DatabaseDSN string
	// SessionTTL is the lifetime of a new session.
	SessionTTL time.Duration
	// Iterations is announced in every nonce.
	Iterations int
	// Username and Password seed the admin account.
	Username string
	Password string
	// LogLevel is the zap level name.
	LogLevel string
	// Config is the path to the config file.
	Config string
}

type clientFile struct {
	URL          string `json:"url"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	Timeout      string `json:"timeout"`
	LoginTimeout string `json:"login_timeout"`
	LogLevel     string `json:"log_level"`
}

type serverFile struct {
	Address     string `json:"address"`
	DatabaseDSN string `json:"database_dsn"`
	SessionTTL  string `json:"session_ttl"`
	Iterations  *int   `json:"iterations"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	LogLevel    string `json:"log_level"`
}

// ParseClient parses args (without the program name) and the environment
// read through getenv. A nil getenv reads the process environment.
func ParseClient(args []string, getenv func(string) string) (*ClientOptions, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	opts := &ClientOptions{
		URL:          "http://192.168.12.1",
		Timeout:      10 * time.Second,
		LoginTimeout: 30 * time.Second,
		LogLevel:     "info",
		Command:      CommandStatus,
	}

	fs := flag.NewFlagSet("tmhi", flag.ContinueOnError)
	fs.StringVar(&opts.URL, "u", opts.URL, "gateway base URL")
	fs.StringVar(&opts.Username, "user", opts.Username, "gateway username")
	fs.DurationVar(&opts.Timeout, "t", opts.Timeout, "HTTP request timeout")
	fs.DurationVar(&opts.LoginTimeout, "login-timeout", opts.LoginTimeout, "login sequence timeout")
	fs.StringVar(&opts.LogLevel, "l", opts.LogLevel, "log level")
	fs.StringVar(&opts.Command, "cmd", opts.Command, "command: login, reboot or status")
	fs.StringVar(&opts.Config, "config", "", "path to config file")
	fs.StringVar(&opts.Config, "c", "", "path to config file (shorthand)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	var file clientFile
	if err := loadFile(configPath(opts.Config, getenv), &file); err != nil {
		return nil, err
	}
	set := setFlags(fs)
	if !set["u"] {
		opts.URL = or(file.URL, opts.URL)
	}
	if !set["user"] {
		opts.Username = or(file.Username, opts.Username)
	}
	opts.Password = or(file.Password, opts.Password)
	if !set["l"] {
		opts.LogLevel = or(file.LogLevel, opts.LogLevel)
	}
	if !set["t"] {
		if err := parseDuration(file.Timeout, &opts.Timeout); err != nil {
			return nil, fmt.Errorf("timeout: %w", err)
		}
	}
	if !set["login-timeout"] {
		if err := parseDuration(file.LoginTimeout, &opts.LoginTimeout); err != nil {
			return nil, fmt.Errorf("login_timeout: %w", err)
		}
	}

	// Override with environment variables if set
	opts.URL = or(getenv("TMHI_URL"), opts.URL)
	opts.Username = or(getenv("TMHI_USERNAME"), opts.Username)
	opts.Password = or(getenv("TMHI_PASSWORD"), opts.Password)

	switch opts.Command {
	case CommandLogin, CommandReboot, CommandStatus:
	default:
		return nil, fmt.Errorf("unknown command %q", opts.Command)
	}
	return opts, nil
}

// ParseServer parses args (without the program name) and the environment
// read through getenv. A nil getenv reads the process environment.
func ParseServer(args []string, getenv func(string) string) (*ServerOptions, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	opts := &ServerOptions{
		Address:    "localhost:8080",
		SessionTTL: 5 * time.Minute,
		Username:   "admin",
		LogLevel:   "info",
	}

	fs := flag.NewFlagSet("gatewaysim", flag.ContinueOnError)
	fs.StringVar(&opts.Address, "a", opts.Address, "run on ip:port server")
	fs.StringVar(&opts.DatabaseDSN, "d", "", "db address")
	fs.DurationVar(&opts.SessionTTL, "ttl", opts.SessionTTL, "session lifetime")
	fs.IntVar(&opts.Iterations, "i", 0, "password hash iterations announced in nonces")
	fs.StringVar(&opts.Username, "user", opts.Username, "seeded account username")
	fs.StringVar(&opts.LogLevel, "l", opts.LogLevel, "log level")
	fs.StringVar(&opts.Config, "config", "", "path to config file")
	fs.StringVar(&opts.Config, "c", "", "path to config file (shorthand)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	var file serverFile
	if err := loadFile(configPath(opts.Config, getenv), &file); err != nil {
		return nil, err
	}
	set := setFlags(fs)
	if !set["a"] {
		opts.Address = or(file.Address, opts.Address)
	}
	if !set["d"] {
		opts.DatabaseDSN = or(file.DatabaseDSN, opts.DatabaseDSN)
	}
	if !set["i"] && file.Iterations != nil {
		opts.Iterations = *file.Iterations
	}
	if !set["user"] {
		opts.Username = or(file.Username, opts.Username)
	}
	opts.Password = or(file.Password, opts.Password)
	if !set["l"] {
		opts.LogLevel = or(file.LogLevel, opts.LogLevel)
	}
	if !set["ttl"] {
		if err := parseDuration(file.SessionTTL, &opts.SessionTTL); err != nil {
			return nil, fmt.Errorf("session_ttl: %w", err)
		}
	}

	// Override with environment variables if set
	opts.Address = or(getenv("SERVER_ADDRESS"), opts.Address)
	opts.DatabaseDSN = or(getenv("DATABASE_DSN"), opts.DatabaseDSN)
	opts.Password = or(getenv("GATEWAYSIM_PASSWORD"), opts.Password)

	if opts.Iterations < 0 {
		return nil, errors.New("iterations must not be negative")
	}
	if opts.SessionTTL <= 0 {
		return nil, errors.New("session ttl must be positive")
	}
	return opts, nil
}

func configPath(flagValue string, getenv func(string) string) string {
	if p := getenv("CONFIG"); p != "" {
		return p
	}
	return flagValue
}

func loadFile(path string, v any) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error while reading config file: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("error while parsing config file: %w", err)
	}
	return nil
}

func setFlags(fs *flag.FlagSet) map[string]bool {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

func parseDuration(s string, d *time.Duration) error {
	if s == "" {
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

func or(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
