// Package config loads process settings from flags, the environment and an
// optional .env file.
package config

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"spacewars/analytics"
	"spacewars/galaxy"
	"spacewars/protocol"
)

// ErrInvalid wraps every rejected setting
var ErrInvalid = errors.New("config: invalid value")

// Config holds the process settings
type Config struct {
	Name       string
	Group      string
	Discovery  int
	GamePort   int
	Tick       time.Duration
	MaxClients int
	EventsDB   string
}

// Default returns the built-in settings
func Default() Config {
	return Config{
		Name:       protocol.DefaultName,
		Group:      protocol.GroupAddress,
		Discovery:  protocol.DiscoveryPort,
		GamePort:   protocol.GamePort,
		Tick:       galaxy.UpdatePeriod,
		MaxClients: galaxy.MaxClientsPerGalaxy,
		EventsDB:   analytics.MemoryDSN,
	}
}

// Load reads the .env file named by SPACEWARS_ENV_FILE (default ".env") if
// present, then parses args with environment-derived defaults.
func Load(args []string) (Config, error) {
	envFile := os.Getenv("SPACEWARS_ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err == nil {
		log.Printf("config: loaded %s", envFile)
	} else if !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("config: read %s: %w", envFile, err)
	}

	cfg := Default()
	var err error
	if cfg, err = fromEnv(cfg); err != nil {
		return Config{}, err
	}

	fs := flag.NewFlagSet("spacewars", flag.ContinueOnError)
	fs.StringVar(&cfg.Name, "name", cfg.Name, "server name advertised on the LAN")
	fs.StringVar(&cfg.Group, "group", cfg.Group, "discovery multicast group")
	fs.IntVar(&cfg.Discovery, "discovery-port", cfg.Discovery, "discovery UDP port")
	fs.IntVar(&cfg.GamePort, "game-port", cfg.GamePort, "port dialled back on the client")
	fs.DurationVar(&cfg.Tick, "tick", cfg.Tick, "galaxy update period")
	fs.IntVar(&cfg.MaxClients, "max-clients", cfg.MaxClients, "sessions per galaxy")
	fs.StringVar(&cfg.EventsDB, "events-db", cfg.EventsDB, "sqlite DSN for the event journal")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return Config{}, err
		}
		return Config{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return cfg, cfg.Validate()
}

func fromEnv(cfg Config) (Config, error) {
	if v := os.Getenv("SPACEWARS_NAME"); v != "" {
		cfg.Name = v
	}
	if v := os.Getenv("SPACEWARS_GROUP"); v != "" {
		cfg.Group = v
	}
	if v := os.Getenv("SPACEWARS_EVENTS_DB"); v != "" {
		cfg.EventsDB = v
	}
	ints := []struct {
		key string
		dst *int
	}{
		{"SPACEWARS_DISCOVERY_PORT", &cfg.Discovery},
		{"SPACEWARS_GAME_PORT", &cfg.GamePort},
		{"SPACEWARS_MAX_CLIENTS", &cfg.MaxClients},
	}
	for _, e := range ints {
		v := os.Getenv(e.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("%w: %s=%q", ErrInvalid, e.key, v)
		}
		*e.dst = n
	}
	if v := os.Getenv("SPACEWARS_TICK"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("%w: SPACEWARS_TICK=%q", ErrInvalid, v)
		}
		cfg.Tick = d
	}
	return cfg, nil
}

// Validate checks ranges and the group address
func (c Config) Validate() error {
	switch {
	case protocol.IsReserved(c.Name):
		return fmt.Errorf("%w: name %q starts with a control token", ErrInvalid, c.Name)
	case c.Discovery <= 0 || c.Discovery > 65535:
		return fmt.Errorf("%w: discovery port %d", ErrInvalid, c.Discovery)
	case c.GamePort <= 0 || c.GamePort > 65535:
		return fmt.Errorf("%w: game port %d", ErrInvalid, c.GamePort)
	case c.Tick <= 0:
		return fmt.Errorf("%w: tick %s", ErrInvalid, c.Tick)
	case c.MaxClients < 1:
		return fmt.Errorf("%w: max clients %d", ErrInvalid, c.MaxClients)
	}
	if c.Group != "" {
		if ip := net.ParseIP(c.Group); ip == nil || !ip.IsMulticast() {
			return fmt.Errorf("%w: group %q is not a multicast address", ErrInvalid, c.Group)
		}
	}
	return nil
}

// ListenAddr returns the discovery listen address
func (c Config) ListenAddr() string {
	return ":" + strconv.Itoa(c.Discovery)
}
