package config

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// Config is the wikihist configuration
type Config struct {
	DB        DB        `toml:"db"`
	API       API       `toml:"api"`
	Staleness Staleness `toml:"staleness"`
	Scheduler Scheduler `toml:"scheduler"`
	Server    Server    `toml:"server"`
	Search    Search    `toml:"search"`
	Log       Log       `toml:"log"`
}

type DB struct {
	Path string `toml:"path"`
}

type API struct {
	Endpoint  string `toml:"endpoint"`
	UserAgent string `toml:"user-agent"`
	Timeout   int    `toml:"timeout"` // seconds, per request, no retries

	Converted struct {
		Timeout time.Duration
	} `toml:"-"`
}

type Staleness struct {
	Days int `toml:"days"`

	Converted struct {
		Window time.Duration
	} `toml:"-"`
}

type Scheduler struct {
	Interval int `toml:"interval"` // minutes between scheduled sweeps

	Converted struct {
		Interval time.Duration
	} `toml:"-"`
}

type Server struct {
	Address string `toml:"address"`
}

type Search struct {
	IndexPath string `toml:"index-path"`
}

type Log struct {
	Level     string `toml:"level"`     // error, info, debug
	File      string `toml:"file"`      // "-" for stderr, or a filename
	Formatter string `toml:"formatter"` // text, json
}

// DefaultCfg shows the default configuration of the wikihist service
var DefaultCfg = `
[db]
	path = "./data/wikihist.sqlite3"
[api]
	endpoint = "https://fr.wikipedia.org/w/api.php"
	user-agent = "wikihist/1.0 (revision history mirror)"
	timeout = 10
[staleness]
	days = 7
[scheduler]
	interval = 60
[server]
	address = "localhost:6893"
[search]
	index-path = "./data/bleve"
[log]
	level = "info"
	file = "-"
	formatter = "text"
`

type converter interface {
	convert()
}

// Read loads the config data from the given path, on top of the defaults.
func Read(path string) (Config, error) {
	c, err := defaultConfig()
	if err != nil {
		return Config{}, errors.WithMessage(err, "initializing default config")
	}

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrapf(err, "reading config from %s", path)
		}

		if err = toml.Unmarshal(b, &c); err != nil {
			return Config{}, errors.Wrapf(err, "unmarshaling toml config from %s", path)
		}
	}

	for _, conv := range []converter{&c.API, &c.Staleness, &c.Scheduler} {
		conv.convert()
	}

	return c, nil
}

func defaultConfig() (Config, error) {
	var def Config

	if err := toml.Unmarshal([]byte(DefaultCfg), &def); err != nil {
		return Config{}, errors.Wrap(err, "parsing default config")
	}

	return def, nil
}

func (a *API) convert() {
	if a.Timeout <= 0 {
		a.Timeout = 10
	}
	a.Converted.Timeout = time.Duration(a.Timeout) * time.Second
}

func (s *Staleness) convert() {
	if s.Days <= 0 {
		s.Days = 7
	}
	s.Converted.Window = time.Duration(s.Days) * 24 * time.Hour
}

func (s *Scheduler) convert() {
	if s.Interval <= 0 {
		s.Interval = 60
	}
	s.Converted.Interval = time.Duration(s.Interval) * time.Minute
}
