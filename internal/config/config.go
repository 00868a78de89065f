package config

import (
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	log "github.com/sirupsen/logrus"
)

const envPrefix = "MOCKASSIST_"

type Application struct {
	Addr       string     `koanf:"addr"`
	Simulation Simulation `koanf:"simulation"`
	Calendar   Calendar   `koanf:"calendar"`
}

type Simulation struct {
	// Start is the initial simulated time in RFC3339. Empty means the system
	// time at boot.
	Start    string `koanf:"start"`
	Scenario string `koanf:"scenario"`
}

type Calendar struct {
	DefaultTimezone   string `koanf:"defaulttimezone"`
	MaxQueryDays      int    `koanf:"maxquerydays"`
	NearestSearchDays int    `koanf:"nearestsearchdays"`
}

func Defaults() Application {
	return Application{
		Addr: ":8181",
		Calendar: Calendar{
			DefaultTimezone:   "UTC",
			MaxQueryDays:      3660,
			NearestSearchDays: 3660,
		},
	}
}

func Load(path string) (Application, error) {
	var k = koanf.New(".")

	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		log.Errorf("error loading config from structs: %v", err)
		return Application{}, err
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if os.IsNotExist(err) {
			log.Infof("Config file not found at %s, using defaults and environment variables", path)
		} else {
			log.Errorf("error loading config from YAML: %v", err)
			return Application{}, err
		}
	} else {
		log.Infof("Loaded configuration from file: %s", path)
	}

	err := k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(k, v string) (string, any) {
			k = strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(k, envPrefix)), "_", ".")
			return k, v
		},
	}), nil)
	if err != nil {
		log.Errorf("error loading config from envs: %v", err)
		return Application{}, err
	}

	var app Application
	if err := k.Unmarshal("", &app); err != nil {
		return Application{}, err
	}
	return app, nil
}

// SimulationStart parses Simulation.Start, falling back to now.
func (a Application) SimulationStart(now time.Time) (time.Time, error) {
	if a.Simulation.Start == "" {
		return now, nil
	}
	return time.Parse(time.RFC3339, a.Simulation.Start)
}
