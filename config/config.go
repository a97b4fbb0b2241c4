// Package config loads the server configuration: built-in defaults, then
// an optional YAML file, then CARELEDGER_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/warp/care-ledger/budget"
	"github.com/warp/care-ledger/generic"
	"github.com/warp/care-ledger/holiday"
)

const envPrefix = "CARELEDGER_"

type Application struct {
	Server   Server   `koanf:"server"`
	Database Database `koanf:"db"`
	Rates    Rates    `koanf:"rates"`
	Holidays Holidays `koanf:"holidays"`
	Selector Selector `koanf:"selector"`
	Direct   Direct   `koanf:"direct"`
	Log      Log      `koanf:"log"`
	Jobs     Jobs     `koanf:"jobs"`
}

type Server struct {
	Port           int      `koanf:"port"`
	AllowedOrigins []string `koanf:"allowedorigins"`
}

// Database selects the store. Driver is "sqlite" (Path) or "postgres" (DSN).
type Database struct {
	Driver string `koanf:"driver"`
	Path   string `koanf:"path"`
	DSN    string `koanf:"dsn"`
}

// Rates are the fallback rates used when neither the allocation, the
// budget type nor the staff member configures one. Decimal strings.
type Rates struct {
	Weekday   string `koanf:"weekday"`
	Holiday   string `koanf:"holiday"`
	Kilometer string `koanf:"kilometer"`
}

// Holidays lists local patron days as MM-DD, on top of the national list.
type Holidays struct {
	Local []string `koanf:"local"`
}

// Selector maps lowercase service-type keys to budget codes. Empty means
// the built-in mapping.
type Selector struct {
	Affinity map[string][]string `koanf:"affinity"`
}

type Direct struct {
	BudgetTypeID string `koanf:"budgettypeid"`
}

type Log struct {
	Level string `koanf:"level"`
}

type Jobs struct {
	Workers int `koanf:"workers"`
}

// Defaults is the configuration used before any file or environment.
func Defaults() Application {
	local := make([]string, len(holiday.DefaultLocal))
	for i, md := range holiday.DefaultLocal {
		local[i] = md.String()
	}
	return Application{
		Server: Server{
			Port:           8080,
			AllowedOrigins: []string{"http://localhost:5173", "http://localhost:8080"},
		},
		Database: Database{Driver: "sqlite", Path: "careledger.db"},
		Rates: Rates{
			Weekday:   budget.DefaultFallback.Weekday.String(),
			Holiday:   budget.DefaultFallback.Holiday.String(),
			Kilometer: budget.DefaultFallback.Kilometer.String(),
		},
		Holidays: Holidays{Local: local},
		Direct:   Direct{BudgetTypeID: string(budget.DirectBudgetTypeID)},
		Log:      Log{Level: "info"},
		Jobs:     Jobs{Workers: 4},
	}
}

// Load reads the configuration. A missing file at path is not an error.
func Load(path string) (Application, error) {
	var k = koanf.New(".")

	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		log.Errorf("error loading config from structs: %v", err)
		return Application{}, err
	}

	if path != "" {
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
	if err := app.Validate(); err != nil {
		return Application{}, err
	}
	return app, nil
}

// Validate checks the values Load cannot type-check.
func (a Application) Validate() error {
	switch a.Database.Driver {
	case "sqlite":
		if a.Database.Path == "" {
			return generic.Invalid("db.path", "required for sqlite")
		}
	case "postgres":
		if a.Database.DSN == "" {
			return generic.Invalid("db.dsn", "required for postgres")
		}
	default:
		return generic.Invalid("db.driver", "must be sqlite or postgres, got %q", a.Database.Driver)
	}
	if a.Server.Port <= 0 || a.Server.Port > 65535 {
		return generic.Invalid("server.port", "out of range: %d", a.Server.Port)
	}
	if _, err := a.Rates.Fallback(); err != nil {
		return err
	}
	if _, err := a.Holidays.Calendar(); err != nil {
		return err
	}
	if _, err := log.ParseLevel(a.Log.Level); err != nil {
		return generic.Invalid("log.level", "%v", err)
	}
	return nil
}

// Fallback parses the configured rates.
func (r Rates) Fallback() (budget.Rates, error) {
	parse := func(key, s string) (decimal.Decimal, error) {
		d, err := decimal.NewFromString(strings.TrimSpace(s))
		if err != nil {
			return decimal.Zero, generic.Invalid("rates."+key, "not a number: %q", s)
		}
		if d.IsNegative() {
			return decimal.Zero, generic.Invalid("rates."+key, "must not be negative")
		}
		return d, nil
	}
	var out budget.Rates
	var err error
	if out.Weekday, err = parse("weekday", r.Weekday); err != nil {
		return out, err
	}
	if out.Holiday, err = parse("holiday", r.Holiday); err != nil {
		return out, err
	}
	if out.Kilometer, err = parse("kilometer", r.Kilometer); err != nil {
		return out, err
	}
	return out, nil
}

// Calendar builds the national calendar plus the local days.
func (h Holidays) Calendar() (*holiday.Calendar, error) {
	local := make([]holiday.MonthDay, 0, len(h.Local))
	for _, s := range h.Local {
		md, err := holiday.ParseMonthDay(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("holidays.local: %w", err)
		}
		local = append(local, md)
	}
	return holiday.NewCalendar(local...), nil
}

// AffinityOrDefault returns the configured mapping, or the built-in one.
func (s Selector) AffinityOrDefault() budget.Affinity {
	if len(s.Affinity) == 0 {
		return budget.DefaultAffinity
	}
	return budget.Affinity(s.Affinity)
}
