package main

import (
	"errors"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/urfave/cli/v2"

	"github.com/srediag/prodcon-shm/internal/config"
	"github.com/srediag/prodcon-shm/pkg/prodcon"
)

// Version is set via ldflags.
var Version = "dev"

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "prodcon",
		Usage:   "single-slot shared memory channel between two processes",
		Version: Version,
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			sendCommand(),
			receiveCommand(),
			inspectCommand(),
			purgeCommand(),
			benchCommand(),
			configCommand(),
		},
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "YAML configuration file",
			EnvVars: []string{"PRODCON_CONFIG"},
		},
		&cli.StringFlag{
			Name:  "id",
			Usage: "channel identity, must match on both sides",
		},
		&cli.StringFlag{
			Name:  "key-file",
			Usage: "file whose first line overrides --id",
		},
		&cli.BoolFlag{
			Name:  "log",
			Usage: "enable session logging",
			Value: true,
		},
		&cli.IntFlag{
			Name:  "log-level",
			Usage: "0 trace, 1 debug, 2 info, 3 warn, 4 error, 5 silent",
		},
	}
}

// flagKeys maps global flags to configuration keys.
var flagKeys = map[string]string{
	"id":        "channel.identity",
	"key-file":  "channel.keyfile",
	"log":       "log.enabled",
	"log-level": "log.level",
}

// loadConfig merges the configuration sources with the flags the user set.
func loadConfig(c *cli.Context) (*config.Config, error) {
	overrides := make(map[string]any)
	for flag, key := range flagKeys {
		if !c.IsSet(flag) {
			continue
		}
		switch flag {
		case "log":
			overrides[key] = c.Bool(flag)
		case "log-level":
			overrides[key] = c.Int(flag)
		default:
			overrides[key] = c.String(flag)
		}
	}
	if c.IsSet("metrics-addr") {
		overrides["metrics.addr"] = c.String("metrics-addr")
	}

	var cfg config.Config
	l := config.NewLoader(config.WithConfigFile(c.String("config")))
	if err := l.Load(&cfg, overrides); err != nil {
		return nil, err
	}
	prodcon.SetLogLevel(cfg.Log.Level)
	return &cfg, nil
}

// sessionConfig turns the loaded configuration into a session configuration.
func sessionConfig(c *cli.Context, cfg *config.Config) *prodcon.Config {
	sc := prodcon.DefaultConfig()
	sc.Identity = cfg.Channel.Identity
	sc.KeyFile = cfg.Channel.KeyFile
	sc.Logging = cfg.Log.Enabled
	sc.LogOutput = c.App.ErrWriter
	return sc
}

// channelIdentity resolves the identity the sessions would use.
func channelIdentity(cfg *config.Config) (prodcon.Identity, error) {
	id := prodcon.ResolveIdentity(cfg.Channel.Identity, cfg.Channel.KeyFile)
	if id.Name == "" {
		return id, errors.New("no channel identity: set --id, --key-file or channel.identity")
	}
	return id, nil
}

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Print the effective configuration as YAML",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			out, err := yaml.Parser().Marshal(map[string]any{
				"channel": map[string]any{"identity": cfg.Channel.Identity, "keyfile": cfg.Channel.KeyFile},
				"log":     map[string]any{"enabled": cfg.Log.Enabled, "level": cfg.Log.Level},
				"metrics": map[string]any{"addr": cfg.Metrics.Addr},
			})
			if err != nil {
				return err
			}
			_, err = c.App.Writer.Write(out)
			return err
		},
	}
}
