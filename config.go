/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Seednode/partyroom/games/liar"
	"github.com/Seednode/partyroom/games/party"
	"github.com/Seednode/partyroom/narrator"
)

type Config struct {
	bind            string
	database        string
	maxPlayers      int
	narratorKey     string
	narratorModel   string
	narratorTimeout time.Duration
	narratorURL     string
	otelEndpoint    string
	phaseTimeout    time.Duration
	playerTimeout   time.Duration
	pollInterval    time.Duration
	port            int
	prefix          string
	profile         bool
	sessionTimeout  time.Duration
	settleDelay     time.Duration
	tlsCert         string
	tlsKey          string
	verbose         bool
	version         bool
	words           string

	logger *zap.Logger
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.maxPlayers < party.MinPlayers {
		return fmt.Errorf("invalid max players (must be at least %d): %d", party.MinPlayers, c.maxPlayers)
	}
	if c.playerTimeout <= 0 {
		return fmt.Errorf("invalid player timeout (must be positive): %s", c.playerTimeout)
	}
	if c.pollInterval <= 0 {
		return fmt.Errorf("invalid poll interval (must be positive): %s", c.pollInterval)
	}
	if c.settleDelay < 0 || c.phaseTimeout < 0 || c.sessionTimeout < 0 {
		return errors.New("durations may not be negative")
	}
	if c.narratorTimeout <= 0 {
		return fmt.Errorf("invalid narrator timeout (must be positive): %s", c.narratorTimeout)
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

// newLogger builds the server logger: development output when verbose,
// production JSON at info level otherwise.
func (c *Config) newLogger() (*zap.Logger, error) {
	if c.verbose {
		zc := zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(logDate)
		return zc.Build()
	}

	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	return zc.Build()
}

// wordBank loads --words, or the built-in bank when it is unset.
func (c *Config) wordBank() (liar.WordBank, error) {
	if c.words == "" {
		return liar.DefaultWordBank(), nil
	}

	f, err := os.Open(c.words)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return liar.LoadWordBank(f)
}

// narrator returns the model-backed narrator when a key is configured, and
// the canned lines otherwise.
func (c *Config) narrator() narrator.Safe {
	var n narrator.Narrator = narrator.Static{}
	if c.narratorKey != "" {
		n = narrator.NewClient(narrator.Config{
			URL:    c.narratorURL,
			APIKey: c.narratorKey,
			Model:  c.narratorModel,
		})
	}

	return narrator.Safe{
		Narrator: n,
		Timeout:  c.narratorTimeout,
		Logger:   c.logger,
	}
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("PARTYROOM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "partyroom",
		Short:         "Hosts rooms of the word-guess and elimination party games.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}

			logger, err := cfg.newLogger()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			cfg.logger = logger

			return ServePage(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: PARTYROOM_BIND)")
	fs.StringVar(&cfg.database, "database", "", "path to sqlite database; rooms are kept in memory when unset (env: PARTYROOM_DATABASE)")
	fs.IntVar(&cfg.maxPlayers, "max-players", 12, "maximum members per room (env: PARTYROOM_MAX_PLAYERS)")
	fs.StringVar(&cfg.narratorKey, "narrator-key", "", "api key for the narration model; canned lines are used when unset (env: PARTYROOM_NARRATOR_KEY)")
	fs.StringVar(&cfg.narratorModel, "narrator-model", "gpt-4o-mini", "narration model name (env: PARTYROOM_NARRATOR_MODEL)")
	fs.DurationVar(&cfg.narratorTimeout, "narrator-timeout", 5*time.Second, "time to wait for narration before using a canned line (env: PARTYROOM_NARRATOR_TIMEOUT)")
	fs.StringVar(&cfg.narratorURL, "narrator-url", narrator.DefaultURL, "narration model endpoint (env: PARTYROOM_NARRATOR_URL)")
	fs.StringVar(&cfg.otelEndpoint, "otel-endpoint", "", "otlp/http endpoint to export traces to (env: PARTYROOM_OTEL_ENDPOINT)")
	fs.DurationVar(&cfg.phaseTimeout, "phase-timeout", 0, "time before a stalled phase is force-resolved; 0 disables (env: PARTYROOM_PHASE_TIMEOUT)")
	fs.DurationVar(&cfg.playerTimeout, "player-timeout", 10*time.Minute, "time before disconnected players leave their room (env: PARTYROOM_PLAYER_TIMEOUT)")
	fs.DurationVar(&cfg.pollInterval, "poll-interval", 3*time.Second, "how often rooms are re-read from storage (env: PARTYROOM_POLL_INTERVAL)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: PARTYROOM_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: PARTYROOM_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: PARTYROOM_PROFILE)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before idle rooms are ended (env: PARTYROOM_SESSION_TIMEOUT)")
	fs.DurationVar(&cfg.settleDelay, "settle-delay", 2*time.Second, "pause before the host resolves a phase (env: PARTYROOM_SETTLE_DELAY)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: PARTYROOM_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: PARTYROOM_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: PARTYROOM_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: PARTYROOM_VERSION)")
	fs.StringVar(&cfg.words, "words", "", "path to a json word bank for the word-guess game (env: PARTYROOM_WORDS)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("partyroom v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
