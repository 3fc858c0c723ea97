package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Seednode/setbox/internal/cards"
	"github.com/Seednode/setbox/internal/protocol"
)

type Config struct {
	bind           string
	countdown      time.Duration
	emptyRoomGrace time.Duration
	mode           string
	port           int
	prefix         string
	profile        bool
	sendBuffer     int
	sessionTimeout time.Duration
	tableSize      int
	tick           time.Duration
	tlsCert        string
	tlsKey         string
	variant        string
	verbose        bool
	version        bool
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	switch protocol.Mode(c.mode) {
	case protocol.ModeAuthoritative, protocol.ModeTrusted:
	default:
		return fmt.Errorf("invalid mode (must be %q or %q): %q", protocol.ModeAuthoritative, protocol.ModeTrusted, c.mode)
	}
	if _, err := cards.ParseVariant(c.variant); err != nil {
		return err
	}
	if c.tableSize < 3 || c.tableSize > 21 {
		return fmt.Errorf("invalid table size (must be between 3-21 inclusive): %d", c.tableSize)
	}
	if c.tick <= 0 {
		return fmt.Errorf("invalid tick (must be positive): %s", c.tick)
	}
	if c.countdown < 0 || c.emptyRoomGrace < 0 || c.sessionTimeout < 0 {
		return errors.New("durations must not be negative")
	}
	if c.sendBuffer < 1 {
		return fmt.Errorf("invalid send buffer (must be at least 1): %d", c.sendBuffer)
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("SETBOX")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "setbox",
		Short:         "Realtime multiplayer rooms for the card game SET.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: SETBOX_BIND)")
	fs.DurationVar(&cfg.countdown, "countdown", 0, "default game length for rooms that do not set one, 0 for untimed (env: SETBOX_COUNTDOWN)")
	fs.DurationVar(&cfg.emptyRoomGrace, "empty-room-grace", 0, "time an empty room waits for players to return before ending (env: SETBOX_EMPTY_ROOM_GRACE)")
	fs.StringVar(&cfg.mode, "mode", string(protocol.ModeAuthoritative), "default room mode, authoritative or trusted (env: SETBOX_MODE)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: SETBOX_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: SETBOX_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: SETBOX_PROFILE)")
	fs.IntVar(&cfg.sendBuffer, "send-buffer", 64, "messages queued per connection before it is dropped (env: SETBOX_SEND_BUFFER)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before idle rooms are ended, 0 to keep them (env: SETBOX_SESSION_TIMEOUT)")
	fs.IntVar(&cfg.tableSize, "table-size", 12, "cards kept face up in authoritative rooms (env: SETBOX_TABLE_SIZE)")
	fs.DurationVar(&cfg.tick, "tick", time.Second, "countdown update interval (env: SETBOX_TICK)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: SETBOX_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: SETBOX_TLS_KEY)")
	fs.StringVar(&cfg.variant, "variant", cards.Standard.Name, "default deck, standard (81 cards) or beginner (27 cards) (env: SETBOX_VARIANT)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: SETBOX_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: SETBOX_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("setbox v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
