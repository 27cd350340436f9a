/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Seednode/quizbox/games/trivia"
)

type Config struct {
	bind           string
	envFile        string
	maxPoints      int
	mode           string
	port           int
	prefix         string
	profile        bool
	questionTime   int
	questions      string
	sessionTimeout time.Duration
	targetScore    int
	tlsCert        string
	tlsKey         string
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
	if _, err := trivia.ParseMode(c.mode); err != nil {
		return err
	}
	if c.questionTime < 1 {
		return fmt.Errorf("invalid question time (must be at least 1 second): %d", c.questionTime)
	}
	if c.maxPoints < 1 {
		return fmt.Errorf("invalid max points (must be positive): %d", c.maxPoints)
	}
	if c.targetScore < 1 {
		return fmt.Errorf("invalid target score (must be positive): %d", c.targetScore)
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func (c *Config) triviaOptions() trivia.Options {
	mode, _ := trivia.ParseMode(c.mode)

	return trivia.Options{
		Mode:           mode,
		QuestionTime:   c.questionTime,
		MaxPoints:      c.maxPoints,
		TargetScore:    c.targetScore,
		SessionTimeout: c.sessionTimeout,
	}
}

// loadEnvFile reads KEY=value pairs into the environment without overriding
// variables that are already set. A missing default file is not an error.
func loadEnvFile(path string, explicit bool) error {
	err := godotenv.Load(path)
	if err != nil && explicit {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("QUIZBOX")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "quizbox",
		Short:         "A real-time multiplayer trivia server.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			setupLogging(cfg)
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: QUIZBOX_BIND)")
	fs.StringVar(&cfg.envFile, "env-file", ".env", "file of KEY=value pairs loaded into the environment (env: QUIZBOX_ENV_FILE)")
	fs.IntVar(&cfg.maxPoints, "max-points", trivia.DefaultMaxPoints, "points for an instant correct answer (env: QUIZBOX_MAX_POINTS)")
	fs.StringVarP(&cfg.mode, "mode", "m", string(trivia.ModeRooms), "game mode: rooms (host-paced rooms) or continuous (one endless global quiz) (env: QUIZBOX_MODE)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: QUIZBOX_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: QUIZBOX_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: QUIZBOX_PROFILE)")
	fs.IntVar(&cfg.questionTime, "question-time", trivia.DefaultQuestionTime, "seconds to answer each question (env: QUIZBOX_QUESTION_TIME)")
	fs.StringVarP(&cfg.questions, "questions", "q", "", "path to a YAML question bank, replacing the built-in one (env: QUIZBOX_QUESTIONS)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before idle rooms are closed (env: QUIZBOX_SESSION_TIMEOUT)")
	fs.IntVar(&cfg.targetScore, "target-score", trivia.DefaultTargetScore, "score that ends a match when a room sets no goal (env: QUIZBOX_TARGET_SCORE)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: QUIZBOX_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: QUIZBOX_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: QUIZBOX_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: QUIZBOX_VERSION)")

	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		envFile := fs.Lookup("env-file")
		if err := loadEnvFile(cfg.envFile, envFile.Changed); err != nil {
			return err
		}

		fs.VisitAll(func(f *pflag.Flag) {
			_ = v.BindPFlag(f.Name, f)
			_ = v.BindEnv(f.Name)
			if !f.Changed && v.IsSet(f.Name) {
				_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
			}
		})

		return nil
	}

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("quizbox v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
