package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/antlaw0/partygame/games/questionables"
	"github.com/antlaw0/partygame/games/questionables/prompts"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	allowSelfVote  bool
	bind           string
	completion     string
	groqAPIKey     string
	groqBaseURL    string
	groqModel      string
	playerTimeout  time.Duration
	port           int
	prefix         string
	profile        bool
	promptTimeout  time.Duration
	questionDB     string
	questionFile   string
	rateBurst      int
	rateLimit      float64
	rounds         int
	sessionTimeout time.Duration
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
	if c.rounds < 1 {
		return fmt.Errorf("invalid round count (must be at least 1): %d", c.rounds)
	}
	switch questionables.Completion(c.completion) {
	case questionables.CompletionConnected, questionables.CompletionRegistered:
	default:
		return fmt.Errorf("invalid completion policy (must be %q or %q): %q",
			questionables.CompletionConnected, questionables.CompletionRegistered, c.completion)
	}
	if c.promptTimeout <= 0 {
		return fmt.Errorf("invalid prompt timeout (must be positive): %s", c.promptTimeout)
	}
	if c.questionFile != "" && c.questionDB == "" {
		return errors.New("--question-file requires --question-db")
	}
	if c.rateLimit <= 0 || c.rateBurst < 1 {
		return fmt.Errorf("invalid rate limit (must be positive, with a burst of at least 1): %v/%d", c.rateLimit, c.rateBurst)
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
	v.SetEnvPrefix("PARTYGAME")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "partygame",
		Short:         "Questionables: answer the prompt, vote for the best answer, repeat.",
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

	fs.BoolVar(&cfg.allowSelfVote, "allow-self-vote", true, "allow players to vote for their own answer (env: PARTYGAME_ALLOW_SELF_VOTE)")
	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: PARTYGAME_BIND)")
	fs.StringVar(&cfg.completion, "completion", string(questionables.CompletionConnected), "who must act before a phase ends: connected or registered players (env: PARTYGAME_COMPLETION)")
	fs.StringVar(&cfg.groqAPIKey, "groq-api-key", "", "api key for generating prompts with groq (env: PARTYGAME_GROQ_API_KEY)")
	fs.StringVar(&cfg.groqBaseURL, "groq-base-url", prompts.DefaultGroqBaseURL, "base url of the groq openai-compatible api (env: PARTYGAME_GROQ_BASE_URL)")
	fs.StringVar(&cfg.groqModel, "groq-model", prompts.DefaultGroqModel, "groq model used to generate prompts (env: PARTYGAME_GROQ_MODEL)")
	fs.DurationVar(&cfg.playerTimeout, "player-timeout", 2*time.Minute, "time before disconnected players are removed, 0 to remove immediately (env: PARTYGAME_PLAYER_TIMEOUT)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: PARTYGAME_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: PARTYGAME_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: PARTYGAME_PROFILE)")
	fs.DurationVar(&cfg.promptTimeout, "prompt-timeout", questionables.DefaultPromptTimeout, "time to wait for a prompt before using the fallback (env: PARTYGAME_PROMPT_TIMEOUT)")
	fs.StringVar(&cfg.questionDB, "question-db", "questions.db", "path to the sqlite question bank, empty to disable (env: PARTYGAME_QUESTION_DB)")
	fs.StringVar(&cfg.questionFile, "question-file", "", "file of questions to add to the question bank, one per line (env: PARTYGAME_QUESTION_FILE)")
	fs.IntVar(&cfg.rateBurst, "rate-burst", 20, "messages a client may send in a burst (env: PARTYGAME_RATE_BURST)")
	fs.Float64Var(&cfg.rateLimit, "rate-limit", 10, "messages per second a client may send (env: PARTYGAME_RATE_LIMIT)")
	fs.IntVarP(&cfg.rounds, "rounds", "r", questionables.DefaultRounds, "rounds per game when the leader does not choose (env: PARTYGAME_ROUNDS)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before an idle game session is ended (env: PARTYGAME_SESSION_TIMEOUT)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: PARTYGAME_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: PARTYGAME_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: PARTYGAME_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: PARTYGAME_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("partygame v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
