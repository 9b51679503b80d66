package main

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/fgeck/hotbackup/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// Version is set at build time.
	Version = "dev"

	// Configuration flags.
	hostFile   string
	backupDir  string
	owner      string
	timeout    time.Duration
	keepGoing  bool
	checkOnly  bool
	verbose    bool
	quiet      bool
	jsonOutput bool
	logFile    string
)

var rootCmd = &cobra.Command{
	Use:   "hotbackup",
	Short: "Hot backups of database hosts into a local directory",
	Long: `hotbackup backs up every database host listed in the host file, one after another:
  - Wake-on-LAN to wake sleeping hosts (if configured)
  - innobackupex or pg_basebackup streamed as tar, locally or over SSH
  - gzip compression into <backupdir>/<name>-<timestamp>.tar.gz
  - an entry per archive in <backupdir>/list.txt
  - optional chown to a target user
  - Telegram notifications

Use as a one-shot command with an external scheduler (cron, systemd timer, etc.)`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
	Args:         cobra.NoArgs,
	RunE:         runBackup,
	SilenceUsage: true,
	Version:      Version,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVarP(&hostFile, "hostfile", "c", config.DefaultPath("hosts.yaml"), "host file")
	flags.StringVarP(&backupDir, "backupdir", "d", config.DefaultPath("backup"), "directory receiving the archives")
	flags.StringVarP(&owner, "user", "u", "", "user that should own the archives")
	flags.DurationVar(&timeout, "timeout", config.DefaultTimeout, "maximum duration of one host's backup")
	flags.BoolVar(&keepGoing, "keep-going", false, "continue with the next host after a failure")
	flags.BoolVar(&checkOnly, "check", false, "validate the host file, print a summary and exit")

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose (debug) output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "enable quiet mode (errors only)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output logs in JSON format")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write JSON logs to this file (rotated)")
}

func setupLogging() {
	var console io.Writer
	if jsonOutput {
		console = os.Stdout
	} else {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
		output.FormatLevel = func(i interface{}) string {
			if s, ok := i.(string); ok {
				return strings.ToUpper(s)
			}
			return ""
		}
		console = output
	}

	if logFile != "" {
		rotating := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     90, // days
		}
		console = zerolog.MultiLevelWriter(console, rotating)
	}

	log.Logger = zerolog.New(console).With().Timestamp().Logger()

	switch {
	case quiet:
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case verbose:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
