// Command drwebmirror mirrors a Dr.Web update repository, choosing
// among the five manifest dialects described in spec §4 (v4, v5,
// v5.2, v7, android). It is a single cobra.Command with no
// subcommands, built the way rclone's own CLI tree registers flags on
// a *pflag.FlagSet and builds one immutable options value from them
// before handing off to the engine.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/s0t/drwebmirror/internal/config"
	"github.com/s0t/drwebmirror/internal/engine"
	"github.com/s0t/drwebmirror/internal/keyfile"
)

var (
	cfg        = config.New()
	useKeyfile string
)

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drwebmirror <target-dir>",
		Short: "Mirror a Dr.Web update repository",
		Long: `drwebmirror synchronizes a local directory against a Dr.Web
update server, verifying every file's digest against the server's
manifest before accepting it.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.RemoteDir = args[0]
			return runRoot()
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.Server, "server", "", "update server host (required)")
	flags.Uint16Var(&cfg.Port, "port", 80, "update server port")
	flags.StringVar(&cfg.HTTPVersion, "http-version", cfg.HTTPVersion, `HTTP version to speak: "1.0" or "1.1"`)

	flags.StringVar(&cfg.AuthUser, "auth-user", "", "basic auth username for the update server")
	flags.StringVar(&cfg.AuthPass, "auth-pass", "", "basic auth password for the update server")

	flags.BoolVar(&cfg.UseProxy, "proxy", false, "route requests through a forward proxy")
	flags.StringVar(&cfg.ProxyAddress, "proxy-server", "", "proxy host")
	flags.Uint16Var(&cfg.ProxyPort, "proxy-port", 3128, "proxy port")
	flags.StringVar(&cfg.ProxyUser, "proxy-user", "", "proxy basic auth username")
	flags.StringVar(&cfg.ProxyPass, "proxy-pass", "", "proxy basic auth password")

	flags.BoolVar(&cfg.UseAndroid, "android", false, "use the Android INI manifest dialect instead of userid/keyfile identity")
	flags.StringVar(&cfg.KeyUserID, "userid", "", "license UserID (non-Android dialects)")
	flags.StringVar(&useKeyfile, "keyfile", "", "path to the .key license file; its MD5 is sent instead of --keyfile-md5")
	flags.StringVar(&cfg.KeyMD5, "keyfile-md5", "", "license keyfile MD5, if not reading it from --keyfile")
	flags.BoolVar(&cfg.UseSysHash, "syshash", false, "send a SysHash identity header")
	flags.StringVar(&cfg.SysHash, "syshash-value", "", "SysHash value, when --syshash is set")
	flags.StringVar(&cfg.UserAgent, "user-agent", "", "override the User-Agent header")
	flags.StringVar(&cfg.ManifestPath, "manifest-path", "", "Android only: remote/local path naming the manifest file itself")

	dialect := newDialectValue(config.DialectV4, &cfg.Dialect)
	flags.Var(dialect, "dialect", "protocol dialect: v4, v5, v5.2, v7 or android")

	flags.BoolVar(&cfg.FastMode, "fast", cfg.FastMode, "skip re-verifying files the prior manifest already matched")
	flags.DurationVar(&cfg.TZShift, "tzshift", 0, "shift Last-Modified by this duration before setting file mtimes")

	flags.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "socket read/write timeout")
	flags.IntVar(&cfg.MaxRedirect, "max-redirect", cfg.MaxRedirect, "maximum redirects to follow per request")
	flags.IntVar(&cfg.MaxRepeat, "max-repeat", cfg.MaxRepeat, "maximum pass restarts on digest/size mismatch")
	flags.DurationVar(&cfg.RepeatSleep, "repeat-sleep", cfg.RepeatSleep, "delay between pass restarts")

	flags.BoolVarP(&cfg.Verbose, "verbose", "v", false, "log per-file verification progress")
	flags.BoolVarP(&cfg.MoreVerbose, "more-verbose", "V", false, "log per-file progress plus wire-level request/response detail")

	return cmd
}

func runRoot() error {
	log := newLogger()

	if useKeyfile != "" {
		info, err := keyfile.Read(useKeyfile)
		if err != nil {
			return fmt.Errorf("reading keyfile: %w", err)
		}
		cfg.KeyUserID = info.UserID
		cfg.KeyMD5 = info.MD5
	}

	if cfg.UseAndroid {
		cfg.Dialect = config.DialectAndroid
	}
	if cfg.Server == "" {
		return fmt.Errorf("--server is required")
	}

	e := engine.New(cfg, log)
	return e.Run()
}

func newLogger() *logrus.Entry {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.Kitchen})
	switch {
	case cfg.MoreVerbose:
		l.SetLevel(logrus.DebugLevel)
	case cfg.Verbose:
		l.SetLevel(logrus.InfoLevel)
	default:
		l.SetLevel(logrus.WarnLevel)
	}
	return logrus.NewEntry(l)
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "drwebmirror:", err)
		os.Exit(1)
	}
}
