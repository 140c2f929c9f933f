package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mikequentel/xpost/internal/config"
	"github.com/mikequentel/xpost/internal/imaging"
	"github.com/mikequentel/xpost/internal/logger"
	"github.com/mikequentel/xpost/internal/oauth"
	"github.com/mikequentel/xpost/internal/pipeline"
	"github.com/mikequentel/xpost/internal/session"
	"github.com/mikequentel/xpost/internal/store"
	"github.com/mikequentel/xpost/internal/tui"
	"github.com/mikequentel/xpost/internal/xapi"
)

const usage = `Usage: xpost [-config path] [command]

Commands:
  compose          write and publish a post (default)
  post [flags] text
                   publish one post without the UI (text from stdin when omitted)
  stats            browse metrics and replies for your recent posts
  history [-n N]   list posts published from this machine
`

var errUsage = errors.New("unknown command")

func main() {
	log.SetFlags(0)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout)
	stop()
	switch {
	case errors.Is(err, flag.ErrHelp):
	case errors.Is(err, errUsage):
		os.Exit(2)
	case err != nil:
		log.Fatal(err)
	}
}

// run dispatches one command. Commands that only touch local data resolve
// the data dir without credentials; the rest load the full config first and
// fail before any UI starts.
func run(ctx context.Context, argv []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("xpost", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "config file (default $XPOST_CONFIG or ~/.config/xpost/config.yaml)")
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(argv); err != nil {
		return err
	}

	cmd, args := "compose", []string(nil)
	if fs.NArg() > 0 {
		cmd, args = fs.Arg(0), fs.Args()[1:]
	}
	switch cmd {
	case "compose", "post", "stats", "history":
	default:
		fs.Usage()
		return fmt.Errorf("%w: %s", errUsage, cmd)
	}

	var (
		cfg config.Config
		err error
	)
	if cmd == "history" || (cmd == "post" && dryRunRequested(args)) {
		cfg, err = localConfig()
	} else {
		cfg, err = loadConfig(*cfgPath)
	}
	if err != nil {
		return err
	}

	closeLog, err := initLogging(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	switch cmd {
	case "post":
		return runPost(ctx, cfg, args, stdin, stdout)
	case "stats":
		return runStats(ctx, cfg)
	case "history":
		return runHistory(ctx, cfg, args, stdout)
	default:
		return runCompose(ctx, cfg)
	}
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return config.Config{}, err
		}
		path = p
	}
	return config.Load(path)
}

// localConfig is enough for commands that never call the API.
func localConfig() (config.Config, error) {
	dir, err := config.DefaultDataDir()
	if err != nil {
		return config.Config{}, err
	}
	return config.Config{DataDir: dir}, nil
}

func runCompose(ctx context.Context, cfg config.Config) error {
	db, err := store.Open(cfg.DBPath())
	if err != nil {
		return err
	}
	defer db.Close()

	p := pipeline.New(newClient(cfg),
		pipeline.WithRecorder(db),
		pipeline.WithLogger(logger.Named("pipeline")),
	)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go p.Run(runCtx)

	m := session.New(p, db, imaging.NewReader(), session.WithLogger(logger.Named("session")))
	logger.Get().Info().Str("db", cfg.DBPath()).Msg("compose session started")
	_, err = tea.NewProgram(tui.NewCompose(m), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}

func runStats(ctx context.Context, cfg config.Config) error {
	_, err := tea.NewProgram(tui.NewStats(ctx, newClient(cfg)), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}

func runHistory(ctx context.Context, cfg config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	n := fs.Int("n", 20, "number of posts to list")
	if err := fs.Parse(args); err != nil {
		return err
	}

	db, err := store.Open(cfg.DBPath())
	if err != nil {
		return err
	}
	defer db.Close()

	recs, err := db.RecentPosts(ctx, *n)
	if err != nil {
		return err
	}
	return writeHistory(out, recs)
}

func writeHistory(out io.Writer, recs []store.PostRecord) error {
	if len(recs) == 0 {
		_, err := fmt.Fprintln(out, "No posts published yet.")
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "POSTED\tID\tIMAGE\tTEXT")
	for _, r := range recs {
		img := ""
		if r.HadImage {
			img = "yes"
		}
		text, _, _ := strings.Cut(r.Text, "\n")
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.PostedAt.Local().Format(time.DateTime), r.RemoteID, img, text)
	}
	return tw.Flush()
}

func newClient(cfg config.Config) *xapi.Client {
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	return xapi.New(httpClient, oauth.NewSigner(cfg.Credentials()))
}

// initLogging sends logs to a file under the data dir; the terminal belongs
// to the UI from here on.
func initLogging(cfg config.Config) (func(), error) {
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	f, err := os.OpenFile(cfg.LogPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	opt := logger.FromEnv()
	opt.Writer = f
	logger.Init(opt)
	return func() { f.Close() }, nil
}
