package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/okian/tempusrecords/internal/adapters/http/api"
	"github.com/okian/tempusrecords/internal/adapters/tempus"
	service "github.com/okian/tempusrecords/internal/app"
	"github.com/okian/tempusrecords/internal/catalog"
	"github.com/okian/tempusrecords/internal/config"
	"github.com/okian/tempusrecords/internal/domain/model"
	"github.com/okian/tempusrecords/internal/prompt"
	"github.com/okian/tempusrecords/internal/report"
	"github.com/okian/tempusrecords/pkg/logger"
	"github.com/okian/tempusrecords/pkg/metrics"
)

func main() {
	// Initialize logging
	if err := logger.Init(); err != nil {
		// Use fmt for initialization errors since logger isn't available yet
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout)
	stop()
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		os.Stderr.WriteString("tempusrecords: " + err.Error() + "\n")
		os.Exit(1)
	}
}

type flags struct {
	configPath string
	player     string
	class      string
	wait       bool
}

func parseFlags(args []string, out io.Writer) (flags, error) {
	var f flags
	fs := flag.NewFlagSet("tempusrecords", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.StringVar(&f.configPath, "config", "", "YAML config file (default $"+config.EnvConfigFile+")")
	fs.StringVar(&f.player, "player", "", "Tempus player id")
	fs.StringVar(&f.class, "class", "", "class: soldier|demoman or 1|2")
	fs.BoolVar(&f.wait, "wait", false, "wait for Enter before exiting")
	if err := fs.Parse(args); err != nil {
		return flags{}, err
	}
	return f, nil
}

// run performs one report run. Questions, progress and the summary go to out.
func run(ctx context.Context, args []string, in io.Reader, out io.Writer) error {
	f, err := parseFlags(args, out)
	if err != nil {
		return err
	}

	// Load configuration (.env -> defaults -> optional file -> env -> flags)
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}
	if f.player != "" {
		cfg.PlayerID = f.player
	}
	if f.class != "" {
		cfg.Class = f.class
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := logger.Init(logger.WithWriter(out), logger.WithFormat(cfg.LogFormat)); err != nil {
		return err
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		return err
	}
	log := logger.Get()

	ask := prompt.New(in, out)
	if f.wait {
		defer ask.WaitEnter("Press Enter to exit...")
	}

	player, class, err := resolveTarget(cfg, ask)
	if err != nil {
		return err
	}

	catalogPath := cfg.CatalogPath(class)
	log.Info(ctx, "loading map data", logger.String("file", catalogPath), logger.String("class", class.Label()))
	maps, err := catalog.Load(catalogPath, catalog.WithDelimiter(cfg.DelimiterRune()))
	if err != nil {
		metrics.RecordErrorByComponent("catalog", "load")
		return err
	}

	client := tempus.NewClient(
		tempus.WithBaseURL(cfg.BaseURL),
		tempus.WithUserAgent(cfg.UserAgent),
		tempus.WithMinInterval(cfg.MinInterval()),
		tempus.WithMaxAttempts(cfg.MaxAttempts),
		tempus.WithTimeout(cfg.RequestTimeout()),
	)
	svc := service.New(client)

	if cfg.MetricsAddr != "" {
		srv := api.NewServer(svc)
		if err := srv.Start(ctx, cfg.MetricsAddr); err != nil {
			return err
		}
		defer func() {
			if err := srv.Shutdown(ctx); err != nil {
				log.Error(ctx, "metrics listener shutdown failed", logger.Error(err))
			}
		}()
	}

	res, err := svc.Run(ctx, player, class, maps)
	if err != nil {
		return err
	}

	timeFormat, err := report.ParseTimeFormat(cfg.TimeFormat)
	if err != nil {
		return err
	}
	emitter := report.New(report.WithDelimiter(cfg.DelimiterRune()), report.WithTimeFormat(timeFormat))
	paths := report.Paths{Records: cfg.RecordsPath(), Failed: cfg.FailedPath()}
	if err := emitter.WriteFiles(paths, res); err != nil {
		return err
	}

	if cfg.MetricsFile != "" {
		if err := metrics.WriteTextfile(cfg.MetricsFile); err != nil {
			log.Warn(ctx, "metrics textfile not written", logger.Error(err))
		}
	}

	fmt.Fprintf(out, "\nDone. %d of %d maps have a time for player %s (%s).\n",
		len(res.Records), res.Total(), res.PlayerID, res.Class.Label())
	fmt.Fprintf(out, "Records saved to %s\n", paths.Records)
	if len(res.Failed) > 0 {
		fmt.Fprintf(out, "%d maps without a time saved to %s\n", len(res.Failed), paths.Failed)
	}
	return nil
}

// resolveTarget takes player and class from config, asking for what is missing.
func resolveTarget(cfg *config.Config, ask *prompt.Prompter) (model.PlayerID, model.Class, error) {
	var (
		player model.PlayerID
		class  model.Class
		err    error
	)
	if cfg.PlayerID != "" {
		player, err = model.ParsePlayerID(cfg.PlayerID)
	} else {
		player, err = ask.PlayerID()
	}
	if err != nil {
		return 0, 0, err
	}
	if cfg.Class != "" {
		class, err = model.ParseClass(cfg.Class)
	} else {
		class, err = ask.Class()
	}
	if err != nil {
		return 0, 0, err
	}
	return player, class, nil
}
