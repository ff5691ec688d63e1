package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/conorfennell/studydeck/internal/config"
	"github.com/conorfennell/studydeck/internal/exam"
	"github.com/conorfennell/studydeck/internal/fsrs"
	"github.com/conorfennell/studydeck/internal/generate"
	"github.com/conorfennell/studydeck/internal/logging"
	"github.com/conorfennell/studydeck/internal/render"
	"github.com/conorfennell/studydeck/internal/review"
	"github.com/conorfennell/studydeck/internal/storage"
	"github.com/conorfennell/studydeck/internal/sync"
	"github.com/conorfennell/studydeck/internal/web"
	"github.com/spf13/pflag"
)

const usage = `Usage: studydeck <command> [flags] [args]

Commands:
  serve               run the HTTP API
  sync                import exams from the configured library
  import FILE...      open exam files (.json or .md) and add them to history
  generate TOPIC [FILE...]
                      generate an exam with Gemini and add it to history
  due [TAG]           list cards due for review

Run "studydeck <command> --help" for flags.
`

// app holds the components shared by every command.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	db      *storage.DB
	session *exam.Session
	queue   *review.Queue
	ids     *exam.IDGenerator
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	cmd := os.Args[1]

	fs := config.FlagSet(cmd)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of studydeck %s:\n", cmd)
		fs.PrintDefaults()
	}
	cfg, err := config.Load(fs, os.Args[2:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "studydeck: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to start", "error", err)
		os.Exit(1)
	}
	defer a.db.Close()

	switch cmd {
	case "serve":
		err = a.serve(ctx)
	case "sync":
		err = a.sync(ctx)
	case "import":
		err = a.importFiles(ctx, fs.Args())
	case "generate":
		err = a.generate(ctx, fs.Args())
	case "due":
		err = a.due(ctx, fs.Args())
	default:
		fmt.Fprintf(os.Stderr, "studydeck: unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Error("Command failed", "command", cmd, "error", err)
		os.Exit(1)
	}
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	db, err := storage.Open(cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	logger.Debug("Database opened successfully", "path", cfg.DB)

	scheduler := fsrs.New(&fsrs.Params{
		DesiredRetention: cfg.DesiredRetention,
		MaximumInterval:  cfg.MaximumInterval,
		EnableFuzz:       cfg.EnableFuzz,
		EnableShortTerm:  true,
	})
	deriver := exam.NewDeriver(db.Cards(), scheduler, logger)
	session := exam.NewSession(db.Content(), render.NewMarkdown(), deriver, logger)
	if err := session.RefreshRecent(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return &app{
		cfg:     cfg,
		logger:  logger,
		db:      db,
		session: session,
		queue:   review.NewQueue(db.Cards(), scheduler, logger),
		ids:     exam.NewIDGenerator(nil),
	}, nil
}

func (a *app) library() sync.Source {
	return sync.Source{Dir: a.cfg.LibraryDir, Repo: a.cfg.LibraryRepo}
}

func (a *app) generator(ctx context.Context) (*generate.Client, error) {
	return generate.New(ctx, generate.Config{
		APIKey:     a.cfg.GeminiAPIKey,
		Model:      a.cfg.GeminiModel,
		SchemaPath: a.cfg.SchemaPath,
	}, a.logger)
}

func (a *app) serve(ctx context.Context) error {
	deps := web.Deps{
		Session: a.session,
		Queue:   a.queue,
		Content: a.db.Content(),
		Cards:   a.db.Cards(),
		IDs:     a.ids,
		Library: a.library(),
		Logger:  a.logger,
	}
	if a.cfg.GeminiAPIKey != "" {
		gen, err := a.generator(ctx)
		if err != nil {
			return err
		}
		deps.Generator = gen
	}
	if a.cfg.LibraryDir != "" || a.cfg.LibraryRepo != "" {
		deps.Syncer = sync.New(a.db.Content(), a.cfg.ReposDir, a.logger)
	}
	if err := a.queue.Build(ctx, ""); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              a.cfg.Addr,
		Handler:           web.NewServer(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	a.logger.Info("Starting server", "addr", a.cfg.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

func (a *app) sync(ctx context.Context) error {
	report, err := sync.New(a.db.Content(), a.cfg.ReposDir, a.logger).Run(ctx, a.library())
	if err != nil {
		return err
	}
	fmt.Printf("Imported %d exams, %d unchanged, %d errors.\n", len(report.Imported), report.Unchanged, len(report.Errors))
	for _, e := range report.Errors {
		fmt.Printf("- %s\n", e)
	}
	return nil
}

func (a *app) importFiles(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return errors.New("import needs at least one exam file")
	}
	var failed int
	for _, path := range paths {
		if err := a.importFile(ctx, path); err != nil {
			a.logger.Warn("Failed to import exam", "path", path, "error", err)
			failed++
			continue
		}
		fmt.Printf("%s\t%s\n", a.session.ID(), path)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed to import", failed, len(paths))
	}
	return nil
}

func (a *app) importFile(ctx context.Context, path string) error {
	doc, err := sync.ReadFile(path)
	if err != nil {
		return err
	}
	return a.session.Load(ctx, doc, a.ids.Next())
}

func (a *app) generate(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("generate needs a topic")
	}
	gen, err := a.generator(ctx)
	if err != nil {
		return err
	}

	req := generate.Request{Prompt: args[0]}
	for _, path := range args[1:] {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		mimeType := mime.TypeByExtension(filepath.Ext(path))
		if mimeType == "" {
			mimeType = http.DetectContentType(data)
		}
		req.Attachments = append(req.Attachments, generate.Attachment{
			Name:     filepath.Base(path),
			MIMEType: mimeType,
			Data:     data,
		})
	}

	doc, err := gen.Generate(ctx, req)
	if err != nil {
		return err
	}
	id := a.ids.NextGenerated()
	if err := a.session.Load(ctx, doc, id); err != nil {
		return err
	}
	fmt.Printf("Generated %q with %d questions (%s).\n", doc.Title, len(doc.Questions), id)
	return nil
}

func (a *app) due(ctx context.Context, args []string) error {
	var tag string
	if len(args) > 0 {
		tag = args[0]
	}
	if err := a.queue.Build(ctx, tag); err != nil {
		return err
	}

	st := a.queue.Stats()
	fmt.Printf("%d due, %d learning, %d in review, %d total.\n", st.DueCount, st.LearningCount, st.ReviewCount, st.Total)
	if c := a.queue.Current(); c != nil {
		fmt.Printf("Next: %s (%s)\n", c.Front, c.ID)
	}
	return nil
}
