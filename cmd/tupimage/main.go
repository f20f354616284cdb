// tupimage displays and uploads images to Kitty-graphics-capable terminals.
//
// It allocates a stable image id for each (path, mtime, geometry) it is
// asked to show, skips re-uploading pixels the terminal has already seen,
// and paints the result as a grid of Unicode placeholder cells so the
// image survives scrollback and pane resizes.
//
// Usage:
//
//	tupimage -display path/to/image.png
//	tupimage -upload path/to/image.png
//	tupimage -info 12345
//	tupimage -list
//	tupimage -cleanup
//
// Flags:
//
//	-display path    Upload (if needed) and display an image inline
//	-upload path     Upload an image without displaying it
//	-info id         Print the stored record for an image id
//	-list            List every id in the configured namespace/subspace
//	-cleanup         Trim the upload ledger across all known terminals
//	-config path     Path to configuration file (default: XDG search path)
//	-cols int        Explicit column count (0 = derive from fit)
//	-rows int        Explicit row count (0 = derive from fit)
//	-force-reupload  Always upload, ignoring freshness checks
//	-terminal-id id  Override the auto-resolved terminal identity
//	-verbose         Enable debug logging
//	-version         Print version and exit
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/charmbracelet/x/ansi"

	"github.com/sergei-grechanik/tupimage-go/pkg/config"
	"github.com/sergei-grechanik/tupimage-go/pkg/graphicsterm"
	"github.com/sergei-grechanik/tupimage-go/pkg/idmanager"
	"github.com/sergei-grechanik/tupimage-go/pkg/idspace"
	"github.com/sergei-grechanik/tupimage-go/pkg/termident"
	"github.com/sergei-grechanik/tupimage-go/pkg/terminal"
	"github.com/sergei-grechanik/tupimage-go/pkg/tupimage"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	var (
		displayPath    = flag.String("display", "", "Upload (if needed) and display an image")
		uploadPath     = flag.String("upload", "", "Upload an image without displaying it")
		infoID         = flag.Uint64("info", 0, "Print the stored record for an image id")
		runList        = flag.Bool("list", false, "List every id in the configured namespace/subspace")
		runCleanup     = flag.Bool("cleanup", false, "Trim the upload ledger across all known terminals")
		configPath     = flag.String("config", "", "Path to configuration file")
		cols           = flag.Int("cols", 0, "Explicit column count (0 = derive from fit)")
		rows           = flag.Int("rows", 0, "Explicit row count (0 = derive from fit)")
		forceReupload  = flag.Bool("force-reupload", false, "Always upload, ignoring freshness checks")
		terminalIDFlag = flag.String("terminal-id", "", "Override the auto-resolved terminal identity")
		verbose        = flag.Bool("verbose", false, "Enable debug logging")
		showVersion    = flag.Bool("version", false, "Print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("tupimage %s (%s) built %s\n", version, commit, date)
		os.Exit(0)
	}

	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFromFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("received shutdown signal")
		cancel()
	}()

	app, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	switch {
	case *displayPath != "":
		err = app.display(ctx, *displayPath, displayFlags{cols: *cols, rows: *rows, force: *forceReupload, terminalID: *terminalIDFlag})
	case *uploadPath != "":
		err = app.upload(ctx, *uploadPath, displayFlags{cols: *cols, rows: *rows, force: *forceReupload, terminalID: *terminalIDFlag})
	case *infoID != 0:
		err = app.info(ctx, uint32(*infoID))
	case *runList:
		err = app.list(ctx)
	case *runCleanup:
		err = app.cleanup(ctx)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// app bundles the long-lived resources a single invocation needs: the id
// database, the graphics terminal, and the derived id-space defaults.
type app struct {
	cfg  *config.Config
	ids  *idmanager.Manager
	term *graphicsterm.GraphicsTerminal
	tidb *termident.Store
	log  *slog.Logger

	ns  idspace.Namespace
	sub idspace.Subspace

	placeholderChar rune
}

func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	if err := os.MkdirAll(cfg.IDDatabaseDir, 0755); err != nil {
		return nil, fmt.Errorf("create id database dir: %w", err)
	}

	ids, err := idmanager.Open(ctx, filepath.Join(cfg.IDDatabaseDir, "ids.sqlite"),
		idmanager.WithMaxPerSubspace(cfg.MaxIDsPerSubspace), idmanager.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("open id database: %w", err)
	}

	tidb, err := termident.NewStore(termident.StoreConfig{
		Dir:             filepath.Join(cfg.IDDatabaseDir, "terminal-ids"),
		CleanupInterval: time.Hour,
	})
	if err != nil {
		ids.Close()
		return nil, fmt.Errorf("open terminal identity store: %w", err)
	}

	ns, err := resolveNamespace(cfg.IDColorBits, cfg.IDUse3rdDiacritic)
	if err != nil {
		ids.Close()
		tidb.Close()
		return nil, err
	}
	sub := idspace.Full
	if cfg.IDSubspace != "" {
		sub, err = idspace.ParseSubspace(cfg.IDSubspace)
		if err != nil {
			ids.Close()
			tidb.Close()
			return nil, fmt.Errorf("parse id_subspace: %w", err)
		}
	}

	term := graphicsterm.New(os.Stdout, os.Stdin, os.Stdout.Fd(), graphicsterm.Config{
		MaxCommandSize: cfg.MaxCommandSize,
		NumMuxLayers:   cfg.NumTmuxLayers,
		Log:            log,
	})

	placeholderChar, err := config.ResolvePlaceholderChar(cfg.PlaceholderChar)
	if err != nil {
		ids.Close()
		tidb.Close()
		return nil, fmt.Errorf("parse placeholder_char: %w", err)
	}

	return &app{cfg: cfg, ids: ids, term: term, tidb: tidb, log: log, ns: ns, sub: sub, placeholderChar: placeholderChar}, nil
}

// resolveNamespace matches the configured (color bits, 3rd diacritic)
// pair against the five legal namespaces, defaulting to 24-bit color.
func resolveNamespace(colorBits int, use3rd bool) (idspace.Namespace, error) {
	if colorBits == 0 && !use3rd {
		colorBits = 24
	}
	want := idspace.Namespace{ColorBits: colorBits, Use3rdDiacritic: use3rd}
	for _, ns := range idspace.AllValues() {
		if ns == want {
			return ns, nil
		}
	}
	return idspace.Namespace{}, fmt.Errorf("invalid id_color_bits/id_use_3rd_diacritic combination: %d/%v", colorBits, use3rd)
}

func (a *app) Close() {
	a.ids.Close()
	a.tidb.Close()
}

func (a *app) cellSize() (w, h int) {
	if a.cfg.CellSize.Auto {
		size := terminal.GetSizeFromFd(os.Stdout.Fd())
		if size.CellW > 0 && size.CellH > 0 {
			return size.CellW, size.CellH
		}
	} else if a.cfg.CellSize.Width > 0 && a.cfg.CellSize.Height > 0 {
		return a.cfg.CellSize.Width, a.cfg.CellSize.Height
	}
	return a.cfg.DefaultCellSize.Width, a.cfg.DefaultCellSize.Height
}

func (a *app) resolveTerminalID(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	return termident.Resolve(a.tidb, os.Stdout.Fd())
}

func (a *app) uploadMethod() tupimage.Medium {
	switch a.cfg.UploadMethod {
	case "direct":
		return tupimage.MediumDirect
	case "file":
		return tupimage.MediumFile
	case "temp_file":
		return tupimage.MediumTempFile
	default:
		return tupimage.MediumAuto
	}
}

type displayFlags struct {
	cols, rows int
	force      bool
	terminalID string
}

func (a *app) options(f displayFlags) (tupimage.Options, error) {
	terminalID, err := a.resolveTerminalID(f.terminalID)
	if err != nil {
		return tupimage.Options{}, fmt.Errorf("resolve terminal id: %w", err)
	}
	return tupimage.Options{
		Namespace: a.ns,
		Subspace:  a.sub,

		TerminalID: terminalID,

		Cols: f.cols, Rows: f.rows,
		MaxCols: a.cfg.MaxCols, MaxRows: a.cfg.MaxRows,
		Scale: a.cfg.Scale,

		ForceReupload:         f.force || a.cfg.ForceReupload,
		ReuploadMaxUploadsAgo: a.cfg.ReuploadMaxUploadsAgo,
		ReuploadMaxBytesAgo:   a.cfg.ReuploadMaxBytesAgo,
		ReuploadMaxSecondsAgo: a.cfg.ReuploadMaxSecondsAgo.Duration,

		UploadMethod:     a.uploadMethod(),
		SupportedFormats: a.cfg.SupportedFormats,
		FileMaxSize:      a.cfg.FileMaxSize,
		MaxUploadSize:    a.cfg.MaxUploadSize,
		CheckResponse:    a.cfg.CheckResponse,
		CheckResponseTimeout: a.cfg.CheckResponseTimeout.Duration,

		FewerDiacritics: a.cfg.FewerDiacritics,
		PlaceholderChar: a.placeholderChar,
		Background:      a.cfg.Background,

		IsSSH: isSSH(),
	}, nil
}

func isSSH() bool {
	return os.Getenv("SSH_TTY") != "" || os.Getenv("SSH_CONNECTION") != "" || os.Getenv("SSH_CLIENT") != ""
}

func (a *app) display(ctx context.Context, path string, f displayFlags) error {
	caps := terminal.DetectCapabilities()
	if caps.Protocol != terminal.ProtocolKitty {
		return fmt.Errorf("terminal %s does not support the Kitty graphics protocol", caps.Term)
	}

	opts, err := a.options(f)
	if err != nil {
		return err
	}
	cellW, cellH := a.cellSize()
	orc := tupimage.New(a.ids, a.term, cellW, cellH, a.log)

	res, err := orc.UploadAndDisplay(ctx, tupimage.Image{Path: path}, opts)
	if err != nil {
		return err
	}
	a.log.Debug("displayed image", "id", res.ImageID, "cols", res.Cols, "rows", res.Rows, "uploaded", res.Uploaded)
	return nil
}

func (a *app) upload(ctx context.Context, path string, f displayFlags) error {
	opts, err := a.options(f)
	if err != nil {
		return err
	}
	cellW, cellH := a.cellSize()
	orc := tupimage.New(a.ids, a.term, cellW, cellH, a.log)

	res, err := orc.Upload(ctx, tupimage.Image{Path: path}, opts)
	if err != nil {
		return err
	}
	fmt.Printf("id=%d bytes_uploaded=%d uploaded=%v\n", res.ImageID, res.BytesUploaded, res.Uploaded)
	return nil
}

func (a *app) info(ctx context.Context, id uint32) error {
	rec, err := a.ids.GetInfo(ctx, id)
	if err != nil {
		return err
	}
	if rec == nil {
		fmt.Printf("id %d: not found\n", id)
		return nil
	}
	fmt.Printf("id=%d description=%s atime=%s\n", rec.ID, a.truncateForTerminal(rec.Description), rec.ATime.Format(time.RFC3339))
	return nil
}

func (a *app) list(ctx context.Context) error {
	recs, err := a.ids.GetAll(ctx, a.ns, a.sub)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		fmt.Printf("id=%d description=%s atime=%s\n", rec.ID, a.truncateForTerminal(rec.Description), rec.ATime.Format(time.RFC3339))
	}
	return nil
}

// truncateForTerminal shortens s to fit a single terminal-width line,
// leaving room for the surrounding id= and atime= fields. Descriptions
// are free-form filesystem paths and can run far longer than a line.
func (a *app) truncateForTerminal(s string) string {
	const reserved = 48 // room for "id=... " and " atime=..."
	width := terminal.GetSizeFromFd(os.Stdout.Fd()).Cols - reserved
	if width <= 0 || ansi.StringWidth(s) <= width {
		return s
	}
	return ansi.Truncate(s, width, "...")
}

func (a *app) cleanup(ctx context.Context) error {
	return a.ids.CleanupUploads(ctx,
		a.cfg.ReuploadMaxUploadsAgo, a.cfg.ReuploadMaxBytesAgo, a.cfg.ReuploadMaxSecondsAgo.Duration)
}
