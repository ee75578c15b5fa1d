package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"fyne.io/fyne/v2/app"

	"github.com/dixieflatline76/squareframe/asset"
	"github.com/dixieflatline76/squareframe/config"
	"github.com/dixieflatline76/squareframe/pkg/api"
	"github.com/dixieflatline76/squareframe/pkg/frame"
	"github.com/dixieflatline76/squareframe/ui"
	"github.com/dixieflatline76/squareframe/util/log"
)

const usage = `Usage: squareframe [command] [flags]

Commands:
  gui      open the desktop viewer (default)
  serve    run the local browser API
  render   frame one image and write the JPEG

Run "squareframe <command> -h" for command flags.
`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	cmd := "gui"
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "gui":
		return guiCmd(args)
	case "serve":
		return serveCmd(args)
	case "render":
		return renderCmd(args, stdout)
	case "help":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		return fmt.Errorf("unknown command %q\n\n%s", cmd, usage)
	}
}

// sessionFromConfig builds a session with the user's saved preferences.
func sessionFromConfig(cfg *config.AppConfig) *frame.Session {
	opts := frame.DefaultOptions()
	if interp, err := frame.InterpolatorByName(cfg.GetInterpolation()); err == nil {
		opts.Interpolator = interp
	} else {
		log.Printf("Ignoring saved resampling: %v", err)
	}
	opts.JPEGQuality = cfg.GetJPEGQuality()
	opts.AutoFrame = cfg.GetAutoFrame()
	opts.Faces = loadFaceFinder()
	opts.FaceBoost = cfg.GetFaceBoost()
	return frame.NewSession(opts)
}

// loadFaceFinder unpacks the embedded face cascade. It returns nil when the
// cascade is missing, which leaves auto-frame on saliency alone.
func loadFaceFinder() frame.FaceFinder {
	modelData, err := asset.NewManager().GetModel("facefinder")
	if err != nil {
		log.Printf("Warning: Failed to load face detection model: %v. Face Boost will be disabled.", err)
		return nil
	}
	finder, err := frame.NewPigoFaceFinder(modelData)
	if err != nil {
		log.Printf("Warning: Failed to unpack face detection model: %v. Face Boost will be disabled.", err)
		return nil
	}
	return finder
}

func newServer(session *frame.Session, addr string) *api.Server {
	page, err := asset.NewManager().GetWebPage("index.html")
	if err != nil {
		log.Printf("Browser page unavailable: %v", err)
	}
	return api.NewServer(session, api.WithAddr(addr), api.WithPage(page))
}

func guiCmd(args []string) error {
	fs := flag.NewFlagSet("gui", flag.ContinueOnError)
	serve := fs.Bool("serve", false, "also run the local browser API")
	if err := fs.Parse(args); err != nil {
		return err
	}

	acquired, err := acquireLock()
	if err != nil {
		return fmt.Errorf("checking for another instance: %w", err)
	}
	if !acquired {
		log.Printf("Another instance of %s is already running.", config.AppName)
		return nil
	}
	defer releaseLock()

	a := app.NewWithID(config.AppID)
	cfg := config.NewAppConfig(a.Preferences())
	session := sessionFromConfig(cfg)

	if *serve {
		srv := newServer(session, cfg.GetServerAddr())
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("Local API stopped: %v", err)
			}
		}()
		defer srv.Stop()
	}

	viewer := ui.NewViewer(a, session, cfg)
	if path := fs.Arg(0); path != "" {
		openAtStartup(session, path)
	}
	viewer.ShowAndRun()
	return nil
}

// openAtStartup loads a file named on the command line.
func openAtStartup(session *frame.Session, path string) {
	f, err := os.Open(path)
	if err != nil {
		log.Printf("Opening %s failed: %v", path, err)
		return
	}
	session.LoadAsync(filepath.Base(path), f, func(error) {
		f.Close()
	})
}

func serveCmd(args []string) error {
	a := app.NewWithID(config.AppID)
	cfg := config.NewAppConfig(a.Preferences())

	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fs.String("addr", cfg.GetServerAddr(), "listen address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	srv := newServer(sessionFromConfig(cfg), *addr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("Shutting down")
		if err := srv.Stop(); err != nil {
			log.Printf("Shutdown failed: %v", err)
		}
	}()

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// renderOptions are the flags of the render command.
type renderOptions struct {
	zoom      float64
	panX      float64
	panY      float64
	autoFrame bool
	faces     bool
	interp    string
	quality   int
	outDir    string
}

func renderCmd(args []string, stdout io.Writer) error {
	var opts renderOptions
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	fs.SetOutput(stdout)
	fs.Float64Var(&opts.zoom, "zoom", frame.MinZoom, "zoom factor, 1 to 10")
	fs.Float64Var(&opts.panX, "pan-x", 0, "horizontal pan in frame pixels")
	fs.Float64Var(&opts.panY, "pan-y", 0, "vertical pan in frame pixels")
	fs.BoolVar(&opts.autoFrame, "auto", false, "start from the auto-frame suggestion")
	fs.BoolVar(&opts.faces, "faces", false, "keep detected faces in the auto-frame suggestion")
	fs.StringVar(&opts.interp, "interp", frame.InterpBiLinear, "resampling kernel")
	fs.IntVar(&opts.quality, "quality", frame.DefaultJPEGQuality, "JPEG quality, 1 to 100")
	fs.StringVar(&opts.outDir, "out", ".", "output directory")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "Usage: squareframe render [flags] <image>")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errors.New("render needs exactly one image")
	}

	out, err := renderFile(context.Background(), fs.Arg(0), opts)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, out)
	return nil
}

// renderFile frames the image at path and writes the export into outDir.
// It returns the path written.
func renderFile(ctx context.Context, path string, opts renderOptions) (string, error) {
	interp, err := frame.InterpolatorByName(opts.interp)
	if err != nil {
		return "", err
	}
	sessionOpts := frame.Options{
		Interpolator: interp,
		JPEGQuality:  opts.quality,
		AutoFrame:    opts.autoFrame,
	}
	if opts.faces {
		sessionOpts.Faces = loadFaceFinder()
		sessionOpts.FaceBoost = true
	}
	session := frame.NewSession(sessionOpts)

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	if err := session.Load(ctx, filepath.Base(path), f); err != nil {
		var le *frame.LoadError
		if errors.As(err, &le) {
			return "", fmt.Errorf("%s: %s", path, le.Message())
		}
		return "", err
	}

	if !opts.autoFrame || opts.zoom != frame.MinZoom {
		if _, err := session.SetZoom(opts.zoom); err != nil {
			return "", err
		}
	}
	if opts.panX != 0 || opts.panY != 0 {
		if _, err := session.AdjustPan(opts.panX, opts.panY); err != nil {
			return "", err
		}
	}

	snap := session.Snapshot()
	outPath := filepath.Join(opts.outDir, snap.ExportName)
	w, err := os.Create(outPath)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", outPath, err)
	}
	if _, err := session.Export(w); err != nil {
		w.Close()
		os.Remove(outPath)
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("writing %s: %w", outPath, err)
	}
	return outPath, nil
}
