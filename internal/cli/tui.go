package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/launchcart/widgets/internal/app"
	"github.com/launchcart/widgets/internal/cart"
	"github.com/launchcart/widgets/internal/form"
	"github.com/launchcart/widgets/internal/page"
	"github.com/launchcart/widgets/internal/session"
	"github.com/launchcart/widgets/internal/views/debug"
	"github.com/launchcart/widgets/internal/views/formview"
)

// TUIOptions holds flags for the tui command.
type TUIOptions struct {
	StoreID string
	FormID  string
	NoForm  bool
	NoCart  bool
	LogFile string
	Style   string
}

// NewTUICommand creates the tui command.
func NewTUICommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TUIOptions{}

	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Run the cart and form widgets in the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd.Context(), rootOpts, opts)
		},
	}

	cmd.Flags().StringVar(&opts.StoreID, "store", "", "store id (overrides widgets.store_id)")
	cmd.Flags().StringVar(&opts.FormID, "form", "", "form id (overrides widgets.form_id)")
	cmd.Flags().BoolVar(&opts.NoForm, "no-form", false, "hide the form panel")
	cmd.Flags().BoolVar(&opts.NoCart, "no-cart", false, "hide the cart panel")
	cmd.Flags().StringVar(&opts.LogFile, "log-file", "", "log file (default <state dir>/launch.log)")
	cmd.Flags().StringVar(&opts.Style, "style", "", "glamour style for form results (dark|light|notty, default auto)")

	return cmd
}

func runTUI(ctx context.Context, rootOpts *RootOptions, opts *TUIOptions) error {
	if opts.NoCart && opts.NoForm {
		return fmt.Errorf("nothing to show: both --no-cart and --no-form set")
	}
	cfg, err := loadConfig(rootOpts)
	if err != nil {
		return err
	}
	if opts.StoreID != "" {
		cfg.Widgets.StoreID = opts.StoreID
	}
	if opts.FormID != "" {
		cfg.Widgets.FormID = opts.FormID
	}

	// The terminal belongs to the UI, so logs go to a file and are mirrored
	// into the debug overlay.
	logPath := opts.LogFile
	if logPath == "" {
		dir := cfg.Session.StateDir
		if dir == "" {
			dir = session.DefaultDir()
		}
		logPath = filepath.Join(dir, "launch.log")
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0o700); err != nil {
		return fmt.Errorf("creating log dir: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer logFile.Close()

	events := app.NewEvents()
	defer events.Stop()
	logger := slog.New(debug.NewLogHandler(newHandler(rootOpts, logFile), events.Log))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := page.New(cfg, page.Deps{Logger: logger})
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Close(); err != nil {
			logger.Error("closing page", "error", err)
		}
	}()

	var (
		c *cart.Widget
		f *form.Widget
	)
	if !opts.NoCart {
		if c, err = p.Cart(ctx, cfg.Widgets.StoreID); err != nil {
			return fmt.Errorf("cart widget: %w", err)
		}
	}
	if !opts.NoForm {
		if f, err = p.Form(ctx, cfg.Widgets.FormID); err != nil {
			return fmt.Errorf("form widget: %w", err)
		}
	}

	logger.Info("starting tui", "socket", cfg.Socket.URL, "store", cfg.Widgets.StoreID, "form", cfg.Widgets.FormID)
	m := app.New(events, c, f, app.Options{
		Socket:     cfg.Socket.URL,
		FormFields: cfg.Widgets.FormFields,
		Renderer:   formview.NewResultRenderer(opts.Style),
	})
	prog := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := prog.Run(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
