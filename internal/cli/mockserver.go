package cli

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/launchcart/widgets/internal/mockserver"
)

// MockServerOptions holds flags for the mock-server command.
type MockServerOptions struct {
	Addr    string
	Patches bool
}

// NewMockServerCommand creates the mock-server command.
func NewMockServerCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MockServerOptions{}

	cmd := &cobra.Command{
		Use:   "mock-server",
		Short: "Serve an in-memory LiveState backend for local development",
		Long: `Serve launch_cart and launch_form channels, a catalog API and a fake
checkout page. Carts live in memory and are lost on exit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			addr := opts.Addr
			if addr == "" {
				addr = cfg.MockAddr()
			}

			logger := slog.New(newHandler(rootOpts, cmd.ErrOrStderr()))
			srv := mockserver.NewServer(mockserver.Options{Patches: opts.Patches, Logger: logger})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := srv.ListenAndServe(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (default from mock.host and mock.port)")
	cmd.Flags().BoolVar(&opts.Patches, "patches", false, "send cart updates as JSON patches")

	return cmd
}
