package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/launchcart/widgets/internal/page"
	"github.com/launchcart/widgets/internal/session"
)

// SessionInfo is the output of session get.
type SessionInfo struct {
	Origin string `json:"origin"`
	CartID string `json:"cart_id,omitempty"`
}

// NewSessionCommand creates the session command group.
func NewSessionCommand(rootOpts *RootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect or reset the persisted cart session",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Print the cart id that will be resumed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, origin, err := openSessions(rootOpts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer store.Close()

			info := SessionInfo{Origin: origin}
			info.CartID, _ = store.Get(session.CartKey)
			return writeSession(cmd.OutOrStdout(), asJSON, info)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Forget the persisted cart so the next start gets a new one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, origin, err := openSessions(rootOpts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Clear(session.CartKey); err != nil {
				return err
			}
			if asJSON {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(SessionInfo{Origin: origin})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared cart session for %s\n", origin)
			return nil
		},
	})

	cmd.PersistentFlags().BoolVar(&asJSON, "json", false, "print JSON")

	return cmd
}

func openSessions(opts *RootOptions, logOut io.Writer) (*session.Store, string, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, "", err
	}
	storage, err := page.OpenStorage(cfg.Session)
	if err != nil {
		return nil, "", err
	}
	logger := slog.New(newHandler(opts, logOut))
	return session.NewStore(storage, cfg.Origin(), logger), cfg.Origin(), nil
}

func writeSession(w io.Writer, asJSON bool, info SessionInfo) error {
	if asJSON {
		return json.NewEncoder(w).Encode(info)
	}
	if info.CartID == "" {
		_, err := fmt.Fprintf(w, "%s: no cart\n", info.Origin)
		return err
	}
	_, err := fmt.Fprintf(w, "%s: %s\n", info.Origin, info.CartID)
	return err
}
