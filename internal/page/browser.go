package page

import (
	"fmt"
	"os/exec"
	"runtime"
	"sync"

	"github.com/launchcart/widgets/internal/cart"
)

// Navigator is how widgets leave the page.
type Navigator = cart.Navigator

// Browser hands navigations to the system browser.
type Browser struct {
	current string

	mu      sync.Mutex
	last    string
	command func(url string) *exec.Cmd
}

// NewBrowser returns a navigator whose return address is current.
func NewBrowser(current string) *Browser {
	return &Browser{current: current, command: openCommand}
}

func (b *Browser) Current() string { return b.current }

// Navigate opens url without waiting for the browser to exit.
func (b *Browser) Navigate(url string) error {
	b.mu.Lock()
	b.last = url
	b.mu.Unlock()

	cmd := b.command(url)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("opening %s: %w", url, err)
	}
	go cmd.Wait()
	return nil
}

// Last returns the most recent navigation target.
func (b *Browser) Last() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last
}

func openCommand(url string) *exec.Cmd {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url)
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return exec.Command("xdg-open", url)
	}
}
