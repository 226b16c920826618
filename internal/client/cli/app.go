package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/gatekeeper/internal/client/api"
	"github.com/dmitrijs2005/gatekeeper/internal/client/config"
	"github.com/dmitrijs2005/gatekeeper/internal/flagx"
	"github.com/dmitrijs2005/gatekeeper/internal/server/httpapi"
)

// API is the subset of the HTTP client used by the commands.
type API interface {
	Register(ctx context.Context, req httpapi.RegisterRequest) (*httpapi.AuthResponse, error)
	Authenticate(ctx context.Context, email, password string) (*httpapi.AuthResponse, error)
	Me(ctx context.Context) (*httpapi.MeResponse, error)
	Delete(ctx context.Context, email string) (*httpapi.DeleteResponse, error)
}

var ErrUsage = errors.New("usage: gatekeeper [-a url] [-t token] [-w seconds] [-c file] register|login|whoami|delete <email>")

type App struct {
	config *config.Config
	api    API
	reader *bufio.Reader
	out    io.Writer
}

func NewApp(c *config.Config) *App {
	return &App{
		config: c,
		api:    api.NewClient(c.ServerURL, c.Token, c.RequestTimeout),
		reader: bufio.NewReader(os.Stdin),
		out:    os.Stdout,
	}
}

// Run dispatches the first positional argument to its command.
func (a *App) Run(ctx context.Context, args []string) error {
	pos := flagx.Positional(args, config.Flags)
	if len(pos) == 0 {
		return ErrUsage
	}

	switch pos[0] {
	case "register":
		return a.Register(ctx)
	case "login":
		return a.Login(ctx)
	case "whoami":
		return a.WhoAmI(ctx)
	case "delete":
		if len(pos) != 2 {
			return ErrUsage
		}
		return a.Delete(ctx, pos[1])
	default:
		return fmt.Errorf("unknown command %q: %w", pos[0], ErrUsage)
	}
}

func (a *App) requireToken() error {
	if a.config.Token == "" {
		return errors.New("no token: log in and pass it with -t or GATEKEEPER_TOKEN")
	}
	return nil
}
