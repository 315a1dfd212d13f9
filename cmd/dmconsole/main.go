// dmconsole plays a campaign from the terminal against the local database.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"dungeonmaster/internal/app"
	"dungeonmaster/pkg/config"
	"dungeonmaster/pkg/dice"
	"dungeonmaster/pkg/game"
	"dungeonmaster/pkg/persistence"
	"dungeonmaster/pkg/router"
	"dungeonmaster/pkg/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "dmconsole: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath, dbPath, campaignID, name string
	var showVersion bool

	flags := pflag.NewFlagSet("dmconsole", pflag.ContinueOnError)
	flags.StringVarP(&configPath, "config", "c", "", "path to YAML config")
	flags.StringVar(&dbPath, "db", "", "sqlite database path (overrides database.path)")
	flags.StringVar(&campaignID, "campaign", "", "campaign to continue (default: newest, or a new one)")
	flags.StringVar(&name, "name", "", "name for a new campaign")
	flags.BoolVar(&showVersion, "version", false, "print version and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err //nolint:wrapcheck // pflag errors are user-facing
	}
	if showVersion {
		fmt.Println(version.String("dmconsole"))
		return nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err //nolint:wrapcheck // already describes the failure
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}

	a, err := app.Setup(cfg)
	if err != nil {
		return err //nolint:wrapcheck // already describes the failure
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := &console{game: a.Game, out: os.Stdout, roller: dice.NewRoller()}
	sess, err := c.resume(ctx, campaignID, name)
	if err != nil {
		return err
	}
	return c.loop(ctx, sess, os.Stdin)
}

type console struct {
	game   *game.Service
	out    io.Writer
	roller *dice.Roller
}

// resume picks the campaign and its open session, creating either when missing.
func (c *console) resume(ctx context.Context, campaignID, name string) (*persistence.Session, error) {
	var campaign *persistence.Campaign
	switch {
	case campaignID != "":
		got, err := c.game.GetCampaign(ctx, campaignID)
		if err != nil {
			return nil, err //nolint:wrapcheck // store errors carry context
		}
		campaign = got
	default:
		list, err := c.game.ListCampaigns(ctx)
		if err != nil {
			return nil, err //nolint:wrapcheck // store errors carry context
		}
		if len(list) > 0 && name == "" {
			campaign = list[0]
		} else {
			created, err := c.game.CreateCampaign(ctx, game.CampaignRequest{Name: name})
			if err != nil {
				return nil, err //nolint:wrapcheck // already describes the failure
			}
			campaign = created
		}
	}

	sess, err := c.game.ActiveSession(ctx, campaign.ID)
	if errors.Is(err, persistence.ErrSessionNotFound) {
		fmt.Fprintf(c.out, "Planning session for %s...\n", campaign.Name)
		sess, err = c.game.CreateSession(ctx, campaign.ID)
	}
	if err != nil {
		return nil, err //nolint:wrapcheck // already describes the failure
	}
	fmt.Fprintf(c.out, "%s, session %d (%s). Type /help for commands.\n\n", campaign.Name, sess.Number, sess.ID)
	return sess, nil
}

func (c *console) loop(ctx context.Context, sess *persistence.Session, in *os.File) error {
	interactive := term.IsTerminal(int(in.Fd()))
	scanner := bufio.NewScanner(in)
	for {
		if interactive {
			fmt.Fprint(c.out, "> ")
		}
		if !scanner.Scan() {
			return scanner.Err() //nolint:wrapcheck // stdin read error
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if done := c.handle(ctx, sess, line); done {
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// handle runs one line and reports whether the console should exit.
func (c *console) handle(ctx context.Context, sess *persistence.Session, line string) bool {
	cmd, arg, _ := strings.Cut(line, " ")
	switch cmd {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Fprintln(c.out, "/roll NdS+M  roll dice\n/scene       show the scene\n/recap       show the recent recap\n/close       close the session and quit\n/quit        leave without closing")
	case "/roll":
		res, err := c.roller.Roll(arg)
		if err != nil {
			fmt.Fprintf(c.out, "%v\n", err)
			return false
		}
		fmt.Fprintf(c.out, "%s: %v %+d = %d\n", res.Formula, res.Rolls, res.Mod, res.Total)
	case "/scene":
		current, err := c.game.GetSession(ctx, sess.ID)
		if err != nil {
			fmt.Fprintf(c.out, "%v\n", err)
			return false
		}
		fmt.Fprintln(c.out, current.Scene.JSON())
	case "/recap":
		recap, err := c.game.Recap(ctx, sess.ID)
		if err != nil {
			fmt.Fprintf(c.out, "%v\n", err)
			return false
		}
		fmt.Fprintln(c.out, recap)
	case "/close":
		closed, err := c.game.CloseSession(ctx, sess.ID)
		if err != nil {
			fmt.Fprintf(c.out, "%v\n", err)
			return false
		}
		fmt.Fprintf(c.out, "Session closed.\n%s\n", closed.Summary)
		return true
	default:
		out, err := c.game.PlayTurn(ctx, sess.ID, line)
		if err != nil {
			var te *router.TurnError
			if errors.As(err, &te) {
				fmt.Fprintln(c.out, te.PlayerMessage())
			} else {
				fmt.Fprintf(c.out, "%v\n", err)
			}
			return false
		}
		fmt.Fprintf(c.out, "\n%s\n\n", out.Narrative)
	}
	return false
}
