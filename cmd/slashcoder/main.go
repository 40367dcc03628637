// cmd/slashcoder/main.go
package main

import (
	"bufio"
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/slashcoder/slashcoder-client/internal/api"
	"github.com/slashcoder/slashcoder-client/internal/auth"
	"github.com/slashcoder/slashcoder-client/internal/channel"
	"github.com/slashcoder/slashcoder-client/internal/config"
	"github.com/slashcoder/slashcoder-client/internal/models"
	"github.com/slashcoder/slashcoder-client/internal/rank"
	"github.com/slashcoder/slashcoder-client/internal/realtime"
	"github.com/slashcoder/slashcoder-client/internal/session"
	"github.com/slashcoder/slashcoder-client/internal/team"
)

func main() {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	cfg := config.Load()

	var apiClient *api.Client
	tokens := auth.NewManager(cfg.DataDir, func(ctx context.Context, current string) (string, error) {
		return apiClient.Refresh(ctx, current)
	}, logger)
	apiClient = api.NewClient(cfg.APIBase, tokens, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if tokens.Token() == "" {
		logger.Fatal("no stored credentials; sign up first and place the session in the profile dir")
	}
	identity, err := apiClient.VerifyToken(ctx)
	if err != nil {
		logger.Fatalf("session verification failed: %v", err)
	}
	if err := tokens.SetCredentials(auth.Credentials{
		Token:    tokens.Token(),
		UID:      identity.UID,
		Username: identity.Username,
	}); err != nil {
		logger.Fatalf("persist credentials: %v", err)
	}
	logger.WithFields(logrus.Fields{"uid": identity.UID, "username": identity.Username}).Info("signed in")

	cache := session.NewCache(cfg.ProfileDir(identity.UID))

	events := channel.New(cfg.SocketURL, logger,
		channel.WithTokenSource(tokens),
		channel.WithPendingSink(cache),
	)
	if err := events.Connect(ctx); err != nil {
		logger.Fatalf("event channel: %v", err)
	}
	defer events.Close()

	gateway := realtime.NewGateway(cfg.GatewayURL, logger, tokens)
	if err := gateway.Connect(ctx); err != nil {
		logger.Fatalf("realtime gateway: %v", err)
	}
	defer gateway.Close()

	state := realtime.NewAppState(gateway, logger)
	state.OnChange = func() {
		if p, ok := state.Profile(); ok {
			tier := rank.TierFor(p.XP)
			logger.WithFields(logrus.Fields{
				"xp":    p.XP,
				"level": p.Level(),
				"tier":  tier.Name,
			}).Debug("profile updated")
		}
	}
	state.StartAll(ctx, identity.UID)
	defer state.StopAll()

	controller := session.NewController(events, cache, logger, session.Hooks{
		OnPhase: func(p models.Phase) {
			logger.WithField("phase", p).Info("session phase")
		},
		OnNavigate: func(view string) {
			logger.WithField("view", view).Info("navigate")
		},
		OnResult: func(r models.BattleResult) {
			logger.WithFields(logrus.Fields{"winner": r.Winner, "summary": r.Summary}).Info("battle result")
		},
		OnStatus: func(msg string) {
			logger.WithField("msg", msg).Info("queue status")
		},
	},
		session.WithQueueTimeout(cfg.QueueTimeout),
		session.WithFinishDelay(cfg.FinishDelay),
	)
	controller.Start()
	defer controller.Close()

	teams := team.NewService(gateway, logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return tokens.Run(ctx)
	})
	g.Go(func() error {
		return commandLoop(ctx, logger, tokens, controller, teams, state)
	})

	logger.Info("slashcoder client running; ctrl-c to exit")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("client exited: %v", err)
	}
}

// commandLoop drives the client from stdin. One command per line; unknown
// input prints the command list.
func commandLoop(ctx context.Context, logger *logrus.Logger, tokens *auth.Manager, controller *session.Controller, teams *team.Service, state *realtime.AppState) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		var line string
		select {
		case <-ctx.Done():
			return ctx.Err()
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			line = l
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		var err error
		switch fields[0] {
		case "queue":
			err = controller.JoinQueue(tokens.UID(), tokens.Username())
		case "cancel":
			controller.CancelSearch()
		case "arena":
			if !controller.MountArena() {
				logger.Info("no active match to resume")
			}
		case "run":
			lang, rest := parseLanguage(fields[1:])
			err = controller.Run(lang, readSource(rest), "")
		case "submit":
			lang, rest := parseLanguage(fields[1:])
			err = controller.Submit(lang, readSource(rest))
		case "forfeit":
			err = controller.Forfeit()
		case "team":
			err = teamCommand(ctx, logger, tokens, teams, fields[1:])
		case "me":
			if p, ok := state.Profile(); ok {
				tier := rank.TierFor(p.XP)
				logger.Infof("%s %s %s: %d xp, level %d, %dW/%dL", tier.Emoji, tier.Name, p.Username, p.XP, p.Level(), p.Wins, p.Losses)
			}
		case "board":
			for _, e := range state.Leaderboard() {
				logger.Infof("#%d %s (%d xp)", e.Rank, e.Username, e.XP)
			}
		case "matches":
			for _, m := range state.Matches() {
				logger.Infof("%s vs %s: %+d xp", m.Result, m.Opponent, m.XPChange)
			}
		case "quit":
			return context.Canceled
		default:
			logger.Info("commands: queue cancel arena run [lang] [file] submit [lang] [file] forfeit team me board matches quit")
		}
		if err != nil {
			logger.WithField("error", err).Warn("command failed")
		}
	}
}

func teamCommand(ctx context.Context, logger *logrus.Logger, tokens *auth.Manager, teams *team.Service, args []string) error {
	if len(args) == 0 {
		logger.Info("usage: team create <name> | team join <code> | team leave")
		return nil
	}
	switch args[0] {
	case "create":
		if len(args) < 2 {
			logger.Info("usage: team create <name>")
			return nil
		}
		id, err := teams.Create(ctx, tokens.UID(), tokens.Username(), strings.Join(args[1:], " "))
		if err == nil {
			logger.WithField("team_id", id).Info("team created")
		}
		return err
	case "join":
		if len(args) < 2 {
			logger.Info("usage: team join <code>")
			return nil
		}
		id, err := teams.JoinByCode(ctx, tokens.UID(), tokens.Username(), args[1])
		if err == nil {
			logger.WithField("team_id", id).Info("joined team")
		}
		return err
	case "leave":
		return teams.Leave(ctx, tokens.UID())
	default:
		logger.Info("usage: team create <name> | team join <code> | team leave")
		return nil
	}
}

// languages the arena sandbox accepts.
var languages = map[string]bool{
	"python":     true,
	"javascript": true,
	"cpp":        true,
	"java":       true,
}

// parseLanguage peels an optional leading language argument off a
// run/submit command, defaulting to python.
func parseLanguage(args []string) (string, []string) {
	if len(args) > 0 && languages[args[0]] {
		return args[0], args[1:]
	}
	return "python", args
}

// readSource loads the solution buffer from a file argument, falling back
// to a hello-world stub so the flow stays testable without an editor.
func readSource(args []string) string {
	if len(args) > 0 {
		if data, err := os.ReadFile(args[0]); err == nil {
			return string(data)
		}
	}
	return "print('hello')"
}
