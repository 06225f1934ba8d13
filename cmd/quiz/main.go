// Command quiz is the terminal client for a live quiz room. It joins a
// session, prints questions, the leaderboard and chat as they arrive, and
// reads answers from stdin. Lines starting with "/say " go to chat; "/quit"
// leaves; anything else is submitted as an answer to the current question.
//
// The connection is re-established with exponential backoff when it drops;
// every reconnect is a fresh channel, a fresh session and a fresh join.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cenkalti/backoff/v4"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/mathroom/mathroom/internal/channel"
	"github.com/mathroom/mathroom/internal/engine"
	"github.com/mathroom/mathroom/internal/roomlist"
	"github.com/mathroom/mathroom/internal/session"
)

const logWindow = 10

var errQuit = errors.New("quit")

func main() {
	_ = godotenv.Load()

	server := flag.String("server", envOr("QUIZ_SERVER", "http://localhost:3000"), "quiz server base URL")
	username := flag.String("username", envOr("QUIZ_USERNAME", "User123"), "display name in the session")
	sessionID := flag.String("session", envOr("QUIZ_SESSION", "session1"), "session (room) id to join")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	log := newLogger(*verbose)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	printRooms(ctx, *server, log)

	lines := make(chan string)
	go readLines(os.Stdin, lines)

	cfg := session.Config{SessionID: *sessionID, Username: *username}
	wsURL := toWSURL(*server) + "/ws"

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0 // keep reconnecting until told to quit

	err := backoff.Retry(func() error {
		return runOnce(ctx, cfg, wsURL, lines, bo, log)
	}, backoff.WithContext(bo, ctx))

	switch {
	case err == nil, errors.Is(err, errQuit), errors.Is(err, context.Canceled):
		fmt.Println("bye")
	default:
		log.Sugar().Fatalw("giving up", "err", err)
	}
}

// runOnce drives a single connection lifetime. A returned error asks the
// backoff loop for a reconnect; backoff.Permanent stops it.
func runOnce(ctx context.Context, cfg session.Config, wsURL string, lines <-chan string, bo *backoff.ExponentialBackOff, log *zap.Logger) error {
	adapter := channel.New(log)
	if err := adapter.Dial(ctx, wsURL); err != nil {
		log.Sugar().Warnw("dial failed", "err", err)
		return err
	}

	sess := session.New(ctx, cfg, adapter, log)
	defer func() { sess.Inbox() <- session.Shutdown{} }()

	if err := sess.Join(ctx); err != nil {
		return err
	}
	bo.Reset() // connected and handshaking: start backoff over on next drop

	pumpErr := make(chan error, 1)
	go func() { pumpErr <- adapter.Run(ctx) }()

	var last session.View
	for {
		select {
		case <-ctx.Done():
			return backoff.Permanent(ctx.Err())

		case err := <-pumpErr:
			if err != nil {
				log.Sugar().Warnw("connection lost", "err", err)
				return err
			}
			return errors.New("connection closed")

		case v, ok := <-sess.Updates():
			if !ok {
				return errors.New("session closed")
			}
			render(os.Stdout, &last, v)

		case line, ok := <-lines:
			if !ok {
				return backoff.Permanent(errQuit)
			}
			if done := handleLine(sess, last, line); done {
				return backoff.Permanent(errQuit)
			}
		}
	}
}

// handleLine turns one stdin line into a user intent. Invalid intents are
// silent no-ops inside the session; nothing is echoed back.
func handleLine(sess *session.Session, last session.View, line string) (done bool) {
	switch {
	case strings.TrimSpace(line) == "/quit":
		return true
	case strings.HasPrefix(line, "/say "):
		sess.Inbox() <- session.SendChat{Text: strings.TrimPrefix(line, "/say ")}
	default:
		sess.Inbox() <- session.SubmitAnswer{QuestionID: last.State.Question.ID, Text: line}
	}
	return false
}

// render prints what changed between two snapshots.
func render(w *os.File, prev *session.View, v session.View) {
	if v.State.Question != prev.State.Question && v.State.Question.Text != "" {
		if v.State.Question.Num > 0 && v.State.Question.Total > 0 {
			fmt.Fprintf(w, "\nProblem %d of %d: %s\n", v.State.Question.Num, v.State.Question.Total, v.State.Question.Text)
		} else {
			fmt.Fprintf(w, "\n%s\n", v.State.Question.Text)
		}
	}

	if !leaderboardEqual(prev.State.Leaderboard, v.State.Leaderboard) {
		fmt.Fprint(w, "Leaderboard:")
		for _, e := range v.State.Leaderboard {
			fmt.Fprintf(w, " %s=%d", e.Username, e.Score)
		}
		fmt.Fprintln(w)
	}

	switch {
	case len(v.State.Log) > len(prev.State.Log):
		// Incremental append: print only the new lines.
		for _, m := range v.State.Log[len(prev.State.Log):] {
			printLogLine(w, m)
		}
	case len(v.State.Log) < len(prev.State.Log):
		// Wholesale replace: reprint the display window.
		for _, m := range v.State.LogTail(logWindow) {
			printLogLine(w, m)
		}
	}

	*prev = v
}

func printLogLine(w *os.File, m engine.LogMessage) {
	if m.Username != "" {
		fmt.Fprintf(w, "[%s] %s\n", m.Username, m.Text)
		return
	}
	fmt.Fprintf(w, "* %s\n", m.Text)
}

func leaderboardEqual(a, b []engine.Entry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func printRooms(ctx context.Context, server string, log *zap.Logger) {
	rooms, err := roomlist.New(server).Rooms(ctx)
	if err != nil {
		// Not fatal: the lobby just shows an empty list.
		log.Sugar().Warnw("room listing unavailable", "err", err)
		return
	}
	if len(rooms) == 0 {
		fmt.Println("No open rooms yet; joining will create one.")
		return
	}
	fmt.Printf("Open rooms: %s\n", strings.Join(rooms, ", "))
}

func readLines(f *os.File, out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		out <- scanner.Text()
	}
}

func toWSURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return base
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newLogger(verbose bool) *zap.Logger {
	var log *zap.Logger
	var err error
	if verbose {
		log, err = zap.NewDevelopment()
	} else {
		log, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
	return log
}
