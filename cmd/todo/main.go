// Command todo is a terminal client for the todo API. The session is kept in
// a file between invocations and refreshed as needed.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/example/todoapp/internal/client"
	"github.com/example/todoapp/internal/logger"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const usage = `usage: todo [flags] <command> [args]

commands:
  register <username> <email> [password]
  login <username> [password]
  logout
  status
  whoami
  list [-category C] [-completed true|false] [-due YYYY-MM-DD]
  add [-category C] [-description D] [-due YYYY-MM-DD] <title>
  done <id>
  rm <id>

A missing password is read from TODO_PASSWORD.
`

type settings struct {
	apiURL      string
	sessionFile string
	verbose     bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// resolveSettings applies flags over the environment over .env over defaults.
func resolveSettings(args []string, stderr io.Writer) (settings, []string, error) {
	var s settings
	fs := flag.NewFlagSet("todo", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	envFile := fs.String("env-file", ".env", "dotenv file to load")
	fs.StringVar(&s.apiURL, "api", "", "API base URL (TODO_API_URL)")
	fs.StringVar(&s.sessionFile, "session", "", "session file (TODO_SESSION_FILE)")
	fs.BoolVar(&s.verbose, "v", false, "verbose logging")
	if err := fs.Parse(args); err != nil {
		return s, nil, err
	}

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return s, nil, fmt.Errorf("load %s: %w", *envFile, err)
	}
	if s.apiURL == "" {
		s.apiURL = envOr("TODO_API_URL", "http://localhost:8080")
	}
	if s.sessionFile == "" {
		s.sessionFile = os.Getenv("TODO_SESSION_FILE")
	}
	if s.sessionFile == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return s, nil, fmt.Errorf("locate config dir: %w", err)
		}
		s.sessionFile = filepath.Join(dir, "todoapp", "session.json")
	}
	return s, fs.Args(), nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	s, rest, err := resolveSettings(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(stderr, err)
		return 2
	}
	if len(rest) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	level := "warn"
	if s.verbose {
		level = "debug"
	}
	log, err := logger.New("development", level)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer log.Sync()

	tokens, err := client.NewTokenManager(client.NewFileStore(s.sessionFile))
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	c, err := client.New(s.apiURL, tokens,
		client.WithLogger(log),
		client.WithReauthenticateHandler(func() {
			log.Debug("session dropped", zap.String("file", s.sessionFile))
		}),
	)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	cli := &cli{c: c, tokens: tokens, out: stdout}
	if err := cli.dispatch(ctx, rest[0], rest[1:]); err != nil {
		var usageErr usageError
		if errors.As(err, &usageErr) {
			fmt.Fprintf(stderr, "%s\n\n%s", usageErr, usage)
			return 2
		}
		fmt.Fprintln(stderr, describe(err))
		return 1
	}
	return 0
}

type usageError string

func (e usageError) Error() string { return string(e) }

// describe turns client errors into something a person can act on.
func describe(err error) string {
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		return err.Error()
	}
	switch apiErr.Kind {
	case client.KindNetwork:
		return "cannot reach the server: " + err.Error()
	case client.KindUnauthorized:
		if apiErr.Message != "" {
			return apiErr.Message + " (run `todo login`)"
		}
		return "not logged in (run `todo login`)"
	case client.KindBadRequest:
		msg := apiErr.Message
		for field, msgs := range apiErr.Fields {
			for _, m := range msgs {
				msg += fmt.Sprintf("\n  %s: %s", field, m)
			}
		}
		return msg
	}
	return err.Error()
}

type cli struct {
	c      *client.Client
	tokens *client.TokenManager
	out    io.Writer
}

func (a *cli) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "register":
		if len(args) < 2 {
			return usageError("register needs a username and an email")
		}
		pw, err := password(args, 2)
		if err != nil {
			return err
		}
		u, err := a.c.Register(ctx, args[0], args[1], pw)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "registered and logged in as %s\n", u.Username)
	case "login":
		if len(args) < 1 {
			return usageError("login needs a username")
		}
		pw, err := password(args, 1)
		if err != nil {
			return err
		}
		u, err := a.c.Login(ctx, args[0], pw)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "logged in as %s\n", u.Username)
	case "logout":
		if err := a.c.Logout(ctx); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "logged out")
	case "status":
		a.status()
	case "whoami":
		u, err := a.c.Me(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "%s <%s>\n", u.Username, u.Email)
	case "list":
		return a.list(ctx, args)
	case "add":
		return a.add(ctx, args)
	case "done":
		if len(args) != 1 {
			return usageError("done needs a todo id")
		}
		done := true
		t, err := a.c.UpdateTodo(ctx, args[0], client.TodoUpdate{IsCompleted: &done})
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "completed %q\n", t.Title)
	case "rm":
		if len(args) != 1 {
			return usageError("rm needs a todo id")
		}
		if err := a.c.DeleteTodo(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "deleted")
	default:
		return usageError("unknown command " + strconv.Quote(cmd))
	}
	return nil
}

func password(args []string, i int) (string, error) {
	if len(args) > i {
		return args[i], nil
	}
	if pw := os.Getenv("TODO_PASSWORD"); pw != "" {
		return pw, nil
	}
	return "", usageError("password missing: pass it as an argument or set TODO_PASSWORD")
}

func (a *cli) status() {
	if !a.tokens.IsLoggedIn() {
		fmt.Fprintln(a.out, "not logged in")
		return
	}
	state := "valid"
	if !a.tokens.IsTokenValid() {
		state = "stale, refreshed on next call"
	}
	fmt.Fprintf(a.out, "logged in as user %s\naccess token %s, expires %s\n",
		a.tokens.UserID(), state, a.tokens.ExpiresAt().Local().Format(time.RFC1123))
}

func parseDay(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, usageError("dates look like 2006-01-02")
	}
	return &t, nil
}

func (a *cli) list(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	category := fs.String("category", "", "")
	completed := fs.String("completed", "", "")
	due := fs.String("due", "", "")
	if err := fs.Parse(args); err != nil {
		return usageError(err.Error())
	}

	f := client.TodoFilter{Category: *category}
	if *completed != "" {
		b, err := strconv.ParseBool(*completed)
		if err != nil {
			return usageError("-completed takes true or false")
		}
		f.Completed = &b
	}
	d, err := parseDay(*due)
	if err != nil {
		return err
	}
	f.DueDate = d

	list, err := a.c.ListTodos(ctx, f)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDONE\tCATEGORY\tDUE\tTITLE")
	for _, t := range list.Data {
		dueStr := "-"
		if t.DueDate != nil {
			dueStr = t.DueDate.Format("2006-01-02")
		}
		mark := " "
		if t.IsCompleted {
			mark = "x"
		}
		fmt.Fprintf(tw, "%s\t[%s]\t%s\t%s\t%s\n", t.ID, mark, t.Category, dueStr, t.Title)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%d todo(s)\n", list.Meta.Total)
	return nil
}

func (a *cli) add(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	category := fs.String("category", "", "")
	description := fs.String("description", "", "")
	due := fs.String("due", "", "")
	if err := fs.Parse(args); err != nil {
		return usageError(err.Error())
	}
	if fs.NArg() != 1 {
		return usageError("add needs exactly one title; quote it if it has spaces")
	}
	d, err := parseDay(*due)
	if err != nil {
		return err
	}
	t, err := a.c.CreateTodo(ctx, client.NewTodo{
		Title:       fs.Arg(0),
		Description: *description,
		Category:    *category,
		DueDate:     d,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "added %s (%s)\n", t.ID, t.Category)
	return nil
}
