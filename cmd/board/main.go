package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"github.com/astromechza/codeboard/pkg/config"
	"github.com/astromechza/codeboard/pkg/document"
	"github.com/astromechza/codeboard/pkg/execution"
	"github.com/astromechza/codeboard/pkg/filesync"
	"github.com/astromechza/codeboard/pkg/languages"
	"github.com/astromechza/codeboard/pkg/logging"
	"github.com/astromechza/codeboard/pkg/prefs"
	"github.com/astromechza/codeboard/pkg/presence"
	"github.com/astromechza/codeboard/pkg/session"
	"github.com/astromechza/codeboard/pkg/workspace"
)

var (
	boldStyle    = color.New(color.Bold)
	resultStyle  = color.New(color.FgGreen)
	errorStyle   = color.New(color.FgRed)
	subtleStyle  = color.New(color.FgHiBlack)
	commandsHelp = `commands:
  run             run the board with the selected language
  stdin <file>    use the contents of file as program input
  lang [id]       show or select the language
  langs           list the languages
  cursor <n>      share a cursor position
  who             list participants
  quit            leave the board`
)

func main() {
	if err := mainInner(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func mainInner() error {
	configVar := flag.String("config", "", "an optional yaml config file")
	boardVar := flag.String("board", "", "the board to join, overrides the config")
	nameVar := flag.String("name", "", "the name shown to other participants, overrides the config")
	fileVar := flag.String("file", "", "the local file mirroring the board, overrides the config")
	flag.Parse()

	cfg, err := config.Load(*configVar)
	if err != nil {
		return err
	}
	if *boardVar != "" {
		cfg.Client.Board = *boardVar
	}
	if *nameVar != "" {
		cfg.Client.Name = *nameVar
	}
	if *fileVar != "" {
		cfg.Client.File = *fileVar
	}
	if cfg.Client.Name == "" {
		cfg.Client.Name, _ = os.Hostname()
	}
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := logging.New(level)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	preferences, err := prefs.OpenSQLite(ctx, cfg.Client.PrefsPath)
	if err != nil {
		return err
	}
	defer preferences.Close()

	backend, err := session.NewWebsocketBackend(cfg.Client.RelayURL)
	if err != nil {
		return err
	}
	sess, err := session.Open(ctx, backend, cfg.Client.Board, session.Options{
		ParticipantID: uuid.NewString(),
		FlushInterval: cfg.Relay.FlushInterval,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("failed to join board: %w", err)
	}
	defer sess.Close()
	sess.OnStateChange(func(st session.State) {
		logger.Info("connection state", "state", st)
	})
	sess.Presence().Publish(presence.Metadata{Name: cfg.Client.Name, Color: cfg.Client.Color})

	runner, err := execution.NewClient(cfg.Execution.ClientConfig(), execution.WithLogger(logger))
	if err != nil {
		return err
	}
	ws, err := workspace.New(ctx, sess.Document(), runner, preferences, logger)
	if err != nil {
		return err
	}
	defer ws.Close()

	doc := sess.Document()
	if saved := ws.SavedInput(); cfg.Client.Restore && doc.Len() == 0 && saved != "" {
		if _, err := doc.ApplyLocalEdit(document.Range{}, saved); err != nil {
			return fmt.Errorf("failed to restore input: %w", err)
		}
		logger.Info("restored saved input", "runes", doc.Len())
	}

	binding, err := filesync.Bind(doc, cfg.Client.File, logger)
	if err != nil {
		return err
	}
	defer binding.Close()
	go func() {
		if err := binding.Run(ctx); err != nil {
			logger.Error("file sync stopped", "err", err)
		}
	}()

	_, _ = boldStyle.Printf("Joined board %s as %s\n", cfg.Client.Board, cfg.Client.Name)
	fmt.Printf("Editing %s in %s\n", binding.Path(), ws.Language().DisplayName)
	fmt.Println(commandsHelp)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	c := &commands{ws: ws, sess: sess, name: cfg.Client.Name, color: cfg.Client.Color, out: os.Stdout}
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := c.handle(ctx, line); quit {
				return nil
			}
		}
	}
}

type commands struct {
	ws    *workspace.Workspace
	sess  *session.Session
	name  string
	color string
	out   io.Writer
}

func (c *commands) handle(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	switch fields[0] {
	case "run":
		out := c.ws.Run(ctx, func(progress string) {
			_, _ = subtleStyle.Fprintln(c.out, progress)
		})
		if strings.HasPrefix(out, "Error: ") {
			_, _ = errorStyle.Fprintln(c.out, out)
		} else {
			_, _ = resultStyle.Fprintln(c.out, out)
		}
	case "stdin":
		if len(fields) != 2 {
			_, _ = errorStyle.Fprintln(c.out, "usage: stdin <file>")
			return false
		}
		raw, err := os.ReadFile(fields[1])
		if err != nil {
			_, _ = errorStyle.Fprintln(c.out, err.Error())
			return false
		}
		c.ws.HandleStdin(workspace.StdinEvent{Text: string(raw)})
		fmt.Fprintf(c.out, "program input set (%d bytes)\n", len(raw))
	case "lang":
		if len(fields) == 1 {
			l := c.ws.Language()
			fmt.Fprintf(c.out, "%s %s (%s)\n", l.ID, l.DisplayName, l.EditorMode)
			return false
		}
		l, err := c.ws.SetLanguage(ctx, fields[1])
		if err != nil {
			_, _ = errorStyle.Fprintln(c.out, err.Error())
			return false
		}
		if !languages.Known(fields[1]) {
			_, _ = errorStyle.Fprintf(c.out, "language %s is not in the catalog, running it anyway\n", fields[1])
		}
		fmt.Fprintf(c.out, "language set to %s\n", l.DisplayName)
	case "langs":
		for _, l := range languages.All() {
			fmt.Fprintf(c.out, "%6s  %s\n", l.ID, l.DisplayName)
		}
	case "cursor":
		if len(fields) != 2 {
			_, _ = errorStyle.Fprintln(c.out, "usage: cursor <n>")
			return false
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil || n < 0 {
			_, _ = errorStyle.Fprintln(c.out, "cursor must be a non-negative number")
			return false
		}
		c.sess.Presence().Publish(presence.Metadata{Name: c.name, Color: c.color, Cursor: n})
	case "who":
		snapshot := c.sess.Presence().Snapshot()
		ids := make([]string, 0, len(snapshot))
		for id := range snapshot {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			m := snapshot[id]
			marker := " "
			if id == c.sess.Presence().Self() {
				marker = "*"
			}
			fmt.Fprintf(c.out, "%s %s (cursor %d)\n", marker, m.Name, m.Cursor)
		}
		fmt.Fprintf(c.out, "connection: %s\n", c.sess.State())
	case "quit", "exit":
		return true
	default:
		fmt.Fprintln(c.out, commandsHelp)
	}
	return false
}
