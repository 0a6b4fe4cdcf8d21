package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/astromechza/codeboard/pkg/document"
	"github.com/astromechza/codeboard/pkg/logging"
	"github.com/astromechza/codeboard/pkg/session"
	"github.com/astromechza/codeboard/pkg/viz"
)

func main() {
	if err := mainInner(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func mainInner() error {
	slog.SetDefault(logging.New(slog.LevelInfo))

	relayVar := flag.String("relay", "", "fetch the board from this relay url instead of reading a file")
	svgVar := flag.String("svg", "", "write the change graph to this svg file")
	flag.Parse()
	if flag.NArg() != 1 {
		return fmt.Errorf("expected one position argument: the snapshot file, or the board id with -relay")
	}

	var buff []byte
	if *relayVar != "" {
		backend, err := session.NewWebsocketBackend(*relayVar)
		if err != nil {
			return err
		}
		if buff, err = backend.Snapshot(context.Background(), flag.Arg(0)); err != nil {
			return err
		}
	} else {
		f, err := os.Open(flag.Arg(0))
		if err != nil {
			return fmt.Errorf("failed to open input file: %w", err)
		}
		defer f.Close()
		if buff, err = io.ReadAll(f); err != nil {
			return fmt.Errorf("failed to read input file: %w", err)
		}
	}
	doc, err := document.Load(buff, document.NewActorID())
	if err != nil {
		return err
	}
	defer doc.Close()
	buff = nil
	slog.Info("loaded doc", "runes", doc.Len())
	slog.Info("loaded heads", "heads", doc.Heads())

	revisions, err := doc.History()
	if err != nil {
		return err
	}
	slog.Info("changes:")
	for i, rev := range revisions {
		slog.Info("change", "i", fmt.Sprintf("%4d", i), "hash", rev.Hash, "actor", rev.Actor, "seq", rev.Seq, "message", rev.Message, "dep", rev.Dependencies)
	}

	if *svgVar != "" {
		if err := viz.RenderDocToSvg(doc, *svgVar); err != nil {
			return err
		}
		slog.Info("rendered", "path", "file://"+*svgVar)
	}

	text := doc.CurrentText()
	fmt.Print(text)
	if !strings.HasSuffix(text, "\n") && text != "" {
		fmt.Println()
	}
	return nil
}
