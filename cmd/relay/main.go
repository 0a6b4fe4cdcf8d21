package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"github.com/astromechza/codeboard/pkg/config"
	"github.com/astromechza/codeboard/pkg/document"
	"github.com/astromechza/codeboard/pkg/logging"
	"github.com/astromechza/codeboard/pkg/relay"
	"github.com/astromechza/codeboard/pkg/store"
	"github.com/astromechza/codeboard/pkg/viz"
)

func main() {
	if err := mainInner(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func mainInner() error {
	configVar := flag.String("config", "", "an optional yaml config file")
	addrVar := flag.String("addr", "", "the address to listen on, overrides the config")
	renderVar := flag.Bool("render", false, "render the change graph of every open board on shutdown")
	flag.Parse()

	cfg, err := config.Load(*configVar)
	if err != nil {
		return err
	}
	if *addrVar != "" {
		cfg.Relay.Addr = *addrVar
	}
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	slog.SetDefault(logging.New(level))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slog.Info("Opening store", "url", cfg.Relay.StoreURL)
	st, err := store.Open(ctx, cfg.Relay.StoreURL)
	if err != nil {
		return err
	}
	defer st.Close()

	s := relay.NewServer(st, relay.Options{FlushInterval: cfg.Relay.FlushInterval})

	listener, err := net.Listen("tcp", cfg.Relay.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	slog.Info("Listening", "addr", listener.Addr().String())

	if cfg.Relay.Advertise {
		_, rawPort, _ := net.SplitHostPort(listener.Addr().String())
		port, _ := strconv.Atoi(rawPort)
		if shutdown, err := relay.Advertise(port); err != nil {
			slog.Warn("failed to advertise relay", "err", err)
		} else {
			defer shutdown()
			slog.Info("Advertising relay", "service", relay.ServiceType, "port", port)
		}
	}

	wg := new(sync.WaitGroup)

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.RunBackups(ctx, cfg.Relay.BackupInterval)
	}()

	httpServer := &http.Server{Handler: s.Handler()}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server listen failed", "err", err)
		}
	}()

	exit := make(chan os.Signal, 1) // we need to reserve to buffer size 1, so the notifier are not blocked
	signal.Notify(exit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-exit
	slog.Info("Signal caught", "sig", sig)
	cancel()
	_ = httpServer.Close()

	wg.Wait()

	if *renderVar {
		s.Range(func(id string, doc *document.Document) bool {
			if svgPath, err := viz.RenderToTemp(doc); err != nil {
				slog.Error("failed to render", "board", id, "err", err)
			} else {
				slog.Info("rendered", "board", id, "path", "file://"+svgPath)
			}
			return true
		})
	}

	if err := s.Close(context.Background()); err != nil {
		return fmt.Errorf("failed to flush boards: %w", err)
	}
	return nil
}
