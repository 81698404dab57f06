package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/examtile/examtile/internal/api"
	"github.com/examtile/examtile/internal/config"
	"github.com/examtile/examtile/internal/home"
	"github.com/examtile/examtile/internal/sink"
	"github.com/examtile/examtile/internal/testutil"
)

func startServer(t *testing.T, mutate func(*config.Config)) (*Server, string) {
	t.Helper()
	clearProviderKeys(t)

	port, err := testutil.FindFreePort()
	if err != nil {
		t.Fatalf("FindFreePort() error = %v", err)
	}
	h, err := home.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	cfg := testutil.MockConfig()
	if mutate != nil {
		mutate(cfg)
	}
	srv, err := New(Config{
		Host:      "127.0.0.1",
		Port:      port,
		AppConfig: cfg,
		Home:      h,
		Renderer:  blankRenderer,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()
	starter := testutil.StartServer{Cancel: cancel, Done: done}
	t.Cleanup(starter.Stop)

	url := "http://" + srv.Addr()
	if err := testutil.WaitForServer(url, 10*time.Second); err != nil {
		t.Fatalf("server did not start: %v", err)
	}
	return srv, url
}

func TestServer_FullLifecycle(t *testing.T) {
	clearProviderKeys(t)
	port, err := testutil.FindFreePort()
	if err != nil {
		t.Fatal(err)
	}
	srv, err := New(Config{Host: "127.0.0.1", Port: port, AppConfig: testutil.MockConfig(), Renderer: blankRenderer})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	url := "http://" + srv.Addr()
	if err := testutil.WaitForServer(url, 10*time.Second); err != nil {
		cancel()
		t.Fatalf("server did not start: %v", err)
	}

	t.Run("is_running", func(t *testing.T) {
		if !srv.IsRunning() {
			t.Error("IsRunning() = false, want true")
		}
	})

	t.Run("second_start_fails", func(t *testing.T) {
		if err := srv.Start(context.Background()); err == nil {
			t.Error("second Start() succeeded")
		}
	})

	cancel()
	if err := testutil.WaitForShutdown(done, 10*time.Second); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if srv.IsRunning() {
		t.Error("IsRunning() = true after shutdown")
	}
	if _, err := http.Get(url + "/health"); err == nil {
		t.Error("server still answering after shutdown")
	}
}

func TestServer_PortInUse(t *testing.T) {
	srv, _ := startServer(t, nil)

	other, err := New(Config{Host: "127.0.0.1", Port: strings.Split(srv.Addr(), ":")[1], AppConfig: testutil.MockConfig()})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := other.Start(ctx); err == nil {
		t.Error("Start() on a busy port succeeded")
	}
}

func TestServer_StreamClient(t *testing.T) {
	_, url := startServer(t, nil)
	client := api.NewClient(url)

	var types []string
	var tiles []string
	err := client.Stream(context.Background(), "/api/analyze", api.Upload{
		Filename: "midterm.pdf",
		Data:     testutil.SamplePDF(t, 1),
	}, func(ev sink.Event) error {
		types = append(types, ev.Type)
		if ev.Tile != nil {
			tiles = append(tiles, ev.Tile.Caption())
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	if got := strings.Join(types, ","); got != "start,tile,tile,page,done" {
		t.Errorf("events = %s", got)
	}
	if got := strings.Join(tiles, "|"); got != "P1 - Left|P1 - Right" {
		t.Errorf("tiles = %s", got)
	}
}

func TestServer_StreamClientRejected(t *testing.T) {
	_, url := startServer(t, nil)
	client := api.NewClient(url)

	err := client.Stream(context.Background(), "/api/analyze", api.Upload{
		Filename: "notes.txt",
		Data:     []byte("not a pdf"),
	}, func(sink.Event) error {
		t.Error("no events expected")
		return nil
	})

	var serr *api.ServerError
	if !errors.As(err, &serr) {
		t.Fatalf("err = %v, want *api.ServerError", err)
	}
	if serr.StatusCode != http.StatusUnprocessableEntity || serr.Kind != sink.KindRasterization {
		t.Errorf("got %d %q", serr.StatusCode, serr.Kind)
	}
}

func TestServer_ShutdownCancelsRun(t *testing.T) {
	port, err := testutil.FindFreePort()
	if err != nil {
		t.Fatal(err)
	}
	clearProviderKeys(t)
	cfg := testutil.MockConfig()
	// Long enough that the run is still pacing requests at shutdown.
	cfg.RateLimit.MinInterval = time.Hour
	srv, err := New(Config{Host: "127.0.0.1", Port: port, AppConfig: cfg, Renderer: blankRenderer})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()
	url := "http://" + srv.Addr()
	if err := testutil.WaitForServer(url, 10*time.Second); err != nil {
		cancel()
		t.Fatal(err)
	}

	var last sink.Event
	streamDone := make(chan error, 1)
	go func() {
		streamDone <- api.NewClient(url).Stream(context.Background(), "/api/analyze", api.Upload{
			Filename: "final.pdf",
			Data:     testutil.SamplePDF(t, 1),
		}, func(ev sink.Event) error {
			if ev.Type == sink.EventTile {
				cancel()
			}
			last = ev
			return nil
		})
	}()

	select {
	case err := <-streamDone:
		if err != nil {
			t.Fatalf("Stream() error = %v", err)
		}
	case <-time.After(20 * time.Second):
		t.Fatal("stream did not end after shutdown")
	}
	if last.Type != sink.EventDone {
		t.Errorf("last event = %q, want done", last.Type)
	}
	if err := testutil.WaitForShutdown(done, 10*time.Second); err != nil {
		t.Fatal(err)
	}
}
