package main

import (
	"context"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/BandwidthOnDemand/nsi-auth/internal/appcontext"
	"github.com/BandwidthOnDemand/nsi-auth/internal/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestRootCmdFlags(t *testing.T) {
	cmd := newRootCmd()
	for _, name := range []string{"config", "addr", "allowed-dn-path", "dn-header", "log-level"} {
		require.NotNil(t, cmd.Flags().Lookup(name), "flag %s", name)
	}
}

func TestRootCmdRejectsInvalidConfig(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"--dn-header", " "})
	require.Error(t, cmd.Execute())
}

func newTestApp(t *testing.T, content string) (*appcontext.ApplicationContext, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "allowed_client_dn.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cf, err := config.Load(config.New(), "")
	require.NoError(t, err)
	cf.AllowedClientSubjectDNPath = path
	cf.ServerAddr = "127.0.0.1:0"
	cf.ShutdownTimeout = 5 * time.Second

	app, err := appcontext.NewApplicationContext(cf, zerolog.Nop())
	require.NoError(t, err)
	return app, path
}

func TestHangupReloadsAllowList(t *testing.T) {
	app, path := newTestApp(t, "CN=alice\n")
	defer app.Shutdown(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	go handleSignals(ctx, sigChan, app, cancel, zerolog.Nop())

	// watcher 未啟動, 只有 SIGHUP 會觸發 reload
	require.NoError(t, os.WriteFile(path, []byte("CN=bob\n"), 0o644))
	require.False(t, app.Store.Allowed("CN=bob"))

	sigChan <- syscall.SIGHUP
	require.Eventually(t, func() bool {
		return app.Store.Allowed("CN=bob")
	}, 5*time.Second, 20*time.Millisecond)
	require.False(t, app.Store.Allowed("CN=alice"))
	require.NoError(t, ctx.Err(), "SIGHUP must not stop the application")
}

func TestTerminateStopsRun(t *testing.T) {
	app, _ := newTestApp(t, "CN=alice\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	go handleSignals(ctx, sigChan, app, cancel, zerolog.Nop())

	done := make(chan error, 1)
	go func() {
		done <- app.Run(ctx)
	}()
	<-app.Watcher.Ready()

	sigChan <- syscall.SIGTERM
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after SIGTERM")
	}
}
