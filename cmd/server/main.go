// Command server runs the DHCPv6 server:
// server --config PATH [--check] [--foreground].
// It loads a dhcp6d.App configuration tree into caddy's module
// runtime via caddy.Load,
// which calls App.Provision/App.Start for us and, on a later call with
// an empty config, calls App.Stop as part of diffing the old app out
// of the new (empty) config — the same graceful-replacement mechanism
// caddy's admin API uses for "reload"-style operations, reused here
// for a clean process-level shutdown.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/caddyserver/caddy/v2"

	dhcp6d "github.com/hexasix/dhcp6d"

	// Blank-import every extension handler package. These packages
	// have no init() of their own; the dhcp6d package's init() (app.go)
	// registers every handler module with caddy.
	_ "github.com/hexasix/dhcp6d/handlers/dns"
	_ "github.com/hexasix/dhcp6d/handlers/dslite"
	_ "github.com/hexasix/dhcp6d/handlers/leasequery"
	_ "github.com/hexasix/dhcp6d/handlers/messagelog"
	_ "github.com/hexasix/dhcp6d/handlers/ntp"
	_ "github.com/hexasix/dhcp6d/handlers/pool"
	_ "github.com/hexasix/dhcp6d/handlers/prefix"
	_ "github.com/hexasix/dhcp6d/handlers/serverid"
	_ "github.com/hexasix/dhcp6d/handlers/sip"
	_ "github.com/hexasix/dhcp6d/handlers/solmaxrt"
)

// Exit codes: 0 clean shutdown, 2 configuration error, 3 socket bind
// failure, 4 shutdown completed with errors.
const (
	exitOK           = 0
	exitConfigError  = 2
	exitBindFailure  = 3
	exitShutdownFail = 4
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to the dhcp6d configuration file")
	check := fs.Bool("check", false, "validate the configuration and exit without starting")
	// foreground is accepted for compatibility with process supervisors
	// that always pass it; this binary never forks, so it is always
	// effectively set.
	fs.Bool("foreground", true, "run in the foreground")
	if err := fs.Parse(args); err != nil {
		return exitConfigError
	}

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "server: --config is required")
		return exitConfigError
	}

	raw, err := os.ReadFile(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "server: reading config: %v\n", err)
		return exitConfigError
	}

	var probe dhcp6d.App
	if err := json.Unmarshal(raw, &probe); err != nil {
		fmt.Fprintf(os.Stderr, "server: parsing config: %v\n", err)
		return exitConfigError
	}

	if *check {
		fmt.Println("ok")
		return exitOK
	}

	wrapped, err := json.Marshal(caddyRootConfig{Apps: map[string]json.RawMessage{"dhcp6d": raw}})
	if err != nil {
		fmt.Fprintf(os.Stderr, "server: marshaling caddy config: %v\n", err)
		return exitConfigError
	}

	if err := caddy.Load(wrapped, true); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		if looksLikeBindFailure(err) {
			return exitBindFailure
		}
		return exitConfigError
	}

	waitForShutdownSignal()

	if err := caddy.Load([]byte(`{}`), true); err != nil {
		fmt.Fprintf(os.Stderr, "server: shutdown: %v\n", err)
		return exitShutdownFail
	}
	return exitOK
}

// caddyRootConfig is the minimal top-level shape caddy.Load expects:
// a map of app name to that app's own JSON configuration. The rest of
// config loading is caddy's module-aware JSON decode inside
// App.Provision's ctx.LoadModule calls.
type caddyRootConfig struct {
	Apps map[string]json.RawMessage `json:"apps"`
}

func waitForShutdownSignal() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
}

func looksLikeBindFailure(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "bind") || strings.Contains(msg, "listen") || strings.Contains(msg, "address already in use")
}
