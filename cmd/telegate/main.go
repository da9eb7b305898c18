// telegate - consent-gated telemetry dispatcher
//
// Builds a telemetry session from the configuration and drives it from the
// command line:
//
//	telegate init                 Write a default configuration file
//	telegate consent [...]        Show or change the consent flags
//	telegate pageview <path>      Record a page view
//	telegate event <name> [...]   Record an analytics event
//	telegate report <message>     Report an error
//	telegate log-view [...]       Report a file view to the event API
//	telegate watch                Run until interrupted, applying config changes
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"telegate/internal/config"
	"telegate/internal/telemetry"
)

var stdout io.Writer = os.Stdout

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd, args := os.Args[1], os.Args[2:]

	var err error
	switch cmd {
	case "init":
		err = cmdInit(args)
	case "consent":
		err = cmdConsent(args)
	case "pageview":
		err = cmdPageView(args)
	case "event":
		err = cmdEvent(args)
	case "report":
		err = cmdReport(args)
	case "log-view":
		err = cmdLogView(args)
	case "log-publish":
		err = cmdLogPublish(args)
	case "log-search":
		err = cmdLogSearch(args)
	case "search-feedback":
		err = cmdSearchFeedback(args)
	case "watch":
		err = cmdWatch(args)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`telegate - Consent-gated telemetry dispatcher

USAGE:
    telegate <command> [options]

COMMANDS:
    init                          Write a default configuration file
    consent                       Show the consent flags
    consent internal on|off       Share diagnostics with the first-party API
    consent third-party on|off    Share usage with third-party analytics
    pageview <path>               Record a page view
    event <name> [args]           Record an analytics event (see EVENTS)
    report <message>              Report a user-facing error
    report -exception <message>   Report an exception to the crash service
    log-view                      Report a file view (-uri -outpoint -claim-id)
    log-publish                   Report a publish (-uri -claim-id -txid -nout)
    log-search                    Report that a search ran
    search-feedback               Vote on a search result (-query -vote)
    watch [-health addr]          Run until interrupted, applying config changes
    help                          Show this help message

Every command accepts -config <path>. Without it telegate looks for
config.{toml,json,yaml} in the current directory, then the user config directory.

EVENTS:
    video-start <claim-id> <ms>     video-buffer <claim-id> <ms>
    tag-follow <tag>                tag-unfollow <tag>
    channel-hide <uri>              channel-unhide <uri>
    email-provided                  email-verified
    reward-eligible                 open-url <url>
    startup                         ready <ms>
    set-user <id>

ENVIRONMENT:
    NODE_ENV=production     Production build: events, timings and reports are sent
    LBRY_API_URL            Developer API override; enables view logging outside production
    TELEGATE_VARIANT        web or desktop
    TELEGATE_INITIAL_URL    URL the client was opened with

Nothing leaves the machine unless the matching consent flag allows it.`)
}

// commandFlags returns a flag set with the shared -config flag.
func commandFlags(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	path := fs.String("config", "", "Configuration file")
	return fs, path
}

// withApp loads the configuration, runs fn against a fresh session and
// drains queued telemetry afterwards.
func withApp(configPath string, fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig(resolveConfigPath(configPath))
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}

	runErr := fn(ctx, a)
	return errors.Join(runErr, a.close(ctx))
}

func cmdInit(args []string) error {
	fs, path := commandFlags("init")
	force := fs.Bool("force", false, "Overwrite an existing file")
	fs.Parse(args)

	target := *path
	if target == "" {
		target = config.ConfigPath()
	}
	if _, err := os.Stat(target); err == nil && !*force {
		return fmt.Errorf("%s already exists (use -force to overwrite)", target)
	}

	if err := config.SaveConfig(config.DefaultConfig(), target); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Wrote %s\n", target)
	return nil
}

func cmdConsent(args []string) error {
	fs, path := commandFlags("consent")
	fs.Parse(args)

	return withApp(*path, func(_ context.Context, a *app) error {
		store := a.session.Consent()

		switch fs.NArg() {
		case 0:
		case 2:
			enabled, err := parseOnOff(fs.Arg(1))
			if err != nil {
				return err
			}
			switch fs.Arg(0) {
			case "internal":
				err = store.SetInternal(enabled)
			case "third-party":
				err = store.SetThirdParty(enabled)
			default:
				return fmt.Errorf("unknown consent flag %q (want internal or third-party)", fs.Arg(0))
			}
			if err != nil {
				return err
			}
		default:
			return errors.New("usage: telegate consent [internal|third-party on|off]")
		}

		flags := store.Get()
		fmt.Fprintf(stdout, "variant:     %s\n", a.session.Adapter().Variant())
		fmt.Fprintf(stdout, "internal:    %s\n", onOff(flags.Internal))
		fmt.Fprintf(stdout, "third-party: %s\n", onOff(flags.ThirdParty))
		return nil
	})
}

func cmdPageView(args []string) error {
	fs, path := commandFlags("pageview")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("usage: telegate pageview <path>")
	}

	loc, err := parseLocation(fs.Arg(0))
	if err != nil {
		return err
	}
	return withApp(*path, func(_ context.Context, a *app) error {
		a.session.LocationChanged(loc)
		return nil
	})
}

func parseLocation(raw string) (telemetry.Location, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return telemetry.Location{}, fmt.Errorf("parse path: %w", err)
	}
	loc := telemetry.Location{Path: u.EscapedPath()}
	if u.RawQuery != "" {
		loc.Query = "?" + u.RawQuery
	}
	return loc, nil
}

func cmdEvent(args []string) error {
	fs, path := commandFlags("event")
	fs.Parse(args)
	if fs.NArg() < 1 {
		return errors.New("usage: telegate event <name> [args]")
	}

	emit, err := eventFor(fs.Arg(0), fs.Args()[1:])
	if err != nil {
		return err
	}
	return withApp(*path, func(ctx context.Context, a *app) error {
		emit(a.session.Dispatcher())
		return a.session.Wait(ctx)
	})
}

// eventFor maps an event name and its arguments to a dispatcher call.
func eventFor(name string, args []string) (func(*telemetry.Dispatcher), error) {
	need := func(n int) error {
		if len(args) != n {
			return fmt.Errorf("event %s takes %d argument(s)", name, n)
		}
		return nil
	}
	millis := func(s string) (time.Duration, error) {
		ms, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid milliseconds %q: %w", s, err)
		}
		return time.Duration(ms) * time.Millisecond, nil
	}

	switch name {
	case "video-start", "video-buffer":
		if err := need(2); err != nil {
			return nil, err
		}
		d, err := millis(args[1])
		if err != nil {
			return nil, err
		}
		if name == "video-start" {
			return func(ds *telemetry.Dispatcher) { ds.VideoStart(args[0], d) }, nil
		}
		return func(ds *telemetry.Dispatcher) { ds.VideoBuffer(args[0], d) }, nil
	case "tag-follow", "tag-unfollow":
		if err := need(1); err != nil {
			return nil, err
		}
		following := name == "tag-follow"
		return func(ds *telemetry.Dispatcher) { ds.TagFollow(args[0], following) }, nil
	case "channel-hide", "channel-unhide":
		if err := need(1); err != nil {
			return nil, err
		}
		blocked := name == "channel-hide"
		return func(ds *telemetry.Dispatcher) { ds.ChannelBlock(args[0], blocked) }, nil
	case "email-provided":
		return (*telemetry.Dispatcher).EmailProvided, need(0)
	case "email-verified":
		return (*telemetry.Dispatcher).EmailVerified, need(0)
	case "reward-eligible":
		return (*telemetry.Dispatcher).RewardEligible, need(0)
	case "startup":
		return (*telemetry.Dispatcher).Startup, need(0)
	case "open-url":
		if err := need(1); err != nil {
			return nil, err
		}
		return func(ds *telemetry.Dispatcher) { ds.OpenURL(args[0]) }, nil
	case "ready":
		if err := need(1); err != nil {
			return nil, err
		}
		d, err := millis(args[0])
		if err != nil {
			return nil, err
		}
		return func(ds *telemetry.Dispatcher) { ds.Ready(d) }, nil
	case "set-user":
		if err := need(1); err != nil {
			return nil, err
		}
		return func(ds *telemetry.Dispatcher) { ds.SetUser(args[0]) }, nil
	default:
		return nil, fmt.Errorf("unknown event %q", name)
	}
}

func cmdReport(args []string) error {
	fs, path := commandFlags("report")
	exception := fs.Bool("exception", false, "Send to the crash service instead of the event API")
	fs.Parse(args)
	if fs.NArg() < 1 {
		return errors.New("usage: telegate report [-exception] <message>")
	}
	message := strings.Join(fs.Args(), " ")

	return withApp(*path, func(ctx context.Context, a *app) error {
		if *exception {
			id, ok := a.session.Errors().ReportException(ctx, errors.New(message), map[string]any{"source": "cli"})
			if !ok {
				fmt.Fprintln(stdout, "Not reported: internal sharing is off or this is not a production build")
				return nil
			}
			fmt.Fprintf(stdout, "Reported exception %s\n", id)
			return nil
		}

		if !a.session.Errors().ReportUserError(ctx, message) {
			fmt.Fprintln(stdout, "Not reported: internal sharing is off or this is not a production build")
			return nil
		}
		fmt.Fprintln(stdout, "Reported")
		return nil
	})
}

func cmdLogView(args []string) error {
	fs, path := commandFlags("log-view")
	uri := fs.String("uri", "", "Claim URI")
	outpoint := fs.String("outpoint", "", "Claim outpoint (txid:nout)")
	claimID := fs.String("claim-id", "", "Claim ID")
	timeToStart := fs.Int64("time-to-start", -1, "Milliseconds until playback started")
	fs.Parse(args)
	if *uri == "" || *outpoint == "" || *claimID == "" {
		return errors.New("usage: telegate log-view -uri <uri> -outpoint <txid:nout> -claim-id <id> [-time-to-start ms]")
	}

	params := telemetry.ViewParams{URI: *uri, Outpoint: *outpoint, ClaimID: *claimID}
	if *timeToStart >= 0 {
		params.TimeToStart = timeToStart
	}

	return withApp(*path, func(ctx context.Context, a *app) error {
		res, reported, err := a.session.Remote().LogView(ctx, params)
		if err != nil {
			return err
		}
		if !reported {
			fmt.Fprintln(stdout, "Not reported: internal sharing is off or reporting is disabled for this build")
			return nil
		}
		if len(res) == 0 {
			fmt.Fprintln(stdout, "Reported")
			return nil
		}
		return printJSON(res)
	})
}

func cmdLogPublish(args []string) error {
	fs, path := commandFlags("log-publish")
	uri := fs.String("uri", "", "Permanent claim URL")
	claimID := fs.String("claim-id", "", "Claim ID")
	txid := fs.String("txid", "", "Transaction ID")
	nout := fs.Int("nout", 0, "Output index")
	channel := fs.String("channel", "", "Signing channel claim ID")
	fs.Parse(args)
	if *uri == "" || *claimID == "" || *txid == "" {
		return errors.New("usage: telegate log-publish -uri <url> -claim-id <id> -txid <txid> [-nout n] [-channel id]")
	}

	claim := telemetry.Claim{PermanentURL: *uri, ClaimID: *claimID, TxID: *txid, Nout: *nout}
	if *channel != "" {
		claim.SigningChannel = &telemetry.ChannelRef{ClaimID: *channel}
	}
	return withApp(*path, func(ctx context.Context, a *app) error {
		a.session.Remote().LogPublish(claim)
		return a.session.Wait(ctx)
	})
}

func cmdLogSearch(args []string) error {
	fs, path := commandFlags("log-search")
	fs.Parse(args)
	return withApp(*path, func(ctx context.Context, a *app) error {
		a.session.Remote().LogSearch()
		return a.session.Wait(ctx)
	})
}

func cmdSearchFeedback(args []string) error {
	fs, path := commandFlags("search-feedback")
	query := fs.String("query", "", "Search query")
	vote := fs.Int("vote", 0, "Vote (1 good, -1 bad)")
	fs.Parse(args)
	if *query == "" {
		return errors.New("usage: telegate search-feedback -query <q> -vote <n>")
	}
	return withApp(*path, func(ctx context.Context, a *app) error {
		a.session.Remote().LogSearchFeedback(*query, *vote)
		return a.session.Wait(ctx)
	})
}

func cmdWatch(args []string) error {
	fs, path := commandFlags("watch")
	healthAddr := fs.String("health", "", "Serve /livez, /readyz and /healthz on this address")
	fs.Parse(args)

	configPath := resolveConfigPath(*path)
	loader := config.NewLoader(configPath)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load config %s: %w", configPath, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	if err := a.applyConsent(cfg.Consent); err != nil {
		a.logger.Warn("apply consent", "error", err)
	}

	loader.OnChange(func(next *config.Config) {
		a.logger.Info("configuration changed", "path", configPath)
		if err := a.applyConsent(next.Consent); err != nil {
			a.logger.Warn("apply consent", "error", err)
		}
	})
	if err := loader.Watch(); err != nil {
		return err
	}
	defer loader.Close()

	if *healthAddr != "" {
		checker := a.checker()
		srv := &http.Server{Addr: *healthAddr, Handler: checker.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("health server", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		checker.SetReady(true)
		a.logger.Info("health endpoint listening", "addr", *healthAddr)
	}

	a.logger.Info("watching", "path", configPath, "variant", cfg.Platform.Variant)
	for {
		select {
		case <-ctx.Done():
			a.logger.Info("shutting down")
			return nil
		case err := <-loader.Errors():
			a.logger.Warn("config watch", "error", err)
		}
	}
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "yes", "1":
		return true, nil
	case "off", "false", "no", "0":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", s)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func printJSON(raw []byte) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		fmt.Fprintln(stdout, string(raw))
		return nil
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, string(out))
	return nil
}
