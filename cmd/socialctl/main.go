package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/docopt/docopt-go"
	"github.com/golang/glog"
	"github.com/pliu/socialsync/internal/config"
)

const SocialCtlVersion = "0.1.0"

func main() {
	usage := `Social sync control.

The store url and transport come from SOCIAL_STORE_URL and
SOCIAL_TRANSPORT_MODE unless given here. glog flags such as -v=2 or
-logtostderr go before the command.

Usage:
    socialctl register <username> <email> [--store=<url>] [--password=<password>]
    socialctl login <username> [--store=<url>] [--password=<password>]
    socialctl logout
    socialctl whoami [--store=<url>]
    socialctl feed [--store=<url>]
    socialctl post [<body>] [--media=<ref>] [--media-type=<type>] [--store=<url>]
    socialctl like <post_id> [--store=<url>]
    socialctl comment <post_id> <body> [--store=<url>]
    socialctl chats [--store=<url>]
    socialctl thread <username> [--store=<url>]
    socialctl send <username> <body> [--store=<url>]
    socialctl read <username> [--store=<url>]
    socialctl friends [--store=<url>]
    socialctl friend (add|remove) <username> [--store=<url>]
    socialctl presence (online|idle|offline) [--store=<url>]
    socialctl profile <new_username> [--avatar=<ref>] [--store=<url>]
    socialctl servers [--store=<url>]
    socialctl server create <name> [--store=<url>]
    socialctl server join <invite_code> [--store=<url>]
    socialctl server say <server_id> <body> [--store=<url>]
    socialctl server log <server_id> [--store=<url>]
    socialctl watch [--chats] [--store=<url>] [--transport=<mode>]
    socialctl -h | --help
    socialctl --version

Options:
    -h --help              Show this screen.
    --version              Show version.
    --store=<url>          Store server url.
    --password=<password>  Skip the password prompt.
    --media=<ref>          Attach a media reference to the post.
    --media-type=<type>    Media type of the attachment, e.g. image/png.
    --avatar=<ref>         New avatar reference.
    --chats                Watch chat summaries instead of the feed.
    --transport=<mode>     push or poll.`

	logArgs, args := splitLogFlags(flag.CommandLine, os.Args[1:])
	if err := flag.CommandLine.Parse(logArgs); err != nil {
		os.Exit(2)
	}
	defer glog.Flush()

	opts, err := docopt.ParseArgs(usage, args, SocialCtlVersion)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg := config.Load()
	if url, err := opts.String("--store"); err == nil && url != "" {
		cfg.StoreURL = url
	}
	if mode, err := opts.String("--transport"); err == nil && mode != "" {
		cfg.TransportMode = config.TransportMode(mode)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := dispatch(ctx, cfg, opts); err != nil {
		glog.Errorf("socialctl: %v", err)
		glog.Flush()
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// splitLogFlags takes the leading arguments that name a registered flag,
// glog's among them, and leaves the rest to docopt.
func splitLogFlags(fs *flag.FlagSet, args []string) (logArgs, rest []string) {
	for i, arg := range args {
		name := strings.TrimLeft(arg, "-")
		name, _, _ = strings.Cut(name, "=")
		if !strings.HasPrefix(arg, "-") || name == "" || fs.Lookup(name) == nil {
			return args[:i], args[i:]
		}
	}
	return args, nil
}

func dispatch(ctx context.Context, cfg *config.Config, opts docopt.Opts) error {
	is := func(cmd string) bool {
		v, _ := opts.Bool(cmd)
		return v
	}

	switch {
	case is("register"):
		return register(ctx, cfg, opts)
	case is("login"):
		return login(ctx, cfg, opts)
	case is("logout"):
		return logout(ctx, cfg)
	case is("watch"):
		return watch(ctx, cfg, opts)
	case is("server"):
		return withClient(ctx, cfg, func(a *app) error { return a.server(ctx, opts) })
	}
	return withClient(ctx, cfg, func(a *app) error { return a.run(ctx, opts) })
}
