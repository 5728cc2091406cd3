// Pastelink: CLI entry point.
//
// Two people open a direct WebRTC data channel and chat over it. There is no
// signaling server: each side copies a compressed connection code and sends
// it to the other by any means (chat, e-mail, paper).
//
// It can be launched interactively (no flags) or with --role to skip the
// role prompt. --bridge additionally exposes the session to a local web page
// over a PIN-protected WebSocket.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/1ureka/pastelink/internal/app"
	"github.com/1ureka/pastelink/internal/config"
	"github.com/1ureka/pastelink/internal/util"
)

var version = "dev"

// cliOptions holds the raw flag values.
type cliOptions struct {
	role       string
	configPath string
	stun       string
	bridge     string
	pin        string
	clipboard  bool
	loopback   bool
	debug      bool
}

func bindFlags(fs *pflag.FlagSet, o *cliOptions) {
	fs.StringVarP(&o.role, "role", "r", "", "Role: initiator (creates the offer) or responder (answers it)")
	fs.StringVarP(&o.configPath, "config", "c", "", "Path to a YAML config file")
	fs.StringVar(&o.stun, "stun", "", `STUN server URL, or "none" for host candidates only`)
	fs.StringVar(&o.bridge, "bridge", "", "Listen address for the WebSocket bridge (e.g. 127.0.0.1:7777)")
	fs.StringVar(&o.pin, "pin", "", "Bridge PIN (random when empty)")
	fs.BoolVar(&o.clipboard, "clipboard", false, "Copy your connection code to the clipboard")
	fs.BoolVar(&o.loopback, "loopback", false, "Offer loopback candidates (both peers on this machine)")
	fs.BoolVar(&o.debug, "debug", false, "Enable debug logging")
}

func main() {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var opts cliOptions
	cmd := &cobra.Command{
		Use:           "pastelink",
		Short:         "Peer-to-peer chat over WebRTC with copy-paste signaling",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cmd.Flags(), opts)
		},
	}
	bindFlags(cmd.Flags(), &opts)

	if err := cmd.ExecuteContext(ctx); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
}

// ---------------------------------------------------------------------------
// Run mode
// ---------------------------------------------------------------------------

func run(ctx context.Context, fs *pflag.FlagSet, o cliOptions) error {
	if o.debug {
		util.EnableDebug()
	}

	cfg, err := buildConfig(fs, o)
	if err != nil {
		return err
	}

	pterm.Info.Println(fmt.Sprintf("Pastelink — v%s", version))
	pterm.Println()

	var role config.Role
	if o.role == "" {
		role = askRole()
	} else if role, err = config.ParseRole(o.role); err != nil {
		return err
	}

	err = app.Run(ctx, app.Options{
		Config:    cfg,
		Role:      role,
		Clipboard: o.clipboard,
		In:        os.Stdin,
		Out:       os.Stdout,
	})
	if err != nil {
		return fmt.Errorf("session failed: %w", err)
	}

	util.LogInfo("session closed")
	return nil
}

// ---------------------------------------------------------------------------
// Helper Functions
// ---------------------------------------------------------------------------

// buildConfig loads the config file and applies explicitly set flags on top.
func buildConfig(fs *pflag.FlagSet, o cliOptions) (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return cfg, err
	}

	if fs.Changed("stun") {
		switch s := strings.TrimSpace(o.stun); strings.ToLower(s) {
		case "", "none":
			cfg.ICEServers = nil
		default:
			cfg.ICEServers = []string{s}
		}
	}
	if fs.Changed("bridge") {
		cfg.Bridge.Listen = o.bridge
	}
	if fs.Changed("pin") {
		cfg.Bridge.PIN = o.pin
	}
	if fs.Changed("loopback") {
		cfg.IncludeLoopback = o.loopback
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// askRole prompts for the role when --role was not given.
func askRole() config.Role {
	choice, _ := pterm.DefaultInteractiveSelect.
		WithOptions([]string{
			"Initiator — Create a connection code",
			"Responder — Answer a code you received",
		}).
		WithDefaultText("Select your role").
		Show()

	pterm.Println()

	if strings.HasPrefix(choice, "Responder") {
		return config.RoleResponder
	}
	return config.RoleInitiator
}
