// Package reticulum is the root of the module's Local programmatic API
// (spec.md §6): Reticulum.Start(config) wires an identity, a set of
// registered interfaces, the transport engine, and the link manager
// together and starts their background loops. Grounded on
// the teacher's cmd/tor-client/main.go bootstrap sequencing (load/create
// identity, register transports, start the run loop) and socks.go's
// accept-loop shape, minus the Tor-specific directory-consensus and
// circuit-prebuild steps neither this system nor spec.md has any use for.
package reticulum

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cvsouth/reticulum-go/destination"
	"github.com/cvsouth/reticulum-go/identity"
	"github.com/cvsouth/reticulum-go/riface"
	"github.com/cvsouth/reticulum-go/rlink"
	"github.com/cvsouth/reticulum-go/transport"
)

// InterfaceConfig pairs an interface with the announce_rate_target of its
// announce queue: the per-destination rate (announces/sec) above which a
// destination's queued announces are down-prioritised (spec.md §4.4). The
// interface's own announce cap is derived from its bitrate instead.
type InterfaceConfig struct {
	Interface  riface.Interface
	RateTarget float64
}

// Config is the typed entry point to Reticulum.Start — the teacher has no
// file-format config parser either (out of scope per spec.md §1), just a
// Go struct the caller builds up.
type Config struct {
	// Identity is used if set; otherwise Start generates a fresh one.
	Identity *identity.Identity

	Interfaces []InterfaceConfig
	LinkConfig rlink.Config

	Logger *slog.Logger
}

// Reticulum is a single running node: one identity, the interfaces it
// reaches the network through, and the transport/link engines operating
// over them.
type Reticulum struct {
	identity *identity.Identity
	logger   *slog.Logger

	Transport *transport.TransportEngine
	Links     *rlink.Manager

	cancel context.CancelFunc
}

// Start brings up a node: resolves the identity, registers every
// configured interface, wires the link manager to the transport engine,
// and starts both background loops — the transport engine's timer tasks
// (announce-queue draining and GC) and the link manager's sweep (spec.md
// §4.8 keepalive cadence and ACTIVE→STALE→CLOSED lifecycle) — each in its
// own goroutine.
func Start(cfg Config) (*Reticulum, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	id := cfg.Identity
	if id == nil {
		var err error
		id, err = identity.New(logger)
		if err != nil {
			return nil, fmt.Errorf("reticulum: generate identity: %w", err)
		}
	}

	engine := transport.New(logger)
	for _, ic := range cfg.Interfaces {
		if err := engine.RegisterInterface(ic.Interface, ic.RateTarget); err != nil {
			return nil, fmt.Errorf("reticulum: register interface %q: %w", ic.Interface.Name(), err)
		}
	}

	linkCfg := cfg.LinkConfig
	if linkCfg == (rlink.Config{}) {
		linkCfg = rlink.DefaultConfig()
	}
	links := rlink.NewManager(engine, linkCfg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	go engine.Run(ctx)
	go links.Run(ctx)

	return &Reticulum{
		identity:  id,
		logger:    logger,
		Transport: engine,
		Links:     links,
		cancel:    cancel,
	}, nil
}

// Identity returns the node's own identity.
func (r *Reticulum) Identity() *identity.Identity { return r.identity }

// RegisterDestination makes d locally reachable: the transport engine can
// now deliver DATA/announce traffic addressed to it, and the link manager
// can accept LINK_REQUESTs for it once d.AcceptsLinks is set.
func (r *Reticulum) RegisterDestination(d *destination.Destination) {
	r.Transport.RegisterLocalDestination(d)
	r.Links.RegisterDestination(d)
}

// Announce broadcasts d's current public keys on every registered
// interface (spec.md §4.3/§4.4).
func (r *Reticulum) Announce(d *destination.Destination, appData []byte, pathResponse bool) error {
	return r.Transport.Announce(d, appData, pathResponse)
}

// Link opens a new link to dest, blocking until it is Active or
// establishment fails (spec.md §4.7).
func (r *Reticulum) Link(dest identity.Hash) (*rlink.Link, error) {
	return r.Links.Initiate(dest)
}

// Stop cancels the background transport and link-sweep loops. It does not
// close any registered interfaces; those are owned by the caller.
func (r *Reticulum) Stop() {
	r.cancel()
}
