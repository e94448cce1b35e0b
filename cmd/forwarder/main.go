package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/matst80/warppipe/internal/obs"
	"github.com/matst80/warppipe/internal/pipe"
	"github.com/matst80/warppipe/internal/proto"
)

func main() {
	flag.Parse()
	resolveAddrs()
	if cfg.Debug {
		obs.EnableDebug(true)
	}
	obs.Info("forwarder.start", obs.Fields{"relay": cfg.RelayAddr, "target": cfg.Target})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for {
		err := runControl(ctx, cfg)
		if ctx.Err() != nil {
			obs.Info("forwarder.shutdown", obs.Fields{})
			return
		}
		obs.Error("control.disconnected", obs.Fields{"err": err.Error()})
		select {
		case <-time.After(cfg.Backoff):
		case <-ctx.Done():
			obs.Info("forwarder.shutdown", obs.Fields{})
			return
		}
		obs.Info("control.reconnecting", obs.Fields{"relay": cfg.RelayAddr})
	}
}

// runControl runs one control channel session: dial, hello, then answer
// relay notifications while keeping heartbeats flowing. Any I/O error or a
// missed heartbeat ack ends the session; the caller reconnects.
func runControl(ctx context.Context, cfg Config) error {
	c, err := net.DialTimeout("tcp", cfg.RelayAddr, cfg.DialTimeout)
	if err != nil {
		return fmt.Errorf("dial relay: %w", err)
	}
	defer c.Close()
	if err := proto.Write(c, proto.ControlHello()); err != nil {
		return fmt.Errorf("control hello: %w", err)
	}
	obs.Info("control.connected", obs.Fields{"relay": cfg.RelayAddr})

	done := make(chan struct{})
	defer close(done)
	frames := make(chan proto.Frame)
	readErr := make(chan error, 1)
	go func() {
		for {
			f, err := proto.Read(c)
			if err != nil {
				readErr <- err
				return
			}
			select {
			case frames <- f:
			case <-done:
				return
			}
		}
	}()

	ticker := time.NewTicker(cfg.HeartbeatInterval)
	defer ticker.Stop()
	ackTimer := time.NewTimer(cfg.AckWindow)
	if !ackTimer.Stop() {
		<-ackTimer.C
	}
	defer ackTimer.Stop()
	awaitingAck := false

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			return fmt.Errorf("control read: %w", err)
		case <-ticker.C:
			if err := proto.Write(c, proto.Heartbeat()); err != nil {
				return fmt.Errorf("send heartbeat: %w", err)
			}
			if !awaitingAck {
				awaitingAck = true
				ackTimer.Reset(cfg.AckWindow)
			}
		case <-ackTimer.C:
			return fmt.Errorf("no heartbeat ack within %s", cfg.AckWindow)
		case f := <-frames:
			switch f.Kind {
			case proto.KindHeartbeatAck:
				if awaitingAck {
					awaitingAck = false
					if !ackTimer.Stop() {
						select {
						case <-ackTimer.C:
						default:
						}
					}
				}
			case proto.KindNewSession:
				go openSession(string(f.Payload), cfg)
			default:
				obs.Debug("control.ignored_frame", obs.Fields{"kind": f.Kind.String()})
			}
		}
	}
}

// openSession answers one NewSession notification: data connection back to
// the relay first (so the relay's awaiting timer stops ticking), then the
// local game server. Either dial failing aborts only this session.
func openSession(id string, cfg Config) {
	data, err := net.DialTimeout("tcp", cfg.RelayAddr, cfg.DialTimeout)
	if err != nil {
		obs.Error("session.dial_relay", obs.Fields{"err": err.Error(), "id": id})
		return
	}
	if err := proto.Write(data, proto.DataHello(id)); err != nil {
		obs.Error("session.data_hello", obs.Fields{"err": err.Error(), "id": id})
		_ = data.Close()
		return
	}
	local, err := net.DialTimeout("tcp", cfg.Target, cfg.DialTimeout)
	if err != nil {
		obs.Error("session.dial_local", obs.Fields{"err": err.Error(), "id": id, "target": cfg.Target})
		_ = data.Close()
		return
	}
	obs.Info("session.open", obs.Fields{"id": id, "target": cfg.Target})

	toLocal, toRelay := pipe.Join(data, local)
	obs.Info("session.closed", obs.Fields{"id": id, "to_game": toLocal, "to_player": toRelay})
}
