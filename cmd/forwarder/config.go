package main

import (
	"flag"
	"net"
	"time"
)

// Config holds forwarder runtime configuration.
type Config struct {
	RelayAddr         string // relay auxiliary address (control and data)
	Host              string // convenience host to derive RelayAddr
	Target            string // local game server
	HeartbeatInterval time.Duration
	AckWindow         time.Duration
	Backoff           time.Duration
	DialTimeout       time.Duration
	Debug             bool
}

var cfg Config

func init() {
	flag.StringVar(&cfg.RelayAddr, "relay", "127.0.0.1:25566", "relay auxiliary address")
	flag.StringVar(&cfg.Host, "host", "", "relay host; if set and -relay not explicitly provided, relay defaults to host:25566")
	flag.StringVar(&cfg.Target, "target", "127.0.0.1:25565", "local game server address")
	flag.DurationVar(&cfg.HeartbeatInterval, "heartbeat", 15*time.Second, "control channel heartbeat interval")
	flag.DurationVar(&cfg.AckWindow, "ack-window", 5*time.Second, "time to wait for a heartbeat ack before reconnecting")
	flag.DurationVar(&cfg.Backoff, "backoff", 2*time.Second, "delay between control channel reconnect attempts")
	flag.DurationVar(&cfg.DialTimeout, "dial-timeout", 5*time.Second, "timeout for dialing the relay and the local target")
	flag.BoolVar(&cfg.Debug, "debug", false, "enable debug logs")
}

// resolveAddrs applies the -host convenience default after parsing.
func resolveAddrs() {
	if cfg.Host == "" {
		return
	}
	relaySet := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "relay" {
			relaySet = true
		}
	})
	if !relaySet {
		cfg.RelayAddr = net.JoinHostPort(cfg.Host, "25566")
	}
}
