package ingest

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// Input schemes.
const (
	SchemeFile = "file"
	SchemeUDP  = "udp"
	SchemeSRT  = "srt"
)

// Endpoint is a parsed input URL.
//
//	path/to/file.ts | file:///path/to/file.ts
//	udp://[source@]host:port[?iface=eth0]
//	srt://host:port[?streamid=id&mode=caller|listener]
type Endpoint struct {
	Scheme string
	Path   string

	Host string
	Port int
	// Source is the sender of a source-specific multicast join.
	Source net.IP
	// Interface names the interface multicast groups are joined on.
	Interface string

	StreamID string
	Listen   bool
}

// Live reports whether the endpoint is a network input.
func (e Endpoint) Live() bool { return e.Scheme != SchemeFile }

// Addr returns host:port.
func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// Multicast reports whether the UDP host is a multicast group.
func (e Endpoint) Multicast() bool {
	ip := net.ParseIP(e.Host)
	return ip != nil && ip.IsMulticast()
}

// ParseEndpoint parses an input URL. Anything without a scheme is a file.
func ParseEndpoint(raw string) (Endpoint, error) {
	if !strings.Contains(raw, "://") {
		return Endpoint{Scheme: SchemeFile, Path: raw}, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, fmt.Errorf("ingest: parse %q: %w", raw, err)
	}

	ep := Endpoint{Scheme: strings.ToLower(u.Scheme)}
	switch ep.Scheme {
	case SchemeFile:
		ep.Path = u.Path
		if ep.Path == "" {
			ep.Path = u.Opaque
		}
		return ep, nil
	case SchemeUDP, SchemeSRT:
	default:
		return Endpoint{}, fmt.Errorf("ingest: unsupported scheme %q", u.Scheme)
	}

	ep.Host = u.Hostname()
	port, err := strconv.Atoi(u.Port())
	if err != nil || port <= 0 || port > 65535 {
		return Endpoint{}, fmt.Errorf("ingest: %q: invalid port %q", raw, u.Port())
	}
	ep.Port = port
	q := u.Query()

	if ep.Scheme == SchemeUDP {
		if u.User != nil {
			ep.Source = net.ParseIP(u.User.Username())
			if ep.Source == nil {
				return Endpoint{}, fmt.Errorf("ingest: %q: invalid source address %q", raw, u.User.Username())
			}
			if !ep.Multicast() {
				return Endpoint{}, fmt.Errorf("ingest: %q: source-specific join needs a multicast group", raw)
			}
		}
		ep.Interface = q.Get("iface")
		return ep, nil
	}

	ep.StreamID = q.Get("streamid")
	switch mode := q.Get("mode"); mode {
	case "", "caller":
	case "listener":
		ep.Listen = true
	default:
		return Endpoint{}, fmt.Errorf("ingest: %q: unknown SRT mode %q", raw, mode)
	}
	return ep, nil
}
