package server

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"
)

// Generation identifies which admin wire protocol a server speaks.
type Generation string

const (
	Legacy Generation = "legacy"
	REST   Generation = "rest"
)

const (
	// DefaultAdminPort is used when a descriptor leaves Port unset.
	DefaultAdminPort = 4848
	// restMajor is the first major version that exposes the REST admin interface.
	restMajor = 4
)

// ParseGeneration accepts "legacy" or "rest" in any case.
func ParseGeneration(s string) (Generation, error) {
	switch Generation(strings.ToLower(strings.TrimSpace(s))) {
	case Legacy:
		return Legacy, nil
	case REST:
		return REST, nil
	default:
		return "", fmt.Errorf("unknown protocol generation %q", s)
	}
}

// Descriptor is the read-only description of one admin endpoint.
// The dispatch core consumes it and never mutates it.
type Descriptor struct {
	Name               string
	Host               string
	Port               int
	Secure             bool
	InsecureSkipVerify bool
	User               string
	Password           string
	// Version is the server product version, e.g. "7.0.2".
	Version string
	// Protocol forces a generation and bypasses version detection.
	Protocol Generation
	Tunnel   *TunnelConfig
}

// ID returns the name of the server, falling back to its address.
func (d Descriptor) ID() string {
	if d.Name != "" {
		return d.Name
	}
	return d.Address()
}

// Address returns host:port of the admin listener.
func (d Descriptor) Address() string {
	port := d.Port
	if port == 0 {
		port = DefaultAdminPort
	}
	return net.JoinHostPort(d.Host, strconv.Itoa(port))
}

// BaseURL returns the scheme and authority of the admin listener.
func (d Descriptor) BaseURL() string {
	scheme := "http"
	if d.Secure {
		scheme = "https"
	}
	return scheme + "://" + d.Address()
}

// Generation reports the admin protocol of the server. An explicit Protocol
// wins; otherwise servers at major version 4 or later speak REST and anything
// else, including an unparseable version, speaks the legacy protocol.
func (d Descriptor) Generation() Generation {
	if d.Protocol != "" {
		return d.Protocol
	}
	v := strings.TrimSpace(d.Version)
	if v == "" {
		return Legacy
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return Legacy
	}
	major, err := strconv.Atoi(strings.TrimPrefix(semver.Major(v), "v"))
	if err != nil || major < restMajor {
		return Legacy
	}
	return REST
}

// Validate reports descriptor fields that make a call impossible.
func (d Descriptor) Validate() error {
	if strings.TrimSpace(d.Host) == "" {
		return fmt.Errorf("server %q: host is required", d.Name)
	}
	if d.Port < 0 || d.Port > 65535 {
		return fmt.Errorf("server %q: invalid port %d", d.Name, d.Port)
	}
	if d.Protocol != "" {
		if _, err := ParseGeneration(string(d.Protocol)); err != nil {
			return fmt.Errorf("server %q: %w", d.Name, err)
		}
	}
	if d.Tunnel != nil && strings.TrimSpace(d.Tunnel.Address) == "" {
		return fmt.Errorf("server %q: tunnel address is required", d.Name)
	}
	return nil
}
