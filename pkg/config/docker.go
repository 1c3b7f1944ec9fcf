package config

import (
	"net"
	"net/url"
	"os"
	"sync"
)

var (
	isDockerOnce   sync.Once
	isDockerResult bool
)

// IsRunningInDocker reports whether /.dockerenv exists. Cached after the first call.
func IsRunningInDocker() bool {
	isDockerOnce.Do(func() {
		_, err := os.Stat("/.dockerenv")
		isDockerResult = err == nil
	})
	return isDockerResult
}

// ResolveHostForDocker maps localhost to host.docker.internal inside a
// container so Redis and the backend on the host machine stay reachable.
func ResolveHostForDocker(host string) string {
	if !IsRunningInDocker() {
		return host
	}
	return dockerHost(host)
}

// ResolveURLForDocker applies ResolveHostForDocker to the host of a URL,
// keeping the port. Unparseable values are returned unchanged.
func ResolveURLForDocker(raw string) string {
	if !IsRunningInDocker() || raw == "" {
		return raw
	}
	return dockerURL(raw)
}

func dockerHost(host string) string {
	if host == "localhost" || host == "127.0.0.1" {
		return "host.docker.internal"
	}
	return host
}

func dockerURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	host, port := u.Hostname(), u.Port()
	resolved := dockerHost(host)
	if resolved == host {
		return raw
	}
	if port != "" {
		u.Host = net.JoinHostPort(resolved, port)
	} else {
		u.Host = resolved
	}
	return u.String()
}
