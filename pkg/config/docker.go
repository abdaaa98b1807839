package config

import (
	"os"
	"sync"
)

// DefaultHostGateway is how a container reaches services on its host.
const DefaultHostGateway = "host.docker.internal"

var (
	inContainerOnce   sync.Once
	inContainerResult bool
)

// IsRunningInDocker reports whether /.dockerenv exists. The result is cached.
func IsRunningInDocker() bool {
	inContainerOnce.Do(func() {
		_, err := os.Stat("/.dockerenv")
		inContainerResult = err == nil
	})
	return inContainerResult
}

// ResolveHostForDocker rewrites loopback backend and redis hosts when sensorql
// runs in a container, so a database on the developer's machine stays reachable.
// HOST_GATEWAY overrides the replacement (Linux engines without host.docker.internal
// typically need the bridge address, e.g. 172.17.0.1).
func ResolveHostForDocker(host string) string {
	return resolveHost(host, IsRunningInDocker(), os.Getenv("HOST_GATEWAY"))
}

func resolveHost(host string, inContainer bool, gateway string) string {
	if !inContainer {
		return host
	}
	switch host {
	case "localhost", "127.0.0.1", "::1":
		if gateway != "" {
			return gateway
		}
		return DefaultHostGateway
	}
	return host
}
