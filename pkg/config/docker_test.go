package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveHost(t *testing.T) {
	tests := []struct {
		name        string
		host        string
		inContainer bool
		gateway     string
		want        string
	}{
		{name: "outside container", host: "localhost", want: "localhost"},
		{name: "remote host untouched", host: "iot-db.internal", inContainer: true, want: "iot-db.internal"},
		{name: "localhost", host: "localhost", inContainer: true, want: DefaultHostGateway},
		{name: "ipv4 loopback", host: "127.0.0.1", inContainer: true, want: DefaultHostGateway},
		{name: "ipv6 loopback", host: "::1", inContainer: true, want: DefaultHostGateway},
		{name: "gateway override", host: "localhost", inContainer: true, gateway: "172.17.0.1", want: "172.17.0.1"},
		{name: "override ignored outside container", host: "localhost", gateway: "172.17.0.1", want: "localhost"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolveHost(tt.host, tt.inContainer, tt.gateway))
		})
	}
}

func TestResolveHostForDocker_RemoteHostsUnchanged(t *testing.T) {
	for _, host := range []string{"mydb.example.com", "192.168.1.100", DefaultHostGateway} {
		assert.Equal(t, host, ResolveHostForDocker(host))
	}
}
