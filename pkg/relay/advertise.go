package relay

import (
	"fmt"
	"os"

	"github.com/grandcat/zeroconf"
)

// ServiceType is the mDNS service type relays register under.
const ServiceType = "_codeboard._tcp"

// Advertise registers the relay on the local network so clients can discover it. The returned
// function withdraws the registration.
func Advertise(port int) (func(), error) {
	host, _ := os.Hostname()
	server, err := zeroconf.Register(
		fmt.Sprintf("codeboard-%s", host),
		ServiceType,
		"local.",
		port,
		[]string{"txtv=0", "path=/boards"},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register mDNS service: %w", err)
	}
	return server.Shutdown, nil
}
