package peerdiscovery

import "github.com/btcsuite/btclog"

var log = btclog.Disabled

// UseLogger sets the package-level logger used by the discovery service.
func UseLogger(logger btclog.Logger) {
	log = logger
}
