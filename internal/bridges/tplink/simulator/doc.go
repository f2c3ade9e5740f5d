// Package simulator provides an in-process TP-Link device driver.
//
// Simulated plugs and strips implement the tplink handle interfaces with
// the same caching behaviour as real devices: Status returns what the last
// Update fetched, while on/off commands update the cache directly. Faults
// (dial errors, update failures, slow responses) can be injected per device,
// which makes the simulator the driver of choice for tests and for
// commissioning an installation before hardware is on the network.
//
// Outlet ids take the form "<strip id>_<strip id><nn>", so their short ids
// stay unique across strips.
package simulator
