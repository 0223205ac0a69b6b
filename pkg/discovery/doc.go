// Package discovery implements mDNS/DNS-SD discovery of management servers.
//
// A management server advertises one instance of the _m2m._tcp service.
// Endpoints configured with an "mdns:<instance>" server URI browse for that
// instance and connect to the first address it reports.
//
// # TXT Records
//
//   - v: protocol version (required)
//   - sec: "1" when the server only accepts TLS connections
//   - dom: registration domain served (optional)
//
// Addresses from multiple interfaces are merged into a single entry per
// instance.
package discovery
