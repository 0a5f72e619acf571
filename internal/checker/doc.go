// Package checker implements the individual security probes.
//
// Architecture overview:
//
//   - Probes implement the Probe interface (Probe + Name). Each one inspects a
//     single dimension of a target (response headers, TLS, CORS, allowed HTTP
//     methods, open ports) and always returns a scan.ProbeResult. Network
//     failures are reported in-band through ProbeResult.Error with score 0.
//   - Scoring is expressed as an ordered table of Rule values per probe and
//     reduced with Fold. The Evaluate* functions are pure so each scoring
//     table can be tested without network access.
//   - NormalizeTarget turns free-text input into the scheme, host and
//     registrable domain every probe and the consent gate work with.
//
// PortsProbe is the only active probe. The orchestrator adds it to the probe
// set only when the consent gate grants it.
package checker
