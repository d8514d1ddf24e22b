// Package compute defines the provider-neutral compute model (zones,
// network offerings, networks, nodes and key pairs) and the orchestration
// scenarios built on top of it.
//
// Providers implement Service:
//
//   - cloudstack: a CloudStack management server over its HTTP API
//   - libvirt: the local hypervisor, through the libvirt RPC protocol
//
// The scenarios in scenario.go only depend on Service, so they run the same
// way against every provider and against fakes in tests. Every scenario
// tears down what it provisioned in a deferred cleanup, including nodes
// left behind by a partially failed launch.
package compute
