// Package libvirt implements compute.Service on a single libvirt
// hypervisor.
//
// The hypervisor is the only zone. Networks are libvirt virtual networks
// whose bridge name carries the VLAN id (nbr{vlan}). Nodes are domains
// booting from a qcow2 overlay of an image in the images pool, seeded
// with a cloud-init NoCloud ISO. The node's group is kept in the domain's
// custom metadata so DestroyNodesInGroup can find the nodes again. Key
// pairs live in a keystore directory on the machine running nimbus.
package libvirt
