// Package libvirt wraps the connection to the local libvirt daemon and
// renders the XML documents the libvirt compute provider defines.
//
// Connection management:
//
//	client, err := libvirt.Connect("", 0)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
// XML generation:
//
//	xml, err := libvirt.GenerateNetworkXML(libvirt.NetworkSpec{
//	    Name:    "experiment-2",
//	    VLAN:    "2",
//	    Gateway: "10.2.0.1",
//	    Netmask: "255.255.255.0",
//	})
//
// This package does not define interfaces over libvirt. Consumers
// (internal/compute/libvirt, internal/storage, internal/metadata) declare
// the subset of *libvirt.Libvirt methods they call, which keeps them
// testable with hand-written mocks.
package libvirt
