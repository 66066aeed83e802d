// Package core holds the types shared by the flashing workflow: the device
// descriptor, the partition plan, the closed outcome taxonomy and the ports
// (transport, firmware resolver, device provider, event sink) that concrete
// collaborators implement.
package core
