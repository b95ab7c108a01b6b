package control

import (
	"context"

	"meshroute/internal/domain"
)

// RxMeta is the network-layer metadata accompanying a received control
// message (spec §6: "rx carries {source_addr, dest_addr, net_idx, rssi,
// recv_ttl}").
type RxMeta struct {
	Source  domain.Addr
	Dest    domain.Addr
	Net     domain.Net
	RSSI    int8
	RecvTTL uint8
}

// Host is the abstract collaborator interface to the lower network stack
// and element/provisioning layers that spec §1 places out of scope:
// send_ctl, and the synchronous element/subnet queries.
type Host interface {
	// SendCtl encrypts, frames and radiates bytes as the given opcode
	// toward tx with the given flood TTL. Segmentation and TransMIC are
	// the host's responsibility. Callers sending a directed/unicast
	// control message (RREP, RWAIT, RERR, or an I=1 directed RREQ) pass
	// ttl=1; it is otherwise ignored by a point-to-point send.
	SendCtl(ctx context.Context, tx domain.Addr, op Op, ttl uint8, bytes []byte) error

	// PrimaryAddr returns this node's own primary element address.
	PrimaryAddr() domain.Addr
	// ElemCount returns the number of contiguous elements this node owns.
	ElemCount() uint16
	// ElemFind reports whether addr names one of this node's own local
	// elements.
	ElemFind(addr domain.Addr) bool
	// SessionSeq returns the current session sequence number, advanced by
	// the host on each discovery attempt.
	SessionSeq() uint32
	// SubnetGet returns the subnet key material for net (spec §6
	// "subnet_get(net_idx)"). Message-layer security is explicitly out of
	// scope here (spec §1 Non-goals): no component in this package calls
	// it, but it completes the collaborator surface spec §6 names.
	SubnetGet(net domain.Net) []byte
}
