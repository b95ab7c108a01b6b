package discovery

import (
	"context"

	"meshroute/internal/domain"
)

// RREQParams carries everything the coordinator knows when asking the
// control-message layer to emit a flooded RREQ (spec §6 "RREQ" wire
// layout, minus the fields only ControlMessages fills in when relaying).
type RREQParams struct {
	Src, Dst     domain.Addr
	Net          domain.Net
	TTL          uint8
	HopCount     uint8
	RSSI         int8
	SrcSeq       uint32
	DestSeq      uint32
	DestSeqKnown bool
}

// Transport is the narrow collaborator the coordinator uses to emit RREQs
// and to read the local session sequence number (spec §6 "Collaborator
// interface"). ControlMessages implements it on top of send_ctl.
type Transport interface {
	SendRREQ(ctx context.Context, p RREQParams) error
	SessionSeq() uint32
}
