// Package control implements the wire codec and role-dispatch state
// machine for RREQ, RREP, RWAIT, RERR and Hello control messages
// (spec §4.5, §6).
package control

import (
	"encoding/binary"
	"fmt"

	"meshroute/internal/domain"
)

// Op identifies a control-message opcode, passed alongside the payload
// bytes by the host stack's recv_ctl dispatch (spec §6 "on_ctl_receive").
type Op uint8

const (
	OpRREQ Op = iota
	OpRREP
	OpRWAIT
	OpRERR
)

// Broadcast is the flooded-send sentinel address passed to Host.SendCtl
// for an undirected RREQ. The host stack maps it onto its actual local
// broadcast mechanism; the protocol core never inspects it.
const Broadcast domain.Addr = 0xffff

func (o Op) String() string {
	switch o {
	case OpRREQ:
		return "RREQ"
	case OpRREP:
		return "RREP"
	case OpRWAIT:
		return "RWAIT"
	case OpRERR:
		return "RERR"
	default:
		return fmt.Sprintf("Op(%d)", uint8(o))
	}
}

// RREQ flag bits (spec §6: "flags: bit0=G bit1=D bit2=U bit3=I").
const (
	flagG uint8 = 1 << 0
	flagD uint8 = 1 << 1
	flagU uint8 = 1 << 2
	flagI uint8 = 1 << 3
)

// RREQ is the decoded Route Request payload.
type RREQ struct {
	Source      domain.Addr
	Destination domain.Addr
	SourceElems uint16
	HopCount    uint8
	RSSI        int8
	Gratuitous  bool // flag G
	DestOnly    bool // flag D
	SeqUnknown  bool // flag U: DestSeq is not carried/valid
	Directed    bool // flag I: directed relay toward a known next hop
	SourceSeq   uint32
	DestSeq     uint32
}

// EncodeRREQ serializes an RREQ per spec §6. DestSeq is omitted from the
// wire when r.SeqUnknown is set.
func EncodeRREQ(r RREQ) []byte {
	size := 12
	if !r.SeqUnknown {
		size = 15
	}
	buf := make([]byte, size)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(r.Source))
	binary.LittleEndian.PutUint16(buf[2:4], uint16(r.Destination))
	binary.LittleEndian.PutUint16(buf[4:6], r.SourceElems)
	buf[6] = r.HopCount
	buf[7] = byte(r.RSSI)
	buf[8] = encodeFlags(r)
	putUint24(buf[9:12], r.SourceSeq)
	if !r.SeqUnknown {
		putUint24(buf[12:15], r.DestSeq)
	}
	return buf
}

func encodeFlags(r RREQ) uint8 {
	var f uint8
	if r.Gratuitous {
		f |= flagG
	}
	if r.DestOnly {
		f |= flagD
	}
	if r.SeqUnknown {
		f |= flagU
	}
	if r.Directed {
		f |= flagI
	}
	return f
}

// DecodeRREQ parses an RREQ payload, returning domain.ErrDecodeShort if
// buf is shorter than the minimum 12-byte frame.
func DecodeRREQ(buf []byte) (RREQ, error) {
	if len(buf) < 12 {
		return RREQ{}, domain.ErrDecodeShort
	}
	flags := buf[8]
	r := RREQ{
		Source:      domain.Addr(binary.LittleEndian.Uint16(buf[0:2])),
		Destination: domain.Addr(binary.LittleEndian.Uint16(buf[2:4])),
		SourceElems: binary.LittleEndian.Uint16(buf[4:6]),
		HopCount:    buf[6],
		RSSI:        int8(buf[7]),
		Gratuitous:  flags&flagG != 0,
		DestOnly:    flags&flagD != 0,
		SeqUnknown:  flags&flagU != 0,
		Directed:    flags&flagI != 0,
		SourceSeq:   getUint24(buf[9:12]),
	}
	if !r.SeqUnknown {
		if len(buf) < 15 {
			return RREQ{}, domain.ErrDecodeShort
		}
		r.DestSeq = getUint24(buf[12:15])
	}
	return r, nil
}

// RREP is the decoded Route Reply payload.
type RREP struct {
	Repairable      bool
	Source          domain.Addr // originator of the original RREQ
	Destination     domain.Addr
	DestSeq         uint32
	HopCount        uint8
	DestinationElems uint16
}

// EncodeRREP serializes an RREP per spec §6 (fixed 12 bytes).
func EncodeRREP(r RREP) []byte {
	buf := make([]byte, 12)
	if r.Repairable {
		buf[0] = 1
	}
	binary.LittleEndian.PutUint16(buf[1:3], uint16(r.Source))
	binary.LittleEndian.PutUint16(buf[3:5], uint16(r.Destination))
	binary.LittleEndian.PutUint32(buf[5:9], r.DestSeq)
	buf[9] = r.HopCount
	binary.LittleEndian.PutUint16(buf[10:12], r.DestinationElems)
	return buf
}

// DecodeRREP parses a fixed 12-byte RREP payload.
func DecodeRREP(buf []byte) (RREP, error) {
	if len(buf) < 12 {
		return RREP{}, domain.ErrDecodeShort
	}
	return RREP{
		Repairable:       buf[0] != 0,
		Source:           domain.Addr(binary.LittleEndian.Uint16(buf[1:3])),
		Destination:      domain.Addr(binary.LittleEndian.Uint16(buf[3:5])),
		DestSeq:          binary.LittleEndian.Uint32(buf[5:9]),
		HopCount:         buf[9],
		DestinationElems: binary.LittleEndian.Uint16(buf[10:12]),
	}, nil
}

// RWAIT is the decoded Route Wait payload. It carries its own opcode
// byte on the wire (spec §6), unlike the other PDUs.
type RWAIT struct {
	Destination domain.Addr
	Source      domain.Addr
	SourceSeq   uint32
	HopCount    uint8
}

// EncodeRWAIT serializes an RWAIT per spec §6 (fixed 10 bytes, including
// its leading opcode byte).
func EncodeRWAIT(r RWAIT) []byte {
	buf := make([]byte, 10)
	buf[0] = byte(OpRWAIT)
	binary.LittleEndian.PutUint16(buf[1:3], uint16(r.Destination))
	binary.LittleEndian.PutUint16(buf[3:5], uint16(r.Source))
	binary.LittleEndian.PutUint32(buf[5:9], r.SourceSeq)
	buf[9] = r.HopCount
	return buf
}

// DecodeRWAIT parses a fixed 10-byte RWAIT payload.
func DecodeRWAIT(buf []byte) (RWAIT, error) {
	if len(buf) < 10 {
		return RWAIT{}, domain.ErrDecodeShort
	}
	return RWAIT{
		Destination: domain.Addr(binary.LittleEndian.Uint16(buf[1:3])),
		Source:      domain.Addr(binary.LittleEndian.Uint16(buf[3:5])),
		SourceSeq:   binary.LittleEndian.Uint32(buf[5:9]),
		HopCount:    buf[9],
	}, nil
}

// RERR is the decoded Route Error payload.
type RERR struct {
	Destinations []domain.RerrDestination
}

// EncodeRERR serializes a RERR per spec §6 (1 + 5*N bytes).
func EncodeRERR(r RERR) []byte {
	buf := make([]byte, 1+5*len(r.Destinations))
	buf[0] = byte(len(r.Destinations))
	for i, d := range r.Destinations {
		off := 1 + 5*i
		binary.LittleEndian.PutUint16(buf[off:off+2], uint16(d.DestAddr))
		putUint24(buf[off+2:off+5], d.DestSeq)
	}
	return buf
}

// DecodeRERR parses a RERR payload.
func DecodeRERR(buf []byte) (RERR, error) {
	if len(buf) < 1 {
		return RERR{}, domain.ErrDecodeShort
	}
	n := int(buf[0])
	if len(buf) < 1+5*n {
		return RERR{}, domain.ErrDecodeShort
	}
	dests := make([]domain.RerrDestination, n)
	for i := 0; i < n; i++ {
		off := 1 + 5*i
		dests[i] = domain.RerrDestination{
			DestAddr: domain.Addr(binary.LittleEndian.Uint16(buf[off : off+2])),
			DestSeq:  getUint24(buf[off+2 : off+5]),
		}
	}
	return RERR{Destinations: dests}, nil
}

func putUint24(buf []byte, v uint32) {
	buf[0] = byte(v)
	buf[1] = byte(v >> 8)
	buf[2] = byte(v >> 16)
}

func getUint24(buf []byte) uint32 {
	return uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16
}
