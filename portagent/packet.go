// Package portagent encodes and decodes the packets of port agent, the process relaying raw instrument I/O over TCP
//
// Every packet starts with a 16-byte big-endian header:
//
//	0xA3 0x9D 0x7A | type (1) | size (2) | checksum (2) | NTP seconds (4) | NTP fraction (4)
//
// The size includes the header itself. The checksum is the XOR of all header bytes except the checksum field plus
// the payload, stored in the low byte of the checksum field.
package portagent

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// PacketType is the type code in port agent header
type PacketType uint8

// Packet types defined by port agent
const (
	DataFromInstrument    PacketType = 1
	DataFromDriver        PacketType = 2
	PortAgentCommand      PacketType = 3
	PortAgentStatus       PacketType = 4
	PortAgentFault        PacketType = 5
	PortAgentConfig       PacketType = 6
	DigiCommand           PacketType = 7
	DigiResponse          PacketType = 8
	Heartbeat             PacketType = 9
	PickledFromInstrument PacketType = 10
)

var packetTypeNames = [...]string{
	DataFromInstrument:    "DATA_FROM_INSTRUMENT",
	DataFromDriver:        "DATA_FROM_DRIVER",
	PortAgentCommand:      "PORT_AGENT_COMMAND",
	PortAgentStatus:       "PORT_AGENT_STATUS",
	PortAgentFault:        "PORT_AGENT_FAULT",
	PortAgentConfig:       "PORT_AGENT_CONFIG",
	DigiCommand:           "DIGI_CMD",
	DigiResponse:          "DIGI_RSP",
	Heartbeat:             "HEARTBEAT",
	PickledFromInstrument: "PICKLED_FROM_INSTRUMENT",
}

func (t PacketType) String() string {
	if t.IsValid() {
		return packetTypeNames[t]
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint8(t))
}

// IsValid returns whether the type is one of the defined packet types
func (t PacketType) IsValid() bool {
	return t >= DataFromInstrument && t <= PickledFromInstrument
}

// ParsePacketType parses a packet type by name, as returned by String()
func ParsePacketType(name string) (PacketType, error) {
	for i, n := range packetTypeNames {
		if n != "" && n == name {
			return PacketType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown packet type: %s", name)
}

const (
	// HeaderSize is the size of packet header in bytes
	HeaderSize = 16

	// MaxPacketSize is the largest packet size representable in header, including the header
	MaxPacketSize = 0xFFFF

	// MaxPayloadSize is the largest payload of one packet
	MaxPayloadSize = MaxPacketSize - HeaderSize

	offsetType          = 3
	offsetSize          = 4
	offsetChecksum      = 6
	offsetChecksumLow   = 7
	offsetTimeSeconds   = 8
	offsetTimeFractions = 12
)

// SyncBytes starts every packet
var SyncBytes = []byte{0xA3, 0x9D, 0x7A}

var (
	// ErrChecksum is returned with a fully read packet whose checksum doesn't match its content
	ErrChecksum = errors.New("port agent packet checksum mismatch")

	// ErrPacketSize is returned for a header declaring a size smaller than the header itself
	ErrPacketSize = errors.New("invalid port agent packet size")

	// ErrPayloadTooLarge is returned when encoding a payload beyond MaxPayloadSize
	ErrPayloadTooLarge = errors.New("port agent payload too large")
)

// Packet is a decoded port agent packet
type Packet struct {
	Type      PacketType
	Timestamp time.Time // from NTP time in header
	Checksum  uint16    // as received or calculated on encoding
	Payload   []byte
}

func (p Packet) String() string {
	return fmt.Sprintf("%s@%s(%d bytes)", p.Type, p.Timestamp.UTC().Format(time.RFC3339Nano), len(p.Payload))
}

// NewPacket creates a Packet with the given type and payload, timestamped by current time
func NewPacket(typ PacketType, payload []byte) Packet {
	return Packet{
		Type:      typ,
		Timestamp: time.Now(),
		Payload:   payload,
	}
}

// Size returns the total size of encoded packet
func (p Packet) Size() int {
	return HeaderSize + len(p.Payload)
}

// Encode returns the packet in wire format with checksum calculated
func (p Packet) Encode() ([]byte, error) {
	return p.AppendTo(make([]byte, 0, p.Size()))
}

// AppendTo appends the packet in wire format to the given buffer
func (p Packet) AppendTo(dst []byte) ([]byte, error) {
	if len(p.Payload) > MaxPayloadSize {
		return dst, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(p.Payload))
	}
	start := len(dst)
	dst = append(dst, SyncBytes...)
	dst = append(dst, byte(p.Type))
	dst = binary.BigEndian.AppendUint16(dst, uint16(p.Size()))
	dst = append(dst, 0, 0)
	seconds, fraction := TimeToNTP(p.Timestamp)
	dst = binary.BigEndian.AppendUint32(dst, seconds)
	dst = binary.BigEndian.AppendUint32(dst, fraction)
	dst = append(dst, p.Payload...)
	dst[start+offsetChecksumLow] = LRC(dst[start:], 0)
	return dst, nil
}

// LRC returns the longitudinal redundancy check (XOR) of data, starting from seed
func LRC(data []byte, seed byte) byte {
	for _, b := range data {
		seed ^= b
	}
	return seed
}

// ChecksumOf calculates the checksum of a full encoded packet, ignoring the existing checksum field
func ChecksumOf(packet []byte) uint16 {
	sum := LRC(packet[:offsetChecksum], 0)
	sum = LRC(packet[offsetChecksum+2:], sum)
	return uint16(sum)
}

// header is the parsed fixed part of a packet
type header struct {
	typ       PacketType
	size      int
	checksum  uint16
	timestamp time.Time
}

func parseHeader(buf []byte) header {
	return header{
		typ:      PacketType(buf[offsetType]),
		size:     int(binary.BigEndian.Uint16(buf[offsetSize:])),
		checksum: binary.BigEndian.Uint16(buf[offsetChecksum:]),
		timestamp: NTPToTime(
			binary.BigEndian.Uint32(buf[offsetTimeSeconds:]),
			binary.BigEndian.Uint32(buf[offsetTimeFractions:]),
		),
	}
}

// Decode parses one complete packet from the beginning of the given buffer
//
// The payload in the returned packet refers to the input buffer. A packet with checksum mismatch is still returned
// along with ErrChecksum.
func Decode(buf []byte) (Packet, int, error) {
	if len(buf) < HeaderSize {
		return Packet{}, 0, fmt.Errorf("short header: %d bytes", len(buf))
	}
	if !isSync(buf) {
		return Packet{}, 0, fmt.Errorf("missing sync bytes: % X", buf[:len(SyncBytes)])
	}
	hdr := parseHeader(buf)
	if hdr.size < HeaderSize {
		return Packet{}, 0, fmt.Errorf("%w: %d", ErrPacketSize, hdr.size)
	}
	if len(buf) < hdr.size {
		return Packet{}, 0, fmt.Errorf("short packet: %d of %d bytes", len(buf), hdr.size)
	}
	pkt := Packet{
		Type:      hdr.typ,
		Timestamp: hdr.timestamp,
		Checksum:  hdr.checksum,
		Payload:   buf[HeaderSize:hdr.size],
	}
	if LRC(buf[:hdr.size], 0) != 0 || hdr.checksum > 0xFF {
		return pkt, hdr.size, fmt.Errorf("%w: received %04X calculated %04X", ErrChecksum, hdr.checksum, ChecksumOf(buf[:hdr.size]))
	}
	return pkt, hdr.size, nil
}

func isSync(buf []byte) bool {
	return buf[0] == SyncBytes[0] && buf[1] == SyncBytes[1] && buf[2] == SyncBytes[2]
}
