package oer

// PacketType identifies the kind of ILP packet carried on the wire: a
// one-byte tag preceding the OER-encoded, type-specific payload.
type PacketType uint8

const (
	PacketTypePrepare PacketType = 12
	PacketTypeFulfill PacketType = 13
	PacketTypeReject  PacketType = 14
)

// Packet is the minimal wire envelope shared by Prepare/Fulfill/Reject:
// a type tag followed by a VarOctetString holding the type-specific OER
// payload. Higher layers decode Data according to Type.
type Packet struct {
	Type PacketType
	Data []byte
}

// ReadPacket decodes a Packet from buf starting at offset, returning the
// number of bytes consumed. Data is a zero-copy view over buf.
func ReadPacket(buf []byte, offset int) (Packet, int, error) {
	typByte, n, err := ReadUInt8(buf, offset)
	if err != nil {
		return Packet{}, 0, err
	}
	total := n

	data, n, err := ReadVarOctetString(buf, offset+total)
	if err != nil {
		return Packet{}, 0, err
	}
	total += n

	return Packet{Type: PacketType(typByte), Data: data}, total, nil
}

// WritePacket appends the wire encoding of p to dst.
func WritePacket(dst []byte, p Packet) []byte {
	dst = WriteUInt8(dst, uint8(p.Type))
	dst = WriteVarOctetString(dst, p.Data)
	return dst
}
