package modbus

// crcTable is the precomputed 256-entry MODBUS CRC-16 table (polynomial
// 0xA001, reflected), used by the RTU and Tunnel transports (spec §4.3,
// §6). Computed once at package init from the polynomial rather than
// hand-transcribed, to keep the table provably correct.
var crcTable [256]uint16

func init() {
	for i := 0; i < 256; i++ {
		crc := uint16(i)
		for b := 0; b < 8; b++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ 0xA001
			} else {
				crc >>= 1
			}
		}
		crcTable[i] = crc
	}
}

// crc16 computes the MODBUS CRC-16 over data, seeded at 0xFFFF.
func crc16(data ...[]byte) uint16 {
	crc := uint16(0xFFFF)
	for _, chunk := range data {
		for _, b := range chunk {
			crc = (crc >> 8) ^ crcTable[(crc^uint16(b))&0xFF]
		}
	}
	return crc
}

// crcBytes returns the little-endian wire encoding of a CRC-16 value: low
// byte transmitted first (spec §6).
func crcBytes(crc uint16) [2]byte {
	return [2]byte{byte(crc), byte(crc >> 8)}
}

// appendCRC appends the little-endian CRC-16 of frame (computed over the
// whole of frame) to frame and returns the extended slice.
func appendCRC(frame []byte) []byte {
	c := crc16(frame)
	b := crcBytes(c)
	return append(frame, b[0], b[1])
}

// verifyCRC reports whether the last two bytes of frame match the CRC-16
// of the preceding bytes.
func verifyCRC(frame []byte) bool {
	if len(frame) < 2 {
		return false
	}
	body := frame[:len(frame)-2]
	want := crc16(body)
	got := uint16(frame[len(frame)-2]) | uint16(frame[len(frame)-1])<<8
	return want == got
}
