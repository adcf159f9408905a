package tswriter

import "github.com/ssrecorder/capturecore/container"

const programNumber = 1

// MPEG-2 CRC32 with polynomial 0x04C11DB7, the same table internal/mpegts
// verifies PAT/PMT sections against, used here to generate rather than
// check.
var crc32Table [256]uint32

func init() {
	for i := 0; i < 256; i++ {
		crc := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if crc&0x80000000 != 0 {
				crc = (crc << 1) ^ 0x04C11DB7
			} else {
				crc <<= 1
			}
		}
		crc32Table[i] = crc
	}
}

func computeCRC32(data []byte) uint32 {
	crc := uint32(0xFFFFFFFF)
	for _, b := range data {
		crc = (crc << 8) ^ crc32Table[byte(crc>>24)^b]
	}
	return crc
}

// buildPAT encodes a single-program PAT section pointing at pidPMT.
func buildPAT() []byte {
	section := []byte{
		tableIDPAT,
		0, 0, // section_length placeholder, filled below
		0, 0, // transport_stream_id
		0xC1, // reserved(2)=11 + version(5)=0 + current_next=1
		0,    // section_number
		0,    // last_section_number
		byte(programNumber >> 8), byte(programNumber & 0xFF),
		byte(0xE0 | pidPMT>>8&0x1F), byte(pidPMT & 0xFF),
	}
	return finalizeSection(section)
}

// buildPMT encodes a PMT section listing one elementary stream per
// writer stream, at its allocated PID.
func buildPMT(streams []streamState) []byte {
	pcrPID := pidPAT | 0x1FFF
	if len(streams) > 0 {
		pcrPID = int(streams[0].pid)
	}
	section := []byte{
		tableIDPMT,
		0, 0, // section_length placeholder
		byte(programNumber >> 8), byte(programNumber & 0xFF),
		0xC1, // version/current_next
		0, 0, // section_number, last_section_number
		byte(0xE0 | pcrPID>>8&0x1F), byte(pcrPID & 0xFF),
		0xF0, 0x00, // program_info_length = 0
	}
	for _, s := range streams {
		section = append(section,
			s.params.Kind,
			byte(0xE0|s.pid>>8&0x1F), byte(s.pid&0xFF),
			0xF0, 0x00, // ES_info_length = 0
		)
	}
	return finalizeSection(section)
}

// finalizeSection patches in section_length (everything after the length
// field, including the trailing CRC) and appends the CRC32 of everything
// preceding it.
func finalizeSection(section []byte) []byte {
	// section_length covers bytes from section[3] onward plus the 4-byte
	// CRC appended below.
	length := len(section) - 3 + 4
	section[1] = 0x80 | byte(length>>8&0x0F) // section_syntax_indicator=1
	section[2] = byte(length & 0xFF)

	crc := computeCRC32(section)
	return append(section,
		byte(crc>>24), byte(crc>>16), byte(crc>>8), byte(crc),
	)
}

// buildPES wraps pkt's payload in a PES header for the given stream_id,
// encoding PTS (and DTS when present) as 33-bit timestamps, the inverse
// of internal/mpegts's parsePES/parsePTSOrDTS.
func buildPES(streamID uint8, pkt container.Packet) []byte {
	var optional []byte
	ptsDTSIndicator := byte(0x00)
	if pkt.HasDTS {
		ptsDTSIndicator = 0x03
		optional = append(optional, encodeTimestamp(0x3, pkt.PTS)...)
		optional = append(optional, encodeTimestamp(0x1, pkt.DTS)...)
	} else {
		ptsDTSIndicator = 0x02
		optional = append(optional, encodeTimestamp(0x2, pkt.PTS)...)
	}

	header := []byte{
		0x00, 0x00, 0x01, // start code
		streamID,
		0, 0, // PES_packet_length placeholder (0 = unbounded, left as 0 for video)
		0x80,                 // marker bits + no scrambling/priority/alignment/copyright
		ptsDTSIndicator << 6, // PTS_DTS_indicator in top 2 bits
		byte(len(optional)),  // PES_header_data_length
	}
	header = append(header, optional...)

	packetLength := len(header) - 6 + len(pkt.Data)
	if packetLength <= 0xFFFF && pkt.Data != nil {
		// Only set an explicit length for bounded (e.g. audio) packets;
		// video elementary streams conventionally leave it 0.
		if streamID < 0xE0 || streamID > 0xEF {
			header[4] = byte(packetLength >> 8)
			header[5] = byte(packetLength & 0xFF)
		}
	}

	return append(header, pkt.Data...)
}

// encodeTimestamp packs a 33-bit PTS/DTS value into the standard 5-byte
// PES timestamp field with the given 4-bit marker prefix (0x2 for PTS
// when alone, 0x3/0x1 for PTS/DTS pairs).
func encodeTimestamp(marker byte, ts int64) []byte {
	v := uint64(ts) & 0x1FFFFFFFF // 33 bits
	b := make([]byte, 5)
	b[0] = marker<<4 | byte(v>>29&0x0E) | 0x01
	b[1] = byte(v >> 22 & 0xFF)
	b[2] = byte(v>>14&0xFE) | 0x01
	b[3] = byte(v >> 7 & 0xFF)
	b[4] = byte(v<<1&0xFE) | 0x01
	return b
}
