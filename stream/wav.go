package stream

import (
	"encoding/binary"
	"fmt"
	"io"
)

// WriteWAV writes a canonical 44-byte-header PCM WAV with the given little
// endian payload.
func WriteWAV(w io.Writer, rate uint32, bits, channels uint16, payload []byte) error {
	if bits%8 != 0 || bits == 0 || channels == 0 {
		return fmt.Errorf("cannot encode %d-bit %d-channel audio", bits, channels)
	}
	align := channels * bits / 8
	if len(payload)%int(align) != 0 {
		return fmt.Errorf("payload of %d bytes is not a whole number of %d-byte frames", len(payload), align)
	}

	hdr := make([]byte, 44)
	copy(hdr[0:], riffTag[:])
	binary.LittleEndian.PutUint32(hdr[4:], uint32(36+len(payload)))
	copy(hdr[8:], waveTag[:])
	copy(hdr[12:], fmtTag[:])
	binary.LittleEndian.PutUint32(hdr[16:], 16)
	binary.LittleEndian.PutUint16(hdr[20:], wavFormatPCM)
	binary.LittleEndian.PutUint16(hdr[22:], channels)
	binary.LittleEndian.PutUint32(hdr[24:], rate)
	binary.LittleEndian.PutUint32(hdr[28:], rate*uint32(align))
	binary.LittleEndian.PutUint16(hdr[32:], align)
	binary.LittleEndian.PutUint16(hdr[34:], bits)
	copy(hdr[36:], dataTag[:])
	binary.LittleEndian.PutUint32(hdr[40:], uint32(len(payload)))

	if _, err := w.Write(hdr); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}
