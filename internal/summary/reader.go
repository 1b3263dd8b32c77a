package summary

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"google.golang.org/protobuf/encoding/protowire"
)

// Scalar is one named value read back from an event file.
type Scalar struct {
	Tag   string
	Step  int64
	Value float64
}

// ReadScalars decodes every scalar summary in the event file at path. Records
// with corrupt framing fail the read; non-scalar events are skipped.
func ReadScalars(path string) ([]Scalar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var scalars []Scalar
	for {
		payload, err := readRecord(f)
		if errors.Is(err, io.EOF) {
			return scalars, nil
		}
		if err != nil {
			return nil, err
		}
		scalars = append(scalars, decodeEvent(payload)...)
	}
}

func readRecord(r io.Reader) ([]byte, error) {
	var header [12]byte
	if _, err := io.ReadFull(r, header[:8]); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(r, header[8:]); err != nil {
		return nil, fmt.Errorf("read length crc: %w", err)
	}
	if got, want := binary.LittleEndian.Uint32(header[8:]), maskedCRC(header[:8]); got != want {
		return nil, fmt.Errorf("length crc mismatch: %08x != %08x", got, want)
	}
	payload := make([]byte, binary.LittleEndian.Uint64(header[:8]))
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	var crc [4]byte
	if _, err := io.ReadFull(r, crc[:]); err != nil {
		return nil, fmt.Errorf("read payload crc: %w", err)
	}
	if got, want := binary.LittleEndian.Uint32(crc[:]), maskedCRC(payload); got != want {
		return nil, fmt.Errorf("payload crc mismatch: %08x != %08x", got, want)
	}
	return payload, nil
}

func decodeEvent(b []byte) []Scalar {
	var step int64
	var summary []byte
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil
		}
		b = b[n:]
		switch {
		case num == eventStep && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil
			}
			step = int64(v)
			b = b[n:]
		case num == eventSummary && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil
			}
			summary = v
			b = b[n:]
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil
			}
			b = b[n:]
		}
	}
	var scalars []Scalar
	for len(summary) > 0 {
		num, typ, n := protowire.ConsumeTag(summary)
		if n < 0 {
			return nil
		}
		summary = summary[n:]
		if num == summaryValue && typ == protowire.BytesType {
			v, n := protowire.ConsumeBytes(summary)
			if n < 0 {
				return nil
			}
			summary = summary[n:]
			if s, ok := decodeValue(v); ok {
				s.Step = step
				scalars = append(scalars, s)
			}
			continue
		}
		n = protowire.ConsumeFieldValue(num, typ, summary)
		if n < 0 {
			return nil
		}
		summary = summary[n:]
	}
	return scalars
}

func decodeValue(b []byte) (Scalar, bool) {
	var s Scalar
	var hasValue bool
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Scalar{}, false
		}
		b = b[n:]
		switch {
		case num == valueTag && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Scalar{}, false
			}
			s.Tag = string(v)
			b = b[n:]
		case num == valueSimpleValue && typ == protowire.Fixed32Type:
			v, n := protowire.ConsumeFixed32(b)
			if n < 0 {
				return Scalar{}, false
			}
			s.Value = float64(math.Float32frombits(v))
			hasValue = true
			b = b[n:]
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Scalar{}, false
			}
			b = b[n:]
		}
	}
	return s, s.Tag != "" && hasValue
}
