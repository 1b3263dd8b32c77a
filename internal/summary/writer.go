// Package summary writes TensorBoard event files containing scalar
// summaries. The on-disk format is the TFRecord framing around hand-encoded
// tensorflow.Event protos, so the output is readable by TensorBoard and by
// hyperparameter tuning controllers that consume scalar summaries.
package summary

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"math"
	"os"
	"path/filepath"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// fileVersion is the sentinel first record of every event file.
const fileVersion = "brain.Event:2"

// tensorflow.Event field numbers.
const (
	eventWallTime    = 1 // double
	eventStep        = 2 // int64
	eventFileVersion = 3 // string
	eventSummary     = 5 // message
)

// tensorflow.Summary and Summary.Value field numbers.
const (
	summaryValue     = 1 // repeated message
	valueTag         = 1 // string
	valueSimpleValue = 2 // float
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Writer appends scalar events to a single event file.
type Writer struct {
	f   *os.File
	buf *bufio.Writer
	now func() time.Time
}

// Create opens a new event file under dir, creating the directory if needed,
// and writes the file-version header record.
func Create(dir string) (*Writer, error) {
	return create(dir, time.Now)
}

func create(dir string, now func() time.Time) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create summary dir: %w", err)
	}
	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}
	name := fmt.Sprintf("events.out.tfevents.%d.%s", now().Unix(), host)
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return nil, fmt.Errorf("create event file: %w", err)
	}
	w := &Writer{f: f, buf: bufio.NewWriter(f), now: now}

	var event []byte
	event = protowire.AppendTag(event, eventWallTime, protowire.Fixed64Type)
	event = protowire.AppendFixed64(event, math.Float64bits(wallTime(now())))
	event = protowire.AppendTag(event, eventFileVersion, protowire.BytesType)
	event = protowire.AppendString(event, fileVersion)
	if err := w.writeRecord(event); err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

// WriteScalar appends one named scalar value at the given step.
func (w *Writer) WriteScalar(tag string, step int64, value float64) error {
	var val []byte
	val = protowire.AppendTag(val, valueTag, protowire.BytesType)
	val = protowire.AppendString(val, tag)
	val = protowire.AppendTag(val, valueSimpleValue, protowire.Fixed32Type)
	val = protowire.AppendFixed32(val, math.Float32bits(float32(value)))

	var sum []byte
	sum = protowire.AppendTag(sum, summaryValue, protowire.BytesType)
	sum = protowire.AppendBytes(sum, val)

	var event []byte
	event = protowire.AppendTag(event, eventWallTime, protowire.Fixed64Type)
	event = protowire.AppendFixed64(event, math.Float64bits(wallTime(w.now())))
	event = protowire.AppendTag(event, eventStep, protowire.VarintType)
	event = protowire.AppendVarint(event, uint64(step))
	event = protowire.AppendTag(event, eventSummary, protowire.BytesType)
	event = protowire.AppendBytes(event, sum)

	return w.writeRecord(event)
}

// writeRecord emits one TFRecord: length, masked CRC of the length bytes,
// payload, masked CRC of the payload.
func (w *Writer) writeRecord(payload []byte) error {
	var length [8]byte
	binary.LittleEndian.PutUint64(length[:], uint64(len(payload)))
	var crc [4]byte

	if _, err := w.buf.Write(length[:]); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(crc[:], maskedCRC(length[:]))
	if _, err := w.buf.Write(crc[:]); err != nil {
		return err
	}
	if _, err := w.buf.Write(payload); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(crc[:], maskedCRC(payload))
	if _, err := w.buf.Write(crc[:]); err != nil {
		return err
	}
	return nil
}

// Flush pushes buffered records to disk.
func (w *Writer) Flush() error {
	if err := w.buf.Flush(); err != nil {
		return err
	}
	return w.f.Sync()
}

// Close flushes and closes the event file.
func (w *Writer) Close() error {
	if err := w.buf.Flush(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}

func wallTime(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

const crcMaskDelta = 0xa282ead8

func maskedCRC(b []byte) uint32 {
	crc := crc32.Checksum(b, castagnoli)
	return ((crc >> 15) | (crc << 17)) + crcMaskDelta
}
