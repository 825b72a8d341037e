package serialize

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// EncodeGob gob-encodes any of this package's *Record types into a
// deterministic byte stream: the structured records hold only plain
// fields (no maps, no interfaces), so gob's field-order encoding is
// bit-stable across repeated calls on equal values.
func EncodeGob(record interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(record); err != nil {
		return nil, fmt.Errorf("serialize: EncodeGob: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeGob decodes raw into record, which must be a pointer to one of
// this package's *Record types (the same type EncodeGob was called on).
func DecodeGob(raw []byte, record interface{}) error {
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(record); err != nil {
		return fmt.Errorf("serialize: DecodeGob: %w", err)
	}
	return nil
}

// EncodeEphemeris is the gob-bit-stable encoding of an EphemerisRecord.
func EncodeEphemeris(r EphemerisRecord) ([]byte, error) { return EncodeGob(r) }

// DecodeEphemeris is the gob-bit-stable decoding counterpart of
// EncodeEphemeris.
func DecodeEphemeris(raw []byte) (EphemerisRecord, error) {
	var r EphemerisRecord
	err := DecodeGob(raw, &r)
	return r, err
}

// EncodeFlightPlan is the gob-bit-stable encoding of a FlightPlanRecord.
func EncodeFlightPlan(r FlightPlanRecord) ([]byte, error) { return EncodeGob(r) }

// DecodeFlightPlan is the gob-bit-stable decoding counterpart of
// EncodeFlightPlan.
func DecodeFlightPlan(raw []byte) (FlightPlanRecord, error) {
	var r FlightPlanRecord
	err := DecodeGob(raw, &r)
	return r, err
}
