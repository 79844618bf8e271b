package scte35

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// Segmentation type codes carried in the descriptor. The values follow
// the SCTE-35 segmentation_type_id table (program start / program end).
const (
	SegmentationProgramStart = 0x10
	SegmentationProgramEnd   = 0x11
)

// Descriptor is the logical splice payload handed to manifest
// generators. It is a JSON structure encoded as base64, not a bit-packed
// splice_info_section; downstream consumers that require standard binary
// SCTE-35 need a packager in front of them.
type Descriptor struct {
	EventType          EventType `json:"event_type"`
	EventID            uint64    `json:"event_id"`
	Duration           float64   `json:"duration"`
	PreRoll            float64   `json:"pre_roll"`
	Timestamp          time.Time `json:"timestamp"`
	SegmentationTypeID int       `json:"segmentation_type_id"`
}

// EncodeDescriptor packages a marker event into its transport form.
func EncodeDescriptor(typ EventType, sequence uint64, duration, preRoll float64, at time.Time) (string, error) {
	code := SegmentationProgramEnd
	if typ == EventCueOut {
		code = SegmentationProgramStart
	}

	d := Descriptor{
		EventType:          typ,
		EventID:            sequence,
		Duration:           duration,
		PreRoll:            preRoll,
		Timestamp:          at.UTC(),
		SegmentationTypeID: code,
	}

	data, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("failed to encode splice descriptor: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeDescriptor parses a base64 descriptor payload.
func DecodeDescriptor(encoded string) (*Descriptor, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode splice descriptor: %w", err)
	}
	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to parse splice descriptor: %w", err)
	}
	return &d, nil
}
