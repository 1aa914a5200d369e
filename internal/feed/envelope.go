// ED Companion - Market Feed and Community Goal Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edcompanion

package feed

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/zlib"

	"github.com/tomtom215/edcompanion/internal/validation"
)

// maxEnvelopeSize caps the inflated size of one message.
const maxEnvelopeSize = 16 << 20

// ErrEnvelopeTooLarge is returned when a message inflates past maxEnvelopeSize.
var ErrEnvelopeTooLarge = errors.New("envelope exceeds size limit")

// Envelope is the outer EDDN document. Message stays raw until the schema
// is known.
type Envelope struct {
	SchemaRef string          `json:"$schemaRef"`
	Header    Header          `json:"header"`
	Message   json.RawMessage `json:"message"`
}

// Header identifies the uploader.
type Header struct {
	UploaderID       string `json:"uploaderID"`
	SoftwareName     string `json:"softwareName"`
	SoftwareVersion  string `json:"softwareVersion"`
	GatewayTimestamp string `json:"gatewayTimestamp"`
}

// CommodityMessage is the body of a commodity/3 envelope. Entries are
// decoded one at a time so a bad line cannot spoil its neighbours.
type CommodityMessage struct {
	SystemName  string            `json:"systemName" validate:"required"`
	StationName string            `json:"stationName" validate:"required"`
	MarketID    int64             `json:"marketId"`
	Timestamp   string            `json:"timestamp" validate:"required"`
	Commodities []json.RawMessage `json:"commodities"`

	collectedAt int64
}

// CollectedAt is the message timestamp in Unix seconds, UTC.
func (m *CommodityMessage) CollectedAt() int64 {
	return m.collectedAt
}

// CommodityEntry is one market line. Pointers distinguish a missing
// field from a legitimate zero.
type CommodityEntry struct {
	Name      string `json:"name" validate:"required"`
	BuyPrice  *int64 `json:"buyPrice" validate:"required,gte=0"`
	SellPrice *int64 `json:"sellPrice" validate:"required,gte=0"`
	Demand    *int64 `json:"demand" validate:"required,gte=0"`
	Stock     *int64 `json:"stock" validate:"required,gte=0"`
}

// DecodeEnvelope inflates a zlib payload and parses the envelope.
func DecodeEnvelope(raw []byte) (*Envelope, error) {
	zr, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to open zlib stream: %w", err)
	}
	defer zr.Close()

	body, err := io.ReadAll(io.LimitReader(zr, maxEnvelopeSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to inflate message: %w", err)
	}
	if len(body) > maxEnvelopeSize {
		return nil, ErrEnvelopeTooLarge
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to parse envelope: %w", err)
	}
	return &env, nil
}

// ParseCommodityMessage decodes and validates a commodity message body.
func ParseCommodityMessage(body json.RawMessage) (*CommodityMessage, error) {
	if len(body) == 0 {
		return nil, errors.New("envelope has no message")
	}

	var msg CommodityMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse commodity message: %w", err)
	}
	if err := validation.ValidateStruct(&msg); err != nil {
		return nil, fmt.Errorf("invalid commodity message: %w", err)
	}

	ts, err := ParseTimestamp(msg.Timestamp)
	if err != nil {
		return nil, err
	}
	msg.collectedAt = ts
	return &msg, nil
}

// ParseEntry decodes and validates one commodity line.
func ParseEntry(raw json.RawMessage) (*CommodityEntry, error) {
	var entry CommodityEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("failed to parse commodity entry: %w", err)
	}
	if err := validation.ValidateStruct(&entry); err != nil {
		return nil, fmt.Errorf("invalid commodity entry %q: %w", entry.Name, err)
	}
	return &entry, nil
}

// ParseTimestamp converts an ISO-8601 timestamp to Unix seconds in UTC.
// Fractional seconds are truncated.
func ParseTimestamp(s string) (int64, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Unix(), nil
		}
	}
	return 0, fmt.Errorf("invalid timestamp %q", s)
}
