package dataType

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"
)

// MaxHops caps how many times a message may be relayed.
const MaxHops = 5

// Message is a unit of communication flooded through the mesh. Values are
// treated as immutable; RelayVia returns a new value instead of mutating.
type Message struct {
	ID        string
	Sender    string
	Content   string
	IsPanic   bool
	Location  string
	CreatedAt time.Time
	HopCount  int
	RelayedBy []string
}

// NewMessage builds a freshly originated message. Only the originating node
// calls it; relays never generate a new id.
func NewMessage(id, sender, content string, isPanic bool, location string, now time.Time) Message {
	return Message{
		ID:        id,
		Sender:    sender,
		Content:   content,
		IsPanic:   isPanic,
		Location:  location,
		CreatedAt: now,
		HopCount:  0,
		RelayedBy: []string{},
	}
}

// CanRelay reports why nodeID may not relay m, or nil if it may.
func (m Message) CanRelay(nodeID string) error {
	if nodeID == "" {
		return fmt.Errorf("%w: empty node id", ErrInvalidRelay)
	}
	if len(m.RelayedBy) != m.HopCount {
		return fmt.Errorf("%w: hop_count %d does not match %d relays", ErrInvalidRelay, m.HopCount, len(m.RelayedBy))
	}
	if m.HopCount+1 > MaxHops {
		return ErrHopLimitExceeded
	}
	if slices.Contains(m.RelayedBy, nodeID) {
		return ErrSelfRelay
	}
	return nil
}

// RelayVia returns the copy of m that nodeID re-broadcasts: one more hop and
// nodeID appended to RelayedBy. Every other field is carried over unchanged.
func (m Message) RelayVia(nodeID string) (Message, error) {
	if err := m.CanRelay(nodeID); err != nil {
		return Message{}, err
	}
	relayed := m
	relayed.HopCount = m.HopCount + 1
	relayed.RelayedBy = make([]string, 0, len(m.RelayedBy)+1)
	relayed.RelayedBy = append(relayed.RelayedBy, m.RelayedBy...)
	relayed.RelayedBy = append(relayed.RelayedBy, nodeID)
	return relayed, nil
}

// Clone returns a copy that shares no slice storage with m.
func (m Message) Clone() Message {
	c := m
	c.RelayedBy = slices.Clone(m.RelayedBy)
	if c.RelayedBy == nil {
		c.RelayedBy = []string{}
	}
	return c
}

// wireEnvelope is the JSON form exchanged between devices.
type wireEnvelope struct {
	ID           string   `json:"id" validate:"required,max=128"`
	Sender       string   `json:"sender" validate:"required,max=128"`
	Content      string   `json:"content"`
	IsPanic      bool     `json:"is_panic"`
	Location     *string  `json:"location"`
	Timestamp    string   `json:"timestamp" validate:"required"`
	HopCount     int      `json:"hop_count" validate:"min=0,max=5"`
	PropagatedBy []string `json:"propagated_by" validate:"max=5,unique,dive,required,max=128"`
}

var envelopeValidate = validator.New(validator.WithRequiredStructEnabled())

// zone-less forms are what older devices emit
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

func EncodeMessage(m Message) ([]byte, error) {
	env := wireEnvelope{
		ID:           m.ID,
		Sender:       m.Sender,
		Content:      m.Content,
		IsPanic:      m.IsPanic,
		Timestamp:    m.CreatedAt.Format(time.RFC3339Nano),
		HopCount:     m.HopCount,
		PropagatedBy: m.RelayedBy,
	}
	if m.Location != "" {
		loc := m.Location
		env.Location = &loc
	}
	if env.PropagatedBy == nil {
		env.PropagatedBy = []string{}
	}
	return json.Marshal(env)
}

// DecodeMessage parses and validates an inbound envelope. Every failure wraps
// ErrMalformedEnvelope.
func DecodeMessage(data []byte) (Message, error) {
	var env wireEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if err := envelopeValidate.Struct(env); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if len(env.PropagatedBy) != env.HopCount {
		return Message{}, fmt.Errorf("%w: hop_count %d but %d relays listed", ErrMalformedEnvelope, env.HopCount, len(env.PropagatedBy))
	}
	createdAt, err := parseTimestamp(env.Timestamp)
	if err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}

	m := Message{
		ID:        env.ID,
		Sender:    env.Sender,
		Content:   env.Content,
		IsPanic:   env.IsPanic,
		CreatedAt: createdAt,
		HopCount:  env.HopCount,
		RelayedBy: env.PropagatedBy,
	}
	if env.Location != nil {
		m.Location = *env.Location
	}
	if m.RelayedBy == nil {
		m.RelayedBy = []string{}
	}
	return m, nil
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}
