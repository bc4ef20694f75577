package ingestion

import (
	"fmt"
	"strings"
	"time"

	"VammLedger/internal/errs"
	"VammLedger/internal/event"

	"github.com/google/uuid"
)

// CommandSubjectPrefix is the subject namespace producers publish commands
// under: vamm.cmd.{EventType}[.{anything}].
const CommandSubjectPrefix = "vamm.cmd."

// RawEvent is the parsed-but-untyped command from NATS, ready for the
// dispatcher to validate and convert before it reaches the core.
type RawEvent struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	AckFunc   func() // processed or rejected for good
	NakFunc   func() // redeliver later
	TermFunc  func() // malformed, never redeliver
}

// CommandSubject returns the subject a producer publishes t under.
func CommandSubject(t event.EventType) string {
	return CommandSubjectPrefix + t.String()
}

// EventTypeFromSubject reads the command type from a subject.
func EventTypeFromSubject(subject string) (event.EventType, error) {
	rest, ok := strings.CutPrefix(subject, CommandSubjectPrefix)
	if !ok {
		return event.EventTypeUnknown, fmt.Errorf("subject %q is not a command subject", subject)
	}
	name, _, _ := strings.Cut(rest, ".")
	t, ok := event.ParseEventType(name)
	if !ok {
		return event.EventTypeUnknown, fmt.Errorf("unknown event type: %s", name)
	}
	return t, nil
}

// ParseRawEvent converts a NATS message into a typed command.
func ParseRawEvent(raw RawEvent) (event.Event, error) {
	t, err := EventTypeFromSubject(raw.Subject)
	if err != nil {
		return nil, err
	}
	return ParseCommand(t.String(), raw.Data)
}

// ParseCommand decodes a JSON payload of the named type and checks that it
// carries an idempotency key. Everything else is validated by the core.
func ParseCommand(eventType string, data []byte) (event.Event, error) {
	t, ok := event.ParseEventType(eventType)
	if !ok {
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}
	evt, err := event.Decode(t, data)
	if err != nil {
		return nil, err
	}
	if err := validateKey(evt); err != nil {
		return nil, err
	}
	return evt, nil
}

func validateKey(evt event.Event) error {
	if o, ok := evt.(*event.OraclePriceUpdate); ok {
		if o.Sequence <= 0 {
			return errs.New(errs.CodeInvalidArgument, "oracle reading needs a positive sequence")
		}
		return nil
	}
	key := evt.IdempotencyKey()
	if key == "" || key == uuid.Nil.String() {
		return errs.New(errs.CodeInvalidArgument, "%s needs a command_id", evt.EventType())
	}
	return nil
}
