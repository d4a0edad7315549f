package chat

import (
	"strings"

	chaterrors "github.com/hrygo/chatrelay/server/internal/errors"
	"github.com/hrygo/chatrelay/server/internal/observability"
	"github.com/hrygo/chatrelay/server/security"
)

// Intake screens inbound requests before they reach the orchestrator: block
// list, validation, then the rate gate. Rejected requests leave no trace in the
// store or in the gate's windows.
type Intake struct {
	sanitizer *security.Sanitizer
	gate      *security.RateGate
	metrics   *observability.Metrics
}

// NewIntake creates an Intake. A nil metrics collector gets a private one.
func NewIntake(sanitizer *security.Sanitizer, gate *security.RateGate, metrics *observability.Metrics) *Intake {
	if metrics == nil {
		metrics = observability.NewMetrics(0)
	}
	return &Intake{sanitizer: sanitizer, gate: gate, metrics: metrics}
}

// Screen validates req in place and admits it through the gate. On success
// req.Message is trimmed and req.Context is sanitized.
func (i *Intake) Screen(req *Request, origin string) error {
	if err := i.screen(req, origin); err != nil {
		i.metrics.RecordRejection(string(chaterrors.GetCodeFromError(err, chaterrors.ErrCodeValidationFailed)))
		return err
	}
	return nil
}

func (i *Intake) screen(req *Request, origin string) error {
	if origin != "" && i.gate.IsBlocked(origin) {
		return chaterrors.SuspiciousActivity("access denied due to suspicious activity", true)
	}
	if err := i.sanitizer.ValidateMessage(req.Message); err != nil {
		return err
	}
	if req.SessionUID != "" && !security.ValidateSessionID(req.SessionUID) {
		return chaterrors.Validation("invalid session id")
	}
	// Context is scored raw; only the stored copy is sanitized.
	if err := i.gate.Check(req.UserID, origin, suspicionText(req)); err != nil {
		return err
	}
	req.Message = strings.TrimSpace(req.Message)
	req.Context = i.sanitizer.SanitizeContext(req.Context)
	return nil
}

// suspicionText is the message followed by every string found in the context.
func suspicionText(req *Request) string {
	var b strings.Builder
	b.WriteString(req.Message)
	collectStrings(&b, req.Context)
	return b.String()
}

func collectStrings(b *strings.Builder, value any) {
	switch v := value.(type) {
	case string:
		b.WriteByte(' ')
		b.WriteString(v)
	case map[string]any:
		for _, item := range v {
			collectStrings(b, item)
		}
	case []any:
		for _, item := range v {
			collectStrings(b, item)
		}
	}
}
