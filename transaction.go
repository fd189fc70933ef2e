package modbus

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// TransactionState is the lifecycle state of a Transaction (spec §3).
type TransactionState int32

const (
	StatePending TransactionState = iota
	StateInFlight
	StateCompleted
	StateCancelled
)

func (s TransactionState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateInFlight:
		return "in-flight"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	}
	return "unknown"
}

// EventKind tags an Event emitted during a Transaction's lifecycle (spec
// §4.2). complete is strictly last; no event follows it or cancel.
type EventKind int

const (
	EventRequest EventKind = iota
	EventTimeout
	EventResponse
	EventError
	EventComplete
	EventCancel
)

func (k EventKind) String() string {
	switch k {
	case EventRequest:
		return "request"
	case EventTimeout:
		return "timeout"
	case EventResponse:
		return "response"
	case EventError:
		return "error"
	case EventComplete:
		return "complete"
	case EventCancel:
		return "cancel"
	}
	return "unknown"
}

// Event is one step in a Transaction's lifecycle, delivered through the
// channel returned by Events (spec §4.2, SPEC_FULL.md supplemented
// feature). The outcome carried by the complete event is also passed to
// the completion callback supplied at construction.
type Event struct {
	Kind     EventKind
	Response Response
	Err      error
}

// CompletionFunc is invoked exactly once for a Transaction that completes,
// strictly after every other event has fired (spec §3 invariant). A
// cancelled Transaction never invokes it.
type CompletionFunc func(resp Response, err error)

// Transaction owns one Request bound for a target unit, the retry budget
// and per-attempt timeout governing it, a cached encoded ADU, and its
// lifecycle state (spec §3).
//
// A Transaction has no lock of its own. Each transport calls its methods,
// including from the timer goroutine started by Start, while holding that
// transport's own mutex (spec §5's single ownership boundary).
type Transaction struct {
	Req  Request
	Unit byte

	retries uint8
	timeout time.Duration

	retryOnException bool

	adu []byte

	state TransactionState
	timer *time.Timer

	onComplete CompletionFunc
	events     chan Event

	log *zap.Logger
}

func newTransaction(req Request, unit byte, maxRetries uint8, timeout time.Duration, retryOnException bool, onComplete CompletionFunc, log *zap.Logger) *Transaction {
	if log == nil {
		log = zap.NewNop()
	}
	return &Transaction{
		Req:               req,
		Unit:              unit,
		retries:           maxRetries,
		timeout:           timeout,
		retryOnException:  retryOnException,
		state:             StatePending,
		onComplete:        onComplete,
		events:            make(chan Event, 8),
		log:               log,
	}
}

// Events exposes every event fired by this transaction on a buffered
// channel, closed the instant complete or cancel fires.
func (t *Transaction) Events() <-chan Event {
	return t.events
}

// State reports the transaction's current lifecycle state.
func (t *Transaction) State() TransactionState {
	return t.state
}

// RetriesRemaining reports the retry budget left after the current
// attempt.
func (t *Transaction) RetriesRemaining() uint8 {
	return t.retries
}

// ADU returns the transaction's cached encoded ADU, building it with
// build on first call only (spec §3 invariant: adu is set at most once).
func (t *Transaction) ADU(build func(req Request, unit byte) []byte) []byte {
	if t.adu == nil {
		t.adu = build(t.Req, t.Unit)
	}
	return t.adu
}

// SetADU overwrites the cached ADU outright, used by the IP transport to
// mutate the 2-byte txid prefix in place before a retry (spec §4.4).
func (t *Transaction) SetADU(adu []byte) {
	t.adu = adu
}

// CachedADU returns the ADU built by a prior call to ADU, or nil if none
// has been built yet.
func (t *Transaction) CachedADU() []byte {
	return t.adu
}

func (t *Transaction) emit(ev Event) {
	select {
	case t.events <- ev:
	default:
		t.log.Warn("transaction event dropped, channel full", zap.Stringer("kind", ev.Kind))
	}
}

// Start transitions the transaction to in-flight, emits a request event,
// and arms a single-shot timer of timeout duration. If the timer fires
// before the transaction completes, onExpire is invoked with this
// transaction from the timer's own goroutine; onExpire is responsible for
// acquiring the owning transport's lock before touching any transport or
// transaction state (spec §4.2, §5).
func (t *Transaction) Start(onExpire func(*Transaction)) {
	t.state = StateInFlight
	t.emit(Event{Kind: EventRequest})
	t.timer = time.AfterFunc(t.timeout, func() { onExpire(t) })
}

func (t *Transaction) stopTimer() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

// HandleTimeout implements the transaction's start(onTimeout) contract
// (spec §4.2): with retries remaining it decrements the budget and
// reports that the cached ADU should be re-issued; otherwise it completes
// with a Timeout error.
func (t *Transaction) HandleTimeout() (reissue bool) {
	if t.state != StateInFlight {
		return false
	}
	t.emit(Event{Kind: EventTimeout})
	if t.retries == 0 {
		t.complete(nil, newError(KindTimeout, "no response within per-attempt timeout"))
		return false
	}
	t.retries--
	return true
}

// HandleResponse implements Transaction.handleResponse (spec §4.2): an
// ExceptionResponse retried per retryOnException decrements the retry
// budget and reports a re-issue; any other response, or an exception with
// no retry budget or retryOnException disabled, is delivered and the
// transaction completes.
func (t *Transaction) HandleResponse(resp Response) (reissue bool) {
	if t.state != StateInFlight {
		return false
	}
	t.stopTimer()
	if ex, ok := resp.(*ExceptionResponse); ok {
		if t.retryOnException && t.retries > 0 {
			t.retries--
			t.emit(Event{Kind: EventError, Err: ex.AsError()})
			return true
		}
		t.emit(Event{Kind: EventResponse, Response: resp})
		t.complete(resp, ex.AsError())
		return false
	}
	t.emit(Event{Kind: EventResponse, Response: resp})
	t.complete(resp, nil)
	return false
}

// HandleError implements Transaction.handleError (spec §4.2): a retriable
// error with budget remaining decrements the budget and reports a
// re-issue; otherwise the transaction completes with the error.
func (t *Transaction) HandleError(err *Error) (reissue bool) {
	if t.state != StateInFlight {
		return false
	}
	t.stopTimer()
	t.emit(Event{Kind: EventError, Err: err})
	if err.Retriable() && t.retries > 0 {
		t.retries--
		return true
	}
	t.complete(nil, err)
	return false
}

// Fail completes the transaction with err regardless of its current
// state, provided it has not already completed or been cancelled. Used
// by the Master when a transport rejects a request before the
// transaction ever reached Start (spec §4.2's handleError only applies
// in-flight; a pre-flight send failure has no in-flight attempt to
// time out or retry).
func (t *Transaction) Fail(err error) {
	if t.state == StateCompleted || t.state == StateCancelled {
		return
	}
	t.stopTimer()
	t.emit(Event{Kind: EventError, Err: err})
	t.complete(nil, err)
}

// Cancel implements Transaction.cancel (spec §4.2): transitions to
// cancelled, clears any pending timer, and fires no further events
// beyond the cancel event itself.
func (t *Transaction) Cancel() {
	if t.state == StateCompleted || t.state == StateCancelled {
		return
	}
	t.stopTimer()
	t.state = StateCancelled
	t.emit(Event{Kind: EventCancel})
	close(t.events)
}

func (t *Transaction) complete(resp Response, err error) {
	t.stopTimer()
	t.state = StateCompleted
	t.emit(Event{Kind: EventComplete, Response: resp, Err: err})
	close(t.events)
	if t.onComplete != nil {
		t.onComplete(resp, err)
	}
}

func (t *Transaction) String() string {
	return fmt.Sprintf("Transaction(unit=%d, state=%s, retries=%d, req=%s)", t.Unit, t.state, t.retries, t.Req)
}
