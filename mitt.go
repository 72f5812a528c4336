// Package mitt is a tiny synchronous in-process event emitter.
//
// Handlers are registered against string event keys and invoked in
// registration order when an event is emitted. The reserved key "*"
// subscribes a handler to every event. Dispatch happens inline on the
// caller's stack: Emit returns only after every matching handler has run.
// Handlers may register and remove handlers (including themselves) while a
// dispatch is in progress; Emit iterates over a snapshot of the handler
// list taken when it starts, so re-entrant mutation never corrupts the
// iteration.
package mitt

import "reflect"

// EventKey names an event type. Any string is a valid key, including the
// empty string. The key "*" is reserved as the wildcard key.
type EventKey string

// Wildcard is the reserved event key whose handlers receive every emitted
// event. It must not be used as a direct Emit target.
const Wildcard EventKey = "*"

// Handler is the callback contract for ordinary event keys.
type Handler func(payload any)

// WildcardHandler is the callback contract for registrations under the
// wildcard key. It receives the key of the event being dispatched along
// with the payload.
type WildcardHandler func(event EventKey, payload any)

// Registration is a single handler binding. Exactly one of Handler or
// Wildcard is set, depending on which list the registration lives in.
// Context is an opaque value used only as an equality key when matching
// registrations for removal; it is never passed to the callback. Handlers
// that need a receiver should be closures that capture it.
type Registration struct {
	Handler  Handler
	Wildcard WildcardHandler
	Context  any
	Once     bool
}

// pointer returns the code pointer of the registration's callback, used
// for identity matching during removal. Two closures created from the same
// function literal share a code pointer; callers that register the same
// literal more than once should disambiguate with WithContext.
func (r *Registration) pointer() uintptr {
	if r.Handler != nil {
		return reflect.ValueOf(r.Handler).Pointer()
	}
	if r.Wildcard != nil {
		return reflect.ValueOf(r.Wildcard).Pointer()
	}
	return 0
}

// Events maps event keys to their ordered handler registrations. Insertion
// order is significant: it is the invocation order on Emit. The type is
// public so callers can build a registry by hand, pre-seed an Emitter with
// it, or share one registry between emitters.
type Events map[EventKey][]*Registration

// Option configures a Registration during On. Options carrying removal
// criteria (WithContext) are also accepted by Off.
type Option func(*Registration)

// WithContext attaches an opaque context value to a registration. The
// value acts purely as an equality key: Off removes a registration only
// when both the callback and the context match.
func WithContext(ctx any) Option {
	return func(r *Registration) {
		r.Context = ctx
	}
}

// Once marks a registration for automatic removal after its first
// invocation.
func Once() Option {
	return func(r *Registration) {
		r.Once = true
	}
}

// Emitter is the event registry and dispatcher. The zero value is not
// usable for logging but On/Off/Emit work on it; use New to construct one.
//
// All is the live registry mapping. It is deliberately exported: reading
// or writing it directly is equivalent to going through On and Off, and
// advanced callers may bulk-edit it (the Emitter keeps no shadow state).
// The emitter is single-threaded by contract; there is no locking.
type Emitter struct {
	All Events

	logging emitterLog
}

// New creates an emitter. A non-nil all map is adopted as the live
// registry (shared, not copied), so registrations made through the emitter
// are visible to anyone holding the map and vice versa. Pass nil to start
// empty.
//
// logConfig is optional - pass nil to disable logging.
func New(all Events, logConfig *LogConfig) *Emitter {
	if all == nil {
		all = Events{}
	}
	e := &Emitter{All: all}
	e.logging.setup(logConfig)
	return e
}

// On registers handler for the event key typ, appending it after any
// existing registrations for that key. For ordinary keys the handler must
// be a Handler or func(any); for the Wildcard key it must be a
// WildcardHandler or func(EventKey, any). A handler of the wrong shape for
// its key is not registered (logged at error level when logging is
// enabled). There is no deduplication: registering the same callback and
// context twice creates two independent registrations.
func (e *Emitter) On(typ EventKey, handler any, opts ...Option) {
	reg, ok := newRegistration(typ, handler)
	if !ok {
		e.logging.error("handler shape does not match event key contract", "event", string(typ))
		return
	}
	for _, opt := range opts {
		opt(reg)
	}
	if e.All == nil {
		e.All = Events{}
	}
	e.All[typ] = append(e.All[typ], reg)
	e.logging.info("handler registered", "event", string(typ), "once", reg.Once)
}

// Off removes registrations for the event key typ.
//
// With a nil handler it clears every registration for typ, leaving the key
// present with an empty list. With a non-nil handler it removes the first
// registration (in list order) whose callback matches handler and whose
// context matches the one supplied via WithContext; absent context matches
// absent context. When nothing matches, Off is a silent no-op.
func (e *Emitter) Off(typ EventKey, handler any, opts ...Option) {
	if e.All == nil {
		e.All = Events{}
	}
	if handler == nil {
		e.All[typ] = []*Registration{}
		e.logging.info("handlers cleared", "event", string(typ))
		return
	}
	ptr := funcPointer(handler)
	if ptr == 0 {
		return
	}
	var probe Registration
	for _, opt := range opts {
		opt(&probe)
	}
	if e.removeFirst(typ, ptr, probe.Context) {
		e.logging.info("handler removed", "event", string(typ))
	}
}

// Emit dispatches payload to every handler registered for typ, in
// registration order, then to every wildcard handler, also in registration
// order. Each pass iterates a snapshot of the corresponding list taken
// before its first invocation, so handlers may freely call On, Off or Emit
// on the same emitter; a snapshot entry that was removed from the live
// list before its turn is skipped. Once-registrations are removed from the
// live list immediately after their invocation returns.
//
// Emitting the Wildcard key itself is not supported and performs no
// invocations. A panicking handler is not recovered: the panic reaches
// Emit's caller and the remaining handlers of that dispatch do not run.
func (e *Emitter) Emit(typ EventKey, payload any) {
	if typ == Wildcard {
		return
	}
	if regs := e.All[typ]; len(regs) > 0 {
		e.logging.info("dispatching event", "event", string(typ), "handlers", len(regs))
		snapshot := append([]*Registration(nil), regs...)
		for _, reg := range snapshot {
			if reg.Handler == nil || !e.stillRegistered(typ, reg) {
				continue
			}
			reg.Handler(payload)
			if reg.Once {
				e.removeFirst(typ, reg.pointer(), reg.Context)
			}
		}
	}
	if regs := e.All[Wildcard]; len(regs) > 0 {
		snapshot := append([]*Registration(nil), regs...)
		for _, reg := range snapshot {
			if reg.Wildcard == nil || !e.stillRegistered(Wildcard, reg) {
				continue
			}
			reg.Wildcard(typ, payload)
			if reg.Once {
				e.removeFirst(Wildcard, reg.pointer(), reg.Context)
			}
		}
	}
}

// Close releases the optional log sink. The registry itself needs no
// teardown; emitters constructed without logging never need Close.
func (e *Emitter) Close() error {
	return e.logging.close()
}

// removeFirst removes the first registration under typ whose callback
// pointer and context both match, preserving the order of the remaining
// entries. It reports whether a registration was removed.
func (e *Emitter) removeFirst(typ EventKey, ptr uintptr, ctx any) bool {
	regs := e.All[typ]
	for i, reg := range regs {
		if reg.pointer() == ptr && contextEqual(reg.Context, ctx) {
			e.All[typ] = append(regs[:i], regs[i+1:]...)
			return true
		}
	}
	return false
}

// stillRegistered reports whether reg is still present in the live list
// for typ. Emit uses it to skip snapshot entries removed mid-dispatch.
func (e *Emitter) stillRegistered(typ EventKey, reg *Registration) bool {
	for _, r := range e.All[typ] {
		if r == reg {
			return true
		}
	}
	return false
}

// newRegistration validates handler against the callback contract of typ
// and wraps it in a Registration.
func newRegistration(typ EventKey, handler any) (*Registration, bool) {
	if typ == Wildcard {
		switch h := handler.(type) {
		case WildcardHandler:
			return &Registration{Wildcard: h}, h != nil
		case func(EventKey, any):
			return &Registration{Wildcard: h}, h != nil
		}
		return nil, false
	}
	switch h := handler.(type) {
	case Handler:
		return &Registration{Handler: h}, h != nil
	case func(any):
		return &Registration{Handler: h}, h != nil
	}
	return nil, false
}

// funcPointer returns the code pointer of fn, or 0 when fn is not a
// function value.
func funcPointer(fn any) uintptr {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		return 0
	}
	return v.Pointer()
}

// contextEqual compares two registration contexts. Comparable values are
// compared with ==; uncomparable ones fall back to reflect.DeepEqual so
// that slice or map contexts still match themselves field-for-field.
func contextEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if ta.Comparable() {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}
