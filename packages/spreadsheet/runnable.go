package spreadsheet

import "fmt"

// Runnable provides a chainable interface for engine edits. It wraps an
// Engine and tracks the first error internally; once an error is recorded
// every further step is a no-op.
type Runnable struct {
	engine  *Engine
	err     error
	printLn func(string)
	updates int
}

// NewRunnable wraps engine. printLn is used by Log and CheckError; nil
// discards output.
func NewRunnable(engine *Engine, printLn func(string)) *Runnable {
	if printLn == nil {
		printLn = func(string) {}
	}
	return &Runnable{
		engine:  engine,
		printLn: printLn,
	}
}

// Set stores raw at label (chainable)
func (r *Runnable) Set(label, raw string) *Runnable {
	if r.err != nil {
		return r // no-op if there's already an error
	}
	if _, err := r.engine.SetLabel(label, raw); err != nil {
		r.err = err
		return r
	}
	r.updates++
	return r
}

// SetBatch applies edits in order (chainable). Each edit is a label and
// raw input pair.
func (r *Runnable) SetBatch(edits ...[2]string) *Runnable {
	for _, edit := range edits {
		r.Set(edit[0], edit[1])
	}
	return r
}

// Clear empties label (chainable)
func (r *Runnable) Clear(label string) *Runnable {
	if r.err != nil {
		return r
	}
	if _, err := r.engine.ClearLabel(label); err != nil {
		r.err = err
		return r
	}
	r.updates++
	return r
}

// Value returns the display value at label. Returns EmptyValue when the
// chain already failed or the label is malformed, recording the error.
func (r *Runnable) Value(label string) Value {
	if r.err != nil {
		return EmptyValue
	}
	rec, err := r.engine.GetLabel(label)
	if err != nil {
		r.err = err
		return EmptyValue
	}
	return rec.Display
}

// Log prints label and its display value (chainable)
func (r *Runnable) Log(label string) *Runnable {
	if r.err != nil {
		return r
	}
	v := r.Value(label)
	if r.err == nil {
		r.printLn(fmt.Sprintf("%s: %s", label, v))
	}
	return r
}

// CheckError logs the current error using printLn (chainable)
func (r *Runnable) CheckError() *Runnable {
	if r.err != nil {
		r.printLn(fmt.Sprintf("ERROR: %v", r.err))
	} else {
		r.printLn("No errors")
	}
	return r
}

// Then allows conditional execution based on current error state
func (r *Runnable) Then(fn func(*Runnable) *Runnable) *Runnable {
	if r.err != nil {
		return r
	}
	return fn(r)
}

// Must panics if there's an error (chainable)
func (r *Runnable) Must() *Runnable {
	if r.err != nil {
		panic(r.err)
	}
	return r
}

// Err returns the current error state
func (r *Runnable) Err() error {
	return r.err
}

// Updates returns how many edits were applied
func (r *Runnable) Updates() int {
	return r.updates
}

// Run returns the engine and any error. typically the last method in the
// chain
func (r *Runnable) Run() (*Engine, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.engine, nil
}
