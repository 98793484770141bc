package speech

// Options configure one recognition run.
type Options struct {
	Lang           string
	Continuous     bool
	InterimResults bool
}

// Recognizer is a platform speech engine. Start begins a run tagged with
// session; every event of that run carries the same Session value. Stop
// asks the engine to finalize what it heard, Abort discards it. Both end
// the run asynchronously with an EventEnd.
type Recognizer interface {
	Start(session uint64, opts Options) error
	Stop() error
	Abort() error
	Events() *Emitter
}
