package state

// Event is a pipeline operation that may change its state.
type Event int

// Pipeline events. Query is a read-only event that never changes state.
const (
	AddModule Event = iota
	Configure
	Start
	Stop
	Reset
	Query
)

func (e Event) String() string {
	switch e {
	case AddModule:
		return "event.AddModule"
	case Configure:
		return "event.Configure"
	case Start:
		return "event.Start"
	case Stop:
		return "event.Stop"
	case Reset:
		return "event.Reset"
	case Query:
		return "event.Query"
	}
	return "event.Unknown"
}
