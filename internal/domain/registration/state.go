package registration

// State of one pair within a registration run.
type State int

const (
	Pending State = iota
	Processing
	Success
	Error
	Skipped
)

var stateNames = [...]string{"pending", "processing", "success", "error", "skipped"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// MarshalText renders the lowercase state name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether no transition may leave s.
func (s State) Terminal() bool {
	return s == Success || s == Error || s == Skipped
}

// allowed lists legal transitions. Skipped is reachable only from Pending so
// a skipped pair never passed through Processing.
var allowed = map[State][]State{
	Pending:    {Processing, Skipped},
	Processing: {Success, Error},
}

func canTransition(from, to State) bool {
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}
