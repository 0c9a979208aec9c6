package domain

type PipelineState int

const (
	StateIdle PipelineState = iota
	StateFetchingPrice
	StateComputing
	StateSubmittingEntry
	StateSubmittingStopLoss
	StateDone
	StateFailed
)

var stateNames = map[PipelineState]string{
	StateIdle:               "Idle",
	StateFetchingPrice:      "FetchingPrice",
	StateComputing:          "Computing",
	StateSubmittingEntry:    "SubmittingEntry",
	StateSubmittingStopLoss: "SubmittingStopLoss",
	StateDone:               "Done",
	StateFailed:             "Failed",
}

func (s PipelineState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "Unknown"
}

// Terminal reports whether no further transition can happen.
func (s PipelineState) Terminal() bool {
	return s == StateDone || s == StateFailed
}
