package checkout

// Stage is where a placement is in its linear pipeline.
type Stage string

const (
	StageValidating  Stage = "VALIDATING"
	StagePricing     Stage = "PRICING"
	StageReserving   Stage = "RESERVING"
	StageIdentifying Stage = "IDENTIFYING"
	StagePersisting  Stage = "PERSISTING"
	StagePlaced      Stage = "PLACED"
	StageFailed      Stage = "FAILED"
)

// Persisting may fall back to Identifying on a booking id collision; nothing
// else goes backwards.
var validNext = map[Stage]map[Stage]bool{
	StageValidating:  {StagePricing: true, StageFailed: true},
	StagePricing:     {StageReserving: true, StageFailed: true},
	StageReserving:   {StageIdentifying: true, StageFailed: true},
	StageIdentifying: {StagePersisting: true, StageFailed: true},
	StagePersisting:  {StageIdentifying: true, StagePlaced: true, StageFailed: true},
	StagePlaced:      {},
	StageFailed:      {},
}

func CanTransition(from, to Stage) bool {
	return validNext[from][to]
}

func (s Stage) Terminal() bool { return s == StagePlaced || s == StageFailed }
