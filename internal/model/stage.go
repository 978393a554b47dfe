package model

// Stage is the lifecycle position of one in-flight analysis.
type Stage string

const (
	StageIdle     Stage = "idle"
	StageScraping Stage = "scraping"
	StageParsing  Stage = "parsing"
	StageScoring  Stage = "scoring"
	StageDone     Stage = "done"
	StageFailed   Stage = "failed"
)

// Terminal reports whether no further transition is possible.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageFailed
}

// CanTransition reports whether moving from s to next follows
// idle -> scraping -> parsing -> scoring -> done, with failed reachable from
// any non-terminal stage.
func (s Stage) CanTransition(next Stage) bool {
	if s.Terminal() {
		return false
	}
	if next == StageFailed {
		return true
	}
	switch s {
	case StageIdle:
		return next == StageScraping
	case StageScraping:
		return next == StageParsing
	case StageParsing:
		return next == StageScoring
	case StageScoring:
		return next == StageDone
	}
	return false
}
