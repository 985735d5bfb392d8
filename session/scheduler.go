package session

import "time"

// Timer is a pending refresh that can be cancelled.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d. The Manager owns the only timer it arms.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type timeScheduler struct{}

func (timeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
