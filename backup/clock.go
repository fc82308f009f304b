package backup

import "time"

//go:generate mockgen -destination=clockmocks_test.go -package=backup_test github.com/skycode/skypanel/backup Clock
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func NewRealClock() *RealClock { return &RealClock{} }

func (c *RealClock) Now() time.Time { return time.Now() }
