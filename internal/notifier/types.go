package notifier

import (
	"time"

	kit "hwbot/internal/transport"
)

// Config controls delivery.
type Config struct {
	Target      kit.ChatTarget
	RatePerSec  int
	SendTimeout time.Duration
}

type HistoryItem struct {
	At   time.Time
	Text string
}
