package notifier

import (
	"context"
	"fmt"
	"hwbot/pkg/logx"
	"sync"
	"time"

	"golang.org/x/time/rate"

	kit "hwbot/internal/transport"
)

const historyMax = 50

// Service sends messages to a single configured chat.
// It is safe for concurrent use.
type Service struct {
	cfg     Config
	sender  kit.Sender
	log     logx.Logger
	limiter *rate.Limiter

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, sender kit.Sender, log logx.Logger) *Service {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 15 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:    cfg,
		sender: sender,
		log:    log,
		// Token bucket: burst = rate per sec, so short spikes don't block too hard.
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
	}
}

// Send delivers text to the configured chat and reports whether it was delivered.
// It never returns an error and never panics: failures end up in the log.
func (s *Service) Send(ctx context.Context, text string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("message delivery panicked", logx.Any("panic", r))
			ok = false
		}
	}()

	if s.sender == nil {
		s.log.Error("message delivery failed", logx.Err(fmt.Errorf("no sender configured")))
		return false
	}
	if err := s.limiter.Wait(ctx); err != nil {
		s.log.Error("message delivery failed", logx.Err(err))
		return false
	}

	cctx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	defer cancel()
	ref, err := s.sender.SendText(cctx, s.cfg.Target, text, &kit.SendOptions{DisablePreview: true})
	if err != nil {
		s.log.Error("message delivery failed", logx.Err(err), logx.Int64("chat_id", s.cfg.Target.ChatID), logx.String("chat_username", s.cfg.Target.Username))
		return false
	}

	s.appendHistory(text)
	s.log.Info("message delivered", logx.Int64("chat_id", ref.ChatID), logx.Int("message_id", ref.MessageID))
	return true
}

func (s *Service) Snapshot() []HistoryItem {
	s.hmu.Lock()
	out := append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return out
}

func (s *Service) appendHistory(text string) {
	s.hmu.Lock()
	s.history = append(s.history, HistoryItem{At: time.Now(), Text: text})
	if len(s.history) > historyMax {
		s.history = s.history[len(s.history)-historyMax:]
	}
	s.hmu.Unlock()
}
