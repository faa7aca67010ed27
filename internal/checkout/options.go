package checkout

import (
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-orders/internal/inventory"
)

const DefaultMaxAttempts = 5

type Option func(*Service)

func WithGenerator(g IDGenerator) Option { return func(s *Service) { s.ids = g } }

func WithEvents(e Events) Option { return func(s *Service) { s.events = e } }

func WithInventory(inv *inventory.Service) Option { return func(s *Service) { s.inventory = inv } }

func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.log = l } }

// WithMaxAttempts bounds booking id generation per order. Values below 1 are ignored.
func WithMaxAttempts(n int) Option {
	return func(s *Service) {
		if n >= 1 {
			s.maxAttempts = n
		}
	}
}
