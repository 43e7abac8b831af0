package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type BreakerSuite struct {
	suite.Suite
	now time.Time
	b   *Breaker
}

func TestBreakerSuite(t *testing.T) {
	suite.Run(t, new(BreakerSuite))
}

func (s *BreakerSuite) SetupTest() {
	s.now = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.b = New("anchor",
		WithFailureThreshold(2),
		WithCooldown(time.Second),
		WithClock(func() time.Time { return s.now }),
	)
}

func (s *BreakerSuite) TestOpensAfterThreshold() {
	fallback, change := s.b.RecordFailure()
	s.False(fallback)
	s.False(change.Opened)

	fallback, change = s.b.RecordFailure()
	s.True(fallback)
	s.True(change.Opened)
	s.True(s.b.IsOpen())
	s.Equal("open", s.b.State().String())
}

func (s *BreakerSuite) TestAllowsTrialAfterCooldown() {
	s.b.RecordFailure()
	s.b.RecordFailure()

	s.False(s.b.Allow(), "open breaker short-circuits")

	s.now = s.now.Add(time.Second)
	s.True(s.b.Allow(), "one trial after cooldown")
	s.False(s.b.Allow(), "second trial waits for the next window")

	s.Run("successful trial closes", func() {
		primary, change := s.b.RecordSuccess()
		s.True(primary)
		s.True(change.Closed)
		s.True(s.b.Allow())
	})
}

func (s *BreakerSuite) TestSuccessResetsFailureCount() {
	s.b.RecordFailure()
	s.b.RecordSuccess()
	fallback, _ := s.b.RecordFailure()
	s.False(fallback)
	s.False(s.b.IsOpen())
}

func (s *BreakerSuite) TestReset() {
	s.b.RecordFailure()
	s.b.RecordFailure()
	s.b.Reset()
	s.Equal(StateClosed, s.b.State())
}
