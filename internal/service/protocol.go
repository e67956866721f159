package service

import (
	"context"
	"time"

	"mediahub/internal/metrics"

	"github.com/rs/zerolog"
)

const (
	DivergenceOrphanedBlob   = "orphaned_blob"
	DivergenceDanglingRecord = "dangling_record"
)

// step is one backend call in a protocol.
type step struct {
	name string
	run  func(ctx context.Context) error
	// commits marks a step whose side effect persists if a later step fails.
	commits bool
	// tolerate, when set, lets the protocol continue past matching errors.
	tolerate func(error) bool
}

// protocol runs its steps strictly in order and stops at the first failure.
// A failure after a committed step is reported as divergence of the given
// kind. Nothing is rolled back.
type protocol struct {
	op         string
	divergence string
	steps      []step
}

// trace records which steps ran; tests use it to assert ordering.
type trace func(op, step string)

func (s *Service) run(ctx context.Context, p protocol, log zerolog.Logger) error {
	committed := ""
	for _, st := range p.steps {
		if s.trace != nil {
			s.trace(p.op, st.name)
		}
		start := time.Now()
		err := st.run(ctx)
		metrics.StepDuration.WithLabelValues(p.op, st.name).Observe(time.Since(start).Seconds())

		if err != nil && st.tolerate != nil && st.tolerate(err) {
			log.Debug().Str("step", st.name).Err(err).Msg("tolerated step error")
			err = nil
		}
		if err != nil {
			if committed != "" && p.divergence != "" {
				metrics.DivergenceTotal.WithLabelValues(p.divergence).Inc()
				log.Error().
					Err(err).
					Str("step", st.name).
					Str("after", committed).
					Str("divergence", p.divergence).
					Msg("partial failure left backends out of sync")
			}
			return err
		}
		if st.commits {
			committed = st.name
		}
	}
	return nil
}
