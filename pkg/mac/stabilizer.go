package mac

import (
	"errors"

	"github.com/sirupsen/logrus"
)

// DefaultAttempts bounds the number of oracle calls made by a Stabilizer.
const DefaultAttempts = 10

// Stabilizer repeats oracle calls until two consecutive results agree.
//
// This does not make a misbehaving oracle correct. If the attempt budget
// runs out the last result is returned as is.
type Stabilizer struct {
	Oracle   Oracle
	Attempts int
	Log      logrus.FieldLogger
}

// Stabilize wraps o with the default attempt budget.
func Stabilize(o Oracle) *Stabilizer {
	return &Stabilizer{Oracle: o, Attempts: DefaultAttempts}
}

// Compute implements Oracle. A hard error from the wrapped oracle is
// returned immediately as an *OracleError.
func (s *Stabilizer) Compute(hash [32]byte) ([Size]byte, error) {
	attempts := s.Attempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}

	var prev, cur [Size]byte
	for i := 0; i < attempts; i++ {
		var err error
		cur, err = s.Oracle.Compute(hash)
		if err != nil {
			var oe *OracleError
			if errors.As(err, &oe) {
				return [Size]byte{}, err
			}
			return [Size]byte{}, &OracleError{Err: err}
		}
		if i > 0 && cur == prev {
			return cur, nil
		}
		prev = cur
	}

	if attempts > 1 {
		s.logger().WithField("attempts", attempts).Warn("mac oracle did not converge, using last result")
	}
	return cur, nil
}

func (s *Stabilizer) logger() logrus.FieldLogger {
	if s.Log != nil {
		return s.Log
	}
	return logrus.StandardLogger()
}
