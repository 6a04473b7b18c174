package mac

import (
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

// scripted returns the queued results in order and counts calls.
type scripted struct {
	results [][Size]byte
	errs    []error
	calls   int
}

func (s *scripted) Compute(hash [32]byte) ([Size]byte, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return [Size]byte{}, s.errs[i]
	}
	if i >= len(s.results) {
		return s.results[len(s.results)-1], nil
	}
	return s.results[i], nil
}

func tag(b byte) [Size]byte {
	var t [Size]byte
	for i := range t {
		t[i] = b
	}
	return t
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestStabilizerConvergesOnSecondCall(t *testing.T) {
	o := &scripted{results: [][Size]byte{tag(1), tag(1)}}
	got, err := Stabilize(o).Compute([32]byte{})
	assert.NilError(t, err)
	assert.Check(t, is.Equal(got, tag(1)))
	assert.Check(t, is.Equal(o.calls, 2))
}

func TestStabilizerSkipsTransientResults(t *testing.T) {
	o := &scripted{results: [][Size]byte{tag(0), tag(7), tag(3), tag(3)}}
	got, err := Stabilize(o).Compute([32]byte{})
	assert.NilError(t, err)
	assert.Check(t, is.Equal(got, tag(3)))
	assert.Check(t, is.Equal(o.calls, 4))
}

func TestStabilizerExhaustsBudget(t *testing.T) {
	var results [][Size]byte
	for i := 0; i < 20; i++ {
		results = append(results, tag(byte(i)))
	}
	o := &scripted{results: results}
	s := &Stabilizer{Oracle: o, Attempts: 10, Log: quietLogger()}

	got, err := s.Compute([32]byte{})
	assert.NilError(t, err)
	assert.Check(t, is.Equal(o.calls, 10))
	assert.Check(t, is.Equal(got, tag(9)))
}

func TestStabilizerPropagatesHardError(t *testing.T) {
	boom := errors.New("pxi call failed")
	o := &scripted{results: [][Size]byte{tag(1)}, errs: []error{nil, boom}}

	_, err := Stabilize(o).Compute([32]byte{})
	assert.Check(t, errors.Is(err, ErrOracle))
	assert.Check(t, errors.Is(err, boom))
	assert.Check(t, is.Equal(o.calls, 2))
}

func TestOracleFunc(t *testing.T) {
	f := OracleFunc(func(hash [32]byte) ([Size]byte, error) {
		var out [Size]byte
		copy(out[:], hash[:])
		return out, nil
	})
	got, err := Stabilize(f).Compute([32]byte{9, 8, 7})
	assert.NilError(t, err)
	assert.Check(t, is.Equal(got[0], byte(9)))
}
