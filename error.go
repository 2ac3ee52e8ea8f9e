package ldfmock

import "github.com/cockroachdb/errors"

// error domains let callers classify a failure without comparing against
// every sentinel.
type (
	portError       struct{}
	fixtureError    struct{}
	sourceError     struct{}
	evaluationError struct{}
	mockerError     struct{}
)

func (portError) Error() string       { return "port error" }
func (fixtureError) Error() string    { return "fixture error" }
func (sourceError) Error() string     { return "source error" }
func (evaluationError) Error() string { return "evaluation error" }
func (mockerError) Error() string     { return "mocker error" }

var (
	PortError       = portError{}
	FixtureError    = fixtureError{}
	SourceError     = sourceError{}
	EvaluationError = evaluationError{}
	MockerError     = mockerError{}
)

// domainError is a sentinel that also matches the domain it belongs to.
// Each sentinel keeps its own identity, so two sentinels of one domain never
// match each other.
type domainError struct {
	msg    string
	domain error
}

func newDomainError(domain error, msg string) error {
	return &domainError{msg: msg, domain: domain}
}

func (e *domainError) Error() string { return e.msg }

func (e *domainError) Is(target error) bool { return target == e.domain }

// markAs tags err so that it matches sentinel and the domain of sentinel,
// while its own chain stays reachable for errors.Is.
func markAs(err, sentinel error) error {
	err = errors.Mark(err, sentinel)
	var d *domainError
	if errors.As(sentinel, &d) {
		err = errors.Mark(err, d.domain)
	}
	return err
}

var (
	ErrInvalidPort            = newDomainError(PortError, "port must lie in [1024, 49151]")
	ErrPortUnavailable        = newDomainError(PortError, "no free port available")
	ErrFixtureNotFound        = newDomainError(FixtureError, "mock fixture not found")
	ErrMalformedFixtureHeader = newDomainError(FixtureError, "malformed fixture header")
	ErrUnknownSourceType      = newDomainError(SourceError, "unknown source type")
	ErrInvalidQueryEvaluation = newDomainError(EvaluationError, "invalid query evaluation")
	ErrUnsupportedContentType = newDomainError(EvaluationError, "unsupported content type")
	ErrMockerClosed           = newDomainError(MockerError, "mocker already closed")
	ErrMockerListening        = newDomainError(MockerError, "mocker already listening")
	ErrInvalidConfig          = errors.New("invalid config")
)
