// Package lookup runs a free-text psalm reference through the whole engine:
// parse, resolve the verse count, range check, resolve each verse, build the
// envelope and validate it.
package lookup

import (
	"context"
	"fmt"
	"time"

	"github.com/FocuswithJustin/psalter/core/envelope"
	"github.com/FocuswithJustin/psalter/core/errors"
	"github.com/FocuswithJustin/psalter/core/reference"
	"github.com/FocuswithJustin/psalter/internal/logging"
)

// DefaultTimeout bounds one lookup, fetch and extraction included.
const DefaultTimeout = 20 * time.Second

// Resolver answers verse questions for a psalm. *psalter.Client implements it.
type Resolver interface {
	MaxVerse(ctx context.Context, psalm int) (int, error)
	Verse(ctx context.Context, psalm, verse int) (string, error)
	// Verses range checks and resolves several verses against a single
	// fetch of the psalm.
	Verses(ctx context.Context, psalm int, numbers []int) ([]string, error)
	SourceURL(psalm int) string
}

// Recorder is told the status of every finished lookup.
type Recorder interface {
	RecordLookup(status envelope.Status)
}

// Service is the lookup entry point used by the CLI and the REST API.
type Service struct {
	resolver Resolver
	timeout  time.Duration
	recorder Recorder
}

// Option configures a Service.
type Option func(*Service)

// WithTimeout bounds each call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// WithRecorder registers a status recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// New creates a Service on top of resolver.
func New(resolver Resolver, opts ...Option) *Service {
	s := &Service{resolver: resolver, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Lookup resolves text into a validated envelope. Every user-facing failure
// is reported inside the envelope; the error is non-nil only when the
// envelope breaks its own contract.
func (s *Service) Lookup(ctx context.Context, text string) (*envelope.Envelope, error) {
	parsed := reference.Parse(text)

	var env *envelope.Envelope
	if parsed.OK() {
		env = s.resolve(ctx, parsed.Request)
	} else {
		env = parsed.Envelope()
	}

	if err := envelope.Validate(env); err != nil {
		logging.ErrorContext(ctx, "envelope rejected", "status", env.Status, "error", err.Error())
		return nil, err
	}
	if s.recorder != nil {
		s.recorder.RecordLookup(env.Status)
	}
	logging.DebugContext(ctx, "lookup finished",
		"psalm", env.Request.PsalmNumber,
		"verses", len(env.Request.Verses),
		"status", env.Status,
	)
	return env, nil
}

// MaxVerse returns the verse count of psalm within the service timeout.
func (s *Service) MaxVerse(ctx context.Context, psalm int) (int, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.resolver.MaxVerse(ctx, psalm)
}

// Verse returns one verse within the service timeout.
func (s *Service) Verse(ctx context.Context, psalm, verse int) (string, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.resolver.Verse(ctx, psalm, verse)
}

// SourceURL names the document psalm is resolved from.
func (s *Service) SourceURL(psalm int) string {
	return s.resolver.SourceURL(psalm)
}

func (s *Service) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// resolve fetches every requested verse or none.
func (s *Service) resolve(ctx context.Context, req envelope.Request) *envelope.Envelope {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	found, err := s.resolver.Verses(ctx, req.PsalmNumber, req.Verses)
	if err != nil {
		return failure(ctx, req, err)
	}
	if len(found) != len(req.Verses) {
		return failure(ctx, req, fmt.Errorf("resolver returned %d texts for %d verses", len(found), len(req.Verses)))
	}

	texts := make([]envelope.VerseText, len(req.Verses))
	for i, v := range req.Verses {
		texts[i] = envelope.VerseText{Verse: v, Text: found[i]}
	}
	return envelope.Success(req, texts)
}

// failure maps an engine error onto its envelope status.
func failure(ctx context.Context, req envelope.Request, err error) *envelope.Envelope {
	switch {
	case errors.Is(err, errors.ErrInvalidRequest):
		return envelope.Failure(envelope.StatusInvalidRequest, req, err.Error())
	case errors.Is(err, errors.ErrVerseNotFound):
		return envelope.Failure(envelope.StatusNotFound, req, err.Error())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		logging.WarnContext(ctx, "lookup timed out", "psalm", req.PsalmNumber, "error", err.Error())
		return envelope.Failure(envelope.StatusVerificationFailed, req, "timed out verifying psalm against the source")
	default:
		logging.WarnContext(ctx, "lookup could not be verified", "psalm", req.PsalmNumber, "error", err.Error())
		return envelope.Failure(envelope.StatusVerificationFailed, req, err.Error())
	}
}
