package synthesis

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/tutor/internal/apperr"
	"github.com/hyperjump/tutor/internal/config"
	"github.com/hyperjump/tutor/internal/models"
)

// Synthesizer builds the generation request from retrieved chunks and turns the model
// response into an AnswerResult.
type Synthesizer struct {
	generator       Generator
	system          string
	budget          int
	policy          CitationPolicy
	maxLinks        int
	jsonMode        bool
	timeout         time.Duration
	fallbackOnError bool
	logger          *zap.Logger
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Synthesizer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithConfig applies the generation settings from cfg.
func WithConfig(cfg *config.GenerationConfig) Option {
	return func(s *Synthesizer) {
		if cfg.SystemPrompt != "" {
			s.system = cfg.SystemPrompt
		} else if cfg.CourseName != "" {
			s.system = defaultSystemPrompt(cfg.CourseName)
		}
		s.budget = cfg.ContextBudget
		s.policy = CitationPolicy(cfg.CitationPolicy)
		s.maxLinks = cfg.MaxLinks
		s.jsonMode = cfg.JSONModeOrDefault()
		s.timeout = cfg.Timeout
		s.fallbackOnError = cfg.FallbackOnError
	}
}

// WithContextBudget sets the maximum assembled context size in characters.
func WithContextBudget(runes int) Option {
	return func(s *Synthesizer) { s.budget = runes }
}

// WithCitationPolicy sets how model links are filtered.
func WithCitationPolicy(p CitationPolicy) Option {
	return func(s *Synthesizer) { s.policy = p }
}

// WithFallbackOnError answers with the retrieved passages instead of failing when the
// model cannot be reached.
func WithFallbackOnError(enabled bool) Option {
	return func(s *Synthesizer) { s.fallbackOnError = enabled }
}

// NewSynthesizer creates a synthesizer that calls gen.
func NewSynthesizer(gen Generator, opts ...Option) *Synthesizer {
	s := &Synthesizer{
		generator: gen,
		system:    defaultSystemPrompt("Tools in Data Science"),
		budget:    8000,
		policy:    CitationGrounded,
		maxLinks:  6,
		jsonMode:  true,
		timeout:   25 * time.Second,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Synthesize answers question from rc. An empty context is answered without calling the
// model. Model failures are GenerationUnavailable unless fallback on error is enabled.
func (s *Synthesizer) Synthesize(ctx context.Context, question string, image *models.Image, rc *models.RetrievedContext) (*models.AnswerResult, error) {
	if rc.Len() == 0 {
		return &models.AnswerResult{Answer: noDocumentsAnswer, Links: []models.Link{}}, nil
	}

	assembled := assembleContext(rc, s.budget)
	req := &Request{
		System: s.system,
		Prompt: buildPrompt(assembled.Text, question, image != nil),
		Image:  image,
		JSON:   s.jsonMode,
	}

	raw, err := s.generate(ctx, req)
	if err != nil {
		// Only the caller's own context counts; the generation timeout is applied below it.
		if ctx.Err() != nil {
			return nil, apperr.Wrap(apperr.Canceled, "generate answer", ctx.Err())
		}
		if !s.fallbackOnError {
			return nil, apperr.Wrap(apperr.GenerationUnavailable, "generate answer", err)
		}
		s.logger.Warn("Generation failed, answering with passages",
			zap.String("generator", s.generator.Name()), zap.Error(err))
		raw = ""
	}

	result := &models.AnswerResult{}
	switch out := ParseOutput(raw).(type) {
	case StructuredOutput:
		result.Answer = out.Answer
		result.Links = resolveLinks(s.policy, out.Links, assembled.Chunks, s.maxLinks)
	case FallbackOutput:
		if out.Raw == "" {
			result.Answer = apologyAnswer(assembled.Text)
		} else {
			s.logger.Debug("Model response was not structured", zap.Int("raw_len", len(out.Raw)))
			result.Answer = out.Raw
		}
		result.Links = contextLinks(assembled.Chunks, s.maxLinks)
	}
	result.Normalize()
	return result, nil
}

func (s *Synthesizer) generate(ctx context.Context, req *Request) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return s.generator.Generate(ctx, req)
}
