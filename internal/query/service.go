// Package query answers a single question end to end: retrieval followed by synthesis.
package query

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/tutor/internal/apperr"
	"github.com/hyperjump/tutor/internal/models"
)

// DefaultTopK is the number of chunks retrieved per question.
const DefaultTopK = 6

// Retriever finds the chunks relevant to a question.
type Retriever interface {
	Retrieve(ctx context.Context, question string, image *models.Image, k int) (*models.RetrievedContext, error)
}

// Synthesizer answers a question from retrieved chunks.
type Synthesizer interface {
	Synthesize(ctx context.Context, question string, image *models.Image, rc *models.RetrievedContext) (*models.AnswerResult, error)
}

// Service is the entry point used by the HTTP server and the ask command.
type Service struct {
	retriever     Retriever
	synthesizer   Synthesizer
	topK          int
	maxImageBytes int
	logger        *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTopK sets how many chunks are retrieved per question.
func WithTopK(k int) Option {
	return func(s *Service) {
		if k > 0 {
			s.topK = k
		}
	}
}

// WithMaxImageBytes caps decoded inline images.
func WithMaxImageBytes(n int) Option {
	return func(s *Service) { s.maxImageBytes = n }
}

// NewService creates a query service.
func NewService(retriever Retriever, synthesizer Synthesizer, opts ...Option) *Service {
	s := &Service{
		retriever:     retriever,
		synthesizer:   synthesizer,
		topK:          DefaultTopK,
		maxImageBytes: models.DefaultMaxImageBytes,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AnswerQuestion answers question. image is the external representation: base64,
// a data: URL, an http(s) reference, or empty.
func (s *Service) AnswerQuestion(ctx context.Context, question, image string) (*models.AnswerResult, error) {
	img, err := models.ParseImage(image, s.maxImageBytes)
	if err != nil {
		return nil, err
	}
	return s.Answer(ctx, &models.Query{Question: question, Image: img})
}

// Answer validates q, retrieves context and synthesizes the answer. Every error is an
// *apperr.Error.
func (s *Service) Answer(ctx context.Context, q *models.Query) (*models.AnswerResult, error) {
	const op = "answer question"
	if q == nil {
		return nil, apperr.New(apperr.InvalidInput, op, "query is required")
	}
	if err := q.Validate(); err != nil {
		return nil, apperr.Wrap(apperr.InvalidInput, op, err)
	}

	requestID := uuid.New().String()
	logger := s.logger.With(zap.String("request_id", requestID))
	start := time.Now()

	rc, err := s.retriever.Retrieve(ctx, q.Question, q.Image, s.topK)
	if err != nil {
		return nil, s.fail(ctx, logger, "retrieve", err)
	}
	logger.Debug("Retrieved context", zap.Int("chunks", rc.Len()), zap.Duration("elapsed", time.Since(start)))

	result, err := s.synthesizer.Synthesize(ctx, q.Question, q.Image, rc)
	if err != nil {
		return nil, s.fail(ctx, logger, "synthesize", err)
	}
	result.Normalize()
	if err := result.Validate(); err != nil {
		return nil, s.fail(ctx, logger, "validate answer", err)
	}

	logger.Info("Answered question",
		zap.Int("chunks", rc.Len()),
		zap.Int("links", len(result.Links)),
		zap.Bool("image", q.Image != nil),
		zap.Duration("elapsed", time.Since(start)))
	return result, nil
}

// fail classifies err and logs it. Unclassified errors become Internal, or Canceled
// when the caller went away.
func (s *Service) fail(ctx context.Context, logger *zap.Logger, op string, err error) error {
	kind := apperr.Internal
	if ctx.Err() != nil {
		kind = apperr.Canceled
	}
	err = apperr.Wrap(kind, op, err)
	logger.Warn("Question failed", zap.String("category", apperr.KindOf(err).Category()), zap.Error(err))
	return err
}
