package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ankigen/internal/config"
	"ankigen/internal/models"
)

// ProgressCallback is called during a run to report progress.
type ProgressCallback func(step, message string, current, total int)

// ExtractRequest describes one generation run.
type ExtractRequest struct {
	Text     string
	Format   models.CardType
	Language string // optional hint; detection wins when unambiguous
}

// ExtractorService runs the full text-to-flashcards pipeline (chunk, prompt,
// call, extract, validate, combine) with the rule-based fallback as the
// universal safety net.
type ExtractorService struct {
	upstream *UpstreamCaller
	logger   *slog.Logger

	chunkBudget     int
	chunkDelay      time.Duration
	fallbackCardCap int
	defaultLanguage string

	sleep func(ctx context.Context, d time.Duration) error
}

func NewExtractorService(upstream *UpstreamCaller, cfg config.Config, logger *slog.Logger) *ExtractorService {
	return &ExtractorService{
		upstream:        upstream,
		logger:          logger,
		chunkBudget:     cfg.ChunkBudget,
		chunkDelay:      cfg.ChunkDelay,
		fallbackCardCap: cfg.FallbackCardCap,
		defaultLanguage: cfg.DefaultLanguage,
		sleep:           sleepCtx,
	}
}

// ExtractFlashcards converts study text into a validated flashcard batch.
//
// Chunks are processed strictly sequentially with a short delay between
// upstream requests to avoid burst rate limiting. The only errors ever
// returned are ErrNoText and ErrUnauthorized; every other failure is
// absorbed by the fallback extractor. Cancelling the context mid-run
// returns the partial result combined from the chunks finished so far.
func (s *ExtractorService) ExtractFlashcards(ctx context.Context, req ExtractRequest) (models.ExtractionResult, error) {
	return s.ExtractFlashcardsWithProgress(ctx, req, nil)
}

func (s *ExtractorService) ExtractFlashcardsWithProgress(
	ctx context.Context,
	req ExtractRequest,
	progress ProgressCallback,
) (result models.ExtractionResult, err error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return models.ExtractionResult{}, ErrNoText
	}

	format := req.Format
	if _, ok := models.ParseCardType(string(format)); !ok {
		format = models.CardTypeBasic
	}

	// Whatever goes wrong below Unauthorized level must still yield cards.
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "pipeline panicked, using fallback extractor", "panic", r)
			result = FallbackExtract(text, format, s.fallbackCardCap)
			err = nil
		}
	}()

	if !s.upstream.Configured() {
		s.logger.InfoContext(ctx, "no upstream credential configured, using fallback extractor")
		return FallbackExtract(text, format, s.fallbackCardCap), nil
	}

	language := DetectLanguage(text, req.Language, s.defaultLanguage)
	chunks := SplitChunks(text, s.chunkBudget)
	s.logger.InfoContext(ctx, "starting extraction run",
		"chunks", len(chunks), "format", format, "language", language)

	results := make([]models.ExtractionResult, 0, len(chunks))
	for i, chunk := range chunks {
		if progress != nil {
			progress("generate", fmt.Sprintf("Processing chunk %d of %d", i+1, len(chunks)), i, len(chunks))
		}
		if i > 0 {
			// Smooths out burst rate-limit triggers between requests.
			if sleepErr := s.sleep(ctx, s.chunkDelay); sleepErr != nil {
				s.logger.WarnContext(ctx, "run abandoned between chunks, returning partial result",
					"completed_chunks", i)
				return CombineResults(results), nil
			}
		}

		res, chunkErr := s.processChunk(ctx, chunk, format, language, i, len(chunks))
		if chunkErr != nil {
			if errors.Is(chunkErr, ErrUnauthorized) {
				return models.ExtractionResult{}, chunkErr
			}
			if ctx.Err() != nil {
				s.logger.WarnContext(ctx, "run abandoned mid-chunk, returning partial result",
					"completed_chunks", i)
				return CombineResults(results), nil
			}
			// Hard upstream failure after retries: whole-pipeline safety
			// net over the entire original text.
			s.logger.WarnContext(ctx, "upstream path failed, using fallback extractor over full text",
				"chunk", i+1, "error", chunkErr)
			return FallbackExtract(text, format, s.fallbackCardCap), nil
		}
		results = append(results, res)
	}

	if progress != nil {
		progress("combine", "Combining results", len(chunks), len(chunks))
	}
	return CombineResults(results), nil
}

// processChunk runs prompt → call → extract → validate for one segment.
// Soft failures (no batch found, or a batch whose candidates were all
// discarded) degrade to the fallback extractor over this chunk's text and
// do not fail the run; hard upstream errors propagate.
func (s *ExtractorService) processChunk(
	ctx context.Context,
	chunk string,
	format models.CardType,
	language string,
	index, total int,
) (models.ExtractionResult, error) {
	instruction := BuildPrompt(chunk, format, language, index, total)

	reply, err := s.upstream.Complete(ctx, instruction)
	if err != nil {
		return models.ExtractionResult{}, err
	}

	batch, err := extractCardBatch(reply)
	if err != nil {
		s.logger.WarnContext(ctx, "no card batch found in reply, using fallback for chunk",
			"chunk", index+1)
		return FallbackExtract(chunk, format, s.fallbackCardCap), nil
	}

	res, err := batchToResult(batch, format)
	if err != nil {
		s.logger.WarnContext(ctx, "card batch parsed but no candidate survived validation, using fallback for chunk",
			"chunk", index+1)
		return FallbackExtract(chunk, format, s.fallbackCardCap), nil
	}
	return res, nil
}
