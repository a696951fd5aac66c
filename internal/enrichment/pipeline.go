package enrichment

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/code-100-precent/LingDial/internal/models"
	"github.com/code-100-precent/LingDial/pkg/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	// SentimentInputLimit caps the text sent to sentiment classification
	SentimentInputLimit = 512
	// SummaryInputLimit caps the text sent to summarization
	SummaryInputLimit = 1024
	// ShortCallWordThreshold is the minimum transcript length that gets a
	// real summary
	ShortCallWordThreshold = 50
	// ShortCallSummary is stored verbatim for transcripts below the threshold
	ShortCallSummary = "Call too short for summary"

	summaryMinWords = 30
	summaryMaxWords = 130
)

// Analyzer produces the three enrichment artifacts. Implementations may
// fail per stage; the pipeline treats each stage independently.
type Analyzer interface {
	Transcribe(ctx context.Context, recordingPath string) (string, error)
	Sentiment(ctx context.Context, text string) (label string, confidence float64, err error)
	Summarize(ctx context.Context, text string, minWords, maxWords int) (string, error)
}

type job struct {
	historyID     uint
	recordingPath string
}

// Options for pipeline construction
type Options struct {
	Workers      int
	StageTimeout time.Duration
}

// Pipeline runs transcription, sentiment, and summarization for completed
// calls on a bounded worker pool. Results of each stage are persisted as
// soon as they exist, so a later failure never loses an earlier result.
type Pipeline struct {
	db       *gorm.DB
	analyzer Analyzer
	opts     Options

	jobs     chan job
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func NewPipeline(db *gorm.DB, analyzer Analyzer, opts Options) *Pipeline {
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.StageTimeout <= 0 {
		opts.StageTimeout = 60 * time.Second
	}
	return &Pipeline{
		db:       db,
		analyzer: analyzer,
		opts:     opts,
		jobs:     make(chan job, 64),
	}
}

// Start launches the worker pool
func (p *Pipeline) Start() {
	for i := 0; i < p.opts.Workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Stop closes intake and waits for in-flight jobs to finish
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() { close(p.jobs) })
	p.wg.Wait()
}

// Enqueue hands a completed call to the pool without blocking the caller.
// A full queue drops the job; enrichment is best effort and never retried.
func (p *Pipeline) Enqueue(historyID uint, recordingPath string) {
	defer func() {
		// Enqueue after Stop must not panic the registry
		if recover() != nil {
			logger.Warn("enrichment pipeline stopped, job dropped", zap.Uint("historyId", historyID))
		}
	}()
	select {
	case p.jobs <- job{historyID: historyID, recordingPath: recordingPath}:
	default:
		logger.Warn("enrichment queue full, job dropped", zap.Uint("historyId", historyID))
	}
}

func (p *Pipeline) worker() {
	defer p.wg.Done()
	for j := range p.jobs {
		p.process(j)
	}
}

// process runs the three stages in order. Sentiment and summary both gate
// on a non-empty transcript, but not on each other.
func (p *Pipeline) process(j job) {
	transcript, ok := p.transcribe(j)
	if !ok || strings.TrimSpace(transcript) == "" {
		return
	}

	p.classifySentiment(j, transcript)
	p.summarize(j, transcript)
}

func (p *Pipeline) transcribe(j job) (string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), p.opts.StageTimeout)
	defer cancel()

	transcript, err := p.analyzer.Transcribe(ctx, j.recordingPath)
	if err != nil {
		logger.Warn("transcription failed",
			zap.Uint("historyId", j.historyID),
			zap.String("recording", j.recordingPath),
			zap.Error(err),
		)
		return "", false
	}
	if strings.TrimSpace(transcript) == "" {
		logger.Info("empty transcript, skipping analysis", zap.Uint("historyId", j.historyID))
		return "", false
	}

	if err := models.UpdateCallHistoryFields(p.db, j.historyID, map[string]any{
		"transcript": transcript,
	}); err != nil {
		logger.Error("persist transcript", zap.Uint("historyId", j.historyID), zap.Error(err))
		return "", false
	}
	return transcript, true
}

func (p *Pipeline) classifySentiment(j job, transcript string) {
	ctx, cancel := context.WithTimeout(context.Background(), p.opts.StageTimeout)
	defer cancel()

	label, confidence, err := p.analyzer.Sentiment(ctx, truncate(transcript, SentimentInputLimit))
	if err != nil {
		logger.Warn("sentiment analysis failed", zap.Uint("historyId", j.historyID), zap.Error(err))
		return
	}
	if err := models.UpdateCallHistoryFields(p.db, j.historyID, map[string]any{
		"sentiment":       label,
		"sentiment_score": confidence,
	}); err != nil {
		logger.Error("persist sentiment", zap.Uint("historyId", j.historyID), zap.Error(err))
	}
}

func (p *Pipeline) summarize(j job, transcript string) {
	summary := ShortCallSummary
	if len(strings.Fields(transcript)) >= ShortCallWordThreshold {
		ctx, cancel := context.WithTimeout(context.Background(), p.opts.StageTimeout)
		defer cancel()

		var err error
		summary, err = p.analyzer.Summarize(ctx, truncate(transcript, SummaryInputLimit), summaryMinWords, summaryMaxWords)
		if err != nil {
			logger.Warn("summarization failed", zap.Uint("historyId", j.historyID), zap.Error(err))
			return
		}
	}
	if err := models.UpdateCallHistoryFields(p.db, j.historyID, map[string]any{
		"summary": summary,
	}); err != nil {
		logger.Error("persist summary", zap.Uint("historyId", j.historyID), zap.Error(err))
	}
}

// truncate caps s at limit code points, never splitting a rune
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
