package enrichment

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/code-100-precent/LingDial/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	glog "gorm.io/gorm/logger"
)

func setupPipelineTestDB(t *testing.T) (*gorm.DB, uint) {
	silentLogger := glog.New(
		log.New(io.Discard, "", log.LstdFlags),
		glog.Config{LogLevel: glog.Silent, IgnoreRecordNotFoundError: true},
	)
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: silentLogger})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.CallHistory{}))

	record := &models.CallHistory{
		CallID:    "call-001",
		RemoteURI: "sip:1001@pbx.local",
		Direction: models.CallDirectionOutbound,
		Status:    models.CallStatusEnded,
		StartTime: time.Now(),
	}
	require.NoError(t, models.CreateCallHistory(db, record))
	return db, record.ID
}

type fakeAnalyzer struct {
	mu sync.Mutex

	transcript    string
	transcribeErr error
	sentimentErr  error
	summarizeErr  error

	sentimentInput string
	summaryInput   string
	summaryCalls   int
}

func (f *fakeAnalyzer) Transcribe(_ context.Context, _ string) (string, error) {
	return f.transcript, f.transcribeErr
}

func (f *fakeAnalyzer) Sentiment(_ context.Context, text string) (string, float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sentimentInput = text
	if f.sentimentErr != nil {
		return "", 0, f.sentimentErr
	}
	return "POSITIVE", 0.93, nil
}

func (f *fakeAnalyzer) Summarize(_ context.Context, text string, minWords, maxWords int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summaryCalls++
	f.summaryInput = text
	if f.summarizeErr != nil {
		return "", f.summarizeErr
	}
	return "The caller and agent discussed the order status.", nil
}

func runPipeline(t *testing.T, db *gorm.DB, analyzer Analyzer, historyID uint) {
	t.Helper()
	p := NewPipeline(db, analyzer, Options{Workers: 1, StageTimeout: time.Second})
	p.Start()
	p.Enqueue(historyID, "/tmp/call_1001_20260314_150926.wav")
	p.Stop()
}

func longTranscript(words int) string {
	return strings.TrimSpace(strings.Repeat("hello agent thanks for calling today ", (words/6)+1))
}

func TestPipeline_AllStagesPersisted(t *testing.T) {
	db, id := setupPipelineTestDB(t)
	analyzer := &fakeAnalyzer{transcript: longTranscript(80)}

	runPipeline(t, db, analyzer, id)

	record, err := models.GetCallHistoryByID(db, id)
	require.NoError(t, err)
	assert.Equal(t, analyzer.transcript, record.Transcript)
	assert.Equal(t, "POSITIVE", record.Sentiment)
	assert.InDelta(t, 0.93, record.SentimentScore, 1e-9)
	assert.Equal(t, "The caller and agent discussed the order status.", record.Summary)
}

func TestPipeline_ShortTranscriptGetsSentinelSummary(t *testing.T) {
	db, id := setupPipelineTestDB(t)
	// 13 words, well below the 50-word threshold
	analyzer := &fakeAnalyzer{
		transcript: "yes hello I just wanted to check on my order thanks bye now",
	}

	runPipeline(t, db, analyzer, id)

	record, err := models.GetCallHistoryByID(db, id)
	require.NoError(t, err)
	assert.Equal(t, ShortCallSummary, record.Summary)
	assert.Equal(t, 0, analyzer.summaryCalls)
	// Sentiment still runs on short transcripts
	assert.Equal(t, "POSITIVE", record.Sentiment)
}

func TestPipeline_TranscriptionFailureLeavesAllFieldsUnset(t *testing.T) {
	db, id := setupPipelineTestDB(t)
	analyzer := &fakeAnalyzer{transcribeErr: errors.New("backend down")}

	runPipeline(t, db, analyzer, id)

	record, err := models.GetCallHistoryByID(db, id)
	require.NoError(t, err)
	assert.Empty(t, record.Transcript)
	assert.Empty(t, record.Sentiment)
	assert.Empty(t, record.Summary)
}

func TestPipeline_EmptyTranscriptSkipsAnalysis(t *testing.T) {
	db, id := setupPipelineTestDB(t)
	analyzer := &fakeAnalyzer{transcript: "   "}

	runPipeline(t, db, analyzer, id)

	record, err := models.GetCallHistoryByID(db, id)
	require.NoError(t, err)
	assert.Empty(t, record.Transcript)
	assert.Empty(t, record.Sentiment)
	assert.Empty(t, record.Summary)
	assert.Equal(t, 0, analyzer.summaryCalls)
}

func TestPipeline_SentimentFailureDoesNotBlockSummary(t *testing.T) {
	db, id := setupPipelineTestDB(t)
	analyzer := &fakeAnalyzer{
		transcript:   longTranscript(80),
		sentimentErr: errors.New("classifier unavailable"),
	}

	runPipeline(t, db, analyzer, id)

	record, err := models.GetCallHistoryByID(db, id)
	require.NoError(t, err)
	assert.Equal(t, analyzer.transcript, record.Transcript)
	assert.Empty(t, record.Sentiment)
	assert.Equal(t, "The caller and agent discussed the order status.", record.Summary)
}

func TestPipeline_StageInputCaps(t *testing.T) {
	db, id := setupPipelineTestDB(t)
	analyzer := &fakeAnalyzer{transcript: longTranscript(600)}
	require.Greater(t, len(analyzer.transcript), SummaryInputLimit)

	runPipeline(t, db, analyzer, id)

	assert.LessOrEqual(t, len(analyzer.sentimentInput), SentimentInputLimit)
	assert.LessOrEqual(t, len(analyzer.summaryInput), SummaryInputLimit)

	// Full transcript is stored even though stage inputs are capped
	record, err := models.GetCallHistoryByID(db, id)
	require.NoError(t, err)
	assert.Equal(t, analyzer.transcript, record.Transcript)
}

func TestTruncate_CountsRunesNotBytes(t *testing.T) {
	// 3 bytes per rune, 720 runes total
	text := strings.Repeat("呼叫中心的通話記錄", 80)

	capped := truncate(text, SentimentInputLimit)
	assert.Equal(t, SentimentInputLimit, utf8.RuneCountInString(capped))
	assert.True(t, utf8.ValidString(capped))

	short := "short transcript"
	assert.Equal(t, short, truncate(short, SentimentInputLimit))
}

func TestPipeline_EnqueueAfterStopIsSafe(t *testing.T) {
	db, id := setupPipelineTestDB(t)
	p := NewPipeline(db, &fakeAnalyzer{}, Options{Workers: 1})
	p.Start()
	p.Stop()

	assert.NotPanics(t, func() { p.Enqueue(id, "/tmp/x.wav") })
}
