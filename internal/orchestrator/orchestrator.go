// Package orchestrator routes classified user requests through the
// assistant pipelines and persists the resulting conversation block.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/querypilot/querypilot/internal/classifier"
	"github.com/querypilot/querypilot/internal/conversation"
	"github.com/querypilot/querypilot/internal/metasync"
	"github.com/querypilot/querypilot/internal/observability"
	"github.com/querypilot/querypilot/internal/query"
	"github.com/querypilot/querypilot/internal/sqlgen"
)

type Stage string

const (
	StageReceived        Stage = "RECEIVED"
	StageClassified      Stage = "CLASSIFIED"
	StageRoutedSQL       Stage = "ROUTED_SQL"
	StageRoutedAnalysis  Stage = "ROUTED_ANALYSIS"
	StageRoutedMetadata  Stage = "ROUTED_METADATA"
	StageRoutedGuide     Stage = "ROUTED_GUIDE"
	StageRoutedOOS       Stage = "ROUTED_OOS"
	StageExecuting       Stage = "EXECUTING"
	StageResponded       Stage = "RESPONDED"
	StagePersisted       Stage = "PERSISTED"
	StageFailed          Stage = "FAILED"
)

// Event is one ordered progress notification. A streaming transport drains
// these; the orchestrator never blocks forever on a slow consumer because
// emission also honors context cancellation.
type Event struct {
	Stage   Stage  `json:"stage"`
	Message string `json:"message"`
}

type Request struct {
	UserID string
	Text   string
	// Events receives ordered stage progress when non-nil.
	Events chan<- Event
}

type Response struct {
	Block      conversation.ContextBlock
	Category   classifier.Category
	Degraded   bool
	Persisted  bool
	ArchiveKey string
}

type IntentClassifier interface {
	Classify(ctx context.Context, userRequest string, history []conversation.Message) (classifier.Classification, error)
}

type SQLGenerator interface {
	Generate(ctx context.Context, userRequest string, history []conversation.Message, snapshot *metasync.Snapshot) (sqlgen.Generated, error)
}

type ResultAnalyzer interface {
	Analyze(ctx context.Context, userRequest string, entries []conversation.AnalysisEntry) (string, error)
}

// MetadataSource is the read side of the metadata cache.
type MetadataSource interface {
	Current(ctx context.Context) (*metasync.Snapshot, error)
}

type ResultArchiver interface {
	Archive(ctx context.Context, block conversation.ContextBlock) (string, error)
}

type Config struct {
	MaxContextBlocks int
	MaxResultRows    int
}

type Service struct {
	Classifier IntentClassifier
	Generator  SQLGenerator
	Analyzer   ResultAnalyzer
	Metadata   MetadataSource
	Engine     query.Engine
	History    conversation.History
	Archiver   ResultArchiver
	Config     Config
	Logger     *slog.Logger
	Clock      func() time.Time
	NewID      func() string
}

const (
	outOfScopeResponse = "I can only help with questions about the event data in this warehouse. " +
		"Ask me to look something up, describe the available data, or explain results I have already fetched."
	guideResponse = "I answer questions about your event data. You can ask me to run a lookup " +
		"(\"top 10 events last week\"), describe what data exists (\"what tables are available?\"), " +
		"or explain results I have already fetched (\"why is page_view so high?\")."
	rejectedSQLResponse = "The generated statement was rejected because it could modify data. " +
		"I only run read-only queries; please rephrase the request."
	failedResponseText = "Something went wrong while handling this request. Please try again."
)

// Handle runs one user message through the full pipeline. Stage failures
// are converted into a failed block with a human-readable message; the only
// returned errors are input validation failures.
func (s *Service) Handle(ctx context.Context, req Request) (Response, error) {
	s.ensureDefaults()

	if strings.TrimSpace(req.UserID) == "" {
		return Response{}, fmt.Errorf("user id is required")
	}
	if strings.TrimSpace(req.Text) == "" {
		return Response{}, fmt.Errorf("request text is required")
	}

	// A caller disconnect must not abort in-flight LLM or SQL work: the
	// pipeline finishes on a detached context and the block is persisted
	// either way. Only stage emission keeps watching the caller.
	events := emitter{ctx: ctx, events: req.Events}
	ctx = context.WithoutCancel(ctx)

	block := conversation.ContextBlock{
		BlockID:     s.NewID(),
		UserID:      req.UserID,
		Timestamp:   s.Clock().UTC(),
		BlockType:   conversation.BlockTypeMetadata,
		UserRequest: strings.TrimSpace(req.Text),
		Status:      conversation.StatusProcessing,
	}
	events.emit(StageReceived, "request received")

	history, err := s.History.GetRecent(ctx, req.UserID, s.Config.MaxContextBlocks)
	if err != nil {
		s.Logger.WarnContext(ctx, "history lookup failed, continuing without context", slog.Any("error", err))
		history = nil
	}
	messages := conversation.FormatForConversation(history, s.Config.MaxContextBlocks)

	category := s.classify(ctx, req, history, messages)
	events.emit(StageClassified, string(category))

	response := s.route(ctx, req, &block, category, history, messages, events)
	if block.Status != conversation.StatusFailed {
		block.Status = conversation.StatusCompleted
		events.emit(StageResponded, "response ready")
	}
	response.Block = block
	response.Category = category

	s.persist(ctx, events, &response)

	return response, nil
}

// classify resolves the request category, recovering classifier failures to
// out_of_scope and downgrading data_analysis when no prior block carries
// result rows.
func (s *Service) classify(ctx context.Context, req Request, history []conversation.ContextBlock, messages []conversation.Message) classifier.Category {
	classification, err := s.Classifier.Classify(ctx, req.Text, messages)
	if err != nil {
		s.Logger.WarnContext(ctx, "classification failed, treating request as out of scope", slog.Any("error", err))
		return classifier.CategoryOutOfScope
	}

	if classification.Category == classifier.CategoryDataAnalysis && !anyBlockHasResult(history) {
		observability.IncrementClassificationDowngrade()
		s.Logger.InfoContext(ctx, "downgraded data_analysis request without prior results",
			slog.String("user_id", req.UserID))
		return classifier.CategoryOutOfScope
	}
	return classification.Category
}

func (s *Service) route(ctx context.Context, req Request, block *conversation.ContextBlock, category classifier.Category, history []conversation.ContextBlock, messages []conversation.Message, events emitter) Response {
	switch category {
	case classifier.CategoryQueryRequest:
		return s.handleQuery(ctx, req, block, messages, events)
	case classifier.CategoryDataAnalysis:
		return s.handleAnalysis(ctx, req, block, history, events)
	case classifier.CategoryMetadataRequest:
		return s.handleMetadata(ctx, req, block, events)
	case classifier.CategoryGuideRequest:
		events.emit(StageRoutedGuide, "guide request")
		block.BlockType = conversation.BlockTypeMetadata
		block.AssistantResponse = guideResponse
		return Response{}
	case classifier.CategoryOutOfScope:
		events.emit(StageRoutedOOS, "out of scope")
		block.BlockType = conversation.BlockTypeMetadata
		block.AssistantResponse = outOfScopeResponse
		return Response{}
	default:
		// Unknown categories cannot happen once classification has run,
		// but route them like out_of_scope to keep the switch total.
		events.emit(StageRoutedOOS, "out of scope")
		block.BlockType = conversation.BlockTypeMetadata
		block.AssistantResponse = outOfScopeResponse
		return Response{}
	}
}

func (s *Service) handleQuery(ctx context.Context, req Request, block *conversation.ContextBlock, messages []conversation.Message, events emitter) Response {
	events.emit(StageRoutedSQL, "generating sql")
	block.BlockType = conversation.BlockTypeQuery

	var snapshot *metasync.Snapshot
	degraded := false
	if s.Metadata != nil {
		current, err := s.Metadata.Current(ctx)
		switch {
		case err == nil:
			snapshot = current
		case errors.Is(err, metasync.ErrCacheUnavailable):
			degraded = true
		default:
			s.Logger.WarnContext(ctx, "metadata snapshot unavailable", slog.Any("error", err))
			degraded = true
		}
	} else {
		degraded = true
	}

	generated, err := s.Generator.Generate(ctx, req.Text, messages, snapshot)
	if err != nil {
		if errors.Is(err, sqlgen.ErrUnsafeSQL) {
			s.failBlock(ctx, events, block, "sqlgen", err, rejectedSQLResponse)
			return Response{Degraded: degraded}
		}
		s.failBlock(ctx, events, block, "sqlgen", err, failedResponseText)
		return Response{Degraded: degraded}
	}
	block.GeneratedQuery = generated.SQL
	degraded = degraded || generated.Degraded

	events.emit(StageExecuting, "running query")
	result, err := s.Engine.Execute(ctx, query.Request{SQL: generated.SQL, RowLimit: s.Config.MaxResultRows})
	if err != nil {
		s.failBlock(ctx, events, block, "execute", err, "The query could not be executed against the warehouse. Please try rephrasing the request.")
		return Response{Degraded: degraded}
	}

	block.ExecutionResult = &conversation.ExecutionResult{
		Columns:  result.Columns,
		Rows:     result.Rows,
		RowCount: result.RowCount,
	}
	block.AssistantResponse = summarizeResult(result, degraded)
	return Response{Degraded: degraded}
}

func (s *Service) handleAnalysis(ctx context.Context, req Request, block *conversation.ContextBlock, history []conversation.ContextBlock, events emitter) Response {
	events.emit(StageRoutedAnalysis, "analyzing prior results")
	block.BlockType = conversation.BlockTypeAnalysis

	entries := conversation.FormatForAnalysis(history)
	analysis, err := s.Analyzer.Analyze(ctx, req.Text, entries)
	if err != nil {
		s.failBlock(ctx, events, block, "analyze", err, failedResponseText)
		return Response{}
	}
	block.AssistantResponse = analysis
	return Response{}
}

func (s *Service) handleMetadata(ctx context.Context, req Request, block *conversation.ContextBlock, events emitter) Response {
	events.emit(StageRoutedMetadata, "describing available data")
	block.BlockType = conversation.BlockTypeMetadata

	if s.Metadata == nil {
		block.AssistantResponse = "Warehouse metadata is currently unavailable, so I cannot describe the data right now."
		return Response{Degraded: true}
	}
	snapshot, err := s.Metadata.Current(ctx)
	if err != nil {
		s.Logger.WarnContext(ctx, "metadata snapshot unavailable", slog.Any("error", err))
		block.AssistantResponse = "Warehouse metadata is currently unavailable, so I cannot describe the data right now."
		return Response{Degraded: true}
	}
	block.AssistantResponse = describeSnapshot(snapshot)
	return Response{}
}

// persist writes the terminal block as one unit. Handle already detached
// the pipeline context, so the write survives caller disconnects; a failure
// here never takes down the computed response.
func (s *Service) persist(ctx context.Context, events emitter, response *Response) {
	if err := s.History.Save(ctx, response.Block); err != nil {
		observability.IncrementPersistFailure()
		s.Logger.WarnContext(ctx, "context block persistence failed",
			slog.String("block_id", response.Block.BlockID),
			slog.Any("error", err))
		return
	}
	response.Persisted = true
	observability.ObserveBlockPersisted(string(response.Block.Status))
	events.emit(StagePersisted, "conversation saved")

	if s.Archiver != nil && response.Block.HasResult() {
		key, err := s.Archiver.Archive(ctx, response.Block)
		if err != nil {
			s.Logger.WarnContext(ctx, "result archive failed",
				slog.String("block_id", response.Block.BlockID),
				slog.Any("error", err))
			return
		}
		response.ArchiveKey = key
	}
}

func (s *Service) failBlock(ctx context.Context, events emitter, block *conversation.ContextBlock, stage string, err error, userMessage string) {
	observability.ObserveStageFailure(stage)
	s.Logger.ErrorContext(ctx, "pipeline stage failed",
		slog.String("stage", stage),
		slog.String("block_id", block.BlockID),
		slog.Any("error", err))
	block.Status = conversation.StatusFailed
	block.AssistantResponse = userMessage
	events.emit(StageFailed, stage)
}

// emitter delivers stage progress on the caller's context, so a consumer
// that went away never blocks the detached pipeline.
type emitter struct {
	ctx    context.Context
	events chan<- Event
}

func (e emitter) emit(stage Stage, message string) {
	if e.events == nil {
		return
	}
	select {
	case e.events <- Event{Stage: stage, Message: message}:
	case <-e.ctx.Done():
	}
}

func (s *Service) ensureDefaults() {
	if s.Logger == nil {
		s.Logger = slog.New(slog.DiscardHandler)
	}
	if s.Clock == nil {
		s.Clock = time.Now
	}
	if s.NewID == nil {
		s.NewID = uuid.NewString
	}
	if s.Config.MaxContextBlocks <= 0 {
		s.Config.MaxContextBlocks = 10
	}
	if s.Config.MaxResultRows <= 0 {
		s.Config.MaxResultRows = 200
	}
}

func anyBlockHasResult(blocks []conversation.ContextBlock) bool {
	for _, block := range blocks {
		if block.HasResult() {
			return true
		}
	}
	return false
}

func summarizeResult(result query.Result, degraded bool) string {
	var builder strings.Builder
	switch result.RowCount {
	case 0:
		builder.WriteString("The query ran successfully but returned no rows.")
	case 1:
		builder.WriteString("The query returned 1 row.")
	default:
		fmt.Fprintf(&builder, "The query returned %d rows.", result.RowCount)
	}
	if degraded {
		builder.WriteString(" Warehouse metadata was unavailable, so the query was limited to the fallback table and may not cover everything you asked for.")
	}
	return builder.String()
}

func describeSnapshot(snapshot *metasync.Snapshot) string {
	var builder strings.Builder
	info := snapshot.EventsTableInfo
	if info.NamePattern != "" {
		fmt.Fprintf(&builder, "The warehouse holds %d daily event tables named %s covering %s through %s.",
			info.Count, info.NamePattern, info.DateRange.Start, info.DateRange.End)
	} else {
		builder.WriteString("The warehouse holds the following event data.")
	}
	if len(info.Irregular) > 0 {
		fmt.Fprintf(&builder, " Additional tables: %s.", strings.Join(info.Irregular, ", "))
	}
	if len(snapshot.Schema) > 0 {
		names := make([]string, 0, len(snapshot.Schema))
		for _, column := range snapshot.Schema {
			names = append(names, fmt.Sprintf("%s (%s)", column.Name, column.Type))
		}
		fmt.Fprintf(&builder, " Each table has the columns: %s.", strings.Join(names, ", "))
	}
	if snapshot.SchemaInsights != "" {
		builder.WriteString(" ")
		builder.WriteString(snapshot.SchemaInsights)
	}
	return builder.String()
}
