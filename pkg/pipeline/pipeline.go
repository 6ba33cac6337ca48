// pkg/pipeline/pipeline.go
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xtechon/vatflow/pkg/frame"
	"github.com/xtechon/vatflow/pkg/notify"
	"github.com/xtechon/vatflow/pkg/rates"
	"github.com/xtechon/vatflow/pkg/report"
	"github.com/xtechon/vatflow/pkg/schema"
	"github.com/xtechon/vatflow/pkg/session"
	"github.com/xtechon/vatflow/pkg/store"
	"github.com/xtechon/vatflow/pkg/validate"
	"github.com/xtechon/vatflow/pkg/vat"
)

// Deps wires the processor's collaborators. Mailer may be nil when
// notification is not configured.
type Deps struct {
	HeaderStore store.HeaderStore
	RuleStore   store.RuleStore
	RateCache   *rates.Cache
	Validator   *validate.Validator
	Engine      *vat.Engine
	Reports     *report.Builder
	Sessions    *session.Store
	Mailer      *notify.Mailer
	Recipient   string
	HeaderTTL   time.Duration // 0 uses the default
	RuleTTL     time.Duration // 0 uses the default
}

// Processor runs the validation + VAT enrichment pipeline for one
// uploaded file at a time. Reference data (headers, rules, rates) is
// shared across uploads through read-only TTL caches; per-upload state
// lives in the session store.
type Processor struct {
	headers   *headerCache
	rules     *ruleCache
	rateCache *rates.Cache
	validator *validate.Validator
	engine    *vat.Engine
	reports   *report.Builder
	sessions  *session.Store
	mailer    *notify.Mailer
	recipient string
	logger    *zap.Logger
}

// NewProcessor creates a Processor from its dependencies
func NewProcessor(deps Deps, logger *zap.Logger) (*Processor, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.HeaderStore == nil || deps.RuleStore == nil {
		return nil, fmt.Errorf("header and rule stores are required")
	}
	if deps.RateCache == nil {
		return nil, fmt.Errorf("rate cache is required")
	}
	if deps.Validator == nil || deps.Engine == nil || deps.Reports == nil {
		return nil, fmt.Errorf("validator, engine and report builder are required")
	}
	if deps.Sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}

	logger = logger.Named("pipeline")
	return &Processor{
		headers:   newHeaderCache(deps.HeaderStore, deps.HeaderTTL, logger),
		rules:     newRuleCache(deps.RuleStore, deps.RuleTTL, logger),
		rateCache: deps.RateCache,
		validator: deps.Validator,
		engine:    deps.Engine,
		reports:   deps.Reports,
		sessions:  deps.Sessions,
		mailer:    deps.Mailer,
		recipient: deps.Recipient,
		logger:    logger,
	}, nil
}

// ValidationOutcome is the user-facing result of one file validation
type ValidationOutcome struct {
	SessionID      string                 `json:"session_id"`
	Filename       string                 `json:"filename"`
	Rows           int                    `json:"rows"`
	Columns        []string               `json:"columns"`
	Issues         []validate.Issue       `json:"issues"`
	MissingColumns []schema.MissingColumn `json:"missing_columns"`
	CanProcess     bool                   `json:"can_process"`
}

// ValidateFile parses an uploaded file, reconciles its headers and
// runs column validation. The reconciled frame is kept in a session so
// the caller can later trigger enrichment. Validation issues are
// advisory; only missing required columns block processing.
func (p *Processor) ValidateFile(ctx context.Context, data []byte, filename string) (*ValidationOutcome, error) {
	f, err := frame.ReadBytes(data, filename)
	if err != nil {
		p.logger.Warn("File rejected",
			zap.String("filename", filename),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrInputFormat, err)
	}

	return p.validateFrame(ctx, f, filename)
}

// ValidateFrame runs the same pipeline on an already-parsed frame, for
// the warehouse ingestion path
func (p *Processor) ValidateFrame(ctx context.Context, f *frame.Frame, name string) (*ValidationOutcome, error) {
	return p.validateFrame(ctx, f, name)
}

func (p *Processor) validateFrame(ctx context.Context, f *frame.Frame, filename string) (*ValidationOutcome, error) {
	defs, err := p.headers.Headers(ctx)
	if err != nil {
		return nil, err
	}

	reconciler, err := schema.NewReconciler(defs, p.logger)
	if err != nil {
		return nil, fmt.Errorf("invalid header definitions: %w", err)
	}

	reconciled := reconciler.Reconcile(f)
	issues := p.validator.Validate(ctx, f, defs)

	missingValues := make([]string, 0, len(reconciled.Missing))
	for _, m := range reconciled.Missing {
		missingValues = append(missingValues, m.Value)
	}

	issuesWB, err := p.buildIssuesWorkbook(f, issues, reconciled.Missing)
	if err != nil {
		p.logger.Error("Failed to assemble issues workbook", zap.Error(err))
		issuesWB = nil
	}

	id := p.sessions.Put(&session.Session{
		Filename:   filename,
		Frame:      f,
		Issues:     issues,
		Missing:    missingValues,
		IssuesXLSX: issuesWB,
	})

	p.logger.Info("File validated",
		zap.String("sessionID", id),
		zap.String("filename", filename),
		zap.Int("rows", f.Len()),
		zap.Int("issues", len(issues)),
		zap.Int("missingColumns", len(reconciled.Missing)))

	return &ValidationOutcome{
		SessionID:      id,
		Filename:       filename,
		Rows:           f.Len(),
		Columns:        f.Columns(),
		Issues:         issues,
		MissingColumns: reconciled.Missing,
		CanProcess:     len(reconciled.Missing) == 0,
	}, nil
}

// ProcessOutcome is the user-facing result of one enrichment run
type ProcessOutcome struct {
	SessionID      string               `json:"session_id"`
	Status         vat.Status           `json:"status"`
	ManualCount    int                  `json:"manual_count"`
	Totals         vat.Totals           `json:"totals"`
	CountrySummary []vat.CountrySummary `json:"country_summary,omitempty"`
	Message        string               `json:"message,omitempty"`
}

// ProcessVAT runs enrichment for a previously validated session,
// assembles the downloadable report and, when rows need manual review,
// sends the best-effort notification. No artifact is attached to the
// session until the terminal state is reached, so an abandoned run
// leaves nothing behind.
func (p *Processor) ProcessVAT(ctx context.Context, sessionID string) (*ProcessOutcome, error) {
	sess, err := p.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}

	if len(sess.Missing) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrMissingColumns, sess.Missing)
	}

	table, err := p.rateCache.Table(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCollaboratorUnavailable, err)
	}
	rules, err := p.rules.Rules(ctx)
	if err != nil {
		return nil, err
	}

	result, err := p.engine.Process(ctx, sess.Frame, table, rules)
	if err != nil {
		return nil, err
	}

	defs, err := p.headers.Headers(ctx)
	if err != nil {
		return nil, err
	}

	// Canonical ids become display labels in the downloadable report
	labelled := result.Enriched.Clone()
	for _, def := range defs {
		if def.Label != "" && labelled.HasColumn(def.Value) {
			labelled.Rename(def.Value, def.Label)
		}
	}

	highlights := report.HighlightsForSentinel(labelled, vat.NotFoundSentinel)
	reportBytes, err := p.reports.Build(labelled, highlights, sess.Issues, result)
	if err != nil {
		return nil, fmt.Errorf("failed to assemble report: %w", err)
	}

	var manualBytes []byte
	if result.Status == vat.StatusManualReviewRequired {
		manualBytes, err = p.buildManualReviewWorkbook(result)
		if err != nil {
			p.logger.Error("Failed to assemble manual-review workbook", zap.Error(err))
			manualBytes = nil
		}
	}

	if err := p.sessions.Update(sessionID, func(s *session.Session) {
		s.Result = result
		s.ReportXLSX = reportBytes
		s.ManualXLSX = manualBytes
	}); err != nil {
		return nil, err
	}

	outcome := &ProcessOutcome{
		SessionID:      sessionID,
		Status:         result.Status,
		ManualCount:    result.ManualCount,
		Totals:         result.Totals,
		CountrySummary: result.CountrySummary,
	}

	if result.Status == vat.StatusManualReviewRequired {
		outcome.Message = fmt.Sprintf("%d row(s) need manual review; they were set aside for human handling", result.ManualCount)
		if p.mailer != nil {
			// Best-effort; delivery failures stay in the logs
			_ = p.mailer.SendManualReview(ctx, p.recipient, result, manualBytes, "manual_review.xlsx")
		}
	}

	p.logger.Info("Enrichment completed",
		zap.String("sessionID", sessionID),
		zap.String("status", string(result.Status)),
		zap.Int("manualCount", result.ManualCount))

	return outcome, nil
}

// StatusOutcome reports where a session currently stands
type StatusOutcome struct {
	SessionID string     `json:"session_id"`
	Filename  string     `json:"filename"`
	Validated bool       `json:"validated"`
	Processed bool       `json:"processed"`
	Status    vat.Status `json:"status,omitempty"`
}

// Status returns the current state of a session
func (p *Processor) Status(sessionID string) (*StatusOutcome, error) {
	sess, err := p.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}

	outcome := &StatusOutcome{
		SessionID: sess.ID,
		Filename:  sess.Filename,
		Validated: true,
		Processed: sess.Result != nil,
	}
	if sess.Result != nil {
		outcome.Status = sess.Result.Status
	}
	return outcome, nil
}

// Report returns the assembled report workbook for a processed session
func (p *Processor) Report(sessionID string) ([]byte, string, error) {
	sess, err := p.sessions.Get(sessionID)
	if err != nil {
		return nil, "", err
	}
	if sess.ReportXLSX == nil {
		return nil, "", fmt.Errorf("session %s has not been processed", sessionID)
	}
	return sess.ReportXLSX, sess.Filename, nil
}

// IssuesWorkbook returns the validation-annotated workbook for a
// session. Available as soon as validation ran.
func (p *Processor) IssuesWorkbook(sessionID string) ([]byte, error) {
	sess, err := p.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if sess.IssuesXLSX == nil {
		return nil, fmt.Errorf("session %s has no issues workbook", sessionID)
	}
	return sess.IssuesXLSX, nil
}

// ManualReviewWorkbook returns the workbook of rows needing manual
// review for a processed session
func (p *Processor) ManualReviewWorkbook(sessionID string) ([]byte, error) {
	sess, err := p.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if sess.ManualXLSX == nil {
		return nil, fmt.Errorf("session %s has no manual-review rows", sessionID)
	}
	return sess.ManualXLSX, nil
}

// buildIssuesWorkbook annotates the uploaded data with validation
// highlights. Missing required columns appear as empty placeholder
// columns with an error-highlighted header.
func (p *Processor) buildIssuesWorkbook(f *frame.Frame, issues []validate.Issue, missing []schema.MissingColumn) ([]byte, error) {
	annotated := f.Clone()
	highlights := report.HighlightsFromIssues(issues)
	for _, m := range missing {
		annotated.AddColumn(m.Value, make([]interface{}, annotated.Len()))
		highlights = append(highlights, report.Highlight{
			Row:      -1,
			Column:   m.Value,
			Severity: report.SeverityError,
		})
	}
	return p.reports.Build(annotated, highlights, issues, nil)
}

// buildManualReviewWorkbook assembles a workbook holding only the
// enriched rows that need human attention, with the sentinel cells
// flagged
func (p *Processor) buildManualReviewWorkbook(result *vat.Result) ([]byte, error) {
	enriched := result.Enriched
	columns := enriched.Columns()

	var rows []int
	for r := 0; r < enriched.Len(); r++ {
		if s, ok := enriched.Cell(vat.ColVATRate, r).(string); ok && s == vat.NotFoundSentinel {
			rows = append(rows, r)
		}
	}

	mf := frame.New()
	for _, name := range columns {
		cells := make([]interface{}, len(rows))
		for i, r := range rows {
			cells[i] = enriched.Cell(name, r)
		}
		mf.AddColumn(name, cells)
	}

	return p.reports.Build(mf, report.HighlightsForSentinel(mf, vat.NotFoundSentinel), nil, nil)
}
