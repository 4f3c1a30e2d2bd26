// MIT License
//
// Copyright (c) 2026 Kolin
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.
//
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"leadlynx/internal/database/models"
	"leadlynx/internal/database/repositories"
	"leadlynx/internal/enrichment"
	"leadlynx/internal/errs"
	"leadlynx/internal/parser/useragent"
	"leadlynx/internal/realtime"
	"leadlynx/internal/tracking"
	"leadlynx/internal/workflow"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/pterm/pterm"
)

// errIgnored marks events that are dropped on purpose
var errIgnored = errors.New("event ignored")

// Meta carries what the HTTP layer knows about the sender
type Meta struct {
	UserAgent string
	ClientIP  string
}

// Locator resolves addresses to GeoIP records
type Locator interface {
	Lookup(ctx context.Context, ip string) (*models.IPLookup, error)
}

// BatchResult summarizes a batch of events
type BatchResult struct {
	Directives []workflow.Directive `json:"directives"`
	Accepted   int                  `json:"accepted"`
	Rejected   int                  `json:"rejected"`
	Failed     int                  `json:"failed"`
	Ignored    int                  `json:"ignored"`
}

type handlerFunc func(ctx context.Context, raw json.RawMessage, meta Meta) ([]workflow.Directive, error)

// Gateway validates tracking events, applies them to the visitor and answers
// with workflow directives
type Gateway struct {
	registry  *tracking.Registry
	recorder  *tracking.Recorder
	catalog   repositories.CatalogRepository
	evaluator *workflow.Evaluator
	locator   Locator
	mailer    Mailer
	metrics   *realtime.MetricsCollector
	validate  *validator.Validate
	logger    *pterm.Logger
	handlers  map[string]handlerFunc
}

func NewGateway(
	registry *tracking.Registry,
	recorder *tracking.Recorder,
	catalog repositories.CatalogRepository,
	evaluator *workflow.Evaluator,
	locator Locator,
	mailer Mailer,
	metrics *realtime.MetricsCollector,
	logger *pterm.Logger,
) *Gateway {
	if mailer == nil {
		mailer = NewLogMailer(logger)
	}
	g := &Gateway{
		registry:  registry,
		recorder:  recorder,
		catalog:   catalog,
		evaluator: evaluator,
		locator:   locator,
		mailer:    mailer,
		metrics:   metrics,
		validate:  validator.New(),
		logger:    logger,
	}
	g.handlers = map[string]handlerFunc{
		ActionPage:           g.handlePage,
		ActionDownload:       g.handleDownload,
		ActionLinkClick:      g.handleLinkClick,
		ActionFieldListening: g.handleField,
		ActionFormListening:  g.handleForm,
		ActionEmail4Link:     g.handleEmail4Link,
		ActionRedirect:       g.handleRedirect,
	}
	return g
}

// Handle processes one event. Validation problems come back as
// *errs.ValidationError; every other error is internal. Ignored events
// (bots, blacklisted visitors) return no directives and no error.
func (g *Gateway) Handle(ctx context.Context, req Request, meta Meta) ([]workflow.Directive, error) {
	directives, outcome, err := g.handle(ctx, req, meta)
	g.record(req.DispatchAction, outcome)
	return directives, err
}

// HandleBatch processes each event on its own; one bad event does not stop the rest
func (g *Gateway) HandleBatch(ctx context.Context, reqs []Request, meta Meta) *BatchResult {
	result := &BatchResult{Directives: make([]workflow.Directive, 0)}
	for _, req := range reqs {
		directives, outcome, _ := g.handle(ctx, req, meta)
		g.record(req.DispatchAction, outcome)

		switch outcome {
		case realtime.OutcomeAccepted:
			result.Accepted++
		case realtime.OutcomeRejected:
			result.Rejected++
		case realtime.OutcomeIgnored:
			result.Ignored++
		default:
			result.Failed++
		}
		result.Directives = append(result.Directives, directives...)
	}

	g.logger.Debug("Processed tracking batch",
		g.logger.Args("events", len(reqs), "accepted", result.Accepted, "rejected", result.Rejected, "failed", result.Failed))
	return result
}

func (g *Gateway) handle(ctx context.Context, req Request, meta Meta) ([]workflow.Directive, realtime.Outcome, error) {
	if err := g.validate.Struct(req); err != nil {
		return nil, realtime.OutcomeRejected, validationError(err)
	}

	handler := g.handlers[req.DispatchAction]
	directives, err := handler(ctx, req.Arguments, meta)
	switch {
	case err == nil:
		if directives == nil {
			directives = make([]workflow.Directive, 0)
		}
		return directives, realtime.OutcomeAccepted, nil
	case errors.Is(err, errIgnored):
		return directives, realtime.OutcomeIgnored, nil
	case errs.IsValidation(err):
		g.logger.Debug("Rejected tracking event",
			g.logger.Args("action", req.DispatchAction, "error", err))
		return nil, realtime.OutcomeRejected, err
	default:
		g.logger.WithCaller().Error("Failed to process tracking event",
			g.logger.Args("action", req.DispatchAction, "error", err))
		return nil, realtime.OutcomeFailed, err
	}
}

func (g *Gateway) record(action string, outcome realtime.Outcome) {
	if g.metrics == nil {
		return
	}
	if action == "" {
		action = "unknown"
	}
	g.metrics.Record(action, outcome)
}

// decode unmarshals and validates the arguments of an action
func (g *Gateway) decode(raw json.RawMessage, target interface{}) error {
	if len(raw) == 0 {
		return errs.Validation("arguments", "missing")
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return errs.Validation("arguments", err.Error())
	}
	if err := g.validate.Struct(target); err != nil {
		return validationError(err)
	}
	return nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		first := verrs[0]
		return errs.Validation(first.Field(), fmt.Sprintf("failed on %s", first.Tag()))
	}
	return errs.Validation("", err.Error())
}

// visitor resolves the fingerprint and filters out traffic that is not tracked
func (g *Gateway) visitor(ctx context.Context, fingerprint string, meta Meta) (*models.Visitor, error) {
	if useragent.Parse(meta.UserAgent).IsBot() {
		g.logger.Trace("Ignoring bot traffic", g.logger.Args("user_agent", meta.UserAgent))
		return nil, errIgnored
	}

	visitor, created, err := g.registry.ResolveOrCreate(ctx, fingerprint, meta.UserAgent)
	if err != nil {
		return nil, err
	}
	if visitor.Blacklisted {
		g.logger.Trace("Ignoring blacklisted visitor", g.logger.Args("visitor_id", visitor.ID))
		return nil, errIgnored
	}
	if created {
		g.enrich(ctx, visitor.ID, meta.ClientIP)
	}
	return visitor, nil
}

// enrich attaches GeoIP facts to a new visitor. Failures only cost the facts.
func (g *Gateway) enrich(ctx context.Context, visitorID uint, ip string) {
	if ip == "" {
		return
	}
	var infos map[string]string
	if g.locator != nil {
		lookup, err := g.locator.Lookup(ctx, ip)
		if err != nil {
			g.logger.Debug("GeoIP lookup failed", g.logger.Args("ip", ip, "error", err))
		}
		infos = enrichment.Ipinformations(lookup)
	}
	if err := g.recorder.AddIpinformations(ctx, visitorID, ip, infos); err != nil {
		g.logger.Warn("Failed to store visitor address", g.logger.Args("visitor_id", visitorID, "error", err))
	}
}

// directives applies the workflow rules to a recorded event
func (g *Gateway) directives(out *tracking.Outcome) []workflow.Directive {
	if g.evaluator == nil || out == nil {
		return nil
	}
	return g.evaluator.Evaluate(workflow.Event{
		ScoringBefore:    out.ScoringBefore,
		ScoringAfter:     out.ScoringAfter,
		Categories:       out.Categories,
		BecameIdentified: out.Identified,
	})
}

// recorded maps a recorder result to the gateway's answer
func (g *Gateway) recorded(out *tracking.Outcome, err error) ([]workflow.Directive, error) {
	if errors.Is(err, tracking.ErrBlacklisted) {
		return nil, errIgnored
	}
	if err != nil {
		return nil, err
	}
	return g.directives(out), nil
}

func (g *Gateway) handlePage(ctx context.Context, raw json.RawMessage, meta Meta) ([]workflow.Directive, error) {
	var args pageArgs
	if err := g.decode(raw, &args); err != nil {
		return nil, err
	}
	visitor, err := g.visitor(ctx, args.Fingerprint, meta)
	if err != nil {
		return nil, err
	}

	agent := useragent.Parse(meta.UserAgent)
	return g.recorded(g.recorder.RecordPageVisit(ctx, visitor.ID, tracking.PageVisit{
		PageID:     uint(args.PageUID),
		NewsID:     uint(args.NewsUID),
		Language:   int(args.LanguageUID),
		Referrer:   args.Referrer,
		URL:        args.CurrentURL,
		Browser:    agent.Browser,
		OS:         agent.OSName(),
		DeviceType: agent.DeviceType,
		At:         time.Now(),
	}))
}

func (g *Gateway) handleDownload(ctx context.Context, raw json.RawMessage, meta Meta) ([]workflow.Directive, error) {
	var args downloadArgs
	if err := g.decode(raw, &args); err != nil {
		return nil, err
	}
	visitor, err := g.visitor(ctx, args.Fingerprint, meta)
	if err != nil {
		return nil, err
	}
	return g.recorded(g.recorder.RecordDownload(ctx, visitor.ID, args.Href, time.Now()))
}

func (g *Gateway) handleLinkClick(ctx context.Context, raw json.RawMessage, meta Meta) ([]workflow.Directive, error) {
	var args linkClickArgs
	if err := g.decode(raw, &args); err != nil {
		return nil, err
	}
	visitor, err := g.visitor(ctx, args.Fingerprint, meta)
	if err != nil {
		return nil, err
	}
	return g.recorded(g.recorder.RecordLinkClick(ctx, visitor.ID, uint(args.LinklistenerIdentifier), uint(args.PageUID), time.Now()))
}

func (g *Gateway) handleField(ctx context.Context, raw json.RawMessage, meta Meta) ([]workflow.Directive, error) {
	var args fieldArgs
	if err := g.decode(raw, &args); err != nil {
		return nil, err
	}
	visitor, err := g.visitor(ctx, args.Fingerprint, meta)
	if err != nil {
		return nil, err
	}
	return g.recorded(g.recorder.SetAttribute(ctx, visitor.ID, args.Key, args.Value))
}

func (g *Gateway) handleForm(ctx context.Context, raw json.RawMessage, meta Meta) ([]workflow.Directive, error) {
	var args formArgs
	if err := g.decode(raw, &args); err != nil {
		return nil, err
	}
	values, err := formValues(args.Values)
	if err != nil {
		return nil, errs.Validation("values", "not a JSON object")
	}
	if len(values) == 0 {
		return nil, errs.Validation("values", "must not be empty")
	}
	visitor, err := g.visitor(ctx, args.Fingerprint, meta)
	if err != nil {
		return nil, err
	}

	g.logger.Trace("Form submission", g.logger.Args("visitor_id", visitor.ID, "fields", strings.Join(sortedKeys(values), ",")))
	return g.recorded(g.recorder.SetAttributes(ctx, visitor.ID, values))
}

func (g *Gateway) handleEmail4Link(ctx context.Context, raw json.RawMessage, meta Meta) ([]workflow.Directive, error) {
	var args email4LinkArgs
	if err := g.decode(raw, &args); err != nil {
		return nil, err
	}
	visitor, err := g.visitor(ctx, args.Fingerprint, meta)
	if err != nil {
		return nil, err
	}

	directives, err := g.recorded(g.recorder.Email4Link(ctx, visitor.ID, args.Email, args.Href))
	if err != nil {
		return nil, err
	}
	if args.SendEmail {
		if err := g.mailer.SendAsset(ctx, strings.ToLower(strings.TrimSpace(args.Email)), args.Href); err != nil {
			g.logger.Warn("Failed to send email4link mail", g.logger.Args("visitor_id", visitor.ID, "error", err))
		}
	}
	return directives, nil
}

// handleRedirect always answers with the redirect target. An empty fingerprint
// means the visitor opted out of tracking and nothing is recorded.
func (g *Gateway) handleRedirect(ctx context.Context, raw json.RawMessage, meta Meta) ([]workflow.Directive, error) {
	var args redirectArgs
	if err := g.decode(raw, &args); err != nil {
		return nil, err
	}

	redirect, err := g.catalog.FindRedirectByHash(ctx, args.RedirectHash)
	if errs.IsNotFound(err) {
		return nil, errs.Validation("redirectHash", "unknown")
	}
	if err != nil {
		return nil, err
	}
	directives := []workflow.Directive{workflow.RedirectDirective(redirect.Target)}

	if strings.TrimSpace(args.Fingerprint) == "" {
		return directives, nil
	}

	visitor, err := g.visitor(ctx, args.Fingerprint, meta)
	if errors.Is(err, errIgnored) {
		return directives, nil
	}
	if err != nil {
		// The visitor still gets redirected
		g.logger.Warn("Failed to resolve visitor for redirect", g.logger.Args("hash", args.RedirectHash, "error", err))
		return directives, nil
	}

	more, err := g.recorded(g.recorder.RecordRedirect(ctx, visitor.ID, redirect))
	if err != nil && !errors.Is(err, errIgnored) {
		g.logger.Warn("Failed to record redirect", g.logger.Args("visitor_id", visitor.ID, "error", err))
	}
	return append(directives, more...), nil
}
