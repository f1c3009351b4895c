// Package sink fans normalized documents out to the document-search store
// and the columnar batch store. Each store sits behind a Capability so an
// unreachable store degrades the run instead of failing it.
package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/couchcryptid/noaa-ingest/internal/domain"
)

// Targets is a set of stores.
type Targets uint8

const (
	TargetDocument Targets = 1 << iota
	TargetColumnar

	AllTargets = TargetDocument | TargetColumnar
)

// Has reports whether t contains every target in o.
func (t Targets) Has(o Targets) bool { return t&o == o }

func (t Targets) String() string {
	var parts []string
	if t.Has(TargetDocument) {
		parts = append(parts, "document")
	}
	if t.Has(TargetColumnar) {
		parts = append(parts, "columnar")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "+")
}

// Sink writes documents to both stores.
type Sink struct {
	document *Capability
	columnar *Capability
	logger   *slog.Logger
}

// New creates a Sink over the two store capabilities.
func New(document, columnar *Capability, logger *slog.Logger) *Sink {
	return &Sink{document: document, columnar: columnar, logger: logger.With("component", "sink")}
}

// Required returns the targets a document must reach: the enabled stores.
func (s *Sink) Required() Targets {
	var t Targets
	if s.document.Enabled() {
		t |= TargetDocument
	}
	if s.columnar.Enabled() {
		t |= TargetColumnar
	}
	return t
}

// Store writes doc to both stores and reports whether both accepted it.
// Failures are logged and never returned.
func (s *Sink) Store(ctx context.Context, doc domain.Document) bool {
	return s.Deliver(ctx, doc, AllTargets) == AllTargets
}

// Deliver writes doc to each store in pending and returns the subset that
// accepted it.
func (s *Sink) Deliver(ctx context.Context, doc domain.Document, pending Targets) Targets {
	var delivered Targets
	for _, t := range []struct {
		target Targets
		cap    *Capability
	}{
		{TargetDocument, s.document},
		{TargetColumnar, s.columnar},
	} {
		if !pending.Has(t.target) {
			continue
		}
		err := t.cap.Write(ctx, doc)
		switch {
		case err == nil:
			delivered |= t.target
		case errors.Is(err, ErrDisabled), errors.Is(err, ErrUnavailable):
			s.logger.Debug("store skipped", "store", t.cap.Name(), "id", doc.ID, "reason", err)
		default:
			s.logger.Warn("store write failed", "store", t.cap.Name(), "id", doc.ID, "error", err)
		}
	}
	return delivered
}

// Available returns the enabled targets not currently known to be down.
func (s *Sink) Available() Targets {
	var t Targets
	if s.document.Enabled() && s.document.State() != StateUnavailable {
		t |= TargetDocument
	}
	if s.columnar.Enabled() && s.columnar.State() != StateUnavailable {
		t |= TargetColumnar
	}
	return t
}

// Probe connects to every enabled store now and returns the reachable set.
func (s *Sink) Probe(ctx context.Context) Targets {
	var t Targets
	if s.document.Enabled() && s.document.Probe(ctx) == StateAvailable {
		t |= TargetDocument
	}
	if s.columnar.Enabled() && s.columnar.Probe(ctx) == StateAvailable {
		t |= TargetColumnar
	}
	return t
}

// States reports each store's availability by name.
func (s *Sink) States() map[string]string {
	states := make(map[string]string, 2)
	for _, c := range []*Capability{s.document, s.columnar} {
		if !c.Enabled() {
			states[c.Name()] = "disabled"
			continue
		}
		states[c.Name()] = c.State().String()
	}
	return states
}

// CheckReadiness fails while any enabled store is known to be unreachable.
func (s *Sink) CheckReadiness(_ context.Context) error {
	var down []string
	for _, c := range []*Capability{s.document, s.columnar} {
		if c.Enabled() && c.State() == StateUnavailable {
			down = append(down, c.Name())
		}
	}
	if len(down) > 0 {
		return fmt.Errorf("%w: %s", ErrUnavailable, strings.Join(down, ", "))
	}
	return nil
}
