package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/TobiSchelling/CandidateReviewer/internal/database"
	"github.com/TobiSchelling/CandidateReviewer/internal/identity"
	"github.com/TobiSchelling/CandidateReviewer/internal/logging"
	"github.com/TobiSchelling/CandidateReviewer/internal/model"
	"github.com/TobiSchelling/CandidateReviewer/internal/store"
)

// IntakeResult describes where an intake landed and how its evaluation went.
type IntakeResult struct {
	CandidateKey string
	Resolution   identity.Resolution
	// Skipped is set when the intake merged into a rejected candidate.
	Skipped bool
	Report  *Report
}

// Intake stores a candidate's documents under the record chosen by identity
// resolution and evaluates it. The record is kept even when the evaluation
// fails, so EvaluatePending can retry it later.
func (p *Pipeline) Intake(ctx context.Context, jobKey, name string, docs store.Documents) (*IntakeResult, error) {
	key := identity.NormalizeKey(name)
	if key == "" {
		return nil, fmt.Errorf("candidate name %q has no usable characters", name)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	bc, err := p.loadBatchContext(jobKey)
	if err != nil {
		return nil, err
	}

	ids := identity.Extract(docs.Text())
	res := identity.Resolve(key, ids, bc.identities, p.now())

	rec := model.CandidateIdentity{CandidateKey: res.TargetKey, Name: key, Identifiers: ids}
	if res.Action == identity.ActionMerge {
		for _, existing := range bc.identities {
			if existing.CandidateKey == res.TargetKey {
				rec = existing
				rec.Identifiers = existing.Identifiers.Union(ids)
				break
			}
		}
	}

	if err := p.docs.SaveIdentity(jobKey, rec); err != nil {
		return nil, fmt.Errorf("saving identity: %w", err)
	}
	for docType, text := range docs {
		if err := p.docs.WriteDocument(jobKey, rec.CandidateKey, docType, text); err != nil {
			return nil, err
		}
	}
	bc.identities = upsertIdentity(bc.identities, rec)

	log := logging.ForCandidate(p.logger, jobKey, rec.CandidateKey)
	fields := []zap.Field{zap.String("action", string(res.Action))}
	if res.Match != "" {
		fields = append(fields, zap.String("match", res.Match))
	}
	if !res.Overlap.Empty() {
		fields = append(fields, zap.String("overlap", res.Overlap.String()))
	}
	if res.Insufficient {
		fields = append(fields, zap.Bool("insufficient_identifiers", true))
	}
	log.Info("candidate resolved", fields...)

	result := &IntakeResult{CandidateKey: rec.CandidateKey, Resolution: res}
	if rec.Rejected {
		if err := p.refreshWarnings(jobKey, rec.CandidateKey, bc.identities); err != nil {
			return result, err
		}
		log.Info("candidate was rejected earlier, skipping evaluation")
		result.Skipped = true
		return result, nil
	}

	report := &Report{RunID: uuid.NewString(), JobKey: jobKey, Kind: database.RunInitial}
	report, err = p.runBatch(ctx, bc, []string{rec.CandidateKey}, report)
	result.Report = report
	if err != nil {
		return result, err
	}
	if o := report.Results[0]; o.Err != nil {
		return result, fmt.Errorf("evaluating %s: %w", rec.CandidateKey, o.Err)
	}
	return result, nil
}

func upsertIdentity(ids []model.CandidateIdentity, rec model.CandidateIdentity) []model.CandidateIdentity {
	for i := range ids {
		if ids[i].CandidateKey == rec.CandidateKey {
			ids[i] = rec
			return ids
		}
	}
	return append(ids, rec)
}

// refreshWarnings recomputes the duplicate warnings of key against every
// other record and mirrors the result onto the records it names.
func (p *Pipeline) refreshWarnings(jobKey, key string, all []model.CandidateIdentity) error {
	var rec *model.CandidateIdentity
	for i := range all {
		if all[i].CandidateKey == key {
			rec = &all[i]
			break
		}
	}
	if rec == nil {
		return fmt.Errorf("%w: %s", store.ErrCandidateNotFound, key)
	}

	previous, err := p.docs.LoadWarnings(jobKey, key)
	if err != nil {
		return err
	}
	fresh := identity.Conflicts(*rec, all, p.now())
	if err := p.docs.SaveWarnings(jobKey, key, fresh, identity.RenderWarnings(fresh)); err != nil {
		return err
	}

	mirrors := map[string][]model.DuplicateWarning{}
	for _, w := range previous {
		mirrors[w.OtherKey] = nil
	}
	for _, w := range fresh {
		mirrors[w.OtherKey] = append(mirrors[w.OtherKey], w.Mirror())
	}
	for other, add := range mirrors {
		if !p.docs.CandidateExists(jobKey, other) {
			continue
		}
		current, err := p.docs.LoadWarnings(jobKey, other)
		if err != nil {
			return err
		}
		next := identity.ReplaceWarnings(current, key, add...)
		if err := p.docs.SaveWarnings(jobKey, other, next, identity.RenderWarnings(next)); err != nil {
			return err
		}
	}

	if len(fresh) > 0 {
		logging.ForCandidate(p.logger, jobKey, key).Warn("duplicate identifiers detected",
			zap.Int("records", len(fresh)))
	}
	return nil
}

// IsNotFound reports whether err means a job or candidate does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, store.ErrJobNotFound) || errors.Is(err, store.ErrCandidateNotFound)
}
