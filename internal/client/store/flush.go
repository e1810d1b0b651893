package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/dmitrijs2005/studyctl/internal/client/client"
)

var errBadOp = errors.New("outbox op cannot be replayed")

// FlushResult summarizes one outbox replay.
type FlushResult struct {
	Replayed  int
	Dropped   int
	Remaining int
}

// Flush replays queued local writes in order, one at a time. It stops at
// the first failure that leaves the op worth retrying and returns that
// error; the op stays queued. Ops the remote rejects for good are dropped.
// A Flush started while another is running returns immediately.
func (s *Store[T, P]) Flush(ctx context.Context) (FlushResult, error) {
	var res FlushResult
	if !s.flushMu.TryLock() {
		return res, nil
	}
	defer s.flushMu.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		s.mu.Lock()
		ops, err := s.loadOps(ctx)
		s.mu.Unlock()
		if err != nil {
			return res, err
		}
		res.Remaining = len(ops)
		if len(ops) == 0 {
			return res, nil
		}

		op := ops[0]
		rec, err := s.replay(ctx, op)
		if err := s.settleOp(ctx, op, rec, err, &res); err != nil {
			return res, err
		}
	}
}

// flushPending flushes when something is queued and returns the error that
// stopped it, if any.
func (s *Store[T, P]) flushPending(ctx context.Context) error {
	n, err := s.Pending(ctx)
	if err != nil || n == 0 {
		return nil
	}
	res, err := s.Flush(ctx)
	if err != nil {
		s.log.Debug(ctx, "outbox flush stopped", "remaining", res.Remaining, "err", err)
	}
	return err
}

func (s *Store[T, P]) replay(ctx context.Context, op Op) (*T, error) {
	switch op.Kind {
	case OpCreate:
		var rec T
		if err := json.Unmarshal(op.Body, &rec); err != nil {
			return nil, fmt.Errorf("%w: %v", errBadOp, err)
		}
		P(&rec).Meta().ID = ""
		env, err := s.call(ctx, http.MethodPost, s.cfg.Path, nil, rec)
		return s.decodeOne(env, err)
	case OpUpdate:
		env, err := s.call(ctx, http.MethodPut, s.itemPath(op.RecordID), nil, op.Body)
		return s.decodeOne(env, err)
	case OpDelete:
		_, err := s.call(ctx, http.MethodDelete, s.itemPath(op.RecordID), nil, nil)
		return nil, err
	}
	return nil, fmt.Errorf("%w: kind %q", errBadOp, op.Kind)
}

// settleOp folds the outcome of replaying sent back into the cache. The
// outbox is reloaded because local writes may have been queued meanwhile.
// It returns a non-nil error when the flush should stop.
func (s *Store[T, P]) settleOp(ctx context.Context, sent Op, rec *T, err error, res *FlushResult) error {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	items, ops, lerr := s.load(ctx)
	if lerr != nil {
		return lerr
	}
	i := indexOp(ops, sent.ID)

	switch {
	case err == nil:
		res.Replayed++
		s.metrics.OutboxOp("replayed")
		items, ops = s.replayed(items, ops, i, sent, rec, now)

	case errors.Is(err, client.ErrNotFound), errors.Is(err, client.ErrValidation), errors.Is(err, errBadOp):
		s.log.Warn(ctx, "outbox op rejected, dropping", "kind", sent.Kind, "id", sent.RecordID, "err", err)
		items, ops = s.dropped(items, ops, i, sent, errors.Is(err, client.ErrNotFound))
		res.Dropped++
		s.metrics.OutboxOp("dropped")

	default:
		if i < 0 {
			return err
		}
		ops[i].LastError = err.Error()
		if !retryLater(err) {
			ops[i].Attempts++
		}
		if ops[i].Attempts < MaxOpAttempts {
			s.metrics.OutboxOp("deferred")
			if serr := s.save(ctx, items, ops); serr != nil {
				s.log.Warn(ctx, "outbox write failed", "err", serr)
			}
			return err
		}
		s.log.Warn(ctx, "outbox op exhausted, dropping", "kind", sent.Kind, "id", sent.RecordID,
			"attempts", ops[i].Attempts, "err", err)
		items, ops = s.dropped(items, ops, i, sent, false)
		res.Dropped++
		s.metrics.OutboxOp("dropped")
		if serr := s.save(ctx, items, ops); serr != nil {
			return serr
		}
		return err
	}

	return s.save(ctx, items, ops)
}

func (s *Store[T, P]) replayed(items []T, ops []Op, i int, sent Op, rec *T, now time.Time) ([]T, []Op) {
	if i < 0 {
		// Deleted locally while the create was in flight.
		if sent.Kind == OpCreate && rec != nil {
			ops = append(ops, newOp(OpDelete, P(rec).Meta().ID, nil, now))
		}
		return items, ops
	}

	// The body changes when a local edit was folded into the op while it
	// was in flight; the op then has to go out again.
	changed := !bytes.Equal(ops[i].Body, sent.Body)

	switch sent.Kind {
	case OpCreate:
		newID := P(rec).Meta().ID
		renameRecord(ops, sent.RecordID, newID)
		j := s.indexOf(items, sent.RecordID)
		if changed {
			ops[i].Kind = OpUpdate
			ops[i].Attempts = 0
			if j >= 0 {
				P(&items[j]).Meta().ID = newID
			}
			return items, ops
		}
		ops = slices.Delete(ops, i, i+1)
		if j >= 0 {
			items[j] = *rec
		} else {
			items = append(items, *rec)
		}

	case OpUpdate:
		if changed {
			ops[i].Attempts = 0
			return items, ops
		}
		ops = slices.Delete(ops, i, i+1)
		if j := s.indexOf(items, sent.RecordID); j >= 0 {
			items[j] = *rec
		}

	case OpDelete:
		ops = slices.Delete(ops, i, i+1)
	}
	return items, ops
}

// dropped removes op i. A rejected create, or any op for a record the
// remote no longer has, takes the local record with it; otherwise the
// record loses its pending mark and is refreshed by the next fetch.
func (s *Store[T, P]) dropped(items []T, ops []Op, i int, sent Op, gone bool) ([]T, []Op) {
	if i >= 0 {
		ops = slices.Delete(ops, i, i+1)
	}
	if gone || sent.Kind == OpCreate {
		return s.removeID(items, sent.RecordID), dropRecord(ops, sent.RecordID)
	}
	if !slices.ContainsFunc(ops, func(o Op) bool { return o.RecordID == sent.RecordID }) {
		if j := s.indexOf(items, sent.RecordID); j >= 0 {
			P(&items[j]).Meta().Pending = false
		}
	}
	return items, ops
}

// retryLater reports failures that say nothing about the op itself: the
// remote is unreachable, throttling, or wants a new login.
func retryLater(err error) bool {
	return errors.Is(err, client.ErrTransport) ||
		errors.Is(err, client.ErrRateLimited) ||
		errors.Is(err, client.ErrUnauthorized) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
