// Package queue owns the company rotation: who is next in line, moving
// a company to the back after an assignment, and repairing corrupt
// positions. All callers go through this engine; nothing else writes
// queue_position or last_order_assigned.
//
// Selection and rotation execute inside a single transaction that
// locks the active company rows, so concurrent assignments serialize
// instead of both reading the same "lowest" company.
package queue

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/ridelink/transferhub/internal/assignment/db"
	e "github.com/ridelink/transferhub/internal/assignment/errors"
	"github.com/ridelink/transferhub/internal/assignment/models"
	"github.com/ridelink/transferhub/internal/assignment/oplog"
	"go.uber.org/zap"
)

// Engine is the single owner of company queue state.
type Engine struct {
	repo *db.Repository
	log  *oplog.Sink
}

func NewEngine(repo *db.Repository, log *oplog.Sink) *Engine {
	return &Engine{repo: repo, log: log}
}

// SortByRotation orders companies the way the selector walks them:
// lowest queue position first, with null/zero positions sorting to the
// front (never positioned means next in line, and the position is
// repaired on selection). Ties break by earliest last_order_assigned,
// null meaning never served, then by id so the order is stable across
// runs. Diagnostics uses the same ordering so reports show the real
// rotation.
func SortByRotation(companies []models.Company) {
	sort.Slice(companies, func(i, j int) bool {
		return byQueueOrder(companies[i], companies[j])
	})
}

func byQueueOrder(a, b models.Company) bool {
	pa, pb := 0, 0
	if a.HasValidPosition() {
		pa = *a.QueuePosition
	}
	if b.HasValidPosition() {
		pb = *b.QueuePosition
	}
	if pa != pb {
		return pa < pb
	}
	la, lb := a.LastOrderAssigned, b.LastOrderAssigned
	switch {
	case la == nil && lb != nil:
		return true
	case la != nil && lb == nil:
		return false
	case la != nil && lb != nil && !la.Equal(*lb):
		return la.Before(*lb)
	}
	return a.ID.String() < b.ID.String()
}

// SelectNext returns the company that should receive the next order.
// The returned company always holds a valid queue position: a corrupt
// position is repaired before the row is returned.
func (q *Engine) SelectNext(ctx context.Context) (*models.Company, error) {
	var company *models.Company
	err := q.repo.WithTransaction(ctx, func(tx *db.Repository) error {
		next, err := q.selectNextLocked(ctx, tx)
		if err != nil {
			return err
		}
		company = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return company, nil
}

func (q *Engine) selectNextLocked(ctx context.Context, tx *db.Repository) (*models.Company, error) {
	companies, err := tx.ActiveCompaniesForUpdate(ctx)
	if err != nil {
		return nil, err
	}
	if len(companies) == 0 {
		return nil, e.ErrNoActiveCompanies
	}

	SortByRotation(companies)
	next := companies[0]

	if !next.HasValidPosition() {
		// Repair in place so callers always observe a valid position.
		max, err := tx.MaxQueuePosition(ctx)
		if err != nil {
			return nil, err
		}
		position := max + 1
		if err := tx.SetQueuePosition(ctx, next.ID, position); err != nil {
			return nil, err
		}
		next.QueuePosition = &position
		q.log.Warn(ctx, oplog.CategoryQueue, next.ID.String(),
			fmt.Sprintf("%v: repaired position of selected company", e.ErrQueueCorruption),
			zap.Int("position", position),
		)
	}
	return &next, nil
}

// Rotate moves the company to the back of the queue and stamps
// last_order_assigned. Runs in its own serialized transaction; callers
// already inside an assignment should use Assign instead.
func (q *Engine) Rotate(ctx context.Context, companyID uuid.UUID) error {
	return q.repo.WithTransaction(ctx, func(tx *db.Repository) error {
		// Lock the active set so concurrent rotations cannot compute
		// the same back-of-queue position.
		if _, err := tx.ActiveCompaniesForUpdate(ctx); err != nil {
			return err
		}
		return q.rotateLocked(ctx, tx, companyID)
	})
}

func (q *Engine) rotateLocked(ctx context.Context, tx *db.Repository, companyID uuid.UUID) error {
	max, err := tx.MaxQueuePosition(ctx)
	if err != nil {
		return err
	}
	return tx.RotateCompany(ctx, companyID, max+1, time.Now().UTC())
}

// Assign runs fn with the next company in line, inside the queue
// transaction, and rotates that company to the back when fn succeeds.
// Selection, fn's writes and the rotation commit or roll back as one
// unit.
func (q *Engine) Assign(ctx context.Context, fn func(tx *db.Repository, company *models.Company) error) (*models.Company, error) {
	var company *models.Company
	err := q.repo.WithTransaction(ctx, func(tx *db.Repository) error {
		next, err := q.selectNextLocked(ctx, tx)
		if err != nil {
			return err
		}
		if fn != nil {
			if err := fn(tx, next); err != nil {
				return err
			}
		}
		if err := q.rotateLocked(ctx, tx, next.ID); err != nil {
			return err
		}
		company = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	q.log.Info(ctx, oplog.CategoryQueue, company.ID.String(),
		"Company assigned and rotated to back of queue",
		zap.Intp("previous_position", company.QueuePosition),
	)
	return company, nil
}

// AssignCompany is the preset-company variant of Assign: the booking
// already names its company, so selection is skipped but the company
// still rotates to the back.
func (q *Engine) AssignCompany(ctx context.Context, companyID uuid.UUID, fn func(tx *db.Repository, company *models.Company) error) (*models.Company, error) {
	var company *models.Company
	err := q.repo.WithTransaction(ctx, func(tx *db.Repository) error {
		if _, err := tx.ActiveCompaniesForUpdate(ctx); err != nil {
			return err
		}
		chosen, err := tx.GetCompany(ctx, companyID)
		if err != nil {
			return err
		}
		if fn != nil {
			if err := fn(tx, chosen); err != nil {
				return err
			}
		}
		if err := q.rotateLocked(ctx, tx, chosen.ID); err != nil {
			return err
		}
		company = chosen
		return nil
	})
	if err != nil {
		return nil, err
	}
	q.log.Info(ctx, oplog.CategoryQueue, company.ID.String(),
		"Preselected company assigned and rotated to back of queue")
	return company, nil
}

// RepairInvalidPositions assigns sequential positions, starting past
// the current maximum, to every company whose position is null or
// zero, by id ascending. Idempotent: a healthy queue yields zero.
func (q *Engine) RepairInvalidPositions(ctx context.Context) (int, error) {
	var fixed int
	err := q.repo.WithTransaction(ctx, func(tx *db.Repository) error {
		// Serialize with in-flight assignments before touching rows
		// the selector may be reading.
		if _, err := tx.ActiveCompaniesForUpdate(ctx); err != nil {
			return err
		}
		broken, err := tx.InvalidPositionCompaniesForUpdate(ctx)
		if err != nil {
			return err
		}
		if len(broken) == 0 {
			return nil
		}
		max, err := tx.MaxQueuePosition(ctx)
		if err != nil {
			return err
		}
		for i := range broken {
			if err := tx.SetQueuePosition(ctx, broken[i].ID, max+1+i); err != nil {
				return err
			}
		}
		fixed = len(broken)
		return nil
	})
	if err != nil {
		return 0, err
	}
	if fixed > 0 {
		q.log.Warn(ctx, oplog.CategoryQueue, "",
			fmt.Sprintf("%v: repaired invalid queue positions", e.ErrQueueCorruption),
			zap.Int("fixed", fixed),
		)
	}
	return fixed, nil
}

// ResetAllPositions re-derives the whole ordering from company creation
// time and reassigns 1..N. Full reconciliation only; never invoked
// automatically.
func (q *Engine) ResetAllPositions(ctx context.Context) (int, error) {
	var count int
	err := q.repo.WithTransaction(ctx, func(tx *db.Repository) error {
		companies, err := tx.AllCompaniesByCreation(ctx)
		if err != nil {
			return err
		}
		for i := range companies {
			if err := tx.SetQueuePosition(ctx, companies[i].ID, i+1); err != nil {
				return err
			}
		}
		count = len(companies)
		return nil
	})
	if err != nil {
		return 0, err
	}
	q.log.Info(ctx, oplog.CategoryQueue, "",
		"Queue positions reset from creation order",
		zap.Int("companies", count),
	)
	return count, nil
}
