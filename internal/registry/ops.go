package registry

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// Upsert inserts or updates an account. The first account connected to an
// empty registry becomes active. When the account is marked active and the
// plan tier does not permit multiple actives, every other account is
// deactivated.
func (r *Registry) Upsert(ctx context.Context, a *Account) error {
	if !a.Mode.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMode, a.Mode)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return r.withTx(ctx, func(tx *sql.Tx) error {
		var count int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&count); err != nil {
			return fmt.Errorf("registry: counting accounts: %w", err)
		}

		isActive := a.IsActive
		if count == 0 {
			isActive = true
		}

		if isActive && !r.allowMultiActive {
			if _, err := tx.ExecContext(ctx, `UPDATE accounts SET is_active = 0 WHERE id != ?`, a.ID); err != nil {
				return fmt.Errorf("registry: deactivating others: %w", err)
			}
		}

		var snapPlan sql.NullInt64

		var snapMode, snapName sql.NullString

		if a.Snapshot != nil {
			snapPlan = sql.NullInt64{Int64: int64(a.Snapshot.Plan), Valid: true}
			snapMode = sql.NullString{String: string(a.Snapshot.Mode), Valid: true}
			snapName = sql.NullString{String: a.Snapshot.DisplayName, Valid: true}
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO accounts (id, email, display_name, is_active, folder_id, plan_limit,
				session_id, team_name, mode, snapshot_plan, snapshot_mode, snapshot_display_name, position)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
				COALESCE((SELECT MAX(position) + 1 FROM accounts), 0))
			ON CONFLICT(id) DO UPDATE SET
				email = excluded.email,
				display_name = excluded.display_name,
				is_active = excluded.is_active,
				folder_id = excluded.folder_id,
				plan_limit = excluded.plan_limit,
				session_id = excluded.session_id,
				team_name = excluded.team_name,
				mode = excluded.mode,
				snapshot_plan = excluded.snapshot_plan,
				snapshot_mode = excluded.snapshot_mode,
				snapshot_display_name = excluded.snapshot_display_name`,
			a.ID, a.Email, a.DisplayName, boolToInt(isActive), a.FolderID, a.PlanLimit,
			a.SessionID, a.TeamName, string(a.Mode), snapPlan, snapMode, snapName)
		if err != nil {
			return fmt.Errorf("registry: upserting account: %w", err)
		}

		r.logger.Info("account upserted",
			slog.String("id", a.ID),
			slog.String("mode", string(a.Mode)),
			slog.Bool("active", isActive),
		)

		return nil
	})
}

// Remove deletes an account. Removing the active account promotes the
// first remaining account (by connection order) so the registry is never
// left without an active entry while non-empty.
func (r *Registry) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("registry: deleting account: %w", err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("registry: rows affected: %w", err)
		}

		if n == 0 {
			return ErrNotFound
		}

		// Fallback promotion: if nothing is active, the first remaining
		// account becomes the sole active one.
		var activeCount int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts WHERE is_active = 1`).Scan(&activeCount); err != nil {
			return fmt.Errorf("registry: counting active accounts: %w", err)
		}

		if activeCount == 0 {
			if _, err := tx.ExecContext(ctx, `
				UPDATE accounts SET is_active = 1
				WHERE id = (SELECT id FROM accounts ORDER BY position LIMIT 1)`); err != nil {
				return fmt.Errorf("registry: promoting fallback account: %w", err)
			}
		}

		r.logger.Info("account removed", slog.String("id", id))

		return nil
	})
}

// SetActive switches the active account pointer to id. Under a single-
// active tier every other account is deactivated; under a multi-active
// tier the others keep their state.
func (r *Registry) SetActive(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.withTx(ctx, func(tx *sql.Tx) error {
		if !r.allowMultiActive {
			if _, err := tx.ExecContext(ctx, `UPDATE accounts SET is_active = 0 WHERE id != ?`, id); err != nil {
				return fmt.Errorf("registry: deactivating others: %w", err)
			}
		}

		res, err := tx.ExecContext(ctx, `UPDATE accounts SET is_active = 1 WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("registry: activating account: %w", err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("registry: rows affected: %w", err)
		}

		if n == 0 {
			return ErrNotFound
		}

		r.logger.Info("active account switched", slog.String("id", id))

		return nil
	})
}

// UpdateActive applies fn to the current active account record and
// persists the result. This is the read-modify-write primitive behind
// every active-account mutation, run under the registry mutex so
// concurrent mutations cannot interleave.
func (r *Registry) UpdateActive(ctx context.Context, fn func(*Account) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.updateActiveLocked(ctx, fn)
}

func (r *Registry) updateActiveLocked(ctx context.Context, fn func(*Account) error) error {
	a, err := r.Active(ctx)
	if err != nil {
		return err
	}

	before := append([]string(nil), a.InviteTokens...)

	if err := fn(a); err != nil {
		return err
	}

	if !a.Mode.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMode, a.Mode)
	}

	if len(a.InviteTokens) > a.PlanLimit {
		return ErrPlanLimit
	}

	return r.withTx(ctx, func(tx *sql.Tx) error {
		var snapPlan sql.NullInt64

		var snapMode, snapName sql.NullString

		if a.Snapshot != nil {
			snapPlan = sql.NullInt64{Int64: int64(a.Snapshot.Plan), Valid: true}
			snapMode = sql.NullString{String: string(a.Snapshot.Mode), Valid: true}
			snapName = sql.NullString{String: a.Snapshot.DisplayName, Valid: true}
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE accounts SET email = ?, display_name = ?, folder_id = ?, plan_limit = ?,
				session_id = ?, team_name = ?, mode = ?,
				snapshot_plan = ?, snapshot_mode = ?, snapshot_display_name = ?
			WHERE id = ?`,
			a.Email, a.DisplayName, a.FolderID, a.PlanLimit,
			a.SessionID, a.TeamName, string(a.Mode),
			snapPlan, snapMode, snapName, a.ID); err != nil {
			return fmt.Errorf("registry: updating account: %w", err)
		}

		if tokensEqual(before, a.InviteTokens) {
			return nil
		}

		// Token list changed: rewrite it.
		if _, err := tx.ExecContext(ctx, `DELETE FROM invite_tokens WHERE account_id = ?`, a.ID); err != nil {
			return fmt.Errorf("registry: clearing tokens: %w", err)
		}

		for _, tok := range a.InviteTokens {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO invite_tokens (token, account_id) VALUES (?, ?)`, tok, a.ID); err != nil {
				return fmt.Errorf("registry: inserting token: %w", err)
			}
		}

		return nil
	})
}

// AddInviteToken appends a token to the active account's list, enforcing
// the plan limit.
func (r *Registry) AddInviteToken(ctx context.Context, token string) error {
	return r.UpdateActive(ctx, func(a *Account) error {
		if len(a.InviteTokens) >= a.PlanLimit {
			return ErrPlanLimit
		}

		a.InviteTokens = append(a.InviteTokens, token)

		return nil
	})
}

// RemoveInviteToken removes a token from the active account's list.
// Callers perform the remote revocation first; this local mutation runs
// only after the remote side confirmed.
func (r *Registry) RemoveInviteToken(ctx context.Context, token string) error {
	return r.UpdateActive(ctx, func(a *Account) error {
		for i, tok := range a.InviteTokens {
			if tok == token {
				a.InviteTokens = append(a.InviteTokens[:i], a.InviteTokens[i+1:]...)
				return nil
			}
		}

		return ErrTokenNotFound
	})
}

// SaveFolder records the resolved cloud root folder on the active account.
func (r *Registry) SaveFolder(ctx context.Context, folderID string) error {
	return r.UpdateActive(ctx, func(a *Account) error {
		a.FolderID = folderID
		return nil
	})
}

// SetSessionID mirrors a freshly established session onto the active
// account.
func (r *Registry) SetSessionID(ctx context.Context, sessionID string) error {
	return r.UpdateActive(ctx, func(a *Account) error {
		a.SessionID = sessionID
		return nil
	})
}

// SetPlanLimit updates the active account's invite token allowance.
func (r *Registry) SetPlanLimit(ctx context.Context, limit int) error {
	return r.UpdateActive(ctx, func(a *Account) error {
		a.PlanLimit = limit
		return nil
	})
}

// JoinTeam transitions the active account into team_member mode, uploading
// under the admin's session and token from now on. The prior mode, plan,
// and display name are snapshotted exactly once so LeaveTeam can restore
// them; a repeated join keeps the original snapshot.
func (r *Registry) JoinTeam(ctx context.Context, sessionID, token, teamName string) error {
	return r.UpdateActive(ctx, func(a *Account) error {
		if a.Snapshot == nil {
			a.Snapshot = &ModeSnapshot{
				Plan:        a.PlanLimit,
				Mode:        a.Mode,
				DisplayName: a.DisplayName,
			}
		}

		a.Mode = ModeTeamMember
		a.SessionID = sessionID
		a.TeamName = teamName
		a.InviteTokens = []string{token}
		a.PlanLimit = max(a.PlanLimit, 1)

		return nil
	})
}

// LeaveTeam restores the identity snapshotted by JoinTeam and consumes the
// snapshot. Returns ErrNoSnapshot when the account never joined a team.
func (r *Registry) LeaveTeam(ctx context.Context) error {
	return r.UpdateActive(ctx, func(a *Account) error {
		if a.Snapshot == nil {
			return ErrNoSnapshot
		}

		a.Mode = a.Snapshot.Mode
		a.PlanLimit = a.Snapshot.Plan
		a.DisplayName = a.Snapshot.DisplayName
		a.Snapshot = nil
		a.SessionID = ""
		a.TeamName = ""
		a.InviteTokens = nil

		return nil
	})
}

// withTx runs fn inside a transaction, rolling back on error.
func (r *Registry) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("registry: beginning transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			r.logger.Error("rollback failed", slog.String("error", rbErr.Error()))
		}

		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("registry: committing transaction: %w", err)
	}

	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}

	return 0
}

func tokensEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}
