package tool

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// SupportDB wraps the read-only customer support database and exposes its
// lookups as tools for specialized agents.
type SupportDB struct {
	db *sql.DB
}

// OpenSupportDB opens the SQLite support database at path.
func OpenSupportDB(path string) (*SupportDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open support db: %w", err)
	}
	return &SupportDB{db: db}, nil
}

// NewSupportDB wraps an existing database handle, useful for tests.
func NewSupportDB(db *sql.DB) *SupportDB {
	return &SupportDB{db: db}
}

// Close releases the underlying database handle.
func (s *SupportDB) Close() error { return s.db.Close() }

// Tools returns the support lookup tools.
func (s *SupportDB) Tools() []Tool {
	return []Tool{
		s.customerOverviewTool(),
		s.recentOperationsTool(),
		s.activeIncidentsTool(),
	}
}

type customerOverviewArgs struct {
	UserID string `json:"user_id" description:"Customer user id"`
}

func (s *SupportDB) customerOverviewTool() *FunctionTool {
	return NewFunctionToolFromStruct(
		"get_customer_overview",
		"Get a customer's registration, products, account and login status",
		customerOverviewArgs{},
		func(ctx context.Context, args map[string]any) (*Result, error) {
			userID := stringArg(args, "user_id")

			row := s.db.QueryRowContext(ctx, `
				SELECT u.full_name, u.email, u.phone, u.status,
				       m.legal_name, m.trade_name, m.segment, m.onboarding_status,
				       p.maquininha, p.tap_to_pay, p.pix, p.boleto, p.link_pagamento, p.conta_digital, p.emprestimo,
				       a.balance_available, a.balance_blocked, a.transfers_enabled, COALESCE(a.block_reason, ''),
				       s.failed_login_attempts, s.is_locked, COALESCE(s.lock_reason, '')
				FROM users u
				JOIN merchants m ON m.user_id = u.id
				JOIN products_enabled p ON p.merchant_id = m.id
				JOIN account_status a ON a.merchant_id = m.id
				JOIN auth_status s ON s.user_id = u.id
				WHERE u.id = ?`, userID)

			var (
				fullName, email, phone, status            string
				legalName, tradeName, segment, onboarding string
				maquininha, tapToPay, pix, boleto         bool
				linkPagamento, contaDigital, emprestimo   bool
				balanceAvailable, balanceBlocked          float64
				transfersEnabled, isLocked                bool
				blockReason, lockReason                   string
				failedLogins                              int
			)
			err := row.Scan(&fullName, &email, &phone, &status,
				&legalName, &tradeName, &segment, &onboarding,
				&maquininha, &tapToPay, &pix, &boleto, &linkPagamento, &contaDigital, &emprestimo,
				&balanceAvailable, &balanceBlocked, &transfersEnabled, &blockReason,
				&failedLogins, &isLocked, &lockReason)
			if err == sql.ErrNoRows {
				return ErrorResult("No customer found with user_id: " + userID), nil
			}
			if err != nil {
				return nil, fmt.Errorf("customer overview query: %w", err)
			}

			var b strings.Builder
			fmt.Fprintf(&b, "Customer: %s (%s, %s) status=%s\n", fullName, email, phone, status)
			fmt.Fprintf(&b, "Merchant: %s (%s) segment=%s onboarding=%s\n", legalName, tradeName, segment, onboarding)
			fmt.Fprintf(&b, "Products: maquininha=%t tap_to_pay=%t pix=%t boleto=%t link_pagamento=%t conta_digital=%t emprestimo=%t\n",
				maquininha, tapToPay, pix, boleto, linkPagamento, contaDigital, emprestimo)
			fmt.Fprintf(&b, "Account: balance_available=%.2f balance_blocked=%.2f transfers_enabled=%t", balanceAvailable, balanceBlocked, transfersEnabled)
			if blockReason != "" {
				fmt.Fprintf(&b, " block_reason=%s", blockReason)
			}
			fmt.Fprintf(&b, "\nLogin: failed_attempts=%d locked=%t", failedLogins, isLocked)
			if lockReason != "" {
				fmt.Fprintf(&b, " lock_reason=%s", lockReason)
			}
			return NewResult(b.String()), nil
		},
	)
}

type recentOperationsArgs struct {
	UserID string `json:"user_id" description:"Customer user id"`
	Limit  *int   `json:"limit,omitempty" description:"Maximum operations to return (default 10)"`
}

func (s *SupportDB) recentOperationsTool() *FunctionTool {
	return NewFunctionToolFromStruct(
		"get_recent_operations",
		"Get a customer's recent transfers and device activity",
		recentOperationsArgs{},
		func(ctx context.Context, args map[string]any) (*Result, error) {
			userID := stringArg(args, "user_id")
			limit := 10
			if v, ok := args["limit"].(float64); ok && v > 0 {
				limit = int(v)
			}

			rows, err := s.db.QueryContext(ctx, `
				SELECT t.id, t.amount, t.status, COALESCE(t.failure_reason, ''), t.created_at
				FROM transfers t
				JOIN merchants m ON m.id = t.merchant_id
				WHERE m.user_id = ?
				ORDER BY t.created_at DESC
				LIMIT ?`, userID, limit)
			if err != nil {
				return nil, fmt.Errorf("transfers query: %w", err)
			}
			defer rows.Close()

			var b strings.Builder
			b.WriteString("Recent transfers:\n")
			found := false
			for rows.Next() {
				var (
					id, status, failureReason, createdAt string
					amount                               float64
				)
				if err := rows.Scan(&id, &amount, &status, &failureReason, &createdAt); err != nil {
					return nil, fmt.Errorf("transfers scan: %w", err)
				}
				found = true
				fmt.Fprintf(&b, "- %s: %.2f %s", createdAt, amount, status)
				if failureReason != "" {
					fmt.Fprintf(&b, " (%s)", failureReason)
				}
				b.WriteString("\n")
			}
			if err := rows.Err(); err != nil {
				return nil, fmt.Errorf("transfers rows: %w", err)
			}
			if !found {
				b.WriteString("- none\n")
			}

			devRows, err := s.db.QueryContext(ctx, `
				SELECT d.type, d.model, d.status, COALESCE(d.last_seen_at, '')
				FROM devices d
				JOIN merchants m ON m.id = d.merchant_id
				WHERE m.user_id = ?
				ORDER BY d.activated_at DESC`, userID)
			if err != nil {
				return nil, fmt.Errorf("devices query: %w", err)
			}
			defer devRows.Close()

			b.WriteString("Devices:\n")
			found = false
			for devRows.Next() {
				var devType, devModel, status, lastSeen string
				if err := devRows.Scan(&devType, &devModel, &status, &lastSeen); err != nil {
					return nil, fmt.Errorf("devices scan: %w", err)
				}
				found = true
				fmt.Fprintf(&b, "- %s %s: %s", devType, devModel, status)
				if lastSeen != "" {
					fmt.Fprintf(&b, " last_seen=%s", lastSeen)
				}
				b.WriteString("\n")
			}
			if err := devRows.Err(); err != nil {
				return nil, fmt.Errorf("devices rows: %w", err)
			}
			if !found {
				b.WriteString("- none\n")
			}

			return NewResult(strings.TrimRight(b.String(), "\n")), nil
		},
	)
}

type activeIncidentsArgs struct {
	Scope string `json:"scope,omitempty" description:"Optional incident scope filter, e.g. pix or transfers"`
}

func (s *SupportDB) activeIncidentsTool() *FunctionTool {
	return NewFunctionToolFromStruct(
		"get_active_incidents",
		"List currently active platform incidents",
		activeIncidentsArgs{},
		func(ctx context.Context, args map[string]any) (*Result, error) {
			query := `SELECT scope, description, started_at FROM incidents WHERE active = 1`
			var queryArgs []any
			if scope := stringArg(args, "scope"); scope != "" {
				query += ` AND scope = ?`
				queryArgs = append(queryArgs, scope)
			}
			query += ` ORDER BY started_at DESC`

			rows, err := s.db.QueryContext(ctx, query, queryArgs...)
			if err != nil {
				return nil, fmt.Errorf("incidents query: %w", err)
			}
			defer rows.Close()

			var b strings.Builder
			for rows.Next() {
				var scope, description, startedAt string
				if err := rows.Scan(&scope, &description, &startedAt); err != nil {
					return nil, fmt.Errorf("incidents scan: %w", err)
				}
				fmt.Fprintf(&b, "- [%s] %s (since %s)\n", scope, description, startedAt)
			}
			if err := rows.Err(); err != nil {
				return nil, fmt.Errorf("incidents rows: %w", err)
			}

			if b.Len() == 0 {
				return NewResult("No active incidents"), nil
			}
			return NewResult("Active incidents:\n" + strings.TrimRight(b.String(), "\n")), nil
		},
	)
}
