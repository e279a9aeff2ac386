package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"checkout/internal/domain"
	"checkout/internal/repository/payments_repo"
)

const paymentColumns = `id, gateway_id, external_reference, amount, payment_method, status,
		payer_name, payer_email, payer_cpf, description, items,
		status_detail, rejection_reason, gateway_updated_at, created_at, updated_at`

type paymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *paymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) CreateTx(ctx context.Context, querier domain.Querier, payment *domain.Payment) error {
	query := `
		INSERT INTO payments (` + paymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err := querier.ExecContext(ctx, query,
		payment.ID,
		payment.GatewayID,
		payment.ExternalReference,
		payment.Amount,
		payment.PaymentMethod,
		payment.Status,
		payment.PayerName,
		payment.PayerEmail,
		payment.PayerCPF,
		payment.Description,
		nullString(payment.Items),
		payment.StatusDetail,
		payment.RejectionReason,
		nullTime(payment.GatewayUpdatedAt),
		payment.CreatedAt,
		payment.UpdatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code.Name() == "unique_violation" {
			return domain.ErrDuplicateReference
		}
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func (r *paymentRepository) GetByGatewayIDTx(ctx context.Context, querier domain.Querier, gatewayID string, forUpdate bool) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE gateway_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	return r.scanOne(querier.QueryRowContext(ctx, query, gatewayID), gatewayID)
}

func (r *paymentRepository) GetByExternalReferenceTx(ctx context.Context, querier domain.Querier, externalReference string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE external_reference = $1`
	return r.scanOne(querier.QueryRowContext(ctx, query, externalReference), externalReference)
}

func (r *paymentRepository) AttachGatewayTx(ctx context.Context, querier domain.Querier, id, gatewayID string, status domain.PaymentStatus) error {
	query := `
		UPDATE payments
		SET gateway_id = $1, status = $2, updated_at = $3
		WHERE id = $4
	`
	res, err := querier.ExecContext(ctx, query, gatewayID, status, time.Now(), id)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code.Name() == "unique_violation" {
			return domain.ErrDuplicateReference
		}
		return fmt.Errorf("failed to attach gateway id to payment %s: %w", id, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for gateway attach: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrPaymentNotFound
	}
	return nil
}

func (r *paymentRepository) UpdateFromGatewayTx(ctx context.Context, querier domain.Querier, upd payments_repo.GatewayFields) error {
	query := `
		UPDATE payments
		SET status = $1, status_detail = $2, rejection_reason = $3, gateway_updated_at = $4, updated_at = $5
		WHERE gateway_id = $6
	`
	res, err := querier.ExecContext(ctx, query,
		upd.Status,
		upd.StatusDetail,
		upd.RejectionReason,
		nullTime(upd.GatewayUpdatedAt),
		time.Now(),
		upd.GatewayID,
	)
	if err != nil {
		return fmt.Errorf("failed to update payment from gateway %s: %w", upd.GatewayID, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for gateway update: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrPaymentNotFound
	}
	return nil
}

func (r *paymentRepository) ListTx(ctx context.Context, querier domain.Querier, filter payments_repo.ListFilter) ([]domain.Payment, error) {
	where, args := buildFilter(filter)
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	args = append(args, limit, (page-1)*limit)

	query := fmt.Sprintf(`
		SELECT `+paymentColumns+`
		FROM payments
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)-1, len(args))

	rows, err := querier.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payments: %w", err)
	}
	return payments, nil
}

func (r *paymentRepository) CountTx(ctx context.Context, querier domain.Querier, filter payments_repo.ListFilter) (int, error) {
	where, args := buildFilter(filter)
	var count int
	err := querier.QueryRowContext(ctx, `SELECT COUNT(*) FROM payments `+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count payments: %w", err)
	}
	return count, nil
}

func buildFilter(filter payments_repo.ListFilter) (string, []any) {
	var conds []string
	var args []any
	if filter.Status != "" {
		args = append(args, strings.ToUpper(filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Email != "" {
		args = append(args, "%"+filter.Email+"%")
		conds = append(conds, fmt.Sprintf("payer_email ILIKE $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayment(row rowScanner) (*domain.Payment, error) {
	p := &domain.Payment{}
	var items sql.NullString
	var gatewayUpdatedAt sql.NullTime
	err := row.Scan(
		&p.ID,
		&p.GatewayID,
		&p.ExternalReference,
		&p.Amount,
		&p.PaymentMethod,
		&p.Status,
		&p.PayerName,
		&p.PayerEmail,
		&p.PayerCPF,
		&p.Description,
		&items,
		&p.StatusDetail,
		&p.RejectionReason,
		&gatewayUpdatedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Items = items.String
	if gatewayUpdatedAt.Valid {
		p.GatewayUpdatedAt = &gatewayUpdatedAt.Time
	}
	return p, nil
}

func (r *paymentRepository) scanOne(row *sql.Row, key string) (*domain.Payment, error) {
	p, err := scanPayment(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to get payment %s: %w", key, err)
	}
	return p, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
