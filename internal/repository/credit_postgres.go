package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"tts-server/internal/models"
)

// uniqueViolationCode - код ошибки PostgreSQL для нарушения unique-констрейнта.
const uniqueViolationCode = "23505"

// Compile-time check
var _ CreditRepository = (*pgCreditRepository)(nil)

type pgCreditRepository struct {
	pool   TxStarter
	db     DBTX
	logger *zap.Logger
}

// NewPgCreditRepository создает репозиторий леджера кредитов.
// pool нужен для транзакции "запись в леджер + списание баланса".
func NewPgCreditRepository(pool TxStarter, db DBTX, logger *zap.Logger) CreditRepository {
	return &pgCreditRepository{
		pool:   pool,
		db:     db,
		logger: logger.Named("PgCreditRepo"),
	}
}

// TryDeductCredits выполняет идемпотентное списание кредитов одной транзакцией:
// вставка в леджер (unique по idempotency_key) + уменьшение баланса.
// Повторная попытка с тем же ключом ловится unique-констрейнтом на уровне БД,
// транзакция откатывается и возвращается applied=false. Дубликат - не ошибка.
func (r *pgCreditRepository) TryDeductCredits(ctx context.Context, userID uint64, credits int64, idempotencyKey string, generationID uuid.UUID) (bool, error) {
	log := r.logger.With(
		zap.Uint64("userID", userID),
		zap.Int64("credits", credits),
		zap.String("idempotencyKey", idempotencyKey))

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("ошибка открытия транзакции списания: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	insertQuery := `
        INSERT INTO credit_deductions (id, user_id, idempotency_key, generation_id, credits, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `
	_, err = tx.Exec(ctx, insertQuery,
		uuid.New(),
		userID,
		idempotencyKey,
		generationID,
		credits,
		time.Now().UTC(),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			// Запись с этим ключом уже существует: списание уже применялось
			log.Info("Credit deduction already exists for idempotency key")
			return false, nil
		}
		log.Error("Failed to insert credit deduction", zap.Error(err))
		return false, fmt.Errorf("ошибка записи в леджер списаний: %w", err)
	}

	updateQuery := `
        UPDATE users
        SET credit_balance = credit_balance - $2
        WHERE id = $1
    `
	tag, err := tx.Exec(ctx, updateQuery, userID, credits)
	if err != nil {
		log.Error("Failed to decrement user balance", zap.Error(err))
		return false, fmt.Errorf("ошибка списания баланса пользователя %d: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		// Пользователь удален: запись в леджере все равно фиксируем (аудит),
		// баланс уменьшать некому.
		log.Warn("User not found while deducting credits, ledger row is still recorded")
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("ошибка коммита транзакции списания: %w", err)
	}

	log.Info("Credits deducted")
	return true, nil
}

func (r *pgCreditRepository) GetBalance(ctx context.Context, userID uint64) (int64, error) {
	var balance int64
	err := r.db.QueryRow(ctx, `SELECT credit_balance FROM users WHERE id = $1`, userID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, models.ErrUserNotFound
		}
		return 0, fmt.Errorf("ошибка получения баланса пользователя %d: %w", userID, err)
	}
	return balance, nil
}
