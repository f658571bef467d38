package postgres

import "github.com/jackc/pgx/v5/pgxpool"

// Store bundles every repository over one pool.
type Store struct {
	*ReservationRepository
	*AccountRepository
	*IdempotencyRepository
	*AuditRepository
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		ReservationRepository: NewReservationRepository(pool),
		AccountRepository:     NewAccountRepository(pool),
		IdempotencyRepository: NewIdempotencyRepository(pool),
		AuditRepository:       NewAuditRepository(pool),
	}
}
