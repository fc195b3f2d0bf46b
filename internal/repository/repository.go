package repository

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound es el resultado vacio distinguido de todas las busquedas.
var ErrNotFound = errors.New("record not found")

// ErrAlreadyExists indica una violacion de unicidad en el store.
var ErrAlreadyExists = errors.New("record already exists")

// ErrInvalidRecord indica que el registro no cumple las restricciones del store.
var ErrInvalidRecord = errors.New("record violates store constraints")

const (
	pgUniqueViolation = "23505"
	pgCheckViolation  = "23514"
)

func translatePgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return ErrAlreadyExists
		case pgCheckViolation:
			return ErrInvalidRecord
		}
	}
	return err
}

// Stores agrupa los repositorios que necesita el servicio de auth.
type Stores struct {
	Users  UserRepository
	Tokens RefreshTokenRepository
	Apps   AppRepository
}

func NewPgStores(pool *pgxpool.Pool) Stores {
	return Stores{
		Users:  NewPgUserRepository(pool),
		Tokens: NewPgRefreshTokenRepository(pool),
		Apps:   NewPgAppRepository(pool),
	}
}
