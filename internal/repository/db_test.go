package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsMalformedID(t *testing.T) {
	badUUID := &pgconn.PgError{Code: "22P02", Message: `invalid input syntax for type uuid: "abc"`}

	assert.True(t, isMalformedID(badUUID))
	assert.True(t, isMalformedID(fmt.Errorf("get document: %w", badUUID)))
	assert.False(t, isMalformedID(&pgconn.PgError{Code: "23505"}))
	assert.False(t, isMalformedID(errors.New("connection reset")))
	assert.False(t, isMalformedID(nil))
}
