package database

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restaurant-orders/internal/database/dbtest"
)

func TestWithTx(t *testing.T) {
	boom := errors.New("insert failed")

	tests := []struct {
		name          string
		db            *dbtest.DB
		fn            func(tx pgx.Tx) error
		wantErr       error
		wantCommits   int
		wantRollbacks int
	}{
		{
			name: "commits on success",
			db:   &dbtest.DB{},
			fn: func(tx pgx.Tx) error {
				_, err := tx.Exec(context.Background(), "INSERT 1")
				return err
			},
			wantCommits: 1,
		},
		{
			name:          "rolls back when fn fails",
			db:            &dbtest.DB{},
			fn:            func(pgx.Tx) error { return boom },
			wantErr:       boom,
			wantRollbacks: 1,
		},
		{
			name:    "reports commit failure",
			db:      &dbtest.DB{CommitErr: boom},
			fn:      func(pgx.Tx) error { return nil },
			wantErr: boom,
		},
		{
			name: "begin failure skips fn",
			db:   &dbtest.DB{BeginErr: boom},
			fn: func(tx pgx.Tx) error {
				_, err := tx.Exec(context.Background(), "INSERT 1")
				return err
			},
			wantErr: boom,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := WithTx(context.Background(), tt.db, tt.fn)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), err.Error())
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantCommits, tt.db.Commits)
			assert.Equal(t, tt.wantRollbacks, tt.db.Rollbacks)
			if tt.db.BeginErr != nil {
				assert.Empty(t, tt.db.Calls)
			}
		})
	}
}
