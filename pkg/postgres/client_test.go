package postgres

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/saaga0h/shelf-bridge/pkg/config"
)

func TestOperationsBeforeConnect(t *testing.T) {
	client := NewClient(config.NewConfig(), nil)
	ctx := context.Background()

	_, err := client.Exec(ctx, "SELECT 1")
	assert.ErrorIs(t, err, ErrNotConnected)

	_, err = client.Query(ctx, "SELECT 1")
	assert.ErrorIs(t, err, ErrNotConnected)

	assert.ErrorIs(t, client.Ping(ctx), ErrNotConnected)
	assert.ErrorIs(t, client.Transaction(ctx, func(*sql.Tx) error { return nil }), ErrNotConnected)

	status, err := client.HealthCheck(ctx)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.False(t, status.Connected)
	assert.Equal(t, "shelf", status.Database)

	assert.NoError(t, client.Disconnect())
}
