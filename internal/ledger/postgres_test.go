package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/example/groupmsg/internal/db"
	"github.com/example/groupmsg/internal/migrate"
)

func exercisePostgres(t *testing.T, url string) {
	ctx := context.Background()
	d, err := db.Open(ctx, url)
	require.NoError(t, err)
	defer d.Close()

	require.NoError(t, d.Ping(ctx))
	_, err = migrate.Up(ctx, d)
	require.NoError(t, err)
	require.NoError(t, d.Exec(ctx, `TRUNCATE delivery_attempts`))

	exercise(t, NewPostgres(d))
}
