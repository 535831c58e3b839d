package pgx

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Listen issues `LISTEN channel` on conn and calls fn for every notification
// (triggered by `NOTIFY channel, 'payload'`). It blocks until ctx is done or
// the connection fails and returns the cause. conn must not be shared while
// Listen runs.
func Listen(ctx context.Context, conn *pgx.Conn, channel string, fn func(*pgconn.Notification)) error {
	if _, err := conn.Exec(ctx, "LISTEN "+Quote(channel)); err != nil {
		return fmt.Errorf("listen %s: %w", channel, err)
	}

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		if notification != nil {
			fn(notification)
		}
	}
}
