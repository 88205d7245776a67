package storage

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"

	"leaguewatch/internal/feed"
	"leaguewatch/internal/outbox"
)

func (s *sqlStore) InsertMessages(ctx context.Context, msgs []outbox.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx, s.q(`
			INSERT INTO outbox(id, guild_id, channel_id, content, league_id, feed_type, event_at, created_at, sort_at, sent_at)
			VALUES(?,?,?,?,?,?,?,?,?,?)`))
		if err != nil {
			return errors.Wrap(err, "prepare outbox insert")
		}
		defer stmt.Close()
		for _, m := range msgs {
			content, err := sonic.MarshalString(m.Content)
			if err != nil {
				return errors.Wrapf(err, "encode message %s", m.ID)
			}
			if _, err := stmt.ExecContext(ctx,
				m.ID, m.GuildID, m.ChannelID, content, m.LeagueID, string(m.Type),
				nullMillis(m.EventAt), m.CreatedAt.UnixMilli(), m.SortTime().UnixMilli(), nullMillis(m.SentAt),
			); err != nil {
				return errors.Wrapf(err, "insert message %s", m.ID)
			}
		}
		return nil
	})
}

func (s *sqlStore) PendingMessages(ctx context.Context, limit int) ([]outbox.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []outboxRow
	if err := s.db.SelectContext(ctx, &rows, s.q(`
		SELECT id, guild_id, channel_id, content, league_id, feed_type, event_at, created_at, sort_at, sent_at, failed_at, fail_reason
		FROM outbox WHERE sent_at IS NULL AND failed_at IS NULL
		ORDER BY sort_at, guild_id, created_at, id
		LIMIT ?`), limit); err != nil {
		return nil, errors.Wrap(err, "select pending messages")
	}
	out := make([]outbox.Message, 0, len(rows))
	for _, r := range rows {
		m := outbox.Message{
			ID:        r.ID,
			GuildID:   r.GuildID,
			ChannelID: r.ChannelID,
			LeagueID:  r.LeagueID,
			Type:      feed.Type(r.FeedType),
			EventAt:   fromNullMillis(r.EventAt),
			CreatedAt: fromMillis(r.CreatedAt),
			SentAt:    fromNullMillis(r.SentAt),
			FailedAt:  fromNullMillis(r.FailedAt),
		}
		m.FailReason = r.Reason
		if err := sonic.UnmarshalString(r.Content, &m.Content); err != nil {
			return nil, errors.Wrapf(err, "decode message %s", r.ID)
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *sqlStore) MarkSent(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	q, args, err := s.in(`UPDATE outbox SET sent_at = ? WHERE sent_at IS NULL AND id IN (?)`, at.UnixMilli(), ids)
	if err != nil {
		return errors.Wrap(err, "build mark sent")
	}
	_, err = s.db.ExecContext(ctx, q, args...)
	return errors.Wrap(err, "mark sent")
}

func (s *sqlStore) MarkFailed(ctx context.Context, ids []string, at time.Time, reason string) error {
	if len(ids) == 0 {
		return nil
	}
	q, args, err := s.in(`UPDATE outbox SET failed_at = ?, fail_reason = ? WHERE sent_at IS NULL AND failed_at IS NULL AND id IN (?)`,
		at.UnixMilli(), reason, ids)
	if err != nil {
		return errors.Wrap(err, "build mark failed")
	}
	_, err = s.db.ExecContext(ctx, q, args...)
	return errors.Wrap(err, "mark failed")
}
