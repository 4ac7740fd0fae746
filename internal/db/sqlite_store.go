package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/liran1305/Estimate-sub000/internal/services"
)

// timeLayout is fixed width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		// rows imported by hand may carry plain RFC3339
		return time.Parse(time.RFC3339Nano, s)
	}
	return t, nil
}

// Open opens the SQLite database at path. Every transaction starts with
// BEGIN IMMEDIATE so concurrent writers serialize instead of failing on upgrade.
// The special path ":memory:" opens a private in-memory database.
func Open(path string) (*sql.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	var dsn string
	memory := path == ":memory:"
	if memory {
		dsn = fmt.Sprintf("file:mem-%s?mode=memory&cache=shared&_txlock=immediate&_busy_timeout=5000&_foreign_keys=on", uuid.NewString())
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_txlock=immediate&_busy_timeout=5000&_foreign_keys=on&_synchronous=NORMAL", filepath.ToSlash(path))
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if memory {
		// a shared-cache memory database reports table locks instead of waiting
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

// SQLiteStore implements services.Store.
type SQLiteStore struct {
	db  *sql.DB
	log *slog.Logger
}

var _ services.Store = (*SQLiteStore)(nil)

func NewSQLiteStore(db *sql.DB, log *slog.Logger) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("nil db")
	}
	if log == nil {
		log = slog.Default()
	}
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("apply sqlite pragma %q: %w", stmt, err)
		}
	}
	return &SQLiteStore{db: db, log: log.With("component", "sqlite")}, nil
}

func (s *SQLiteStore) DB() *sql.DB { return s.db }

func (s *SQLiteStore) logErr(prefix string, err error) {
	if err != nil {
		s.log.Error("sqlite store: "+prefix, "error", err)
	}
}

// InTx runs fn in one IMMEDIATE transaction. An error from fn, or a panic,
// rolls everything back.
func (s *SQLiteStore) InTx(ctx context.Context, fn func(tx services.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil && !errors.Is(rerr, sql.ErrTxDone) {
				s.logErr("rollback", rerr)
			}
			return
		}
		if err = tx.Commit(); err != nil {
			s.logErr("commit", err)
			err = fmt.Errorf("commit: %w", err)
		}
	}()
	return fn(&sqliteTx{tx: tx})
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type sqliteTx struct {
	tx *sql.Tx
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func timePtr(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func toNullString(s string) sql.NullString {
	if strings.TrimSpace(s) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func encodeJSON(v any) (sql.NullString, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	if string(b) == "null" {
		return sql.NullString{}, nil
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func decodeJSON(ns sql.NullString, dst any) error {
	if !ns.Valid || strings.TrimSpace(ns.String) == "" {
		return nil
	}
	return json.Unmarshal([]byte(ns.String), dst)
}

// users

func getUser(ctx context.Context, q queryer, userID string) (*services.User, error) {
	var (
		u                 services.User
		created           string
		lastViol, lockedU sql.NullString
	)
	err := q.QueryRowContext(ctx, `SELECT id, name, created_at, violation_count, last_violation_at, locked_until
FROM users WHERE id = ?`, userID).Scan(&u.ID, &u.Name, &created, &u.Trust.ViolationCount, &lastViol, &lockedU)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if u.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("user %s created_at: %w", userID, err)
	}
	if u.Trust.LastViolationAt, err = timePtr(lastViol); err != nil {
		return nil, fmt.Errorf("user %s last_violation_at: %w", userID, err)
	}
	if u.Trust.LockedUntil, err = timePtr(lockedU); err != nil {
		return nil, fmt.Errorf("user %s locked_until: %w", userID, err)
	}
	return &u, nil
}

func (t *sqliteTx) GetUser(ctx context.Context, userID string) (*services.User, error) {
	return getUser(ctx, t.tx, userID)
}

func (t *sqliteTx) SaveTrustState(ctx context.Context, userID string, st services.UserTrustState) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE users SET violation_count = ?, last_violation_at = ?, locked_until = ? WHERE id = ?`,
		st.ViolationCount, nullTime(st.LastViolationAt), nullTime(st.LockedUntil), userID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("save trust state: user %s missing", userID)
	}
	return nil
}

// AddUser inserts a user or updates the name of an existing one. Users are owned
// by the sign-in collaborator; this exists for imports and local tooling.
func (s *SQLiteStore) AddUser(ctx context.Context, u services.User) error {
	if strings.TrimSpace(u.ID) == "" {
		return errors.New("user id required")
	}
	created := u.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO users(id, name, created_at) VALUES(?, ?, ?)
ON CONFLICT(id) DO UPDATE SET name = excluded.name`, u.ID, u.Name, formatTime(created))
	return err
}

// GetUser reads a user outside a transaction.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*services.User, error) {
	return getUser(ctx, s.db, userID)
}

// violations

func (t *sqliteTx) InsertViolation(ctx context.Context, v services.ViolationRecord) error {
	_, err := t.tx.ExecContext(ctx, `INSERT INTO violation_records(id, user_id, violation_type, review_session_id, time_spent_seconds, occurred_at)
VALUES(?, ?, ?, ?, ?, ?)`, v.ID, v.UserID, string(v.ViolationType), toNullString(v.ReviewSessionID), nullInt(v.TimeSpentSeconds), formatTime(v.OccurredAt))
	return err
}

func (t *sqliteTx) DeleteViolations(ctx context.Context, userID string) (int, error) {
	res, err := t.tx.ExecContext(ctx, "DELETE FROM violation_records WHERE user_id = ?", userID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// ListViolations returns a user's violation history, oldest first.
func (s *SQLiteStore) ListViolations(ctx context.Context, userID string) ([]services.ViolationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, user_id, violation_type, review_session_id, time_spent_seconds, occurred_at
FROM violation_records WHERE user_id = ? ORDER BY occurred_at ASC, id ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []services.ViolationRecord
	for rows.Next() {
		var (
			v        services.ViolationRecord
			vt       string
			session  sql.NullString
			spent    sql.NullInt64
			occurred string
		)
		if err := rows.Scan(&v.ID, &v.UserID, &vt, &session, &spent, &occurred); err != nil {
			return nil, err
		}
		v.ViolationType = services.ViolationType(vt)
		v.ReviewSessionID = session.String
		v.TimeSpentSeconds = intPtr(spent)
		if v.OccurredAt, err = parseTime(occurred); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// reviews

type reviewRow struct {
	id, revieweeID, interaction string
	body, highSignal            sql.NullString
	workAgain, promote          sql.NullInt64
	tags, freeText              sql.NullString
	created                     string
}

func (r reviewRow) meta(source services.ReviewSource) (services.ReviewMeta, error) {
	m := services.ReviewMeta{
		ID:              r.id,
		Source:          source,
		RevieweeID:      r.revieweeID,
		InteractionType: r.interaction,
		WouldWorkAgain:  intPtr(r.workAgain),
		WouldPromote:    intPtr(r.promote),
	}
	if err := decodeJSON(r.tags, &m.StrengthTags); err != nil {
		return m, fmt.Errorf("review %s strength_tags: %w", r.id, err)
	}
	if err := decodeJSON(r.freeText, &m.FreeText); err != nil {
		return m, fmt.Errorf("review %s free_text: %w", r.id, err)
	}
	var err error
	if m.CreatedAt, err = parseTime(r.created); err != nil {
		return m, fmt.Errorf("review %s created_at: %w", r.id, err)
	}
	return m, nil
}

// ListReviews is the logical UNION ALL of both review tables, legacy rows first.
func (t *sqliteTx) ListReviews(ctx context.Context, revieweeID string) ([]services.RawReview, error) {
	legacy, err := t.listLegacy(ctx, revieweeID)
	if err != nil {
		return nil, err
	}
	anon, err := t.listAnonymous(ctx, revieweeID)
	if err != nil {
		return nil, err
	}
	return append(legacy, anon...), nil
}

func (t *sqliteTx) listLegacy(ctx context.Context, revieweeID string) ([]services.RawReview, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT id, reviewee_id, interaction_type, scores, would_work_again, would_promote, strength_tags, free_text, created_at
FROM legacy_reviews WHERE reviewee_id = ? ORDER BY created_at ASC, id ASC`, revieweeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []services.RawReview
	for rows.Next() {
		var r reviewRow
		if err := rows.Scan(&r.id, &r.revieweeID, &r.interaction, &r.body, &r.workAgain, &r.promote, &r.tags, &r.freeText, &r.created); err != nil {
			return nil, err
		}
		meta, err := r.meta(services.SourceLegacy)
		if err != nil {
			return nil, err
		}
		var scores services.LegacyScores
		if err := decodeJSON(r.body, &scores); err != nil {
			return nil, fmt.Errorf("legacy review %s scores: %w", r.id, err)
		}
		if scores == nil {
			scores = services.LegacyScores{}
		}
		out = append(out, services.RawReview{ReviewMeta: meta, Body: scores})
	}
	return out, rows.Err()
}

func (t *sqliteTx) listAnonymous(ctx context.Context, revieweeID string) ([]services.RawReview, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT id, reviewee_id, interaction_type, behavioral_answers, high_signal_answers, would_work_again, would_promote, strength_tags, free_text, created_at
FROM anonymous_reviews WHERE reviewee_id = ? ORDER BY created_at ASC, id ASC`, revieweeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []services.RawReview
	for rows.Next() {
		var r reviewRow
		if err := rows.Scan(&r.id, &r.revieweeID, &r.interaction, &r.body, &r.highSignal, &r.workAgain, &r.promote, &r.tags, &r.freeText, &r.created); err != nil {
			return nil, err
		}
		meta, err := r.meta(services.SourceAnonymous)
		if err != nil {
			return nil, err
		}
		var body services.BehavioralAnswers
		if err := decodeJSON(r.body, &body.Answers); err != nil {
			return nil, fmt.Errorf("anonymous review %s answers: %w", r.id, err)
		}
		if err := decodeJSON(r.highSignal, &body.HighSignal); err != nil {
			return nil, fmt.Errorf("anonymous review %s high signal: %w", r.id, err)
		}
		out = append(out, services.RawReview{ReviewMeta: meta, Body: body})
	}
	return out, rows.Err()
}

func encodeMeta(m services.ReviewMeta) (tags, freeText sql.NullString, err error) {
	if len(m.StrengthTags) > 0 {
		if tags, err = encodeJSON(m.StrengthTags); err != nil {
			return
		}
	}
	if len(m.FreeText) > 0 {
		freeText, err = encodeJSON(m.FreeText)
	}
	return
}

func (t *sqliteTx) InsertAnonymousReview(ctx context.Context, r services.RawReview) error {
	body, ok := r.Body.(services.BehavioralAnswers)
	if !ok {
		return fmt.Errorf("anonymous review %s: unsupported body %T", r.ID, r.Body)
	}
	answers, err := encodeJSON(body.Answers)
	if err != nil {
		return err
	}
	if !answers.Valid {
		answers = sql.NullString{String: "{}", Valid: true}
	}
	var highSignal sql.NullString
	if len(body.HighSignal) > 0 {
		if highSignal, err = encodeJSON(body.HighSignal); err != nil {
			return err
		}
	}
	tags, freeText, err := encodeMeta(r.ReviewMeta)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, `INSERT INTO anonymous_reviews(id, reviewee_id, interaction_type, behavioral_answers, high_signal_answers, would_work_again, would_promote, strength_tags, free_text, created_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, r.ID, r.RevieweeID, r.InteractionType, answers, highSignal,
		nullInt(r.WouldWorkAgain), nullInt(r.WouldPromote), tags, freeText, formatTime(r.CreatedAt))
	return err
}

// ImportLegacyReview writes a schema 1 review. Only imports use it; the live
// submission path writes anonymous reviews exclusively.
func (s *SQLiteStore) ImportLegacyReview(ctx context.Context, r services.RawReview) error {
	scores, ok := r.Body.(services.LegacyScores)
	if !ok {
		return fmt.Errorf("legacy review %s: unsupported body %T", r.ID, r.Body)
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	body, err := encodeJSON(scores)
	if err != nil {
		return err
	}
	if !body.Valid {
		body = sql.NullString{String: "{}", Valid: true}
	}
	tags, freeText, err := encodeMeta(r.ReviewMeta)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO legacy_reviews(id, reviewee_id, interaction_type, scores, would_work_again, would_promote, strength_tags, free_text, created_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`, r.ID, r.RevieweeID, r.InteractionType, body,
		nullInt(r.WouldWorkAgain), nullInt(r.WouldPromote), tags, freeText, formatTime(r.CreatedAt))
	return err
}

// scores

func (t *sqliteTx) UpsertDimensionScores(ctx context.Context, revieweeID string, scores []services.DimensionScore) error {
	stmt, err := t.tx.PrepareContext(ctx, `INSERT INTO dimension_scores(reviewee_id, dimension, raw_score, level, percentile, review_count, updated_at)
VALUES(?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(reviewee_id, dimension) DO UPDATE SET
    raw_score = excluded.raw_score,
    level = excluded.level,
    percentile = excluded.percentile,
    review_count = excluded.review_count,
    updated_at = excluded.updated_at`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, sc := range scores {
		if _, err := stmt.ExecContext(ctx, revieweeID, string(sc.Dimension), sc.RawScore, string(sc.Level), sc.Percentile, sc.ReviewCount, formatTime(sc.UpdatedAt)); err != nil {
			return fmt.Errorf("upsert %s: %w", sc.Dimension, err)
		}
	}
	return nil
}

func (t *sqliteTx) UpsertScoreSummary(ctx context.Context, sum services.UserScoreSummary) error {
	_, err := t.tx.ExecContext(ctx, `INSERT INTO user_score_summaries(user_id, qualitative_badge, startup_hire_pct, harder_job_pct, work_again_absolutely_pct, updated_at)
VALUES(?, ?, ?, ?, ?, ?)
ON CONFLICT(user_id) DO UPDATE SET
    qualitative_badge = excluded.qualitative_badge,
    startup_hire_pct = excluded.startup_hire_pct,
    harder_job_pct = excluded.harder_job_pct,
    work_again_absolutely_pct = excluded.work_again_absolutely_pct,
    updated_at = excluded.updated_at`,
		sum.UserID, string(sum.QualitativeBadge), nullInt(sum.StartupHirePct), nullInt(sum.HarderJobPct),
		nullInt(sum.WorkAgainAbsolutelyPct), formatTime(sum.UpdatedAt))
	return err
}

const scoreColumns = "reviewee_id, dimension, raw_score, level, percentile, review_count, updated_at"

func scanScores(rows *sql.Rows) ([]services.DimensionScore, error) {
	defer rows.Close()
	var out []services.DimensionScore
	for rows.Next() {
		var (
			sc                services.DimensionScore
			dim, lvl, updated string
		)
		if err := rows.Scan(&sc.RevieweeID, &dim, &sc.RawScore, &lvl, &sc.Percentile, &sc.ReviewCount, &updated); err != nil {
			return nil, err
		}
		var err error
		if sc.UpdatedAt, err = parseTime(updated); err != nil {
			return nil, err
		}
		sc.Dimension = services.Dimension(dim)
		sc.Level = services.Level(lvl)
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetDimensionScores(ctx context.Context, revieweeID string) ([]services.DimensionScore, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+scoreColumns+" FROM dimension_scores WHERE reviewee_id = ?", revieweeID)
	if err != nil {
		return nil, err
	}
	return scanScores(rows)
}

func (s *SQLiteStore) ListAllDimensionScores(ctx context.Context) ([]services.DimensionScore, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+scoreColumns+" FROM dimension_scores ORDER BY reviewee_id ASC")
	if err != nil {
		return nil, err
	}
	return scanScores(rows)
}

func (s *SQLiteStore) GetScoreSummary(ctx context.Context, userID string) (*services.UserScoreSummary, error) {
	var (
		sum                        services.UserScoreSummary
		badge, updated             string
		startup, harder, workAgain sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `SELECT user_id, qualitative_badge, startup_hire_pct, harder_job_pct, work_again_absolutely_pct, updated_at
FROM user_score_summaries WHERE user_id = ?`, userID).Scan(&sum.UserID, &badge, &startup, &harder, &workAgain, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sum.QualitativeBadge = services.Badge(badge)
	sum.StartupHirePct = intPtr(startup)
	sum.HarderJobPct = intPtr(harder)
	sum.WorkAgainAbsolutelyPct = intPtr(workAgain)
	if sum.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &sum, nil
}

func (s *SQLiteStore) ListRevieweeIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT reviewee_id FROM legacy_reviews
UNION
SELECT reviewee_id FROM anonymous_reviews
ORDER BY reviewee_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// tokens

func (t *sqliteTx) InsertToken(ctx context.Context, tok services.ReviewToken) error {
	_, err := t.tx.ExecContext(ctx, `INSERT INTO review_tokens(token_hash, reviewee_id, issuer_hash, issued_at, expires_at, burned)
VALUES(?, ?, ?, ?, ?, 0)`, tok.TokenHash, tok.RevieweeID, toNullString(tok.IssuerHash), formatTime(tok.IssuedAt), formatTime(tok.ExpiresAt))
	return err
}

func (t *sqliteTx) GetToken(ctx context.Context, tokenHash string) (*services.ReviewToken, error) {
	var (
		tok             services.ReviewToken
		issuer          sql.NullString
		issued, expires string
		burned          int64
	)
	err := t.tx.QueryRowContext(ctx, `SELECT token_hash, reviewee_id, issuer_hash, issued_at, expires_at, burned
FROM review_tokens WHERE token_hash = ?`, tokenHash).Scan(&tok.TokenHash, &tok.RevieweeID, &issuer, &issued, &expires, &burned)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	tok.IssuerHash = issuer.String
	tok.Burned = burned != 0
	if tok.IssuedAt, err = parseTime(issued); err != nil {
		return nil, err
	}
	if tok.ExpiresAt, err = parseTime(expires); err != nil {
		return nil, err
	}
	return &tok, nil
}

func (t *sqliteTx) BurnToken(ctx context.Context, tokenHash string) (bool, error) {
	res, err := t.tx.ExecContext(ctx, "UPDATE review_tokens SET burned = 1, issuer_hash = NULL WHERE token_hash = ? AND burned = 0", tokenHash)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (t *sqliteTx) CountPendingTokens(ctx context.Context, issuerHash string, now time.Time) (int, error) {
	var n int
	err := t.tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM review_tokens WHERE issuer_hash = ? AND burned = 0 AND expires_at > ?",
		issuerHash, formatTime(now)).Scan(&n)
	return n, err
}

func (t *sqliteTx) ForgetExpiredIssuers(ctx context.Context, now time.Time) (int, error) {
	res, err := t.tx.ExecContext(ctx, "UPDATE review_tokens SET issuer_hash = NULL WHERE issuer_hash IS NOT NULL AND expires_at <= ?", formatTime(now))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// counters

func (t *sqliteTx) GetDailyCount(ctx context.Context, subjectHash string, role services.CounterRole, day string) (int, error) {
	var n int
	err := t.tx.QueryRowContext(ctx, "SELECT total FROM review_rate_counters WHERE subject_hash = ? AND role = ? AND day = ?",
		subjectHash, string(role), day).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return n, err
}

func (t *sqliteTx) IncrementDailyCount(ctx context.Context, subjectHash string, role services.CounterRole, day string) error {
	_, err := t.tx.ExecContext(ctx, `INSERT INTO review_rate_counters(subject_hash, role, day, total) VALUES(?, ?, ?, 1)
ON CONFLICT(subject_hash, role, day) DO UPDATE SET total = total + 1`, subjectHash, string(role), day)
	return err
}

// PruneCounters drops daily counters older than the given UTC day.
func (s *SQLiteStore) PruneCounters(ctx context.Context, before string) (int, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM review_rate_counters WHERE day < ?", before)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
