package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"ai-stream-relay/internal/domain"
	"ai-stream-relay/internal/domain/model"
	"ai-stream-relay/internal/domain/ports/repository"
)

var _ repository.StreamingJobRepository = (*streamingJobRepo)(nil)

type streamingJobRepo struct {
	pool *pgxpool.Pool
	tm   repository.TransactionManager
}

func NewStreamingJobRepo(pool *pgxpool.Pool, tm repository.TransactionManager) *streamingJobRepo {
	return &streamingJobRepo{pool: pool, tm: tm}
}

const jobColumns = `
id, conversation_id, user_id, model_id, status,
request_data, response_data, partial_content, progress_info, error_message,
source, session_id, request_id,
created_at, started_at, completed_at, expires_at, updated_at`

func (r *streamingJobRepo) Create(ctx context.Context, tx repository.Tx, job *model.StreamingJob) error {
	reqJSON, err := json.Marshal(job.Request)
	if err != nil {
		return fmt.Errorf("marshal request data: %w", err)
	}
	progJSON, err := json.Marshal(job.Progress)
	if err != nil {
		return fmt.Errorf("marshal progress info: %w", err)
	}

	const q = `
INSERT INTO streaming_jobs (
  id, conversation_id, user_id, model_id, status,
  request_data, partial_content, progress_info, error_message,
  source, session_id, request_id,
  created_at, expires_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15);`

	_, err = execSQL(ctx, r.pool, tx, q,
		job.ID, job.ConversationID, job.UserID, job.ModelID, job.Status,
		reqJSON, job.PartialContent, progJSON, job.ErrorMessage,
		job.Source, job.SessionID, job.RequestID,
		job.CreatedAt, job.ExpiresAt, job.UpdatedAt)
	return err
}

func (r *streamingJobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.StreamingJob, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+jobColumns+` FROM streaming_jobs WHERE id=$1;`, id)
	if err != nil {
		return nil, err
	}
	return scanJob(row)
}

func (r *streamingJobRepo) FindActiveByConversation(ctx context.Context, tx repository.Tx, conversationID string) (*model.StreamingJob, error) {
	const q = `
SELECT ` + jobColumns + `
  FROM streaming_jobs
 WHERE conversation_id=$1 AND status IN ('pending','processing','streaming')
 ORDER BY created_at DESC
 LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, conversationID)
	if err != nil {
		return nil, err
	}
	return scanJob(row)
}

// ClaimNext atomically claims up to limit pending jobs. SKIP LOCKED keeps
// concurrent workers on disjoint rows without blocking each other.
func (r *streamingJobRepo) ClaimNext(ctx context.Context, limit int) ([]*model.StreamingJob, error) {
	if limit <= 0 {
		limit = 1
	}
	var jobs []*model.StreamingJob

	err := r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		const q = `
UPDATE streaming_jobs
   SET status='processing', started_at=now(), updated_at=now()
 WHERE id IN (
       SELECT id FROM streaming_jobs
        WHERE status='pending'
        ORDER BY created_at
        LIMIT $1
        FOR UPDATE SKIP LOCKED)
RETURNING ` + jobColumns + `;`

		rows, err := pickRows(ctx, r.pool, tx, q, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			job, err := scanJob(rows)
			if err != nil {
				return err
			}
			jobs = append(jobs, job)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// AppendProgress writes the full accumulated snapshot. The length guard makes
// replays of an already-applied delta a no-op and rejects any shrink, keeping
// partial_content monotonic under at-least-once delivery. The write doubles
// as the worker heartbeat.
func (r *streamingJobRepo) AppendProgress(ctx context.Context, tx repository.Tx, id, content string, progress model.ProgressInfo) error {
	progJSON, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("marshal progress info: %w", err)
	}

	const q = `
UPDATE streaming_jobs
   SET partial_content=$2,
       progress_info=$3,
       status=CASE WHEN status='processing' THEN 'streaming' ELSE status END,
       updated_at=now()
 WHERE id=$1
   AND status IN ('processing','streaming')
   AND char_length(partial_content) <= char_length($2::text);`

	tag, err := execSQL(ctx, r.pool, tx, q, id, content, progJSON)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	return r.explainNoWrite(ctx, tx, id, len(content))
}

func (r *streamingJobRepo) Complete(ctx context.Context, tx repository.Tx, id string, resp model.ResponseData) error {
	respJSON, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal response data: %w", err)
	}

	// response_data is written exactly once: the status guard admits only
	// the owning worker's first terminal write.
	const q = `
UPDATE streaming_jobs
   SET status='completed',
       response_data=$2,
       partial_content=CASE WHEN char_length($3::text) >= char_length(partial_content)
                            THEN $3 ELSE partial_content END,
       completed_at=now(),
       updated_at=now()
 WHERE id=$1 AND status IN ('processing','streaming');`

	tag, err := execSQL(ctx, r.pool, tx, q, id, respJSON, resp.Text)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.notFoundOrConflict(ctx, tx, id)
	}
	return nil
}

func (r *streamingJobRepo) Fail(ctx context.Context, tx repository.Tx, id, errorMessage string) error {
	const q = `
UPDATE streaming_jobs
   SET status='failed', error_message=$2, completed_at=now(), updated_at=now()
 WHERE id=$1 AND status IN ('pending','processing','streaming');`

	tag, err := execSQL(ctx, r.pool, tx, q, id, errorMessage)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.notFoundOrConflict(ctx, tx, id)
	}
	return nil
}

func (r *streamingJobRepo) Cancel(ctx context.Context, tx repository.Tx, id string) error {
	const q = `
UPDATE streaming_jobs
   SET status='cancelled', completed_at=now(), updated_at=now()
 WHERE id=$1 AND status IN ('pending','processing','streaming');`

	tag, err := execSQL(ctx, r.pool, tx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.notFoundOrConflict(ctx, tx, id)
	}
	return nil
}

func (r *streamingJobRepo) SweepExpired(ctx context.Context) (int, error) {
	const q = `
DELETE FROM streaming_jobs
 WHERE status IN ('completed','failed','cancelled') AND expires_at < now();`

	tag, err := execSQL(ctx, r.pool, nil, q)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// RequeueStale returns claimed jobs whose heartbeat stopped to pending so a
// live worker can retry them. A crashed worker mid-stream leaves partial
// content behind; the retry appends past it thanks to the length guard.
func (r *streamingJobRepo) RequeueStale(ctx context.Context, cutoff time.Duration) (int, error) {
	const q = `
UPDATE streaming_jobs
   SET status='pending', started_at=NULL, updated_at=now()
 WHERE status IN ('processing','streaming') AND updated_at < $1;`

	tag, err := execSQL(ctx, r.pool, nil, q, time.Now().Add(-cutoff))
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *streamingJobRepo) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.JobStatus]int, error) {
	rows, err := pickRows(ctx, r.pool, tx, `SELECT status, COUNT(*) FROM streaming_jobs GROUP BY status;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[model.JobStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out[model.JobStatus(status)] = n
	}
	return out, rows.Err()
}

// explainNoWrite classifies a progress write that matched no row: stale
// replay (tolerated), missing job, or terminal/foreign status.
func (r *streamingJobRepo) explainNoWrite(ctx context.Context, tx repository.Tx, id string, contentLen int) error {
	row, err := pickRow(ctx, r.pool, tx, `SELECT status, char_length(partial_content) FROM streaming_jobs WHERE id=$1;`, id)
	if err != nil {
		return err
	}
	var status string
	var existingLen int
	if err := row.Scan(&status, &existingLen); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		return domain.ErrReadDatabaseRow
	}
	if model.JobStatus(status).Active() && existingLen >= contentLen {
		// At-least-once replay of an older snapshot; already applied.
		return nil
	}
	return domain.ErrConflict
}

func (r *streamingJobRepo) notFoundOrConflict(ctx context.Context, tx repository.Tx, id string) error {
	row, err := pickRow(ctx, r.pool, tx, `SELECT 1 FROM streaming_jobs WHERE id=$1;`, id)
	if err != nil {
		return err
	}
	var one int
	if err := row.Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		return domain.ErrReadDatabaseRow
	}
	return domain.ErrConflict
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*model.StreamingJob, error) {
	var (
		job       model.StreamingJob
		statusStr string
		reqJSON   []byte
		respJSON  []byte
		progJSON  []byte
	)
	err := row.Scan(
		&job.ID, &job.ConversationID, &job.UserID, &job.ModelID, &statusStr,
		&reqJSON, &respJSON, &job.PartialContent, &progJSON, &job.ErrorMessage,
		&job.Source, &job.SessionID, &job.RequestID,
		&job.CreatedAt, &job.StartedAt, &job.CompletedAt, &job.ExpiresAt, &job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	job.Status = model.JobStatus(statusStr)

	if err := json.Unmarshal(reqJSON, &job.Request); err != nil {
		return nil, fmt.Errorf("unmarshal request data: %w", err)
	}
	if len(respJSON) > 0 {
		var resp model.ResponseData
		if err := json.Unmarshal(respJSON, &resp); err != nil {
			return nil, fmt.Errorf("unmarshal response data: %w", err)
		}
		job.Response = &resp
	}
	if len(progJSON) > 0 {
		if err := json.Unmarshal(progJSON, &job.Progress); err != nil {
			return nil, fmt.Errorf("unmarshal progress info: %w", err)
		}
	}
	return &job, nil
}
