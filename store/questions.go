package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Question represents a row in the questions table.
type Question struct {
	ID            int64  `json:"id"`
	DocumentID    int64  `json:"document_id"`
	Number        int    `json:"number"` // global id within the document
	SourceID      string `json:"source_id"`
	Theme         string `json:"theme"`
	Statement     string `json:"statement"`
	ChoiceA       string `json:"choice_a"`
	ChoiceB       string `json:"choice_b"`
	ChoiceC       string `json:"choice_c"`
	ChoiceD       string `json:"choice_d"`
	CorrectAnswer string `json:"correct_answer"`
	HasImage      bool   `json:"has_image"`
	Comment       string `json:"comment"`
	ExamNumber    int    `json:"exam_number"`
	LocalNumber   int    `json:"local_number"`
	ContentHash   string `json:"content_hash"`
}

// QuestionImage represents a row in the question_images table.
type QuestionImage struct {
	ID         int64  `json:"id"`
	QuestionID int64  `json:"question_id"`
	Name       string `json:"name"`
	Format     string `json:"format"`
	Page       int    `json:"page"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Data       []byte `json:"-"`
}

// SearchResult is a question with its document and a relevance score.
type SearchResult struct {
	Question
	Filename string  `json:"filename"`
	Path     string  `json:"path"`
	Score    float64 `json:"score"`
}

// QuestionFilter narrows ListQuestions. Zero fields do not filter.
type QuestionFilter struct {
	DocumentID int64
	ExamNumber int
	Theme      string
	Limit      int
	Offset     int
}

// contentHash fingerprints the text of a question for change detection.
func contentHash(q Question) string {
	h := sha256.New()
	for _, s := range []string{q.SourceID, q.Statement, q.ChoiceA, q.ChoiceB, q.ChoiceC, q.ChoiceD} {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// InsertQuestions inserts questions in a single transaction and returns
// their IDs in input order.
func (s *Store) InsertQuestions(ctx context.Context, questions []Question) ([]int64, error) {
	ids := make([]int64, len(questions))
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO questions (document_id, number, source_id, theme, statement,
				choice_a, choice_b, choice_c, choice_d, correct_answer, has_image,
				comment, exam_number, local_number, content_hash)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, q := range questions {
			if q.ContentHash == "" {
				q.ContentHash = contentHash(q)
			}
			res, err := stmt.ExecContext(ctx,
				q.DocumentID, q.Number, q.SourceID, q.Theme, q.Statement,
				q.ChoiceA, q.ChoiceB, q.ChoiceC, q.ChoiceD, q.CorrectAnswer, q.HasImage,
				q.Comment, q.ExamNumber, q.LocalNumber, q.ContentHash)
			if err != nil {
				return fmt.Errorf("inserting question %d: %w", q.Number, err)
			}
			ids[i], err = res.LastInsertId()
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// InsertImages stores the images of one question.
func (s *Store) InsertImages(ctx context.Context, questionID int64, images []QuestionImage) error {
	if len(images) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, img := range images {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO question_images (question_id, name, format, page, width, height, data)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, questionID, img.Name, img.Format, img.Page, img.Width, img.Height, img.Data); err != nil {
				return fmt.Errorf("inserting image %s: %w", img.Name, err)
			}
		}
		return nil
	})
}

// InsertFingerprint stores the text fingerprint of a question.
func (s *Store) InsertFingerprint(ctx context.Context, questionID int64, vec []float32) error {
	if len(vec) != s.fingerprintDim {
		return fmt.Errorf("fingerprint has %d dimensions, store expects %d", len(vec), s.fingerprintDim)
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO vec_questions (question_id, fingerprint) VALUES (?, ?)",
		questionID, serializeFloat32(vec))
	return err
}

const questionColumns = `q.id, q.document_id, q.number, q.source_id, q.theme, q.statement,
	q.choice_a, q.choice_b, q.choice_c, q.choice_d, q.correct_answer, q.has_image,
	q.comment, q.exam_number, q.local_number, q.content_hash`

func questionDest(q *Question) []any {
	return []any{&q.ID, &q.DocumentID, &q.Number, &q.SourceID, &q.Theme, &q.Statement,
		&q.ChoiceA, &q.ChoiceB, &q.ChoiceC, &q.ChoiceD, &q.CorrectAnswer, &q.HasImage,
		&q.Comment, &q.ExamNumber, &q.LocalNumber, &q.ContentHash}
}

// GetQuestion retrieves a question by ID.
func (s *Store) GetQuestion(ctx context.Context, id int64) (*Question, error) {
	q := &Question{}
	err := s.db.QueryRowContext(ctx,
		"SELECT "+questionColumns+" FROM questions q WHERE q.id = ?", id).Scan(questionDest(q)...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return q, nil
}

// ListQuestions returns questions in document and number order.
func (s *Store) ListQuestions(ctx context.Context, f QuestionFilter) ([]Question, error) {
	var where []string
	var args []any
	if f.DocumentID != 0 {
		where = append(where, "q.document_id = ?")
		args = append(args, f.DocumentID)
	}
	if f.ExamNumber != 0 {
		where = append(where, "q.exam_number = ?")
		args = append(args, f.ExamNumber)
	}
	if f.Theme != "" {
		where = append(where, "q.theme = ?")
		args = append(args, f.Theme)
	}

	query := "SELECT " + questionColumns + " FROM questions q"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY q.document_id, q.number"

	limit := f.Limit
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Question
	for rows.Next() {
		var q Question
		if err := rows.Scan(questionDest(&q)...); err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// QuestionImages returns the images of a question in insertion order.
func (s *Store) QuestionImages(ctx context.Context, questionID int64) ([]QuestionImage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, question_id, name, format, page, width, height, data
		FROM question_images WHERE question_id = ? ORDER BY id
	`, questionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []QuestionImage
	for rows.Next() {
		var img QuestionImage
		if err := rows.Scan(&img.ID, &img.QuestionID, &img.Name, &img.Format,
			&img.Page, &img.Width, &img.Height, &img.Data); err != nil {
			return nil, err
		}
		out = append(out, img)
	}
	return out, rows.Err()
}

// FTSSearch performs a full-text search over statements, choices and
// themes using FTS5 BM25 ranking.
func (s *Store) FTSSearch(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+questionColumns+`, d.filename, d.path, f.rank
		FROM questions_fts f
		JOIN questions q ON q.id = f.rowid
		JOIN documents d ON d.id = q.document_id
		WHERE questions_fts MATCH ?
		ORDER BY f.rank
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		var rank float64
		dest := append(questionDest(&r.Question), &r.Filename, &r.Path, &rank)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		// FTS5 rank is negative (lower = better), convert to positive score
		r.Score = -rank
		results = append(results, r)
	}
	return results, rows.Err()
}

// SimilarQuestions returns the k questions whose fingerprints are nearest to
// vec, skipping excludeID (pass 0 to keep everything).
func (s *Store) SimilarQuestions(ctx context.Context, vec []float32, k int, excludeID int64) ([]SearchResult, error) {
	// Ask for one extra neighbour so excluding the query question still
	// leaves k results.
	knn := k
	if excludeID != 0 {
		knn++
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+questionColumns+`, d.filename, d.path, v.distance
		FROM vec_questions v
		JOIN questions q ON q.id = v.question_id
		JOIN documents d ON d.id = q.document_id
		WHERE v.fingerprint MATCH ? AND k = ?
		ORDER BY v.distance
	`, serializeFloat32(vec), knn)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		var distance float64
		dest := append(questionDest(&r.Question), &r.Filename, &r.Path, &distance)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		if r.ID == excludeID {
			continue
		}
		// Cosine distance to similarity.
		r.Score = 1.0 - distance
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// QuestionFingerprint reads back the stored fingerprint of a question.
func (s *Store) QuestionFingerprint(ctx context.Context, questionID int64) ([]float32, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT fingerprint FROM vec_questions WHERE question_id = ?", questionID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return deserializeFloat32(blob), nil
}
