package store

import "fmt"

// schemaSQL returns the DDL for all tables. fingerprintDim controls the
// vec0 virtual table dimension.
func schemaSQL(fingerprintDim int) string {
	return fmt.Sprintf(`
-- Source documents with hash-based change detection
CREATE TABLE IF NOT EXISTS documents (
    id INTEGER PRIMARY KEY,
    path TEXT NOT NULL UNIQUE,
    filename TEXT NOT NULL,
    format TEXT NOT NULL,
    content_hash TEXT NOT NULL,
    parse_method TEXT NOT NULL,
    status TEXT DEFAULT 'pending',
    segments INTEGER DEFAULT 0,
    dropped INTEGER DEFAULT 0,
    metadata JSON,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- One row per extracted question
CREATE TABLE IF NOT EXISTS questions (
    id INTEGER PRIMARY KEY,
    document_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    number INTEGER NOT NULL,
    source_id TEXT NOT NULL,
    theme TEXT NOT NULL,
    statement TEXT NOT NULL,
    choice_a TEXT NOT NULL DEFAULT '',
    choice_b TEXT NOT NULL DEFAULT '',
    choice_c TEXT NOT NULL DEFAULT '',
    choice_d TEXT NOT NULL DEFAULT '',
    correct_answer TEXT NOT NULL DEFAULT '',
    has_image INTEGER NOT NULL DEFAULT 0,
    comment TEXT NOT NULL DEFAULT '',
    exam_number INTEGER NOT NULL,
    local_number INTEGER NOT NULL,
    content_hash TEXT NOT NULL,
    UNIQUE(document_id, number)
);

-- Images retained for a question
CREATE TABLE IF NOT EXISTS question_images (
    id INTEGER PRIMARY KEY,
    question_id INTEGER NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    format TEXT NOT NULL,
    page INTEGER NOT NULL,
    width INTEGER NOT NULL,
    height INTEGER NOT NULL,
    data BLOB NOT NULL
);

-- Text fingerprints via sqlite-vec
CREATE VIRTUAL TABLE IF NOT EXISTS vec_questions USING vec0(
    question_id INTEGER PRIMARY KEY,
    fingerprint float[%d] distance_metric=cosine
);

-- Full-text search via FTS5
CREATE VIRTUAL TABLE IF NOT EXISTS questions_fts USING fts5(
    statement,
    choices,
    theme,
    content='',
    tokenize='unicode61 remove_diacritics 2'
);

-- FTS triggers to keep index in sync
CREATE TRIGGER IF NOT EXISTS questions_ai AFTER INSERT ON questions BEGIN
    INSERT INTO questions_fts(rowid, statement, choices, theme)
    VALUES (new.id, new.statement,
        new.choice_a || ' ' || new.choice_b || ' ' || new.choice_c || ' ' || new.choice_d,
        new.theme);
END;
CREATE TRIGGER IF NOT EXISTS questions_ad AFTER DELETE ON questions BEGIN
    INSERT INTO questions_fts(questions_fts, rowid, statement, choices, theme)
    VALUES ('delete', old.id, old.statement,
        old.choice_a || ' ' || old.choice_b || ' ' || old.choice_c || ' ' || old.choice_d,
        old.theme);
END;
CREATE TRIGGER IF NOT EXISTS questions_au AFTER UPDATE ON questions BEGIN
    INSERT INTO questions_fts(questions_fts, rowid, statement, choices, theme)
    VALUES ('delete', old.id, old.statement,
        old.choice_a || ' ' || old.choice_b || ' ' || old.choice_c || ' ' || old.choice_d,
        old.theme);
    INSERT INTO questions_fts(rowid, statement, choices, theme)
    VALUES (new.id, new.statement,
        new.choice_a || ' ' || new.choice_b || ' ' || new.choice_c || ' ' || new.choice_d,
        new.theme);
END;

-- Indexes
CREATE INDEX IF NOT EXISTS idx_questions_document ON questions(document_id);
CREATE INDEX IF NOT EXISTS idx_questions_theme ON questions(theme);
CREATE INDEX IF NOT EXISTS idx_question_images_question ON question_images(question_id);
CREATE INDEX IF NOT EXISTS idx_documents_hash ON documents(content_hash);
`, fingerprintDim)
}
