package storage

const schema = `
-- The 'exams' table stores the pristine copy of every exam that has been opened.
CREATE TABLE IF NOT EXISTS exams (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    content TEXT NOT NULL, -- exam document as JSON, never with user answers
    tags TEXT NOT NULL DEFAULT '[]',
    last_opened INTEGER NOT NULL -- epoch milliseconds
);
CREATE INDEX IF NOT EXISTS idx_exams_last_opened ON exams(last_opened);

-- The 'results' table stores one immutable row per submission.
CREATE TABLE IF NOT EXISTS results (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    exam_id TEXT NOT NULL,
    exam_title TEXT NOT NULL,
    tags TEXT NOT NULL DEFAULT '[]',
    score INTEGER NOT NULL,
    total INTEGER NOT NULL,
    timestamp INTEGER NOT NULL -- epoch milliseconds
);
CREATE INDEX IF NOT EXISTS idx_results_exam_id ON results(exam_id);
CREATE INDEX IF NOT EXISTS idx_results_timestamp ON results(timestamp);

-- The 'cards' table stores flashcards derived from missed questions.
-- due and last_review have no declared type: new rows hold epoch milliseconds,
-- rows written by older versions may hold text timestamps.
CREATE TABLE IF NOT EXISTS cards (
    id TEXT PRIMARY KEY,
    front TEXT NOT NULL,
    back TEXT NOT NULL,
    options TEXT NOT NULL DEFAULT '[]',
    tags TEXT NOT NULL DEFAULT '[]',
    question_id TEXT NOT NULL,
    exam_id TEXT NOT NULL,
    source_exam_hash TEXT NOT NULL,
    due NOT NULL,
    stability REAL NOT NULL DEFAULT 0,
    difficulty REAL NOT NULL DEFAULT 0,
    elapsed_days INTEGER NOT NULL DEFAULT 0,
    scheduled_days INTEGER NOT NULL DEFAULT 0,
    reps INTEGER NOT NULL DEFAULT 0,
    lapses INTEGER NOT NULL DEFAULT 0,
    state INTEGER NOT NULL DEFAULT 0, -- 0: New, 1: Learning, 2: Review, 3: Relearning
    last_review
);
CREATE INDEX IF NOT EXISTS idx_cards_due ON cards(due);

-- The 'card_tags' table is the multi-valued tag index over cards.
CREATE TABLE IF NOT EXISTS card_tags (
    card_id TEXT NOT NULL,
    tag TEXT NOT NULL,
    PRIMARY KEY (card_id, tag),
    FOREIGN KEY(card_id) REFERENCES cards(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_card_tags_tag ON card_tags(tag);

-- The 'review_logs' table keeps the rating history of each card.
CREATE TABLE IF NOT EXISTS review_logs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    card_id TEXT NOT NULL,
    rating INTEGER NOT NULL,
    state INTEGER NOT NULL,
    reviewed_at INTEGER NOT NULL,

    FOREIGN KEY(card_id) REFERENCES cards(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_review_logs_card_id ON review_logs(card_id);
`
