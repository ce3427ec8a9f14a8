package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create conversations and turns",
		SQL: `
			CREATE TABLE conversations (
				id                TEXT PRIMARY KEY,
				customer_id       TEXT NOT NULL,
				account_id        TEXT NOT NULL DEFAULT '',
				channel           TEXT NOT NULL,
				language          TEXT NOT NULL DEFAULT '',
				negative_streak   INTEGER NOT NULL DEFAULT 0,
				unresolved_turns  INTEGER NOT NULL DEFAULT 0,
				escalation_state  TEXT NOT NULL DEFAULT 'NORMAL',
				escalation_reason TEXT NOT NULL DEFAULT 'NONE',
				version           INTEGER NOT NULL DEFAULT 0,
				created_at        TEXT NOT NULL,
				updated_at        TEXT NOT NULL
			);

			CREATE INDEX idx_conversations_customer ON conversations (customer_id);
			CREATE INDEX idx_conversations_state ON conversations (escalation_state);

			CREATE TABLE turns (
				id                 TEXT PRIMARY KEY,
				conversation_id    TEXT NOT NULL,
				seq                INTEGER NOT NULL,
				timestamp          TEXT NOT NULL,
				customer_message   TEXT NOT NULL,
				language           TEXT NOT NULL DEFAULT '',
				intent             TEXT NOT NULL,
				intent_confidence  REAL NOT NULL DEFAULT 0,
				draft_response     TEXT NOT NULL DEFAULT '',
				response_text      TEXT NOT NULL DEFAULT '',
				sentiment_score    REAL NOT NULL DEFAULT 0,
				dominant_emotion   TEXT NOT NULL DEFAULT '',
				tone               TEXT NOT NULL DEFAULT '',
				resolution_signal  INTEGER NOT NULL DEFAULT 0,
				escalation_flag    INTEGER NOT NULL DEFAULT 0,
				escalation_reason  TEXT NOT NULL DEFAULT 'NONE',
				faq_articles       TEXT,
				alerts             TEXT,
				agent_logs         TEXT,
				FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
			);

			CREATE UNIQUE INDEX idx_turns_seq ON turns (conversation_id, seq);
		`,
	},
	{
		Version: 2,
		Name:    "create analytics and feedback journal",
		SQL: `
			CREATE TABLE analytics (
				turn_id           TEXT PRIMARY KEY,
				conversation_id   TEXT NOT NULL DEFAULT '',
				intent            TEXT NOT NULL DEFAULT '',
				sentiment_score   REAL NOT NULL DEFAULT 0,
				sentiment_trend   TEXT NOT NULL DEFAULT '',
				knowledge_gap     INTEGER NOT NULL DEFAULT 0,
				escalated         INTEGER NOT NULL DEFAULT 0,
				turn_analyzed     INTEGER NOT NULL DEFAULT 0,
				csat_score        REAL,
				comment           TEXT NOT NULL DEFAULT '',
				comment_sentiment REAL,
				updated_at        TEXT NOT NULL
			);

			CREATE INDEX idx_analytics_conversation ON analytics (conversation_id);

			CREATE TABLE feedback_journal (
				turn_id      TEXT PRIMARY KEY,
				csat_score   REAL NOT NULL,
				comment      TEXT NOT NULL DEFAULT '',
				submitted_at TEXT NOT NULL,
				processed    INTEGER NOT NULL DEFAULT 0
			);

			CREATE INDEX idx_feedback_pending ON feedback_journal (processed, submitted_at);
		`,
	},
	{
		Version: 3,
		Name:    "create handoff queue",
		SQL: `
			CREATE TABLE handoffs (
				id              TEXT PRIMARY KEY,
				conversation_id TEXT NOT NULL,
				customer_id     TEXT NOT NULL,
				channel         TEXT NOT NULL,
				turn_id         TEXT NOT NULL DEFAULT '',
				reason          TEXT NOT NULL,
				created_at      TEXT NOT NULL,
				closed_at       TEXT
			);

			CREATE UNIQUE INDEX idx_handoffs_open ON handoffs (conversation_id) WHERE closed_at IS NULL;
		`,
	},
	{
		Version: 4,
		Name:    "create knowledge base with FTS5",
		SQL: `
			CREATE TABLE kb_articles (
				id          TEXT PRIMARY KEY,
				title       TEXT NOT NULL,
				content     TEXT NOT NULL,
				category    TEXT NOT NULL DEFAULT 'general',
				language    TEXT NOT NULL DEFAULT '',
				updated_at  TEXT NOT NULL
			);

			CREATE INDEX idx_kb_language ON kb_articles (language);

			CREATE VIRTUAL TABLE kb_fts USING fts5(
				title,
				content,
				category,
				content='kb_articles',
				content_rowid='rowid'
			);

			CREATE TRIGGER kb_ai AFTER INSERT ON kb_articles BEGIN
				INSERT INTO kb_fts(rowid, title, content, category)
				VALUES (new.rowid, new.title, new.content, new.category);
			END;

			CREATE TRIGGER kb_ad AFTER DELETE ON kb_articles BEGIN
				INSERT INTO kb_fts(kb_fts, rowid, title, content, category)
				VALUES ('delete', old.rowid, old.title, old.content, old.category);
			END;

			CREATE TRIGGER kb_au AFTER UPDATE ON kb_articles BEGIN
				INSERT INTO kb_fts(kb_fts, rowid, title, content, category)
				VALUES ('delete', old.rowid, old.title, old.content, old.category);
				INSERT INTO kb_fts(rowid, title, content, category)
				VALUES (new.rowid, new.title, new.content, new.category);
			END;
		`,
	},
}
