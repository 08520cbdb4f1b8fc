package store

// Money columns are TEXT in SQLite so decimal values round-trip exactly;
// arithmetic on them happens in Go, never in SQL.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL UNIQUE,
	hash TEXT NOT NULL,
	cash TEXT NOT NULL DEFAULT '10000.00',
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
	user_id INTEGER NOT NULL REFERENCES users(id),
	symbol TEXT NOT NULL,
	name TEXT NOT NULL,
	shares INTEGER NOT NULL CHECK (shares > 0),
	price TEXT NOT NULL,
	updated_at DATETIME NOT NULL,
	PRIMARY KEY (user_id, symbol)
);

CREATE TABLE IF NOT EXISTS transactions (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	user_id INTEGER NOT NULL REFERENCES users(id),
	side TEXT NOT NULL CHECK (side IN ('buy', 'sell')),
	symbol TEXT NOT NULL,
	shares INTEGER NOT NULL CHECK (shares > 0),
	price TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions(user_id, seq);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS users (
	id BIGSERIAL PRIMARY KEY,
	username TEXT NOT NULL UNIQUE,
	hash TEXT NOT NULL,
	cash NUMERIC(20, 4) NOT NULL DEFAULT 10000.00 CHECK (cash >= 0),
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
	user_id BIGINT NOT NULL REFERENCES users(id),
	symbol TEXT NOT NULL,
	name TEXT NOT NULL,
	shares BIGINT NOT NULL CHECK (shares > 0),
	price NUMERIC(20, 4) NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (user_id, symbol)
);

CREATE TABLE IF NOT EXISTS transactions (
	seq BIGSERIAL PRIMARY KEY,
	id TEXT NOT NULL UNIQUE,
	user_id BIGINT NOT NULL REFERENCES users(id),
	side TEXT NOT NULL CHECK (side IN ('buy', 'sell')),
	symbol TEXT NOT NULL,
	shares BIGINT NOT NULL CHECK (shares > 0),
	price NUMERIC(20, 4) NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions(user_id, seq);
`
