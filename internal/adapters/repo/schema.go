package repo

type schemaStatement struct {
	name string
	sql  string
}

// schema только добавляет объекты и никогда не удаляет данные.
var schema = []schemaStatement{
	{name: "downloaded_files", sql: `
CREATE TABLE IF NOT EXISTS downloaded_files (
	id BIGINT GENERATED BY DEFAULT AS IDENTITY NOT NULL,
	url TEXT NOT NULL,
	file_id TEXT NOT NULL,
	date_added TIMESTAMPTZ NULL DEFAULT now(),
	file_type TEXT NULL,
	CONSTRAINT downloaded_files_pkey PRIMARY KEY (id),
	CONSTRAINT downloaded_files_url_key UNIQUE (url)
)`},
	{name: "downloaded_files_date_added_idx", sql: `
CREATE INDEX IF NOT EXISTS downloaded_files_date_added_idx ON downloaded_files (date_added)`},
	{name: "users", sql: `
CREATE TABLE IF NOT EXISTS users (
	user_id BIGINT GENERATED BY DEFAULT AS IDENTITY NOT NULL,
	user_name TEXT NULL,
	user_username TEXT NULL,
	chat_type TEXT NULL,
	language TEXT NULL,
	status TEXT NULL,
	captions TEXT NOT NULL DEFAULT 'off',
	CONSTRAINT users_pkey PRIMARY KEY (user_id)
)`},
}
