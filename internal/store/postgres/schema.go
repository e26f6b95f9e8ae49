package postgres

// Schema is the DDL for the postgres driver. The insert trigger publishes
// each new memory id on InsertChannel.
const Schema = `CREATE EXTENSION IF NOT EXISTS pgcrypto;

CREATE TABLE IF NOT EXISTS profiles (
    id           uuid PRIMARY KEY,
    display_name text,
    email        text NOT NULL DEFAULT '',
    avatar_url   text
);

CREATE TABLE IF NOT EXISTS memories (
    id          uuid PRIMARY KEY DEFAULT gen_random_uuid(),
    text        text NOT NULL DEFAULT '' CHECK (char_length(text) <= 2000),
    category    text NOT NULL CHECK (category IN ('Learn', 'Burn', 'Earn', 'Fun')),
    location    text NOT NULL CHECK (char_length(location) BETWEEN 1 AND 80),
    created_at  timestamptz NOT NULL DEFAULT now(),
    user_id     uuid NOT NULL,
    media_urls  text[] NOT NULL DEFAULT '{}',
    media_types text[] NOT NULL DEFAULT '{}',
    image_url   text
);

CREATE INDEX IF NOT EXISTS memories_created_at_idx ON memories (created_at DESC);
CREATE INDEX IF NOT EXISTS memories_user_id_idx ON memories (user_id);

CREATE OR REPLACE FUNCTION notify_memory_inserted() RETURNS trigger AS $$
BEGIN
    PERFORM pg_notify('memories_inserted', NEW.id::text);
    RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS memories_notify_insert ON memories;
CREATE TRIGGER memories_notify_insert
    AFTER INSERT ON memories
    FOR EACH ROW EXECUTE FUNCTION notify_memory_inserted();
`
