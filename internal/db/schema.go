package db

// SchemaSQL contains the database schema initialization SQL.
// Optional fields accept both NONE and NULL since clearing a field writes NULL.
const SchemaSQL = `
    -- ==========================================================================
    -- ROOM TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS room SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS code ON room TYPE string;
    DEFINE FIELD IF NOT EXISTS name ON room TYPE string;
    DEFINE FIELD IF NOT EXISTS description ON room TYPE option<string | null>;
    DEFINE FIELD IF NOT EXISTS active ON room TYPE bool DEFAULT true;
    DEFINE FIELD IF NOT EXISTS created_at ON room TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated_at ON room TYPE datetime DEFAULT time::now();
    DEFINE INDEX IF NOT EXISTS room_code ON room FIELDS code UNIQUE;

    -- ==========================================================================
    -- VIDEO TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS video SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS room ON video TYPE int;
    DEFINE FIELD IF NOT EXISTS code ON video TYPE string;
    DEFINE FIELD IF NOT EXISTS page_url ON video TYPE string;
    DEFINE FIELD IF NOT EXISTS video_url ON video TYPE option<string | null>;
    DEFINE FIELD IF NOT EXISTS audio_url ON video TYPE option<string | null>;
    DEFINE FIELD IF NOT EXISTS title ON video TYPE option<string | null>;
    DEFINE FIELD IF NOT EXISTS video_path ON video TYPE option<string | null>;
    DEFINE FIELD IF NOT EXISTS audio_path ON video TYPE option<string | null>;
    DEFINE FIELD IF NOT EXISTS thumbnail_path ON video TYPE option<string | null>;
    DEFINE FIELD IF NOT EXISTS public_video_url ON video TYPE option<string | null>;
    DEFINE FIELD IF NOT EXISTS public_audio_url ON video TYPE option<string | null>;
    DEFINE FIELD IF NOT EXISTS public_thumbnail_url ON video TYPE option<string | null>;
    DEFINE FIELD IF NOT EXISTS status ON video TYPE string
        ASSERT $value IN ["pending", "processing", "completed", "failed"];
    DEFINE FIELD IF NOT EXISTS stage ON video TYPE option<string | null>;
    DEFINE FIELD IF NOT EXISTS error_message ON video TYPE option<string | null>;
    DEFINE FIELD IF NOT EXISTS watched ON video TYPE bool DEFAULT false;
    DEFINE FIELD IF NOT EXISTS processed_at ON video TYPE option<datetime | null>;
    DEFINE FIELD IF NOT EXISTS created_at ON video TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated_at ON video TYPE datetime DEFAULT time::now();
    DEFINE INDEX IF NOT EXISTS video_room ON video FIELDS room;
    DEFINE INDEX IF NOT EXISTS video_code ON video FIELDS code UNIQUE;

    -- ==========================================================================
    -- COOKIE TABLE (encrypted session credentials, newest saved_at wins)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS cookie SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS encrypted ON cookie TYPE string;
    DEFINE FIELD IF NOT EXISTS saved_at ON cookie TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS expires_at ON cookie TYPE option<datetime | null>;
    DEFINE FIELD IF NOT EXISTS valid ON cookie TYPE bool DEFAULT true;
    DEFINE FIELD IF NOT EXISTS last_checked ON cookie TYPE option<datetime | null>;
    DEFINE INDEX IF NOT EXISTS cookie_saved_at ON cookie FIELDS saved_at;

    -- ==========================================================================
    -- COUNTER TABLE (sequential numeric ids for rooms and videos)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS counter SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS value ON counter TYPE int DEFAULT 0;
`
