package store

// Schema contains the complete DDL for the farelens tables.
const Schema = `
-- Searches: one row per scrape session
CREATE TABLE IF NOT EXISTS searches (
    id                TEXT PRIMARY KEY,
    origin            TEXT NOT NULL,
    destination       TEXT NOT NULL,
    departure_date    TEXT NOT NULL,
    return_date       TEXT NOT NULL DEFAULT '',
    trip_type         TEXT NOT NULL,
    success           INTEGER NOT NULL DEFAULT 0,
    error_message     TEXT NOT NULL DEFAULT '',
    total_results     INTEGER NOT NULL DEFAULT 0,
    execution_seconds REAL NOT NULL DEFAULT 0,
    final_url         TEXT NOT NULL DEFAULT '',
    scraped_at        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_searches_time ON searches(scraped_at DESC);
CREATE INDEX IF NOT EXISTS idx_searches_route ON searches(origin, destination);

-- Offers: extracted result rows, flattened to the first segment
CREATE TABLE IF NOT EXISTS offers (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    search_id      TEXT NOT NULL,
    price          REAL NOT NULL DEFAULT 0,
    currency       TEXT NOT NULL DEFAULT '',
    stops          INTEGER NOT NULL DEFAULT 0,
    total_duration TEXT NOT NULL DEFAULT '',
    airline        TEXT NOT NULL DEFAULT '',
    departure_time TEXT NOT NULL DEFAULT '',
    arrival_time   TEXT NOT NULL DEFAULT '',
    origin         TEXT NOT NULL DEFAULT '',
    destination    TEXT NOT NULL DEFAULT '',
    booking_link   TEXT NOT NULL DEFAULT '',
    scraped_at     INTEGER NOT NULL,
    FOREIGN KEY (search_id) REFERENCES searches(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_offers_search ON offers(search_id);
CREATE INDEX IF NOT EXISTS idx_offers_route ON offers(origin, destination);
`
