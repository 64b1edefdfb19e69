package store

const schemaSQL = `
CREATE TABLE IF NOT EXISTS insight_days (
    date             TEXT PRIMARY KEY,
    window_start     TEXT NOT NULL,
    window_end       TEXT NOT NULL,
    total_heat       REAL NOT NULL,
    total_electric   REAL NOT NULL,
    boiler_heat      REAL NOT NULL,
    average_cop      REAL NOT NULL,
    stored_at        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS insight_hours (
    date             TEXT NOT NULL REFERENCES insight_days(date) ON DELETE CASCADE,
    hour             TEXT NOT NULL,
    temperature      REAL NOT NULL,
    power            REAL NOT NULL,
    PRIMARY KEY (date, hour)
);

CREATE TABLE IF NOT EXISTS knee_points (
    date             TEXT NOT NULL,
    hour             TEXT NOT NULL,
    temperature      REAL NOT NULL,
    power            REAL NOT NULL,
    PRIMARY KEY (date, hour)
);

CREATE INDEX IF NOT EXISTS idx_insight_hours_date ON insight_hours(date);
CREATE INDEX IF NOT EXISTS idx_knee_points_date ON knee_points(date);
`
