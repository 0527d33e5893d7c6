package runstore

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    run_id TEXT PRIMARY KEY,
    topic TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    latest_version INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS versions (
    run_id TEXT NOT NULL REFERENCES runs(run_id),
    version INTEGER NOT NULL,
    job_id TEXT,
    status TEXT NOT NULL DEFAULT 'pending',
    feedback TEXT,
    previous_job_id TEXT,
    usage TEXT,
    inputs TEXT,
    prompt TEXT NOT NULL,
    report TEXT,
    sources TEXT,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (run_id, version)
);

CREATE INDEX IF NOT EXISTS idx_versions_run_id ON versions(run_id);
CREATE INDEX IF NOT EXISTS idx_versions_status ON versions(status);
`
