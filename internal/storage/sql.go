package storage

const (
	insertSessionSQL = `
INSERT INTO sessions (session_key,
                      start_time,
                      device,
                      config)
VALUES (?, ?, ?, ?)`

	finishSessionSQL = `
UPDATE sessions
SET end_time        = ?,
    sample_count    = ?,
    dropped_samples = ?,
    latency_mean_ms = ?,
    latency_max_ms  = ?,
    effective_rate  = ?
WHERE id = ?`

	selectSessionSQL = `
SELECT
    id,
    session_key,
    start_time,
    end_time,
    device,
    config,
    sample_count,
    dropped_samples,
    latency_mean_ms,
    latency_max_ms,
    effective_rate
FROM sessions
WHERE
    id = ?`

	selectSessionsSQL = `
SELECT
    id,
    session_key,
    start_time,
    end_time,
    device,
    config,
    sample_count,
    dropped_samples,
    latency_mean_ms,
    latency_max_ms,
    effective_rate
FROM sessions
ORDER BY id`

	insertSamplesSQL = `
INSERT INTO samples (session_id,
                     sample_index,
                     t,
                     x,
                     y,
                     z,
                     device_ts_ms)
VALUES `

	insertSpectrumSQL = `
INSERT INTO spectra (session_id,
                     timestamp,
                     sample_index,
                     axis,
                     fft_size,
                     resolution,
                     peak_frequency,
                     peak_magnitude,
                     points)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectSpectraSQL = `
SELECT
    timestamp,
    sample_index,
    axis,
    fft_size,
    resolution,
    peak_frequency,
    peak_magnitude,
    points
FROM spectra
WHERE
    session_id = ?
ORDER BY sample_index`

	selectSamplesSQL = `
SELECT
    sample_index,
    t,
    x,
    y,
    z,
    device_ts_ms
FROM samples
WHERE
    session_id = ?
    AND sample_index BETWEEN ? AND ?
ORDER BY sample_index`
)
