package corrdb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sunjingtao1119/GISMO/internal/analysis"
	"github.com/sunjingtao1119/GISMO/internal/delaytime"
	"github.com/sunjingtao1119/GISMO/internal/linkage"
	"github.com/sunjingtao1119/GISMO/internal/waveform"
	"github.com/sunjingtao1119/GISMO/internal/xcorr"
)

// TraceRecord is the stored identity of one trace in a run. Sample data is
// not persisted; the store keeps results, not waveforms.
type TraceRecord struct {
	Index   int
	ID      waveform.StationID
	Start   time.Time
	Trigger time.Time
}

// RunRecord is one complete analysis run as stored: parameters, trace
// identities and every derived product.
type RunRecord struct {
	RunID              string
	CreatedAt          time.Time
	TraceCount         int
	SampleRate         float64
	LinkageRule        string
	DistanceConvention string
	MaxLagSeconds      float64
	CutThreshold       float64

	Traces   []TraceRecord
	Coeff    xcorr.CoefficientMatrix
	Lag      xcorr.LagMatrix
	Stats    *delaytime.StatTable
	Tree     *linkage.Tree
	Clusters linkage.Assignment
}

// RecordFromSession assembles a RunRecord from a session, forcing every
// derived product to be computed.
func RecordFromSession(ctx context.Context, s *analysis.Session) (*RunRecord, error) {
	ts := s.Traces()
	if ts == nil {
		return nil, fmt.Errorf("corrdb: session has no trace set")
	}
	coeff, lag, err := s.Matrices(ctx)
	if err != nil {
		return nil, err
	}
	stats, err := s.Stats(ctx)
	if err != nil {
		return nil, err
	}
	tree, err := s.Tree(ctx)
	if err != nil {
		return nil, err
	}
	clusters, err := s.Clusters(ctx)
	if err != nil {
		return nil, err
	}

	rec := &RunRecord{
		RunID:              s.RunID().String(),
		CreatedAt:          time.Now().UTC(),
		TraceCount:         ts.Len(),
		SampleRate:         ts.SampleRate(),
		LinkageRule:        s.Params().LinkageRule.String(),
		DistanceConvention: analysis.DistanceConvention,
		MaxLagSeconds:      s.Params().MaxLagSeconds,
		CutThreshold:       s.Params().CutThreshold,
		Coeff:              coeff,
		Lag:                lag,
		Stats:              stats,
		Tree:               tree,
		Clusters:           clusters,
	}
	for i, tr := range ts.Traces {
		rec.Traces = append(rec.Traces, TraceRecord{
			Index:   i,
			ID:      tr.ID,
			Start:   tr.Start,
			Trigger: ts.Triggers[i],
		})
	}
	return rec, nil
}

// SaveRun stores a complete run in one transaction.
func (db *DB) SaveRun(ctx context.Context, rec *RunRecord) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, created_at, trace_count, sample_rate,
			linkage_rule, distance_convention, max_lag_seconds, cut_threshold)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, storeTime(rec.CreatedAt), rec.TraceCount, rec.SampleRate,
		rec.LinkageRule, rec.DistanceConvention, rec.MaxLagSeconds, rec.CutThreshold)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for _, tr := range rec.Traces {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO run_traces (run_id, trace_index, network, station,
				location, channel, start_time, trigger_time)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.RunID, tr.Index, tr.ID.Network, tr.ID.Station,
			tr.ID.Location, tr.ID.Channel, storeTime(tr.Start), storeTime(tr.Trigger))
		if err != nil {
			return fmt.Errorf("failed to insert trace %d: %w", tr.Index, err)
		}
	}

	m := rec.Coeff.Dim()
	for i := 0; i < m; i++ {
		for j := i + 1; j < m; j++ {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO pair_stats (run_id, i, j, coefficient, lag_seconds)
				VALUES (?, ?, ?, ?, ?)`,
				rec.RunID, i, j, rec.Coeff[i][j], rec.Lag[i][j])
			if err != nil {
				return fmt.Errorf("failed to insert pair (%d,%d): %w", i, j, err)
			}
		}
	}

	for i := 0; i < rec.Stats.Len(); i++ {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO trace_stats (run_id, trace_index, mean_coeff,
				sigma_upper, sigma_lower, delay_seconds, rms_residual)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			rec.RunID, i, rec.Stats.MeanCoeff[i], rec.Stats.SigmaUpper[i],
			rec.Stats.SigmaLower[i], rec.Stats.Delay[i], rec.Stats.RMSResidual[i])
		if err != nil {
			return fmt.Errorf("failed to insert trace stats %d: %w", i, err)
		}
	}

	for step, mg := range rec.Tree.Merges {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO merges (run_id, step, left_id, right_id, distance, size)
			VALUES (?, ?, ?, ?, ?, ?)`,
			rec.RunID, step, mg.Left, mg.Right, mg.Distance, mg.Size)
		if err != nil {
			return fmt.Errorf("failed to insert merge %d: %w", step, err)
		}
	}

	for i, cl := range rec.Clusters {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO clusters (run_id, trace_index, cluster_id)
			VALUES (?, ?, ?)`,
			rec.RunID, i, cl)
		if err != nil {
			return fmt.Errorf("failed to insert cluster for trace %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// LoadRun reads a stored run back, reconstructing the full matrices from the
// stored upper triangle by the builder's mirror rule.
func (db *DB) LoadRun(ctx context.Context, runID string) (*RunRecord, error) {
	rec := &RunRecord{RunID: runID}
	var createdAt string
	err := db.QueryRowContext(ctx, `
		SELECT created_at, trace_count, sample_rate, linkage_rule,
			distance_convention, max_lag_seconds, cut_threshold
		FROM runs WHERE run_id = ?`, runID).Scan(
		&createdAt, &rec.TraceCount, &rec.SampleRate, &rec.LinkageRule,
		&rec.DistanceConvention, &rec.MaxLagSeconds, &rec.CutThreshold)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}
	if rec.CreatedAt, err = loadTime(createdAt); err != nil {
		return nil, err
	}

	if err := db.loadTraces(ctx, rec); err != nil {
		return nil, err
	}
	if err := db.loadMatrices(ctx, rec); err != nil {
		return nil, err
	}
	if err := db.loadStats(ctx, rec); err != nil {
		return nil, err
	}
	if err := db.loadTree(ctx, rec); err != nil {
		return nil, err
	}
	if err := db.loadClusters(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (db *DB) loadTraces(ctx context.Context, rec *RunRecord) error {
	rows, err := db.QueryContext(ctx, `
		SELECT trace_index, network, station, location, channel,
			start_time, trigger_time
		FROM run_traces WHERE run_id = ? ORDER BY trace_index`, rec.RunID)
	if err != nil {
		return fmt.Errorf("failed to load traces: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var tr TraceRecord
		var start, trigger string
		if err := rows.Scan(&tr.Index, &tr.ID.Network, &tr.ID.Station,
			&tr.ID.Location, &tr.ID.Channel, &start, &trigger); err != nil {
			return fmt.Errorf("failed to scan trace: %w", err)
		}
		if tr.Start, err = loadTime(start); err != nil {
			return err
		}
		if tr.Trigger, err = loadTime(trigger); err != nil {
			return err
		}
		rec.Traces = append(rec.Traces, tr)
	}
	return rows.Err()
}

func (db *DB) loadMatrices(ctx context.Context, rec *RunRecord) error {
	m := rec.TraceCount
	coeff := make([][]float64, m)
	lag := make([][]float64, m)
	for i := range coeff {
		coeff[i] = make([]float64, m)
		lag[i] = make([]float64, m)
		coeff[i][i] = 1
	}

	rows, err := db.QueryContext(ctx, `
		SELECT i, j, coefficient, lag_seconds
		FROM pair_stats WHERE run_id = ? ORDER BY i, j`, rec.RunID)
	if err != nil {
		return fmt.Errorf("failed to load pair stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var i, j int
		var c, l float64
		if err := rows.Scan(&i, &j, &c, &l); err != nil {
			return fmt.Errorf("failed to scan pair: %w", err)
		}
		coeff[i][j], coeff[j][i] = c, c
		lag[i][j], lag[j][i] = l, -l
	}
	rec.Coeff = xcorr.CoefficientMatrix(coeff)
	rec.Lag = xcorr.LagMatrix(lag)
	return rows.Err()
}

func (db *DB) loadStats(ctx context.Context, rec *RunRecord) error {
	m := rec.TraceCount
	stats := &delaytime.StatTable{
		MeanCoeff:   make([]float64, m),
		SigmaUpper:  make([]float64, m),
		SigmaLower:  make([]float64, m),
		Delay:       make([]float64, m),
		RMSResidual: make([]float64, m),
	}
	rows, err := db.QueryContext(ctx, `
		SELECT trace_index, mean_coeff, sigma_upper, sigma_lower,
			delay_seconds, rms_residual
		FROM trace_stats WHERE run_id = ? ORDER BY trace_index`, rec.RunID)
	if err != nil {
		return fmt.Errorf("failed to load trace stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var i int
		var mean, up, down, delay, rms float64
		if err := rows.Scan(&i, &mean, &up, &down, &delay, &rms); err != nil {
			return fmt.Errorf("failed to scan trace stats: %w", err)
		}
		stats.MeanCoeff[i] = mean
		stats.SigmaUpper[i] = up
		stats.SigmaLower[i] = down
		stats.Delay[i] = delay
		stats.RMSResidual[i] = rms
	}
	rec.Stats = stats
	return rows.Err()
}

func (db *DB) loadTree(ctx context.Context, rec *RunRecord) error {
	tree := &linkage.Tree{Leaves: rec.TraceCount}
	rows, err := db.QueryContext(ctx, `
		SELECT left_id, right_id, distance, size
		FROM merges WHERE run_id = ? ORDER BY step`, rec.RunID)
	if err != nil {
		return fmt.Errorf("failed to load merges: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var mg linkage.Merge
		if err := rows.Scan(&mg.Left, &mg.Right, &mg.Distance, &mg.Size); err != nil {
			return fmt.Errorf("failed to scan merge: %w", err)
		}
		tree.Merges = append(tree.Merges, mg)
	}
	rec.Tree = tree
	return rows.Err()
}

func (db *DB) loadClusters(ctx context.Context, rec *RunRecord) error {
	clusters := make(linkage.Assignment, rec.TraceCount)
	rows, err := db.QueryContext(ctx, `
		SELECT trace_index, cluster_id
		FROM clusters WHERE run_id = ? ORDER BY trace_index`, rec.RunID)
	if err != nil {
		return fmt.Errorf("failed to load clusters: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var i, cl int
		if err := rows.Scan(&i, &cl); err != nil {
			return fmt.Errorf("failed to scan cluster: %w", err)
		}
		clusters[i] = cl
	}
	rec.Clusters = clusters
	return rows.Err()
}

// ListRuns returns the ids of stored runs, newest first.
func (db *DB) ListRuns(ctx context.Context) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT run_id FROM runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Times are stored as RFC3339Nano text so the on-disk form is portable
// across drivers.
func storeTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func loadTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse stored time %q: %w", s, err)
	}
	return t, nil
}
